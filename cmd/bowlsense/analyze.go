package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/okian/bowlsense/internal/adapters/http/api"
	"github.com/okian/bowlsense/internal/adapters/http/client"
	service "github.com/okian/bowlsense/internal/app"
	"github.com/okian/bowlsense/internal/domain/model"
)

type analyzeFlags struct {
	style  *string
	arm    *string
	noWait *bool
	json   *bool
}

func addAnalyzeFlags(fs *flag.FlagSet) analyzeFlags {
	return analyzeFlags{
		style:  fs.String("style", "", "Bowling style, defaults to the profile"),
		arm:    fs.String("arm", "", "Bowling arm, defaults to the profile"),
		noWait: fs.Bool("no-wait", false, "Print the job id and exit after uploading"),
		json:   fs.Bool("json", false, "Print the result as JSON"),
	}
}

// parseArgs lets flags follow positional arguments.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return pos, nil
		}
		pos = append(pos, args[0])
		args = args[1:]
	}
}

func cmdAnalyze(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("analyze", e)
	af := addAnalyzeFlags(fs)
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return errors.New("usage: bowlsense analyze [options] <video>")
	}
	style, arm, err := e.bowlingProfile(ctx, af)
	if err != nil {
		return err
	}
	if err := e.svc.Start(ctx); err != nil {
		return err
	}

	job, err := e.svc.Analyze(ctx, client.UploadInput{
		Path:         pos[0],
		BowlingStyle: style,
		BowlingArm:   arm,
		OnProgress:   e.uploadProgress(),
	})
	if err != nil {
		return err
	}
	return e.afterUpload(ctx, job, af)
}

func cmdAnalyzeMulti(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("analyze-multi", e)
	front := fs.String("front", "", "Front-on video")
	side := fs.String("side", "", "Side-on video")
	back := fs.String("back", "", "Behind-the-bowler video")
	af := addAnalyzeFlags(fs)
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	var videos []client.AngleVideo
	for _, v := range []client.AngleVideo{
		{Angle: model.AngleFront, Path: *front},
		{Angle: model.AngleSide, Path: *side},
		{Angle: model.AngleBack, Path: *back},
	} {
		if strings.TrimSpace(v.Path) != "" {
			videos = append(videos, v)
		}
	}
	if err := client.ValidateAngles(videos); err != nil {
		return fmt.Errorf("%w; pass at least two of --front, --side and --back", err)
	}

	style, arm, err := e.bowlingProfile(ctx, af)
	if err != nil {
		return err
	}
	if err := e.svc.Start(ctx); err != nil {
		return err
	}
	job, err := e.svc.AnalyzeMulti(ctx, client.MultiUploadInput{
		Videos:       videos,
		BowlingStyle: style,
		BowlingArm:   arm,
		OnProgress:   e.uploadProgress(),
	})
	if err != nil {
		return err
	}
	return e.afterUpload(ctx, job, af)
}

func cmdStatus(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("status", e)
	multi := fs.Bool("multi", false, "The job is a multi-angle analysis")
	watch := fs.Bool("watch", false, "Follow the job until it settles")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return errors.New("usage: bowlsense status [--multi] [--watch] <job-id>")
	}
	kind := kindOf(*multi)
	if _, err := e.svc.EnsureSession(ctx); err != nil {
		return err
	}

	if !*watch {
		p, err := e.client.Progress(ctx, kind, pos[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(e.out, progressLine(p))
		return nil
	}

	if err := e.svc.Start(ctx); err != nil {
		return err
	}
	job, err := e.svc.Track(ctx, kind, pos[0])
	if err != nil {
		return err
	}
	job, err = e.follow(ctx, job.ID)
	if err != nil {
		return err
	}
	return e.settled(job)
}

func cmdResult(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("result", e)
	multi := fs.Bool("multi", false, "The job is a multi-angle analysis")
	asJSON := fs.Bool("json", false, "Print the result as JSON")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return errors.New("usage: bowlsense result [--multi] [--json] <job-id>")
	}
	if _, err := e.svc.EnsureSession(ctx); err != nil {
		return err
	}
	return e.printResult(ctx, kindOf(*multi), pos[0], *asJSON)
}

func cmdHistory(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("history", e)
	limit := fs.Int("limit", 10, "Number of analyses to list")
	asJSON := fs.Bool("json", false, "Print the list as JSON")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	if _, err := e.svc.EnsureSession(ctx); err != nil {
		return err
	}
	list, err := e.svc.History(ctx, *limit)
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(e.out, list)
	}
	printHistory(e.out, list)
	return nil
}

func cmdServe(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("serve", e)
	addr := fs.String("addr", e.cfg.StatusAddr, "Listen address")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	if _, err := e.svc.EnsureSession(ctx); err != nil {
		return err
	}
	if err := e.svc.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Status server on http://%s (Ctrl-C to stop)\n", *addr)
	return api.NewServer(e.svc, api.WithLogger(e.log.Named("status"))).Serve(ctx, *addr)
}

// bowlingProfile resolves style and arm from flags, then the stored profile.
func (e *env) bowlingProfile(ctx context.Context, af analyzeFlags) (model.BowlingStyle, model.BowlingArm, error) {
	sess, err := e.svc.EnsureSession(ctx)
	if err != nil {
		return "", "", err
	}
	style, arm := model.StyleUnknown, model.ArmUnknown
	if sess.User != nil {
		style, arm = sess.User.BowlingStyle, sess.User.BowlingArm
	}
	if *af.style != "" {
		style = model.ParseBowlingStyle(*af.style)
	}
	if *af.arm != "" {
		arm = model.ParseBowlingArm(*af.arm)
	}
	return style, arm, nil
}

func (e *env) uploadProgress() client.ProgressFunc {
	last := -1
	return func(sent, total int64) {
		if total <= 0 {
			return
		}
		pct := int(sent * 100 / total)
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(e.errOut, "\rUploading %3d%%", pct)
		if pct >= 100 {
			fmt.Fprintln(e.errOut)
		}
	}
}

func (e *env) afterUpload(ctx context.Context, job model.Job, af analyzeFlags) error {
	fmt.Fprintf(e.out, "Job %s submitted\n", job.ID)
	if *af.noWait {
		return nil
	}
	job, err := e.follow(ctx, job.ID)
	if err != nil {
		return err
	}
	if err := e.settled(job); err != nil {
		return err
	}
	if job.State != model.JobCompleted {
		return nil
	}
	return e.printResult(ctx, job.Kind, job.ID, *af.json)
}

// follow prints progress until the job settles or ctx is done.
func (e *env) follow(ctx context.Context, id string) (model.Job, error) {
	updates, unsubscribe := e.svc.Subscribe(id)
	defer unsubscribe()

	j, err := e.svc.Job(ctx, id)
	if err != nil {
		return j, err
	}
	last := ""
	for {
		if line := progressLine(j.Progress); j.Progress.Stage != "" && line != last {
			fmt.Fprintln(e.out, line)
			last = line
		}
		if j.State.Done() {
			return j, nil
		}
		select {
		case <-ctx.Done():
			fmt.Fprintf(e.errOut, "Stopped watching; the analysis continues. Check later with `bowlsense status %s`\n", id)
			return j, ctx.Err()
		case j = <-updates:
		}
	}
}

// settled turns a finished watch into the command outcome. A timeout is
// not an error: the backend may still finish the job.
func (e *env) settled(j model.Job) error {
	switch j.State {
	case model.JobFailed:
		return fmt.Errorf("analysis failed: %s", j.Error)
	case model.JobCanceled:
		return fmt.Errorf("watch canceled: %s", j.Error)
	case model.JobTimedOut:
		fmt.Fprintf(e.out, "Still processing after %s. Check later with `bowlsense status %s`\n",
			e.cfg.PollTimeout(), j.ID)
	case model.JobCompleted:
		if j.Error != "" {
			fmt.Fprintf(e.errOut, "Analysis finished but the result could not be fetched: %s\n", j.Error)
		}
	}
	return nil
}

func (e *env) printResult(ctx context.Context, kind model.Kind, id string, asJSON bool) error {
	if kind == model.KindMulti {
		a, err := e.svc.MultiResult(ctx, id)
		if err != nil {
			return resultError(id, err)
		}
		if asJSON {
			return writeJSON(e.out, a)
		}
		printMultiAnalysis(e.out, a)
		return nil
	}
	a, err := e.svc.Result(ctx, id)
	if err != nil {
		return resultError(id, err)
	}
	if asJSON {
		return writeJSON(e.out, a)
	}
	printAnalysis(e.out, a)
	return nil
}

func resultError(id string, err error) error {
	switch {
	case errors.Is(err, service.ErrNoResult):
		return fmt.Errorf("analysis %s is not finished yet; follow it with `bowlsense status --watch %s`", id, id)
	case errors.Is(err, client.ErrNotFound):
		return fmt.Errorf("no analysis with id %s", id)
	}
	return err
}

func kindOf(multi bool) model.Kind {
	if multi {
		return model.KindMulti
	}
	return model.KindSingle
}
