package client

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/internal/domain/normalize"
	"github.com/okian/bowlsense/pkg/logger"
	"github.com/okian/bowlsense/pkg/metrics"
)

// Form field names of the upload endpoints.
const (
	fieldVideo = "video"
	fieldStyle = "bowling_style"
	fieldArm   = "bowling_arm"
)

var videoExtensions = map[string]bool{ //nolint:gochecknoglobals // accepted formats
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
	".m4v":  true,
}

// ProgressFunc reports uploaded bytes out of total.
type ProgressFunc func(sent, total int64)

// UploadInput describes a single-video upload.
type UploadInput struct {
	Path         string
	BowlingStyle model.BowlingStyle
	BowlingArm   model.BowlingArm
	OnProgress   ProgressFunc
}

// AngleVideo is one camera angle of a multi-angle upload.
type AngleVideo struct {
	Angle string
	Path  string
}

// MultiUploadInput describes a multi-angle upload.
type MultiUploadInput struct {
	Videos       []AngleVideo
	BowlingStyle model.BowlingStyle
	BowlingArm   model.BowlingArm
	OnProgress   ProgressFunc
}

type filePart struct {
	field string
	path  string
	size  int64
}

// ValidateVideo checks that path is an uploadable video within limit bytes
// and returns its size.
func ValidateVideo(path string, limit int64) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrVideoNotFound, path)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%w: %s is a directory", ErrInvalidVideo, path)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !videoExtensions[ext] {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%w: %s is empty", ErrInvalidVideo, path)
	}
	if limit > 0 && info.Size() > limit {
		return 0, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrVideoTooLarge, path, info.Size(), limit)
	}
	return info.Size(), nil
}

// ValidateAngles checks a multi-angle selection: 2 or 3 distinct known angles.
func ValidateAngles(videos []AngleVideo) error {
	if len(videos) < model.MinAngles || len(videos) > model.MaxAngles {
		return fmt.Errorf("%w: got %d", ErrAngleCount, len(videos))
	}
	seen := make(map[string]bool, len(videos))
	for _, v := range videos {
		angle := strings.ToLower(strings.TrimSpace(v.Angle))
		if !model.ValidAngle(angle) {
			return fmt.Errorf("%w: %q", ErrInvalidAngle, v.Angle)
		}
		if seen[angle] {
			return fmt.Errorf("%w: %s", ErrDuplicateAngle, angle)
		}
		seen[angle] = true
	}
	return nil
}

// UploadVideo uploads one video and returns the backend job id.
func (c *Client) UploadVideo(ctx context.Context, in UploadInput) (string, error) {
	size, err := ValidateVideo(in.Path, c.maxUploadBytes)
	if err != nil {
		return "", err
	}
	parts := []filePart{{field: fieldVideo, path: in.Path, size: size}}
	return c.upload(ctx, pathUpload, "upload", formFields(in.BowlingStyle, in.BowlingArm), parts, in.OnProgress)
}

// UploadMultiVideo uploads 2 or 3 camera angles as one job and returns the
// backend job id.
func (c *Client) UploadMultiVideo(ctx context.Context, in MultiUploadInput) (string, error) {
	if err := ValidateAngles(in.Videos); err != nil {
		return "", err
	}
	parts := make([]filePart, 0, len(in.Videos))
	for _, v := range in.Videos {
		size, err := ValidateVideo(v.Path, c.maxUploadBytes)
		if err != nil {
			return "", fmt.Errorf("%s angle: %w", v.Angle, err)
		}
		parts = append(parts, filePart{field: strings.ToLower(strings.TrimSpace(v.Angle)), path: v.Path, size: size})
	}
	return c.upload(ctx, pathMultiUpload, "multi_upload", formFields(in.BowlingStyle, in.BowlingArm), parts, in.OnProgress)
}

func formFields(style model.BowlingStyle, arm model.BowlingArm) map[string]string {
	f := map[string]string{}
	if style != "" && style != model.StyleUnknown {
		f[fieldStyle] = string(style)
	}
	if arm != "" && arm != model.ArmUnknown {
		f[fieldArm] = string(arm)
	}
	return f
}

// upload streams a multipart body through a pipe so videos are never held
// in memory. Uploads are not retried.
func (c *Client) upload(ctx context.Context, path, endpoint string, fields map[string]string, parts []filePart, progress ProgressFunc) (string, error) {
	var total int64
	for _, p := range parts {
		total += p.size
	}
	c.log.Info(ctx, "uploading videos",
		logger.String("endpoint", endpoint),
		logger.Int("files", len(parts)),
		logger.Any("bytes", total))

	body, err := c.send(ctx, request{
		method:   http.MethodPost,
		path:     path,
		endpoint: endpoint,
		timeout:  c.uploadTimeout,
		body: func() (io.Reader, string, error) {
			pr, pw := io.Pipe()
			mw := multipart.NewWriter(pw)
			go func() {
				err := writeMultipart(mw, fields, parts, &progressCounter{total: total, fn: progress})
				if err == nil {
					err = mw.Close()
				}
				pw.CloseWithError(err)
			}()
			return pr, mw.FormDataContentType(), nil
		},
	})
	if err != nil {
		return "", err
	}
	id, err := normalize.JobID(body)
	if err != nil {
		return "", fmt.Errorf("upload response: %w", err)
	}
	return id, nil
}

func writeMultipart(mw *multipart.Writer, fields map[string]string, parts []filePart, counter *progressCounter) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("write field %s: %w", k, err)
		}
	}
	for _, p := range parts {
		if err := writeFile(mw, p, counter); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(mw *multipart.Writer, p filePart, counter *progressCounter) error {
	f, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", p.path, err)
	}
	defer f.Close()
	w, err := mw.CreateFormFile(p.field, filepath.Base(p.path))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	n, err := io.Copy(io.MultiWriter(w, counter), f)
	metrics.RecordUploadBytes(n)
	if err != nil {
		return fmt.Errorf("stream %s: %w", p.path, err)
	}
	return nil
}

type progressCounter struct {
	sent  int64
	total int64
	fn    ProgressFunc
}

func (p *progressCounter) Write(b []byte) (int, error) {
	p.sent += int64(len(b))
	if p.fn != nil {
		p.fn(p.sent, p.total)
	}
	return len(b), nil
}
