package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/bowlsense/internal/domain/model"
	"github.com/okian/bowlsense/internal/fakebackend"
	"github.com/okian/bowlsense/pkg/logger"
)

const defaultTokenTTL = 24 * time.Hour

func main() {
	var (
		addr      = flag.String("addr", "127.0.0.1:8000", "Listen address")
		naming    = flag.String("naming", "snake", "Response key convention: snake or camel")
		email     = flag.String("email", "bowler@example.com", "Seeded account email")
		password  = flag.String("password", "bowler123", "Seeded account password")
		name      = flag.String("name", "Demo Bowler", "Seeded account name")
		guests    = flag.Bool("guests", true, "Accept X-Guest-ID requests")
		failStage = flag.String("fail-stage", "", "Fail every job when it reaches this stage")
		failMsg   = flag.String("fail-message", "pose estimation failed: bowler not visible", "Failure message")
		stall     = flag.Bool("stall", false, "Never advance jobs past the first stage")
		tokenTTL  = flag.Duration("token-ttl", defaultTokenTTL, "Lifetime of issued tokens")
		format    = flag.String("log-format", logger.FormatConsole, "Log format: text, json or console")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	if err := logger.Init(logger.WithFormat(*format)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Named("fake-backend")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []fakebackend.Option{
		fakebackend.WithNaming(fakebackend.ParseNaming(*naming)),
		fakebackend.WithUser(*email, *password, *name),
		fakebackend.WithGuestAccess(*guests),
		fakebackend.WithTokenTTL(*tokenTTL),
		fakebackend.WithLogger(log),
	}
	if *failStage != "" {
		opts = append(opts, fakebackend.WithFailure(model.Stage(*failStage), *failMsg))
	}
	if *stall {
		opts = append(opts, fakebackend.WithStall())
	}

	if err := fakebackend.New(opts...).Serve(ctx, *addr); err != nil {
		log.Error(ctx, "fake backend stopped", logger.Error(err))
		os.Exit(1)
	}
}
