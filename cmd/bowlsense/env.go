package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/term"

	"github.com/okian/bowlsense/internal/adapters/http/client"
	"github.com/okian/bowlsense/internal/adapters/kv"
	"github.com/okian/bowlsense/internal/adapters/kv/sqlite"
	service "github.com/okian/bowlsense/internal/app"
	"github.com/okian/bowlsense/internal/config"
	"github.com/okian/bowlsense/internal/session"
	"github.com/okian/bowlsense/pkg/logger"
)

const appDir = "bowlsense"

// env holds what a command needs, built once per invocation.
type env struct {
	cfg      *config.Config
	out      io.Writer
	errOut   io.Writer
	store    kv.Store
	sessions *session.Manager
	client   *client.Client
	svc      *service.Service
	log      logger.Logger

	readPassword func() (string, error)
}

func newEnv(cfg *config.Config, stdout, stderr io.Writer) (*env, error) {
	log := logger.Named("cli")

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	sessions := session.New(store, session.WithLogger(log.Named("session")))

	cl, err := client.New(cfg.APIBaseURL,
		client.WithAuthorizer(sessions),
		client.WithRetry(cfg.RetryMax, cfg.RetryBase()),
		client.WithRequestTimeout(cfg.RequestTimeout()),
		client.WithUploadTimeout(cfg.UploadTimeout()),
		client.WithMaxUploadBytes(cfg.MaxUploadBytes()),
		client.WithLogger(log.Named("client")),
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	svc := service.New(cl, sessions,
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithCacheSize(cfg.CacheSize),
		service.WithPollInterval(cfg.PollInterval()),
		service.WithPollTimeout(cfg.PollTimeout()),
		service.WithPollMaxErrors(cfg.PollMaxErrors),
		service.WithLogger(log.Named("service")),
	)

	return &env{
		cfg:          cfg,
		out:          stdout,
		errOut:       stderr,
		store:        store,
		sessions:     sessions,
		client:       cl,
		svc:          svc,
		log:          log,
		readPassword: promptPassword,
	}, nil
}

// Close stops the service and releases the session store.
func (e *env) Close() {
	e.svc.Stop()
	if err := e.store.Close(); err != nil {
		e.log.Warn(context.Background(), "closing session store failed", logger.Error(err))
	}
}

func openStore(cfg *config.Config) (kv.Store, error) {
	switch cfg.SessionBackend {
	case config.SessionBackendMemory:
		return kv.NewMemoryStore(), nil
	case config.SessionBackendSQLite:
		path, err := sessionPath(cfg, "session.db")
		if err != nil {
			return nil, err
		}
		return sqlite.New(path)
	default:
		path, err := sessionPath(cfg, "session.json")
		if err != nil {
			return nil, err
		}
		return kv.NewFileStore(path)
	}
}

func sessionPath(cfg *config.Config, name string) (string, error) {
	if cfg.SessionPath != "" {
		return cfg.SessionPath, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(dir, appDir, name), nil
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal to prompt for a password; pass --password")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprint(os.Stderr, "\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
