package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nhle/formpoll/internal/credential"
	"github.com/nhle/formpoll/internal/model"
	"github.com/nhle/formpoll/internal/source"
	"github.com/nhle/formpoll/internal/source/google"
	"github.com/nhle/formpoll/internal/source/microsoft"
	"github.com/nhle/formpoll/internal/store"
)

// sessionBackend is a session store the CLI can also write to.
type sessionBackend interface {
	store.SessionStore
	UpsertSession(ctx context.Context, s model.Session) error
}

// app bundles the dependencies shared by all commands.
type app struct {
	cfg      *model.AppConfig
	logger   *slog.Logger
	store    *store.SQLiteStore
	sessions sessionBackend
}

func loadConfig() (*model.AppConfig, error) {
	path := cfgPath
	if path == "" {
		path = model.DefaultConfigPath()
	}
	cfg, err := model.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

// openApp loads configuration, installs the logger and opens storage.
func openApp(logOut io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Log, logOut)
	slog.SetDefault(logger)

	if dir := filepath.Dir(cfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	sessions, err := openSessions(cfg, st)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, store: st, sessions: sessions}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// openSessions selects the configured session backend.
func openSessions(cfg *model.AppConfig, st *store.SQLiteStore) (sessionBackend, error) {
	switch cfg.Sessions.Backend {
	case model.SessionBackendKeyring:
		ring, err := credential.Open(cfg.Sessions.KeyringDir)
		if err != nil {
			return nil, err
		}
		return credential.NewSessionStore(ring), nil
	default:
		return st, nil
	}
}

// newLogger builds the slog handler described by cfg.
func newLogger(cfg model.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// buildRegistry wires one adapter per supported provider.
func buildRegistry(cfg *model.AppConfig) *source.Registry {
	httpClient := &http.Client{Timeout: cfg.Poll.FetchTimeout()}

	g := google.NewAdapter(cfg.Providers.SubjectToken,
		google.WithEndpoint(cfg.Providers.Google.Endpoint),
		google.WithHTTPClient(httpClient),
	)
	ms := microsoft.NewAdapter(
		microsoft.NewClient(cfg.Providers.Microsoft.BaseURL, httpClient),
		cfg.Providers.Microsoft.PageSize,
	)
	return source.NewRegistry(g, ms)
}

// shutdownTimeout bounds graceful shutdown of the server and poller.
const shutdownTimeout = 10 * time.Second
