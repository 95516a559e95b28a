package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/formpoll/internal/credential"
	"github.com/nhle/formpoll/internal/model"
	"github.com/nhle/formpoll/internal/store"
)

// execute runs the root command against an isolated database and returns
// its standard output.
func execute(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("FORMPOLL_DATABASE_PATH", dbPath)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestFormsCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "forms.db")

	out, err := execute(t, dbPath, "forms", "add",
		"--sender", "recruiter@company.com",
		"--candidate", "jane@example.com",
		"--token", "form-1",
		"--sent-at", "2026-03-01T09:00:00Z",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "form-1")

	out, err = execute(t, dbPath, "forms", "list", "--status", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, "form-1")
	assert.Contains(t, out, "jane@example.com")

	out, err = execute(t, dbPath, "forms", "list", "--status", "completed")
	require.NoError(t, err)
	assert.Contains(t, out, "No forms found.")

	out, err = execute(t, dbPath, "forms", "show", "form-1")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "2026-03-01 09:00")

	_, err = execute(t, dbPath, "forms", "show", "missing")
	assert.ErrorContains(t, err, "not found")
}

func TestFormsList_RejectsUnknownStatus(t *testing.T) {
	_, err := execute(t, filepath.Join(t.TempDir(), "forms.db"), "forms", "list", "--status", "archived")
	assert.ErrorContains(t, err, "unknown status")
}

func TestSessionsSet_SQLiteBackend(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "forms.db")

	_, err := execute(t, dbPath, "sessions", "set",
		"--provider", "microsoft",
		"--email", "recruiter@company.com",
		"--access-token", "access",
		"--refresh-token", "",
	)
	require.NoError(t, err)

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	sess, err := s.GetSession(context.Background(), "recruiter@company.com")
	require.NoError(t, err)
	assert.Equal(t, model.ProviderMicrosoft, sess.Provider)
	assert.Equal(t, "access", sess.AccessToken)
}

func TestSessionsSet_RejectsUnknownProvider(t *testing.T) {
	_, err := execute(t, filepath.Join(t.TempDir(), "forms.db"), "sessions", "set",
		"--provider", "yahoo", "--email", "a@b.com", "--access-token", "x")
	assert.ErrorContains(t, err, "unknown provider")
}

func TestOpenSessions(t *testing.T) {
	cfg := &model.AppConfig{Sessions: model.SessionsConfig{Backend: model.SessionBackendSQLite}}
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	backend, err := openSessions(cfg, st)
	require.NoError(t, err)
	assert.Same(t, st, backend)

	cfg.Sessions = model.SessionsConfig{Backend: model.SessionBackendKeyring, KeyringDir: t.TempDir()}
	backend, err = openSessions(cfg, st)
	if err != nil {
		t.Skipf("no keyring backend available: %v", err)
	}
	assert.IsType(t, &credential.SessionStore{}, backend)
}

func TestBuildRegistry(t *testing.T) {
	cfg, err := model.LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)

	reg := buildRegistry(cfg)
	for _, p := range []model.Provider{model.ProviderGoogle, model.ProviderMicrosoft} {
		a, ok := reg.Lookup(p)
		require.True(t, ok, p)
		assert.Equal(t, p, a.Provider())
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(model.LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "token", "abc")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"token":"abc"`)

	buf.Reset()
	newLogger(model.LogConfig{Level: "bogus"}, &buf).Info("fallback")
	assert.Contains(t, buf.String(), "level=INFO")
}

func TestRenderForm(t *testing.T) {
	completedAt := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	out := renderForm(model.PendingForm{
		Token:          "abc",
		SenderEmail:    "recruiter@company.com",
		CandidateEmail: "jane@example.com",
		CreatedAt:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Status:         model.FormStatusCompleted,
		ResponseData:   model.Answers{"Department": "DevOps", "Availability": "Remote"},
		CompletedAt:    &completedAt,
	})

	assert.Contains(t, out, "Answers")
	assert.Contains(t, out, "2026-03-01 10:30")
	assert.Less(t, strings.Index(out, "Availability"), strings.Index(out, "Department"))
}
