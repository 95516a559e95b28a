package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/formpoll/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
// Pass ":memory:" for an in-memory database (used by tests).
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection serializes writers and keeps ":memory:" databases
	// from splitting across pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the highest applied migration version.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.GetContext(ctx, &version, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// formRow mirrors a forms row; nullable columns are decoded by toModel.
type formRow struct {
	Token          string         `db:"token"`
	SenderEmail    string         `db:"sender_email"`
	CandidateEmail string         `db:"candidate_email"`
	CreatedAt      time.Time      `db:"created_at"`
	Status         string         `db:"status"`
	ResponseData   sql.NullString `db:"response_data"`
	CompletedAt    sql.NullTime   `db:"completed_at"`
}

const formColumns = `token, sender_email, candidate_email, created_at, status, response_data, completed_at`

func (r formRow) toModel() (model.PendingForm, error) {
	f := model.PendingForm{
		Token:          r.Token,
		SenderEmail:    r.SenderEmail,
		CandidateEmail: r.CandidateEmail,
		CreatedAt:      r.CreatedAt.UTC(),
		Status:         model.FormStatus(r.Status),
	}

	if r.ResponseData.Valid && r.ResponseData.String != "" {
		if err := json.Unmarshal([]byte(r.ResponseData.String), &f.ResponseData); err != nil {
			return model.PendingForm{}, fmt.Errorf("unmarshaling response_data for form %s: %w", r.Token, err)
		}
	}
	if r.CompletedAt.Valid {
		completedAt := r.CompletedAt.Time.UTC()
		f.CompletedAt = &completedAt
	}

	return f, nil
}

func toModels(rows []formRow) ([]model.PendingForm, error) {
	forms := make([]model.PendingForm, 0, len(rows))
	for _, r := range rows {
		f, err := r.toModel()
		if err != nil {
			return nil, err
		}
		forms = append(forms, f)
	}
	return forms, nil
}

// CreateForm inserts a new form. A missing token is generated and a
// missing status defaults to pending. The stored form is returned.
func (s *SQLiteStore) CreateForm(
	ctx context.Context,
	f model.PendingForm,
) (model.PendingForm, error) {
	if f.Token == "" {
		f.Token = uuid.New().String()
	}
	if f.Status == "" {
		f.Status = model.FormStatusPending
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	f.CreatedAt = f.CreatedAt.UTC()

	var responseData sql.NullString
	if f.ResponseData != nil {
		data, err := json.Marshal(f.ResponseData)
		if err != nil {
			return model.PendingForm{}, fmt.Errorf("marshaling response_data: %w", err)
		}
		responseData = sql.NullString{String: string(data), Valid: true}
	}

	var completedAt sql.NullTime
	if f.CompletedAt != nil {
		completedAt = sql.NullTime{Time: f.CompletedAt.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forms (`+formColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.Token, f.SenderEmail, f.CandidateEmail, f.CreatedAt,
		string(f.Status), responseData, completedAt,
	)
	if err != nil {
		return model.PendingForm{}, fmt.Errorf("creating form %s: %w", f.Token, err)
	}

	return f, nil
}

// GetForm retrieves a single form by token.
func (s *SQLiteStore) GetForm(
	ctx context.Context,
	token string,
) (*model.PendingForm, error) {
	var row formRow
	err := s.db.GetContext(ctx, &row,
		"SELECT "+formColumns+" FROM forms WHERE token = ?", token,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting form %s: %w", token, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting form %s: %w", token, err)
	}

	f, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListForms retrieves forms matching the filter, newest first.
func (s *SQLiteStore) ListForms(
	ctx context.Context,
	filter FormFilter,
) ([]model.PendingForm, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := "SELECT " + formColumns + " FROM forms"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	var rows []formRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying forms: %w", err)
	}
	return toModels(rows)
}

// ListPending returns all pending forms, oldest first.
func (s *SQLiteStore) ListPending(ctx context.Context) ([]model.PendingForm, error) {
	var rows []formRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT "+formColumns+" FROM forms WHERE status = ? ORDER BY created_at ASC",
		string(model.FormStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("querying pending forms: %w", err)
	}
	return toModels(rows)
}

// CompareAndSetCompleted marks a form completed only while its status is
// still pending. A false result with a nil error means another writer got
// there first.
func (s *SQLiteStore) CompareAndSetCompleted(
	ctx context.Context,
	token string,
	responseData model.Answers,
	completedAt time.Time,
) (bool, error) {
	data, err := json.Marshal(responseData)
	if err != nil {
		return false, fmt.Errorf("marshaling response_data for form %s: %w", token, err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE forms
		SET status = ?, response_data = ?, completed_at = ?
		WHERE token = ? AND status = ?`,
		string(model.FormStatusCompleted), string(data), completedAt.UTC(),
		token, string(model.FormStatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("completing form %s: %w", token, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected for form %s: %w", token, err)
	}
	return n == 1, nil
}

// sessionRow mirrors a sessions row.
type sessionRow struct {
	OwnerEmail   string    `db:"owner_email"`
	Provider     string    `db:"provider"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// UpsertSession inserts or replaces the session owned by s.OwnerEmail.
func (s *SQLiteStore) UpsertSession(ctx context.Context, sess model.Session) error {
	if sess.OwnerEmail == "" {
		return errors.New("upserting session: owner email is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (owner_email, provider, access_token, refresh_token, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner_email) DO UPDATE SET
			provider = excluded.provider,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at`,
		sess.OwnerEmail, string(sess.Provider), sess.AccessToken, sess.RefreshToken,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting session %s: %w", sess.OwnerEmail, err)
	}
	return nil
}

// GetSession returns the session owned by email. The lookup is
// case-insensitive.
func (s *SQLiteStore) GetSession(ctx context.Context, email string) (*model.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT owner_email, provider, access_token, refresh_token, updated_at
		FROM sessions WHERE owner_email = ?`, email,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting session %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", email, err)
	}

	return &model.Session{
		Provider:     model.Provider(row.Provider),
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		OwnerEmail:   row.OwnerEmail,
	}, nil
}
