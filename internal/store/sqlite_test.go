package store_test

import (
	"context"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/formpoll/internal/model"
	"github.com/nhle/formpoll/internal/store"
	"github.com/nhle/formpoll/internal/testutil"
)

func newForm(candidate string, createdAt time.Time) model.PendingForm {
	return model.PendingForm{
		SenderEmail:    "recruiter@company.com",
		CandidateEmail: candidate,
		CreatedAt:      createdAt,
	}
}

func TestNewSQLiteStore_AppliesMigrations(t *testing.T) {
	s := testutil.NewTestStore(t)

	version, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestNewSQLiteStore_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forms.db")

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	created, err := s.CreateForm(context.Background(), newForm("jane@example.com", time.Now()))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetForm(context.Background(), created.Token)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", got.CandidateEmail)
}

func TestCreateForm_Defaults(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	created, err := s.CreateForm(ctx, newForm("jane@example.com", time.Time{}))
	require.NoError(t, err)

	assert.NotEmpty(t, created.Token)
	assert.Equal(t, model.FormStatusPending, created.Status)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := s.GetForm(ctx, created.Token)
	require.NoError(t, err)
	assert.True(t, got.IsPending())
	assert.Nil(t, got.ResponseData)
	assert.Nil(t, got.CompletedAt)
}

func TestCreateForm_DuplicateToken(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	f := newForm("jane@example.com", time.Now())
	f.Token = "abc"
	_, err := s.CreateForm(ctx, f)
	require.NoError(t, err)

	_, err = s.CreateForm(ctx, f)
	assert.Error(t, err)
}

func TestGetForm_NotFound(t *testing.T) {
	s := testutil.NewTestStore(t)

	_, err := s.GetForm(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListPending_OldestFirst(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	second, err := s.CreateForm(ctx, newForm("b@example.com", base.Add(time.Hour)))
	require.NoError(t, err)
	first, err := s.CreateForm(ctx, newForm("a@example.com", base))
	require.NoError(t, err)
	done, err := s.CreateForm(ctx, newForm("c@example.com", base.Add(2*time.Hour)))
	require.NoError(t, err)

	ok, err := s.CompareAndSetCompleted(ctx, done.Token, model.Answers{"x": "1"}, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.Token, pending[0].Token)
	assert.Equal(t, second.Token, pending[1].Token)
}

func TestListForms_Filter(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := s.CreateForm(ctx, newForm(email, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	all, err := s.ListForms(ctx, store.FormFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c@example.com", all[0].CandidateEmail)

	page, err := s.ListForms(ctx, store.FormFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b@example.com", page[0].CandidateEmail)

	completed := model.FormStatusCompleted
	none, err := s.ListForms(ctx, store.FormFilter{Status: &completed})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCompareAndSetCompleted(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	createdAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	completedAt := createdAt.Add(90 * time.Minute)

	f, err := s.CreateForm(ctx, newForm("jane@example.com", createdAt))
	require.NoError(t, err)

	answers := model.Answers{"Department": "DevOps", "Availability": "Remote"}
	ok, err := s.CompareAndSetCompleted(ctx, f.Token, answers, completedAt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompareAndSetCompleted(ctx, f.Token, model.Answers{"Department": "Sales"}, completedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "second completion must lose")

	got, err := s.GetForm(ctx, f.Token)
	require.NoError(t, err)
	assert.Equal(t, model.FormStatusCompleted, got.Status)
	assert.Equal(t, answers, got.ResponseData)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completedAt.Equal(*got.CompletedAt))
}

func TestCompareAndSetCompleted_UnknownToken(t *testing.T) {
	s := testutil.NewTestStore(t)

	ok, err := s.CompareAndSetCompleted(context.Background(), "missing", model.Answers{"a": "b"}, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompareAndSetCompleted_ConcurrentSingleWinner(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	f, err := s.CreateForm(ctx, newForm("jane@example.com", time.Now()))
	require.NoError(t, err)

	const writers = 16
	var (
		wg   gosync.WaitGroup
		mu   gosync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.CompareAndSetCompleted(ctx, f.Token, model.Answers{"k": "v"}, time.Now())
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestSessions_UpsertAndGet(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.GetSession(ctx, "recruiter@company.com")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.UpsertSession(ctx, model.Session{
		Provider:    model.ProviderGoogle,
		AccessToken: "old",
		OwnerEmail:  "recruiter@company.com",
	}))
	require.NoError(t, s.UpsertSession(ctx, model.Session{
		Provider:     model.ProviderMicrosoft,
		AccessToken:  "new",
		RefreshToken: "refresh",
		OwnerEmail:   "recruiter@company.com",
	}))

	got, err := s.GetSession(ctx, "Recruiter@Company.com")
	require.NoError(t, err)
	assert.Equal(t, model.ProviderMicrosoft, got.Provider)
	assert.Equal(t, "new", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken)
}

func TestUpsertSession_RequiresOwner(t *testing.T) {
	s := testutil.NewTestStore(t)

	err := s.UpsertSession(context.Background(), model.Session{Provider: model.ProviderGoogle})
	assert.Error(t, err)
}
