package google

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/formpoll/internal/model"
	"github.com/nhle/formpoll/internal/source"
)

type fakeGmail struct {
	t         *testing.T
	requests  atomic.Int32
	status    int
	messages  []map[string]string
	raw       string
	received  time.Time
	lastQuery atomic.Value
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)
	assert.Equal(f.t, "Bearer access-1", r.Header.Get("Authorization"))

	if f.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/gmail/v1/users/me/messages":
		f.lastQuery.Store(r.URL.Query().Get("q"))
		assert.Equal(f.t, "1", r.URL.Query().Get("maxResults"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages":           f.messages,
			"resultSizeEstimate": len(f.messages),
		})
	case strings.HasPrefix(r.URL.Path, "/gmail/v1/users/me/messages/"):
		id := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/messages/")
		assert.Equal(f.t, "raw", r.URL.Query().Get("format"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":           id,
			"internalDate": strconv.FormatInt(f.received.UnixMilli(), 10),
			"raw":          f.raw,
		})
	default:
		http.NotFound(w, r)
	}
}

func newTestAdapter(t *testing.T, fake *fakeGmail) *Adapter {
	t.Helper()
	fake.t = t
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewAdapter("Information Request", WithEndpoint(srv.URL), WithHTTPClient(srv.Client()))
}

func encodeRaw(msg string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strings.ReplaceAll(msg, "\n", "\r\n")))
}

var session = model.Session{
	Provider:    model.ProviderGoogle,
	AccessToken: "access-1",
	OwnerEmail:  "recruiter@example.com",
}

func collect(t *testing.T, seq source.Messages) ([]model.CandidateMessage, error) {
	t.Helper()
	var msgs []model.CandidateMessage
	for msg, err := range seq {
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func TestFetchNewMessages_YieldsFirstHit(t *testing.T) {
	received := time.Date(2026, 3, 1, 9, 0, 10, 0, time.UTC)
	fake := &fakeGmail{
		messages: []map[string]string{{"id": "m1", "threadId": "t1"}},
		raw:      encodeRaw("From: candidate@example.com\nSubject: Re: Information Request\nContent-Type: text/plain\n\nRole: DevOps\nLocation: Remote\n"),
		received: received,
	}
	a := newTestAdapter(t, fake)

	since := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	msgs, err := collect(t, a.FetchNewMessages(t.Context(), session, "candidate@example.com", since))
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, "m1", msgs[0].ID)
	assert.True(t, received.Equal(msgs[0].ReceivedAt))
	assert.Contains(t, msgs[0].Body, "Role: DevOps")
	assert.Equal(t,
		`from:candidate@example.com subject:"Information Request" after:`+"1772355600",
		fake.lastQuery.Load())
}

func TestFetchNewMessages_Empty(t *testing.T) {
	fake := &fakeGmail{}
	a := newTestAdapter(t, fake)

	msgs, err := collect(t, a.FetchNewMessages(t.Context(), session, "candidate@example.com", time.Now()))
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, int32(1), fake.requests.Load(), "no body fetch without a hit")
}

func TestFetchNewMessages_Lazy(t *testing.T) {
	fake := &fakeGmail{}
	a := newTestAdapter(t, fake)

	seq := a.FetchNewMessages(t.Context(), session, "candidate@example.com", time.Now())
	assert.Equal(t, int32(0), fake.requests.Load())

	_, _ = collect(t, seq)
	_, _ = collect(t, seq)
	assert.Equal(t, int32(2), fake.requests.Load(), "each range re-queries")
}

func TestFetchNewMessages_Unauthorized(t *testing.T) {
	fake := &fakeGmail{status: http.StatusUnauthorized}
	a := newTestAdapter(t, fake)

	_, err := collect(t, a.FetchNewMessages(t.Context(), session, "candidate@example.com", time.Now()))
	require.Error(t, err)
	assert.True(t, source.IsAuthError(err))
}

func TestFetchNewMessages_MissingToken(t *testing.T) {
	fake := &fakeGmail{}
	a := newTestAdapter(t, fake)

	_, err := collect(t, a.FetchNewMessages(t.Context(), model.Session{Provider: model.ProviderGoogle}, "c@example.com", time.Now()))
	assert.True(t, source.IsAuthError(err))
	assert.Equal(t, int32(0), fake.requests.Load())
}

func TestSearchQuery_StripsQuotes(t *testing.T) {
	q := searchQuery("a@b.c", `Say "hi"`, time.Unix(100, 0))
	assert.Equal(t, `from:a@b.c subject:"Say hi" after:100`, q)
}
