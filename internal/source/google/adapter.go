// Package google implements source.Adapter on top of the Gmail API.
//
// Gmail offers full-text search, so candidate, subject marker and time
// bound are all pushed into one server-side query and only the best match
// is downloaded.
package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nhle/formpoll/internal/model"
	"github.com/nhle/formpoll/internal/source"
)

const (
	user = "me"

	// searchLimit is the number of search hits requested. Only the first
	// hit's body is ever downloaded.
	searchLimit = 1
)

// Adapter implements source.Adapter for Gmail mailboxes.
type Adapter struct {
	subjectToken string
	endpoint     string
	httpClient   *http.Client
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithEndpoint overrides the Gmail API base URL.
func WithEndpoint(endpoint string) Option {
	return func(a *Adapter) {
		if endpoint != "" && !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}
		a.endpoint = endpoint
	}
}

// WithHTTPClient sets the client the OAuth2 transport is layered on.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.httpClient = c }
}

// NewAdapter creates a Gmail adapter that matches replies whose subject
// contains subjectToken.
func NewAdapter(subjectToken string, opts ...Option) *Adapter {
	a := &Adapter{
		subjectToken: subjectToken,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider returns model.ProviderGoogle.
func (a *Adapter) Provider() model.Provider {
	return model.ProviderGoogle
}

// FetchNewMessages searches the session's mailbox and yields at most one
// message: the newest hit for the candidate, subject marker and time bound.
func (a *Adapter) FetchNewMessages(
	ctx context.Context,
	session model.Session,
	candidateEmail string,
	since time.Time,
) source.Messages {
	return func(yield func(model.CandidateMessage, error) bool) {
		srv, err := a.service(ctx, session)
		if err != nil {
			yield(model.CandidateMessage{}, err)
			return
		}

		list, err := srv.Users.Messages.List(user).
			Q(searchQuery(candidateEmail, a.subjectToken, since)).
			MaxResults(searchLimit).
			Context(ctx).
			Do()
		if err != nil {
			yield(model.CandidateMessage{}, classify(err, "searching messages"))
			return
		}
		if len(list.Messages) == 0 {
			return
		}

		msgID := list.Messages[0].Id
		full, err := srv.Users.Messages.Get(user, msgID).
			Format("raw").
			Context(ctx).
			Do()
		if err != nil {
			yield(model.CandidateMessage{}, classify(err, "fetching message "+msgID))
			return
		}

		raw, err := decodeRaw(full.Raw)
		if err != nil {
			yield(model.CandidateMessage{}, fmt.Errorf("decoding message %s: %w", msgID, err))
			return
		}

		yield(model.CandidateMessage{
			ID:         full.Id,
			ReceivedAt: time.UnixMilli(full.InternalDate).UTC(),
			Body:       source.ParseMIME(raw).PlainText(),
		}, nil)
	}
}

// service builds a Gmail client authorized with the session's access token.
// Token refresh is owned by the auth subsystem, so the token is used as-is.
func (a *Adapter) service(ctx context.Context, session model.Session) (*gmail.Service, error) {
	if session.AccessToken == "" {
		return nil, &source.AuthError{
			Provider: model.ProviderGoogle,
			Message:  fmt.Sprintf("session for %s has no access token", session.OwnerEmail),
		}
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    "Bearer",
	})
	httpClient := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, a.httpClient), ts)

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}

	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating Gmail service: %w", err)
	}
	return srv, nil
}

// searchQuery builds the Gmail search expression for a candidate's reply.
func searchQuery(candidateEmail, subjectToken string, since time.Time) string {
	return fmt.Sprintf(
		`from:%s subject:"%s" after:%d`,
		candidateEmail,
		strings.ReplaceAll(subjectToken, `"`, ""),
		since.Unix(),
	)
}

// classify maps Gmail API errors onto source errors.
func classify(err error, op string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) &&
		(apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden) {
		return &source.AuthError{
			Provider: model.ProviderGoogle,
			Message:  fmt.Sprintf("%s: %s", op, apiErr.Message),
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// decodeRaw decodes the base64url "raw" field, with or without padding.
func decodeRaw(raw string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(raw, "="))
}
