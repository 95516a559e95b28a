// Package microsoft implements source.Adapter on top of Microsoft Graph.
//
// Graph has no full-text search over sender and date that is cheap enough
// to poll, so the adapter lists the sender's latest messages and applies
// the time bound locally.
package microsoft

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/formpoll/internal/model"
	"github.com/nhle/formpoll/internal/source"
)

// MaxPageSize is the largest listing requested from Graph.
const MaxPageSize = 10

// Adapter implements source.Adapter for Outlook / Microsoft 365 mailboxes.
type Adapter struct {
	client   *Client
	pageSize int
}

// NewAdapter creates a Graph adapter. pageSize is clamped to
// [1, MaxPageSize].
func NewAdapter(client *Client, pageSize int) *Adapter {
	if pageSize < 1 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return &Adapter{client: client, pageSize: pageSize}
}

// Provider returns model.ProviderMicrosoft.
func (a *Adapter) Provider() model.Provider {
	return model.ProviderMicrosoft
}

// FetchNewMessages lists the candidate's latest messages and yields the
// first one received strictly after since.
func (a *Adapter) FetchNewMessages(
	ctx context.Context,
	session model.Session,
	candidateEmail string,
	since time.Time,
) source.Messages {
	return func(yield func(model.CandidateMessage, error) bool) {
		list, err := a.client.ListMessagesFrom(ctx, session.AccessToken, candidateEmail, a.pageSize)
		if err != nil {
			yield(model.CandidateMessage{}, fmt.Errorf("listing messages from %s: %w", candidateEmail, err))
			return
		}

		for _, msg := range list.Value {
			if !msg.ReceivedDateTime.After(since) {
				continue
			}
			yield(toCandidate(msg), nil)
			return
		}
	}
}

func toCandidate(msg Message) model.CandidateMessage {
	body := msg.Body.Content
	if strings.EqualFold(msg.Body.ContentType, "html") {
		body = source.StripHTML(body)
	}
	return model.CandidateMessage{
		ID:         msg.ID,
		ReceivedAt: msg.ReceivedDateTime.UTC(),
		Body:       body,
	}
}
