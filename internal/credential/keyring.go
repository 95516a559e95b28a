package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"

	"github.com/nhle/formpoll/internal/model"
	"github.com/nhle/formpoll/internal/store"
)

const serviceName = "formpoll"

// Open returns a configured keyring instance. dir is used by the file
// backend when no system keychain is available.
func Open(dir string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt("formpoll-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// SessionStore keeps mailbox sessions in a keyring, one item per owner.
type SessionStore struct {
	ring keyring.Keyring
}

var _ store.SessionStore = (*SessionStore)(nil)

// NewSessionStore wraps ring.
func NewSessionStore(ring keyring.Keyring) *SessionStore {
	return &SessionStore{ring: ring}
}

func sessionKey(email string) string {
	return "session:" + strings.ToLower(strings.TrimSpace(email))
}

// GetSession retrieves the session owned by email.
func (s *SessionStore) GetSession(_ context.Context, email string) (*model.Session, error) {
	item, err := s.ring.Get(sessionKey(email))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, fmt.Errorf("getting session %s: %w", email, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", email, err)
	}

	var sess model.Session
	if err := json.Unmarshal(item.Data, &sess); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", email, err)
	}
	return &sess, nil
}

// UpsertSession stores sess under its owner's address, replacing any
// previous value.
func (s *SessionStore) UpsertSession(_ context.Context, sess model.Session) error {
	if sess.OwnerEmail == "" {
		return errors.New("upserting session: owner email is required")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", sess.OwnerEmail, err)
	}

	err = s.ring.Set(keyring.Item{
		Key:         sessionKey(sess.OwnerEmail),
		Data:        data,
		Label:       "formpoll session " + sess.OwnerEmail,
		Description: string(sess.Provider) + " mailbox session",
	})
	if err != nil {
		return fmt.Errorf("setting session %s: %w", sess.OwnerEmail, err)
	}
	return nil
}

// DeleteSession removes the session owned by email.
func (s *SessionStore) DeleteSession(_ context.Context, email string) error {
	err := s.ring.Remove(sessionKey(email))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting session %s: %w", email, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", email, err)
	}
	return nil
}
