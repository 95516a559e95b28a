package model

import (
	"fmt"
	"strings"
)

// Provider identifies the mail platform a session belongs to.
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderMicrosoft Provider = "microsoft"
)

// ParseProvider converts a user-supplied provider name into a Provider.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderGoogle, ProviderMicrosoft:
		return p, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

// Session carries the OAuth credentials of a mailbox owner. Sessions are
// issued and refreshed elsewhere; this module only reads them.
type Session struct {
	Provider     Provider `json:"provider" db:"provider"`
	AccessToken  string   `json:"access_token" db:"access_token"`
	RefreshToken string   `json:"refresh_token" db:"refresh_token"`
	OwnerEmail   string   `json:"owner_email" db:"owner_email"`
}
