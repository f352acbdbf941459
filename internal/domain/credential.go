package domain

import (
	"fmt"
	"time"
)

// Credential is a persisted OAuth credential for one platform account
// inside a workspace. Uniquely keyed by (workspace_id, platform,
// account_id). Only the refresh coordinator and the connect callback
// flow mutate it.
type Credential struct {
	ID           int64
	WorkspaceID  int64
	Platform     Platform
	AccountID    string
	AccountName  string
	PageID       string
	PageName     string
	AccessToken  string
	RefreshToken string
	// ExpiresAt nil means the expiry is unknown or the token does not expire.
	ExpiresAt   *time.Time
	IsConnected bool
	Scopes      []string
	// Version backs the best-effort optimistic write check in the store.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CredentialKey uniquely identifies a stored credential.
type CredentialKey struct {
	WorkspaceID int64
	Platform    Platform
	AccountID   string
}

func (k CredentialKey) String() string {
	return fmt.Sprintf("%d/%s/%s", k.WorkspaceID, k.Platform, k.AccountID)
}

// Key returns the credential's unique key tuple.
func (c Credential) Key() CredentialKey {
	return CredentialKey{WorkspaceID: c.WorkspaceID, Platform: c.Platform, AccountID: c.AccountID}
}

// FreshWithin reports whether the access token is still valid beyond the
// safety margin at the given instant. A nil expiry counts as fresh.
func (c Credential) FreshWithin(margin time.Duration, now time.Time) bool {
	if c.ExpiresAt == nil {
		return true
	}
	return c.ExpiresAt.After(now.Add(margin))
}

// Workspace is the tenancy unit owning platform credentials.
type Workspace struct {
	ID        int64
	Slug      string
	Name      string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuthorizeState captures the state/PKCE tuple persisted for the
// duration of one authorization round trip.
type AuthorizeState struct {
	State         string
	CodeVerifier  string
	CodeChallenge string
	Platform      Platform
	WorkspaceID   int64
	RedirectURI   string
	CreatedAt     time.Time
}
