package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/social-connect/internal/domain"
)

// CredentialStore is the pure data-access boundary for persisted
// platform credentials. Retry and staleness policy live in the refresh
// coordinator, never here.
type CredentialStore interface {
	// Load returns the most recently updated credential for the
	// workspace/platform pair, or nil when none is on record.
	Load(ctx context.Context, workspaceID int64, platform domain.Platform) (*domain.Credential, error)
	ListByWorkspace(ctx context.Context, workspaceID int64) ([]domain.Credential, error)
	// Save upserts the credential row. The write is guarded by the
	// credential's Version; a lost race returns ErrVersionConflict.
	Save(ctx context.Context, cred *domain.Credential) error
	MarkDisconnected(ctx context.Context, workspaceID int64, platform domain.Platform) error
	Delete(ctx context.Context, workspaceID int64, platform domain.Platform) error
}

// AuthorizeStateStore persists short-lived authorization state/PKCE
// tuples with a bounded TTL so abandoned flows cannot accumulate.
type AuthorizeStateStore interface {
	SaveState(ctx context.Context, key string, data domain.AuthorizeState, ttl time.Duration) error
	GetState(ctx context.Context, key string) (*domain.AuthorizeState, error)
	DeleteState(ctx context.Context, key string) error
}

// WorkspaceStore exposes workspace lookups for tenancy resolution.
type WorkspaceStore interface {
	GetWorkspace(ctx context.Context, workspaceID int64) (domain.Workspace, error)
	GetWorkspaceBySlug(ctx context.Context, slug string) (domain.Workspace, error)
	CreateWorkspace(ctx context.Context, ws domain.Workspace) (domain.Workspace, error)
}
