// Package service exposes the credential lifecycle operations consumed
// by the HTTP layer: connecting accounts, listing connections, and
// handing out tokens that are guaranteed valid at read time.
package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/social-connect/internal/domain"
	"github.com/smallbiznis/social-connect/internal/repository"
)

// TokenRefresher hands out credentials that are valid beyond the safety
// margin. The refresh coordinator is the production implementation.
type TokenRefresher interface {
	GetValidCredentials(ctx context.Context, workspaceID int64, p domain.Platform) (*domain.Credential, error)
}

// Connection is the secret-free projection of a stored credential
// returned to API consumers.
type Connection struct {
	Platform    domain.Platform `json:"platform"`
	AccountID   string          `json:"account_id"`
	AccountName string          `json:"account_name,omitempty"`
	PageID      string          `json:"page_id,omitempty"`
	PageName    string          `json:"page_name,omitempty"`
	IsConnected bool            `json:"is_connected"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	Scopes      []string        `json:"scopes,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CredentialService is the facade in front of the store and the refresh
// coordinator. Callers never read tokens from the store directly.
type CredentialService struct {
	refresher TokenRefresher
	store     repository.CredentialStore
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewCredentialService wires dependencies.
func NewCredentialService(refresher TokenRefresher, store repository.CredentialStore, logger *zap.Logger) *CredentialService {
	if logger == nil {
		logger = zap.L()
	}
	return &CredentialService{
		refresher: refresher,
		store:     store,
		logger:    logger,
		tracer:    otel.Tracer("github.com/smallbiznis/social-connect/internal/service"),
	}
}

// GetValidCredentials validates the request inputs and delegates to the
// coordinator. The returned credential always carries a usable access
// token; a stale one has been refreshed before returning.
func (s *CredentialService) GetValidCredentials(ctx context.Context, workspaceID int64, platformRaw string) (*domain.Credential, error) {
	ctx, span := s.tracer.Start(ctx, "CredentialService.GetValidCredentials")
	defer span.End()

	if workspaceID <= 0 {
		return nil, domain.NewRefreshError(domain.KindInvalidInput, "", "workspace id is required")
	}
	p, err := domain.ParsePlatform(platformRaw)
	if err != nil {
		return nil, domain.WrapRefreshError(domain.KindInvalidInput, "", "unsupported platform", err)
	}

	cred, err := s.refresher.GetValidCredentials(ctx, workspaceID, p)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return cred, nil
}

// ListConnections returns the workspace's connections without secrets.
func (s *CredentialService) ListConnections(ctx context.Context, workspaceID int64) ([]Connection, error) {
	ctx, span := s.tracer.Start(ctx, "CredentialService.ListConnections")
	defer span.End()

	if workspaceID <= 0 {
		return nil, domain.NewRefreshError(domain.KindInvalidInput, "", "workspace id is required")
	}
	creds, err := s.store.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		span.RecordError(err)
		return nil, domain.WrapRefreshError(domain.KindTransient, "", "list connections", err)
	}

	connections := make([]Connection, 0, len(creds))
	for _, cred := range creds {
		connections = append(connections, Connection{
			Platform:    cred.Platform,
			AccountID:   cred.AccountID,
			AccountName: cred.AccountName,
			PageID:      cred.PageID,
			PageName:    cred.PageName,
			IsConnected: cred.IsConnected,
			ExpiresAt:   cred.ExpiresAt,
			Scopes:      cred.Scopes,
			UpdatedAt:   cred.UpdatedAt,
		})
	}
	return connections, nil
}

// Disconnect removes the stored credential for the platform. Removal is
// idempotent; disconnecting an absent platform is not an error.
func (s *CredentialService) Disconnect(ctx context.Context, workspaceID int64, platformRaw string) error {
	ctx, span := s.tracer.Start(ctx, "CredentialService.Disconnect")
	defer span.End()

	if workspaceID <= 0 {
		return domain.NewRefreshError(domain.KindInvalidInput, "", "workspace id is required")
	}
	p, err := domain.ParsePlatform(platformRaw)
	if err != nil {
		return domain.WrapRefreshError(domain.KindInvalidInput, "", "unsupported platform", err)
	}

	if err := s.store.Delete(ctx, workspaceID, p); err != nil {
		span.RecordError(err)
		return domain.WrapRefreshError(domain.KindTransient, p, "delete credential", err)
	}
	s.logger.Info("platform disconnected",
		zap.Int64("workspace_id", workspaceID),
		zap.String("platform", string(p)),
	)
	return nil
}
