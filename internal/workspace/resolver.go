// Package workspace resolves the tenancy context for a request.
package workspace

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/smallbiznis/social-connect/internal/domain"
	"github.com/smallbiznis/social-connect/internal/repository"
)

// Context stores the resolved workspace used throughout the request lifecycle.
type Context struct {
	Workspace domain.Workspace
}

// Resolver loads workspace metadata from the store.
type Resolver struct {
	store repository.WorkspaceStore
}

// NewResolver creates a workspace resolver.
func NewResolver(store repository.WorkspaceStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve accepts either a numeric workspace ID or a slug, as carried in
// the X-Workspace-ID header.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*Context, error) {
	cleaned := strings.ToLower(strings.TrimSpace(ref))
	if cleaned == "" {
		zap.L().Warn("workspace resolver received empty reference")
		return nil, fmt.Errorf("resolve workspace: empty reference")
	}

	var (
		ws  domain.Workspace
		err error
	)
	if id, convErr := strconv.ParseInt(cleaned, 10, 64); convErr == nil && id > 0 {
		ws, err = r.store.GetWorkspace(ctx, id)
	} else {
		ws, err = r.store.GetWorkspaceBySlug(ctx, cleaned)
	}
	if err != nil {
		zap.L().Error("failed to resolve workspace", zap.String("ref", cleaned), zap.Error(err))
		return nil, fmt.Errorf("resolve workspace %q: %w", cleaned, err)
	}

	zap.L().Debug("workspace resolved", zap.Int64("workspace_id", ws.ID), zap.String("slug", ws.Slug))
	return &Context{Workspace: ws}, nil
}
