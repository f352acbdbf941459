// Package bootstrap seeds baseline rows for dev and e2e environments.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/social-connect/internal/config"
	"github.com/smallbiznis/social-connect/internal/domain"
	"github.com/smallbiznis/social-connect/internal/repository"
)

// EnsureWorkspace creates the default workspace if missing.
func EnsureWorkspace(lc fx.Lifecycle, cfg config.Config, workspaces repository.WorkspaceStore, node *snowflake.Node, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureWorkspace(ctx, cfg, workspaces, node, logger)
		},
	})
}

func ensureWorkspace(ctx context.Context, cfg config.Config, workspaces repository.WorkspaceStore, node *snowflake.Node, logger *zap.Logger) error {
	slug := strings.ToLower(strings.TrimSpace(cfg.DefaultWorkspaceSlug))
	if slug == "" {
		return fmt.Errorf("workspace bootstrap missing DEFAULT_WORKSPACE_SLUG")
	}

	if existing, err := workspaces.GetWorkspaceBySlug(ctx, slug); err == nil {
		if logger != nil {
			logger.Debug("bootstrap workspace present",
				zap.Int64("workspace_id", existing.ID),
				zap.String("slug", existing.Slug),
			)
		}
		return nil
	} else if !errors.Is(err, domain.ErrWorkspaceNotFound) {
		return fmt.Errorf("bootstrap workspace lookup: %w", err)
	}

	created, err := workspaces.CreateWorkspace(ctx, domain.Workspace{
		ID:     node.Generate().Int64(),
		Slug:   slug,
		Name:   cfg.DefaultWorkspaceName,
		Status: "ACTIVE",
	})
	if err != nil {
		return fmt.Errorf("bootstrap create workspace: %w", err)
	}

	if logger != nil {
		logger.Info("bootstrap workspace created",
			zap.Int64("workspace_id", created.ID),
			zap.String("slug", created.Slug),
		)
	}
	return nil
}
