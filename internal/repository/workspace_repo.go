package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/social-connect/internal/domain"
)

var _ WorkspaceStore = (*PostgresWorkspaceRepo)(nil)

// PostgresWorkspaceRepo implements WorkspaceStore on pgx.
type PostgresWorkspaceRepo struct {
	db *pgxpool.Pool
}

func NewPostgresWorkspaceRepo(pool *pgxpool.Pool) *PostgresWorkspaceRepo {
	return &PostgresWorkspaceRepo{db: pool}
}

const workspaceColumns = `id, slug, name, status, created_at, updated_at`

func (r *PostgresWorkspaceRepo) GetWorkspace(ctx context.Context, workspaceID int64) (domain.Workspace, error) {
	const query = `SELECT ` + workspaceColumns + ` FROM workspaces WHERE id = $1`
	return r.scanWorkspace(r.db.QueryRow(ctx, query, workspaceID))
}

func (r *PostgresWorkspaceRepo) GetWorkspaceBySlug(ctx context.Context, slug string) (domain.Workspace, error) {
	const query = `SELECT ` + workspaceColumns + ` FROM workspaces WHERE slug = $1`
	return r.scanWorkspace(r.db.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(slug))))
}

const insertWorkspaceSQL = `INSERT INTO workspaces (id, slug, name, status)
VALUES ($1, $2, $3, $4)
ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
RETURNING ` + workspaceColumns

func (r *PostgresWorkspaceRepo) CreateWorkspace(ctx context.Context, ws domain.Workspace) (domain.Workspace, error) {
	row := r.db.QueryRow(ctx, insertWorkspaceSQL, ws.ID, ws.Slug, ws.Name, ws.Status)
	created, err := r.scanWorkspace(row)
	if err != nil {
		return domain.Workspace{}, fmt.Errorf("create workspace: %w", err)
	}
	return created, nil
}

func (r *PostgresWorkspaceRepo) scanWorkspace(row pgx.Row) (domain.Workspace, error) {
	var ws domain.Workspace
	if err := row.Scan(&ws.ID, &ws.Slug, &ws.Name, &ws.Status, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Workspace{}, domain.ErrWorkspaceNotFound
		}
		return domain.Workspace{}, fmt.Errorf("get workspace: %w", err)
	}
	return ws, nil
}
