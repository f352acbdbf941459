package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/social-connect/internal/domain"
)

var _ CredentialStore = (*PostgresCredentialRepo)(nil)

// PostgresCredentialRepo implements CredentialStore on pgx.
type PostgresCredentialRepo struct {
	db *pgxpool.Pool
}

func NewPostgresCredentialRepo(pool *pgxpool.Pool) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: pool}
}

const credentialColumns = `id, workspace_id, platform, account_id, account_name, page_id, page_name,
access_token, refresh_token, expires_at, is_connected, scopes, version, created_at, updated_at`

const loadCredentialSQL = `SELECT ` + credentialColumns + `
FROM platform_credentials
WHERE workspace_id = $1 AND platform = $2
ORDER BY updated_at DESC
LIMIT 1`

func (r *PostgresCredentialRepo) Load(ctx context.Context, workspaceID int64, platform domain.Platform) (*domain.Credential, error) {
	row := r.db.QueryRow(ctx, loadCredentialSQL, workspaceID, string(platform))
	cred, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return cred, nil
}

const listCredentialsSQL = `SELECT ` + credentialColumns + `
FROM platform_credentials
WHERE workspace_id = $1
ORDER BY platform, account_id`

func (r *PostgresCredentialRepo) ListByWorkspace(ctx context.Context, workspaceID int64) ([]domain.Credential, error) {
	rows, err := r.db.Query(ctx, listCredentialsSQL, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []domain.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return creds, nil
}

const saveCredentialSQL = `INSERT INTO platform_credentials
(id, workspace_id, platform, account_id, account_name, page_id, page_name,
 access_token, refresh_token, expires_at, is_connected, scopes, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13 + 1)
ON CONFLICT (workspace_id, platform, account_id) DO UPDATE SET
	account_name  = EXCLUDED.account_name,
	page_id       = EXCLUDED.page_id,
	page_name     = EXCLUDED.page_name,
	access_token  = EXCLUDED.access_token,
	refresh_token = EXCLUDED.refresh_token,
	expires_at    = EXCLUDED.expires_at,
	is_connected  = EXCLUDED.is_connected,
	scopes        = EXCLUDED.scopes,
	version       = platform_credentials.version + 1,
	updated_at    = now()
WHERE platform_credentials.version = $13
RETURNING version, updated_at`

// Save upserts the credential. The write only lands when the row still
// carries the version the caller read; otherwise ErrVersionConflict is
// returned and the caller must reload.
func (r *PostgresCredentialRepo) Save(ctx context.Context, cred *domain.Credential) error {
	row := r.db.QueryRow(ctx, saveCredentialSQL,
		cred.ID,
		cred.WorkspaceID,
		string(cred.Platform),
		cred.AccountID,
		cred.AccountName,
		cred.PageID,
		cred.PageName,
		cred.AccessToken,
		nullableText(cred.RefreshToken),
		cred.ExpiresAt,
		cred.IsConnected,
		cred.Scopes,
		cred.Version,
	)
	if err := row.Scan(&cred.Version, &cred.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("save credential %s: %w", cred.Key(), domain.ErrVersionConflict)
		}
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

const markDisconnectedSQL = `UPDATE platform_credentials
SET is_connected = false, version = version + 1, updated_at = now()
WHERE workspace_id = $1 AND platform = $2`

func (r *PostgresCredentialRepo) MarkDisconnected(ctx context.Context, workspaceID int64, platform domain.Platform) error {
	if _, err := r.db.Exec(ctx, markDisconnectedSQL, workspaceID, string(platform)); err != nil {
		return fmt.Errorf("mark disconnected: %w", err)
	}
	return nil
}

const deleteCredentialSQL = `DELETE FROM platform_credentials
WHERE workspace_id = $1 AND platform = $2`

func (r *PostgresCredentialRepo) Delete(ctx context.Context, workspaceID int64, platform domain.Platform) error {
	if _, err := r.db.Exec(ctx, deleteCredentialSQL, workspaceID, string(platform)); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*domain.Credential, error) {
	var (
		cred         domain.Credential
		platform     string
		refreshToken *string
		expiresAt    *time.Time
	)
	if err := row.Scan(
		&cred.ID,
		&cred.WorkspaceID,
		&platform,
		&cred.AccountID,
		&cred.AccountName,
		&cred.PageID,
		&cred.PageName,
		&cred.AccessToken,
		&refreshToken,
		&expiresAt,
		&cred.IsConnected,
		&cred.Scopes,
		&cred.Version,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	); err != nil {
		return nil, err
	}
	cred.Platform = domain.Platform(platform)
	if refreshToken != nil {
		cred.RefreshToken = *refreshToken
	}
	cred.ExpiresAt = expiresAt
	return &cred, nil
}

func nullableText(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
