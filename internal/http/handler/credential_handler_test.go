package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/social-connect/internal/domain"
	"github.com/smallbiznis/social-connect/internal/http/middleware"
	"github.com/smallbiznis/social-connect/internal/service"
	"github.com/smallbiznis/social-connect/internal/workspace"
)

func TestGetTokenStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rateLimited := domain.NewRefreshError(domain.KindRateLimited, domain.PlatformTwitter, "rate limited upstream")
	rateLimited.RetryAfter = 30 * time.Second

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		wantRetry  string
	}{
		{"not connected", domain.NewRefreshError(domain.KindNotConnected, domain.PlatformTwitter, "no credential"), http.StatusUnauthorized, "not_connected", ""},
		{"expired refresh token", domain.NewRefreshError(domain.KindExpiredRefreshToken, domain.PlatformTwitter, "grant expired"), http.StatusUnauthorized, "expired_refresh_token", ""},
		{"revoked by user", domain.NewRefreshError(domain.KindRevokedByUser, domain.PlatformTwitter, "access revoked"), http.StatusUnauthorized, "revoked_by_user", ""},
		{"rate limited", rateLimited, http.StatusTooManyRequests, "rate_limited", "30"},
		{"transient", domain.NewRefreshError(domain.KindTransient, domain.PlatformTwitter, "endpoint flapping"), http.StatusServiceUnavailable, "transient", ""},
		{"unavailable", domain.NewRefreshError(domain.KindUnavailable, domain.PlatformTwitter, "retries exhausted"), http.StatusServiceUnavailable, "unavailable", ""},
		{"pkce mismatch", domain.NewRefreshError(domain.KindPkceMismatch, domain.PlatformTwitter, "verifier mismatch"), http.StatusBadRequest, "pkce_mismatch", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(t, tc.err, nil)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/tokens/get/twitter", nil)
			req.Header.Set("X-Workspace-ID", "42")
			router.ServeHTTP(rec, req)

			require.Equal(t, tc.wantStatus, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.wantError, body["error"])
			if tc.wantRetry != "" {
				require.Equal(t, tc.wantRetry, rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestGetTokenSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	expires := time.Now().Add(time.Hour)
	router := newTestRouter(t, nil, &domain.Credential{
		WorkspaceID: 42, Platform: domain.PlatformTwitter, AccountID: "acct",
		AccountName: "Acme", AccessToken: "valid-token", RefreshToken: "never-shown",
		ExpiresAt: &expires, IsConnected: true,
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tokens/get/twitter", nil)
	req.Header.Set("X-Workspace-ID", "42")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "valid-token", body["access_token"])
	require.Equal(t, "acct", body["account_id"])
	// The refresh token never leaves the service.
	require.NotContains(t, body, "refresh_token")
}

func TestGetTokenUnsupportedPlatform(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := newTestRouter(t, nil, &domain.Credential{AccessToken: "x"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tokens/get/myspace", nil)
	req.Header.Set("X-Workspace-ID", "42")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "invalid_input", body["error"])
}

func TestGetTokenWorkspaceHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := newTestRouter(t, nil, &domain.Credential{AccessToken: "x"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tokens/get/twitter", nil)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/tokens/get/twitter", nil)
	req.Header.Set("X-Workspace-ID", "ghost")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// ---- Test harness ----

type stubRefresher struct {
	cred *domain.Credential
	err  error
}

func (s stubRefresher) GetValidCredentials(_ context.Context, workspaceID int64, p domain.Platform) (*domain.Credential, error) {
	if s.err != nil {
		return nil, s.err
	}
	cred := *s.cred
	cred.WorkspaceID = workspaceID
	cred.Platform = p
	return &cred, nil
}

type stubWorkspaceStore struct{}

func (stubWorkspaceStore) GetWorkspace(_ context.Context, id int64) (domain.Workspace, error) {
	if id == 42 {
		return domain.Workspace{ID: 42, Slug: "acme", Status: "ACTIVE"}, nil
	}
	return domain.Workspace{}, domain.ErrWorkspaceNotFound
}

func (stubWorkspaceStore) GetWorkspaceBySlug(_ context.Context, slug string) (domain.Workspace, error) {
	if slug == "acme" {
		return domain.Workspace{ID: 42, Slug: "acme", Status: "ACTIVE"}, nil
	}
	return domain.Workspace{}, domain.ErrWorkspaceNotFound
}

func (stubWorkspaceStore) CreateWorkspace(_ context.Context, ws domain.Workspace) (domain.Workspace, error) {
	return ws, nil
}

func newTestRouter(t *testing.T, refreshErr error, cred *domain.Credential) *gin.Engine {
	t.Helper()
	credentials := service.NewCredentialService(stubRefresher{cred: cred, err: refreshErr}, nil, zap.NewNop())
	h := NewCredentialHandler(credentials, nil)
	resolver := workspace.NewResolver(stubWorkspaceStore{})

	router := gin.New()
	router.GET("/tokens/get/:platform", middleware.Workspace(resolver), h.GetToken)
	return router
}
