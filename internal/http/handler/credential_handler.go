// Package handler exposes the credential lifecycle over HTTP.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/social-connect/internal/domain"
	"github.com/smallbiznis/social-connect/internal/http/middleware"
	"github.com/smallbiznis/social-connect/internal/service"
)

// CredentialHandler orchestrates the connect and token endpoints.
type CredentialHandler struct {
	Credentials *service.CredentialService
	Connect     *service.ConnectService
}

// NewCredentialHandler creates the handler set.
func NewCredentialHandler(credentials *service.CredentialService, connect *service.ConnectService) *CredentialHandler {
	return &CredentialHandler{Credentials: credentials, Connect: connect}
}

// tokenResponse is the caller-facing credential projection. The refresh
// token never leaves the service.
type tokenResponse struct {
	Platform    domain.Platform `json:"platform"`
	AccountID   string          `json:"account_id"`
	AccountName string          `json:"account_name,omitempty"`
	AccessToken string          `json:"access_token"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	Scopes      []string        `json:"scopes,omitempty"`
}

// GetToken returns a valid access token for the platform, refreshing it
// first when stale.
func (h *CredentialHandler) GetToken(c *gin.Context) {
	wsCtx, ok := middleware.GetWorkspaceContext(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_workspace", "error_description": "Workspace not resolved."})
		return
	}

	cred, err := h.Credentials.GetValidCredentials(c.Request.Context(), wsCtx.Workspace.ID, c.Param("platform"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{
		Platform:    cred.Platform,
		AccountID:   cred.AccountID,
		AccountName: cred.AccountName,
		AccessToken: cred.AccessToken,
		ExpiresAt:   cred.ExpiresAt,
		Scopes:      cred.Scopes,
	})
}

// ListConnections returns the workspace's connections without secrets.
func (h *CredentialHandler) ListConnections(c *gin.Context) {
	wsCtx, ok := middleware.GetWorkspaceContext(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_workspace", "error_description": "Workspace not resolved."})
		return
	}

	connections, err := h.Credentials.ListConnections(c.Request.Context(), wsCtx.Workspace.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": connections})
}

// Disconnect removes the stored credential for the platform.
func (h *CredentialHandler) Disconnect(c *gin.Context) {
	wsCtx, ok := middleware.GetWorkspaceContext(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_workspace", "error_description": "Workspace not resolved."})
		return
	}

	if err := h.Credentials.Disconnect(c.Request.Context(), wsCtx.Workspace.ID, c.Param("platform")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ConnectStart builds the platform authorize URL and returns it with the
// issued state.
func (h *CredentialHandler) ConnectStart(c *gin.Context) {
	wsCtx, ok := middleware.GetWorkspaceContext(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_workspace", "error_description": "Workspace not resolved."})
		return
	}

	redirectURI := strings.TrimSpace(c.Query("redirect_uri"))
	var scopes []string
	if raw := strings.TrimSpace(c.Query("scopes")); raw != "" {
		scopes = strings.Split(raw, ",")
	}

	start, err := h.Connect.StartAuthorization(c.Request.Context(), wsCtx.Workspace.ID, c.Param("platform"), redirectURI, scopes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, start)
}

// ConnectCallback consumes the authorization callback and persists the
// resulting credential.
func (h *CredentialHandler) ConnectCallback(c *gin.Context) {
	wsCtx, ok := middleware.GetWorkspaceContext(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_workspace", "error_description": "Workspace not resolved."})
		return
	}

	if remoteErr := strings.TrimSpace(c.Query("error")); remoteErr != "" {
		zap.L().Warn("authorization denied at platform",
			zap.Int64("workspace_id", wsCtx.Workspace.ID),
			zap.String("error", remoteErr),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": remoteErr, "error_description": c.Query("error_description")})
		return
	}

	cred, err := h.Connect.HandleCallback(c.Request.Context(), service.CallbackInput{
		WorkspaceID:  wsCtx.Workspace.ID,
		Platform:     c.Param("platform"),
		State:        c.Query("state"),
		Code:         c.Query("code"),
		CodeVerifier: c.Query("code_verifier"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"platform":     cred.Platform,
		"account_id":   cred.AccountID,
		"account_name": cred.AccountName,
		"is_connected": cred.IsConnected,
	})
}

// writeError maps the failure taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var rerr *domain.RefreshError
	if !errors.As(err, &rerr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch rerr.Kind {
	case domain.KindInvalidInput, domain.KindPkceMismatch, domain.KindMalformed:
		status = http.StatusBadRequest
	case domain.KindNotConnected, domain.KindExpiredRefreshToken, domain.KindRevokedByUser:
		status = http.StatusUnauthorized
	case domain.KindRateLimited:
		status = http.StatusTooManyRequests
		if rerr.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(rerr.RetryAfter.Seconds())))
		}
	case domain.KindTransient, domain.KindUnavailable:
		status = http.StatusServiceUnavailable
	}

	body := gin.H{"error": string(rerr.Kind), "error_description": rerr.Message}
	if rerr.Platform != "" {
		body["platform"] = string(rerr.Platform)
	}
	c.JSON(status, body)
}
