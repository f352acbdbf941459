package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/social-connect/internal/workspace"
)

const workspaceContextKey = "workspaceContext"

// Workspace resolves the X-Workspace-ID header and attaches the
// workspace context to gin.
func Workspace(resolver *workspace.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := strings.TrimSpace(c.Request.Header.Get("X-Workspace-ID"))
		if ref == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_workspace",
				"error_description": "X-Workspace-ID header is required.",
			})
			return
		}

		wsCtx, err := resolver.Resolve(c.Request.Context(), ref)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error":             "invalid_workspace",
				"error_description": "Unknown workspace.",
			})
			return
		}
		c.Set(workspaceContextKey, wsCtx)
		c.Next()
	}
}

// GetWorkspaceContext extracts the workspace context from gin.
func GetWorkspaceContext(c *gin.Context) (*workspace.Context, bool) {
	value, ok := c.Get(workspaceContextKey)
	if !ok {
		return nil, false
	}
	wsCtx, ok := value.(*workspace.Context)
	return wsCtx, ok
}
