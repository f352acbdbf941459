package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/smallbiznis/social-connect/internal/config"
	"github.com/smallbiznis/social-connect/internal/http/handler"
	"github.com/smallbiznis/social-connect/internal/http/middleware"
	"github.com/smallbiznis/social-connect/internal/workspace"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, credentials *handler.CredentialHandler, health *handler.HealthHandler, resolver *workspace.Resolver, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", health.Healthz)

	api := r.Group("/", middleware.Workspace(resolver))
	{
		connect := api.Group("/connect")
		{
			connect.GET("/:platform/start", credentials.ConnectStart)
			connect.GET("/:platform/callback", credentials.ConnectCallback)
		}

		connections := api.Group("/connections")
		{
			connections.GET("", credentials.ListConnections)
			connections.DELETE("/:platform", credentials.Disconnect)
		}

		tokens := api.Group("/tokens")
		{
			tokens.GET("/get/:platform", credentials.GetToken)
		}
	}

	return r
}
