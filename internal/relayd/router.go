package relayd

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/relaymesh/relay/internal/relayd/handler/middleware"
	v1 "github.com/relaymesh/relay/internal/relayd/handler/v1"
	"github.com/relaymesh/relay/internal/relayd/service/agents"
)

// routerDeps holds the dependencies needed for route registration.
type routerDeps struct {
	agentsModule *agents.Module
	authConfig   *middleware.AuthConfig
}

func initRouter(g *gin.Engine, deps *routerDeps) {
	installMiddleware(g, deps)
	installController(g, deps)
}

func installMiddleware(g *gin.Engine, deps *routerDeps) {
	g.Use(gin.Recovery())
	g.Use(middleware.CORS())

	if deps.authConfig != nil {
		g.Use(middleware.BearerAuth(deps.authConfig))
	}
}

func installController(g *gin.Engine, deps *routerDeps) {
	taskHandler := v1.NewTaskHandler(deps.agentsModule.Adapter)
	agentHandler := v1.NewAgentHandler(deps.agentsModule.Registry, deps.agentsModule.Runners)
	sessionHandler := v1.NewSessionHandler(deps.agentsModule.Adapter, deps.agentsModule.Coordinator)

	g.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// --- /v1 route group ---
	apiV1 := g.Group("/v1")
	{
		// Task execution (sync JSON, streaming SSE, live SSE).
		apiV1.POST("/tasks", taskHandler.Execute)
		apiV1.POST("/tasks/:id/approvals", taskHandler.Approve)
		apiV1.POST("/tasks/:id/messages", taskHandler.Message)
		apiV1.POST("/tasks/:id/cancel", taskHandler.Cancel)
		apiV1.GET("/tasks/:id/interactions", taskHandler.ListInteractions)

		// Pool introspection.
		apiV1.GET("/agents", agentHandler.List)
		apiV1.GET("/runners", agentHandler.ListRunners)

		// Chat session management.
		apiV1.GET("/sessions/:id", sessionHandler.Get)
		apiV1.DELETE("/sessions/:id", sessionHandler.Delete)
		apiV1.POST("/sessions/:id/recover", sessionHandler.Recover)
	}
}
