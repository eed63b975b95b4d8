package agent

import (
	"github.com/gin-gonic/gin"
)

// Register routes for the agent module
func RegisterRoutes(g *gin.RouterGroup, deps Deps, auth gin.HandlerFunc) {
	ctrl := newController(deps)

	// Create base group for agent routes
	group := g.Group("/agent")
	group.Handlers = append(group.Handlers, auth)

	// Session management routes
	group.POST("/sessions", ctrl.createSession)             // Create a new session
	group.GET("/sessions/:uuid", ctrl.getSession)           // Get an existing session by UUID
	group.POST("/sessions/:uuid/message", ctrl.postMessage) // Add a message to an existing session
	group.DELETE("/sessions/:uuid", ctrl.deleteSession)     // Delete an existing session
}
