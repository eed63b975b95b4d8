package gate

import (
	"github.com/ethanbaker/melissa/internal/wakeword"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the gate control routes behind auth
func RegisterRoutes(g *gin.RouterGroup, gate *wakeword.Gate, auth gin.HandlerFunc) {
	ctrl := &controller{gate: gate}

	group := g.Group("/gate")
	group.Handlers = append(group.Handlers, auth)

	group.GET("", ctrl.getStatus)              // Current gate state
	group.POST("/activate", ctrl.activate)     // Open the listening window
	group.POST("/deactivate", ctrl.deactivate) // Close the listening window
	group.POST("/extend", ctrl.extend)         // Push the deadline out if open
}
