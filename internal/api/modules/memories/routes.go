package memories

import (
	"github.com/ethanbaker/melissa/internal/recall"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the memory inspection routes behind auth
func RegisterRoutes(g *gin.RouterGroup, svc *recall.Service, auth gin.HandlerFunc) {
	ctrl := &controller{memory: svc}

	group := g.Group("/memories")
	group.Handlers = append(group.Handlers, auth)

	group.GET("", ctrl.list)      // Everything known about the user
	group.DELETE("", ctrl.forget) // Forget everything
}
