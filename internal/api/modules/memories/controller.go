package memories

import (
	"errors"
	"net/http"

	"github.com/ethanbaker/melissa/internal/recall"
	"github.com/ethanbaker/melissa/pkg/sdk"
	"github.com/gin-gonic/gin"
)

type controller struct {
	memory *recall.Service
}

func (ctrl *controller) list(c *gin.Context) {
	memories, err := ctrl.memory.Memories(c.Request.Context())
	if err != nil {
		c.JSON(errorResponse("Failed to list memories", err).AsGinResponse())
		return
	}

	resp := sdk.MemoryList{
		UserID:   ctrl.memory.UserID(),
		Count:    len(memories),
		Memories: make([]sdk.Memory, 0, len(memories)),
	}
	for _, m := range memories {
		resp.Memories = append(resp.Memories, sdk.Memory{
			ID:        m.ID.String(),
			Text:      m.Text,
			Metadata:  m.Metadata,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		})
	}

	c.JSON(sdk.NewSuccessResponse("Memories retrieved successfully", resp).AsGinResponse())
}

func (ctrl *controller) forget(c *gin.Context) {
	deleted, err := ctrl.memory.Forget(c.Request.Context())
	if err != nil {
		c.JSON(errorResponse("Failed to delete memories", err).AsGinResponse())
		return
	}

	c.JSON(sdk.NewSuccessResponse("All memories have been deleted", sdk.ForgetResponse{Deleted: deleted}).AsGinResponse())
}

func errorResponse(msg string, err error) sdk.ApiResponse[any] {
	if errors.Is(err, recall.ErrUnavailable) {
		return sdk.NewErrorResponse(http.StatusServiceUnavailable, "Memory system not available", err)
	}
	return sdk.NewErrorResponse(http.StatusInternalServerError, msg, err)
}
