package gate

import (
	"github.com/ethanbaker/melissa/internal/wakeword"
	"github.com/ethanbaker/melissa/pkg/sdk"
	"github.com/gin-gonic/gin"
)

type controller struct {
	gate *wakeword.Gate
}

func (ctrl *controller) getStatus(c *gin.Context) {
	c.JSON(sdk.NewSuccessResponse("Gate status", ToSDKStatus(ctrl.gate.Status())).AsGinResponse())
}

func (ctrl *controller) activate(c *gin.Context) {
	ctrl.gate.Activate()
	c.JSON(sdk.NewSuccessResponse("Gate activated", ToSDKStatus(ctrl.gate.Status())).AsGinResponse())
}

func (ctrl *controller) deactivate(c *gin.Context) {
	ctrl.gate.Deactivate()
	c.JSON(sdk.NewSuccessResponse("Gate deactivated", ToSDKStatus(ctrl.gate.Status())).AsGinResponse())
}

// extend never reopens a closed gate; the response tells the caller which happened
func (ctrl *controller) extend(c *gin.Context) {
	ctrl.gate.Extend()

	status := ctrl.gate.Status()
	msg := "Gate extended"
	if !status.Active {
		msg = "Gate is not active"
	}
	c.JSON(sdk.NewSuccessResponse(msg, ToSDKStatus(status)).AsGinResponse())
}

// ToSDKStatus converts a gate snapshot to its API representation
func ToSDKStatus(s wakeword.GateStatus) sdk.GateStatus {
	out := sdk.GateStatus{
		Active:           s.Active,
		RemainingSeconds: s.Remaining().Seconds(),
		TimeoutSeconds:   s.Timeout.Seconds(),
	}
	if s.Active {
		until := s.ActiveUntil
		out.ActiveUntil = &until
	}
	return out
}
