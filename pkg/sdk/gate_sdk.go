package sdk

import (
	"context"
	"fmt"
	"net/http"
)

// Gate actions accepted by GateAction
const (
	GateActivate   = "activate"
	GateDeactivate = "deactivate"
	GateExtend     = "extend"
)

// GateStatus returns the current state of the activation gate
func (c *Client) GateStatus(ctx context.Context) (*GateStatus, error) {
	var out ApiResponse[GateStatus]
	if err := c.doJSON(ctx, http.MethodGet, "/api/gate", nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// GateAction activates, deactivates or extends the gate and returns its new state
func (c *Client) GateAction(ctx context.Context, action string) (*GateStatus, error) {
	switch action {
	case GateActivate, GateDeactivate, GateExtend:
	default:
		return nil, fmt.Errorf("unknown gate action %q", action)
	}

	var out ApiResponse[GateStatus]
	if err := c.doJSON(ctx, http.MethodPost, "/api/gate/"+action, nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}
