package sdk

import (
	"context"
	"net/http"
)

// ListMemories returns everything the assistant has learned about the user
func (c *Client) ListMemories(ctx context.Context) (*MemoryList, error) {
	var out ApiResponse[MemoryList]
	if err := c.doJSON(ctx, http.MethodGet, "/api/memories", nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// ForgetMemories deletes every stored memory
func (c *Client) ForgetMemories(ctx context.Context) (int64, error) {
	var out ApiResponse[ForgetResponse]
	if err := c.doJSON(ctx, http.MethodDelete, "/api/memories", nil, &out); err != nil {
		return 0, err
	}
	return out.Data.Deleted, nil
}
