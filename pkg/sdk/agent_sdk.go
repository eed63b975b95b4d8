package sdk

import (
	"context"
	"fmt"
	"net/http"
)

// Create a new session
func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) (*Session, error) {
	path := "/api/agent/sessions"

	var out ApiResponse[Session]
	if err := c.doJSON(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}

	if out.Data.ID == "" {
		return nil, fmt.Errorf("no id returned")
	}

	return &out.Data, nil
}

// Get a session by UUID
func (c *Client) GetSession(ctx context.Context, uuid string) (*Session, error) {
	path := fmt.Sprintf("/api/agent/sessions/%s", uuid)

	var out ApiResponse[Session]
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	if err := checkStatus(&out, "get session"); err != nil {
		return nil, err
	}

	return &out.Data, nil
}

// Send a message to a session provided by UUID
func (c *Client) SendMessage(ctx context.Context, uuid string, msg *PostMessageRequest) (*PostMessageResponse, error) {
	path := fmt.Sprintf("/api/agent/sessions/%s/message", uuid)

	var out ApiResponse[PostMessageResponse]
	if err := c.doJSON(ctx, http.MethodPost, path, msg, &out); err != nil {
		return nil, err
	}

	return &out.Data, nil
}

// Delete an existing session by UUID
func (c *Client) DeleteSession(ctx context.Context, uuid string) error {
	path := fmt.Sprintf("/api/agent/sessions/%s", uuid)

	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}
