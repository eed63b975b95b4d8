package sdk

import (
	"encoding/json"
	"time"

	"github.com/ethanbaker/api/pkg/api_types"
)

// ApiResponse represents a standard API response structure
type ApiResponse[T any] struct {
	Status  api_types.StatusType `json:"status"`          // Status message
	Code    int                  `json:"code"`            // Status code
	Message string               `json:"message"`         // Human-readable message
	Data    T                    `json:"data,omitempty"`  // Optional data field for successful responses
	Error   any                  `json:"error,omitempty"` // Optional errors field for error responses
}

// AsGinResponse converts the ApiResponse to a format suitable for Gin framework
func (r ApiResponse[T]) AsGinResponse() (int, any) {
	return r.Code, r
}

// AsJSON converts the ApiResponse to a format suitable for JSON responses
func (r ApiResponse[T]) AsJSON() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func NewSuccessResponse[T any](message string, data T) ApiResponse[T] {
	return ApiResponse[T]{
		Status:  api_types.StatusSuccess,
		Code:    200,
		Message: message,
		Data:    data,
	}
}

// NewErrorResponse builds an error response. err may be an error, which is rendered
// as its message.
func NewErrorResponse(code int, message string, err any) ApiResponse[any] {
	if e, ok := err.(error); ok {
		err = e.Error()
	}
	return ApiResponse[any]{
		Status:  api_types.StatusError,
		Code:    code,
		Message: message,
		Error:   err,
	}
}

/** Gate */

// GateStatus is a snapshot of the wake word activation gate
type GateStatus struct {
	Active           bool       `json:"active"`
	ActiveUntil      *time.Time `json:"active_until,omitempty"`
	RemainingSeconds float64    `json:"remaining_seconds"`
	TimeoutSeconds   float64    `json:"timeout_seconds"`
}

/** Agent sessions */

// CreateSessionRequest represents the request body for creating a new session
type CreateSessionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// PostMessageRequest represents the request body for adding a message to a session
type PostMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// PostMessageResponse represents the response body after adding a message to a session
type PostMessageResponse struct {
	Items       []Item `json:"items"`
	FinalOutput string `json:"final_output"`
}

// Session represents a conversation session
type Session struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastActiveAt time.Time `json:"last_active_at"`

	UserID  string `json:"user_id"`
	Channel string `json:"channel"`
	Items   []Item `json:"items,omitempty"`
}

// Item represents a message or action within a session. Data holds the raw response
// item as stored by the agent runner.
type Item struct {
	ID        uint            `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
}

/** Memories */

// Memory is one fact the assistant has learned about the user
type Memory struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// MemoryList is the response for listing memories
type MemoryList struct {
	UserID   string   `json:"user_id"`
	Count    int      `json:"count"`
	Memories []Memory `json:"memories"`
}

// ForgetResponse reports how many memories were deleted
type ForgetResponse struct {
	Deleted int64 `json:"deleted"`
}
