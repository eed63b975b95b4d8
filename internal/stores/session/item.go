package session

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nlpodyssey/openai-agents-go/memory"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/responses"
	"github.com/openai/openai-go/v2/shared/constant"
)

// ResponseItemData stores an agent response item as JSON
type ResponseItemData struct {
	*memory.TResponseInputItem
}

// Value implements the driver.Valuer interface for database storage
func (r ResponseItemData) Value() (driver.Value, error) {
	if r.TResponseInputItem == nil {
		return nil, nil
	}
	data, err := json.Marshal(r.TResponseInputItem)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the sql.Scanner interface for database retrieval
func (r *ResponseItemData) Scan(value any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		r.TResponseInputItem = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ResponseItemData", value)
	}

	item := &memory.TResponseInputItem{}
	if err := json.Unmarshal(data, item); err != nil {
		return fmt.Errorf("failed to unmarshal ResponseItemData: %w", err)
	}

	// Assistant output messages decode as input messages with empty content; recover
	// them as output messages so the text survives the round trip
	if msg := item.OfMessage; !param.IsOmitted(msg) {
		if msg.Content.OfInputItemContentList == nil && msg.Content.OfString == (param.Opt[string]{}) {
			var outMsg responses.ResponseOutputMessageParam
			if err := json.Unmarshal(data, &outMsg); err == nil && len(outMsg.Content) > 0 &&
				!param.IsOmitted(outMsg.Content[0].OfOutputText) && outMsg.Content[0].OfOutputText.Text != "" {
				item = &memory.TResponseInputItem{OfOutputMessage: &outMsg}
			}
		}
	}

	r.TResponseInputItem = item
	return nil
}

// Item is one entry of a conversation: a message, a tool call or a tool result
type Item struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`

	SessionID    uuid.UUID        `json:"session_id" gorm:"type:char(36);not null;index"`
	ResponseItem ResponseItemData `json:"data" gorm:"column:data;type:text;not null"`
}

// TableName sets the table name for GORM
func (Item) TableName() string {
	return "session_items"
}

// NewItem creates a new item
func NewItem(sessionID uuid.UUID, responseItem *memory.TResponseInputItem) *Item {
	return &Item{
		SessionID:    sessionID,
		ResponseItem: ResponseItemData{TResponseInputItem: responseItem},
	}
}

// Type returns the response item type, e.g. "message" or "function_call"
func (i *Item) Type() string {
	if i.ResponseItem.TResponseInputItem == nil {
		return ""
	}
	if t := i.ResponseItem.GetType(); t != nil {
		return *t
	}
	return ""
}

// isToolOutput reports whether the item answers a tool call
func isToolOutput(item memory.TResponseInputItem) bool {
	t := item.GetType()
	if t == nil {
		return false
	}

	switch *t {
	case string(constant.ValueOf[constant.FunctionCallOutput]()),
		string(constant.ValueOf[constant.ComputerCallOutput]()),
		string(constant.ValueOf[constant.LocalShellCallOutput]()),
		string(constant.ValueOf[constant.CustomToolCallOutput]()):
		return true
	default:
		return false
	}
}

// toolCallID returns the call id of a tool call item
func toolCallID(item memory.TResponseInputItem) (string, bool) {
	t := item.GetType()
	if t == nil {
		return "", false
	}

	switch *t {
	case string(constant.ValueOf[constant.FunctionCall]()):
		return item.OfFunctionCall.CallID, true
	case string(constant.ValueOf[constant.LocalShellCall]()):
		return item.OfLocalShellCall.CallID, true
	case string(constant.ValueOf[constant.CustomToolCall]()):
		return item.OfCustomToolCall.CallID, true
	default:
		return "", false
	}
}

// toolOutputID returns the call id a tool output item answers
func toolOutputID(item memory.TResponseInputItem) (string, bool) {
	t := item.GetType()
	if t == nil {
		return "", false
	}

	switch *t {
	case string(constant.ValueOf[constant.FunctionCallOutput]()):
		return item.OfFunctionCallOutput.CallID, true
	case string(constant.ValueOf[constant.ComputerCallOutput]()):
		return item.OfComputerCallOutput.CallID, true
	case string(constant.ValueOf[constant.LocalShellCallOutput]()):
		return item.OfLocalShellCallOutput.ID, true
	case string(constant.ValueOf[constant.CustomToolCallOutput]()):
		return item.OfCustomToolCallOutput.CallID, true
	default:
		return "", false
	}
}

// pairToolOutputs reorders items so every tool call is directly followed by its output
func pairToolOutputs(items []memory.TResponseInputItem) {
	for i := 1; i < len(items); i++ {
		callID, isCall := toolCallID(items[i-1])
		if !isCall {
			continue
		}
		if outID, isOut := toolOutputID(items[i]); isOut && outID == callID {
			continue
		}

		for j := i + 1; j < len(items); j++ {
			if outID, isOut := toolOutputID(items[j]); isOut && outID == callID {
				items[i], items[j] = items[j], items[i]
				break
			}
		}
	}
}
