package session

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/nlpodyssey/openai-agents-go/memory"
	"gorm.io/gorm"
)

// History implements memory.Session on top of the store so the agent runner can load
// and append conversation items
type History struct {
	id    uuid.UUID
	store *Store
}

var _ memory.Session = (*History)(nil)

// SessionID returns the session ID as a string
func (h *History) SessionID(ctx context.Context) string {
	return h.id.String()
}

// ID returns the session ID
func (h *History) ID() uuid.UUID {
	return h.id
}

// GetItems retrieves the conversation history for this session as response input items
// limit is the maximum number of items to retrieve. If <= 0, retrieves all items.
// When specified, returns the latest N items in chronological order.
func (h *History) GetItems(ctx context.Context, limit int) ([]memory.TResponseInputItem, error) {
	query := h.store.db.WithContext(ctx).Where("session_id = ?", h.id).Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var items []Item
	if err := query.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve items: %w", err)
	}
	slices.Reverse(items)

	responseItems := make([]memory.TResponseInputItem, 0, len(items))
	for _, item := range items {
		if item.ResponseItem.TResponseInputItem != nil {
			responseItems = append(responseItems, *item.ResponseItem.TResponseInputItem)
		}
	}

	// A window cut between a call and its output would leave an orphaned output that
	// the API rejects
	for len(responseItems) > 0 && isToolOutput(responseItems[0]) {
		responseItems = responseItems[1:]
	}

	return responseItems, nil
}

// AddItems appends new items to the conversation history
func (h *History) AddItems(ctx context.Context, responseItems []memory.TResponseInputItem) error {
	if len(responseItems) == 0 {
		return nil
	}

	ordered := slices.Clone(responseItems)
	pairToolOutputs(ordered)

	// Items are saved one-by-one so their ids keep the conversation order
	return h.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range ordered {
			if err := tx.Create(NewItem(h.id, &ordered[i])).Error; err != nil {
				return fmt.Errorf("failed to save item: %w", err)
			}
		}
		return h.store.touch(tx, h.id)
	})
}

// PopItem removes and returns the most recent item from the session.
// It returns nil if the session is empty.
func (h *History) PopItem(ctx context.Context) (*memory.TResponseInputItem, error) {
	var item Item

	err := h.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", h.id).Order("id DESC").First(&item).Error; err != nil {
			return err
		}
		return tx.Delete(&item).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop item: %w", err)
	}

	return item.ResponseItem.TResponseInputItem, nil
}

// ClearSession clears all items for this session
func (h *History) ClearSession(ctx context.Context) error {
	if err := h.store.db.WithContext(ctx).Where("session_id = ?", h.id).Delete(&Item{}).Error; err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
