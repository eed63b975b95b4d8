// Package session persists conversations so the agent runner can replay history
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a session does not exist
var ErrNotFound = errors.New("session not found")

// Channels a session can originate from
const (
	ChannelVoice = "voice"
	ChannelAPI   = "api"
	ChannelCLI   = "cli"
)

// Session is a conversation with one user on one channel
type Session struct {
	ID           uuid.UUID      `json:"id" gorm:"type:char(36);primaryKey"`
	CreatedAt    time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"column:updated_at"`
	DeletedAt    gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"column:deleted_at;index"`
	LastActiveAt time.Time      `json:"last_active_at" gorm:"column:last_active_at;index"`

	UserID  string  `json:"user_id" gorm:"size:255;index"`
	Channel string  `json:"channel" gorm:"size:32"`
	Items   []*Item `json:"items,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// TableName sets the table name for GORM
func (Session) TableName() string {
	return "sessions"
}

// Store handles session persistence using GORM
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore creates a session store on an open connection and migrates its tables
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Session{}, &Item{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// CreateSession creates a new, empty session
func (s *Store) CreateSession(ctx context.Context, userID, channel string) (*Session, error) {
	now := s.now().UTC()
	sess := &Session{
		ID:           uuid.New(),
		UserID:       userID,
		Channel:      channel,
		LastActiveAt: now,
		Items:        []*Item{},
	}

	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// GetSession retrieves a session by id without its items
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	var sess Session
	if err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &sess, nil
}

// GetSessionWithItems retrieves a session by id with all its items in order
func (s *Store) GetSessionWithItems(ctx context.Context, id uuid.UUID) (*Session, error) {
	var sess Session
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&sess, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session with items: %w", err)
	}
	return &sess, nil
}

// ListSessions returns a user's sessions, most recently active first
func (s *Store) ListSessions(ctx context.Context, userID string) ([]*Session, error) {
	var sessions []*Session
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("last_active_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// CountItems returns the number of items stored for a session
func (s *Store) CountItems(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Item{}).Where("session_id = ?", id).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

// ItemsAfter returns the items of a session stored after the first skip items
func (s *Store) ItemsAfter(ctx context.Context, id uuid.UUID, skip int64) ([]*Item, error) {
	var items []*Item
	err := s.db.WithContext(ctx).Where("session_id = ?", id).Order("id ASC").Offset(int(skip)).Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	return items, nil
}

// DeleteSession deletes a session and its items
func (s *Store) DeleteSession(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&Item{}).Error; err != nil {
			return fmt.Errorf("failed to delete session items: %w", err)
		}

		result := tx.Where("id = ?", id).Delete(&Session{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete session: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// PurgeIdle deletes every session that has not been active since cutoff and returns
// how many were removed
func (s *Store) PurgeIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	var ids []uuid.UUID
	if err := s.db.WithContext(ctx).Model(&Session{}).Where("last_active_at < ?", cutoff.UTC()).Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to find idle sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id IN ?", ids).Delete(&Item{}).Error; err != nil {
			return fmt.Errorf("failed to delete idle session items: %w", err)
		}
		if err := tx.Where("id IN ?", ids).Delete(&Session{}).Error; err != nil {
			return fmt.Errorf("failed to delete idle sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// History returns the agent-facing view of a session
func (s *Store) History(id uuid.UUID) *History {
	return &History{id: id, store: s}
}

// touch records activity on a session. Caller may pass a transaction.
func (s *Store) touch(tx *gorm.DB, id uuid.UUID) error {
	return tx.Model(&Session{}).Where("id = ?", id).Update("last_active_at", s.now().UTC()).Error
}
