package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a memory does not exist
var ErrNotFound = errors.New("memory not found")

// Store persists memories and answers similarity queries over them
type Store struct {
	db *gorm.DB
}

// NewStore creates a memory store on an open connection and migrates its table
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Memory{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Add inserts a new memory
func (s *Store) Add(ctx context.Context, m *Memory) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Hash == "" {
		m.Hash = Hash(m.Text)
	}

	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create memory: %w", err)
	}
	return nil
}

// Update replaces the text and embedding of an existing memory
func (s *Store) Update(ctx context.Context, id uuid.UUID, text string, vector []float32) error {
	result := s.db.WithContext(ctx).Model(&Memory{}).Where("id = ?", id).Updates(map[string]any{
		"text":   text,
		"hash":   Hash(text),
		"vector": Vector(vector),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update memory: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get retrieves a memory by id
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Memory, error) {
	var m Memory
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return &m, nil
}

// FindByHash returns the user's memory with the given text hash, or nil
func (s *Store) FindByHash(ctx context.Context, userID, hash string) (*Memory, error) {
	var m Memory
	err := s.db.WithContext(ctx).Where("user_id = ? AND hash = ?", userID, hash).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find memory: %w", err)
	}
	return &m, nil
}

// List returns all memories of a user, oldest first
func (s *Store) List(ctx context.Context, userID string) ([]Memory, error) {
	var memories []Memory
	result := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Order("id ASC").Find(&memories)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list memories: %w", result.Error)
	}
	return memories, nil
}

// Count returns the number of memories of a user
func (s *Store) Count(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Memory{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return count, nil
}

// Search ranks the user's memories by cosine similarity to query and returns at most
// limit hits, best first
func (s *Store) Search(ctx context.Context, userID string, query []float32, limit int) ([]ScoredMemory, error) {
	memories, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	hits := make([]ScoredMemory, 0, len(memories))
	for _, m := range memories {
		if len(m.Vector) == 0 {
			continue
		}
		hits = append(hits, ScoredMemory{Memory: m, Score: CosineSimilarity(query, m.Vector)})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Delete removes one memory
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Memory{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete memory: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll removes every memory of a user and returns how many were removed
func (s *Store) DeleteAll(ctx context.Context, userID string) (int64, error) {
	result := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&Memory{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete memories: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when the
// vectors differ in length or either is zero
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
