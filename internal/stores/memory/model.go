package memory

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Vector is an embedding stored as a JSON array
type Vector []float32

// Value implements the driver.Valuer interface for database storage
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal([]float32(v))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the sql.Scanner interface for database retrieval
func (v *Vector) Scan(value any) error {
	data, err := scanBytes(value)
	if err != nil || data == nil {
		*v = nil
		return err
	}
	return json.Unmarshal(data, (*[]float32)(v))
}

// Metadata holds free-form labels attached to a memory
type Metadata map[string]string

// Value implements the driver.Valuer interface for database storage
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the sql.Scanner interface for database retrieval
func (m *Metadata) Scan(value any) error {
	data, err := scanBytes(value)
	if err != nil || data == nil {
		*m = nil
		return err
	}
	return json.Unmarshal(data, (*map[string]string)(m))
}

func scanBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("cannot scan %T into memory column", value)
	}
}

// Memory is one fact learned about a user
type Memory struct {
	ID        uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`

	UserID   string   `json:"user_id" gorm:"size:255;not null;index"`
	Text     string   `json:"text" gorm:"type:text;not null"`
	Hash     string   `json:"hash" gorm:"size:64;index"`
	Vector   Vector   `json:"-" gorm:"type:text"`
	Metadata Metadata `json:"metadata,omitempty" gorm:"type:text"`
}

// TableName sets the table name for GORM
func (Memory) TableName() string {
	return "memories"
}

// NewMemory creates a memory with a fresh id and its content hash
func NewMemory(userID, text string, vector []float32) *Memory {
	return &Memory{
		ID:     uuid.New(),
		UserID: userID,
		Text:   text,
		Hash:   Hash(text),
		Vector: vector,
	}
}

// ScoredMemory is a search hit
type ScoredMemory struct {
	Memory
	Score float64 `json:"score"`
}

// Hash returns the hex sha256 of the normalized text, used to spot exact repeats
func Hash(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
