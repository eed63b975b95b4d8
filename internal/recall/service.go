// Package recall is the assistant's long-term semantic memory: facts are extracted from
// conversations, embedded, deduplicated and searched to give the agent context about
// the user.
package recall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethanbaker/melissa/internal/stores/memory"
	"go.uber.org/zap"
)

const (
	// DefaultUserID is the single user the assistant serves
	DefaultUserID = "melissa_user"

	// DuplicateThreshold is the cosine similarity at which a new fact replaces an existing one
	DuplicateThreshold = 0.9

	// RelevanceThreshold is the score a memory must exceed to be injected as context
	RelevanceThreshold = 0.5

	// DefaultContextLimit is the number of memories considered per query
	DefaultContextLimit = 3

	unavailableMessage = "Memory system not available."
)

// ErrUnavailable is returned when the memory backend is not configured
var ErrUnavailable = errors.New("memory system not available")

// Message is one side of a conversation exchange
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Extractor turns a conversation into standalone facts about the user
type Extractor interface {
	Extract(ctx context.Context, messages []Message) ([]string, error)
}

// Embedder turns text into vectors, one per input in the same order
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Options configures a Service
type Options struct {
	UserID       string // defaults to DefaultUserID
	ContextLimit int    // defaults to DefaultContextLimit
	Logger       *zap.Logger
}

// Service answers memory questions for one user. A Service without a store, extractor
// or embedder (including a nil *Service) reports that memory is unavailable instead of
// failing.
type Service struct {
	store     *memory.Store
	extractor Extractor
	embedder  Embedder

	userID       string
	contextLimit int
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates a memory service
func NewService(store *memory.Store, extractor Extractor, embedder Embedder, opts Options) *Service {
	if opts.UserID == "" {
		opts.UserID = DefaultUserID
	}
	if opts.ContextLimit <= 0 {
		opts.ContextLimit = DefaultContextLimit
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Service{
		store:        store,
		extractor:    extractor,
		embedder:     embedder,
		userID:       opts.UserID,
		contextLimit: opts.ContextLimit,
		logger:       opts.Logger.With(zap.String("component", "recall")),
		now:          time.Now,
	}
}

// Available reports whether the memory backend is configured
func (s *Service) Available() bool {
	return s != nil && s.store != nil && s.extractor != nil && s.embedder != nil
}

// UserID returns the user whose memories this service manages
func (s *Service) UserID() string {
	return s.userID
}

// Memories returns every stored memory, oldest first
func (s *Service) Memories(ctx context.Context) ([]memory.Memory, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}
	return s.store.List(ctx, s.userID)
}

// Forget deletes every memory and returns how many were removed
func (s *Service) Forget(ctx context.Context) (int64, error) {
	if !s.Available() {
		return 0, ErrUnavailable
	}
	return s.store.DeleteAll(ctx, s.userID)
}

// GetAllMemories lists everything known about the user
func (s *Service) GetAllMemories(ctx context.Context) string {
	if !s.Available() {
		return unavailableMessage
	}

	memories, err := s.store.List(ctx, s.userID)
	if err != nil {
		s.logger.Error("failed to list memories", zap.Error(err))
		return fmt.Sprintf("Couldn't retrieve memories: %v", err)
	}

	lines := make([]string, 0, len(memories))
	for _, m := range memories {
		if m.Text != "" {
			lines = append(lines, "- "+m.Text)
		}
	}
	if len(lines) == 0 {
		return "I don't have any memories stored yet. Tell me things about yourself!"
	}

	return fmt.Sprintf("Everything I know about you (%d memories):\n%s", len(lines), strings.Join(lines, "\n"))
}

// DeleteAllMemories forgets everything about the user
func (s *Service) DeleteAllMemories(ctx context.Context) string {
	if !s.Available() {
		return unavailableMessage
	}

	n, err := s.store.DeleteAll(ctx, s.userID)
	if err != nil {
		s.logger.Error("failed to delete memories", zap.Error(err))
		return fmt.Sprintf("Couldn't delete memories: %v", err)
	}

	s.logger.Info("deleted all memories", zap.Int64("count", n))
	return "All memories have been deleted. Starting fresh!"
}

// AddConversation extracts facts from messages and stores them. A fact that is nearly
// identical to an existing memory updates that memory instead of adding a new one.
func (s *Service) AddConversation(ctx context.Context, messages []Message) string {
	if !s.Available() {
		return unavailableMessage
	}

	facts, err := s.learn(ctx, messages)
	if err != nil {
		s.logger.Error("failed to process conversation", zap.Error(err))
		return fmt.Sprintf("Couldn't process conversation: %v", err)
	}
	if len(facts) == 0 {
		return "Conversation processed."
	}

	s.logger.Info("learned from conversation", zap.Strings("facts", facts))
	return "Learned: " + strings.Join(facts, ", ")
}

// LearnFromConversation stores what can be learned from one user/assistant exchange
func (s *Service) LearnFromConversation(ctx context.Context, userMessage, assistantResponse string) string {
	return s.AddConversation(ctx, []Message{
		{Role: "user", Content: userMessage},
		{Role: "assistant", Content: assistantResponse},
	})
}

// GetRelevantContext returns the memories most related to query formatted for the
// agent's instructions, or "" when nothing relevant is known
func (s *Service) GetRelevantContext(ctx context.Context, query string) string {
	if !s.Available() || strings.TrimSpace(query) == "" {
		return ""
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) == 0 {
		s.logger.Error("failed to embed query", zap.Error(err))
		return ""
	}

	hits, err := s.store.Search(ctx, s.userID, vectors[0], s.contextLimit)
	if err != nil {
		s.logger.Error("failed to search memories", zap.Error(err))
		return ""
	}

	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Text != "" && h.Score > RelevanceThreshold {
			lines = append(lines, "- "+h.Text)
		}
	}
	if len(lines) == 0 {
		return ""
	}

	return "\n[RELEVANT MEMORIES ABOUT USER]\n" + strings.Join(lines, "\n") + "\n[END MEMORIES]\n"
}

// learn extracts, embeds and stores facts, returning the facts that were stored
func (s *Service) learn(ctx context.Context, messages []Message) ([]string, error) {
	facts, err := s.extractor.Extract(ctx, messages)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return nil, nil
	}

	vectors, err := s.embedder.Embed(ctx, facts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(facts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(facts), len(vectors))
	}

	metadata := memory.Metadata{
		"type":      "conversation",
		"timestamp": s.now().Format(time.RFC3339),
	}

	stored := make([]string, 0, len(facts))
	for i, fact := range facts {
		changed, err := s.upsert(ctx, fact, vectors[i], metadata)
		if err != nil {
			return stored, err
		}
		if changed {
			stored = append(stored, fact)
		}
	}
	return stored, nil
}

// upsert stores fact, updating a near-duplicate memory when one exists. It reports
// false when the exact fact is already known.
func (s *Service) upsert(ctx context.Context, fact string, vector []float32, metadata memory.Metadata) (bool, error) {
	existing, err := s.store.FindByHash(ctx, s.userID, memory.Hash(fact))
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	hits, err := s.store.Search(ctx, s.userID, vector, 1)
	if err != nil {
		return false, err
	}
	if len(hits) > 0 && hits[0].Score >= DuplicateThreshold {
		s.logger.Debug("updating similar memory",
			zap.String("id", hits[0].ID.String()),
			zap.String("old", hits[0].Text),
			zap.String("new", fact),
			zap.Float64("score", hits[0].Score),
		)
		return true, s.store.Update(ctx, hits[0].ID, fact, vector)
	}

	m := memory.NewMemory(s.userID, fact, vector)
	m.Metadata = metadata
	return true, s.store.Add(ctx, m)
}
