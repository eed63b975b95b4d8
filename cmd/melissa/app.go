package main

import (
	"fmt"

	"github.com/ethanbaker/melissa/internal/agents/melissa"
	"github.com/ethanbaker/melissa/internal/metrics"
	"github.com/ethanbaker/melissa/internal/recall"
	"github.com/ethanbaker/melissa/internal/search"
	"github.com/ethanbaker/melissa/internal/stores"
	"github.com/ethanbaker/melissa/internal/stores/books"
	"github.com/ethanbaker/melissa/internal/stores/memory"
	"github.com/ethanbaker/melissa/internal/stores/session"
	"github.com/ethanbaker/melissa/internal/wakeword"
	"github.com/ethanbaker/melissa/pkg/agent"
	"github.com/ethanbaker/melissa/pkg/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// components are the pieces shared by listen, serve and chat
type components struct {
	cfg    *utils.Config
	logger *zap.Logger

	db       *gorm.DB
	sessions *session.Store
	janitor  *session.Janitor
	memory   *recall.Service
	openai   *openai.Client
	metrics  *metrics.Collector
	gate     *wakeword.Gate
	agent    *melissa.Agent
	runner   *agent.Runner
}

// newComponents opens the database and builds the agent and the gate
func newComponents(cfg *utils.Config, logger *zap.Logger) (*components, error) {
	if err := cfg.Require("OPENAI_API_KEY"); err != nil {
		return nil, err
	}

	c := &components{cfg: cfg, logger: logger}

	// Database
	db, err := stores.Open(stores.DBConfigFromConfig(cfg), logger)
	if err != nil {
		return nil, err
	}
	c.db = db

	if c.sessions, err = session.NewStore(db); err != nil {
		c.Close()
		return nil, err
	}

	c.janitor, err = session.NewJanitor(c.sessions, session.JanitorOptions{
		Schedule: cfg.Get("SESSION_JANITOR_SCHEDULE"),
		MaxIdle:  cfg.GetDurationWithDefault("SESSION_MAX_IDLE", 0),
		Logger:   logger,
	})
	if err != nil {
		c.Close()
		return nil, err
	}

	// OpenAI client for speech, fact extraction and embeddings
	openaiConfig := openai.DefaultConfig(cfg.Get("OPENAI_API_KEY"))
	if baseURL := cfg.Get("OPENAI_BASE_URL"); baseURL != "" {
		openaiConfig.BaseURL = baseURL
	}
	c.openai = openai.NewClientWithConfig(openaiConfig)

	// Long-term memory
	if cfg.GetBoolWithDefault("MEMORY_ENABLED", true) {
		memories, err := memory.NewStore(db)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.memory = recall.NewService(
			memories,
			recall.NewOpenAIExtractor(c.openai, cfg.GetWithDefault("MEMORY_EXTRACTION_MODEL", recall.ExtractionModel)),
			recall.NewOpenAIEmbedder(c.openai, cfg.GetWithDefault("MEMORY_EMBEDDING_MODEL", string(recall.EmbeddingModel))),
			recall.Options{
				UserID: cfg.GetWithDefault("USER_ID", recall.DefaultUserID),
				Logger: logger,
			},
		)
	} else {
		logger.Info("memory disabled")
	}

	c.metrics = metrics.NewCollector("melissa", logger)

	// Activation gate
	c.gate, err = wakeword.NewGate(
		cfg.GetDurationWithDefault("WAKE_WORD_TIMEOUT", wakeword.DefaultTimeout),
		wakeword.WithLogger(logger),
		wakeword.WithObserver(c.metrics.ObserveGate),
	)
	if err != nil {
		c.Close()
		return nil, err
	}

	// Agent
	catalog, err := books.LoadCatalogWithFallback(cfg.Get("BOOKS_PATH"))
	if err != nil {
		c.Close()
		return nil, err
	}

	c.agent, err = melissa.New(cfg, melissa.Options{
		Books:  catalog,
		Search: search.NewProviderFromConfig(cfg),
		Memory: c.memory,
		Logger: logger,
		OnTool: c.metrics.RecordTool,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	c.runner = agent.NewRunner(c.agent)

	return c, nil
}

// Close stops the janitor and closes the database
func (c *components) Close() error {
	if c.janitor != nil {
		c.janitor.Stop()
	}
	if c.db == nil {
		return nil
	}
	return stores.Close(c.db)
}
