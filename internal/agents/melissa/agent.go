// agent.go handles declaring the Melissa agent struct
package melissa

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethanbaker/melissa/internal/recall"
	"github.com/ethanbaker/melissa/internal/search"
	"github.com/ethanbaker/melissa/internal/stores/books"
	"github.com/ethanbaker/melissa/pkg/agent"
	"github.com/ethanbaker/melissa/pkg/utils"
	"github.com/nlpodyssey/openai-agents-go/agents"
	"go.uber.org/zap"
)

const (
	// Name is the assistant's display name
	Name = "Melissa"

	// DefaultModel is used when MODEL is not configured
	DefaultModel = "gpt-4o-mini"

	// Farewell is spoken when the user ends the conversation
	Farewell = "Goodbye! Say 'Melissa' when you need me again."
)

const defaultInstructions = `You are {{name}}, a friendly personal voice assistant with AI-powered memory.

LANGUAGE: You ONLY speak English. Always respond in English.

MEMORY SYSTEM:
Your memory works AUTOMATICALLY in the background. You don't need to save things manually.
- When the user shares info like "my name is Greg", the system learns it automatically
- Just acknowledge naturally: "Nice to meet you, Greg!"
- Use show_what_i_know when the user asks "what do you know about me?"
- Use forget_everything when the user wants to reset memory

TOOLS:
- check_my_books / get_book_info - Check the user's reading list
- search_the_web - Search the internet for facts, news, weather
- show_what_i_know - Show all memories (when asked)
- forget_everything - Clear all memories (when asked)
- end_conversation - Use when the user says goodbye/bye/stop

PERSONALITY:
- Warm, friendly, conversational
- Keep responses brief (voice interaction)
- Reference things you remember naturally
- The user wakes you by saying "{{wake_word}}"

Memory context is injected automatically before each response.`

// ToolCall describes one finished tool execution
type ToolCall struct {
	Name      string
	Arguments string
	Result    string
	Err       error
	Duration  time.Duration
}

// Options holds the collaborators the agent's tools use
type Options struct {
	Books  *books.Catalog
	Search search.Provider
	Memory *recall.Service
	Logger *zap.Logger

	// OnTool is called after every tool execution
	OnTool func(ToolCall)
}

// Agent is the voice assistant: a single LLM agent with book, web search, memory
// and session tools
type Agent struct {
	agent      *agents.Agent
	config     *utils.Config
	basePrompt string

	books  *books.Catalog
	search search.Provider
	memory *recall.Service
	logger *zap.Logger
	onTool func(ToolCall)
	now    func() time.Time
}

// New creates the Melissa agent. SYSPROMPT_PATH overrides the built-in instructions.
func New(config *utils.Config, opts Options) (*Agent, error) {
	if opts.Books == nil {
		opts.Books = books.DefaultCatalog()
	}
	if opts.Search == nil {
		opts.Search = search.NewProviderFromConfig(config)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	prompt := defaultInstructions
	if path := config.Get("SYSPROMPT_PATH"); path != "" {
		var err error
		if prompt, err = utils.LoadPrompt(path); err != nil {
			return nil, fmt.Errorf("failed to load instructions: %w", err)
		}
	}

	a := &Agent{
		config: config,
		basePrompt: utils.ExpandPrompt(prompt, map[string]string{
			"name":      Name,
			"wake_word": config.GetWithDefault("WAKE_WORD", Name),
		}),
		books:  opts.Books,
		search: opts.Search,
		memory: opts.Memory,
		logger: opts.Logger.With(zap.String("component", "agent")),
		onTool: opts.OnTool,
		now:    time.Now,
	}

	a.agent = agents.New("melissa").
		WithModel(config.GetWithDefault("MODEL", DefaultModel)).
		WithInstructionsFunc(a.getPrompt)

	a.registerTools()

	return a, nil
}

// Agent returns the underlying openai-agents-go instance
func (a *Agent) Agent() *agents.Agent {
	return a.agent
}

// Name returns the assistant's display name
func (a *Agent) Name() string {
	return Name
}

// Config returns the agent configuration
func (a *Agent) Config() *utils.Config {
	return a.config
}

// getPrompt builds the instructions for the current turn, with the memories most
// relevant to the user's input appended
func (a *Agent) getPrompt(ctx context.Context, _ *agents.Agent) (string, error) {
	now := a.now()

	builder := agent.NewPromptBuilder(a.basePrompt)
	builder.AddFact("Books on record", strconv.Itoa(a.books.Len()))
	builder.AddFact("Web search", a.search.Name())
	builder.AddContext("Current time: " + now.Format("15:04 MST"))
	builder.AddContext("Today's date: " + now.Format("Monday, 2006-01-02"))

	if input := agent.InputFrom(ctx); input != "" {
		builder.AddBlock(a.memory.GetRelevantContext(ctx, input))
	}

	return builder.Build(), nil
}
