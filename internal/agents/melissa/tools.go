// tools.go handles registering tools for the Melissa agent
package melissa

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethanbaker/melissa/internal/search"
	"github.com/ethanbaker/melissa/pkg/agent"
	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/openai/openai-go/v2/packages/param"
	"go.uber.org/zap"
)

const resultPreviewLength = 200

type toolHandler func(ctx context.Context, arguments string) (string, error)

// noParams is the schema of a tool without arguments
func noParams() map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           map[string]any{},
		"additionalProperties": false,
		"required":             []string{},
	}
}

// registerTools registers the assistant's tools
func (a *Agent) registerTools() {
	checkBooksTool := agents.FunctionTool{
		Name:             "check_my_books",
		Description:      "Check and list all books that the user has read",
		ParamsJSONSchema: noParams(),
		StrictJSONSchema: param.NewOpt(true),
		OnInvokeTool:     a.invoke("check_my_books", a.handleCheckBooks),
		IsEnabled:        agents.FunctionToolEnabled(),
	}

	bookInfoTool := agents.FunctionTool{
		Name:        "get_book_info",
		Description: "Get detailed information about a specific book",
		ParamsJSONSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"book_name": map[string]any{
					"type":        "string",
					"description": "The name or ID of the book to get details for",
				},
			},
			"additionalProperties": false,
			"required":             []string{"book_name"},
		},
		StrictJSONSchema: param.NewOpt(true),
		OnInvokeTool:     a.invoke("get_book_info", a.handleBookInfo),
		IsEnabled:        agents.FunctionToolEnabled(),
	}

	webSearchTool := agents.FunctionTool{
		Name: "search_the_web",
		Description: "Search the internet for any information you don't know. Always use this for current " +
			"events, news, weather, sports scores, stock prices, facts you're unsure about and " +
			"'what is', 'who is', 'when did' or 'how to' questions",
		ParamsJSONSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query - be specific and include relevant keywords",
				},
			},
			"additionalProperties": false,
			"required":             []string{"query"},
		},
		StrictJSONSchema: param.NewOpt(true),
		OnInvokeTool:     a.invoke("search_the_web", a.handleWebSearch),
		IsEnabled:        agents.FunctionToolEnabled(),
	}

	showMemoriesTool := agents.FunctionTool{
		Name:             "show_what_i_know",
		Description:      "Show all memories stored about the user. Use when the user asks \"what do you know about me?\" or \"what do you remember?\"",
		ParamsJSONSchema: noParams(),
		StrictJSONSchema: param.NewOpt(true),
		OnInvokeTool:     a.invoke("show_what_i_know", a.handleShowMemories),
		IsEnabled:        agents.FunctionToolEnabled(),
	}

	forgetTool := agents.FunctionTool{
		Name:             "forget_everything",
		Description:      "Delete all memories and start fresh. Use only when the user explicitly asks to forget everything or reset memory",
		ParamsJSONSchema: noParams(),
		StrictJSONSchema: param.NewOpt(true),
		OnInvokeTool:     a.invoke("forget_everything", a.handleForget),
		IsEnabled:        agents.FunctionToolEnabled(),
	}

	endTool := agents.FunctionTool{
		Name:             "end_conversation",
		Description:      "End the conversation session. Use when the user says goodbye, bye, stop or asks to end the conversation",
		ParamsJSONSchema: noParams(),
		StrictJSONSchema: param.NewOpt(true),
		OnInvokeTool:     a.invoke("end_conversation", a.handleEndConversation),
		IsEnabled:        agents.FunctionToolEnabled(),
	}

	a.agent.Tools = []agents.Tool{
		checkBooksTool,
		bookInfoTool,
		webSearchTool,
		showMemoriesTool,
		forgetTool,
		endTool,
	}
}

// invoke wraps a handler with logging and the tool hook. Handler errors become a
// sentence the assistant can say.
func (a *Agent) invoke(name string, handler toolHandler) func(context.Context, string) (any, error) {
	return func(ctx context.Context, arguments string) (any, error) {
		start := time.Now()
		result, err := handler(ctx, arguments)
		elapsed := time.Since(start)

		if err != nil {
			a.logger.Error("tool failed",
				zap.String("tool", name),
				zap.String("arguments", arguments),
				zap.Error(err),
			)
			result = fmt.Sprintf("Sorry, that didn't work: %v", err)
		} else {
			a.logger.Info("tool executed",
				zap.String("tool", name),
				zap.String("arguments", arguments),
				zap.String("result", preview(result, resultPreviewLength)),
				zap.Duration("duration", elapsed),
			)
		}

		if a.onTool != nil {
			a.onTool(ToolCall{
				Name:      name,
				Arguments: arguments,
				Result:    result,
				Err:       err,
				Duration:  elapsed,
			})
		}

		return result, nil
	}
}

func (a *Agent) handleCheckBooks(_ context.Context, _ string) (string, error) {
	return a.books.Summary(), nil
}

func (a *Agent) handleBookInfo(_ context.Context, arguments string) (string, error) {
	var params struct {
		BookName string `json:"book_name"`
	}
	if err := json.Unmarshal([]byte(arguments), &params); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(params.BookName) == "" {
		return "", fmt.Errorf("book_name parameter is required")
	}

	return a.books.Details(params.BookName), nil
}

func (a *Agent) handleWebSearch(ctx context.Context, arguments string) (string, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(arguments), &params); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(params.Query) == "" {
		return "", fmt.Errorf("query parameter is required")
	}

	a.logger.Info("web search requested", zap.String("query", params.Query), zap.String("provider", a.search.Name()))
	return search.Run(ctx, a.search, params.Query, search.DefaultMaxResults), nil
}

func (a *Agent) handleShowMemories(ctx context.Context, _ string) (string, error) {
	return a.memory.GetAllMemories(ctx), nil
}

func (a *Agent) handleForget(ctx context.Context, _ string) (string, error) {
	return a.memory.DeleteAllMemories(ctx), nil
}

// handleEndConversation says goodbye and hangs up when a conversation is attached to
// ctx; otherwise the farewell is returned for the model to relay
func (a *Agent) handleEndConversation(ctx context.Context, _ string) (string, error) {
	a.logger.Info("user requested to end conversation")

	conv, ok := agent.ConversationFrom(ctx)
	if !ok {
		return Farewell, nil
	}

	if err := conv.Say(ctx, Farewell); err != nil {
		return "", fmt.Errorf("failed to say goodbye: %w", err)
	}
	if err := conv.End(ctx); err != nil {
		return "", fmt.Errorf("failed to end conversation: %w", err)
	}
	return "Conversation ended", nil
}

// preview cuts s to n runes for logging
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
