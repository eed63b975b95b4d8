package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethanbaker/melissa/pkg/utils"
	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/memory"
)

// ErrEmptyInput is returned when there is nothing to send to the agent
var ErrEmptyInput = errors.New("input is empty")

// Assistant defines the interface for agents the voice session and API can drive
type Assistant interface {
	// Agent returns the underlying openai-agents-go instance
	Agent() *agents.Agent

	// Name returns the display name of the assistant
	Name() string

	// Config returns the configuration for this assistant
	Config() *utils.Config
}

// Responder produces a reply to one user input. History is read from and written to sess.
type Responder interface {
	Respond(ctx context.Context, sess memory.Session, input string) (string, error)
}

// Runner executes an Assistant with the openai-agents-go runner
type Runner struct {
	assistant Assistant
}

// NewRunner wraps an assistant so it can be used as a Responder
func NewRunner(assistant Assistant) *Runner {
	return &Runner{assistant: assistant}
}

// Respond runs the assistant on input and returns its final output as text
func (r *Runner) Respond(ctx context.Context, sess memory.Session, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyInput
	}

	runner := agents.Runner{
		Config: agents.RunConfig{
			Session: sess,
		},
	}

	resp, err := runner.Run(WithInput(ctx, input), r.assistant.Agent(), input)
	if err != nil {
		return "", fmt.Errorf("agent execution failed: %w", err)
	}

	return strings.TrimSpace(fmt.Sprint(resp.FinalOutput)), nil
}
