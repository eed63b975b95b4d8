package agent

import (
	"context"
	"testing"

	"github.com/ethanbaker/melissa/pkg/utils"
	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAssistant implements Assistant for testing
type mockAssistant struct {
	name   string
	config *utils.Config
}

func (m *mockAssistant) Agent() *agents.Agent  { return agents.New(m.name) }
func (m *mockAssistant) Name() string          { return m.name }
func (m *mockAssistant) Config() *utils.Config { return m.config }

// recordingConversation implements Conversation for testing
type recordingConversation struct {
	said  []string
	ended bool
}

func (r *recordingConversation) Say(ctx context.Context, text string) error {
	r.said = append(r.said, text)
	return nil
}

func (r *recordingConversation) End(ctx context.Context) error {
	r.ended = true
	return nil
}

func TestAssistant_Interface(t *testing.T) {
	var a Assistant = &mockAssistant{name: "Melissa", config: utils.NewConfig(map[string]string{"key": "value"})}

	assert.Equal(t, "Melissa", a.Name())
	assert.Equal(t, "value", a.Config().Get("key"))
	require.NotNil(t, a.Agent())
	assert.Equal(t, "Melissa", a.Agent().Name)
}

func TestRunner_RejectsEmptyInput(t *testing.T) {
	runner := NewRunner(&mockAssistant{name: "Melissa", config: utils.NewConfig(nil)})

	tests := []string{"", "   ", "\n\t"}
	for _, input := range tests {
		_, err := runner.Respond(context.Background(), nil, input)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
}

func TestConversationContext(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, ok := ConversationFrom(context.Background())
		assert.False(t, ok)
	})

	t.Run("attached", func(t *testing.T) {
		conv := &recordingConversation{}
		ctx := WithConversation(context.Background(), conv)

		got, ok := ConversationFrom(ctx)
		require.True(t, ok)

		require.NoError(t, got.Say(ctx, "Goodbye!"))
		require.NoError(t, got.End(ctx))
		assert.Equal(t, []string{"Goodbye!"}, conv.said)
		assert.True(t, conv.ended)
	})

	t.Run("nil conversation", func(t *testing.T) {
		ctx := WithConversation(context.Background(), nil)
		_, ok := ConversationFrom(ctx)
		assert.False(t, ok)
	})
}

func TestInputContext(t *testing.T) {
	assert.Empty(t, InputFrom(context.Background()))

	ctx := WithInput(context.Background(), "what books have I read?")
	assert.Equal(t, "what books have I read?", InputFrom(ctx))
}
