package agent

import "context"

// Conversation is the channel a conversation is happening on. Tools use it to speak
// out of band and to hang up.
type Conversation interface {
	// Say delivers text to the user immediately
	Say(ctx context.Context, text string) error

	// End finishes the conversation once the current turn completes
	End(ctx context.Context) error
}

type conversationKey struct{}

// WithConversation attaches a conversation to the context passed to the runner
func WithConversation(ctx context.Context, c Conversation) context.Context {
	return context.WithValue(ctx, conversationKey{}, c)
}

// ConversationFrom returns the conversation attached to ctx, if any
func ConversationFrom(ctx context.Context) (Conversation, bool) {
	c, ok := ctx.Value(conversationKey{}).(Conversation)
	return c, ok && c != nil
}

type inputKey struct{}

// WithInput records the user input of the current turn so instructions can be built
// around it
func WithInput(ctx context.Context, input string) context.Context {
	return context.WithValue(ctx, inputKey{}, input)
}

// InputFrom returns the user input of the current turn, or ""
func InputFrom(ctx context.Context) string {
	input, _ := ctx.Value(inputKey{}).(string)
	return input
}
