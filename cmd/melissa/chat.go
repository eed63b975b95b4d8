package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethanbaker/melissa/internal/recall"
	"github.com/ethanbaker/melissa/internal/stores/session"
	"github.com/ethanbaker/melissa/pkg/agent"
	"github.com/ethanbaker/melissa/pkg/sdk"
	"github.com/nlpodyssey/openai-agents-go/memory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const chatLearnTimeout = 30 * time.Second

var chatCmd = &cobra.Command{
	Use:     "chat",
	Short:   "Talk to the assistant by typing instead of speaking",
	GroupID: "assistant",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if chatRemote {
			responder, err := newRemoteResponder(ctx, newClient(), cfg.GetWithDefault("USER_ID", recall.DefaultUserID))
			if err != nil {
				return err
			}
			chat := &textChat{out: os.Stdout, responder: responder, logger: logger}
			return chat.run(ctx, os.Stdin)
		}

		c, err := newComponents(cfg, logger)
		if err != nil {
			return err
		}
		defer c.Close()

		sess, err := chatSession(ctx, c.sessions, cfg.GetWithDefault("USER_ID", recall.DefaultUserID), chatResume)
		if err != nil {
			return err
		}

		var learner learnFunc
		if c.memory.Available() {
			learner = c.memory.LearnFromConversation
		}

		chat := &textChat{
			out:       os.Stdout,
			responder: c.runner,
			history:   c.sessions.History(sess.ID),
			learn:     learner,
			logger:    logger,
		}
		return chat.run(ctx, os.Stdin)
	},
}

var (
	chatResume bool
	chatRemote bool
)

func init() {
	chatCmd.Flags().BoolVar(&chatResume, "resume", false, "continue the most recent chat session instead of starting a new one")
	chatCmd.Flags().BoolVar(&chatRemote, "remote", false, "chat with a running server through its API instead of in-process")
	chatCmd.Flags().StringVar(&serverURL, "server", "", "API base URL for --remote (defaults to API_URL or http://localhost:API_PORT)")
}

// remoteResponder sends every message to a session on a running server
type remoteResponder struct {
	client    *sdk.Client
	sessionID string
}

func newRemoteResponder(ctx context.Context, client *sdk.Client, userID string) (*remoteResponder, error) {
	sess, err := client.CreateSession(ctx, &sdk.CreateSessionRequest{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to create remote session: %w", err)
	}
	fmt.Printf("Remote session created: %s\n", sess.ID)
	return &remoteResponder{client: client, sessionID: sess.ID}, nil
}

// Respond ignores the local history; the server keeps its own
func (r *remoteResponder) Respond(ctx context.Context, _ memory.Session, input string) (string, error) {
	resp, err := r.client.SendMessage(ctx, r.sessionID, &sdk.PostMessageRequest{Content: input})
	if err != nil {
		return "", err
	}
	return resp.FinalOutput, nil
}

// chatSession returns the latest CLI session when resuming, or a new one
func chatSession(ctx context.Context, store *session.Store, userID string, resume bool) (*session.Session, error) {
	if resume {
		sessions, err := store.ListSessions(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, sess := range sessions {
			if sess.Channel == session.ChannelCLI {
				fmt.Printf("Resuming session: %s\n", sess.ID)
				return sess, nil
			}
		}
	}

	// Create a single session on startup for the entire conversation
	sess, err := store.CreateSession(ctx, userID, session.ChannelCLI)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	fmt.Printf("Session created: %s\n", sess.ID)
	return sess, nil
}

type learnFunc func(ctx context.Context, userMessage, assistantResponse string) string

// textChat is a conversation over stdin and stdout
type textChat struct {
	out       io.Writer
	responder agent.Responder
	history   memory.Session
	learn     learnFunc
	logger    *zap.Logger

	ended bool
}

var _ agent.Conversation = (*textChat)(nil)

// Say prints text immediately
func (t *textChat) Say(_ context.Context, text string) error {
	_, err := fmt.Fprintf(t.out, "Melissa: %s\n", text)
	return err
}

// End stops the loop after the current turn
func (t *textChat) End(_ context.Context) error {
	t.ended = true
	return nil
}

// run reads lines until EOF, "exit" or the assistant ends the conversation
func (t *textChat) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(t.out, "Melissa is listening. Type 'exit' to quit.")

	// Create scanner for reading user input
	scanner := bufio.NewScanner(in)

	for !t.ended {
		fmt.Fprint(t.out, "\n> ")

		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())

		if input == "exit" {
			break
		}

		if input == "" {
			continue
		}

		reply, err := t.responder.Respond(agent.WithConversation(ctx, t), t.history, input)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(t.out, "Error: %v\n", err)
			continue
		}

		if t.ended {
			break
		}
		fmt.Fprintf(t.out, "Melissa: %s\n", reply)

		if t.learn != nil {
			go t.learnFrom(ctx, input, reply)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}

	return nil
}

func (t *textChat) learnFrom(ctx context.Context, input, reply string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), chatLearnTimeout)
	defer cancel()

	if r := []rune(reply); len(r) > 500 {
		reply = string(r[:500])
	}
	result := t.learn(ctx, input, reply)
	t.logger.Debug("learned from chat", zap.String("result", result))
}
