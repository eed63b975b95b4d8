package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethanbaker/melissa/internal/stores/session"
	assistant "github.com/ethanbaker/melissa/pkg/agent"
	"github.com/ethanbaker/melissa/pkg/sdk"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultLearnTimeout = 30 * time.Second
	learnTextLimit      = 500
)

// Learner stores what can be learned from an exchange
type Learner interface {
	LearnFromConversation(ctx context.Context, userMessage, assistantResponse string) string
}

// Deps are the collaborators of the agent module. Learner is optional.
type Deps struct {
	Sessions     *session.Store
	Responder    assistant.Responder
	Learner      Learner
	LearnTimeout time.Duration
	Logger       *zap.Logger
}

type controller struct {
	Deps
}

func newController(deps Deps) *controller {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.LearnTimeout <= 0 {
		deps.LearnTimeout = defaultLearnTimeout
	}
	deps.Logger = deps.Logger.With(zap.String("component", "api-agent"))
	return &controller{Deps: deps}
}

// createSession handles POST requests to create a new session
func (ctrl *controller) createSession(c *gin.Context) {
	// Parse request body
	var req sdk.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Could not parse request body", err).AsGinResponse())
		return
	}

	sess, err := ctrl.Sessions.CreateSession(c.Request.Context(), req.UserID, session.ChannelAPI)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to create session", err).AsGinResponse())
		return
	}

	c.JSON(sdk.NewSuccessResponse("Session created successfully", toSDKSession(sess)).AsGinResponse())
}

// getSession handles GET requests to retrieve an existing session by UUID
func (ctrl *controller) getSession(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	sess, err := ctrl.Sessions.GetSessionWithItems(c.Request.Context(), id)
	if err != nil {
		c.JSON(lookupError(err).AsGinResponse())
		return
	}

	c.JSON(sdk.NewSuccessResponse("Session retrieved successfully", toSDKSession(sess)).AsGinResponse())
}

// postMessage handles POST requests to add a message to an existing session
func (ctrl *controller) postMessage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	// Parse request body
	var req sdk.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Could not parse request body", err).AsGinResponse())
		return
	}

	ctx := c.Request.Context()
	if _, err := ctrl.Sessions.GetSession(ctx, id); err != nil {
		c.JSON(lookupError(err).AsGinResponse())
		return
	}

	// Record current item count
	count, err := ctrl.Sessions.CountItems(ctx, id)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to get item count", err).AsGinResponse())
		return
	}

	reply, err := ctrl.Responder.Respond(ctx, ctrl.Sessions.History(id), req.Content)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, assistant.ErrEmptyInput) {
			status = http.StatusBadRequest
		}
		c.JSON(sdk.NewErrorResponse(status, "Failed to add message", err).AsGinResponse())
		return
	}

	// Items written by the runner are read back so the caller sees tool calls too
	items, err := ctrl.Sessions.ItemsAfter(ctx, id, count)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to get added items", err).AsGinResponse())
		return
	}
	if len(items) == 0 {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Agent returned no response", nil).AsGinResponse())
		return
	}

	ctrl.learn(ctx, req.Content, reply)

	resp := sdk.PostMessageResponse{
		FinalOutput: reply,
		Items:       make([]sdk.Item, 0, len(items)),
	}
	for _, item := range items {
		resp.Items = append(resp.Items, toSDKItem(item))
	}

	c.JSON(sdk.NewSuccessResponse("Message sent successfully", resp).AsGinResponse())
}

// deleteSession handles DELETE requests to remove an existing session
func (ctrl *controller) deleteSession(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := ctrl.Sessions.DeleteSession(c.Request.Context(), id); err != nil {
		c.JSON(lookupError(err).AsGinResponse())
		return
	}

	c.JSON(sdk.NewSuccessResponse("Session deleted successfully", gin.H{"id": id.String()}).AsGinResponse())
}

// learn hands the exchange to the memory system without holding up the response
func (ctrl *controller) learn(ctx context.Context, user, reply string) {
	if ctrl.Learner == nil {
		return
	}

	if r := []rune(reply); len(r) > learnTextLimit {
		reply = string(r[:learnTextLimit])
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ctrl.LearnTimeout)
		defer cancel()

		result := ctrl.Learner.LearnFromConversation(ctx, user, reply)
		ctrl.Logger.Debug("learned from api message", zap.String("result", result))
	}()
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Invalid session id", err).AsGinResponse())
		return uuid.Nil, false
	}
	return id, true
}

func lookupError(err error) sdk.ApiResponse[any] {
	if errors.Is(err, session.ErrNotFound) {
		return sdk.NewErrorResponse(http.StatusNotFound, "Session not found", err)
	}
	return sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to load session", err)
}

// Helper method to convert internal session to sdk session
func toSDKSession(sess *session.Session) sdk.Session {
	resp := sdk.Session{
		ID:           sess.ID.String(),
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
		LastActiveAt: sess.LastActiveAt,
		UserID:       sess.UserID,
		Channel:      sess.Channel,
	}

	for _, item := range sess.Items {
		resp.Items = append(resp.Items, toSDKItem(item))
	}

	return resp
}

// Helper method to convert internal item to sdk item
func toSDKItem(item *session.Item) sdk.Item {
	out := sdk.Item{
		ID:        item.ID,
		CreatedAt: item.CreatedAt,
		SessionID: item.SessionID.String(),
		Type:      item.Type(),
	}
	if item.ResponseItem.TResponseInputItem != nil {
		if data, err := json.Marshal(item.ResponseItem.TResponseInputItem); err == nil {
			out.Data = data
		}
	}
	return out
}
