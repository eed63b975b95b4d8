package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/nlpodyssey/openai-agents-go/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

// responseItem decodes a raw response item
func responseItem(t *testing.T, raw string) memory.TResponseInputItem {
	t.Helper()
	var item memory.TResponseInputItem
	require.NoError(t, json.Unmarshal([]byte(raw), &item))
	return item
}

func itemTypes(items []memory.TResponseInputItem) []string {
	types := make([]string, 0, len(items))
	for _, item := range items {
		types = append(types, *item.GetType())
	}
	return types
}

const (
	userMessage   = `{"type":"message","role":"user","content":"what books have I read?"}`
	toolCall      = `{"type":"function_call","call_id":"call_1","name":"check_my_books","arguments":"{}"}`
	toolOutput    = `{"type":"function_call_output","call_id":"call_1","output":"You have read 3 books"}`
	otherCall     = `{"type":"function_call","call_id":"call_2","name":"search_the_web","arguments":"{\"query\":\"go\"}"}`
	otherOutput   = `{"type":"function_call_output","call_id":"call_2","output":"results"}`
	assistantText = `{"type":"message","role":"assistant","id":"msg_1","status":"completed","content":[{"type":"output_text","text":"You have read three books.","annotations":[]}]}`
)

func TestStore_SessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "melissa_user", ChannelVoice)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, sess.ID)

	got, err := store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "melissa_user", got.UserID)
	assert.Equal(t, ChannelVoice, got.Channel)

	list, err := store.ListSessions(ctx, "melissa_user")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.History(sess.ID).AddItems(ctx, []memory.TResponseInputItem{responseItem(t, userMessage)}))
	require.NoError(t, store.DeleteSession(ctx, sess.ID))

	_, err = store.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.DeleteSession(ctx, sess.ID), ErrNotFound)

	count, err := store.CountItems(ctx, sess.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestHistory_AddAndGetItems(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "melissa_user", ChannelAPI)
	require.NoError(t, err)
	history := store.History(sess.ID)
	assert.Equal(t, sess.ID.String(), history.SessionID(ctx))

	require.NoError(t, history.AddItems(ctx, []memory.TResponseInputItem{
		responseItem(t, userMessage),
		responseItem(t, toolCall),
		responseItem(t, toolOutput),
		responseItem(t, assistantText),
	}))

	items, err := history.GetItems(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"message", "function_call", "function_call_output", "message"}, itemTypes(items))

	// assistant output text survives the round trip
	require.NotNil(t, items[3].OfOutputMessage)
	assert.Equal(t, "You have read three books.", items[3].OfOutputMessage.Content[0].OfOutputText.Text)

	full, err := store.GetSessionWithItems(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, full.Items, 4)
	assert.Equal(t, "function_call", full.Items[1].Type())

	after, err := store.ItemsAfter(ctx, sess.ID, 3)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "message", after[0].Type())
}

func TestHistory_LimitDropsOrphanedOutputs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "u", ChannelCLI)
	require.NoError(t, err)
	history := store.History(sess.ID)

	require.NoError(t, history.AddItems(ctx, []memory.TResponseInputItem{
		responseItem(t, userMessage),
		responseItem(t, toolCall),
		responseItem(t, toolOutput),
		responseItem(t, assistantText),
	}))

	// The last two items start with the output of a call outside the window
	items, err := history.GetItems(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"message"}, itemTypes(items))

	items, err = history.GetItems(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"function_call", "function_call_output", "message"}, itemTypes(items))
}

func TestHistory_PairsToolOutputsWithCalls(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "u", ChannelAPI)
	require.NoError(t, err)
	history := store.History(sess.ID)

	// parallel tool calls arrive as call, call, output, output
	require.NoError(t, history.AddItems(ctx, []memory.TResponseInputItem{
		responseItem(t, toolCall),
		responseItem(t, otherCall),
		responseItem(t, toolOutput),
		responseItem(t, otherOutput),
	}))

	items, err := history.GetItems(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 4)

	assert.Equal(t, "call_1", items[0].OfFunctionCall.CallID)
	assert.Equal(t, "call_1", items[1].OfFunctionCallOutput.CallID)
	assert.Equal(t, "call_2", items[2].OfFunctionCall.CallID)
	assert.Equal(t, "call_2", items[3].OfFunctionCallOutput.CallID)
}

func TestHistory_PopAndClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "u", ChannelAPI)
	require.NoError(t, err)
	history := store.History(sess.ID)

	popped, err := history.PopItem(ctx)
	require.NoError(t, err)
	assert.Nil(t, popped, "empty session pops nothing")

	require.NoError(t, history.AddItems(ctx, []memory.TResponseInputItem{
		responseItem(t, userMessage),
		responseItem(t, assistantText),
	}))

	popped, err = history.PopItem(ctx)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.NotNil(t, popped.OfOutputMessage)

	count, err := store.CountItems(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, history.ClearSession(ctx))
	items, err := history.GetItems(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStore_PurgeIdleAndJanitor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	stale, err := store.CreateSession(ctx, "u", ChannelVoice)
	require.NoError(t, err)
	require.NoError(t, store.History(stale.ID).AddItems(ctx, []memory.TResponseInputItem{responseItem(t, userMessage)}))

	now = now.Add(23 * time.Hour)
	fresh, err := store.CreateSession(ctx, "u", ChannelVoice)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour) // stale is 25h idle, fresh 2h

	janitor, err := NewJanitor(store, JanitorOptions{MaxIdle: 24 * time.Hour})
	require.NoError(t, err)

	n, err := janitor.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.GetSession(ctx, stale.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetSession(ctx, fresh.ID)
	assert.NoError(t, err)

	count, err := store.CountItems(ctx, stale.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	n, err = janitor.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHistory_AddItemsKeepsSessionActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	sess, err := store.CreateSession(ctx, "u", ChannelVoice)
	require.NoError(t, err)

	now = now.Add(30 * time.Hour)
	require.NoError(t, store.History(sess.ID).AddItems(ctx, []memory.TResponseInputItem{responseItem(t, userMessage)}))

	n, err := store.PurgeIdle(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewJanitor_InvalidSchedule(t *testing.T) {
	_, err := NewJanitor(newTestStore(t), JanitorOptions{Schedule: "not a schedule"})
	assert.Error(t, err)
}
