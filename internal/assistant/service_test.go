package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubham07069/chatgod/internal/apperr"
	"github.com/shubham07069/chatgod/internal/auth"
	"github.com/shubham07069/chatgod/internal/models"
	"github.com/shubham07069/chatgod/internal/openrouter"
	"github.com/shubham07069/chatgod/internal/store/sqlstore"
)

// scriptedCompleter answers from a per-model script and records requests.
type scriptedCompleter struct {
	mu       sync.Mutex
	replies  map[string]string
	failures map[string]error
	requests []openrouter.CompletionRequest
}

func (c *scriptedCompleter) Complete(_ context.Context, req openrouter.CompletionRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if err, ok := c.failures[req.Model]; ok {
		return "", err
	}
	if r, ok := c.replies[req.Model]; ok {
		return r, nil
	}
	return "reply from " + req.Model, nil
}

func (c *scriptedCompleter) systemPrompt(i int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[i].Messages[0].Content
}

type fixture struct {
	svc   *Service
	store *sqlstore.SQLStore
	llm   *scriptedCompleter
	ac    *auth.Context
	now   time.Time
}

const fallbackID = "x-ai/grok-3-mini-beta"

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := sqlstore.New("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	u := &models.User{Username: "alice", PasswordHash: "x"}
	require.NoError(t, st.CreateUser(context.Background(), u))

	f := &fixture{
		store: st,
		llm:   &scriptedCompleter{replies: map[string]string{}, failures: map[string]error{}},
		ac:    &auth.Context{UserID: u.ID, Username: u.Username},
		now:   time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC),
	}
	f.svc = NewService(st, f.llm, Config{
		DefaultModel:  "DeepSeek",
		FallbackModel: fallbackID,
		Temperature:   0.7,
		MaxTokens:     500,
	}, WithClock(func() time.Time { return f.now }))
	return f
}

func TestAskNamesChatFromFirstMessage(t *testing.T) {
	f := newFixture(t)
	f.svc.Enter(f.ac)
	assert.Equal(t, PhaseNaming, PhaseOf(f.ac))
	assert.Equal(t, "Chat_20250601_123045", f.ac.ChatName)

	ans, err := f.svc.Ask(context.Background(), f.ac, AskRequest{Message: "hello world this is a test message", Models: []string{"Grok"}})
	require.NoError(t, err)
	assert.Equal(t, "Hello world this is a", ans.ChatName)
	assert.Equal(t, "Hello world this is a", f.ac.ChatName)
	assert.Equal(t, PhaseNamed, PhaseOf(f.ac))
	assert.Equal(t, "Grok", f.ac.ActiveModel)
	assert.False(t, f.ac.ResetContext)

	turns, err := f.store.GetTurns(context.Background(), f.ac.UserID, "Hello world this is a")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "reply from x-ai/grok-3-mini-beta", turns[0].BotReply)
}

func TestAskSuffixesCollidingName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveTurn(ctx, &models.ChatTurn{UserID: f.ac.UserID, ChatName: "Hi there", UserMessage: "hi there", BotReply: "yo"}))

	f.svc.NewChat(f.ac, "")
	ans, err := f.svc.Ask(ctx, f.ac, AskRequest{Message: "hi there!", Models: []string{"Grok"}})
	require.NoError(t, err)
	assert.Equal(t, "Hi there_20250601_123045", ans.ChatName)
}

func TestAskReplaysTranscriptForSameModel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.Enter(f.ac)

	_, err := f.svc.Ask(ctx, f.ac, AskRequest{Message: "first question", Models: []string{"Claude"}})
	require.NoError(t, err)
	assert.NotContains(t, f.llm.systemPrompt(0), "User: first question")

	_, err = f.svc.Ask(ctx, f.ac, AskRequest{Message: "second question", Models: []string{"Claude"}})
	require.NoError(t, err)
	assert.Contains(t, f.llm.systemPrompt(1), "User: first question\nBot: reply from anthropic/claude-3.5-haiku\n")
}

func TestAskResetsContextOnModelSwitch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.Enter(f.ac)

	_, err := f.svc.Ask(ctx, f.ac, AskRequest{Message: "first question", Models: []string{"Claude"}})
	require.NoError(t, err)
	_, err = f.svc.Ask(ctx, f.ac, AskRequest{Message: "second question", Models: []string{"Gemini"}})
	require.NoError(t, err)

	assert.NotContains(t, f.llm.systemPrompt(1), "first question")
	assert.Equal(t, "Gemini", f.ac.ActiveModel)

	turns, err := f.store.GetTurns(ctx, f.ac.UserID, f.ac.ChatName)
	require.NoError(t, err)
	assert.Len(t, turns, 2, "history rows are kept")
}

func TestAskFallsBackOnce(t *testing.T) {
	f := newFixture(t)
	f.llm.failures["openai/gpt-4.1-nano"] = &apperr.UpstreamError{Model: "openai/gpt-4.1-nano", Status: 503, Body: "down"}
	f.llm.replies[fallbackID] = `The answer is \boxed{42}`

	ans, err := f.svc.Ask(context.Background(), f.ac, AskRequest{Message: "what is it", Mode: "Pro", Models: []string{"ChatGPT"}})
	require.NoError(t, err)
	assert.Equal(t, "The answer is 42", ans.Reply)
	require.Len(t, f.llm.requests, 2)
	assert.Equal(t, fallbackID, f.llm.requests[1].Model)
	assert.Equal(t, 500, f.llm.requests[1].MaxTokens)
	assert.Contains(t, f.llm.systemPrompt(0), ModePro.Persona())
}

func TestAskFailsWhenFallbackFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.Enter(f.ac)
	before := *f.ac

	f.llm.failures["anthropic/claude-3.5-haiku"] = &apperr.UpstreamError{Model: "anthropic/claude-3.5-haiku", Status: 500, Body: "boom"}
	f.llm.failures[fallbackID] = &apperr.UpstreamError{Model: fallbackID, Status: 429, Body: "rate limited"}

	_, err := f.svc.Ask(ctx, f.ac, AskRequest{Message: "hello", Models: []string{"Claude"}})
	var upstream *apperr.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, 429, upstream.Status)
	assert.Equal(t, "rate limited", upstream.Body)

	names, err := f.svc.ChatNames(ctx, f.ac.UserID)
	require.NoError(t, err)
	assert.Empty(t, names, "no turn persisted")
	assert.Equal(t, before, *f.ac, "session unchanged")
}

func TestAskWrapsTransportFailureOfFallback(t *testing.T) {
	f := newFixture(t)
	f.llm.failures["x-ai/grok-3-mini-beta"] = errors.New("connection refused")

	_, err := f.svc.Ask(context.Background(), f.ac, AskRequest{Message: "hello", Models: []string{"Grok"}})
	var upstream *apperr.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Zero(t, upstream.Status)
	assert.Contains(t, upstream.Body, "connection refused")
}

func TestAskJoinsRepliesOfEveryModel(t *testing.T) {
	f := newFixture(t)
	f.llm.replies["openai/gpt-4.1-nano"] = "one"
	f.llm.replies["google/gemini-2.5-flash-lite-preview-06-17"] = "two"

	ans, err := f.svc.Ask(context.Background(), f.ac, AskRequest{Message: "hey", Models: []string{"ChatGPT", "Gemini"}})
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo", ans.Reply)

	turns, err := f.store.GetTurns(context.Background(), f.ac.UserID, ans.ChatName)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestAskValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Ask(ctx, f.ac, AskRequest{Message: "hi"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Ask(ctx, f.ac, AskRequest{Message: "  ", Models: []string{"Grok"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Ask(ctx, f.ac, AskRequest{Message: "hi", Models: []string{"Grok", "Bard"}})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Ask(ctx, &auth.Context{}, AskRequest{Message: "hi", Models: []string{"Grok"}})
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	assert.Empty(t, f.llm.requests)
}

func TestLoadChatEnablesReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveTurn(ctx, &models.ChatTurn{UserID: f.ac.UserID, ChatName: "Trip plans", UserMessage: "goa?", BotReply: "yes bhai"}))

	f.ac.ActiveModel = "Grok"
	f.ac.ResetContext = true
	history, err := f.svc.LoadChat(ctx, f.ac, "Trip plans")
	require.NoError(t, err)
	assert.Equal(t, []Exchange{{User: "goa?", Bot: "yes bhai"}}, history)
	assert.Equal(t, "Trip plans", f.ac.ChatName)
	assert.False(t, f.ac.ResetContext)

	_, err = f.svc.Ask(ctx, f.ac, AskRequest{Message: "when?", Models: []string{"Grok"}})
	require.NoError(t, err)
	assert.Contains(t, f.llm.systemPrompt(0), "User: goa?\nBot: yes bhai\n")
	assert.Equal(t, "Trip plans", f.ac.ChatName)
}

func TestNewChatAndDeleteHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, "Work", f.svc.NewChat(f.ac, " Work "))
	assert.True(t, f.ac.ResetContext)
	_, err := f.svc.Ask(ctx, f.ac, AskRequest{Message: "hi", Models: []string{"Grok"}})
	require.NoError(t, err)
	assert.Equal(t, "Work", f.ac.ChatName)

	names, err := f.svc.ChatNames(ctx, f.ac.UserID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Work"}, names)

	n, err := f.svc.DeleteHistory(ctx, f.ac)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, PhaseIdle, PhaseOf(f.ac))
	assert.Empty(t, f.ac.ActiveModel)

	assert.True(t, f.svc.Enter(f.ac))
	assert.False(t, f.svc.Enter(f.ac))
}
