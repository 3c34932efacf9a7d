// Package assistant runs the per-user AI chat: it names conversations,
// replays their transcript into the prompt and calls the completion API
// with a single fallback attempt.
package assistant

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shubham07069/chatgod/internal/apperr"
	"github.com/shubham07069/chatgod/internal/auth"
	"github.com/shubham07069/chatgod/internal/logging"
	"github.com/shubham07069/chatgod/internal/metrics"
	"github.com/shubham07069/chatgod/internal/models"
	"github.com/shubham07069/chatgod/internal/openrouter"
	"github.com/shubham07069/chatgod/internal/store"
)

// Completer sends one completion request upstream.
type Completer interface {
	Complete(ctx context.Context, req openrouter.CompletionRequest) (string, error)
}

type Config struct {
	// DefaultModel is the label a fresh session counts as active.
	DefaultModel  string
	FallbackModel string
	Temperature   float64
	MaxTokens     int
}

type Service struct {
	history store.HistoryStore
	llm     Completer
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(l) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(history store.HistoryStore, llm Completer, cfg Config, opts ...Option) *Service {
	s := &Service{
		history: history,
		llm:     llm,
		cfg:     cfg,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type AskRequest struct {
	Message string
	Mode    string
	Models  []string
}

type Answer struct {
	Reply    string
	ChatName string
}

// Exchange is one turn as shown to the user.
type Exchange struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

// Ask answers message with every requested model and records the exchange
// as one turn of the session's chat. Changes to ac are applied only when
// the call succeeds.
func (s *Service) Ask(ctx context.Context, ac *auth.Context, req AskRequest) (*Answer, error) {
	if !ac.Authenticated() {
		return nil, apperr.ErrUnauthenticated
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, apperr.Validationf("message is required")
	}
	if len(req.Models) == 0 {
		return nil, apperr.Validationf("models must be a non-empty list")
	}
	selected := make([]Model, 0, len(req.Models))
	for _, label := range req.Models {
		m, err := LookupModel(label)
		if err != nil {
			return nil, err
		}
		selected = append(selected, m)
	}
	mode := ParseMode(req.Mode)

	next := *ac
	active := next.ActiveModel
	if active == "" {
		active = s.cfg.DefaultModel
	}
	if active != req.Models[0] {
		next.ActiveModel = req.Models[0]
		next.ResetContext = true
		s.logger.Info("Model switched, resetting context", zap.Int("user_id", ac.UserID), zap.String("model", req.Models[0]))
	}

	var transcript string
	if !next.ResetContext && next.ChatName != "" {
		turns, err := s.history.GetTurns(ctx, ac.UserID, next.ChatName)
		if err != nil {
			return nil, err
		}
		transcript = RenderTranscript(turns)
	}
	next.ResetContext = false

	now := s.now()
	name, err := s.resolveName(ctx, ac.UserID, next.ChatName, req.Message, now)
	if err != nil {
		return nil, err
	}
	next.ChatName = name

	replies := make([]string, 0, len(selected))
	fellBack := false
	for _, m := range selected {
		text, usedFallback, err := s.complete(ctx, m, BuildSystemPrompt(mode, m, transcript), req.Message)
		if err != nil {
			metrics.AssistantRequests.WithLabelValues("failed").Inc()
			s.logger.Error("Completion failed", zap.Int("user_id", ac.UserID), zap.String("model", m.ID), zap.Error(err))
			return nil, err
		}
		fellBack = fellBack || usedFallback
		replies = append(replies, CleanLaTeX(text))
	}
	reply := strings.TrimSpace(strings.Join(replies, "\n"))

	turn := &models.ChatTurn{
		UserID:      ac.UserID,
		ChatName:    name,
		UserMessage: req.Message,
		BotReply:    reply,
		Timestamp:   now.UTC(),
	}
	if err := s.history.SaveTurn(ctx, turn); err != nil {
		return nil, err
	}

	outcome := "ok"
	if fellBack {
		outcome = "fallback"
	}
	metrics.AssistantRequests.WithLabelValues(outcome).Inc()
	*ac = next
	return &Answer{Reply: reply, ChatName: name}, nil
}

// resolveName returns the chat the turn belongs to. A placeholder chat
// with no turns yet is renamed after the message.
func (s *Service) resolveName(ctx context.Context, userID int, current, message string, now time.Time) (string, error) {
	if current == "" {
		current = PlaceholderName(now)
	}
	if !IsPlaceholder(current) {
		return current, nil
	}
	exists, err := s.history.ChatExists(ctx, userID, current)
	if err != nil || exists {
		return current, err
	}

	name := DeriveChatName(message)
	taken, err := s.history.ChatExists(ctx, userID, name)
	if err != nil {
		return "", err
	}
	if taken {
		name = uniqueName(name, now)
	}
	s.logger.Info("Named chat", zap.Int("user_id", userID), zap.String("chat_name", name))
	return name, nil
}

// complete calls model and, on failure, the fallback model once. It reports
// whether the fallback answered.
func (s *Service) complete(ctx context.Context, model Model, system, message string) (string, bool, error) {
	req := openrouter.CompletionRequest{
		Model: model.ID,
		Messages: []openrouter.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: message},
		},
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	}
	text, err := s.llm.Complete(ctx, req)
	if err == nil {
		return text, false, nil
	}
	if ctx.Err() != nil {
		return "", false, err
	}
	s.logger.Warn("Model failed, falling back", zap.String("model", model.ID), zap.String("fallback", s.cfg.FallbackModel), zap.Error(err))

	req.Model = s.cfg.FallbackModel
	text, err = s.llm.Complete(ctx, req)
	if err == nil {
		return text, true, nil
	}
	if openrouter.IsUpstream(err) {
		return "", true, err
	}
	if ctx.Err() != nil {
		return "", true, err
	}
	return "", true, &apperr.UpstreamError{Model: req.Model, Body: err.Error()}
}

// Enter starts a placeholder chat if the session has none and reports
// whether it did.
func (s *Service) Enter(ac *auth.Context) bool {
	if ac.ChatName != "" {
		return false
	}
	ac.ChatName = PlaceholderName(s.now())
	ac.ResetContext = true
	ac.ActiveModel = s.cfg.DefaultModel
	return true
}

// NewChat switches the session to name, or to a fresh placeholder when name
// is blank. The next ask starts without context.
func (s *Service) NewChat(ac *auth.Context, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = PlaceholderName(s.now())
	}
	ac.ChatName = name
	ac.ResetContext = true
	return name
}

// LoadChat returns the turns of name and makes it the session's chat with
// transcript replay enabled.
func (s *Service) LoadChat(ctx context.Context, ac *auth.Context, name string) ([]Exchange, error) {
	if !ac.Authenticated() {
		return nil, apperr.ErrUnauthenticated
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validationf("chat name is required")
	}
	turns, err := s.history.GetTurns(ctx, ac.UserID, name)
	if err != nil {
		return nil, err
	}
	out := make([]Exchange, 0, len(turns))
	for _, t := range turns {
		out = append(out, Exchange{User: t.UserMessage, Bot: t.BotReply})
	}
	ac.ChatName = name
	ac.ResetContext = false
	return out, nil
}

func (s *Service) ChatNames(ctx context.Context, userID int) ([]string, error) {
	names, err := s.history.GetChatNames(ctx, userID)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// DeleteHistory removes every turn of the user and returns the session to
// idle.
func (s *Service) DeleteHistory(ctx context.Context, ac *auth.Context) (int64, error) {
	if !ac.Authenticated() {
		return 0, apperr.ErrUnauthenticated
	}
	n, err := s.history.DeleteHistory(ctx, ac.UserID)
	if err != nil {
		return 0, err
	}
	ac.ChatName = ""
	ac.ResetContext = false
	ac.ActiveModel = ""
	s.logger.Info("Deleted chat history", zap.Int("user_id", ac.UserID), zap.Int64("turns", n))
	return n, nil
}
