package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/getnao/nao-cli/internal/providers"
	"github.com/getnao/nao-cli/internal/session"
)

// ErrEmptyInput is returned when the question is blank.
var ErrEmptyInput = errors.New("empty input")

// Agent answers questions about a project using the configured LLM.
type Agent struct {
	Provider      providers.LLMProvider
	Context       *ContextBuilder
	Guard         *Guard
	Sessions      *session.Manager
	Model         string
	MaxTokens     int
	Temperature   *float64
	HistoryWindow int
	Logger        *log.Logger
	Now           func() time.Time
}

// Config holds configuration for creating an Agent.
type Config struct {
	ProjectName   string
	ProjectRoot   string
	ContextDir    string
	Model         string
	MaxTokens     int
	Temperature   *float64
	HistoryWindow int
}

// New creates an agent. sessions may be nil when callers manage sessions
// themselves through Ask.
func New(provider providers.LLMProvider, sessions *session.Manager, cfg Config, logger *log.Logger) *Agent {
	model := cfg.Model
	if model == "" {
		model = provider.DefaultModel()
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	window := cfg.HistoryWindow
	if window == 0 {
		window = 50
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Agent{
		Provider:      provider,
		Context:       NewContextBuilder(cfg.ProjectName, cfg.ProjectRoot, cfg.ContextDir),
		Guard:         NewGuard(),
		Sessions:      sessions,
		Model:         model,
		MaxTokens:     maxTokens,
		Temperature:   cfg.Temperature,
		HistoryWindow: window,
		Logger:        logger,
		Now:           time.Now,
	}
}

// Ask sends input with the session's history to the LLM. On success the
// exchange is appended to sess; on failure sess is left untouched.
func (a *Agent) Ask(ctx context.Context, sess *session.Session, input string) (*providers.LLMResponse, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	system := providers.Message{Role: providers.RoleSystem, Content: a.Context.BuildSystemPrompt()}
	history := append(sess.History(a.HistoryWindow), providers.Message{Role: providers.RoleUser, Content: input})
	history = a.Guard.Fit(system, history, a.Model)

	messages := make([]providers.Message, 0, len(history)+1)
	messages = append(messages, system)
	messages = append(messages, history...)

	a.Logger.Debug("asking model", "model", a.Model, "session", sess.Key, "messages", len(messages))
	start := a.Now()
	resp, err := a.Provider.Chat(ctx, providers.ChatRequest{
		Messages:    messages,
		Model:       a.Model,
		MaxTokens:   a.MaxTokens,
		Temperature: a.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM chat: %w", err)
	}
	a.Logger.Debug("model answered", "elapsed", a.Now().Sub(start), "tokens", resp.Usage.TotalTokens)

	sess.AddMessage(providers.RoleUser, input)
	sess.AddMessage(providers.RoleAssistant, resp.Content)

	if a.Context.Memory != nil {
		if err := a.Context.Memory.RecordExchange(sess.Key, input, resp.Content, a.Now()); err != nil {
			a.Logger.Warn("could not record history", "err", err)
		}
	}
	return resp, nil
}

// ProcessDirect loads the session named key, asks, and persists the session.
func (a *Agent) ProcessDirect(ctx context.Context, key, input string) (string, error) {
	if a.Sessions == nil {
		return "", errors.New("agent has no session manager")
	}
	if key == "" {
		key = session.DefaultKey
	}
	sess := a.Sessions.GetOrCreate(ctx, key)
	resp, err := a.Ask(ctx, sess, input)
	if err != nil {
		return "", err
	}
	if err := a.Sessions.Save(ctx, sess); err != nil {
		a.Logger.Warn("could not save session", "session", key, "err", err)
	}
	return resp.Content, nil
}
