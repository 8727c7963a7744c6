package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/getnao/nao-cli/internal/config"
)

// ErrNoAPIKey is returned when a remote provider has no key configured.
var ErrNoAPIKey = errors.New("no API key configured")

// Settings is the resolved connection for one backend.
type Settings struct {
	Spec        *ProviderSpec
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature *float64
}

// Resolve turns the llm section of the project config into connection
// settings. Lookup order for the provider: explicit name, key prefix,
// model keyword. The API key comes from the config, then the provider's
// env var, then OPENAI_API_KEY.
func Resolve(cfg config.LLMConfig) (Settings, error) {
	s := Settings{
		Model:       strings.TrimSpace(cfg.Model),
		APIKey:      strings.TrimSpace(cfg.APIKey),
		BaseURL:     strings.TrimSpace(cfg.BaseURL),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	if s.Model == "" {
		return s, errors.New("llm.model is not set")
	}

	s.Spec = FindByName(cfg.Provider)
	if s.Spec == nil {
		s.Spec = FindByKeyPrefix(s.APIKey)
	}
	if s.Spec == nil {
		s.Spec = FindByModel(s.Model)
	}
	if s.Spec == nil {
		s.Spec = FindByName("openai")
	}

	if s.APIKey == "" && s.Spec.EnvKey != "" {
		s.APIKey = strings.TrimSpace(os.Getenv(s.Spec.EnvKey))
	}
	if s.APIKey == "" && s.Spec.Name != "openai" {
		s.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if s.BaseURL == "" {
		s.BaseURL = s.Spec.DefaultBaseURL
	}
	if s.Spec.StripModelPrefix {
		if idx := strings.Index(s.Model, "/"); idx >= 0 && strings.EqualFold(s.Model[:idx], s.Spec.Name) {
			s.Model = s.Model[idx+1:]
		}
	}
	if s.APIKey == "" && !s.Spec.IsLocal {
		return s, fmt.Errorf("%w for %s (set %s)", ErrNoAPIKey, s.Spec.Label(), s.Spec.EnvKey)
	}
	return s, nil
}

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client   openai.Client
	settings Settings
}

// NewOpenAIProvider creates a provider from resolved settings.
func NewOpenAIProvider(s Settings, extra ...option.RequestOption) *OpenAIProvider {
	opts := []option.RequestOption{option.WithRequestTimeout(120 * time.Second)}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	apiKey := s.APIKey
	if apiKey == "" {
		// local servers ignore the key but the client refuses an empty one
		apiKey = "local"
	}
	opts = append(opts, option.WithAPIKey(apiKey))
	opts = append(opts, extra...)
	return &OpenAIProvider{
		client:   openai.NewClient(opts...),
		settings: s,
	}
}

// FromConfig resolves the llm section and builds a provider.
func FromConfig(cfg config.LLMConfig) (*OpenAIProvider, error) {
	s, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}
	return NewOpenAIProvider(s), nil
}

// DefaultModel satisfies the LLMProvider interface.
func (p *OpenAIProvider) DefaultModel() string { return p.settings.Model }

// Settings returns the resolved connection settings.
func (p *OpenAIProvider) Settings() Settings { return p.settings }

// Chat sends a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*LLMResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("no messages")
	}
	model := req.Model
	if model == "" {
		model = p.settings.Model
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toOpenAIMessages(req.Messages),
	}
	maxTokens := req.MaxTokens
	if maxTokens < 1 {
		maxTokens = p.settings.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	temp := req.Temperature
	if temp == nil {
		temp = p.settings.Temperature
	}
	if temp != nil {
		params.Temperature = openai.Float(*temp)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("chat completion: empty choices")
	}

	choice := completion.Choices[0]
	finish := choice.FinishReason
	if finish == "" {
		finish = "stop"
	}
	return &LLMResponse{
		Content:      choice.Message.Content,
		Model:        completion.Model,
		FinishReason: finish,
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}, nil
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
