package agent

import (
	"strings"
	"sync/atomic"

	"github.com/getnao/nao-cli/internal/providers"
)

// ModelTokenLimits maps model names to their context window sizes.
var ModelTokenLimits = map[string]int{
	"gpt-4o":         128_000,
	"gpt-4o-mini":    128_000,
	"gpt-4.1":        1_000_000,
	"gpt-4-turbo":    128_000,
	"deepseek-chat":  64_000,
	"deepseek-coder": 64_000,
	"mistral-large":  128_000,
	"codestral":      256_000,
	"llama3":         8_000,
	"llama3.1":       128_000,
	// Default
	"_default": 32_000,
}

// GetModelLimit returns the token limit for a model.
func GetModelLimit(model string) int {
	name := model
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if limit, ok := ModelTokenLimits[name]; ok {
		return limit
	}
	// Longest prefix wins so "gpt-4o-mini-2024" does not match "gpt-4".
	best, bestLen := 0, 0
	for k, v := range ModelTokenLimits {
		if strings.HasPrefix(name, k) && len(k) > bestLen {
			best, bestLen = v, len(k)
		}
	}
	if bestLen > 0 {
		return best
	}
	return ModelTokenLimits["_default"]
}

// EstimateTokens estimates the token count for a list of messages.
// Uses chars/3 plus a small per-message overhead, which overestimates for
// English text.
func EstimateTokens(messages []providers.Message) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content)/3 + 4
	}
	return total
}

// Guard keeps requests inside the model's context window.
type Guard struct {
	// Ratio of the model limit the prompt may use; the rest is left for the answer.
	Ratio float64

	// Shared by concurrent Ask calls.
	TotalChecks  atomic.Int64
	TrimmedTurns atomic.Int64
}

// NewGuard creates a Guard using 80% of the model limit.
func NewGuard() *Guard {
	return &Guard{Ratio: 0.8}
}

// Fit drops the oldest history messages until system + history fits in the
// budget for model. The final message (the current question) is always kept.
func (g *Guard) Fit(system providers.Message, history []providers.Message, model string) []providers.Message {
	g.TotalChecks.Add(1)

	ratio := g.Ratio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.8
	}
	budget := int(float64(GetModelLimit(model)) * ratio)
	used := EstimateTokens([]providers.Message{system})

	start := 0
	total := used + EstimateTokens(history)
	for total > budget && start < len(history)-1 {
		total -= EstimateTokens(history[start : start+1])
		start++
	}
	// Never open with an assistant turn.
	for start < len(history)-1 && history[start].Role == providers.RoleAssistant {
		start++
	}
	g.TrimmedTurns.Add(int64(start))
	return history[start:]
}
