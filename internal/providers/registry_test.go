package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Registry Lookup Tests ---

func TestFindByModel_OpenAI(t *testing.T) {
	spec := FindByModel("gpt-4o-mini")
	require.NotNil(t, spec)
	assert.Equal(t, "openai", spec.Name)
}

func TestFindByModel_DeepSeek(t *testing.T) {
	spec := FindByModel("deepseek/deepseek-chat")
	require.NotNil(t, spec)
	assert.Equal(t, "deepseek", spec.Name)
}

func TestFindByModel_Mistral(t *testing.T) {
	spec := FindByModel("codestral-latest")
	require.NotNil(t, spec)
	assert.Equal(t, "mistral", spec.Name)
}

func TestFindByModel_Unknown(t *testing.T) {
	assert.Nil(t, FindByModel("some-unknown-model"))
}

func TestFindByModel_SkipsGatewaysAndLocal(t *testing.T) {
	assert.Nil(t, FindByModel("openrouter/auto"))
	assert.Nil(t, FindByModel("ollama/llama3"))
}

func TestFindByName(t *testing.T) {
	spec := FindByName(" OpenRouter ")
	require.NotNil(t, spec)
	assert.True(t, spec.IsGateway)
	assert.Nil(t, FindByName("nope"))
}

func TestFindByKeyPrefix(t *testing.T) {
	spec := FindByKeyPrefix("sk-or-v1-abc")
	require.NotNil(t, spec)
	assert.Equal(t, "openrouter", spec.Name)
	assert.Nil(t, FindByKeyPrefix("sk-proj-abc"))
	assert.Nil(t, FindByKeyPrefix(""))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "DeepSeek", FindByName("deepseek").Label())
	assert.Equal(t, "custom", (&ProviderSpec{Name: "custom"}).Label())
}
