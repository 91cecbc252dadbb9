package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEnv(values map[string]string) func(string) string {
	return func(k string) string { return values[k] }
}

func TestLoadProviderConfig_RegistersVendorsWithKeysSet(t *testing.T) {
	getenv := fakeEnv(map[string]string{
		"GLM_API_KEY":      "glm-secret",
		"DEEPSEEK_API_KEY": "ds-secret",
	})

	reg := LoadProviderConfig(getenv)

	ep, err := reg.Resolve("glm-4.7")
	require.NoError(t, err)
	assert.Equal(t, "glm-secret", ep.APIKey)
	assert.Equal(t, "https://open.bigmodel.cn/api/paas/v4", ep.BaseURL)

	ep, err = reg.Resolve("deepseek-chat")
	require.NoError(t, err)
	assert.Equal(t, "ds-secret", ep.APIKey)

	_, err = reg.Resolve("kimi-k2.5")
	assert.Error(t, err)
	_, err = reg.Resolve("minimax-2.1")
	assert.Error(t, err)
}

func TestLoadProviderConfig_BaseURLOverride(t *testing.T) {
	getenv := fakeEnv(map[string]string{
		"KIMI_API_KEY":  "kimi-secret",
		"KIMI_API_BASE": "https://kimi.example.internal/v1",
	})

	reg := LoadProviderConfig(getenv)

	ep, err := reg.Resolve("kimi-k2.5")
	require.NoError(t, err)
	assert.Equal(t, "https://kimi.example.internal/v1", ep.BaseURL)
}

func TestLoadProviderConfig_GenericLLMTriple(t *testing.T) {
	getenv := fakeEnv(map[string]string{
		"LLM_MODEL_ID": "custom-model",
		"LLM_API_KEY":  "custom-secret",
		"LLM_BASE_URL": "https://custom.example.com/v1",
	})

	reg := LoadProviderConfig(getenv)

	ep, err := reg.Resolve("custom-model")
	require.NoError(t, err)
	assert.Equal(t, "custom-secret", ep.APIKey)
	assert.Equal(t, "https://custom.example.com/v1", ep.BaseURL)
}

func TestLoadProviderConfig_NoKeysRegistersNothing(t *testing.T) {
	reg := LoadProviderConfig(fakeEnv(nil))
	assert.Empty(t, reg.ModelIDs())
}
