package providers

import (
	"fmt"
	"sync"
)

// Registry resolves a model id to the Endpoint (adapter, base URL,
// credentials) that serves it. Vendor wiring is intentionally data-driven
// rather than a switch statement, so new OpenAI-compatible vendors need
// only a Register call, not a new Adapter implementation.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]Endpoint)}
}

// Register binds a model id to an endpoint. Re-registering the same id
// overwrites the previous binding, matching how a config reload replaces
// credentials without restarting the process.
func (r *Registry) Register(ep Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[ep.ModelID] = ep
}

// Resolve looks up the endpoint bound to modelID.
func (r *Registry) Resolve(modelID string) (Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[modelID]
	if !ok {
		return Endpoint{}, &Error{Reason: FailoverModelUnavailable, Model: modelID,
			Message: fmt.Sprintf("no adapter registered for model %q", modelID)}
	}
	return ep, nil
}

// ModelIDs returns every registered model id, for diagnostics/listing.
func (r *Registry) ModelIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.endpoints))
	for id := range r.endpoints {
		ids = append(ids, id)
	}
	return ids
}

// ProviderConfig is the minimal per-vendor configuration the default
// registry wiring needs: a base URL and an API key, read from
// environment variables by LoadProviderConfig.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
}

// vendorEnv names the literal environment variable aliases each
// OpenAI-compatible vendor resolves its API key and base URL override
// from. These are fixed strings, not derived from the model id, since
// "glm-4.7" uses GLM_API_KEY/GLM_API_BASE rather than a mechanically
// upper-cased form of the model id.
type vendorEnv struct {
	modelID    string
	defaultURL string
	keyVar     string
	baseVar    string
}

// VendorDefaults maps the model ids this core ships adapters for onto
// their default OpenAI-compatible base URL and environment variable
// aliases, so LoadProviderConfig only needs those env vars set per
// vendor family to produce a working registry.
var VendorDefaults = []vendorEnv{
	{modelID: "glm-4.7", defaultURL: "https://open.bigmodel.cn/api/paas/v4", keyVar: "GLM_API_KEY", baseVar: "GLM_API_BASE"},
	{modelID: "kimi-k2.5", defaultURL: "https://api.moonshot.cn/v1", keyVar: "KIMI_API_KEY", baseVar: "KIMI_API_BASE"},
	{modelID: "minimax-2.1", defaultURL: "https://api.minimax.chat/v1", keyVar: "MINIMAX_API_KEY", baseVar: "MINIMAX_API_BASE"},
	{modelID: "deepseek-chat", defaultURL: "https://api.deepseek.com/v1", keyVar: "DEEPSEEK_API_KEY", baseVar: "DEEPSEEK_API_BASE"},
}

// LoadProviderConfig reads per-vendor API keys from the environment (via
// getenv, injectable for tests) and returns a Registry with every vendor
// in VendorDefaults that has a non-empty key registered against the
// shared OpenAICompatAdapter implementation. A generic LLM_MODEL_ID /
// LLM_API_KEY / LLM_BASE_URL triple, if present, registers an additional
// endpoint for whatever model id the caller names there.
func LoadProviderConfig(getenv func(string) string) *Registry {
	reg := NewRegistry()
	for _, v := range VendorDefaults {
		apiKey := getenv(v.keyVar)
		if apiKey == "" {
			continue
		}
		baseURL := getenv(v.baseVar)
		if baseURL == "" {
			baseURL = v.defaultURL
		}
		reg.Register(Endpoint{
			ModelID: v.modelID,
			Adapter: NewOpenAICompatAdapter(v.modelID, baseURL, apiKey, nil),
			BaseURL: baseURL,
			APIKey:  apiKey,
		})
	}

	if modelID := getenv("LLM_MODEL_ID"); modelID != "" {
		apiKey := getenv("LLM_API_KEY")
		baseURL := getenv("LLM_BASE_URL")
		if apiKey != "" && baseURL != "" {
			reg.Register(Endpoint{
				ModelID: modelID,
				Adapter: NewOpenAICompatAdapter(modelID, baseURL, apiKey, nil),
				BaseURL: baseURL,
				APIKey:  apiKey,
			})
		}
	}
	return reg
}
