package config

import (
	"fmt"
	"os"

	"github.com/entrhq/browsary/pkg/llm/openai"
)

// ProviderSettings is the resolved configuration of an LLM provider.
type ProviderSettings struct {
	Model   string
	BaseURL string
	APIKey  string
}

// ResolveProvider applies configuration precedence:
// CLI flags > environment variables > config file > defaults.
// A nil section falls back to the global LLM section.
func ResolveProvider(section *LLMSection, cliModel, cliBaseURL, cliAPIKey string) ProviderSettings {
	if section == nil {
		section = GetLLM()
	}

	resolved := ProviderSettings{
		Model:   cliModel,
		BaseURL: cliBaseURL,
		APIKey:  cliAPIKey,
	}

	if resolved.APIKey == "" {
		resolved.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if resolved.BaseURL == "" {
		resolved.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}

	if section != nil {
		if resolved.Model == "" {
			resolved.Model = section.GetModel()
		}
		if resolved.BaseURL == "" {
			resolved.BaseURL = section.GetBaseURL()
		}
		if resolved.APIKey == "" {
			resolved.APIKey = section.GetAPIKey()
		}
	}

	if resolved.Model == "" {
		resolved.Model = openai.DefaultModel
	}
	return resolved
}

// BuildProvider creates an OpenAI-compatible provider from the resolved
// settings.
func BuildProvider(section *LLMSection, cliModel, cliBaseURL, cliAPIKey string) (*openai.Provider, error) {
	settings := ResolveProvider(section, cliModel, cliBaseURL, cliAPIKey)

	if settings.APIKey == "" {
		return nil, fmt.Errorf("API key is required. Set OPENAI_API_KEY environment variable, use -api-key flag, or set api_key in the llm config section")
	}

	providerOpts := []openai.ProviderOption{
		openai.WithModel(settings.Model),
	}
	if settings.BaseURL != "" {
		providerOpts = append(providerOpts, openai.WithBaseURL(settings.BaseURL))
	}

	provider, err := openai.NewProvider(settings.APIKey, providerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	return provider, nil
}
