package config

import (
	"fmt"
	"sync"
)

const (
	// SectionIDLLM is the identifier for the LLM settings section
	SectionIDLLM = "llm"

	// DefaultMaxSteps bounds the model turns of one pilot task
	DefaultMaxSteps = 20

	// DefaultMaxResultTokens bounds each tool result fed back to the model
	DefaultMaxResultTokens = 4000
)

// LLMSection manages LLM provider configuration settings.
type LLMSection struct {
	Model           string
	BaseURL         string
	APIKey          string
	MaxSteps        int
	MaxResultTokens int
	mu              sync.RWMutex
}

// NewLLMSection creates a new LLM section with default settings.
func NewLLMSection() *LLMSection {
	return &LLMSection{
		MaxSteps:        DefaultMaxSteps,
		MaxResultTokens: DefaultMaxResultTokens,
	}
}

// ID returns the section identifier.
func (s *LLMSection) ID() string {
	return SectionIDLLM
}

// Title returns the section title.
func (s *LLMSection) Title() string {
	return "LLM Settings"
}

// Description returns the section description.
func (s *LLMSection) Description() string {
	return "Configure the OpenAI-compatible provider used by the pilot, and how many steps and result tokens a task may use."
}

// Data returns the current configuration data.
func (s *LLMSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"model":             s.Model,
		"base_url":          s.BaseURL,
		"api_key":           s.APIKey,
		"max_steps":         s.MaxSteps,
		"max_result_tokens": s.MaxResultTokens,
	}
}

// SetData updates the configuration from the provided data.
func (s *LLMSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if model, ok := data["model"].(string); ok {
		s.Model = model
	}

	if baseURL, ok := data["base_url"].(string); ok {
		s.BaseURL = baseURL
	}

	if apiKey, ok := data["api_key"].(string); ok {
		s.APIKey = apiKey
	}

	if v, ok := data["max_steps"]; ok {
		n, err := intValue(v)
		if err != nil {
			return fmt.Errorf("max_steps: %w", err)
		}
		s.MaxSteps = n
	}

	if v, ok := data["max_result_tokens"]; ok {
		n, err := intValue(v)
		if err != nil {
			return fmt.Errorf("max_result_tokens: %w", err)
		}
		s.MaxResultTokens = n
	}

	return nil
}

// Validate validates the current configuration. Provider settings are
// checked when the provider is built.
func (s *LLMSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.MaxSteps < 0 {
		return fmt.Errorf("max_steps cannot be negative, got %d", s.MaxSteps)
	}
	if s.MaxResultTokens < 0 {
		return fmt.Errorf("max_result_tokens cannot be negative, got %d", s.MaxResultTokens)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *LLMSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Model = ""
	s.BaseURL = ""
	s.APIKey = ""
	s.MaxSteps = DefaultMaxSteps
	s.MaxResultTokens = DefaultMaxResultTokens
}

// GetModel returns the configured model name.
func (s *LLMSection) GetModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Model
}

// SetModel sets the model name.
func (s *LLMSection) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Model = model
}

// GetBaseURL returns the configured base URL.
func (s *LLMSection) GetBaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.BaseURL
}

// GetAPIKey returns the configured API key.
func (s *LLMSection) GetAPIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.APIKey
}

// GetMaxSteps returns the configured step limit.
func (s *LLMSection) GetMaxSteps() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.MaxSteps
}

// GetMaxResultTokens returns the configured tool result token limit.
func (s *LLMSection) GetMaxResultTokens() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.MaxResultTokens
}
