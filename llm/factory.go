// Provider selection from configuration.
//
//	p, err := llm.NewProvider(llm.ProviderConfig{Type: llm.ProviderOllama, Model: "qwen2.5"})

package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderType identifies a supported backend.
type ProviderType int

const (
	ProviderOpenAI ProviderType = iota
	ProviderAnthropic
	// ProviderDeepSeek speaks the OpenAI protocol at DeepSeek's endpoint.
	ProviderDeepSeek
	ProviderGemini
	// ProviderOllama is a local Ollama server via langchaingo. It needs no key.
	ProviderOllama
)

var providerNames = [...]string{
	ProviderOpenAI:    "openai",
	ProviderAnthropic: "anthropic",
	ProviderDeepSeek:  "deepseek",
	ProviderGemini:    "gemini",
	ProviderOllama:    "ollama",
}

func (p ProviderType) String() string {
	if p < 0 || int(p) >= len(providerNames) {
		return "unknown"
	}
	return providerNames[p]
}

// ParseProviderType accepts a provider name or common alias, case-insensitively.
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "deepseek":
		return ProviderDeepSeek, nil
	case "gemini", "google":
		return ProviderGemini, nil
	case "ollama", "local":
		return ProviderOllama, nil
	default:
		return 0, fmt.Errorf("unknown provider: %s", s)
	}
}

// DefaultMaxTokens applies when ProviderConfig.MaxTokens is zero.
const DefaultMaxTokens uint32 = 4096

// ProviderConfig selects and tunes one provider. Keys and default models
// are resolved by the caller, normally from config.Settings.
type ProviderConfig struct {
	Type        ProviderType
	Model       string
	BaseURL     string // OpenAI-compatible gateway or Ollama host; empty uses the provider default
	APIKey      string
	MaxTokens   uint32
	Temperature float32
}

// NewProvider builds the provider described by c.
func NewProvider(c ProviderConfig) (Provider, error) {
	if strings.TrimSpace(c.Model) == "" {
		return nil, errors.New("model must be set")
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}

	switch c.Type {
	case ProviderOpenAI:
		return NewOpenAIProvider(c.APIKey, c.Model, c.BaseURL, c.MaxTokens, c.Temperature), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(c.APIKey, c.Model, c.BaseURL, c.MaxTokens, c.Temperature), nil
	case ProviderDeepSeek:
		return NewDeepSeekProvider(c.APIKey, c.Model, c.BaseURL, c.MaxTokens, c.Temperature), nil
	case ProviderGemini:
		return NewGeminiProvider(c.APIKey, c.Model, c.MaxTokens, c.Temperature), nil
	case ProviderOllama:
		return NewOllamaProvider(c.Model, c.BaseURL, c.MaxTokens, c.Temperature)
	default:
		return nil, fmt.Errorf("unknown provider type: %v", c.Type)
	}
}
