// Package llm forwards prompts to a hosted model. OpenAI is reached through
// langchaingo, Ollama through its own API client.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type Client interface {
	Generate(ctx context.Context, request GenerateRequest) (*GenerateResponse, error)
}

type GenerateRequest struct {
	Prompt        string        `json:"prompt" yaml:"prompt"`
	Model         string        `json:"model" yaml:"model"`
	MaxRetries    int           `json:"maxRetries" yaml:"maxRetries"`
	RetryCooldown time.Duration `json:"retryCooldown" yaml:"retryCooldown"`
}

type GenerateResponse struct {
	Response string `json:"response" yaml:"response"`
}

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

type Config struct {
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`
	Model    string `json:"model" yaml:"model" mapstructure:"model"`
	URL      string `json:"url" yaml:"url" mapstructure:"url"`
	APIKey   string `json:"apiKey" yaml:"apiKey" mapstructure:"api_key"`
	Org      string `json:"org" yaml:"org" mapstructure:"org"`
}

// ParseModel splits "provider/model". A model without a known provider
// prefix is returned as is with an empty provider.
func ParseModel(s string) (provider, model string) {
	if p, m, ok := strings.Cut(s, "/"); ok && (p == ProviderOpenAI || p == ProviderOllama) {
		return p, m
	}
	return "", s
}

// New builds a client for cfg.Provider, or for the provider prefix of
// cfg.Model when one is given.
func New(cfg Config, log *zap.Logger) (Client, error) {
	provider, model := ParseModel(cfg.Model)
	if provider == "" {
		provider = cfg.Provider
	}
	switch provider {
	case ProviderOpenAI, "":
		if cfg.APIKey == "" {
			return nil, errors.New("openai provider requires an api key (llm.api_key or OPENAI_API_KEY)")
		}
		return NewOpenAI(log, cfg.APIKey, cfg.Org, model, cfg.URL)
	case ProviderOllama:
		return NewOllama(log, lo.CoalesceOrEmpty(cfg.URL, DefaultOllamaURL), cfg.APIKey), nil
	}
	return nil, errors.Errorf("unknown llm provider %q (%s, %s)", provider, ProviderOpenAI, ProviderOllama)
}
