// Copyright (C) 2025 Vertice Code (dev@vertice-code.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the reasoning oracle backed by an OpenAI-compatible
// chat completion API.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Default generation settings for diagnosis calls. Diagnosis wants focused,
// deterministic output.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 512
	DefaultTimeout     = 30 * time.Second
)

// defaultRequestsPerMinute bounds diagnosis calls so a tight recovery loop
// cannot burn through the provider quota.
const defaultRequestsPerMinute = 30

// Config configures the oracle client.
type Config struct {
	// APIKey authenticates against the provider. Falls back to the
	// OPENAI_API_KEY environment variable when empty.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint, for OpenAI-compatible
	// local servers. Empty means the default OpenAI endpoint.
	BaseURL string `yaml:"base_url"`

	// Model is the chat model to use.
	Model string `yaml:"model"`

	// Temperature controls sampling randomness.
	Temperature float32 `yaml:"temperature"`

	// MaxTokens caps the completion length.
	MaxTokens int `yaml:"max_tokens"`

	// Timeout bounds each request.
	Timeout time.Duration `yaml:"timeout"`

	// RequestsPerMinute rate-limits oracle calls.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// DefaultConfig returns sensible defaults for diagnosis calls.
func DefaultConfig() Config {
	return Config{
		Model:             DefaultModel,
		Temperature:       DefaultTemperature,
		MaxTokens:         DefaultMaxTokens,
		Timeout:           DefaultTimeout,
		RequestsPerMinute: defaultRequestsPerMinute,
	}
}

// Oracle is a reasoning oracle backed by a chat completion API.
//
// Thread Safety: Safe for concurrent use.
type Oracle struct {
	client  *openai.Client
	model   string
	temp    float32
	maxTok  int
	timeout time.Duration
	limiter *rate.Limiter
}

// NewOracle creates an oracle client.
//
// Inputs:
//   - cfg: Client configuration. Zero values are replaced with defaults.
//
// Outputs:
//   - *Oracle: Ready to use client.
//   - error: Non-nil when no API key is available.
func NewOracle(cfg Config) (*Oracle, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no API key: set OPENAI_API_KEY or config api_key")
	}

	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	slog.Info("Initializing reasoning oracle",
		slog.String("model", cfg.Model),
		slog.Int("requests_per_minute", cfg.RequestsPerMinute),
	)

	return &Oracle{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		temp:    cfg.Temperature,
		maxTok:  cfg.MaxTokens,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1),
	}, nil
}

// Generate produces a completion for the given prompts.
//
// Inputs:
//   - ctx: Context for cancellation; a per-request timeout is added here.
//   - systemPrompt: The system framing.
//   - userPrompt: The user content.
//
// Outputs:
//   - string: The completion text.
//   - error: Non-nil on rate-limit wait failure, API failure, or an empty
//     reply. Callers in the recovery path absorb these.
func (o *Oracle) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("oracle rate limit wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               o.model,
		Temperature:         o.temp,
		MaxCompletionTokens: o.maxTok,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
