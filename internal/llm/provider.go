// Package llm guesses a song from free text, such as a social media caption,
// with a chat model.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"songbird/internal/core"
)

const (
	ProviderNone      = "none"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"

	defaultTemperature = 0.1
	maxTokensGuess     = 200
	maxCaptionRunes    = 1000
)

var (
	// ErrNotConfigured is returned by GuessSong when no provider is set up.
	ErrNotConfigured = errors.New("LLM provider not configured")
	// ErrNoGuess is returned when the model found no song in the text.
	ErrNoGuess = errors.New("no song found in text")
)

const guessSystemPrompt = `You identify songs from social media captions.
The caption belongs to a short video that plays a song. Decide which song it is.

Respond with a JSON object in this exact format:
{
  "found": true,
  "title": "Song Title",
  "artist": "Artist Name"
}

Rules:
1. Only name real, released songs
2. Set found to false when the caption does not point to a specific song
3. Ignore hashtags, emoji and calls to follow or like
4. Respond with valid JSON only`

// completer sends one system + user prompt pair and returns the raw reply.
type completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Provider implements core.SongGuesser on top of the configured model.
type Provider struct {
	config *core.LLMConfig
	logger *zap.Logger
	client completer
}

func NewProvider(config *core.LLMConfig, logger *zap.Logger) (*Provider, error) {
	var (
		client completer
		err    error
	)

	switch config.Provider {
	case ProviderOpenAI:
		client, err = NewOpenAIClient(config, logger)
	case ProviderAnthropic:
		client, err = NewAnthropicClient(config, logger)
	case ProviderOllama:
		client, err = NewOllamaClient(config, logger)
	case ProviderNone, "":
		return &Provider{config: config, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", config.Provider, err)
	}

	return &Provider{
		config: config,
		logger: logger,
		client: client,
	}, nil
}

// Enabled reports whether a model is configured.
func (p *Provider) Enabled() bool {
	return p.client != nil
}

// GuessSong asks the model which song caption refers to.
func (p *Provider) GuessSong(ctx context.Context, caption string) (*core.SongGuess, error) {
	if p.client == nil {
		return nil, ErrNotConfigured
	}

	caption = strings.TrimSpace(caption)
	if caption == "" {
		return nil, ErrNoGuess
	}
	if runes := []rune(caption); len(runes) > maxCaptionRunes {
		caption = string(runes[:maxCaptionRunes])
	}

	p.logger.Debug("Asking model for song guess",
		zap.String("provider", p.config.Provider),
		zap.String("caption", caption))

	content, err := p.client.Complete(ctx, guessSystemPrompt, fmt.Sprintf("Caption: %q", caption))
	if err != nil {
		return nil, err
	}

	guess, err := parseGuess(content)
	if err != nil {
		p.logger.Debug("Model gave no usable guess", zap.String("content", content), zap.Error(err))
		return nil, err
	}

	p.logger.Info("Model guessed song",
		zap.String("artist", guess.Artist),
		zap.String("title", guess.Title))

	return guess, nil
}

type guessResponse struct {
	Found  bool   `json:"found"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
}

// parseGuess reads the model reply, tolerating markdown code fences and text
// around the JSON object.
func parseGuess(content string) (*core.SongGuess, error) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in model response: %w", ErrNoGuess)
	}

	var response guessResponse
	if err := json.Unmarshal([]byte(content[start:end+1]), &response); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	title := strings.TrimSpace(response.Title)
	if !response.Found || title == "" {
		return nil, ErrNoGuess
	}

	return &core.SongGuess{Title: title, Artist: strings.TrimSpace(response.Artist)}, nil
}
