package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"supportbot/internal/domain"
)

// completer sends one system+user prompt pair and returns the reply text.
type completer interface {
	complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Classifier turns report text into a domain.Classification. It never
// retries; failures are wrapped in domain.ErrClassifierUnavailable or
// domain.ErrClassifierMalformed.
type Classifier struct {
	backend  completer
	provider string
	model    string
	glossary *Glossary
	logger   *zap.Logger
}

type Options struct {
	Provider        string
	Model           string
	AnthropicAPIKey string
	GeminiAPIKey    string
	GlossaryPath    string
	Logger          *zap.Logger
}

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultGeminiModel    = "gemini-2.0-flash"
)

// New builds a Classifier for the configured provider. The returned close
// func releases provider resources.
func New(ctx context.Context, opts Options) (*Classifier, func() error, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var glossary *Glossary
	if opts.GlossaryPath != "" {
		g, err := LoadGlossary(opts.GlossaryPath)
		if err != nil {
			return nil, nil, err
		}
		glossary = g
	}

	noop := func() error { return nil }
	switch opts.Provider {
	case "", "anthropic":
		model := opts.Model
		if model == "" {
			model = defaultAnthropicModel
		}
		backend := newAnthropicBackend(opts.AnthropicAPIKey, model)
		return newClassifier(backend, "anthropic", model, glossary, logger), noop, nil
	case "gemini":
		model := opts.Model
		if model == "" {
			model = defaultGeminiModel
		}
		backend, err := newGeminiBackend(ctx, opts.GeminiAPIKey, model)
		if err != nil {
			return nil, nil, err
		}
		return newClassifier(backend, "gemini", model, glossary, logger), backend.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
	}
}

func newClassifier(backend completer, provider, model string, glossary *Glossary, logger *zap.Logger) *Classifier {
	return &Classifier{
		backend:  backend,
		provider: provider,
		model:    model,
		glossary: glossary,
		logger:   logger,
	}
}

func (c *Classifier) Classify(ctx context.Context, text string) (domain.Classification, error) {
	started := time.Now()
	raw, err := c.backend.complete(ctx, classifierSystemPrompt, buildUserPrompt(text))
	if err != nil {
		c.logger.Warn("llm classify call failed",
			zap.String("provider", providerLabel(c.provider, c.model)),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		return domain.Classification{}, fmt.Errorf("%w: %s: %w", domain.ErrClassifierUnavailable, c.provider, err)
	}
	if strings.TrimSpace(raw) == "" {
		return domain.Classification{}, fmt.Errorf("%w: %s: empty reply", domain.ErrClassifierUnavailable, c.provider)
	}

	cls, err := ParseClassification(raw)
	if err != nil {
		c.logger.Warn("llm classify reply malformed",
			zap.String("provider", providerLabel(c.provider, c.model)),
			zap.Error(err))
		return domain.Classification{}, fmt.Errorf("%w: %w", domain.ErrClassifierMalformed, err)
	}

	if c.glossary.Apply(text, &cls) {
		c.logger.Debug("llm glossary adjusted classification",
			zap.String("category", string(cls.Category)),
			zap.String("severity", string(cls.Severity)))
	}
	c.logger.Debug("llm classify ok",
		zap.String("provider", providerLabel(c.provider, c.model)),
		zap.String("category", string(cls.Category)),
		zap.String("severity", string(cls.Severity)),
		zap.String("action", string(cls.Action)),
		zap.Duration("elapsed", time.Since(started)))
	return cls, nil
}
