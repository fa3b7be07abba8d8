package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/soulra/clinical-router/internal/agent/model"
)

const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Client is the Language Generation Client. Implementations perform no retries
// and return *errx.GenerationError on every failure.
type Client interface {
	Generate(ctx context.Context, msgs []*schema.Message, opts ...Option) (string, error)
	Provider() string
	Model() string
}

// Options are the recognised generation parameters. Nil fields fall back to
// the provider default.
type Options struct {
	Temperature *float32
	MaxTokens   *int
}

type Option func(*Options)

func WithTemperature(t float32) Option {
	return func(o *Options) { o.Temperature = &t }
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxTokens = &n
		}
	}
}

// ApplyOptions folds opts into an Options value.
func ApplyOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// New builds the client selected by cfg.Provider.
func New(ctx context.Context, cfg model.LLMConfig) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderGemini, "":
		return NewGeminiClient(ctx, cfg)
	case ProviderOpenAI:
		return NewOpenAIClient(cfg)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.Provider)
	}
}

// withRunInfo scopes the callbacks already attached to ctx to a chat model
// component, so model observers see provider calls made from lambda nodes.
func withRunInfo(ctx context.Context, provider string) context.Context {
	return callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      provider,
		Type:      provider,
		Component: components.ComponentOfChatModel,
	})
}

// callbackInput is what providers that do not fire eino callbacks themselves
// report on start.
func callbackInput(msgs []*schema.Message, modelName string, o Options) *einomodel.CallbackInput {
	cfg := &einomodel.Config{Model: modelName}
	if o.Temperature != nil {
		cfg.Temperature = *o.Temperature
	}
	if o.MaxTokens != nil {
		cfg.MaxTokens = *o.MaxTokens
	}
	return &einomodel.CallbackInput{Messages: msgs, Config: cfg}
}

func callbackOutput(text, modelName string, usage *einomodel.TokenUsage) *einomodel.CallbackOutput {
	return &einomodel.CallbackOutput{
		Message:    schema.AssistantMessage(text, nil),
		Config:     &einomodel.Config{Model: modelName},
		TokenUsage: usage,
	}
}

// splitSystem separates system messages from the conversational turns for
// APIs that take the system prompt out of band.
func splitSystem(msgs []*schema.Message) (system string, turns []*schema.Message) {
	var sys []string
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.Role == schema.System {
			sys = append(sys, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(sys, "\n\n"), turns
}
