package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/callbacks"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/soulra/clinical-router/internal/agent/model"
	errx "github.com/soulra/clinical-router/internal/core/error"
	logx "github.com/soulra/clinical-router/pkg/logger"
)

// defaultAnthropicMaxTokens is sent when the caller gives no cap; the API
// requires one.
const defaultAnthropicMaxTokens = 1024

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	client    anthropic.Client
	modelName string
}

// NewAnthropicClient constructs an Anthropic client. SDK retries are disabled.
func NewAnthropicClient(cfg model.LLMConfig) (*AnthropicClient, error) {
	if cfg.Model == "" {
		return nil, errors.New("anthropic: LLM_MODEL is required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	logx.Debug().Str("model", cfg.Model).Msg("Anthropic client created")
	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		modelName: cfg.Model,
	}, nil
}

func (c *AnthropicClient) Provider() string { return ProviderAnthropic }
func (c *AnthropicClient) Model() string    { return c.modelName }

// Generate sends one Messages request and concatenates the text blocks.
func (c *AnthropicClient) Generate(ctx context.Context, msgs []*schema.Message, opts ...Option) (string, error) {
	o := ApplyOptions(opts...)
	ctx = withRunInfo(ctx, ProviderAnthropic)
	ctx = callbacks.OnStart(ctx, callbackInput(msgs, c.modelName, o))

	system, turns := splitSystem(msgs)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.modelName),
		MaxTokens: defaultAnthropicMaxTokens,
		Messages:  toAnthropicMessages(turns),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if o.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*o.Temperature))
	}
	if o.MaxTokens != nil {
		params.MaxTokens = int64(*o.MaxTokens)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		genErr := c.wrapError(err)
		callbacks.OnError(ctx, genErr)
		return "", genErr
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	text := b.String()
	if strings.TrimSpace(text) == "" {
		genErr := errx.NewGenerationError(ProviderAnthropic, c.modelName, errx.KindMalformed, 0,
			errors.New("response has no text blocks"))
		callbacks.OnError(ctx, genErr)
		return "", genErr
	}

	callbacks.OnEnd(ctx, callbackOutput(text, c.modelName, &einomodel.TokenUsage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}))
	return text, nil
}

func (c *AnthropicClient) wrapError(err error) *errx.GenerationError {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return errx.NewGenerationError(ProviderAnthropic, c.modelName, errx.KindStatus, apiErr.StatusCode, err)
	}
	kind, status := classify(err)
	return errx.NewGenerationError(ProviderAnthropic, c.modelName, kind, status, err)
}

// toAnthropicMessages maps non-system turns; consecutive roles are left to the
// API to validate.
func toAnthropicMessages(msgs []*schema.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == schema.Assistant {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}
	return out
}
