package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/soulra/clinical-router/internal/agent/model"
	errx "github.com/soulra/clinical-router/internal/core/error"
	logx "github.com/soulra/clinical-router/pkg/logger"
)

// ChatModelClient adapts any eino chat model to Client. The Gemini provider is
// built on it; tests may pass any einomodel.BaseChatModel.
type ChatModelClient struct {
	cm        einomodel.BaseChatModel
	provider  string
	modelName string
}

// NewChatModelClient wraps an eino chat model.
func NewChatModelClient(cm einomodel.BaseChatModel, provider, modelName string) *ChatModelClient {
	return &ChatModelClient{cm: cm, provider: provider, modelName: modelName}
}

// NewGeminiClient creates a Gemini-backed client through eino-ext.
func NewGeminiClient(ctx context.Context, cfg model.LLMConfig) (*ChatModelClient, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	cm, err := gemini.NewChatModel(ctx, geminiConfig(client, cfg))
	if err != nil {
		logx.Error().Err(err).Str("model", cfg.Model).Msg("Error creating Gemini chat model")
		return nil, fmt.Errorf("error creating Gemini chat model: %w", err)
	}

	logx.Debug().Str("model", cfg.Model).Msg("Gemini chat model created")
	return NewChatModelClient(cm, ProviderGemini, cfg.Model), nil
}

// geminiConfig always sends an explicit thinking budget: 0 disables thinking
// and -1 lets the model decide. Thinking tokens count against max tokens, so
// short label calls need it off.
func geminiConfig(client *genai.Client, cfg model.LLMConfig) *gemini.Config {
	return &gemini.Config{
		Client: client,
		Model:  cfg.Model,
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(cfg.ThinkingBudget),
		},
	}
}

func (c *ChatModelClient) Provider() string { return c.provider }
func (c *ChatModelClient) Model() string    { return c.modelName }

// Generate calls the wrapped chat model once. Callbacks are fired by the chat
// model itself.
func (c *ChatModelClient) Generate(ctx context.Context, msgs []*schema.Message, opts ...Option) (string, error) {
	o := ApplyOptions(opts...)
	var modelOpts []einomodel.Option
	if o.Temperature != nil {
		modelOpts = append(modelOpts, einomodel.WithTemperature(*o.Temperature))
	}
	if o.MaxTokens != nil {
		modelOpts = append(modelOpts, einomodel.WithMaxTokens(*o.MaxTokens))
	}

	out, err := c.cm.Generate(withRunInfo(ctx, c.provider), msgs, modelOpts...)
	if err != nil {
		kind, status := classify(geminiStatus(err))
		return "", errx.NewGenerationError(c.provider, c.modelName, kind, status, err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", errx.NewGenerationError(c.provider, c.modelName, errx.KindMalformed, 0,
			errors.New("response has no text content"))
	}
	return out.Content, nil
}

// geminiStatus surfaces the status code of a genai API error.
func geminiStatus(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return withStatus(apiErr.Code, err)
	}
	return err
}
