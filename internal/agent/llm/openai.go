package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"

	"github.com/soulra/clinical-router/internal/agent/model"
	errx "github.com/soulra/clinical-router/internal/core/error"
	logx "github.com/soulra/clinical-router/pkg/logger"
)

// minTemperature stands in for zero: go-openai drops a zero temperature from
// the request body and the server would apply its own default.
const minTemperature = 1e-6

// OpenAIClient calls an OpenAI-compatible chat completion endpoint. With
// LLM_BASE_URL pointed at a local server (e.g. Ollama) it serves local models.
type OpenAIClient struct {
	client    *openai.Client
	modelName string
}

// NewOpenAIClient constructs an OpenAI-compatible client from cfg.
func NewOpenAIClient(cfg model.LLMConfig) (*OpenAIClient, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai: LLM_MODEL is required")
	}
	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	logx.Debug().Str("model", cfg.Model).Str("base_url", oaCfg.BaseURL).Msg("OpenAI-compatible client created")
	return &OpenAIClient{
		client:    openai.NewClientWithConfig(oaCfg),
		modelName: cfg.Model,
	}, nil
}

func (c *OpenAIClient) Provider() string { return ProviderOpenAI }
func (c *OpenAIClient) Model() string    { return c.modelName }

// Generate sends one chat completion request and returns the first choice.
func (c *OpenAIClient) Generate(ctx context.Context, msgs []*schema.Message, opts ...Option) (string, error) {
	o := ApplyOptions(opts...)
	ctx = withRunInfo(ctx, ProviderOpenAI)
	ctx = callbacks.OnStart(ctx, callbackInput(msgs, c.modelName, o))

	req := openai.ChatCompletionRequest{
		Model:    c.modelName,
		Messages: toOpenAIMessages(msgs),
	}
	if o.Temperature != nil {
		req.Temperature = max(*o.Temperature, minTemperature)
	}
	if o.MaxTokens != nil {
		req.MaxTokens = *o.MaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		genErr := c.wrapError(err)
		callbacks.OnError(ctx, genErr)
		return "", genErr
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		genErr := errx.NewGenerationError(ProviderOpenAI, c.modelName, errx.KindMalformed, 0,
			errors.New("response has no choices with text content"))
		callbacks.OnError(ctx, genErr)
		return "", genErr
	}

	text := resp.Choices[0].Message.Content
	callbacks.OnEnd(ctx, callbackOutput(text, c.modelName, &einomodel.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}))
	return text, nil
}

func (c *OpenAIClient) wrapError(err error) *errx.GenerationError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return errx.NewGenerationError(ProviderOpenAI, c.modelName, errx.KindStatus, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return errx.NewGenerationError(ProviderOpenAI, c.modelName, errx.KindStatus, reqErr.HTTPStatusCode, err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return errx.NewGenerationError(ProviderOpenAI, c.modelName, errx.KindMalformed, 0,
			fmt.Errorf("decode response: %w", err))
	}
	kind, status := classify(err)
	return errx.NewGenerationError(ProviderOpenAI, c.modelName, kind, status, err)
}

func toOpenAIMessages(msgs []*schema.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case schema.System:
			role = openai.ChatMessageRoleSystem
		case schema.Assistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
