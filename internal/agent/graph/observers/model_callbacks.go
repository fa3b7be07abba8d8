package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	"github.com/soulra/clinical-router/internal/agent/model"
	errx "github.com/soulra/clinical-router/internal/core/error"
	"github.com/soulra/clinical-router/internal/metrics"
	logx "github.com/soulra/clinical-router/pkg/logger"
)

// newModelHandler builds a typed ModelCallbackHandler that logs model calls
// and records token usage, cost and failures.
func newModelHandler(m *metrics.Metrics) *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *einomodel.CallbackInput) context.Context {
			ev := logx.Debug().Str("provider", info.Name)
			if input != nil {
				ev = ev.Int("messages", len(input.Messages))
				if input.Config != nil {
					ev = ev.Str("model", input.Config.Model).
						Float32("temperature", input.Config.Temperature).
						Int("max_tokens", input.Config.MaxTokens)
				}
				if um := lastUserContent(input.Messages); um != "" {
					ev = ev.Str("user", logx.ClinicalText(truncate(um, 200)))
				}
			}
			ev.Msg("Model call started")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *einomodel.CallbackOutput) context.Context {
			if output == nil {
				return ctx
			}
			modelName := info.Type
			if output.Config != nil && output.Config.Model != "" {
				modelName = output.Config.Model
			}

			ev := logx.Debug().Str("provider", info.Name).Str("model", modelName)
			if output.Message != nil {
				ev = ev.Int("answer_chars", len(output.Message.Content))
			}
			if u := output.TokenUsage; u != nil {
				inC, outC, totalC := model.ComputeCost(&schema.TokenUsage{
					PromptTokens:     u.PromptTokens,
					CompletionTokens: u.CompletionTokens,
					TotalTokens:      u.TotalTokens,
				}, model.ResolvePricing(modelName))
				ev = ev.
					Int("prompt_tokens", u.PromptTokens).
					Int("completion_tokens", u.CompletionTokens).
					Int("total_tokens", u.TotalTokens).
					Float64("input_cost_usd", inC).
					Float64("output_cost_usd", outC).
					Float64("total_cost_usd", totalC)
				m.ObserveGeneration(info.Name, modelName, u.PromptTokens, u.CompletionTokens, totalC)
			} else {
				m.ObserveGeneration(info.Name, modelName, 0, 0, 0)
			}
			ev.Msg("Model call finished")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			kind := "unknown"
			if genErr, ok := errx.AsGenerationError(err); ok {
				kind = string(genErr.Kind)
			}
			m.IncGenerationError(info.Name, kind)
			logx.Error().Err(err).Str("provider", info.Name).Str("kind", kind).Msg("Model call failed")
			return ctx
		},
	}
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
