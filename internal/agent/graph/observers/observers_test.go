package observers

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	errx "github.com/soulra/clinical-router/internal/core/error"
	"github.com/soulra/clinical-router/internal/metrics"
)

func withHandlers(m *metrics.Metrics, info *callbacks.RunInfo) context.Context {
	return callbacks.InitCallbacks(context.Background(), info, NewAllCallbacks(m)...)
}

func TestModelCallbacksRecordUsage(t *testing.T) {
	m := metrics.NewMetrics()
	ctx := withHandlers(m, &callbacks.RunInfo{Name: "gemini", Type: "Gemini", Component: components.ComponentOfChatModel})

	ctx = callbacks.OnStart(ctx, &einomodel.CallbackInput{
		Messages: []*schema.Message{schema.SystemMessage("sys"), schema.UserMessage("hello")},
		Config:   &einomodel.Config{Model: "gemini-2.5-flash"},
	})
	callbacks.OnEnd(ctx, &einomodel.CallbackOutput{
		Message:    schema.AssistantMessage("hi", nil),
		Config:     &einomodel.Config{Model: "gemini-2.5-flash"},
		TokenUsage: &einomodel.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 0, TotalTokens: 1_000_000},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationsTotal.WithLabelValues("gemini", "gemini-2.5-flash")))
	assert.Equal(t, 1_000_000.0, testutil.ToFloat64(m.GenerationTokensTotal.WithLabelValues("gemini-2.5-flash", "prompt")))
	assert.InDelta(t, 0.30, testutil.ToFloat64(m.GenerationCostUSD.WithLabelValues("gemini-2.5-flash")), 1e-9)
}

func TestModelCallbacksRecordFailureKind(t *testing.T) {
	m := metrics.NewMetrics()
	ctx := withHandlers(m, &callbacks.RunInfo{Name: "openai", Type: "OpenAI", Component: components.ComponentOfChatModel})

	genErr := errx.NewGenerationError("openai", "gpt-4o-mini", errx.KindStatus, 503, errors.New("unavailable"))
	callbacks.OnError(ctx, genErr)
	callbacks.OnError(ctx, errors.New("plain"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationErrorsTotal.WithLabelValues("openai", "status")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationErrorsTotal.WithLabelValues("openai", "unknown")))
}

func TestToolCallbacks(t *testing.T) {
	m := metrics.NewMetrics()
	ctx := withHandlers(m, &callbacks.RunInfo{Name: "guideline_search", Type: "GuidelineSearch", Component: components.ComponentOfTool})

	ctx = callbacks.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: `{"query":"x"}`})
	callbacks.OnEnd(ctx, &tool.CallbackOutput{Response: `{"snippets":[]}`})
	callbacks.OnError(ctx, errors.New("timeout"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues("guideline_search", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolExecutionsTotal.WithLabelValues("guideline_search", "error")))
}

func TestNodeCallbacksTimeLambdas(t *testing.T) {
	m := metrics.NewMetrics()

	ctx := withHandlers(m, &callbacks.RunInfo{Name: "Orchestrator", Component: compose.ComponentOfLambda})
	ctx = callbacks.OnStart(ctx, "input")
	callbacks.OnEnd(ctx, "output")

	// Non-lambda components are not timed.
	ctx = withHandlers(m, &callbacks.RunInfo{Name: "ClinicalRouter", Component: compose.ComponentOfGraph})
	ctx = callbacks.OnStart(ctx, "input")
	callbacks.OnEnd(ctx, "output")

	assert.Equal(t, 1, testutil.CollectAndCount(m.NodeDuration))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.Equal(t, "hello", lastUserContent([]*schema.Message{
		schema.UserMessage(" hello "),
		schema.AssistantMessage("reply", nil),
		nil,
	}))
}
