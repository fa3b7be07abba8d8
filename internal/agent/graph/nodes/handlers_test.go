package nodes

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulra/clinical-router/internal/agent/graph/prompts"
	"github.com/soulra/clinical-router/internal/agent/graph/tools"
	"github.com/soulra/clinical-router/internal/agent/llm/llmtest"
	"github.com/soulra/clinical-router/internal/agent/model"
	errx "github.com/soulra/clinical-router/internal/core/error"
)

func history(n int) []model.Message {
	out := make([]model.Message, n)
	for i := range out {
		out[i] = model.Message{
			ID:        fmt.Sprintf("m%02d", i),
			Sender:    model.SenderDoctor,
			Text:      fmt.Sprintf("note-%02d", i),
			Timestamp: now.Add(-time.Duration(n-i) * time.Hour),
		}
	}
	return out
}

type stubSearcher struct {
	res   *model.GuidelineResult
	err   error
	query string
}

func (s *stubSearcher) Search(_ context.Context, query string, _ int) (*model.GuidelineResult, error) {
	s.query = query
	return s.res, s.err
}

func TestSummarizer(t *testing.T) {
	fake := llmtest.Texts("  The patient reported poor sleep.  ")
	h := &Summarizer{LLM: fake, Config: model.SummaryConfig{Temperature: 0.5, MaxTokens: 512}}

	out, err := h.Handle(context.Background(), model.Snapshot{History: history(3), UserMessage: "Summarize please"})
	require.NoError(t, err)
	assert.Equal(t, "The patient reported poor sleep.", out.Answer)

	call := fake.Calls()[0]
	assert.Contains(t, call.Human(), "DOCTOR: note-00")
	assert.Contains(t, call.Human(), "DOCTOR: note-02")
	assert.NotContains(t, call.System(), "note-00")
	assert.Equal(t, float32(0.5), *call.Options.Temperature)
	assert.Equal(t, 512, *call.Options.MaxTokens)
	assert.Equal(t, NodeSummarizer, h.Name())
}

func TestPrescriptionSuggester(t *testing.T) {
	searcher := &stubSearcher{res: &model.GuidelineResult{Snippets: []model.GuidelineSnippet{{Text: "Start low, go slow."}}}}
	fake := llmtest.Texts(prompts.NoChangeSentence)
	h := &PrescriptionSuggester{
		LLM:        fake,
		Guidelines: tools.NewGuidelineSearchTool(searcher),
		Config:     model.PrescriptionConfig{Temperature: 0.2, MaxMessages: 14, GuidelineQuery: "depression guideline"},
		MaxResults: 3,
	}

	out, err := h.Handle(context.Background(), model.Snapshot{
		History:            history(20),
		LatestPrescription: &model.Prescription{Content: "sertraline 50mg"},
		UserMessage:        "Suggest a prescription",
	})
	require.NoError(t, err)
	assert.Equal(t, prompts.NoChangeSentence, out.Answer)
	assert.Equal(t, "ok", out.Debug[model.DebugGuidelineSearch])
	assert.Equal(t, "depression guideline", searcher.query)

	assert.Contains(t, fake.Calls()[0].System(), prompts.TableHeader)
	human := fake.Calls()[0].Human()
	assert.Contains(t, human, "sertraline 50mg")
	assert.Contains(t, human, "Start low, go slow.")
	assert.Contains(t, human, "note-06")
	assert.Contains(t, human, "note-19")
	assert.NotContains(t, human, "note-05")
	assert.Equal(t, float32(0.2), *fake.Calls()[0].Options.Temperature)
}

func TestPrescriptionSuggesterDegradesWithoutGuidelines(t *testing.T) {
	tests := []struct {
		name   string
		h      func(*llmtest.Fake) *PrescriptionSuggester
		status string
	}{
		{
			name: "search error",
			h: func(f *llmtest.Fake) *PrescriptionSuggester {
				return &PrescriptionSuggester{LLM: f, Guidelines: tools.NewGuidelineSearchTool(&stubSearcher{err: errors.New("timeout")}), Config: model.PrescriptionConfig{GuidelineQuery: "q"}}
			},
			status: "error",
		},
		{
			name: "empty result",
			h: func(f *llmtest.Fake) *PrescriptionSuggester {
				return &PrescriptionSuggester{LLM: f, Guidelines: tools.NewGuidelineSearchTool(&stubSearcher{res: &model.GuidelineResult{}}), Config: model.PrescriptionConfig{GuidelineQuery: "q"}}
			},
			status: "empty",
		},
		{
			name: "search disabled",
			h: func(f *llmtest.Fake) *PrescriptionSuggester {
				return &PrescriptionSuggester{LLM: f, Guidelines: tools.NewGuidelineSearchTool(tools.DisabledSearcher{}), Config: model.PrescriptionConfig{GuidelineQuery: "q"}}
			},
			status: "disabled",
		},
		{
			name: "no tool",
			h: func(f *llmtest.Fake) *PrescriptionSuggester {
				return &PrescriptionSuggester{LLM: f}
			},
			status: "disabled",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := llmtest.Texts("| Drug Name | Dosage | Route | Duration | Notes |")
			out, err := tt.h(fake).Handle(context.Background(), model.Snapshot{History: history(2), UserMessage: "adjust dose"})
			require.NoError(t, err)
			assert.Equal(t, tt.status, out.Debug[model.DebugGuidelineSearch])

			human := fake.Calls()[0].Human()
			assert.Contains(t, human, "Current prescription:\n"+prompts.NoPrescription)
			assert.Contains(t, human, "Reference guidelines:\nNone")
		})
	}
}

func TestGeneralChat(t *testing.T) {
	fake := llmtest.Texts("Hello! How are you today?")
	h := &GeneralChat{LLM: fake, Config: model.GeneralConfig{Temperature: 0.8}}

	out, err := h.Handle(context.Background(), model.Snapshot{UserMessage: "hi there"})
	require.NoError(t, err)
	assert.Equal(t, "Hello! How are you today?", out.Answer)

	call := fake.Calls()[0]
	assert.Equal(t, "hi there", call.Messages[len(call.Messages)-1].Content)
	assert.NotContains(t, call.Human(), "Recent conversation")
	assert.Nil(t, call.Options.MaxTokens)
}

func TestHandlersPropagateGenerationError(t *testing.T) {
	handlers := []func(*llmtest.Fake) Handler{
		func(f *llmtest.Fake) Handler { return &Summarizer{LLM: f} },
		func(f *llmtest.Fake) Handler { return &PrescriptionSuggester{LLM: f} },
		func(f *llmtest.Fake) Handler { return &GeneralChat{LLM: f} },
	}
	for _, build := range handlers {
		h := build(llmtest.Failing(errx.KindMalformed, 0))
		t.Run(h.Name(), func(t *testing.T) {
			out, err := h.Handle(context.Background(), model.Snapshot{History: history(2), UserMessage: "x"})
			require.Error(t, err)
			assert.Empty(t, out.Answer)
			assert.ErrorIs(t, err, errx.ErrGeneration)
		})
	}
}
