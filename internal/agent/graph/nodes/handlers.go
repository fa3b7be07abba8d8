package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"

	"github.com/soulra/clinical-router/internal/agent/graph/conversations"
	"github.com/soulra/clinical-router/internal/agent/graph/prompts"
	"github.com/soulra/clinical-router/internal/agent/graph/tools"
	"github.com/soulra/clinical-router/internal/agent/llm"
	"github.com/soulra/clinical-router/internal/agent/model"
	logx "github.com/soulra/clinical-router/pkg/logger"
)

// Output is what a handler produces: the answer plus its own diagnostics.
type Output struct {
	Answer string
	Debug  map[string]any
}

// Handler answers a request from a read-only snapshot of the state.
// Generation failures are returned, never swallowed.
type Handler interface {
	Name() string
	Handle(ctx context.Context, snap model.Snapshot) (Output, error)
}

// NewHandlerNode wraps h as a terminal graph lambda. The state lock is only
// held while copying the snapshot and while writing the answer.
func NewHandlerNode(h Handler) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *model.Classification) (*model.State, error) {
		var snap model.Snapshot
		if err := compose.ProcessState(ctx, func(_ context.Context, s *model.State) error {
			snap = s.Snapshot()
			return nil
		}); err != nil {
			return nil, fmt.Errorf("read state: %w", err)
		}

		out, err := h.Handle(ctx, snap)
		if err != nil {
			logx.Error().Err(err).Str("request_id", snap.RequestID).Str("node", h.Name()).Msg("Handler failed")
			return nil, err
		}

		var final *model.State
		err = compose.ProcessState(ctx, func(_ context.Context, s *model.State) error {
			if err := s.SetAnswer(h.Name(), out.Answer); err != nil {
				return err
			}
			addDebug(s, model.DebugHandler, h.Name())
			for k, v := range out.Debug {
				addDebug(s, k, v)
			}
			final = s
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("write answer: %w", err)
		}
		return final, nil
	})
}

// =========== Summarizer ===========

type Summarizer struct {
	LLM    llm.Client
	Config model.SummaryConfig
}

func (h *Summarizer) Name() string { return NodeSummarizer }

func (h *Summarizer) Handle(ctx context.Context, snap model.Snapshot) (Output, error) {
	msgs, err := prompts.RenderSummary(ctx, prompts.SummaryInput{
		Transcript:  conversations.FormatTranscript(snap.History),
		UserMessage: snap.UserMessage,
	})
	if err != nil {
		return Output{}, fmt.Errorf("render summary prompt: %w", err)
	}
	answer, err := h.LLM.Generate(ctx, msgs,
		llm.WithTemperature(h.Config.Temperature),
		llm.WithMaxTokens(h.Config.MaxTokens),
	)
	if err != nil {
		return Output{}, err
	}
	return Output{Answer: strings.TrimSpace(answer)}, nil
}

// =========== PrescriptionSuggester ===========

// PrescriptionSuggester proposes prescription changes from the recent
// transcript, the latest prescription and an optional guideline lookup.
type PrescriptionSuggester struct {
	LLM        llm.Client
	Guidelines tool.InvokableTool
	Config     model.PrescriptionConfig
	MaxResults int
}

func (h *PrescriptionSuggester) Name() string { return NodePrescription }

func (h *PrescriptionSuggester) Handle(ctx context.Context, snap model.Snapshot) (Output, error) {
	guidelines, searchStatus := h.lookup(ctx, snap.RequestID)
	transcript := conversations.FormatTranscript(conversations.TrimTail(snap.History, h.Config.MaxMessages))

	latest := ""
	if snap.LatestPrescription != nil {
		latest = snap.LatestPrescription.Content
	}
	msgs, err := prompts.RenderPrescription(ctx, prompts.PrescriptionInput{
		Transcript:         transcript,
		LatestPrescription: latest,
		Guidelines:         guidelines,
		UserMessage:        snap.UserMessage,
	})
	if err != nil {
		return Output{}, fmt.Errorf("render prescription prompt: %w", err)
	}
	answer, err := h.LLM.Generate(ctx, msgs,
		llm.WithTemperature(h.Config.Temperature),
		llm.WithMaxTokens(h.Config.MaxTokens),
	)
	if err != nil {
		return Output{}, err
	}
	return Output{
		Answer: strings.TrimSpace(answer),
		Debug:  map[string]any{model.DebugGuidelineSearch: searchStatus},
	}, nil
}

// lookup never fails: any search error degrades to empty guideline text.
func (h *PrescriptionSuggester) lookup(ctx context.Context, requestID string) (string, string) {
	if h.Guidelines == nil {
		return "", "disabled"
	}
	text, err := tools.Lookup(ctx, h.Guidelines, h.Config.GuidelineQuery, h.MaxResults)
	if errors.Is(err, tools.ErrSearchDisabled) {
		return "", "disabled"
	}
	if err != nil {
		logx.Warn().Err(err).Str("request_id", requestID).Msg("Guideline search failed; continuing without guidelines")
		return "", "error"
	}
	if text == "" {
		return "", "empty"
	}
	return text, "ok"
}

// =========== GeneralChat ===========

type GeneralChat struct {
	LLM    llm.Client
	Config model.GeneralConfig
}

func (h *GeneralChat) Name() string { return NodeGeneralChat }

func (h *GeneralChat) Handle(ctx context.Context, snap model.Snapshot) (Output, error) {
	msgs, err := prompts.RenderGeneral(ctx, prompts.GeneralInput{
		Transcript:  conversations.FormatTranscript(snap.History),
		UserMessage: snap.UserMessage,
	})
	if err != nil {
		return Output{}, fmt.Errorf("render general prompt: %w", err)
	}
	answer, err := h.LLM.Generate(ctx, msgs,
		llm.WithTemperature(h.Config.Temperature),
		llm.WithMaxTokens(h.Config.MaxTokens),
	)
	if err != nil {
		return Output{}, err
	}
	return Output{Answer: strings.TrimSpace(answer)}, nil
}
