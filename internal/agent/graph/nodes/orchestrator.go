package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/soulra/clinical-router/internal/agent/graph/conversations"
	"github.com/soulra/clinical-router/internal/agent/graph/parsers"
	"github.com/soulra/clinical-router/internal/agent/graph/prompts"
	"github.com/soulra/clinical-router/internal/agent/llm"
	"github.com/soulra/clinical-router/internal/agent/model"
	"github.com/soulra/clinical-router/internal/metrics"
	logx "github.com/soulra/clinical-router/pkg/logger"
)

// Orchestrator loads conversation context and resolves the request intent.
type Orchestrator struct {
	Manager *conversations.MessagesManager
	LLM     llm.Client
	Parser  *parsers.IntentParser
	Config  model.ClassifierConfig
	Metrics *metrics.Metrics
}

// Classify runs the orchestrator algorithm for one request. Context load
// failures are recovered to an empty context; a classifier GenerationError is
// returned as is.
func (o *Orchestrator) Classify(ctx context.Context, in model.QueryInput) (*model.Classification, error) {
	scope := in.Scope()

	cc, err := o.Manager.LoadContext(ctx, scope)
	if err != nil {
		return nil, err
	}
	if cc.Cause != nil {
		o.Metrics.IncContextFallback()
	}

	msgs, err := prompts.RenderClassifier(ctx, in.Message)
	if err != nil {
		return nil, fmt.Errorf("render classifier prompt: %w", err)
	}
	raw, err := o.LLM.Generate(ctx, msgs,
		llm.WithTemperature(o.Config.Temperature),
		llm.WithMaxTokens(o.Config.MaxTokens),
	)
	if err != nil {
		logx.Error().Err(err).Str("request_id", in.RequestID).Str("node", NodeOrchestrator).Msg("Intent classification failed")
		return nil, err
	}

	match := o.Parser.Parse(raw)
	out := &model.Classification{
		Intent:     match.Intent,
		Raw:        raw,
		Match:      string(match.Kind),
		Candidates: match.Candidates,
		Context:    cc,
	}

	if cc.Empty() && out.Intent != model.IntentGeneral {
		logx.Debug().
			Str("request_id", in.RequestID).
			Str("classified", out.Intent.String()).
			Msg("No conversation history; routing to general chat")
		out.Intent = model.IntentGeneral
		out.Overridden = true
		o.Metrics.IncIntentOverride()
	}

	logx.Debug().
		Str("request_id", in.RequestID).
		Str("scope", scope.Key()).
		Str("intent", out.Intent.String()).
		Str("match", out.Match).
		Int("history_count", len(cc.History)).
		Bool("overridden", out.Overridden).
		Msg("Intent resolved")
	return out, nil
}

// NewOrchestratorPreHandler initialises the request state from the input.
func NewOrchestratorPreHandler() func(context.Context, model.QueryInput, *model.State) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.State) (model.QueryInput, error) {
		if err := s.Init(in); err != nil {
			return in, err
		}
		return in, nil
	}
}

// NewOrchestratorNode wraps Classify as a graph lambda.
func NewOrchestratorNode(o *Orchestrator) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.QueryInput) (*model.Classification, error) {
		return o.Classify(ctx, in)
	})
}

// NewOrchestratorPostHandler copies the classification into state and
// records the orchestrator diagnostics.
func NewOrchestratorPostHandler() func(context.Context, *model.Classification, *model.State) (*model.Classification, error) {
	return func(ctx context.Context, out *model.Classification, s *model.State) (*model.Classification, error) {
		if out == nil {
			return nil, fmt.Errorf("orchestrator returned no classification")
		}
		if err := s.SetContext(out.Context); err != nil {
			return nil, err
		}
		if err := s.SetIntent(out.Intent); err != nil {
			return nil, err
		}

		cc := out.Context
		addDebug(s, model.DebugOrchestratorIntent, out.Intent.String())
		addDebug(s, model.DebugConversationExists, !cc.Empty())
		addDebug(s, model.DebugClassifierRaw, out.Raw)
		addDebug(s, model.DebugClassifierMatch, out.Match)
		addDebug(s, model.DebugClassifierAmbig, out.Ambiguous())
		addDebug(s, model.DebugIntentOverridden, out.Overridden)
		if cc != nil {
			addDebug(s, model.DebugHistoryCount, len(cc.History))
			addDebug(s, model.DebugPrescriptionFound, cc.LatestPrescription != nil)
			if cc.Cause != nil {
				addDebug(s, model.DebugContextError, cc.Cause.Error())
			}
		}
		return out, nil
	}
}

func addDebug(s *model.State, key string, value any) {
	if !s.AddDebug(key, value) {
		logx.Warn().Str("request_id", s.RequestID()).Str("key", key).Msg("Debug key already set; keeping first value")
	}
}
