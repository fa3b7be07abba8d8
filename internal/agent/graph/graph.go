package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"

	"github.com/soulra/clinical-router/internal/agent/graph/conversations"
	"github.com/soulra/clinical-router/internal/agent/graph/nodes"
	"github.com/soulra/clinical-router/internal/agent/graph/observers"
	"github.com/soulra/clinical-router/internal/agent/graph/parsers"
	"github.com/soulra/clinical-router/internal/agent/llm"
	"github.com/soulra/clinical-router/internal/agent/model"
	errx "github.com/soulra/clinical-router/internal/core/error"
	"github.com/soulra/clinical-router/internal/metrics"
	logx "github.com/soulra/clinical-router/pkg/logger"
)

const (
	graphName = "ClinicalRouter"
	// The graph is acyclic: orchestrator then exactly one handler.
	maxRunSteps = 10
)

// routes is the transition table from intent to terminal handler node.
var routes = map[model.Intent]string{
	model.IntentSummary:      nodes.NodeSummarizer,
	model.IntentPrescription: nodes.NodePrescription,
	model.IntentGeneral:      nodes.NodeGeneralChat,
}

// ErrNoRoute is returned by Route for a label outside the intent set.
var ErrNoRoute = errors.New("no route for intent")

// Route returns the handler node for intent.
func Route(intent model.Intent) (string, error) {
	node, ok := routes[intent]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrNoRoute, intent)
	}
	return node, nil
}

// Runner executes the compiled workflow for one request and returns the
// completed state.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (*model.State, error)
}

// Config holds everything needed to compose the full response graph end-to-end.
// This is a convenience layer over GraphConfig that also constructs the
// MessagesManager, the intent parser and the handlers.
type Config struct {
	LLM          llm.Client
	Store        model.ContextStore
	Guidelines   tool.InvokableTool
	Conversation model.ConversationConfig
	Classifier   model.ClassifierConfig
	Summary      model.SummaryConfig
	Prescription model.PrescriptionConfig
	General      model.GeneralConfig
	Search       model.GuidelineSearchConfig
	Metrics      *metrics.Metrics
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	Orchestrator *nodes.Orchestrator
	Handlers     map[model.Intent]nodes.Handler
}

// GraphBuilder handles the construction of the routing graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *model.State]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *model.State]
	metrics  *metrics.Metrics
}

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (*model.State, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks(r.metrics)...))
	if err != nil {
		r.metrics.ObserveWorkflow("", "error", time.Since(start))
		// Surface the provider failure itself rather than the graph's wrapping.
		if genErr, ok := errx.AsGenerationError(err); ok {
			return nil, genErr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if out == nil || !out.Answered() {
		r.metrics.ObserveWorkflow("", "error", time.Since(start))
		return nil, fmt.Errorf("workflow finished without an answer")
	}

	r.metrics.ObserveWorkflow(out.Intent().String(), "success", time.Since(start))
	logx.Info().
		Str("request_id", out.RequestID()).
		Str("scope", out.Scope().Key()).
		Str("intent", out.Intent().String()).
		Str("handler", out.AnsweredBy()).
		Dur("elapsed", time.Since(start)).
		Msg("Workflow completed")
	return out, nil
}

// BuildResponseGraph composes the MessagesManager, parser and handlers, builds
// the graph, and returns a Runner.
func BuildResponseGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("llm client is nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("context store is nil")
	}

	priority, err := parsers.ParsePriority(cfg.Classifier.Priority)
	if err != nil {
		return nil, err
	}
	parser, err := parsers.NewIntentParser(priority)
	if err != nil {
		return nil, err
	}

	mm := conversations.NewMessagesManager(cfg.Store, cfg.Conversation)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		Orchestrator: &nodes.Orchestrator{
			Manager: mm,
			LLM:     cfg.LLM,
			Parser:  parser,
			Config:  cfg.Classifier,
			Metrics: cfg.Metrics,
		},
		Handlers: map[model.Intent]nodes.Handler{
			model.IntentSummary: &nodes.Summarizer{LLM: cfg.LLM, Config: cfg.Summary},
			model.IntentPrescription: &nodes.PrescriptionSuggester{
				LLM:        cfg.LLM,
				Guidelines: cfg.Guidelines,
				Config:     cfg.Prescription,
				MaxResults: cfg.Search.MaxResults,
			},
			model.IntentGeneral: &nodes.GeneralChat{LLM: cfg.LLM, Config: cfg.General},
		},
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().
		Str("provider", cfg.LLM.Provider()).
		Str("model", cfg.LLM.Model()).
		Msg("Response graph built successfully")
	return &graphRunner{runnable: runnable, metrics: cfg.Metrics}, nil
}

// BuildGraph constructs and returns the compiled routing graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *model.State], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Orchestrator == nil || config.Orchestrator.Manager == nil ||
		config.Orchestrator.LLM == nil || config.Orchestrator.Parser == nil {
		return nil, fmt.Errorf("orchestrator is not properly initialized")
	}
	for _, intent := range model.Intents {
		if config.Handlers[intent] == nil {
			return nil, fmt.Errorf("no handler for intent %q", intent)
		}
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *model.State](
			compose.WithGenLocalState(func(ctx context.Context) *model.State {
				return model.NewState()
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds the orchestrator and one terminal node per intent
func (b *GraphBuilder) addNodes() error {
	err := b.graph.AddLambdaNode(nodes.NodeOrchestrator,
		nodes.NewOrchestratorNode(b.config.Orchestrator),
		compose.WithNodeName(nodes.NodeOrchestrator),
		compose.WithStatePreHandler(nodes.NewOrchestratorPreHandler()),
		compose.WithStatePostHandler(nodes.NewOrchestratorPostHandler()),
	)
	if err != nil {
		return fmt.Errorf("add orchestrator node: %w", err)
	}

	for _, intent := range model.Intents {
		name := routes[intent]
		if err := b.graph.AddLambdaNode(name,
			nodes.NewHandlerNode(b.config.Handlers[intent]),
			compose.WithNodeName(name),
		); err != nil {
			return fmt.Errorf("add %s node: %w", name, err)
		}
	}
	return nil
}

// addEdges connects START to the orchestrator and every handler to END
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{{compose.START, nodes.NodeOrchestrator}}
	for _, intent := range model.Intents {
		edges = append(edges, [2]string{routes[intent], compose.END})
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("add edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates the intent routing branch
func (b *GraphBuilder) addBranches() error {
	endNodes := make(map[string]bool, len(routes))
	for _, node := range routes {
		endNodes[node] = true
	}

	intentBranch := compose.NewGraphBranch(
		func(ctx context.Context, c *model.Classification) (string, error) {
			if c == nil {
				return "", fmt.Errorf("missing classification")
			}
			return Route(c.Intent)
		},
		endNodes,
	)
	if err := b.graph.AddBranch(nodes.NodeOrchestrator, intentBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding intent branch")
		return fmt.Errorf("error adding intent branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *model.State], error) {
	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName(graphName),
		compose.WithMaxRunSteps(maxRunSteps),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
