package nodes

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulra/clinical-router/internal/agent/graph/conversations"
	"github.com/soulra/clinical-router/internal/agent/graph/parsers"
	"github.com/soulra/clinical-router/internal/agent/llm/llmtest"
	"github.com/soulra/clinical-router/internal/agent/model"
	"github.com/soulra/clinical-router/internal/agent/repo"
	errx "github.com/soulra/clinical-router/internal/core/error"
	"github.com/soulra/clinical-router/internal/metrics"
)

var (
	now   = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	scope = model.Scope{ConversationID: "conv-1"}
)

func seeded(t *testing.T, n int) *repo.MemoryStore {
	t.Helper()
	store := repo.NewMemoryStore().WithClock(func() time.Time { return now })
	for i := 0; i < n; i++ {
		store.Seed(scope, model.Message{
			ID:        fmt.Sprintf("m%02d", i),
			Sender:    model.SenderPatient,
			Text:      fmt.Sprintf("note-%02d", i),
			Timestamp: now.Add(-time.Duration(n-i) * time.Hour),
		})
	}
	return store
}

func newOrchestrator(t *testing.T, store model.ContextStore, fake *llmtest.Fake, m *metrics.Metrics) *Orchestrator {
	t.Helper()
	parser, err := parsers.NewIntentParser(nil)
	require.NoError(t, err)
	return &Orchestrator{
		Manager: conversations.NewMessagesManager(store, model.ConversationConfig{WindowDays: 7, MaxMessages: 28}),
		LLM:     fake,
		Parser:  parser,
		Config:  model.ClassifierConfig{Temperature: 0, MaxTokens: 16},
		Metrics: m,
	}
}

func input(msg string) model.QueryInput {
	return model.QueryInput{RequestID: "req-1", ConversationID: scope.ConversationID, Message: msg}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		history    int
		raw        string
		want       model.Intent
		overridden bool
		match      string
	}{
		{name: "exact summary", history: 5, raw: "summary", want: model.IntentSummary, match: "exact"},
		{name: "verbose summary", history: 5, raw: "I would summarize this.", want: model.IntentSummary, match: "substring"},
		{name: "treatment", history: 5, raw: "Treatment change requested", want: model.IntentPrescription, match: "substring"},
		{name: "general substring", history: 5, raw: "General conversation detected", want: model.IntentGeneral, match: "substring"},
		{name: "unmatched defaults", history: 5, raw: "banana", want: model.IntentGeneral, match: "default"},
		{name: "empty history overrides", history: 0, raw: "summarize", want: model.IntentGeneral, overridden: true, match: "exact"},
		{name: "empty history general stays", history: 0, raw: "chat", want: model.IntentGeneral, match: "exact"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.NewMetrics()
			fake := llmtest.Texts(tt.raw)
			o := newOrchestrator(t, seeded(t, tt.history), fake, m)

			out, err := o.Classify(context.Background(), input("what now?"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Intent)
			assert.Equal(t, tt.overridden, out.Overridden)
			assert.Equal(t, tt.match, out.Match)
			assert.Equal(t, tt.raw, out.Raw)
			assert.Len(t, out.Context.History, tt.history)

			override := 0.0
			if tt.overridden {
				override = 1
			}
			assert.Equal(t, override, testutil.ToFloat64(m.IntentOverridesTotal))
		})
	}
}

func TestClassifyUsesClassifierOptions(t *testing.T) {
	fake := llmtest.Texts("summary")
	o := newOrchestrator(t, seeded(t, 2), fake, nil)

	_, err := o.Classify(context.Background(), input("Can you summarize the last week?"))
	require.NoError(t, err)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Options.Temperature)
	assert.Equal(t, float32(0), *calls[0].Options.Temperature)
	require.NotNil(t, calls[0].Options.MaxTokens)
	assert.Equal(t, 16, *calls[0].Options.MaxTokens)
	assert.Contains(t, calls[0].System(), "summary")
}

func TestClassifyPropagatesGenerationError(t *testing.T) {
	fake := llmtest.Failing(errx.KindStatus, 503)
	o := newOrchestrator(t, seeded(t, 2), fake, nil)

	out, err := o.Classify(context.Background(), input("hello"))
	require.Error(t, err)
	assert.Nil(t, out)

	genErr, ok := errx.AsGenerationError(err)
	require.True(t, ok)
	assert.Equal(t, errx.KindStatus, genErr.Kind)
	assert.Equal(t, 503, genErr.StatusCode)
}

type brokenStore struct{ model.ContextStore }

func (brokenStore) LoadHistory(context.Context, model.Scope, model.Window) ([]model.Message, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) LoadLatestPrescription(context.Context, model.Scope) (*model.Prescription, error) {
	return nil, errors.New("connection refused")
}

func TestClassifyDegradesOnStoreFailure(t *testing.T) {
	m := metrics.NewMetrics()
	o := newOrchestrator(t, brokenStore{}, llmtest.Texts("prescription"), m)

	out, err := o.Classify(context.Background(), input("Suggest a prescription"))
	require.NoError(t, err)
	assert.Equal(t, model.IntentGeneral, out.Intent)
	assert.True(t, out.Overridden)
	assert.ErrorIs(t, out.Context.Cause, errx.ErrContextLoad)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContextFallbacksTotal))
}

func TestOrchestratorStateHandlers(t *testing.T) {
	ctx := context.Background()
	s := model.NewState()

	_, err := NewOrchestratorPreHandler()(ctx, input("hello"), s)
	require.NoError(t, err)
	assert.Equal(t, "req-1", s.RequestID())

	cls := &model.Classification{
		Intent:     model.IntentGeneral,
		Raw:        "summary or chat",
		Match:      "substring",
		Candidates: []model.Intent{model.IntentSummary, model.IntentGeneral},
		Overridden: true,
		Context:    &model.ConversationContext{History: []model.Message{}, Cause: errx.ErrInvalidScope},
	}
	_, err = NewOrchestratorPostHandler()(ctx, cls, s)
	require.NoError(t, err)

	assert.Equal(t, model.IntentGeneral, s.Intent())
	dbg := s.Debug()
	assert.Equal(t, "general", dbg[model.DebugOrchestratorIntent])
	assert.Equal(t, false, dbg[model.DebugConversationExists])
	assert.Equal(t, "summary or chat", dbg[model.DebugClassifierRaw])
	assert.Equal(t, true, dbg[model.DebugClassifierAmbig])
	assert.Equal(t, true, dbg[model.DebugIntentOverridden])
	assert.Equal(t, 0, dbg[model.DebugHistoryCount])
	assert.Equal(t, false, dbg[model.DebugPrescriptionFound])
	assert.Equal(t, errx.ErrInvalidScope.Error(), dbg[model.DebugContextError])

	// Intent is write-once.
	_, err = NewOrchestratorPostHandler()(ctx, cls, s)
	assert.Error(t, err)
}

func TestOrchestratorPreHandlerRejectsInvalidInput(t *testing.T) {
	_, err := NewOrchestratorPreHandler()(context.Background(), model.QueryInput{Message: "hi"}, model.NewState())
	assert.ErrorIs(t, err, errx.ErrMissingScope)
}
