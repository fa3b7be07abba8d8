package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/soulra/clinical-router/internal/core/error"
)

func initState(t *testing.T) *State {
	t.Helper()
	s := NewState()
	require.NoError(t, s.Init(QueryInput{RequestID: "req-1", ConversationID: "conv-1", Message: "hello"}))
	return s
}

func TestStateInit(t *testing.T) {
	s := initState(t)
	assert.Equal(t, "req-1", s.RequestID())
	assert.Equal(t, Scope{ConversationID: "conv-1"}, s.Scope())
	assert.Equal(t, "hello", s.UserMessage())
	assert.Empty(t, s.Intent())
	assert.False(t, s.Answered())

	assert.ErrorIs(t, s.Init(QueryInput{ConversationID: "other", Message: "x"}), ErrStateInitialized)
	assert.Equal(t, "conv-1", s.Scope().ConversationID)
}

func TestStateInitValidation(t *testing.T) {
	tests := []struct {
		name string
		in   QueryInput
		want error
	}{
		{name: "no scope", in: QueryInput{Message: "hi"}, want: errx.ErrMissingScope},
		{name: "blank message", in: QueryInput{ConversationID: "c1", Message: "  "}, want: errx.ErrEmptyMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, NewState().Init(tt.in), tt.want)
		})
	}

	// malformed scopes still initialise; the orchestrator degrades them
	require.NoError(t, NewState().Init(QueryInput{PatientID: "p1", Message: "hi"}))
}

func TestStateIntentIsSetOnce(t *testing.T) {
	s := initState(t)

	assert.Error(t, s.SetIntent("summarize"))
	require.NoError(t, s.SetIntent(IntentSummary))
	assert.ErrorIs(t, s.SetIntent(IntentGeneral), ErrIntentSet)
	assert.Equal(t, IntentSummary, s.Intent())
}

func TestStateAnswerIsSetOnce(t *testing.T) {
	s := initState(t)

	assert.ErrorIs(t, s.SetAnswer("general_chat", "hi"), ErrIntentMissing)
	require.NoError(t, s.SetIntent(IntentGeneral))
	require.NoError(t, s.SetAnswer("general_chat", "hi"))
	assert.ErrorIs(t, s.SetAnswer("summarizer", "other"), ErrAnswerSet)
	assert.Equal(t, "hi", s.Answer())
	assert.Equal(t, "general_chat", s.AnsweredBy())
}

func TestStateContextCopies(t *testing.T) {
	s := initState(t)
	history := []Message{{ID: "m1", Sender: SenderDoctor, Text: "note"}}
	rx := &Prescription{ID: "rx1", Content: "sertraline 50mg"}

	require.NoError(t, s.SetContext(&ConversationContext{History: history, LatestPrescription: rx}))
	assert.ErrorIs(t, s.SetContext(&ConversationContext{}), ErrContextLoaded)

	history[0].Text = "mutated"
	rx.Content = "mutated"
	got := s.History()
	got[0].Text = "mutated again"

	assert.Equal(t, "note", s.History()[0].Text)
	assert.Equal(t, "sertraline 50mg", s.LatestPrescription().Content)
}

func TestStateDebugIsAppendOnly(t *testing.T) {
	s := initState(t)

	assert.True(t, s.AddDebug(DebugConversationExists, false))
	assert.False(t, s.AddDebug(DebugConversationExists, true))

	d := s.Debug()
	assert.Equal(t, false, d[DebugConversationExists])
	d["extra"] = 1
	assert.NotContains(t, s.Debug(), "extra")
}

func TestSnapshot(t *testing.T) {
	s := initState(t)
	require.NoError(t, s.SetContext(&ConversationContext{History: []Message{{ID: "m1"}}}))
	require.NoError(t, s.SetIntent(IntentSummary))

	snap := s.Snapshot()
	assert.Equal(t, "hello", snap.UserMessage)
	assert.Equal(t, IntentSummary, snap.Intent)
	assert.Len(t, snap.History, 1)
	assert.Nil(t, snap.LatestPrescription)
}
