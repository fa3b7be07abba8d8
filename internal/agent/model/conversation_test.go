package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	errx "github.com/soulra/clinical-router/internal/core/error"
)

func TestScopeValidate(t *testing.T) {
	tests := []struct {
		name  string
		scope Scope
		want  error
	}{
		{name: "conversation id", scope: Scope{ConversationID: "65f1c0ffee0123456789abcd"}},
		{name: "patient doctor pair", scope: Scope{PatientID: "p-1", DoctorID: "d-1"}},
		{name: "empty", scope: Scope{}, want: errx.ErrMissingScope},
		{name: "partial pair", scope: Scope{PatientID: "p-1"}, want: errx.ErrInvalidScope},
		{name: "illegal characters", scope: Scope{ConversationID: "a b/c"}, want: errx.ErrInvalidScope},
		{name: "injection attempt", scope: Scope{ConversationID: "x:*"}, want: errx.ErrInvalidScope},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestScopeKeyRoundTrip(t *testing.T) {
	pair := Scope{PatientID: "p1", DoctorID: "d1"}
	assert.Equal(t, "patient:p1:doctor:d1", pair.Key())
	assert.Equal(t, pair, ParseScopeKey(pair.Key()))

	conv := Scope{ConversationID: "conv-9"}
	assert.Equal(t, conv, ParseScopeKey(conv.Key()))
}

func TestWindowSince(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now.AddDate(0, 0, -7), Window{Days: 7}.Since(now))
	assert.True(t, Window{}.Since(now).IsZero())
}

func TestIntentValid(t *testing.T) {
	for _, i := range Intents {
		assert.True(t, i.Valid(), i)
	}
	assert.False(t, Intent("summarize").Valid())
	assert.True(t, IntentSummary.RequiresHistory())
	assert.True(t, IntentPrescription.RequiresHistory())
	assert.False(t, IntentGeneral.RequiresHistory())

	_, err := ParseIntent("chat")
	assert.Error(t, err)
}

func TestGuidelineResultText(t *testing.T) {
	var empty *GuidelineResult
	assert.Empty(t, empty.Text())

	r := &GuidelineResult{Snippets: []GuidelineSnippet{
		{Title: "Depression", Text: "First-line SSRIs.", URL: "https://example.org/a"},
		{Text: "   "},
		{Text: "CBT is recommended."},
	}}
	assert.Equal(t, "- Depression: First-line SSRIs. (https://example.org/a)\n- CBT is recommended.", r.Text())
}
