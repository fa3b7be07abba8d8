package model

import "fmt"

// Intent is the closed set of labels that decides which handler answers a request.
type Intent string

const (
	IntentSummary      Intent = "summary"
	IntentPrescription Intent = "prescription"
	IntentGeneral      Intent = "general"
)

// Intents lists every routable label.
var Intents = []Intent{IntentSummary, IntentPrescription, IntentGeneral}

// Valid reports whether i is a member of the closed label set.
func (i Intent) Valid() bool {
	switch i {
	case IntentSummary, IntentPrescription, IntentGeneral:
		return true
	}
	return false
}

// RequiresHistory reports whether the handler for i needs conversation history.
func (i Intent) RequiresHistory() bool {
	return i == IntentSummary || i == IntentPrescription
}

func (i Intent) String() string {
	return string(i)
}

// ParseIntent accepts only the canonical labels.
func ParseIntent(s string) (Intent, error) {
	i := Intent(s)
	if !i.Valid() {
		return "", fmt.Errorf("unknown intent %q", s)
	}
	return i, nil
}
