package model

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	errx "github.com/soulra/clinical-router/internal/core/error"
)

var (
	ErrStateInitialized = errors.New("state already initialized")
	ErrContextLoaded    = errors.New("conversation context already loaded")
	ErrIntentSet        = errors.New("intent already set")
	ErrAnswerSet        = errors.New("answer already written")
	ErrIntentMissing    = errors.New("intent not set")
)

// Debug keys written by the orchestrator and the API layer.
const (
	DebugOrchestratorIntent = "orchestrator_intent"
	DebugConversationExists = "conversation_exists"
	DebugClassifierRaw      = "classifier_raw"
	DebugClassifierMatch    = "classifier_match"
	DebugClassifierAmbig    = "classifier_ambiguous"
	DebugIntentOverridden   = "intent_overridden"
	DebugHistoryCount       = "history_count"
	DebugPrescriptionFound  = "prescription_found"
	DebugContextError       = "context_error"
	DebugHandler            = "handler"
	DebugGuidelineSearch    = "guideline_search"
	DebugExchangePersisted  = "exchange_persisted"
)

// QueryInput is the inbound request handed to the workflow.
type QueryInput struct {
	RequestID      string `json:"request_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	PatientID      string `json:"patient_id,omitempty"`
	DoctorID       string `json:"doctor_id,omitempty"`
	Message        string `json:"message"`
}

// Scope extracts the scope identifier from the input.
func (in QueryInput) Scope() Scope {
	return Scope{
		ConversationID: strings.TrimSpace(in.ConversationID),
		PatientID:      strings.TrimSpace(in.PatientID),
		DoctorID:       strings.TrimSpace(in.DoctorID),
	}
}

// Validate rejects requests that cannot be run at all. A malformed scope is
// accepted here; the orchestrator degrades it to an empty context.
func (in QueryInput) Validate() error {
	if in.Scope().IsZero() {
		return errx.ErrMissingScope
	}
	if strings.TrimSpace(in.Message) == "" {
		return errx.ErrEmptyMessage
	}
	return nil
}

// State is the per-request record threaded through the workflow graph.
// It is registered as graph local state via compose.WithGenLocalState, so a
// fresh instance exists per invocation and is never shared across requests.
// Every field is write-once; reads return copies.
type State struct {
	requestID   string
	scope       Scope
	userMessage string
	initialized bool

	history            []Message
	latestPrescription *Prescription
	contextLoaded      bool

	intent Intent

	answer     string
	answeredBy string
	answered   bool

	debug map[string]any
}

// NewState returns an empty state; Init populates the input fields.
func NewState() *State {
	return &State{debug: map[string]any{}}
}

// Init sets the immutable input fields.
func (s *State) Init(in QueryInput) error {
	if s.initialized {
		return ErrStateInitialized
	}
	if err := in.Validate(); err != nil {
		return err
	}
	s.requestID = in.RequestID
	s.scope = in.Scope()
	s.userMessage = in.Message
	s.initialized = true
	return nil
}

func (s *State) RequestID() string   { return s.requestID }
func (s *State) Scope() Scope        { return s.scope }
func (s *State) UserMessage() string { return s.userMessage }

// SetContext stores the loaded history and latest prescription once.
func (s *State) SetContext(cc *ConversationContext) error {
	if s.contextLoaded {
		return ErrContextLoaded
	}
	s.contextLoaded = true
	if cc == nil {
		return nil
	}
	s.history = append([]Message(nil), cc.History...)
	if cc.LatestPrescription != nil {
		rx := *cc.LatestPrescription
		s.latestPrescription = &rx
	}
	return nil
}

// History returns a copy of the loaded history, oldest first.
func (s *State) History() []Message {
	return append([]Message(nil), s.history...)
}

// LatestPrescription returns a copy of the latest prescription, or nil.
func (s *State) LatestPrescription() *Prescription {
	if s.latestPrescription == nil {
		return nil
	}
	rx := *s.latestPrescription
	return &rx
}

// SetIntent records the resolved intent exactly once. Only members of the
// closed label set are accepted.
func (s *State) SetIntent(i Intent) error {
	if s.intent != "" {
		return ErrIntentSet
	}
	if !i.Valid() {
		return fmt.Errorf("set intent: unknown intent %q", i)
	}
	s.intent = i
	return nil
}

func (s *State) Intent() Intent { return s.intent }

// SetAnswer records the final answer exactly once, attributing it to handler.
func (s *State) SetAnswer(handler, answer string) error {
	if s.answered {
		return ErrAnswerSet
	}
	if s.intent == "" {
		return ErrIntentMissing
	}
	s.answer = answer
	s.answeredBy = handler
	s.answered = true
	return nil
}

func (s *State) Answer() string     { return s.answer }
func (s *State) AnsweredBy() string { return s.answeredBy }
func (s *State) Answered() bool     { return s.answered }

// AddDebug appends a diagnostic entry. Existing keys are kept; the return
// value reports whether the entry was added.
func (s *State) AddDebug(key string, value any) bool {
	if s.debug == nil {
		s.debug = map[string]any{}
	}
	if _, exists := s.debug[key]; exists {
		return false
	}
	s.debug[key] = value
	return true
}

// Debug returns a copy of the diagnostic map.
func (s *State) Debug() map[string]any {
	return maps.Clone(s.debug)
}

// Snapshot is a read-only copy of the state handed to handler nodes.
type Snapshot struct {
	RequestID          string
	Scope              Scope
	UserMessage        string
	History            []Message
	LatestPrescription *Prescription
	Intent             Intent
}

// Snapshot copies the fields a handler may read.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		RequestID:          s.requestID,
		Scope:              s.scope,
		UserMessage:        s.userMessage,
		History:            s.History(),
		LatestPrescription: s.LatestPrescription(),
		Intent:             s.intent,
	}
}

// Classification is the orchestrator node output. Its post-handler copies it
// into State; the routing branch reads Intent from it.
type Classification struct {
	Intent     Intent
	Raw        string
	Match      string
	Candidates []Intent
	Overridden bool
	Context    *ConversationContext
}

// Ambiguous reports whether the raw output matched more than one label.
func (c *Classification) Ambiguous() bool {
	return c != nil && len(c.Candidates) > 1
}
