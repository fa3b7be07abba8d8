package model

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	errx "github.com/soulra/clinical-router/internal/core/error"
)

// Sender identifies who authored a stored message.
type Sender string

const (
	SenderPatient   Sender = "patient"
	SenderDoctor    Sender = "doctor"
	SenderUser      Sender = "user"
	SenderAssistant Sender = "ai"
)

// Message is one stored conversation turn.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Prescription is the latest prescription recorded for a scope.
type Prescription struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

var scopeIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// Scope bounds every store query for a request: either a conversation id or a
// patient/doctor pair.
type Scope struct {
	ConversationID string `json:"conversation_id,omitempty"`
	PatientID      string `json:"patient_id,omitempty"`
	DoctorID       string `json:"doctor_id,omitempty"`
}

// IsZero reports whether no identifier was supplied at all.
func (s Scope) IsZero() bool {
	return s.ConversationID == "" && s.PatientID == "" && s.DoctorID == ""
}

// Key is the canonical storage key for the scope.
func (s Scope) Key() string {
	if s.ConversationID != "" {
		return s.ConversationID
	}
	return fmt.Sprintf("patient:%s:doctor:%s", s.PatientID, s.DoctorID)
}

// Validate returns errx.ErrMissingScope when nothing was supplied and
// errx.ErrInvalidScope when the identifier is malformed.
func (s Scope) Validate() error {
	if s.IsZero() {
		return errx.ErrMissingScope
	}
	if s.ConversationID != "" {
		if !scopeIDPattern.MatchString(s.ConversationID) {
			return fmt.Errorf("%w: conversation_id %q", errx.ErrInvalidScope, s.ConversationID)
		}
		return nil
	}
	if !scopeIDPattern.MatchString(s.PatientID) || !scopeIDPattern.MatchString(s.DoctorID) {
		return fmt.Errorf("%w: patient_id %q doctor_id %q", errx.ErrInvalidScope, s.PatientID, s.DoctorID)
	}
	return nil
}

// ParseScopeKey is the inverse of Key, used by path-addressed endpoints.
func ParseScopeKey(key string) Scope {
	if rest, ok := strings.CutPrefix(key, "patient:"); ok {
		if patient, doctor, ok := strings.Cut(rest, ":doctor:"); ok {
			return Scope{PatientID: patient, DoctorID: doctor}
		}
	}
	return Scope{ConversationID: key}
}

// Window bounds history loading by age and by count. Zero disables a bound.
type Window struct {
	Days        int
	MaxMessages int
}

// Since returns the oldest timestamp included by the window, or the zero time
// when the window has no age bound.
func (w Window) Since(now time.Time) time.Time {
	if w.Days <= 0 {
		return time.Time{}
	}
	return now.Add(-time.Duration(w.Days) * 24 * time.Hour)
}

// ContextStore is the persistent conversation/prescription store. Results are
// ordered oldest to newest. Zero matches and unknown scopes yield empty results,
// not errors; errors are reserved for an unreachable store or malformed records.
type ContextStore interface {
	// LoadHistory returns messages inside window, oldest first.
	LoadHistory(ctx context.Context, scope Scope, window Window) ([]Message, error)

	// LoadLatestPrescription returns nil when no prescription exists.
	LoadLatestPrescription(ctx context.Context, scope Scope) (*Prescription, error)

	// AppendMessage persists a message and returns the stored record.
	AppendMessage(ctx context.Context, scope Scope, sender Sender, text string) (*Message, error)

	// SavePrescription records a new prescription for the scope.
	SavePrescription(ctx context.Context, scope Scope, content string) (*Prescription, error)
}

// ConversationContext is what the orchestrator assembles before classification.
type ConversationContext struct {
	History            []Message
	LatestPrescription *Prescription
	// Cause is the recovered ContextLoadError or ErrInvalidScope, if any.
	Cause error
}

// Empty reports whether there is no usable history.
func (c *ConversationContext) Empty() bool {
	return c == nil || len(c.History) == 0
}
