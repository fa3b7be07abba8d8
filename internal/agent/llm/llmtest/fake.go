// Package llmtest provides a scriptable llm.Client for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/soulra/clinical-router/internal/agent/llm"
	errx "github.com/soulra/clinical-router/internal/core/error"
)

// Call is one recorded Generate invocation.
type Call struct {
	Messages []*schema.Message
	Options  llm.Options
}

// System returns the concatenated system content of the call.
func (c Call) System() string {
	var out string
	for _, m := range c.Messages {
		if m != nil && m.Role == schema.System {
			out += m.Content
		}
	}
	return out
}

// Human concatenates the user turns of the call.
func (c Call) Human() string {
	var out string
	for _, m := range c.Messages {
		if m != nil && m.Role == schema.User {
			out += m.Content
		}
	}
	return out
}

// Reply is a scripted response: Text on success, Err on failure.
type Reply struct {
	Text string
	Err  error
}

// Fake replays scripted replies in order. Once the script is exhausted it
// falls back to Respond, then to Default.
type Fake struct {
	mu      sync.Mutex
	script  []Reply
	calls   []Call
	Respond func(ctx context.Context, msgs []*schema.Message, o llm.Options) (string, error)
	Default string
}

// New returns a fake that replays replies in order.
func New(replies ...Reply) *Fake {
	return &Fake{script: replies, Default: "ok"}
}

// Texts is shorthand for a script of successful replies.
func Texts(texts ...string) *Fake {
	replies := make([]Reply, len(texts))
	for i, t := range texts {
		replies[i] = Reply{Text: t}
	}
	return New(replies...)
}

// Failing returns a fake whose every call fails with a GenerationError of kind.
func Failing(kind errx.FailureKind, status int) *Fake {
	f := New()
	f.Respond = func(ctx context.Context, _ []*schema.Message, _ llm.Options) (string, error) {
		return "", errx.NewGenerationError("fake", "fake-model", kind, status, errors.New("scripted failure"))
	}
	return f
}

func (f *Fake) Provider() string { return "fake" }
func (f *Fake) Model() string    { return "fake-model" }

func (f *Fake) Generate(ctx context.Context, msgs []*schema.Message, opts ...llm.Option) (string, error) {
	o := llm.ApplyOptions(opts...)

	f.mu.Lock()
	f.calls = append(f.calls, Call{Messages: append([]*schema.Message(nil), msgs...), Options: o})
	var next *Reply
	if len(f.script) > 0 {
		r := f.script[0]
		f.script = f.script[1:]
		next = &r
	}
	respond := f.Respond
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", errx.NewGenerationError("fake", "fake-model", errx.KindCanceled, 0, err)
	}
	if next != nil {
		return next.Text, next.Err
	}
	if respond != nil {
		return respond(ctx, msgs, o)
	}
	return f.Default, nil
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns the number of Generate invocations.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var _ llm.Client = (*Fake)(nil)
