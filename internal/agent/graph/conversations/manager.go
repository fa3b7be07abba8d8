package conversations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soulra/clinical-router/internal/agent/model"
	errx "github.com/soulra/clinical-router/internal/core/error"
	logx "github.com/soulra/clinical-router/pkg/logger"
)

// MessagesManager assembles conversation context from the store and persists
// completed exchanges.
type MessagesManager struct {
	store  model.ContextStore
	window model.Window
}

func NewMessagesManager(store model.ContextStore, config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		store:  store,
		window: config.Window(),
	}
}

func (cm *MessagesManager) Window() model.Window { return cm.window }

// =========== Context for the orchestrator ===========

// LoadContext reads the windowed history and the latest prescription
// concurrently. Store
// failures and malformed scopes are recovered to an empty context; the cause
// is kept on the result. Only a caller cancellation is returned as an error.
func (cm *MessagesManager) LoadContext(ctx context.Context, scope model.Scope) (*model.ConversationContext, error) {
	if err := scope.Validate(); err != nil {
		logx.Warn().Err(err).Str("scope", scope.Key()).Msg("invalid scope identifier; continuing with empty context")
		return &model.ConversationContext{History: []model.Message{}, Cause: err}, nil
	}

	var (
		history []model.Message
		rx      *model.Prescription
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = cm.store.LoadHistory(gctx, scope, cm.window)
		return err
	})
	g.Go(func() error {
		var err error
		rx, err = cm.store.LoadLatestPrescription(gctx, scope)
		return err
	})
	if err := g.Wait(); err != nil {
		return cm.degrade(ctx, scope, err)
	}
	if history == nil {
		history = []model.Message{}
	}
	return &model.ConversationContext{History: history, LatestPrescription: rx}, nil
}

func (cm *MessagesManager) degrade(ctx context.Context, scope model.Scope, err error) (*model.ConversationContext, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if !errors.Is(err, errx.ErrContextLoad) {
		err = errx.NewContextLoadError("load_context", scope.Key(), err)
	}
	logx.Warn().Err(err).Str("scope", scope.Key()).Msg("conversation context unavailable; continuing with empty context")
	return &model.ConversationContext{History: []model.Message{}, Cause: err}, nil
}

// History returns the windowed history for read endpoints. A malformed scope
// has no conversation and yields an empty result. Unlike LoadContext it
// surfaces store failures.
func (cm *MessagesManager) History(ctx context.Context, scope model.Scope) ([]model.Message, error) {
	if err := scope.Validate(); err != nil {
		logx.Debug().Err(err).Str("scope", scope.Key()).Msg("invalid scope identifier; returning empty history")
		return []model.Message{}, nil
	}
	return cm.store.LoadHistory(ctx, scope, cm.window)
}

// SavePrescription records a prescription for later suggestion runs.
func (cm *MessagesManager) SavePrescription(ctx context.Context, scope model.Scope, content string) (*model.Prescription, error) {
	return cm.store.SavePrescription(ctx, scope, content)
}

// SaveExchange appends the user message followed by the answer.
func (cm *MessagesManager) SaveExchange(ctx context.Context, scope model.Scope, userMessage, answer string) error {
	if _, err := cm.store.AppendMessage(ctx, scope, model.SenderUser, userMessage); err != nil {
		return fmt.Errorf("save user message: %w", err)
	}
	if _, err := cm.store.AppendMessage(ctx, scope, model.SenderAssistant, answer); err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	return nil
}

// ====================== Helper function ======================

// FormatTranscript renders history one line per message, oldest first:
// "[timestamp] SENDER: text".
func FormatTranscript(messages []model.Message) string {
	var b strings.Builder
	for _, m := range messages {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] %s: %s", m.Timestamp.UTC().Format(time.RFC3339), strings.ToUpper(string(m.Sender)), text)
	}
	return b.String()
}

// TrimTail returns a copy of the last maxMessages messages. A non-positive
// bound keeps everything.
func TrimTail(messages []model.Message, maxMessages int) []model.Message {
	if maxMessages <= 0 || len(messages) <= maxMessages {
		return append([]model.Message(nil), messages...)
	}
	return append([]model.Message(nil), messages[len(messages)-maxMessages:]...)
}
