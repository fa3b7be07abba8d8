package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	_ "embed"

	"github.com/google/uuid"

	"github.com/soulra/clinical-router/internal/agent/model"
	errx "github.com/soulra/clinical-router/internal/core/error"
	logx "github.com/soulra/clinical-router/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies schema.sql. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", errx.WrapPostgres(err))
	}
	return nil
}

// PostgresStore is the relational ContextStore.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// WithClock replaces the clock used for window bounds and new records.
func (r *PostgresStore) WithClock(now func() time.Time) *PostgresStore {
	r.now = now
	return r
}

// LoadHistory selects the newest MaxMessages rows inside the window and
// returns them oldest first.
func (r *PostgresStore) LoadHistory(ctx context.Context, scope model.Scope, window model.Window) ([]model.Message, error) {
	if err := scope.Validate(); err != nil {
		logx.Debug().Err(err).Msg("history lookup with invalid scope")
		return []model.Message{}, nil
	}

	var limit any
	if window.MaxMessages > 0 {
		limit = window.MaxMessages
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sender, text, created_at
         FROM conversation_messages
         WHERE scope_key = $1
           AND created_at >= $2
         ORDER BY created_at DESC
         LIMIT $3`,
		scope.Key(), window.Since(r.now()), limit,
	)
	if err != nil {
		logx.Error().Err(err).Str("scope", scope.Key()).Msg("failed to query conversation history")
		return nil, errx.NewContextLoadError("load_history", scope.Key(), errx.WrapPostgres(err))
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		var (
			m      model.Message
			sender string
		)
		if err := rows.Scan(&m.ID, &sender, &m.Text, &m.Timestamp); err != nil {
			return nil, errx.NewContextLoadError("load_history", scope.Key(), fmt.Errorf("scan message: %w", err))
		}
		m.Sender = model.Sender(sender)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.NewContextLoadError("load_history", scope.Key(), errx.WrapPostgres(err))
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (r *PostgresStore) LoadLatestPrescription(ctx context.Context, scope model.Scope) (*model.Prescription, error) {
	if err := scope.Validate(); err != nil {
		return nil, nil
	}

	var p model.Prescription
	err := r.db.QueryRowContext(ctx,
		`SELECT id, content, created_at
         FROM prescriptions
         WHERE scope_key = $1
         ORDER BY created_at DESC
         LIMIT 1`,
		scope.Key(),
	).Scan(&p.ID, &p.Content, &p.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		logx.Error().Err(err).Str("scope", scope.Key()).Msg("failed to query latest prescription")
		return nil, errx.NewContextLoadError("load_prescription", scope.Key(), errx.WrapPostgres(err))
	}
	return &p, nil
}

func (r *PostgresStore) AppendMessage(ctx context.Context, scope model.Scope, sender model.Sender, text string) (*model.Message, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errx.ErrEmptyMessage
	}
	m := model.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Timestamp: r.now().UTC(),
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO conversation_messages (id, scope_key, sender, text, created_at)
         VALUES ($1, $2, $3, $4, $5)`,
		m.ID, scope.Key(), string(m.Sender), m.Text, m.Timestamp,
	); err != nil {
		logx.Error().Err(err).Str("scope", scope.Key()).Msg("failed to insert message")
		return nil, errx.WrapPostgres(err)
	}
	return &m, nil
}

func (r *PostgresStore) SavePrescription(ctx context.Context, scope model.Scope, content string) (*model.Prescription, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, errx.ErrEmptyPrescription
	}
	p := model.Prescription{
		ID:        uuid.NewString(),
		Content:   content,
		Timestamp: r.now().UTC(),
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO prescriptions (id, scope_key, content, created_at)
         VALUES ($1, $2, $3, $4)`,
		p.ID, scope.Key(), p.Content, p.Timestamp,
	); err != nil {
		logx.Error().Err(err).Str("scope", scope.Key()).Msg("failed to insert prescription")
		return nil, errx.WrapPostgres(err)
	}
	return &p, nil
}

var _ model.ContextStore = (*PostgresStore)(nil)
