package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "missing scope", err: ErrMissingScope, want: http.StatusBadRequest},
		{name: "empty message", err: fmt.Errorf("validate: %w", ErrEmptyMessage), want: http.StatusBadRequest},
		{name: "empty prescription", err: ErrEmptyPrescription, want: http.StatusBadRequest},
		{name: "invalid scope", err: fmt.Errorf("%w: conversation_id", ErrInvalidScope), want: http.StatusBadRequest},
		{name: "generation status", err: NewGenerationError("openai", "m", KindStatus, 503, errors.New("x")), want: http.StatusBadGateway},
		{name: "generation canceled", err: NewGenerationError("openai", "m", KindUnreachable, 0, context.Canceled), want: http.StatusRequestTimeout},
		{name: "deadline", err: fmt.Errorf("run: %w", context.DeadlineExceeded), want: http.StatusRequestTimeout},
		{name: "redis via context load", err: NewContextLoadError("load_history", "c1", WrapRedis(errors.New("refused"))), want: http.StatusBadGateway},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestGenerationError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewGenerationError("gemini", "gemini-2.5-flash", KindUnreachable, 0, cause)

	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "language model generation failed (gemini/gemini-2.5-flash): unreachable: connection reset", err.Error())

	withStatus := NewGenerationError("openai", "gpt-4o-mini", KindStatus, 429, nil)
	assert.Equal(t, "language model generation failed (openai/gpt-4o-mini): status 429", withStatus.Error())

	got, ok := AsGenerationError(fmt.Errorf("node: %w", err))
	require.True(t, ok)
	assert.Same(t, err, got)

	_, ok = AsGenerationError(errors.New("other"))
	assert.False(t, ok)
}

func TestContextLoadError(t *testing.T) {
	assert.NoError(t, NewContextLoadError("op", "c1", nil))

	err := NewContextLoadError("load_history", "c1", WrapRedis(errors.New("refused")))
	assert.ErrorIs(t, err, ErrContextLoad)

	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
}

func TestWrapRedis(t *testing.T) {
	assert.NoError(t, WrapRedis(nil))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(WrapRedis(redis.Nil)))
	assert.ErrorIs(t, WrapRedis(redis.Nil), redis.Nil)
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(WrapPostgres(errors.New("conn closed"))))
}
