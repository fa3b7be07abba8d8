package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulra/clinical-router/internal/agent/model"
	errx "github.com/soulra/clinical-router/internal/core/error"
)

func newAnthropicTestClient(t *testing.T, h http.HandlerFunc) *AnthropicClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewAnthropicClient(model.LLMConfig{Model: "claude-3-5-haiku-latest", APIKey: "test", BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestAnthropicGenerate(t *testing.T) {
	var got map[string]any
	c := newAnthropicTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest","content":[{"type":"text","text":"prescription"}],"stop_reason":"end_turn","usage":{"input_tokens":20,"output_tokens":1}}`))
	})

	text, err := c.Generate(context.Background(), testMessages(), WithTemperature(0), WithMaxTokens(16))
	require.NoError(t, err)
	assert.Equal(t, "prescription", text)

	assert.EqualValues(t, 16, got["max_tokens"])
	assert.EqualValues(t, 0, got["temperature"])
	system, ok := got["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 1)
}

func TestAnthropicGenerateFailures(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantKind   errx.FailureKind
		wantStatus int
	}{
		{
			name: "non-success status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
			},
			wantKind:   errx.KindStatus,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "no text blocks",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"m","content":[],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":0}}`))
			},
			wantKind: errx.KindMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newAnthropicTestClient(t, tt.handler)

			_, err := c.Generate(context.Background(), testMessages())
			genErr, ok := errx.AsGenerationError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, genErr.Kind)
			assert.Equal(t, tt.wantStatus, genErr.StatusCode)
		})
	}
}
