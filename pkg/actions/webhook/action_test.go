package webhook_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestia/gestia/pkg/actions/webhook"
	"github.com/gestia/gestia/pkg/models"
	"github.com/gestia/gestia/pkg/protocol"
)

func testActionContext() protocol.ActionContext {
	return protocol.ActionContext{
		Record: &models.Record{
			ID:      "rec-1",
			Code:    "NC-2026-0001",
			Version: 3,
			Datos:   map[string]any{"titulo": "Fuga de aceite"},
			CurrentState: models.CurrentState{
				StateID: "closed",
			},
		},
		Template: &models.Template{ID: "tpl-1", Code: "NC"},
		Trigger:  models.TriggerOnEnter,
		StateID:  "closed",
	}
}

func TestWebhookAction_PostsRecordSnapshot(t *testing.T) {
	t.Parallel()

	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	action, err := webhook.NewAction(map[string]any{
		"url": server.URL,
		"headers": map[string]any{
			"Authorization": "Bearer token-1",
		},
	})
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), testActionContext(), slog.Default())
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, http.StatusAccepted, resultMap["status_code"])

	record, ok := received["record"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "NC-2026-0001", record["code"])
	assert.Equal(t, "closed", record["state_id"])
	assert.Equal(t, "on_enter", received["trigger"])
}

func TestWebhookAction_RetriesOnServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	action, err := webhook.NewAction(map[string]any{
		"url": server.URL,
		"retry": map[string]any{
			"attempts": float64(3),
			"delay":    float64(0),
		},
	})
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), testActionContext(), slog.Default())
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, resultMap["status_code"])
	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhookAction_MissingURL(t *testing.T) {
	t.Parallel()

	_, err := webhook.NewAction(map[string]any{"method": "POST"})
	require.ErrorIs(t, err, webhook.ErrWebhookURLInvalid)
}
