package feedback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryChannelRoundTrip(t *testing.T) {
	ctx := context.Background()
	ch := NewMemoryChannel()

	id, err := ch.Submit(ctx, "UNKNOWN VENDOR LLC", "42.17")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = ch.Poll(ctx, id)
	assert.ErrorIs(t, err, ErrPending)

	pending, err := ch.Pending(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, id, pending.ID)
	assert.Equal(t, "UNKNOWN VENDOR LLC", pending.Merchant)
	assert.Equal(t, StatusPending, pending.Status)

	require.NoError(t, ch.Answer(ctx, id, "Grocery"))

	resolution, err := ch.Poll(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Grocery", resolution.Answer)

	// Answer consumed exactly once.
	_, err = ch.Poll(ctx, id)
	assert.ErrorIs(t, err, ErrPending)
}

func TestMemoryChannelPendingOrder(t *testing.T) {
	ctx := context.Background()
	ch := NewMemoryChannel()

	first, err := ch.Submit(ctx, "FIRST", "1.00")
	require.NoError(t, err)
	_, err = ch.Submit(ctx, "SECOND", "2.00")
	require.NoError(t, err)

	pending, err := ch.Pending(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, first, pending.ID)

	require.NoError(t, ch.Answer(ctx, first, "Fun"))

	pending, err = ch.Pending(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "SECOND", pending.Merchant)
}

func TestMemoryChannelAnswerUnknownTicket(t *testing.T) {
	ch := NewMemoryChannel()
	assert.Error(t, ch.Answer(context.Background(), "no-such-ticket", "Fun"))
}

func TestMemoryChannelEmptyPending(t *testing.T) {
	ch := NewMemoryChannel()
	pending, err := ch.Pending(context.Background())
	require.NoError(t, err)
	assert.Nil(t, pending)
}

// reviewServer emulates the review frontend's feedback routes.
func reviewServer(t *testing.T) *httptest.Server {
	t.Helper()

	answered := map[string]string{}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/transactions/request-feedback", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Merchant string `json:"merchant"`
			Charge   string `json:"charge"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body.Merchant)
		json.NewEncoder(w).Encode(map[string]any{"success": true, "requestId": "tkt-1"})
	})

	mux.HandleFunc("/api/transactions/get-feedback-result", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("requestId")
		answer, ok := answered[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Feedback not found or still pending"})
			return
		}
		delete(answered, id)
		json.NewEncoder(w).Encode(map[string]any{"success": true, "feedback": answer})
	})

	mux.HandleFunc("/api/transactions/pending-feedback", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"transaction": map[string]any{
			"id":       "tkt-1",
			"merchant": "UNKNOWN VENDOR LLC",
			"charge":   "42.17",
			"status":   "pending",
		}})
	})

	mux.HandleFunc("/api/transactions/submit-feedback", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TransactionID string `json:"transactionId"`
			Feedback      string `json:"feedback"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		answered[body.TransactionID] = body.Feedback
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHTTPChannelRoundTrip(t *testing.T) {
	ctx := context.Background()
	server := reviewServer(t)
	ch := NewHTTPChannel(server.URL)

	id, err := ch.Submit(ctx, "UNKNOWN VENDOR LLC", "42.17")
	require.NoError(t, err)
	assert.Equal(t, "tkt-1", id)

	_, err = ch.Poll(ctx, id)
	assert.ErrorIs(t, err, ErrPending)

	pending, err := ch.Pending(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "UNKNOWN VENDOR LLC", pending.Merchant)

	require.NoError(t, ch.Answer(ctx, id, "Grocery"))

	resolution, err := ch.Poll(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Grocery", resolution.Answer)
}
