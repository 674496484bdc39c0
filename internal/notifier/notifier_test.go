package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client())
	err := n.Notify(context.Background(), "owner-1", Message{
		Kind:           KindRenewed,
		Title:          "Renewed",
		Body:           "Your guest pass was renewed.",
		RegistrationID: "reg-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "owner-1", got["owner_id"])
	assert.Equal(t, "renewed", got["kind"])
	assert.Equal(t, "reg-1", got["registration_id"])
}

func TestWebhookNotifierFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, srv.Client()).Notify(context.Background(), "owner-1", Message{Kind: KindExpiringSoon})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestLogNotifierNeverFails(t *testing.T) {
	assert.NoError(t, NewLogNotifier(zap.NewNop()).Notify(context.Background(), "owner-1", Message{Kind: KindExpired}))
}
