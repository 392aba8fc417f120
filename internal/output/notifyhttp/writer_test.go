package notifyhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoremedy/pkg/models"
)

func TestWriterPostsFilteredBatch(t *testing.T) {
	var (
		got    payload
		token  string
		posted int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posted++
		token = r.Header.Get("Authorization")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w, err := NewWriter(Config{
		URL:      srv.URL,
		Headers:  map[string]string{"Authorization": "Bearer t0ken"},
		Channels: []string{"slack", "pagerduty"},
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WriteNotifications([]*models.Notification{
		{ID: "1", IncidentID: "inc", Channel: "email"},
		{ID: "2", IncidentID: "inc", Channel: "slack"},
		{ID: "3", IncidentID: "inc", Channel: "pagerduty"},
	}))
	assert.Equal(t, 1, posted)
	assert.Equal(t, "Bearer t0ken", token)
	require.Len(t, got.Notifications, 2)
	assert.Equal(t, "slack", got.Notifications[0].Channel)
	assert.Equal(t, "pagerduty", got.Notifications[1].Channel)

	require.NoError(t, w.WriteNotifications([]*models.Notification{{ID: "4", Channel: "email"}}))
	assert.Equal(t, 1, posted)
}

func TestWriterReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL})
	require.NoError(t, err)
	err = w.WriteNotifications([]*models.Notification{{ID: "1", Channel: "email"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNewWriterRequiresURL(t *testing.T) {
	_, err := NewWriter(Config{})
	assert.Error(t, err)
}
