package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mod-update-notifier/config"
	"mod-update-notifier/platform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(config.Config{DiscordToken: "secret", DiscordAPIURL: srv.URL + "/", UserAgent: "ua"})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient(config.Config{})
	assert.Error(t, err)
}

func TestNewClientSetsTimeout(t *testing.T) {
	c, err := NewClient(config.Config{DiscordToken: "secret", SendTimeout: 7 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, c.HTTPClient.Timeout)
}

func TestSendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/channels/123/messages", r.URL.Path)
		assert.Equal(t, "Bot secret", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "<@&77>", body["content"])
		mentions := body["allowed_mentions"].(map[string]any)
		assert.Equal(t, []any{"77"}, mentions["roles"])
		assert.Equal(t, []any{}, mentions["parse"])

		embeds := body["embeds"].([]any)
		require.Len(t, embeds, 1)
		e := embeds[0].(map[string]any)
		assert.Equal(t, "Updated mod:\nBig Bertha", e["title"])
		assert.Equal(t, "https://assets/bb.png", e["thumbnail"].(map[string]any)["url"])
		assert.Equal(t, "2024-07-06T12:00:00Z", e["timestamp"])

		w.Write([]byte(`{"id": "999"}`))
	})

	id, err := c.SendMessage(context.Background(), "123", platform.Message{
		Content:      "<@&77>",
		MentionRoles: []string{"77"},
		Embeds: []platform.Embed{{
			Title:     "Updated mod:\nBig Bertha",
			Thumbnail: "https://assets/bb.png",
			Timestamp: time.Date(2024, 7, 6, 12, 0, 0, 0, time.UTC),
			Fields:    []platform.EmbedField{{Name: "Version", Value: "1.2.0", Inline: true}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "999", id)
}

func TestSendMessageErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		header     string
		kind       platform.ErrorKind
		retryAfter time.Duration
	}{
		{"rate limited body", http.StatusTooManyRequests, `{"message": "You are being rate limited.", "retry_after": 1.5, "global": false}`, "", platform.RateLimited, 1500 * time.Millisecond},
		{"rate limited header", http.StatusTooManyRequests, ``, "3", platform.RateLimited, 3 * time.Second},
		{"forbidden", http.StatusForbidden, `{"message": "Missing Access", "code": 50001}`, "", platform.Forbidden, 0},
		{"not found", http.StatusNotFound, `{"message": "Unknown Channel", "code": 10003}`, "", platform.NotFound, 0},
		{"server error", http.StatusBadGateway, `bad gateway`, "", platform.Transient, 0},
		{"bad request", http.StatusBadRequest, `{"message": "Invalid Form Body"}`, "", platform.Transient, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.SendMessage(context.Background(), "1", platform.Message{Content: "hi"})
			require.Error(t, err)

			var pe *platform.Error
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, tt.retryAfter, pe.RetryAfter)
			assert.Equal(t, tt.kind == platform.Forbidden || tt.kind == platform.NotFound, pe.Permanent())
		})
	}
}

func TestSendMessageNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(config.Config{DiscordToken: "secret", DiscordAPIURL: url})
	require.NoError(t, err)

	_, err = c.SendMessage(context.Background(), "1", platform.Message{Content: "hi"})
	assert.Equal(t, platform.Transient, platform.KindOf(err))
}
