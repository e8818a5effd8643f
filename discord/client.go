// Package discord sends notifications through the Discord REST API.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mod-update-notifier/config"
	"mod-update-notifier/platform"
)

// Client implements platform.Sender for Discord bot accounts.
type Client struct {
	BaseURL    string
	Token      string
	UserAgent  string
	HTTPClient *http.Client
}

var _ platform.Sender = (*Client)(nil)

// NewClient creates a Discord client using the provided configuration.
func NewClient(cfg config.Config) (*Client, error) {
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is not configured")
	}
	return &Client{
		BaseURL:    strings.TrimRight(cfg.DiscordAPIURL, "/"),
		Token:      cfg.DiscordToken,
		UserAgent:  cfg.UserAgent,
		HTTPClient: &http.Client{Timeout: cfg.SendTimeout},
	}, nil
}

// --- Wire types ---

type createMessage struct {
	Content         string           `json:"content,omitempty"`
	Embeds          []embed          `json:"embeds,omitempty"`
	AllowedMentions *allowedMentions `json:"allowed_mentions"`
}

type allowedMentions struct {
	Parse []string `json:"parse"`
	Roles []string `json:"roles,omitempty"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	URL         string       `json:"url,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Author      *embedAuthor `json:"author,omitempty"`
	Thumbnail   *embedImage  `json:"thumbnail,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
}

type embedAuthor struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

type embedImage struct {
	URL string `json:"url"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type messageResponse struct {
	ID string `json:"id"`
}

type rateLimitResponse struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

func toWire(msg platform.Message) createMessage {
	out := createMessage{
		Content: msg.Content,
		// Never ping @everyone or users from mod text; only the configured roles.
		AllowedMentions: &allowedMentions{Parse: []string{}, Roles: msg.MentionRoles},
	}
	for _, e := range msg.Embeds {
		w := embed{
			Title:       e.Title,
			URL:         e.URL,
			Description: e.Description,
			Color:       e.Color,
		}
		if !e.Timestamp.IsZero() {
			w.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
		}
		if e.Author != nil {
			w.Author = &embedAuthor{Name: e.Author.Name, URL: e.Author.URL}
		}
		if e.Thumbnail != "" {
			w.Thumbnail = &embedImage{URL: e.Thumbnail}
		}
		for _, f := range e.Fields {
			w.Fields = append(w.Fields, embedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		out.Embeds = append(out.Embeds, w)
	}
	return out
}

// SendMessage posts msg to a channel. Failures are returned as *platform.Error.
func (c *Client) SendMessage(ctx context.Context, channelID string, msg platform.Message) (string, error) {
	body, err := json.Marshal(toWire(msg))
	if err != nil {
		return "", &platform.Error{Kind: platform.Transient, Err: fmt.Errorf("failed to encode message: %w", err)}
	}

	fullURL := c.BaseURL + "/channels/" + channelID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return "", &platform.Error{Kind: platform.Transient, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bot "+c.Token)
	req.Header.Set("Content-Type", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", &platform.Error{Kind: platform.Transient, Err: fmt.Errorf("failed to execute request: %w", err)}
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var created messageResponse
		if err := json.Unmarshal(payload, &created); err != nil {
			// Delivered anyway; a missing id is not worth a resend.
			return "", nil
		}
		return created.ID, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &platform.Error{
			Kind:       platform.RateLimited,
			RetryAfter: retryAfter(resp.Header, payload),
			Err:        fmt.Errorf("status %d: %s", resp.StatusCode, truncate(payload)),
		}
	case resp.StatusCode == http.StatusForbidden:
		return "", &platform.Error{Kind: platform.Forbidden, Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(payload))}
	case resp.StatusCode == http.StatusNotFound:
		return "", &platform.Error{Kind: platform.NotFound, Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(payload))}
	default:
		return "", &platform.Error{Kind: platform.Transient, Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(payload))}
	}
}

// retryAfter prefers the JSON body's retry_after (seconds, fractional) and
// falls back to the Retry-After header.
func retryAfter(header http.Header, payload []byte) time.Duration {
	var rl rateLimitResponse
	if err := json.Unmarshal(payload, &rl); err == nil && rl.RetryAfter > 0 {
		return time.Duration(rl.RetryAfter * float64(time.Second))
	}
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return time.Second
}

func truncate(payload []byte) string {
	const limit = 256
	if len(payload) > limit {
		return string(payload[:limit]) + "..."
	}
	return string(payload)
}
