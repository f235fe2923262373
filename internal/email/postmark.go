// Package email sends transactional mail through the Postmark API.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/timenest/internal/model"
)

const defaultAPIURL = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	apiURL      string
	httpClient  *http.Client
}

type Option func(*Client)

// WithAPIURL points the client at a different Postmark-compatible endpoint.
func WithAPIURL(u string) Option {
	return func(cl *Client) {
		cl.apiURL = u
	}
}

// NewClient returns a client. baseURL is the public address of the web app
// and is used to build links in messages.
func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiURL:      defaultAPIURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token and sender are set.
func (c *Client) Configured() bool {
	return c.serverToken != "" && c.fromEmail != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

// SendInvitation tells a user they were added to an event.
func (c *Client) SendInvitation(ctx context.Context, to model.User, inviter string, e model.Event) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token or sender")
	}

	link := fmt.Sprintf("%s/events/%s", c.baseURL, e.ID)
	when := e.Start.Format("Mon Jan 2, 2006 at 15:04")
	where := ""
	if e.Location != "" {
		where = " at " + e.Location
	}

	textBody := fmt.Sprintf("%s added you to %q on %s%s.\n\nView the event:\n%s\n", inviter, e.Title, when, where, link)
	htmlBody := fmt.Sprintf(
		`<p>%s added you to <strong>%s</strong> on %s%s.</p><p><a href="%s">View the event</a></p>`,
		html.EscapeString(inviter), html.EscapeString(e.Title), when, html.EscapeString(where), link,
	)

	return c.send(ctx, postmarkEmail{
		From:     c.fromEmail,
		To:       to.Email,
		Subject:  fmt.Sprintf("You've been invited to %s", e.Title),
		HtmlBody: htmlBody,
		TextBody: textBody,
		Tag:      "invitation",
	})
}

func (c *Client) send(ctx context.Context, msg postmarkEmail) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			ErrorCode int    `json:"ErrorCode"`
			Message   string `json:"Message"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("postmark API error: status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}
	return nil
}
