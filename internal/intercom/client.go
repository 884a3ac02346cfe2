// Package intercom is a small REST client for the parts of the Intercom API
// the relay needs (contacts, conversations, token introspection) plus the
// tolerant parser for Intercom webhook envelopes.
package intercom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL    = "https://api.intercom.io"
	DefaultAPIVersion = "2.11"

	maxErrorBody = 4 << 10
)

// ErrNoToken is returned by every call when the client has no access token.
var ErrNoToken = errors.New("intercom access token not configured")

// APIError is a non-2xx response from Intercom.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("intercom api: status %d: %s", e.StatusCode, e.Body)
}

// Options configure a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL    string
	Token      string
	APIVersion string
	Timeout    time.Duration
	// MaxElapsed bounds transport-error retries for a single call.
	MaxElapsed time.Duration
	HTTPClient *http.Client
}

// Client calls the Intercom REST API with bearer authentication.
type Client struct {
	baseURL    string
	token      string
	version    string
	maxElapsed time.Duration
	http       *http.Client
}

// New builds a Client from opts.
func New(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      strings.TrimSpace(opts.Token),
		version:    opts.APIVersion,
		maxElapsed: opts.MaxElapsed,
		http:       opts.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.version == "" {
		c.version = DefaultAPIVersion
	}
	if c.maxElapsed <= 0 {
		c.maxElapsed = 10 * time.Second
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		c.http = &http.Client{Timeout: timeout}
	}
	return c
}

// HasToken reports whether an access token is configured.
func (c *Client) HasToken() bool { return c.token != "" }

// Contact is the subset of an Intercom contact the relay reads.
type Contact struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Phone      string `json:"phone"`
}

// Admin is the token owner returned by GET /me.
type Admin struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SearchContactByExternalID returns the first contact whose external_id
// equals externalID, or nil when none exists.
func (c *Client) SearchContactByExternalID(ctx context.Context, externalID string) (*Contact, error) {
	req := map[string]any{
		"query": map[string]any{
			"field":    "external_id",
			"operator": "=",
			"value":    externalID,
		},
	}
	var resp struct {
		Data []Contact `json:"data"`
	}
	if err := c.do(ctx, "SearchContacts", true, http.MethodPost, "/contacts/search", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	return &resp.Data[0], nil
}

// CreateContact creates a user contact tagged with externalID.
func (c *Client) CreateContact(ctx context.Context, externalID, phone string) (*Contact, error) {
	req := map[string]any{
		"role":        "user",
		"external_id": externalID,
	}
	if phone != "" {
		req["phone"] = phone
	}
	var out Contact
	if err := c.do(ctx, "CreateContact", false, http.MethodPost, "/contacts", req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("intercom create contact: empty id in response")
	}
	return &out, nil
}

// CreateConversation opens a conversation from the contact and returns its id.
func (c *Client) CreateConversation(ctx context.Context, contactID, body string) (string, error) {
	req := map[string]any{
		"from": map[string]any{"type": "user", "id": contactID},
		"body": body,
	}
	var out struct {
		ConversationID string `json:"conversation_id"`
		ID             string `json:"id"`
	}
	if err := c.do(ctx, "CreateConversation", false, http.MethodPost, "/conversations", req, &out); err != nil {
		return "", err
	}
	id := out.ConversationID
	if id == "" {
		id = out.ID
	}
	if id == "" {
		return "", errors.New("intercom create conversation: empty id in response")
	}
	return id, nil
}

// ReplyToConversation appends a user comment to an existing conversation.
func (c *Client) ReplyToConversation(ctx context.Context, conversationID, contactID, body string) error {
	req := map[string]any{
		"message_type":     "comment",
		"type":             "user",
		"intercom_user_id": contactID,
		"body":             body,
	}
	path := "/conversations/" + url.PathEscape(conversationID) + "/reply"
	return c.do(ctx, "ReplyToConversation", false, http.MethodPost, path, req, nil)
}

// Me returns the admin owning the access token; used as a credential check.
func (c *Client) Me(ctx context.Context) (*Admin, error) {
	var out Admin
	if err := c.do(ctx, "Me", true, http.MethodGet, "/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends one API call. Transport errors on read calls (retry true) are
// retried with exponential backoff. Calls that create or post something are
// sent once: after a dropped connection the request may already have been
// applied, and sending it again would post the message twice. Any HTTP
// response, successful or not, ends the retry loop.
func (c *Client) do(ctx context.Context, op string, retry bool, method, path string, in, out any) error {
	ctx, span := otel.Tracer("intercom/Client").Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
		),
	)
	defer span.End()

	if c.token == "" {
		span.SetStatus(codes.Error, ErrNoToken.Error())
		return ErrNoToken
	}

	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("intercom %s: encode: %w", op, err)
		}
		payload = b
	}

	var respBody []byte
	operation := func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Intercom-Version", c.version)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if !retry {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return backoff.Permanent(&APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))})
		}
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read response body: %w", err))
		}
		respBody = b
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = c.maxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("intercom %s: decode: %w", op, err)
		}
	}
	return nil
}
