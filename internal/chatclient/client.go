// Package chatclient talks to the assistant backend: one JSON POST per user turn.
package chatclient

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/banter/internal/chat"
	"github.com/hpungsan/banter/internal/config"
)

// maxResponseBytes caps how much of a reply body is read.
const maxResponseBytes = 4 << 20

// ErrorType categorizes a failed exchange.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeStatus
	ErrTypeInvalidResponse
	ErrTypeTimeout
	ErrTypeCanceled
)

func (t ErrorType) String() string {
	switch t {
	case ErrTypeConnection:
		return "connection"
	case ErrTypeStatus:
		return "status"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ChatError is returned for every failed exchange. Callers show chat.UnreachableText
// instead of its details.
type ChatError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Cause      error
}

func (e *ChatError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ChatError) Unwrap() error {
	return e.Cause
}

// Request is the JSON body sent to POST /chat.
type Request struct {
	Message     string `json:"message"`
	Personality string `json:"personality,omitempty"`
}

// Response is the JSON body returned by POST /chat.
type Response struct {
	Response string `json:"response"`
}

// Config holds client options.
type Config struct {
	// BaseURL of the backend; the client posts to BaseURL + "/chat".
	BaseURL string

	// Timeout bounds one exchange. Zero means no timeout.
	Timeout time.Duration

	// ReplyDelay is an artificial pause after a successful reply.
	ReplyDelay time.Duration
}

// ConfigFrom derives client options from application config.
func ConfigFrom(cfg *config.Config) *Config {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Config{
		BaseURL:    cfg.BackendURL,
		Timeout:    time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		ReplyDelay: time.Duration(cfg.ReplyDelayMS) * time.Millisecond,
	}
}

// Client sends user turns to the backend. It makes exactly one attempt per call.
// A Client is safe for concurrent use; the one-in-flight rule is enforced by the caller.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a client. A nil logger disables logging.
func New(cfg *Config, logger *zap.Logger) *Client {
	if cfg == nil {
		cfg = ConfigFrom(nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = config.DefaultBackendURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Endpoint returns the chat URL.
func (c *Client) Endpoint() string {
	return strings.TrimRight(c.config.BaseURL, "/") + "/chat"
}

// Send posts message with the personality instruction and returns the reply text.
// An empty reply is not an error: it yields chat.NoResponseText.
func (c *Client) Send(ctx context.Context, message, personality string) (string, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	requestID := newRequestID()
	log := c.logger.With(zap.String("request_id", requestID), zap.String("endpoint", c.Endpoint()))
	start := time.Now()

	body, err := json.Marshal(Request{Message: message, Personality: personality})
	if err != nil {
		return "", &ChatError{Type: ErrTypeUnknown, Message: "failed to encode request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", &ChatError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		chatErr := classifyTransportError(ctx, err)
		log.Warn("chat request failed", zap.String("error_type", chatErr.Type.String()), zap.Error(err))
		return "", chatErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		chatErr := classifyTransportError(ctx, err)
		log.Warn("chat response read failed", zap.Error(err))
		return "", chatErr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("chat backend returned non-success status", zap.Int("status", resp.StatusCode))
		return "", &ChatError{
			Type:       ErrTypeStatus,
			Message:    fmt.Sprintf("unexpected status from backend: %s", resp.Status),
			StatusCode: resp.StatusCode,
		}
	}

	var decoded Response
	if err := json.Unmarshal(data, &decoded); err != nil {
		log.Warn("chat backend returned malformed body", zap.Error(err))
		return "", &ChatError{Type: ErrTypeInvalidResponse, Message: "malformed response from backend", Cause: err}
	}

	reply := decoded.Response
	if strings.TrimSpace(reply) == "" {
		reply = chat.NoResponseText
	}

	if c.config.ReplyDelay > 0 {
		if err := sleep(ctx, c.config.ReplyDelay); err != nil {
			return "", classifyTransportError(ctx, err)
		}
	}

	log.Debug("chat reply received",
		zap.Int("reply_chars", len(reply)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return reply, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func classifyTransportError(ctx context.Context, err error) *ChatError {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &ChatError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return &ChatError{Type: ErrTypeCanceled, Message: "request canceled", Cause: err}
	default:
		return &ChatError{Type: ErrTypeConnection, Message: "backend unreachable", Cause: err}
	}
}

func newRequestID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return ""
	}
	return id.String()
}
