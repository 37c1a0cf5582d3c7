package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/wolfman30/dental-whatsapp-bot/internal/observability/metrics"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com/v22.0"
	defaultHTTPTimeout  = 10 * time.Second
	defaultAttempts     = 3
	defaultBackoff      = 500 * time.Millisecond
)

var sendTracer = otel.Tracer("dental.internal.channels.whatsapp.send")

// Sender delivers one outbound message. Implementations retry internally; a
// returned error means every attempt failed.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Client sends messages through the WhatsApp Cloud API.
type Client struct {
	token        string
	phoneID      string
	graphAPIBase string
	httpClient   *http.Client
	limiter      *rate.Limiter
	attempts     int
	backoff      time.Duration
	logger       *logging.Logger
	metrics      *metrics.MessagingMetrics
}

// NewClient creates a Cloud API client for the given business phone id.
func NewClient(token, phoneID string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		token:        token,
		phoneID:      phoneID,
		graphAPIBase: defaultGraphAPIBase,
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		attempts:     defaultAttempts,
		backoff:      defaultBackoff,
		logger:       logger,
	}
}

// WithGraphAPIBase overrides the Graph API base URL (useful for testing).
func (c *Client) WithGraphAPIBase(base string) *Client {
	c.graphAPIBase = base
	return c
}

// WithRateLimit caps outbound messages per second.
func (c *Client) WithRateLimit(perSecond float64, burst int) *Client {
	if perSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return c
}

// WithBackoff sets the linear retry step; attempt n waits n*step.
func (c *Client) WithBackoff(step time.Duration) *Client {
	c.backoff = step
	return c
}

// WithMetrics attaches outbound counters.
func (c *Client) WithMetrics(m *metrics.MessagingMetrics) *Client {
	c.metrics = m
	return c
}

// apiError mirrors the Graph API error envelope.
type apiError struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send posts msg, retrying up to three times with a linear backoff. The final
// failure is logged and returned; callers treat delivery as best-effort.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if c.token == "" || c.phoneID == "" {
		return errors.New("whatsapp: token and phone id required")
	}
	if msg.To == "" {
		return errors.New("whatsapp: recipient required")
	}

	ctx, span := sendTracer.Start(ctx, "whatsapp.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("dental.to", msg.To),
		attribute.String("dental.message_type", msg.Type),
	)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("whatsapp: marshal message: %w", err)
	}
	url := fmt.Sprintf("%s/%s/messages", c.graphAPIBase, c.phoneID)

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				lastErr = err
				break
			}
		}
		lastErr = c.post(ctx, url, body)
		if lastErr == nil {
			c.metrics.ObserveOutbound(msg.Type, "sent")
			c.logger.Debug("whatsapp message sent", "to", msg.To, "type", msg.Type, "attempt", attempt)
			return nil
		}
		if attempt < c.attempts {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = c.attempts
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
		}
	}

	span.RecordError(lastErr)
	c.metrics.ObserveOutbound(msg.Type, "failed")
	c.logger.Error("whatsapp send failed", "error", lastErr, "to", msg.To, "type", msg.Type)
	return lastErr
}

func (c *Client) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var envelope apiError
	if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != nil {
		return fmt.Errorf("whatsapp: API error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return fmt.Errorf("whatsapp: unexpected status %d: %s", resp.StatusCode, string(respBody))
}

var _ Sender = (*Client)(nil)
