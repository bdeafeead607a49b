package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/coterm/config"
)

// Level is the span granularity.
type Level string

const (
	LevelSession Level = "session"
	LevelTurn    Level = "turn"
	LevelTool    Level = "tool"
)

// Span is one unit of traced work. Fields left zero are omitted on the wire
// so a merge update only touches what it carries.
type Span struct {
	ID        string         `json:"id"`
	ParentID  string         `json:"parent_id,omitempty"`
	SessionID string         `json:"session_id"`
	Level     Level          `json:"level"`
	Name      string         `json:"name,omitempty"`
	StartedAt time.Time      `json:"started_at,omitzero"`
	EndedAt   time.Time      `json:"ended_at,omitzero"`
	Status    string         `json:"status,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Client posts spans to the tracing API. A nil or disabled client is safe
// to call; every method becomes a no-op.
type Client struct {
	endpoint string
	token    string
	debug    bool
	http     *http.Client
	logger   *zap.Logger
}

// NewClient builds a span client. It returns nil when the endpoint or the
// bearer token is unset, which disables tracing; callers hold a *Client and
// never need to branch on configuration.
func NewClient(cfg config.TraceConfig, logger *zap.Logger) *Client {
	if cfg.Endpoint == "" || cfg.Token == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		token:    cfg.Token,
		debug:    cfg.Debug,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.With(zap.String("component", "trace")),
	}
}

// Enabled reports whether spans will actually be shipped.
func (c *Client) Enabled() bool { return c != nil }

// Insert creates a new span. Failures are logged and swallowed.
func (c *Client) Insert(ctx context.Context, span Span) {
	if c == nil {
		return
	}
	c.ship(ctx, http.MethodPost, c.endpoint+"/spans", span)
}

// Merge patches an existing span by id, typically to close it or attach a
// status. Only the non-zero fields of span are applied server-side.
func (c *Client) Merge(ctx context.Context, span Span) {
	if c == nil {
		return
	}
	if span.ID == "" {
		c.logger.Warn("merge dropped: span has no id")
		return
	}
	c.ship(ctx, http.MethodPatch, c.endpoint+"/spans/"+span.ID, span)
}

func (c *Client) ship(ctx context.Context, method, url string, span Span) {
	payload, err := json.Marshal(span)
	if err != nil {
		c.logger.Warn("span encode failed", zap.Error(err))
		return
	}
	if c.debug {
		c.logger.Debug("shipping span",
			zap.String("method", method),
			zap.ByteString("payload", payload))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		c.logger.Warn("span request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("span ship failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("span rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
	}
}

// SpanID builds a deterministic span id from its parts, so retried inserts
// for the same unit of work collapse server-side.
func SpanID(sessionID string, level Level, name string) string {
	return fmt.Sprintf("%s:%s:%s", sessionID, level, name)
}
