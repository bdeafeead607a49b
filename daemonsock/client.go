package daemonsock

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/coterm/config"
)

// Daemon response statuses.
const (
	StatusOK          = "ok"
	StatusUnavailable = "unavailable"
	StatusIndexing    = "indexing"
)

// Result is one hit returned by the daemon or the text fallback.
type Result struct {
	File    string  `json:"file"`
	Line    int     `json:"line,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// request is the wire format sent to the daemon, one JSON object per line.
type request struct {
	Command string `json:"command"`
	Query   string `json:"query,omitempty"`
	Project string `json:"project,omitempty"`
}

// response is the wire format received back.
type response struct {
	Status  string   `json:"status"`
	Results []Result `json:"results,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Client queries the code-structure daemon. The zero timeout defaults to
// two seconds; daemon calls sit on the interactive path and must stay short.
type Client struct {
	socketPath string
	timeout    time.Duration
	logger     *zap.Logger

	// dial is swappable in tests.
	dial func(ctx context.Context, path string) (net.Conn, error)
}

// NewClient builds a client from config. It does not touch the socket;
// availability is probed per call.
func NewClient(cfg config.CodeSearchConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    timeout,
		logger:     logger.With(zap.String("component", "daemonsock")),
		dial: func(ctx context.Context, path string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		},
	}
}

// Ping checks daemon liveness. Any transport failure reports unavailable.
func (c *Client) Ping(ctx context.Context) string {
	resp, err := c.roundTrip(ctx, request{Command: "ping"})
	if err != nil {
		return StatusUnavailable
	}
	return resp.Status
}

// Status returns the daemon's self-reported indexing state.
func (c *Client) Status(ctx context.Context) (string, error) {
	resp, err := c.roundTrip(ctx, request{Command: "status"})
	if err != nil {
		return StatusUnavailable, err
	}
	return resp.Status, nil
}

// Search runs an indexed search, falling back to a plain text scan of
// projectRoot when the daemon is unreachable, unavailable or still indexing.
func (c *Client) Search(ctx context.Context, query, projectRoot string) ([]Result, error) {
	resp, err := c.roundTrip(ctx, request{Command: "search", Query: query, Project: projectRoot})
	if err == nil && resp.Status == StatusOK {
		return resp.Results, nil
	}
	if err != nil {
		c.logger.Debug("daemon unreachable, using text fallback", zap.Error(err))
	} else {
		c.logger.Debug("daemon not ready, using text fallback", zap.String("status", resp.Status))
	}
	return textSearch(ctx, query, projectRoot)
}

// Semantic runs a semantic similarity search. There is no local fallback
// for semantics; a daemon that is not ok yields an empty result with the
// status in the error.
func (c *Client) Semantic(ctx context.Context, query, projectRoot string) ([]Result, error) {
	resp, err := c.roundTrip(ctx, request{Command: "semantic", Query: query, Project: projectRoot})
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusOK {
		return nil, fmt.Errorf("daemon status %s", resp.Status)
	}
	return resp.Results, nil
}

// Impact asks which files are affected by changes to the query path.
func (c *Client) Impact(ctx context.Context, path, projectRoot string) ([]Result, error) {
	resp, err := c.roundTrip(ctx, request{Command: "impact", Query: path, Project: projectRoot})
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusOK {
		return nil, fmt.Errorf("daemon status %s", resp.Status)
	}
	return resp.Results, nil
}

func (c *Client) roundTrip(ctx context.Context, req request) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dial(ctx, c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	enc := json.NewEncoder(conn)
	if err := enc.Encode(req); err != nil {
		return nil, fmt.Errorf("send %s: %w", req.Command, err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.Command, err)
	}

	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", req.Command, err)
	}
	if resp.Error != "" {
		return &resp, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return &resp, nil
}
