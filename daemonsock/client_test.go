package daemonsock

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/coterm/config"
)

// fakeDaemon answers every command with a canned response.
type fakeDaemon struct {
	listener net.Listener
	respond  func(req request) response
}

func startFakeDaemon(t *testing.T, respond func(req request) response) (string, *fakeDaemon) {
	dir, err := os.MkdirTemp("", "ds")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	path := filepath.Join(dir, "daemon.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)

	d := &fakeDaemon{listener: ln, respond: respond}
	go d.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return path, d
}

func (d *fakeDaemon) serve() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		go func(conn net.Conn) {
			defer conn.Close()
			line, err := bufio.NewReader(conn).ReadBytes('\n')
			if err != nil {
				return
			}
			var req request
			if err := json.Unmarshal(line, &req); err != nil {
				return
			}
			_ = json.NewEncoder(conn).Encode(d.respond(req))
		}(conn)
	}
}

func newTestClient(path string) *Client {
	return NewClient(config.CodeSearchConfig{SocketPath: path, Timeout: 2 * time.Second}, zap.NewNop())
}

func TestPing(t *testing.T) {
	path, _ := startFakeDaemon(t, func(req request) response {
		return response{Status: StatusOK}
	})
	c := newTestClient(path)
	assert.Equal(t, StatusOK, c.Ping(context.Background()))
}

func TestPingUnreachableSocket(t *testing.T) {
	c := newTestClient("/no/such/daemon.sock")
	assert.Equal(t, StatusUnavailable, c.Ping(context.Background()))
}

func TestSearchReturnsDaemonResults(t *testing.T) {
	path, _ := startFakeDaemon(t, func(req request) response {
		if req.Command != "search" || req.Query != "Scheduler" {
			return response{Status: StatusOK, Error: "unexpected request"}
		}
		return response{Status: StatusOK, Results: []Result{
			{File: "scanner/scheduler.go", Line: 42, Score: 0.93},
		}}
	})
	c := newTestClient(path)

	results, err := c.Search(context.Background(), "Scheduler", t.TempDir())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "scanner/scheduler.go", results[0].File)
}

func TestSearchFallsBackWhenIndexing(t *testing.T) {
	path, _ := startFakeDaemon(t, func(req request) response {
		return response{Status: StatusIndexing}
	})
	c := newTestClient(path)

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"),
		[]byte("package main\n\nfunc ScheduleRun() {}\n"), 0o644))

	results, err := c.Search(context.Background(), "schedulerun", root)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 3, results[0].Line)
	assert.Equal(t, "func ScheduleRun() {}", results[0].Snippet)
}

func TestSearchFallsBackWhenSocketMissing(t *testing.T) {
	c := newTestClient("/no/such/daemon.sock")

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"),
		[]byte("first\nneedle here\nlast\n"), 0o644))

	results, err := c.Search(context.Background(), "needle", root)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Line)
}

func TestSemanticRequiresDaemon(t *testing.T) {
	path, _ := startFakeDaemon(t, func(req request) response {
		return response{Status: StatusUnavailable}
	})
	c := newTestClient(path)

	_, err := c.Semantic(context.Background(), "retry logic", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), StatusUnavailable)
}

func TestImpact(t *testing.T) {
	path, _ := startFakeDaemon(t, func(req request) response {
		if req.Command != "impact" {
			return response{Error: "wrong command"}
		}
		return response{Status: StatusOK, Results: []Result{
			{File: "store/session.go"},
			{File: "scanner/scheduler.go"},
		}}
	})
	c := newTestClient(path)

	results, err := c.Impact(context.Background(), "types/session.go", t.TempDir())
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestTextSearchSkipsVendorTrees(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "dep.js"),
		[]byte("needle\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.js"),
		[]byte("needle\n"), 0o644))

	results, err := textSearch(context.Background(), "needle", root)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, filepath.Join(root, "app.js"), results[0].File)
}

func TestTextSearchResultCap(t *testing.T) {
	root := t.TempDir()
	content := ""
	for i := 0; i < maxFallbackResults+20; i++ {
		content += "needle line\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), []byte(content), 0o644))

	results, err := textSearch(context.Background(), "needle", root)
	require.NoError(t, err)
	assert.Len(t, results, maxFallbackResults)
}
