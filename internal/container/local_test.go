package container

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os/exec"
	"strconv"
	"testing"
	"time"
)

// parseTestServerInfo turns an httptest.Server's URL into an Info whose
// baseURL() reconstructs that same address.
func parseTestServerInfo(t *testing.T, rawURL string) Info {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse test server port: %v", err)
	}
	return Info{Host: u.Hostname(), Port: port}
}

func TestNewLocalProviderAppliesDefaults(t *testing.T) {
	p := NewLocalProvider(LocalConfig{}, nil)
	if p.cfg.BasePort != 3100 {
		t.Errorf("BasePort = %d, want 3100", p.cfg.BasePort)
	}
	if p.cfg.HealthDeadline != 30*time.Second {
		t.Errorf("HealthDeadline = %v, want 30s", p.cfg.HealthDeadline)
	}
	if p.nextPort != p.cfg.BasePort {
		t.Errorf("nextPort = %d, want %d", p.nextPort, p.cfg.BasePort)
	}
}

func TestLocalProviderCreateFailsWithoutCommand(t *testing.T) {
	p := NewLocalProvider(LocalConfig{WorkspaceBaseDir: t.TempDir()}, nil)
	_, err := p.Create(context.Background(), "sess-1", "agent-1", ResourceLimits{}, nil)
	if err == nil {
		t.Fatal("expected Create to fail with no worker command configured")
	}
	var startErr *StartError
	if !errorsAs(err, &startErr) {
		t.Fatalf("expected a *StartError, got %T: %v", err, err)
	}
}

func errorsAs(err error, target **StartError) bool {
	se, ok := err.(*StartError)
	if ok {
		*target = se
	}
	return ok
}

func TestLocalProviderStopIsIdempotentWhenNoProcessTracked(t *testing.T) {
	p := NewLocalProvider(LocalConfig{}, nil)
	if err := p.Stop(context.Background(), Info{AgentID: "never-started"}); err != nil {
		t.Fatalf("Stop on an untracked agent should be a no-op, got %v", err)
	}
}

func TestLocalProviderExecuteQueryAndHealthCheckHitBaseURL(t *testing.T) {
	var healthHits, queryHits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			healthHits++
			w.WriteHeader(http.StatusOK)
		case "/query":
			queryHits++
			w.Write([]byte("ok\n"))
		}
	}))
	defer server.Close()

	p := NewLocalProvider(LocalConfig{}, nil)
	info := parseTestServerInfo(t, server.URL)

	if !p.HealthCheck(context.Background(), info) {
		t.Fatal("expected HealthCheck to report healthy")
	}
	if healthHits != 1 {
		t.Fatalf("healthHits = %d, want 1", healthHits)
	}

	lines := make(chan string, 4)
	go func() {
		_ = p.ExecuteQuery(context.Background(), info, "hi", nil, lines)
		close(lines)
	}()
	for range lines {
	}
	if queryHits != 1 {
		t.Fatalf("queryHits = %d, want 1", queryHits)
	}
}

// requireRealWorker gates the one test that spawns an actual child process
// and waits on its /health endpoint, mirroring the teacher's
// requireDocker-style skip for environment-dependent integration tests.
func requireRealWorker(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping local worker spawn test in short mode")
	}
	path, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available to stand in for a worker binary")
	}
	return path
}

func TestLocalProviderCreateSpawnsAndStopsWorker(t *testing.T) {
	python3 := requireRealWorker(t)

	p := NewLocalProvider(LocalConfig{
		Command:          []string{python3, "-c", localTestWorkerScript},
		WorkspaceBaseDir: t.TempDir(),
		HealthDeadline:   5 * time.Second,
	}, nil)

	info, err := p.Create(context.Background(), "sess-1", "agent-1", ResourceLimits{}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if info.PID == 0 {
		t.Fatal("expected a non-zero PID from the spawned worker")
	}

	if err := p.Stop(context.Background(), info); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// localTestWorkerScript answers 200 OK on /health using only the standard
// library's http.server module, reading PORT from the environment the way
// Create injects it.
const localTestWorkerScript = `
import http.server, os, sys
class H(http.server.BaseHTTPRequestHandler):
    def do_GET(self):
        self.send_response(200)
        self.end_headers()
    def log_message(self, *a): pass
port = int(os.environ["PORT"])
http.server.HTTPServer(("127.0.0.1", port), H).serve_forever()
`
