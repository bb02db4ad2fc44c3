// Package container implements the Container Provider contract (C9): the
// abstract lifecycle of a per-session agent worker, with a managed-runtime
// variant and a local child-process variant.
package container

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// ResourceLimits mirrors the resource_limits block of a session's agent
// config (§4.9). CPUQuota follows the runtime convention where a value ≥100
// is interpreted as microseconds-per-100ms (100000 = 1 CPU).
type ResourceLimits struct {
	CPUQuota    int
	MemoryLimit string
}

// cpuToCores converts a CPUQuota into a clamped core count, per §4.9:
// "CPU quota ... is interpreted so that a value ≥100 is
// microseconds-per-100ms ... clamped to [0.01, 14.0] CPUs."
func cpuToCores(quota int) float64 {
	var cores float64
	if quota >= 100 {
		cores = float64(quota) / 100000.0
	} else if quota > 0 {
		cores = float64(quota)
	} else {
		cores = 2.0
	}
	if cores < 0.01 {
		cores = 0.01
	}
	if cores > 14.0 {
		cores = 14.0
	}
	return cores
}

// Info is the opaque handle returned by Create and passed back into every
// other Provider method.
type Info struct {
	SessionID string
	AgentID   string
	Host      string
	Port      int
	Provider  string

	// managed-container specifics
	ContainerName string

	// local-process specifics
	PID int
}

func (i Info) baseURL() string {
	return "http://" + i.Host + ":" + strconv.Itoa(i.Port)
}

// Provider is the abstract lifecycle contract for a per-session agent
// worker (§4.9).
type Provider interface {
	// Create starts a worker and blocks until it reports healthy, or
	// returns a *StartError wrapping a *HealthCheckTimeoutError.
	Create(ctx context.Context, sessionID, agentID string, limits ResourceLimits, env map[string]string) (Info, error)

	// Stop tears down a worker. Idempotent.
	Stop(ctx context.Context, info Info) error

	// ExecuteQuery posts a query to the worker and streams its
	// server-sent-line response back through lines.
	ExecuteQuery(ctx context.Context, info Info, message string, history []json.RawMessage, lines chan<- string) error

	// HealthCheck reports whether the worker currently answers healthy.
	HealthCheck(ctx context.Context, info Info) bool
}

// queryRequest is the JSON body both variants POST to /query (§4.9 "Both
// implement execute_query as an HTTP POST ... {message, history}").
type queryRequest struct {
	Message string            `json:"message"`
	History []json.RawMessage `json:"history"`
}

// executeQueryHTTP implements the shared /query streaming contract used by
// both the managed-container and local-process variants.
func executeQueryHTTP(ctx context.Context, client *http.Client, baseURL, message string, history []json.RawMessage, lines chan<- string) error {
	body, err := json.Marshal(queryRequest{Message: message, History: history})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		select {
		case lines <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

// healthCheckHTTP polls baseURL's /health endpoint until it answers 200 OK
// or the deadline elapses, per §4.9.
func healthCheckHTTP(ctx context.Context, client *http.Client, baseURL string, deadline time.Duration, pollInterval time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if pingHealthy(ctx, client, baseURL) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func pingHealthy(ctx context.Context, client *http.Client, baseURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
