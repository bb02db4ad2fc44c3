package container

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCPUToCores(t *testing.T) {
	assert.Equal(t, 1.0, cpuToCores(100000))
	assert.Equal(t, 0.5, cpuToCores(50000))
	assert.Equal(t, 0.01, cpuToCores(1), "sub-core quotas below 100 clamp up to the 0.01 floor")
	assert.Equal(t, 2.0, cpuToCores(0), "no quota configured defaults to 2 cores")
	assert.Equal(t, 14.0, cpuToCores(20000000), "quotas above the ceiling clamp to 14 cores")
}

func TestExecuteQueryHTTPStreamsLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body queryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body.Message)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("line one\nline two\n"))
	}))
	defer server.Close()

	lines := make(chan string, 8)
	go func() {
		err := executeQueryHTTP(context.Background(), server.Client(), server.URL, "hello", nil, lines)
		require.NoError(t, err)
		close(lines)
	}()

	var got []string
	for l := range lines {
		got = append(got, l)
	}
	assert.Equal(t, []string{"line one", "line two"}, got)
}

func TestHealthCheckHTTPSucceedsOnceReady(t *testing.T) {
	var ready bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		ready = true
	}()

	ok := healthCheckHTTP(context.Background(), server.Client(), server.URL, 2*time.Second, 5*time.Millisecond)
	assert.True(t, ok)
}

func TestHealthCheckHTTPTimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ok := healthCheckHTTP(context.Background(), server.Client(), server.URL, 30*time.Millisecond, 5*time.Millisecond)
	assert.False(t, ok)
}

func TestInfoBaseURL(t *testing.T) {
	info := Info{Host: "127.0.0.1", Port: 3100}
	assert.Equal(t, "http://127.0.0.1:3100", info.baseURL())
}
