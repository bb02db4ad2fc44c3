package container

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ManagedConfig configures the managed-container variant: an external
// runtime CLI invoked the way the teacher's sandbox package shells out to
// its own external tooling (§4.9 "invokes an external container runtime").
type ManagedConfig struct {
	// Runtime is the CLI binary used to manage workers, e.g. "docker" or
	// "nerdctl". Defaults to "docker".
	Runtime string
	// Network is the virtual network new workers are attached to.
	Network string
	// Image is the worker image to run.
	Image string
	// HealthDeadline bounds how long Create waits for /health to answer
	// 200 OK. Defaults to 60s per §4.9.
	HealthDeadline time.Duration
}

func (c *ManagedConfig) applyDefaults() {
	if c.Runtime == "" {
		c.Runtime = "docker"
	}
	if c.HealthDeadline <= 0 {
		c.HealthDeadline = 60 * time.Second
	}
}

// ManagedProvider starts workers via an external container runtime CLI and
// resolves their address on the configured virtual network.
type ManagedProvider struct {
	cfg    ManagedConfig
	client *http.Client
	logger *slog.Logger
}

// NewManagedProvider builds a ManagedProvider, applying config defaults.
func NewManagedProvider(cfg ManagedConfig, logger *slog.Logger) *ManagedProvider {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &ManagedProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 300 * time.Second},
		logger: logger,
	}
}

func (p *ManagedProvider) Create(ctx context.Context, sessionID, agentID string, limits ResourceLimits, env map[string]string) (Info, error) {
	containerName := "agentrt-" + agentID
	volume := "agentrt-workspace-" + agentID

	cores := cpuToCores(limits.CPUQuota)
	memory := limits.MemoryLimit
	if memory == "" {
		memory = "4g"
	}

	args := []string{
		"run", "-d",
		"--name", containerName,
		"--network", p.cfg.Network,
		"-v", volume + ":/workspace",
		"--cpus", strconv.FormatFloat(cores, 'f', -1, 64),
		"--memory", memory,
	}
	for k, v := range env {
		args = append(args, "-e", k+"="+v)
	}
	args = append(args, p.cfg.Image)

	out, err := p.run(ctx, args...)
	if err != nil {
		return Info{}, &StartError{SessionID: sessionID, Cause: fmt.Errorf("create container: %w: %s", err, out)}
	}

	ip, err := p.run(ctx, "inspect", "-f", "{{range .NetworkSettings.Networks}}{{.IPAddress}}{{end}}", containerName)
	if err != nil {
		return Info{}, &StartError{SessionID: sessionID, Cause: fmt.Errorf("inspect container: %w", err)}
	}

	info := Info{
		SessionID:     sessionID,
		AgentID:       agentID,
		Host:          strings.TrimSpace(ip),
		Port:          3000,
		Provider:      "managed",
		ContainerName: containerName,
	}

	if !healthCheckHTTP(ctx, p.client, info.baseURL(), p.cfg.HealthDeadline, time.Second) {
		_ = p.Stop(context.Background(), info)
		return Info{}, &StartError{
			SessionID: sessionID,
			Cause:     &HealthCheckTimeoutError{SessionID: sessionID, Deadline: p.cfg.HealthDeadline.String()},
		}
	}

	p.logger.Info("container healthy", "session_id", sessionID, "container", containerName, "ip", info.Host)
	return info, nil
}

func (p *ManagedProvider) Stop(ctx context.Context, info Info) error {
	if info.ContainerName == "" {
		return nil
	}
	if _, err := p.run(ctx, "stop", info.ContainerName); err != nil {
		p.logger.Warn("stop container failed", "container", info.ContainerName, "error", err)
	}
	if _, err := p.run(ctx, "rm", info.ContainerName); err != nil {
		p.logger.Warn("remove container failed", "container", info.ContainerName, "error", err)
	}
	volume := "agentrt-workspace-" + info.AgentID
	if _, err := p.run(ctx, "volume", "rm", volume); err != nil {
		p.logger.Warn("remove volume failed", "volume", volume, "error", err)
	}
	return nil
}

func (p *ManagedProvider) ExecuteQuery(ctx context.Context, info Info, message string, history []json.RawMessage, lines chan<- string) error {
	return executeQueryHTTP(ctx, p.client, info.baseURL(), message, history, lines)
}

func (p *ManagedProvider) HealthCheck(ctx context.Context, info Info) bool {
	return pingHealthy(ctx, p.client, info.baseURL())
}

func (p *ManagedProvider) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, p.cfg.Runtime, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stderr.String(), err
	}
	return strings.TrimSpace(stdout.String()), nil
}
