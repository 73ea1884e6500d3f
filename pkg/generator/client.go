// Package generator drives the LLM sub-agent CLI as a child process.
// Each report-writing intent (strategy analysis, section writing, fact
// checking) is a separate invocation with its own system prompt; the
// assembler additionally exposes the workspace publishing tool to the
// sub-agent.
//
// The CLI reads the combined system and user prompt from stdin and
// writes its answer to stdout. A non-zero exit, empty output, or an
// exceeded budget fails the call; the run's context cancels it by
// killing the process group.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/govsignal/scout/pkg/config"
)

// defaultTimeout bounds a text-mode invocation when the request does
// not carry its own budget.
const defaultTimeout = 300 * time.Second

// Environment the CLI inherits. The max-tokens variable caps stdout
// size; the nested-session marker must be absent or the CLI refuses to
// start from inside another session.
const (
	maxTokensEnv     = "CLAUDE_CODE_MAX_OUTPUT_TOKENS"
	nestedSessionEnv = "CLAUDECODE"
)

// promptJoint separates the system prompt from the user content on
// stdin.
const promptJoint = "\n\n---\n\n"

// Request is one sub-agent invocation. ToolServers switches the call
// into tool mode: the server config is handed to the CLI and only the
// tools on AllowedTools may be called.
type Request struct {
	System          string
	User            string
	Model           string
	MaxOutputTokens int
	Timeout         time.Duration
	ToolServers     map[string]any
	AllowedTools    []string
}

// Client runs the generator CLI. The binary path and credential are
// resolved once at startup.
type Client struct {
	binary   string
	token    string
	tokenEnv string
	logger   *slog.Logger
}

// NewClient locates the CLI binary and its credential. Both are
// required; a missing credential is a startup error, not a per-run one.
func NewClient(cfg *config.GeneratorConfig) (*Client, error) {
	path, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("generator binary %q not found on PATH: %w", cfg.Binary, err)
	}
	token := os.Getenv(cfg.TokenEnv)
	if token == "" {
		return nil, fmt.Errorf("%s not set; the generator cannot authenticate", cfg.TokenEnv)
	}

	logger := slog.Default().With(slog.String("component", "generator"))
	logger.Info("generator backend ready", slog.String("binary", path))

	return &Client{
		binary:   path,
		token:    token,
		tokenEnv: cfg.TokenEnv,
		logger:   logger,
	}, nil
}

// Generate invokes the CLI once and returns its stdout. The subprocess
// and anything it spawned are killed as a group when ctx is cancelled
// or the budget runs out.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"-p", "--model", req.Model}
	if req.ToolServers != nil {
		toolCfgPath, err := writeToolConfig(req.ToolServers)
		if err != nil {
			return "", err
		}
		defer os.Remove(toolCfgPath)
		args = append(args, "--mcp-config", toolCfgPath,
			"--allowedTools", strings.Join(req.AllowedTools, ","))
	}

	cmd := exec.CommandContext(runCtx, c.binary, args...)
	cmd.Stdin = strings.NewReader(req.System + promptJoint + req.User)
	cmd.Env = c.buildEnv(req.MaxOutputTokens)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Start the child in its own process group so cancellation reaps
	// grandchildren too, not just the CLI wrapper.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()

	switch {
	case ctx.Err() != nil:
		return "", ctx.Err()
	case runCtx.Err() != nil:
		return "", fmt.Errorf("generator timed out after %ds", int(timeout.Seconds()))
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail := strings.TrimSpace(stderr.String())
			if detail == "" {
				detail = truncate(strings.TrimSpace(stdout.String()), 500)
			}
			return "", fmt.Errorf("generator exited %d: %s", exitErr.ExitCode(), detail)
		}
		return "", fmt.Errorf("run generator: %w", err)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", errors.New("generator returned empty output")
	}

	c.logger.Debug("generator call complete",
		slog.String("model", req.Model),
		slog.Bool("tools", req.ToolServers != nil),
		slog.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	return out, nil
}

// buildEnv passes the parent environment through with the credential
// and output cap applied and the nested-session marker dropped.
func (c *Client) buildEnv(maxOutputTokens int) []string {
	parent := os.Environ()
	env := make([]string, 0, len(parent)+2)
	for _, kv := range parent {
		name, _, _ := strings.Cut(kv, "=")
		if name == c.tokenEnv || name == maxTokensEnv || name == nestedSessionEnv {
			continue
		}
		env = append(env, kv)
	}
	return append(env,
		c.tokenEnv+"="+c.token,
		fmt.Sprintf("%s=%d", maxTokensEnv, maxOutputTokens),
	)
}

// writeToolConfig stores the tool-server config where the CLI can read
// it. The caller removes the file after the run.
func writeToolConfig(servers map[string]any) (string, error) {
	f, err := os.CreateTemp("", "scout-tools-*.json")
	if err != nil {
		return "", fmt.Errorf("create tool config: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(map[string]any{"mcpServers": servers}); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write tool config: %w", err)
	}
	return f.Name(), nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
