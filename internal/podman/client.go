package podman

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/bootcforge/bootcforge/internal/metrics"
)

// DefaultEngine is the engine id of the local (or default remote) podman
// connection. Any other engine id is passed to podman as --connection.
const DefaultEngine = "podman"

// Client wraps the podman CLI for container operations.
type Client struct {
	binaryPath string
}

// NewClient creates a new Podman client. It verifies podman is available.
func NewClient() (*Client, error) {
	name := "podman"
	if runtime.GOOS == "windows" {
		name = "podman.exe"
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("podman not found in PATH: %w", err)
	}
	return &Client{binaryPath: path}, nil
}

// NewClientWithBinary creates a client for an explicit podman binary, such as
// a custom install location.
func NewClientWithBinary(path string) (*Client, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("podman binary %s: %w", path, err)
	}
	return &Client{binaryPath: path}, nil
}

// BinaryPath returns the podman executable used by the client.
func (c *Client) BinaryPath() string {
	return c.binaryPath
}

// ExecResult holds the output from a podman command.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// engineArgs prefixes args with the connection selector for engineID.
func engineArgs(engineID string, args ...string) []string {
	if engineID == "" || engineID == DefaultEngine {
		return args
	}
	return append([]string{"--connection", engineID}, args...)
}

// Run executes a podman command and returns the result.
func (c *Client) Run(ctx context.Context, args ...string) (*ExecResult, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, c.binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	metrics.PodmanOpDuration.WithLabelValues(opName(args)).Observe(time.Since(start).Seconds())

	result := &ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("podman exec failed: %w", err)
	}

	return result, nil
}

// RunJSON executes a podman command and parses JSON output into dest.
func (c *Client) RunJSON(ctx context.Context, dest interface{}, args ...string) error {
	result, err := c.Run(ctx, args...)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("podman %s failed (exit %d): %s",
			strings.Join(args, " "), result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	if err := json.Unmarshal([]byte(result.Stdout), dest); err != nil {
		return fmt.Errorf("failed to parse podman output: %w", err)
	}
	return nil
}

// Stream runs a long-lived podman command and hands every chunk of combined
// stdout/stderr to onChunk as it arrives. It returns once the command exits
// or ctx is canceled.
func (c *Client) Stream(ctx context.Context, onChunk func(string), args ...string) error {
	cmd := exec.CommandContext(ctx, c.binaryPath, args...)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return fmt.Errorf("podman %s: %w", args[0], err)
	}

	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		pw.CloseWithError(io.EOF)
		waitErr <- err
	}()

	buf := make([]byte, 4096)
	for {
		n, err := pr.Read(buf)
		if n > 0 {
			onChunk(string(buf[:n]))
		}
		if err != nil {
			break
		}
	}

	if err := <-waitErr; err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("podman %s failed: %w", strings.Join(args, " "), err)
	}
	return nil
}

// Ping reports whether the engine behind engineID answers.
func (c *Client) Ping(ctx context.Context, engineID string) error {
	result, err := c.Run(ctx, engineArgs(engineID, "info", "--format", "json")...)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("podman info failed (exit %d): %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// VersionInfo is the subset of `podman version --format json` we read.
type VersionInfo struct {
	Client struct {
		APIVersion string `json:"APIVersion"`
		Version    string `json:"Version"`
		OsArch     string `json:"OsArch"`
	} `json:"Client"`
	Server *struct {
		APIVersion string `json:"APIVersion"`
		Version    string `json:"Version"`
	} `json:"Server,omitempty"`
}

// VersionInfo returns the structured podman version report.
func (c *Client) VersionInfo(ctx context.Context) (*VersionInfo, error) {
	var info VersionInfo
	if err := c.RunJSON(ctx, &info, "version", "--format", "json"); err != nil {
		return nil, err
	}
	return &info, nil
}

// Version returns the podman version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	result, err := c.Run(ctx, "version", "--format", "{{.Client.Version}}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

func opName(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "--connection" {
			i++
			continue
		}
		return args[i]
	}
	return "unknown"
}
