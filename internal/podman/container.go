package podman

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ContainerConfig defines how to create a container.
type ContainerConfig struct {
	Name         string
	Image        string
	Labels       map[string]string
	Tty          bool
	Privileged   bool
	SecurityOpts []string
	Volumes      []string // bind mounts, "host:container[:opts]"
	Command      []string
}

// CreateContainer creates a container with the given config. Returns the container ID.
func (c *Client) CreateContainer(ctx context.Context, engineID string, cfg ContainerConfig) (string, error) {
	args := []string{"create", "--name", cfg.Name}

	// podman applies labels in argument order; sort for stable command lines.
	keys := make([]string, 0, len(cfg.Labels))
	for k := range cfg.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, cfg.Labels[k]))
	}

	if cfg.Tty {
		args = append(args, "--tty")
	}
	if cfg.Privileged {
		args = append(args, "--privileged")
	}
	for _, opt := range cfg.SecurityOpts {
		args = append(args, "--security-opt", opt)
	}
	for _, v := range cfg.Volumes {
		args = append(args, "--volume", v)
	}

	args = append(args, cfg.Image)
	args = append(args, cfg.Command...)

	result, err := c.Run(ctx, engineArgs(engineID, args...)...)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", cfg.Name, err)
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("podman create failed (exit %d): %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	return strings.TrimSpace(result.Stdout), nil
}

// StartContainer starts a container by name or ID.
func (c *Client) StartContainer(ctx context.Context, engineID, nameOrID string) error {
	result, err := c.Run(ctx, engineArgs(engineID, "start", nameOrID)...)
	if err != nil {
		return fmt.Errorf("failed to start container %s: %w", nameOrID, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("podman start failed (exit %d): %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// RemoveContainer force-removes a container by name or ID.
func (c *Client) RemoveContainer(ctx context.Context, engineID, nameOrID string) error {
	result, err := c.Run(ctx, engineArgs(engineID, "rm", "--force", "--time", "0", nameOrID)...)
	if err != nil {
		return fmt.Errorf("failed to remove container %s: %w", nameOrID, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("podman rm failed (exit %d): %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// PSEntry represents a container from podman ps.
type PSEntry struct {
	ID       string            `json:"Id"`
	Names    []string          `json:"Names"`
	State    string            `json:"State"`
	Status   string            `json:"Status"`
	Exited   bool              `json:"Exited"`
	ExitCode int               `json:"ExitCode"`
	Labels   map[string]string `json:"Labels"`
	Image    string            `json:"Image"`
}

// ListContainers lists all containers, optionally narrowed by podman ps filters
// such as "label=x" or "volume=y".
func (c *Client) ListContainers(ctx context.Context, engineID string, filters ...string) ([]PSEntry, error) {
	args := []string{"ps", "-a", "--format", "json"}
	for _, f := range filters {
		args = append(args, "--filter", f)
	}

	result, err := c.Run(ctx, engineArgs(engineID, args...)...)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("podman ps failed (exit %d): %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	var entries []PSEntry
	if err := parseJSONOutput(result.Stdout, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse podman ps output: %w", err)
	}
	for i := range entries {
		entries[i].normalizeStatus()
	}
	return entries, nil
}

// normalizeStatus fills Status for podman releases that leave it empty in
// JSON output, so callers can always match on "Exited (N)".
func (e *PSEntry) normalizeStatus() {
	if e.Status != "" {
		return
	}
	if e.Exited || e.State == "exited" {
		e.Status = fmt.Sprintf("Exited (%d)", e.ExitCode)
		return
	}
	if e.State != "" {
		e.Status = strings.ToUpper(e.State[:1]) + e.State[1:]
	}
}

// Logs follows the output of a container until it exits, passing every chunk to onChunk.
func (c *Client) Logs(ctx context.Context, engineID, nameOrID string, onChunk func(string)) error {
	return c.Stream(ctx, onChunk, engineArgs(engineID, "logs", "--follow", nameOrID)...)
}

// parseJSONOutput handles both JSON array and newline-delimited JSON.
func parseJSONOutput[T any](output string, dest *[]T) error {
	output = strings.TrimSpace(output)
	if output == "" || output == "[]" || output == "null" {
		return nil
	}

	// Try array first (newer podman versions)
	if strings.HasPrefix(output, "[") {
		return json.Unmarshal([]byte(output), dest)
	}

	// Newline-delimited JSON (older podman versions)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry T
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return err
		}
		*dest = append(*dest, entry)
	}
	return nil
}
