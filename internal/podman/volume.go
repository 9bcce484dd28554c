package podman

import (
	"context"
	"fmt"
	"strings"
)

// VolumeEntry represents a volume from podman volume ls, together with the
// names of the containers currently using it.
type VolumeEntry struct {
	Name       string   `json:"Name"`
	Driver     string   `json:"Driver"`
	Mountpoint string   `json:"Mountpoint"`
	Containers []string `json:"-"`
}

// ListVolumes lists volumes and resolves which containers use each one.
// podman volume ls carries no container association, so it is looked up
// per volume with ps --filter volume=.
func (c *Client) ListVolumes(ctx context.Context, engineID string) ([]VolumeEntry, error) {
	result, err := c.Run(ctx, engineArgs(engineID, "volume", "ls", "--format", "json")...)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("podman volume ls failed (exit %d): %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	var volumes []VolumeEntry
	if err := parseJSONOutput(result.Stdout, &volumes); err != nil {
		return nil, fmt.Errorf("failed to parse podman volume ls output: %w", err)
	}

	for i := range volumes {
		users, err := c.ListContainers(ctx, engineID, "volume="+volumes[i].Name)
		if err != nil {
			return nil, fmt.Errorf("failed to list containers using volume %s: %w", volumes[i].Name, err)
		}
		for _, u := range users {
			volumes[i].Containers = append(volumes[i].Containers, u.Names...)
		}
	}
	return volumes, nil
}

// RemoveVolume removes a volume by name.
func (c *Client) RemoveVolume(ctx context.Context, engineID, name string) error {
	result, err := c.Run(ctx, engineArgs(engineID, "volume", "rm", name)...)
	if err != nil {
		return fmt.Errorf("failed to remove volume %s: %w", name, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("podman volume rm failed (exit %d): %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}
