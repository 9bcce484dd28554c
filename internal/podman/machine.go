package podman

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MachineInfo is the subset of `podman machine info --format json` we read.
type MachineInfo struct {
	Host struct {
		Arch             string `json:"Arch"`
		CurrentMachine   string `json:"CurrentMachine"`
		MachineConfigDir string `json:"MachineConfigDir"`
		MachineState     string `json:"MachineState"`
		OS               string `json:"OS"`
		VMType           string `json:"VMType"`
	} `json:"Host"`
}

// MachineInfo returns information about the podman machine host.
func (c *Client) MachineInfo(ctx context.Context) (*MachineInfo, error) {
	var info MachineInfo
	if err := c.RunJSON(ctx, &info, "machine", "info", "--format", "json"); err != nil {
		return nil, err
	}
	return &info, nil
}

// MachineConfig is the on-disk configuration of a podman machine. podman 5
// moved Rootful under HostUser; older releases keep it at the top level.
type MachineConfig struct {
	Rootful  *bool `json:"Rootful,omitempty"`
	HostUser *struct {
		Rootful *bool `json:"Rootful,omitempty"`
	} `json:"HostUser,omitempty"`
}

// ReadMachineConfig loads <dir>/<machine>.json.
func ReadMachineConfig(dir, machine string) (*MachineConfig, error) {
	path := filepath.Join(dir, machine+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("machine config file %s does not exist", path)
		}
		return nil, fmt.Errorf("failed to read machine config %s: %w", path, err)
	}
	var cfg MachineConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse machine config %s: %w", path, err)
	}
	return &cfg, nil
}
