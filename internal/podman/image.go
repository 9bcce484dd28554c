package podman

import (
	"context"
	"fmt"
	"strings"
)

// PullImage pulls a container image.
func (c *Client) PullImage(ctx context.Context, engineID, image string) error {
	result, err := c.Run(ctx, engineArgs(engineID, "pull", image)...)
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("podman pull failed (exit %d): %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// ImageEntry represents an image from podman images.
type ImageEntry struct {
	ID       string            `json:"Id"`
	Names    []string          `json:"Names"`
	RepoTags []string          `json:"RepoTags"`
	Labels   map[string]string `json:"Labels"`
	Size     int64             `json:"Size"`
	Created  int64             `json:"Created"`
}

// Tags returns the repository tags of the image. podman reports them as
// Names; older releases also fill RepoTags.
func (e ImageEntry) Tags() []string {
	if len(e.Names) > 0 {
		return e.Names
	}
	return e.RepoTags
}

// ListImages lists local images, optionally narrowed by podman filters.
func (c *Client) ListImages(ctx context.Context, engineID string, filters ...string) ([]ImageEntry, error) {
	args := []string{"images", "--format", "json"}
	for _, f := range filters {
		args = append(args, "--filter", f)
	}

	result, err := c.Run(ctx, engineArgs(engineID, args...)...)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("podman images failed (exit %d): %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	var entries []ImageEntry
	if err := parseJSONOutput(result.Stdout, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse podman images output: %w", err)
	}
	return entries, nil
}

// RemoveImage removes an image by ID.
func (c *Client) RemoveImage(ctx context.Context, engineID, id string) error {
	result, err := c.Run(ctx, engineArgs(engineID, "rmi", id)...)
	if err != nil {
		return fmt.Errorf("failed to remove image %s: %w", id, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("podman rmi failed (exit %d): %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// ImageInfo holds inspect output for an image.
type ImageInfo struct {
	ID           string            `json:"Id"`
	RepoTags     []string          `json:"RepoTags"`
	Architecture string            `json:"Architecture"`
	Os           string            `json:"Os"`
	Labels       map[string]string `json:"Labels"`
	Size         int64             `json:"Size"`
}

// InspectImage returns detailed info about a local image.
func (c *Client) InspectImage(ctx context.Context, engineID, ref string) (*ImageInfo, error) {
	var infos []ImageInfo
	if err := c.RunJSON(ctx, &infos, engineArgs(engineID, "image", "inspect", ref)...); err != nil {
		return nil, fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("image %s not found", ref)
	}
	return &infos[0], nil
}

// Platform identifies the os/architecture an image manifest targets.
type Platform struct {
	Architecture string `json:"architecture"`
	OS           string `json:"os"`
	Variant      string `json:"variant,omitempty"`
}

// ManifestEntry is one architecture-specific child of a manifest list.
type ManifestEntry struct {
	MediaType string   `json:"mediaType"`
	Digest    string   `json:"digest"`
	Size      int64    `json:"size"`
	Platform  Platform `json:"platform"`
}

// Manifest is a (possibly multi-architecture) image manifest list.
type Manifest struct {
	SchemaVersion int             `json:"schemaVersion"`
	MediaType     string          `json:"mediaType"`
	Manifests     []ManifestEntry `json:"manifests"`
}

// InspectManifest returns the manifest list for ref.
func (c *Client) InspectManifest(ctx context.Context, engineID, ref string) (*Manifest, error) {
	var m Manifest
	if err := c.RunJSON(ctx, &m, engineArgs(engineID, "manifest", "inspect", ref)...); err != nil {
		return nil, fmt.Errorf("failed to inspect manifest %s: %w", ref, err)
	}
	return &m, nil
}
