package types

// BootcImage is a local image labelled as a bootable container.
type BootcImage struct {
	ID       string            `json:"id"`
	Names    []string          `json:"names"`
	Labels   map[string]string `json:"labels,omitempty"`
	EngineID string            `json:"engineId"`
	Size     int64             `json:"size"`
}

// PullRequest is the request body for pulling an image.
type PullRequest struct {
	Image    string `json:"image" validate:"required"`
	EngineID string `json:"engineId,omitempty"`
}

// PruneRequest asks to delete images superseded by Image.
type PruneRequest struct {
	Image    string `json:"image" validate:"required"`
	EngineID string `json:"engineId,omitempty"`
}

// PruneResult lists the image IDs that were removed.
type PruneResult struct {
	Removed []string `json:"removed"`
}

// ManifestPlatform is one architecture offered by an image manifest.
type ManifestPlatform struct {
	Architecture string `json:"architecture"`
	OS           string `json:"os"`
	Digest       string `json:"digest"`
}
