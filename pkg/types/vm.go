package types

// VMLaunchRequest is the request body for booting a built raw disk.
type VMLaunchRequest struct {
	Folder string `json:"folder" validate:"required"`
	Arch   string `json:"arch" validate:"required"`
}

// VMLaunchResult describes how to reach the launched VM.
type VMLaunchResult struct {
	Command    []string `json:"command"`
	ConsoleURL string   `json:"consoleURL"`
	SSHForward string   `json:"sshForward"`
	PIDFile    string   `json:"pidFile"`
}

// ExportRequest is the request body for archiving a built raw disk.
type ExportRequest struct {
	ID     string `json:"id" validate:"required"`
	Folder string `json:"folder" validate:"required"`
	Upload bool   `json:"upload,omitempty"`
}

// ExportResult describes a written (and optionally uploaded) disk archive.
type ExportResult struct {
	Archive string `json:"archive"`
	Blocks  int    `json:"blocks"`
	Size    int64  `json:"size"`
	Key     string `json:"key,omitempty"`
}
