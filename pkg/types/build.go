package types

import "time"

// BuildType is a disk image format produced by bootc-image-builder.
type BuildType string

const (
	BuildTypeQCOW2 BuildType = "qcow2"
	BuildTypeAMI   BuildType = "ami"
	BuildTypeRaw   BuildType = "raw"
	BuildTypeISO   BuildType = "iso"
	BuildTypeVMDK  BuildType = "vmdk"
)

// BuildStatus represents the state of a build attempt.
type BuildStatus string

const (
	BuildStatusCreating BuildStatus = "creating"
	BuildStatusRunning  BuildStatus = "running"
	BuildStatusSuccess  BuildStatus = "success"
	BuildStatusError    BuildStatus = "error"
	BuildStatusLost     BuildStatus = "lost"
	BuildStatusDeleting BuildStatus = "deleting"
)

// Terminal reports whether no further transitions are expected.
func (s BuildStatus) Terminal() bool {
	switch s {
	case BuildStatusSuccess, BuildStatusError, BuildStatusLost:
		return true
	}
	return false
}

// BuildRecord is one persisted build attempt.
type BuildRecord struct {
	ID                  string      `json:"id"`
	Image               string      `json:"image"`
	ImageID             string      `json:"imageId,omitempty"`
	Tag                 string      `json:"tag"`
	EngineID            string      `json:"engineId"`
	Type                []BuildType `json:"type"`
	Folder              string      `json:"folder"`
	Arch                string      `json:"arch"`
	Filesystem          string      `json:"filesystem,omitempty"`
	BuildConfigFilePath string      `json:"buildConfigFilePath,omitempty"`
	Chown               string      `json:"chown,omitempty"`
	AWSAmiName          string      `json:"awsAmiName,omitempty"`
	AWSBucket           string      `json:"awsBucket,omitempty"`
	AWSRegion           string      `json:"awsRegion,omitempty"`
	Status              BuildStatus `json:"status,omitempty"`
	Timestamp           time.Time   `json:"timestamp,omitempty"`
	BuildContainerID    string      `json:"buildContainerId,omitempty"`
}

// BuildRequest is the request body for starting a build.
type BuildRequest struct {
	ID                  string      `json:"id" validate:"required"`
	Image               string      `json:"image" validate:"required"`
	ImageID             string      `json:"imageId,omitempty"`
	Tag                 string      `json:"tag" validate:"required"`
	EngineID            string      `json:"engineId" validate:"required"`
	Type                []BuildType `json:"type" validate:"required,min=1,dive,oneof=qcow2 ami raw iso vmdk"`
	Folder              string      `json:"folder" validate:"required"`
	Arch                string      `json:"arch" validate:"required,oneof=amd64 arm64"`
	Filesystem          string      `json:"filesystem,omitempty" validate:"omitempty,oneof=ext4 xfs"`
	BuildConfigFilePath string      `json:"buildConfigFilePath,omitempty"`
	Chown               string      `json:"chown,omitempty"`
	AWSAmiName          string      `json:"awsAmiName,omitempty"`
	AWSBucket           string      `json:"awsBucket,omitempty"`
	AWSRegion           string      `json:"awsRegion,omitempty"`
	Overwrite           bool        `json:"overwrite,omitempty"`
}

// Record returns the history record describing req.
func (req BuildRequest) Record() BuildRecord {
	return BuildRecord{
		ID:                  req.ID,
		Image:               req.Image,
		ImageID:             req.ImageID,
		Tag:                 req.Tag,
		EngineID:            req.EngineID,
		Type:                append([]BuildType(nil), req.Type...),
		Folder:              req.Folder,
		Arch:                req.Arch,
		Filesystem:          req.Filesystem,
		BuildConfigFilePath: req.BuildConfigFilePath,
		Chown:               req.Chown,
		AWSAmiName:          req.AWSAmiName,
		AWSBucket:           req.AWSBucket,
		AWSRegion:           req.AWSRegion,
	}
}

// BuildProgress is the live progress of a running build.
type BuildProgress struct {
	ID      string      `json:"id"`
	Image   string      `json:"image"`
	Status  BuildStatus `json:"status"`
	Percent int         `json:"percent"`
	Message string      `json:"message,omitempty"`
}

// BuildAccepted is returned when a build has been queued.
type BuildAccepted struct {
	ID        string `json:"id"`
	ImagePath string `json:"imagePath"`
	LogPath   string `json:"logPath"`
}

// DeleteBuildsRequest is the request body for removing history entries.
type DeleteBuildsRequest struct {
	Builds []BuildRecord `json:"builds" validate:"required,min=1"`
}

// WatchEvent is pushed over the history websocket.
type WatchEvent struct {
	Kind     string         `json:"kind"` // "history" or "progress"
	History  []BuildRecord  `json:"history,omitempty"`
	Progress *BuildProgress `json:"progress,omitempty"`
}

// PrereqStatus is the result of a host prerequisite check.
type PrereqStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}
