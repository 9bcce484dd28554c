package build

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bootcforge/bootcforge/internal/podman"
	"github.com/bootcforge/bootcforge/pkg/types"
)

// Builder container images.
const (
	BuilderName        = "bootc-image-builder"
	BuilderImageCentOS = "quay.io/centos-bootc/bootc-image-builder:latest"
	BuilderImageRHEL   = "registry.redhat.io/rhel9/bootc-image-builder:9.4"
)

// Labels placed on every builder container.
const (
	LabelBuilder       = "bootc.image.builder"
	LabelImageLocation = "bootc.build.image.location"
	LabelBuildType     = "bootc.build.type"
)

// LogFileName is written into the output folder of every build.
const LogFileName = "image-build.log"

const (
	storageBind  = "/var/lib/containers/storage:/var/lib/containers/storage"
	outputMount  = "/output/"
	configMount  = "/config.toml"
	securityOpt  = "label=type:unconfined_t"
	awsMountOpts = "/root/.aws:ro"
)

var outputPaths = map[types.BuildType]string{
	types.BuildTypeQCOW2: "qcow2/disk.qcow2",
	types.BuildTypeAMI:   "image/disk.raw",
	types.BuildTypeRaw:   "image/disk.raw",
	types.BuildTypeISO:   "bootiso/disk.iso",
	types.BuildTypeVMDK:  "vmdk/disk.vmdk",
}

// BuilderImage returns the builder image for a configured builder name.
func BuilderImage(builder string) string {
	if builder == "RHEL" {
		return BuilderImageRHEL
	}
	return BuilderImageCentOS
}

// RelativeImagePath returns where bootc-image-builder writes a disk of type t,
// relative to the output folder.
func RelativeImagePath(t types.BuildType) (string, error) {
	p, ok := outputPaths[t]
	if !ok {
		return "", newError(KindValidation, fmt.Sprintf("Unsupported disk image type %q.", t), nil)
	}
	return p, nil
}

// ImagePath returns the absolute disk image path for type t under folder.
func ImagePath(folder string, t types.BuildType) (string, error) {
	rel, err := RelativeImagePath(t)
	if err != nil {
		return "", err
	}
	return filepath.Join(folder, rel), nil
}

// Exists reports whether any of the disk images for ts is already present in folder.
func Exists(folder string, ts []types.BuildType) bool {
	for _, t := range ts {
		p, err := ImagePath(folder, t)
		if err != nil {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// ContainerName is the preferred builder container name for image, before
// collision handling.
func ContainerName(image string) string {
	parts := strings.Split(image, "/")
	return parts[len(parts)-1] + "-" + BuilderName
}

// ContainerSpec fully describes the builder container of one build attempt.
// It is serialized verbatim into the build log.
type ContainerSpec struct {
	Name        string            `json:"name"`
	Image       string            `json:"Image"`
	Tty         bool              `json:"Tty"`
	Privileged  bool              `json:"Privileged"`
	SecurityOpt []string          `json:"SecurityOpt"`
	Binds       []string          `json:"Binds"`
	Labels      map[string]string `json:"Labels"`
	Cmd         []string          `json:"Cmd"`
}

// NewContainerSpec maps a build to its builder container. homeDir is only
// consulted for AWS uploads, which mount ~/.aws into the container.
func NewContainerSpec(name, builderImage, homeDir string, rec types.BuildRecord) (ContainerSpec, error) {
	if len(rec.Type) == 0 {
		return ContainerSpec{}, newError(KindValidation, "Bootc image type is required.", nil)
	}
	imagePath, err := ImagePath(rec.Folder, rec.Type[0])
	if err != nil {
		return ContainerSpec{}, err
	}

	typeNames := make([]string, 0, len(rec.Type))
	cmd := []string{rec.Image + ":" + rec.Tag, "--output", outputMount, "--local"}
	for _, t := range rec.Type {
		if _, err := RelativeImagePath(t); err != nil {
			return ContainerSpec{}, err
		}
		cmd = append(cmd, "--type", string(t))
		typeNames = append(typeNames, string(t))
	}
	if rec.Arch != "" {
		cmd = append(cmd, "--target-arch", rec.Arch)
	}
	if rec.Filesystem == "ext4" || rec.Filesystem == "xfs" {
		cmd = append(cmd, "--rootfs", rec.Filesystem)
	}

	binds := []string{rec.Folder + ":" + outputMount, storageBind}

	if rec.AWSAmiName != "" && rec.AWSBucket != "" && rec.AWSRegion != "" {
		cmd = append(cmd,
			"--aws-ami-name", rec.AWSAmiName,
			"--aws-bucket", rec.AWSBucket,
			"--aws-region", rec.AWSRegion)
		binds = append(binds, filepath.Join(homeDir, ".aws")+":"+awsMountOpts)
	}
	if rec.BuildConfigFilePath != "" {
		binds = append(binds, rec.BuildConfigFilePath+":"+configMount+":ro")
		cmd = append(cmd, "--config", configMount)
	}
	if rec.Chown != "" {
		cmd = append(cmd, "--chown", rec.Chown)
	}

	return ContainerSpec{
		Name:        name,
		Image:       builderImage,
		Tty:         true,
		Privileged:  true,
		SecurityOpt: []string{securityOpt},
		Binds:       binds,
		Labels: map[string]string{
			LabelBuilder:       "true",
			LabelImageLocation: imagePath,
			LabelBuildType:     strings.Join(typeNames, ","),
		},
		Cmd: cmd,
	}, nil
}

// ContainerConfig converts the spec to the podman create configuration.
func (s ContainerSpec) ContainerConfig() podman.ContainerConfig {
	return podman.ContainerConfig{
		Name:         s.Name,
		Image:        s.Image,
		Labels:       s.Labels,
		Tty:          s.Tty,
		Privileged:   s.Privileged,
		SecurityOpts: s.SecurityOpt,
		Volumes:      s.Binds,
		Command:      s.Cmd,
	}
}

// PodmanRunCommand renders an equivalent `podman run` invocation so a failed
// build can be reproduced by hand.
func PodmanRunCommand(s ContainerSpec) string {
	var b strings.Builder
	b.WriteString("podman run \\")
	line := func(format string, args ...interface{}) {
		b.WriteString("\n  ")
		fmt.Fprintf(&b, format, args...)
		b.WriteString(" \\")
	}

	if s.Name != "" {
		line("--name %s", s.Name)
	}
	if s.Tty {
		line("--tty")
	}
	if s.Privileged {
		line("--privileged")
	}
	for _, opt := range s.SecurityOpt {
		line("--security-opt %s", opt)
	}
	for _, bind := range s.Binds {
		line("-v %s", bind)
	}
	keys := make([]string, 0, len(s.Labels))
	for k := range s.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line("--label %s=%s", k, s.Labels[k])
	}
	if s.Image != "" {
		line("%s", s.Image)
	}
	for _, arg := range s.Cmd {
		line("%s", arg)
	}

	return strings.TrimSuffix(b.String(), " \\")
}
