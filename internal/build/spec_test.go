package build

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootcforge/bootcforge/pkg/types"
)

func TestImagePath(t *testing.T) {
	cases := map[types.BuildType]string{
		types.BuildTypeQCOW2: "/tmp/out/qcow2/disk.qcow2",
		types.BuildTypeAMI:   "/tmp/out/image/disk.raw",
		types.BuildTypeRaw:   "/tmp/out/image/disk.raw",
		types.BuildTypeISO:   "/tmp/out/bootiso/disk.iso",
		types.BuildTypeVMDK:  "/tmp/out/vmdk/disk.vmdk",
	}
	for bt, want := range cases {
		got, err := ImagePath("/tmp/out", bt)
		require.NoError(t, err)
		assert.Equal(t, want, got, "type %s", bt)
	}

	_, err := ImagePath("/tmp/out", "tar")
	assert.True(t, IsKind(err, KindValidation))
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, Exists(dir, []types.BuildType{types.BuildTypeRaw}))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "image"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image", "disk.raw"), []byte("x"), 0644))

	assert.True(t, Exists(dir, []types.BuildType{types.BuildTypeRaw}))
	assert.True(t, Exists(dir, []types.BuildType{types.BuildTypeQCOW2, types.BuildTypeAMI}))
	assert.False(t, Exists(dir, []types.BuildType{types.BuildTypeISO}))
}

func TestContainerName(t *testing.T) {
	assert.Equal(t, "fedora-bootc-bootc-image-builder", ContainerName("quay.io/centos-bootc/fedora-bootc"))
	assert.Equal(t, "demo-bootc-image-builder", ContainerName("demo"))
}

func TestNewContainerSpecISO(t *testing.T) {
	rec := types.BuildRecord{
		ID:     "b1",
		Image:  "quay.io/example/os",
		Tag:    "latest",
		Type:   []types.BuildType{types.BuildTypeISO},
		Folder: "/output-folder",
	}
	spec, err := NewContainerSpec("os-bootc-image-builder", BuilderImageCentOS, "/home/u", rec)
	require.NoError(t, err)

	assert.Equal(t, BuilderImageCentOS, spec.Image)
	assert.Contains(t, spec.Binds, "/output-folder:/output/")
	assert.Contains(t, spec.Binds, "/var/lib/containers/storage:/var/lib/containers/storage")
	assert.Equal(t, []string{"quay.io/example/os:latest", "--output", "/output/", "--local", "--type", "iso"}, spec.Cmd)
	assert.True(t, spec.Privileged)
	assert.True(t, spec.Tty)
	assert.Equal(t, []string{"label=type:unconfined_t"}, spec.SecurityOpt)
	assert.Equal(t, "/output-folder/bootiso/disk.iso", spec.Labels[LabelImageLocation])
	assert.Equal(t, "iso", spec.Labels[LabelBuildType])
	assert.Equal(t, "true", spec.Labels[LabelBuilder])
}

func TestNewContainerSpecOptions(t *testing.T) {
	rec := types.BuildRecord{
		Image:               "quay.io/example/os",
		Tag:                 "v2",
		Type:                []types.BuildType{types.BuildTypeAMI, types.BuildTypeQCOW2},
		Folder:              "/out",
		Arch:                "arm64",
		Filesystem:          "xfs",
		BuildConfigFilePath: "/etc/bib/config.toml",
		Chown:               "1000:1000",
		AWSAmiName:          "my-ami",
		AWSBucket:           "my-bucket",
		AWSRegion:           "eu-west-1",
	}
	spec, err := NewContainerSpec("n", BuilderImageRHEL, "/home/u", rec)
	require.NoError(t, err)

	cmd := strings.Join(spec.Cmd, " ")
	assert.Contains(t, cmd, "--type ami --type qcow2")
	assert.Contains(t, cmd, "--target-arch arm64")
	assert.Contains(t, cmd, "--rootfs xfs")
	assert.Contains(t, cmd, "--aws-ami-name my-ami --aws-bucket my-bucket --aws-region eu-west-1")
	assert.Contains(t, cmd, "--config /config.toml")
	assert.Contains(t, cmd, "--chown 1000:1000")
	assert.Contains(t, spec.Binds, "/home/u/.aws:/root/.aws:ro")
	assert.Contains(t, spec.Binds, "/etc/bib/config.toml:/config.toml:ro")
	assert.Equal(t, "/out/image/disk.raw", spec.Labels[LabelImageLocation])
	assert.Equal(t, "ami,qcow2", spec.Labels[LabelBuildType])
}

func TestNewContainerSpecIgnoresUnknownFilesystem(t *testing.T) {
	rec := types.BuildRecord{Image: "i", Tag: "t", Type: []types.BuildType{types.BuildTypeRaw}, Folder: "/o", Filesystem: "btrfs"}
	spec, err := NewContainerSpec("n", BuilderImageCentOS, "", rec)
	require.NoError(t, err)
	assert.NotContains(t, spec.Cmd, "--rootfs")
}

func TestNewContainerSpecRejectsUnknownType(t *testing.T) {
	rec := types.BuildRecord{Image: "i", Tag: "t", Type: []types.BuildType{types.BuildTypeRaw, "tar"}, Folder: "/o"}
	_, err := NewContainerSpec("n", BuilderImageCentOS, "", rec)
	assert.True(t, IsKind(err, KindValidation))
}

func TestPodmanRunCommand(t *testing.T) {
	rec := types.BuildRecord{Image: "quay.io/example/os", Tag: "latest", Type: []types.BuildType{types.BuildTypeQCOW2}, Folder: "/out"}
	spec, err := NewContainerSpec("os-bootc-image-builder", BuilderImageCentOS, "", rec)
	require.NoError(t, err)

	cmd := PodmanRunCommand(spec)
	assert.True(t, strings.HasPrefix(cmd, "podman run \\"))
	assert.Contains(t, cmd, "--name os-bootc-image-builder")
	assert.Contains(t, cmd, "--privileged")
	assert.Contains(t, cmd, "-v /out:/output/")
	assert.Contains(t, cmd, BuilderImageCentOS)
	assert.Contains(t, cmd, "quay.io/example/os:latest")
}

func TestBuilderImage(t *testing.T) {
	assert.Equal(t, BuilderImageRHEL, BuilderImage("RHEL"))
	assert.Equal(t, BuilderImageCentOS, BuilderImage("CentOS"))
	assert.Equal(t, BuilderImageCentOS, BuilderImage(""))
}
