// Package prereq checks that the host can run bootc-image-builder.
package prereq

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/bootcforge/bootcforge/internal/build"
	"github.com/bootcforge/bootcforge/internal/podman"
	"github.com/bootcforge/bootcforge/pkg/types"
)

// MinimumVersion is the oldest podman release that can build disk images.
const MinimumVersion = "5.0"

// Runner is the part of the podman client the checker uses.
type Runner interface {
	MachineInfo(ctx context.Context) (*podman.MachineInfo, error)
	VersionInfo(ctx context.Context) (*podman.VersionInfo, error)
}

// Checker validates the podman installation. On Linux podman runs natively
// and no check is needed.
type Checker struct {
	runner     Runner
	goos       string
	readConfig func(dir, machine string) (*podman.MachineConfig, error)
}

// New creates a checker for the current operating system.
func New(runner Runner) *Checker {
	return &Checker{
		runner:     runner,
		goos:       runtime.GOOS,
		readConfig: podman.ReadMachineConfig,
	}
}

// Check returns a prerequisite error carrying a remediation message, or nil.
func (c *Checker) Check(ctx context.Context) error {
	if c.goos == "linux" {
		return nil
	}

	if err := c.checkVersion(ctx); err != nil {
		return err
	}

	if !c.rootful(ctx) {
		return build.NewError(build.KindPrerequisite,
			"The podman machine is not set as rootful. Please recreate the podman machine with rootful privileges set and try again.", nil)
	}
	return nil
}

// Status runs Check and reports the outcome.
func (c *Checker) Status(ctx context.Context) types.PrereqStatus {
	if err := c.Check(ctx); err != nil {
		return types.PrereqStatus{OK: false, Message: err.Error()}
	}
	return types.PrereqStatus{OK: true}
}

func (c *Checker) checkVersion(ctx context.Context) error {
	info, err := c.runner.VersionInfo(ctx)
	if err != nil {
		return build.NewError(build.KindPrerequisite, "Unable to determine the podman version. Is podman installed?", err)
	}
	ok, err := SatisfiesMinimum(info.Client.Version, MinimumVersion)
	if err != nil {
		return build.NewError(build.KindPrerequisite, fmt.Sprintf("Unable to parse podman version %q.", info.Client.Version), err)
	}
	if !ok {
		return build.NewError(build.KindPrerequisite,
			fmt.Sprintf("Podman v%s or higher is required to build disk images. Installed version is v%s.", MinimumVersion, info.Client.Version), nil)
	}
	return nil
}

// rootful reports whether the current podman machine runs rootful. Missing
// information counts as rootless.
func (c *Checker) rootful(ctx context.Context) bool {
	info, err := c.runner.MachineInfo(ctx)
	if err != nil {
		log.Printf("prereq: error when checking rootful machine status: %v", err)
		return false
	}
	cfg, err := c.readConfig(info.Host.MachineConfigDir, info.Host.CurrentMachine)
	if err != nil {
		log.Printf("prereq: error when checking rootful machine status: %v", err)
		return false
	}

	if cfg.HostUser != nil && cfg.HostUser.Rootful != nil {
		return *cfg.HostUser.Rootful
	}
	if cfg.Rootful != nil {
		return *cfg.Rootful
	}
	log.Printf("prereq: no Rootful key found in machine config %s, assuming rootless", info.Host.CurrentMachine)
	return false
}

// SatisfiesMinimum reports whether version is at least minimum, comparing
// major and minor only so that a pre-release of the minimum passes.
func SatisfiesMinimum(version, minimum string) (bool, error) {
	v := canonical(version)
	if !semver.IsValid(v) {
		return false, fmt.Errorf("invalid version %q", version)
	}
	m := canonical(minimum)
	if !semver.IsValid(m) {
		return false, fmt.Errorf("invalid version %q", minimum)
	}
	return semver.Compare(semver.MajorMinor(v), semver.MajorMinor(m)) >= 0, nil
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
