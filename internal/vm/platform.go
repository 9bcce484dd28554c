// Package vm boots a built raw disk image in a local QEMU virtual machine.
package vm

import (
	"fmt"

	"github.com/bootcforge/bootcforge/pkg/types"
)

// Platform is an operating system and CPU architecture pair, using GOOS and
// GOARCH names.
type Platform struct {
	OS   string
	Arch string
}

func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// Variant is a supported host and guest combination.
type Variant int

const (
	MacGuestAMD64 Variant = iota + 1
	MacGuestARM64
	LinuxGuestAMD64
	LinuxGuestARM64
)

func (v Variant) String() string {
	switch v {
	case MacGuestAMD64:
		return "darwin-arm64/amd64"
	case MacGuestARM64:
		return "darwin-arm64/arm64"
	case LinuxGuestAMD64:
		return "linux-amd64/amd64"
	case LinuxGuestARM64:
		return "linux-arm64/arm64"
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// UnsupportedError is returned for host, guest and disk type combinations
// that cannot be launched.
type UnsupportedError struct {
	Host      Platform
	GuestArch string
	Reason    string
}

func (e *UnsupportedError) Error() string {
	return e.Reason
}

// Resolve picks the launch variant for a guest of guestArch on host. Only raw
// disks can be booted; ami builds produce the same raw file.
func Resolve(host Platform, guestArch string, bt types.BuildType) (Variant, error) {
	if bt != types.BuildTypeRaw && bt != types.BuildTypeAMI {
		return 0, &UnsupportedError{Host: host, GuestArch: guestArch,
			Reason: fmt.Sprintf("Only raw disk images can be launched, got %s.", bt)}
	}
	if guestArch != "amd64" && guestArch != "arm64" {
		return 0, &UnsupportedError{Host: host, GuestArch: guestArch,
			Reason: fmt.Sprintf("Unsupported architecture: %s", guestArch)}
	}

	switch host {
	case Platform{OS: "darwin", Arch: "arm64"}:
		if guestArch == "amd64" {
			return MacGuestAMD64, nil
		}
		return MacGuestARM64, nil
	case Platform{OS: "linux", Arch: "amd64"}:
		if guestArch == "amd64" {
			return LinuxGuestAMD64, nil
		}
	case Platform{OS: "linux", Arch: "arm64"}:
		if guestArch == "arm64" {
			return LinuxGuestARM64, nil
		}
	}
	return 0, &UnsupportedError{Host: host, GuestArch: guestArch,
		Reason: fmt.Sprintf("Unsupported OS. Cannot launch a %s virtual machine on %s.", guestArch, host)}
}
