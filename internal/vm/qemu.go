package vm

import (
	"strconv"
	"strings"
)

// QEMU defaults shared by every variant.
const (
	DefaultPIDFile = "/tmp/qemu-bootcforge.pid"
	MemorySize     = "4G"
	WebsocketAddr  = "127.0.0.1:45252"
	SSHHostPort    = 2222
	RawImagePath   = "image/disk.raw"
)

// Paths of the QEMU binaries and firmware each variant needs.
const (
	macQemuX86     = "/opt/homebrew/bin/qemu-system-x86_64"
	macQemuArm64   = "/opt/homebrew/bin/qemu-system-aarch64"
	macEdk2Arm64   = "/opt/homebrew/share/qemu/edk2-aarch64-code.fd"
	linuxQemuX86   = "/usr/bin/qemu-system-x86_64"
	linuxQemuArm64 = "/usr/bin/qemu-system-aarch64"
	linuxAAVMF     = "/usr/share/AAVMF/AAVMF_CODE.fd"
)

func hostForward() string {
	return "hostfwd=tcp::" + strconv.Itoa(SSHHostPort) + "-:22"
}

func serial() string {
	return "websocket:" + WebsocketAddr + ",server,nowait"
}

// requiredFiles lists the host files a variant cannot run without.
func requiredFiles(v Variant) []string {
	switch v {
	case MacGuestAMD64:
		return []string{macQemuX86}
	case MacGuestARM64:
		return []string{macQemuX86, macQemuArm64, macEdk2Arm64}
	case LinuxGuestAMD64:
		return []string{linuxQemuX86, "/dev/kvm"}
	case LinuxGuestARM64:
		return []string{linuxQemuArm64, linuxAAVMF, "/dev/kvm"}
	}
	return nil
}

// Command returns the QEMU invocation booting disk for variant v.
func Command(v Variant, disk, pidFile string) []string {
	switch v {
	case MacGuestAMD64:
		return []string{
			macQemuX86,
			"-m", MemorySize,
			"-nographic",
			"-cpu", "Broadwell-v4",
			"-pidfile", pidFile,
			"-serial", serial(),
			"-netdev", "user,id=mynet0," + hostForward(),
			"-device", "e1000,netdev=mynet0",
			"-snapshot",
			disk,
		}
	case MacGuestARM64:
		return arm64Command(macQemuArm64, "hvf", macEdk2Arm64, disk, pidFile)
	case LinuxGuestAMD64:
		return []string{
			linuxQemuX86,
			"-m", MemorySize,
			"-nographic",
			"-enable-kvm",
			"-cpu", "host",
			"-smp", "4",
			"-pidfile", pidFile,
			"-serial", serial(),
			"-netdev", "user,id=mynet0," + hostForward(),
			"-device", "e1000,netdev=mynet0",
			"-snapshot",
			disk,
		}
	case LinuxGuestARM64:
		return arm64Command(linuxQemuArm64, "kvm", linuxAAVMF, disk, pidFile)
	}
	return nil
}

func arm64Command(binary, accel, firmware, disk, pidFile string) []string {
	return []string{
		binary,
		"-m", MemorySize,
		"-nographic",
		"-M", "virt",
		"-accel", accel,
		"-cpu", "host",
		"-smp", "4",
		"-serial", serial(),
		"-pidfile", pidFile,
		"-netdev", "user,id=usernet," + hostForward(),
		"-device", "virtio-net,netdev=usernet",
		"-drive", "file=" + firmware + ",format=raw,if=pflash,readonly=on",
		"-snapshot",
		disk,
	}
}

// shellJoin quotes args for sh -c.
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a != "" && strings.IndexFunc(a, needsQuote) < 0 {
			quoted[i] = a
			continue
		}
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./:=,+@%", r)
}
