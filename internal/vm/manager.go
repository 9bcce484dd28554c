package vm

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/bootcforge/bootcforge/pkg/types"
)

// Shell runs sh -c command lines.
type Shell interface {
	// Start launches command and returns without waiting for it.
	Start(command string) error
	// Run waits for command and returns its stderr.
	Run(ctx context.Context, command string) (string, error)
}

type execShell struct{}

func (execShell) Start(command string) error {
	cmd := exec.Command("sh", "-c", command)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("vm: qemu exited: %v: %s", err, strings.TrimSpace(stderr.String()))
			return
		}
		log.Printf("vm: qemu exited")
	}()
	return nil
}

func (execShell) Run(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// Manager launches and stops the single local VM.
type Manager struct {
	host    Platform
	pidFile string
	shell   Shell
	exists  func(path string) bool
}

// NewManager creates a manager for the machine it runs on.
func NewManager() *Manager {
	return &Manager{
		host:    Platform{OS: runtime.GOOS, Arch: runtime.GOARCH},
		pidFile: DefaultPIDFile,
		shell:   execShell{},
		exists:  fileExists,
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// DiskPath returns the raw disk a build in folder produces.
func DiskPath(folder string) string {
	return filepath.Join(folder, RawImagePath)
}

// MissingDiskError is returned when a folder holds no raw disk image.
type MissingDiskError struct {
	Path string
}

func (e *MissingDiskError) Error() string {
	return fmt.Sprintf("Raw disk image not found at %s. Please build a .raw disk image first.", e.Path)
}

// CheckLaunch returns why the raw disk in folder cannot be booted as arch,
// or nil if it can.
func (m *Manager) CheckLaunch(folder, arch string) error {
	disk := DiskPath(folder)
	if !m.exists(disk) {
		return &MissingDiskError{Path: disk}
	}
	v, err := Resolve(m.host, arch, types.BuildTypeRaw)
	if err != nil {
		return err
	}
	for _, f := range requiredFiles(v) {
		if !m.exists(f) {
			return fmt.Errorf("%s not found. Please install QEMU and try again.", f)
		}
	}
	return nil
}

// Launch boots the raw disk in folder. Writes to the disk are discarded when
// the VM stops.
func (m *Manager) Launch(ctx context.Context, folder, arch string) (*types.VMLaunchResult, error) {
	if err := m.CheckLaunch(folder, arch); err != nil {
		return nil, err
	}
	v, err := Resolve(m.host, arch, types.BuildTypeRaw)
	if err != nil {
		return nil, err
	}

	args := Command(v, DiskPath(folder), m.pidFile)
	if len(args) == 0 {
		return nil, fmt.Errorf("unable to generate the launch command for %s", v)
	}

	log.Printf("vm: launching %s: %s", v, strings.Join(args, " "))
	if err := m.shell.Start(shellJoin(args)); err != nil {
		return nil, fmt.Errorf("failed to launch vm: %w", err)
	}

	return &types.VMLaunchResult{
		Command:    args,
		ConsoleURL: "ws://" + WebsocketAddr,
		SSHForward: "localhost:" + strconv.Itoa(SSHHostPort),
		PIDFile:    m.pidFile,
	}, nil
}

// Stop kills the running VM. Stopping when no VM runs is not an error.
func (m *Manager) Stop(ctx context.Context) error {
	stderr, err := m.shell.Run(ctx, "kill -9 `cat "+m.pidFile+"`")
	if err == nil {
		return nil
	}
	if strings.Contains(stderr, "No such process") {
		return nil
	}
	if msg := strings.TrimSpace(stderr); msg != "" {
		return fmt.Errorf("failed to stop vm: %s", msg)
	}
	return fmt.Errorf("failed to stop vm: %w", err)
}
