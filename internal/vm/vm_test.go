package vm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootcforge/bootcforge/pkg/types"
)

type fakeShell struct {
	started []string
	ran     []string
	stderr  string
	err     error
}

func (f *fakeShell) Start(command string) error {
	f.started = append(f.started, command)
	return f.err
}

func (f *fakeShell) Run(_ context.Context, command string) (string, error) {
	f.ran = append(f.ran, command)
	return f.stderr, f.err
}

func newTestManager(host Platform, present ...string) (*Manager, *fakeShell) {
	files := make(map[string]bool)
	for _, p := range present {
		files[p] = true
	}
	sh := &fakeShell{}
	return &Manager{
		host:    host,
		pidFile: DefaultPIDFile,
		shell:   sh,
		exists:  func(p string) bool { return files[p] },
	}, sh
}

func TestResolve(t *testing.T) {
	mac := Platform{OS: "darwin", Arch: "arm64"}
	linuxX86 := Platform{OS: "linux", Arch: "amd64"}
	linuxArm := Platform{OS: "linux", Arch: "arm64"}

	cases := []struct {
		host  Platform
		guest string
		want  Variant
	}{
		{mac, "amd64", MacGuestAMD64},
		{mac, "arm64", MacGuestARM64},
		{linuxX86, "amd64", LinuxGuestAMD64},
		{linuxArm, "arm64", LinuxGuestARM64},
	}
	for _, tc := range cases {
		v, err := Resolve(tc.host, tc.guest, types.BuildTypeRaw)
		require.NoError(t, err)
		assert.Equal(t, tc.want, v)
	}

	var unsupported *UnsupportedError
	_, err := Resolve(linuxX86, "arm64", types.BuildTypeRaw)
	assert.True(t, errors.As(err, &unsupported))
	_, err = Resolve(Platform{OS: "windows", Arch: "amd64"}, "amd64", types.BuildTypeRaw)
	assert.True(t, errors.As(err, &unsupported))
	_, err = Resolve(mac, "arm64", types.BuildTypeQCOW2)
	assert.True(t, errors.As(err, &unsupported))
	_, err = Resolve(mac, "s390x", types.BuildTypeRaw)
	assert.EqualError(t, err, "Unsupported architecture: s390x")
}

func TestCommandMacX86(t *testing.T) {
	cmd := Command(MacGuestAMD64, "/out/image/disk.raw", DefaultPIDFile)
	joined := strings.Join(cmd, " ")
	assert.Equal(t, "/opt/homebrew/bin/qemu-system-x86_64", cmd[0])
	assert.Contains(t, joined, "-m 4G")
	assert.Contains(t, joined, "-cpu Broadwell-v4")
	assert.Contains(t, joined, "-pidfile /tmp/qemu-bootcforge.pid")
	assert.Contains(t, joined, "-serial websocket:127.0.0.1:45252,server,nowait")
	assert.Contains(t, joined, "-netdev user,id=mynet0,hostfwd=tcp::2222-:22")
	assert.Contains(t, joined, "-device e1000,netdev=mynet0")
	assert.Equal(t, []string{"-snapshot", "/out/image/disk.raw"}, cmd[len(cmd)-2:])
}

func TestCommandArm64(t *testing.T) {
	mac := strings.Join(Command(MacGuestARM64, "/d", DefaultPIDFile), " ")
	assert.Contains(t, mac, "-accel hvf")
	assert.Contains(t, mac, "-M virt")
	assert.Contains(t, mac, "-device virtio-net,netdev=usernet")
	assert.Contains(t, mac, "file=/opt/homebrew/share/qemu/edk2-aarch64-code.fd,format=raw,if=pflash,readonly=on")

	linux := strings.Join(Command(LinuxGuestARM64, "/d", DefaultPIDFile), " ")
	assert.Contains(t, linux, "-accel kvm")
	assert.Contains(t, linux, "AAVMF_CODE.fd")
}

func TestCheckLaunch(t *testing.T) {
	host := Platform{OS: "darwin", Arch: "arm64"}

	m, _ := newTestManager(host)
	err := m.CheckLaunch("/out", "arm64")
	assert.EqualError(t, err, "Raw disk image not found at /out/image/disk.raw. Please build a .raw disk image first.")

	m, _ = newTestManager(host, "/out/image/disk.raw", macQemuX86)
	assert.NoError(t, m.CheckLaunch("/out", "amd64"))
	err = m.CheckLaunch("/out", "arm64")
	assert.ErrorContains(t, err, macQemuArm64)
}

func TestLaunch(t *testing.T) {
	m, sh := newTestManager(Platform{OS: "linux", Arch: "amd64"}, "/out dir/image/disk.raw", linuxQemuX86, "/dev/kvm")

	res, err := m.Launch(context.Background(), "/out dir", "amd64")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:45252", res.ConsoleURL)
	assert.Equal(t, "localhost:2222", res.SSHForward)
	assert.Equal(t, DefaultPIDFile, res.PIDFile)
	require.Len(t, sh.started, 1)
	assert.True(t, strings.HasPrefix(sh.started[0], linuxQemuX86+" -m 4G"))
	assert.True(t, strings.HasSuffix(sh.started[0], "'/out dir/image/disk.raw'"))
}

func TestStop(t *testing.T) {
	m, sh := newTestManager(Platform{OS: "linux", Arch: "amd64"})
	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, []string{"kill -9 `cat /tmp/qemu-bootcforge.pid`"}, sh.ran)

	sh.err = errors.New("exit status 1")
	sh.stderr = "sh: kill: (1234) - No such process"
	assert.NoError(t, m.Stop(context.Background()))

	sh.stderr = "cat: /tmp/qemu-bootcforge.pid: Permission denied"
	assert.ErrorContains(t, m.Stop(context.Background()), "Permission denied")
}

func TestShellJoin(t *testing.T) {
	assert.Equal(t, "a -b c=d,e", shellJoin([]string{"a", "-b", "c=d,e"}))
	assert.Equal(t, `'it'\''s' ''`, shellJoin([]string{"it's", ""}))
}
