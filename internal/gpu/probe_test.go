package gpu

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	assert.True(t, Static(true).Available(context.Background()))
	assert.False(t, Static(false).Available(context.Background()))
}

func TestSystemProber_NoDriver(t *testing.T) {
	p := &SystemProber{Paths: []string{filepath.Join(t.TempDir(), "absent")}}
	assert.False(t, p.Available(context.Background()))
}

// fakeSMI пишет shell-скрипт, печатающий out.
func fakeSMI(t *testing.T, out string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported")
	}
	path := filepath.Join(t.TempDir(), "nvidia-smi")
	script := "#!/bin/sh\nprintf '%s\\n' \"" + out + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestSystemProber_WithDevices(t *testing.T) {
	driver := filepath.Join(t.TempDir(), "version")
	require.NoError(t, os.WriteFile(driver, []byte("NVRM"), 0o600))

	p := &SystemProber{
		Paths: []string{driver},
		SMI:   fakeSMI(t, "GPU 0: NVIDIA A10G (UUID: GPU-1)"),
	}
	assert.True(t, p.Available(context.Background()))
}

func TestSystemProber_NoDevicesListed(t *testing.T) {
	driver := filepath.Join(t.TempDir(), "version")
	require.NoError(t, os.WriteFile(driver, []byte("NVRM"), 0o600))

	p := &SystemProber{
		Paths: []string{driver},
		SMI:   fakeSMI(t, "No devices were found"),
	}
	assert.False(t, p.Available(context.Background()))
}

func TestSystemProber_MissingSMI(t *testing.T) {
	driver := filepath.Join(t.TempDir(), "version")
	require.NoError(t, os.WriteFile(driver, []byte("NVRM"), 0o600))

	p := &SystemProber{Paths: []string{driver}, SMI: filepath.Join(t.TempDir(), "nvidia-smi")}
	assert.False(t, p.Available(context.Background()))
}
