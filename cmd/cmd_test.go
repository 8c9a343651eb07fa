package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reactorlog/internal/backends"
	"reactorlog/internal/model"
	"reactorlog/internal/session"
)

func init() {
	color.NoColor = true
}

// runCommand 以给定参数执行根命令，返回 stdout。
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	t.Setenv("SENDMAIL", "")
	t.Setenv("REACTORLOG_LANG", "")

	configPath := filepath.Join(t.TempDir(), "reactorlog.yaml")
	if err := os.WriteFile(configPath, []byte("logging:\n  level: error\nattribution:\n  enabled: false\n"), 0o644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}

	var out bytes.Buffer
	rootCmd := newRootCmd("v1.2.3", backends.NewRegistry())
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "reactorlog version v1.2.3\n", out)
}

func TestBackendCommand(t *testing.T) {
	out, err := runCommand(t, "backend")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "BACKEND"))
	assert.Contains(t, out, "java")
	assert.Contains(t, out, "cpp-windows")
}

func TestScanCommandJSON(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "nightly.log")
	require.NoError(t, os.WriteFile(logPath, []byte(strings.Join([]string{
		"[INFO] Building core 1.0",
		"[ERROR] /build/core/src/Foo.java:[3,1] boom",
		"[INFO] BUILD FAILURE",
	}, "\n")), 0o644))
	outputPath := filepath.Join(dir, "result.json")

	out, err := runCommand(t, "scan", logPath, "--format", "json", "--output", outputPath)
	require.NoError(t, err)
	assert.Contains(t, out, "JSON exported to "+outputPath)

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	var result model.ScanResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, int64(1), result.Total.Failed)
	assert.Equal(t, int64(1), result.Total.Records)
}

func TestScanCommandRejectsFormat(t *testing.T) {
	_, err := runCommand(t, "scan", t.TempDir(), "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestBuildCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}

	dir := t.TempDir()
	success := "echo '[INFO] Building core 1.0'; echo '[INFO] compiling'; echo '[INFO] BUILD SUCCESS'"
	out, err := runCommand(t, "build", "--dir", dir, "--command", success)
	require.NoError(t, err)
	assert.Contains(t, out, "[INFO] compiling")
	assert.NotContains(t, out, "BUILD SUCCESS")

	outputPath := filepath.Join(dir, "session.json")
	failure := "echo '[INFO] Building core 1.0'; echo '[ERROR] /build/core/src/Foo.java:[3,1] boom'; echo '[INFO] BUILD FAILURE'; exit 1"
	_, err = runCommand(t, "build", "--dir", dir, "--command", failure, "--output", outputPath)
	require.ErrorIs(t, err, session.ErrBuildFailed)

	data, readErr := os.ReadFile(outputPath)
	require.NoError(t, readErr)
	var result model.SessionResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Records, 1)
	assert.Equal(t, "/build/core/src/Foo.java", result.Records[0].File)
}

func TestBuildCommandUnknownBackend(t *testing.T) {
	_, err := runCommand(t, "build", "--backend", "cobol", "--command", "true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}
