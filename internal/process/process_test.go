package process

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell fixtures use sh syntax")
	}
}

func TestExecMergesStreams(t *testing.T) {
	skipWithoutShell(t)

	runner := NewExec(zaptest.NewLogger(t))
	execution, err := runner.Run(context.Background(), Command{Line: "echo out; echo err 1>&2; echo last"})
	require.NoError(t, err)

	lines := slices.Collect(execution.Lines())
	assert.Equal(t, []string{"out", "err", "last"}, lines)
	assert.True(t, execution.Succeeded())

	// 第二次消费不产生任何行。
	assert.Empty(t, slices.Collect(execution.Lines()))
}

func TestExecNonZeroExit(t *testing.T) {
	skipWithoutShell(t)

	execution, err := NewExec(nil).Run(context.Background(), Command{Line: "echo boom; exit 3"})
	require.NoError(t, err)

	assert.False(t, execution.Succeeded(), "not finished yet")
	assert.Equal(t, []string{"boom"}, slices.Collect(execution.Lines()))
	assert.False(t, execution.Succeeded())
}

func TestExecWorkingDirAndEnv(t *testing.T) {
	skipWithoutShell(t)

	dir := t.TempDir()
	execution, err := NewExec(nil).Run(context.Background(), Command{
		Line: `basename "$(pwd)"; echo "$REACTORLOG_MARKER"`,
		Dir:  dir,
		Env:  []string{"REACTORLOG_MARKER=marker"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Base(dir), "marker"}, slices.Collect(execution.Lines()))
	assert.True(t, execution.Succeeded())
}

func TestExecStartFailure(t *testing.T) {
	skipWithoutShell(t)

	_, err := NewExec(nil).Run(context.Background(), Command{
		Line: "echo unreachable",
		Dir:  filepath.Join(t.TempDir(), "missing"),
	})
	require.Error(t, err)
}

func TestExecEarlyStopKillsProcess(t *testing.T) {
	skipWithoutShell(t)

	execution, err := NewExec(nil).Run(context.Background(), Command{Line: "echo first; sleep 30"})
	require.NoError(t, err)

	for line := range execution.Lines() {
		assert.Equal(t, "first", line)
		break
	}
	assert.False(t, execution.Succeeded())
}

func TestExecCancel(t *testing.T) {
	skipWithoutShell(t)

	ctx, cancel := context.WithCancel(context.Background())
	execution, err := NewExec(nil).Run(ctx, Command{Line: "sleep 30"})
	require.NoError(t, err)

	cancel()
	assert.Empty(t, slices.Collect(execution.Lines()))
	assert.False(t, execution.Succeeded())
}

func TestShellArgs(t *testing.T) {
	name, args := shellArgs("windows", "mvn install")
	assert.Equal(t, "cmd", name)
	assert.Equal(t, []string{"/C", "mvn install"}, args)

	name, args = shellArgs("linux", "mvn install")
	assert.Equal(t, "sh", name)
	assert.Equal(t, []string{"-c", "mvn install"}, args)
}

func TestDecodeLine(t *testing.T) {
	assert.Equal(t, "plain", DecodeLine([]byte("plain\r\n")))
	assert.Equal(t, "中文", DecodeLine([]byte("中文\n")))
	// “错误” 的 GB18030 编码。
	assert.Equal(t, "foo.cc:1:1: 错误：", DecodeLine([]byte("foo.cc:1:1: \xb4\xed\xce\xf3\xa3\xba")))
}

func TestFake(t *testing.T) {
	startErr := errors.New("no such command")
	fake := &Fake{
		Scripts: map[string]Script{
			"mvn install": {Lines: []string{"a", "b"}, Fail: true},
			"missing":     {StartErr: startErr},
		},
		Default: Script{Lines: []string{"ok"}},
	}

	execution, err := fake.Run(context.Background(), Command{Line: "mvn install", Dir: "/w"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, slices.Collect(execution.Lines()))
	assert.False(t, execution.Succeeded())

	execution, err = fake.Run(context.Background(), Command{Line: "other"})
	require.NoError(t, err)
	assert.False(t, execution.Succeeded(), "not consumed yet")
	assert.Equal(t, []string{"ok"}, slices.Collect(execution.Lines()))
	assert.True(t, execution.Succeeded())

	_, err = fake.Run(context.Background(), Command{Line: "missing"})
	assert.ErrorIs(t, err, startErr)

	calls := fake.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "/w", calls[0].Dir)
}
