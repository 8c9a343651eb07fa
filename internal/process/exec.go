package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// Exec 通过系统 shell 运行命令（sh -c 或 cmd /C）。
type Exec struct {
	Logger *zap.Logger
	// GOOS 为空时使用 runtime.GOOS，仅用于选择 shell。
	GOOS string
}

// NewExec 创建生产用 Runner。
func NewExec(logger *zap.Logger) *Exec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exec{Logger: logger}
}

// Run 启动命令，stdout 与 stderr 写入同一管道以保持交错顺序。
func (e *Exec) Run(ctx context.Context, command Command) (Execution, error) {
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	name, args := shellArgs(e.goos(), command.Line)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = command.Dir
	if len(command.Env) > 0 {
		cmd.Env = append(os.Environ(), command.Env...)
	}

	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create pipe: %w", err)
	}
	cmd.Stdout = writer
	cmd.Stderr = writer

	if err := cmd.Start(); err != nil {
		reader.Close()
		writer.Close()
		return nil, fmt.Errorf("start %q: %w", command.Line, err)
	}
	// 子进程持有写端副本，父进程的写端必须关闭，否则读取永远不会结束。
	writer.Close()

	logger.Debug("process started",
		zap.String("command", command.Line),
		zap.String("dir", command.Dir),
		zap.Int("pid", cmd.Process.Pid),
	)

	return &execution{ctx: ctx, cmd: cmd, reader: reader, logger: logger}, nil
}

func (e *Exec) goos() string {
	if e.GOOS != "" {
		return e.GOOS
	}
	return runtime.GOOS
}

func shellArgs(goos string, line string) (string, []string) {
	if goos == "windows" {
		return "cmd", []string{"/C", line}
	}
	return "sh", []string{"-c", line}
}

type execution struct {
	ctx    context.Context
	cmd    *exec.Cmd
	reader *os.File
	logger *zap.Logger

	once    sync.Once
	mu      sync.Mutex
	done    bool
	waitErr error
}

func (x *execution) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		consumed := true
		x.once.Do(func() { consumed = false })
		if consumed {
			return
		}

		// 取消时关闭读端，防止孙进程持有管道导致读取阻塞。
		stop := context.AfterFunc(x.ctx, func() { x.reader.Close() })
		defer stop()

		stopped := false
		buffered := bufio.NewReaderSize(x.reader, 64*1024)
		for {
			raw, err := buffered.ReadBytes('\n')
			if len(raw) > 0 {
				if !yield(DecodeLine(raw)) {
					stopped = true
					break
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && x.ctx.Err() == nil {
					x.logger.Warn("read process output failed", zap.Error(err))
				}
				break
			}
		}

		if stopped && x.cmd.Process != nil {
			_ = x.cmd.Process.Kill()
		}
		x.reader.Close()
		x.finish(x.cmd.Wait())
	}
}

func (x *execution) finish(err error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.done = true
	x.waitErr = err
	if err != nil {
		x.logger.Debug("process finished", zap.Error(err))
	}
}

func (x *execution) Succeeded() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.done && x.waitErr == nil
}

// DecodeLine 去掉行尾换行；非法 UTF-8 按 GB18030 解码（中文环境工具链的默认编码）。
func DecodeLine(raw []byte) string {
	raw = bytes.TrimRight(raw, "\r\n")
	if utf8.Valid(raw) {
		return string(raw)
	}
	decoded, err := simplifiedchinese.GB18030.NewDecoder().Bytes(raw)
	if err != nil {
		return string(bytes.ToValidUTF8(raw, []byte("\uFFFD")))
	}
	return string(decoded)
}
