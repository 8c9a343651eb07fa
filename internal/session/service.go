package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"go.uber.org/zap"

	"reactorlog/internal/attribution"
	"reactorlog/internal/backends"
	"reactorlog/internal/mail"
	"reactorlog/internal/model"
	"reactorlog/internal/process"
	"reactorlog/internal/report"
)

var (
	// ErrProcessFailure 表示构建命令无法启动。
	ErrProcessFailure = errors.New("process failure")
	// ErrDescriptorWrite 表示重试描述文件无法生成，重试被放弃。
	ErrDescriptorWrite = errors.New("descriptor write failure")
	// ErrBuildFailed 表示构建结论不是成功。
	ErrBuildFailed = errors.New("build failed")
)

// Request 是一次 build 调用的参数。
type Request struct {
	// Command 为构建命令，空串时使用 DefaultCommand。
	Command string
	// CleanCommand 非空时在构建前执行，输出只回显不分析。
	CleanCommand string
	// RetryCommand 非空时，构建失败后只对失败模块重试一次。
	RetryCommand string
	WorkDir      string
	Backend      string
	Env          []string
	// Name 为通知邮件主题中的构建名称。
	Name string
}

// DefaultCommand 是默认的构建命令。
const DefaultCommand = "mvn install -fn -U"

// Notifier 描述失败通知的发送方式。
type Notifier struct {
	Sender  mail.Sender
	From    string
	Cc      []string
	Subject string
}

// Service 串联进程执行、会话扫描、重试、作者归属与报告。
type Service struct {
	Runner      process.Runner
	Registry    *backends.Registry
	Attribution *attribution.Stage
	Notifier    *Notifier
	// Out 接收回显行与作者汇总，为 nil 时不输出。
	Out    io.Writer
	Logger *zap.Logger
	GOOS   string
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Build 执行一次完整构建。
//
// 约束说明：
// - 构建成功时不做错误提取，Records 为空
// - 命令无法启动时返回 ErrProcessFailure，结论为失败
// - 结论不是成功时返回 ErrBuildFailed，结果中带有错误记录
func (s *Service) Build(ctx context.Context, req Request) (model.SessionResult, error) {
	registry := s.Registry
	if registry == nil {
		registry = backends.NewRegistry()
	}
	backend, err := registry.Lookup(req.Backend)
	if err != nil {
		return model.SessionResult{}, err
	}

	workDir, err := filepath.Abs(req.WorkDir)
	if err != nil {
		return model.SessionResult{}, fmt.Errorf("resolve work dir: %w", err)
	}
	command := req.Command
	if command == "" {
		command = DefaultCommand
	}

	if req.CleanCommand != "" {
		clean, err := s.run(ctx, req.CleanCommand, workDir, workDir, backend, req.Env)
		if err != nil {
			s.logger().Warn("clean step failed to start", zap.String("command", req.CleanCommand), zap.Error(err))
		} else if !clean.State().Verdict.Passed() {
			s.logger().Warn("clean step did not succeed", zap.String("session", clean.ID()))
		}
	}

	current, err := s.run(ctx, command, workDir, workDir, backend, req.Env)
	if err != nil {
		return current.Result(nil), err
	}
	if current.State().Verdict.Passed() {
		s.logger().Info("build succeeded", zap.String("session", current.ID()), zap.Int("lines", len(current.Lines())))
		return current.Result(nil), nil
	}

	if req.RetryCommand != "" {
		retried, err := s.retry(ctx, current, req.RetryCommand, workDir, backend, req.Env)
		switch {
		case err != nil:
			s.logger().Warn("retry abandoned", zap.String("session", current.ID()), zap.Error(err))
		case retried != nil:
			current = retried
			if current.State().Verdict.Passed() {
				s.logger().Info("retry succeeded", zap.String("session", current.ID()))
				return current.Result(nil), nil
			}
		}
	}

	records := current.Analyze()
	if s.Attribution != nil {
		if err := s.Attribution.Enrich(ctx, records); err != nil {
			return current.Result(records), err
		}
	}
	model.SortRecords(records)

	if s.Out != nil {
		if err := report.PrintAuthorSummary(s.Out, records); err != nil {
			s.logger().Warn("print author summary failed", zap.Error(err))
		}
	}
	if s.Notifier != nil && s.Notifier.Sender != nil {
		subject := report.Subject(s.Notifier.Subject, req.Name)
		messages := report.Notifications(subject, records)
		sent := report.Dispatch(ctx, s.Notifier.Sender, s.Notifier.From, s.Notifier.Cc, messages, s.logger())
		s.logger().Info("notifications dispatched", zap.Int("sent", sent), zap.Int("total", len(messages)))
	}

	return current.Result(records), ErrBuildFailed
}

// run 执行一条命令并把输出喂给新会话。dir 为进程工作目录，workDir 用于路径解析。
func (s *Service) run(ctx context.Context, command string, dir string, workDir string, backend backends.Backend, env []string) (*Session, error) {
	current := New(Config{
		Command: command,
		WorkDir: workDir,
		Backend: backend,
		Echo:    s.Out,
		Logger:  s.logger(),
		GOOS:    s.GOOS,
	})

	runner := s.Runner
	if runner == nil {
		runner = process.NewExec(s.logger())
	}

	execution, err := runner.Run(ctx, process.Command{Line: command, Dir: dir, Env: env})
	if err != nil {
		current.MarkFailed()
		return current, fmt.Errorf("%w: %v", ErrProcessFailure, err)
	}

	for line := range execution.Lines() {
		current.Feed(line)
	}
	if !execution.Succeeded() {
		current.MarkFailed()
	}
	return current, nil
}
