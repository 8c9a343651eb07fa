package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reactorlog/internal/attribution"
	"reactorlog/internal/backends"
	"reactorlog/internal/config"
	"reactorlog/internal/mail"
	"reactorlog/internal/process"
	"reactorlog/internal/report"
	"reactorlog/internal/session"
	"reactorlog/internal/vcs"
)

// buildOptions 存放 build 命令的可配置参数，未显式指定的参数取配置文件的值。
type buildOptions struct {
	command      string
	cleanCommand string
	retryCommand string
	backend      string
	workDir      string
	name         string
	clean        bool
	retry        bool
	mail         bool
	dryRun       bool
	output       string
}

// newBuildCmd 创建 build 子命令。
// 示例：
//
//	reactorlog build
//	reactorlog build --dir ./uep --backend cpp-linux --retry
//	reactorlog build --command "mvn install -fn" --output result.json
func newBuildCmd(env *runtimeEnv, registry *backends.Registry) *cobra.Command {
	options := buildOptions{}

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "执行构建，失败时提取错误、归属作者并发送通知",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *env.cfg
			options.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return runBuild(ctx, cmd, &cfg, registry, env.logger, strings.TrimSpace(options.output))
		},
	}

	flags := buildCmd.Flags()
	flags.StringVar(&options.command, "command", "", "构建命令，默认取 build.command")
	flags.StringVar(&options.cleanCommand, "clean-command", "", "清理命令，默认取 build.clean_command")
	flags.BoolVar(&options.clean, "clean", false, "构建前先执行清理命令")
	flags.BoolVar(&options.retry, "retry", false, "失败后只重试失败模块一次")
	flags.StringVar(&options.retryCommand, "retry-command", "", "重试命令，默认取 retry.command")
	flags.StringVar(&options.backend, "backend", "", "语言后端: java, cpp, cpp-linux, cpp-solaris, cpp-windows")
	flags.StringVar(&options.workDir, "dir", "", "构建工作目录，默认取 build.work_dir")
	flags.StringVar(&options.name, "name", "", "通知邮件主题中的构建名称")
	flags.BoolVar(&options.mail, "mail", false, "发送失败通知邮件")
	flags.BoolVar(&options.dryRun, "dry-run", false, "通知邮件只写日志不发送")
	flags.StringVar(&options.output, "output", "", "把会话结果以 JSON 写入该文件")

	return buildCmd
}

// apply 把显式指定的命令行参数覆盖到配置上。
func (o *buildOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("command") {
		cfg.Build.Command = o.command
	}
	if flags.Changed("clean-command") {
		cfg.Build.CleanCommand = o.cleanCommand
	}
	if flags.Changed("clean") {
		cfg.Build.Clean = o.clean
	}
	if flags.Changed("retry") {
		cfg.Retry.Enabled = o.retry
	}
	if flags.Changed("retry-command") {
		cfg.Retry.Command = o.retryCommand
	}
	if flags.Changed("backend") {
		cfg.Build.Backend = o.backend
	}
	if flags.Changed("dir") {
		cfg.Build.WorkDir = o.workDir
	}
	if flags.Changed("name") {
		cfg.Build.Name = o.name
	}
	if flags.Changed("mail") {
		cfg.Mail.Enabled = o.mail
	}
	if flags.Changed("dry-run") {
		cfg.Mail.DryRun = o.dryRun
	}
}

// runBuild 按配置组装 session.Service 并执行一次构建。
func runBuild(ctx context.Context, cmd *cobra.Command, cfg *config.Config, registry *backends.Registry, logger *zap.Logger, output string) error {
	service := newBuildService(cmd, cfg, registry, logger)

	request := session.Request{
		Command: cfg.Build.Command,
		WorkDir: cfg.Build.WorkDir,
		Backend: cfg.Build.Backend,
		Env:     cfg.Build.Env,
		Name:    cfg.Build.Name,
	}
	if cfg.Build.Clean {
		request.CleanCommand = cfg.Build.CleanCommand
	}
	if cfg.Retry.Enabled {
		request.RetryCommand = cfg.Retry.Command
	}

	result, buildErr := service.Build(ctx, request)

	if output != "" && result.ID != "" {
		if err := report.WriteJSONFile(output, result); err != nil {
			return errors.Join(buildErr, err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nJSON exported to %s\n", output)
	}

	logger.Info("build finished",
		zap.String("session", result.ID),
		zap.Stringer("verdict", result.Verdict),
		zap.Int("records", len(result.Records)),
		zap.Bool("retried", result.Retried),
	)
	return buildErr
}

func newBuildService(cmd *cobra.Command, cfg *config.Config, registry *backends.Registry, logger *zap.Logger) *session.Service {
	service := &session.Service{
		Runner:   process.NewExec(logger),
		Registry: registry,
		Out:      cmd.OutOrStdout(),
		Logger:   logger,
	}

	if cfg.Attribution.Enabled {
		service.Attribution = &attribution.Stage{
			Blamer:  &vcs.Git{Binary: cfg.Attribution.Git},
			Workers: cfg.Attribution.Workers,
			Logger:  logger,
		}
	}

	if cfg.Mail.Enabled {
		var sender mail.Sender = &mail.SMTP{
			Addr:     cfg.Mail.Addr,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			Timeout:  cfg.MailTimeout(),
			Logger:   logger,
		}
		if cfg.Mail.DryRun {
			sender = &mail.Log{Logger: logger}
		}
		service.Notifier = &session.Notifier{
			Sender:  sender,
			From:    cfg.Mail.From,
			Cc:      cfg.Mail.Cc,
			Subject: cfg.Mail.Subject,
		}
	}

	return service
}
