// Package cmd 提供 reactorlog 的命令行入口与子命令编排。
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reactorlog/internal/backends"
	"reactorlog/internal/config"
	"reactorlog/internal/logging"
)

// Execute 组装根命令并执行。
// version 参数由 main 包注入，便于在 CI/CD 中打包不同版本。
func Execute(version string) error {
	registry := backends.NewRegistry()
	rootCmd := newRootCmd(version, registry)
	return rootCmd.Execute()
}

// runtimeEnv 是 PersistentPreRunE 准备好的、子命令共享的运行环境。
type runtimeEnv struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

// load 读取配置并构造 logger。未指定 --config 时在当前目录查找默认文件。
func (e *runtimeEnv) load() error {
	path := e.configPath
	if path == "" {
		if wd, err := os.Getwd(); err == nil {
			path = config.Discover(wd)
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if e.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Logging.Format)
	if err != nil {
		return err
	}

	e.cfg = cfg
	e.logger = logger
	if path != "" {
		logger.Debug("config loaded", zap.String("path", path))
	}
	return nil
}

// newRootCmd 创建根命令并注册全部子命令。
func newRootCmd(version string, registry *backends.Registry) *cobra.Command {
	env := &runtimeEnv{}

	rootCmd := &cobra.Command{
		Use:   "reactorlog",
		Short: "Maven 反应堆构建日志分析工具",
		Long: "reactorlog 执行 Maven 反应堆构建并逐行分类输出，\n" +
			"失败时提取结构化错误记录、按 VCS 作者归属并发送通知，支持只重试失败模块与离线日志分析。",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			if err := env.load(); err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if env.logger != nil {
				_ = env.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&env.configPath, "config", "", "配置文件路径（.yaml/.yml/.toml），默认查找当前目录下的 reactorlog.*")
	rootCmd.PersistentFlags().BoolVarP(&env.verbose, "verbose", "v", false, "输出 debug 级别日志")

	rootCmd.AddCommand(newVersionCmd(version))
	rootCmd.AddCommand(newBackendCmd(registry))
	rootCmd.AddCommand(newBuildCmd(env, registry))
	rootCmd.AddCommand(newScanCmd(env, registry))

	return rootCmd
}
