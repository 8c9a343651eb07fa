package cmd

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"reactorlog/internal/backends"
	"reactorlog/internal/report"
	"reactorlog/internal/scanner"
)

// scanOptions 存放 scan 命令的可配置参数。
type scanOptions struct {
	format  string
	output  string
	workers int
	backend string
	workDir string
}

// newScanCmd 创建 scan 子命令，离线分析已保存的构建日志。
// 示例：
//
//	reactorlog scan ./logs
//	reactorlog scan nightly.log --backend cpp-linux --format json --output result.json
func newScanCmd(env *runtimeEnv, registry *backends.Registry) *cobra.Command {
	options := scanOptions{
		format:  "table",
		output:  "output.json",
		workers: runtime.NumCPU(),
	}

	scanCmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "分析目录或文件中的构建日志并输出错误记录",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("format") {
				options.format = env.cfg.Report.Format
			}
			if !flags.Changed("output") && env.cfg.Report.Output != "" {
				options.output = env.cfg.Report.Output
			}
			if !flags.Changed("backend") {
				options.backend = env.cfg.Build.Backend
			}

			format := strings.ToLower(strings.TrimSpace(options.format))
			if format != "table" && format != "json" {
				return errors.New("unsupported format, allowed values: table, json")
			}

			if options.workers <= 0 {
				return errors.New("workers must be greater than 0")
			}

			service, err := scanner.NewService(registry, scanner.Options{
				Backend: options.backend,
				Workers: options.workers,
				WorkDir: options.workDir,
				Logger:  env.logger,
			})
			if err != nil {
				return err
			}
			result, err := service.ScanPath(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			switch format {
			case "table":
				return report.PrintTable(cmd.OutOrStdout(), result)
			case "json":
				if err := report.PrintJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}

				outputPath := strings.TrimSpace(options.output)
				if outputPath == "" {
					outputPath = "output.json"
				}
				if err := report.WriteJSONFile(outputPath, result); err != nil {
					return err
				}

				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nJSON exported to %s\n", outputPath)
				return nil
			default:
				return errors.New("unsupported format")
			}
		},
	}

	scanCmd.Flags().StringVar(&options.format, "format", options.format, "输出格式: table 或 json")
	scanCmd.Flags().StringVar(&options.output, "output", options.output, "json 导出文件路径，默认 output.json")
	scanCmd.Flags().IntVar(&options.workers, "workers", options.workers, "并发会话数量")
	scanCmd.Flags().StringVar(&options.backend, "backend", "", "语言后端，默认取 build.backend")
	scanCmd.Flags().StringVar(&options.workDir, "work-dir", "", "解析日志中相对路径的目录，默认为日志所在目录")

	return scanCmd
}
