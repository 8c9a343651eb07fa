// Package report 提供 reactorlog 的输出能力。
// 当前实现支持控制台作者汇总、table 格式、JSON 格式（含文件导出）以及通知邮件正文。
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"reactorlog/internal/model"
)

// PrintTable 使用表格展示离线扫描结果。
func PrintTable(writer io.Writer, result model.ScanResult) error {
	tw := tabwriter.NewWriter(writer, 0, 4, 2, ' ', 0)

	if _, err := fmt.Fprintf(tw, "SCANNED PATH\t%s\n\n", result.ScannedPath); err != nil {
		return err
	}

	if _, err := fmt.Fprintln(tw, "LOG\tBACKEND\tVERDICT\tLINES\tRECORDS\tFAILED MODULES"); err != nil {
		return err
	}
	for _, item := range result.Logs {
		if _, err := fmt.Fprintf(
			tw,
			"%s\t%s\t%s\t%d\t%d\t%s\n",
			item.Path,
			item.Result.Backend,
			item.Result.Verdict,
			item.Result.Lines,
			len(item.Result.Records),
			strings.Join(item.Result.FailedModules, ","),
		); err != nil {
			return err
		}
	}

	if result.Total.Records > 0 {
		if _, err := fmt.Fprintln(tw, "\nLOG\tCLASS\tLOCATION\tLINE\tAUTHOR"); err != nil {
			return err
		}
		for _, item := range result.Logs {
			for _, record := range item.Result.Records {
				if _, err := fmt.Fprintf(
					tw,
					"%s\t%s\t%s\t%s\t%s\n",
					item.Path,
					record.Class,
					record.Key(),
					lineLabel(record.LineNumber),
					authorLabel(record.Author),
				); err != nil {
					return err
				}
			}
		}
	}

	if _, err := fmt.Fprintf(
		tw,
		"\nTOTAL\t%d logs\t%d failed\t%d records\n",
		result.Total.Logs,
		result.Total.Failed,
		result.Total.Records,
	); err != nil {
		return err
	}

	if len(result.Errors) > 0 {
		if _, err := fmt.Fprintln(tw, "\nERROR LOG\tMESSAGE"); err != nil {
			return err
		}
		for _, item := range result.Errors {
			if _, err := fmt.Fprintf(tw, "%s\t%s\n", item.Path, item.Error); err != nil {
				return err
			}
		}
	}

	return tw.Flush()
}

func lineLabel(line int) string {
	if line <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", line)
}

// PrintJSON 把结果按易读 JSON 输出到任意 writer。
func PrintJSON(writer io.Writer, result any) error {
	content, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if _, err := writer.Write(append(content, '\n')); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// WriteJSONFile 将 JSON 结果导出到指定路径。
// 如果目录不存在会自动创建。
func WriteJSONFile(path string, result any) error {
	content, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	directory := filepath.Dir(path)
	if directory != "." && directory != "" {
		if mkErr := os.MkdirAll(directory, 0o755); mkErr != nil {
			return fmt.Errorf("create output directory: %w", mkErr)
		}
	}

	if writeErr := os.WriteFile(path, content, 0o644); writeErr != nil {
		return fmt.Errorf("write output file: %w", writeErr)
	}
	return nil
}
