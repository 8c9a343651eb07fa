package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// newVersionCmd 创建 version 子命令。
// 命令示例：reactorlog version
func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示当前版本号",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("reactorlog version %s\n", color.New(color.FgGreen, color.Bold).Sprint(version))
		},
	}
}
