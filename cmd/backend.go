package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"reactorlog/internal/backends"
)

// newBackendCmd 创建 backend 子命令。
// 命令用于展示可选的语言后端以及 C++ 后端识别的编译器语法。
func newBackendCmd(registry *backends.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "backend",
		Short: "展示可选语言后端",
		RunE: func(cmd *cobra.Command, _ []string) error {
			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			if _, err := fmt.Fprintln(writer, "BACKEND\tLANGUAGE\tGRAMMARS"); err != nil {
				return err
			}

			for _, item := range registry.Backends() {
				grammars := "-"
				if len(item.Grammars) > 0 {
					grammars = strings.Join(item.Grammars, ", ")
				}
				if _, err := fmt.Fprintf(writer, "%s\t%s\t%s\n", item.Name, item.Language, grammars); err != nil {
					return err
				}
			}

			return writer.Flush()
		},
	}
}
