// Package process 启动构建命令，并把合并后的 stdout/stderr 以行序列交给调用方。
package process

import (
	"context"
	"iter"
)

// Command 描述一次命令执行。
type Command struct {
	// Line 是交给系统 shell 执行的完整命令行。
	Line string
	// Dir 为工作目录，空串表示继承当前目录。
	Dir string
	// Env 是追加到当前环境之后的 KEY=VALUE 项。
	Env []string
}

// Execution 是一次已启动的执行。
//
// 约束说明：
// - Lines 只能被消费一次，不可重启
// - Succeeded 只在 Lines 耗尽之后才有意义
type Execution interface {
	Lines() iter.Seq[string]
	Succeeded() bool
}

// Runner 启动命令。启动失败（命令不存在、目录无效）以 error 返回。
type Runner interface {
	Run(ctx context.Context, command Command) (Execution, error)
}
