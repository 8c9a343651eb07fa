package process

import (
	"context"
	"iter"
	"sync"
)

// Script 是 Fake 对某条命令的预设输出。
type Script struct {
	Lines []string
	// Fail 为 true 时进程以非零状态结束。
	Fail bool
	// StartErr 非空时 Run 直接返回该错误。
	StartErr error
}

// Fake 是测试用 Runner：按命令行返回预设脚本，并记录调用顺序。
type Fake struct {
	// Scripts 以 Command.Line 为键；未命中时使用 Default。
	Scripts map[string]Script
	Default Script

	mu    sync.Mutex
	calls []Command
}

// Run 记录调用并返回脚本化的执行。
func (f *Fake) Run(ctx context.Context, command Command) (Execution, error) {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	script, ok := f.Scripts[command.Line]
	f.mu.Unlock()

	if !ok {
		script = f.Default
	}
	if script.StartErr != nil {
		return nil, script.StartErr
	}
	return &fakeExecution{ctx: ctx, script: script}, nil
}

// Calls 返回迄今为止的调用记录。
func (f *Fake) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.calls...)
}

type fakeExecution struct {
	ctx    context.Context
	script Script

	mu       sync.Mutex
	consumed bool
	done     bool
	canceled bool
}

func (x *fakeExecution) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		x.mu.Lock()
		if x.consumed {
			x.mu.Unlock()
			return
		}
		x.consumed = true
		x.mu.Unlock()

		canceled := false
		for _, line := range x.script.Lines {
			if x.ctx.Err() != nil {
				canceled = true
				break
			}
			if !yield(line) {
				break
			}
		}

		x.mu.Lock()
		x.done = true
		x.canceled = canceled
		x.mu.Unlock()
	}
}

func (x *fakeExecution) Succeeded() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.done && !x.canceled && !x.script.Fail
}
