// Package vcs 查询源文件的最后提交信息，用于把错误归属到作者。
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNoHistory 表示文件不在版本库中或没有提交记录。
var ErrNoHistory = errors.New("no commit history")

// Info 是文件最后一次提交的作者信息。
type Info struct {
	Author  string `json:"author"`
	Email   string `json:"email"`
	Date    string `json:"date"`
	RepoURL string `json:"repoUrl,omitempty"`
}

// Blamer 查询文件最后一次提交。
type Blamer interface {
	Blame(ctx context.Context, path string) (*Info, error)
}

// Git 基于 git 命令行实现 Blamer。
type Git struct {
	// Binary 为空时使用 PATH 中的 git。
	Binary string
}

// logFormat 以 NUL 分隔作者、邮箱与提交时间。
const logFormat = "--format=%an%x00%ae%x00%ad"

// Blame 在文件所在目录执行 git log -1，并附带 origin 地址。
func (g *Git) Blame(ctx context.Context, path string) (*Info, error) {
	if path == "" {
		return nil, ErrNoHistory
	}
	dir := filepath.Dir(path)

	output, err := g.run(ctx, dir, "log", "-1", logFormat, "--date=format:%Y-%m-%d %H:%M:%S", "--", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("git log %s: %w", path, err)
	}

	fields := strings.Split(strings.TrimSpace(output), "\x00")
	if len(fields) != 3 || fields[0] == "" {
		return nil, fmt.Errorf("git log %s: %w", path, ErrNoHistory)
	}

	info := &Info{Author: fields[0], Email: fields[1], Date: fields[2]}
	if url, err := g.run(ctx, dir, "config", "--get", "remote.origin.url"); err == nil {
		info.RepoURL = strings.TrimSpace(url)
	}
	return info, nil
}

func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	binary := g.Binary
	if binary == "" {
		binary = "git"
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if message := strings.TrimSpace(stderr.String()); message != "" {
			return "", fmt.Errorf("%w: %s", err, message)
		}
		return "", err
	}
	return string(output), nil
}
