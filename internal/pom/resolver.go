package pom

import (
	"os"
	"path/filepath"
	"strings"
)

// prefixPlaceholder 是原生库工程在 artifactId 中使用的 profile 占位符。
const prefixPlaceholder = "${prefix}"

// ResolveArtifactID 从 path 所在目录开始逐级向上，找到第一个包含 pom.xml 的目录，
// 返回其 artifactId。
//
// 约束说明：
// - 描述文件无法解析、缺少 artifactId 或已到达文件系统根时返回 false
// - 以 ${prefix} 开头的 artifactId 在 windows 上展开为空串，其余系统展开为 lib
func ResolveArtifactID(path string, goos string) (string, bool) {
	if path == "" {
		return "", false
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	dir := filepath.Clean(path)
	if !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	for {
		candidate := filepath.Join(dir, FileName)
		if fileExists(candidate) {
			descriptor, err := ReadDescriptor(candidate)
			if err != nil {
				return "", false
			}
			id := descriptor.ArtifactID()
			if id == "" {
				return "", false
			}
			return expandPrefix(id, goos), true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func expandPrefix(id string, goos string) string {
	if !strings.HasPrefix(id, prefixPlaceholder) {
		return id
	}
	replacement := "lib"
	if goos == "windows" {
		replacement = ""
	}
	return strings.ReplaceAll(id, prefixPlaceholder, replacement)
}

// ResolveModulePaths 从 rootDir 的 pom.xml 出发递归展开 modules，
// 返回 artifactId → 模块绝对目录。无法读取的子工程被跳过。
// 含 ${prefix} 的 artifactId 同时以原文和按 goos 展开后的名称登记，
// 因为 Reactor Summary 打印的是展开后的名称。
func ResolveModulePaths(rootDir string, goos string) map[string]string {
	if rootDir == "" {
		rootDir = "."
	}

	paths := make(map[string]string)
	visited := make(map[string]bool)
	collectModulePaths(rootDir, goos, paths, visited)
	return paths
}

func collectModulePaths(dir string, goos string, paths map[string]string, visited map[string]bool) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return
	}
	if visited[abs] {
		return
	}
	visited[abs] = true

	descriptor, err := ReadDescriptor(filepath.Join(abs, FileName))
	if err != nil {
		return
	}

	if id := descriptor.ArtifactID(); id != "" {
		paths[id] = abs
		paths[expandPrefix(id, goos)] = abs
	}
	for _, module := range descriptor.Modules() {
		collectModulePaths(filepath.Join(abs, filepath.FromSlash(module)), goos, paths, visited)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
