package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"reactorlog/internal/backends"
	"reactorlog/internal/pom"
)

// retryDirPattern 是重试临时目录名模板，目录位于工作目录下一级。
const retryDirPattern = ".reactorlog-retry-*"

// makeScratchDir 创建重试临时目录，测试中可替换。
var makeScratchDir = os.MkdirTemp

// retry 只对失败模块重新构建一次。
//
// 约束说明：
// - 失败模块名解析不到目录时丢弃该模块（记录 warn）
// - 至少解析到一个模块时，在临时目录写入裁剪后的 pom.xml 并在该目录执行
// - 一个也解析不到时，在原工作目录执行未修改的重试命令
// - 重试会话本身不再重试
func (s *Service) retry(ctx context.Context, failed *Session, command string, workDir string, backend backends.Backend, env []string) (*Session, error) {
	logger := s.logger().With(zap.String("session", failed.ID()))

	relPaths := resolveFailedModules(failed.State().FailedModules, workDir, failed.goos, logger)

	dir := workDir
	if len(relPaths) > 0 {
		scratch, err := writeReducedDescriptor(workDir, relPaths)
		if scratch != "" {
			defer os.RemoveAll(scratch)
		}
		if err != nil {
			return nil, err
		}
		dir = scratch
		logger.Info("retrying failed modules", zap.Strings("modules", relPaths), zap.String("dir", dir))
	} else {
		logger.Info("retrying without descriptor substitution")
	}

	retried, err := s.run(ctx, command, dir, workDir, backend, env)
	if err != nil {
		return nil, err
	}
	retried.retried = true
	return retried, nil
}

// resolveFailedModules 把失败模块名映射为相对工作目录的路径，保持失败顺序。
func resolveFailedModules(names []string, workDir string, goos string, logger *zap.Logger) []string {
	if len(names) == 0 {
		return nil
	}

	paths := pom.ResolveModulePaths(workDir, goos)
	relPaths := make([]string, 0, len(names))
	for _, name := range names {
		path, ok := paths[name]
		if !ok {
			logger.Warn("resolver miss", zap.String("module", name))
			continue
		}
		rel, err := filepath.Rel(workDir, path)
		if err != nil {
			logger.Warn("resolver miss", zap.String("module", name), zap.Error(err))
			continue
		}
		relPaths = append(relPaths, filepath.ToSlash(rel))
	}
	return relPaths
}

// writeReducedDescriptor 在工作目录下创建临时目录并写入裁剪后的描述文件。
// 返回的目录即使出错也可能非空，调用方负责删除。
func writeReducedDescriptor(workDir string, relPaths []string) (string, error) {
	template, err := pom.ReadDescriptor(filepath.Join(workDir, pom.FileName))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDescriptorWrite, err)
	}

	scratch, err := makeScratchDir(workDir, retryDirPattern)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDescriptorWrite, err)
	}

	if err := pom.ReducedDescriptor(template, relPaths).WriteFile(filepath.Join(scratch, pom.FileName)); err != nil {
		return scratch, fmt.Errorf("%w: %v", ErrDescriptorWrite, err)
	}
	return scratch, nil
}
