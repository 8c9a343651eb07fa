// Package scanner 提供离线日志的并发分析调度能力。
// 该层负责目录遍历、任务分发、并发执行和结果聚合，不负责日志分类与错误提取细节。
package scanner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"reactorlog/internal/backends"
	"reactorlog/internal/model"
	"reactorlog/internal/process"
	"reactorlog/internal/session"
)

// logExtensions 是目录扫描时识别为构建日志的扩展名。
var logExtensions = map[string]bool{
	".log": true,
	".txt": true,
}

// Options 是离线扫描的参数。
type Options struct {
	// Backend 为语言后端名称，空串时使用 java。
	Backend string
	// Workers 为并发会话数，<=0 时使用 CPU 数。
	Workers int
	// WorkDir 用于解析日志中的相对路径，空串时使用日志文件所在目录。
	WorkDir string
	Logger  *zap.Logger
	GOOS    string
}

// Service 是离线扫描服务对象。
type Service struct {
	backend backends.Backend
	workers int
	workDir string
	logger  *zap.Logger
	goos    string
}

// scanTask 表示一个待分析的日志文件。
type scanTask struct {
	absolutePath string
	displayPath  string
}

// workerResult 表示 worker 的执行产物。
type workerResult struct {
	logResult *model.LogResult
	scanError *model.ScanError
}

// NewService 创建扫描服务，后端名称非法时返回错误。
func NewService(registry *backends.Registry, opts Options) (*Service, error) {
	if registry == nil {
		registry = backends.NewRegistry()
	}
	backend, err := registry.Lookup(opts.Backend)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		backend: backend,
		workers: workers,
		workDir: opts.WorkDir,
		logger:  logger,
		goos:    opts.GOOS,
	}, nil
}

// ScanPath 分析目录下的全部日志文件或单个日志文件。
// 每个文件对应一个独立会话，会话之间不共享可变状态。
func (s *Service) ScanPath(ctx context.Context, targetPath string) (model.ScanResult, error) {
	var result model.ScanResult

	trimmedPath := strings.TrimSpace(targetPath)
	if trimmedPath == "" {
		return result, errors.New("scan path is empty")
	}

	absoluteTarget, err := filepath.Abs(trimmedPath)
	if err != nil {
		return result, fmt.Errorf("resolve absolute path: %w", err)
	}

	info, err := os.Stat(absoluteTarget)
	if err != nil {
		return result, fmt.Errorf("stat path: %w", err)
	}

	result.ScannedPath = absoluteTarget

	tasks := make(chan scanTask, s.workers*4)
	results := make(chan workerResult, s.workers*4)
	walkErrChan := make(chan error, 1)

	var workerGroup sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		workerGroup.Add(1)
		go func() {
			defer workerGroup.Done()
			s.runWorker(ctx, tasks, results)
		}()
	}

	go func() {
		defer close(tasks)
		if info.IsDir() {
			walkErrChan <- s.enqueueDirectoryTasks(ctx, absoluteTarget, tasks)
			return
		}
		walkErrChan <- enqueue(ctx, tasks, scanTask{
			absolutePath: absoluteTarget,
			displayPath:  filepath.Base(absoluteTarget),
		})
	}()

	go func() {
		workerGroup.Wait()
		close(results)
	}()

	result.Logs = make([]model.LogResult, 0)
	result.Errors = make([]model.ScanError, 0)

	for item := range results {
		if item.logResult != nil {
			result.Logs = append(result.Logs, *item.logResult)
		}
		if item.scanError != nil {
			result.Errors = append(result.Errors, *item.scanError)
		}
	}

	if walkErr := <-walkErrChan; walkErr != nil {
		return result, walkErr
	}

	buildSummaries(&result)
	s.logger.Info("scan finished",
		zap.String("path", absoluteTarget),
		zap.Int64("logs", result.Total.Logs),
		zap.Int64("failed", result.Total.Failed),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// enqueueDirectoryTasks 遍历目录并把日志文件推入任务队列。
func (s *Service) enqueueDirectoryTasks(ctx context.Context, root string, tasks chan<- scanTask) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if entry.IsDir() {
			// 重试临时目录中只有描述文件。
			if path != root && strings.HasPrefix(entry.Name(), ".reactorlog-retry-") {
				return filepath.SkipDir
			}
			return nil
		}

		if !logExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		relativePath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			relativePath = path
		}

		return enqueue(ctx, tasks, scanTask{
			absolutePath: path,
			displayPath:  filepath.ToSlash(relativePath),
		})
	})
}

func enqueue(ctx context.Context, tasks chan<- scanTask, task scanTask) error {
	select {
	case tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runWorker 逐个读取日志文件并在独立会话中重放。
func (s *Service) runWorker(ctx context.Context, tasks <-chan scanTask, results chan<- workerResult) {
	for task := range tasks {
		if ctx.Err() != nil {
			results <- workerResult{
				scanError: &model.ScanError{Path: task.displayPath, Error: ctx.Err().Error()},
			}
			continue
		}

		logResult, err := s.analyzeFile(task)
		if err != nil {
			results <- workerResult{
				scanError: &model.ScanError{Path: task.displayPath, Error: err.Error()},
			}
			continue
		}
		results <- workerResult{logResult: logResult}
	}
}

// analyzeFile 把日志文件喂给一个新会话，结论不是成功时提取错误记录。
func (s *Service) analyzeFile(task scanTask) (*model.LogResult, error) {
	file, err := os.Open(task.absolutePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	workDir := s.workDir
	if workDir == "" {
		workDir = filepath.Dir(task.absolutePath)
	}

	current := session.New(session.Config{
		Command: task.displayPath,
		WorkDir: workDir,
		Backend: s.backend,
		Logger:  s.logger,
		GOOS:    s.goos,
	})

	reader := bufio.NewReader(file)
	for {
		raw, readErr := reader.ReadBytes('\n')
		if len(raw) > 0 {
			current.Feed(process.DecodeLine(raw))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, readErr
		}
	}

	var records []*model.ErrorRecord
	if !current.State().Verdict.Passed() {
		records = current.Analyze()
		model.SortRecords(records)
	}

	return &model.LogResult{
		Path:   task.displayPath,
		Result: current.Result(records),
	}, nil
}

// buildSummaries 排序明细并计算总计。
func buildSummaries(result *model.ScanResult) {
	sort.Slice(result.Logs, func(i int, j int) bool {
		return result.Logs[i].Path < result.Logs[j].Path
	})

	sort.Slice(result.Errors, func(i int, j int) bool {
		return result.Errors[i].Path < result.Errors[j].Path
	})

	result.Total = model.ScanTotal{}
	for _, item := range result.Logs {
		result.Total.Logs++
		if !item.Result.Verdict.Passed() {
			result.Total.Failed++
		}
		result.Total.Records += int64(len(item.Result.Records))
	}
}
