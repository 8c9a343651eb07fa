// Package attribution 为错误记录补充版本库作者信息。
package attribution

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reactorlog/internal/model"
	"reactorlog/internal/vcs"
)

// Stage 并发查询每条带文件的错误记录的最后提交者。
type Stage struct {
	Blamer  vcs.Blamer
	Workers int
	Logger  *zap.Logger
}

// Enrich 原地填充 Author、Email、CommitDate、RepoURL。
//
// 约束说明：
// - 查询失败只记录 debug 日志，对应字段保持为空
// - 每个 goroutine 只写自己负责的记录
// - 只有 ctx 被取消时才返回错误
func (s *Stage) Enrich(ctx context.Context, records []*model.ErrorRecord) error {
	if s.Blamer == nil {
		return nil
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	targets := make([]*model.ErrorRecord, 0, len(records))
	for _, record := range records {
		if record != nil && record.File != "" {
			targets = append(targets, record)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	workers := s.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(workers, len(targets)))

	for _, record := range targets {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			info, err := s.Blamer.Blame(gctx, record.File)
			if err != nil {
				logger.Debug("attribution miss", zap.String("file", record.File), zap.Error(err))
				return nil
			}
			record.Author = info.Author
			record.Email = info.Email
			record.CommitDate = info.Date
			record.RepoURL = info.RepoURL
			return nil
		})
	}

	return g.Wait()
}
