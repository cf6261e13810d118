// Package notegen 实现队列消息驱动的笔记生成任务
package notegen

import (
	"context"
	"time"

	"inknote-ai-api/internal/application/pipeline"
	"inknote-ai-api/internal/domain/entity"
	redisinfra "inknote-ai-api/internal/infrastructure/persistence/redis"
	"inknote-ai-api/pkg/logger"
)

// progressSink 把流水线进度写入 Redis 快照，供进度查询接口读取
// 快照写入失败只记日志，不影响生成流程
type progressSink struct {
	store     *redisinfra.ProgressStore
	projectID string

	stage string
	total int
	units map[string]redisinfra.UnitProgress
	order []string
}

func newProgressSink(store *redisinfra.ProgressStore, projectID string) *progressSink {
	return &progressSink{
		store:     store,
		projectID: projectID,
		units:     make(map[string]redisinfra.UnitProgress),
	}
}

func (s *progressSink) StageChanged(ctx context.Context, stage pipeline.Stage, _ string) {
	s.stage = string(stage)
	s.save(ctx)
}

func (s *progressSink) UnitStarted(ctx context.Context, _, total int) {
	if total > s.total {
		s.total = total
	}
	s.save(ctx)
}

func (s *progressSink) UnitCompleted(ctx context.Context, _ int, unit *entity.NoteUnit) {
	if _, seen := s.units[unit.ID]; !seen {
		s.order = append(s.order, unit.ID)
	}
	s.units[unit.ID] = redisinfra.UnitProgress{
		UnitID:       unit.ID,
		Order:        unit.OrderNum,
		Status:       string(unit.Status),
		ErrorMessage: unit.ErrorMessage,
	}
	if len(s.units) > s.total {
		s.total = len(s.units)
	}
	s.save(ctx)
}

func (s *progressSink) Error(ctx context.Context, message string) {
	logger.Warn(ctx, "generation reported error", "project_id", s.projectID, "error", message)
	s.save(ctx)
}

func (s *progressSink) save(ctx context.Context) {
	if s.store == nil {
		return
	}
	snapshot := &redisinfra.ProgressSnapshot{
		ProjectID:  s.projectID,
		Stage:      s.stage,
		TotalUnits: s.total,
		UpdatedAt:  time.Now(),
	}
	for _, id := range s.order {
		snapshot.Units = append(snapshot.Units, s.units[id])
	}
	if err := s.store.Save(ctx, snapshot); err != nil {
		logger.Warn(ctx, "failed to save progress snapshot", "project_id", s.projectID, "error", err.Error())
	}
}
