package notegen

import (
	"context"
	"fmt"

	"inknote-ai-api/internal/application/pipeline"
	"inknote-ai-api/internal/domain/entity"
	"inknote-ai-api/internal/domain/repository"
	"inknote-ai-api/internal/domain/service"
	"inknote-ai-api/internal/infrastructure/messaging"
	redisinfra "inknote-ai-api/internal/infrastructure/persistence/redis"
	apperrors "inknote-ai-api/pkg/errors"
	"inknote-ai-api/pkg/logger"
)

// Generator 流水线入口，*pipeline.Orchestrator 实现
type Generator interface {
	Generate(ctx context.Context, req *pipeline.GenerateRequest, sink pipeline.ProgressSink) (*pipeline.GenerateResult, error)
	RegenerateUnit(ctx context.Context, unit *entity.NoteUnit, opts *pipeline.RegenerateOptions) error
	RegenerateWithCustomInstruction(ctx context.Context, unit *entity.NoteUnit, instruction string, opts *pipeline.RegenerateOptions) error
}

// Service 消费队列消息并驱动流水线
type Service struct {
	orchestrator Generator
	projects     repository.ProjectRepository
	units        repository.UnitRepository
	tx           repository.Transactor
	progress     *redisinfra.ProgressStore
}

// NewService 创建任务服务
func NewService(
	orchestrator Generator,
	projects repository.ProjectRepository,
	units repository.UnitRepository,
	tx repository.Transactor,
	progress *redisinfra.ProgressStore,
) *Service {
	return &Service{
		orchestrator: orchestrator,
		projects:     projects,
		units:        units,
		tx:           tx,
		progress:     progress,
	}
}

// HandleNoteGen 处理整本生成任务
func (s *Service) HandleNoteGen(ctx context.Context, msg *messaging.Message) error {
	var task messaging.NoteGenTaskMessage
	if err := msg.UnmarshalPayload(&task); err != nil {
		return fmt.Errorf("failed to unmarshal note gen task: %w", err)
	}

	ctx = logger.WithContext(ctx, logger.ProjectIDKey, task.ProjectID)
	ctx = logger.WithContext(ctx, logger.UserIDKey, task.UserID)

	project, err := s.projects.GetByID(ctx, task.ProjectID)
	if err != nil {
		return err
	}

	// 重复投递保护：卡片已落库说明上一次已执行过
	existing, err := s.units.ListByProject(ctx, project.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logger.Warn(ctx, "note gen task replayed, reconciling project state",
			"project_id", project.ID,
			"units", len(existing),
		)
		return s.reconcile(ctx, project, existing)
	}

	sink := newProgressSink(s.progress, project.ID)

	result, err := s.orchestrator.Generate(ctx, &pipeline.GenerateRequest{
		ProjectID:     project.ID,
		UserID:        project.UserID,
		Text:          project.InputText,
		Language:      project.Language,
		Style:         project.Style,
		Mode:          project.Mode,
		Signature:     project.Signature,
		LLMProvider:   task.Provider,
		LLMModel:      task.Model,
		ImageProvider: task.ImageProvider,
	}, sink)
	if err != nil {
		// 校验类错误重试也不会成功：项目置为失败并吞掉消息
		logger.Error(ctx, "generation rejected", err, "project_id", project.ID)
		if stErr := s.projects.UpdateStatus(ctx, project.ID, entity.ProjectStatusFailed); stErr != nil {
			return stErr
		}
		return nil
	}

	completed := 0
	for _, unit := range result.Units {
		if unit.Status == entity.UnitStatusCompleted {
			completed++
		}
	}

	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.units.BatchCreate(txCtx, result.Units); err != nil {
			return err
		}
		project.TotalKnowledgePoints = result.TotalKnowledgePoints
		project.Finish(completed, len(result.Units))
		return s.projects.Update(txCtx, project)
	})
	if err != nil {
		return err
	}

	sink.StageChanged(ctx, pipeline.StageCompleted, "persisted")
	logger.Info(ctx, "note generation finished",
		"project_id", project.ID,
		"units", len(result.Units),
		"completed", completed,
	)
	return nil
}

// HandleUnitRegen 处理单卡重绘任务
func (s *Service) HandleUnitRegen(ctx context.Context, msg *messaging.Message) error {
	var task messaging.UnitRegenTaskMessage
	if err := msg.UnmarshalPayload(&task); err != nil {
		return fmt.Errorf("failed to unmarshal unit regen task: %w", err)
	}

	ctx = logger.WithContext(ctx, logger.ProjectIDKey, task.ProjectID)
	ctx = logger.WithContext(ctx, logger.UnitIDKey, task.UnitID)

	unit, err := s.units.GetByID(ctx, task.UnitID)
	if err != nil {
		return err
	}
	project, err := s.projects.GetByID(ctx, unit.ProjectID)
	if err != nil {
		return err
	}

	opts := &pipeline.RegenerateOptions{
		UserID:    project.UserID,
		Style:     project.Style,
		Language:  project.Language,
		Signature: project.Signature,
	}

	if task.CustomInstruction != "" {
		err = s.orchestrator.RegenerateWithCustomInstruction(ctx, unit, task.CustomInstruction, opts)
	} else {
		err = s.orchestrator.RegenerateUnit(ctx, unit, opts)
	}
	if err != nil {
		// 额度不足或不可重绘：失败状态落到卡片上，不再重试
		if isTerminalRegenError(err) {
			unit.Fail(err.Error())
			return s.units.Update(ctx, unit)
		}
		return err
	}

	return s.units.Update(ctx, unit)
}

// reconcile 用已落库的卡片状态收敛项目终态
func (s *Service) reconcile(ctx context.Context, project *entity.NoteProject, units []*entity.NoteUnit) error {
	completed := 0
	for _, unit := range units {
		if unit.Status == entity.UnitStatusCompleted {
			completed++
		}
	}
	project.Finish(completed, len(units))
	return s.projects.Update(ctx, project)
}

// isTerminalRegenError 判断重绘错误是否不可重试
func isTerminalRegenError(err error) bool {
	if _, ok := err.(*service.InsufficientCreditError); ok {
		return true
	}
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		return false
	}
	switch appErr.Code {
	case apperrors.CodeUnitNotRegenerable,
		apperrors.CodeInsufficientCredit,
		apperrors.CodeStyleNotFound,
		apperrors.CodeInvalidParam:
		return true
	}
	return false
}
