package handler

import (
	"github.com/gin-gonic/gin"

	"inknote-ai-api/internal/application/pipeline"
	"inknote-ai-api/internal/config"
	"inknote-ai-api/internal/domain/entity"
	"inknote-ai-api/internal/domain/repository"
	"inknote-ai-api/internal/infrastructure/messaging"
	"inknote-ai-api/internal/interfaces/http/dto"
	"inknote-ai-api/pkg/errors"
	"inknote-ai-api/pkg/logger"
)

// UnitHandler 笔记卡片处理器
type UnitHandler struct {
	cfg          *config.Config
	units        repository.UnitRepository
	projects     repository.ProjectRepository
	orchestrator *pipeline.Orchestrator
	producer     *messaging.Producer
}

// NewUnitHandler 创建卡片处理器
func NewUnitHandler(
	cfg *config.Config,
	units repository.UnitRepository,
	projects repository.ProjectRepository,
	orchestrator *pipeline.Orchestrator,
	producer *messaging.Producer,
) *UnitHandler {
	return &UnitHandler{
		cfg:          cfg,
		units:        units,
		projects:     projects,
		orchestrator: orchestrator,
		producer:     producer,
	}
}

// Get 获取单张卡片
// GET /v1/units/:uid
func (h *UnitHandler) Get(c *gin.Context) {
	unit, _, ok := h.loadOwnedUnit(c)
	if !ok {
		return
	}
	dto.Success(c, dto.FromUnit(unit))
}

// Regenerate 重新设计并重绘单张卡片
// POST /v1/units/:uid/regenerate
// 默认同步执行；?async=true 时投递到队列由 worker 处理
func (h *UnitHandler) Regenerate(c *gin.Context) {
	ctx := c.Request.Context()

	unit, project, ok := h.loadOwnedUnit(c)
	if !ok {
		return
	}

	var req dto.RegenerateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if unit.Status == entity.UnitStatusGenerating {
		dto.FromAppError(c, errors.ErrConflict.WithDetail("unit is already regenerating"))
		return
	}
	if !unit.CanRegenerate() {
		dto.FromAppError(c, errors.ErrUnitNotRegenerable.WithDetailf("unit %s has no structure to redesign", unit.ID))
		return
	}

	imageProvider, err := resolveImageProvider(h.cfg, req.ImageProvider)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	if c.Query("async") == "true" {
		h.enqueueRegen(c, unit, project, "")
		return
	}

	style := req.Style
	if style == "" {
		style = project.Style
	}
	language := req.Language
	if language == "" {
		language = project.Language
	}

	if err := h.orchestrator.RegenerateUnit(ctx, unit, &pipeline.RegenerateOptions{
		UserID:        project.UserID,
		Style:         style,
		Language:      language,
		Signature:     project.Signature,
		ImageProvider: imageProvider,
	}); err != nil {
		dto.FromAppError(c, err)
		return
	}

	if err := h.units.Update(ctx, unit); err != nil {
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, dto.FromUnit(unit))
}

// RegenerateCustom 用调用方给定指令重绘，跳过设计器
// POST /v1/units/:uid/regenerate/custom
func (h *UnitHandler) RegenerateCustom(c *gin.Context) {
	ctx := c.Request.Context()

	unit, project, ok := h.loadOwnedUnit(c)
	if !ok {
		return
	}

	var req dto.RegenerateCustomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if unit.Status == entity.UnitStatusGenerating {
		dto.FromAppError(c, errors.ErrConflict.WithDetail("unit is already regenerating"))
		return
	}

	imageProvider, err := resolveImageProvider(h.cfg, req.ImageProvider)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	if c.Query("async") == "true" {
		h.enqueueRegen(c, unit, project, req.Instruction)
		return
	}

	if err := h.orchestrator.RegenerateWithCustomInstruction(ctx, unit, req.Instruction, &pipeline.RegenerateOptions{
		UserID:        project.UserID,
		ImageProvider: imageProvider,
	}); err != nil {
		dto.FromAppError(c, err)
		return
	}

	if err := h.units.Update(ctx, unit); err != nil {
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, dto.FromUnit(unit))
}

// enqueueRegen 投递重绘任务到队列
func (h *UnitHandler) enqueueRegen(c *gin.Context, unit *entity.NoteUnit, project *entity.NoteProject, customInstruction string) {
	ctx := c.Request.Context()

	unit.MarkGenerating()
	if err := h.units.Update(ctx, unit); err != nil {
		dto.FromAppError(c, err)
		return
	}

	requestID := c.GetString("request_id")
	if _, err := h.producer.PublishUnitRegenTask(ctx, &messaging.UnitRegenTaskMessage{
		ProjectID:         project.ID,
		UnitID:            unit.ID,
		UserID:            project.UserID,
		CustomInstruction: customInstruction,
		RequestID:         requestID,
	}); err != nil {
		logger.Error(ctx, "failed to publish unit regen task", err, "unit_id", unit.ID)
		if rbErr := h.units.UpdateStatus(ctx, unit.ID, entity.UnitStatusFailed); rbErr != nil {
			logger.Error(ctx, "failed to roll back unit status", rbErr, "unit_id", unit.ID)
		}
		dto.InternalError(c, "failed to enqueue regeneration task")
		return
	}

	dto.Accepted(c, dto.GenerateAcceptedResponse{
		ProjectID: project.ID,
		Status:    string(entity.UnitStatusGenerating),
		RequestID: requestID,
	})
}

// loadOwnedUnit 加载卡片并校验归属
func (h *UnitHandler) loadOwnedUnit(c *gin.Context) (*entity.NoteUnit, *entity.NoteProject, bool) {
	ctx := c.Request.Context()

	unit, err := h.units.GetByID(ctx, c.Param("uid"))
	if err != nil {
		dto.FromAppError(c, err)
		return nil, nil, false
	}

	project, err := h.projects.GetByID(ctx, unit.ProjectID)
	if err != nil {
		dto.FromAppError(c, err)
		return nil, nil, false
	}
	if project.UserID != currentUserID(c) {
		dto.NotFound(c, "unit not found")
		return nil, nil, false
	}

	return unit, project, true
}
