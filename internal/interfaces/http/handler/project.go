package handler

import (
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"inknote-ai-api/internal/application/designer"
	"inknote-ai-api/internal/config"
	"inknote-ai-api/internal/domain/entity"
	"inknote-ai-api/internal/domain/repository"
	"inknote-ai-api/internal/infrastructure/messaging"
	redisinfra "inknote-ai-api/internal/infrastructure/persistence/redis"
	"inknote-ai-api/internal/interfaces/http/dto"
	"inknote-ai-api/pkg/errors"
	"inknote-ai-api/pkg/logger"
)

// ProjectHandler 笔记项目处理器
type ProjectHandler struct {
	cfg      *config.Config
	projects repository.ProjectRepository
	units    repository.UnitRepository
	producer *messaging.Producer
	progress *redisinfra.ProgressStore
}

// NewProjectHandler 创建项目处理器
func NewProjectHandler(
	cfg *config.Config,
	projects repository.ProjectRepository,
	units repository.UnitRepository,
	producer *messaging.Producer,
	progress *redisinfra.ProgressStore,
) *ProjectHandler {
	return &ProjectHandler{
		cfg:      cfg,
		projects: projects,
		units:    units,
		producer: producer,
		progress: progress,
	}
}

// Create 创建笔记项目
// POST /v1/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req dto.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := h.validateInput(&req); err != nil {
		dto.FromAppError(c, err)
		return
	}

	mode := entity.GenerateMode(req.Mode)
	if req.Mode == "" {
		mode = entity.ModeDetailed
	}
	language := req.Language
	if language == "" {
		language = "zh"
	}
	style := req.Style
	if style == "" {
		style = designer.DefaultStyle
	}

	project := entity.NewNoteProject(uuid.NewString(), currentUserID(c), req.Text, language, style, mode, req.Signature)
	project.Title = req.Title

	if err := h.projects.Create(c.Request.Context(), project); err != nil {
		dto.FromAppError(c, err)
		return
	}

	dto.Created(c, dto.FromProject(project, nil))
}

// Generate 触发异步生成
// POST /v1/projects/:pid/generate
func (h *ProjectHandler) Generate(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := c.Param("pid")

	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	project, err := h.projects.GetByID(ctx, projectID)
	if err != nil {
		dto.FromAppError(c, err)
		return
	}
	if project.UserID != currentUserID(c) {
		dto.NotFound(c, "project not found")
		return
	}
	if project.Status == entity.ProjectStatusGenerating {
		dto.FromAppError(c, errors.ErrConflict.WithDetail("project is already generating"))
		return
	}

	if _, _, err := resolveProviderModel(h.cfg, req.Provider, req.Model); err != nil {
		dto.BadRequest(c, err.Error())
		return
	}
	if _, err := resolveImageProvider(h.cfg, req.ImageProvider); err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	project.MarkGenerating()
	if err := h.projects.Update(ctx, project); err != nil {
		dto.FromAppError(c, err)
		return
	}

	requestID := c.GetString("request_id")
	if _, err := h.producer.PublishNoteGenTask(ctx, &messaging.NoteGenTaskMessage{
		ProjectID:     project.ID,
		UserID:        project.UserID,
		Provider:      req.Provider,
		Model:         req.Model,
		ImageProvider: req.ImageProvider,
		RequestID:     requestID,
	}); err != nil {
		logger.Error(ctx, "failed to publish note generation task", err, "project_id", project.ID)
		// 回滚到待生成状态，允许重试
		if rbErr := h.projects.UpdateStatus(ctx, project.ID, entity.ProjectStatusDraft); rbErr != nil {
			logger.Error(ctx, "failed to roll back project status", rbErr, "project_id", project.ID)
		}
		dto.InternalError(c, "failed to enqueue generation task")
		return
	}

	dto.Accepted(c, dto.GenerateAcceptedResponse{
		ProjectID: project.ID,
		Status:    string(entity.ProjectStatusGenerating),
		RequestID: requestID,
	})
}

// Get 获取项目及其全部卡片
// GET /v1/projects/:pid
func (h *ProjectHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	project, err := h.projects.GetByID(ctx, c.Param("pid"))
	if err != nil {
		dto.FromAppError(c, err)
		return
	}
	if project.UserID != currentUserID(c) {
		dto.NotFound(c, "project not found")
		return
	}

	units, err := h.units.ListByProject(ctx, project.ID)
	if err != nil {
		dto.FromAppError(c, err)
		return
	}

	dto.Success(c, dto.FromProject(project, units))
}

// List 获取当前用户的项目列表
// GET /v1/projects
func (h *ProjectHandler) List(c *gin.Context) {
	var query struct {
		Page     int    `form:"page"`
		PageSize int    `form:"page_size"`
		Status   string `form:"status"`
		Mode     string `form:"mode"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		dto.BadRequest(c, "invalid query: "+err.Error())
		return
	}

	filter := &repository.ProjectFilter{
		Status: entity.ProjectStatus(query.Status),
		Mode:   entity.GenerateMode(query.Mode),
	}
	pagination := repository.NewPagination(query.Page, query.PageSize)

	result, err := h.projects.ListByUser(c.Request.Context(), currentUserID(c), filter, pagination)
	if err != nil {
		dto.FromAppError(c, err)
		return
	}

	items := make([]*dto.ProjectResponse, 0, len(result.Items))
	for _, project := range result.Items {
		view := dto.FromProject(project, nil)
		// 列表不回传原文，省流量
		view.InputText = ""
		items = append(items, view)
	}

	dto.SuccessWithPage(c, items, dto.NewPageMeta(pagination.Page, pagination.PageSize, result.Total))
}

// Delete 删除项目及其卡片
// DELETE /v1/projects/:pid
func (h *ProjectHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()

	project, err := h.projects.GetByID(ctx, c.Param("pid"))
	if err != nil {
		dto.FromAppError(c, err)
		return
	}
	if project.UserID != currentUserID(c) {
		dto.NotFound(c, "project not found")
		return
	}

	if err := h.projects.Delete(ctx, project.ID); err != nil {
		dto.FromAppError(c, err)
		return
	}
	if h.progress != nil {
		if err := h.progress.Delete(ctx, project.ID); err != nil {
			logger.Warn(ctx, "failed to delete progress snapshot", "project_id", project.ID, "error", err.Error())
		}
	}

	dto.NoContent(c)
}

// Progress 查询生成进度
// GET /v1/projects/:pid/progress
func (h *ProjectHandler) Progress(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := c.Param("pid")

	project, err := h.projects.GetByID(ctx, projectID)
	if err != nil {
		dto.FromAppError(c, err)
		return
	}
	if project.UserID != currentUserID(c) {
		dto.NotFound(c, "project not found")
		return
	}

	snapshot, err := h.progress.Get(ctx, projectID)
	if err != nil {
		dto.FromAppError(c, err)
		return
	}
	if snapshot == nil {
		// 快照过期或尚未开始：退化为按库里的卡片状态汇总
		units, err := h.units.ListByProject(ctx, projectID)
		if err != nil {
			dto.FromAppError(c, err)
			return
		}
		snapshot = snapshotFromUnits(project, units)
	}

	dto.Success(c, dto.FromSnapshot(snapshot))
}

func (h *ProjectHandler) validateInput(req *dto.CreateProjectRequest) error {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return errors.ErrTextValidationFailed.WithDetail("input text is empty")
	}
	maxRunes := h.cfg.Pipeline.MaxInputRunes
	if maxRunes > 0 {
		if n := utf8.RuneCountInString(text); n > maxRunes {
			return errors.ErrTextValidationFailed.
				WithDetailf("input text has %d characters, limit is %d", n, maxRunes)
		}
	}
	if req.Mode != "" && !entity.GenerateMode(req.Mode).Valid() {
		return errors.ErrTextValidationFailed.WithDetailf("unknown mode %q", req.Mode)
	}
	if req.Style != "" {
		if _, err := designer.GetStyle(req.Style); err != nil {
			return err
		}
	}
	return nil
}

func snapshotFromUnits(project *entity.NoteProject, units []*entity.NoteUnit) *redisinfra.ProgressSnapshot {
	snapshot := &redisinfra.ProgressSnapshot{
		ProjectID:  project.ID,
		Stage:      string(project.Status),
		TotalUnits: len(units),
		UpdatedAt:  project.UpdatedAt,
	}
	for _, u := range units {
		snapshot.Units = append(snapshot.Units, redisinfra.UnitProgress{
			UnitID:       u.ID,
			Order:        u.OrderNum,
			Status:       string(u.Status),
			ErrorMessage: u.ErrorMessage,
		})
	}
	return snapshot
}
