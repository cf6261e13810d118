package dto

import (
	"time"

	"inknote-ai-api/internal/domain/entity"
	redisinfra "inknote-ai-api/internal/infrastructure/persistence/redis"
)

// CreateProjectRequest 创建笔记项目请求
type CreateProjectRequest struct {
	Title     string `json:"title,omitempty"`
	Text      string `json:"text" binding:"required"`
	Language  string `json:"language,omitempty"`
	Style     string `json:"style,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// GenerateRequest 触发生成请求，可覆盖模型/提供商
type GenerateRequest struct {
	Provider      string `json:"provider,omitempty"`
	Model         string `json:"model,omitempty"`
	ImageProvider string `json:"image_provider,omitempty"`
}

// GenerateAcceptedResponse 异步生成受理响应
type GenerateAcceptedResponse struct {
	ProjectID string `json:"project_id"`
	Status    string `json:"status"`
	RequestID string `json:"request_id,omitempty"`
}

// RegenerateUnitRequest 单卡重绘请求
type RegenerateUnitRequest struct {
	Style         string `json:"style,omitempty"`
	Language      string `json:"language,omitempty"`
	Provider      string `json:"provider,omitempty"`
	ImageProvider string `json:"image_provider,omitempty"`
}

// RegenerateCustomRequest 自定义指令重绘请求
type RegenerateCustomRequest struct {
	Instruction   string `json:"instruction" binding:"required"`
	ImageProvider string `json:"image_provider,omitempty"`
}

// UnitResponse 卡片视图
type UnitResponse struct {
	ID           string                `json:"id"`
	ProjectID    string                `json:"project_id"`
	Order        int                   `json:"order"`
	Structure    *entity.LeftBrainData `json:"structure,omitempty"`
	Instruction  string                `json:"instruction,omitempty"`
	Status       string                `json:"status"`
	ImageRef     string                `json:"image_ref,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
}

// ProjectResponse 项目视图
type ProjectResponse struct {
	ID                   string          `json:"id"`
	Title                string          `json:"title,omitempty"`
	InputText            string          `json:"input_text,omitempty"`
	Language             string          `json:"language"`
	Style                string          `json:"style"`
	Mode                 string          `json:"mode"`
	Signature            string          `json:"signature,omitempty"`
	Status               string          `json:"status"`
	TotalKnowledgePoints int             `json:"total_knowledge_points"`
	UnitCount            int             `json:"unit_count"`
	Units                []*UnitResponse `json:"units,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// ProgressResponse 生成进度视图
type ProgressResponse struct {
	ProjectID   string          `json:"project_id"`
	Stage       string          `json:"stage"`
	CurrentUnit int             `json:"current_unit"`
	TotalUnits  int             `json:"total_units"`
	Percent     int             `json:"percent"`
	Units       []*UnitProgress `json:"units,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// UnitProgress 单卡进度
type UnitProgress struct {
	UnitID       string `json:"unit_id"`
	Order        int    `json:"order"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// CreditBalanceResponse 信用点余额
type CreditBalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// CreditGrantRequest 信用点充值请求
type CreditGrantRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// FromUnit 实体转卡片视图
func FromUnit(unit *entity.NoteUnit) *UnitResponse {
	return &UnitResponse{
		ID:           unit.ID,
		ProjectID:    unit.ProjectID,
		Order:        unit.OrderNum,
		Structure:    unit.Structure,
		Instruction:  unit.Instruction,
		Status:       string(unit.Status),
		ImageRef:     unit.ImageRef(),
		ErrorMessage: unit.ErrorMessage,
		CreatedAt:    unit.CreatedAt,
		CompletedAt:  unit.CompletedAt,
	}
}

// FromProject 实体转项目视图
func FromProject(project *entity.NoteProject, units []*entity.NoteUnit) *ProjectResponse {
	resp := &ProjectResponse{
		ID:                   project.ID,
		Title:                project.Title,
		InputText:            project.InputText,
		Language:             project.Language,
		Style:                project.Style,
		Mode:                 string(project.Mode),
		Signature:            project.Signature,
		Status:               string(project.Status),
		TotalKnowledgePoints: project.TotalKnowledgePoints,
		UnitCount:            project.UnitCount,
		CreatedAt:            project.CreatedAt,
		UpdatedAt:            project.UpdatedAt,
	}
	for _, unit := range units {
		resp.Units = append(resp.Units, FromUnit(unit))
	}
	return resp
}

// FromSnapshot 进度快照转视图
func FromSnapshot(snapshot *redisinfra.ProgressSnapshot) *ProgressResponse {
	resp := &ProgressResponse{
		ProjectID:  snapshot.ProjectID,
		Stage:      snapshot.Stage,
		TotalUnits: snapshot.TotalUnits,
		UpdatedAt:  snapshot.UpdatedAt,
	}
	done := 0
	for _, u := range snapshot.Units {
		resp.Units = append(resp.Units, &UnitProgress{
			UnitID:       u.UnitID,
			Order:        u.Order,
			Status:       u.Status,
			ErrorMessage: u.ErrorMessage,
		})
		if u.Status == string(entity.UnitStatusCompleted) || u.Status == string(entity.UnitStatusFailed) {
			done++
		}
	}
	resp.CurrentUnit = done
	if snapshot.TotalUnits > 0 {
		resp.Percent = done * 100 / snapshot.TotalUnits
	}
	return resp
}
