// Package entity 定义领域实体
package entity

import (
	"time"
)

// ProjectStatus 项目状态
type ProjectStatus string

const (
	ProjectStatusDraft      ProjectStatus = "draft"
	ProjectStatusGenerating ProjectStatus = "generating"
	ProjectStatusCompleted  ProjectStatus = "completed"
	ProjectStatusFailed     ProjectStatus = "failed"
)

// GenerateMode 生成模式
type GenerateMode string

const (
	// ModeCompact 强制单卡，最多 4 个小节
	ModeCompact GenerateMode = "compact"
	// ModeDetailed 由知识点数量决定卡片数
	ModeDetailed GenerateMode = "detailed"
)

// Valid 检查模式取值是否合法
func (m GenerateMode) Valid() bool {
	return m == ModeCompact || m == ModeDetailed
}

// NoteProject 一次视觉笔记生成请求对应的项目
type NoteProject struct {
	ID     string `json:"id" gorm:"type:uuid;primaryKey"`
	UserID string `json:"user_id" gorm:"type:uuid;index;not null"`
	Title  string `json:"title,omitempty" gorm:"type:varchar(255)"`
	// InputText 用户提交的原始文本
	InputText string        `json:"input_text" gorm:"type:text;not null"`
	Language  string        `json:"language" gorm:"type:varchar(16);default:'zh'"`
	Style     string        `json:"style" gorm:"type:varchar(50);default:'hand_drawn'"`
	Mode      GenerateMode  `json:"mode" gorm:"type:varchar(16);default:'detailed'"`
	Signature string        `json:"signature,omitempty" gorm:"type:varchar(64)"`
	Status    ProjectStatus `json:"status" gorm:"type:varchar(20);default:'draft'"`
	// TotalKnowledgePoints Organizer 识别出的知识点总数
	TotalKnowledgePoints int       `json:"total_knowledge_points" gorm:"default:0"`
	UnitCount            int       `json:"unit_count" gorm:"default:0"`
	CreatedAt            time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt            time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (NoteProject) TableName() string {
	return "note_projects"
}

// NewNoteProject 创建新项目
func NewNoteProject(id, userID, inputText, language, style string, mode GenerateMode, signature string) *NoteProject {
	now := time.Now()
	return &NoteProject{
		ID:        id,
		UserID:    userID,
		InputText: inputText,
		Language:  language,
		Style:     style,
		Mode:      mode,
		Signature: signature,
		Status:    ProjectStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkGenerating 进入生成中状态
func (p *NoteProject) MarkGenerating() {
	p.Status = ProjectStatusGenerating
	p.UpdatedAt = time.Now()
}

// Finish 根据卡片结果收敛项目终态：只要有一张成图即视为完成
func (p *NoteProject) Finish(completedUnits, totalUnits int) {
	if completedUnits > 0 {
		p.Status = ProjectStatusCompleted
	} else {
		p.Status = ProjectStatusFailed
	}
	p.UnitCount = totalUnits
	p.UpdatedAt = time.Now()
}
