// Package entity 定义领域实体
package entity

import (
	"time"
)

// UnitStatus 卡片单元状态
type UnitStatus string

const (
	UnitStatusPending    UnitStatus = "pending"
	UnitStatusGenerating UnitStatus = "generating"
	UnitStatusCompleted  UnitStatus = "completed"
	UnitStatusFailed     UnitStatus = "failed"
)

// ContentModule 卡片内的一个内容小节
type ContentModule struct {
	// ID 在所属卡片内唯一，按序为 "1"、"2"……
	ID      string `json:"id"`
	Heading string `json:"heading"`
	// Content 1-3 句的展开说明，仅用于编辑参考，不会出现在成图上
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
}

// LeftBrainData 一张卡片的结构化拆解结果
type LeftBrainData struct {
	Title string `json:"title"`
	// SummaryContext 各小节标题拼接而成的简述，用作画面的串联元素
	SummaryContext string `json:"summary_context"`
	// VisualThemeKeywords 逗号拼接的视觉主题关键词
	VisualThemeKeywords string          `json:"visual_theme_keywords"`
	Modules             []ContentModule `json:"modules"`
}

// ModuleCount 返回小节数量
func (d *LeftBrainData) ModuleCount() int {
	if d == nil {
		return 0
	}
	return len(d.Modules)
}

// NoteUnit 一张待生成的视觉笔记卡片
type NoteUnit struct {
	ID        string `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID string `json:"project_id" gorm:"type:uuid;index;not null"`
	// OrderNum 同一次生成请求内的序号，从 0 开始，终生不变
	OrderNum int `json:"order" gorm:"column:order_num;not null"`
	// OriginalText 调用方提供的完整原始文本（同一请求的所有卡片共享）
	OriginalText string         `json:"original_text" gorm:"type:text"`
	Structure    *LeftBrainData `json:"structure,omitempty" gorm:"type:jsonb;serializer:json"`
	// Instruction / NegativeInstruction 由 Designer 产出的绘图指令
	Instruction         string `json:"instruction,omitempty" gorm:"type:text"`
	NegativeInstruction string `json:"negative_instruction,omitempty" gorm:"type:text"`
	// ImageBase64 与 ImageURL 二选一；成功后恰有一个非空
	ImageBase64  string     `json:"image_base64,omitempty" gorm:"type:text"`
	ImageURL     string     `json:"image_url,omitempty" gorm:"type:text"`
	Status       UnitStatus `json:"status" gorm:"type:varchar(20);default:'pending'"`
	ErrorMessage string     `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt    time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// TableName 指定表名
func (NoteUnit) TableName() string {
	return "note_units"
}

// NewNoteUnit 创建待生成卡片
func NewNoteUnit(id, projectID string, order int, originalText string, structure *LeftBrainData) *NoteUnit {
	return &NoteUnit{
		ID:           id,
		ProjectID:    projectID,
		OrderNum:     order,
		OriginalText: originalText,
		Structure:    structure,
		Status:       UnitStatusPending,
		CreatedAt:    time.Now(),
	}
}

// MarkGenerating 进入生成中状态
func (u *NoteUnit) MarkGenerating() {
	u.Status = UnitStatusGenerating
	u.UpdatedAt = time.Now()
}

// Complete 生成成功，写入图片引用并清除历史错误
func (u *NoteUnit) Complete(imageBase64, imageURL string) {
	now := time.Now()
	u.Status = UnitStatusCompleted
	u.ImageBase64 = imageBase64
	u.ImageURL = imageURL
	u.ErrorMessage = ""
	u.UpdatedAt = now
	u.CompletedAt = &now
}

// Fail 生成失败，记录错误信息
func (u *NoteUnit) Fail(errMsg string) {
	now := time.Now()
	u.Status = UnitStatusFailed
	u.ErrorMessage = errMsg
	u.UpdatedAt = now
	u.CompletedAt = &now
}

// SetInstructions 写入 Designer 产出的绘图指令
func (u *NoteUnit) SetInstructions(instruction, negative string) {
	u.Instruction = instruction
	u.NegativeInstruction = negative
	u.UpdatedAt = time.Now()
}

// IsTerminal 是否已到达终态
func (u *NoteUnit) IsTerminal() bool {
	return u.Status == UnitStatusCompleted || u.Status == UnitStatusFailed
}

// CanRegenerate 是否可以发起重新生成（必须已有结构化数据）
func (u *NoteUnit) CanRegenerate() bool {
	return u.Structure != nil && u.Structure.ModuleCount() > 0
}

// ImageRef 返回可展示的图片引用（URL 优先，其次 base64 数据）
func (u *NoteUnit) ImageRef() string {
	if u.ImageURL != "" {
		return u.ImageURL
	}
	return u.ImageBase64
}
