// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"inknote-ai-api/internal/domain/entity"
)

// UnitRepository 笔记卡片仓储接口
type UnitRepository interface {
	// Create 创建卡片
	Create(ctx context.Context, unit *entity.NoteUnit) error

	// BatchCreate 批量创建卡片
	BatchCreate(ctx context.Context, units []*entity.NoteUnit) error

	// GetByID 根据 ID 获取卡片
	GetByID(ctx context.Context, id string) (*entity.NoteUnit, error)

	// Update 更新卡片
	Update(ctx context.Context, unit *entity.NoteUnit) error

	// ListByProject 按序号升序获取项目下全部卡片
	ListByProject(ctx context.Context, projectID string) ([]*entity.NoteUnit, error)

	// UpdateStatus 更新卡片状态
	UpdateStatus(ctx context.Context, id string, status entity.UnitStatus) error

	// CountByStatus 统计项目下各状态的卡片数量
	CountByStatus(ctx context.Context, projectID string) (map[entity.UnitStatus]int64, error)
}
