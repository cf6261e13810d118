// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"inknote-ai-api/internal/domain/entity"
)

// ProjectFilter 项目过滤条件
type ProjectFilter struct {
	Status entity.ProjectStatus
	Mode   entity.GenerateMode
}

// ProjectRepository 笔记项目仓储接口
type ProjectRepository interface {
	// Create 创建项目
	Create(ctx context.Context, project *entity.NoteProject) error

	// GetByID 根据 ID 获取项目
	GetByID(ctx context.Context, id string) (*entity.NoteProject, error)

	// Update 更新项目
	Update(ctx context.Context, project *entity.NoteProject) error

	// Delete 删除项目及其全部卡片
	Delete(ctx context.Context, id string) error

	// ListByUser 获取用户的项目列表
	ListByUser(ctx context.Context, userID string, filter *ProjectFilter, pagination Pagination) (*PagedResult[*entity.NoteProject], error)

	// UpdateStatus 更新项目状态
	UpdateStatus(ctx context.Context, id string, status entity.ProjectStatus) error
}
