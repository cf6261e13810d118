// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"inknote-ai-api/internal/domain/entity"
	"inknote-ai-api/internal/domain/repository"
	apperrors "inknote-ai-api/pkg/errors"
)

// ProjectRepository 笔记项目仓储实现
type ProjectRepository struct {
	client *Client
}

// NewProjectRepository 创建项目仓储
func NewProjectRepository(client *Client) *ProjectRepository {
	return &ProjectRepository{client: client}
}

// Create 创建项目
func (r *ProjectRepository) Create(ctx context.Context, project *entity.NoteProject) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(project).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create note project: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取项目
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*entity.NoteProject, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.GetByID")
	defer span.End()

	var project entity.NoteProject
	err := getDB(ctx, r.client.db).Where("id = ?", id).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrProjectNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get note project: %w", err)
	}
	return &project, nil
}

// Update 更新项目
func (r *ProjectRepository) Update(ctx context.Context, project *entity.NoteProject) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.Update")
	defer span.End()

	if err := getDB(ctx, r.client.db).Save(project).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update note project: %w", err)
	}
	return nil
}

// Delete 删除项目及其全部卡片
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Where("project_id = ?", id).Delete(&entity.NoteUnit{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete note units: %w", err)
	}
	if err := db.Where("id = ?", id).Delete(&entity.NoteProject{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete note project: %w", err)
	}
	return nil
}

// ListByUser 获取用户的项目列表
func (r *ProjectRepository) ListByUser(ctx context.Context, userID string, filter *repository.ProjectFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.NoteProject], error) {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.ListByUser")
	defer span.End()

	db := getDB(ctx, r.client.db).Model(&entity.NoteProject{}).Where("user_id = ?", userID)
	if filter != nil {
		if filter.Status != "" {
			db = db.Where("status = ?", filter.Status)
		}
		if filter.Mode != "" {
			db = db.Where("mode = ?", filter.Mode)
		}
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count note projects: %w", err)
	}

	var projects []*entity.NoteProject
	err := db.Order("created_at DESC").
		Limit(pagination.Limit()).
		Offset(pagination.Offset()).
		Find(&projects).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list note projects: %w", err)
	}

	return repository.NewPagedResult(projects, total, pagination), nil
}

// UpdateStatus 更新项目状态
func (r *ProjectRepository) UpdateStatus(ctx context.Context, id string, status entity.ProjectStatus) error {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.UpdateStatus")
	defer span.End()

	err := getDB(ctx, r.client.db).Model(&entity.NoteProject{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update note project status: %w", err)
	}
	return nil
}
