// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"inknote-ai-api/internal/domain/entity"
	apperrors "inknote-ai-api/pkg/errors"
)

// UnitRepository 笔记卡片仓储实现
type UnitRepository struct {
	client *Client
}

// NewUnitRepository 创建卡片仓储
func NewUnitRepository(client *Client) *UnitRepository {
	return &UnitRepository{client: client}
}

// Create 创建卡片
func (r *UnitRepository) Create(ctx context.Context, unit *entity.NoteUnit) error {
	ctx, span := tracer.Start(ctx, "postgres.UnitRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(unit).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create note unit: %w", err)
	}
	return nil
}

// BatchCreate 批量创建卡片
func (r *UnitRepository) BatchCreate(ctx context.Context, units []*entity.NoteUnit) error {
	ctx, span := tracer.Start(ctx, "postgres.UnitRepository.BatchCreate")
	defer span.End()

	if len(units) == 0 {
		return nil
	}
	if err := getDB(ctx, r.client.db).CreateInBatches(units, 50).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to batch create note units: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取卡片
func (r *UnitRepository) GetByID(ctx context.Context, id string) (*entity.NoteUnit, error) {
	ctx, span := tracer.Start(ctx, "postgres.UnitRepository.GetByID")
	defer span.End()

	var unit entity.NoteUnit
	err := getDB(ctx, r.client.db).Where("id = ?", id).First(&unit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUnitNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get note unit: %w", err)
	}
	return &unit, nil
}

// Update 更新卡片
func (r *UnitRepository) Update(ctx context.Context, unit *entity.NoteUnit) error {
	ctx, span := tracer.Start(ctx, "postgres.UnitRepository.Update")
	defer span.End()

	if err := getDB(ctx, r.client.db).Save(unit).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update note unit: %w", err)
	}
	return nil
}

// ListByProject 按序号升序获取项目下全部卡片
func (r *UnitRepository) ListByProject(ctx context.Context, projectID string) ([]*entity.NoteUnit, error) {
	ctx, span := tracer.Start(ctx, "postgres.UnitRepository.ListByProject")
	defer span.End()

	var units []*entity.NoteUnit
	err := getDB(ctx, r.client.db).
		Where("project_id = ?", projectID).
		Order("order_num ASC").
		Find(&units).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list note units: %w", err)
	}
	return units, nil
}

// UpdateStatus 更新卡片状态
func (r *UnitRepository) UpdateStatus(ctx context.Context, id string, status entity.UnitStatus) error {
	ctx, span := tracer.Start(ctx, "postgres.UnitRepository.UpdateStatus")
	defer span.End()

	err := getDB(ctx, r.client.db).Model(&entity.NoteUnit{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update note unit status: %w", err)
	}
	return nil
}

// CountByStatus 统计项目下各状态的卡片数量
func (r *UnitRepository) CountByStatus(ctx context.Context, projectID string) (map[entity.UnitStatus]int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.UnitRepository.CountByStatus")
	defer span.End()

	type statusCount struct {
		Status entity.UnitStatus
		Count  int64
	}
	var rows []statusCount
	err := getDB(ctx, r.client.db).Model(&entity.NoteUnit{}).
		Select("status, COUNT(*) as count").
		Where("project_id = ?", projectID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count note units: %w", err)
	}

	counts := make(map[entity.UnitStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
