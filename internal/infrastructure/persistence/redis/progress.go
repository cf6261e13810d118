// Package redis 提供生成进度快照缓存
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

// 进度快照保留时长，足够覆盖一次完整生成加上客户端轮询间隔
const progressTTL = 30 * time.Minute

// UnitProgress 单张卡片的进度条目
type UnitProgress struct {
	UnitID       string `json:"unit_id"`
	Order        int    `json:"order"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ProgressSnapshot 一次生成的进度快照
type ProgressSnapshot struct {
	ProjectID  string         `json:"project_id"`
	Stage      string         `json:"stage"`
	TotalUnits int            `json:"total_units"`
	Units      []UnitProgress `json:"units"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// ProgressStore 进度快照存储
// 客户端轮询密集，读取用 singleflight 合并同一项目的并发请求
type ProgressStore struct {
	client *Client
	group  singleflight.Group
}

// NewProgressStore 创建进度快照存储
func NewProgressStore(client *Client) *ProgressStore {
	return &ProgressStore{client: client}
}

func progressKey(projectID string) string {
	return fmt.Sprintf("note:progress:%s", projectID)
}

// Save 写入进度快照
func (s *ProgressStore) Save(ctx context.Context, snapshot *ProgressSnapshot) error {
	ctx, span := tracer.Start(ctx, "progress.Save")
	span.SetAttributes(attribute.String("progress.project_id", snapshot.ProjectID))
	defer span.End()

	snapshot.UpdatedAt = time.Now()
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal progress snapshot: %w", err)
	}

	if err := s.client.rdb.Set(ctx, progressKey(snapshot.ProjectID), data, progressTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save progress snapshot: %w", err)
	}
	return nil
}

// Get 读取进度快照，不存在时返回 (nil, nil)
func (s *ProgressStore) Get(ctx context.Context, projectID string) (*ProgressSnapshot, error) {
	ctx, span := tracer.Start(ctx, "progress.Get")
	span.SetAttributes(attribute.String("progress.project_id", projectID))
	defer span.End()

	v, err, _ := s.group.Do(progressKey(projectID), func() (interface{}, error) {
		data, err := s.client.rdb.Get(ctx, progressKey(projectID)).Bytes()
		if err != nil {
			if IsNil(err) {
				return (*ProgressSnapshot)(nil), nil
			}
			return nil, fmt.Errorf("failed to get progress snapshot: %w", err)
		}

		var snapshot ProgressSnapshot
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal progress snapshot: %w", err)
		}
		return &snapshot, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return v.(*ProgressSnapshot), nil
}

// Delete 删除进度快照
func (s *ProgressStore) Delete(ctx context.Context, projectID string) error {
	return s.client.rdb.Del(ctx, progressKey(projectID)).Err()
}
