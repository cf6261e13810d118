// Package pipeline 按卡片顺序驱动 整理 → 设计 → 绘制 的完整流水线
package pipeline

import (
	"context"

	"inknote-ai-api/internal/domain/entity"
)

// Stage 流水线阶段
type Stage string

const (
	StageOrganizing Stage = "organizing"
	StagePainting   Stage = "painting"
	StageCompleted  Stage = "completed"
)

// ProgressSink 进度回调
// 钩子在每张卡片上各触发一次，顺序与卡片 order 一致；
// index 是面向展示的序号，从 1 起，区别于从 0 起的 order；
// Error 在整理硬失败时恰好触发一次
type ProgressSink interface {
	StageChanged(ctx context.Context, stage Stage, message string)
	UnitStarted(ctx context.Context, index, total int)
	UnitCompleted(ctx context.Context, index int, unit *entity.NoteUnit)
	Error(ctx context.Context, message string)
}

// NopSink 空实现
type NopSink struct{}

func (NopSink) StageChanged(context.Context, Stage, string) {}

func (NopSink) UnitStarted(context.Context, int, int) {}

func (NopSink) UnitCompleted(context.Context, int, *entity.NoteUnit) {}

func (NopSink) Error(context.Context, string) {}
