// Package messaging 提供消息队列实现
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishNoteGenTask 发布笔记生成任务
func (p *Producer) PublishNoteGenTask(ctx context.Context, task *NoteGenTaskMessage) (string, error) {
	msg, err := NewMessage(task.ProjectID, MsgTypeNoteGen, task.UserID, task.ProjectID, task)
	if err != nil {
		return "", err
	}

	if task.RequestID != "" {
		msg.SetMetadata("request_id", task.RequestID)
	}

	return p.Publish(ctx, StreamNoteGen, msg)
}

// PublishUnitRegenTask 发布卡片重新生成任务
func (p *Producer) PublishUnitRegenTask(ctx context.Context, task *UnitRegenTaskMessage) (string, error) {
	msg, err := NewMessage(task.UnitID, MsgTypeUnitRegen, task.UserID, task.ProjectID, task)
	if err != nil {
		return "", err
	}

	if task.RequestID != "" {
		msg.SetMetadata("request_id", task.RequestID)
	}

	return p.Publish(ctx, StreamNoteGen, msg)
}

// NoteGenTaskMessage 笔记生成任务消息
type NoteGenTaskMessage struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	// Provider / Model / ImageProvider 请求级的提供商覆盖，空值用服务端默认
	Provider      string `json:"provider,omitempty"`
	Model         string `json:"model,omitempty"`
	ImageProvider string `json:"image_provider,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
}

// UnitRegenTaskMessage 卡片重新生成任务消息
type UnitRegenTaskMessage struct {
	ProjectID string `json:"project_id"`
	UnitID    string `json:"unit_id"`
	UserID    string `json:"user_id"`
	// CustomInstruction 非空时直接用该指令出图，跳过重新设计
	CustomInstruction string `json:"custom_instruction,omitempty"`
	RequestID         string `json:"request_id,omitempty"`
}
