// Package imagegen 提供图片生成提供商接入层
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Request 一次图片生成请求
type Request struct {
	// Prompt 正向绘图指令
	Prompt string
	// NegativePrompt 负向指令，提供商支持时随请求下发
	NegativePrompt string
	Width          int
	Height         int
}

// Image 生成结果，Base64 与 URL 恰有一个非空
type Image struct {
	Base64 string
	URL    string
}

// TaskState 异步任务状态
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateRunning   TaskState = "running"
	TaskStateSucceeded TaskState = "succeeded"
	TaskStateFailed    TaskState = "failed"
)

// TaskStatus 一次轮询得到的任务快照
type TaskStatus struct {
	State   TaskState
	Image   *Image
	Message string
}

// Provider 图片提供商的公共能力
type Provider interface {
	Name() string
}

// SyncProvider 同步出图：一次调用直接返回图片
type SyncProvider interface {
	Provider
	Generate(ctx context.Context, req *Request) (*Image, error)
}

// AsyncProvider 任务式出图：先提交任务再轮询结果
type AsyncProvider interface {
	Provider
	Submit(ctx context.Context, req *Request) (taskID string, err error)
	Poll(ctx context.Context, taskID string) (*TaskStatus, error)
}

// ProviderError 提供商调用失败
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	// Transient 为 true 表示可以重试（网络抖动、5xx、限流）
	Transient bool
	// ContentPolicy 为 true 表示内容被拒绝，重试无意义
	ContentPolicy bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("imagegen provider %s failed: status=%d code=%s message=%s",
		e.Provider, e.StatusCode, e.Code, e.Message)
}

// IsTransient 判断错误是否值得重试
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// IsContentPolicy 判断是否为内容审核拒绝
func IsContentPolicy(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.ContentPolicy
	}
	return false
}

// transientHTTPStatus 5xx 与 429 视为瞬时错误
func transientHTTPStatus(status int) bool {
	return status >= 500 || status == 429
}
