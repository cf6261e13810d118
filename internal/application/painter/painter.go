// Package painter 驱动图片提供商完成单张图片的生成
package painter

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"inknote-ai-api/internal/infrastructure/imagegen"
	"inknote-ai-api/pkg/logger"
	"inknote-ai-api/pkg/metrics"
)

var tracer = otel.Tracer("painter")

const (
	defaultPollInterval    = 2 * time.Second
	defaultPollMaxAttempts = 60
	defaultRetryLimit      = 2

	// 3:4 竖版
	imageWidth  = 768
	imageHeight = 1024
)

// ProviderSource 提供商查找接口，空名称返回默认提供商
type ProviderSource interface {
	Get(name string) (imagegen.Provider, error)
}

// SleepFunc 可注入的等待函数，测试时替换为虚拟时钟
type SleepFunc func(ctx context.Context, d time.Duration) error

// Request 一次绘制请求
type Request struct {
	Instruction         string
	NegativeInstruction string
	Provider            string
}

// Result 绘制结果
// 所有失败都落在 ErrorMessage 上而不是抛错，调用方把消息挂到卡片后继续处理其余卡片
type Result struct {
	Success      bool
	ImageBase64  string
	ImageURL     string
	ErrorMessage string
}

// Painter 图片生成执行器
type Painter struct {
	providers       ProviderSource
	pollInterval    time.Duration
	pollMaxAttempts int
	retryLimit      int
	placeholder     bool
	sleep           SleepFunc
}

// Option Painter 构造选项
type Option func(*Painter)

// WithPollPolicy 覆盖轮询间隔与上限
func WithPollPolicy(interval time.Duration, maxAttempts int) Option {
	return func(p *Painter) {
		if interval > 0 {
			p.pollInterval = interval
		}
		if maxAttempts > 0 {
			p.pollMaxAttempts = maxAttempts
		}
	}
}

// WithRetryLimit 覆盖瞬时失败重试次数（首次尝试之外）
func WithRetryLimit(limit int) Option {
	return func(p *Painter) {
		if limit >= 0 {
			p.retryLimit = limit
		}
	}
}

// WithPlaceholder 启用占位图开关，跳过所有真实网络调用
func WithPlaceholder(enabled bool) Option {
	return func(p *Painter) { p.placeholder = enabled }
}

// WithSleep 注入等待函数
func WithSleep(sleep SleepFunc) Option {
	return func(p *Painter) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// New 创建 Painter
func New(providers ProviderSource, opts ...Option) *Painter {
	p := &Painter{
		providers:       providers,
		pollInterval:    defaultPollInterval,
		pollMaxAttempts: defaultPollMaxAttempts,
		retryLimit:      defaultRetryLimit,
		sleep:           contextSleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Paint 执行一次图片生成，永不返回 error
func (p *Painter) Paint(ctx context.Context, req *Request) *Result {
	if p.placeholder {
		// 开发模式：在任何网络调用之前短路
		return &Result{Success: true, ImageBase64: PlaceholderDataURI(req.Instruction)}
	}

	ctx, span := tracer.Start(ctx, "painter.Paint")
	defer span.End()

	provider, err := p.providers.Get(req.Provider)
	if err != nil {
		return p.finish(ctx, req.Provider, "config_error", time.Now(),
			&Result{ErrorMessage: err.Error()})
	}
	span.SetAttributes(attribute.String("imagegen.provider", provider.Name()))

	start := time.Now()
	genReq := &imagegen.Request{
		Prompt:         req.Instruction,
		NegativePrompt: req.NegativeInstruction,
		Width:          imageWidth,
		Height:         imageHeight,
	}

	switch impl := provider.(type) {
	case imagegen.SyncProvider:
		result, status := p.paintSync(ctx, impl, genReq)
		return p.finish(ctx, provider.Name(), status, start, result)
	case imagegen.AsyncProvider:
		result, status := p.paintAsync(ctx, impl, genReq)
		return p.finish(ctx, provider.Name(), status, start, result)
	default:
		return p.finish(ctx, provider.Name(), "config_error", start,
			&Result{ErrorMessage: fmt.Sprintf("provider %s supports no known execution shape", provider.Name())})
	}
}

// paintSync 同步提供商：请求即出图，瞬时失败按预算重试
func (p *Painter) paintSync(ctx context.Context, provider imagegen.SyncProvider, req *imagegen.Request) (*Result, string) {
	var lastErr error
	for attempt := 0; attempt <= p.retryLimit; attempt++ {
		img, err := provider.Generate(ctx, req)
		if err == nil {
			return imageResult(img), "success"
		}
		lastErr = err

		if imagegen.IsContentPolicy(err) {
			return &Result{ErrorMessage: rejectMessage(err)}, "rejected"
		}
		if !imagegen.IsTransient(err) {
			return &Result{ErrorMessage: err.Error()}, "failed"
		}
		if attempt < p.retryLimit {
			logger.Warn(ctx, "image generation transient failure, retrying",
				"attempt", attempt+1,
				"error", err.Error(),
			)
			if sleepErr := p.sleep(ctx, p.pollInterval); sleepErr != nil {
				return &Result{ErrorMessage: sleepErr.Error()}, "failed"
			}
		}
	}
	return &Result{ErrorMessage: fmt.Sprintf("retries exhausted: %v", lastErr)}, "failed"
}

// paintAsync 任务式提供商：提交后按固定间隔轮询，超出轮询上限视为终态超时
func (p *Painter) paintAsync(ctx context.Context, provider imagegen.AsyncProvider, req *imagegen.Request) (*Result, string) {
	taskID, err := p.submitWithRetry(ctx, provider, req)
	if err != nil {
		if imagegen.IsContentPolicy(err) {
			return &Result{ErrorMessage: rejectMessage(err)}, "rejected"
		}
		return &Result{ErrorMessage: err.Error()}, "failed"
	}

	pollErrBudget := p.retryLimit
	attempts := 0
	for attempts < p.pollMaxAttempts {
		if err := p.sleep(ctx, p.pollInterval); err != nil {
			return &Result{ErrorMessage: err.Error()}, "failed"
		}
		attempts++

		status, err := provider.Poll(ctx, taskID)
		if err != nil {
			if imagegen.IsTransient(err) && pollErrBudget > 0 {
				pollErrBudget--
				continue
			}
			metrics.PaintPollAttempts.WithLabelValues(provider.Name()).Observe(float64(attempts))
			return &Result{ErrorMessage: err.Error()}, "failed"
		}

		switch status.State {
		case imagegen.TaskStateSucceeded:
			metrics.PaintPollAttempts.WithLabelValues(provider.Name()).Observe(float64(attempts))
			return imageResult(status.Image), "success"
		case imagegen.TaskStateFailed:
			metrics.PaintPollAttempts.WithLabelValues(provider.Name()).Observe(float64(attempts))
			return &Result{ErrorMessage: status.Message}, "failed"
		}
		// pending / running：继续轮询
	}

	metrics.PaintPollAttempts.WithLabelValues(provider.Name()).Observe(float64(attempts))
	return &Result{
		ErrorMessage: fmt.Sprintf("image task did not finish within %d polls", p.pollMaxAttempts),
	}, "timeout"
}

func (p *Painter) submitWithRetry(ctx context.Context, provider imagegen.AsyncProvider, req *imagegen.Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= p.retryLimit; attempt++ {
		taskID, err := provider.Submit(ctx, req)
		if err == nil {
			return taskID, nil
		}
		lastErr = err
		if imagegen.IsContentPolicy(err) || !imagegen.IsTransient(err) {
			return "", err
		}
		if attempt < p.retryLimit {
			if sleepErr := p.sleep(ctx, p.pollInterval); sleepErr != nil {
				return "", sleepErr
			}
		}
	}
	return "", fmt.Errorf("submit retries exhausted: %w", lastErr)
}

func (p *Painter) finish(ctx context.Context, provider, status string, start time.Time, result *Result) *Result {
	if provider == "" {
		provider = "unknown"
	}
	metrics.PaintTotal.WithLabelValues(provider, status).Inc()
	metrics.PaintDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if !result.Success && status != "success" {
		logger.Warn(ctx, "image generation finished without image",
			"provider", provider,
			"status", status,
			"error", result.ErrorMessage,
		)
	}
	return result
}

func imageResult(img *imagegen.Image) *Result {
	if img == nil {
		return &Result{ErrorMessage: "provider returned success without image"}
	}
	return &Result{Success: true, ImageBase64: img.Base64, ImageURL: img.URL}
}

func rejectMessage(err error) string {
	return fmt.Sprintf("content rejected by provider: %v", err)
}

// contextSleep 可取消的定时等待
func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
