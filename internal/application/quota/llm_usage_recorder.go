// Package quota 提供 LLM 用量记录能力
package quota

import (
	"context"
	"fmt"

	"inknote-ai-api/internal/domain/service"
	"inknote-ai-api/pkg/logger"
)

// LLMUsageRecorder 把每次 LLM 调用的用量写入结构化日志
// 指标由 callbacks 层直接上报，这里只负责可审计的流水记录
type LLMUsageRecorder struct{}

func NewLLMUsageRecorder() *LLMUsageRecorder {
	return &LLMUsageRecorder{}
}

func (r *LLMUsageRecorder) Record(ctx context.Context, in service.LLMUsageInput) error {
	if in.PromptTokens < 0 || in.CompletionTokens < 0 {
		return fmt.Errorf("invalid token usage")
	}

	logger.Info(ctx, "llm usage",
		"workflow", in.Workflow,
		"provider", in.Provider,
		"model", in.Model,
		"prompt_tokens", in.PromptTokens,
		"completion_tokens", in.CompletionTokens,
		"duration_ms", in.DurationMs,
	)
	return nil
}
