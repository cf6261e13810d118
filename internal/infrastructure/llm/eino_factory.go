// Package llm 提供 LLM ChatModel 客户端工厂
package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"inknote-ai-api/internal/config"
)

// EinoFactory 按配置懒建并缓存各提供商的 ChatModel。
// 所有提供商都走 OpenAI 兼容协议，差异仅在 BaseURL 与模型名。
type EinoFactory struct {
	config *config.LLMConfig

	mu     sync.RWMutex
	models map[string]model.BaseChatModel
}

// NewEinoFactory 创建 ChatModel 工厂
func NewEinoFactory(cfg *config.Config) *EinoFactory {
	return &EinoFactory{
		config: &cfg.LLM,
		models: make(map[string]model.BaseChatModel),
	}
}

// Get 获取指定提供商的 ChatModel，空名称落到默认提供商
func (f *EinoFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	if name == "" {
		name = f.config.DefaultProvider
	}

	f.mu.RLock()
	cached, ok := f.models[name]
	f.mu.RUnlock()
	if ok {
		return cached, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if cached, ok = f.models[name]; ok {
		return cached, nil
	}

	built, err := f.build(ctx, name)
	if err != nil {
		return nil, err
	}
	f.models[name] = built
	return built, nil
}

// Default 返回默认提供商的 ChatModel
func (f *EinoFactory) Default(ctx context.Context) (model.BaseChatModel, error) {
	return f.Get(ctx, "")
}

func (f *EinoFactory) build(ctx context.Context, name string) (model.BaseChatModel, error) {
	providerCfg, ok := f.config.Providers[name]
	if !ok {
		return nil, fmt.Errorf("llm provider %q not configured", name)
	}

	temperature := float32(providerCfg.Temperature)
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      providerCfg.APIKey,
		BaseURL:     providerCfg.BaseURL,
		Model:       providerCfg.Model,
		MaxTokens:   &providerCfg.MaxTokens,
		Temperature: &temperature,
		Timeout:     providerCfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model for %s: %w", name, err)
	}
	return chatModel, nil
}
