// Package imagegen 提供图片生成提供商接入层
package imagegen

import (
	"fmt"
	"sync"

	"inknote-ai-api/internal/config"
)

// Factory 按配置构建并缓存图片提供商实例
type Factory struct {
	config    *config.ImageGenConfig
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewFactory 创建提供商工厂
func NewFactory(cfg *config.ImageGenConfig) *Factory {
	return &Factory{
		config:    cfg,
		providers: make(map[string]Provider),
	}
}

// Get 获取指定名称的提供商，空名称返回默认提供商
func (f *Factory) Get(name string) (Provider, error) {
	if name == "" {
		name = f.config.DefaultProvider
	}

	f.mu.RLock()
	p, ok := f.providers[name]
	f.mu.RUnlock()
	if ok {
		return p, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok = f.providers[name]; ok {
		return p, nil
	}

	providerCfg, ok := f.config.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %s not found in imagegen config", name)
	}

	switch providerCfg.Kind {
	case "sync", "":
		p = NewOpenAICompatProvider(name, providerCfg)
	case "task":
		p = NewDashScopeProvider(name, providerCfg)
	default:
		return nil, fmt.Errorf("unknown imagegen provider kind %q for %s", providerCfg.Kind, name)
	}

	f.providers[name] = p
	return p, nil
}

// Default 返回默认提供商
func (f *Factory) Default() (Provider, error) {
	return f.Get("")
}
