package handler

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"inknote-ai-api/internal/config"
)

// currentUserID 从认证中间件注入的上下文里取用户 ID
func currentUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

// resolveProviderModel 解析 LLM Provider 和 Model
func resolveProviderModel(cfg *config.Config, provider, model string) (string, string, error) {
	if cfg == nil {
		return "", "", fmt.Errorf("server config not configured")
	}

	p := strings.TrimSpace(provider)
	if p == "" {
		p = strings.TrimSpace(cfg.LLM.DefaultProvider)
	}
	if p == "" {
		return "", "", fmt.Errorf("llm provider not specified")
	}
	if len(p) > 32 {
		return "", "", fmt.Errorf("llm provider too long")
	}

	providerCfg, ok := cfg.LLM.Providers[p]
	if !ok {
		return "", "", fmt.Errorf("llm provider not found: %s", p)
	}

	m := strings.TrimSpace(model)
	if m == "" {
		m = strings.TrimSpace(providerCfg.Model)
	}
	if len(m) > 64 {
		return "", "", fmt.Errorf("llm model too long")
	}
	return p, m, nil
}

// resolveImageProvider 校验图片提供商名称
func resolveImageProvider(cfg *config.Config, provider string) (string, error) {
	p := strings.TrimSpace(provider)
	if p == "" {
		return "", nil
	}
	if _, ok := cfg.ImageGen.Providers[p]; !ok {
		return "", fmt.Errorf("image provider not found: %s", p)
	}
	return p, nil
}
