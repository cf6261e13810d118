// Package imagegen 提供图片生成提供商接入层
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"inknote-ai-api/internal/config"
)

var tracer = otel.Tracer("imagegen")

// OpenAICompatProvider OpenAI images 接口兼容的同步提供商
// 覆盖 OpenAI 及各家兼容 /v1/images/generations 的服务
type OpenAICompatProvider struct {
	name       string
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatProvider 创建 OpenAI 兼容提供商
func NewOpenAICompatProvider(name string, cfg config.ImageProviderConfig) *OpenAICompatProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAICompatProvider{
		name:       name,
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name 提供商名称
func (p *OpenAICompatProvider) Name() string {
	return p.name
}

type openaiImageRequest struct {
	Model          string `json:"model,omitempty"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type openaiImageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate 同步生成一张图片
func (p *OpenAICompatProvider) Generate(ctx context.Context, req *Request) (*Image, error) {
	ctx, span := tracer.Start(ctx, "imagegen.openai_compat.Generate")
	span.SetAttributes(attribute.String("imagegen.provider", p.name))
	defer span.End()

	// 该接口没有独立的负向指令字段，追加到正向指令末尾
	prompt := req.Prompt
	if strings.TrimSpace(req.NegativePrompt) != "" {
		prompt = prompt + "\nAvoid: " + req.NegativePrompt
	}

	size := ""
	if req.Width > 0 && req.Height > 0 {
		size = fmt.Sprintf("%dx%d", req.Width, req.Height)
	}

	body, err := json.Marshal(openaiImageRequest{
		Model:          p.model,
		Prompt:         prompt,
		N:              1,
		Size:           size,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, &ProviderError{
			Provider:  p.name,
			Message:   err.Error(),
			Transient: true,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{
			Provider:  p.name,
			Message:   err.Error(),
			Transient: true,
		}
	}

	var parsed openaiImageResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil && resp.StatusCode == http.StatusOK {
		return nil, fmt.Errorf("failed to parse image response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		pe := &ProviderError{
			Provider:   p.name,
			StatusCode: resp.StatusCode,
			Transient:  transientHTTPStatus(resp.StatusCode),
		}
		if parsed.Error != nil {
			pe.Code = parsed.Error.Code
			pe.Message = parsed.Error.Message
			pe.ContentPolicy = isContentPolicyCode(parsed.Error.Code, parsed.Error.Message)
		} else {
			pe.Message = string(respBody)
		}
		span.RecordError(pe)
		return nil, pe
	}

	if len(parsed.Data) == 0 {
		return nil, &ProviderError{
			Provider: p.name,
			Message:  "empty image response",
		}
	}

	return &Image{
		Base64: parsed.Data[0].B64JSON,
		URL:    parsed.Data[0].URL,
	}, nil
}

func isContentPolicyCode(code, message string) bool {
	lower := strings.ToLower(code + " " + message)
	return strings.Contains(lower, "content_policy") ||
		strings.Contains(lower, "content policy") ||
		strings.Contains(lower, "safety") ||
		strings.Contains(lower, "moderation")
}
