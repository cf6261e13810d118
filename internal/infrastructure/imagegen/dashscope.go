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

	"go.opentelemetry.io/otel/attribute"

	"inknote-ai-api/internal/config"
)

// DashScopeProvider 任务式文生图提供商
// 提交任务后通过任务 ID 轮询，直到 SUCCEEDED 或 FAILED
type DashScopeProvider struct {
	name       string
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewDashScopeProvider 创建任务式提供商
func NewDashScopeProvider(name string, cfg config.ImageProviderConfig) *DashScopeProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DashScopeProvider{
		name:       name,
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name 提供商名称
func (p *DashScopeProvider) Name() string {
	return p.name
}

type dashScopeSubmitRequest struct {
	Model string `json:"model"`
	Input struct {
		Prompt         string `json:"prompt"`
		NegativePrompt string `json:"negative_prompt,omitempty"`
	} `json:"input"`
	Parameters struct {
		N    int    `json:"n"`
		Size string `json:"size,omitempty"`
	} `json:"parameters"`
}

type dashScopeSubmitResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type dashScopePollResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		Results    []struct {
			URL string `json:"url"`
		} `json:"results"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Submit 提交生成任务
func (p *DashScopeProvider) Submit(ctx context.Context, req *Request) (string, error) {
	ctx, span := tracer.Start(ctx, "imagegen.dashscope.Submit")
	span.SetAttributes(attribute.String("imagegen.provider", p.name))
	defer span.End()

	var payload dashScopeSubmitRequest
	payload.Model = p.model
	payload.Input.Prompt = req.Prompt
	payload.Input.NegativePrompt = req.NegativePrompt
	payload.Parameters.N = 1
	if req.Width > 0 && req.Height > 0 {
		payload.Parameters.Size = fmt.Sprintf("%d*%d", req.Width, req.Height)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal submit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/services/aigc/text2image/image-synthesis", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("X-DashScope-Async", "enable")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return "", &ProviderError{Provider: p.name, Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderError{Provider: p.name, Message: err.Error(), Transient: true}
	}

	var parsed dashScopeSubmitResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil && resp.StatusCode == http.StatusOK {
		return "", fmt.Errorf("failed to parse submit response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		pe := &ProviderError{
			Provider:      p.name,
			StatusCode:    resp.StatusCode,
			Code:          parsed.Code,
			Message:       parsed.Message,
			Transient:     transientHTTPStatus(resp.StatusCode),
			ContentPolicy: isContentPolicyCode(parsed.Code, parsed.Message),
		}
		if pe.Message == "" {
			pe.Message = string(respBody)
		}
		span.RecordError(pe)
		return "", pe
	}

	if parsed.Output.TaskID == "" {
		return "", &ProviderError{Provider: p.name, Message: "submit response missing task id"}
	}

	span.SetAttributes(attribute.String("imagegen.task_id", parsed.Output.TaskID))
	return parsed.Output.TaskID, nil
}

// Poll 查询任务状态
func (p *DashScopeProvider) Poll(ctx context.Context, taskID string) (*TaskStatus, error) {
	ctx, span := tracer.Start(ctx, "imagegen.dashscope.Poll")
	span.SetAttributes(
		attribute.String("imagegen.provider", p.name),
		attribute.String("imagegen.task_id", taskID),
	)
	defer span.End()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"/tasks/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build poll request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, &ProviderError{Provider: p.name, Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Message: err.Error(), Transient: true}
	}

	if resp.StatusCode != http.StatusOK {
		pe := &ProviderError{
			Provider:   p.name,
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
			Transient:  transientHTTPStatus(resp.StatusCode),
		}
		span.RecordError(pe)
		return nil, pe
	}

	var parsed dashScopePollResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse poll response: %w", err)
	}

	switch strings.ToUpper(parsed.Output.TaskStatus) {
	case "SUCCEEDED":
		if len(parsed.Output.Results) == 0 {
			return nil, &ProviderError{Provider: p.name, Message: "succeeded task has no results"}
		}
		return &TaskStatus{
			State: TaskStateSucceeded,
			Image: &Image{URL: parsed.Output.Results[0].URL},
		}, nil
	case "FAILED", "CANCELED":
		return &TaskStatus{
			State:   TaskStateFailed,
			Message: firstNonEmpty(parsed.Output.Message, parsed.Message, "task failed"),
		}, nil
	case "RUNNING":
		return &TaskStatus{State: TaskStateRunning}, nil
	default:
		return &TaskStatus{State: TaskStatePending}, nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
