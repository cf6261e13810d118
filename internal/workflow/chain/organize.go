package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	llmctx "inknote-ai-api/internal/domain/service"
	wfmodel "inknote-ai-api/internal/workflow/model"
	wfnode "inknote-ai-api/internal/workflow/node"
	workflowport "inknote-ai-api/internal/workflow/port"
	workflowprompt "inknote-ai-api/internal/workflow/prompt"
	"inknote-ai-api/pkg/logger"
)

// 每张卡片最多容纳的小节数
const maxModulesPerCard = 4

type OrganizeChain struct {
	factory workflowport.ChatModelFactory

	chainOnce sync.Once
	chain     compose.Runnable[*wfmodel.OrganizeInput, *wfmodel.OrganizeOutput]
	chainErr  error
}

func NewOrganizeChain(factory workflowport.ChatModelFactory) *OrganizeChain {
	return &OrganizeChain{factory: factory}
}

func (c *OrganizeChain) Invoke(ctx context.Context, in *wfmodel.OrganizeInput) (*wfmodel.OrganizeOutput, error) {
	if c == nil || c.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}

	chain, err := c.getChain()
	if err != nil {
		return nil, err
	}
	return chain.Invoke(ctx, in)
}

type organizeChainState struct {
	In       *wfmodel.OrganizeInput
	Messages []*schema.Message
	OutMsg   *schema.Message
}

func (c *OrganizeChain) getChain() (compose.Runnable[*wfmodel.OrganizeInput, *wfmodel.OrganizeOutput], error) {
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	return c.chain, c.chainErr
}

func (c *OrganizeChain) buildChain(ctx context.Context) (compose.Runnable[*wfmodel.OrganizeInput, *wfmodel.OrganizeOutput], error) {
	chain := compose.NewChain[*wfmodel.OrganizeInput, *wfmodel.OrganizeOutput]()

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, in *wfmodel.OrganizeInput) (*organizeChainState, error) {
			if in == nil {
				return nil, fmt.Errorf("input is nil")
			}
			return &organizeChainState{In: in}, nil
		}),
		compose.WithNodeName("organize.init"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *organizeChainState) (*organizeChainState, error) {
			if st == nil || st.In == nil {
				return nil, fmt.Errorf("state is nil")
			}
			msgs, err := formatOrganizeMessages(ctx, st.In)
			if err != nil {
				return nil, err
			}
			st.Messages = msgs
			return st, nil
		}),
		compose.WithNodeName("organize.template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *organizeChainState) (*organizeChainState, error) {
			if st == nil || st.In == nil {
				return nil, fmt.Errorf("state is nil")
			}
			if c.factory == nil {
				return nil, fmt.Errorf("llm factory not configured")
			}

			ctx = llmctx.WithWorkflowProvider(ctx, "organize", strings.TrimSpace(st.In.Provider))
			chatModel, err := c.factory.Get(ctx, strings.TrimSpace(st.In.Provider))
			if err != nil {
				return nil, err
			}

			outMsg, err := chatModel.Generate(ctx, st.Messages, buildOrganizeModelOptions(st.In, true)...)
			if err != nil && wfnode.IsResponseFormatUnsupportedError(err) {
				logger.Warn(ctx, "llm json_schema not supported, fallback to prompt-only",
					"provider", strings.TrimSpace(st.In.Provider),
					"model", strings.TrimSpace(st.In.Model),
					"error", err.Error(),
				)
				outMsg, err = chatModel.Generate(ctx, st.Messages, buildOrganizeModelOptions(st.In, false)...)
			}
			if err != nil {
				return nil, err
			}
			if outMsg == nil {
				return nil, fmt.Errorf("empty llm response")
			}
			st.OutMsg = outMsg
			return st, nil
		}),
		compose.WithNodeName("organize.llm"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *organizeChainState) (*wfmodel.OrganizeOutput, error) {
			if st == nil || st.OutMsg == nil {
				return nil, fmt.Errorf("state is nil")
			}
			return parseOrganizeOutput(st.OutMsg.Content, st.In.Mode)
		}),
		compose.WithNodeName("organize.parse"),
	)

	return chain.Compile(ctx)
}

var defaultPromptRegistry = workflowprompt.NewRegistry()

func formatOrganizeMessages(ctx context.Context, in *wfmodel.OrganizeInput) ([]*schema.Message, error) {
	tpl, err := defaultPromptRegistry.ChatTemplate(workflowprompt.PromptOrganizeV1)
	if err != nil {
		return nil, err
	}

	modeInstruction := "按知识点拆分：不超过 4 个知识点时整理成一张卡片；超过 4 个时拆成多张卡片，每张最多 4 个小节，卡片顺序与知识点在原文中出现的顺序一致。"
	if in.Mode == "compact" {
		modeInstruction = "浓缩为一张卡片：把全部内容整理进唯一一张卡片，最多 4 个小节，次要内容合并或舍弃。"
	}

	language := strings.TrimSpace(in.Language)
	if language == "" {
		language = "与输入文本一致"
	}

	vars := map[string]any{
		"mode_instruction": modeInstruction,
		"language":         language,
		"text":             strings.TrimSpace(in.Text),
	}
	return tpl.Format(ctx, vars)
}

func buildOrganizeModelOptions(in *wfmodel.OrganizeInput, enableSchema bool) []model.Option {
	opts := make([]model.Option, 0, 4)
	if in == nil {
		return opts
	}

	if in.Temperature != nil {
		opts = append(opts, model.WithTemperature(*in.Temperature))
	}
	if in.MaxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*in.MaxTokens))
	}
	if strings.TrimSpace(in.Model) != "" {
		opts = append(opts, model.WithModel(strings.TrimSpace(in.Model)))
	}

	if enableSchema {
		opts = append(opts, openaiopts.WithExtraFields(map[string]any{
			"response_format": map[string]any{
				"type": "json_schema",
				"json_schema": map[string]any{
					"name":   "visual_note_cards",
					"strict": false,
					"schema": organizeJSONSchema(),
				},
			},
		}))
	}

	return opts
}

// parseOrganizeOutput 解析并规范化模型输出
// 规则：卡片必须至少一张；compact 模式只保留第一张；
// 小节数量压到 1-4 之间；小节 ID 重新按序编号。
// 模型漏填的字段在这里兜底：summary_context 用小节标题以 " · "
// 拼接，total_knowledge_points 缺失或非正时取卡片数。
func parseOrganizeOutput(content, mode string) (*wfmodel.OrganizeOutput, error) {
	raw := wfnode.ExtractJSONObject(content)
	if raw == "" {
		return nil, fmt.Errorf("empty organize response")
	}

	var out wfmodel.OrganizeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to parse organize response: %w", err)
	}

	if len(out.Cards) == 0 {
		return nil, fmt.Errorf("organize response contains no cards")
	}

	if mode == "compact" && len(out.Cards) > 1 {
		out.Cards = out.Cards[:1]
	}

	for i := range out.Cards {
		card := &out.Cards[i]
		if strings.TrimSpace(card.Title) == "" {
			return nil, fmt.Errorf("card %d has empty title", i)
		}
		if len(card.Modules) == 0 {
			return nil, fmt.Errorf("card %d has no modules", i)
		}
		if len(card.Modules) > maxModulesPerCard {
			card.Modules = card.Modules[:maxModulesPerCard]
		}
		for j := range card.Modules {
			card.Modules[j].ID = strconv.Itoa(j + 1)
		}
		if strings.TrimSpace(card.SummaryContext) == "" {
			headings := make([]string, 0, len(card.Modules))
			for _, m := range card.Modules {
				headings = append(headings, m.Heading)
			}
			card.SummaryContext = strings.Join(headings, " · ")
		}
	}

	if out.TotalKnowledgePoints <= 0 {
		out.TotalKnowledgePoints = len(out.Cards)
	}

	return &out, nil
}

func organizeJSONSchema() map[string]any {
	// 最小可用约束，避免过度约束导致模型输出失败
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"total_knowledge_points", "cards"},
		"properties": map[string]any{
			"total_knowledge_points": map[string]any{"type": "integer"},
			"cards": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []any{"title", "summary_context", "visual_theme_keywords", "modules"},
					"properties": map[string]any{
						"title":                 map[string]any{"type": "string"},
						"summary_context":       map[string]any{"type": "string"},
						"visual_theme_keywords": map[string]any{"type": "string"},
						"modules": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type":                 "object",
								"additionalProperties": false,
								"required":             []any{"id", "heading", "content", "keywords"},
								"properties": map[string]any{
									"id":       map[string]any{"type": "string"},
									"heading":  map[string]any{"type": "string"},
									"content":  map[string]any{"type": "string"},
									"keywords": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
								},
							},
						},
					},
				},
			},
		},
	}
}
