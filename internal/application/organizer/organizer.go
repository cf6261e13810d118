// Package organizer 负责把原始文本拆解为卡片结构
package organizer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"inknote-ai-api/internal/domain/entity"
	wfmodel "inknote-ai-api/internal/workflow/model"
	wfnode "inknote-ai-api/internal/workflow/node"
	"inknote-ai-api/pkg/errors"
	"inknote-ai-api/pkg/logger"
)

// 输入文本默认上限（按字符计）
const defaultMaxInputRunes = 8000

// OrganizeChain 拆解链的最小依赖（port）
type OrganizeChain interface {
	Invoke(ctx context.Context, in *wfmodel.OrganizeInput) (*wfmodel.OrganizeOutput, error)
}

// Input 一次拆解请求
type Input struct {
	Text     string
	Mode     entity.GenerateMode
	Language string

	Provider string
	Model    string
}

// Result 拆解结果
// 模型或解析失败时 Failed 为 true，此时 Structures 含一个兜底结构，
// 保证调用方总能拿到至少一张卡片的数据
type Result struct {
	Structures           []entity.LeftBrainData
	TotalKnowledgePoints int
	Failed               bool
	FailureReason        string
}

// Organizer 文本拆解服务
type Organizer struct {
	chain         OrganizeChain
	maxInputRunes int
}

// New 创建拆解服务
func New(chain OrganizeChain, maxInputRunes int) *Organizer {
	if maxInputRunes <= 0 {
		maxInputRunes = defaultMaxInputRunes
	}
	return &Organizer{
		chain:         chain,
		maxInputRunes: maxInputRunes,
	}
}

// Organize 拆解文本
// 输入校验失败返回错误；模型侧失败不返回错误，而是返回 Failed 标记的兜底结果
func (o *Organizer) Organize(ctx context.Context, in *Input) (*Result, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, errors.ErrTextValidationFailed.WithDetail("input text is empty")
	}
	if n := utf8.RuneCountInString(text); n > o.maxInputRunes {
		return nil, errors.ErrTextValidationFailed.
			WithDetailf("input text has %d characters, limit is %d", n, o.maxInputRunes)
	}
	if !in.Mode.Valid() {
		return nil, errors.ErrTextValidationFailed.WithDetailf("unknown mode %q", in.Mode)
	}

	out, err := o.chain.Invoke(ctx, &wfmodel.OrganizeInput{
		Text:     text,
		Mode:     string(in.Mode),
		Language: in.Language,
		Provider: in.Provider,
		Model:    in.Model,
	})
	if err != nil {
		logger.Warn(ctx, "organize failed, returning fallback structure",
			"mode", in.Mode,
			"error", err.Error(),
		)
		return fallbackResult(text, in.Language, err.Error()), nil
	}

	structures := make([]entity.LeftBrainData, 0, len(out.Cards))
	for i, card := range out.Cards {
		structures = append(structures, toLeftBrainData(card, i+1, len(out.Cards)))
	}

	return &Result{
		Structures:           structures,
		TotalKnowledgePoints: out.TotalKnowledgePoints,
	}, nil
}

func toLeftBrainData(card wfmodel.OrganizeCard, index, total int) entity.LeftBrainData {
	modules := make([]entity.ContentModule, 0, len(card.Modules))
	for _, m := range card.Modules {
		modules = append(modules, entity.ContentModule{
			ID:       m.ID,
			Heading:  m.Heading,
			Content:  m.Content,
			Keywords: m.Keywords,
		})
	}

	title := card.Title
	if total > 1 {
		title = fmt.Sprintf("%s (%d/%d)", title, index, total)
	}

	theme := card.VisualThemeKeywords
	if strings.TrimSpace(theme) == "" {
		theme = themeFromKeywords(modules)
	}

	return entity.LeftBrainData{
		Title:               title,
		SummaryContext:      card.SummaryContext,
		VisualThemeKeywords: theme,
		Modules:             modules,
	}
}

// themeFromKeywords 模型漏填视觉主题时的兜底：按小节顺序取前 5 个
// 非空关键词，用 ", " 拼成主题提示
func themeFromKeywords(modules []entity.ContentModule) string {
	keywords := make([]string, 0, 5)
	for _, m := range modules {
		for _, kw := range m.Keywords {
			if kw = strings.TrimSpace(kw); kw == "" {
				continue
			}
			keywords = append(keywords, kw)
			if len(keywords) == 5 {
				return strings.Join(keywords, ", ")
			}
		}
	}
	return strings.Join(keywords, ", ")
}

// fallbackResult 构造兜底结果：一张卡片，内容为截断的原始文本
func fallbackResult(text, language, reason string) *Result {
	title := "内容整理"
	heading := "原始内容"
	if isEnglish(language) {
		title = "Content Summary"
		heading = "Original Text"
	}

	excerpt := wfnode.TruncateByRunes(text, 200)

	structure := entity.LeftBrainData{
		Title:          title,
		SummaryContext: heading,
		Modules: []entity.ContentModule{
			{ID: "1", Heading: heading, Content: excerpt},
		},
	}

	return &Result{
		Structures:           []entity.LeftBrainData{structure},
		TotalKnowledgePoints: 0,
		Failed:               true,
		FailureReason:        reason,
	}
}

func isEnglish(language string) bool {
	lang := strings.ToLower(strings.TrimSpace(language))
	return strings.HasPrefix(lang, "en")
}
