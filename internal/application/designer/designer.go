package designer

import (
	"fmt"
	"strings"

	"inknote-ai-api/internal/domain/entity"
)

// Instruction 渲染好的图片生成指令
type Instruction struct {
	Prompt         string
	NegativePrompt string
}

// Options 渲染参数
type Options struct {
	Style     string
	Language  string
	Mode      entity.GenerateMode
	Signature string
}

// 每个模块在画面中展示的关键词上限（detailed 模式）
const maxKeywordsPerModule = 3

// compact 模式下整张图展示的关键词上限
const maxKeywordsCompact = 6

// Design 把卡片结构渲染为图片生成指令
// 纯函数：相同输入永远产生逐字节相同的输出；模块的 Content 字段
// 只面向人工编辑，绝不出现在指令里
func Design(structure *entity.LeftBrainData, opts Options) (*Instruction, error) {
	style, err := GetStyle(opts.Style)
	if err != nil {
		return nil, err
	}

	var b strings.Builder

	b.WriteString("Create a single hand-crafted visual note image, portrait orientation, aspect ratio 3:4.\n")
	fmt.Fprintf(&b, "Art direction: %s.\n", style.Directive)
	fmt.Fprintf(&b, "Color palette: %s.\n", style.Palette)
	if style.KeywordEmphasis != "" {
		fmt.Fprintf(&b, "Keyword treatment: %s.\n", style.KeywordEmphasis)
	}
	fmt.Fprintf(&b, "All display text on the image must be written in %s.\n", displayLanguage(opts.Language))
	b.WriteString("\n")

	fmt.Fprintf(&b, "Title block at the top, large and prominent: \"%s\".\n", structure.Title)

	if opts.Mode == entity.ModeCompact {
		renderCompactBody(&b, structure)
	} else {
		renderDetailedBody(&b, structure)
	}

	if ctxLine := strings.TrimSpace(structure.SummaryContext); ctxLine != "" {
		fmt.Fprintf(&b, "Connect the sections with a flowing visual element (arrows, ribbon or dotted path) themed around: %s.\n", ctxLine)
	}
	if theme := strings.TrimSpace(structure.VisualThemeKeywords); theme != "" {
		fmt.Fprintf(&b, "Overall imagery theme: %s.\n", theme)
	}
	if sig := strings.TrimSpace(opts.Signature); sig != "" {
		fmt.Fprintf(&b, "Place the signature \"%s\" small in the bottom-right corner.\n", sig)
	}

	return &Instruction{
		Prompt:         b.String(),
		NegativePrompt: style.NegativePrompt(),
	}, nil
}

// renderDetailedBody 逐模块渲染：标题 + 关键词 + 图标描述
func renderDetailedBody(b *strings.Builder, structure *entity.LeftBrainData) {
	fmt.Fprintf(b, "Below the title, %d distinct sections arranged top to bottom:\n", len(structure.Modules))
	for i, m := range structure.Modules {
		fmt.Fprintf(b, "Section %d: heading \"%s\"", i+1, m.Heading)
		if kws := topKeywords(m.Keywords, maxKeywordsPerModule); len(kws) > 0 {
			fmt.Fprintf(b, ", showing the words %s as literal display text", quoteJoin(kws))
		}
		fmt.Fprintf(b, ", decorated with %s.\n", iconDescription(m))
	}
}

// renderCompactBody 单图合并渲染：不画分区，只铺关键词
func renderCompactBody(b *strings.Builder, structure *entity.LeftBrainData) {
	b.WriteString("Render one cohesive illustration, not separated sections.\n")
	keywords := make([]string, 0, maxKeywordsCompact)
	for _, m := range structure.Modules {
		for _, kw := range topKeywords(m.Keywords, maxKeywordsPerModule) {
			keywords = append(keywords, kw)
			if len(keywords) == maxKeywordsCompact {
				break
			}
		}
		if len(keywords) == maxKeywordsCompact {
			break
		}
	}
	if len(keywords) > 0 {
		fmt.Fprintf(b, "Scatter these words across the illustration as literal display text: %s.\n", quoteJoin(keywords))
	}
}

// iconDescription 由关键词或标题确定性地生成图标描述
func iconDescription(m entity.ContentModule) string {
	subject := m.Heading
	if kws := topKeywords(m.Keywords, 1); len(kws) > 0 {
		subject = kws[0]
	}
	return fmt.Sprintf("a small doodle icon representing %q", subject)
}

func topKeywords(keywords []string, limit int) []string {
	out := make([]string, 0, limit)
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw == "" {
			continue
		}
		out = append(out, kw)
		if len(out) == limit {
			break
		}
	}
	return out
}

func quoteJoin(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = fmt.Sprintf("%q", w)
	}
	return strings.Join(quoted, ", ")
}

func displayLanguage(language string) string {
	if strings.TrimSpace(language) == "" {
		return "Chinese"
	}
	return language
}
