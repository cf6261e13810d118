package chain

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	wfmodel "inknote-ai-api/internal/workflow/model"
)

const sampleOrganizeJSON = `{
	"total_knowledge_points": 2,
	"cards": [
		{
			"title": "光合作用",
			"summary_context": "光反应 · 暗反应",
			"visual_theme_keywords": "叶绿体, 阳光, 气泡",
			"modules": [
				{"id": "a", "heading": "光反应", "content": "发生在类囊体膜上。", "keywords": ["类囊体", "ATP"]},
				{"id": "b", "heading": "暗反应", "content": "发生在基质中。", "keywords": ["基质"]}
			]
		},
		{
			"title": "呼吸作用",
			"summary_context": "",
			"visual_theme_keywords": "线粒体, 火焰",
			"modules": [
				{"id": "1", "heading": "有氧呼吸", "content": "释放大量能量。", "keywords": ["线粒体"]}
			]
		}
	]
}`

func TestParseOrganizeOutput(t *testing.T) {
	out, err := parseOrganizeOutput(sampleOrganizeJSON, "detailed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.TotalKnowledgePoints != 2 {
		t.Fatalf("expected 2 knowledge points, got %d", out.TotalKnowledgePoints)
	}
	if len(out.Cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(out.Cards))
	}

	// 小节 ID 必须重新按序编号
	if out.Cards[0].Modules[0].ID != "1" || out.Cards[0].Modules[1].ID != "2" {
		t.Fatalf("module ids not renumbered: %s, %s",
			out.Cards[0].Modules[0].ID, out.Cards[0].Modules[1].ID)
	}

	// 空 summary_context 用小节标题拼接兜底
	if out.Cards[1].SummaryContext != "有氧呼吸" {
		t.Fatalf("expected fallback summary context, got %q", out.Cards[1].SummaryContext)
	}
}

func TestParseOrganizeOutputCompactKeepsFirstCard(t *testing.T) {
	out, err := parseOrganizeOutput(sampleOrganizeJSON, "compact")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Cards) != 1 {
		t.Fatalf("compact mode should keep exactly one card, got %d", len(out.Cards))
	}
	if out.Cards[0].Title != "光合作用" {
		t.Fatalf("expected first card kept, got %q", out.Cards[0].Title)
	}
}

func TestParseOrganizeOutputStripsCodeFence(t *testing.T) {
	fenced := "```json\n" + sampleOrganizeJSON + "\n```"
	out, err := parseOrganizeOutput(fenced, "detailed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(out.Cards))
	}
}

func TestParseOrganizeOutputTruncatesExcessModules(t *testing.T) {
	var modules []string
	for i := 0; i < 6; i++ {
		modules = append(modules,
			`{"id": "x", "heading": "小节", "content": "说明。", "keywords": ["k"]}`)
	}
	input := `{"total_knowledge_points": 1, "cards": [{"title": "标题", "summary_context": "s", "visual_theme_keywords": "v", "modules": [` +
		strings.Join(modules, ",") + `]}]}`

	out, err := parseOrganizeOutput(input, "detailed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(out.Cards[0].Modules); got != maxModulesPerCard {
		t.Fatalf("expected %d modules after truncation, got %d", maxModulesPerCard, got)
	}
}

func TestParseOrganizeOutputErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not json", "抱歉，我无法处理这段文本。"},
		{"no cards", `{"total_knowledge_points": 0, "cards": []}`},
		{"empty title", `{"total_knowledge_points": 1, "cards": [{"title": " ", "summary_context": "s", "visual_theme_keywords": "v", "modules": [{"id":"1","heading":"h","content":"c","keywords":[]}]}]}`},
		{"no modules", `{"total_knowledge_points": 1, "cards": [{"title": "t", "summary_context": "s", "visual_theme_keywords": "v", "modules": []}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseOrganizeOutput(tc.input, "detailed"); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func messagesText(msgs []*schema.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func TestFormatOrganizeMessagesDetailedCardinality(t *testing.T) {
	msgs, err := formatOrganizeMessages(context.Background(), &wfmodel.OrganizeInput{
		Text: "光合作用分为光反应和暗反应两个阶段。",
		Mode: "detailed",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// detailed 模式的提示词必须写明卡片数量规则
	text := messagesText(msgs)
	for _, rule := range []string{
		"不超过 4 个知识点时整理成一张卡片",
		"超过 4 个时拆成多张卡片",
		"每张最多 4 个小节",
	} {
		if !strings.Contains(text, rule) {
			t.Fatalf("detailed instruction missing rule %q", rule)
		}
	}
}

func TestFormatOrganizeMessagesCompactCardinality(t *testing.T) {
	msgs, err := formatOrganizeMessages(context.Background(), &wfmodel.OrganizeInput{
		Text: "光合作用分为光反应和暗反应两个阶段。",
		Mode: "compact",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text := messagesText(msgs)
	for _, rule := range []string{"唯一一张卡片", "最多 4 个小节"} {
		if !strings.Contains(text, rule) {
			t.Fatalf("compact instruction missing rule %q", rule)
		}
	}
}

func TestParseOrganizeOutputJoinsHeadingsForSummary(t *testing.T) {
	input := `{"total_knowledge_points": 1, "cards": [{"title": "细胞呼吸", "summary_context": "  ", "visual_theme_keywords": "v", "modules": [` +
		`{"id": "1", "heading": "有氧呼吸", "content": "c", "keywords": []},` +
		`{"id": "2", "heading": "无氧呼吸", "content": "c", "keywords": []}]}]}`

	out, err := parseOrganizeOutput(input, "detailed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out.Cards[0].SummaryContext; got != "有氧呼吸 · 无氧呼吸" {
		t.Fatalf("expected headings joined as summary context, got %q", got)
	}
}

func TestParseOrganizeOutputDefaultsKnowledgePoints(t *testing.T) {
	input := `{"cards": [{"title": "t", "summary_context": "s", "visual_theme_keywords": "v", "modules": [{"id":"1","heading":"h","content":"c","keywords":["k"]}]}]}`
	out, err := parseOrganizeOutput(input, "detailed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.TotalKnowledgePoints != 1 {
		t.Fatalf("expected knowledge points to default to card count, got %d", out.TotalKnowledgePoints)
	}
}
