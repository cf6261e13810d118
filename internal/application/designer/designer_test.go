package designer

import (
	"strings"
	"testing"

	"inknote-ai-api/internal/domain/entity"
)

func sampleStructure() *entity.LeftBrainData {
	return &entity.LeftBrainData{
		Title:               "光合作用",
		SummaryContext:      "光反应 · 暗反应",
		VisualThemeKeywords: "叶绿体, 阳光",
		Modules: []entity.ContentModule{
			{
				ID:       "1",
				Heading:  "光反应",
				Content:  "这段人工编辑的正文绝不能出现在指令里",
				Keywords: []string{"ATP", "叶绿体", "光能", "第四个词"},
			},
			{
				ID:       "2",
				Heading:  "暗反应",
				Content:  "另一段不可泄漏的正文",
				Keywords: []string{"卡尔文循环", "CO2"},
			},
		},
	}
}

func TestDesignDeterministic(t *testing.T) {
	opts := Options{Style: "hand_drawn", Language: "中文", Mode: entity.ModeDetailed, Signature: "@inknote"}

	first, err := Design(sampleStructure(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Design(sampleStructure(), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Prompt != second.Prompt || first.NegativePrompt != second.NegativePrompt {
		t.Fatal("identical inputs must produce byte-identical instructions")
	}
}

func TestDesignNeverLeaksModuleContent(t *testing.T) {
	structure := sampleStructure()
	for _, mode := range []entity.GenerateMode{entity.ModeDetailed, entity.ModeCompact} {
		inst, err := Design(structure, Options{Mode: mode})
		if err != nil {
			t.Fatalf("mode %s: %v", mode, err)
		}
		for _, m := range structure.Modules {
			if strings.Contains(inst.Prompt, m.Content) {
				t.Fatalf("mode %s: module content leaked into prompt", mode)
			}
		}
	}
}

func TestDesignDetailedIncludesHeadingsAndKeywords(t *testing.T) {
	inst, err := Design(sampleStructure(), Options{Mode: entity.ModeDetailed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"光反应", "暗反应", "ATP", "卡尔文循环"} {
		if !strings.Contains(inst.Prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
	// 每个模块最多展示 3 个关键词
	if strings.Contains(inst.Prompt, "第四个词") {
		t.Fatal("prompt should drop keywords beyond the per-module limit")
	}
	if !strings.Contains(inst.Prompt, "aspect ratio 3:4") {
		t.Fatal("prompt must request portrait 3:4 aspect ratio")
	}
}

func TestDesignCompactFlattensKeywords(t *testing.T) {
	inst, err := Design(sampleStructure(), Options{Mode: entity.ModeCompact})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(inst.Prompt, "one cohesive illustration") {
		t.Fatal("compact mode must ask for a single cohesive illustration")
	}
	if strings.Contains(inst.Prompt, "doodle icon") {
		t.Fatal("compact mode must not emit per-module icon descriptions")
	}
}

func TestDesignSignaturePlacement(t *testing.T) {
	inst, err := Design(sampleStructure(), Options{Mode: entity.ModeDetailed, Signature: "林小记"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(inst.Prompt, "林小记") || !strings.Contains(inst.Prompt, "bottom-right") {
		t.Fatal("signature must be placed bottom-right")
	}
}

func TestNegativePromptUniversalSuffix(t *testing.T) {
	for _, spec := range ListStyles() {
		neg := spec.NegativePrompt()
		if !strings.HasSuffix(neg, UniversalNegativeSuffix) {
			t.Fatalf("style %s negative prompt missing universal suffix: %q", spec.ID, neg)
		}
	}
}

func TestDesignUnknownStyle(t *testing.T) {
	if _, err := Design(sampleStructure(), Options{Style: "oil_painting"}); err == nil {
		t.Fatal("unknown style must be rejected")
	}
}

func TestDesignDefaultStyle(t *testing.T) {
	inst, err := Design(sampleStructure(), Options{})
	if err != nil {
		t.Fatalf("empty style should fall back to default: %v", err)
	}
	if !strings.Contains(inst.Prompt, "sketchnote") {
		t.Fatal("default style should be the hand-drawn catalog entry")
	}
}
