package organizer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"inknote-ai-api/internal/domain/entity"
	wfmodel "inknote-ai-api/internal/workflow/model"
	"inknote-ai-api/pkg/errors"
)

type fakeChain struct {
	out *wfmodel.OrganizeOutput
	err error
}

func (f *fakeChain) Invoke(_ context.Context, _ *wfmodel.OrganizeInput) (*wfmodel.OrganizeOutput, error) {
	return f.out, f.err
}

func twoCardOutput() *wfmodel.OrganizeOutput {
	return &wfmodel.OrganizeOutput{
		TotalKnowledgePoints: 2,
		Cards: []wfmodel.OrganizeCard{
			{
				Title:               "光合作用",
				SummaryContext:      "光反应 · 暗反应",
				VisualThemeKeywords: "叶绿体, 阳光",
				Modules: []wfmodel.OrganizeModule{
					{ID: "1", Heading: "光反应", Content: "说明。", Keywords: []string{"ATP"}},
				},
			},
			{
				Title:               "呼吸作用",
				SummaryContext:      "有氧呼吸",
				VisualThemeKeywords: "线粒体",
				Modules: []wfmodel.OrganizeModule{
					{ID: "1", Heading: "有氧呼吸", Content: "说明。", Keywords: []string{"线粒体"}},
				},
			},
		},
	}
}

func TestOrganizeSuccess(t *testing.T) {
	o := New(&fakeChain{out: twoCardOutput()}, 0)

	result, err := o.Organize(context.Background(), &Input{
		Text: "光合作用与呼吸作用的笔记文本。",
		Mode: entity.ModeDetailed,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failed {
		t.Fatal("result should not be failed")
	}
	if len(result.Structures) != 2 {
		t.Fatalf("expected 2 structures, got %d", len(result.Structures))
	}
	if result.TotalKnowledgePoints != 2 {
		t.Fatalf("expected 2 knowledge points, got %d", result.TotalKnowledgePoints)
	}
	// 多卡片时标题带序号后缀
	if result.Structures[0].Title != "光合作用 (1/2)" {
		t.Fatalf("unexpected title: %s", result.Structures[0].Title)
	}
	if result.Structures[1].Title != "呼吸作用 (2/2)" {
		t.Fatalf("unexpected title: %s", result.Structures[1].Title)
	}
}

func TestOrganizeSingleCardTitleUnsuffixed(t *testing.T) {
	out := twoCardOutput()
	out.Cards = out.Cards[:1]
	out.TotalKnowledgePoints = 1
	o := New(&fakeChain{out: out}, 0)

	result, err := o.Organize(context.Background(), &Input{
		Text: "光合作用的笔记文本。",
		Mode: entity.ModeCompact,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Structures[0].Title != "光合作用" {
		t.Fatalf("single card title must not carry a suffix, got %s", result.Structures[0].Title)
	}
}

func TestOrganizeThemeDerivedFromKeywords(t *testing.T) {
	out := twoCardOutput()
	out.Cards = out.Cards[:1]
	out.Cards[0].VisualThemeKeywords = ""
	out.Cards[0].Modules[0].Keywords = []string{"ATP", "叶绿体", "", "光能"}
	o := New(&fakeChain{out: out}, 0)

	result, err := o.Organize(context.Background(), &Input{
		Text: "文本",
		Mode: entity.ModeDetailed,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Structures[0].VisualThemeKeywords; got != "ATP, 叶绿体, 光能" {
		t.Fatalf("unexpected derived theme: %q", got)
	}
}

func TestOrganizeEmptyTextRejected(t *testing.T) {
	o := New(&fakeChain{out: twoCardOutput()}, 0)

	_, err := o.Organize(context.Background(), &Input{Text: "   ", Mode: entity.ModeDetailed})
	if err == nil {
		t.Fatal("expected validation error")
	}
	appErr := errors.AsAppError(err)
	if appErr.Code != errors.CodeTextValidationFailed {
		t.Fatalf("expected validation code, got %s", appErr.Code)
	}
}

func TestOrganizeOversizedTextRejected(t *testing.T) {
	o := New(&fakeChain{out: twoCardOutput()}, 10)

	_, err := o.Organize(context.Background(), &Input{
		Text: strings.Repeat("字", 11),
		Mode: entity.ModeDetailed,
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestOrganizeInvalidModeRejected(t *testing.T) {
	o := New(&fakeChain{out: twoCardOutput()}, 0)

	_, err := o.Organize(context.Background(), &Input{Text: "文本", Mode: "fancy"})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestOrganizeChainErrorReturnsFallback(t *testing.T) {
	o := New(&fakeChain{err: fmt.Errorf("provider unavailable")}, 0)

	result, err := o.Organize(context.Background(), &Input{
		Text: "一段无法被模型处理的文本。",
		Mode: entity.ModeDetailed,
	})
	if err != nil {
		t.Fatalf("chain error must not surface as error: %v", err)
	}
	if !result.Failed {
		t.Fatal("result should be marked failed")
	}
	if result.FailureReason == "" {
		t.Fatal("failure reason should be recorded")
	}
	// 失败时也必须返回至少一个结构
	if len(result.Structures) != 1 {
		t.Fatalf("expected exactly 1 fallback structure, got %d", len(result.Structures))
	}
	if result.TotalKnowledgePoints != 0 {
		t.Fatalf("fallback should report 0 knowledge points, got %d", result.TotalKnowledgePoints)
	}
	if len(result.Structures[0].Modules) == 0 {
		t.Fatal("fallback structure should contain a module with the original text")
	}
}

func TestOrganizeFallbackLocalization(t *testing.T) {
	o := New(&fakeChain{err: fmt.Errorf("boom")}, 0)

	result, _ := o.Organize(context.Background(), &Input{
		Text:     "some english study notes",
		Mode:     entity.ModeCompact,
		Language: "en",
	})
	if result.Structures[0].Title != "Content Summary" {
		t.Fatalf("expected english fallback title, got %q", result.Structures[0].Title)
	}
}
