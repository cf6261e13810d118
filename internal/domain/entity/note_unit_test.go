package entity

import (
	"testing"
)

func newTestUnit() *NoteUnit {
	structure := &LeftBrainData{
		Title:               "光合作用",
		SummaryContext:      "光反应 · 暗反应",
		VisualThemeKeywords: "叶绿体, 阳光, 能量",
		Modules: []ContentModule{
			{ID: "1", Heading: "光反应", Content: "发生在类囊体膜上。", Keywords: []string{"类囊体", "ATP"}},
			{ID: "2", Heading: "暗反应", Content: "发生在基质中。", Keywords: []string{"基质", "固碳"}},
		},
	}
	return NewNoteUnit("unit-1", "proj-1", 0, "原始文本", structure)
}

func TestNewNoteUnitStartsPending(t *testing.T) {
	u := newTestUnit()
	if u.Status != UnitStatusPending {
		t.Fatalf("expected status pending, got %s", u.Status)
	}
	if u.IsTerminal() {
		t.Fatal("new unit should not be terminal")
	}
	if u.OrderNum != 0 {
		t.Fatalf("expected order 0, got %d", u.OrderNum)
	}
}

func TestUnitLifecycleComplete(t *testing.T) {
	u := newTestUnit()
	u.MarkGenerating()
	if u.Status != UnitStatusGenerating {
		t.Fatalf("expected generating, got %s", u.Status)
	}

	u.Complete("", "https://img.example.com/1.png")
	if u.Status != UnitStatusCompleted {
		t.Fatalf("expected completed, got %s", u.Status)
	}
	if !u.IsTerminal() {
		t.Fatal("completed unit should be terminal")
	}
	if u.CompletedAt == nil {
		t.Fatal("CompletedAt should be set")
	}
	if got := u.ImageRef(); got != "https://img.example.com/1.png" {
		t.Fatalf("unexpected image ref: %s", got)
	}
}

func TestUnitCompleteClearsPreviousError(t *testing.T) {
	u := newTestUnit()
	u.MarkGenerating()
	u.Fail("provider timeout")
	if u.Status != UnitStatusFailed {
		t.Fatalf("expected failed, got %s", u.Status)
	}
	if u.ErrorMessage != "provider timeout" {
		t.Fatalf("unexpected error message: %s", u.ErrorMessage)
	}

	// 重新生成成功后错误信息必须清空
	u.MarkGenerating()
	u.Complete("data:image/png;base64,abc", "")
	if u.ErrorMessage != "" {
		t.Fatalf("error message should be cleared, got %q", u.ErrorMessage)
	}
	if got := u.ImageRef(); got != "data:image/png;base64,abc" {
		t.Fatalf("unexpected image ref: %s", got)
	}
}

func TestUnitCanRegenerate(t *testing.T) {
	u := newTestUnit()
	if !u.CanRegenerate() {
		t.Fatal("unit with structure should be regenerable")
	}

	bare := NewNoteUnit("unit-2", "proj-1", 1, "text", nil)
	if bare.CanRegenerate() {
		t.Fatal("unit without structure should not be regenerable")
	}

	empty := NewNoteUnit("unit-3", "proj-1", 2, "text", &LeftBrainData{Title: "t"})
	if empty.CanRegenerate() {
		t.Fatal("unit with zero modules should not be regenerable")
	}
}

func TestProjectFinish(t *testing.T) {
	p := NewNoteProject("proj-1", "user-1", "文本", "zh", "hand_drawn", ModeDetailed, "")
	p.MarkGenerating()
	if p.Status != ProjectStatusGenerating {
		t.Fatalf("expected generating, got %s", p.Status)
	}

	p.Finish(2, 3)
	if p.Status != ProjectStatusCompleted {
		t.Fatalf("one success should complete project, got %s", p.Status)
	}
	if p.UnitCount != 3 {
		t.Fatalf("expected unit count 3, got %d", p.UnitCount)
	}

	p2 := NewNoteProject("proj-2", "user-1", "文本", "zh", "hand_drawn", ModeCompact, "")
	p2.Finish(0, 1)
	if p2.Status != ProjectStatusFailed {
		t.Fatalf("all failed should fail project, got %s", p2.Status)
	}
}

func TestGenerateModeValid(t *testing.T) {
	if !ModeCompact.Valid() || !ModeDetailed.Valid() {
		t.Fatal("known modes should be valid")
	}
	if GenerateMode("fancy").Valid() {
		t.Fatal("unknown mode should be invalid")
	}
}
