package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"inknote-ai-api/internal/application/designer"
	"inknote-ai-api/internal/application/organizer"
	"inknote-ai-api/internal/application/painter"
	"inknote-ai-api/internal/domain/entity"
	"inknote-ai-api/internal/domain/service"
	apperrors "inknote-ai-api/pkg/errors"
)

type fakeOrganizer struct {
	result *organizer.Result
	err    error
	panics bool
}

func (f *fakeOrganizer) Organize(_ context.Context, _ *organizer.Input) (*organizer.Result, error) {
	if f.panics {
		panic("organizer exploded")
	}
	return f.result, f.err
}

type fakePainter struct {
	failAll  bool
	failOnce map[int]bool
	calls    int
	requests []*painter.Request
}

func (f *fakePainter) Paint(_ context.Context, req *painter.Request) *painter.Result {
	f.calls++
	f.requests = append(f.requests, req)
	if f.failAll || f.failOnce[f.calls] {
		return &painter.Result{ErrorMessage: "render failed"}
	}
	return &painter.Result{Success: true, ImageURL: fmt.Sprintf("https://img.example.com/%d.png", f.calls)}
}

type fakeCredits struct {
	balance  int64
	reserves int
	commits  int
	refunds  int
}

func (f *fakeCredits) Reserve(_ context.Context, userID string, amount int64) error {
	if f.balance < amount {
		return &service.InsufficientCreditError{UserID: userID, Required: amount, Remaining: f.balance}
	}
	f.balance -= amount
	f.reserves++
	return nil
}

func (f *fakeCredits) Commit(_ context.Context, _ string, _ int64) error {
	f.commits++
	return nil
}

func (f *fakeCredits) Refund(_ context.Context, _ string, amount int64) error {
	f.balance += amount
	f.refunds++
	return nil
}

func (f *fakeCredits) Balance(_ context.Context, _ string) (int64, error) {
	return f.balance, nil
}

type recordingSink struct {
	stages     []Stage
	started    []int
	completed  []int
	errorCalls int
}

func (s *recordingSink) StageChanged(_ context.Context, stage Stage, _ string) {
	s.stages = append(s.stages, stage)
}

func (s *recordingSink) UnitStarted(_ context.Context, index, _ int) {
	s.started = append(s.started, index)
}

func (s *recordingSink) UnitCompleted(_ context.Context, index int, _ *entity.NoteUnit) {
	s.completed = append(s.completed, index)
}

func (s *recordingSink) Error(_ context.Context, _ string) {
	s.errorCalls++
}

func organizerWithStructures(n int) *fakeOrganizer {
	structures := make([]entity.LeftBrainData, 0, n)
	for i := 0; i < n; i++ {
		structures = append(structures, entity.LeftBrainData{
			Title:          fmt.Sprintf("知识点 %d", i+1),
			SummaryContext: "概览",
			Modules: []entity.ContentModule{
				{ID: "1", Heading: "要点", Keywords: []string{"关键词"}},
			},
		})
	}
	return &fakeOrganizer{result: &organizer.Result{
		Structures:           structures,
		TotalKnowledgePoints: n,
	}}
}

func baseRequest() *GenerateRequest {
	return &GenerateRequest{
		ProjectID: "proj-1",
		UserID:    "user-1",
		Text:      "一段学习笔记",
		Language:  "中文",
		Style:     "hand_drawn",
		Mode:      entity.ModeDetailed,
	}
}

func TestGenerateEndToEnd(t *testing.T) {
	pnt := &fakePainter{}
	credits := &fakeCredits{balance: 10}
	sink := &recordingSink{}
	orch := NewOrchestrator(organizerWithStructures(2), pnt, credits, 1)

	result, err := orch.Generate(context.Background(), baseRequest(), sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Units) != 2 || result.CompletedUnits != 2 {
		t.Fatalf("expected 2 completed units, got %d/%d", result.CompletedUnits, len(result.Units))
	}
	for i, unit := range result.Units {
		if unit.Status != entity.UnitStatusCompleted {
			t.Fatalf("unit %d status = %s", i, unit.Status)
		}
		if unit.OrderNum != i {
			t.Fatalf("unit %d order = %d", i, unit.OrderNum)
		}
		if unit.Instruction == "" || unit.NegativeInstruction == "" {
			t.Fatalf("unit %d missing instructions", i)
		}
		if unit.ImageRef() == "" {
			t.Fatalf("unit %d missing image", i)
		}
	}
	if credits.reserves != 2 || credits.commits != 2 || credits.refunds != 0 {
		t.Fatalf("credit flow mismatch: %+v", credits)
	}
	// 钩子按卡片顺序各触发一次
	if fmt.Sprint(sink.started) != "[1 2]" || fmt.Sprint(sink.completed) != "[1 2]" {
		t.Fatalf("hooks out of order: started=%v completed=%v", sink.started, sink.completed)
	}
	if sink.errorCalls != 0 {
		t.Fatalf("no error hook expected, got %d", sink.errorCalls)
	}
	if result.TotalKnowledgePoints != 2 {
		t.Fatalf("knowledge points = %d", result.TotalKnowledgePoints)
	}
}

func TestGenerateAllPaintsFail(t *testing.T) {
	pnt := &fakePainter{failAll: true}
	credits := &fakeCredits{balance: 10}
	orch := NewOrchestrator(organizerWithStructures(3), pnt, credits, 1)

	result, err := orch.Generate(context.Background(), baseRequest(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, unit := range result.Units {
		if unit.Status != entity.UnitStatusFailed {
			t.Fatalf("unit %d must be failed, got %s", i, unit.Status)
		}
		if unit.ErrorMessage == "" {
			t.Fatalf("unit %d missing error message", i)
		}
	}
	// 每次失败都退款
	if credits.refunds != 3 || credits.commits != 0 {
		t.Fatalf("credit flow mismatch: %+v", credits)
	}
	if pnt.calls != 3 {
		t.Fatalf("per-unit failure must not abort the loop, got %d paints", pnt.calls)
	}
}

func TestGenerateSiblingIsolation(t *testing.T) {
	pnt := &fakePainter{failOnce: map[int]bool{2: true}}
	credits := &fakeCredits{balance: 10}
	orch := NewOrchestrator(organizerWithStructures(3), pnt, credits, 1)

	result, err := orch.Generate(context.Background(), baseRequest(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []entity.UnitStatus{entity.UnitStatusCompleted, entity.UnitStatusFailed, entity.UnitStatusCompleted}
	for i, unit := range result.Units {
		if unit.Status != want[i] {
			t.Fatalf("unit %d status = %s, want %s", i, unit.Status, want[i])
		}
	}
	if result.CompletedUnits != 2 {
		t.Fatalf("completed = %d", result.CompletedUnits)
	}
}

func TestGenerateOrganizerHardFailure(t *testing.T) {
	org := &fakeOrganizer{err: fmt.Errorf("llm gateway unreachable")}
	sink := &recordingSink{}
	orch := NewOrchestrator(org, &fakePainter{}, &fakeCredits{balance: 10}, 1)

	result, err := orch.Generate(context.Background(), baseRequest(), sink)
	if err != nil {
		t.Fatalf("hard failure must not surface as error: %v", err)
	}
	if len(result.Units) != 1 {
		t.Fatalf("expected 1 fabricated unit, got %d", len(result.Units))
	}
	unit := result.Units[0]
	if unit.Status != entity.UnitStatusFailed || !strings.Contains(unit.ErrorMessage, "unreachable") {
		t.Fatalf("unexpected unit: status=%s msg=%q", unit.Status, unit.ErrorMessage)
	}
	if unit.OrderNum != 0 {
		t.Fatalf("fabricated unit order = %d, want 0", unit.OrderNum)
	}
	if sink.errorCalls != 1 {
		t.Fatalf("error hook must fire exactly once, got %d", sink.errorCalls)
	}
}

func TestGenerateOrganizerPanicRecovered(t *testing.T) {
	sink := &recordingSink{}
	orch := NewOrchestrator(&fakeOrganizer{panics: true}, &fakePainter{}, &fakeCredits{balance: 10}, 1)

	result, err := orch.Generate(context.Background(), baseRequest(), sink)
	if err != nil {
		t.Fatalf("panic must be recovered: %v", err)
	}
	if len(result.Units) != 1 || result.Units[0].Status != entity.UnitStatusFailed {
		t.Fatal("panic must produce one failed unit")
	}
	if sink.errorCalls != 1 {
		t.Fatalf("error hook must fire exactly once, got %d", sink.errorCalls)
	}
}

func TestGenerateOrganizerSoftFailure(t *testing.T) {
	org := &fakeOrganizer{result: &organizer.Result{
		Structures: []entity.LeftBrainData{{
			Title:   "内容整理",
			Modules: []entity.ContentModule{{ID: "1", Heading: "原始内容", Content: "原文"}},
		}},
		Failed:        true,
		FailureReason: "model returned garbage",
	}}
	pnt := &fakePainter{}
	credits := &fakeCredits{balance: 10}
	sink := &recordingSink{}
	orch := NewOrchestrator(org, pnt, credits, 1)

	result, err := orch.Generate(context.Background(), baseRequest(), sink)
	if err != nil {
		t.Fatalf("soft failure must not surface as error: %v", err)
	}
	unit := result.Units[0]
	if unit.Status != entity.UnitStatusFailed || unit.ErrorMessage != "model returned garbage" {
		t.Fatalf("unexpected unit: status=%s msg=%q", unit.Status, unit.ErrorMessage)
	}
	// 软失败不消耗绘图额度
	if pnt.calls != 0 || credits.reserves != 0 {
		t.Fatal("soft failure must not reach the painter or the credit gate")
	}
	if sink.errorCalls != 1 {
		t.Fatalf("error hook must fire exactly once, got %d", sink.errorCalls)
	}
}

func TestGenerateValidationErrorSurfaced(t *testing.T) {
	org := &fakeOrganizer{err: apperrors.ErrTextValidationFailed.WithDetail("input text is empty")}
	orch := NewOrchestrator(org, &fakePainter{}, &fakeCredits{balance: 10}, 1)

	result, err := orch.Generate(context.Background(), baseRequest(), nil)
	if err == nil {
		t.Fatal("validation error must surface to the caller")
	}
	if result != nil {
		t.Fatal("validation failure must not create any units")
	}
}

func TestGenerateUnknownStyleRejectedEarly(t *testing.T) {
	org := organizerWithStructures(1)
	orch := NewOrchestrator(org, &fakePainter{}, &fakeCredits{balance: 10}, 1)

	req := baseRequest()
	req.Style = "oil_painting"
	if _, err := orch.Generate(context.Background(), req, nil); err == nil {
		t.Fatal("unknown style must be rejected before organizing")
	}
}

func TestGenerateInsufficientCredit(t *testing.T) {
	credits := &fakeCredits{balance: 1}
	orch := NewOrchestrator(organizerWithStructures(2), &fakePainter{}, credits, 1)

	result, err := orch.Generate(context.Background(), baseRequest(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Units[0].Status != entity.UnitStatusCompleted {
		t.Fatalf("first unit should complete, got %s", result.Units[0].Status)
	}
	if result.Units[1].Status != entity.UnitStatusFailed {
		t.Fatalf("second unit should fail on credit, got %s", result.Units[1].Status)
	}
	if !strings.Contains(result.Units[1].ErrorMessage, "insufficient credit") {
		t.Fatalf("unexpected message: %q", result.Units[1].ErrorMessage)
	}
}

func regenerableUnit() *entity.NoteUnit {
	structure := &entity.LeftBrainData{
		Title:   "知识点",
		Modules: []entity.ContentModule{{ID: "1", Heading: "要点", Keywords: []string{"关键词"}}},
	}
	unit := entity.NewNoteUnit("unit-1", "proj-1", 1, "原文", structure)
	unit.MarkGenerating()
	unit.Fail("previous render failed")
	return unit
}

func TestRegenerateUnitClearsPreviousError(t *testing.T) {
	pnt := &fakePainter{}
	orch := NewOrchestrator(organizerWithStructures(1), pnt, &fakeCredits{balance: 10}, 1)

	unit := regenerableUnit()
	err := orch.RegenerateUnit(context.Background(), unit, &RegenerateOptions{
		UserID: "user-1",
		Style:  "hand_drawn",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if unit.Status != entity.UnitStatusCompleted {
		t.Fatalf("status = %s", unit.Status)
	}
	if unit.ErrorMessage != "" {
		t.Fatalf("previous error must be cleared, got %q", unit.ErrorMessage)
	}
	// 重绘固定使用 detailed 模板
	if !strings.Contains(pnt.requests[0].Instruction, "Section 1") {
		t.Fatal("regeneration must use the detailed template")
	}
}

func TestRegenerateUnitWithoutStructure(t *testing.T) {
	orch := NewOrchestrator(organizerWithStructures(1), &fakePainter{}, &fakeCredits{balance: 10}, 1)

	unit := entity.NewNoteUnit("unit-1", "proj-1", 1, "原文", nil)
	err := orch.RegenerateUnit(context.Background(), unit, &RegenerateOptions{UserID: "user-1"})
	if err == nil {
		t.Fatal("unit without structure must be rejected")
	}
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeUnitNotRegenerable {
		t.Fatalf("unexpected code: %s", appErr.Code)
	}
}

func TestRegenerateWithCustomInstruction(t *testing.T) {
	pnt := &fakePainter{}
	orch := NewOrchestrator(organizerWithStructures(1), pnt, &fakeCredits{balance: 10}, 1)

	unit := regenerableUnit()
	err := orch.RegenerateWithCustomInstruction(context.Background(), unit, "draw a mind map of photosynthesis", &RegenerateOptions{UserID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if unit.Instruction != "draw a mind map of photosynthesis" {
		t.Fatalf("instruction not overwritten: %q", unit.Instruction)
	}
	if unit.NegativeInstruction != designer.UniversalNegativeSuffix {
		t.Fatalf("custom regeneration must keep the universal negative list, got %q", unit.NegativeInstruction)
	}
	if unit.Status != entity.UnitStatusCompleted {
		t.Fatalf("status = %s", unit.Status)
	}
}

func TestRegenerateFailureKeepsStoredInstruction(t *testing.T) {
	pnt := &fakePainter{failAll: true}
	credits := &fakeCredits{balance: 10}
	orch := NewOrchestrator(organizerWithStructures(1), pnt, credits, 1)

	unit := regenerableUnit()
	unit.SetInstructions("上一次成功的指令", "上一次的负向指令")
	err := orch.RegenerateWithCustomInstruction(context.Background(), unit, "画一张全新的思维导图", &RegenerateOptions{UserID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if unit.Status != entity.UnitStatusFailed {
		t.Fatalf("status = %s", unit.Status)
	}
	// 重绘失败不覆盖已存的指令
	if unit.Instruction != "上一次成功的指令" || unit.NegativeInstruction != "上一次的负向指令" {
		t.Fatalf("stored instructions overwritten by failed repaint: %q / %q",
			unit.Instruction, unit.NegativeInstruction)
	}
	if credits.refunds != 1 || credits.commits != 0 {
		t.Fatalf("credit flow mismatch: %+v", credits)
	}
}

func TestRegenerateInsufficientCredit(t *testing.T) {
	orch := NewOrchestrator(organizerWithStructures(1), &fakePainter{}, &fakeCredits{balance: 0}, 1)

	unit := regenerableUnit()
	err := orch.RegenerateUnit(context.Background(), unit, &RegenerateOptions{UserID: "user-1"})
	if err == nil {
		t.Fatal("expected insufficient credit error")
	}
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeInsufficientCredit {
		t.Fatalf("unexpected code: %s", appErr.Code)
	}
}
