package notegen

import (
	"context"
	"fmt"
	"testing"

	"inknote-ai-api/internal/application/pipeline"
	"inknote-ai-api/internal/domain/entity"
	"inknote-ai-api/internal/domain/repository"
	"inknote-ai-api/internal/infrastructure/messaging"
	apperrors "inknote-ai-api/pkg/errors"
)

type fakeGenerator struct {
	result      *pipeline.GenerateResult
	err         error
	regenErr    error
	regenCalls  int
	customCalls int
	lastCustom  string
}

func (f *fakeGenerator) Generate(_ context.Context, req *pipeline.GenerateRequest, sink pipeline.ProgressSink) (*pipeline.GenerateResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if sink != nil {
		sink.StageChanged(context.Background(), pipeline.StagePainting, "")
	}
	return f.result, nil
}

func (f *fakeGenerator) RegenerateUnit(_ context.Context, unit *entity.NoteUnit, _ *pipeline.RegenerateOptions) error {
	f.regenCalls++
	if f.regenErr != nil {
		return f.regenErr
	}
	unit.Complete("", "https://img.example.com/r.png")
	return nil
}

func (f *fakeGenerator) RegenerateWithCustomInstruction(_ context.Context, unit *entity.NoteUnit, instruction string, _ *pipeline.RegenerateOptions) error {
	f.customCalls++
	f.lastCustom = instruction
	unit.SetInstructions(instruction, "")
	unit.Complete("", "https://img.example.com/c.png")
	return nil
}

type memProjects struct {
	byID map[string]*entity.NoteProject
}

func (m *memProjects) Create(_ context.Context, p *entity.NoteProject) error {
	m.byID[p.ID] = p
	return nil
}

func (m *memProjects) GetByID(_ context.Context, id string) (*entity.NoteProject, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, apperrors.ErrProjectNotFound
	}
	return p, nil
}

func (m *memProjects) Update(_ context.Context, p *entity.NoteProject) error {
	m.byID[p.ID] = p
	return nil
}

func (m *memProjects) Delete(_ context.Context, id string) error {
	delete(m.byID, id)
	return nil
}

func (m *memProjects) ListByUser(_ context.Context, _ string, _ *repository.ProjectFilter, _ repository.Pagination) (*repository.PagedResult[*entity.NoteProject], error) {
	return &repository.PagedResult[*entity.NoteProject]{}, nil
}

func (m *memProjects) UpdateStatus(_ context.Context, id string, status entity.ProjectStatus) error {
	if p, ok := m.byID[id]; ok {
		p.Status = status
	}
	return nil
}

type memUnits struct {
	byID      map[string]*entity.NoteUnit
	byProject map[string][]*entity.NoteUnit
}

func newMemUnits() *memUnits {
	return &memUnits{
		byID:      make(map[string]*entity.NoteUnit),
		byProject: make(map[string][]*entity.NoteUnit),
	}
}

func (m *memUnits) Create(_ context.Context, u *entity.NoteUnit) error {
	m.byID[u.ID] = u
	m.byProject[u.ProjectID] = append(m.byProject[u.ProjectID], u)
	return nil
}

func (m *memUnits) BatchCreate(ctx context.Context, units []*entity.NoteUnit) error {
	for _, u := range units {
		if err := m.Create(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (m *memUnits) GetByID(_ context.Context, id string) (*entity.NoteUnit, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, apperrors.ErrUnitNotFound
	}
	return u, nil
}

func (m *memUnits) Update(_ context.Context, u *entity.NoteUnit) error {
	m.byID[u.ID] = u
	return nil
}

func (m *memUnits) ListByProject(_ context.Context, projectID string) ([]*entity.NoteUnit, error) {
	return m.byProject[projectID], nil
}

func (m *memUnits) UpdateStatus(_ context.Context, id string, status entity.UnitStatus) error {
	if u, ok := m.byID[id]; ok {
		u.Status = status
	}
	return nil
}

func (m *memUnits) CountByStatus(_ context.Context, projectID string) (map[entity.UnitStatus]int64, error) {
	out := make(map[entity.UnitStatus]int64)
	for _, u := range m.byProject[projectID] {
		out[u.Status]++
	}
	return out, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func noteGenMessage(t *testing.T, task *messaging.NoteGenTaskMessage) *messaging.Message {
	t.Helper()
	msg, err := messaging.NewMessage(task.ProjectID, messaging.MsgTypeNoteGen, task.UserID, task.ProjectID, task)
	if err != nil {
		t.Fatalf("failed to build message: %v", err)
	}
	return msg
}

func regenMessage(t *testing.T, task *messaging.UnitRegenTaskMessage) *messaging.Message {
	t.Helper()
	msg, err := messaging.NewMessage(task.UnitID, messaging.MsgTypeUnitRegen, task.UserID, task.ProjectID, task)
	if err != nil {
		t.Fatalf("failed to build message: %v", err)
	}
	return msg
}

func TestHandleNoteGenPersistsUnitsAndProject(t *testing.T) {
	project := entity.NewNoteProject("proj-1", "user-1", "原文", "zh", "hand_drawn", entity.ModeDetailed, "")
	project.MarkGenerating()
	projects := &memProjects{byID: map[string]*entity.NoteProject{project.ID: project}}
	units := newMemUnits()

	u1 := entity.NewNoteUnit("unit-1", project.ID, 1, "原文", nil)
	u1.Complete("", "https://img.example.com/1.png")
	u2 := entity.NewNoteUnit("unit-2", project.ID, 2, "原文", nil)
	u2.Fail("render failed")

	gen := &fakeGenerator{result: &pipeline.GenerateResult{
		Units:                []*entity.NoteUnit{u1, u2},
		TotalKnowledgePoints: 5,
		CompletedUnits:       1,
	}}
	svc := NewService(gen, projects, units, passthroughTx{}, nil)

	err := svc.HandleNoteGen(context.Background(), noteGenMessage(t, &messaging.NoteGenTaskMessage{
		ProjectID: project.ID,
		UserID:    "user-1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := units.ListByProject(context.Background(), project.ID)
	if len(stored) != 2 {
		t.Fatalf("expected 2 persisted units, got %d", len(stored))
	}
	// 只要有一张成图项目即为完成
	if project.Status != entity.ProjectStatusCompleted {
		t.Fatalf("project status = %s", project.Status)
	}
	if project.TotalKnowledgePoints != 5 || project.UnitCount != 2 {
		t.Fatalf("project summary mismatch: %+v", project)
	}
}

func TestHandleNoteGenAllFailedProject(t *testing.T) {
	project := entity.NewNoteProject("proj-1", "user-1", "原文", "zh", "hand_drawn", entity.ModeDetailed, "")
	projects := &memProjects{byID: map[string]*entity.NoteProject{project.ID: project}}
	units := newMemUnits()

	u1 := entity.NewNoteUnit("unit-1", project.ID, 1, "原文", nil)
	u1.Fail("boom")
	gen := &fakeGenerator{result: &pipeline.GenerateResult{Units: []*entity.NoteUnit{u1}}}
	svc := NewService(gen, projects, units, passthroughTx{}, nil)

	if err := svc.HandleNoteGen(context.Background(), noteGenMessage(t, &messaging.NoteGenTaskMessage{ProjectID: project.ID})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if project.Status != entity.ProjectStatusFailed {
		t.Fatalf("project status = %s", project.Status)
	}
}

func TestHandleNoteGenValidationErrorSwallowed(t *testing.T) {
	project := entity.NewNoteProject("proj-1", "user-1", "", "zh", "hand_drawn", entity.ModeDetailed, "")
	projects := &memProjects{byID: map[string]*entity.NoteProject{project.ID: project}}
	gen := &fakeGenerator{err: apperrors.ErrTextValidationFailed.WithDetail("input text is empty")}
	svc := NewService(gen, projects, newMemUnits(), passthroughTx{}, nil)

	err := svc.HandleNoteGen(context.Background(), noteGenMessage(t, &messaging.NoteGenTaskMessage{ProjectID: project.ID}))
	if err != nil {
		t.Fatalf("validation failure must not be retried: %v", err)
	}
	if project.Status != entity.ProjectStatusFailed {
		t.Fatalf("project status = %s", project.Status)
	}
}

func TestHandleNoteGenReplayReconciles(t *testing.T) {
	project := entity.NewNoteProject("proj-1", "user-1", "原文", "zh", "hand_drawn", entity.ModeDetailed, "")
	project.MarkGenerating()
	projects := &memProjects{byID: map[string]*entity.NoteProject{project.ID: project}}
	units := newMemUnits()

	u1 := entity.NewNoteUnit("unit-1", project.ID, 1, "原文", nil)
	u1.Complete("", "https://img.example.com/1.png")
	_ = units.Create(context.Background(), u1)

	gen := &fakeGenerator{err: fmt.Errorf("must not be called")}
	svc := NewService(gen, projects, units, passthroughTx{}, nil)

	if err := svc.HandleNoteGen(context.Background(), noteGenMessage(t, &messaging.NoteGenTaskMessage{ProjectID: project.ID})); err != nil {
		t.Fatalf("replay must reconcile, not fail: %v", err)
	}
	if project.Status != entity.ProjectStatusCompleted {
		t.Fatalf("project status = %s", project.Status)
	}
}

func TestHandleUnitRegen(t *testing.T) {
	project := entity.NewNoteProject("proj-1", "user-1", "原文", "zh", "hand_drawn", entity.ModeDetailed, "")
	projects := &memProjects{byID: map[string]*entity.NoteProject{project.ID: project}}
	units := newMemUnits()

	structure := &entity.LeftBrainData{
		Title:   "知识点",
		Modules: []entity.ContentModule{{ID: "1", Heading: "要点"}},
	}
	unit := entity.NewNoteUnit("unit-1", project.ID, 1, "原文", structure)
	_ = units.Create(context.Background(), unit)

	gen := &fakeGenerator{}
	svc := NewService(gen, projects, units, passthroughTx{}, nil)

	err := svc.HandleUnitRegen(context.Background(), regenMessage(t, &messaging.UnitRegenTaskMessage{
		ProjectID: project.ID,
		UnitID:    unit.ID,
		UserID:    "user-1",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.regenCalls != 1 || gen.customCalls != 0 {
		t.Fatalf("expected designer-based regen, got regen=%d custom=%d", gen.regenCalls, gen.customCalls)
	}
	if unit.Status != entity.UnitStatusCompleted {
		t.Fatalf("unit status = %s", unit.Status)
	}
}

func TestHandleUnitRegenCustomInstruction(t *testing.T) {
	project := entity.NewNoteProject("proj-1", "user-1", "原文", "zh", "hand_drawn", entity.ModeDetailed, "")
	projects := &memProjects{byID: map[string]*entity.NoteProject{project.ID: project}}
	units := newMemUnits()

	unit := entity.NewNoteUnit("unit-1", project.ID, 1, "原文", nil)
	_ = units.Create(context.Background(), unit)

	gen := &fakeGenerator{}
	svc := NewService(gen, projects, units, passthroughTx{}, nil)

	err := svc.HandleUnitRegen(context.Background(), regenMessage(t, &messaging.UnitRegenTaskMessage{
		ProjectID:         project.ID,
		UnitID:            unit.ID,
		CustomInstruction: "draw a big tree",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.customCalls != 1 || gen.lastCustom != "draw a big tree" {
		t.Fatalf("custom instruction not forwarded: calls=%d instruction=%q", gen.customCalls, gen.lastCustom)
	}
}

func TestHandleUnitRegenTerminalErrorNotRetried(t *testing.T) {
	project := entity.NewNoteProject("proj-1", "user-1", "原文", "zh", "hand_drawn", entity.ModeDetailed, "")
	projects := &memProjects{byID: map[string]*entity.NoteProject{project.ID: project}}
	units := newMemUnits()

	unit := entity.NewNoteUnit("unit-1", project.ID, 1, "原文", nil)
	_ = units.Create(context.Background(), unit)

	gen := &fakeGenerator{regenErr: apperrors.ErrUnitNotRegenerable}
	svc := NewService(gen, projects, units, passthroughTx{}, nil)

	err := svc.HandleUnitRegen(context.Background(), regenMessage(t, &messaging.UnitRegenTaskMessage{
		ProjectID: project.ID,
		UnitID:    unit.ID,
	}))
	if err != nil {
		t.Fatalf("terminal error must be swallowed: %v", err)
	}
	if unit.Status != entity.UnitStatusFailed {
		t.Fatalf("unit status = %s", unit.Status)
	}
}
