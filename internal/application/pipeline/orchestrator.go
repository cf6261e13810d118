package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"inknote-ai-api/internal/application/designer"
	"inknote-ai-api/internal/application/organizer"
	"inknote-ai-api/internal/application/painter"
	"inknote-ai-api/internal/domain/entity"
	"inknote-ai-api/internal/domain/service"
	apperrors "inknote-ai-api/pkg/errors"
	"inknote-ai-api/pkg/logger"
	"inknote-ai-api/pkg/metrics"
)

var tracer = otel.Tracer("pipeline")

// OrganizerPort 文本整理入口
type OrganizerPort interface {
	Organize(ctx context.Context, in *organizer.Input) (*organizer.Result, error)
}

// PainterPort 图片生成入口
type PainterPort interface {
	Paint(ctx context.Context, req *painter.Request) *painter.Result
}

// GenerateRequest 一次完整流水线请求
type GenerateRequest struct {
	ProjectID string
	UserID    string
	Text      string
	Language  string
	Style     string
	Mode      entity.GenerateMode
	Signature string

	// 可选的模型/提供商覆盖
	LLMProvider   string
	LLMModel      string
	ImageProvider string
}

// GenerateResult 流水线执行汇总
type GenerateResult struct {
	Units                []*entity.NoteUnit
	TotalKnowledgePoints int
	CompletedUnits       int
}

// RegenerateOptions 单卡重绘参数
type RegenerateOptions struct {
	UserID        string
	Style         string
	Language      string
	Signature     string
	ImageProvider string
}

// Orchestrator 流水线编排器
// 卡片严格按 order 升序串行处理，单卡失败不会中断其余卡片
type Orchestrator struct {
	organizer OrganizerPort
	painter   PainterPort
	credits   service.CreditGate
	unitCost  int64
}

// NewOrchestrator 创建编排器
func NewOrchestrator(org OrganizerPort, pnt PainterPort, credits service.CreditGate, unitCost int64) *Orchestrator {
	if unitCost <= 0 {
		unitCost = 1
	}
	return &Orchestrator{
		organizer: org,
		painter:   pnt,
		credits:   credits,
		unitCost:  unitCost,
	}
}

// Generate 执行完整流水线
// 输入校验失败直接返回错误；整理硬失败不返回错误，而是产出一张
// failed 卡片并触发一次 Error 钩子，保证调用方总有卡片可展示
func (o *Orchestrator) Generate(ctx context.Context, req *GenerateRequest, sink ProgressSink) (*GenerateResult, error) {
	if sink == nil {
		sink = NopSink{}
	}
	ctx, span := tracer.Start(ctx, "pipeline.Generate")
	span.SetAttributes(
		attribute.String("note.project_id", req.ProjectID),
		attribute.String("note.mode", string(req.Mode)),
	)
	defer span.End()

	// 风格在任何外部调用之前校验
	if _, err := designer.GetStyle(req.Style); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.NoteGenerationDuration.WithLabelValues(string(req.Mode)).Observe(time.Since(start).Seconds())
	}()

	sink.StageChanged(ctx, StageOrganizing, "analyzing input text")

	orgResult, err := o.organizeGuarded(ctx, req)
	if err != nil {
		// 校验错误：不产生任何卡片，直接上抛
		if appErr, ok := err.(*apperrors.AppError); ok && appErr.Code == apperrors.CodeTextValidationFailed {
			metrics.NoteGenerationTotal.WithLabelValues(string(req.Mode), "rejected").Inc()
			return nil, err
		}
		// 整理硬失败：产出一张 failed 卡片，Error 钩子恰好触发一次
		unit := entity.NewNoteUnit(uuid.NewString(), req.ProjectID, 0, req.Text, nil)
		unit.Fail(err.Error())
		sink.Error(ctx, err.Error())
		sink.UnitCompleted(ctx, 1, unit)
		metrics.NoteGenerationTotal.WithLabelValues(string(req.Mode), "failed").Inc()
		metrics.NoteUnitTotal.WithLabelValues(string(entity.UnitStatusFailed)).Inc()
		return &GenerateResult{Units: []*entity.NoteUnit{unit}}, nil
	}

	if orgResult.Failed {
		// 软失败：兜底结构作为一张 failed 卡片返回，不消耗绘图额度
		var structure *entity.LeftBrainData
		if len(orgResult.Structures) > 0 {
			structure = &orgResult.Structures[0]
		}
		unit := entity.NewNoteUnit(uuid.NewString(), req.ProjectID, 0, req.Text, structure)
		unit.Fail(orgResult.FailureReason)
		sink.Error(ctx, orgResult.FailureReason)
		sink.UnitCompleted(ctx, 1, unit)
		metrics.NoteGenerationTotal.WithLabelValues(string(req.Mode), "failed").Inc()
		metrics.NoteUnitTotal.WithLabelValues(string(entity.UnitStatusFailed)).Inc()
		return &GenerateResult{Units: []*entity.NoteUnit{unit}}, nil
	}

	units := make([]*entity.NoteUnit, 0, len(orgResult.Structures))
	for i := range orgResult.Structures {
		structure := orgResult.Structures[i]
		units = append(units, entity.NewNoteUnit(uuid.NewString(), req.ProjectID, i, req.Text, &structure))
	}
	metrics.NoteUnitsPerRequest.Observe(float64(len(units)))

	sink.StageChanged(ctx, StagePainting, "painting note cards")

	completed := 0
	for i, unit := range units {
		sink.UnitStarted(ctx, i+1, len(units))
		o.paintUnit(ctx, unit, req.Mode, designOptions(req.Style, req.Language, req.Signature, req.Mode), req.UserID, req.ImageProvider)
		if unit.Status == entity.UnitStatusCompleted {
			completed++
		}
		metrics.NoteUnitTotal.WithLabelValues(string(unit.Status)).Inc()
		sink.UnitCompleted(ctx, i+1, unit)
	}

	sink.StageChanged(ctx, StageCompleted, "generation finished")

	status := "completed"
	if completed == 0 {
		status = "failed"
	} else if completed < len(units) {
		status = "partial"
	}
	metrics.NoteGenerationTotal.WithLabelValues(string(req.Mode), status).Inc()
	span.SetAttributes(
		attribute.Int("note.units", len(units)),
		attribute.Int("note.completed_units", completed),
	)

	return &GenerateResult{
		Units:                units,
		TotalKnowledgePoints: orgResult.TotalKnowledgePoints,
		CompletedUnits:       completed,
	}, nil
}

// organizeGuarded 调用整理器并把 panic 收敛为普通错误
func (o *Orchestrator) organizeGuarded(ctx context.Context, req *GenerateRequest) (result *organizer.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "organizer panicked", fmt.Errorf("%v", r))
			result = nil
			err = fmt.Errorf("organizer panic: %v", r)
		}
	}()
	return o.organizer.Organize(ctx, &organizer.Input{
		Text:     req.Text,
		Mode:     req.Mode,
		Language: req.Language,
		Provider: req.LLMProvider,
		Model:    req.LLMModel,
	})
}

// paintUnit 处理单张卡片：预扣额度 → 设计 → 绘制 → 落账或退款
// panic 也会被收敛成该卡片的失败，不影响兄弟卡片
func (o *Orchestrator) paintUnit(ctx context.Context, unit *entity.NoteUnit, mode entity.GenerateMode, opts designer.Options, userID, imageProvider string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "unit painting panicked",
				fmt.Errorf("%v", r),
				"unit_id", unit.ID,
			)
			unit.Fail(fmt.Sprintf("internal error: %v", r))
			o.refund(ctx, userID)
		}
	}()

	if err := o.credits.Reserve(ctx, userID, o.unitCost); err != nil {
		unit.Fail(err.Error())
		return
	}

	unit.MarkGenerating()

	inst, err := designer.Design(unit.Structure, opts)
	if err != nil {
		unit.Fail(err.Error())
		o.refund(ctx, userID)
		return
	}
	unit.SetInstructions(inst.Prompt, inst.NegativePrompt)

	result := o.painter.Paint(ctx, &painter.Request{
		Instruction:         inst.Prompt,
		NegativeInstruction: inst.NegativePrompt,
		Provider:            imageProvider,
	})
	if !result.Success {
		unit.Fail(result.ErrorMessage)
		o.refund(ctx, userID)
		return
	}

	unit.Complete(result.ImageBase64, result.ImageURL)
	if err := o.credits.Commit(ctx, userID, o.unitCost); err != nil {
		logger.Warn(ctx, "credit commit failed", "user_id", userID, "error", err.Error())
	}
}

// RegenerateUnit 重绘单张卡片
// 总是以 detailed 模板重新设计，与原请求的 mode 无关；
// 不触碰兄弟卡片，也不重新整理文本
func (o *Orchestrator) RegenerateUnit(ctx context.Context, unit *entity.NoteUnit, opts *RegenerateOptions) error {
	ctx, span := tracer.Start(ctx, "pipeline.RegenerateUnit")
	span.SetAttributes(attribute.String("note.unit_id", unit.ID))
	defer span.End()

	if !unit.CanRegenerate() {
		return apperrors.ErrUnitNotRegenerable.WithDetailf("unit %s has no structure to redesign", unit.ID)
	}

	inst, err := designer.Design(unit.Structure, designer.Options{
		Style:     opts.Style,
		Language:  opts.Language,
		Mode:      entity.ModeDetailed,
		Signature: opts.Signature,
	})
	if err != nil {
		return err
	}

	return o.repaint(ctx, unit, inst.Prompt, inst.NegativePrompt, opts.UserID, opts.ImageProvider)
}

// RegenerateWithCustomInstruction 用调用方给定的指令重绘，完全绕过设计器
// 负向指令仍然使用通用排除列表
func (o *Orchestrator) RegenerateWithCustomInstruction(ctx context.Context, unit *entity.NoteUnit, instruction string, opts *RegenerateOptions) error {
	ctx, span := tracer.Start(ctx, "pipeline.RegenerateWithCustomInstruction")
	span.SetAttributes(attribute.String("note.unit_id", unit.ID))
	defer span.End()

	if instruction == "" {
		return apperrors.ErrInvalidParam.WithDetail("custom instruction is empty")
	}

	return o.repaint(ctx, unit, instruction, designer.UniversalNegativeSuffix, opts.UserID, opts.ImageProvider)
}

func (o *Orchestrator) repaint(ctx context.Context, unit *entity.NoteUnit, instruction, negative, userID, imageProvider string) error {
	if err := o.credits.Reserve(ctx, userID, o.unitCost); err != nil {
		if _, ok := err.(*service.InsufficientCreditError); ok {
			return apperrors.ErrInsufficientCredit.WithDetail(err.Error())
		}
		return err
	}

	unit.MarkGenerating()

	result := o.painter.Paint(ctx, &painter.Request{
		Instruction:         instruction,
		NegativeInstruction: negative,
		Provider:            imageProvider,
	})
	if !result.Success {
		// 失败时保留上一次成功的指令，不覆盖
		unit.Fail(result.ErrorMessage)
		o.refund(ctx, userID)
		metrics.NoteUnitTotal.WithLabelValues(string(entity.UnitStatusFailed)).Inc()
		return nil
	}

	unit.SetInstructions(instruction, negative)
	unit.Complete(result.ImageBase64, result.ImageURL)
	metrics.NoteUnitTotal.WithLabelValues(string(entity.UnitStatusCompleted)).Inc()
	if err := o.credits.Commit(ctx, userID, o.unitCost); err != nil {
		logger.Warn(ctx, "credit commit failed", "user_id", userID, "error", err.Error())
	}
	return nil
}

func (o *Orchestrator) refund(ctx context.Context, userID string) {
	if err := o.credits.Refund(ctx, userID, o.unitCost); err != nil {
		logger.Warn(ctx, "credit refund failed", "user_id", userID, "error", err.Error())
	}
}

func designOptions(style, language, signature string, mode entity.GenerateMode) designer.Options {
	return designer.Options{
		Style:     style,
		Language:  language,
		Mode:      mode,
		Signature: signature,
	}
}
