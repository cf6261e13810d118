package painter

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"inknote-ai-api/internal/infrastructure/imagegen"
)

// fakeSync 同步提供商桩：前 failN 次返回 err，之后成功
type fakeSync struct {
	name  string
	failN int
	err   error
	calls int
}

func (f *fakeSync) Name() string { return f.name }

func (f *fakeSync) Generate(_ context.Context, _ *imagegen.Request) (*imagegen.Image, error) {
	f.calls++
	if f.calls <= f.failN {
		return nil, f.err
	}
	return &imagegen.Image{Base64: "aW1n"}, nil
}

// fakeAsync 任务式提供商桩：succeedAfter 次轮询后成功，0 表示永不完成
type fakeAsync struct {
	name         string
	succeedAfter int
	failAfter    int
	failMessage  string
	polls        int
}

func (f *fakeAsync) Name() string { return f.name }

func (f *fakeAsync) Submit(_ context.Context, _ *imagegen.Request) (string, error) {
	return "task-1", nil
}

func (f *fakeAsync) Poll(_ context.Context, _ string) (*imagegen.TaskStatus, error) {
	f.polls++
	if f.failAfter > 0 && f.polls >= f.failAfter {
		return &imagegen.TaskStatus{State: imagegen.TaskStateFailed, Message: f.failMessage}, nil
	}
	if f.succeedAfter > 0 && f.polls >= f.succeedAfter {
		return &imagegen.TaskStatus{
			State: imagegen.TaskStateSucceeded,
			Image: &imagegen.Image{URL: "https://img.example.com/1.png"},
		}, nil
	}
	return &imagegen.TaskStatus{State: imagegen.TaskStateRunning}, nil
}

type fakeSource struct {
	provider imagegen.Provider
}

func (s *fakeSource) Get(_ string) (imagegen.Provider, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("no provider configured")
	}
	return s.provider, nil
}

// fakeClock 记录睡眠次数的虚拟时钟
type fakeClock struct {
	slept []time.Duration
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	return nil
}

func newTestPainter(p imagegen.Provider, clock *fakeClock) *Painter {
	return New(&fakeSource{provider: p}, WithSleep(clock.sleep))
}

func TestPaintSyncSuccess(t *testing.T) {
	clock := &fakeClock{}
	painter := newTestPainter(&fakeSync{name: "openai"}, clock)

	result := painter.Paint(context.Background(), &Request{Instruction: "draw"})
	if !result.Success {
		t.Fatalf("expected success, got %q", result.ErrorMessage)
	}
	if result.ImageBase64 == "" {
		t.Fatal("sync provider should return base64 image")
	}
}

func TestPaintSyncRetriesTransientThenSucceeds(t *testing.T) {
	clock := &fakeClock{}
	provider := &fakeSync{
		name:  "openai",
		failN: 2,
		err:   &imagegen.ProviderError{Provider: "openai", StatusCode: 503, Transient: true},
	}
	painter := newTestPainter(provider, clock)

	result := painter.Paint(context.Background(), &Request{Instruction: "draw"})
	if !result.Success {
		t.Fatalf("expected success after retries, got %q", result.ErrorMessage)
	}
	// 首次尝试 + 2 次重试
	if provider.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", provider.calls)
	}
}

func TestPaintSyncTransientBudgetExhausted(t *testing.T) {
	clock := &fakeClock{}
	provider := &fakeSync{
		name:  "openai",
		failN: 10,
		err:   &imagegen.ProviderError{Provider: "openai", StatusCode: 429, Transient: true},
	}
	painter := newTestPainter(provider, clock)

	result := painter.Paint(context.Background(), &Request{Instruction: "draw"})
	if result.Success {
		t.Fatal("expected failure after retry budget exhausted")
	}
	if provider.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", provider.calls)
	}
	if result.ErrorMessage == "" {
		t.Fatal("failure must carry an error message")
	}
}

func TestPaintSyncContentPolicyNotRetried(t *testing.T) {
	clock := &fakeClock{}
	provider := &fakeSync{
		name:  "openai",
		failN: 10,
		err:   &imagegen.ProviderError{Provider: "openai", StatusCode: 400, ContentPolicy: true, Message: "unsafe"},
	}
	painter := newTestPainter(provider, clock)

	result := painter.Paint(context.Background(), &Request{Instruction: "draw"})
	if result.Success {
		t.Fatal("expected failure")
	}
	if provider.calls != 1 {
		t.Fatalf("content policy rejection must not be retried, got %d attempts", provider.calls)
	}
	if !strings.Contains(result.ErrorMessage, "content rejected") {
		t.Fatalf("unexpected message: %q", result.ErrorMessage)
	}
}

func TestPaintAsyncPollsUntilSucceeded(t *testing.T) {
	clock := &fakeClock{}
	provider := &fakeAsync{name: "dashscope", succeedAfter: 5}
	painter := newTestPainter(provider, clock)

	result := painter.Paint(context.Background(), &Request{Instruction: "draw"})
	if !result.Success {
		t.Fatalf("expected success, got %q", result.ErrorMessage)
	}
	if result.ImageURL == "" {
		t.Fatal("task provider should return image url")
	}
	if provider.polls != 5 {
		t.Fatalf("expected 5 polls, got %d", provider.polls)
	}
	// 每次轮询前等待固定间隔
	if len(clock.slept) != 5 {
		t.Fatalf("expected 5 sleeps, got %d", len(clock.slept))
	}
	for _, d := range clock.slept {
		if d != 2*time.Second {
			t.Fatalf("expected 2s poll interval, got %v", d)
		}
	}
}

func TestPaintAsyncTimeoutAfterPollCeiling(t *testing.T) {
	clock := &fakeClock{}
	provider := &fakeAsync{name: "dashscope"}
	painter := newTestPainter(provider, clock)

	result := painter.Paint(context.Background(), &Request{Instruction: "draw"})
	if result.Success {
		t.Fatal("expected timeout failure")
	}
	if provider.polls != 60 {
		t.Fatalf("expected exactly 60 polls, got %d", provider.polls)
	}
	if !strings.Contains(result.ErrorMessage, "60 polls") {
		t.Fatalf("unexpected message: %q", result.ErrorMessage)
	}
}

func TestPaintAsyncTaskFailed(t *testing.T) {
	clock := &fakeClock{}
	provider := &fakeAsync{name: "dashscope", failAfter: 3, failMessage: "internal render error"}
	painter := newTestPainter(provider, clock)

	result := painter.Paint(context.Background(), &Request{Instruction: "draw"})
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.ErrorMessage != "internal render error" {
		t.Fatalf("unexpected message: %q", result.ErrorMessage)
	}
	if provider.polls != 3 {
		t.Fatalf("polling must stop at terminal state, got %d polls", provider.polls)
	}
}

func TestPaintPlaceholderShortCircuits(t *testing.T) {
	// 不配置任何提供商：占位开关必须在网络调用前返回
	painter := New(&fakeSource{}, WithPlaceholder(true))

	result := painter.Paint(context.Background(), &Request{Instruction: "draw a cat"})
	if !result.Success {
		t.Fatalf("placeholder mode must succeed, got %q", result.ErrorMessage)
	}
	if !strings.HasPrefix(result.ImageBase64, "data:image/svg+xml;base64,") {
		t.Fatal("placeholder must be an svg data uri")
	}
}

func TestPaintUnknownProvider(t *testing.T) {
	painter := New(&fakeSource{})

	result := painter.Paint(context.Background(), &Request{Instruction: "draw"})
	if result.Success {
		t.Fatal("expected failure when provider lookup fails")
	}
}
