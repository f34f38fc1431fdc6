package insight

import (
	"context"
	"testing"
	"time"

	"github.com/skillsenselab/recap/errors"
)

type fakeProvider struct {
	name    string
	models  []string
	cost    float64
	calls   int
	failUntil int
	failWith  error
	result    *Result
}

func (f *fakeProvider) Name() string                      { return f.name }
func (f *fakeProvider) Models() []string                  { return f.models }
func (f *fakeProvider) CostPerMinute() float64            { return f.cost }
func (f *fakeProvider) IsAvailable(context.Context) bool  { return true }

func (f *fakeProvider) Process(_ context.Context, req Request) (*Result, error) {
	f.calls++
	if f.calls <= f.failUntil {
		return nil, f.failWith
	}
	if f.result != nil {
		return f.result, nil
	}
	return &Result{Transcript: "hello", Model: req.Model}, nil
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2,
	}
}

func TestRouterResolvePrefix(t *testing.T) {
	openai := &fakeProvider{name: "openai"}
	gemini := &fakeProvider{name: "gemini"}
	local := &fakeProvider{name: "local"}

	r := NewRouter()
	r.Register(openai, "gpt-")
	r.Register(gemini, "gemini-")
	r.Register(local, "local-")
	r.SetDefault("openai")

	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4o-transcribe", "openai"},
		{"gemini-2.0-flash", "gemini"},
		{"local-whisper-base", "local"},
		{"", "openai"},
		{"claude-unknown", "openai"}, // unrecognized falls back to default
	}
	for _, tt := range tests {
		p, err := r.Resolve(tt.model)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", tt.model, err)
		}
		if p.Name() != tt.want {
			t.Errorf("Resolve(%q) = %s, want %s", tt.model, p.Name(), tt.want)
		}
	}
}

func TestRouterLongestPrefixWins(t *testing.T) {
	generic := &fakeProvider{name: "generic"}
	turbo := &fakeProvider{name: "turbo"}

	r := NewRouter()
	r.Register(generic, "gpt-")
	r.Register(turbo, "gpt-4o-")

	p, err := r.Resolve("gpt-4o-mini")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if p.Name() != "turbo" {
		t.Errorf("Resolve(gpt-4o-mini) = %s, want turbo", p.Name())
	}
}

func TestRouterEmptyFails(t *testing.T) {
	r := NewRouter()
	if _, err := r.Resolve("anything"); err == nil {
		t.Fatal("Resolve() on empty router expected error")
	}
}

func TestRouterRetriesTransientFailures(t *testing.T) {
	p := &fakeProvider{
		name:      "openai",
		failUntil: 2,
		failWith:  errors.ConnectionFailed("openai"),
	}
	r := NewRouter().WithRetry(fastRetry())
	r.Register(p, "gpt-")

	result, err := r.Process(context.Background(), Request{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Transcript != "hello" {
		t.Errorf("Transcript = %q, want %q", result.Transcript, "hello")
	}
	if p.calls != 3 {
		t.Errorf("provider called %d times, want 3", p.calls)
	}
}

func TestRouterDoesNotRetryRateLimits(t *testing.T) {
	p := &fakeProvider{
		name:      "openai",
		failUntil: 10,
		failWith:  errors.RateLimited("openai", time.Now().Add(time.Minute), true),
	}
	r := NewRouter().WithRetry(fastRetry())
	r.Register(p, "gpt-")

	_, err := r.Process(context.Background(), Request{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("Process() expected error")
	}
	if code := errors.CodeOf(err); code != errors.ErrCodeRateLimited {
		t.Errorf("error code = %s, want %s", code, errors.ErrCodeRateLimited)
	}
	if p.calls != 1 {
		t.Errorf("provider called %d times, want 1 (rate limits must not be retried)", p.calls)
	}
}

func TestRouterDoesNotRetryProviderErrors(t *testing.T) {
	p := &fakeProvider{
		name:      "openai",
		failUntil: 10,
		failWith:  errors.ProviderFailure("openai", context.DeadlineExceeded),
	}
	r := NewRouter().WithRetry(fastRetry())
	r.Register(p, "gpt-")

	if _, err := r.Process(context.Background(), Request{Model: "gpt-4o"}); err == nil {
		t.Fatal("Process() expected error")
	}
	if p.calls != 1 {
		t.Errorf("provider called %d times, want 1", p.calls)
	}
}

func TestRouterDescriptors(t *testing.T) {
	openai := &fakeProvider{name: "openai", models: []string{"gpt-4o-transcribe"}, cost: 1.5}
	local := &fakeProvider{name: "local", models: []string{"local-whisper-base"}, cost: 0}

	r := NewRouter()
	r.Register(openai, "gpt-")
	r.Register(local, "local-")
	r.SetDefault("openai")

	got := r.Descriptors(context.Background())
	if len(got) != 2 {
		t.Fatalf("Descriptors() returned %d entries, want 2", len(got))
	}
	// Sorted by id.
	if got[0].ID != "local" || got[1].ID != "openai" {
		t.Errorf("Descriptors order = [%s %s], want [local openai]", got[0].ID, got[1].ID)
	}
	if !got[1].Default || got[0].Default {
		t.Errorf("default flag wrong: local=%v openai=%v", got[0].Default, got[1].Default)
	}
	if got[1].CostPerMinute != 1.5 {
		t.Errorf("openai CostPerMinute = %v, want 1.5", got[1].CostPerMinute)
	}
	if !got[0].Connected {
		t.Error("local should report connected")
	}
}
