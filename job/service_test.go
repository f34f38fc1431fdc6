package job_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skillsenselab/recap/audio"
	"github.com/skillsenselab/recap/credits"
	"github.com/skillsenselab/recap/errors"
	"github.com/skillsenselab/recap/insight"
	"github.com/skillsenselab/recap/job"
	"github.com/skillsenselab/recap/store/memory"
)

// fakeArtifacts keeps artifacts in a map.
type fakeArtifacts struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{data: map[string][]byte{}}
}

func (f *fakeArtifacts) Put(_ context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = data
	return nil
}

func (f *fakeArtifacts) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.data[key]
	if !ok {
		return nil, errors.NotFound("artifact", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeArtifacts) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeArtifacts) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok, nil
}

// fakeProvider returns a canned result or error.
type fakeProvider struct {
	name   string
	cost   float64
	result *insight.Result
	err    error
	// block, when set, holds Process until closed.
	block chan struct{}
}

func (p *fakeProvider) Name() string                     { return p.name }
func (p *fakeProvider) Models() []string                 { return []string{p.name + "-model"} }
func (p *fakeProvider) CostPerMinute() float64           { return p.cost }
func (p *fakeProvider) IsAvailable(context.Context) bool { return true }

func (p *fakeProvider) Process(ctx context.Context, _ insight.Request) (*insight.Result, error) {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.result != nil {
		return p.result, nil
	}
	return &insight.Result{
		Transcript: "transcript",
		Summary:    "summary",
		Model:      p.name + "-model",
	}, nil
}

// fakeCompressor copies the input and reports a fixed duration.
type fakeCompressor struct{}

func (fakeCompressor) Compress(_ context.Context, src, dst string, _ audio.Options) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func (fakeCompressor) Duration(context.Context, string) (time.Duration, error) {
	return 2 * time.Minute, nil
}

type fixture struct {
	svc       *job.Service
	store     *memory.Store
	ledger    *credits.Ledger
	artifacts *fakeArtifacts
	provider  *fakeProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	ledger := credits.NewLedger(store)
	provider := &fakeProvider{name: "openai", cost: 1.0}
	router := insight.NewRouter()
	router.Register(provider, "gpt-")
	artifacts := newFakeArtifacts()
	svc := job.NewService(
		job.Config{WorkDir: t.TempDir()},
		store, ledger, router, artifacts, fakeCompressor{}, nil,
	)
	return &fixture{svc: svc, store: store, ledger: ledger, artifacts: artifacts, provider: provider}
}

// seedJob creates a pending job with a 2 minute artifact.
func (f *fixture) seedJob(t *testing.T, userID string) *job.Job {
	t.Helper()
	ctx := context.Background()
	j, err := f.svc.CreateFromUpload(ctx, userID, "meeting.m4a", strings.NewReader("audio"), "gpt-4o-transcribe")
	if err != nil {
		t.Fatalf("CreateFromUpload() error = %v", err)
	}
	return j
}

func TestProcessCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.Credit(ctx, "u1", 100, credits.TypePurchase, "pack")
	j := f.seedJob(t, "u1")

	done, err := f.svc.Process(ctx, "u1", j.ID, job.SubmitOptions{})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if done.Status != job.StatusCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}
	// completed implies transcript and summary are set.
	if done.Transcript == nil || *done.Transcript == "" {
		t.Error("completed job has no transcript")
	}
	if done.Summary == nil || *done.Summary == "" {
		t.Error("completed job has no summary")
	}
	// 2 minutes at 1.0/min.
	if done.CreditsConsumed != 2 {
		t.Errorf("CreditsConsumed = %d, want 2", done.CreditsConsumed)
	}
	balance, _ := f.ledger.Balance(ctx, "u1")
	if balance != 98 {
		t.Errorf("balance = %d, want 98", balance)
	}
}

func TestProcessFailureSetsErrorNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.Credit(ctx, "u1", 100, credits.TypePurchase, "pack")
	j := f.seedJob(t, "u1")
	f.provider.err = errors.ProviderFailure("openai", io.ErrUnexpectedEOF)

	_, err := f.svc.Process(ctx, "u1", j.ID, job.SubmitOptions{})
	if err == nil {
		t.Fatal("Process() expected error")
	}

	got, _ := f.store.GetJob(ctx, j.ID)
	if got.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	// failed implies an error note.
	if got.ErrorNote == "" {
		t.Error("failed job has no error note")
	}
	// The debit was refunded with an adjustment entry.
	balance, _ := f.ledger.Balance(ctx, "u1")
	if balance != 100 {
		t.Errorf("balance after refund = %d, want 100", balance)
	}
	entries, _ := f.ledger.Recent(ctx, "u1", 1)
	if entries[0].Type != credits.TypeAdjustment {
		t.Errorf("latest entry type = %s, want adjustment", entries[0].Type)
	}
}

func TestConcurrentDuplicateSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.Credit(ctx, "u1", 100, credits.TypePurchase, "pack")
	j := f.seedJob(t, "u1")

	const racers = 6
	results := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Begin(ctx, "u1", j.ID, job.SubmitOptions{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	won, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			won++
		case errors.CodeOf(err) == errors.ErrCodeConflict:
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Errorf("%d submissions were admitted, want exactly 1", won)
	}
	if conflicts != racers-1 {
		t.Errorf("%d conflicts, want %d", conflicts, racers-1)
	}
}

func TestInsufficientCreditsLeavesStatusUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.Credit(ctx, "u1", 1, credits.TypePurchase, "tiny pack")
	j := f.seedJob(t, "u1")

	_, err := f.svc.Begin(ctx, "u1", j.ID, job.SubmitOptions{})
	if errors.CodeOf(err) != errors.ErrCodeInsufficientCredits {
		t.Fatalf("error = %v, want INSUFFICIENT_CREDITS", err)
	}
	appErr, _ := errors.AsAppError(err)
	if appErr.Details["balance"] != 1 || appErr.Details["required"] != 2 {
		t.Errorf("details = %v, want balance=1 required=2", appErr.Details)
	}

	got, _ := f.store.GetJob(ctx, j.ID)
	if got.Status != job.StatusPending {
		t.Errorf("status = %s, want pending (unchanged)", got.Status)
	}
	balance, _ := f.ledger.Balance(ctx, "u1")
	if balance != 1 {
		t.Errorf("balance = %d, want 1 (no debit)", balance)
	}
}

func TestCancelDiscardsLateResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.Credit(ctx, "u1", 100, credits.TypePurchase, "pack")
	j := f.seedJob(t, "u1")
	f.provider.block = make(chan struct{})

	run, err := f.svc.Begin(ctx, "u1", j.ID, job.SubmitOptions{})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	execDone := make(chan *job.Job, 1)
	go func() {
		out, _ := run.Execute(ctx)
		execDone <- out
	}()

	// Cancel lands while the provider call is in flight.
	cancelled, err := f.svc.Cancel(ctx, "u1", j.ID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Status != job.StatusFailed {
		t.Fatalf("status after cancel = %s, want failed", cancelled.Status)
	}
	if cancelled.ErrorNote == "" {
		t.Error("cancelled job has no note")
	}
	// The debit of the cancelled attempt comes back immediately.
	balance, _ := f.ledger.Balance(ctx, "u1")
	if balance != 100 {
		t.Errorf("balance after cancel = %d, want 100", balance)
	}

	// The provider now succeeds, too late.
	close(f.provider.block)
	final := <-execDone

	got, _ := f.store.GetJob(ctx, j.ID)
	if got.Status != job.StatusFailed {
		t.Errorf("status after late result = %s, want failed", got.Status)
	}
	if got.Transcript != nil {
		t.Error("late transcript overwrote the cancellation")
	}
	if got.CreditsHeld != 0 {
		t.Errorf("CreditsHeld after cancel = %d, want 0", got.CreditsHeld)
	}
	if final != nil && final.Status == job.StatusCompleted {
		t.Error("Execute() reported completed after cancel")
	}
	// Neither the discarded result nor its aborted failure path may move
	// the balance again.
	balance, _ = f.ledger.Balance(ctx, "u1")
	if balance != 100 {
		t.Errorf("balance after late result = %d, want 100", balance)
	}
}

func TestCancelIdempotentOnTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.Credit(ctx, "u1", 100, credits.TypePurchase, "pack")
	j := f.seedJob(t, "u1")

	if _, err := f.svc.Process(ctx, "u1", j.ID, job.SubmitOptions{}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	got, err := f.svc.Cancel(ctx, "u1", j.ID)
	if err != nil {
		t.Fatalf("Cancel() on completed job error = %v, want idempotent success", err)
	}
	if got.Status != job.StatusCompleted {
		t.Errorf("status = %s, cancel must not touch terminal jobs", got.Status)
	}
}

func TestCancelPendingIsPrecondition(t *testing.T) {
	f := newFixture(t)
	j := f.seedJob(t, "u1")

	_, err := f.svc.Cancel(context.Background(), "u1", j.ID)
	if errors.CodeOf(err) != errors.ErrCodePrecondition {
		t.Errorf("error = %v, want PRECONDITION_FAILED", err)
	}
}

func TestReprocessMissingArtifact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.Credit(ctx, "u1", 100, credits.TypePurchase, "pack")
	j := f.seedJob(t, "u1")

	done, err := f.svc.Process(ctx, "u1", j.ID, job.SubmitOptions{})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	f.artifacts.Delete(ctx, done.AudioRef)

	_, err = f.svc.Begin(ctx, "u1", j.ID, job.SubmitOptions{Reprocess: true})
	if errors.CodeOf(err) != errors.ErrCodePrecondition {
		t.Fatalf("error = %v, want PRECONDITION_FAILED", err)
	}

	got, _ := f.store.GetJob(ctx, j.ID)
	if got.Status != job.StatusCompleted {
		t.Errorf("status = %s, want completed (untouched)", got.Status)
	}
	if got.Transcript == nil || *got.Transcript != "transcript" {
		t.Error("prior transcript was touched by the failed reprocess")
	}
}

func TestReprocessFailureRestoresSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.Credit(ctx, "u1", 100, credits.TypePurchase, "pack")
	j := f.seedJob(t, "u1")

	first, err := f.svc.Process(ctx, "u1", j.ID, job.SubmitOptions{})
	if err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	balanceAfterFirst, _ := f.ledger.Balance(ctx, "u1")

	f.provider.err = errors.ProviderFailure("openai", io.ErrUnexpectedEOF)
	_, err = f.svc.Process(ctx, "u1", j.ID, job.SubmitOptions{Reprocess: true})
	if err == nil {
		t.Fatal("reprocess expected error")
	}

	got, _ := f.store.GetJob(ctx, j.ID)
	if got.Status != job.StatusCompleted {
		t.Fatalf("status = %s, want completed (restored)", got.Status)
	}
	if got.Transcript == nil || *got.Transcript != *first.Transcript {
		t.Error("restored transcript differs from the original result")
	}
	if got.CreditsConsumed != first.CreditsConsumed {
		t.Errorf("CreditsConsumed = %d, want %d (restored)", got.CreditsConsumed, first.CreditsConsumed)
	}
	if got.ReprocessedAt != nil {
		t.Error("failed reprocess stamped ReprocessedAt")
	}
	balance, _ := f.ledger.Balance(ctx, "u1")
	if balance != balanceAfterFirst {
		t.Errorf("balance = %d, want %d (debit refunded)", balance, balanceAfterFirst)
	}
}

func TestReprocessSuccessStampsReprocessedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.Credit(ctx, "u1", 100, credits.TypePurchase, "pack")
	j := f.seedJob(t, "u1")

	if _, err := f.svc.Process(ctx, "u1", j.ID, job.SubmitOptions{}); err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	done, err := f.svc.Process(ctx, "u1", j.ID, job.SubmitOptions{Reprocess: true})
	if err != nil {
		t.Fatalf("reprocess error = %v", err)
	}
	if done.ReprocessedAt == nil {
		t.Error("ReprocessedAt not stamped")
	}
	if done.CreditsConsumed != 4 {
		t.Errorf("CreditsConsumed = %d, want 4 (two runs)", done.CreditsConsumed)
	}
}

func TestOwnershipMaskedAsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.seedJob(t, "u1")

	genuine, err := json.Marshal(errors.NotFound("job", j.ID).ToResponse())
	if err != nil {
		t.Fatalf("marshal genuine NOT_FOUND: %v", err)
	}

	for name, call := range map[string]func() error{
		"Get":    func() error { _, err := f.svc.Get(ctx, "intruder", j.ID); return err },
		"Begin":  func() error { _, err := f.svc.Begin(ctx, "intruder", j.ID, job.SubmitOptions{}); return err },
		"Cancel": func() error { _, err := f.svc.Cancel(ctx, "intruder", j.ID); return err },
	} {
		err := call()
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		appErr, ok := errors.AsAppError(err)
		if !ok {
			t.Fatalf("%s: error %v is not an AppError", name, err)
		}
		// The whole rendered body, details included, must match a real
		// NOT_FOUND, or an intruder learns the job exists.
		rendered, mErr := json.Marshal(appErr.ToResponse())
		if mErr != nil {
			t.Fatalf("%s: marshal: %v", name, mErr)
		}
		if string(rendered) != string(genuine) {
			t.Errorf("%s: rendered body %s, want %s", name, rendered, genuine)
		}
	}
}

func TestReleaseExpiredArtifacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ledger.Credit(ctx, "u1", 100, credits.TypePurchase, "pack")
	j := f.seedJob(t, "u1")
	done, err := f.svc.Process(ctx, "u1", j.ID, job.SubmitOptions{})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	// Age the job past the retention window. Service writes restamp
	// UpdatedAt, so the rewind goes straight to the store.
	f.store.Age(j.ID, time.Now().UTC().Add(-30*24*time.Hour))

	released, err := f.svc.ReleaseExpiredArtifacts(ctx)
	if err != nil {
		t.Fatalf("ReleaseExpiredArtifacts() error = %v", err)
	}
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}

	exists, _ := f.artifacts.Exists(ctx, done.AudioRef)
	if exists {
		t.Error("expired artifact still stored")
	}
	got, _ := f.store.GetJob(ctx, j.ID)
	if got.AudioRef != "" {
		t.Error("AudioRef not cleared after release")
	}

	// A reprocess now fails the precondition.
	_, err = f.svc.Begin(ctx, "u1", j.ID, job.SubmitOptions{Reprocess: true})
	if errors.CodeOf(err) != errors.ErrCodePrecondition {
		t.Errorf("reprocess after release error = %v, want PRECONDITION_FAILED", err)
	}
}
