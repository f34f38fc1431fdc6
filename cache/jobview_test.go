package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/skillsenselab/recap/job"
	"github.com/skillsenselab/recap/logger"
)

func newTestViews(t *testing.T, ttl time.Duration) (*JobViews, *miniredis.Miniredis) {
	t.Helper()
	mini := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { rdb.Close() })
	client := NewFromRedis(rdb, logger.NewDefault("recap-test"))
	return NewJobViews(client, ttl), mini
}

func sampleJob() *job.Job {
	transcript := "hello"
	now := time.Now().UTC().Truncate(time.Second)
	return &job.Job{
		ID:           "j1",
		UserID:       "u1",
		Status:       job.StatusCompleted,
		AudioRef:     "users/u1/jobs/j1/audio.m4a",
		DurationSecs: 120,
		Transcript:   &transcript,
		KeyTopics:    []string{"roadmap", "budget"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestJobViewsRoundTrip(t *testing.T) {
	views, _ := newTestViews(t, time.Minute)
	ctx := context.Background()

	if _, ok := views.GetJob(ctx, "j1"); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	want := sampleJob()
	views.SetJob(ctx, want)

	got, ok := views.GetJob(ctx, "j1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.ID != want.ID || got.Status != want.Status || got.UserID != want.UserID {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if got.Transcript == nil || *got.Transcript != "hello" {
		t.Error("transcript not preserved")
	}
	if len(got.KeyTopics) != 2 || got.KeyTopics[0] != "roadmap" {
		t.Errorf("KeyTopics = %v", got.KeyTopics)
	}
}

func TestJobViewsInvalidate(t *testing.T) {
	views, _ := newTestViews(t, time.Minute)
	ctx := context.Background()

	views.SetJob(ctx, sampleJob())
	views.Invalidate(ctx, "j1")

	if _, ok := views.GetJob(ctx, "j1"); ok {
		t.Error("expected miss after invalidation")
	}
}

func TestJobViewsExpiry(t *testing.T) {
	views, mini := newTestViews(t, time.Second)
	ctx := context.Background()

	views.SetJob(ctx, sampleJob())
	mini.FastForward(2 * time.Second)

	if _, ok := views.GetJob(ctx, "j1"); ok {
		t.Error("expected miss after TTL")
	}
}

func TestJobViewsCorruptEntryIsDropped(t *testing.T) {
	views, mini := newTestViews(t, time.Minute)
	ctx := context.Background()

	mini.Set(jobKeyPrefix+"j1", "{not json")

	if _, ok := views.GetJob(ctx, "j1"); ok {
		t.Fatal("corrupt entry served as a hit")
	}
	if mini.Exists(jobKeyPrefix + "j1") {
		t.Error("corrupt entry not dropped")
	}
}
