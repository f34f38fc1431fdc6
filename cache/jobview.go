package cache

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/skillsenselab/recap/job"
	"github.com/skillsenselab/recap/logger"
)

const jobKeyPrefix = "recap:job:"

// JobViews caches JSON-serialized job views between status polls. It
// implements job.ViewCache. Every method is best effort; a cache failure is
// logged and the caller falls through to the store of record.
type JobViews struct {
	client *Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewJobViews creates a job view cache with the given TTL. A zero TTL caches
// without expiration, which is only sensible in tests.
func NewJobViews(client *Client, ttl time.Duration) *JobViews {
	return &JobViews{
		client: client,
		ttl:    ttl,
		log:    logger.Get("cache"),
	}
}

var _ job.ViewCache = (*JobViews)(nil)

// GetJob returns a cached view, or false on a miss or any cache error.
func (v *JobViews) GetJob(ctx context.Context, id string) (*job.Job, bool) {
	raw, err := v.client.Get(ctx, jobKeyPrefix+id)
	if err != nil {
		if err != goredis.Nil {
			v.log.Warn("job view read failed", logger.ErrorFields(err, logger.FieldJobID, id))
		}
		return nil, false
	}
	var j job.Job
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		// A stale or corrupt entry; drop it and miss.
		v.client.Del(ctx, jobKeyPrefix+id)
		return nil, false
	}
	return &j, true
}

// SetJob stores a view with the configured TTL.
func (v *JobViews) SetJob(ctx context.Context, j *job.Job) {
	data, err := json.Marshal(j)
	if err != nil {
		v.log.Warn("job view marshal failed", logger.ErrorFields(err, logger.FieldJobID, j.ID))
		return
	}
	if err := v.client.Set(ctx, jobKeyPrefix+j.ID, string(data), v.ttl); err != nil {
		v.log.Warn("job view write failed", logger.ErrorFields(err, logger.FieldJobID, j.ID))
	}
}

// Invalidate drops a cached view after any state transition.
func (v *JobViews) Invalidate(ctx context.Context, id string) {
	if err := v.client.Del(ctx, jobKeyPrefix+id); err != nil {
		v.log.Warn("job view invalidation failed", logger.ErrorFields(err, logger.FieldJobID, id))
	}
}
