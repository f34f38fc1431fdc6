package main

import (
	"context"
	"time"

	"github.com/skillsenselab/recap/cache"
	"github.com/skillsenselab/recap/component"
	"github.com/skillsenselab/recap/job"
	"github.com/skillsenselab/recap/logger"
	"github.com/skillsenselab/recap/server"
	"github.com/skillsenselab/recap/store/gormstore"
)

// storeComponent wraps the already-opened database so the registry owns its
// shutdown and health reporting.
type storeComponent struct {
	store *gormstore.Store
}

func (c *storeComponent) Name() string { return "store" }
func (c *storeComponent) Start(context.Context) error { return nil }
func (c *storeComponent) Stop(context.Context) error { return c.store.Close() }
func (c *storeComponent) Health(ctx context.Context) component.Health {
	if err := c.store.Ping(ctx); err != nil {
		return component.Health{Name: "store", Status: component.StatusUnhealthy, Message: err.Error()}
	}
	return component.Health{Name: "store", Status: component.StatusHealthy}
}

type cacheComponent struct {
	client *cache.Client
}

func (c *cacheComponent) Name() string { return "cache" }
func (c *cacheComponent) Start(ctx context.Context) error {
	return c.client.Ping(ctx)
}
func (c *cacheComponent) Stop(context.Context) error { return c.client.Close() }

// Health degrades instead of failing: the cache is an optimization, a dead
// cache only slows polls down.
func (c *cacheComponent) Health(ctx context.Context) component.Health {
	if err := c.client.Ping(ctx); err != nil {
		return component.Health{Name: "cache", Status: component.StatusDegraded, Message: err.Error()}
	}
	return component.Health{Name: "cache", Status: component.StatusHealthy}
}

type serverComponent struct {
	server *server.Server
}

func (c *serverComponent) Name() string { return "server" }
func (c *serverComponent) Start(ctx context.Context) error {
	return c.server.Start(ctx)
}
func (c *serverComponent) Stop(ctx context.Context) error {
	return c.server.Stop(ctx)
}
func (c *serverComponent) Health(context.Context) component.Health {
	return component.Health{Name: "server", Status: component.StatusHealthy, Message: c.server.Addr()}
}

// janitor periodically releases audio artifacts of terminal jobs older than
// the retention window.
type janitor struct {
	jobs     *job.Service
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	log      *logger.Logger
}

func newJanitor(jobs *job.Service) *janitor {
	return &janitor{
		jobs:     jobs,
		interval: time.Hour,
		log:      logger.Get("janitor"),
	}
}

func (j *janitor) Name() string { return "janitor" }

func (j *janitor) Start(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.done = make(chan struct{})

	go func() {
		defer close(j.done)
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				released, err := j.jobs.ReleaseExpiredArtifacts(ctx)
				if err != nil {
					j.log.Error("artifact sweep failed", logger.ErrorFields(err))
					continue
				}
				if released > 0 {
					j.log.Info("artifacts released", logger.Fields("count", released))
				}
			}
		}
	}()
	return nil
}

func (j *janitor) Stop(ctx context.Context) error {
	if j.cancel == nil {
		return nil
	}
	j.cancel()
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *janitor) Health(context.Context) component.Health {
	return component.Health{Name: "janitor", Status: component.StatusHealthy}
}
