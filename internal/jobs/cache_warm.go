// Package jobs runs the background cache warmer so the first teacher of the
// day never pays for a cold leaderboard.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"arcade/progress/internal/config"
)

// Warmer recomputes the cached summary payloads.
type Warmer interface {
	WarmSummaries(ctx context.Context) error
}

type CacheWarm struct {
	scheduler *gocron.Scheduler
	warmer    Warmer
	interval  time.Duration
	timeout   time.Duration
}

func NewCacheWarm(cfg config.Config, warmer Warmer) *CacheWarm {
	return &CacheWarm{
		scheduler: gocron.NewScheduler(time.UTC),
		warmer:    warmer,
		interval:  cfg.CacheWarmJobInterval,
		timeout:   cfg.CacheWarmJobTimeout,
	}
}

// Start schedules the warm pass and returns immediately.
func (j *CacheWarm) Start() error {
	if _, err := j.scheduler.Every(j.interval).Do(j.run); err != nil {
		return err
	}
	j.scheduler.StartAsync()
	log.Printf("cache warm job scheduled every %s", j.interval)
	return nil
}

func (j *CacheWarm) Stop() {
	j.scheduler.Stop()
}

func (j *CacheWarm) run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	started := time.Now()
	if err := j.warmer.WarmSummaries(ctx); err != nil {
		log.Printf("cache warm failed: %v", err)
		return
	}
	log.Printf("cache warm completed in %s", time.Since(started).Round(time.Millisecond))
}
