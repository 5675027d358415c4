// Package scheduler periodically drives the import pipeline's
// update-to-latest check (spec §4.G) across every currently imported
// asset, so a long-running host process keeps materialized assets
// current without a user manually re-resolving. Grounded on the
// teacher's Scheduler: one ticker per unit of work, context-cancel
// plus WaitGroup shutdown.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/vaultbridge/importengine/internal/importpipeline"
	"github.com/vaultbridge/importengine/internal/index"
	"github.com/vaultbridge/importengine/internal/model"
	"github.com/vaultbridge/importengine/internal/notifier"
	"go.uber.org/zap"
)

// Scheduler runs CheckAndUpdateOutOfDate on a fixed interval against
// every tracked identity the index currently holds.
type Scheduler struct {
	pipeline *importpipeline.Pipeline
	idx      *index.Index
	interval time.Duration
	defaults model.EffectiveImportSettings
	logger   *zap.Logger
	notifier *notifier.Notifier

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler. interval defaults to 15 minutes when <= 0.
// notif is optional; a nil notifier just means scheduler-triggered
// imports don't raise a completion alert.
func New(pipeline *importpipeline.Pipeline, idx *index.Index, interval time.Duration, defaults model.EffectiveImportSettings, logger *zap.Logger, notif *notifier.Notifier) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		pipeline: pipeline,
		idx:      idx,
		interval: interval,
		defaults: defaults,
		logger:   logger,
		notifier: notif,
	}
}

// Start begins the periodic update-to-latest loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	tracked := make([]model.TrackedID, 0)
	for _, entry := range s.idx.Snapshot() {
		tracked = append(tracked, entry.Tracked())
	}
	if len(tracked) == 0 {
		return
	}

	bulk, err := s.pipeline.CheckAndUpdateOutOfDate(ctx, "scheduler", tracked, s.defaults)
	if err != nil {
		s.logger.Error("update-to-latest check failed", zap.Error(err))
		return
	}
	if bulk == nil {
		return
	}
	s.logger.Info("update-to-latest import started", zap.String("status", string(bulk.Status())))
	if s.notifier != nil {
		s.notifier.NotifyImportCompleted(ctx, bulk.Trigger, bulk.Status())
	}
}

// RunNow triggers an immediate out-of-band check, bypassing the
// ticker (e.g. from an API-triggered refresh).
func (s *Scheduler) RunNow(ctx context.Context) {
	go s.runOnce(ctx)
}
