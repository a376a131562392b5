// Package statussync periodically pulls the status of open tickets from the
// tracker and tells reporters when something moved.
package statussync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"supportbot/internal/clock"
	"supportbot/internal/domain"
	"supportbot/internal/keylock"
	"supportbot/internal/observability"
)

var tracer = otel.Tracer("supportbot/internal/statussync")

const (
	defaultBatch       = 200
	fetchConcurrency   = 4
	defaultCallTimeout = 10 * time.Second
)

type Store interface {
	ListOpen(ctx context.Context, limit int) ([]domain.TicketRecord, error)
	Upsert(ctx context.Context, rec domain.TicketRecord) error
}

type Tracker interface {
	Fetch(ctx context.Context, remoteID string) (domain.RemoteTicket, error)
}

// Notifier tells a reporter that one of their tickets changed status.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, rec domain.TicketRecord, previous domain.TicketStatus) error
}

// Result counts what one sync pass did.
type Result struct {
	Checked  int
	Changed  int
	Failed   int
	Notified int
}

func (r Result) String() string {
	parts := []string{fmt.Sprintf("%d checked", r.Checked)}
	if r.Changed > 0 {
		parts = append(parts, fmt.Sprintf("%d changed", r.Changed))
	}
	if r.Notified > 0 {
		parts = append(parts, fmt.Sprintf("%d notified", r.Notified))
	}
	if r.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.Failed))
	}
	return strings.Join(parts, ", ")
}

type Options struct {
	Batch       int
	CallTimeout time.Duration
	Clock       clock.Clock
	Locks       *keylock.Map
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

type Syncer struct {
	store    Store
	tracker  Tracker
	notifier Notifier

	batch       int
	callTimeout time.Duration
	clock       clock.Clock
	locks       *keylock.Map
	logger      *zap.Logger
	metrics     *observability.Metrics
}

func New(store Store, tracker Tracker, notifier Notifier, opts Options) *Syncer {
	s := &Syncer{
		store:       store,
		tracker:     tracker,
		notifier:    notifier,
		batch:       opts.Batch,
		callTimeout: opts.CallTimeout,
		clock:       opts.Clock,
		locks:       opts.Locks,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
	if s.batch <= 0 {
		s.batch = defaultBatch
	}
	if s.callTimeout <= 0 {
		s.callTimeout = defaultCallTimeout
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.locks == nil {
		s.locks = keylock.New()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

type change struct {
	rec      domain.TicketRecord
	previous domain.TicketStatus
}

// SyncOnce refreshes every open shadow record. It only fails when the open
// records cannot be loaded; per-ticket failures are counted in Result.
func (s *Syncer) SyncOnce(ctx context.Context) (Result, error) {
	ctx, span := tracer.Start(ctx, "statussync.SyncOnce")

	recs, err := s.store.ListOpen(ctx, s.batch)
	if err != nil {
		err = fmt.Errorf("load open tickets: %w", err)
		observability.EndSpan(span, err)
		return Result{}, err
	}

	var (
		mu      sync.Mutex
		result  = Result{Checked: len(recs)}
		changes []change
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, rec := range recs {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, s.callTimeout)
			started := time.Now()
			remote, err := s.tracker.Fetch(callCtx, rec.RemoteID)
			cancel()
			s.metrics.ObservePortCall("tracker", "fetch", started)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed++
				s.metrics.StatusRefresh("failed")
				if !errors.Is(err, domain.ErrTicketNotFound) {
					s.logger.Debug("statussync fetch failed", zap.String("ticket", rec.RemoteID), zap.Error(err))
				}
			case remote.Status != domain.StatusUnknown && remote.Status != rec.LastKnownStatus:
				s.metrics.StatusRefresh("ok")
				changes = append(changes, change{rec: rec, previous: rec.LastKnownStatus})
				changes[len(changes)-1].rec.LastKnownStatus = remote.Status
			default:
				s.metrics.StatusRefresh("ok")
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, c := range changes {
		if s.apply(ctx, c) {
			result.Changed++
			if s.notify(ctx, c) {
				result.Notified++
			}
		}
	}

	span.SetAttributes(
		attribute.Int("statussync.checked", result.Checked),
		attribute.Int("statussync.changed", result.Changed),
		attribute.Int("statussync.failed", result.Failed),
	)
	observability.EndSpan(span, nil)
	s.logger.Info("statussync complete", zap.String("summary", result.String()))
	return result, nil
}

// apply stores the new status under the reporter lock. It reports false when
// the record could not be written.
func (s *Syncer) apply(ctx context.Context, c change) bool {
	unlock := s.locks.Lock(c.rec.ReporterID)
	defer unlock()

	rec := c.rec
	rec.UpdatedAt = s.clock.Now()
	if err := s.store.Upsert(ctx, rec); err != nil {
		s.logger.Warn("statussync update not stored", zap.String("ticket", rec.RemoteID), zap.Error(err))
		return false
	}
	s.metrics.StatusChanged()
	s.logger.Info("statussync status changed",
		zap.String("reporter", rec.ReporterID),
		zap.String("ticket", rec.RemoteID),
		zap.String("from", string(c.previous)),
		zap.String("to", string(rec.LastKnownStatus)),
	)
	return true
}

func (s *Syncer) notify(ctx context.Context, c change) bool {
	if s.notifier == nil {
		return false
	}
	if err := s.notifier.NotifyStatusChange(ctx, c.rec, c.previous); err != nil {
		s.logger.Warn("statussync notify failed",
			zap.String("reporter", c.rec.ReporterID),
			zap.String("ticket", c.rec.RemoteID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Start runs SyncOnce on schedule until ctx is cancelled. The schedule is a
// standard cron expression or a descriptor such as "@every 30m". An empty
// schedule disables the job.
func (s *Syncer) Start(ctx context.Context, schedule string) error {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		s.logger.Info("statussync disabled (status_sync_schedule not set)")
		return nil
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return fmt.Errorf("invalid status_sync_schedule %q: %w", schedule, err)
	}
	s.logger.Info("statussync scheduled", zap.String("schedule", schedule))

	go s.loop(ctx, sched)
	return nil
}

func (s *Syncer) loop(ctx context.Context, sched cron.Schedule) {
	for {
		now := s.clock.Now()
		next := sched.Next(now)
		wait := next.Sub(now)
		s.logger.Debug("statussync next run", zap.Time("at", next), zap.Duration("in", wait))

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(wait):
		}

		if _, err := s.SyncOnce(ctx); err != nil {
			s.logger.Error("statussync failed", zap.Error(err))
		}
	}
}
