// Package status answers "where is my ticket" questions from the local
// shadow records, refreshing them from the tracker as it goes.
package status

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"supportbot/internal/clock"
	"supportbot/internal/domain"
	"supportbot/internal/keylock"
	"supportbot/internal/observability"
)

var tracer = otel.Tracer("supportbot/internal/status")

const refreshConcurrency = 4

type Store interface {
	Upsert(ctx context.Context, rec domain.TicketRecord) error
	GetLatest(ctx context.Context, reporterID string) (domain.TicketRecord, error)
	GetByID(ctx context.Context, reporterID, remoteID string) (domain.TicketRecord, error)
	List(ctx context.Context, reporterID string) ([]domain.TicketRecord, error)
}

type Tracker interface {
	Fetch(ctx context.Context, remoteID string) (domain.RemoteTicket, error)
	ListByReporter(ctx context.Context, reporterID string) ([]domain.RemoteTicket, error)
}

// Gate decides whether a ticket may be refreshed from the tracker now.
type Gate interface {
	Allow(ctx context.Context, remoteID string) bool
	Forget(ctx context.Context, remoteID string)
}

// TicketView is a shadow record as shown to its reporter. Stale is set when
// the tracker could not be reached and the status is the last one seen.
type TicketView struct {
	domain.TicketRecord
	Stale bool
}

type Options struct {
	CallTimeout time.Duration
	Clock       clock.Clock
	Locks       *keylock.Map
	Gate        Gate
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

type Service struct {
	store       Store
	tracker     Tracker
	gate        Gate
	clock       clock.Clock
	locks       *keylock.Map
	logger      *zap.Logger
	metrics     *observability.Metrics
	callTimeout time.Duration
}

func New(store Store, tracker Tracker, opts Options) *Service {
	s := &Service{
		store:       store,
		tracker:     tracker,
		gate:        opts.Gate,
		clock:       opts.Clock,
		locks:       opts.Locks,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		callTimeout: opts.CallTimeout,
	}
	if s.gate == nil {
		s.gate = openGate{}
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
	if s.callTimeout <= 0 {
		s.callTimeout = 10 * time.Second
	}
	return s
}

// Latest returns the reporter's most recently created ticket.
func (s *Service) Latest(ctx context.Context, reporterID string) (view TicketView, err error) {
	ctx, span := tracer.Start(ctx, "status.Latest", trace.WithAttributes(attribute.String("reporter.id", reporterID)))
	defer func() { observability.EndSpan(span, ignoreExpected(err)) }()

	unlock := s.locks.Lock(reporterID)
	defer unlock()

	rec, err := s.store.GetLatest(ctx, reporterID)
	if err != nil {
		return TicketView{}, err
	}
	return s.refresh(ctx, rec), nil
}

// ByID returns one ticket. Tickets created outside the bot (or lost from the
// local store) are looked up remotely and adopted if they belong to the
// reporter.
func (s *Service) ByID(ctx context.Context, reporterID, remoteID string) (view TicketView, err error) {
	remoteID = NormalizeTicketID(remoteID)
	ctx, span := tracer.Start(ctx, "status.ByID", trace.WithAttributes(
		attribute.String("reporter.id", reporterID),
		attribute.String("ticket.id", remoteID),
	))
	defer func() { observability.EndSpan(span, ignoreExpected(err)) }()

	if remoteID == "" {
		return TicketView{}, domain.ErrTicketNotFound
	}

	unlock := s.locks.Lock(reporterID)
	defer unlock()

	rec, err := s.store.GetByID(ctx, reporterID, remoteID)
	if err == nil {
		return s.refresh(ctx, rec), nil
	}
	if !errors.Is(err, domain.ErrTicketNotFound) {
		return TicketView{}, err
	}

	remote, err := s.fetch(ctx, remoteID)
	if err != nil {
		s.logger.Info("status remote lookup failed", zap.String("ticket", remoteID), zap.Error(err))
		return TicketView{}, domain.ErrTicketNotFound
	}
	if remote.ReporterID == "" || remote.ReporterID != reporterID {
		s.logger.Warn("status ticket belongs to another reporter",
			zap.String("reporter", reporterID),
			zap.String("ticket", remoteID),
		)
		return TicketView{}, domain.ErrTicketAccessDenied
	}

	rec = s.adopt(ctx, reporterID, remote)
	return TicketView{TicketRecord: rec}, nil
}

// ListAll returns every ticket of the reporter, newest first. When nothing is
// stored locally the tracker is asked for the reporter's tickets instead.
func (s *Service) ListAll(ctx context.Context, reporterID string) (views []TicketView, err error) {
	ctx, span := tracer.Start(ctx, "status.ListAll", trace.WithAttributes(attribute.String("reporter.id", reporterID)))
	defer func() { observability.EndSpan(span, ignoreExpected(err)) }()

	unlock := s.locks.Lock(reporterID)
	defer unlock()

	recs, err := s.store.List(ctx, reporterID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return s.backfill(ctx, reporterID)
	}

	views = make([]TicketView, len(recs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for i, rec := range recs {
		g.Go(func() error {
			views[i] = s.refresh(gctx, rec)
			return nil
		})
	}
	_ = g.Wait()
	return views, nil
}

// refresh pulls the current status of rec from the tracker. Failures leave
// the record as it was and mark the view stale.
func (s *Service) refresh(ctx context.Context, rec domain.TicketRecord) TicketView {
	if !s.gate.Allow(ctx, rec.RemoteID) {
		s.metrics.StatusRefresh("throttled")
		return TicketView{TicketRecord: rec}
	}

	remote, err := s.fetch(ctx, rec.RemoteID)
	if err != nil {
		s.metrics.StatusRefresh("failed")
		s.gate.Forget(ctx, rec.RemoteID)
		s.logger.Debug("status refresh failed", zap.String("ticket", rec.RemoteID), zap.Error(err))
		return TicketView{TicketRecord: rec, Stale: true}
	}
	s.metrics.StatusRefresh("ok")

	if remote.Status == domain.StatusUnknown || remote.Status == rec.LastKnownStatus {
		return TicketView{TicketRecord: rec}
	}
	s.logger.Info("status changed",
		zap.String("ticket", rec.RemoteID),
		zap.String("from", string(rec.LastKnownStatus)),
		zap.String("to", string(remote.Status)),
	)
	s.metrics.StatusChanged()
	rec.LastKnownStatus = remote.Status
	rec.UpdatedAt = s.clock.Now()
	if err := s.store.Upsert(ctx, rec); err != nil {
		s.logger.Warn("status update not stored", zap.String("ticket", rec.RemoteID), zap.Error(err))
	}
	return TicketView{TicketRecord: rec}
}

func (s *Service) fetch(ctx context.Context, remoteID string) (domain.RemoteTicket, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	started := time.Now()
	remote, err := s.tracker.Fetch(callCtx, remoteID)
	s.metrics.ObservePortCall("tracker", "fetch", started)
	return remote, err
}

// adopt stores a remote ticket as a local shadow record.
func (s *Service) adopt(ctx context.Context, reporterID string, remote domain.RemoteTicket) domain.TicketRecord {
	now := s.clock.Now()
	created := remote.CreatedAt
	if created.IsZero() {
		created = now
	}
	category := remote.Category
	if category == "" {
		category = domain.CategoryOther
	}
	rec := domain.TicketRecord{
		ReporterID:      reporterID,
		RemoteID:        remote.ID,
		Category:        category,
		Severity:        remote.Severity,
		SummaryText:     remote.Summary,
		LocalCreatedAt:  created,
		LastKnownStatus: remote.Status,
		UpdatedAt:       now,
	}
	if err := s.store.Upsert(ctx, rec); err != nil {
		s.logger.Warn("status backfill not stored", zap.String("ticket", rec.RemoteID), zap.Error(err))
	}
	return rec
}

func (s *Service) backfill(ctx context.Context, reporterID string) ([]TicketView, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	started := time.Now()
	remotes, err := s.tracker.ListByReporter(callCtx, reporterID)
	cancel()
	s.metrics.ObservePortCall("tracker", "list", started)
	if err != nil {
		s.logger.Warn("status remote list failed", zap.String("reporter", reporterID), zap.Error(err))
		return nil, domain.ErrNoTicketsFound
	}
	if len(remotes) == 0 {
		return nil, domain.ErrNoTicketsFound
	}

	views := make([]TicketView, 0, len(remotes))
	for _, remote := range remotes {
		if remote.ID == "" {
			continue
		}
		views = append(views, TicketView{TicketRecord: s.adopt(ctx, reporterID, remote)})
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].LocalCreatedAt.After(views[j].LocalCreatedAt)
	})
	s.logger.Info("status backfilled from tracker", zap.String("reporter", reporterID), zap.Int("count", len(views)))
	return views, nil
}

// NormalizeTicketID accepts "#123", " 123 " and "0000123" as ticket 123.
func NormalizeTicketID(id string) string {
	id = strings.TrimPrefix(strings.TrimSpace(id), "#")
	trimmed := strings.TrimLeft(id, "0")
	if trimmed == "" && id != "" {
		return "0"
	}
	return trimmed
}

func ignoreExpected(err error) error {
	if errors.Is(err, domain.ErrNoTicketsFound) || errors.Is(err, domain.ErrTicketNotFound) || errors.Is(err, domain.ErrTicketAccessDenied) {
		return nil
	}
	return err
}

type openGate struct{}

func (openGate) Allow(context.Context, string) bool { return true }
func (openGate) Forget(context.Context, string) {}
