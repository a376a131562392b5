// Package triage turns free-text malfunction reports into either
// self-service guidance or a confirmed ticket.
package triage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"supportbot/internal/clock"
	"supportbot/internal/domain"
	"supportbot/internal/keylock"
	"supportbot/internal/observability"
)

var tracer = otel.Tracer("supportbot/internal/triage")

const (
	defaultConfirmationWindow = 5 * time.Minute
	defaultCallTimeout        = 10 * time.Second
	defaultRetention          = time.Hour
)

type Options struct {
	ConfirmationWindow    time.Duration
	DedupWindow           time.Duration
	RetryBackoff          time.Duration
	CallTimeout           time.Duration
	TroubleshootRetention time.Duration

	Clock   clock.Clock
	Locks   *keylock.Map
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// Coordinator owns the pending escalation sessions. One session exists per
// reporter at most; a newer report always replaces the older one.
type Coordinator struct {
	classifier Classifier
	tracker    Tracker
	store      Store

	clock   clock.Clock
	locks   *keylock.Map
	logger  *zap.Logger
	metrics *observability.Metrics

	window      time.Duration
	dedupWindow time.Duration
	backoff     time.Duration
	callTimeout time.Duration
	retention   time.Duration

	// mu guards the maps and onExpire. Never held across I/O.
	mu       sync.Mutex
	sessions map[string]*session
	offers   map[string]*offer
	onExpire func(Expiry)
}

type session struct {
	id             string
	report         domain.Report
	classification domain.Classification
	createdAt      time.Time
	deadline       time.Time
	timer          *clock.Timer

	resolved bool
	ticket   domain.TicketRef
	reused   bool
}

// offer remembers a troubleshoot reply so the reporter can still ask for
// a human without a second classifier call.
type offer struct {
	id             string
	report         domain.Report
	classification domain.Classification
	timer          *clock.Timer
}

func New(classifier Classifier, tracker Tracker, store Store, opts Options) *Coordinator {
	c := &Coordinator{
		classifier:  classifier,
		tracker:     tracker,
		store:       store,
		clock:       opts.Clock,
		locks:       opts.Locks,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		window:      opts.ConfirmationWindow,
		dedupWindow: opts.DedupWindow,
		backoff:     opts.RetryBackoff,
		callTimeout: opts.CallTimeout,
		retention:   opts.TroubleshootRetention,
		sessions:    make(map[string]*session),
		offers:      make(map[string]*offer),
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.locks == nil {
		c.locks = keylock.New()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.window <= 0 {
		c.window = defaultConfirmationWindow
	}
	if c.callTimeout <= 0 {
		c.callTimeout = defaultCallTimeout
	}
	if c.retention <= 0 {
		c.retention = defaultRetention
	}
	return c
}

// SetExpiryHandler registers f to be told about offers that lapsed. f runs
// on the timer goroutine after all locks are released.
func (c *Coordinator) SetExpiryHandler(f func(Expiry)) {
	c.mu.Lock()
	c.onExpire = f
	c.mu.Unlock()
}

func (c *Coordinator) HandleReport(ctx context.Context, reporterID, text string) domain.Outcome {
	ctx, span := tracer.Start(ctx, "triage.HandleReport", trace.WithAttributes(attribute.String("reporter.id", reporterID)))

	text = strings.TrimSpace(text)
	if text == "" {
		return c.finish(span, domain.Outcome{Kind: domain.OutcomeEmptyReport})
	}

	report := domain.Report{ReporterID: reporterID, Text: text, ReceivedAt: c.clock.Now()}
	cls, degraded := c.classify(ctx, report)
	cls.Action = Decide(cls)
	span.SetAttributes(
		attribute.String("triage.category", string(cls.Category)),
		attribute.String("triage.severity", string(cls.Severity)),
		attribute.String("triage.action", string(cls.Action)),
	)

	// Classification and its retry backoff run outside the reporter lock.
	unlock := c.locks.Lock(reporterID)
	defer unlock()

	c.forgetOffer(reporterID)

	if cls.Action == domain.ActionTroubleshoot {
		c.supersede(reporterID)
		o := c.rememberOffer(report, cls)
		c.logger.Info("triage troubleshoot",
			zap.String("reporter", reporterID),
			zap.String("category", string(cls.Category)),
			zap.String("severity", string(cls.Severity)),
		)
		return c.finish(span, domain.Outcome{
			Kind:           domain.OutcomeTroubleshoot,
			Classification: cls,
			Guidance:       cls.Guidance,
			SessionID:      o.id,
			Degraded:       degraded,
		})
	}

	s := c.openSession(report, cls)
	return c.finish(span, domain.Outcome{
		Kind:           domain.OutcomeAwaitingConfirmation,
		Classification: cls,
		Guidance:       cls.Guidance,
		SessionID:      s.id,
		ExpiresAt:      s.deadline,
		Degraded:       degraded,
	})
}

// RequestEscalation turns the reporter's last troubleshoot reply into an
// escalation offer. offerID, when set, must match that reply.
func (c *Coordinator) RequestEscalation(ctx context.Context, reporterID, offerID string) domain.Outcome {
	_, span := tracer.Start(ctx, "triage.RequestEscalation", trace.WithAttributes(attribute.String("reporter.id", reporterID)))

	unlock := c.locks.Lock(reporterID)
	defer unlock()

	c.mu.Lock()
	o := c.offers[reporterID]
	if o != nil && (offerID == "" || o.id == offerID) {
		delete(c.offers, reporterID)
	} else {
		o = nil
	}
	c.mu.Unlock()

	if o == nil {
		return c.finish(span, domain.Outcome{Kind: domain.OutcomeNothingToEscalate})
	}
	o.timer.Stop()

	cls := o.classification
	cls.Action = domain.ActionEscalate
	s := c.openSession(o.report, cls)
	c.logger.Info("triage manual escalation", zap.String("reporter", reporterID), zap.String("session", s.id))
	return c.finish(span, domain.Outcome{
		Kind:           domain.OutcomeAwaitingConfirmation,
		Classification: cls,
		SessionID:      s.id,
		ExpiresAt:      s.deadline,
	})
}

// HandleConfirmation confirms whatever session the reporter has open.
func (c *Coordinator) HandleConfirmation(ctx context.Context, reporterID string) domain.Outcome {
	return c.ConfirmSession(ctx, reporterID, "")
}

// ConfirmSession creates (or reuses) a ticket for the reporter's session.
// An empty sessionID matches the current session.
func (c *Coordinator) ConfirmSession(ctx context.Context, reporterID, sessionID string) domain.Outcome {
	ctx, span := tracer.Start(ctx, "triage.ConfirmSession", trace.WithAttributes(
		attribute.String("reporter.id", reporterID),
		attribute.String("session.id", sessionID),
	))

	unlock := c.locks.Lock(reporterID)
	defer unlock()

	s := c.current(reporterID, sessionID)
	if s == nil {
		return c.finish(span, domain.Outcome{Kind: domain.OutcomeExpired, SessionID: sessionID})
	}
	if s.resolved {
		ticket := s.ticket
		return c.finish(span, domain.Outcome{
			Kind:           domain.OutcomeTicketCreated,
			Classification: s.classification,
			SessionID:      s.id,
			Ticket:         &ticket,
			Reused:         s.reused,
		})
	}
	if !c.clock.Now().Before(s.deadline) {
		s.timer.Stop()
		c.remove(reporterID, s.id)
		c.metrics.SessionExpired()
		c.logger.Info("triage confirmation after deadline", zap.String("reporter", reporterID), zap.String("session", s.id))
		return c.finish(span, domain.Outcome{Kind: domain.OutcomeExpired, SessionID: s.id})
	}

	ticket, reused, err := c.createOrReuse(ctx, s)
	if err != nil {
		c.metrics.TicketConfirmation("failed")
		c.logger.Error("triage ticket create failed",
			zap.String("reporter", reporterID),
			zap.String("session", s.id),
			zap.Error(err),
		)
		return c.finish(span, domain.Outcome{
			Kind:           domain.OutcomeTicketCreationFailed,
			Classification: s.classification,
			SessionID:      s.id,
			ExpiresAt:      s.deadline,
			Err:            err,
		})
	}

	if reused {
		c.metrics.TicketConfirmation("reused")
	} else {
		c.metrics.TicketConfirmation("created")
	}
	s.resolved = true
	s.ticket = ticket
	s.reused = reused
	s.timer.Stop()
	// Keep the resolved session around so repeated clicks get the same ticket.
	s.timer = c.clock.AfterFunc(c.window, func() { c.expire(reporterID, s.id) })

	c.logger.Info("triage ticket confirmed",
		zap.String("reporter", reporterID),
		zap.String("session", s.id),
		zap.String("ticket", ticket.ID),
		zap.Bool("reused", reused),
	)
	return c.finish(span, domain.Outcome{
		Kind:           domain.OutcomeTicketCreated,
		Classification: s.classification,
		SessionID:      s.id,
		Ticket:         &ticket,
		Reused:         reused,
	})
}

// CancelSession discards a pending session without creating anything.
func (c *Coordinator) CancelSession(ctx context.Context, reporterID, sessionID string) domain.Outcome {
	_, span := tracer.Start(ctx, "triage.CancelSession", trace.WithAttributes(attribute.String("reporter.id", reporterID)))

	unlock := c.locks.Lock(reporterID)
	defer unlock()

	s := c.current(reporterID, sessionID)
	if s == nil {
		return c.finish(span, domain.Outcome{Kind: domain.OutcomeExpired, SessionID: sessionID})
	}
	if s.resolved {
		ticket := s.ticket
		return c.finish(span, domain.Outcome{
			Kind:           domain.OutcomeTicketCreated,
			Classification: s.classification,
			SessionID:      s.id,
			Ticket:         &ticket,
			Reused:         s.reused,
		})
	}
	s.timer.Stop()
	c.remove(reporterID, s.id)
	c.logger.Info("triage session cancelled", zap.String("reporter", reporterID), zap.String("session", s.id))
	return c.finish(span, domain.Outcome{Kind: domain.OutcomeCancelled, SessionID: s.id, Classification: s.classification})
}

func (c *Coordinator) classify(ctx context.Context, report domain.Report) (domain.Classification, bool) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 {
			select {
			case <-c.clock.After(c.backoff):
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = 2
				continue
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		started := time.Now()
		cls, err := c.classifier.Classify(callCtx, report.Text)
		cancel()
		c.metrics.ObservePortCall("classifier", "classify", started)
		if err == nil {
			return cls, false
		}

		lastErr = err
		kind := classifierErrorKind(err)
		c.metrics.ClassifierError(kind)
		c.logger.Warn("triage classify attempt failed",
			zap.String("reporter", report.ReporterID),
			zap.Int("attempt", attempt),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}

	c.metrics.DegradedClassification()
	observability.AddEvent(ctx, "degraded_classification")
	c.logger.Warn("degraded_classification", zap.String("reporter", report.ReporterID), zap.Error(lastErr))
	return domain.FallbackClassification(), true
}

func classifierErrorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrClassifierMalformed):
		return "malformed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "unavailable"
	}
}

// openSession must be called with the reporter lock held.
func (c *Coordinator) openSession(report domain.Report, cls domain.Classification) *session {
	reporterID := report.ReporterID
	c.supersede(reporterID)

	now := c.clock.Now()
	s := &session{
		id:             uuid.NewString(),
		report:         report,
		classification: cls,
		createdAt:      now,
		deadline:       now.Add(c.window),
	}
	s.timer = c.clock.AfterFunc(c.window, func() { c.expire(reporterID, s.id) })

	c.mu.Lock()
	c.sessions[reporterID] = s
	c.mu.Unlock()

	c.logger.Info("triage session opened",
		zap.String("reporter", reporterID),
		zap.String("session", s.id),
		zap.Time("deadline", s.deadline),
	)
	return s
}

// supersede drops the reporter's current session, if any. Caller holds the
// reporter lock.
func (c *Coordinator) supersede(reporterID string) {
	c.mu.Lock()
	prev := c.sessions[reporterID]
	delete(c.sessions, reporterID)
	c.mu.Unlock()

	if prev == nil {
		return
	}
	prev.timer.Stop()
	if !prev.resolved {
		c.logger.Info("triage session superseded", zap.String("reporter", reporterID), zap.String("session", prev.id))
	}
}

func (c *Coordinator) current(reporterID, sessionID string) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sessions[reporterID]
	if s == nil || (sessionID != "" && s.id != sessionID) {
		return nil
	}
	return s
}

func (c *Coordinator) remove(reporterID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.sessions[reporterID]; s != nil && s.id == sessionID {
		delete(c.sessions, reporterID)
	}
}

// expire is the session timer callback. It re-checks the session under the
// reporter lock so a timer that lost a race with confirm or supersede does
// nothing.
func (c *Coordinator) expire(reporterID, sessionID string) {
	unlock := c.locks.Lock(reporterID)

	c.mu.Lock()
	s := c.sessions[reporterID]
	if s == nil || s.id != sessionID {
		c.mu.Unlock()
		unlock()
		return
	}
	delete(c.sessions, reporterID)
	handler := c.onExpire
	c.mu.Unlock()
	unlock()

	if s.resolved {
		return
	}

	c.metrics.SessionExpired()
	c.metrics.ObserveOutcome(string(domain.OutcomeExpired))
	c.logger.Info("triage session expired", zap.String("reporter", reporterID), zap.String("session", sessionID))
	if handler != nil {
		handler(Expiry{
			ReporterID:     reporterID,
			SessionID:      sessionID,
			ReportText:     s.report.Text,
			Classification: s.classification,
		})
	}
}

func (c *Coordinator) rememberOffer(report domain.Report, cls domain.Classification) *offer {
	reporterID := report.ReporterID
	o := &offer{id: uuid.NewString(), report: report, classification: cls}
	o.timer = c.clock.AfterFunc(c.retention, func() { c.dropOffer(reporterID, o.id) })

	c.mu.Lock()
	c.offers[reporterID] = o
	c.mu.Unlock()
	return o
}

func (c *Coordinator) forgetOffer(reporterID string) {
	c.mu.Lock()
	o := c.offers[reporterID]
	delete(c.offers, reporterID)
	c.mu.Unlock()
	if o != nil {
		o.timer.Stop()
	}
}

func (c *Coordinator) dropOffer(reporterID, offerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o := c.offers[reporterID]; o != nil && o.id == offerID {
		delete(c.offers, reporterID)
	}
}

func (c *Coordinator) finish(span trace.Span, out domain.Outcome) domain.Outcome {
	span.SetAttributes(attribute.String("triage.outcome", string(out.Kind)))
	observability.EndSpan(span, out.Err)
	c.metrics.ObserveOutcome(string(out.Kind))
	return out
}
