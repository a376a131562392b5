package triage

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"supportbot/internal/domain"
)

// createOrReuse opens a ticket for s unless the reporter already has an open
// ticket of the same category inside the dedup window. No local record is
// written when the tracker refuses the ticket.
func (c *Coordinator) createOrReuse(ctx context.Context, s *session) (domain.TicketRef, bool, error) {
	if ref, ok := c.findDuplicate(ctx, s); ok {
		return ref, true, nil
	}

	req := domain.TicketRequest{
		Category:   s.classification.Category,
		Severity:   s.classification.Severity,
		Summary:    s.report.Text,
		ReporterID: s.report.ReporterID,
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	started := time.Now()
	remote, err := c.tracker.Create(callCtx, req)
	cancel()
	c.metrics.ObservePortCall("tracker", "create", started)
	if err != nil {
		return domain.TicketRef{}, false, err
	}

	status := remote.Status
	if status == "" || status == domain.StatusUnknown {
		status = domain.StatusOpen
	}
	now := c.clock.Now()
	rec := domain.TicketRecord{
		ReporterID:      s.report.ReporterID,
		RemoteID:        remote.ID,
		Category:        s.classification.Category,
		Severity:        s.classification.Severity,
		SummaryText:     s.report.Text,
		LocalCreatedAt:  now,
		LastKnownStatus: status,
		UpdatedAt:       now,
	}
	if err := c.store.Upsert(ctx, rec); err != nil {
		// The ticket exists remotely; status lookups will backfill it.
		c.logger.Error("triage shadow upsert failed",
			zap.String("reporter", rec.ReporterID),
			zap.String("ticket", rec.RemoteID),
			zap.Error(err),
		)
	}

	return domain.TicketRef{
		ID:       remote.ID,
		Status:   status,
		Severity: s.classification.Severity,
		Category: s.classification.Category,
	}, false, nil
}

func (c *Coordinator) findDuplicate(ctx context.Context, s *session) (domain.TicketRef, bool) {
	if c.dedupWindow <= 0 {
		return domain.TicketRef{}, false
	}
	reporterID := s.report.ReporterID
	since := c.clock.Now().Add(-c.dedupWindow)
	recs, err := c.store.ListRecentByCategory(ctx, reporterID, s.classification.Category, since)
	if err != nil {
		c.logger.Warn("triage dedup lookup failed", zap.String("reporter", reporterID), zap.Error(err))
		return domain.TicketRef{}, false
	}

	for _, rec := range recs {
		status := rec.LastKnownStatus

		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		started := time.Now()
		remote, err := c.tracker.Fetch(callCtx, rec.RemoteID)
		cancel()
		c.metrics.ObservePortCall("tracker", "fetch", started)

		switch {
		case err == nil && (remote.Status == "" || remote.Status == domain.StatusUnknown):
			c.logger.Debug("triage dedup got unrecognised remote status, using last known status",
				zap.String("ticket", rec.RemoteID),
				zap.String("last_known", string(status)),
			)
		case err == nil:
			if remote.Status != status {
				rec.LastKnownStatus = remote.Status
				rec.UpdatedAt = c.clock.Now()
				if err := c.store.Upsert(ctx, rec); err != nil {
					c.logger.Warn("triage dedup status update failed", zap.String("ticket", rec.RemoteID), zap.Error(err))
				}
			}
			status = remote.Status
		case errors.Is(err, domain.ErrTicketNotFound):
			continue
		default:
			c.logger.Debug("triage dedup refresh failed, using last known status",
				zap.String("ticket", rec.RemoteID),
				zap.Error(err),
			)
		}

		if status.IsOpen() {
			c.logger.Info("triage reusing open ticket",
				zap.String("reporter", reporterID),
				zap.String("ticket", rec.RemoteID),
				zap.String("category", string(rec.Category)),
			)
			return domain.TicketRef{
				ID:       rec.RemoteID,
				Status:   status,
				Severity: rec.Severity,
				Category: rec.Category,
			}, true
		}
	}
	return domain.TicketRef{}, false
}
