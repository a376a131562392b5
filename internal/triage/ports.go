package triage

import (
	"context"
	"time"

	"supportbot/internal/domain"
)

type Classifier interface {
	Classify(ctx context.Context, text string) (domain.Classification, error)
}

// Tracker is the remote ticket system.
type Tracker interface {
	Create(ctx context.Context, req domain.TicketRequest) (domain.RemoteTicket, error)
	Fetch(ctx context.Context, remoteID string) (domain.RemoteTicket, error)
}

// Store is the local shadow of created tickets.
type Store interface {
	Upsert(ctx context.Context, rec domain.TicketRecord) error
	ListRecentByCategory(ctx context.Context, reporterID string, category domain.Category, since time.Time) ([]domain.TicketRecord, error)
}

// Expiry describes an escalation offer that lapsed without confirmation.
type Expiry struct {
	ReporterID     string
	SessionID      string
	ReportText     string
	Classification domain.Classification
}
