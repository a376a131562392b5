package domain

import "time"

type OutcomeKind string

const (
	OutcomeTroubleshoot         OutcomeKind = "troubleshoot"
	OutcomeAwaitingConfirmation OutcomeKind = "awaiting_confirmation"
	OutcomeTicketCreated        OutcomeKind = "ticket_created"
	OutcomeTicketCreationFailed OutcomeKind = "ticket_creation_failed"
	OutcomeExpired              OutcomeKind = "expired"
	OutcomeNothingToEscalate    OutcomeKind = "nothing_to_escalate"
	OutcomeEmptyReport          OutcomeKind = "empty_report"
	OutcomeCancelled            OutcomeKind = "cancelled"
)

// Outcome is the typed result of every triage request. Port failures are
// folded into a Kind; callers never see a raw error.
type Outcome struct {
	Kind           OutcomeKind
	Classification Classification
	Guidance       []string
	SessionID      string
	ExpiresAt      time.Time
	Ticket         *TicketRef
	// Reused is set when confirmation matched an existing open ticket.
	Reused bool
	// Degraded is set when the classification is the fallback.
	Degraded bool
	Err      error
}
