package domain

import (
	"strings"
	"time"
)

type TicketStatus string

const (
	StatusOpen       TicketStatus = "open"
	StatusInProgress TicketStatus = "in_progress"
	StatusResolved   TicketStatus = "resolved"
	StatusClosed     TicketStatus = "closed"
	StatusUnknown    TicketStatus = "unknown"
)

// NormalizeStatus maps tracker status names onto the statuses the bot reasons about.
func NormalizeStatus(status string) TicketStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "new", "open", "feedback", "acknowledged", "confirmed":
		return StatusOpen
	case "assigned", "in progress", "in_progress":
		return StatusInProgress
	case "resolved":
		return StatusResolved
	case "closed":
		return StatusClosed
	default:
		return StatusUnknown
	}
}

func (s TicketStatus) IsOpen() bool {
	return s == StatusOpen || s == StatusInProgress
}

func (s TicketStatus) Label() string {
	switch s {
	case StatusOpen:
		return "Open"
	case StatusInProgress:
		return "In progress"
	case StatusResolved:
		return "Resolved"
	case StatusClosed:
		return "Closed"
	}
	return "Unknown"
}

// TicketRecord is the local shadow of a remote ticket, keyed by (ReporterID, RemoteID).
type TicketRecord struct {
	ReporterID      string
	RemoteID        string
	Category        Category
	Severity        Severity
	SummaryText     string
	LocalCreatedAt  time.Time
	LastKnownStatus TicketStatus
	UpdatedAt       time.Time
}

// TicketRequest is what the tracker needs to open a ticket.
type TicketRequest struct {
	Category   Category
	Severity   Severity
	Summary    string
	ReporterID string
}

// RemoteTicket is the tracker's view of a ticket. ReporterID is empty when
// the tracker copy carries no reporter marker.
type RemoteTicket struct {
	ID         string
	Status     TicketStatus
	Category   Category
	Severity   Severity
	Summary    string
	ReporterID string
	CreatedAt  time.Time
}

type TicketRef struct {
	ID       string
	Status   TicketStatus
	Severity Severity
	Category Category
}
