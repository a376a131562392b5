package domain

import "errors"

var (
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	ErrClassifierMalformed   = errors.New("classifier response malformed")

	ErrTicketCreateFailed = errors.New("ticket create failed")
	ErrTrackerUnavailable = errors.New("ticket tracker unavailable")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrTicketAccessDenied = errors.New("ticket belongs to another reporter")
	ErrNoTicketsFound     = errors.New("no tickets found")
)
