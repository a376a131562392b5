package slackbot

import (
	"context"
	"strings"
	"testing"

	"supportbot/internal/domain"
	"supportbot/internal/triage"
)

func TestNotifyStatusChangeSendsDM(t *testing.T) {
	api, mock := newMockSlackAPI(t)
	n := NewNotifier(api, Renderer{}, nil)

	err := n.NotifyStatusChange(context.Background(), domain.TicketRecord{
		ReporterID:      "U7",
		RemoteID:        "31",
		LastKnownStatus: domain.StatusInProgress,
	}, domain.StatusOpen)
	if err != nil {
		t.Fatalf("NotifyStatusChange failed: %v", err)
	}

	if open := mock.only(t, "conversations.open"); open.Get("users") != "U7" {
		t.Fatalf("opened DM with %q", open.Get("users"))
	}
	msg := mock.only(t, "chat.postMessage")
	if msg.Get("channel") != "D_U7" || !strings.Contains(msg.Get("text"), "Ticket 31 is now In progress") {
		t.Fatalf("unexpected DM: channel=%q text=%q", msg.Get("channel"), msg.Get("text"))
	}
}

func TestNotifyExpiredSendsDM(t *testing.T) {
	api, mock := newMockSlackAPI(t)
	NewNotifier(api, Renderer{}, nil).NotifyExpired(triage.Expiry{ReporterID: "U3", SessionID: "s1", ReportText: "door is stuck"})

	msg := mock.only(t, "chat.postMessage")
	if msg.Get("channel") != "D_U3" || !strings.Contains(msg.Get("text"), "door is stuck") {
		t.Fatalf("unexpected DM: channel=%q text=%q", msg.Get("channel"), msg.Get("text"))
	}
}
