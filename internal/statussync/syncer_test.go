package statussync

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"supportbot/internal/clock"
	"supportbot/internal/domain"
	"supportbot/internal/storage/sqlite"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeTracker struct {
	mu      sync.Mutex
	tickets map[string]domain.TicketStatus
}

func (f *fakeTracker) Fetch(ctx context.Context, remoteID string) (domain.RemoteTicket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.tickets[remoteID]
	if !ok {
		return domain.RemoteTicket{}, domain.ErrTicketNotFound
	}
	return domain.RemoteTicket{ID: remoteID, Status: status}, nil
}

type notification struct {
	rec      domain.TicketRecord
	previous domain.TicketStatus
}

type fakeNotifier struct {
	sent chan notification
}

func (f *fakeNotifier) NotifyStatusChange(ctx context.Context, rec domain.TicketRecord, previous domain.TicketStatus) error {
	f.sent <- notification{rec: rec, previous: previous}
	return nil
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "sync-test.db"))
	if err != nil {
		t.Fatalf("sqlite.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, store *sqlite.Store, reporter, id string, status domain.TicketStatus) {
	t.Helper()
	err := store.Upsert(context.Background(), domain.TicketRecord{
		ReporterID:      reporter,
		RemoteID:        id,
		Category:        domain.CategoryMechanical,
		Severity:        domain.SeverityMedium,
		LocalCreatedAt:  epoch,
		LastKnownStatus: status,
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
}

func TestSyncOnceNotifiesOnChange(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, "U1", "101", domain.StatusOpen)
	seed(t, store, "U1", "102", domain.StatusInProgress)
	seed(t, store, "U2", "103", domain.StatusOpen)
	seed(t, store, "U2", "104", domain.StatusClosed)

	tracker := &fakeTracker{tickets: map[string]domain.TicketStatus{
		"101": domain.StatusResolved,
		"102": domain.StatusInProgress,
		"104": domain.StatusOpen,
	}}
	notifier := &fakeNotifier{sent: make(chan notification, 10)}
	s := New(store, tracker, notifier, Options{Clock: clock.Fake(epoch.Add(time.Hour))})

	result, err := s.SyncOnce(context.Background())
	if err != nil {
		t.Fatalf("SyncOnce failed: %v", err)
	}
	want := Result{Checked: 3, Changed: 1, Failed: 1, Notified: 1}
	if result != want {
		t.Fatalf("result = %+v, want %+v", result, want)
	}

	n := <-notifier.sent
	if n.rec.RemoteID != "101" || n.rec.ReporterID != "U1" {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if n.previous != domain.StatusOpen || n.rec.LastKnownStatus != domain.StatusResolved {
		t.Fatalf("unexpected transition %q -> %q", n.previous, n.rec.LastKnownStatus)
	}

	rec, err := store.GetByID(context.Background(), "U1", "101")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if rec.LastKnownStatus != domain.StatusResolved {
		t.Fatalf("stored status = %q, want resolved", rec.LastKnownStatus)
	}
	if !rec.UpdatedAt.Equal(epoch.Add(time.Hour)) {
		t.Fatalf("UpdatedAt = %v", rec.UpdatedAt)
	}

	// A second pass has nothing left to report.
	result, err = s.SyncOnce(context.Background())
	if err != nil {
		t.Fatalf("SyncOnce failed: %v", err)
	}
	if result.Changed != 0 || result.Checked != 2 {
		t.Fatalf("second pass = %+v", result)
	}
}

func TestStartRunsOnSchedule(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, "U1", "101", domain.StatusOpen)
	tracker := &fakeTracker{tickets: map[string]domain.TicketStatus{"101": domain.StatusClosed}}
	notifier := &fakeNotifier{sent: make(chan notification, 1)}
	fake := clock.Fake(epoch)
	s := New(store, tracker, notifier, Options{Clock: fake})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx, "@every 30m"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	fake.WaitForTimers(1)
	fake.Advance(30 * time.Minute)

	select {
	case n := <-notifier.sent:
		if n.rec.LastKnownStatus != domain.StatusClosed {
			t.Fatalf("unexpected notification: %+v", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled sync did not run")
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(newTestStore(t), &fakeTracker{}, nil, Options{})
	if err := s.Start(context.Background(), "every now and then"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if err := s.Start(context.Background(), ""); err != nil {
		t.Fatalf("empty schedule should disable, got %v", err)
	}
}

func TestResultString(t *testing.T) {
	got := Result{Checked: 4, Changed: 1, Notified: 1, Failed: 2}.String()
	if got != "4 checked, 1 changed, 1 notified, 2 failed" {
		t.Fatalf("String() = %q", got)
	}
}
