package domain

import "testing"

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want TicketStatus
	}{
		{"new", StatusOpen},
		{" Feedback ", StatusOpen},
		{"acknowledged", StatusOpen},
		{"confirmed", StatusOpen},
		{"assigned", StatusInProgress},
		{"resolved", StatusResolved},
		{"CLOSED", StatusClosed},
		{"weird", StatusUnknown},
		{"", StatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeStatus(tt.in); got != tt.want {
				t.Fatalf("NormalizeStatus(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTicketStatusIsOpen(t *testing.T) {
	if !StatusOpen.IsOpen() || !StatusInProgress.IsOpen() {
		t.Fatal("open and in_progress must count as open")
	}
	for _, s := range []TicketStatus{StatusResolved, StatusClosed, StatusUnknown} {
		if s.IsOpen() {
			t.Fatalf("%q must not count as open", s)
		}
	}
}

func TestParseEnums(t *testing.T) {
	if c, err := ParseCategory(" Electrical "); err != nil || c != CategoryElectrical {
		t.Fatalf("ParseCategory = %q, %v", c, err)
	}
	if _, err := ParseCategory("cleaning"); err == nil {
		t.Fatal("expected error for unknown category")
	}
	if s, err := ParseSeverity("HIGH"); err != nil || s != SeverityHigh {
		t.Fatalf("ParseSeverity = %q, %v", s, err)
	}
	if _, err := ParseSeverity("urgent"); err == nil {
		t.Fatal("expected error for unknown severity")
	}
	if a, err := ParseAction("create_ticket"); err != nil || a != ActionEscalate {
		t.Fatalf("ParseAction(create_ticket) = %q, %v", a, err)
	}
	if a, err := ParseAction("troubleshoot"); err != nil || a != ActionTroubleshoot {
		t.Fatalf("ParseAction(troubleshoot) = %q, %v", a, err)
	}
	if _, err := ParseAction(""); err == nil {
		t.Fatal("expected error for empty action")
	}
}

func TestSeverityAtLeast(t *testing.T) {
	if !SeverityHigh.AtLeast(SeverityMedium) {
		t.Fatal("high should be at least medium")
	}
	if SeverityLow.AtLeast(SeverityMedium) {
		t.Fatal("low should not be at least medium")
	}
}

func TestFallbackClassification(t *testing.T) {
	c := FallbackClassification()
	if c.Category != CategoryOther || c.Severity != SeverityMedium || c.Action != ActionEscalate {
		t.Fatalf("unexpected fallback: %+v", c)
	}
}

func TestCategoryLabel(t *testing.T) {
	if got := CategoryDoor.Label(); got != "Door" {
		t.Fatalf("Label() = %q", got)
	}
}
