package domain

import (
	"fmt"
	"strings"
	"time"
)

type Category string

const (
	CategoryDetergent  Category = "detergent"
	CategoryDrainage   Category = "drainage"
	CategoryMechanical Category = "mechanical"
	CategoryDoor       Category = "door"
	CategoryElectrical Category = "electrical"
	CategoryOther      Category = "other"
)

var Categories = []Category{
	CategoryDetergent,
	CategoryDrainage,
	CategoryMechanical,
	CategoryDoor,
	CategoryElectrical,
	CategoryOther,
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Label is the capitalized form used in tracker summaries and chat replies.
func (c Category) Label() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, nil
	case SeverityMedium:
		return SeverityMedium, nil
	case SeverityHigh:
		return SeverityHigh, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	}
	return 0
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.rank() >= other.rank()
}

type Action string

const (
	ActionTroubleshoot Action = "troubleshoot"
	ActionEscalate     Action = "escalate"
)

func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "troubleshoot", "provide_solution":
		return ActionTroubleshoot, nil
	case "escalate", "create_ticket":
		return ActionEscalate, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Classification is the structured result of classifying one report.
// Action is advisory until the triage policy has been applied.
type Classification struct {
	Category Category
	Severity Severity
	Action   Action
	Guidance []string
	Summary  string
}

// FallbackClassification is used when the classifier cannot be reached or
// keeps returning garbage. It always leads to an escalation offer.
func FallbackClassification() Classification {
	return Classification{
		Category: CategoryOther,
		Severity: SeverityMedium,
		Action:   ActionEscalate,
	}
}

type Report struct {
	ReporterID string
	Text       string
	ReceivedAt time.Time
}
