package mantis

import (
	"strings"

	"supportbot/internal/domain"
)

type named struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type issue struct {
	ID                    int64   `json:"id,omitempty"`
	Summary               string  `json:"summary"`
	Description           string  `json:"description,omitempty"`
	AdditionalInformation string  `json:"additional_information,omitempty"`
	Project               *named  `json:"project,omitempty"`
	Category              *named  `json:"category,omitempty"`
	Severity              *named  `json:"severity,omitempty"`
	Status                *named  `json:"status,omitempty"`
	Tags                  []named `json:"tags,omitempty"`
	CreatedAt             string  `json:"created_at,omitempty"`
}

type createResponse struct {
	Issue issue `json:"issue"`
}

type issuesResponse struct {
	Issues []issue `json:"issues"`
}

const (
	reporterMarker = "Chat User ID: "
	categoryTag    = "category:"
)

// severityName maps the bot's severity onto Mantis severity names.
func severityName(s domain.Severity) string {
	switch s {
	case domain.SeverityLow:
		return "trivial"
	case domain.SeverityHigh:
		return "major"
	default:
		return "minor"
	}
}

func severityFromName(name string) domain.Severity {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "feature", "trivial", "text", "tweak":
		return domain.SeverityLow
	case "major", "crash", "block":
		return domain.SeverityHigh
	default:
		return domain.SeverityMedium
	}
}

func reporterLine(reporterID string) string {
	return reporterMarker + reporterID
}

// reporterFromInfo extracts the chat user id written by reporterLine.
func reporterFromInfo(info string) string {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, reporterMarker) {
			return strings.TrimSpace(strings.TrimPrefix(line, reporterMarker))
		}
	}
	return ""
}

func categoryFromTags(tags []named) domain.Category {
	for _, tag := range tags {
		if !strings.HasPrefix(tag.Name, categoryTag) {
			continue
		}
		if c, err := domain.ParseCategory(strings.TrimPrefix(tag.Name, categoryTag)); err == nil {
			return c
		}
	}
	return domain.CategoryOther
}

func buildSummary(category domain.Category, text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) > 80 {
		text = string(runes[:80]) + "..."
	}
	return category.Label() + " issue: " + text
}
