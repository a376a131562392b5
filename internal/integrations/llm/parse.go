package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"supportbot/internal/domain"
)

type classificationPayload struct {
	Category string          `json:"category"`
	Severity string          `json:"severity"`
	Action   string          `json:"action"`
	Guidance json.RawMessage `json:"guidance"`
	Summary  string          `json:"summary"`
	// Older prompts returned a single "response" string instead of guidance.
	Response string `json:"response"`
}

// ParseClassification validates a raw classifier reply against the
// classification shape. Any missing or unknown enum is an error.
func ParseClassification(responseText string) (domain.Classification, error) {
	body := extractJSONObject(responseText)
	if body == "" {
		return domain.Classification{}, fmt.Errorf("no JSON object in response: %q", truncate(responseText, 200))
	}

	var p classificationPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return domain.Classification{}, fmt.Errorf("parsing classifier response: %w (response: %s)", err, truncate(body, 200))
	}

	category, err := domain.ParseCategory(p.Category)
	if err != nil {
		return domain.Classification{}, err
	}
	severity, err := domain.ParseSeverity(p.Severity)
	if err != nil {
		return domain.Classification{}, err
	}
	action, err := domain.ParseAction(p.Action)
	if err != nil {
		return domain.Classification{}, err
	}
	guidance, err := parseGuidance(p.Guidance)
	if err != nil {
		return domain.Classification{}, err
	}
	if len(guidance) == 0 {
		guidance = splitSteps(p.Response)
	}
	if action == domain.ActionTroubleshoot && len(guidance) == 0 {
		return domain.Classification{}, fmt.Errorf("troubleshoot action without guidance")
	}

	return domain.Classification{
		Category: category,
		Severity: severity,
		Action:   action,
		Guidance: guidance,
		Summary:  strings.TrimSpace(p.Summary),
	}, nil
}

// extractJSONObject strips markdown fences and returns the outermost
// {...} span, or "" if there is none.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// parseGuidance accepts a list of strings or a single string.
func parseGuidance(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return cleanSteps(list), nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return splitSteps(single), nil
	}
	return nil, fmt.Errorf("guidance must be a list of strings")
}

func splitSteps(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return cleanSteps(strings.Split(s, "\n"))
}

func cleanSteps(steps []string) []string {
	var out []string
	for _, step := range steps {
		step = strings.TrimSpace(step)
		step = strings.TrimLeft(step, "-•* ")
		step = trimNumbering(step)
		if step != "" {
			out = append(out, step)
		}
	}
	return out
}

// trimNumbering removes a leading "1." or "2)" marker.
func trimNumbering(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
