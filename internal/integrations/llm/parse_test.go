package llm

import (
	"strings"
	"testing"

	"supportbot/internal/domain"
)

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    domain.Classification
		wantErr string
	}{
		{
			name: "plain json",
			in:   `{"category":"detergent","severity":"low","action":"troubleshoot","guidance":["Clean the drawer","Use less detergent"],"summary":"Detergent not dispensing"}`,
			want: domain.Classification{
				Category: domain.CategoryDetergent,
				Severity: domain.SeverityLow,
				Action:   domain.ActionTroubleshoot,
				Guidance: []string{"Clean the drawer", "Use less detergent"},
				Summary:  "Detergent not dispensing",
			},
		},
		{
			name: "fenced with prose",
			in:   "Here you go:\n```json\n{\"category\":\"Electrical\",\"severity\":\"HIGH\",\"action\":\"escalate\",\"guidance\":[]}\n```",
			want: domain.Classification{
				Category: domain.CategoryElectrical,
				Severity: domain.SeverityHigh,
				Action:   domain.ActionEscalate,
			},
		},
		{
			name: "legacy action and response text",
			in:   `{"category":"drainage","severity":"medium","action":"provide_solution","response":"1. Check the filter\n2) Clear the hose\n- Run a drain cycle"}`,
			want: domain.Classification{
				Category: domain.CategoryDrainage,
				Severity: domain.SeverityMedium,
				Action:   domain.ActionTroubleshoot,
				Guidance: []string{"Check the filter", "Clear the hose", "Run a drain cycle"},
			},
		},
		{
			name: "guidance as a single string",
			in:   `{"category":"door","severity":"low","action":"troubleshoot","guidance":"Close firmly\nWait two minutes"}`,
			want: domain.Classification{
				Category: domain.CategoryDoor,
				Severity: domain.SeverityLow,
				Action:   domain.ActionTroubleshoot,
				Guidance: []string{"Close firmly", "Wait two minutes"},
			},
		},
		{name: "no json", in: "I cannot help with that", wantErr: "no JSON object"},
		{name: "broken json", in: `{"category": "door",`, wantErr: "no JSON object"},
		{name: "bad json body", in: `{"category": door}`, wantErr: "parsing classifier response"},
		{name: "unknown category", in: `{"category":"cleaning","severity":"low","action":"troubleshoot","guidance":["x"]}`, wantErr: "unknown category"},
		{name: "missing severity", in: `{"category":"door","action":"escalate"}`, wantErr: "unknown severity"},
		{name: "unknown action", in: `{"category":"door","severity":"low","action":"ignore"}`, wantErr: "unknown action"},
		{name: "troubleshoot without guidance", in: `{"category":"door","severity":"low","action":"troubleshoot"}`, wantErr: "without guidance"},
		{name: "guidance wrong type", in: `{"category":"door","severity":"low","action":"escalate","guidance":{"a":1}}`, wantErr: "list of strings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClassification(tt.in)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Category != tt.want.Category || got.Severity != tt.want.Severity || got.Action != tt.want.Action || got.Summary != tt.want.Summary {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			if strings.Join(got.Guidance, "|") != strings.Join(tt.want.Guidance, "|") {
				t.Fatalf("guidance = %q, want %q", got.Guidance, tt.want.Guidance)
			}
		})
	}
}

func TestBuildUserPromptListsCategories(t *testing.T) {
	p := buildUserPrompt("  drum is loud  ")
	if !strings.Contains(p, "drum is loud") {
		t.Fatalf("prompt missing report text: %q", p)
	}
	for _, c := range domain.Categories {
		if !strings.Contains(p, string(c)) {
			t.Fatalf("prompt missing category %q", c)
		}
	}
}
