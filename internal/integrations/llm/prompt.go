package llm

import (
	"fmt"
	"strings"

	"supportbot/internal/domain"
)

const classifierSystemPrompt = `You are an expert washing machine support assistant. Classify one user report about a washing machine problem.

Categories:
- detergent: detergent or softener not dispensing, residue, clothes not getting clean
- drainage: water not draining, minor clogs, standing water
- mechanical: noises, spin cycle problems, drum or belt issues
- door: door or lid won't open, close, or lock
- electrical: won't turn on, power loss, tripping breakers, burning smell, sparks
- other: anything else, including leaks, persistent error codes, warranty or installation questions

Severity:
- low: inconvenience, machine still usable
- medium: machine partly unusable
- high: safety risk, flooding, or machine completely unusable

Action:
- troubleshoot: the user can fix it with simple steps
- escalate: needs a technician or support ticket

Respond with JSON only, no prose, exactly this shape:
{
  "category": "detergent|drainage|mechanical|door|electrical|other",
  "severity": "low|medium|high",
  "action": "troubleshoot|escalate",
  "guidance": ["step 1", "step 2"],
  "summary": "one sentence restating the problem"
}

When action is troubleshoot, guidance must list 2 to 6 short, concrete steps in order.
When action is escalate, guidance may be empty or explain what the technician will need.`

func buildUserPrompt(text string) string {
	var b strings.Builder
	b.WriteString("User report:\n")
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n\nAllowed categories: ")
	names := make([]string, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		names = append(names, string(c))
	}
	b.WriteString(strings.Join(names, ", "))
	return b.String()
}

func providerLabel(provider, model string) string {
	return fmt.Sprintf("%s/%s", provider, model)
}
