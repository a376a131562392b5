package slackbot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"supportbot/internal/domain"
	"supportbot/internal/status"
	"supportbot/internal/triage"
)

const (
	actionEscalateRequest = "triage_escalate_request"
	actionEscalateConfirm = "triage_escalate_confirm"
	actionEscalateCancel  = "triage_escalate_cancel"

	ticketListLimit = 5
)

// Message is a rendered reply: Block Kit blocks plus the plain-text fallback
// Slack shows in notifications.
type Message struct {
	Text   string
	Blocks []slack.Block
}

func (m Message) options() []slack.MsgOption {
	opts := []slack.MsgOption{slack.MsgOptionText(m.Text, false)}
	if len(m.Blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(m.Blocks...))
	}
	return opts
}

// Renderer turns triage outcomes and ticket views into Slack messages.
// Command is the slash command shown in hints, e.g. "/wm".
type Renderer struct {
	Command string
}

func (r Renderer) command() string {
	if r.Command == "" {
		return "/wm"
	}
	return r.Command
}

func (r Renderer) Outcome(out domain.Outcome) Message {
	switch out.Kind {
	case domain.OutcomeTroubleshoot:
		return r.troubleshoot(out)
	case domain.OutcomeAwaitingConfirmation:
		return r.awaitingConfirmation(out)
	case domain.OutcomeTicketCreated:
		return r.ticketCreated(out)
	case domain.OutcomeTicketCreationFailed:
		text := "❌ Sorry, I couldn't create a support ticket right now. You can try again until the offer expires."
		return Message{
			Text: text,
			Blocks: []slack.Block{
				section(text),
				slack.NewActionBlock("triage_retry",
					button(actionEscalateConfirm, out.SessionID, "Try again", slack.StylePrimary),
					button(actionEscalateCancel, out.SessionID, "Cancel", ""),
				),
			},
		}
	case domain.OutcomeExpired:
		return plain("⌛ That offer has expired. Describe the problem again if you still need help.")
	case domain.OutcomeNothingToEscalate:
		return plain("There's nothing to escalate right now. Describe your washing machine problem and I'll take a look.")
	case domain.OutcomeEmptyReport:
		return plain("Please describe the problem, for example: _My washing machine won't drain water_.")
	case domain.OutcomeCancelled:
		return plain("Okay, no ticket was created. Send me a new message any time.")
	}
	return plain("❌ Sorry, I encountered an error. Please try again or contact support directly.")
}

func (r Renderer) troubleshoot(out domain.Outcome) Message {
	cls := out.Classification
	blocks := []slack.Block{
		header("🔧 Troubleshooting Steps"),
		section(numbered(out.Guidance)),
		fields(
			"*Category:*\n"+cls.Category.Label(),
			"*Severity:*\n"+label(string(cls.Severity)),
		),
		slack.NewActionBlock("triage_troubleshoot",
			button(actionEscalateRequest, out.SessionID, "🎫 Still broken? Create a ticket", ""),
		),
		contextLine("If these steps don't solve your problem, I can open a support ticket."),
	}
	return Message{Text: "Troubleshooting steps for your " + strings.ToLower(cls.Category.Label()) + " issue", Blocks: blocks}
}

func (r Renderer) awaitingConfirmation(out domain.Outcome) Message {
	cls := out.Classification
	intro := fmt.Sprintf("This looks like a *%s* issue with *%s* severity. A technician should take a look.",
		strings.ToLower(cls.Category.Label()), string(cls.Severity))
	if out.Degraded {
		intro = "I couldn't analyse your report automatically, so I suggest handing it to a technician."
	}

	blocks := []slack.Block{
		header("🎫 Create a support ticket?"),
		section(intro),
	}
	if len(out.Guidance) > 0 {
		blocks = append(blocks, section("*While you wait:*\n"+numbered(out.Guidance)))
	}
	blocks = append(blocks,
		slack.NewActionBlock("triage_confirm",
			button(actionEscalateConfirm, out.SessionID, "Create ticket", slack.StylePrimary),
			button(actionEscalateCancel, out.SessionID, "No thanks", ""),
		),
	)
	if !out.ExpiresAt.IsZero() {
		blocks = append(blocks, contextLine("This offer expires "+slackTime(out.ExpiresAt, "{time}")+"."))
	}
	return Message{Text: "Create a support ticket for your " + strings.ToLower(cls.Category.Label()) + " issue?", Blocks: blocks}
}

func (r Renderer) ticketCreated(out domain.Outcome) Message {
	t := out.Ticket
	if t == nil {
		return plain("🎫 Your support ticket has been created.")
	}
	title := "🎫 Support Ticket Created"
	intro := "Your support ticket has been created successfully!"
	if out.Reused {
		title = "🎫 You already have an open ticket"
		intro = "You reported a similar problem recently, so I linked this to your existing ticket instead of opening a new one."
	}
	blocks := []slack.Block{
		header(title),
		section(intro),
		fields(
			"*Ticket ID:*\n`"+t.ID+"`",
			"*Status:*\n"+t.Status.Label(),
			"*Severity:*\n"+label(string(t.Severity)),
		),
		contextLine(fmt.Sprintf("Use `%s status %s` to check ticket status.", r.command(), t.ID)),
	}
	return Message{Text: fmt.Sprintf("Support ticket %s: %s", t.ID, t.Status.Label()), Blocks: blocks}
}

// Ticket renders a single status lookup.
func (r Renderer) Ticket(view status.TicketView) Message {
	statusText := view.LastKnownStatus.Label()
	if view.Stale {
		statusText += " (last known)"
	}
	blocks := []slack.Block{
		header("🎫 Ticket Status: " + view.RemoteID),
	}
	if view.SummaryText != "" {
		blocks = append(blocks, section("*Summary:*\n"+escape(truncate(view.SummaryText, 300))))
	}
	blocks = append(blocks, fields(
		"*Status:*\n"+statusText,
		"*Severity:*\n"+label(string(view.Severity)),
		"*Category:*\n"+view.Category.Label(),
		"*Created:*\n"+slackTime(view.LocalCreatedAt, "{date_short_pretty} {time}"),
	))
	if view.Stale {
		blocks = append(blocks, contextLine("⚠️ The ticket tracker is unreachable right now, so this is the last status I saw."))
	}
	return Message{Text: fmt.Sprintf("Ticket %s: %s", view.RemoteID, statusText), Blocks: blocks}
}

// TicketList renders the newest few of views.
func (r Renderer) TicketList(views []status.TicketView) Message {
	if len(views) == 0 {
		return plain("📋 You don't have any support tickets yet.")
	}
	blocks := []slack.Block{
		header("📋 Your Support Tickets"),
		section(fmt.Sprintf("Found %d ticket(s)", len(views))),
	}
	for i, v := range views {
		if i >= ticketListLimit {
			break
		}
		statusText := v.LastKnownStatus.Label()
		if v.Stale {
			statusText += " (last known)"
		}
		blocks = append(blocks, slack.NewDividerBlock(), section(fmt.Sprintf(
			"*Ticket %s*\n*Issue:* %s\n*Status:* %s\n*Severity:* %s\n*Created:* %s",
			v.RemoteID,
			escape(truncate(v.SummaryText, 50)),
			statusText,
			label(string(v.Severity)),
			slackTime(v.LocalCreatedAt, "{date_num} {time}"),
		)))
	}
	if len(views) > ticketListLimit {
		blocks = append(blocks, contextLine(fmt.Sprintf("Showing latest %d tickets out of %d total", ticketListLimit, len(views))))
	}
	return Message{Text: fmt.Sprintf("You have %d support ticket(s)", len(views)), Blocks: blocks}
}

// StatusError explains a failed status lookup. ticketID is empty for
// "latest ticket" lookups.
func (r Renderer) StatusError(err error, ticketID string) Message {
	switch {
	case errors.Is(err, domain.ErrNoTicketsFound) && ticketID == "":
		return plain(fmt.Sprintf("❌ No ticket ID provided and no recent tickets found. Use `%s tickets` to see all your tickets.", r.command()))
	case errors.Is(err, domain.ErrNoTicketsFound):
		return plain("📋 You don't have any support tickets yet.")
	case errors.Is(err, domain.ErrTicketNotFound), errors.Is(err, domain.ErrTicketAccessDenied):
		return plain(fmt.Sprintf("❌ Couldn't find ticket `%s` or access was denied.", escape(ticketID)))
	}
	return plain("❌ Sorry, I couldn't look that up right now. Please try again in a moment.")
}

func (r Renderer) Help(name string) Message {
	greeting := "I'm here to help with washing machine problems!"
	if name != "" {
		greeting = fmt.Sprintf("Hi %s! I'm here to help with washing machine problems.", escape(name))
	}
	cmd := r.command()
	blocks := []slack.Block{
		header("🔧 Washing Machine Support Bot"),
		section(greeting + "\n\nJust describe your issue and I'll either:\n" +
			"• Provide troubleshooting steps\n" +
			"• Create a support ticket for complex issues\n\n" +
			"*Example:* _My washing machine won't drain water_"),
		section(fmt.Sprintf("*Commands*\n"+
			"`%[1]s status [ticket_id]` - Check your latest ticket, or a specific one\n"+
			"`%[1]s tickets` - View all your tickets\n"+
			"`%[1]s report <problem>` - Report a problem from any channel\n"+
			"`%[1]s help` - Show this help message", cmd)),
		contextLine("I can help with detergent dispensing, drainage, strange noises, door or lid issues, error codes and more."),
	}
	return Message{Text: "Washing Machine Support Bot help", Blocks: blocks}
}

func (r Renderer) Expiry(e triage.Expiry) Message {
	text := fmt.Sprintf("⌛ Your support ticket offer for _%s_ expired without confirmation. Describe the problem again if you still need help.",
		escape(truncate(e.ReportText, 80)))
	return plain(text)
}

func (r Renderer) StatusChange(rec domain.TicketRecord, previous domain.TicketStatus) Message {
	text := fmt.Sprintf("🔔 Ticket `%s` changed from *%s* to *%s*.", rec.RemoteID, previous.Label(), rec.LastKnownStatus.Label())
	blocks := []slack.Block{section(text)}
	if rec.SummaryText != "" {
		blocks = append(blocks, contextLine(escape(truncate(rec.SummaryText, 80))))
	}
	if !rec.LastKnownStatus.IsOpen() {
		blocks = append(blocks, contextLine("If the problem comes back, just describe it to me again."))
	}
	return Message{Text: fmt.Sprintf("Ticket %s is now %s", rec.RemoteID, rec.LastKnownStatus.Label()), Blocks: blocks}
}

func plain(text string) Message {
	return Message{Text: text, Blocks: []slack.Block{section(text)}}
}

func header(text string) slack.Block {
	return slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, text, true, false))
}

func section(text string) slack.Block {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

func fields(texts ...string) slack.Block {
	objs := make([]*slack.TextBlockObject, 0, len(texts))
	for _, t := range texts {
		objs = append(objs, slack.NewTextBlockObject(slack.MarkdownType, t, false, false))
	}
	return slack.NewSectionBlock(nil, objs, nil)
}

func contextLine(text string) slack.Block {
	return slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, text, false, false))
}

func button(actionID, value, text string, style slack.Style) *slack.ButtonBlockElement {
	b := slack.NewButtonBlockElement(actionID, value, slack.NewTextBlockObject(slack.PlainTextType, text, true, false))
	if style != "" {
		b = b.WithStyle(style)
	}
	return b
}

func numbered(steps []string) string {
	if len(steps) == 0 {
		return "_No steps available._"
	}
	var b strings.Builder
	for i, s := range steps {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, escape(s))
	}
	return b.String()
}

func label(s string) string {
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// slackTime formats t with a Slack date token so every reader sees their
// own timezone. The fallback is UTC.
func slackTime(t time.Time, format string) string {
	if t.IsZero() {
		return "unknown"
	}
	return fmt.Sprintf("<!date^%d^%s|%s>", t.Unix(), format, t.UTC().Format("2006-01-02 15:04 UTC"))
}

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return mrkdwnEscaper.Replace(s)
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
