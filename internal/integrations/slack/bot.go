// Package slackbot is the chat front end: it turns Slack DMs, mentions,
// the /wm command and button clicks into triage and status calls.
package slackbot

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"supportbot/internal/domain"
	"supportbot/internal/status"
)

type Triage interface {
	HandleReport(ctx context.Context, reporterID, text string) domain.Outcome
	RequestEscalation(ctx context.Context, reporterID, offerID string) domain.Outcome
	ConfirmSession(ctx context.Context, reporterID, sessionID string) domain.Outcome
	CancelSession(ctx context.Context, reporterID, sessionID string) domain.Outcome
}

type Status interface {
	Latest(ctx context.Context, reporterID string) (status.TicketView, error)
	ByID(ctx context.Context, reporterID, remoteID string) (status.TicketView, error)
	ListAll(ctx context.Context, reporterID string) ([]status.TicketView, error)
}

type Options struct {
	// Command is the slash command the bot answers to. Defaults to "/wm".
	Command string
	Users   *UserDirectory
	Logger  *zap.Logger
}

type Bot struct {
	api     *slack.Client
	triage  Triage
	status  Status
	render  Renderer
	users   *UserDirectory
	logger  *zap.Logger
	command string

	mu     sync.Mutex
	selfID string
}

func New(api *slack.Client, triage Triage, statusSvc Status, opts Options) *Bot {
	command := opts.Command
	if command == "" {
		command = "/wm"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	users := opts.Users
	if users == nil {
		users = NewUserDirectory(api, nil)
	}
	return &Bot{
		api:     api,
		triage:  triage,
		status:  statusSvc,
		render:  Renderer{Command: command},
		users:   users,
		logger:  logger,
		command: command,
	}
}

// Run connects over Socket Mode and serves events until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if resp, err := b.api.AuthTestContext(ctx); err != nil {
		b.logger.Warn("slack auth test failed", zap.Error(err))
	} else {
		b.setSelfID(resp.UserID)
	}

	client := socketmode.New(b.api)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-client.Events:
				if !ok {
					return
				}
				b.dispatch(ctx, client, evt)
			}
		}
	}()

	b.logger.Info("slack bot connected via socket mode", zap.String("command", b.command))
	return client.RunContext(ctx)
}

func (b *Bot) dispatch(ctx context.Context, client *socketmode.Client, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeSlashCommand:
		client.Ack(*evt.Request)
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			return
		}
		b.logger.Info("slash command received",
			zap.String("command", cmd.Command),
			zap.String("user", cmd.UserID),
			zap.String("channel", cmd.ChannelID),
		)
		go b.handleSlashCommand(ctx, cmd)
	case socketmode.EventTypeEventsAPI:
		client.Ack(*evt.Request)
		event, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		go b.handleEventsAPI(ctx, event)
	case socketmode.EventTypeInteractive:
		client.Ack(*evt.Request)
		callback, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			return
		}
		go b.handleInteraction(ctx, callback)
	case socketmode.EventTypeConnectionError:
		b.logger.Warn("slack socket mode connection error")
	}
}

type replyTarget struct {
	channelID string
	userID    string
	threadTS  string
	ephemeral bool
}

func (b *Bot) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.ChannelType != "im" || ev.BotID != "" || ev.SubType != "" || ev.User == "" || ev.User == b.getSelfID() {
			return
		}
		b.handleMessage(ctx, replyTarget{channelID: ev.Channel, userID: ev.User}, ev.Text)
	case *slackevents.AppMentionEvent:
		if ev.BotID != "" || ev.User == "" {
			return
		}
		thread := ev.ThreadTimeStamp
		if thread == "" {
			thread = ev.TimeStamp
		}
		b.handleMessage(ctx, replyTarget{channelID: ev.Channel, userID: ev.User, threadTS: thread}, stripMentions(ev.Text))
	}
}

func (b *Bot) handleMessage(ctx context.Context, target replyTarget, text string) {
	text = strings.TrimSpace(text)
	if isGreeting(text) {
		b.reply(ctx, target, b.render.Help(b.users.DisplayName(ctx, target.userID)))
		return
	}
	out := b.triage.HandleReport(ctx, target.userID, text)
	b.logOutcome("report", target.userID, out)
	b.reply(ctx, target, b.render.Outcome(out))
}

func (b *Bot) handleSlashCommand(ctx context.Context, cmd slack.SlashCommand) {
	if cmd.Command != b.command {
		return
	}
	target := replyTarget{channelID: cmd.ChannelID, userID: cmd.UserID, ephemeral: true}
	sub, arg := parseCommand(cmd.Text)

	switch sub {
	case "status":
		var (
			view status.TicketView
			err  error
		)
		if arg == "" {
			view, err = b.status.Latest(ctx, cmd.UserID)
		} else {
			view, err = b.status.ByID(ctx, cmd.UserID, arg)
		}
		if err != nil {
			b.logLookupError("status", cmd.UserID, err)
			b.reply(ctx, target, b.render.StatusError(err, arg))
			return
		}
		b.reply(ctx, target, b.render.Ticket(view))
	case "tickets":
		views, err := b.status.ListAll(ctx, cmd.UserID)
		if errors.Is(err, domain.ErrNoTicketsFound) {
			b.reply(ctx, target, b.render.TicketList(nil))
			return
		}
		if err != nil {
			b.logLookupError("tickets", cmd.UserID, err)
			b.reply(ctx, target, b.render.StatusError(err, ""))
			return
		}
		b.reply(ctx, target, b.render.TicketList(views))
	case "report":
		out := b.triage.HandleReport(ctx, cmd.UserID, arg)
		b.logOutcome("report", cmd.UserID, out)
		b.reply(ctx, target, b.render.Outcome(out))
	default:
		b.reply(ctx, target, b.render.Help(b.users.DisplayName(ctx, cmd.UserID)))
	}
}

func (b *Bot) handleInteraction(ctx context.Context, cb slack.InteractionCallback) {
	if cb.Type == slack.InteractionTypeBlockActions {
		b.handleBlockActions(ctx, cb)
	}
}

func (b *Bot) handleBlockActions(ctx context.Context, cb slack.InteractionCallback) {
	if len(cb.ActionCallback.BlockActions) == 0 {
		return
	}
	act := cb.ActionCallback.BlockActions[0]
	channelID := cb.Channel.ID
	if channelID == "" {
		channelID = cb.Container.ChannelID
	}
	userID := cb.User.ID
	value := strings.TrimSpace(act.Value)

	var out domain.Outcome
	switch act.ActionID {
	case actionEscalateRequest:
		out = b.triage.RequestEscalation(ctx, userID, value)
	case actionEscalateConfirm:
		out = b.triage.ConfirmSession(ctx, userID, value)
	case actionEscalateCancel:
		out = b.triage.CancelSession(ctx, userID, value)
	default:
		return
	}
	b.logOutcome(act.ActionID, userID, out)

	msg := b.render.Outcome(out)
	target := replyTarget{
		channelID: channelID,
		userID:    userID,
		threadTS:  cb.Container.ThreadTs,
		ephemeral: cb.Container.IsEphemeral,
	}

	// Settled offers replace the message that carried the buttons. Stale
	// clicks only concern the clicker, who may not be the reporter.
	switch out.Kind {
	case domain.OutcomeTicketCreated, domain.OutcomeTicketCreationFailed, domain.OutcomeCancelled:
		if act.ActionID != actionEscalateRequest && !cb.Container.IsEphemeral && cb.Container.MessageTs != "" {
			_, _, _, err := b.api.UpdateMessageContext(ctx, channelID, cb.Container.MessageTs, msg.options()...)
			if err == nil {
				return
			}
			b.logger.Warn("slack update message failed", zap.String("channel", channelID), zap.Error(err))
		}
	case domain.OutcomeExpired, domain.OutcomeNothingToEscalate:
		target.ephemeral = true
	}
	b.reply(ctx, target, msg)
}

func (b *Bot) reply(ctx context.Context, t replyTarget, m Message) {
	opts := m.options()
	if t.threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(t.threadTS))
	}
	if t.ephemeral {
		if _, err := b.api.PostEphemeralContext(ctx, t.channelID, t.userID, opts...); err != nil {
			b.logger.Error("slack post ephemeral failed", zap.String("channel", t.channelID), zap.String("user", t.userID), zap.Error(err))
		}
		return
	}
	if _, _, err := b.api.PostMessageContext(ctx, t.channelID, opts...); err != nil {
		b.logger.Error("slack post message failed", zap.String("channel", t.channelID), zap.Error(err))
	}
}

func (b *Bot) logOutcome(trigger, userID string, out domain.Outcome) {
	fields := []zap.Field{
		zap.String("trigger", trigger),
		zap.String("user", userID),
		zap.String("outcome", string(out.Kind)),
	}
	if out.SessionID != "" {
		fields = append(fields, zap.String("session", out.SessionID))
	}
	if out.Ticket != nil {
		fields = append(fields, zap.String("ticket", out.Ticket.ID), zap.Bool("reused", out.Reused))
	}
	if out.Err != nil {
		fields = append(fields, zap.Error(out.Err))
	}
	b.logger.Info("triage outcome", fields...)
}

func (b *Bot) logLookupError(sub, userID string, err error) {
	if errors.Is(err, domain.ErrNoTicketsFound) || errors.Is(err, domain.ErrTicketNotFound) || errors.Is(err, domain.ErrTicketAccessDenied) {
		b.logger.Info("status lookup miss", zap.String("subcommand", sub), zap.String("user", userID), zap.Error(err))
		return
	}
	b.logger.Error("status lookup failed", zap.String("subcommand", sub), zap.String("user", userID), zap.Error(err))
}

func (b *Bot) setSelfID(id string) {
	b.mu.Lock()
	b.selfID = id
	b.mu.Unlock()
}

func (b *Bot) getSelfID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selfID
}

// parseCommand splits "/wm" text into a lower-cased subcommand and the rest.
func parseCommand(text string) (sub, arg string) {
	text = strings.TrimSpace(text)
	idx := strings.IndexFunc(text, unicode.IsSpace)
	if idx < 0 {
		return strings.ToLower(text), ""
	}
	return strings.ToLower(text[:idx]), strings.TrimSpace(text[idx:])
}

var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+(\|[^>]*)?>`)

func stripMentions(text string) string {
	return strings.TrimSpace(mentionPattern.ReplaceAllString(text, ""))
}

func isGreeting(text string) bool {
	switch strings.ToLower(strings.Trim(text, " !.?,")) {
	case "", "hi", "hello", "hey", "help":
		return true
	}
	return false
}
