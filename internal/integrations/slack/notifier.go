package slackbot

import (
	"context"
	"fmt"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"supportbot/internal/domain"
	"supportbot/internal/triage"
)

const notifyTimeout = 10 * time.Second

// Notifier sends unprompted DMs: lapsed escalation offers and ticket status
// changes picked up by the sync job.
type Notifier struct {
	api    *slack.Client
	render Renderer
	logger *zap.Logger
}

func NewNotifier(api *slack.Client, render Renderer, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{api: api, render: render, logger: logger}
}

func (n *Notifier) NotifyStatusChange(ctx context.Context, rec domain.TicketRecord, previous domain.TicketStatus) error {
	return n.dm(ctx, rec.ReporterID, n.render.StatusChange(rec, previous))
}

// NotifyExpired matches the triage expiry hook.
func (n *Notifier) NotifyExpired(e triage.Expiry) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := n.dm(ctx, e.ReporterID, n.render.Expiry(e)); err != nil {
		n.logger.Warn("expiry notice not sent", zap.String("reporter", e.ReporterID), zap.String("session", e.SessionID), zap.Error(err))
	}
}

func (n *Notifier) dm(ctx context.Context, userID string, m Message) error {
	channel, _, _, err := n.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		return fmt.Errorf("open DM with %s: %w", userID, err)
	}
	if _, _, err := n.api.PostMessageContext(ctx, channel.ID, m.options()...); err != nil {
		return fmt.Errorf("post DM to %s: %w", userID, err)
	}
	n.logger.Info("sent DM", zap.String("user", userID))
	return nil
}
