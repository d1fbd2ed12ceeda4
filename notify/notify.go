/*
Package notify delivers fund events to members.

PURPOSE:
  Services never call a chat API directly. They append rows to the
  notification outbox inside the same database transaction as the
  change they announce; the Dispatcher drains the outbox and pushes
  each row through a Notifier. Delivery failure never rolls anything
  back, it is logged, counted, and the row marked failed.
*/
package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"github.com/crewlunch/lunchfund/fund"
)

// Notifier delivers one outbox row to its recipients.
type Notifier interface {
	Send(ctx context.Context, n fund.Notification) error
}

// =============================================================================
// LOG SINK
// =============================================================================

// LogNotifier writes events to the structured log. Default sink when no
// Telegram token is configured; also useful in tests.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, n fund.Notification) error {
	log.WithFields(log.Fields{
		"event":      n.Event,
		"recipients": n.Recipients,
		"payload":    n.Payload,
	}).Info("notification")
	return nil
}

// =============================================================================
// TELEGRAM SINK
// =============================================================================

// TelegramNotifier posts events to the office group chat.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier connects the bot. The token is validated against
// the Telegram API, so this fails fast on a bad config.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}
	log.WithField("bot", api.Self.UserName).Info("telegram bot authorized")
	return &TelegramNotifier{api: api, chatID: chatID}, nil
}

func (t *TelegramNotifier) Send(_ context.Context, n fund.Notification) error {
	msg := tgbotapi.NewMessage(t.chatID, renderMessage(n))
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// renderMessage turns an event row into chat text.
func renderMessage(n fund.Notification) string {
	switch n.Event {
	case fund.EventBuyersSelected:
		return fmt.Sprintf("Lunch %s: today's buyers have been drawn (%d on the hook).",
			n.Payload["date"], len(n.Recipients))
	case fund.EventSettlementComplete:
		if pp := n.Payload["amount_per_person"]; pp != "" {
			return fmt.Sprintf("Settlement done: %s per person across %d participants.",
				pp, len(n.Recipients))
		}
		return fmt.Sprintf("Settlement done: %s total across %d participants.",
			n.Payload["total"], len(n.Recipients))
	case fund.EventDepositApproved:
		return fmt.Sprintf("Deposit of %s approved.", n.Payload["amount"])
	case fund.EventDepositRejected:
		return fmt.Sprintf("Deposit of %s rejected.", n.Payload["amount"])
	case fund.EventReimburseMarked:
		return "Your reimbursement has been transferred. Please confirm receipt."
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "%s", n.Event)
		for k, v := range n.Payload {
			fmt.Fprintf(&b, " %s=%s", k, v)
		}
		return b.String()
	}
}
