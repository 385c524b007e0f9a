// File: internal/infra/notify/telegram.go
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"student-offer-automation/internal/domain/model"
	"student-offer-automation/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*TelegramNotifier)(nil)

// TelegramNotifier pushes the batch summary to an admin chat when a run
// finishes. Delivery is best-effort; the orchestrator only logs a failure.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *zerolog.Logger
}

func NewTelegramNotifier(token string, chatID int64, logger *zerolog.Logger) (*TelegramNotifier, error) {
	if token == "" {
		return nil, errors.New("telegram token empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramNotifier{bot: bot, chatID: chatID, log: logger}, nil
}

func (n *TelegramNotifier) NotifyBatchFinished(ctx context.Context, summary model.BatchSummary) error {
	msg := tgbotapi.NewMessage(n.chatID, formatSummary(summary))
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func formatSummary(s model.BatchSummary) string {
	dur := s.FinishedAt.Sub(s.StartedAt).Round(time.Second)
	return fmt.Sprintf(
		"Batch %s finished in %s\nTotal: %d\nSubscribed: %d\nVerified (unbound): %d\nIneligible: %d\nErrors: %d\nOut of cards: %d",
		s.RunID, dur, s.Total, s.Subscribed, s.Verified, s.Ineligible, s.Errors, s.ResourceExhausted,
	)
}

var _ adapter.Notifier = (*NoopNotifier)(nil)

// NoopNotifier logs the summary instead of sending it. Used when no
// telegram credentials are configured.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	return &NoopNotifier{log: logger}
}

func (n *NoopNotifier) NotifyBatchFinished(ctx context.Context, summary model.BatchSummary) error {
	n.log.Info().
		Str("run_id", summary.RunID).
		Int("total", summary.Total).
		Int("subscribed", summary.Subscribed).
		Msg("batch finished (notification suppressed)")
	return nil
}
