package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/vkorchagin/oddsmesh/internal/pkg/models"
)

// Telegram allows roughly 30 messages per minute to one chat; one message
// every 2 seconds stays under that.
var telegramSendLimit = rate.Every(2 * time.Second)

// TelegramNotifier delivers alerts to a Telegram chat. Sends go through a
// buffered queue and a background sender so callers never block on the
// Telegram API.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64

	limiter   *rate.Limiter
	queue     chan models.AlertEvent
	queueDone chan struct{}
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = false

	if _, err := bot.GetMe(); err != nil {
		return nil, fmt.Errorf("failed to get bot info: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &TelegramNotifier{
		bot:       bot,
		chatID:    chatID,
		limiter:   rate.NewLimiter(telegramSendLimit, 1),
		queue:     make(chan models.AlertEvent, 100),
		queueDone: make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}

	n.wg.Add(1)
	go n.sender()

	slog.Info("Telegram notifier initialized", "chat_id", chatID)
	return n, nil
}

// Notify queues the alert without blocking. A full queue drops the alert
// (logged); the suppressor will let the fault through again after cooldown.
func (n *TelegramNotifier) Notify(ctx context.Context, alert models.AlertEvent) error {
	select {
	case <-n.ctx.Done():
		return fmt.Errorf("notifier stopped")
	case <-ctx.Done():
		return ctx.Err()
	case n.queue <- alert:
		return nil
	default:
		slog.Warn("Telegram alert queue full, dropping", "key", alert.Key)
		return fmt.Errorf("alert queue is full")
	}
}

func (n *TelegramNotifier) sender() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			// Drain remaining alerts before exit.
			for {
				select {
				case alert := <-n.queue:
					n.send(alert)
				default:
					close(n.queueDone)
					return
				}
			}
		case alert := <-n.queue:
			n.send(alert)
		}
	}
}

func (n *TelegramNotifier) send(alert models.AlertEvent) {
	if err := n.limiter.Wait(n.ctx); err != nil && n.ctx.Err() == nil {
		slog.Warn("Telegram send: rate limiter wait failed", "error", err)
	}

	msg := tgbotapi.NewMessage(n.chatID, formatAlert(alert))
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.bot.Send(msg); err != nil {
		slog.Error("Telegram send failed", "key", alert.Key, "error", err)
		return
	}
	slog.Info("Telegram alert delivered", "key", alert.Key, "queue_length", len(n.queue))
}

// Stop waits for queued alerts to be sent.
func (n *TelegramNotifier) Stop() {
	if n == nil {
		return
	}
	n.cancel()
	<-n.queueDone
	n.wg.Wait()
}

func formatAlert(alert models.AlertEvent) string {
	var b strings.Builder
	b.WriteString("🚨 *Source Alert*\n\n")
	b.WriteString(fmt.Sprintf("*%s*\n", escapeMarkdown(alert.Key)))
	b.WriteString(fmt.Sprintf("%s\n\n", escapeMarkdown(alert.Message)))
	b.WriteString(fmt.Sprintf("_Raised: %s_\n", alert.RaisedAt.Format("2006-01-02 15:04:05 UTC")))
	if !alert.SuppressedUntil.IsZero() {
		b.WriteString(fmt.Sprintf("_Muted until: %s_\n", alert.SuppressedUntil.Format("15:04:05 UTC")))
	}
	return b.String()
}

func escapeMarkdown(text string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(text)
}
