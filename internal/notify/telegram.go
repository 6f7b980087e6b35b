package notify

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/tutorcenter/internal/metrics"
	"github.com/Spok95/tutorcenter/internal/models"
	"github.com/Spok95/tutorcenter/internal/observability"
)

// Sender is the part of *tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram messages users that linked a chat id, and pushes system alerts
// to the admin chats.
type Telegram struct {
	bot      Sender
	app      string
	adminIDs []int64
}

func NewTelegram(bot Sender, app string, adminIDs []int64) *Telegram {
	return &Telegram{bot: bot, app: app, adminIDs: adminIDs}
}

// isSystemErr: 5xx, 429 and timeouts are ours to look at; 400s such as
// "chat not found" are user data problems and stay out of Sentry.
func isSystemErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "429") || strings.Contains(s, "502") ||
		strings.Contains(s, "503") || strings.Contains(s, "timeout")
}

func (t *Telegram) send(chatID int64, text string) error {
	_, err := t.bot.Send(tgbotapi.NewMessage(chatID, text))
	if isSystemErr(err) {
		observability.CaptureErr(err)
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.NotificationsSent.WithLabelValues("telegram", result).Inc()
	return err
}

func (t *Telegram) Notify(_ context.Context, u models.User, kind Kind, p Payload) error {
	if u.TelegramChatID == nil || *u.TelegramChatID == 0 {
		return ErrNoAddress
	}
	subject, body := Render(t.app, u, kind, p)
	return t.send(*u.TelegramChatID, subject+"\n\n"+body)
}

// Alert sends text to every configured admin chat.
func (t *Telegram) Alert(_ context.Context, text string) error {
	var first error
	for _, id := range t.adminIDs {
		if err := t.send(id, text); err != nil && first == nil {
			first = err
		}
	}
	return first
}
