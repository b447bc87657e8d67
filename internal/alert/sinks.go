// internal/alert/sinks.go
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/vanlt3/LifeTime-Swing/internal/storage/models"
)

// LogSink writes alerts to the structured log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("alert")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, a Alert) error {
	fields := []zap.Field{
		zap.String("type", string(a.Type)),
		zap.String("symbol", a.Symbol),
		zap.String("details", a.Details),
	}
	switch a.Severity {
	case SeverityCritical:
		s.logger.Error("🚨 "+a.Message, fields...)
	case SeverityWarning:
		s.logger.Warn("⚠️ "+a.Message, fields...)
	default:
		s.logger.Info(a.Message, fields...)
	}
	return nil
}

// telegramSender is the subset of the bot API used here.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink posts alerts to a Telegram chat.
type TelegramSink struct {
	bot    telegramSender
	chatID int64
}

// NewTelegramSink authenticates the bot token and returns a sink.
func NewTelegramSink(token string, chatID int64, timeout time.Duration) (*TelegramSink, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &TelegramSink{bot: bot, chatID: chatID}, nil
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Send(ctx context.Context, a Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(s.chatID, a.Text())
	msg.DisableWebPagePreview = true
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// DiscordSink posts alerts to a Discord webhook.
type DiscordSink struct {
	url    string
	client *http.Client
}

// NewDiscordSink creates a Discord webhook sink.
func NewDiscordSink(webhookURL string, timeout time.Duration) *DiscordSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DiscordSink{url: webhookURL, client: &http.Client{Timeout: timeout}}
}

func (s *DiscordSink) Name() string { return "discord" }

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type discordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

func (s *DiscordSink) Send(ctx context.Context, a Alert) error {
	color := 0x3498db
	switch a.Severity {
	case SeverityCritical:
		color = 0xe74c3c
	case SeverityWarning:
		color = 0xf1c40f
	}

	body, err := json.Marshal(discordPayload{
		Embeds: []discordEmbed{{
			Title:       severityIcon(a.Severity) + " " + a.Message,
			Description: a.Details,
			Color:       color,
			Timestamp:   a.Timestamp.UTC().Format(time.RFC3339),
		}},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("discord webhook: status %d", resp.StatusCode)
	}
	return nil
}

// AlertSaver is the journal method the JournalSink needs.
type AlertSaver interface {
	SaveAlert(ctx context.Context, rec *models.AlertRecord) error
}

// JournalSink writes alerts to the journal database.
type JournalSink struct {
	journal AlertSaver
}

// NewJournalSink creates a journal sink.
func NewJournalSink(journal AlertSaver) *JournalSink {
	return &JournalSink{journal: journal}
}

func (s *JournalSink) Name() string { return "journal" }

func (s *JournalSink) Send(ctx context.Context, a Alert) error {
	rec := &models.AlertRecord{
		AlertID:   a.ID,
		Type:      string(a.Type),
		Severity:  a.Severity,
		Symbol:    a.Symbol,
		Message:   a.Message,
		Details:   a.Details,
		Price:     a.Price,
		Threshold: a.Threshold,
	}
	rec.CreatedAt = a.Timestamp
	return s.journal.SaveAlert(ctx, rec)
}
