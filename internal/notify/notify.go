// Package notify provides the idempotent notification sink shared by the
// filter/score engine and the watch loop.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rvol-scanner/internal/models"
	"rvol-scanner/internal/store"
)

// Message is one notification to deliver.
type Message struct {
	Channel   models.Channel
	Ticker    string
	Text      string
	DedupeKey string
	ParseMode string // channel format hint, e.g. "Markdown" for Telegram
}

// Sender delivers a message over one external channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, m Message) error
	IsEnabled() bool
}

// Sink persists one record per dedupe key and performs at most one external
// send attempt for it. A second Send with the same key returns immediately
// without touching the channel. Send failures are recorded on the stored
// row, never raised to the caller: the sink is the durability boundary.
type Sink struct {
	store   store.DataStore
	senders map[models.Channel]Sender
	logger  zerolog.Logger
}

// NewSink creates a sink over the given store.
func NewSink(dataStore store.DataStore, logger zerolog.Logger, senders ...Sender) *Sink {
	byChannel := make(map[models.Channel]Sender, len(senders))
	for _, s := range senders {
		byChannel[models.Channel(s.Name())] = s
	}
	return &Sink{store: dataStore, senders: byChannel, logger: logger}
}

// Send delivers and records a message. The only error returned is a storage
// failure; delivery failures end up as a stored record with status "error".
func (s *Sink) Send(ctx context.Context, m Message) error {
	exists, err := s.store.NotificationExists(ctx, m.DedupeKey)
	if err != nil {
		return fmt.Errorf("checking dedupe key: %w", err)
	}
	if exists {
		s.logger.Debug().Str("dedupe_key", m.DedupeKey).Msg("Notification already recorded, skipping")
		return nil
	}

	status := models.NotifySent
	var sendErr string

	sender, ok := s.senders[m.Channel]
	switch {
	case !ok:
		status = models.NotifyError
		sendErr = fmt.Sprintf("no sender for channel %q", m.Channel)
	case !sender.IsEnabled():
		status = models.NotifyError
		sendErr = fmt.Sprintf("channel %q disabled", m.Channel)
	default:
		if err := sender.Send(ctx, m); err != nil {
			status = models.NotifyError
			sendErr = err.Error()
		}
	}

	record := &models.Notification{
		Channel:   m.Channel,
		Ticker:    m.Ticker,
		Message:   m.Text,
		DedupeKey: m.DedupeKey,
		SentAt:    time.Now().UTC(),
		Status:    status,
		Error:     sendErr,
	}
	if err := s.store.InsertNotification(ctx, record); err != nil {
		// A concurrent sender won the unique dedupe_key race; that is the
		// expected no-op path, not an error.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			s.logger.Debug().Str("dedupe_key", m.DedupeKey).Msg("Notification recorded concurrently")
			return nil
		}
		return fmt.Errorf("recording notification: %w", err)
	}

	s.logger.Info().
		Str("channel", string(m.Channel)).
		Str("dedupe_key", m.DedupeKey).
		Str("status", string(status)).
		Msg("Notification recorded")
	return nil
}

// TelegramSender sends messages via the Telegram bot API.
type TelegramSender struct {
	botToken string
	chatID   string
	enabled  bool
	baseURL  string
	client   *http.Client
}

// NewTelegramSender creates a Telegram sender.
func NewTelegramSender(botToken, chatID string, enabled bool) *TelegramSender {
	return &TelegramSender{
		botToken: botToken,
		chatID:   chatID,
		enabled:  enabled && botToken != "" && chatID != "",
		baseURL:  "https://api.telegram.org",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// NewTelegramSenderWithBaseURL creates a Telegram sender against a custom
// API endpoint (used by tests).
func NewTelegramSenderWithBaseURL(botToken, chatID, baseURL string) *TelegramSender {
	s := NewTelegramSender(botToken, chatID, true)
	s.baseURL = baseURL
	return s
}

// Name returns the channel name.
func (t *TelegramSender) Name() string {
	return string(models.ChannelTelegram)
}

// IsEnabled returns whether the sender is enabled.
func (t *TelegramSender) IsEnabled() bool {
	return t.enabled
}

// Send posts a sendMessage call to the bot API.
func (t *TelegramSender) Send(ctx context.Context, m Message) error {
	payload := map[string]interface{}{
		"chat_id": t.chatID,
		"text":    m.Text,
	}
	if m.ParseMode != "" {
		payload["parse_mode"] = m.ParseMode
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling telegram payload: %w", err)
	}

	u := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// NoOpSender is a sender that accepts everything without delivering
// (disabled channels and tests).
type NoOpSender struct {
	channel models.Channel
}

// NewNoOpSender creates a no-op sender for the given channel.
func NewNoOpSender(channel models.Channel) *NoOpSender {
	return &NoOpSender{channel: channel}
}

// Name returns the channel name.
func (n *NoOpSender) Name() string { return string(n.channel) }

// IsEnabled always returns true.
func (n *NoOpSender) IsEnabled() bool { return true }

// Send does nothing.
func (n *NoOpSender) Send(ctx context.Context, m Message) error { return nil }
