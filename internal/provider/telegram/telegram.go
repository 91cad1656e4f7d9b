// ABOUTME: Telegram provider adapter built on the Bot API webhook dialect.
// ABOUTME: Verifies the webhook secret token, normalizes updates, replies via sendMessage.

package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/2389/sigil-gateway/internal/event"
	"github.com/2389/sigil-gateway/internal/sign"
)

const providerName = "telegram"

// secretTokenHeader is set by Telegram on every webhook delivery when the
// webhook was registered with a secret_token.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Telegram rejects sendMessage text past 4096 characters.
const maxMessageLen = 4096

// Config carries the Telegram bot credentials and filters.
type Config struct {
	// BotToken is the BotFather token used for getMe and sendMessage.
	BotToken string

	// WebhookSecret must match the secret_token the webhook was
	// registered with. Deliveries without it are rejected.
	WebhookSecret string

	// AllowedChats restricts inbound traffic to the listed chat ids.
	// Empty means all chats.
	AllowedChats []int64

	// APIEndpoint overrides the Bot API base URL, for self-hosted API
	// servers and tests. Defaults to the public endpoint.
	APIEndpoint string

	// HTTPClient is used for outbound Bot API calls. The v5 client has
	// no context plumbing, so the client's own timeout bounds sends.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Adapter implements the provider contract for Telegram.
type Adapter struct {
	botToken      string
	webhookSecret string
	apiEndpoint   string
	httpClient    *http.Client
	allowed       map[int64]struct{}
	logger        *slog.Logger

	bot    *tgbotapi.BotAPI
	selfID int64
}

// New creates a Telegram adapter. It performs no network calls; call
// ResolveIdentity before serving so replies have a bot client.
func New(cfg Config) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var allowed map[int64]struct{}
	if len(cfg.AllowedChats) > 0 {
		allowed = make(map[int64]struct{}, len(cfg.AllowedChats))
		for _, id := range cfg.AllowedChats {
			allowed[id] = struct{}{}
		}
	}

	return &Adapter{
		botToken:      cfg.BotToken,
		webhookSecret: cfg.WebhookSecret,
		apiEndpoint:   endpoint,
		httpClient:    client,
		allowed:       allowed,
		logger:        logger.With("component", "telegram"),
	}
}

// Name returns "telegram".
func (a *Adapter) Name() string { return providerName }

// ResolveIdentity creates the Bot API client, which calls getMe and
// records the bot's own user id for the self-loop filter.
func (a *Adapter) ResolveIdentity(_ context.Context) error {
	if a.bot != nil {
		return nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(a.botToken, a.apiEndpoint, a.httpClient)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	a.bot = bot
	a.selfID = bot.Self.ID
	a.logger.Info("resolved bot identity", "username", bot.Self.UserName, "user_id", bot.Self.ID)
	return nil
}

// Verify compares the webhook secret token in constant time. Telegram
// does not sign bodies; the secret token is its transport equivalent,
// with the same failure semantics as a bad signature.
func (a *Adapter) Verify(r *http.Request, _ []byte) error {
	if a.webhookSecret == "" {
		return &event.AuthenticationError{Reason: "telegram webhook secret not configured"}
	}
	if !sign.SecretsEqual(r.Header.Get(secretTokenHeader), a.webhookSecret) {
		return &event.AuthenticationError{Reason: "telegram secret token mismatch"}
	}
	return nil
}

// RetryCount always reports zero: Telegram re-posts unacknowledged
// updates but exposes no redelivery counter.
func (a *Adapter) RetryCount(_ *http.Request) int { return 0 }

// Normalize maps a webhook Update to the canonical event. Non-message
// updates, bot-authored messages, disallowed chats, and empty text are
// ignored.
func (a *Adapter) Normalize(body []byte, _ http.Header) (*event.Event, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, &event.MalformedEventError{Provider: providerName, Cause: err}
	}

	msg := update.Message
	if msg == nil {
		return nil, fmt.Errorf("no message in update %d: %w", update.UpdateID, event.ErrIgnored)
	}
	if msg.From == nil || msg.Chat == nil {
		return nil, &event.MalformedEventError{Provider: providerName, Cause: errors.New("message without sender or chat")}
	}
	if msg.From.IsBot || msg.From.ID == a.selfID {
		return nil, fmt.Errorf("bot-authored message: %w", event.ErrIgnored)
	}
	if !a.chatAllowed(msg.Chat.ID) {
		return nil, fmt.Errorf("chat %d not allowed: %w", msg.Chat.ID, event.ErrIgnored)
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil, fmt.Errorf("no text content: %w", event.ErrIgnored)
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	return &event.Event{
		Provider:   providerName,
		Type:       event.TypeMessage,
		ExternalID: strconv.Itoa(update.UpdateID),
		ChannelID:  chatID,
		ThreadID:   topicThreadID(chatID, body),
		SenderID:   strconv.FormatInt(msg.From.ID, 10),
		Text:       text,
		ReceivedAt: msg.Time().UTC(),
	}, nil
}

// Reply sends the response into the originating chat with HTML parse
// mode, falling back to plain text when Telegram rejects the markup.
// Topic messages are anchored to the topic's root message.
func (a *Adapter) Reply(_ context.Context, ev *event.Event, text string) error {
	if a.bot == nil {
		return errors.New("telegram bot not initialized")
	}
	chatID, err := strconv.ParseInt(ev.ChannelID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad chat id %q: %w", ev.ChannelID, err)
	}
	replyTo := topicAnchor(ev.ThreadID)

	for _, chunk := range splitMessage(text, maxMessageLen) {
		if err := a.sendChunk(chatID, replyTo, chunk); err != nil {
			return err
		}
	}
	return nil
}

// sendChunk tries HTML-rendered markup first and resends the raw text
// when Telegram cannot parse the entities.
func (a *Adapter) sendChunk(chatID int64, replyTo int, text string) error {
	msg := tgbotapi.NewMessage(chatID, renderHTML(text))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if replyTo != 0 {
		msg.ReplyToMessageID = replyTo
		msg.AllowSendingWithoutReply = true
	}

	_, err := a.bot.Send(msg)
	if err == nil {
		return nil
	}
	if !strings.Contains(err.Error(), "can't parse entities") {
		return fmt.Errorf("send to chat %d: %w", chatID, err)
	}

	a.logger.Warn("html reply rejected, resending plain", "chat_id", chatID, "err", err)
	plain := tgbotapi.NewMessage(chatID, text)
	if replyTo != 0 {
		plain.ReplyToMessageID = replyTo
		plain.AllowSendingWithoutReply = true
	}
	if _, err := a.bot.Send(plain); err != nil {
		return fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	return nil
}

func (a *Adapter) chatAllowed(chatID int64) bool {
	if a.allowed == nil {
		return true
	}
	_, ok := a.allowed[chatID]
	return ok
}

// topicThreadID keys forum-topic messages as "{chat_id}/{thread_id}".
// The pinned Bot API client predates forum topics, so the thread id is
// read straight off the raw payload.
func topicThreadID(chatID string, body []byte) string {
	var raw struct {
		Message struct {
			MessageThreadID int64 `json:"message_thread_id"`
			IsTopicMessage  bool  `json:"is_topic_message"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return ""
	}
	if !raw.Message.IsTopicMessage || raw.Message.MessageThreadID == 0 {
		return ""
	}
	return chatID + "/" + strconv.FormatInt(raw.Message.MessageThreadID, 10)
}

// topicAnchor extracts the topic root message id from a thread key.
// Replying to the root message places the reply inside the topic.
func topicAnchor(threadID string) int {
	if threadID == "" {
		return 0
	}
	_, thread, ok := strings.Cut(threadID, "/")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(thread)
	if err != nil {
		return 0
	}
	return n
}

// splitMessage cuts text into chunks no longer than maxLen, preferring
// newline boundaries past the halfway point of each chunk.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		cut := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	return chunks
}
