// ABOUTME: Slack provider adapter built on the Events API webhook dialect.
// ABOUTME: Verifies signing-secret signatures, normalizes callbacks, replies via chat.postMessage.

package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/2389/sigil-gateway/internal/event"
	"github.com/2389/sigil-gateway/internal/sign"
)

const providerName = "slack"

// Slack rejects chat.postMessage bodies past ~4k characters.
const maxMessageLen = 4000

// Config carries the Slack app credentials and filters.
type Config struct {
	// SigningSecret is the app-level signing secret used to verify
	// inbound Events API requests.
	SigningSecret string

	// BotToken is the xoxb- token used for replies.
	BotToken string

	// BotUserID is the bot's own user id, used to drop self-authored
	// messages. Left empty it is resolved from auth.test at startup.
	BotUserID string

	// AllowedChannels restricts inbound traffic to the listed channel
	// ids. Empty means all channels.
	AllowedChannels []string

	// FreshnessWindow bounds |now - request timestamp| during signature
	// verification.
	FreshnessWindow time.Duration

	Logger *slog.Logger
}

// Adapter implements the provider contract for Slack.
type Adapter struct {
	verifier  *sign.Verifier
	api       *slackapi.Client
	botUserID string
	allowed   map[string]struct{}
	logger    *slog.Logger
}

// New creates a Slack adapter. It performs no network calls; call
// ResolveIdentity before serving if BotUserID was not configured.
func New(cfg Config, opts ...slackapi.Option) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var allowed map[string]struct{}
	if len(cfg.AllowedChannels) > 0 {
		allowed = make(map[string]struct{}, len(cfg.AllowedChannels))
		for _, ch := range cfg.AllowedChannels {
			allowed[ch] = struct{}{}
		}
	}

	return &Adapter{
		verifier:  sign.NewVerifier(cfg.SigningSecret, cfg.FreshnessWindow),
		api:       slackapi.New(cfg.BotToken, opts...),
		botUserID: cfg.BotUserID,
		allowed:   allowed,
		logger:    logger.With("component", "slack"),
	}
}

// Name returns "slack".
func (a *Adapter) Name() string { return providerName }

// ResolveIdentity fills in the bot user id from auth.test when it was
// not configured. Dropping self-authored messages depends on it.
func (a *Adapter) ResolveIdentity(ctx context.Context) error {
	if a.botUserID != "" {
		return nil
	}
	resp, err := a.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth.test: %w", err)
	}
	a.botUserID = resp.UserID
	a.logger.Info("resolved bot identity", "user", resp.User, "user_id", resp.UserID)
	return nil
}

// Verify checks the Slack request signature. Slack signs the same
// canonical base string as the peer dialect but sends it under its own
// header names.
func (a *Adapter) Verify(r *http.Request, body []byte) error {
	timestamp := r.Header.Get("X-Slack-Request-Timestamp")
	signature := r.Header.Get("X-Slack-Signature")
	if err := a.verifier.Verify(timestamp, signature, body); err != nil {
		return &event.AuthenticationError{Reason: fmt.Sprintf("slack signature: %v", err)}
	}
	return nil
}

// RetryCount reads Slack's redelivery counter. Slack sets
// X-Slack-Retry-Num starting at 1 on the first redelivery.
func (a *Adapter) RetryCount(r *http.Request) int {
	raw := r.Header.Get("X-Slack-Retry-Num")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Respond answers the url_verification handshake inline. Slack requires
// the challenge echoed back before it will deliver events to the URL.
func (a *Adapter) Respond(w http.ResponseWriter, body []byte) (bool, error) {
	var probe struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.Type != slackevents.URLVerification {
		return false, nil
	}
	w.Header().Set("Content-Type", "text/plain")
	_, err := w.Write([]byte(probe.Challenge))
	return true, err
}

// Normalize maps an Events API callback to the canonical event. Bot
// echoes, edits, empty messages, and disallowed channels are ignored.
func (a *Adapter) Normalize(body []byte, _ http.Header) (*event.Event, error) {
	outer, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return nil, &event.MalformedEventError{Provider: providerName, Cause: err}
	}

	switch outer.Type {
	case slackevents.URLVerification:
		return nil, fmt.Errorf("url_verification handshake: %w", event.ErrIgnored)
	case slackevents.CallbackEvent:
		return a.normalizeCallback(&outer)
	default:
		return nil, fmt.Errorf("envelope type %q: %w", outer.Type, event.ErrIgnored)
	}
}

func (a *Adapter) normalizeCallback(outer *slackevents.EventsAPIEvent) (*event.Event, error) {
	var externalID string
	if cb, ok := outer.Data.(*slackevents.EventsAPICallbackEvent); ok {
		externalID = cb.EventID
	}

	switch ev := outer.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		return a.normalizeMessage(ev, externalID)
	case *slackevents.AppMentionEvent:
		return a.normalizeMention(ev, externalID)
	default:
		return nil, fmt.Errorf("inner event %q: %w", outer.InnerEvent.Type, event.ErrIgnored)
	}
}

func (a *Adapter) normalizeMessage(ev *slackevents.MessageEvent, externalID string) (*event.Event, error) {
	if ev.BotID != "" || ev.User == "" || ev.User == a.botUserID {
		return nil, fmt.Errorf("bot-authored message: %w", event.ErrIgnored)
	}
	if ev.SubType != "" {
		return nil, fmt.Errorf("message subtype %q: %w", ev.SubType, event.ErrIgnored)
	}
	// A mention fires both message and app_mention callbacks when both
	// subscriptions are enabled; the app_mention copy carries the turn.
	if a.botUserID != "" && strings.Contains(ev.Text, "<@"+a.botUserID+">") {
		return nil, fmt.Errorf("mention copy: %w", event.ErrIgnored)
	}
	if !a.channelAllowed(ev.Channel) {
		return nil, fmt.Errorf("channel %s not allowed: %w", ev.Channel, event.ErrIgnored)
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return nil, fmt.Errorf("empty message: %w", event.ErrIgnored)
	}
	if externalID == "" {
		externalID = ev.TimeStamp
	}

	return &event.Event{
		Provider:   providerName,
		Type:       event.TypeMessage,
		ExternalID: externalID,
		ChannelID:  ev.Channel,
		ThreadID:   threadID(ev.Channel, ev.ThreadTimeStamp),
		SenderID:   ev.User,
		Text:       text,
		ReceivedAt: eventTime(ev.TimeStamp),
	}, nil
}

func (a *Adapter) normalizeMention(ev *slackevents.AppMentionEvent, externalID string) (*event.Event, error) {
	if ev.BotID != "" || ev.User == "" || ev.User == a.botUserID {
		return nil, fmt.Errorf("bot-authored mention: %w", event.ErrIgnored)
	}
	if !a.channelAllowed(ev.Channel) {
		return nil, fmt.Errorf("channel %s not allowed: %w", ev.Channel, event.ErrIgnored)
	}

	text := stripMention(ev.Text)
	if text == "" {
		return nil, fmt.Errorf("empty mention: %w", event.ErrIgnored)
	}
	if externalID == "" {
		externalID = ev.TimeStamp
	}

	return &event.Event{
		Provider:   providerName,
		Type:       event.TypeMessage,
		ExternalID: externalID,
		ChannelID:  ev.Channel,
		ThreadID:   threadID(ev.Channel, ev.ThreadTimeStamp),
		SenderID:   ev.User,
		Text:       text,
		ReceivedAt: eventTime(ev.TimeStamp),
	}, nil
}

// Reply posts the response into the originating channel, threading under
// the original message when the event came from a thread. Long responses
// are split on message-length boundaries.
func (a *Adapter) Reply(ctx context.Context, ev *event.Event, text string) error {
	threadTS := replyThreadTS(ev.ThreadID)
	for _, chunk := range splitMessage(text, maxMessageLen) {
		opts := []slackapi.MsgOption{slackapi.MsgOptionText(chunk, false)}
		if threadTS != "" {
			opts = append(opts, slackapi.MsgOptionTS(threadTS))
		}
		if _, _, err := a.api.PostMessageContext(ctx, ev.ChannelID, opts...); err != nil {
			return fmt.Errorf("post message to %s: %w", ev.ChannelID, err)
		}
	}
	return nil
}

func (a *Adapter) channelAllowed(channel string) bool {
	if a.allowed == nil {
		return true
	}
	_, ok := a.allowed[channel]
	return ok
}

// threadID builds the thread key for a threaded message: "{channel}/{thread_ts}".
// Top-level messages key on the channel alone.
func threadID(channel, threadTS string) string {
	if threadTS == "" {
		return ""
	}
	return channel + "/" + threadTS
}

func replyThreadTS(threadID string) string {
	if threadID == "" {
		return ""
	}
	_, ts, ok := strings.Cut(threadID, "/")
	if !ok {
		return ""
	}
	return ts
}

// stripMention removes the leading <@U...> token from app_mention text.
func stripMention(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "<@") {
		if idx := strings.Index(text, ">"); idx >= 0 {
			text = strings.TrimSpace(text[idx+1:])
		}
	}
	return text
}

// eventTime parses Slack's "seconds.fraction" ts into a UTC time,
// falling back to now when the value is unusable.
func eventTime(ts string) time.Time {
	secs, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	return time.Unix(n, 0).UTC()
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
