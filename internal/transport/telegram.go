package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	clierr "github.com/ggonzalez94/squad-agent/internal/errors"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
)

// telegramBot is the part of *tgbotapi.BotAPI the adapter uses.
type telegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram long-polls the Bot API. The conversation id is the chat id; the
// sender is looked up from the user id.
type Telegram struct {
	token     string
	allowFrom map[int64]bool
	senders   map[int64]string
	logger    *slog.Logger

	bot      telegramBot
	box      *inbox
	stopped  chan struct{}
	stopOnce sync.Once
}

type TelegramConfig struct {
	Token string
	// AllowFrom lists user ids allowed to talk to the bot. Empty allows all.
	AllowFrom []string
	// Senders maps telegram user ids to chain addresses.
	Senders map[string]string
	Logger  *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	allowed := map[int64]bool{}
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed[id] = true
		}
	}
	senders := map[int64]string{}
	for k, v := range cfg.Senders {
		if id, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64); err == nil {
			senders[id] = strings.TrimSpace(v)
		}
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		senders:   senders,
		logger:    cfg.Logger,
		box:       newInbox(64),
		stopped:   make(chan struct{}),
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Connect(ctx context.Context) error {
	if t.bot == nil {
		if strings.TrimSpace(t.token) == "" {
			return clierr.New(clierr.CodeUsage, "telegram token is required")
		}
		bot, err := tgbotapi.NewBotAPI(t.token)
		if err != nil {
			return clierr.Wrap(clierr.CodeUnavailable, "telegram bot init", err)
		}
		t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)
		t.bot = bot
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		defer t.box.close()
		for {
			select {
			case <-ctx.Done():
				t.stop()
				return
			case <-t.stopped:
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(ctx, update)
			}
		}
	}()
	return nil
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg, userID, ok := t.toMessage(update)
	if !ok {
		return
	}
	if len(t.allowFrom) > 0 && !t.allowFrom[userID] {
		t.logger.Warn("unauthorized telegram user", "user_id", userID)
		_ = t.Send(ctx, msg.ConversationID, "⛔ Unauthorized. Your user ID is not in the allow list.")
		return
	}
	t.box.deliver(ctx, msg)
}

// toMessage converts an update into a Message. Bot commands addressed as
// /cmd@botname lose the suffix and /start is treated as /help.
func (t *Telegram) toMessage(update tgbotapi.Update) (Message, int64, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return Message{}, 0, false
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return Message{}, 0, false
	}
	if strings.HasPrefix(text, "/") {
		head, rest, _ := strings.Cut(text, " ")
		if at := strings.Index(head, "@"); at > 0 {
			head = head[:at]
		}
		if strings.EqualFold(head, "/start") {
			head = "/help"
		}
		text = strings.TrimSpace(head + " " + rest)
	}
	return Message{
		Text:           text,
		Sender:         t.senders[m.From.ID],
		ConversationID: strconv.FormatInt(m.Chat.ID, 10),
	}, m.From.ID, true
}

func (t *Telegram) Messages() <-chan Message { return t.box.ch }

// Send splits text into chunks under the Bot API limit. Rate-limited chunks
// are retried with a short backoff.
func (t *Telegram) Send(ctx context.Context, conversationID, text string) error {
	if t.bot == nil {
		return clierr.New(clierr.CodeUnavailable, "telegram transport is not connected")
	}
	chatID, err := strconv.ParseInt(conversationID, 10, 64)
	if err != nil {
		return clierr.Wrap(clierr.CodeInvalidArguments, "invalid telegram chat id", err)
	}
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		if err := t.sendChunk(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (t *Telegram) sendChunk(ctx context.Context, chatID int64, text string) error {
	var lastErr error
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		_, err := t.bot.Send(tgbotapi.NewMessage(chatID, text))
		if err == nil {
			return nil
		}
		lastErr = err
		errStr := err.Error()
		if !strings.Contains(errStr, "Too Many Requests") && !strings.Contains(errStr, "429") {
			break
		}
		retryAfter := time.Duration(attempt+1) * 3 * time.Second
		t.logger.Warn("telegram rate limited, backing off", "retry_after", retryAfter, "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return clierr.Wrap(clierr.CodeRateLimited, "telegram send cancelled", ctx.Err())
		case <-time.After(retryAfter):
		}
	}
	return clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("telegram send to chat %d", chatID), lastErr)
}

func (t *Telegram) stop() {
	t.stopOnce.Do(func() {
		close(t.stopped)
		if t.bot != nil {
			t.bot.StopReceivingUpdates()
		}
	})
}

// Close stops polling. StopReceivingUpdates must run at most once.
func (t *Telegram) Close() error {
	t.stop()
	t.box.close()
	return nil
}

// splitMessage cuts text at newlines where possible, never exceeding maxLen
// bytes per chunk.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		cutAt := strings.LastIndex(text[:maxLen], "\n")
		if cutAt < maxLen/2 {
			cutAt = maxLen
			for cutAt > 0 && !isRuneStart(text[cutAt]) {
				cutAt--
			}
		}
		chunks = append(chunks, text[:cutAt])
		text = strings.TrimPrefix(text[cutAt:], "\n")
	}
	return chunks
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
