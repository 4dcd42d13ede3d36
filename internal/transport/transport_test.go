package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collect(t *testing.T, ch <-chan Message) []Message {
	t.Helper()
	var out []Message
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, msg)
		case <-timeout:
			t.Fatal("timed out waiting for inbound stream to close")
		}
	}
}

func TestConsoleReadsLinesUntilQuit(t *testing.T) {
	in := strings.NewReader("/price eth\n\n  hello  \n/quit\n/help\n")
	c := NewConsole(ConsoleConfig{In: in, Out: io.Discard, Sender: "0xabc", Logger: testLogger()})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	msgs := collect(t, c.Messages())
	if len(msgs) != 2 {
		t.Fatalf("expected two messages before /quit, got %+v", msgs)
	}
	if msgs[0].Text != "/price eth" || msgs[0].Sender != "0xabc" || msgs[0].ConversationID != ConsoleConversation {
		t.Fatalf("unexpected first message %+v", msgs[0])
	}
	if msgs[1].Text != "  hello  " {
		t.Fatalf("expected raw text to be preserved, got %q", msgs[1].Text)
	}
}

func TestConsoleSendWritesLine(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(ConsoleConfig{In: strings.NewReader(""), Out: &out, Logger: testLogger()})
	if err := c.Send(context.Background(), ConsoleConversation, "✅ done"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if out.String() != "✅ done\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestConsoleCloseEndsStream(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c := NewConsole(ConsoleConfig{In: pr, Out: io.Discard, Logger: testLogger()})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	_ = c.Close()
	_ = c.Close()
	if msgs := collect(t, c.Messages()); len(msgs) != 0 {
		t.Fatalf("expected no messages, got %+v", msgs)
	}
}

func TestInboxDropsAfterClose(t *testing.T) {
	box := newInbox(1)
	box.close()
	if box.deliver(context.Background(), Message{Text: "late"}) {
		t.Fatal("expected delivery after close to be dropped")
	}
}

type fakeBot struct {
	mu      sync.Mutex
	sent    []string
	errs    []error
	updates chan tgbotapi.Update
	stops   int
}

func (b *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return b.updates
}

func (b *fakeBot) StopReceivingUpdates() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stops++
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.errs) > 0 {
		err := b.errs[0]
		b.errs = b.errs[1:]
		if err != nil {
			return tgbotapi.Message{}, err
		}
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, msg.Text)
	}
	return tgbotapi.Message{}, nil
}

func telegramUpdate(userID, chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
	}}
}

func TestTelegramToMessageResolvesSenderAndCommand(t *testing.T) {
	tg := NewTelegram(TelegramConfig{
		Senders: map[string]string{"7": "0x00000000000000000000000000000000000000aa"},
		Logger:  testLogger(),
	})
	msg, userID, ok := tg.toMessage(telegramUpdate(7, -100123, "/price@squad_bot eth"))
	if !ok || userID != 7 {
		t.Fatalf("expected message, got ok=%v user=%d", ok, userID)
	}
	if msg.Text != "/price eth" || msg.ConversationID != "-100123" || msg.Sender == "" {
		t.Fatalf("unexpected message %+v", msg)
	}
	msg, _, _ = tg.toMessage(telegramUpdate(8, 5, "/start"))
	if msg.Text != "/help" || msg.Sender != "" {
		t.Fatalf("expected /start as /help with unmapped sender, got %+v", msg)
	}
	if _, _, ok := tg.toMessage(tgbotapi.Update{}); ok {
		t.Fatal("expected empty update to be skipped")
	}
}

func TestTelegramPollingAndAllowlist(t *testing.T) {
	bot := &fakeBot{updates: make(chan tgbotapi.Update, 4)}
	tg := NewTelegram(TelegramConfig{AllowFrom: []string{"7"}, Logger: testLogger()})
	tg.bot = bot
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := tg.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	bot.updates <- telegramUpdate(9, 1, "/help")
	bot.updates <- telegramUpdate(7, 2, "/games")
	select {
	case msg := <-tg.Messages():
		if msg.Text != "/games" || msg.ConversationID != "2" {
			t.Fatalf("unexpected message %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for allowed message")
	}
	bot.mu.Lock()
	rejected := len(bot.sent) == 1 && strings.Contains(bot.sent[0], "Unauthorized")
	bot.mu.Unlock()
	if !rejected {
		t.Fatalf("expected unauthorized reply, got %v", bot.sent)
	}

	cancel()
	collect(t, tg.Messages())
	_ = tg.Close()
	bot.mu.Lock()
	defer bot.mu.Unlock()
	if bot.stops != 1 {
		t.Fatalf("expected StopReceivingUpdates once, got %d", bot.stops)
	}
}

func TestTelegramSendChunksLongReplies(t *testing.T) {
	bot := &fakeBot{}
	tg := NewTelegram(TelegramConfig{Logger: testLogger()})
	tg.bot = bot

	line := strings.Repeat("x", 99) + "\n"
	if err := tg.Send(context.Background(), "42", strings.Repeat(line, 60)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("expected two chunks, got %d", len(bot.sent))
	}
	for _, chunk := range bot.sent {
		if len(chunk) > telegramMaxMsgLen {
			t.Fatalf("chunk exceeds limit: %d", len(chunk))
		}
	}
	if err := tg.Send(context.Background(), "not-a-chat", "hi"); err == nil {
		t.Fatal("expected invalid chat id error")
	}
}

func TestTelegramSendDoesNotRetryOrdinaryErrors(t *testing.T) {
	bot := &fakeBot{errs: []error{errors.New("Bad Request: chat not found")}}
	tg := NewTelegram(TelegramConfig{Logger: testLogger()})
	tg.bot = bot
	if err := tg.Send(context.Background(), "42", "hi"); err == nil {
		t.Fatal("expected send error")
	}
	if len(bot.sent) != 0 {
		t.Fatal("expected no retry after a non rate-limit error")
	}
}

func TestSplitMessageKeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("🎲", 30)
	for _, chunk := range splitMessage(text, 10) {
		if !strings.HasPrefix(chunk, "🎲") || len(chunk) > 10 {
			t.Fatalf("unexpected chunk %q", chunk)
		}
	}
	if got := splitMessage("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("unexpected split %v", got)
	}
}

func TestDecodeNATSMessage(t *testing.T) {
	msg, err := decodeNATSMessage([]byte(`{"text":"/price eth","sender":"0xabc","conversation_id":" room-1 "}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if msg.Text != "/price eth" || msg.Sender != "0xabc" || msg.ConversationID != "room-1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	for _, raw := range []string{`not json`, `{"text":"hi"}`} {
		if _, err := decodeNATSMessage([]byte(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestReplySubject(t *testing.T) {
	if got := replySubject("squad.outbound", "room.1 *"); got != "squad.outbound.room_1__" {
		t.Fatalf("unexpected subject %q", got)
	}
}
