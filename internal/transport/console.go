package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const ConsoleConversation = "console"

// Console reads one message per line from In and writes replies to Out.
type Console struct {
	in     io.Reader
	out    io.Writer
	sender string
	logger *slog.Logger

	writeMu sync.Mutex
	box     *inbox
}

type ConsoleConfig struct {
	In     io.Reader
	Out    io.Writer
	Sender string
	Logger *slog.Logger
}

func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Console{
		in:     cfg.In,
		out:    cfg.Out,
		sender: strings.TrimSpace(cfg.Sender),
		logger: cfg.Logger,
		box:    newInbox(16),
	}
}

func (c *Console) Name() string { return "console" }

// Connect starts reading input. The inbound stream closes on EOF, on /quit or
// when ctx is cancelled.
func (c *Console) Connect(ctx context.Context) error {
	go func() {
		defer c.box.close()
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			line := scanner.Text()
			switch strings.TrimSpace(line) {
			case "":
				continue
			case "/quit", "/exit", "/q":
				c.logger.Info("console quit requested")
				return
			}
			if !c.box.deliver(ctx, Message{Text: line, Sender: c.sender, ConversationID: ConsoleConversation}) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			c.logger.Warn("console read failed", "err", err)
		}
	}()
	return nil
}

func (c *Console) Messages() <-chan Message { return c.box.ch }

func (c *Console) Send(_ context.Context, _ string, text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := fmt.Fprintln(c.out, text)
	return err
}

func (c *Console) Close() error {
	c.box.close()
	return nil
}
