package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/ggonzalez94/squad-agent/internal/command"
)

type Handler interface {
	Handle(ctx context.Context, cmd command.Command) Result
}

type HandlerFunc func(ctx context.Context, cmd command.Command) Result

func (f HandlerFunc) Handle(ctx context.Context, cmd command.Command) Result { return f(ctx, cmd) }

// Described handlers are listed by /help with their usage line.
type Described interface {
	Usage() string
	Summary() string
}

// Dispatcher routes commands to handlers by name. It holds no business logic.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{handlers: map[string]Handler{}, logger: logger}
}

// Register binds name to h. A later registration for the same name wins.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[strings.ToLower(strings.TrimSpace(name))] = h
}

// Names lists registered command names, sorted, without the chat fallback.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		if name == command.Chat {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) lookup(name string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[name]
	return h, ok
}

// Handle never panics and never returns a Go error; every outcome is a Result.
func (d *Dispatcher) Handle(ctx context.Context, cmd command.Command) (res Result) {
	if cmd.IsNoop() {
		return NoReply()
	}
	h, ok := d.lookup(cmd.Name)
	if command.Reserved(cmd.Name) && !cmd.IsChat() {
		ok = false
	}
	if !ok {
		msg := "unknown command"
		if cmd.Name != "" {
			msg = fmt.Sprintf("unknown command /%s", cmd.Name)
		}
		return Failure(KindUnknownCommand, msg, "Try /help to see the available commands.")
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command handler panicked",
				"command", cmd.Name,
				"conversation", cmd.ConversationID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			res = Failure(KindInternal, "internal error while running /"+cmd.Name, "Please try again later.")
		}
	}()
	res = h.Handle(ctx, cmd)
	if !res.OK() && !res.IsNoReply() {
		d.logger.Info("command failed", "command", cmd.Name, "conversation", cmd.ConversationID, "kind", res.Kind.String())
	}
	return res
}

// Description is the /help entry of one registered command.
type Description struct {
	Name    string `json:"name"`
	Usage   string `json:"usage"`
	Summary string `json:"summary,omitempty"`
}

// Describe lists registered commands in Names order.
func (d *Dispatcher) Describe() []Description {
	names := d.Names()
	out := make([]Description, 0, len(names))
	for _, name := range names {
		h, _ := d.lookup(name)
		desc := Description{Name: name, Usage: "/" + name}
		if described, ok := h.(Described); ok {
			desc.Usage, desc.Summary = described.Usage(), described.Summary()
		}
		out = append(out, desc)
	}
	return out
}

func (d *Dispatcher) helpText() string {
	var b strings.Builder
	b.WriteString("📖 Available commands:")
	for _, desc := range d.Describe() {
		b.WriteString("\n")
		b.WriteString(desc.Usage)
		if desc.Summary != "" {
			b.WriteString(" - ")
			b.WriteString(desc.Summary)
		}
	}
	return b.String()
}
