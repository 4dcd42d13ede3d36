package agent

import (
	"context"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/ggonzalez94/squad-agent/internal/command"
	"github.com/ggonzalez94/squad-agent/internal/dispatch"
	"github.com/ggonzalez94/squad-agent/internal/transport"
	"golang.org/x/sync/errgroup"
)

const DefaultSendTimeout = 30 * time.Second

type Handler interface {
	Handle(ctx context.Context, cmd command.Command) dispatch.Result
}

type Options struct {
	// Workers > 1 shards conversations across workers; order within one
	// conversation is always preserved.
	Workers     int
	SendTimeout time.Duration
	Logger      *slog.Logger
}

// Agent pumps transport messages through the parser and dispatcher and sends
// at most one reply per message.
type Agent struct {
	transport transport.Transport
	handler   Handler
	workers   int
	sendTO    time.Duration
	logger    *slog.Logger
}

func New(t transport.Transport, h Handler, opts Options) *Agent {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Agent{
		transport: t,
		handler:   h,
		workers:   opts.Workers,
		sendTO:    opts.SendTimeout,
		logger:    opts.Logger,
	}
}

// Run blocks until ctx is cancelled or the inbound stream ends. In-flight
// handlers finish on a context detached from ctx, so a submitted transaction
// still gets its full confirmation wait.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.transport.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := a.transport.Close(); err != nil {
			a.logger.Warn("transport close failed", "transport", a.transport.Name(), "err", err)
		}
	}()
	a.logger.Info("agent started", "transport", a.transport.Name(), "workers", a.workers)

	work := context.WithoutCancel(ctx)
	queues := make([]chan transport.Message, a.workers)
	var g errgroup.Group
	for i := range queues {
		queue := make(chan transport.Message, 16)
		queues[i] = queue
		g.Go(func() error {
			for msg := range queue {
				a.process(work, msg)
			}
			return nil
		})
	}

	inbound := a.transport.Messages()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case msg, ok := <-inbound:
			if !ok {
				break loop
			}
			queues[a.shard(msg.ConversationID)] <- msg
		}
	}
	for _, queue := range queues {
		close(queue)
	}
	err := g.Wait()
	a.logger.Info("agent stopped", "transport", a.transport.Name())
	return err
}

func (a *Agent) shard(conversationID string) int {
	if a.workers == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return int(h.Sum32() % uint32(a.workers))
}

func (a *Agent) process(ctx context.Context, msg transport.Message) {
	cmd := command.Parse(msg.Text, msg.Sender, msg.ConversationID)
	if cmd.IsNoop() {
		return
	}
	started := time.Now()
	res := a.handler.Handle(ctx, cmd)
	reply, ok := res.Reply()
	if !ok {
		return
	}
	a.logger.Debug("command handled",
		"conversation", msg.ConversationID,
		"command", cmd.Name,
		"kind", res.Kind.String(),
		"elapsed", time.Since(started),
	)
	sendCtx, cancel := context.WithTimeout(ctx, a.sendTO)
	defer cancel()
	if err := a.transport.Send(sendCtx, msg.ConversationID, reply); err != nil {
		a.logger.Warn("reply send failed", "conversation", msg.ConversationID, "command", cmd.Name, "err", err)
	}
}
