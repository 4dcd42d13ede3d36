package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/squad-agent/internal/errors"
	"github.com/nats-io/nats.go"
)

const (
	DefaultNATSInboundSubject = "squad.inbound"
	DefaultNATSOutboundPrefix = "squad.outbound"
	natsConnectionName        = "squadbot"
	natsReconnectWait         = 2 * time.Second
	natsMaxConversationLen    = 128
)

// NATS consumes JSON messages from one subject and publishes each reply on
// <outbound prefix>.<conversation id>.
type NATS struct {
	url            string
	inboundSubject string
	outboundPrefix string
	logger         *slog.Logger

	nc  *nats.Conn
	sub *nats.Subscription
	box *inbox
}

type NATSConfig struct {
	URL            string
	InboundSubject string
	OutboundPrefix string
	Logger         *slog.Logger
}

type natsReply struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

func NewNATS(cfg NATSConfig) *NATS {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.InboundSubject == "" {
		cfg.InboundSubject = DefaultNATSInboundSubject
	}
	if cfg.OutboundPrefix == "" {
		cfg.OutboundPrefix = DefaultNATSOutboundPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &NATS{
		url:            cfg.URL,
		inboundSubject: cfg.InboundSubject,
		outboundPrefix: strings.TrimSuffix(cfg.OutboundPrefix, "."),
		logger:         cfg.Logger,
		box:            newInbox(64),
	}
}

func (n *NATS) Name() string { return "nats" }

func (n *NATS) Connect(ctx context.Context) error {
	nc, err := nats.Connect(n.url,
		nats.Name(natsConnectionName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(natsReconnectWait),
	)
	if err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "connect nats", err)
	}
	n.nc = nc
	sub, err := nc.Subscribe(n.inboundSubject, func(msg *nats.Msg) {
		decoded, err := decodeNATSMessage(msg.Data)
		if err != nil {
			n.logger.Warn("dropping malformed nats message", "subject", msg.Subject, "err", err)
			return
		}
		n.box.deliver(ctx, decoded)
	})
	if err != nil {
		nc.Close()
		return clierr.Wrap(clierr.CodeUnavailable, "subscribe "+n.inboundSubject, err)
	}
	n.sub = sub
	n.logger.Info("nats transport subscribed", "url", n.url, "subject", n.inboundSubject)
	go func() {
		<-ctx.Done()
		_ = sub.Drain()
		n.box.close()
	}()
	return nil
}

func (n *NATS) Messages() <-chan Message { return n.box.ch }

func (n *NATS) Send(_ context.Context, conversationID, text string) error {
	if n.nc == nil {
		return clierr.New(clierr.CodeUnavailable, "nats transport is not connected")
	}
	data, err := json.Marshal(natsReply{ConversationID: conversationID, Text: text})
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "encode nats reply", err)
	}
	if err := n.nc.Publish(replySubject(n.outboundPrefix, conversationID), data); err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "publish nats reply", err)
	}
	return nil
}

func (n *NATS) Close() error {
	if n.sub != nil {
		_ = n.sub.Unsubscribe()
	}
	n.box.close()
	if n.nc != nil {
		if err := n.nc.Drain(); err != nil {
			n.nc.Close()
		}
	}
	return nil
}

func decodeNATSMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, clierr.Wrap(clierr.CodeInvalidArguments, "decode nats message", err)
	}
	msg.ConversationID = strings.TrimSpace(msg.ConversationID)
	if msg.ConversationID == "" {
		return Message{}, clierr.New(clierr.CodeInvalidArguments, "nats message is missing conversation_id")
	}
	if len(msg.ConversationID) > natsMaxConversationLen {
		return Message{}, clierr.New(clierr.CodeInvalidArguments, "nats conversation_id is too long")
	}
	return msg, nil
}

// replySubject turns a conversation id into a single subject token.
func replySubject(prefix, conversationID string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, conversationID)
	return prefix + "." + token
}
