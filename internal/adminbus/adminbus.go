// Package adminbus relays client presence and chat traffic between
// netserver processes over NATS, so an operator running more than one
// simulation server behind a load balancer still sees one chat room and
// one presence roster (spec §6 opcodes 4-7) instead of one per process.
package adminbus

import (
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/mattlee78/netstate/pkg/log"
)

// PresenceEvent mirrors an OpClientConnected/OpClientDisconnected
// notification across the bus.
type PresenceEvent struct {
	ClientID uint16
	Username string
	Joined   bool
}

// ChatEvent mirrors an OpSubmitChat/OpReceiveChat exchange across the
// bus.
type ChatEvent struct {
	FromID uint16
	ToID   uint16
	Line   string
}

const (
	presenceSubject = "netstate.presence"
	chatSubject     = "netstate.chat"
)

// Bus wraps a NATS connection carrying presence and chat relay traffic
// between netserver processes.
type Bus struct {
	conn          *nats.Conn
	mu            sync.Mutex
	subscriptions []*nats.Subscription
}

// Config holds the connection settings for a Bus.
type Config struct {
	Address       string
	Username      string
	Password      string
	CredsFilePath string
}

// Connect dials the NATS server described by cfg. A Bus is optional
// infrastructure: callers that don't configure an address should simply
// not construct one and run single-process instead.
func Connect(cfg Config) (*Bus, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("adminbus: address is required")
	}

	var opts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}
	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			log.Warnf("adminbus: disconnected: %v", err)
		}
	}))
	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		log.Infof("adminbus: reconnected to %s", nc.ConnectedUrl())
	}))

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("adminbus: connect failed: %w", err)
	}

	log.Infof("adminbus: connected to %s", cfg.Address)
	return &Bus{conn: nc}, nil
}

// PublishPresence broadcasts ev to every other process sharing this bus.
func (b *Bus) PublishPresence(ev PresenceEvent) error {
	return b.publish(presenceSubject, encodePresence(ev))
}

// PublishChat broadcasts ev to every other process sharing this bus.
func (b *Bus) PublishChat(ev ChatEvent) error {
	return b.publish(chatSubject, encodeChat(ev))
}

func (b *Bus) publish(subject string, payload []byte) error {
	if err := b.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("adminbus: publish to %q failed: %w", subject, err)
	}
	return nil
}

// OnPresence subscribes handler to presence events published by any
// process sharing this bus.
func (b *Bus) OnPresence(handler func(PresenceEvent)) error {
	sub, err := b.conn.Subscribe(presenceSubject, func(msg *nats.Msg) {
		ev, err := decodePresence(msg.Data)
		if err != nil {
			log.Warnf("adminbus: malformed presence event: %v", err)
			return
		}
		handler(ev)
	})
	if err != nil {
		return fmt.Errorf("adminbus: subscribe to presence failed: %w", err)
	}
	b.mu.Lock()
	b.subscriptions = append(b.subscriptions, sub)
	b.mu.Unlock()
	return nil
}

// OnChat subscribes handler to chat events published by any process
// sharing this bus.
func (b *Bus) OnChat(handler func(ChatEvent)) error {
	sub, err := b.conn.Subscribe(chatSubject, func(msg *nats.Msg) {
		ev, err := decodeChat(msg.Data)
		if err != nil {
			log.Warnf("adminbus: malformed chat event: %v", err)
			return
		}
		handler(ev)
	})
	if err != nil {
		return fmt.Errorf("adminbus: subscribe to chat failed: %w", err)
	}
	b.mu.Lock()
	b.subscriptions = append(b.subscriptions, sub)
	b.mu.Unlock()
	return nil
}

// Close unsubscribes everything and closes the underlying connection.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			log.Warnf("adminbus: unsubscribe failed: %v", err)
		}
	}
	b.subscriptions = nil
	b.conn.Close()
}
