package realtime

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"chatrelay/internal/models"
	"chatrelay/internal/observability"
	"chatrelay/internal/rabbitmq"
)

// Bus is the publish/subscribe surface server components depend on.
type Bus interface {
	Publish(ctx context.Context, channel, event string, data any) error
	Subscribe(channel string, buffer int) (<-chan models.Event, func())
}

// Broker is the in-process realtime fan-out: websocket clients and local
// subscribers attach to named channels, publishers address channels by name.
// Delivery is per-channel FIFO, best-effort; slow consumers are dropped
// rather than allowed to backpressure the publisher.
type Broker struct {
	mu       sync.RWMutex
	channels map[string]map[*Conn]bool
	conns    map[*Conn]bool
	subs     map[string]map[*subscription]bool
	mirror   rabbitmq.Publisher
	closed   bool
}

type subscription struct {
	channel   string
	ch        chan models.Event
	closeOnce sync.Once
}

func (s *subscription) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// NewBroker creates an empty broker. The mirror publisher receives a copy of
// every published event and may be a noop.
func NewBroker(mirror rabbitmq.Publisher) *Broker {
	return &Broker{
		channels: make(map[string]map[*Conn]bool),
		conns:    make(map[*Conn]bool),
		subs:     make(map[string]map[*subscription]bool),
		mirror:   mirror,
	}
}

// Publish delivers an event to every websocket and in-process subscriber of
// the channel, then mirrors it to the external exchange best-effort.
func (b *Broker) Publish(ctx context.Context, channel, event string, data any) error {
	evt := models.Event{Channel: channel, Name: event, Data: data}
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	conns := make([]*Conn, 0, len(b.channels[channel]))
	for conn := range b.channels[channel] {
		conns = append(conns, conn)
	}
	subs := make([]*subscription, 0, len(b.subs[channel]))
	for sub := range b.subs[channel] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	class := channelClass(channel)
	observability.IncBrokerPublish(class)

	for _, conn := range conns {
		if !conn.enqueue(payload) {
			log.Printf("broker: dropping slow connection conn_id=%s channel=%s", conn.info.ConnID, channel)
			observability.IncBrokerDropped(class)
			conn.closeOnce()
		}
	}

	for _, sub := range subs {
		select {
		case sub.ch <- evt:
		default:
			log.Printf("broker: local subscriber lagging channel=%s", channel)
			observability.IncBrokerDropped(class)
		}
	}

	if b.mirror != nil {
		routingKey := strings.ReplaceAll(channel, ":", ".")
		if err := b.mirror.Publish(ctx, routingKey, evt); err != nil {
			observability.IncAMQPPublishError()
		}
	}
	return nil
}

// Subscribe attaches an in-process consumer to a channel. The returned func
// detaches it and closes the event channel; it is safe to call twice.
func (b *Broker) Subscribe(channel string, buffer int) (<-chan models.Event, func()) {
	sub := &subscription{channel: channel, ch: make(chan models.Event, buffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	if _, ok := b.subs[channel]; !ok {
		b.subs[channel] = make(map[*subscription]bool)
	}
	b.subs[channel][sub] = true
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if subs, ok := b.subs[channel]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(b.subs, channel)
			}
		}
		b.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel
}

// register adds an authenticated websocket connection and announces its
// presence.
func (b *Broker) register(conn *Conn) {
	b.mu.Lock()
	b.conns[conn] = true
	b.mu.Unlock()

	observability.IncWSActive()
	observability.IncWSEvent("connect")

	_ = b.Publish(context.Background(), models.ChannelPresence, models.EventEnter,
		models.PresenceData{UserID: conn.info.UserID})
}

// unregister removes a websocket connection from every channel and announces
// its departure.
func (b *Broker) unregister(conn *Conn) {
	b.mu.Lock()
	if !b.conns[conn] {
		b.mu.Unlock()
		return
	}
	delete(b.conns, conn)
	for channel, conns := range b.channels {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(b.channels, channel)
		}
	}
	b.mu.Unlock()

	observability.DecWSActive()
	observability.IncWSEvent("disconnect")

	_ = b.Publish(context.Background(), models.ChannelPresence, models.EventLeave,
		models.PresenceData{UserID: conn.info.UserID})
}

// subscribeConn attaches a websocket connection to a channel after checking
// the connection's capability for it.
func (b *Broker) subscribeConn(conn *Conn, channel string) {
	if !conn.mayAttach(channel) {
		log.Printf("broker: subscribe denied conn_id=%s user_id=%s channel=%s", conn.info.ConnID, conn.info.UserID, channel)
		observability.IncWSEvent("subscribe_denied")
		return
	}

	b.mu.Lock()
	if b.closed || !b.conns[conn] {
		b.mu.Unlock()
		return
	}
	if _, ok := b.channels[channel]; !ok {
		b.channels[channel] = make(map[*Conn]bool)
	}
	b.channels[channel][conn] = true
	b.mu.Unlock()

	observability.IncWSEvent("subscribe")
}

func (b *Broker) unsubscribeConn(conn *Conn, channel string) {
	b.mu.Lock()
	if conns, ok := b.channels[channel]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(b.channels, channel)
		}
	}
	b.mu.Unlock()

	observability.IncWSEvent("unsubscribe")
}

// handleCommand dispatches a client control frame. Client-side publish is
// honored only for the roster request on the users channel.
func (b *Broker) handleCommand(conn *Conn, cmd models.Command) {
	switch cmd.Action {
	case models.ActionSubscribe:
		b.subscribeConn(conn, cmd.Channel)
	case models.ActionUnsubscribe:
		b.unsubscribeConn(conn, cmd.Channel)
	case models.ActionPublish:
		if cmd.Channel == models.ChannelUsers && cmd.Event == models.EventRequestUsers {
			_ = b.Publish(context.Background(), models.ChannelUsers, models.EventRequestUsers,
				models.PresenceData{UserID: conn.info.UserID})
			return
		}
		log.Printf("broker: publish denied conn_id=%s channel=%s event=%s", conn.info.ConnID, cmd.Channel, cmd.Event)
	default:
		log.Printf("broker: unknown action %q conn_id=%s", cmd.Action, conn.info.ConnID)
	}
}

// Close tears down every connection and subscription. The broker is unusable
// afterwards.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	conns := make([]*Conn, 0, len(b.conns))
	for conn := range b.conns {
		conns = append(conns, conn)
	}
	b.conns = make(map[*Conn]bool)
	b.channels = make(map[string]map[*Conn]bool)
	subs := b.subs
	b.subs = make(map[string]map[*subscription]bool)
	b.mu.Unlock()

	for _, conn := range conns {
		conn.closeOnce()
	}
	for _, channelSubs := range subs {
		for sub := range channelSubs {
			sub.close()
		}
	}
}

// BrokerStats is a point-in-time snapshot of broker occupancy.
type BrokerStats struct {
	Connections      int            `json:"connections"`
	LocalSubscribers int            `json:"localSubscribers"`
	Channels         map[string]int `json:"channels"`
}

// Stats reports connection and subscription counts per channel.
func (b *Broker) Stats() BrokerStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := BrokerStats{
		Connections: len(b.conns),
		Channels:    make(map[string]int, len(b.channels)),
	}
	for channel, conns := range b.channels {
		stats.Channels[channel] = len(conns)
	}
	for channel, subs := range b.subs {
		stats.Channels[channel] += len(subs)
		stats.LocalSubscribers += len(subs)
	}
	return stats
}

func channelClass(channel string) string {
	if idx := strings.IndexByte(channel, ':'); idx > 0 {
		return channel[:idx]
	}
	return channel
}
