package presence

import (
	"context"
	"log"
	"time"

	"chatrelay/internal/models"
	"chatrelay/internal/observability"
	"chatrelay/internal/realtime"
	"chatrelay/internal/repositories"
)

// Mirror subscribes to the presence channel and reflects enter/leave events
// into storage. The presence channel is a cache of users.isonline, never a
// separate source of truth, so every event is written through.
type Mirror struct {
	users  repositories.UserRepository
	bus    realtime.Bus
	roster *Roster

	cancel func()
	done   chan struct{}
}

// NewMirror constructs a Mirror. roster is poked after every mirrored event.
func NewMirror(users repositories.UserRepository, bus realtime.Bus, roster *Roster) *Mirror {
	return &Mirror{users: users, bus: bus, roster: roster}
}

// Start attaches to the presence channel and processes events until Stop.
func (m *Mirror) Start(ctx context.Context) {
	events, cancel := m.bus.Subscribe(models.ChannelPresence, 64)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				m.apply(ctx, evt)
			}
		}
	}()
}

// Stop detaches from the presence channel and waits for the loop to exit.
func (m *Mirror) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.done != nil {
		<-m.done
	}
}

func (m *Mirror) apply(ctx context.Context, evt models.Event) {
	data, ok := evt.Data.(models.PresenceData)
	if !ok || data.UserID == "" {
		log.Printf("presence: ignoring malformed event %q", evt.Name)
		return
	}

	switch evt.Name {
	case models.EventEnter:
		if err := m.users.SetOnline(ctx, data.UserID); err != nil {
			log.Printf("presence: set online failed user_id=%s: %v", data.UserID, err)
			return
		}
	case models.EventLeave:
		if err := m.users.SetOffline(ctx, data.UserID, time.Now().UTC()); err != nil {
			log.Printf("presence: set offline failed user_id=%s: %v", data.UserID, err)
			return
		}
	default:
		return
	}

	observability.IncPresenceEvent(evt.Name)
	m.roster.Notify()
}
