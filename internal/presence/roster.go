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

// Roster recomputes and broadcasts the full user list on the shared users
// channel. Presence churn is debounced with a coalescing window so a flurry
// of enter/leave events costs one table scan, not one per flicker. An
// explicit request_users event bypasses the window.
type Roster struct {
	users    repositories.UserRepository
	bus      realtime.Bus
	debounce time.Duration

	kick   chan struct{}
	cancel func()
	done   chan struct{}
}

// NewRoster constructs a Roster broadcaster.
func NewRoster(users repositories.UserRepository, bus realtime.Bus, debounce time.Duration) *Roster {
	return &Roster{
		users:    users,
		bus:      bus,
		debounce: debounce,
		kick:     make(chan struct{}, 1),
	}
}

// Notify schedules a debounced broadcast. Safe to call from any goroutine;
// notifications arriving while one is pending are coalesced.
func (r *Roster) Notify() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Start runs the broadcast loop and answers roster requests until Stop.
func (r *Roster) Start(ctx context.Context) {
	requests, cancel := r.bus.Subscribe(models.ChannelUsers, 16)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-requests:
				if !ok {
					return
				}
				if evt.Name == models.EventRequestUsers {
					r.broadcast(ctx)
				}
			case <-r.kick:
				timer := time.NewTimer(r.debounce)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
				// absorb notifications that arrived during the window
				select {
				case <-r.kick:
				default:
				}
				r.broadcast(ctx)
			}
		}
	}()
}

// Stop detaches from the users channel and waits for the loop to exit.
func (r *Roster) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		<-r.done
	}
}

// broadcast publishes a point-in-time snapshot of every user. The list is
// recomputed from storage each time, never maintained incrementally.
func (r *Roster) broadcast(ctx context.Context) {
	users, err := r.users.ListAll(ctx)
	if err != nil {
		log.Printf("roster: list users failed: %v", err)
		return
	}

	if err := r.bus.Publish(ctx, models.ChannelUsers, models.EventUsersUpdated, users); err != nil {
		log.Printf("roster: broadcast failed: %v", err)
		return
	}
	observability.IncRosterBroadcast()
}
