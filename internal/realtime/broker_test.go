package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/mocks"
	"chatrelay/internal/models"
)

func receiveEvent(t *testing.T, ch <-chan models.Event) models.Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "channel closed before event arrived")
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return models.Event{}
	}
}

func expectClosed(t *testing.T, ch <-chan models.Event) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.False(t, ok, "expected channel to be closed")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for close")
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	broker := NewBroker(nil)
	defer broker.Close()

	events, cancel := broker.Subscribe("chat:general", 4)
	defer cancel()

	err := broker.Publish(context.Background(), "chat:general", models.EventMessage,
		models.EnrichedMessage{Message: models.Message{ID: "m1", ChatID: "general"}})
	require.NoError(t, err)

	evt := receiveEvent(t, events)
	assert.Equal(t, "chat:general", evt.Channel)
	assert.Equal(t, models.EventMessage, evt.Name)
}

func TestPublishIsChannelScoped(t *testing.T) {
	broker := NewBroker(nil)
	defer broker.Close()

	general, cancelGeneral := broker.Subscribe("chat:general", 4)
	defer cancelGeneral()
	random, cancelRandom := broker.Subscribe("chat:random", 4)
	defer cancelRandom()

	require.NoError(t, broker.Publish(context.Background(), "chat:random", models.EventMessage, nil))

	receiveEvent(t, random)
	select {
	case evt := <-general:
		t.Fatalf("unexpected event on chat:general: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	broker := NewBroker(nil)
	defer broker.Close()

	events, cancel := broker.Subscribe("chat:general", 4)
	cancel()
	expectClosed(t, events)

	// a second cancel is a no-op
	cancel()

	require.NoError(t, broker.Publish(context.Background(), "chat:general", models.EventMessage, nil))
}

func TestSlowSubscriberIsSkippedNotBlocked(t *testing.T) {
	broker := NewBroker(nil)
	defer broker.Close()

	events, cancel := broker.Subscribe("chat:general", 1)
	defer cancel()

	require.NoError(t, broker.Publish(context.Background(), "chat:general", models.EventMessage, "first"))
	require.NoError(t, broker.Publish(context.Background(), "chat:general", models.EventMessage, "second"))

	evt := receiveEvent(t, events)
	assert.Equal(t, "first", evt.Data)
	select {
	case evt := <-events:
		t.Fatalf("expected second event dropped, got %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMirrorReceivesPublishedEvents(t *testing.T) {
	mirror := new(mocks.PublisherMock)
	broker := NewBroker(mirror)
	defer broker.Close()

	mirror.On("Publish", mock.Anything, "chat.general", mock.MatchedBy(func(event any) bool {
		evt, ok := event.(models.Event)
		return ok && evt.Channel == "chat:general" && evt.Name == models.EventMessage
	})).Return(nil).Once()

	require.NoError(t, broker.Publish(context.Background(), "chat:general", models.EventMessage, nil))
	mirror.AssertExpectations(t)
}

func TestMirrorFailureDoesNotFailPublish(t *testing.T) {
	mirror := new(mocks.PublisherMock)
	broker := NewBroker(mirror)
	defer broker.Close()

	mirror.On("Publish", mock.Anything, "presence", mock.Anything).Return(assert.AnError).Once()

	events, cancel := broker.Subscribe(models.ChannelPresence, 4)
	defer cancel()

	require.NoError(t, broker.Publish(context.Background(), models.ChannelPresence, models.EventEnter,
		models.PresenceData{UserID: "u1"}))
	receiveEvent(t, events)
	mirror.AssertExpectations(t)
}

func TestCloseClosesSubscribers(t *testing.T) {
	broker := NewBroker(nil)

	events, cancel := broker.Subscribe("chat:general", 4)
	broker.Close()
	expectClosed(t, events)

	// cancel after Close is a no-op
	cancel()

	// publish after Close delivers nothing and reports no error
	require.NoError(t, broker.Publish(context.Background(), "chat:general", models.EventMessage, nil))
}

func TestStatsCountsSubscriptions(t *testing.T) {
	broker := NewBroker(nil)
	defer broker.Close()

	_, cancelA := broker.Subscribe("chat:general", 4)
	defer cancelA()
	_, cancelB := broker.Subscribe("chat:general", 4)
	_, cancelC := broker.Subscribe(models.ChannelPresence, 4)
	defer cancelC()

	stats := broker.Stats()
	assert.Equal(t, 0, stats.Connections)
	assert.Equal(t, 3, stats.LocalSubscribers)
	assert.Equal(t, 2, stats.Channels["chat:general"])
	assert.Equal(t, 1, stats.Channels[models.ChannelPresence])

	cancelB()
	stats = broker.Stats()
	assert.Equal(t, 2, stats.LocalSubscribers)
	assert.Equal(t, 1, stats.Channels["chat:general"])
}

func TestSubscribeAfterClose(t *testing.T) {
	broker := NewBroker(nil)
	broker.Close()

	events, cancel := broker.Subscribe("chat:general", 4)
	defer cancel()
	expectClosed(t, events)
}
