package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(id string) *Client {
	return &Client{
		id:   id,
		send: make(chan *WSEvent, sendBufferSize),
		subs: make(map[string]bool),
	}
}

func TestHub_BroadcastReachesOnlySubscribedClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	subscribed := newTestClient("c1")
	unrelated := newTestClient("c2")
	hub.register <- subscribed
	hub.register <- unrelated
	time.Sleep(5 * time.Millisecond)

	hub.Subscribe(subscribed, "p1")
	hub.Subscribe(unrelated, "p2")

	hub.Broadcast("p1", &WSEvent{Type: "task", ProcessID: "p1"})

	select {
	case evt := <-subscribed.send:
		assert.Equal(t, "p1", evt.ProcessID)
	case <-time.After(time.Second):
		t.Fatal("subscribed client never received the event")
	}

	select {
	case evt := <-unrelated.send:
		t.Fatalf("unrelated client should not have received %v", evt)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_ClientWithNoSubscriptionsReceivesNothing(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	listener := newTestClient("c1")
	hub.register <- listener
	time.Sleep(5 * time.Millisecond)

	hub.Broadcast("any-process", &WSEvent{Type: "task", ProcessID: "any-process"})

	select {
	case evt := <-listener.send:
		t.Fatalf("client with no subscriptions should receive nothing, got %v", evt)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c := newTestClient("c1")
	hub.register <- c
	time.Sleep(5 * time.Millisecond)

	hub.Subscribe(c, "p1")
	hub.Unsubscribe(c, "p1")

	hub.Broadcast("p1", &WSEvent{Type: "task", ProcessID: "p1"})

	select {
	case evt := <-c.send:
		t.Fatalf("client should not receive events after unsubscribing, got %v", evt)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesSendChannel(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	c := newTestClient("c1")
	hub.register <- c
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, 1, hub.ClientCount())

	hub.unregister <- c
	time.Sleep(5 * time.Millisecond)

	_, ok := <-c.send
	assert.False(t, ok, "send channel should be closed after unregister")
	assert.Equal(t, 0, hub.ClientCount())
}
