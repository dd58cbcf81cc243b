package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/flowkit/flowcore/internal/domain"
	"github.com/flowkit/flowcore/internal/engine"
)

// Gateway wires a Hub to a Runtime's Event Channel (§4.8, §11): every
// published domain.Event is projected to a WSEvent and broadcast to
// whichever clients subscribed to its process. It is optional — a
// Runtime works without ever constructing one.
type Gateway struct {
	hub *Hub
}

// NewGateway subscribes id against channel and returns a Gateway ready
// to serve http.Handler connections; call Run in its own goroutine
// before accepting traffic.
func NewGateway(channel *engine.Channel, id string) (*Gateway, error) {
	hub := NewHub()
	gw := &Gateway{hub: hub}

	err := channel.Subscribe(id, "**", false, func(_ context.Context, e *domain.Event) error {
		hub.Broadcast(e.ProcessID, &WSEvent{
			Type:      string(e.Kind),
			Timestamp: time.Now(),
			ProcessID: e.ProcessID,
			TaskID:    e.TaskID,
			State:     e.State,
			Tag:       e.Tag,
			Key:       e.Key,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return gw, nil
}

// Run drains the underlying Hub until the caller's process exits.
// Intended to be launched with `go gw.Run()` once, at startup.
func (gw *Gateway) Run() { gw.hub.Run() }

// Handler returns the http.Handler that upgrades and registers new
// websocket connections.
func (gw *Gateway) Handler() http.Handler { return NewHandler(gw.hub) }

// ClientCount reports how many websocket clients are currently
// connected.
func (gw *Gateway) ClientCount() int { return gw.hub.ClientCount() }
