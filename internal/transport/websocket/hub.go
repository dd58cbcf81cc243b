package websocket

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Broadcaster is what a Gateway needs from the Hub: fan one event out
// to whichever clients subscribed to its process.
type Broadcaster interface {
	Broadcast(processID string, event *WSEvent)
}

type broadcastMsg struct {
	processID string
	event     *WSEvent
}

// Hub owns every connected Client and the process-id subscription
// index, serialized through its own goroutine (Run) exactly like the
// teacher's Hub: register/unregister/broadcast channels rather than a
// mutex around connection life-cycle, since accepting/dropping clients
// races with broadcasting far more than data structure access alone
// would suggest.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg

	mu         sync.RWMutex
	byProcess  map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMsg, 256),
		byProcess:  make(map[string]map[*Client]bool),
	}
}

// Run drains the hub's channels in an endless loop; it has no stop
// signal, so callers run it in its own goroutine for the life of the
// program.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.dropClient(c)
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	log.Debug().Str("client_id", c.id).Int("total_clients", len(h.clients)).Msg("websocket client registered")
}

func (h *Hub) dropClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)

	c.subsMu.RLock()
	for pid := range c.subs {
		if set, ok := h.byProcess[pid]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.byProcess, pid)
			}
		}
	}
	c.subsMu.RUnlock()
	log.Debug().Str("client_id", c.id).Int("total_clients", len(h.clients)).Msg("websocket client unregistered")
}

// Broadcast implements Broadcaster (§11): only clients that
// subscribed to processID receive the event. A client that never
// subscribes to anything receives nothing, matching the Event
// Channel's own pattern-subscription model (§4.8) rather than
// defaulting to firehose delivery.
func (h *Hub) Broadcast(processID string, event *WSEvent) {
	h.broadcast <- &broadcastMsg{processID: processID, event: event}
}

func (h *Hub) deliver(msg *broadcastMsg) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set, ok := h.byProcess[msg.processID]
	if !ok {
		return
	}
	for c := range set {
		select {
		case c.send <- msg.event:
		default:
			log.Warn().Str("client_id", c.id).Msg("websocket client send buffer full, dropping event")
		}
	}
}

// Subscribe narrows c's feed to processID.
func (h *Hub) Subscribe(c *Client, processID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	c.subs[processID] = true
	if h.byProcess[processID] == nil {
		h.byProcess[processID] = make(map[*Client]bool)
	}
	h.byProcess[processID][c] = true
}

// Unsubscribe undoes a prior Subscribe.
func (h *Hub) Unsubscribe(c *Client, processID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	delete(c.subs, processID)
	if set, ok := h.byProcess[processID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byProcess, processID)
		}
	}
}

// ClientCount reports how many clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
