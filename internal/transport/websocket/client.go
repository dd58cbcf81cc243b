package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

// Client is one connected websocket peer. It receives nothing until it
// sends at least one "subscribe" command naming a process id.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan *WSEvent

	id string

	subsMu sync.RWMutex
	subs   map[string]bool
}

func NewClient(id string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan *WSEvent, sendBufferSize),
		id:   id,
		subs: make(map[string]bool),
	}
}

// readPump pumps subscribe/unsubscribe commands from the connection
// into the hub until the connection closes.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client_id", c.id).Msg("websocket unexpected close")
			}
			return
		}

		var cmd WSCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.sendResponse(newErrorResponse("error", "invalid command format"))
			continue
		}
		c.handleCommand(&cmd)
	}
}

// writePump pumps events the hub routed to this client onto the
// connection, pinging on an idle timer to keep the peer's read
// deadline from expiring.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleCommand(cmd *WSCommand) {
	switch cmd.Action {
	case CmdSubscribe:
		if cmd.ProcessID == "" {
			c.sendResponse(newErrorResponse(CmdSubscribe, "process_id required"))
			return
		}
		c.hub.Subscribe(c, cmd.ProcessID)
		c.sendResponse(newSuccessResponse(CmdSubscribe, "subscribed to "+cmd.ProcessID))

	case CmdUnsubscribe:
		if cmd.ProcessID == "" {
			c.sendResponse(newErrorResponse(CmdUnsubscribe, "process_id required"))
			return
		}
		c.hub.Unsubscribe(c, cmd.ProcessID)
		c.sendResponse(newSuccessResponse(CmdUnsubscribe, "unsubscribed from "+cmd.ProcessID))

	default:
		c.sendResponse(newErrorResponse("error", "unknown command: "+cmd.Action))
	}
}

func (c *Client) sendResponse(resp *WSResponse) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteJSON(resp)
}
