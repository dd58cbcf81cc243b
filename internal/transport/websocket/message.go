// Package websocket is the optional real-time gateway over the Event
// Channel (§11, §4.8): it fans domain.Event records out to subscribed
// browser/CLI clients over a websocket connection, grounded on the
// teacher's infrastructure/websocket package (hub/client/handler split,
// register/unregister/broadcast channels driving a single Hub goroutine).
package websocket

import "time"

// WSEvent is the wire shape sent from server to client: a thin
// projection of domain.Event plus a send-time timestamp.
type WSEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	ProcessID string    `json:"process_id"`
	TaskID    string    `json:"task_id,omitempty"`
	State     string    `json:"state,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	Key       string    `json:"key,omitempty"`
}

// Command types (client -> server).
const (
	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"
)

// WSCommand is the wire shape a client sends to manage its own
// subscriptions.
type WSCommand struct {
	Action    string `json:"action"`
	ProcessID string `json:"process_id"`
}

// WSResponse acknowledges a WSCommand.
type WSResponse struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newSuccessResponse(responseType, message string) *WSResponse {
	return &WSResponse{Type: responseType, Success: true, Message: message}
}

func newErrorResponse(responseType, errMsg string) *WSResponse {
	return &WSResponse{Type: responseType, Success: false, Error: errMsg}
}
