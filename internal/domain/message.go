package domain

import "time"

// MessageType distinguishes an irq-backed blocking call from an
// msg-backed fire-and-forget emission (§4.6, §6).
type MessageType string

const (
	MessageIrq MessageType = "irq"
	MessageMsg MessageType = "msg"
)

// MessageState tracks delivery, separate from the owning Task's own
// state so retries can be replayed without touching the task (§4.9).
type MessageState string

const (
	MessageCreated   MessageState = "created"
	MessageAcked     MessageState = "acked"
	MessageCompleted MessageState = "completed"
	MessageError     MessageState = "error"
)

// Message is one emitted unit of work for a package run_as Irq/Msg
// (§4.6, §6). The Event Channel (§4.8) fans these out to subscribers
// and tracks ack/retry against RetryTimes.
type Message struct {
	ID        string
	ProcessID string
	TaskID    string
	Name      string
	Type      MessageType
	Key       string
	Tag       string
	State     MessageState

	Inputs  map[string]any
	Outputs map[string]any

	RetryTimes int
	MaxRetries int

	CreateTime time.Time
	UpdateTime time.Time
}

func NewMessage(id, processID, taskID, name string, typ MessageType, maxRetries int) *Message {
	return &Message{
		ID:         id,
		ProcessID:  processID,
		TaskID:     taskID,
		Name:       name,
		Type:       typ,
		State:      MessageCreated,
		MaxRetries: maxRetries,
		CreateTime: time.Now(),
		UpdateTime: time.Now(),
	}
}

// CanRetry reports whether another delivery attempt is allowed.
func (m *Message) CanRetry() bool { return m.RetryTimes < m.MaxRetries }
