package domain

import "time"

// The Row types below are the flattened, storage-facing shapes a
// Collection persists (§4.7, §6). They are deliberately decoupled from
// the live Model/Process/Task/Message types the engine operates on so
// that a Collection implementation (bun/pgstore, the in-memory default,
// or any future backend) only needs to know how to marshal a row, not
// how the scheduler uses it.

type ModelRow struct {
	ID         string `bun:",pk" json:"id"`
	Name       string `json:"name"`
	Tag        string `json:"tag"`
	Version    int    `json:"version"`
	Bytes      []byte `json:"bytes"`
	CreateTime time.Time `json:"create_time"`
	UpdateTime time.Time `json:"update_time"`
}

type ProcRow struct {
	ID        string    `bun:",pk" json:"id"`
	ModelID   string    `json:"model_id"`
	Tag       string    `json:"tag"`
	State     string    `json:"state"`
	RootTask  string    `json:"root_task"`
	LocalEnv  []byte    `json:"local_env"` // msgpack-encoded Vars snapshot
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Timestamp time.Time `json:"timestamp"`
	ErrMsg    string    `json:"err_msg"`
}

type TaskRow struct {
	ID        string    `bun:",pk" json:"id"`
	ProcessID string    `json:"process_id"`
	NodeID    string    `json:"node_id"`
	Kind      string    `json:"kind"`
	Prev      string    `json:"prev"`
	State     string    `json:"state"`
	Data      []byte    `json:"data"` // msgpack-encoded Vars snapshot
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Timestamp time.Time `json:"timestamp"`
	ErrMsg    string    `json:"err_msg"`
}

type MessageRow struct {
	ID         string `bun:",pk" json:"id"`
	ProcessID  string `json:"process_id"`
	TaskID     string `json:"task_id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	State      string `json:"state"`
	Data       []byte `json:"data"`
	RetryTimes int    `json:"retry_times"`
	CreateTime time.Time `json:"create_time"`
	UpdateTime time.Time `json:"update_time"`
}

type EventRow struct {
	ID        string    `bun:",pk" json:"id"`
	Kind      string    `json:"kind"`
	State     string    `json:"state"`
	Tag       string    `json:"tag"`
	Key       string    `json:"key"`
	ProcessID string    `json:"process_id"`
	TaskID    string    `json:"task_id"`
	Payload   []byte    `json:"payload"`
	CreateTime time.Time `json:"create_time"`
}

type PackageRow struct {
	Name    string `bun:",pk" json:"name"`
	Desc    string `json:"desc"`
	Version string `json:"version"`
	RunAs   string `json:"run_as"`
	Schema  []byte `json:"schema"`
}
