package engine

import (
	"context"

	"github.com/flowkit/flowcore/internal/domain"
)

// Collection is one pluggable storage surface (§4.7, §6). The engine
// ships an in-memory implementation (pkg/store/memory) and an optional
// Postgres one (pkg/store/pgstore); either can back a Store.
type Collection interface {
	SaveModel(ctx context.Context, row *domain.ModelRow) error
	LoadModel(ctx context.Context, id string) (*domain.ModelRow, error)
	ListModels(ctx context.Context) ([]*domain.ModelRow, error)

	SaveProc(ctx context.Context, row *domain.ProcRow) error
	LoadProc(ctx context.Context, id string) (*domain.ProcRow, error)
	RemoveProc(ctx context.Context, id string) error
	ListNonTerminalProcs(ctx context.Context, limit int) ([]*domain.ProcRow, error)

	SaveTask(ctx context.Context, row *domain.TaskRow) error
	LoadTask(ctx context.Context, id string) (*domain.TaskRow, error)
	ListTasksByProc(ctx context.Context, processID string) ([]*domain.TaskRow, error)
	RemoveTask(ctx context.Context, id string) error

	SaveMessage(ctx context.Context, row *domain.MessageRow) error
	LoadMessage(ctx context.Context, id string) (*domain.MessageRow, error)
	ListPendingMessages(ctx context.Context, limit int) ([]*domain.MessageRow, error)

	AppendEvent(ctx context.Context, row *domain.EventRow) error

	SavePackage(ctx context.Context, row *domain.PackageRow) error
	LoadPackage(ctx context.Context, name string) (*domain.PackageRow, error)
}

// Store wraps a Collection with the process/task snapshotting the
// engine needs (encode/decode Vars), keeping Collection itself a thin,
// backend-agnostic persistence surface (§4.7).
type Store struct {
	coll Collection
	codec Codec
}

// Codec serializes a Vars snapshot for storage. The default is
// msgpack (vmihailenco/msgpack/v5), matching the teacher's choice for
// compact wire/storage encoding.
type Codec interface {
	Encode(v *domain.Vars) ([]byte, error)
	Decode(b []byte) (*domain.Vars, error)
}

func NewStore(coll Collection, codec Codec) *Store {
	return &Store{coll: coll, codec: codec}
}

func (s *Store) Collection() Collection { return s.coll }

// Deploy upserts row by id: redeploying an existing model id bumps
// Version past whatever is already stored and preserves the original
// CreateTime, rather than overwriting them with the incoming model's
// own fields (§4.7 "upsert by id, incrementing version on update and
// preserving create_time on the original row").
func (s *Store) Deploy(ctx context.Context, row *domain.ModelRow) error {
	existing, err := s.coll.LoadModel(ctx, row.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		row.Version = existing.Version + 1
		row.CreateTime = existing.CreateTime
	}
	return s.coll.SaveModel(ctx, row)
}

func (s *Store) SaveProcess(ctx context.Context, p *domain.Process) error {
	envBytes, err := s.codec.Encode(p.LocalEnv)
	if err != nil {
		return err
	}
	row := &domain.ProcRow{
		ID:        p.ID,
		ModelID:   p.ModelID,
		Tag:       p.Tag,
		State:     string(p.State),
		RootTask:  p.RootTask,
		LocalEnv:  envBytes,
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
		Timestamp: p.Timestamp,
	}
	if p.Err != nil {
		row.ErrMsg = p.Err.Error()
	}
	return s.coll.SaveProc(ctx, row)
}

func (s *Store) SaveTask(ctx context.Context, t *domain.Task) error {
	dataBytes, err := s.codec.Encode(t.Data)
	if err != nil {
		return err
	}
	row := &domain.TaskRow{
		ID:        t.ID,
		ProcessID: t.ProcessID,
		NodeID:    t.NodeID,
		Kind:      string(t.Kind),
		Prev:      t.Prev,
		State:     string(t.State()),
		Data:      dataBytes,
		StartTime: t.StartTime,
		EndTime:   t.EndTime,
		Timestamp: t.Timestamp,
	}
	if err := t.Error(); err != nil {
		row.ErrMsg = err.Error()
	}
	return s.coll.SaveTask(ctx, row)
}
