// Package memory is the default in-memory Collection (§4.7), grounded
// on the teacher's internal/infrastructure/storage/memory.go:
// sync.RWMutex-guarded maps, no external dependency.
package memory

import (
	"context"
	"sync"

	"github.com/flowkit/flowcore/internal/acterr"
	"github.com/flowkit/flowcore/internal/domain"
)

type Store struct {
	mu       sync.RWMutex
	models   map[string]*domain.ModelRow
	procs    map[string]*domain.ProcRow
	tasks    map[string]*domain.TaskRow
	messages map[string]*domain.MessageRow
	events   []*domain.EventRow
	packages map[string]*domain.PackageRow
}

func New() *Store {
	return &Store{
		models:   make(map[string]*domain.ModelRow),
		procs:    make(map[string]*domain.ProcRow),
		tasks:    make(map[string]*domain.TaskRow),
		messages: make(map[string]*domain.MessageRow),
		packages: make(map[string]*domain.PackageRow),
	}
}

func (s *Store) SaveModel(_ context.Context, row *domain.ModelRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *row
	s.models[row.ID] = &cp
	return nil
}

func (s *Store) LoadModel(_ context.Context, id string) (*domain.ModelRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.models[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (s *Store) ListModels(_ context.Context) ([]*domain.ModelRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.ModelRow, 0, len(s.models))
	for _, row := range s.models {
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) SaveProc(_ context.Context, row *domain.ProcRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *row
	s.procs[row.ID] = &cp
	return nil
}

func (s *Store) LoadProc(_ context.Context, id string) (*domain.ProcRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.procs[id]
	if !ok {
		return nil, acterr.Store("process %q not found", id)
	}
	cp := *row
	return &cp, nil
}

func (s *Store) RemoveProc(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.procs, id)
	return nil
}

func (s *Store) ListNonTerminalProcs(_ context.Context, limit int) ([]*domain.ProcRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.ProcRow
	for _, row := range s.procs {
		switch domain.ProcessState(row.State) {
		case domain.ProcessCompleted, domain.ProcessError, domain.ProcessCancelled, domain.ProcessAborted:
			continue
		}
		cp := *row
		out = append(out, &cp)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) SaveTask(_ context.Context, row *domain.TaskRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *row
	s.tasks[row.ID] = &cp
	return nil
}

func (s *Store) LoadTask(_ context.Context, id string) (*domain.TaskRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.tasks[id]
	if !ok {
		return nil, acterr.Store("task %q not found", id)
	}
	cp := *row
	return &cp, nil
}

func (s *Store) ListTasksByProc(_ context.Context, processID string) ([]*domain.TaskRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.TaskRow
	for _, row := range s.tasks {
		if row.ProcessID == processID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) RemoveTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

func (s *Store) SaveMessage(_ context.Context, row *domain.MessageRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *row
	s.messages[row.ID] = &cp
	return nil
}

func (s *Store) LoadMessage(_ context.Context, id string) (*domain.MessageRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.messages[id]
	if !ok {
		return nil, acterr.Store("message %q not found", id)
	}
	cp := *row
	return &cp, nil
}

func (s *Store) ListPendingMessages(_ context.Context, limit int) ([]*domain.MessageRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.MessageRow
	for _, row := range s.messages {
		if domain.MessageState(row.State) == domain.MessageCreated {
			cp := *row
			out = append(out, &cp)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) AppendEvent(_ context.Context, row *domain.EventRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *row
	s.events = append(s.events, &cp)
	return nil
}

func (s *Store) SavePackage(_ context.Context, row *domain.PackageRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *row
	s.packages[row.Name] = &cp
	return nil
}

func (s *Store) LoadPackage(_ context.Context, name string) (*domain.PackageRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.packages[name]
	if !ok {
		return nil, acterr.Store("package %q not found", name)
	}
	cp := *row
	return &cp, nil
}
