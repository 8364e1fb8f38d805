package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akave-ai/apicapture/internal/model"
)

// MemoryOutputRepository keeps output definitions in process memory.
// Used when no database is configured.
type MemoryOutputRepository struct {
	mu      sync.RWMutex
	outputs map[uuid.UUID]model.Output
	now     func() time.Time
}

func NewMemoryOutputRepository() *MemoryOutputRepository {
	return &MemoryOutputRepository{
		outputs: make(map[uuid.UUID]model.Output),
		now:     time.Now,
	}
}

func (r *MemoryOutputRepository) Create(_ context.Context, out *model.Output) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	out.CreatedAt = r.now().UTC()
	r.outputs[out.ID] = *out
	return nil
}

func (r *MemoryOutputRepository) List(_ context.Context) ([]model.Output, error) {
	r.mu.RLock()
	list := make([]model.Output, 0, len(r.outputs))
	for _, o := range r.outputs {
		list = append(list, o)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (r *MemoryOutputRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Output, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.outputs[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *MemoryOutputRepository) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.outputs[id]; !ok {
		return false, nil
	}
	delete(r.outputs, id)
	return true, nil
}
