package alert

import (
	"context"
	"sort"
	"sync"
	"time"

	"coinstream/internal/model"
)

// MemoryStore is an in-process AlertStore.
type MemoryStore struct {
	mu     sync.Mutex
	alerts map[string]*model.AlertSpec
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{alerts: make(map[string]*model.AlertSpec)}
}

func (s *MemoryStore) ListActive(_ context.Context, symbol string) ([]model.AlertSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AlertSpec
	for _, a := range s.alerts {
		if a.Symbol == symbol && a.Active {
			out = append(out, *a)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *MemoryStore) List(_ context.Context) ([]model.AlertSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AlertSpec, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, *a)
	}
	sortByCreated(out)
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, a model.AlertSpec) (model.AlertSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.alerts[a.ID] = &cp
	return cp, nil
}

// MarkTriggered flips is_triggered under the store lock, so only one of
// several concurrent callers wins.
func (s *MemoryStore) MarkTriggered(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return false, model.ErrAlertNotFound
	}
	if !a.Armed() {
		return false, nil
	}
	a.Triggered = true
	a.TriggeredAt = &at
	return true, nil
}

func (s *MemoryStore) Reset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return model.ErrAlertNotFound
	}
	a.Triggered = false
	a.TriggeredAt = nil
	return nil
}

func sortByCreated(a []model.AlertSpec) {
	sort.Slice(a, func(i, j int) bool {
		if a[i].CreatedAt.Equal(a[j].CreatedAt) {
			return a[i].ID < a[j].ID
		}
		return a[i].CreatedAt.Before(a[j].CreatedAt)
	})
}
