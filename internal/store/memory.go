package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryUnitStore is a map-backed UnitStore used by tests and by the
// engine's in-memory mode.
type MemoryUnitStore struct {
	mu    sync.RWMutex
	units map[string]*IndexedUnit
}

// NewMemoryUnitStore creates an empty in-memory store.
func NewMemoryUnitStore() *MemoryUnitStore {
	return &MemoryUnitStore{units: make(map[string]*IndexedUnit)}
}

// PutUnits upserts units. Stored copies are independent of the inputs.
func (m *MemoryUnitStore) PutUnits(ctx context.Context, units []*IndexedUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for _, u := range units {
		cp := *u
		if cp.CreatedAt.IsZero() {
			if old, ok := m.units[u.UnitID]; ok {
				cp.CreatedAt = old.CreatedAt
			} else {
				cp.CreatedAt = now
			}
		}
		cp.UpdatedAt = now
		m.units[u.UnitID] = &cp
	}
	return nil
}

func (m *MemoryUnitStore) GetUnit(ctx context.Context, unitID string) (*IndexedUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.units[unitID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryUnitStore) GetUnits(ctx context.Context, unitIDs []string) ([]*IndexedUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*IndexedUnit, 0, len(unitIDs))
	for _, id := range unitIDs {
		if u, ok := m.units[id]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryUnitStore) GetRange(ctx context.Context, parentID string, start, end int) ([]*IndexedUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*IndexedUnit{}
	for _, u := range m.units {
		if u.ParentID == parentID && u.SequenceIndex >= start && u.SequenceIndex <= end {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SequenceIndex < out[j].SequenceIndex
	})
	return out, nil
}

func (m *MemoryUnitStore) CountSiblings(ctx context.Context, parentID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, u := range m.units {
		if u.ParentID == parentID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryUnitStore) ScanSubstring(ctx context.Context, substring string, limit int) ([]*IndexedUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(substring)
	out := []*IndexedUnit{}
	for _, u := range m.units {
		if strings.Contains(strings.ToLower(u.Text), needle) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ParentID != out[j].ParentID {
			return out[i].ParentID < out[j].ParentID
		}
		return out[i].SequenceIndex < out[j].SequenceIndex
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryUnitStore) DeleteUnits(ctx context.Context, unitIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range unitIDs {
		delete(m.units, id)
	}
	return nil
}

func (m *MemoryUnitStore) AllUnits(ctx context.Context) ([]*IndexedUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*IndexedUnit, 0, len(m.units))
	for _, u := range m.units {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ParentID != out[j].ParentID {
			return out[i].ParentID < out[j].ParentID
		}
		return out[i].SequenceIndex < out[j].SequenceIndex
	})
	return out, nil
}

func (m *MemoryUnitStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.units), nil
}

func (m *MemoryUnitStore) Close() error {
	return nil
}

var _ UnitStore = (*MemoryUnitStore)(nil)
