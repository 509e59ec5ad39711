package analysis

import (
	"sync"
)

// Store is the in-memory item collection. All mutations funnel through
// single-item updates keyed by id, so a settling request and a user action
// can never clobber each other's writes.
type Store struct {
	mu    sync.Mutex
	items map[string]*Item
	order []string
}

func NewStore() *Store {
	return &Store{items: make(map[string]*Item)}
}

// Add inserts a new item, preserving upload order.
func (s *Store) Add(it *Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[it.ID]; exists {
		return
	}
	s.items[it.ID] = it
	s.order = append(s.order, it.ID)
}

// Get returns a copy of the item, if present.
func (s *Store) Get(id string) (*Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return it.clone(), true
}

// List returns copies of all items in upload order.
func (s *Store) List() []*Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].clone())
	}
	return out
}

// Update applies fn to the item under the store lock. Updates targeting an
// id that has been removed are a no-op, which is how results from in-flight
// requests for deleted items get discarded.
func (s *Store) Update(id string, fn func(*Item)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return false
	}
	fn(it)
	return true
}

// Remove deletes the item. Any later settlement for the id is dropped.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// ClearTenant detaches every assignment pointing at a deleted tenant.
func (s *Store) ClearTenant(tenantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		if it.Assignment.TenantID == tenantID {
			it.Assignment = Assignment{}
			n++
		}
	}
	return n
}

// Len returns the number of items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
