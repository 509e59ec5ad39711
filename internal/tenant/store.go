// Package tenant holds the in-memory tenant registry. The app is
// session-only: tenants live exactly as long as the process, except for the
// synthetic read-only tenant a share link reconstructs.
package tenant

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/baloghm/meterbill/constants"
	"github.com/baloghm/meterbill/internal/common"
)

// Tenant is a billable entity with an ordered list of meter names.
type Tenant struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Meters   []string `json:"meters"`
	ReadOnly bool     `json:"readOnly,omitempty"`
}

type Store struct {
	mu      sync.Mutex
	tenants map[string]*Tenant
	order   []string
}

func NewStore() *Store {
	return &Store{tenants: make(map[string]*Tenant)}
}

// Create registers a tenant. An empty meter list falls back to the
// predefined catalogue.
func (s *Store) Create(name string, meters []string) (*Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, common.NewAppError("TENANT_INVALID", "tenant name is required", common.ErrInvalidInput)
	}
	if len(meters) == 0 {
		meters = append([]string(nil), constants.DefaultMeterNames...)
	}
	t := &Tenant{
		ID:     uuid.New().String(),
		Name:   name,
		Meters: normalizeMeters(meters),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
	s.order = append(s.order, t.ID)
	return cloneTenant(t), nil
}

// Install registers a pre-built tenant (used for share-link reconstruction).
func (s *Store) Install(t *Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tenants[t.ID]; exists {
		return
	}
	cp := cloneTenant(t)
	s.tenants[cp.ID] = cp
	s.order = append(s.order, cp.ID)
}

// Update renames a tenant and/or replaces its meter list.
func (s *Store) Update(id, name string, meters []string) (*Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, common.NewAppError("TENANT_NOT_FOUND", fmt.Sprintf("tenant %s not found", id), common.ErrNotFound)
	}
	if t.ReadOnly {
		return nil, common.NewAppError("TENANT_READ_ONLY", "shared tenants cannot be edited", common.ErrConflict)
	}
	if name = strings.TrimSpace(name); name != "" {
		t.Name = name
	}
	if meters != nil {
		t.Meters = normalizeMeters(meters)
	}
	return cloneTenant(t), nil
}

// Delete removes a tenant. The caller is responsible for clearing item
// assignments that referenced it.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[id]; !ok {
		return false
	}
	delete(s.tenants, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Store) Get(id string) (*Tenant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, false
	}
	return cloneTenant(t), true
}

func (s *Store) List() []*Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Tenant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneTenant(s.tenants[id]))
	}
	return out
}

func normalizeMeters(meters []string) []string {
	out := make([]string, 0, len(meters))
	seen := make(map[string]struct{}, len(meters))
	for _, m := range meters {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func cloneTenant(t *Tenant) *Tenant {
	cp := *t
	cp.Meters = append([]string(nil), t.Meters...)
	return &cp
}
