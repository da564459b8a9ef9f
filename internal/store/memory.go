package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"appshell/internal/models"

	"github.com/google/uuid"
)

// MemoryProjectStore keeps projects in process. It mirrors ProjectStore's
// semantics (owner scoping, unique names per owner, updated_at refresh) and
// backs tests and database-less local runs.
type MemoryProjectStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]models.Project
	now  func() time.Time
}

func NewMemoryProjectStore() *MemoryProjectStore {
	return &MemoryProjectStore{
		rows: make(map[uuid.UUID]models.Project),
		now:  time.Now,
	}
}

func (m *MemoryProjectStore) List(_ context.Context, owner uuid.UUID, params ListParams) ([]models.Project, error) {
	params = params.Normalized()
	q := strings.ToLower(params.Q)

	m.mu.RLock()
	out := []models.Project{}
	for _, p := range m.rows {
		if p.OwnerID != owner {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) {
			continue
		}
		out = append(out, p)
	}
	m.mu.RUnlock()

	sort.Slice(out, memoryOrder(out, params.Sort))
	if params.Offset >= len(out) {
		return []models.Project{}, nil
	}
	out = out[params.Offset:]
	if len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

// memoryOrder supports the first sort key only; the default matches the SQL
// fallback "created_at DESC, id ASC".
func memoryOrder(ps []models.Project, sortParam string) func(i, j int) bool {
	key := strings.TrimSpace(strings.Split(sortParam, ",")[0])
	desc := strings.HasPrefix(key, "-")
	key = strings.TrimPrefix(key, "-")

	var less func(a, b models.Project) bool
	switch key {
	case "name":
		less = func(a, b models.Project) bool { return a.Name < b.Name }
	case "created_at":
		less = func(a, b models.Project) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "updated_at":
		less = func(a, b models.Project) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case "id":
		less = func(a, b models.Project) bool { return a.ID.String() < b.ID.String() }
	default:
		return func(i, j int) bool {
			if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
				return ps[i].CreatedAt.After(ps[j].CreatedAt)
			}
			return ps[i].ID.String() < ps[j].ID.String()
		}
	}
	return func(i, j int) bool {
		if desc {
			return less(ps[j], ps[i])
		}
		return less(ps[i], ps[j])
	}
}

func (m *MemoryProjectStore) Get(_ context.Context, owner, id uuid.UUID) (models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.rows[id]
	if !ok || p.OwnerID != owner {
		return models.Project{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryProjectStore) Create(_ context.Context, owner uuid.UUID, in models.CreateProjectRequest) (models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameTaken(owner, in.Name, uuid.Nil) {
		return models.Project{}, ErrConflict
	}
	p := models.Project{
		Base:        models.NewBase(m.now()),
		OwnerID:     owner,
		Name:        in.Name,
		Description: in.Description,
	}
	m.rows[p.ID] = p
	return p, nil
}

func (m *MemoryProjectStore) Update(_ context.Context, owner, id uuid.UUID, in models.UpdateProjectRequest) (models.Project, error) {
	if in.Name == nil && in.Description == nil {
		return models.Project{}, models.ErrNothingToUpdate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok || p.OwnerID != owner {
		return models.Project{}, ErrNotFound
	}
	if in.Name != nil && m.nameTaken(owner, *in.Name, id) {
		return models.Project{}, ErrConflict
	}
	in.Apply(&p)
	p.Touch(m.now())
	m.rows[id] = p
	return p, nil
}

func (m *MemoryProjectStore) Delete(_ context.Context, owner, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok || p.OwnerID != owner {
		return ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *MemoryProjectStore) nameTaken(owner uuid.UUID, name string, except uuid.UUID) bool {
	for id, p := range m.rows {
		if id != except && p.OwnerID == owner && p.Name == name {
			return true
		}
	}
	return false
}
