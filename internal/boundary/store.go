package boundary

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/siteplan/internal/apperr"
	"github.com/sells-group/siteplan/internal/config"
	"github.com/sells-group/siteplan/internal/db"
	"github.com/sells-group/siteplan/internal/parcel"
)

// ErrNotFound is returned when a project has no saved boundary.
var ErrNotFound = eris.New("boundary not found")

// Saved is a persisted boundary with the parcels it was built from.
type Saved struct {
	ProjectID string           `json:"project_id"`
	SaveID    string           `json:"save_id"`
	Boundary  Boundary         `json:"boundary"`
	Parcels   []parcel.Feature `json:"parcels"`
	SavedAt   time.Time        `json:"saved_at"`
}

// Store persists one boundary per project. Saving replaces any earlier
// boundary for the project, so repeating a save is idempotent.
type Store interface {
	SaveProjectBoundary(ctx context.Context, projectID string, parcels []parcel.Feature, b *Boundary) (*Saved, error)
	GetProjectBoundary(ctx context.Context, projectID string) (*Saved, error)
	Close() error
}

// NewStore opens the store named by cfg.Driver.
func NewStore(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(pool), nil
	case "sqlite":
		s, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case "memory", "":
		return NewMemoryStore(), nil
	default:
		return nil, eris.Errorf("boundary: unsupported store driver %q", cfg.Driver)
	}
}

func validateSave(projectID string, parcels []parcel.Feature, b *Boundary) error {
	if strings.TrimSpace(projectID) == "" {
		return apperr.Validation("project id is required")
	}
	if b == nil || b.Geometry == nil {
		return apperr.Validation("boundary geometry is required")
	}
	if len(parcels) == 0 {
		return apperr.Validation("select at least one parcel")
	}
	for _, f := range parcels {
		if strings.TrimSpace(f.Key) == "" {
			return eris.Wrap(apperr.ErrMissingBusinessKey, "boundary: save")
		}
	}
	return nil
}

func persistErr(err error, msg string) error {
	return eris.Wrapf(apperr.ErrPersistenceFailed, "%s: %v", msg, err)
}

// MemoryStore keeps boundaries in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	saved map[string]Saved
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{saved: make(map[string]Saved), now: time.Now}
}

// SaveProjectBoundary implements Store.
func (m *MemoryStore) SaveProjectBoundary(_ context.Context, projectID string, parcels []parcel.Feature, b *Boundary) (*Saved, error) {
	if err := validateSave(projectID, parcels, b); err != nil {
		return nil, err
	}
	s := Saved{
		ProjectID: projectID,
		SaveID:    uuid.New().String(),
		Boundary:  *b,
		Parcels:   slices.Clone(parcels),
		SavedAt:   m.now().UTC(),
	}
	m.mu.Lock()
	m.saved[projectID] = s
	m.mu.Unlock()
	return &s, nil
}

// GetProjectBoundary implements Store.
func (m *MemoryStore) GetProjectBoundary(_ context.Context, projectID string) (*Saved, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.saved[projectID]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "project %s", projectID)
	}
	s.Parcels = slices.Clone(s.Parcels)
	return &s, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
