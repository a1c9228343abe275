package amendments

import (
	"fmt"
	"sync"

	"github.com/partnerdesk/partnerdesk/internal/shared"
)

// SnapshotSchema validates the documents of one entity kind. A kind must be
// registered before entities of that kind can be versioned or amended.
type SnapshotSchema interface {
	// ValidateChange checks a partial change payload.
	ValidateChange(changes map[string]any) error
	// ValidateSnapshot checks a full (merged) document.
	ValidateSnapshot(snapshot map[string]any) error
}

// Registry maps entity kinds to their snapshot schemas.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]SnapshotSchema
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]SnapshotSchema)}
}

// Register binds a schema to a kind, replacing any previous binding.
func (r *Registry) Register(kind string, schema SnapshotSchema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind] = schema
}

func (r *Registry) schema(kind string) (SnapshotSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schema, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("amendments: unknown entity kind %q: %w", kind, shared.ErrValidation)
	}
	return schema, nil
}

// ValidateChange validates a partial change payload for a kind.
func (r *Registry) ValidateChange(kind string, changes map[string]any) error {
	schema, err := r.schema(kind)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return fmt.Errorf("amendments: empty change payload: %w", shared.ErrValidation)
	}
	return schema.ValidateChange(changes)
}

// ValidateSnapshot validates a full document for a kind.
func (r *Registry) ValidateSnapshot(kind string, snapshot map[string]any) error {
	schema, err := r.schema(kind)
	if err != nil {
		return err
	}
	return schema.ValidateSnapshot(snapshot)
}

// mergeSnapshot applies changes over the current snapshot. The merge is
// shallow: a key present in changes replaces the stored value outright, and
// an explicit null clears it.
func mergeSnapshot(current, changes map[string]any) map[string]any {
	merged := make(map[string]any, len(current)+len(changes))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range changes {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	return merged
}
