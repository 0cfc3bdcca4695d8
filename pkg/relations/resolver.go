// Package relations defines the lookup collaborator used by relation-typed
// fields. The engine only asks whether a reference resolves; the referenced
// collection lives outside the engine.
package relations

import "context"

// Resolver checks that a value exists in the referenced collection.
type Resolver interface {
	Resolve(ctx context.Context, collection string, value any) (bool, error)
}

// StaticResolver resolves against an in-memory set of known references,
// keyed by collection. Used for composition in tests and development.
type StaticResolver struct {
	entries map[string]map[string]bool
}

// NewStaticResolver creates an empty static resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{entries: make(map[string]map[string]bool)}
}

// Add registers a resolvable reference in a collection.
func (r *StaticResolver) Add(collection, value string) {
	if r.entries[collection] == nil {
		r.entries[collection] = make(map[string]bool)
	}

	r.entries[collection][value] = true
}

// Resolve reports whether the value is known in the collection.
func (r *StaticResolver) Resolve(_ context.Context, collection string, value any) (bool, error) {
	str, ok := value.(string)
	if !ok {
		return false, nil
	}

	return r.entries[collection][str], nil
}
