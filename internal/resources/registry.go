package resources

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	errNilDescriptor   = errors.New("resources: nil descriptor")
	errEmptyName       = errors.New("resources: name is required")
	errEmptyTable      = errors.New("resources: table name is required")
	errReservedName    = errors.New("resources: name conflicts with a reserved command")
	errDelimiterInName = errors.New("resources: name must not contain the command delimiter")
)

// reservedNames are command identifiers that can never resolve to a resource.
var reservedNames = map[string]struct{}{
	"find_resources": {},
}

// Registry maps resource names to their descriptors. Registration is
// write-once per resource: re-registering an existing name is a no-op, so the
// registry is safe to populate idempotently from concurrent start-up paths
// and is effectively immutable afterwards.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]Descriptor
}

// NewRegistry constructs an empty resource registry.
func NewRegistry() *Registry {
	return &Registry{resources: make(map[string]Descriptor)}
}

// Register adds a descriptor under its resource name. Registering a name that
// already exists returns nil without replacing the prior descriptor.
func (r *Registry) Register(desc Descriptor) error {
	if desc == nil {
		return errNilDescriptor
	}

	name := strings.ToLower(strings.TrimSpace(desc.Name()))
	if name == "" {
		return errEmptyName
	}
	if strings.Contains(name, "_") {
		return fmt.Errorf("%w: %q", errDelimiterInName, name)
	}
	if _, reserved := reservedNames[name]; reserved {
		return fmt.Errorf("%w: %q", errReservedName, name)
	}
	if strings.TrimSpace(desc.TableName()) == "" {
		return fmt.Errorf("%w: %q", errEmptyTable, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resources[name]; exists {
		return nil
	}
	r.resources[name] = desc
	return nil
}

// MustRegister wraps Register and panics on error for init-time declarations.
func (r *Registry) MustRegister(desc Descriptor) {
	if err := r.Register(desc); err != nil {
		panic(err)
	}
}

// Get fetches a descriptor by resource name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.resources[strings.ToLower(strings.TrimSpace(name))]
	return desc, ok
}

// All returns the registered descriptors sorted by name.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Descriptor, 0, len(r.resources))
	for _, desc := range r.resources {
		list = append(list, desc)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// Names returns the sorted registered resource names.
func (r *Registry) Names() []string {
	all := r.All()
	names := make([]string, 0, len(all))
	for _, desc := range all {
		names = append(names, desc.Name())
	}
	return names
}

// Reset clears the registry. Intended for test use only.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources = make(map[string]Descriptor)
}
