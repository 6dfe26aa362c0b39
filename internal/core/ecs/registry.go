package ecs

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var errNotRegistered = errors.New("not registered")

// Registry maps type names to unit descriptors so that config files and
// blueprints can refer to attributes and extensions by name.
type Registry struct {
	mu         sync.RWMutex
	attributes map[string]AttributeType
	extensions map[string]ExtensionType
}

func NewRegistry() *Registry {
	return &Registry{
		attributes: make(map[string]AttributeType, 16),
		extensions: make(map[string]ExtensionType, 8),
	}
}

// RegisterAttribute adds an attribute type. Names must be unique.
func (r *Registry) RegisterAttribute(t AttributeType) error {
	if t.Name == "" {
		return fmt.Errorf("register attribute: empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.attributes[t.Name]; dup {
		return fmt.Errorf("register attribute %s: already registered", t.Name)
	}
	r.attributes[t.Name] = t
	return nil
}

// RegisterExtension adds an extension type. Names must be unique.
func (r *Registry) RegisterExtension(t ExtensionType) error {
	if t.Name == "" {
		return fmt.Errorf("register extension: empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.extensions[t.Name]; dup {
		return fmt.Errorf("register extension %s: already registered", t.Name)
	}
	r.extensions[t.Name] = t
	return nil
}

// Attributes resolves names in order. An unknown name is an
// ErrInaccessible construction error.
func (r *Registry) Attributes(names ...string) ([]AttributeType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AttributeType, 0, len(names))
	for _, name := range names {
		t, ok := r.attributes[name]
		if !ok {
			return nil, &ConstructionError{Unit: "attribute", Type: name, Kind: ErrInaccessible,
				Err: errNotRegistered}
		}
		out = append(out, t)
	}
	return out, nil
}

// Extensions resolves names in order, see Attributes.
func (r *Registry) Extensions(names ...string) ([]ExtensionType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ExtensionType, 0, len(names))
	for _, name := range names {
		t, ok := r.extensions[name]
		if !ok {
			return nil, &ConstructionError{Unit: "extension", Type: name, Kind: ErrInaccessible,
				Err: errNotRegistered}
		}
		out = append(out, t)
	}
	return out, nil
}

// AttributeNames returns the registered attribute names, sorted.
func (r *Registry) AttributeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.attributes))
	for name := range r.attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExtensionNames returns the registered extension names, sorted.
func (r *Registry) ExtensionNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.extensions))
	for name := range r.extensions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
