// Package objects holds the versioned domain objects (Node, Port) that cross
// the RPC boundary, and the backport rules that let an older reader consume
// an object serialized by a newer writer.
package objects

import (
    "fmt"
    "sync"

    "github.com/redhat-openstack/ironic/pkg/version"
)

// Object is the wire form of a versioned domain object. Data holds only the
// fields that exist at Version; a field introduced later than Version must
// never appear (older readers reject unknown keys).
type Object struct {
    Type    string         `cbor:"type" json:"type"`
    Version string         `cbor:"version" json:"version"`
    Data    map[string]any `cbor:"data" json:"data"`
}

// VersionParsed parses the object's version string.
func (o *Object) VersionParsed() (version.Version, error) { return version.Parse(o.Version) }

// Field returns a data field (nil when absent).
func (o *Object) Field(name string) any {
    if o.Data == nil { return nil }
    return o.Data[name]
}

// ActionFunc runs a named action against the authoritative copy of an object.
// It returns the action's result and the set of fields it changed; changed
// fields are version-shaped before they travel back to the caller.
type ActionFunc func(obj *Object, args []any, kwargs map[string]any) (result any, changed map[string]any, err error)

// ClassActionFunc runs a type-scoped action with no pre-existing instance.
type ClassActionFunc func(args []any, kwargs map[string]any) (any, error)

// TypeSpec declares a versioned object type: its latest version, the version
// at which each field was introduced, and the actions it supports.
type TypeSpec struct {
    Name         string
    Latest       version.Version
    Fields       map[string]version.Version
    Actions      map[string]ActionFunc
    ClassActions map[string]ClassActionFunc
}

// Registry maps type names to specs. It is populated once at startup and
// read-only afterwards.
type Registry struct {
    mu    sync.RWMutex
    types map[string]*TypeSpec
}

func NewRegistry() *Registry { return &Registry{types: make(map[string]*TypeSpec)} }

// DefaultRegistry returns a registry preloaded with the built-in types.
func DefaultRegistry() *Registry {
    r := NewRegistry()
    r.Register(NodeSpec())
    r.Register(PortSpec())
    return r
}

func (r *Registry) Register(s *TypeSpec) {
    r.mu.Lock(); r.types[s.Name] = s; r.mu.Unlock()
}

func (r *Registry) Get(name string) (*TypeSpec, bool) {
    r.mu.RLock(); defer r.mu.RUnlock()
    s, ok := r.types[name]
    return s, ok
}

// New constructs an Object of the named type at its latest version with the
// provided initial fields. Unknown field names are rejected.
func (r *Registry) New(typeName string, fields map[string]any) (*Object, error) {
    spec, ok := r.Get(typeName)
    if !ok {
        return nil, fmt.Errorf("objects: unknown type %q", typeName)
    }
    data := make(map[string]any, len(fields))
    for k, v := range fields {
        if _, known := spec.Fields[k]; !known {
            return nil, fmt.Errorf("objects: %s has no field %q", typeName, k)
        }
        data[k] = v
    }
    return &Object{Type: typeName, Version: spec.Latest.String(), Data: data}, nil
}

// Backport returns a copy of obj downgraded to target: every field introduced
// after target is dropped and the version is rewritten. Backporting to a
// version newer than the object's own, or to one the type never had, fails.
func (r *Registry) Backport(obj *Object, target version.Version) (*Object, error) {
    spec, ok := r.Get(obj.Type)
    if !ok {
        return nil, fmt.Errorf("objects: unknown type %q", obj.Type)
    }
    have, err := obj.VersionParsed()
    if err != nil { return nil, err }
    if target.Compare(have) > 0 {
        return nil, fmt.Errorf("objects: cannot backport %s %s forward to %s", obj.Type, obj.Version, target)
    }
    if target.Major != spec.Latest.Major || target.Compare(spec.Latest) > 0 {
        return nil, fmt.Errorf("objects: %s has no version %s", obj.Type, target)
    }
    out := &Object{Type: obj.Type, Version: target.String(), Data: ShapeFields(spec, obj.Data, target)}
    return out, nil
}

// ShapeFields filters a field map down to the fields that exist at target.
// Fields the type spec does not know are dropped as well.
func ShapeFields(spec *TypeSpec, fields map[string]any, target version.Version) map[string]any {
    out := make(map[string]any, len(fields))
    for k, v := range fields {
        at, known := spec.Fields[k]
        if !known { continue }
        if at.Compare(target) > 0 { continue }
        out[k] = v
    }
    return out
}
