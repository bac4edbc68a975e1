package hwmon

import (
	"sort"

	"hwmon-ng/internal/objmodel"
)

// SensorKey identifies a sensor by hwmon type and instance, e.g. {"fan", "1"}.
type SensorKey struct {
	Type string
	ID   string
}

func (k SensorKey) String() string { return k.Type + k.ID }

// Target is a writable control point exposed on the object model.
type Target interface {
	Kind() InterfaceKind
	ObjectPath() string
	Value() uint32
	SetValue(v uint32) error
	EmitObjectAdded()
	Published() bool
}

// Registry holds at most one Target per InterfaceKind for a sensor object.
//
// Registry is not safe for concurrent use; it belongs to the goroutine that
// sets its sensor up.
type Registry struct {
	m map[InterfaceKind]Target
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[InterfaceKind]Target)}
}

// Set stores t under kind, replacing any previous entry for that kind.
func (r *Registry) Set(kind InterfaceKind, t Target) {
	r.m[kind] = t
}

func (r *Registry) Get(kind InterfaceKind) (Target, bool) {
	t, ok := r.m[kind]
	return t, ok
}

func (r *Registry) Len() int { return len(r.m) }

// Kinds returns the registered kinds in ascending order.
func (r *Registry) Kinds() []InterfaceKind {
	out := make([]InterfaceKind, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Each calls fn for every registered target in kind order.
func (r *Registry) Each(fn func(kind InterfaceKind, t Target)) {
	for _, k := range r.Kinds() {
		fn(k, r.m[k])
	}
}

// ObjectInfo is everything needed to attach interfaces to one sensor object:
// the bus connection, the object path and the sensor's interface registry.
type ObjectInfo struct {
	Bus      objmodel.Bus
	Path     string
	Registry *Registry
}

func NewObjectInfo(bus objmodel.Bus, path string) *ObjectInfo {
	return &ObjectInfo{Bus: bus, Path: path, Registry: NewRegistry()}
}
