package objmodel

import "sync"

// Object holds the properties of one interface on one path.
//
// An Object created with deferSignals set stays silent while it is being
// populated: property updates are recorded but not emitted. EmitObjectAdded
// publishes the whole property set in a single InterfacesAdded signal, after
// which every change is emitted as PropertiesChanged.
type Object struct {
	bus   Bus
	path  string
	iface string

	mu       sync.Mutex
	props    map[string]any
	deferred bool
	added    bool
}

func NewObject(bus Bus, path, iface string, deferSignals bool) *Object {
	return &Object{
		bus:      bus,
		path:     path,
		iface:    iface,
		props:    make(map[string]any),
		deferred: deferSignals,
	}
}

func (o *Object) Path() string      { return o.path }
func (o *Object) Interface() string { return o.iface }

// Set stores a property and emits PropertiesChanged unless signals are deferred.
func (o *Object) Set(name string, v any) {
	o.mu.Lock()
	o.props[name] = v
	emit := !o.deferred
	o.mu.Unlock()
	if emit && o.bus != nil {
		o.bus.Emit(Signal{
			Kind:       PropertiesChanged,
			Path:       o.path,
			Interface:  o.iface,
			Properties: map[string]any{name: v},
		})
	}
}

func (o *Object) Get(name string) (any, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.props[name]
	return v, ok
}

// EmitObjectAdded publishes the object. Calling it again is a no-op.
func (o *Object) EmitObjectAdded() {
	o.mu.Lock()
	if o.added {
		o.mu.Unlock()
		return
	}
	o.added = true
	o.deferred = false
	props := copyProps(o.props)
	o.mu.Unlock()
	if o.bus != nil {
		o.bus.Emit(Signal{
			Kind:       InterfacesAdded,
			Path:       o.path,
			Interface:  o.iface,
			Properties: props,
		})
	}
}

// Published reports whether EmitObjectAdded has run.
func (o *Object) Published() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.added
}

// EmitObjectRemoved withdraws a published object.
func (o *Object) EmitObjectRemoved() {
	o.mu.Lock()
	if !o.added {
		o.mu.Unlock()
		return
	}
	o.added = false
	o.mu.Unlock()
	if o.bus != nil {
		o.bus.Emit(Signal{Kind: InterfacesRemoved, Path: o.path, Interface: o.iface})
	}
}
