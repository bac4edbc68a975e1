// Package objmodel is the in-process object server that control objects are
// registered with. Objects live at slash-separated paths and expose named
// interfaces carrying properties; every change is published as a Signal to
// any number of subscribers.
package objmodel

import (
	"sort"
	"sync"
	"time"
)

type SignalKind string

const (
	InterfacesAdded   SignalKind = "InterfacesAdded"
	PropertiesChanged SignalKind = "PropertiesChanged"
	InterfacesRemoved SignalKind = "InterfacesRemoved"
)

// Signal is one externally observable change on the object tree.
type Signal struct {
	Kind       SignalKind     `json:"kind"`
	Path       string         `json:"path"`
	Interface  string         `json:"interface"`
	Properties map[string]any `json:"properties,omitempty"`
	At         time.Time      `json:"at"`
}

// Bus is the connection handle control objects emit signals on.
type Bus interface {
	Emit(sig Signal)
}

// ObjectSnapshot is a point-in-time copy of one object.
type ObjectSnapshot struct {
	Path       string                    `json:"path"`
	Interfaces map[string]map[string]any `json:"interfaces"`
}

// Server keeps the published object tree and fans signals out to subscribers.
// Slow subscribers drop signals rather than block emitters.
type Server struct {
	mu      sync.RWMutex
	subs    map[int]chan Signal
	nextID  int
	objects map[string]map[string]map[string]any
	emitted uint64
}

func NewServer() *Server {
	return &Server{
		subs:    make(map[int]chan Signal),
		objects: make(map[string]map[string]map[string]any),
	}
}

func (s *Server) Subscribe(buffer int) (int, <-chan Signal) {
	if s == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Signal, buffer)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()
	return id, ch
}

func (s *Server) Unsubscribe(id int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	ch, ok := s.subs[id]
	if ok {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
}

// Emit applies sig to the object tree and delivers it to subscribers.
func (s *Server) Emit(sig Signal) {
	if s == nil {
		return
	}
	if sig.At.IsZero() {
		sig.At = time.Now().UTC()
	}
	sig.Properties = copyProps(sig.Properties)

	s.mu.Lock()
	s.applyLocked(sig)
	s.emitted++
	subs := make([]chan Signal, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	// Deliver under the lock so Unsubscribe cannot close a channel mid-send.
	for _, ch := range subs {
		select {
		case ch <- sig:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Server) applyLocked(sig Signal) {
	switch sig.Kind {
	case InterfacesAdded:
		ifaces := s.objects[sig.Path]
		if ifaces == nil {
			ifaces = make(map[string]map[string]any)
			s.objects[sig.Path] = ifaces
		}
		ifaces[sig.Interface] = copyProps(sig.Properties)
	case PropertiesChanged:
		ifaces := s.objects[sig.Path]
		if ifaces == nil || ifaces[sig.Interface] == nil {
			return
		}
		for k, v := range sig.Properties {
			ifaces[sig.Interface][k] = v
		}
	case InterfacesRemoved:
		ifaces := s.objects[sig.Path]
		if ifaces == nil {
			return
		}
		delete(ifaces, sig.Interface)
		if len(ifaces) == 0 {
			delete(s.objects, sig.Path)
		}
	}
}

// Objects returns the published objects sorted by path.
func (s *Server) Objects() []ObjectSnapshot {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ObjectSnapshot, 0, len(s.objects))
	for path, ifaces := range s.objects {
		snap := ObjectSnapshot{Path: path, Interfaces: make(map[string]map[string]any, len(ifaces))}
		for name, props := range ifaces {
			snap.Interfaces[name] = copyProps(props)
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Property looks up one published property value.
func (s *Server) Property(path, iface, name string) (any, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.objects[path][iface][name]
	return v, ok
}

// Emitted returns the total number of signals emitted so far.
func (s *Server) Emitted() uint64 {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emitted
}

func copyProps(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
