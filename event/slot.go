package event

import (
	"fmt"
	"sync"

	"github.com/yaoapp/events/event/types"
)

// Slot is a named event owned by a component, with its own local handlers.
// Dispatching a slot runs the local handlers and the manager's listeners
// for the same name, in an order chosen per slot.
type Slot struct {
	name        string
	manager     *Manager
	globalFirst *bool

	mu       sync.RWMutex
	handlers []*listenerEntry
	seq      int
}

// NewSlot creates a slot. manager may be nil for a slot with local handlers only.
func NewSlot(name string, manager *Manager, opts ...SlotOption) *Slot {
	s := &Slot{name: types.NormalizeName(name), manager: manager}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateEvent creates a slot bound to this manager.
func (m *Manager) CreateEvent(name string, opts ...SlotOption) *Slot {
	return NewSlot(name, m, opts...)
}

// Emit creates a slot and dispatches it once. The slot is returned so the
// caller can attach local handlers for later dispatches.
func (m *Manager) Emit(name string, args ...any) (*Slot, error) {
	s := m.CreateEvent(name)
	return s, s.Dispatch(args...)
}

// Name returns the event name.
func (s *Slot) Name() string { return s.name }

// Add appends a local handler at priority 0.
func (s *Slot) Add(fn types.Listener) *Slot {
	return s.AddWithPriority(fn, 0)
}

// AddWithPriority appends a local handler.
func (s *Slot) AddWithPriority(fn types.Listener, priority int) *Slot {
	s.add(fn, priority)
	return s
}

func (s *Slot) add(fn types.Listener, priority int) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.handlers = append(s.handlers, &listenerEntry{
		info:     types.ListenerInfo{Subscriber: s.name, Priority: priority, Closure: true},
		key:      fmt.Sprintf("%s#%d", s.name, s.seq),
		listener: fn,
	})
}

// Len returns the number of local handlers.
func (s *Slot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// GlobalFirst reports whether the manager's listeners run before the local ones.
func (s *Slot) GlobalFirst() bool {
	if s.globalFirst != nil {
		return *s.globalFirst
	}
	if s.manager == nil {
		return false
	}
	s.manager.mu.RLock()
	defer s.manager.mu.RUnlock()
	return s.manager.globalDispatchFirst
}

// Dispatch creates an event with the arguments and dispatches it.
func (s *Slot) Dispatch(args ...any) error {
	if err := types.ValidateName(s.name); err != nil {
		return err
	}
	return s.DispatchEvent(types.NewEvent(s.name, args...))
}

// DispatchEvent runs both handler sets for ev. A stop requested by the first
// set also skips the second.
func (s *Slot) DispatchEvent(ev *types.Event) error {
	if s.manager == nil {
		return s.dispatchLocal(ev, nil)
	}

	s.manager.mu.RLock()
	handler := s.manager.exceptionHandler
	s.manager.mu.RUnlock()

	if s.GlobalFirst() {
		if err := s.manager.DispatchEvent(ev); err != nil {
			return err
		}
		if ev.IsPropagationStopped() {
			return nil
		}
		return s.dispatchLocal(ev, handler)
	}

	if err := s.dispatchLocal(ev, handler); err != nil {
		return err
	}
	if ev.IsPropagationStopped() {
		return nil
	}
	return s.manager.DispatchEvent(ev)
}

func (s *Slot) dispatchLocal(ev *types.Event, handler types.ExceptionHandler) error {
	s.mu.RLock()
	entries := mergeEntries(s.handlers)
	s.mu.RUnlock()
	return invoke(ev, entries, nil, handler)
}
