package event

import "github.com/yaoapp/events/event/types"

// Option configures a Manager.
type Option func(*Manager)

// WithExceptionHandler sets the handler consulted when a listener fails.
// Without one, the first failure aborts the dispatch.
func WithExceptionHandler(h types.ExceptionHandler) Option {
	return func(m *Manager) {
		m.exceptionHandler = h
	}
}

// WithObserver attaches an inspection observer notified around every dispatch.
func WithObserver(o types.Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// WithTypes gives the manager the service graph used to match events
// declared on ancestor types ("Base::evt" listeners receive "Sub::evt").
func WithTypes(graph types.ServiceGraph) Option {
	return func(m *Manager) {
		m.types = types.IndexTypes(graph)
	}
}

// WithGlobalDispatchFirst sets the default slot ordering: when true, slots
// dispatch through the manager before running their local handlers.
func WithGlobalDispatchFirst(first bool) Option {
	return func(m *Manager) {
		m.globalDispatchFirst = first
	}
}

// SlotOption configures a Slot.
type SlotOption func(*Slot)

// GlobalDispatchFirst overrides the manager default ordering for one slot.
func GlobalDispatchFirst(first bool) SlotOption {
	return func(s *Slot) {
		s.globalFirst = &first
	}
}

// WithHandlers appends local handlers at priority 0.
func WithHandlers(handlers ...types.Listener) SlotOption {
	return func(s *Slot) {
		for _, h := range handlers {
			s.add(h, 0)
		}
	}
}
