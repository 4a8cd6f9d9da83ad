package event

import (
	"sort"
	"sync"

	"github.com/yaoapp/events/event/registry"
	"github.com/yaoapp/events/event/types"
	"github.com/yaoapp/kun/log"
)

// maxResolved bounds the per-name resolution cache.
const maxResolved = 4096

// Manager dispatches named events to subscriber listeners.
//
// A manager created with New is dynamic: subscribers are added at runtime
// and every name is matched against the registered listeners, its ancestor
// types and its bare short name. A manager created with NewLazy serves a
// compiled BindingTable and instantiates subscribers on first use.
//
// Dispatch is synchronous and re-entrant: listeners may dispatch further
// events, and listeners added during a dispatch only see later dispatches.
type Manager struct {
	mu        sync.RWMutex
	listeners map[string][]*listenerEntry
	order     []string
	sorted    map[string][]*listenerEntry

	table     *types.BindingTable
	instances *instanceCache

	types               *types.TypeIndex
	exceptionHandler    types.ExceptionHandler
	observer            types.Observer
	globalDispatchFirst bool
}

// New creates a dynamic manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		listeners: map[string][]*listenerEntry{},
		sorted:    map[string][]*listenerEntry{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsLazy reports whether the manager serves a compiled table.
func (m *Manager) IsLazy() bool { return m.table != nil }

// AddSubscriber registers every handler the subscriber declares.
// The subscriber is identified by SubscriberID when it implements
// types.Named, by its Go type otherwise.
func (m *Manager) AddSubscriber(sub types.Subscriber) error {
	return m.addSubscriber(subscriberID(sub), sub)
}

func (m *Manager) addSubscriber(id string, sub types.Subscriber) error {
	if m.IsLazy() {
		return ErrStaticTable
	}

	desc, err := registry.Describe(id, registry.TypeName(sub), sub)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, eh := range desc.Events {
		for i, ref := range eh.Spec.Refs() {
			fn := ref.Func
			if fn == nil {
				fn, _ = sub.Handler(ref.Method)
			}
			binding := types.Binding{
				Subscriber: id,
				Event:      eh.Event,
				Method:     ref.Method,
				Index:      i,
				Priority:   ref.Priority,
				Closure:    ref.IsClosure(),
			}
			if _, ok := m.listeners[eh.Event]; !ok {
				m.order = append(m.order, eh.Event)
			}
			m.listeners[eh.Event] = append(m.listeners[eh.Event], &listenerEntry{
				info:     infoOf(binding),
				key:      binding.Key(),
				listener: fn,
			})
		}
	}
	m.sorted = map[string][]*listenerEntry{}
	log.Trace("[events] subscriber %s added (%d events)", id, len(desc.Events))
	return nil
}

// SetExceptionHandler replaces the exception handler. Passing nil restores
// abort-on-first-failure.
func (m *Manager) SetExceptionHandler(h types.ExceptionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exceptionHandler = h
}

// Observer returns the attached observer, nil if none.
func (m *Manager) Observer() types.Observer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.observer
}

// Dispatch creates an event and dispatches it.
func (m *Manager) Dispatch(name string, args ...any) error {
	if err := types.ValidateName(name); err != nil {
		return err
	}
	return m.DispatchEvent(types.NewEvent(name, args...))
}

// DispatchEvent invokes the listeners of ev in priority order, stopping
// when a listener stops the propagation.
func (m *Manager) DispatchEvent(ev *types.Event) error {
	entries := m.resolve(ev.Name())

	m.mu.RLock()
	handler, observer := m.exceptionHandler, m.observer
	m.mu.RUnlock()

	if observer != nil {
		observer.BeginDispatch(ev, infosOf(entries))
	}
	if len(entries) > 0 {
		log.Trace("[events] dispatch %s id=%s listeners=%d", ev.Name(), ev.ID(), len(entries))
	}

	err := invoke(ev, entries, m.resolveListener, handler)

	if observer != nil {
		observer.EndDispatch(ev, err)
	}
	return err
}

// HasListeners reports whether a dispatch of name would invoke anything.
// An empty name asks whether any listener is registered at all.
func (m *Manager) HasListeners(name string) bool {
	if name == "" {
		if m.IsLazy() {
			return m.table.Len() > 0
		}
		m.mu.RLock()
		defer m.mu.RUnlock()
		return len(m.listeners) > 0
	}
	return len(m.resolve(types.NormalizeName(name))) > 0
}

// Listeners returns the listeners a dispatch of name would invoke, in order.
// An empty name returns the listeners of every event, grouped by event name.
// Lazy managers answer from the table without instantiating subscribers.
func (m *Manager) Listeners(name string) []types.ListenerInfo {
	if name == "" {
		all := m.AllListeners()
		names := make([]string, 0, len(all))
		for n := range all {
			names = append(names, n)
		}
		sort.Strings(names)
		var out []types.ListenerInfo
		for _, n := range names {
			out = append(out, all[n]...)
		}
		return out
	}
	entries := m.resolve(types.NormalizeName(name))
	if len(entries) == 0 {
		return nil
	}
	return infosOf(entries)
}

// AllListeners returns the listeners of every registered event name.
func (m *Manager) AllListeners() map[string][]types.ListenerInfo {
	var names []string
	if m.IsLazy() {
		names = m.table.Events()
	} else {
		m.mu.RLock()
		names = append(names, m.order...)
		m.mu.RUnlock()
		sort.Strings(names)
	}

	out := make(map[string][]types.ListenerInfo, len(names))
	for _, name := range names {
		if infos := m.Listeners(name); len(infos) > 0 {
			out[name] = infos
		}
	}
	return out
}

// resolve returns the ordered listeners of an event. Names with listeners
// are cached; the cache is dropped once it holds maxResolved names.
func (m *Manager) resolve(name string) []*listenerEntry {
	m.mu.RLock()
	cached, ok := m.sorted[name]
	m.mu.RUnlock()
	if ok {
		return cached
	}

	keys := lookupKeys(name, m.types)
	lists := make([][]*listenerEntry, 0, len(keys))

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		if m.IsLazy() {
			lists = append(lists, entriesOf(m.table.Lookup(key)))
			continue
		}
		lists = append(lists, m.listeners[key])
	}
	entries := mergeEntries(lists...)
	if len(entries) == 0 {
		return nil
	}
	if len(m.sorted) >= maxResolved {
		m.sorted = map[string][]*listenerEntry{}
	}
	m.sorted[name] = entries
	return entries
}

// resolveListener materializes the listener of a lazy entry.
func (m *Manager) resolveListener(e *listenerEntry) (types.Listener, error) {
	if e.binding == nil || m.instances == nil {
		return nil, &ResolveError{Subscriber: e.info.Subscriber, Err: ErrNoProvider}
	}
	inst, err := m.instances.get(e.binding.Subscriber)
	if err != nil {
		return nil, &ResolveError{Subscriber: e.binding.Subscriber, Err: err}
	}
	fn, ok := inst.listener(e.binding)
	if !ok {
		return nil, &ResolveError{Subscriber: e.binding.Subscriber, Err: ErrHandlerNotFound}
	}
	return fn, nil
}

func entriesOf(bindings []types.Binding) []*listenerEntry {
	entries := make([]*listenerEntry, len(bindings))
	for i := range bindings {
		b := bindings[i]
		entries[i] = &listenerEntry{info: infoOf(b), key: b.Key(), binding: &b}
	}
	return entries
}

func infoOf(b types.Binding) types.ListenerInfo {
	return types.ListenerInfo{
		Subscriber: b.Subscriber,
		Method:     b.Method,
		Priority:   b.Priority,
		Closure:    b.Closure,
	}
}

func subscriberID(sub types.Subscriber) string {
	if named, ok := sub.(types.Named); ok && named.SubscriberID() != "" {
		return named.SubscriberID()
	}
	return registry.TypeName(sub)
}
