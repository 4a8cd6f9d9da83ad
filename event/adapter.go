package event

import (
	"fmt"

	"github.com/yaoapp/events/event/registry"
	"github.com/yaoapp/events/event/types"
)

// Dispatcher is the listener/subscriber API of dispatchers from other
// ecosystems: the payload is dispatched under a name and listeners are
// registered directly on the dispatcher.
type Dispatcher interface {
	Dispatch(payload any, name string) (any, error)
	Listeners(name string) []types.ListenerInfo
	HasListeners(name string) bool
	AddListener(name string, listener types.Listener, priority int) error
	AddSubscriber(sub types.Subscriber) error
	RemoveListener(name string, listener types.Listener) error
	RemoveSubscriber(sub types.Subscriber) error
	ListenerPriority(name string, listener types.Listener) (int, error)
}

// EventNamer is implemented by payloads that know the name they are dispatched under.
type EventNamer interface {
	EventName() string
}

// Bridge lets code written against Dispatcher run on a Manager.
// Dispatch and introspection delegate; listener mutation is rejected because
// listeners are registered through subscribers only.
type Bridge struct {
	manager *Manager
}

// NewBridge wraps the manager.
func NewBridge(m *Manager) *Bridge {
	return &Bridge{manager: m}
}

// Dispatch dispatches the payload as the single event argument and returns it.
// An empty name is taken from the payload.
func (b *Bridge) Dispatch(payload any, name string) (any, error) {
	if name == "" {
		name = payloadName(payload)
	}
	if ev, ok := payload.(*types.Event); ok && ev.Name() == types.NormalizeName(name) {
		return ev, b.manager.DispatchEvent(ev)
	}
	return payload, b.manager.Dispatch(name, payload)
}

// Listeners delegates to the manager.
func (b *Bridge) Listeners(name string) []types.ListenerInfo {
	return b.manager.Listeners(name)
}

// HasListeners delegates to the manager.
func (b *Bridge) HasListeners(name string) bool {
	return b.manager.HasListeners(name)
}

// AddListener is not supported.
func (b *Bridge) AddListener(name string, listener types.Listener, priority int) error {
	return notSupported("AddListener")
}

// AddSubscriber is not supported.
func (b *Bridge) AddSubscriber(sub types.Subscriber) error {
	return notSupported("AddSubscriber")
}

// RemoveListener is not supported.
func (b *Bridge) RemoveListener(name string, listener types.Listener) error {
	return notSupported("RemoveListener")
}

// RemoveSubscriber is not supported.
func (b *Bridge) RemoveSubscriber(sub types.Subscriber) error {
	return notSupported("RemoveSubscriber")
}

// ListenerPriority is not supported.
func (b *Bridge) ListenerPriority(name string, listener types.Listener) (int, error) {
	return 0, notSupported("ListenerPriority")
}

func notSupported(method string) error {
	return fmt.Errorf("%w: %s, register listeners through the subscriber mechanism", ErrNotSupported, method)
}

func payloadName(payload any) string {
	switch p := payload.(type) {
	case EventNamer:
		return p.EventName()
	case *types.Event:
		return p.Name()
	case nil:
		return ""
	}
	return registry.TypeName(payload)
}
