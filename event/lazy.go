package event

import (
	"fmt"
	"sync"

	"github.com/yaoapp/events/event/registry"
	"github.com/yaoapp/events/event/types"
	"github.com/yaoapp/kun/log"
	"golang.org/x/sync/singleflight"
)

// NewLazy creates a manager over a compiled binding table.
// Subscribers are obtained from the provider the first time one of their
// listeners has to run, and at most once per service ID.
func NewLazy(table *types.BindingTable, provider types.Provider, opts ...Option) *Manager {
	if table == nil {
		table = types.NewBindingTable(nil)
	}
	m := New(opts...)
	m.table = table
	if provider != nil {
		m.instances = newInstanceCache(provider)
	}
	return m
}

// instance is a materialized subscriber with its runtime descriptor.
type instance struct {
	subscriber types.Subscriber
	descriptor *types.Descriptor
}

// listener finds the handler a binding points at.
func (inst *instance) listener(b *types.Binding) (types.Listener, bool) {
	if !b.Closure {
		return inst.subscriber.Handler(b.Method)
	}
	refs := inst.descriptor.Handlers(b.Event)
	if b.Index < 0 || b.Index >= len(refs) || refs[b.Index].Func == nil {
		return nil, false
	}
	return refs[b.Index].Func, true
}

// instanceCache is a get-or-create cache of subscriber instances.
// Concurrent first uses of one ID share a single construction.
type instanceCache struct {
	provider types.Provider
	mu       sync.RWMutex
	items    map[string]*instance
	group    singleflight.Group
}

func newInstanceCache(provider types.Provider) *instanceCache {
	return &instanceCache{
		provider: provider,
		items:    map[string]*instance{},
	}
}

// get returns the instance for id, constructing it on first use.
// A provider that dispatches an event bound to the subscriber it is
// constructing deadlocks; construct dependencies outside the provider call.
func (c *instanceCache) get(id string) (*instance, error) {
	c.mu.RLock()
	inst, ok := c.items[id]
	c.mu.RUnlock()
	if ok {
		return inst, nil
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		c.mu.RLock()
		inst, ok := c.items[id]
		c.mu.RUnlock()
		if ok {
			return inst, nil
		}

		raw, err := c.provider.Instance(id)
		if err != nil {
			return nil, err
		}
		sub, ok := raw.(types.Subscriber)
		if !ok {
			return nil, fmt.Errorf("service %s (%T) doesn't implement types.Subscriber", id, raw)
		}
		desc, err := registry.Describe(id, registry.TypeName(sub), sub)
		if err != nil {
			return nil, err
		}

		inst = &instance{subscriber: sub, descriptor: desc}
		c.mu.Lock()
		c.items[id] = inst
		c.mu.Unlock()
		log.Trace("[events] subscriber %s instantiated", id)
		return inst, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*instance), nil
}

// loaded reports whether the subscriber has been instantiated.
func (c *instanceCache) loaded(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[id]
	return ok
}

// IsLoaded reports whether a lazy manager already instantiated the subscriber.
func (m *Manager) IsLoaded(serviceID string) bool {
	return m.instances != nil && m.instances.loaded(serviceID)
}
