package event

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/yaoapp/events/config"
	"github.com/yaoapp/events/event/registry"
	"github.com/yaoapp/events/event/types"
	"github.com/yaoapp/events/trace"
	"github.com/yaoapp/kun/log"
)

// Boot builds a manager from configuration.
//
// The configured subscribers are validated against the graph when
// cfg.Validate is set. With cfg.Optimize the result is a lazy manager over
// the compiled table; otherwise every subscriber is instantiated now and
// added to a dynamic manager. Extra setups recorded by the host go through
// the same validation as the configured ones. With cfg.Autowire every
// instance taken from the provider has its event slots bound.
func Boot(cfg *config.Config, graph types.ServiceGraph, provider types.Provider, setups ...registry.Setup) (*Manager, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, ErrNoProvider
	}

	b := registry.NewBuilder(graph, registry.Options{Validate: cfg.Validate, Optimize: cfg.Optimize})
	b.Subscribe(cfg.Subscribers...)
	for _, stt := range setups {
		b.AddSetup(stt.Method, stt.Args...)
	}
	if cfg.ExceptionHandler != "" {
		b.AddSetup(registry.MethodSetExceptionHandler, "@"+cfg.ExceptionHandler)
	}

	compiled, err := b.Build()
	if err != nil {
		return nil, err
	}

	opts := []Option{WithTypes(graph), WithGlobalDispatchFirst(cfg.GlobalDispatchFirst)}
	if cfg.Debugger.Enabled() {
		opts = append(opts, WithObserver(trace.New(trace.Options{
			DispatchTree: cfg.Debugger.DispatchTree,
			DispatchLog:  cfg.Debugger.DispatchLog,
			Events:       cfg.Debugger.Events,
			Listeners:    cfg.Debugger.Listeners,
		})))
	}

	var (
		m        *Manager
		autowire *autowiring
	)
	if cfg.Autowire {
		autowire = &autowiring{Provider: provider}
		provider = autowire
	}
	if compiled.Table != nil {
		m = NewLazy(compiled.Table, provider, opts...)
		if autowire != nil {
			autowire.manager = m
		}
	} else {
		m = New(opts...)
		if autowire != nil {
			autowire.manager = m
		}
		for _, id := range compiled.Subscribers {
			sub, err := subscriberOf(provider, id)
			if err != nil {
				return nil, err
			}
			if err := m.addSubscriber(id, sub); err != nil {
				return nil, err
			}
		}
	}

	for _, stt := range compiled.Setups {
		if err := m.apply(stt, provider); err != nil {
			return nil, err
		}
	}

	log.Info("[events] manager ready: subscribers=%d lazy=%v autowire=%v", len(compiled.Subscribers), m.IsLazy(), cfg.Autowire)
	return m, nil
}

// apply runs a passed-through manager setup.
func (m *Manager) apply(stt registry.Setup, provider types.Provider) error {
	switch stt.Method {
	case registry.MethodSetExceptionHandler:
		if len(stt.Args) != 1 {
			return fmt.Errorf("event: %s expects one argument", stt.Method)
		}
		if h, ok := stt.Args[0].(types.ExceptionHandler); ok {
			m.SetExceptionHandler(h)
			return nil
		}
		id := strings.TrimPrefix(cast.ToString(stt.Args[0]), "@")
		raw, err := provider.Instance(id)
		if err != nil {
			return &ResolveError{Subscriber: id, Err: err}
		}
		h, ok := raw.(types.ExceptionHandler)
		if !ok {
			return fmt.Errorf("event: service %s (%T) doesn't implement types.ExceptionHandler", id, raw)
		}
		m.SetExceptionHandler(h)

	case registry.MethodSetGlobalDispatchFirst:
		first := true
		if len(stt.Args) > 0 {
			v, err := cast.ToBoolE(stt.Args[0])
			if err != nil {
				return fmt.Errorf("event: %s: %w", stt.Method, err)
			}
			first = v
		}
		m.mu.Lock()
		m.globalDispatchFirst = first
		m.mu.Unlock()

	default:
		return fmt.Errorf("event: unsupported manager setup %s", stt.Method)
	}
	return nil
}

func subscriberOf(provider types.Provider, id string) (types.Subscriber, error) {
	raw, err := provider.Instance(id)
	if err != nil {
		return nil, &ResolveError{Subscriber: id, Err: err}
	}
	sub, ok := raw.(types.Subscriber)
	if !ok {
		return nil, &ResolveError{Subscriber: id, Err: fmt.Errorf("%T doesn't implement types.Subscriber", raw)}
	}
	return sub, nil
}
