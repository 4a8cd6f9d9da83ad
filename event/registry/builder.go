package registry

import (
	"strings"

	"github.com/yaoapp/events/event/types"
)

// Manager setup methods understood by the builder.
const (
	MethodAddSubscriber          = "AddSubscriber"
	MethodAddListener            = "AddListener"
	MethodAddEventListener       = "AddEventListener"
	MethodSetExceptionHandler    = "SetExceptionHandler"
	MethodSetGlobalDispatchFirst = "SetGlobalDispatchFirst"
)

// ManagerName is the service name the manager is known by in error messages.
const ManagerName = "events.manager"

// Setup is one call recorded against the manager definition.
// Service references are strings prefixed with "@".
type Setup struct {
	Method string
	Args   []any
}

// Options controls which build passes run.
type Options struct {
	Validate bool
	Optimize bool
}

// Compiled is the output of a build.
type Compiled struct {
	// Table is nil when optimization is disabled.
	Table *types.BindingTable
	// Subscribers lists the subscriber service IDs in registration order.
	Subscribers []string
	// Setups are the non-listener manager setups passed through untouched.
	Setups []Setup
	// Descriptors are keyed by service ID; empty when validation is disabled.
	Descriptors map[string]*types.Descriptor
}

// Builder runs the build-time passes over one service graph snapshot.
// It is not safe for concurrent use; a build is a single pass.
type Builder struct {
	graph       types.ServiceGraph
	opts        Options
	setups      []Setup
	allowed     []Setup
	listeners   map[string][]string
	descriptors map[string]*types.Descriptor
	subscribers []string
	validated   bool
}

// NewBuilder creates a builder over the graph snapshot.
func NewBuilder(graph types.ServiceGraph, opts Options) *Builder {
	if graph == nil {
		graph = types.NewGraph()
	}
	return &Builder{
		graph:       graph,
		opts:        opts,
		listeners:   map[string][]string{},
		descriptors: map[string]*types.Descriptor{},
	}
}

// Subscribe tags a service as a subscriber.
func (b *Builder) Subscribe(serviceIDs ...string) *Builder {
	for _, id := range serviceIDs {
		b.setups = append(b.setups, Setup{Method: MethodAddSubscriber, Args: []any{"@" + strings.TrimPrefix(id, "@")}})
	}
	b.validated = false
	return b
}

// AddSetup records a raw setup call on the manager definition.
func (b *Builder) AddSetup(method string, args ...any) *Builder {
	b.setups = append(b.setups, Setup{Method: method, Args: args})
	b.validated = false
	return b
}

// Setups returns every recorded setup.
func (b *Builder) Setups() []Setup {
	out := make([]Setup, len(b.setups))
	copy(out, b.setups)
	return out
}

// Listeners returns, per subscriber, the deduplicated event names recorded
// by the last successful validation.
func (b *Builder) Listeners() map[string][]string {
	out := make(map[string][]string, len(b.listeners))
	for id, names := range b.listeners {
		cp := make([]string, len(names))
		copy(cp, names)
		out[id] = cp
	}
	return out
}

// Build runs the passes enabled in Options.
func (b *Builder) Build() (*Compiled, error) {
	if b.opts.Validate {
		if err := b.Validate(); err != nil {
			return nil, err
		}
	} else {
		b.collectUnvalidated()
	}

	compiled := &Compiled{
		Subscribers: append([]string(nil), b.subscribers...),
		Setups:      append([]Setup(nil), b.allowed...),
		Descriptors: map[string]*types.Descriptor{},
	}
	for id, d := range b.descriptors {
		compiled.Descriptors[id] = d
	}

	if b.opts.Optimize {
		if !b.opts.Validate {
			return nil, ErrNotValidated
		}
		table, err := b.Optimize()
		if err != nil {
			return nil, err
		}
		compiled.Table = table
	}
	return compiled, nil
}

// collectUnvalidated splits setups without checking subscribers,
// used when validation is disabled.
func (b *Builder) collectUnvalidated() {
	b.allowed = nil
	b.subscribers = nil
	seen := map[string]struct{}{}
	for _, stt := range b.setups {
		if stt.Method != MethodAddSubscriber {
			if !isListenerSetup(stt.Method) {
				b.allowed = append(b.allowed, stt)
			}
			continue
		}
		if id, ok := serviceRef(stt); ok {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				b.subscribers = append(b.subscribers, id)
			}
		}
	}
}

// BuildBindingTable validates the given subscriber services and returns the
// optimized binding table.
func BuildBindingTable(graph types.ServiceGraph, serviceIDs ...string) (*types.BindingTable, error) {
	b := NewBuilder(graph, Options{Validate: true, Optimize: true})
	b.Subscribe(serviceIDs...)
	compiled, err := b.Build()
	if err != nil {
		return nil, err
	}
	return compiled.Table, nil
}

func isListenerSetup(method string) bool {
	switch method {
	case MethodAddSubscriber, MethodAddListener, MethodAddEventListener:
		return true
	}
	return false
}

// serviceRef extracts the service ID of an AddSubscriber setup.
func serviceRef(stt Setup) (string, bool) {
	if len(stt.Args) != 1 {
		return "", false
	}
	ref, ok := stt.Args[0].(string)
	if !ok || ref == "" {
		return "", false
	}
	id := strings.TrimPrefix(ref, "@")
	return id, id != ""
}
