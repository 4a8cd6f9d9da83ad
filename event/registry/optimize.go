package registry

import (
	"sort"

	"github.com/yaoapp/events/event/types"
	"github.com/yaoapp/kun/log"
)

// Optimize expands the validated subscribers into a binding table.
//
// An event declared as "Base::evt" where Base is a type known to the graph is
// bound under its own name and under "Sub::evt" for every service type Sub
// strictly deriving from Base. Other names are bound verbatim.
func (b *Builder) Optimize() (*types.BindingTable, error) {
	if !b.validated {
		return nil, ErrNotValidated
	}

	index := types.IndexTypes(b.graph)
	services := b.graph.KnownServices()

	var (
		order    []string
		bindings = map[string][]types.Binding{}
		seen     = map[string]map[string]struct{}{}
	)

	bind := func(name string, binding types.Binding) {
		keys, ok := seen[name]
		if !ok {
			keys = map[string]struct{}{}
			seen[name] = keys
			order = append(order, name)
		}
		if _, dup := keys[binding.Key()]; dup {
			return
		}
		keys[binding.Key()] = struct{}{}
		bindings[name] = append(bindings[name], binding)
	}

	for _, id := range b.subscribers {
		desc := b.descriptors[id]
		for _, eh := range desc.Events {
			parsed := types.ParseName(eh.Event)
			expand := parsed.Separator == types.SeparatorClass && index.Known(parsed.Namespace)

			for i, ref := range eh.Spec.Refs() {
				binding := types.Binding{
					Subscriber: id,
					Event:      eh.Event,
					Method:     ref.Method,
					Index:      i,
					Priority:   ref.Priority,
					Closure:    ref.IsClosure(),
				}
				bind(eh.Event, binding)

				if !expand {
					continue
				}
				for _, s := range services {
					if s.Type == nil {
						continue // unresolved, not a concrete type yet
					}
					if s.Type.IsSubtypeOf(parsed.Namespace) {
						bind(parsed.WithNamespace(s.Type.Name).String(), binding)
					}
				}
			}
		}
	}

	for _, name := range order {
		sortByPriority(bindings[name])
	}

	table := types.NewBindingTable(bindings)
	log.Trace("[events] optimized %d subscribers into %d bound events", len(b.subscribers), table.Len())
	return table, nil
}

// sortByPriority orders bindings by descending priority, keeping production
// order for equal priorities.
func sortByPriority(list []types.Binding) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Priority > list[j].Priority
	})
}
