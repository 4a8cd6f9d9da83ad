package types

import "sort"

// Graph is an in-memory ServiceGraph.
type Graph struct {
	services map[string]*Type
	order    []string
}

// NewGraph creates a graph from the given services. Later entries with the
// same ID replace earlier ones.
func NewGraph(services ...Service) *Graph {
	g := &Graph{services: make(map[string]*Type, len(services))}
	for _, s := range services {
		g.Add(s.ID, s.Type)
	}
	return g
}

// Add registers a service. A nil type marks it unresolved.
func (g *Graph) Add(id string, t *Type) *Graph {
	if _, ok := g.services[id]; !ok {
		g.order = append(g.order, id)
	}
	g.services[id] = t
	return g
}

// ResolveType implements ServiceGraph.
func (g *Graph) ResolveType(serviceID string) (*Type, bool) {
	t, ok := g.services[serviceID]
	if !ok || t == nil {
		return nil, false
	}
	return t, true
}

// KnownServices implements ServiceGraph. Services are sorted by ID.
func (g *Graph) KnownServices() []Service {
	ids := make([]string, len(g.order))
	copy(ids, g.order)
	sort.Strings(ids)
	out := make([]Service, 0, len(ids))
	for _, id := range ids {
		out = append(out, Service{ID: id, Type: g.services[id]})
	}
	return out
}

// TypeIndex indexes the type names reachable from a service graph.
type TypeIndex struct {
	types map[string]*Type
	known map[string]struct{}
}

// IndexTypes builds a TypeIndex from the graph snapshot.
// Unresolved services are skipped.
func IndexTypes(graph ServiceGraph) *TypeIndex {
	idx := &TypeIndex{
		types: map[string]*Type{},
		known: map[string]struct{}{},
	}
	if graph == nil {
		return idx
	}
	for _, s := range graph.KnownServices() {
		if s.Type == nil || s.Type.Name == "" {
			continue
		}
		name := NormalizeName(s.Type.Name)
		if _, ok := idx.types[name]; !ok {
			idx.types[name] = s.Type
		}
		idx.known[name] = struct{}{}
		for _, p := range s.Type.Parents {
			idx.known[NormalizeName(p)] = struct{}{}
		}
	}
	return idx
}

// Known reports whether the type name is a service type or one of their ancestors.
func (idx *TypeIndex) Known(name string) bool {
	if idx == nil {
		return false
	}
	_, ok := idx.known[NormalizeName(name)]
	return ok
}

// Parents returns the ancestors of a service type, nearest first.
func (idx *TypeIndex) Parents(name string) []string {
	if idx == nil {
		return nil
	}
	t, ok := idx.types[NormalizeName(name)]
	if !ok {
		return nil
	}
	out := make([]string, len(t.Parents))
	for i, p := range t.Parents {
		out[i] = NormalizeName(p)
	}
	return out
}
