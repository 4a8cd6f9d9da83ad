package registry_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yaoapp/events/event/registry"
	"github.com/yaoapp/events/event/types"
)

// stubSubscriber serves the declared methods named in handlers.
type stubSubscriber struct {
	decls    []types.Declaration
	handlers map[string]types.Listener
}

func (s *stubSubscriber) SubscribedEvents() []types.Declaration { return s.decls }

func (s *stubSubscriber) Handler(method string) (types.Listener, bool) {
	fn, ok := s.handlers[method]
	return fn, ok
}

func noop(*types.Event) error { return nil }

func newStub(decls []types.Declaration, methods ...string) *stubSubscriber {
	s := &stubSubscriber{decls: decls, handlers: map[string]types.Listener{}}
	for _, m := range methods {
		s.handlers[m] = noop
	}
	return s
}

func serviceOf(id, typeName string, proto any, parents ...string) types.Service {
	return types.Service{ID: id, Type: &types.Type{Name: typeName, Parents: parents, Prototype: proto}}
}

func TestNormalize_Shapes(t *testing.T) {
	fn := types.Listener(noop)
	decls := []types.Declaration{
		{Value: `App\Article::onCreate`},
		types.Listen("onStartup"),
		types.Handle("save", "onSave"),
		types.HandleWithPriority("save", "audit", 20),
		types.HandleAll("delete", types.Pair{Method: "a", Priority: 10}, types.Pair{Method: "b", Priority: 5}),
		types.HandleFunc("tick", fn),
		{Event: "cfg", Value: []any{"onCfg", "7"}},
		{Event: "cfgs", Value: []any{[]any{"x", 1}, map[string]any{"method": "y", "priority": 2}}},
	}

	events, err := registry.Normalize("Stub", decls)
	require.NoError(t, err)
	require.Len(t, events, 7)

	assert.Equal(t, `App\Article::onCreate`, events[0].Event)
	assert.Equal(t, types.Single{Ref: types.Ref{Method: "onCreate"}}, events[0].Spec)
	assert.Equal(t, "onStartup", events[1].Spec.Refs()[0].Method)

	save := events[2].Spec.Refs()
	require.Len(t, save, 2, "repeated events are merged")
	assert.Equal(t, "onSave", save[0].Method)
	assert.Equal(t, types.Ref{Method: "audit", Priority: 20}, save[1])

	_, isMultiple := events[3].Spec.(types.Multiple)
	assert.True(t, isMultiple)

	assert.True(t, events[4].Spec.Refs()[0].IsClosure())
	assert.Equal(t, types.Ref{Method: "onCfg", Priority: 7}, events[5].Spec.Refs()[0])
	assert.Equal(t, []types.Ref{{Method: "x", Priority: 1}, {Method: "y", Priority: 2}}, events[6].Spec.Refs())
}

func TestNormalize_Errors(t *testing.T) {
	_, err := registry.Normalize("Stub", []types.Declaration{{Value: types.Listener(noop)}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrPositionalClosure))
	assert.Contains(t, err.Error(), "cannot be used without event name as a key")

	_, err = registry.Normalize("Stub", []types.Declaration{{Event: "x", Value: 42}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrMalformed))

	_, err = registry.Normalize("Stub", []types.Declaration{{Event: "x", Value: []any{"m", "high"}}})
	assert.True(t, errors.Is(err, registry.ErrMalformed))
}

func TestValidate_MissingMethod(t *testing.T) {
	sub := newStub([]types.Declaration{types.Listen("App::onFoo")})
	b := registry.NewBuilder(types.NewGraph(serviceOf("foo", "App", sub)), registry.Options{Validate: true})
	b.Subscribe("foo")

	err := b.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrMissingMethod))
	assert.Contains(t, err.Error(), "onFoo")
	assert.Contains(t, err.Error(), "Event listener App::onFoo() is not implemented.")
	assert.False(t, b.Validated())
	assert.Empty(t, b.Listeners())
}

func TestValidate_NotSubscriber(t *testing.T) {
	b := registry.NewBuilder(types.NewGraph(serviceOf("plain", "Plain", struct{}{})), registry.Options{})
	b.Subscribe("plain")

	err := b.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrNotSubscriber))
	assert.Contains(t, err.Error(), "@plain")
}

func TestValidate_DirectRegistration(t *testing.T) {
	sub := newStub([]types.Declaration{types.Handle("a", "onA")}, "onA")
	b := registry.NewBuilder(types.NewGraph(serviceOf("s", "S", sub)), registry.Options{})
	b.Subscribe("s")
	b.AddSetup(registry.MethodAddListener, "a", "@s")
	b.AddSetup(registry.MethodAddSubscriber, "@undefined")

	err := b.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrDirectRegistration))
	assert.Contains(t, err.Error(), "Please, do not register listeners directly to service @events.manager")

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 2, "every offending setup is reported")
}

func TestValidate_UnresolvedType(t *testing.T) {
	b := registry.NewBuilder(types.NewGraph(types.Service{ID: "ghost"}), registry.Options{})
	b.Subscribe("ghost")

	err := b.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrUnresolvedType))
}

func TestValidate_PassesThroughOtherSetups(t *testing.T) {
	sub := newStub([]types.Declaration{types.Handle("a", "onA"), types.Handle("b", "onB"), types.Handle("a", "onA2")}, "onA", "onB", "onA2")
	b := registry.NewBuilder(types.NewGraph(serviceOf("s", "S", sub)), registry.Options{})
	b.Subscribe("s", "@s")
	b.AddSetup(registry.MethodSetExceptionHandler, "@handler")

	require.NoError(t, b.Validate())
	assert.True(t, b.Validated())
	assert.Equal(t, map[string][]string{"s": {"a", "b"}}, b.Listeners())

	compiled, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"s"}, compiled.Subscribers)
	require.Len(t, compiled.Setups, 1)
	assert.Equal(t, registry.MethodSetExceptionHandler, compiled.Setups[0].Method)
	assert.Nil(t, compiled.Table, "optimization disabled")
}

func TestOptimize_RequiresValidation(t *testing.T) {
	b := registry.NewBuilder(types.NewGraph(), registry.Options{Optimize: true})
	_, err := b.Optimize()
	assert.ErrorIs(t, err, registry.ErrNotValidated)

	_, err = b.Build()
	assert.ErrorIs(t, err, registry.ErrNotValidated)
}

func TestOptimize_SubtypeExpansion(t *testing.T) {
	listener := newStub([]types.Declaration{types.Listen("Base::onSave")}, "onSave")
	graph := types.NewGraph(
		serviceOf("listener", "Listener", listener),
		serviceOf("base", "Base", struct{}{}),
		serviceOf("sub", "Sub", struct{}{}, "Base"),
		serviceOf("other", "Other", struct{}{}),
		types.Service{ID: "unresolved"},
	)

	table, err := registry.BuildBindingTable(graph, "listener")
	require.NoError(t, err)

	assert.Equal(t, []string{"Base::onSave", "Sub::onSave"}, table.Events())
	sub := table.Lookup("Sub::onSave")
	require.Len(t, sub, 1)
	assert.Equal(t, "listener", sub[0].Subscriber)
	assert.Equal(t, "Base::onSave", sub[0].Event, "bindings keep the declared name")
	assert.False(t, table.Has("Other::onSave"))
}

func TestOptimize_UnknownNamespaceIsVerbatim(t *testing.T) {
	listener := newStub([]types.Declaration{types.Handle("Nowhere::evt", "onEvt"), types.Handle("app.created", "onEvt")}, "onEvt")
	graph := types.NewGraph(serviceOf("l", "L", listener))

	table, err := registry.BuildBindingTable(graph, "l")
	require.NoError(t, err)
	assert.Equal(t, []string{"Nowhere::evt", "app.created"}, table.Events())
}

func TestOptimize_PriorityOrder(t *testing.T) {
	a := newStub([]types.Declaration{types.HandleWithPriority("evt", "low", 5), types.HandleWithPriority("evt", "high", 10)}, "low", "high")
	b := newStub([]types.Declaration{types.Handle("evt", "zero"), types.HandleWithPriority("evt", "also5", 5)}, "zero", "also5")
	graph := types.NewGraph(serviceOf("a", "A", a), serviceOf("b", "B", b))

	table, err := registry.BuildBindingTable(graph, "b", "a")
	require.NoError(t, err)

	var got []string
	for _, binding := range table.Lookup("evt") {
		got = append(got, binding.Subscriber+"."+binding.Method)
	}
	assert.Equal(t, []string{"a.high", "b.also5", "a.low", "b.zero"}, got, "ties keep subscriber registration order")
}

func TestOptimize_TiesFollowRegistrationOrder(t *testing.T) {
	zeta := newStub([]types.Declaration{types.Listen("App::created")}, "created")
	alpha := newStub([]types.Declaration{types.Listen("App::created")}, "created")
	graph := types.NewGraph(serviceOf("alpha", "Alpha", alpha), serviceOf("zeta", "Zeta", zeta))

	b := registry.NewBuilder(graph, registry.Options{Validate: true, Optimize: true})
	b.Subscribe("zeta", "alpha")
	compiled, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha"}, compiled.Subscribers)

	bindings := compiled.Table.Lookup("App::created")
	require.Len(t, bindings, 2)
	assert.Equal(t, "zeta", bindings[0].Subscriber)
	assert.Equal(t, "alpha", bindings[1].Subscriber)
}

func TestOptimize_Deduplicates(t *testing.T) {
	sub := newStub([]types.Declaration{types.Listen("Base::onSave"), types.Handle("Sub::onSave", "onSave")}, "onSave")
	graph := types.NewGraph(
		serviceOf("l", "L", sub),
		serviceOf("sub", "Sub", struct{}{}, "Base"),
	)

	table, err := registry.BuildBindingTable(graph, "l")
	require.NoError(t, err)
	assert.Len(t, table.Lookup("Sub::onSave"), 1)
}

func TestOptimize_Idempotent(t *testing.T) {
	a := newStub([]types.Declaration{types.Listen("Base::onSave"), types.HandleFunc("tick", noop)}, "onSave")
	graph := types.NewGraph(
		serviceOf("a", "A", a),
		serviceOf("s1", "S1", struct{}{}, "Base"),
		serviceOf("s2", "S2", struct{}{}, "S1", "Base"),
	)

	first, err := registry.BuildBindingTable(graph, "a")
	require.NoError(t, err)
	second, err := registry.BuildBindingTable(graph, "a")
	require.NoError(t, err)

	require.Equal(t, first.Events(), second.Events())
	for _, name := range first.Events() {
		assert.Equal(t, first.Lookup(name), second.Lookup(name))
	}
}

func TestTable_ExportImport(t *testing.T) {
	sub := newStub([]types.Declaration{
		types.HandleWithPriority("evt", "a", 1),
		types.HandleWithPriority("evt", "b", 9),
		types.HandleFunc("tick", noop),
	}, "a", "b")
	table, err := registry.BuildBindingTable(types.NewGraph(serviceOf("s", "S", sub)), "s")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, registry.Export(table, &buf))

	loaded, err := registry.Import(&buf)
	require.NoError(t, err)
	assert.Equal(t, table.Events(), loaded.Events())
	assert.Equal(t, table.Lookup("evt"), loaded.Lookup("evt"))
	assert.True(t, loaded.Lookup("tick")[0].Closure)
}

func TestTable_ImportRejectsBadInput(t *testing.T) {
	_, err := registry.Import(bytes.NewBufferString(`{"version": 2, "bindings": {}}`))
	assert.Error(t, err)

	_, err = registry.Import(bytes.NewBufferString(`{"version": 1, "bindings": {" ": []}}`))
	assert.ErrorIs(t, err, types.ErrEmptyName)
}

func TestTable_ImportMergesEquivalentNames(t *testing.T) {
	loaded, err := registry.Import(bytes.NewBufferString(`{"version": 1, "bindings": {
		"A::x": [{"subscriber": "s", "event": "A::x", "method": "a", "priority": 1}],
		"\\A::x": [
			{"subscriber": "s", "event": "A::x", "method": "a", "priority": 1},
			{"subscriber": "t", "event": "A::x", "method": "b", "priority": 5}
		]
	}}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"A::x"}, loaded.Events())
	bindings := loaded.Lookup("A::x")
	require.Len(t, bindings, 2)
	assert.Equal(t, "t", bindings[0].Subscriber)
	assert.Equal(t, "s", bindings[1].Subscriber)
}

func TestNormalize_NilClosure(t *testing.T) {
	var nilListener types.Listener
	var nilFunc func(*types.Event) error

	for _, decl := range []types.Declaration{
		types.HandleFunc("tick", nil),
		{Event: "tick", Value: nilListener},
		{Event: "tick", Value: nilFunc},
		types.HandleFuncWithPriority("tick", nil, 3),
	} {
		_, err := registry.Normalize("Stub", []types.Declaration{decl})
		require.Error(t, err)
		assert.True(t, errors.Is(err, registry.ErrMalformed))
		assert.NotContains(t, err.Error(), "is not implemented")
	}
}
