package event_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yaoapp/events/event"
	"github.com/yaoapp/events/event/registry"
	"github.com/yaoapp/events/event/types"
)

// countingProvider builds subscribers on demand and counts constructions.
type countingProvider struct {
	mu       sync.Mutex
	builders map[string]func() any
	counts   map[string]*atomic.Int32
}

func newProvider() *countingProvider {
	return &countingProvider{builders: map[string]func() any{}, counts: map[string]*atomic.Int32{}}
}

func (p *countingProvider) add(id string, build func() any) *countingProvider {
	p.builders[id] = build
	p.counts[id] = &atomic.Int32{}
	return p
}

func (p *countingProvider) Instance(id string) (any, error) {
	p.mu.Lock()
	build, ok := p.builders[id]
	count := p.counts[id]
	p.mu.Unlock()
	if !ok {
		return nil, errors.New("service not found: " + id)
	}
	count.Add(1)
	return build(), nil
}

func (p *countingProvider) count(id string) int32 {
	return p.counts[id].Load()
}

// lazyFixture compiles subscribers A (priority 10) and B (priority 5) on "evt"
// and an unrelated subscriber C.
func lazyFixture(t *testing.T, rec *recorder) (*event.Manager, *countingProvider) {
	t.Helper()

	a := func() any { return newSubscriber("a", rec, types.HandleWithPriority("evt", "onEvt", 10)) }
	b := func() any { return newSubscriber("b", rec, types.HandleWithPriority("evt", "onEvt", 5)) }
	c := func() any { return newSubscriber("c", rec, types.Handle("other", "onOther")) }

	graph := types.NewGraph(
		types.Service{ID: "a", Type: &types.Type{Name: "A", Prototype: a()}},
		types.Service{ID: "b", Type: &types.Type{Name: "B", Prototype: b()}},
		types.Service{ID: "c", Type: &types.Type{Name: "C", Prototype: c()}},
	)
	table, err := registry.BuildBindingTable(graph, "a", "b", "c")
	require.NoError(t, err)

	provider := newProvider().add("a", a).add("b", b).add("c", c)
	return event.NewLazy(table, provider, event.WithTypes(graph)), provider
}

func TestLazy_EndToEnd(t *testing.T) {
	rec := &recorder{}
	m, provider := lazyFixture(t, rec)

	require.NoError(t, m.Dispatch("evt", 42))
	assert.Equal(t, []string{"a.onEvt", "b.onEvt"}, rec.Calls())
	assert.Equal(t, [][]any{{42}, {42}}, rec.args)

	assert.EqualValues(t, 1, provider.count("a"))
	assert.EqualValues(t, 1, provider.count("b"))
	assert.EqualValues(t, 0, provider.count("c"), "subscribers of other events are never built")
	assert.False(t, m.IsLoaded("c"))

	require.NoError(t, m.Dispatch("evt"))
	assert.EqualValues(t, 1, provider.count("a"), "instances are cached")
}

func TestLazy_IntrospectionDoesNotInstantiate(t *testing.T) {
	rec := &recorder{}
	m, provider := lazyFixture(t, rec)

	assert.True(t, m.HasListeners("evt"))
	assert.True(t, m.HasListeners(""))
	assert.False(t, m.HasListeners("missing"))

	infos := m.Listeners("evt")
	require.Len(t, infos, 2)
	assert.Equal(t, "a", infos[0].Subscriber)
	assert.Equal(t, 10, infos[0].Priority)
	assert.Len(t, m.AllListeners(), 2)

	for _, id := range []string{"a", "b", "c"} {
		assert.EqualValues(t, 0, provider.count(id))
	}
}

func TestLazy_ConcurrentFirstUse(t *testing.T) {
	rec := &recorder{}
	m, provider := lazyFixture(t, rec)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Dispatch("evt"))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, provider.count("a"))
	assert.EqualValues(t, 1, provider.count("b"))
	assert.Len(t, rec.Calls(), 128)
}

func TestLazy_StaticTable(t *testing.T) {
	m, _ := lazyFixture(t, &recorder{})
	assert.True(t, m.IsLazy())
	assert.ErrorIs(t, m.AddSubscriber(newSubscriber("x", &recorder{})), event.ErrStaticTable)
}

func TestLazy_BareShortName(t *testing.T) {
	rec := &recorder{}
	bare := func() any { return newSubscriber("bare", rec, types.Listen("onSave")) }
	graph := types.NewGraph(types.Service{ID: "bare", Type: &types.Type{Name: "Bare", Prototype: bare()}})
	table, err := registry.BuildBindingTable(graph, "bare")
	require.NoError(t, err)

	m := event.NewLazy(table, newProvider().add("bare", bare))
	require.NoError(t, m.Dispatch(`App\Article::onSave`))
	require.NoError(t, m.Dispatch("app.article.onSave"))
	assert.Equal(t, []string{"bare.onSave"}, rec.Calls(), "only :: names fall back to the short name")
}

func TestLazy_SubtypeExpansion(t *testing.T) {
	rec := &recorder{}
	listener := func() any { return newSubscriber("l", rec, types.Listen("Base::onSave")) }
	graph := types.NewGraph(
		types.Service{ID: "l", Type: &types.Type{Name: "L", Prototype: listener()}},
		types.Service{ID: "article", Type: &types.Type{Name: "Article", Parents: []string{"Base"}}},
	)
	table, err := registry.BuildBindingTable(graph, "l")
	require.NoError(t, err)

	m := event.NewLazy(table, newProvider().add("l", listener), event.WithTypes(graph))
	require.NoError(t, m.Dispatch("Article::onSave"))
	assert.Equal(t, []string{"l.onSave"}, rec.Calls())
}

func TestLazy_Closures(t *testing.T) {
	var got []int
	build := func() any {
		return newSubscriber("cl", &recorder{},
			types.HandleFunc("evt", func(*types.Event) error { got = append(got, 1); return nil }),
			types.HandleFuncWithPriority("evt", func(*types.Event) error { got = append(got, 2); return nil }, 5),
		)
	}
	graph := types.NewGraph(types.Service{ID: "cl", Type: &types.Type{Name: "Cl", Prototype: build()}})
	table, err := registry.BuildBindingTable(graph, "cl")
	require.NoError(t, err)

	m := event.NewLazy(table, newProvider().add("cl", build))
	require.NoError(t, m.Dispatch("evt"))
	assert.Equal(t, []int{2, 1}, got)
}

func TestLazy_ProviderFailure(t *testing.T) {
	rec := &recorder{}
	m, _ := lazyFixture(t, rec)

	broken := event.NewLazy(types.NewBindingTable(map[string][]types.Binding{
		"evt": {{Subscriber: "gone", Event: "evt", Method: "onEvt"}},
	}), newProvider())

	err := broken.Dispatch("evt")
	var rerr *event.ResolveError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "gone", rerr.Subscriber)

	noProvider := event.NewLazy(types.NewBindingTable(map[string][]types.Binding{
		"evt": {{Subscriber: "a", Event: "evt", Method: "onEvt"}},
	}), nil)
	assert.ErrorIs(t, noProvider.Dispatch("evt"), event.ErrNoProvider)

	require.NoError(t, m.Dispatch("evt"))
}

func TestLazy_TiesMatchDynamicOrder(t *testing.T) {
	zeta := func(rec *recorder) any { return newSubscriber("zeta", rec, types.Listen("App::created")) }
	alpha := func(rec *recorder) any { return newSubscriber("alpha", rec, types.Listen("App::created")) }

	graph := types.NewGraph(
		types.Service{ID: "alpha", Type: &types.Type{Name: "Alpha", Prototype: alpha(nil)}},
		types.Service{ID: "zeta", Type: &types.Type{Name: "Zeta", Prototype: zeta(nil)}},
	)
	table, err := registry.BuildBindingTable(graph, "zeta", "alpha")
	require.NoError(t, err)

	lazyRec := &recorder{}
	provider := newProvider().
		add("zeta", func() any { return zeta(lazyRec) }).
		add("alpha", func() any { return alpha(lazyRec) })
	lazy := event.NewLazy(table, provider, event.WithTypes(graph))
	require.NoError(t, lazy.Dispatch("App::created"))

	dynamicRec := &recorder{}
	dynamic := event.New(event.WithTypes(graph))
	require.NoError(t, dynamic.AddSubscriber(zeta(dynamicRec).(types.Subscriber)))
	require.NoError(t, dynamic.AddSubscriber(alpha(dynamicRec).(types.Subscriber)))
	require.NoError(t, dynamic.Dispatch("App::created"))

	want := []string{"zeta.created", "alpha.created"}
	assert.Equal(t, want, lazyRec.Calls())
	assert.Equal(t, want, dynamicRec.Calls())
}
