package types

import (
	"fmt"
	"reflect"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
)

// Listener handles one dispatched event. A non-nil error aborts the dispatch
// unless an ExceptionHandler decides otherwise.
type Listener func(ev *Event) error

// Event is a named unit of dispatch.
// The name and the arguments are fixed at construction; only the
// propagation flag changes afterwards.
type Event struct {
	name    string
	id      string
	args    []any
	stopped atomic.Bool
}

// NewEvent creates an event. The name is normalized (leading separators stripped).
func NewEvent(name string, args ...any) *Event {
	cp := make([]any, len(args))
	copy(cp, args)
	return &Event{
		name: NormalizeName(name),
		id:   uuid.NewString(),
		args: cp,
	}
}

// Name returns the normalized event name.
func (ev *Event) Name() string { return ev.name }

// ID returns the auto-generated event ID.
func (ev *Event) ID() string { return ev.id }

// Args returns a copy of the argument list.
func (ev *Event) Args() []any {
	cp := make([]any, len(ev.args))
	copy(cp, ev.args)
	return cp
}

// NumArgs returns the number of arguments.
func (ev *Event) NumArgs() int { return len(ev.args) }

// Arg returns the i-th argument, nil when out of range.
func (ev *Event) Arg(i int) any {
	if i < 0 || i >= len(ev.args) {
		return nil
	}
	return ev.args[i]
}

// StopPropagation prevents the remaining listeners from being invoked.
func (ev *Event) StopPropagation() { ev.stopped.Store(true) }

// IsPropagationStopped reports whether a listener stopped the propagation.
func (ev *Event) IsPropagationStopped() bool { return ev.stopped.Load() }

// Should assigns the i-th argument to the target pointer.
// target must be a non-nil pointer. Returns an error if the type does not match.
//
// Usage:
//
//	var article Article
//	if err := ev.Should(0, &article); err != nil { ... }
func (ev *Event) Should(i int, target any) error {
	if target == nil {
		return fmt.Errorf("event.Should: target must be a non-nil pointer")
	}

	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("event.Should: target must be a non-nil pointer, got %T", target)
	}

	if i < 0 || i >= len(ev.args) {
		return fmt.Errorf("event.Should: argument %d out of range (%d arguments)", i, len(ev.args))
	}

	arg := ev.args[i]
	if arg == nil {
		return fmt.Errorf("event.Should: argument %d is nil", i)
	}

	argVal := reflect.ValueOf(arg)
	targetElem := rv.Elem()

	// Pointer arguments are dereferenced unless the target wants the pointer itself
	if argVal.Kind() == reflect.Ptr && !argVal.Type().AssignableTo(targetElem.Type()) {
		if argVal.IsNil() {
			return fmt.Errorf("event.Should: argument %d is nil pointer", i)
		}
		argVal = argVal.Elem()
	}

	if !argVal.Type().AssignableTo(targetElem.Type()) {
		return fmt.Errorf("event.Should: argument %d type %T is not assignable to %s", i, arg, targetElem.Type())
	}

	targetElem.Set(argVal)
	return nil
}

// Declaration is one entry of a subscriber's subscribed-events list.
//
// Value accepts the loose shapes a declaration may take:
//   - nil: the handler is the short name of Event ("App::onCreate" -> "onCreate")
//   - string: a handler method name; with an empty Event it names the event instead
//   - Listener or func(*Event) error: a closure, requires Event
//   - Pair, []Pair, FuncPair: handlers with explicit priorities
//   - []any: the same shapes decoded from configuration, e.g. ["onCreate", 10]
//
// Declarations are normalized once into a HandlerSpec at build time.
type Declaration struct {
	Event string
	Value any
}

// Pair is a (method, priority) handler reference.
type Pair struct {
	Method   string
	Priority int
}

// FuncPair is a closure handler with a priority.
type FuncPair struct {
	Func     Listener
	Priority int
}

// Listen declares an event handled by the method named after its short name.
func Listen(event string) Declaration {
	return Declaration{Event: event}
}

// Handle declares an event handled by the given method at priority 0.
func Handle(event, method string) Declaration {
	return Declaration{Event: event, Value: method}
}

// HandleWithPriority declares an event handled by the given method.
func HandleWithPriority(event, method string, priority int) Declaration {
	return Declaration{Event: event, Value: Pair{Method: method, Priority: priority}}
}

// HandleAll declares several handlers for one event.
func HandleAll(event string, pairs ...Pair) Declaration {
	return Declaration{Event: event, Value: pairs}
}

// HandleFunc declares a closure handler at priority 0.
func HandleFunc(event string, fn Listener) Declaration {
	return Declaration{Event: event, Value: fn}
}

// HandleFuncWithPriority declares a closure handler.
func HandleFuncWithPriority(event string, fn Listener, priority int) Declaration {
	return Declaration{Event: event, Value: FuncPair{Func: fn, Priority: priority}}
}

// Ref is a normalized handler reference. Exactly one of Method or Func is set.
type Ref struct {
	Method   string
	Priority int
	Func     Listener
}

// IsClosure reports whether the handler is a closure.
func (r Ref) IsClosure() bool { return r.Func != nil }

// HandlerSpec is the normalized form of a declaration value: Single or Multiple.
type HandlerSpec interface {
	Refs() []Ref
	isHandlerSpec()
}

// Single is one handler for an event.
type Single struct {
	Ref Ref
}

// Refs implements HandlerSpec.
func (s Single) Refs() []Ref { return []Ref{s.Ref} }

func (Single) isHandlerSpec() {}

// Multiple is an ordered list of handlers for one event.
type Multiple struct {
	List []Ref
}

// Refs implements HandlerSpec.
func (m Multiple) Refs() []Ref {
	cp := make([]Ref, len(m.List))
	copy(cp, m.List)
	return cp
}

func (Multiple) isHandlerSpec() {}

// EventHandlers binds one event name to its handlers.
type EventHandlers struct {
	Event string
	Spec  HandlerSpec
}

// Descriptor is the validated static metadata of one subscriber.
type Descriptor struct {
	Service string
	Type    string
	Events  []EventHandlers
}

// EventNames returns the handled event names in declaration order.
func (d *Descriptor) EventNames() []string {
	names := make([]string, 0, len(d.Events))
	seen := make(map[string]struct{}, len(d.Events))
	for _, eh := range d.Events {
		if _, ok := seen[eh.Event]; ok {
			continue
		}
		seen[eh.Event] = struct{}{}
		names = append(names, eh.Event)
	}
	return names
}

// Handlers returns the handlers declared for the event, nil if none.
func (d *Descriptor) Handlers(event string) []Ref {
	for _, eh := range d.Events {
		if eh.Event == event {
			return eh.Spec.Refs()
		}
	}
	return nil
}

// Binding points an event at one handler of one subscriber.
// Event is the name as declared by the subscriber; Index is the position of
// the handler inside that declaration.
type Binding struct {
	Subscriber string `json:"subscriber"`
	Event      string `json:"event"`
	Method     string `json:"method,omitempty"`
	Index      int    `json:"index"`
	Priority   int    `json:"priority"`
	Closure    bool   `json:"closure,omitempty"`
}

// Key identifies the handler a binding points at. A method bound through
// several declarations has one key; closures are told apart by position.
func (b Binding) Key() string {
	if b.Closure {
		return fmt.Sprintf("%s|%s#%d", b.Subscriber, b.Event, b.Index)
	}
	return b.Subscriber + "|" + b.Method
}

// BindingTable maps event names to priority-sorted bindings.
// It is built once and never mutated afterwards.
type BindingTable struct {
	bindings map[string][]Binding
}

// NewBindingTable creates a table from already sorted bindings.
// The lists are copied.
func NewBindingTable(bindings map[string][]Binding) *BindingTable {
	t := &BindingTable{bindings: make(map[string][]Binding, len(bindings))}
	for name, list := range bindings {
		cp := make([]Binding, len(list))
		copy(cp, list)
		t.bindings[name] = cp
	}
	return t
}

// Lookup returns a copy of the bindings for the event.
func (t *BindingTable) Lookup(name string) []Binding {
	if t == nil {
		return nil
	}
	list := t.bindings[name]
	if len(list) == 0 {
		return nil
	}
	cp := make([]Binding, len(list))
	copy(cp, list)
	return cp
}

// Has reports whether the event has at least one binding.
func (t *BindingTable) Has(name string) bool {
	return t != nil && len(t.bindings[name]) > 0
}

// Events returns all bound event names, sorted.
func (t *BindingTable) Events() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.bindings))
	for name := range t.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of bound events.
func (t *BindingTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.bindings)
}

// Subscribers returns the distinct subscriber IDs bound to the event, in invocation order.
func (t *BindingTable) Subscribers(name string) []string {
	var ids []string
	seen := map[string]struct{}{}
	for _, b := range t.Lookup(name) {
		if _, ok := seen[b.Subscriber]; ok {
			continue
		}
		seen[b.Subscriber] = struct{}{}
		ids = append(ids, b.Subscriber)
	}
	return ids
}

// ListenerInfo describes one listener for introspection.
type ListenerInfo struct {
	Subscriber string `json:"subscriber"`
	Method     string `json:"method,omitempty"`
	Priority   int    `json:"priority"`
	Closure    bool   `json:"closure,omitempty"`
}

// Type is a resolved service type.
// Parents lists every ancestor or implemented type, nearest first.
// Prototype is a zero value used only to read static declarations.
type Type struct {
	Name      string
	Parents   []string
	Prototype any
}

// IsSubtypeOf reports whether t strictly derives from name.
func (t *Type) IsSubtypeOf(name string) bool {
	name = NormalizeName(name)
	if t == nil || NormalizeName(t.Name) == name {
		return false
	}
	for _, p := range t.Parents {
		if NormalizeName(p) == name {
			return true
		}
	}
	return false
}

// Service is one entry of the service graph snapshot. Type is nil when unresolved.
type Service struct {
	ID   string
	Type *Type
}
