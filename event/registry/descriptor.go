package registry

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cast"
	"github.com/yaoapp/events/event/types"
)

// Extract reads the static declarations of a subscriber service from its
// type prototype and validates them.
func Extract(serviceID string, t *types.Type) (*types.Descriptor, error) {
	if t == nil {
		return nil, &ValidationError{
			Kind:    KindUnresolvedType,
			Service: serviceID,
			Message: fmt.Sprintf("Please, specify existing type for %sservice @%s explicitly.", anonymous(serviceID), serviceID),
		}
	}

	sub, ok := t.Prototype.(types.Subscriber)
	if !ok {
		return nil, &ValidationError{
			Kind:    KindNotSubscriber,
			Service: serviceID,
			Type:    t.Name,
			Message: fmt.Sprintf("Subscriber @%s doesn't implement types.Subscriber.", serviceID),
		}
	}

	typeName := t.Name
	if typeName == "" {
		typeName = TypeName(sub)
	}
	return Describe(serviceID, typeName, sub)
}

// Describe normalizes the declarations of a subscriber and checks that every
// named handler exists on it.
func Describe(serviceID, typeName string, sub types.Subscriber) (*types.Descriptor, error) {
	events, err := Normalize(typeName, sub.SubscribedEvents())
	if err != nil {
		return nil, withService(err, serviceID)
	}

	var errs *multierror.Error
	for _, eh := range events {
		for _, ref := range eh.Spec.Refs() {
			if ref.IsClosure() {
				continue
			}
			if _, ok := sub.Handler(ref.Method); !ok {
				errs = multierror.Append(errs, missingMethod(serviceID, typeName, eh.Event, ref.Method))
			}
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	return &types.Descriptor{Service: serviceID, Type: typeName, Events: events}, nil
}

// Normalize turns raw declarations into handler specs, merging repeated
// events in declaration order.
func Normalize(typeName string, decls []types.Declaration) ([]types.EventHandlers, error) {
	var (
		errs   *multierror.Error
		events []types.EventHandlers
		index  = map[string]int{}
	)

	for i, decl := range decls {
		event, refs, err := normalizeOne(typeName, i, decl)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}

		if pos, ok := index[event]; ok {
			merged := append(events[pos].Spec.Refs(), refs...)
			events[pos].Spec = types.Multiple{List: merged}
			continue
		}

		index[event] = len(events)
		events = append(events, types.EventHandlers{Event: event, Spec: specOf(refs)})
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return events, nil
}

func specOf(refs []types.Ref) types.HandlerSpec {
	if len(refs) == 1 {
		return types.Single{Ref: refs[0]}
	}
	return types.Multiple{List: refs}
}

func normalizeOne(typeName string, pos int, decl types.Declaration) (string, []types.Ref, error) {
	event := types.NormalizeName(decl.Event)

	// Positional entry: [EventName, ...]
	if event == "" {
		switch v := decl.Value.(type) {
		case string:
			name := types.NormalizeName(v)
			if name == "" {
				return "", nil, malformed(typeName, "", "positional entry %d has an empty event name", pos)
			}
			return name, []types.Ref{{Method: types.ParseName(name).Event}}, nil
		case types.Listener, func(*types.Event) error, types.FuncPair:
			return "", nil, &ValidationError{
				Kind:    KindPositionalClosure,
				Type:    typeName,
				Message: fmt.Sprintf("Closure event listener in %s class cannot be used without event name as a key.", typeName),
			}
		default:
			return "", nil, malformed(typeName, "", "positional entry %d must name an event, got %T", pos, decl.Value)
		}
	}

	// Keyed entry: [EventName => ???]
	switch v := decl.Value.(type) {
	case nil:
		return event, []types.Ref{{Method: types.ParseName(event).Event}}, nil
	case string:
		if v == "" {
			return "", nil, malformed(typeName, event, "empty handler method")
		}
		return event, []types.Ref{{Method: v}}, nil
	case types.Listener:
		if v == nil {
			return "", nil, malformed(typeName, event, "nil closure")
		}
		return event, []types.Ref{{Func: v}}, nil
	case func(*types.Event) error:
		if v == nil {
			return "", nil, malformed(typeName, event, "nil closure")
		}
		return event, []types.Ref{{Func: v}}, nil
	case types.FuncPair:
		if v.Func == nil {
			return "", nil, malformed(typeName, event, "nil closure")
		}
		return event, []types.Ref{{Func: v.Func, Priority: v.Priority}}, nil
	case types.Pair:
		if v.Method == "" {
			return "", nil, malformed(typeName, event, "empty handler method")
		}
		return event, []types.Ref{{Method: v.Method, Priority: v.Priority}}, nil
	case []types.Pair:
		if len(v) == 0 {
			return "", nil, malformed(typeName, event, "empty handler list")
		}
		refs := make([]types.Ref, 0, len(v))
		for _, p := range v {
			if p.Method == "" {
				return "", nil, malformed(typeName, event, "empty handler method")
			}
			refs = append(refs, types.Ref{Method: p.Method, Priority: p.Priority})
		}
		return event, refs, nil
	case map[string]any:
		ref, err := looseMap(typeName, event, v)
		if err != nil {
			return "", nil, err
		}
		return event, []types.Ref{ref}, nil
	case []any:
		refs, err := looseList(typeName, event, v)
		if err != nil {
			return "", nil, err
		}
		return event, refs, nil
	}

	return "", nil, malformed(typeName, event, "unsupported handler declaration %T", decl.Value)
}

// looseList handles configuration-decoded values:
// ["method", priority] or [["a", 10], ["b", 5], ...].
func looseList(typeName, event string, v []any) ([]types.Ref, error) {
	if len(v) == 0 {
		return nil, malformed(typeName, event, "empty handler list")
	}

	if method, ok := v[0].(string); ok {
		ref, err := loosePair(typeName, event, method, v[1:])
		if err != nil {
			return nil, err
		}
		return []types.Ref{ref}, nil
	}

	refs := make([]types.Ref, 0, len(v))
	for _, item := range v {
		switch entry := item.(type) {
		case []any:
			if len(entry) == 0 {
				return nil, malformed(typeName, event, "empty handler pair")
			}
			method, err := cast.ToStringE(entry[0])
			if err != nil {
				return nil, malformed(typeName, event, "handler method: %v", err)
			}
			ref, err := loosePair(typeName, event, method, entry[1:])
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		case map[string]any:
			ref, err := looseMap(typeName, event, entry)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		default:
			return nil, malformed(typeName, event, "unsupported handler entry %T", item)
		}
	}
	return refs, nil
}

func loosePair(typeName, event, method string, rest []any) (types.Ref, error) {
	if method == "" {
		return types.Ref{}, malformed(typeName, event, "empty handler method")
	}
	ref := types.Ref{Method: method}
	if len(rest) > 0 {
		priority, err := cast.ToIntE(rest[0])
		if err != nil {
			return types.Ref{}, malformed(typeName, event, "priority of %s: %v", method, err)
		}
		ref.Priority = priority
	}
	return ref, nil
}

// looseMap handles {method: onCreate, priority: 10}.
func looseMap(typeName, event string, v map[string]any) (types.Ref, error) {
	method := cast.ToString(v["method"])
	var rest []any
	if p, ok := v["priority"]; ok {
		rest = append(rest, p)
	}
	return loosePair(typeName, event, method, rest)
}

func malformed(typeName, event, format string, args ...any) *ValidationError {
	where := typeName
	if event != "" {
		where = fmt.Sprintf("%s (event %s)", typeName, event)
	}
	return &ValidationError{
		Kind:    KindMalformed,
		Type:    typeName,
		Event:   event,
		Message: fmt.Sprintf("Invalid event declaration in %s: %s", where, fmt.Sprintf(format, args...)),
	}
}

// withService stamps the service ID on validation errors.
func withService(err error, serviceID string) error {
	if merr, ok := err.(*multierror.Error); ok {
		for _, e := range merr.Errors {
			if ve, ok := e.(*ValidationError); ok && ve.Service == "" {
				ve.Service = serviceID
			}
		}
		return merr
	}
	if ve, ok := err.(*ValidationError); ok && ve.Service == "" {
		ve.Service = serviceID
	}
	return err
}

// TypeName returns the Go type name of a value without the pointer marker.
func TypeName(v any) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", v), "*")
}

func anonymous(serviceID string) string {
	if serviceID == "" {
		return "anonymous "
	}
	for _, r := range serviceID {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return "anonymous "
}
