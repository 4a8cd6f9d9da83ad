package event

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/spf13/cast"
	"github.com/yaoapp/events/event/registry"
	"github.com/yaoapp/events/event/types"
	"github.com/yaoapp/kun/log"
)

// ErrNotStruct is returned by Autowire for values that are not struct pointers.
var ErrNotStruct = errors.New("event: autowire expects a non-nil pointer to a struct")

// autowireTag is the struct tag read by Autowire.
//
//	OnSave *event.Slot `events:"globalDispatchFirst"`        // global listeners first
//	OnLoad *event.Slot `events:"globalDispatchFirst=false"`  // local handlers first
//	OnSkip *event.Slot `events:"-"`                          // left alone
const autowireTag = "events"

var slotType = reflect.TypeOf((*Slot)(nil))

// Autowire binds the event slots of obj. Every exported field named
// On<Upper>... of type *Slot that is still nil gets a slot named
// "<Type>::<Field>" created through CreateEvent. Slots already set are kept.
// It returns the number of slots created.
func (m *Manager) Autowire(obj any) (int, error) {
	v := reflect.ValueOf(obj)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return 0, fmt.Errorf("%w, got %T", ErrNotStruct, obj)
	}

	typeName := registry.TypeName(obj)
	elem := v.Elem()
	st := elem.Type()

	wired := 0
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		if !isSlotField(field) {
			continue
		}

		opts, skip, err := slotTagOptions(field.Tag.Get(autowireTag))
		if err != nil {
			return wired, fmt.Errorf("event: autowire %s.%s: %w", typeName, field.Name, err)
		}
		if skip {
			continue
		}

		fv := elem.Field(i)
		if !fv.IsNil() {
			continue
		}
		name := types.Name{Namespace: typeName, Separator: types.SeparatorClass, Event: field.Name}.String()
		fv.Set(reflect.ValueOf(m.CreateEvent(name, opts...)))
		wired++
	}

	if wired > 0 {
		log.Trace("[events] autowired %d slots on %s", wired, typeName)
	}
	return wired, nil
}

func isSlotField(field reflect.StructField) bool {
	if !field.IsExported() || field.Type != slotType {
		return false
	}
	rest := strings.TrimPrefix(field.Name, "On")
	if rest == field.Name || rest == "" {
		return false
	}
	return unicode.IsUpper([]rune(rest)[0])
}

// slotTagOptions parses the events tag. An absent globalDispatchFirst leaves
// the manager default in place.
func slotTagOptions(tag string) ([]SlotOption, bool, error) {
	tag = strings.TrimSpace(tag)
	if tag == "-" {
		return nil, true, nil
	}

	var opts []SlotOption
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, "=")
		switch strings.TrimSpace(key) {
		case "globalDispatchFirst":
			first := true
			if hasValue {
				v, err := cast.ToBoolE(strings.TrimSpace(value))
				if err != nil {
					return nil, false, fmt.Errorf("globalDispatchFirst: %w", err)
				}
				first = v
			}
			opts = append(opts, GlobalDispatchFirst(first))
		default:
			return nil, false, fmt.Errorf("unknown option %q", key)
		}
	}
	return opts, false, nil
}

// autowiring hands out provider instances with their slots bound.
type autowiring struct {
	types.Provider
	manager *Manager
}

func (p *autowiring) Instance(id string) (any, error) {
	obj, err := p.Provider.Instance(id)
	if err != nil {
		return nil, err
	}
	if _, err := p.manager.Autowire(obj); err != nil && !errors.Is(err, ErrNotStruct) {
		return nil, err
	}
	return obj, nil
}
