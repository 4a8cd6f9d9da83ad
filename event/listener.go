package event

import (
	"runtime/debug"
	"sort"

	"github.com/yaoapp/events/event/types"
	"github.com/yaoapp/kun/log"
)

// listenerEntry is one resolved listener of an event.
// Dynamic entries carry the bound listener; lazy entries carry the binding
// and resolve the listener from the subscriber instance on first use.
type listenerEntry struct {
	info     types.ListenerInfo
	key      string
	listener types.Listener
	binding  *types.Binding
}

// resolveFunc returns the callable behind an entry.
type resolveFunc func(e *listenerEntry) (types.Listener, error)

// lookupKeys returns the names whose listeners receive an event, most
// specific first: the name itself, the same short name on every ancestor
// type, then the bare short name. Only "::" names fan out.
func lookupKeys(name string, index *types.TypeIndex) []string {
	keys := []string{name}
	parsed := types.ParseName(name)
	if parsed.Separator != types.SeparatorClass {
		return keys
	}

	seen := map[string]struct{}{name: {}}
	add := func(key string) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	for _, parent := range index.Parents(parsed.Namespace) {
		add(parsed.WithNamespace(parent).String())
	}
	add(parsed.Event)
	return keys
}

// mergeEntries concatenates the per-key lists, drops handlers already seen
// and orders the result by descending priority. Equal priorities keep the
// order of the input.
func mergeEntries(lists ...[]*listenerEntry) []*listenerEntry {
	var out []*listenerEntry
	seen := map[string]struct{}{}
	for _, list := range lists {
		for _, e := range list {
			if _, ok := seen[e.key]; ok {
				continue
			}
			seen[e.key] = struct{}{}
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].info.Priority > out[j].info.Priority
	})
	return out
}

func infosOf(entries []*listenerEntry) []types.ListenerInfo {
	infos := make([]types.ListenerInfo, len(entries))
	for i, e := range entries {
		infos[i] = e.info
	}
	return infos
}

// invoke runs the entries in order until propagation stops.
//
// A failing listener is reported to the exception handler when one is set:
// a nil answer moves on to the next listener, an error aborts the dispatch.
// Without a handler the first failure aborts the dispatch.
func invoke(ev *types.Event, entries []*listenerEntry, resolve resolveFunc, handler types.ExceptionHandler) error {
	for _, e := range entries {
		if ev.IsPropagationStopped() {
			log.Trace("[events] %s propagation stopped before %s", ev.Name(), e.info.Subscriber)
			return nil
		}

		fn := e.listener
		if fn == nil {
			var err error
			fn, err = resolve(e)
			if err != nil {
				return err
			}
		}

		err := call(ev, fn)
		if err == nil {
			continue
		}

		herr := &HandlerError{
			Event:      ev.Name(),
			Subscriber: e.info.Subscriber,
			Method:     e.info.Method,
			Err:        err,
		}
		if handler == nil {
			return herr
		}
		if abort := handler.HandleException(ev, herr); abort != nil {
			return abort
		}
		log.With(log.F{"event": ev.Name(), "subscriber": e.info.Subscriber, "method": e.info.Method}).
			Warn("[events] listener failed, continuing: %v", err)
	}
	return nil
}

// call runs one listener, turning a panic into a PanicError.
func call(ev *types.Event, fn types.Listener) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("[events] listener panic: event=%s id=%s err=%v", ev.Name(), ev.ID(), r)
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ev)
}
