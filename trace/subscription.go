package trace

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

var subIDCounter atomic.Uint64

func nextSubID() string {
	id := subIDCounter.Add(1)
	return fmt.Sprintf("sub-%d", id)
}

// subEntry holds one subscription.
type subEntry struct {
	id      string
	pattern string
	filter  func(*Update) bool
	ch      chan<- *Update
}

// subManager fans updates out to subscribers.
type subManager struct {
	mu      sync.RWMutex
	entries map[string]*subEntry // id -> entry
}

func newSubManager() *subManager {
	return &subManager{entries: make(map[string]*subEntry)}
}

func (sm *subManager) subscribe(pattern string, ch chan<- *Update, filter func(*Update) bool) string {
	id := nextSubID()
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.entries[id] = &subEntry{id: id, pattern: pattern, filter: filter, ch: ch}
	return id
}

func (sm *subManager) unsubscribe(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.entries, id)
}

// notify sends an update to all matching subscribers (non-blocking).
func (sm *subManager) notify(update *Update) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for _, entry := range sm.entries {
		if !matchPattern(entry.pattern, update.Event) {
			continue
		}
		if entry.filter != nil && !entry.filter(update) {
			continue
		}
		select {
		case entry.ch <- update:
		default:
			// Subscriber chan full, skip (non-blocking)
		}
	}
}

// matchPattern matches an event name against a subscription pattern.
//   - "*" matches everything
//   - "App::*" or "app.*" matches any name starting with the prefix
//   - anything else matches the exact name
func matchPattern(pattern, name string) bool {
	if pattern == "*" || pattern == "" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == name
}

// Subscribe streams live updates of events matching pattern to ch.
// Delivery is non-blocking: if ch is full, the update is skipped.
// Returns the subscription ID for Unsubscribe.
func (r *Recorder) Subscribe(pattern string, ch chan<- *Update, filter func(*Update) bool) string {
	return r.subs.subscribe(pattern, ch, filter)
}

// Unsubscribe removes a subscription by ID.
func (r *Recorder) Unsubscribe(id string) {
	r.subs.unsubscribe(id)
}

// SubscribeFrom replays the updates recorded since the timestamp, then
// streams live ones until stop is called. The returned channel is closed
// after stop.
//
// The live subscription is registered before the history is read, and
// updates seen in both are delivered once.
func (r *Recorder) SubscribeFrom(since int64, pattern string) (<-chan *Update, func()) {
	bufferSize := 1000
	out := make(chan *Update, bufferSize)
	live := make(chan *Update, bufferSize)
	done := make(chan struct{})

	subID := r.Subscribe(pattern, live, nil)
	historical := r.stateGetUpdates(since)

	seen := make(map[*Update]struct{}, len(historical))
	for _, u := range historical {
		seen[u] = struct{}{}
	}

	go func() {
		defer close(out)
		defer r.Unsubscribe(subID)

		for _, u := range historical {
			if !matchPattern(pattern, u.Event) {
				continue
			}
			select {
			case out <- u:
			case <-done:
				return
			}
		}

		for {
			select {
			case u := <-live:
				if _, dup := seen[u]; dup {
					delete(seen, u)
					continue
				}
				select {
				case out <- u:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return out, func() { once.Do(func() { close(done) }) }
}
