package trace

// recorderState holds all mutable state of a recorder.
// Protected by Recorder.mu; all access goes through the state* methods.
type recorderState struct {
	stack   []*Node
	roots   []*Node
	log     []*Record
	counts  map[string]int
	updates []*Update
}

func (s *recorderState) reset() {
	s.stack = nil
	s.roots = nil
	s.log = nil
	s.counts = map[string]int{}
	s.updates = nil
}

// statePush opens a dispatch under the innermost open one.
func (r *Recorder) statePush(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node := &Node{Record: rec}
	if depth := len(r.state.stack); depth > 0 {
		parent := r.state.stack[depth-1]
		rec.Parent = parent.Record.ID
		rec.Depth = depth
		if r.opts.DispatchTree {
			parent.Children = append(parent.Children, node)
		}
	} else if r.opts.DispatchTree {
		r.state.roots = trimOldest(append(r.state.roots, node), r.opts.MaxRecords)
	}
	r.state.stack = append(r.state.stack, node)

	if r.opts.DispatchLog {
		r.state.log = trimOldest(append(r.state.log, rec), r.opts.MaxRecords)
	}
	if r.opts.Events {
		r.state.counts[rec.Event]++
	}
}

// statePop closes the innermost open dispatch of the event. Dispatches
// opened above it and never closed are dropped from the stack.
func (r *Recorder) statePop(eventID string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.state.stack) - 1; i >= 0; i-- {
		node := r.state.stack[i]
		if node.Record.EventID == eventID {
			r.state.stack = r.state.stack[:i]
			return node.Record
		}
	}
	return nil
}

func (r *Recorder) stateAddUpdate(update *Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.updates = trimOldest(append(r.state.updates, update), 2*r.opts.MaxRecords)
}

func (r *Recorder) stateGetUpdates(since int64) []*Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	filtered := make([]*Update, 0)
	for _, update := range r.state.updates {
		if update.Timestamp >= since {
			filtered = append(filtered, update)
		}
	}
	return filtered
}

// trimOldest drops the head of list beyond limit entries.
func trimOldest[T any](list []T, limit int) []T {
	over := len(list) - limit
	if limit <= 0 || over <= 0 {
		return list
	}
	n := copy(list, list[over:])
	clear(list[n:])
	return list[:n]
}
