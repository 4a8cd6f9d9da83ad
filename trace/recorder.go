package trace

import (
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/yaoapp/events/event/types"
	"github.com/yaoapp/kun/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Recorder observes a manager and keeps what the debugger panels show:
// a flat dispatch log, the tree of nested dispatches, per-event counts
// and the listeners of each dispatch.
//
// Nesting is tracked with a single stack, so a recorder expects the
// dispatches it observes to come from one goroutine at a time.
type Recorder struct {
	opts  Options
	mu    sync.Mutex
	state recorderState
	subs  *subManager
}

// New creates a recorder.
func New(opts Options) *Recorder {
	if opts.MaxRecords <= 0 {
		opts.MaxRecords = DefaultMaxRecords
	}
	r := &Recorder{opts: opts, subs: newSubManager()}
	r.state.reset()
	return r
}

// Options returns the recorder options.
func (r *Recorder) Options() Options { return r.opts }

// BeginDispatch implements types.Observer.
func (r *Recorder) BeginDispatch(ev *types.Event, listeners []types.ListenerInfo) {
	rec := &Record{
		ID:        uuid.NewString(),
		Event:     ev.Name(),
		EventID:   ev.ID(),
		NumArgs:   ev.NumArgs(),
		StartTime: time.Now().UnixNano(),
	}
	if r.opts.Listeners && len(listeners) > 0 {
		rec.Listeners = append([]types.ListenerInfo(nil), listeners...)
	}

	r.statePush(rec)
	r.publish(UpdateTypeBegin, rec)
}

// EndDispatch implements types.Observer.
func (r *Recorder) EndDispatch(ev *types.Event, err error) {
	rec := r.statePop(ev.ID())
	if rec == nil {
		log.Warn("[events] trace: end of unknown dispatch %s id=%s", ev.Name(), ev.ID())
		return
	}

	r.mu.Lock()
	rec.EndTime = time.Now().UnixNano()
	rec.Stopped = ev.IsPropagationStopped()
	if err != nil {
		rec.Error = err.Error()
	}
	r.mu.Unlock()

	r.publish(UpdateTypeEnd, rec)
}

// Records returns the dispatch log, oldest first.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.state.log))
	for i, rec := range r.state.log {
		out[i] = *rec
	}
	return out
}

// Tree returns a copy of the dispatch tree roots.
func (r *Recorder) Tree() []*Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Node, len(r.state.roots))
	for i, n := range r.state.roots {
		out[i] = cloneNode(n)
	}
	return out
}

// Counts returns how many times each event was dispatched.
func (r *Recorder) Counts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.state.counts))
	for name, n := range r.state.counts {
		out[name] = n
	}
	return out
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.reset()
}

// WriteSnapshot serializes the enabled panels as JSON.
func (r *Recorder) WriteSnapshot(w io.Writer) error {
	snap := Snapshot{}
	if r.opts.DispatchLog {
		for _, rec := range r.Records() {
			rec := rec
			snap.Log = append(snap.Log, &rec)
		}
	}
	if r.opts.DispatchTree {
		snap.Tree = r.Tree()
	}
	if r.opts.Events {
		snap.Events = r.Counts()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func (r *Recorder) publish(typ UpdateType, rec *Record) {
	r.mu.Lock()
	cp := *rec
	r.mu.Unlock()

	update := &Update{Type: typ, Event: cp.Event, Record: &cp, Timestamp: time.Now().UnixNano()}
	r.stateAddUpdate(update)
	r.subs.notify(update)
}

func cloneNode(n *Node) *Node {
	rec := *n.Record
	out := &Node{Record: &rec}
	for _, c := range n.Children {
		out.Children = append(out.Children, cloneNode(c))
	}
	return out
}
