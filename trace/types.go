package trace

import (
	"github.com/yaoapp/events/event/types"
)

// UpdateType is the kind of a recorder update.
type UpdateType string

// Update types.
const (
	UpdateTypeBegin UpdateType = "dispatch.begin"
	UpdateTypeEnd   UpdateType = "dispatch.end"
)

// DefaultMaxRecords is the history kept when Options.MaxRecords is zero.
const DefaultMaxRecords = 1000

// Options selects what the recorder keeps. It mirrors the debugger panels.
type Options struct {
	DispatchTree bool
	DispatchLog  bool
	Events       bool
	Listeners    bool
	// MaxRecords caps the dispatch log and the tree roots; the oldest entries
	// are dropped first. Updates kept for replay are capped at twice as many.
	MaxRecords int
}

// Record is one dispatch.
type Record struct {
	ID        string               `json:"id"`
	Event     string               `json:"event"`
	EventID   string               `json:"event_id"`
	Parent    string               `json:"parent,omitempty"`
	Depth     int                  `json:"depth"`
	NumArgs   int                  `json:"num_args"`
	Listeners []types.ListenerInfo `json:"listeners,omitempty"`
	Stopped   bool                 `json:"stopped,omitempty"`
	Error     string               `json:"error,omitempty"`
	StartTime int64                `json:"start_time"`
	EndTime   int64                `json:"end_time,omitempty"`
}

// Node is a dispatch with the dispatches its listeners triggered.
type Node struct {
	Record   *Record `json:"record"`
	Children []*Node `json:"children,omitempty"`
}

// Update is a notification sent to subscribers.
type Update struct {
	Type      UpdateType `json:"type"`
	Event     string     `json:"event"`
	Record    *Record    `json:"record"`
	Timestamp int64      `json:"timestamp"`
}

// Snapshot is the serialized recorder content.
type Snapshot struct {
	Log    []*Record      `json:"log,omitempty"`
	Tree   []*Node        `json:"tree,omitempty"`
	Events map[string]int `json:"events,omitempty"`
}
