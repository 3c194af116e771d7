package cache

import (
	"time"
)

// Op names a cache operation in events and metrics.
type Op string

const (
	OpRead          Op = "read"
	OpWrite         Op = "write"
	OpCreate        Op = "create"
	OpDelete        Op = "delete"
	OpDeleteMatched Op = "delete_matched"
	OpCleanup       Op = "cleanup"
	OpClear         Op = "clear"
)

// Event describes a completed mutation.
type Event struct {
	Op      Op        `json:"op"`
	Key     string    `json:"key,omitempty"`
	Pattern string    `json:"pattern,omitempty"`
	Count   int64     `json:"count"`
	At      time.Time `json:"at"`
}

// Notifier receives events after the store call succeeded.
// Implementations must not block.
type Notifier interface {
	Notify(Event)
}

// Observer records what the cache is doing.
type Observer interface {
	// Operation is called once per finished call with its error, if any.
	Operation(op Op, err error)
	// Lookup is called for every read with whether it hit.
	Lookup(hit bool)
	// Removed is called with the number of rows a delete-type op removed.
	Removed(op Op, n int64)
}

// NoopObserver ignores all events.
type NoopObserver struct{}

func (NoopObserver) Operation(Op, error) {}
func (NoopObserver) Lookup(bool)         {}
func (NoopObserver) Removed(Op, int64)   {}

type noopNotifier struct{}

func (noopNotifier) Notify(Event) {}
