// Package listener holds the raw-byte listener registry the receive loop fans
// out to.
//
// Registration hands back an opaque Handle; removal goes through the handle,
// never through function identity, so registering the same function twice and
// removing one handle removes exactly one registration.
package listener

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// ErrNilListener is returned when registering a nil Func.
var ErrNilListener = errors.New("listener: nil listener")

// Func receives every inbound payload. The payload is shared between all
// listeners of a cycle and must not be modified or retained after return.
type Func func(ctx context.Context, payload []byte) error

// Handle identifies one registration. The zero Handle is never issued.
type Handle struct {
	id uint64
}

// IsZero reports whether h was never issued by a Registry.
func (h Handle) IsZero() bool { return h.id == 0 }

func (h Handle) String() string { return "listener-" + strconv.FormatUint(h.id, 10) }

// Entry is one registration as seen by a snapshot.
type Entry struct {
	Handle Handle
	fn     Func
	// removed is shared with the registry copy so a snapshot observes
	// removals that complete after it was taken.
	removed *atomic.Bool
}

// Removed reports whether the entry was unregistered after the snapshot.
func (e Entry) Removed() bool { return e.removed.Load() }

// Invoke calls the listener, converting a panic into a *PanicError.
func (e Entry) Invoke(ctx context.Context, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Handle: e.Handle, Value: r}
		}
	}()
	return e.fn(ctx, payload)
}

// PanicError reports a listener that panicked instead of returning an error.
type PanicError struct {
	Handle Handle
	Value  any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("listener %s panicked: %v", e.Handle, e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Registry is safe for concurrent Register, Unregister and Snapshot.
type Registry struct {
	seq     atomic.Uint64
	entries cmap.ConcurrentMap[uint64, Entry]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: cmap.NewWithCustomShardingFunction[uint64, Entry](shardUint64),
	}
}

func shardUint64(key uint64) uint32 {
	// fold the high half in so sequential ids spread across shards
	return uint32(key ^ (key >> 32))
}

// Register adds fn and returns the handle that removes it.
func (r *Registry) Register(fn Func) (Handle, error) {
	if fn == nil {
		return Handle{}, ErrNilListener
	}
	h := Handle{id: r.seq.Add(1)}
	r.entries.Set(h.id, Entry{Handle: h, fn: fn, removed: new(atomic.Bool)})
	return h, nil
}

// Unregister removes the registration behind h. It reports false when h is
// unknown or was already removed.
func (r *Registry) Unregister(h Handle) bool {
	e, ok := r.entries.Pop(h.id)
	if !ok {
		return false
	}
	e.removed.Store(true)
	return true
}

// Snapshot returns the current registrations in registration order. Later
// registrations are not part of the returned slice; later removals are
// visible through Entry.Removed.
func (r *Registry) Snapshot() []Entry {
	items := r.entries.Items()
	out := make([]Entry, 0, len(items))
	for _, e := range items {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle.id < out[j].Handle.id })
	return out
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	return r.entries.Count()
}
