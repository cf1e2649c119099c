// Package connector maintains the set of listeners attached to a project and
// routes typed commands to them by declared interest.
package connector

import (
	"sync"

	"github.com/agusx1211/amux/internal/debug"
	"github.com/agusx1211/amux/internal/wire"
)

// Connector is a capability-scoped subscriber/publisher bridging the
// orchestrator and a worker transport. Send must not block for long; the
// router treats delivery as fire-and-forget.
type Connector interface {
	// Kinds returns the message kinds this connector wants routed to it.
	Kinds() []wire.Kind

	// HistoryFile returns an input-history file override, or "".
	HistoryFile() string

	// Send delivers one message. Failures are the connector's problem;
	// the router isolates them.
	Send(msg wire.Msg)
}

type entry struct {
	conn  Connector
	kinds map[wire.Kind]struct{}
}

// Registry is a project's ordered collection of connectors.
type Registry struct {
	mu      sync.Mutex
	entries []entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends c to the collection, preserving registration order.
// Replay of current state to late joiners is the owner's responsibility.
func (r *Registry) Register(c Connector) {
	kinds := make(map[wire.Kind]struct{})
	for _, k := range c.Kinds() {
		kinds[k] = struct{}{}
	}
	r.mu.Lock()
	r.entries = append(r.entries, entry{conn: c, kinds: kinds})
	r.mu.Unlock()
	debug.LogKV("connector", "registered", "kinds", len(kinds), "total", r.Len())
}

// Unregister removes c by identity. No replay or compensation occurs.
func (r *Registry) Unregister(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.conn == c {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered connectors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Interested reports whether any registered connector listens for kind.
func (r *Registry) Interested(kind wire.Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if _, ok := e.kinds[kind]; ok {
			return true
		}
	}
	return false
}

// Route encodes the payload once and dispatches it to every connector whose
// interest set contains kind, in registration order. A panicking connector
// never prevents dispatch to the others.
func (r *Registry) Route(kind wire.Kind, payload any) {
	line, err := wire.Encode(kind, payload)
	if err != nil {
		debug.LogKV("connector", "encode failed", "kind", kind, "err", err)
		return
	}
	msg, err := wire.Decode(line)
	if err != nil {
		debug.LogKV("connector", "re-decode failed", "kind", kind, "err", err)
		return
	}

	r.mu.Lock()
	targets := make([]Connector, 0, len(r.entries))
	for _, e := range r.entries {
		if _, ok := e.kinds[kind]; ok {
			targets = append(targets, e.conn)
		}
	}
	r.mu.Unlock()

	for _, c := range targets {
		deliver(c, *msg)
	}
}

// SendTo delivers a single message to one connector with the same failure
// isolation as Route. Used for registration replay.
func (r *Registry) SendTo(c Connector, kind wire.Kind, payload any) {
	line, err := wire.Encode(kind, payload)
	if err != nil {
		debug.LogKV("connector", "encode failed", "kind", kind, "err", err)
		return
	}
	msg, err := wire.Decode(line)
	if err != nil {
		return
	}
	deliver(c, *msg)
}

func deliver(c Connector, msg wire.Msg) {
	defer func() {
		if rec := recover(); rec != nil {
			debug.LogKV("connector", "connector panicked during dispatch", "kind", msg.Kind, "panic", rec)
		}
	}()
	c.Send(msg)
}
