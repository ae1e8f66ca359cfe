// Package breakpoint implements the process-wide registry of in-flight
// requests parked awaiting an external resume/abort/modify decision — the
// mechanism behind interactive request debugging. There is no Temporal or
// other durable-workflow engine underneath: a breakpoint only survives as
// long as the process and the goroutine awaiting it are alive, consistent
// with spec §4.6's "process-wide registry" (not a persisted one).
package breakpoint

import (
	"sync"

	"github.com/google/uuid"

	"github.com/vllora/gateway/types"
)

// ActionKind discriminates a breakpoint's resume action.
type ActionKind string

const (
	// ActionContinue proceeds with the parked request unmodified.
	ActionContinue ActionKind = "continue"
	// ActionModify replaces the parked request before it proceeds. Only
	// Params, Messages, and Tools are honored (spec §4.3: "only parameters,
	// messages, tools mutable").
	ActionModify ActionKind = "modify"
	// ActionAbort fails the parked request with BreakpointAborted.
	ActionAbort ActionKind = "abort"
)

// Action is the payload delivered to a parked waiter on resume.
type Action struct {
	Kind ActionKind
	// Modified carries the replacement request when Kind is ActionModify.
	Modified *types.UnifiedRequest
}

// Entry is one parked breakpoint as seen by List.
type Entry struct {
	ID       string
	Request  *types.UnifiedRequest
	ThreadID string
}

// pending is the registry's internal bookkeeping for one parked request.
type pending struct {
	entry Entry
	// resolved is a one-shot channel: exactly one Action is ever sent, by
	// whichever of Resolve/ResolveAll reaches it first, then the
	// channel is closed so a redundant resolve is a harmless no-op rather
	// than a panic.
	resolved chan Action
	once     sync.Once
}

func (p *pending) resolve(a Action) {
	p.once.Do(func() {
		p.resolved <- a
		close(p.resolved)
	})
}

// Manager is the process-wide breakpoint registry described in spec §4.6.
// A single mutex serializes registry mutation; individual resumes use
// one-shot channels so waiters never hold the lock while parked.
type Manager struct {
	mu   sync.Mutex
	byID map[string]*pending

	interceptAll bool
	// onInterceptAllChange is invoked (outside the lock) whenever
	// SetInterceptAll changes the mode, so callers can broadcast the
	// change as an event per spec §4.6.
	onInterceptAllChange func(enabled bool)
}

// New constructs an empty Manager.
func New() *Manager {
	return &Manager{byID: make(map[string]*pending)}
}

// OnInterceptAllChange registers a callback invoked whenever
// SetInterceptAll flips the global intercept-all mode. Only one callback is
// kept; a later call replaces an earlier one.
func (m *Manager) OnInterceptAllChange(fn func(enabled bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onInterceptAllChange = fn
}

// InterceptAll reports whether every request should be intercepted
// regardless of breakpoint tag matching.
func (m *Manager) InterceptAll() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interceptAll
}

// SetInterceptAll toggles the intercept-all mode and, if changed, invokes
// the registered change callback.
func (m *Manager) SetInterceptAll(enabled bool) {
	m.mu.Lock()
	changed := m.interceptAll != enabled
	m.interceptAll = enabled
	cb := m.onInterceptAllChange
	m.mu.Unlock()
	if changed && cb != nil {
		cb(enabled)
	}
}

// Register parks req and returns a fresh breakpoint id plus a channel the
// caller must receive from exactly once to learn the resume Action.
func (m *Manager) Register(req *types.UnifiedRequest, threadID string) (id string, waiter <-chan Action) {
	id = uuid.NewString()
	p := &pending{
		entry:    Entry{ID: id, Request: req, ThreadID: threadID},
		resolved: make(chan Action, 1),
	}
	m.mu.Lock()
	m.byID[id] = p
	m.mu.Unlock()
	return id, p.resolved
}

// List returns every currently-parked breakpoint.
func (m *Manager) List() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, p.entry)
	}
	return out
}

// Resolve delivers action to the breakpoint identified by id and removes it
// from the registry. Returns *types.BadRequest (reused here as the
// registry's NotFound signal, since the core has no dedicated NotFound
// error kind) if id is not currently parked.
func (m *Manager) Resolve(id string, action Action) error {
	m.mu.Lock()
	p, ok := m.byID[id]
	if ok {
		delete(m.byID, id)
	}
	m.mu.Unlock()
	if !ok {
		return &types.BadRequest{Reason: "breakpoint: no such id " + id}
	}
	p.resolve(action)
	return nil
}

// ResolveAll delivers action to every currently-parked breakpoint and
// clears the registry, per spec §4.6's "used for global release".
func (m *Manager) ResolveAll(action Action) {
	m.mu.Lock()
	all := make([]*pending, 0, len(m.byID))
	for _, p := range m.byID {
		all = append(all, p)
	}
	m.byID = make(map[string]*pending)
	m.mu.Unlock()
	for _, p := range all {
		p.resolve(action)
	}
}
