package metrics

import "sync/atomic"

// atomicSnapshot is a thin atomic.Pointer[Snapshot] wrapper so Repository's
// field declaration stays readable without repeating the generic parameter.
type atomicSnapshot struct {
	p atomic.Pointer[Snapshot]
}

func (a *atomicSnapshot) store(s *Snapshot) { a.p.Store(s) }
func (a *atomicSnapshot) load() *Snapshot   { return a.p.Load() }
