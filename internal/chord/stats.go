package chord

import (
	"sync/atomic"
)

// Stats counts node activity. Counters are updated by the node loop and may
// be read from any goroutine.
type Stats struct {
	received map[string]*atomic.Int64 // fixed at construction, read-only afterwards

	unknown        atomic.Int64
	dropped        atomic.Int64
	forwarded      atomic.Int64
	sent           atomic.Int64
	sendFailures   atomic.Int64
	handlerErrors  atomic.Int64
	handlerPanics  atomic.Int64
	ticks          atomic.Int64
	stabilizations atomic.Int64
	handoffs       atomic.Int64
	conflicts      atomic.Int64
}

func newStats() *Stats {
	s := &Stats{received: make(map[string]*atomic.Int64, len(Methods))}
	for _, m := range Methods {
		s.received[m] = new(atomic.Int64)
	}
	return s
}

func (s *Stats) countReceived(method string) {
	if c, ok := s.received[method]; ok {
		c.Add(1)
		return
	}
	s.unknown.Add(1)
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Received       map[string]int64 `json:"received"`
	Unknown        int64            `json:"unknown"`
	Dropped        int64            `json:"dropped"`
	Forwarded      int64            `json:"forwarded"`
	Sent           int64            `json:"sent"`
	SendFailures   int64            `json:"send_failures"`
	HandlerErrors  int64            `json:"handler_errors"`
	HandlerPanics  int64            `json:"handler_panics"`
	Ticks          int64            `json:"ticks"`
	Stabilizations int64            `json:"stabilizations"`
	Handoffs       int64            `json:"handoffs"`
	Conflicts      int64            `json:"handoff_conflicts"`
	StoredKeys     int              `json:"stored_keys"`
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	received := make(map[string]int64, len(s.received))
	for m, c := range s.received {
		received[m] = c.Load()
	}
	return StatsSnapshot{
		Received:       received,
		Unknown:        s.unknown.Load(),
		Dropped:        s.dropped.Load(),
		Forwarded:      s.forwarded.Load(),
		Sent:           s.sent.Load(),
		SendFailures:   s.sendFailures.Load(),
		HandlerErrors:  s.handlerErrors.Load(),
		HandlerPanics:  s.handlerPanics.Load(),
		Ticks:          s.ticks.Load(),
		Stabilizations: s.stabilizations.Load(),
		Handoffs:       s.handoffs.Load(),
		Conflicts:      s.conflicts.Load(),
	}
}
