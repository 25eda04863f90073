// internal/app/system/livelog/scope.go
package livelog

import (
	"sync"
	"time"

	"github.com/dalemusser/stratalog/internal/app/system/logwire"
	"github.com/dalemusser/stratalog/internal/domain/models"
	"go.uber.org/zap"
)

// Kind classifies a scope by the identity component it is keyed on.
type Kind string

const (
	KindGlobal  Kind = "global"
	KindUser    Kind = "user"
	KindSession Kind = "session"
)

// Scope owns a set of live connections and the ordered history of records
// logged to it.
type Scope struct {
	kind   Kind
	key    string
	logger *zap.Logger

	mu        sync.RWMutex
	conns     map[string]Conn
	hist      *history
	idleSince time.Time // zero while connections are attached
}

// NewScope creates an empty scope. limit bounds the history (0 = unbounded).
func NewScope(kind Kind, key string, limit int, logger *zap.Logger) *Scope {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scope{
		kind:      kind,
		key:       key,
		logger:    logger,
		conns:     make(map[string]Conn),
		hist:      newHistory(limit),
		idleSince: time.Now(),
	}
}

// Kind returns what the scope is keyed on.
func (s *Scope) Kind() Kind { return s.kind }

// Key returns the user or session the scope is keyed on; empty for global.
func (s *Scope) Key() string { return s.key }

// Attach adds conn and reports whether it was newly added.
func (s *Scope) Attach(conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[conn.ID()]; ok {
		return false
	}
	s.conns[conn.ID()] = conn
	s.idleSince = time.Time{}
	return true
}

// Detach removes conn and reports whether it was attached.
func (s *Scope) Detach(conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[conn.ID()]; !ok {
		return false
	}
	delete(s.conns, conn.ID())
	if len(s.conns) == 0 {
		s.idleSince = time.Now()
	}
	return true
}

// IsEmpty reports whether no connections are attached.
func (s *Scope) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns) == 0
}

// Len returns the number of stored records.
func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hist.len()
}

// Connections returns a snapshot of the attached connections.
func (s *Scope) Connections() []Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(nil)
}

// History returns the stored records in order.
func (s *Scope) History() []models.LogRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hist.items()
}

// Has reports whether rec is stored.
func (s *Scope) Has(rec models.LogRecord) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hist.has(rec)
}

// IdleSince returns when the scope last became empty. ok is false while
// connections are attached.
func (s *Scope) IdleSince() (since time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.conns) > 0 {
		return time.Time{}, false
	}
	return s.idleSince, true
}

// Record stores rec and, if it was new, sends it to every attached
// connection except exclude. It returns false for a duplicate, in which
// case nothing is sent.
func (s *Scope) Record(rec models.LogRecord, exclude Conn) bool {
	s.mu.Lock()
	inserted := s.hist.insert(rec)
	var targets []Conn
	if inserted {
		targets = s.snapshotLocked(exclude)
	}
	s.mu.Unlock()

	if !inserted {
		recordsTotal.WithLabelValues(string(s.kind), "duplicate").Inc()
		return false
	}
	recordsTotal.WithLabelValues(string(s.kind), "stored").Inc()

	if len(targets) == 0 {
		return true
	}
	payload, err := logwire.Encode(rec)
	if err != nil {
		s.logger.Error("failed to encode log record",
			zap.String("scope", s.String()),
			zap.Error(err))
		return true
	}
	for _, c := range targets {
		s.send(c, payload, "fanout")
	}
	return true
}

// Replay sends the scope history to conn as one ordered array. When other
// is a different scope its history is merged in, without duplicates.
// Nothing is sent if the result is empty.
func (s *Scope) Replay(conn Conn, other *Scope) {
	recs := s.History()
	if other != nil && other != s {
		recs = union(recs, other.History())
	}
	if len(recs) == 0 {
		return
	}

	payload, err := logwire.EncodeBatch(recs)
	if err != nil {
		s.logger.Error("failed to encode replay",
			zap.String("scope", s.String()),
			zap.Error(err))
		return
	}
	replaysTotal.Inc()
	replaySize.Observe(float64(len(recs)))
	s.send(conn, payload, "replay")
}

// Merge absorbs the history and connections of other and reports whether
// anything changed. other is left untouched.
func (s *Scope) Merge(other *Scope) bool {
	if other == nil || other == s {
		return false
	}
	recs := other.History()
	conns := other.Connections()

	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for _, rec := range recs {
		if s.hist.insert(rec) {
			changed = true
		}
	}
	for _, c := range conns {
		if _, ok := s.conns[c.ID()]; !ok {
			s.conns[c.ID()] = c
			changed = true
		}
	}
	if len(s.conns) > 0 {
		s.idleSince = time.Time{}
	}
	return changed
}

func (s *Scope) String() string {
	if s.kind == KindGlobal {
		return string(KindGlobal)
	}
	return string(s.kind) + ":" + s.key
}

func (s *Scope) snapshotLocked(exclude Conn) []Conn {
	out := make([]Conn, 0, len(s.conns))
	for id, c := range s.conns {
		if exclude != nil && id == exclude.ID() {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *Scope) send(c Conn, payload []byte, op string) {
	if err := c.Send(payload); err != nil {
		sendFailures.WithLabelValues(op).Inc()
		s.logger.Warn("failed to send to live connection",
			zap.String("scope", s.String()),
			zap.String("conn", c.ID()),
			zap.String("op", op),
			zap.Error(err))
	}
}
