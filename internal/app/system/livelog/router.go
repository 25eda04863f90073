// Package livelog routes log records to live connections by caller
// identity and replays stored history to connections as they attach.
//
// A Router keeps one Scope per user, one per anonymous session, and a
// global Scope that every connection also joins. Records are stored in
// RecordOrdering order with set semantics, so a record logged twice is
// stored and sent once.
package livelog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/stratalog/internal/app/system/identity"
	"github.com/dalemusser/stratalog/internal/domain/models"
	"go.uber.org/zap"
)

// Options configures a Router.
type Options struct {
	// HistoryLimit bounds each scope's history. 0 means unbounded.
	HistoryLimit int
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	UserScopes    int `json:"user_scopes"`
	SessionScopes int `json:"session_scopes"`
	Connections   int `json:"connections"`
	GlobalRecords int `json:"global_records"`
	HistoryLimit  int `json:"history_limit"`
}

// Router owns the scope registry and the global scope.
type Router struct {
	logger *zap.Logger
	opts   Options

	mu       sync.Mutex
	users    map[string]*Scope
	sessions map[string]*Scope
	homes    map[string]*Scope // conn ID -> non-global scope it is attached to
	promoted map[string]string // session -> user it signed in as
	global   *Scope
}

// NewRouter creates a router with an empty global scope. Its own log
// output goes to logger under the name LoggerName.
func NewRouter(logger *zap.Logger, opts Options) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named(LoggerName)
	return &Router{
		logger:   logger,
		opts:     opts,
		users:    make(map[string]*Scope),
		sessions: make(map[string]*Scope),
		homes:    make(map[string]*Scope),
		promoted: make(map[string]string),
		global:   NewScope(KindGlobal, "", opts.HistoryLimit, logger),
	}
}

// Global returns the global scope.
func (r *Router) Global() *Scope { return r.global }

// Connect attaches conn to the scope for (user, session), creating it if
// needed, and to the global scope, then replays the merged history.
//
// The scope is resolved and attached under the registry lock so a
// concurrent sweep or promotion cannot drop it in between.
func (r *Router) Connect(conn Conn, user, session string) {
	r.mu.Lock()
	scope := r.resolveLocked(user, session, true)
	scope.Attach(conn)
	if scope != r.global {
		r.global.Attach(conn)
		r.homes[conn.ID()] = scope
	}
	r.mu.Unlock()
	r.updateConnections()
	scope.Replay(conn, r.global)
}

// Rebind moves an already connected conn to the scope for (user, session),
// used when identity arrives after the connection opened. The global
// history was already replayed on Connect, so only the new scope's
// history is sent.
func (r *Router) Rebind(conn Conn, user, session string) {
	r.mu.Lock()
	scope := r.resolveLocked(user, session, true)
	old := r.homes[conn.ID()]
	if old != nil && old != scope {
		old.Detach(conn)
	}
	r.global.Attach(conn)
	if scope == r.global {
		delete(r.homes, conn.ID())
		r.mu.Unlock()
		return
	}
	r.homes[conn.ID()] = scope
	scope.Attach(conn)
	r.mu.Unlock()

	scope.Replay(conn, nil)
}

// Disconnect detaches conn from the scope for (user, session) and from the
// global scope. A missing scope is not created. A connection that was
// moved by Promote is also detached from the scope it was moved to.
func (r *Router) Disconnect(conn Conn, user, session string) {
	r.mu.Lock()
	scope := r.resolveLocked(user, session, false)
	if scope != nil && scope != r.global {
		scope.Detach(conn)
	}
	if home := r.homes[conn.ID()]; home != nil && home != scope {
		home.Detach(conn)
	}
	delete(r.homes, conn.ID())
	r.global.Detach(conn)
	r.mu.Unlock()
	r.updateConnections()
}

// Log stores rec in the scope named by its identity and fans it out to
// that scope's connections except exclude. A record naming a user or
// session with no scope goes to the global scope, followed by a WARNING
// record saying so. It reports whether rec was newly stored.
func (r *Router) Log(rec models.LogRecord, exclude Conn) bool {
	if rec.Identity.IsZero() {
		return r.global.Record(rec, exclude)
	}

	if scope := r.resolve(rec.Identity.User, rec.Identity.Session, false); scope != nil {
		return scope.Record(rec, exclude)
	}

	unresolvedTotal.Inc()
	stored := r.global.Record(rec, exclude)
	r.global.Record(models.NewLogRecord(models.LevelWarning,
		fmt.Sprintf("no log scope found for user=%s/session=%s",
			orNone(rec.Identity.User), orNone(rec.Identity.Session)),
		models.Identity{}), nil)
	return stored
}

// LogContext logs a record stamped with the identity bound to ctx.
func (r *Router) LogContext(ctx context.Context, level models.Level, message string) bool {
	return r.Log(models.NewLogRecord(level, message, identity.FromContext(ctx)), nil)
}

// LogAll stores rec in every registered scope, global included, and fans
// it out from each. Deduplication is per scope, so a connection attached
// to both its own scope and global receives rec from each.
func (r *Router) LogAll(rec models.LogRecord) {
	for _, scope := range r.scopes() {
		scope.Record(rec, nil)
	}
}

// ClearUser removes the user's scope and reports whether one existed.
// Its connections stay attached to the global scope.
func (r *Router) ClearUser(user string) bool {
	return r.clear(r.users, KindUser, user)
}

// ClearSession removes the session's scope, and any promotion of the
// session to a user, and reports whether either existed.
func (r *Router) ClearSession(session string) bool {
	return r.clear(r.sessions, KindSession, session)
}

// Promote folds the anonymous session scope into the user's scope once the
// session signs in as user. History and connections of the session scope
// move to the user scope and the session entry is dropped. From then on
// the session resolves to the user scope, so connections opened before
// sign-in keep routing privately. It reports whether anything moved.
func (r *Router) Promote(user, session string) bool {
	if user == "" || session == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.promoted[session] = user
	to := r.lookupOrCreateLocked(r.users, KindUser, user)
	from, ok := r.sessions[session]
	if ok {
		delete(r.sessions, session)
	}
	r.updateScopeGaugesLocked()
	if !ok {
		return false
	}

	changed := to.Merge(from)
	for _, c := range from.Connections() {
		r.homes[c.ID()] = to
	}
	if changed {
		r.logger.Debug("promoted session scope",
			zap.String("user", user),
			zap.String("session", session))
	}
	return changed
}

// SweepIdle removes user and session scopes that have had no connections
// for longer than ttl and returns how many were removed. The global scope
// is never removed. ttl <= 0 disables the sweep.
func (r *Router) SweepIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for _, m := range []map[string]*Scope{r.users, r.sessions} {
		for key, scope := range m {
			if since, idle := scope.IdleSince(); idle && since.Before(cutoff) {
				delete(m, key)
				if scope.Kind() == KindUser {
					r.forgetPromotionsLocked(key)
				}
				removed++
			}
		}
	}
	if removed > 0 {
		r.updateScopeGaugesLocked()
	}
	return removed
}

// Stats returns registry counts.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	st := Stats{
		UserScopes:    len(r.users),
		SessionScopes: len(r.sessions),
		HistoryLimit:  r.opts.HistoryLimit,
	}
	r.mu.Unlock()
	st.Connections = len(r.global.Connections())
	st.GlobalRecords = r.global.Len()
	return st
}

// Scope returns the registered scope for (user, session) without creating
// it. The global scope is returned when both are empty.
func (r *Router) Scope(user, session string) (*Scope, bool) {
	s := r.resolve(user, session, false)
	return s, s != nil
}

// resolve picks the scope by priority: user, then session, then global.
// With create false a missing user or session scope yields nil.
func (r *Router) resolve(user, session string, create bool) *Scope {
	if user == "" && session == "" {
		return r.global
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(user, session, create)
}

// resolveLocked is resolve with r.mu held. A session that was promoted
// resolves to the user it signed in as.
func (r *Router) resolveLocked(user, session string, create bool) *Scope {
	if user == "" && session != "" {
		user = r.promoted[session]
	}
	if user == "" && session == "" {
		return r.global
	}

	m, kind, key := r.sessions, KindSession, session
	if user != "" {
		m, kind, key = r.users, KindUser, user
	}
	if !create {
		return m[key]
	}
	s := r.lookupOrCreateLocked(m, kind, key)
	r.updateScopeGaugesLocked()
	return s
}

func (r *Router) lookupOrCreateLocked(m map[string]*Scope, kind Kind, key string) *Scope {
	if s, ok := m[key]; ok {
		return s
	}
	s := NewScope(kind, key, r.opts.HistoryLimit, r.logger)
	m[key] = s
	return s
}

func (r *Router) clear(m map[string]*Scope, kind Kind, key string) bool {
	if key == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := m[key]
	delete(m, key)
	switch kind {
	case KindUser:
		r.forgetPromotionsLocked(key)
	case KindSession:
		if _, promoted := r.promoted[key]; promoted {
			delete(r.promoted, key)
			ok = true
		}
	}
	if !ok {
		return false
	}
	r.updateScopeGaugesLocked()
	r.logger.Debug("cleared log scope",
		zap.String("kind", string(kind)),
		zap.String("key", key))
	return true
}

// forgetPromotionsLocked drops every session alias pointing at user.
func (r *Router) forgetPromotionsLocked(user string) {
	for session, u := range r.promoted {
		if u == user {
			delete(r.promoted, session)
		}
	}
}

// scopes returns every registered scope followed by the global scope.
func (r *Router) scopes() []*Scope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Scope, 0, len(r.users)+len(r.sessions)+1)
	for _, s := range r.users {
		out = append(out, s)
	}
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return append(out, r.global)
}

func (r *Router) updateScopeGaugesLocked() {
	scopesGauge.WithLabelValues(string(KindUser)).Set(float64(len(r.users)))
	scopesGauge.WithLabelValues(string(KindSession)).Set(float64(len(r.sessions)))
}

func (r *Router) updateConnections() {
	connectionsGauge.Set(float64(len(r.global.Connections())))
}

func orNone(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}
