package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratalog/internal/app/system/auth"
	"github.com/dalemusser/stratalog/internal/domain/models"
	"go.uber.org/zap"
)

type fixedSessions string

func (s fixedSessions) SessionID(http.ResponseWriter, *http.Request) string { return string(s) }

type captured struct {
	id      models.Identity
	level   models.Level
	message string
}

type recorder struct {
	mu   sync.Mutex
	recs []captured
}

func (r *recorder) LogContext(ctx context.Context, level models.Level, message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, captured{id: FromContext(ctx), level: level, message: message})
	return true
}

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name string
		user *auth.SessionUser
		sess SessionSource
		want models.Identity
	}{
		{"anonymous", nil, fixedSessions("s1"), models.Identity{Session: "s1"}},
		{"signed in by login id", &auth.SessionUser{ID: "oid", LoginID: "alice"}, fixedSessions("s1"),
			models.Identity{User: "alice", Session: "s1"}},
		{"falls back to user id", &auth.SessionUser{ID: "oid"}, nil, models.Identity{User: "oid"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.user != nil {
				r = auth.WithTestUser(r, tt.user)
			}
			if got := FromRequest(httptest.NewRecorder(), r, tt.sess); got != tt.want {
				t.Errorf("FromRequest() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMiddleware_BindsIdentity(t *testing.T) {
	var seen models.Identity
	h := Middleware(fixedSessions("s1"), nil, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	r := auth.WithTestUser(httptest.NewRequest("GET", "/", nil), &auth.SessionUser{ID: "oid", LoginID: "alice"})
	h.ServeHTTP(httptest.NewRecorder(), r)

	if seen != (models.Identity{User: "alice", Session: "s1"}) {
		t.Errorf("identity in handler = %+v", seen)
	}
}

func TestMiddleware_RecordsPanicAndRepanics(t *testing.T) {
	rec := &recorder{}
	h := Middleware(fixedSessions("s9"), rec, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("database exploded")
	}))

	var repanicked any
	func() {
		defer func() { repanicked = recover() }()
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	}()

	if repanicked != "database exploded" {
		t.Errorf("recovered %v, want the original panic value", repanicked)
	}
	if len(rec.recs) != 1 {
		t.Fatalf("recorded %d records, want 1", len(rec.recs))
	}
	got := rec.recs[0]
	if got.level != models.LevelSevere || got.message != "database exploded" || got.id.Session != "s9" {
		t.Errorf("recorded %+v", got)
	}
}

func TestMiddleware_AbortHandlerNotRecorded(t *testing.T) {
	rec := &recorder{}
	h := Middleware(nil, rec, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	func() {
		defer func() { _ = recover() }()
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	}()
	if len(rec.recs) != 0 {
		t.Errorf("ErrAbortHandler should not be recorded, got %+v", rec.recs)
	}
}

func TestPeek_DoesNotMintCookie(t *testing.T) {
	mgr, err := auth.NewSessionManager("this-is-a-32-character-long-key!", "test-session", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager() error = %v", err)
	}

	var seen models.Identity
	h := Middleware(Peek(mgr), nil, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if got := rec.Header().Values("Set-Cookie"); len(got) != 0 {
		t.Errorf("Set-Cookie = %v, want none", got)
	}
	if !seen.IsZero() {
		t.Errorf("identity = %+v, want none", seen)
	}

	mint := httptest.NewRecorder()
	session := mgr.SessionID(mint, httptest.NewRequest("GET", "/", nil))
	req := httptest.NewRequest("GET", "/health", nil)
	for _, c := range mint.Result().Cookies() {
		req.AddCookie(c)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen.Session != session {
		t.Errorf("Session = %q, want existing %q", seen.Session, session)
	}
}
