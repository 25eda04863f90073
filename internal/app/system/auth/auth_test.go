package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const testKey = "this-is-a-32-character-long-key!"

func newTestManager(t *testing.T) *SessionManager {
	t.Helper()
	sm, err := NewSessionManager(testKey, "", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager() error = %v", err)
	}
	return sm
}

// carryCookies copies Set-Cookie headers from a response onto a new request.
func carryCookies(rec *httptest.ResponseRecorder, req *http.Request) {
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
}

func TestNewSessionManager(t *testing.T) {
	tests := []struct {
		name       string
		sessionKey string
		secure     bool
		wantErr    bool
	}{
		{"valid key dev mode", testKey, false, false},
		{"valid key prod mode", testKey, true, false},
		{"empty key", "", false, true},
		{"weak key dev mode", "short", false, false}, // Warning but allowed in dev
		{"weak key prod mode", "short", true, true},
		{"default key prod mode", "dev-only-session-key-not-for-production", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm, err := NewSessionManager(tt.sessionKey, "test-session", "", time.Hour, tt.secure, zap.NewNop())
			if tt.wantErr {
				if err == nil {
					t.Error("NewSessionManager() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("NewSessionManager() error = %v", err)
			}
			if sm == nil {
				t.Error("NewSessionManager() returned nil")
			}
		})
	}
}

func TestSessionManager_SessionName(t *testing.T) {
	sm := newTestManager(t)
	if sm.SessionName() != "stratalog-session" {
		t.Errorf("SessionName() = %q, want %q", sm.SessionName(), "stratalog-session")
	}

	sm2, _ := NewSessionManager(testKey, "custom-session", "", time.Hour, false, zap.NewNop())
	if sm2.SessionName() != "custom-session" {
		t.Errorf("SessionName() = %q, want %q", sm2.SessionName(), "custom-session")
	}
}

func TestCurrentUser(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if user, ok := CurrentUser(req); ok || user != nil {
		t.Error("CurrentUser() should report no user for a bare request")
	}

	testUser := &SessionUser{
		ID:      primitive.NewObjectID().Hex(),
		Name:    "Test User",
		LoginID: "test@example.com",
		Role:    "admin",
	}
	user, ok := CurrentUser(WithTestUser(req, testUser))
	if !ok || user == nil {
		t.Fatal("CurrentUser() should find the injected user")
	}
	if user.ID != testUser.ID || user.LoginID != testUser.LoginID {
		t.Errorf("CurrentUser() = %+v, want %+v", user, testUser)
	}
}

func TestSessionUser_UserID(t *testing.T) {
	oid := primitive.NewObjectID()
	if got := (&SessionUser{ID: oid.Hex()}).UserID(); got != oid {
		t.Errorf("UserID() = %v, want %v", got, oid)
	}
	if !(&SessionUser{ID: "invalid"}).UserID().IsZero() {
		t.Error("UserID() should return zero ObjectID for invalid ID")
	}
	if !(&SessionUser{}).UserID().IsZero() {
		t.Error("UserID() should return zero ObjectID for empty ID")
	}
}

func TestRequireSignedIn(t *testing.T) {
	sm := newTestManager(t)
	called := false
	handler := sm.RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/me", nil))
	if called || rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: called=%v status=%d, want 401", called, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	rec = httptest.NewRecorder()
	req := WithTestUser(httptest.NewRequest("GET", "/me", nil), &SessionUser{ID: "u1", Role: "user"})
	handler.ServeHTTP(rec, req)
	if !called {
		t.Error("handler should run for a signed-in user")
	}
}

func TestRequireRole(t *testing.T) {
	sm := newTestManager(t)

	tests := []struct {
		name       string
		user       *SessionUser
		wantStatus int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"wrong role", &SessionUser{ID: "u", Role: "user"}, http.StatusForbidden},
		{"allowed role", &SessionUser{ID: "u", Role: "admin"}, http.StatusOK},
		{"role case folded", &SessionUser{ID: "u", Role: " Admin "}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := sm.RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest("DELETE", "/admin/logs/scopes/users/x", nil)
			if tt.user != nil {
				req = WithTestUser(req, tt.user)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireAuth_Alias(t *testing.T) {
	sm := newTestManager(t)
	rec := httptest.NewRecorder()
	sm.RequireAuth(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("RequireAuth() status = %d, want 401", rec.Code)
	}
}

func TestSessionID_StableAcrossRequests(t *testing.T) {
	sm := newTestManager(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	first := sm.SessionID(rec, req)
	if first == "" {
		t.Fatal("SessionID() should mint an id")
	}
	if again := sm.SessionID(rec, req); again != first {
		t.Errorf("second call in same request = %q, want %q", again, first)
	}

	next := httptest.NewRequest("GET", "/", nil)
	carryCookies(rec, next)
	if got := sm.PeekSessionID(next); got != first {
		t.Errorf("PeekSessionID() on follow-up request = %q, want %q", got, first)
	}
	if got := sm.SessionID(httptest.NewRecorder(), next); got != first {
		t.Errorf("SessionID() on follow-up request = %q, want %q", got, first)
	}
}

func TestSessionID_NilWriterDoesNotMint(t *testing.T) {
	sm := newTestManager(t)
	if got := sm.SessionID(nil, httptest.NewRequest("GET", "/", nil)); got != "" {
		t.Errorf("SessionID(nil) = %q, want empty", got)
	}
}

func TestCreateSession_KeepsSessionID(t *testing.T) {
	sm := newTestManager(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	anon := sm.SessionID(rec, req)

	login := httptest.NewRequest("POST", "/login", nil)
	carryCookies(rec, login)
	rec2 := httptest.NewRecorder()
	oid := primitive.NewObjectID()
	if err := sm.CreateSession(rec2, login, oid, "alice", "admin", ""); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	after := httptest.NewRequest("GET", "/", nil)
	carryCookies(rec2, after)
	if got := sm.PeekSessionID(after); got != anon {
		t.Errorf("session id after sign-in = %q, want %q", got, anon)
	}
	if sm.GetSessionToken(after) == "" {
		t.Error("CreateSession() should store a session token")
	}

	var seen *SessionUser
	sm.LoadSessionUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CurrentUser(r)
	})).ServeHTTP(httptest.NewRecorder(), after)
	if seen == nil || seen.LoginID != "alice" || seen.ID != oid.Hex() {
		t.Errorf("LoadSessionUser() user = %+v", seen)
	}
}

func TestDestroySession_ExpiresCookie(t *testing.T) {
	sm := newTestManager(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	_ = sm.CreateSession(rec, req, primitive.NewObjectID(), "alice", "user", "tok")

	out := httptest.NewRequest("POST", "/logout", nil)
	carryCookies(rec, out)
	rec2 := httptest.NewRecorder()
	sm.DestroySession(rec2, out)

	cookies := rec2.Result().Cookies()
	if len(cookies) == 0 || cookies[0].MaxAge >= 0 {
		t.Errorf("DestroySession() cookies = %+v, want an expired cookie", cookies)
	}
}

func TestIsDefaultKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"dev-only-key", true},
		{"change-me-please", true},
		{"placeholder-key", true},
		{"default-session-key", true},
		{"example-key-here", true},
		{"insecure-dev-key", true},
		{"test-key-123", true},
		{"secret123", true},
		{"password123", true},
		{"xK8nP2mQ9rT5vW7yB3cF6hJ0lN4sU1wZ", false},
		{"secure-random-key-that-is-long-enough", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := isDefaultKey(tt.key); got != tt.want {
				t.Errorf("isDefaultKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestClassifySessionError_Types(t *testing.T) {
	if errType, _ := classifySessionError(nil); errType != sessionErrUnknown {
		t.Errorf("classifySessionError(nil) type = %v, want %v", errType, sessionErrUnknown)
	}

	tests := []struct {
		name     string
		errMsg   string
		wantType sessionErrorType
	}{
		{"expired", "expired timestamp", sessionErrExpired},
		{"mac invalid", "mac validation failed", sessionErrTampered},
		{"hash invalid", "hash mismatch", sessionErrTampered},
		{"decrypt failed", "decrypt error", sessionErrCorrupted},
		{"base64 error", "base64 decode failed", sessionErrCorrupted},
		{"decode error", "decode failed", sessionErrCorrupted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mockSecureCookieError{msg: tt.errMsg, isDecode: true}
			if errType, _ := classifySessionError(err); errType != tt.wantType {
				t.Errorf("classifySessionError() type = %v, want %v", errType, tt.wantType)
			}
		})
	}
}

func TestClassifySessionError_Backend(t *testing.T) {
	err := mockSecureCookieError{msg: "backend error", isDecode: false}
	errType, category := classifySessionError(err)
	if errType != sessionErrBackend || category != "backend" {
		t.Errorf("classifySessionError() = %v, %q; want backend", errType, category)
	}
}

// mockSecureCookieError implements securecookie.Error for testing
type mockSecureCookieError struct {
	msg      string
	isDecode bool
}

func (e mockSecureCookieError) Error() string    { return e.msg }
func (e mockSecureCookieError) IsDecode() bool   { return e.isDecode }
func (e mockSecureCookieError) IsUsage() bool    { return false }
func (e mockSecureCookieError) IsInternal() bool { return false }
func (e mockSecureCookieError) Cause() error     { return nil }

func TestGetString(t *testing.T) {
	sm := newTestManager(t)
	sess, _ := sm.GetSession(httptest.NewRequest("GET", "/", nil))

	if got := getString(sess, "nonexistent"); got != "" {
		t.Errorf("getString() nonexistent = %q, want empty", got)
	}
	sess.Values["test_key"] = "test_value"
	if got := getString(sess, "test_key"); got != "test_value" {
		t.Errorf("getString() = %q, want %q", got, "test_value")
	}
	sess.Values["int_key"] = 123
	if got := getString(sess, "int_key"); got != "" {
		t.Errorf("getString() int = %q, want empty", got)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name       string
		validKey   string
		header     string
		wantStatus int
	}{
		{"valid key", "k3y", "Bearer k3y", http.StatusOK},
		{"scheme case folded", "k3y", "bearer k3y", http.StatusOK},
		{"wrong key", "k3y", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "k3y", "", http.StatusUnauthorized},
		{"wrong scheme", "k3y", "Basic k3y", http.StatusUnauthorized},
		{"unconfigured", "", "Bearer anything", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := APIKeyAuth(tt.validKey, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest("POST", "/api/logs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
