package wsconn

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// echoServer upgrades every request and echoes text messages through Send.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	up := NewUpgrader(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := New(ws, Options{}, zap.NewNop())
		defer c.Close()
		for {
			msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			if err := c.Send(msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestConn_Echo(t *testing.T) {
	srv := echoServer(t)
	ws := dial(t, srv)

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"message":"hi"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != `{"message":"hi"}` {
		t.Errorf("echo = %s", got)
	}
}

func TestConn_SendAfterClose(t *testing.T) {
	c := &Conn{send: make(chan []byte, 1), done: make(chan struct{})}
	c.Close()
	c.Close()
	if err := c.Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestConn_SendBufferFull(t *testing.T) {
	c := &Conn{send: make(chan []byte, 1), done: make(chan struct{})}
	if err := c.Send([]byte("a")); err != nil {
		t.Fatalf("first Send = %v", err)
	}
	if err := c.Send([]byte("b")); !errors.Is(err, ErrSendBufferFull) {
		t.Errorf("second Send = %v, want ErrSendBufferFull", err)
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	o := Options{PongWait: 10 * time.Second, PingPeriod: 20 * time.Second}.withDefaults()
	if o.PingPeriod >= o.PongWait {
		t.Errorf("PingPeriod %v should be below PongWait %v", o.PingPeriod, o.PongWait)
	}
	if o.SendBuffer != DefaultOptions().SendBuffer {
		t.Errorf("SendBuffer = %d", o.SendBuffer)
	}
}

func TestNewUpgrader_CheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"listed origin", []string{"https://logs.example.com"}, "https://logs.example.com", true},
		{"case insensitive", []string{"https://Logs.Example.com"}, "https://logs.example.com", true},
		{"unlisted origin", []string{"https://logs.example.com"}, "https://evil.example", false},
		{"wildcard", []string{"*"}, "https://anything", true},
		{"no origin header", []string{"https://logs.example.com"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewUpgrader(tt.allowed)
			r := httptest.NewRequest(http.MethodGet, "/ws/logs", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := u.CheckOrigin(r); got != tt.want {
				t.Errorf("CheckOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUpgrader_DefaultSameOrigin(t *testing.T) {
	if u := NewUpgrader(nil); u.CheckOrigin != nil {
		t.Error("empty allow list should keep gorilla's same-origin check")
	}
}
