package livelog

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dalemusser/stratalog/internal/app/system/logwire"
)

var errSendFailed = errors.New("send failed")

// fakeConn records every payload it is sent.
type fakeConn struct {
	id string

	mu       sync.Mutex
	payloads [][]byte
	fail     bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errSendFailed
	}
	c.payloads = append(c.payloads, append([]byte(nil), p...))
	return nil
}

func (c *fakeConn) sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.payloads))
	copy(out, c.payloads)
	return out
}

// batches decodes every payload; single records become one-element batches.
func (c *fakeConn) batches(t *testing.T) [][]logwire.Record {
	t.Helper()
	var out [][]logwire.Record
	for _, p := range c.sent() {
		if bytes.HasPrefix(p, []byte("[")) {
			var recs []logwire.Record
			if err := json.Unmarshal(p, &recs); err != nil {
				t.Fatalf("unmarshal batch %s: %v", p, err)
			}
			out = append(out, recs)
			continue
		}
		var rec logwire.Record
		if err := json.Unmarshal(p, &rec); err != nil {
			t.Fatalf("unmarshal record %s: %v", p, err)
		}
		out = append(out, []logwire.Record{rec})
	}
	return out
}

// messages flattens every received record to its message.
func (c *fakeConn) messages(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, b := range c.batches(t) {
		for _, rec := range b {
			out = append(out, rec.Message)
		}
	}
	return out
}
