package livelog

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"testing/quick"

	"github.com/dalemusser/stratalog/internal/domain/models"
	"go.uber.org/zap"
)

func newTestScope() *Scope {
	return NewScope(KindSession, "s1", 0, zap.NewNop())
}

func TestScope_AttachDetach(t *testing.T) {
	s := newTestScope()
	c := newFakeConn("c1")

	if !s.IsEmpty() {
		t.Fatal("new scope should be empty")
	}
	if !s.Attach(c) {
		t.Error("first Attach should report true")
	}
	if s.Attach(c) {
		t.Error("second Attach should report false")
	}
	if s.IsEmpty() {
		t.Error("scope with a connection should not be empty")
	}
	if !s.Detach(c) {
		t.Error("Detach of attached conn should report true")
	}
	if s.Detach(c) {
		t.Error("Detach of absent conn should report false")
	}
	if !s.IsEmpty() {
		t.Error("scope should be empty again")
	}
}

func TestScope_RecordExcludes(t *testing.T) {
	s := newTestScope()
	c1, c2 := newFakeConn("c1"), newFakeConn("c2")
	s.Attach(c1)
	s.Attach(c2)

	r := rec(1, "hello")
	if !s.Record(r, c1) {
		t.Fatal("Record should store a new record")
	}

	if n := len(c1.sent()); n != 0 {
		t.Errorf("excluded conn received %d payloads", n)
	}
	if got := c2.messages(t); len(got) != 1 || got[0] != "hello" {
		t.Errorf("c2 messages = %v, want [hello]", got)
	}
	if !s.Has(r) {
		t.Error("record should be in history even when excluded conn is skipped")
	}
}

func TestScope_RecordDuplicateNotSent(t *testing.T) {
	s := newTestScope()
	c := newFakeConn("c1")
	s.Attach(c)

	s.Record(rec(1, "a"), nil)
	if s.Record(rec(1, "a"), nil) {
		t.Error("duplicate Record should report false")
	}
	if n := len(c.sent()); n != 1 {
		t.Errorf("payloads = %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestScope_SendFailureIsolated(t *testing.T) {
	s := newTestScope()
	bad, good := newFakeConn("bad"), newFakeConn("good")
	bad.fail = true
	s.Attach(bad)
	s.Attach(good)

	if !s.Record(rec(1, "x"), nil) {
		t.Fatal("Record should succeed despite a failing conn")
	}
	if got := good.messages(t); len(got) != 1 {
		t.Errorf("good conn messages = %v", got)
	}
	if s.Len() != 1 {
		t.Errorf("history Len = %d, want 1", s.Len())
	}
}

func TestScope_ReplayEmptySendsNothing(t *testing.T) {
	s := newTestScope()
	other := NewScope(KindGlobal, "", 0, nil)
	c := newFakeConn("c1")

	s.Replay(c, other)
	s.Replay(c, nil)
	if n := len(c.sent()); n != 0 {
		t.Errorf("payloads = %d, want 0", n)
	}
}

func TestScope_ReplayIdempotent(t *testing.T) {
	s := newTestScope()
	other := NewScope(KindGlobal, "", 0, nil)
	s.Record(rec(2, "b"), nil)
	other.Record(rec(1, "a"), nil)
	c := newFakeConn("c1")

	s.Replay(c, other)
	s.Replay(c, other)

	sent := c.sent()
	if len(sent) != 2 {
		t.Fatalf("payloads = %d, want 2", len(sent))
	}
	if !bytes.Equal(sent[0], sent[1]) {
		t.Errorf("replays differ:\n%s\n%s", sent[0], sent[1])
	}
}

func TestScope_ReplaySelfIsPlainHistory(t *testing.T) {
	s := newTestScope()
	s.Record(rec(1, "a"), nil)
	c := newFakeConn("c1")

	s.Replay(c, s)
	if got := c.messages(t); len(got) != 1 || got[0] != "a" {
		t.Errorf("messages = %v, want [a]", got)
	}
}

func TestScope_ReplayMergesSortedUnion(t *testing.T) {
	f := func(p historyPair) bool {
		a := newTestScope()
		b := NewScope(KindGlobal, "", 0, nil)
		for _, r := range p.A {
			a.Record(r, nil)
		}
		for _, r := range p.B {
			b.Record(r, nil)
		}
		c := newFakeConn("c")
		a.Replay(c, b)

		want := union(p.A, p.B)
		batches := c.batches(t)
		if len(want) == 0 {
			return len(batches) == 0
		}
		if len(batches) != 1 || len(batches[0]) != len(want) {
			return false
		}
		for i, got := range batches[0] {
			if got.Message != want[i].Message || got.Timestamp != want[i].Timestamp {
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 300, Rand: rand.New(rand.NewSource(7))}); err != nil {
		t.Error(err)
	}
}

func TestScope_Merge(t *testing.T) {
	a := newTestScope()
	b := NewScope(KindSession, "s2", 0, nil)
	c1, c2 := newFakeConn("c1"), newFakeConn("c2")
	a.Attach(c1)
	b.Attach(c2)
	a.Record(rec(1, "a"), nil)
	b.Record(rec(1, "a"), nil)
	b.Record(rec(2, "b"), nil)

	if !a.Merge(b) {
		t.Fatal("Merge should report a change")
	}
	if a.Len() != 2 {
		t.Errorf("Len = %d, want 2", a.Len())
	}
	if len(a.Connections()) != 2 {
		t.Errorf("connections = %d, want 2", len(a.Connections()))
	}
	if a.Merge(b) {
		t.Error("second Merge should report no change")
	}
	if a.Merge(a) || a.Merge(nil) {
		t.Error("Merge with self or nil should report no change")
	}
}

func TestScope_IdleSince(t *testing.T) {
	s := newTestScope()
	if _, idle := s.IdleSince(); !idle {
		t.Error("new scope should be idle")
	}
	c := newFakeConn("c1")
	s.Attach(c)
	if _, idle := s.IdleSince(); idle {
		t.Error("scope with a connection should not be idle")
	}
	s.Detach(c)
	if since, idle := s.IdleSince(); !idle || since.IsZero() {
		t.Errorf("IdleSince = %v, %v after last detach", since, idle)
	}
}

func TestScope_ConcurrentAttachDetachRecord(t *testing.T) {
	s := newTestScope()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newFakeConn(fmt.Sprintf("c%d", i))
			for j := 0; j < 100; j++ {
				s.Attach(c)
				s.Record(rec(int64(j), fmt.Sprintf("m%d", i)), c)
				s.Detach(c)
			}
		}(i)
	}
	wg.Wait()

	if s.Len() != 800 {
		t.Errorf("Len = %d, want 800", s.Len())
	}
	if !s.IsEmpty() {
		t.Error("all connections should be detached")
	}
}

func TestScope_LimitBoundsHistory(t *testing.T) {
	s := NewScope(KindUser, "u", 3, nil)
	for i := 0; i < 10; i++ {
		s.Record(models.LogRecord{Timestamp: int64(i), Level: models.LevelInfo, Message: "m"}, nil)
	}
	hist := s.History()
	if len(hist) != 3 {
		t.Fatalf("Len = %d, want 3", len(hist))
	}
	if hist[0].Timestamp != 7 {
		t.Errorf("oldest kept = %d, want 7", hist[0].Timestamp)
	}
}

func TestScope_FullHistoryDropsOlderRecordWithoutFanOut(t *testing.T) {
	s := NewScope(KindUser, "u", 2, nil)
	s.Record(rec(5, "a"), nil)
	s.Record(rec(6, "b"), nil)

	c := newFakeConn("c")
	s.Attach(c)
	for i := 0; i < 3; i++ {
		if s.Record(rec(1, "late"), nil) {
			t.Fatal("late record reported as stored")
		}
	}
	if got := c.sent(); len(got) != 0 {
		t.Errorf("late record sent %d times", len(got))
	}
}
