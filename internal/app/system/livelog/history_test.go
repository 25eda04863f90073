package livelog

import (
	"math/rand"
	"reflect"
	"testing"
	"testing/quick"

	"github.com/dalemusser/stratalog/internal/domain/models"
)

func rec(ts int64, msg string) models.LogRecord {
	return models.LogRecord{Timestamp: ts, Level: models.LevelInfo, Message: msg}
}

func TestHistory_InsertDeduplicates(t *testing.T) {
	h := newHistory(0)
	if !h.insert(rec(1, "a")) {
		t.Fatal("first insert should succeed")
	}
	if h.insert(rec(1, "a")) {
		t.Error("equal record should be rejected")
	}
	if !h.insert(rec(1, "b")) {
		t.Error("distinct record should be inserted")
	}
	if h.len() != 2 {
		t.Errorf("len = %d, want 2", h.len())
	}
}

func TestHistory_ItemsOrdered(t *testing.T) {
	h := newHistory(0)
	h.insert(rec(3, "c"))
	h.insert(rec(1, "a"))
	h.insert(rec(2, "b"))

	items := h.items()
	for i, want := range []string{"a", "b", "c"} {
		if items[i].Message != want {
			t.Errorf("items[%d] = %q, want %q", i, items[i].Message, want)
		}
	}
}

func TestHistory_LimitEvictsOldest(t *testing.T) {
	h := newHistory(2)
	h.insert(rec(1, "a"))
	h.insert(rec(2, "b"))
	h.insert(rec(3, "c"))

	if h.len() != 2 {
		t.Fatalf("len = %d, want 2", h.len())
	}
	if h.has(rec(1, "a")) {
		t.Error("oldest record should have been evicted")
	}
	if !h.has(rec(3, "c")) {
		t.Error("newest record should be kept")
	}
}

type historyPair struct{ A, B []models.LogRecord }

func (historyPair) Generate(r *rand.Rand, _ int) reflect.Value {
	gen := func() []models.LogRecord {
		n := r.Intn(6) // includes empty histories
		out := make([]models.LogRecord, n)
		for i := range out {
			out[i] = rec(int64(r.Intn(4)), string(rune('a'+r.Intn(3))))
		}
		return out
	}
	return reflect.ValueOf(historyPair{A: gen(), B: gen()})
}

func TestUnion_SortedDeduplicatedComplete(t *testing.T) {
	f := func(p historyPair) bool {
		got := union(p.A, p.B)
		for i := 1; i < len(got); i++ {
			if models.CompareRecords(got[i-1], got[i]) >= 0 {
				return false
			}
		}
		contains := func(r models.LogRecord) bool {
			for _, g := range got {
				if g.Equal(r) {
					return true
				}
			}
			return false
		}
		for _, r := range append(append([]models.LogRecord{}, p.A...), p.B...) {
			if !contains(r) {
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 500}); err != nil {
		t.Error(err)
	}
}

func TestHistory_FullRejectsOlderRecord(t *testing.T) {
	h := newHistory(2)
	h.insert(rec(5, "a"))
	h.insert(rec(6, "b"))

	if h.insert(rec(1, "old")) {
		t.Error("record older than a full history should not be stored")
	}
	if h.len() != 2 || !h.has(rec(5, "a")) {
		t.Errorf("history changed: %v", h.items())
	}
}
