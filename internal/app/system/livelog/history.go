// internal/app/system/livelog/history.go
package livelog

import (
	"github.com/dalemusser/stratalog/internal/domain/models"
	"github.com/google/btree"
)

const btreeDegree = 32

// history is an ordered set of records with an optional size bound.
// It is not safe for concurrent use; Scope guards it.
type history struct {
	tree  *btree.BTreeG[models.LogRecord]
	limit int // 0 means unbounded
}

func newHistory(limit int) *history {
	if limit < 0 {
		limit = 0
	}
	return &history{
		tree:  btree.NewG(btreeDegree, models.RecordLess),
		limit: limit,
	}
}

// insert adds rec and reports whether it was stored. When the bound is
// exceeded the lowest record is evicted. A record that would be evicted
// at once, because a full history holds only newer records, is not stored.
func (h *history) insert(rec models.LogRecord) bool {
	if h.tree.Has(rec) {
		return false
	}
	if h.limit > 0 && h.tree.Len() >= h.limit {
		if lowest, ok := h.tree.Min(); ok && models.RecordLess(rec, lowest) {
			return false
		}
	}
	h.tree.ReplaceOrInsert(rec)
	if h.limit > 0 {
		for h.tree.Len() > h.limit {
			h.tree.DeleteMin()
		}
	}
	return true
}

func (h *history) has(rec models.LogRecord) bool {
	return h.tree.Has(rec)
}

func (h *history) len() int {
	return h.tree.Len()
}

// items returns the records in ascending order.
func (h *history) items() []models.LogRecord {
	out := make([]models.LogRecord, 0, h.tree.Len())
	h.tree.Ascend(func(rec models.LogRecord) bool {
		out = append(out, rec)
		return true
	})
	return out
}

// union returns the ordered, deduplicated union of a and b.
func union(a, b []models.LogRecord) []models.LogRecord {
	h := newHistory(0)
	for _, rec := range a {
		h.insert(rec)
	}
	for _, rec := range b {
		h.insert(rec)
	}
	return h.items()
}
