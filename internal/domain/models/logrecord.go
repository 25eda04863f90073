// internal/domain/models/logrecord.go
package models

import (
	"cmp"
	"strings"
	"time"
)

// Identity names the caller a record belongs to. An empty string means the
// field is absent.
type Identity struct {
	User    string
	Session string
}

// IsZero reports whether neither user nor session is set.
func (id Identity) IsZero() bool {
	return id.User == "" && id.Session == ""
}

// LogRecord is a single log entry. Treat it as immutable once created.
type LogRecord struct {
	Timestamp int64 // milliseconds since epoch
	Level     Level
	Message   string
	Identity  Identity
}

// NewLogRecord stamps a record with the current time.
func NewLogRecord(level Level, message string, id Identity) LogRecord {
	return LogRecord{
		Timestamp: time.Now().UnixMilli(),
		Level:     level,
		Message:   message,
		Identity:  id,
	}
}

// Equal reports whether a and b are the same record for storage purposes.
func (r LogRecord) Equal(other LogRecord) bool {
	return CompareRecords(r, other) == 0
}

// CompareRecords is the total order over log records: timestamp, level
// value, user, session, message. Absent identity fields sort before
// present ones.
func CompareRecords(a, b LogRecord) int {
	if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Level.Value, b.Level.Value); c != 0 {
		return c
	}
	if c := compareOptional(a.Identity.User, b.Identity.User); c != 0 {
		return c
	}
	if c := compareOptional(a.Identity.Session, b.Identity.Session); c != 0 {
		return c
	}
	return strings.Compare(a.Message, b.Message)
}

// RecordLess adapts CompareRecords for sort and btree APIs.
func RecordLess(a, b LogRecord) bool {
	return CompareRecords(a, b) < 0
}

func compareOptional(a, b string) int {
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	}
	return strings.Compare(a, b)
}
