// internal/domain/models/level.go
package models

import (
	"math"
	"strconv"
	"strings"
)

// Level is an ordered log severity. Value drives ordering; Name is what
// goes over the wire.
type Level struct {
	Name  string
	Value int
}

// Known severities. ERROR and WARN exist so browser console levels map
// onto the same scale as server levels.
var (
	LevelOff     = Level{Name: "OFF", Value: math.MaxInt32}
	LevelSevere  = Level{Name: "SEVERE", Value: 1000}
	LevelError   = Level{Name: "ERROR", Value: 950}
	LevelWarning = Level{Name: "WARNING", Value: 900}
	LevelWarn    = Level{Name: "WARN", Value: 850}
	LevelInfo    = Level{Name: "INFO", Value: 800}
	LevelConfig  = Level{Name: "CONFIG", Value: 700}
	LevelFine    = Level{Name: "FINE", Value: 500}
	LevelFiner   = Level{Name: "FINER", Value: 400}
	LevelFinest  = Level{Name: "FINEST", Value: 300}
	LevelAll     = Level{Name: "ALL", Value: math.MinInt32}
)

// DefaultLevel is applied to inbound records that carry no level.
var DefaultLevel = LevelFine

var knownLevels = []Level{
	LevelOff,
	LevelSevere,
	LevelError,
	LevelWarning,
	LevelWarn,
	LevelInfo,
	LevelConfig,
	LevelFine,
	LevelFiner,
	LevelFinest,
	LevelAll,
}

// ParseLevel resolves a level name (case-insensitive) or a decimal integer.
// An integer matching a known level resolves to that level; any other
// integer yields an unnamed level labelled with its decimal value.
func ParseLevel(s string) (Level, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Level{}, false
	}
	upper := strings.ToUpper(s)
	for _, l := range knownLevels {
		if l.Name == upper {
			return l, true
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Level{}, false
	}
	return LevelFromValue(n), true
}

// LevelFromValue maps an integer severity onto a level.
func LevelFromValue(n int) Level {
	for _, l := range knownLevels {
		if l.Value == n {
			return l
		}
	}
	return Level{Name: strconv.Itoa(n), Value: n}
}

func (l Level) String() string {
	return l.Name
}
