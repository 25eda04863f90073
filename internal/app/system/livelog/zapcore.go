// internal/app/system/livelog/zapcore.go
package livelog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dalemusser/stratalog/internal/domain/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerName is the name of the router's own logger. Entries from it are
// never forwarded, so a failed send cannot feed back into the router.
const LoggerName = "livelog"

// Identity fields read from zap entries.
const (
	UserField    = "user"
	SessionField = "session"
)

// ZapCore forwards zap entries into a Router as log records. The user and
// session fields pick the scope; other fields are appended to the message
// as key=value pairs.
type ZapCore struct {
	zapcore.LevelEnabler
	router *Router
	fields []zapcore.Field
}

// NewZapCore returns a core that forwards entries at or above enab.
func NewZapCore(router *Router, enab zapcore.LevelEnabler) *ZapCore {
	return &ZapCore{LevelEnabler: enab, router: router}
}

// Tee returns a logger that writes to logger's core and forwards to router.
func Tee(logger *zap.Logger, router *Router, enab zapcore.LevelEnabler) *zap.Logger {
	return logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, NewZapCore(router, enab))
	}))
}

func (c *ZapCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *ZapCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(ent.Level) || strings.HasPrefix(ent.LoggerName, LoggerName) {
		return ce
	}
	return ce.AddCore(ent, c)
}

func (c *ZapCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	var id models.Identity
	if v, ok := enc.Fields[UserField].(string); ok {
		id.User = v
		delete(enc.Fields, UserField)
	}
	if v, ok := enc.Fields[SessionField].(string); ok {
		id.Session = v
		delete(enc.Fields, SessionField)
	}

	c.router.Log(models.LogRecord{
		Timestamp: ent.Time.UnixMilli(),
		Level:     LevelFromZap(ent.Level),
		Message:   formatMessage(ent.Message, enc.Fields),
		Identity:  id,
	}, nil)
	return nil
}

func (c *ZapCore) Sync() error { return nil }

// LevelFromZap maps a zap level onto the record severity scale.
func LevelFromZap(l zapcore.Level) models.Level {
	switch {
	case l >= zapcore.DPanicLevel:
		return models.LevelSevere
	case l == zapcore.ErrorLevel:
		return models.LevelError
	case l == zapcore.WarnLevel:
		return models.LevelWarning
	case l == zapcore.InfoLevel:
		return models.LevelInfo
	default:
		return models.LevelFine
	}
}

func formatMessage(msg string, fields map[string]any) string {
	if len(fields) == 0 {
		return msg
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(msg)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}
