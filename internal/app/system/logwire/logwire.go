// Package logwire converts log records to and from their JSON wire shape.
//
// Outbound records are encoded as
//
//	{"user":"...","session":"...","level":"WARN","message":"...","timestamp":1700000000000}
//
// with user and session omitted when absent. A replay payload is a JSON
// array of such objects in record order.
//
// Inbound payloads are parsed with fastjson so that field presence can be
// told apart from zero values: message is required, level and timestamp
// are optional.
package logwire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dalemusser/stratalog/internal/domain/models"
	"github.com/valyala/fastjson"
)

var (
	// ErrMissingMessage is returned when an inbound record has no string message.
	ErrMissingMessage = errors.New("logwire: message is required")
	// ErrUnknownLevel is returned when a level is present but not recognised.
	ErrUnknownLevel = errors.New("logwire: unrecognised level")
	// ErrNotObject is returned when an inbound record is not a JSON object.
	ErrNotObject = errors.New("logwire: record must be a JSON object")
)

// Record is the wire shape of a log record.
type Record struct {
	User      string `json:"user,omitempty"`
	Session   string `json:"session,omitempty"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// FromModel converts a log record to its wire shape.
func FromModel(rec models.LogRecord) Record {
	return Record{
		User:      rec.Identity.User,
		Session:   rec.Identity.Session,
		Level:     rec.Level.Name,
		Message:   rec.Message,
		Timestamp: rec.Timestamp,
	}
}

// Encode renders one record.
func Encode(rec models.LogRecord) ([]byte, error) {
	return json.Marshal(FromModel(rec))
}

// EncodeBatch renders records, in the order given, as a JSON array.
func EncodeBatch(recs []models.LogRecord) ([]byte, error) {
	out := make([]Record, len(recs))
	for i, rec := range recs {
		out[i] = FromModel(rec)
	}
	return json.Marshal(out)
}

// Decoder parses inbound payloads. The zero value is ready to use and is
// safe for concurrent use.
type Decoder struct {
	// Sanitize, when set, is applied to every decoded message.
	Sanitize func(string) string
	// Now supplies the default timestamp. Defaults to time.Now.
	Now func() time.Time

	parsers fastjson.ParserPool
}

var defaultDecoder Decoder

// Decode parses one record using the package default decoder.
func Decode(data []byte, ctxUser, ctxSession string) (models.LogRecord, error) {
	return defaultDecoder.Decode(data, models.Identity{User: ctxUser, Session: ctxSession})
}

// DecodeBatch parses one record or an array of records using the package
// default decoder.
func DecodeBatch(data []byte, ctxUser, ctxSession string) ([]models.LogRecord, error) {
	return defaultDecoder.DecodeBatch(data, models.Identity{User: ctxUser, Session: ctxSession})
}

// Decode parses a single record object. Identity fields from ctxID take
// precedence over the ones embedded in the payload.
func (d *Decoder) Decode(data []byte, ctxID models.Identity) (models.LogRecord, error) {
	p := d.parsers.Get()
	defer d.parsers.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return models.LogRecord{}, fmt.Errorf("logwire: invalid JSON: %w", err)
	}
	return d.decodeValue(v, ctxID)
}

// DecodeBatch parses either a single record object or an array of them.
// The first invalid element fails the whole batch.
func (d *Decoder) DecodeBatch(data []byte, ctxID models.Identity) ([]models.LogRecord, error) {
	p := d.parsers.Get()
	defer d.parsers.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("logwire: invalid JSON: %w", err)
	}

	if v.Type() != fastjson.TypeArray {
		rec, err := d.decodeValue(v, ctxID)
		if err != nil {
			return nil, err
		}
		return []models.LogRecord{rec}, nil
	}

	items, _ := v.Array()
	out := make([]models.LogRecord, 0, len(items))
	for i, item := range items {
		rec, err := d.decodeValue(item, ctxID)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ParseBinding recognises an identity-binding message: an object carrying
// user and/or session but no message.
func ParseBinding(data []byte) (models.Identity, bool) {
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil || v.Type() != fastjson.TypeObject || v.Exists("message") {
		return models.Identity{}, false
	}
	id := models.Identity{
		User:    firstString(v, "user", "username"),
		Session: firstString(v, "session", "sessionId"),
	}
	if id.IsZero() {
		return models.Identity{}, false
	}
	return id, true
}

func (d *Decoder) decodeValue(v *fastjson.Value, ctxID models.Identity) (models.LogRecord, error) {
	if v.Type() != fastjson.TypeObject {
		return models.LogRecord{}, ErrNotObject
	}

	msgVal := v.Get("message")
	if msgVal == nil || msgVal.Type() != fastjson.TypeString {
		return models.LogRecord{}, ErrMissingMessage
	}
	message := string(msgVal.GetStringBytes())
	if d.Sanitize != nil {
		message = d.Sanitize(message)
	}

	level, err := decodeLevel(v.Get("level"))
	if err != nil {
		return models.LogRecord{}, err
	}

	id := ctxID
	if id.User == "" {
		id.User = firstString(v, "user", "username")
	}
	if id.Session == "" {
		id.Session = firstString(v, "session", "sessionId")
	}

	return models.LogRecord{
		Timestamp: d.timestamp(v.Get("timestamp")),
		Level:     level,
		Message:   message,
		Identity:  id,
	}, nil
}

// decodeLevel accepts a name or integer string, a JSON number, or an
// object carrying name, intValue or localName.
func decodeLevel(v *fastjson.Value) (models.Level, error) {
	if v == nil || v.Type() == fastjson.TypeNull {
		return models.DefaultLevel, nil
	}

	switch v.Type() {
	case fastjson.TypeString:
		if l, ok := models.ParseLevel(string(v.GetStringBytes())); ok {
			return l, nil
		}
	case fastjson.TypeNumber:
		if n, err := v.Int(); err == nil {
			return models.LevelFromValue(n), nil
		}
	case fastjson.TypeObject:
		for _, key := range []string{"name", "intValue", "localName"} {
			inner := v.Get(key)
			if inner == nil || inner.Type() == fastjson.TypeNull {
				continue
			}
			return decodeLevel(inner)
		}
	}
	return models.Level{}, fmt.Errorf("%w: %s", ErrUnknownLevel, v.String())
}

func (d *Decoder) timestamp(v *fastjson.Value) int64 {
	if v != nil {
		switch v.Type() {
		case fastjson.TypeNumber:
			if n, err := v.Int64(); err == nil {
				return n
			}
			if f, err := v.Float64(); err == nil {
				return int64(f)
			}
		case fastjson.TypeString:
			if n, err := strconv.ParseInt(string(v.GetStringBytes()), 10, 64); err == nil {
				return n
			}
		}
	}
	if d.Now != nil {
		return d.Now().UnixMilli()
	}
	return time.Now().UnixMilli()
}

func firstString(v *fastjson.Value, keys ...string) string {
	for _, k := range keys {
		if s := v.GetStringBytes(k); len(s) > 0 {
			return string(s)
		}
	}
	return ""
}
