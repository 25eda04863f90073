// internal/app/system/livelog/conn.go
package livelog

// Conn is a live push connection as seen by the router.
//
// Send must not block for long: implementations queue the payload and
// report failure instead of waiting on a slow peer. ID must be stable and
// unique among live connections.
type Conn interface {
	ID() string
	Send(payload []byte) error
}
