package scf

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the subset of a live transport connection the dial loop needs.
// Abstracted behind an interface (rather than a concrete *websocket.Conn)
// so the dial loop can be exercised against a fake in tests without opening
// real sockets.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer opens a Conn to url with the given headers.
type Dialer interface {
	Dial(url string, header http.Header) (Conn, error)
}

// ErrAuthExpired is the sentinel a Dialer/Conn surfaces when the remote end
// closed the connection for an auth-related reason (spec §4.1 "on
// auth-related close codes or server-signaled expiry").
var ErrAuthExpired = errors.New("scf: auth expired")

// gorillaDialer is the production Dialer, wrapping
// github.com/gorilla/websocket exactly as the reference fleet's per-exchange
// connectors do (yohannesjx-sniperterminal/main.go dials each exchange feed
// with websocket.DefaultDialer.Dial in a retry loop; SCF generalizes that
// per-exchange loop into one reusable transport).
type gorillaDialer struct {
	underlying *websocket.Dialer
}

// NewGorillaDialer returns the default production Dialer.
func NewGorillaDialer() Dialer {
	return &gorillaDialer{underlying: websocket.DefaultDialer}
}

func (g *gorillaDialer) Dial(url string, header http.Header) (Conn, error) {
	conn, _, err := g.underlying.Dial(url, header)
	if err != nil {
		return nil, err
	}
	return &gorillaConn{conn: conn}, nil
}

type gorillaConn struct {
	conn *websocket.Conn
}

func (g *gorillaConn) ReadMessage() (int, []byte, error) { return g.conn.ReadMessage() }
func (g *gorillaConn) WriteMessage(t int, data []byte) error {
	return g.conn.WriteMessage(t, data)
}
func (g *gorillaConn) WriteControl(t int, data []byte, deadline time.Time) error {
	return g.conn.WriteControl(t, data, deadline)
}
func (g *gorillaConn) SetReadDeadline(t time.Time) error { return g.conn.SetReadDeadline(t) }
func (g *gorillaConn) SetReadLimit(limit int64)          { g.conn.SetReadLimit(limit) }
func (g *gorillaConn) SetPongHandler(h func(string) error) { g.conn.SetPongHandler(h) }
func (g *gorillaConn) Close() error                        { return g.conn.Close() }
