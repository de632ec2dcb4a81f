// Package ws provides an auto-reconnecting WebSocket client that keeps one
// logical text stream alive across periodic and reactive reconnects.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type MessageKind int

const (
	KindText MessageKind = iota
	KindBinary
	KindPing
	KindPong
	KindClose
)

func (k MessageKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindClose:
		return "close"
	default:
		return "unknown"
	}
}

// Message is one frame read from a Socket.
type Message struct {
	Kind MessageKind
	Text string
	Data []byte
}

// Socket is a single bidirectional connection.
// Receive is called from one goroutine; writes may come from several.
type Socket interface {
	Receive() (Message, error)
	WriteText(text string) error
	Ping(data []byte) error
	Pong(data []byte) error
	Close() error
}

// Dialer opens sockets.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// ErrPeerClosed is returned when the server sent a close frame.
var ErrPeerClosed = errors.New("closed by peer")

const (
	defaultHandshakeTimeout = 10 * time.Second
	controlWriteWait        = 5 * time.Second
)

// GorillaDialer dials sockets with github.com/gorilla/websocket.
type GorillaDialer struct {
	HandshakeTimeout time.Duration
	// ReadTimeout is the read deadline refreshed before every read and on
	// every pong. Zero disables it.
	ReadTimeout time.Duration
	Header      http.Header
}

func (d *GorillaDialer) Dial(ctx context.Context, url string) (Socket, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return newGorillaSocket(conn, d.ReadTimeout), nil
}

type gorillaSocket struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	writeMu     sync.Mutex
}

func newGorillaSocket(conn *websocket.Conn, readTimeout time.Duration) *gorillaSocket {
	s := &gorillaSocket{conn: conn, readTimeout: readTimeout}

	// Control frames are handled inside ReadMessage; pings are answered
	// directly and pongs only refresh the deadline.
	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(controlWriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(string) error {
		s.refreshDeadline()
		return nil
	})
	return s
}

func (s *gorillaSocket) refreshDeadline() {
	if s.readTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
}

func (s *gorillaSocket) Receive() (Message, error) {
	s.refreshDeadline()
	msgType, data, err := s.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return Message{Kind: KindClose}, nil
		}
		return Message{}, err
	}
	switch msgType {
	case websocket.TextMessage:
		return Message{Kind: KindText, Text: string(data)}, nil
	default:
		return Message{Kind: KindBinary, Data: data}, nil
	}
}

func (s *gorillaSocket) WriteText(text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (s *gorillaSocket) Ping(data []byte) error {
	return s.conn.WriteControl(websocket.PingMessage, data, time.Now().Add(controlWriteWait))
}

func (s *gorillaSocket) Pong(data []byte) error {
	return s.conn.WriteControl(websocket.PongMessage, data, time.Now().Add(controlWriteWait))
}

func (s *gorillaSocket) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}
