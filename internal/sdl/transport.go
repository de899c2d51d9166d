package sdl

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is one established link to the head unit carrying whole frames
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame([]byte) error
	Close() error
}

// Transport opens links to the head unit
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
	String() string
}

// NewTransport picks a transport from the URL scheme:
// tcp://host:port uses netstring framing, ws:// and wss:// use WebSocket text frames.
func NewTransport(rawURL string) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing head unit url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("head unit url %q has no host", rawURL)
	}
	switch u.Scheme {
	case "tcp":
		return &tcpTransport{addr: u.Host}, nil
	case "ws", "wss":
		return &wsTransport{url: u.String()}, nil
	default:
		return nil, fmt.Errorf("unsupported head unit scheme %q", u.Scheme)
	}
}

type tcpTransport struct {
	addr string
}

func (t *tcpTransport) String() string { return "tcp://" + t.addr }

func (t *tcpTransport) Dial(ctx context.Context) (Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to head unit at %s: %w", t.addr, err)
	}
	return NewNetstringConn(conn), nil
}

// NetstringConn frames a byte stream with netstrings
type NetstringConn struct {
	conn    net.Conn
	encoder *NetstringEncoder
	decoder *NetstringDecoder
	writeMu sync.Mutex
}

// NewNetstringConn wraps an established stream connection
func NewNetstringConn(conn net.Conn) *NetstringConn {
	return &NetstringConn{
		conn:    conn,
		encoder: NewNetstringEncoder(conn),
		decoder: NewNetstringDecoder(conn),
	}
}

func (c *NetstringConn) ReadFrame() ([]byte, error) {
	return c.decoder.Decode()
}

func (c *NetstringConn) WriteFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.encoder.Encode(data)
}

func (c *NetstringConn) Close() error {
	return c.conn.Close()
}

type wsTransport struct {
	url string
}

func (t *wsTransport) String() string { return t.url }

func (t *wsTransport) Dial(ctx context.Context) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to head unit at %s: %w", t.url, err)
	}
	conn.SetReadLimit(MaxFrameSize)
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}
