package sdl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrInvalidOptions = errors.New("invalid proxy options")
	ErrNotConnected   = errors.New("proxy not connected")
	ErrDisposed       = errors.New("proxy disposed")
)

// Correlation IDs reserved for the proxy's own registration traffic,
// outside the range the application allocates from in practice.
const (
	registerCorrelationID   = 65529
	unregisterCorrelationID = 65530
)

// unregisteredReasonBluetooth is the OnAppInterfaceUnregistered reason sent
// when the head unit's Bluetooth link is switched off.
const unregisteredReasonBluetooth = "BLUETOOTH_OFF"

// Options configures a Proxy
type Options struct {
	URL         string
	AppName     string
	AppID       string
	IsMediaApp  bool
	DialTimeout time.Duration
	Verbose     bool

	// Transport overrides the one derived from URL
	Transport Transport
}

// Proxy keeps one registered app session with the head unit. It dials in the
// background; IsConnected turns true once RegisterAppInterface succeeds.
type Proxy struct {
	opts      Options
	transport Transport
	listener  Listener

	mu   sync.Mutex
	conn Conn
	gen  uint64

	connected atomic.Bool
	disposed  atomic.Bool
	failures  atomic.Int32

	retryBackoff []time.Duration
}

// NewProxy validates the options and starts connecting. The returned error is
// always a construction failure wrapping ErrInvalidOptions.
func NewProxy(opts Options, listener Listener) (*Proxy, error) {
	if listener == nil {
		return nil, fmt.Errorf("%w: listener is required", ErrInvalidOptions)
	}
	if strings.TrimSpace(opts.AppName) == "" || strings.TrimSpace(opts.AppID) == "" {
		return nil, fmt.Errorf("%w: app name and app id are required", ErrInvalidOptions)
	}
	transport := opts.Transport
	if transport == nil {
		t, err := NewTransport(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
		}
		transport = t
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}

	p := &Proxy{
		opts:         opts,
		transport:    transport,
		listener:     listener,
		retryBackoff: []time.Duration{0, 500 * time.Millisecond, 1 * time.Second, 2 * time.Second, 5 * time.Second},
	}
	go p.connect(0)
	return p, nil
}

// IsConnected reports whether the app is currently registered
func (p *Proxy) IsConnected() bool {
	return p.connected.Load()
}

// SendRequest writes one request. It fails fast when not connected.
func (p *Proxy) SendRequest(req Request) error {
	if p.disposed.Load() {
		return ErrDisposed
	}
	if !p.connected.Load() {
		return ErrNotConnected
	}
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	env, err := req.Envelope()
	if err != nil {
		return err
	}
	if err := p.write(conn, env); err != nil {
		return fmt.Errorf("sending %s: %w", req.Function, err)
	}
	return nil
}

// Reset cycles the link: the current connection is dropped, ProxyClosed with
// ReasonProxyCycled is emitted and a new connection is started.
func (p *Proxy) Reset() error {
	if p.disposed.Load() {
		return ErrDisposed
	}

	p.mu.Lock()
	old := p.conn
	p.conn = nil
	p.gen++
	gen := p.gen
	p.mu.Unlock()

	p.connected.Store(false)
	if old != nil {
		_ = old.Close()
	}
	log.Printf("[Proxy] Cycling connection to %s", p.transport)
	p.emit(ProxyClosed{Reason: ReasonProxyCycled, Info: "proxy reset"})

	go p.connect(gen)
	return nil
}

// Dispose unregisters (best effort) and closes the link for good
func (p *Proxy) Dispose() error {
	if p.disposed.Swap(true) {
		return nil
	}

	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.gen++
	p.mu.Unlock()

	wasConnected := p.connected.Swap(false)
	if conn == nil {
		return nil
	}
	if wasConnected {
		if err := p.write(conn, &Envelope{
			Type:          TypeRequest,
			Function:      FuncUnregisterAppInterface,
			CorrelationID: unregisterCorrelationID,
		}); err != nil {
			log.Printf("[Proxy] Unregister failed: %v", err)
		}
	}
	return conn.Close()
}

func (p *Proxy) current(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen == gen && !p.disposed.Load()
}

// connect dials and registers for generation gen. A superseded generation
// gives up silently.
func (p *Proxy) connect(gen uint64) {
	if n := int(p.failures.Load()); n > 0 {
		delay := p.retryBackoff[min(n, len(p.retryBackoff)-1)]
		time.Sleep(delay)
	}
	if !p.current(gen) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.DialTimeout)
	defer cancel()
	conn, err := p.transport.Dial(ctx)
	if err != nil {
		p.failures.Add(1)
		if p.current(gen) {
			log.Printf("[Proxy] Dial failed: %v", err)
			p.emit(ProxyClosed{Reason: ReasonTransportError, Err: err})
		}
		return
	}

	p.mu.Lock()
	if p.gen != gen || p.disposed.Load() {
		p.mu.Unlock()
		_ = conn.Close()
		return
	}
	p.conn = conn
	p.mu.Unlock()

	log.Printf("[Proxy] Connected to %s", p.transport)
	go p.readLoop(gen, conn)

	params, _ := json.Marshal(RegisterAppInterfaceParams{
		AppName:            p.opts.AppName,
		AppID:              p.opts.AppID,
		IsMediaApplication: p.opts.IsMediaApp,
	})
	if err := p.write(conn, &Envelope{
		Type:          TypeRequest,
		Function:      FuncRegisterAppInterface,
		CorrelationID: registerCorrelationID,
		Params:        params,
	}); err != nil {
		p.linkLost(gen, conn, ReasonTransportError, fmt.Errorf("registering app: %w", err))
	}
}

// readLoop decodes frames for one connection until it fails or is replaced
func (p *Proxy) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadFrame()
		if err != nil {
			p.linkLost(gen, conn, ReasonTransportError, fmt.Errorf("reading from head unit: %w", err))
			return
		}
		if !p.current(gen) {
			return
		}

		if p.opts.Verbose {
			log.Printf("[Proxy] Received: %s", truncate(data, 256))
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("[Proxy] Invalid JSON: %v", err)
			continue
		}
		if done := p.dispatch(gen, conn, &env); done {
			return
		}
	}
}

// dispatch handles registration traffic itself and forwards everything else.
// It returns true when the connection has been torn down.
func (p *Proxy) dispatch(gen uint64, conn Conn, env *Envelope) bool {
	switch {
	case env.Type == TypeResponse && env.Function == FuncRegisterAppInterface:
		if !env.Success {
			p.linkLost(gen, conn, ReasonRegistrationFailed,
				fmt.Errorf("registration rejected: %s %s", env.ResultCode, env.Info))
			return true
		}
		p.failures.Store(0)
		p.connected.Store(true)
		log.Printf("[Proxy] Registered %q (%s)", p.opts.AppName, p.opts.AppID)
		p.emit(ProxyConnected{})
		return false

	case env.Type == TypeNotification && env.Function == FuncOnAppInterfaceUnregistered:
		var params struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(env.Params, &params)
		reason := ReasonUnregistered
		if params.Reason == unregisteredReasonBluetooth {
			reason = ReasonBluetoothDisabled
		}
		p.linkLost(gen, conn, reason, fmt.Errorf("unregistered by head unit: %s", params.Reason))
		return true
	}

	ev, err := DecodeEvent(env)
	if err != nil {
		log.Printf("[Proxy] Dropping malformed %s: %v", env.Function, err)
		return false
	}
	p.emit(ev)
	return false
}

// linkLost tears down conn if it still belongs to the current generation and
// reports the closure exactly once.
func (p *Proxy) linkLost(gen uint64, conn Conn, reason CloseReason, err error) {
	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return
	}
	p.gen++
	p.conn = nil
	p.mu.Unlock()

	p.connected.Store(false)
	_ = conn.Close()
	if p.disposed.Load() {
		return
	}
	log.Printf("[Proxy] Session closed (%s): %v", reason, err)
	p.emit(ProxyClosed{Reason: reason, Err: err})
}

func (p *Proxy) write(conn Conn, env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", env.Function, err)
	}
	if p.opts.Verbose {
		log.Printf("[Proxy] Sending: %s", truncate(data, 256))
	}
	return conn.WriteFrame(data)
}

func (p *Proxy) emit(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Proxy] Listener panic on %s: %v", ev.Kind(), r)
		}
	}()
	p.listener(ev)
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
