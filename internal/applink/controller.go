package applink

import (
	"errors"
	"log"
	"time"

	"github.com/dense-identity/applink/internal/sdl"
	"github.com/google/uuid"
)

// Command menu registered on the first HMI_FULL of a session
const (
	CommandID     = 1
	SubMenuID     = 100
	subMenuName   = "SubMenu 1"
	subMenuPos    = 0
	commandName   = "Command 1"
	greetingLine1 = "Welcome to"
	greetingLine2 = "Google Now Link"
	aliveLine1    = "SyncProxy is"
	aliveLine2    = "Alive"
)

var commandVRPhrases = []string{"Okay Google", "Ok Google"}

// Proxy is the head-unit session handle the controller drives
type Proxy interface {
	SendRequest(req sdl.Request) error
	Reset() error
	Dispose() error
	IsConnected() bool
}

// ProxyFactory constructs a proxy delivering its events to listener
type ProxyFactory func(listener sdl.Listener) (Proxy, error)

// Options configures a Controller
type Options struct {
	NewProxy ProxyFactory
	Overlay  Overlay

	ConnectTimeout time.Duration
	StopDelay      time.Duration
	AfterFunc      AfterFunc

	Capture AudioPassThruOptions

	// BluetoothEnabled gates the proxy start in Start; nil means enabled
	BluetoothEnabled func() bool
	// OnShutdown is called once when the controller gives up on the session
	OnShutdown func(reason string)
	// OnStatus is called whenever the connected state may have changed
	OnStatus func(Status)

	Verbose bool
}

// Status is a snapshot of the session for the host
type Status struct {
	SessionID       string
	HasProxy        bool
	Connected       bool
	LastCloseReason string
	HMI             HMIState
	HMIReceived     bool
	LockScreen      sdl.LockScreenStatus
	CapturePending  bool
	ShutdownReason  string
}

// Controller owns the single live session. Every method must run on the
// session timeline, which is why none of them lock.
type Controller struct {
	opts Options
	post func(func()) bool

	proxy     Proxy
	proxyGen  uint64
	sessionID string
	ids       *CorrelationIDs
	lastClose string

	subMenuCorrID uint64

	watchdog *Watchdog
	hmi      HMIMachine
	lock     *LockScreenPolicy
	apt      *AudioPassThru

	shutdown       bool
	shutdownReason string
}

// NewController builds a controller whose timers and proxy callbacks are
// delivered through post
func NewController(opts Options, post func(func()) bool) *Controller {
	if opts.Overlay == nil {
		opts.Overlay = NewScreenOverlay(nil)
	}
	if opts.Capture.MaxRetries < 0 {
		opts.Capture.MaxRetries = DefaultAPTMaxRetries
	}

	c := &Controller{
		opts: opts,
		post: post,
		ids:  NewCorrelationIDs(1),
		lock: NewLockScreenPolicy(opts.Overlay),
	}
	c.watchdog = NewWatchdog(opts.ConnectTimeout, opts.StopDelay, opts.AfterFunc, post,
		c.onConnectTimeout, c.onStopDelay)
	c.apt = newAudioPassThru(opts.Capture, c.send, func() string { return c.sessionID })
	return c
}

// Watchdog exposes the session timers
func (c *Controller) Watchdog() *Watchdog { return c.watchdog }

// AudioPassThru exposes the capture pipeline
func (c *Controller) AudioPassThru() *AudioPassThru { return c.apt }

// Start is the host's service start: a pending disconnect-debounce is
// dropped, the proxy is started when Bluetooth is on and the connect-timeout
// window begins.
func (c *Controller) Start() {
	if c.shutdown {
		log.Printf("[Controller] Start ignored, already shut down (%s)", c.shutdownReason)
		return
	}
	c.watchdog.CancelDisconnectDebounce()

	if c.opts.BluetoothEnabled == nil || c.opts.BluetoothEnabled() {
		c.StartProxy()
	} else {
		log.Printf("[Controller] Bluetooth disabled, not starting proxy")
	}

	if !c.shutdown {
		c.watchdog.ArmConnectTimeout()
	}
}

// StartProxy creates the session unless one already exists
func (c *Controller) StartProxy() {
	if c.proxy != nil || c.shutdown {
		return
	}

	c.proxyGen++
	gen := c.proxyGen
	listener := func(ev sdl.Event) {
		c.post(func() { c.handle(gen, ev) })
	}

	proxy, err := c.opts.NewProxy(listener)
	if err != nil {
		log.Printf("[Controller] Creating proxy failed: %v", err)
		c.Shutdown("proxy construction failed")
		return
	}

	c.proxy = proxy
	c.sessionID = uuid.NewString()
	c.ids = NewCorrelationIDs(1)
	c.hmi.Reset()
	c.subMenuCorrID = 0
	log.Printf("[Controller] Proxy started (session=%s)", c.sessionID)

	c.watchdog.ArmConnectTimeout()
	c.reportStatus()
}

// DisposeProxy tears the session down, if there is one
func (c *Controller) DisposeProxy() {
	if c.proxy == nil {
		return
	}
	if err := c.proxy.Dispose(); err != nil {
		log.Printf("[Controller] Disposing proxy: %v", err)
	}
	c.proxy = nil
	c.proxyGen++
	c.lock.Clear()
	c.apt.Abort()
	c.hmi.Reset()
	c.subMenuCorrID = 0
	log.Printf("[Controller] Proxy disposed (session=%s)", c.sessionID)
	c.reportStatus()
}

// Reset cycles the live proxy, or starts one when there is none
func (c *Controller) Reset() {
	if c.proxy == nil {
		c.StartProxy()
		return
	}

	err := c.proxy.Reset()
	if err == nil {
		return
	}
	log.Printf("[Controller] Resetting proxy failed: %v", err)
	if errors.Is(err, sdl.ErrDisposed) {
		c.proxy = nil
		c.proxyGen++
		c.Shutdown("proxy reset failed")
	}
}

// ResetFromLockScreen is the lock screen's reset action
func (c *Controller) ResetFromLockScreen() {
	log.Printf("[Controller] Reset requested from lock screen")
	c.Reset()
}

// LinkDisconnected starts the disconnect-debounce window
func (c *Controller) LinkDisconnected() {
	if c.shutdown {
		return
	}
	log.Printf("[Controller] Link disconnected, stopping in %v unless reconnected", c.watchdog.stopDelay)
	c.watchdog.ArmDisconnectDebounce()
}

// StartCapture begins an audio pass-through cycle
func (c *Controller) StartCapture() error {
	if c.proxy == nil {
		return sdl.ErrNotConnected
	}
	return c.apt.Start()
}

// Shutdown gives up on the session. Only the first call has any effect.
func (c *Controller) Shutdown(reason string) {
	if c.shutdown {
		return
	}
	c.shutdown = true
	c.shutdownReason = reason
	log.Printf("[Controller] Shutting down: %s", reason)

	c.watchdog.CancelAll()
	c.DisposeProxy()
	c.lock.Clear()
	c.apt.Abort()
	c.reportStatus()

	if c.opts.OnShutdown != nil {
		c.opts.OnShutdown(reason)
	}
}

// IsShutdown reports whether Shutdown has run
func (c *Controller) IsShutdown() bool { return c.shutdown }

// Status returns a snapshot of the session
func (c *Controller) Status() Status {
	hmi, received := c.hmi.State()
	return Status{
		SessionID:       c.sessionID,
		HasProxy:        c.proxy != nil,
		Connected:       c.connected(),
		LastCloseReason: c.lastClose,
		HMI:             hmi,
		HMIReceived:     received,
		LockScreen:      c.lock.Last(),
		CapturePending:  c.apt.Pending(),
		ShutdownReason:  c.shutdownReason,
	}
}

// HandleEvent dispatches one event from the current proxy
func (c *Controller) HandleEvent(ev sdl.Event) {
	c.handle(c.proxyGen, ev)
}

func (c *Controller) handle(gen uint64, ev sdl.Event) {
	if gen != c.proxyGen || c.proxy == nil {
		if c.opts.Verbose {
			log.Printf("[Controller] Dropping %s from a previous session", ev.Kind())
		}
		return
	}
	if c.opts.Verbose {
		log.Printf("[Controller] Event: %s", ev.Kind())
	}

	switch e := ev.(type) {
	case sdl.ProxyConnected:
		c.onConnected()

	case sdl.ProxyClosed:
		c.onSessionClosed(e)

	case sdl.HMIStatus:
		c.onHMIStatus(e)

	case sdl.LockScreenNotification:
		c.lock.Apply(e)

	case sdl.AddSubMenuResponse:
		c.onAddSubMenuResponse(e)

	case sdl.AddCommandResponse:
		if !e.Success || e.ResultCode != sdl.ResultSuccess {
			log.Printf("[Controller] AddCommand rejected (corrID=%d): %s %s", e.CorrelationID, e.ResultCode, e.Info)
		}

	case sdl.CommandNotification:
		c.onCommand(e)

	case sdl.AudioPassThruData:
		c.apt.OnData(e.Data)

	case sdl.PerformAudioPassThruResponse:
		c.apt.OnResponse(e)

	case sdl.DriverDistraction:
		log.Printf("[Controller] Driver distraction: %s", e.State)

	default:
		// Show/Speak responses and everything unhandled
	}
}

func (c *Controller) onConnected() {
	log.Printf("[Controller] Connected to head unit (session=%s)", c.sessionID)
	c.watchdog.CancelDisconnectDebounce()
	c.reportStatus()
}

func (c *Controller) onSessionClosed(e sdl.ProxyClosed) {
	c.lastClose = e.Reason.String()
	log.Printf("[Controller] Session closed: %s %s", e.Reason, e.Info)

	c.lock.Clear()
	c.hmi.Reset()
	c.subMenuCorrID = 0
	c.apt.Abort()
	c.reportStatus()

	switch e.Reason {
	case sdl.ReasonProxyCycled, sdl.ReasonBluetoothDisabled:
		return
	default:
		// Repeated failures while re-dialing keep the first deadline
		if !c.shutdown && !c.watchdog.DisconnectDebouncePending() {
			log.Printf("[Controller] Link lost, stopping in %v unless reconnected", c.watchdog.stopDelay)
			c.watchdog.ArmDisconnectDebounce()
		}
		log.Printf("[Controller] Resetting proxy after unexpected closure")
		c.Reset()
	}
}

func (c *Controller) onHMIStatus(st sdl.HMIStatus) {
	switch c.hmi.Apply(st) {
	case HMIActionGreet:
		log.Printf("[Controller] HMI_FULL first run, registering commands")
		c.sendQuiet(func(id uint64) sdl.Request {
			return sdl.NewShow(id, greetingLine1, greetingLine2, sdl.AlignCentered)
		})
		c.addCommands()

	case HMIActionAlive:
		c.sendQuiet(func(id uint64) sdl.Request {
			return sdl.NewShow(id, aliveLine1, aliveLine2, sdl.AlignCentered)
		})

	default:
		log.Printf("[Controller] HMI status %s/%s/%s", st.HMILevel, st.AudioStreamingState, st.SystemContext)
	}
}

func (c *Controller) addCommands() {
	id, err := c.send(func(id uint64) sdl.Request {
		return sdl.NewAddSubMenu(id, SubMenuID, subMenuName, subMenuPos)
	})
	if err != nil {
		log.Printf("[Controller] Failed to send AddSubMenu: %v", err)
		return
	}
	c.subMenuCorrID = id
}

// onAddSubMenuResponse sends the command either way; it only nests under the
// submenu when the submenu was accepted
func (c *Controller) onAddSubMenuResponse(resp sdl.AddSubMenuResponse) {
	if c.subMenuCorrID == 0 || resp.CorrelationID != c.subMenuCorrID {
		log.Printf("[Controller] Unexpected AddSubMenu response (corrID=%d)", resp.CorrelationID)
		return
	}
	c.subMenuCorrID = 0

	menu := &sdl.MenuParams{MenuName: commandName}
	if resp.Success {
		parent := SubMenuID
		menu.ParentID = &parent
	} else {
		log.Printf("[Controller] AddSubMenu rejected: %s %s, adding command at top level", resp.ResultCode, resp.Info)
	}

	c.sendQuiet(func(id uint64) sdl.Request {
		return sdl.NewAddCommand(id, sdl.AddCommandParams{
			CmdID:      CommandID,
			MenuParams: menu,
			VRCommands: commandVRPhrases,
		})
	})
}

func (c *Controller) onCommand(n sdl.CommandNotification) {
	log.Printf("[Controller] Command %d selected (%s)", n.CmdID, n.TriggerSource)
	if n.CmdID != CommandID {
		return
	}
	if err := c.apt.Start(); err != nil {
		log.Printf("[Controller] Starting capture: %v", err)
	}
}

func (c *Controller) onConnectTimeout() {
	if c.connected() {
		return
	}
	c.Shutdown("no head unit connection within connect timeout")
}

func (c *Controller) onStopDelay() {
	if c.connected() {
		return
	}
	c.Shutdown("link not restored after disconnect")
}

func (c *Controller) connected() bool {
	return c.proxy != nil && c.proxy.IsConnected()
}

// send allocates an ID, builds the request and sends it through the proxy
func (c *Controller) send(build func(id uint64) sdl.Request) (uint64, error) {
	if c.proxy == nil {
		return 0, sdl.ErrNotConnected
	}
	id := c.ids.Next()
	req := build(id)
	if err := c.proxy.SendRequest(req); err != nil {
		return id, err
	}
	return id, nil
}

// sendQuiet sends a best-effort request, logging failures
func (c *Controller) sendQuiet(build func(id uint64) sdl.Request) {
	if _, err := c.send(build); err != nil {
		log.Printf("[Controller] Send failed: %v", err)
	}
}

func (c *Controller) reportStatus() {
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(c.Status())
	}
}
