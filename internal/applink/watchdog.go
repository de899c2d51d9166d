package applink

import (
	"log"
	"time"
)

// Default watchdog windows
const (
	DefaultConnectTimeout = 60 * time.Second
	DefaultStopDelay      = 5 * time.Second
)

// Timer is a pending delayed action
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it once wrapped.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Token identifies one arming of a watchdog timer
type Token uint64

type pendingCheck struct {
	token Token
	timer Timer
}

// Watchdog owns the connect-timeout and disconnect-debounce timers. All of
// its methods must be called on the session timeline. A timer never acts on
// its own: when it fires it posts its check back onto the timeline, and a
// check whose token was cancelled or re-armed in the meantime does nothing.
type Watchdog struct {
	connectTimeout time.Duration
	stopDelay      time.Duration

	afterFunc AfterFunc
	post      func(func()) bool

	onConnectTimeout func()
	onStopDelay      func()

	last     Token
	connect  pendingCheck
	debounce pendingCheck
}

// NewWatchdog builds a watchdog. onConnectTimeout and onStopDelay run on the
// timeline when the respective timer fires without being cancelled.
func NewWatchdog(connectTimeout, stopDelay time.Duration, afterFunc AfterFunc, post func(func()) bool,
	onConnectTimeout, onStopDelay func()) *Watchdog {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if stopDelay <= 0 {
		stopDelay = DefaultStopDelay
	}
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	return &Watchdog{
		connectTimeout:   connectTimeout,
		stopDelay:        stopDelay,
		afterFunc:        afterFunc,
		post:             post,
		onConnectTimeout: onConnectTimeout,
		onStopDelay:      onStopDelay,
	}
}

// ArmConnectTimeout (re)starts the connect-timeout window
func (w *Watchdog) ArmConnectTimeout() Token {
	return w.arm(&w.connect, w.connectTimeout, "connect-timeout", w.onConnectTimeout)
}

// ArmDisconnectDebounce (re)starts the disconnect-debounce window
func (w *Watchdog) ArmDisconnectDebounce() Token {
	return w.arm(&w.debounce, w.stopDelay, "disconnect-debounce", w.onStopDelay)
}

// CancelDisconnectDebounce drops a pending debounce check, if any
func (w *Watchdog) CancelDisconnectDebounce() bool {
	return w.stop(&w.debounce)
}

// CancelConnectTimeout drops a pending connect-timeout check, if any
func (w *Watchdog) CancelConnectTimeout() bool {
	return w.stop(&w.connect)
}

// Cancel drops the pending check armed with t. Stale tokens are ignored.
func (w *Watchdog) Cancel(t Token) bool {
	switch {
	case t != 0 && w.connect.token == t:
		return w.stop(&w.connect)
	case t != 0 && w.debounce.token == t:
		return w.stop(&w.debounce)
	default:
		return false
	}
}

// CancelAll drops every pending check
func (w *Watchdog) CancelAll() {
	w.stop(&w.connect)
	w.stop(&w.debounce)
}

// ConnectTimeoutPending reports whether a connect-timeout check is armed
func (w *Watchdog) ConnectTimeoutPending() bool { return w.connect.token != 0 }

// DisconnectDebouncePending reports whether a debounce check is armed
func (w *Watchdog) DisconnectDebouncePending() bool { return w.debounce.token != 0 }

func (w *Watchdog) arm(slot *pendingCheck, d time.Duration, name string, fire func()) Token {
	w.stop(slot)

	w.last++
	token := w.last
	slot.token = token
	slot.timer = w.afterFunc(d, func() {
		w.post(func() {
			if slot.token != token {
				return
			}
			slot.token = 0
			slot.timer = nil
			log.Printf("[Watchdog] %s fired after %v", name, d)
			if fire != nil {
				fire()
			}
		})
	})
	return token
}

func (w *Watchdog) stop(slot *pendingCheck) bool {
	if slot.token == 0 {
		return false
	}
	if slot.timer != nil {
		slot.timer.Stop()
	}
	slot.token = 0
	slot.timer = nil
	return true
}
