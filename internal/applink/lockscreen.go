package applink

import (
	"log"
	"sync"

	"github.com/dense-identity/applink/internal/sdl"
)

// Overlay is the always-on-top lock screen surface
type Overlay interface {
	Show()
	Clear()
}

// ScreenOverlay keeps at most one visible lock screen. Show and Clear are
// idempotent; the renderer is only called on an actual change.
type ScreenOverlay struct {
	mu      sync.Mutex
	visible bool
	render  func(visible bool)
}

// NewScreenOverlay returns a hidden overlay. render may be nil.
func NewScreenOverlay(render func(visible bool)) *ScreenOverlay {
	return &ScreenOverlay{render: render}
}

func (o *ScreenOverlay) Show() { o.set(true) }

func (o *ScreenOverlay) Clear() { o.set(false) }

// Visible reports whether the lock screen is up
func (o *ScreenOverlay) Visible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}

func (o *ScreenOverlay) set(visible bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.visible == visible {
		return
	}
	o.visible = visible
	if o.render != nil {
		o.render(visible)
	}
}

// LockScreenPolicy maps lock screen notifications onto the overlay
type LockScreenPolicy struct {
	overlay Overlay
	last    sdl.LockScreenStatus
}

func NewLockScreenPolicy(overlay Overlay) *LockScreenPolicy {
	return &LockScreenPolicy{overlay: overlay}
}

// Apply shows the overlay for REQUIRED and clears it for anything else.
// It reports whether the overlay should now be visible.
func (p *LockScreenPolicy) Apply(n sdl.LockScreenNotification) bool {
	p.last = n.ShowLockScreen
	if n.ShowLockScreen == sdl.LockScreenRequired {
		p.overlay.Show()
		return true
	}
	if n.ShowLockScreen != sdl.LockScreenOptional && n.ShowLockScreen != sdl.LockScreenOff {
		log.Printf("[LockScreen] Unrecognized status %q, clearing", n.ShowLockScreen)
	}
	p.overlay.Clear()
	return false
}

// Clear hides the overlay regardless of the last notification
func (p *LockScreenPolicy) Clear() {
	p.last = ""
	p.overlay.Clear()
}

// Last returns the most recent requirement, empty after Clear
func (p *LockScreenPolicy) Last() sdl.LockScreenStatus {
	return p.last
}
