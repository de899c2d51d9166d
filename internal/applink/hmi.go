package applink

import "github.com/dense-identity/applink/internal/sdl"

// HMIAction is what the controller should do after a status notification
type HMIAction int

const (
	HMIActionNone HMIAction = iota
	// HMIActionGreet shows the welcome text and registers the command menu
	HMIActionGreet
	// HMIActionAlive shows the lightweight keep-alive text
	HMIActionAlive
)

func (a HMIAction) String() string {
	switch a {
	case HMIActionGreet:
		return "greet"
	case HMIActionAlive:
		return "alive"
	default:
		return "none"
	}
}

// HMIState is the last accepted head-unit status
type HMIState struct {
	SystemContext       sdl.SystemContext
	AudioStreamingState sdl.AudioStreamingState
	HMILevel            sdl.HMILevel
	FirstRunSeen        bool
}

// HMIMachine classifies OnHMIStatus notifications. It is only touched from
// the session timeline.
type HMIMachine struct {
	state    HMIState
	received bool
}

// Apply classifies one notification and updates the state. Notifications
// with an unrecognized context, streaming state or level are ignored entirely.
func (m *HMIMachine) Apply(st sdl.HMIStatus) HMIAction {
	switch st.SystemContext {
	case sdl.ContextMain, sdl.ContextVRSession, sdl.ContextMenu:
	default:
		return HMIActionNone
	}

	switch st.AudioStreamingState {
	case sdl.AudioAudible, sdl.AudioNotAudible:
	default:
		return HMIActionNone
	}

	switch st.HMILevel {
	case sdl.HMIFull, sdl.HMILimited, sdl.HMIBackground, sdl.HMINone:
	default:
		return HMIActionNone
	}

	m.received = true
	m.state.SystemContext = st.SystemContext
	m.state.AudioStreamingState = st.AudioStreamingState
	m.state.HMILevel = st.HMILevel

	if st.HMILevel != sdl.HMIFull {
		return HMIActionNone
	}
	if !m.state.FirstRunSeen && st.FirstRun {
		m.state.FirstRunSeen = true
		return HMIActionGreet
	}
	return HMIActionAlive
}

// State returns the current state and whether any notification was accepted
func (m *HMIMachine) State() (HMIState, bool) {
	return m.state, m.received
}

// Reset returns the machine to its initial state
func (m *HMIMachine) Reset() {
	m.state = HMIState{}
	m.received = false
}
