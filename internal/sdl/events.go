package sdl

import (
	"encoding/json"
	"fmt"
)

// Kind tags every inbound event
type Kind int

const (
	KindUnhandled Kind = iota
	KindProxyConnected
	KindProxyClosed
	KindHMIStatus
	KindLockScreenStatus
	KindAudioPassThru
	KindCommand
	KindDriverDistraction
	KindAddSubMenuResponse
	KindAddCommandResponse
	KindPerformAudioPassThruResponse
	KindShowResponse
	KindSpeakResponse
)

func (k Kind) String() string {
	names := []string{
		"Unhandled", "ProxyConnected", "ProxyClosed", "OnHMIStatus", "OnLockScreenStatus",
		"OnAudioPassThru", "OnCommand", "OnDriverDistraction", "AddSubMenuResponse",
		"AddCommandResponse", "PerformAudioPassThruResponse", "ShowResponse", "SpeakResponse",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Event is anything the proxy delivers to its listener
type Event interface {
	Kind() Kind
}

// Listener receives events from the proxy. Calls may come from the proxy's
// reader goroutine; listeners are expected to hand them off to their own timeline.
type Listener func(Event)

// CloseReason explains why a proxy session ended
type CloseReason int

const (
	ReasonTransportError CloseReason = iota
	ReasonProxyCycled
	ReasonBluetoothDisabled
	ReasonUnregistered
	ReasonRegistrationFailed
)

func (r CloseReason) String() string {
	switch r {
	case ReasonProxyCycled:
		return "SYNC_PROXY_CYCLED"
	case ReasonBluetoothDisabled:
		return "BLUETOOTH_DISABLED"
	case ReasonUnregistered:
		return "APP_UNREGISTERED"
	case ReasonRegistrationFailed:
		return "REGISTRATION_FAILED"
	default:
		return "TRANSPORT_ERROR"
	}
}

// ProxyConnected is emitted once the app is registered on the head unit
type ProxyConnected struct{}

func (ProxyConnected) Kind() Kind { return KindProxyConnected }

// ProxyClosed is emitted whenever the session ends, for any reason
type ProxyClosed struct {
	Reason CloseReason
	Info   string
	Err    error
}

func (ProxyClosed) Kind() Kind { return KindProxyClosed }

// HMIStatus is the OnHMIStatus notification
type HMIStatus struct {
	HMILevel            HMILevel            `json:"hmiLevel"`
	AudioStreamingState AudioStreamingState `json:"audioStreamingState"`
	SystemContext       SystemContext       `json:"systemContext"`
	FirstRun            bool                `json:"firstRun"`
}

func (HMIStatus) Kind() Kind { return KindHMIStatus }

// LockScreenNotification is the OnLockScreenStatus notification
type LockScreenNotification struct {
	ShowLockScreen   LockScreenStatus `json:"showLockScreen"`
	DriverDistracted bool             `json:"driverDistraction"`
	UserSelected     bool             `json:"userSelected"`
}

func (LockScreenNotification) Kind() Kind { return KindLockScreenStatus }

// AudioPassThruData carries one chunk of raw microphone audio
type AudioPassThruData struct {
	Data []byte
}

func (AudioPassThruData) Kind() Kind { return KindAudioPassThru }

// CommandNotification reports a user selecting a registered command
type CommandNotification struct {
	CmdID         int    `json:"cmdID"`
	TriggerSource string `json:"triggerSource"`
}

func (CommandNotification) Kind() Kind { return KindCommand }

// DriverDistraction is the OnDriverDistraction notification
type DriverDistraction struct {
	State string `json:"state"`
}

func (DriverDistraction) Kind() Kind { return KindDriverDistraction }

// Response is the common part of every RPC response
type Response struct {
	Function      string
	CorrelationID uint64
	Success       bool
	ResultCode    Result
	Info          string
}

// AddSubMenuResponse answers AddSubMenu
type AddSubMenuResponse struct{ Response }

func (AddSubMenuResponse) Kind() Kind { return KindAddSubMenuResponse }

// AddCommandResponse answers AddCommand
type AddCommandResponse struct{ Response }

func (AddCommandResponse) Kind() Kind { return KindAddCommandResponse }

// PerformAudioPassThruResponse ends a capture cycle
type PerformAudioPassThruResponse struct{ Response }

func (PerformAudioPassThruResponse) Kind() Kind { return KindPerformAudioPassThruResponse }

// ShowResponse answers Show
type ShowResponse struct{ Response }

func (ShowResponse) Kind() Kind { return KindShowResponse }

// SpeakResponse answers Speak
type SpeakResponse struct{ Response }

func (SpeakResponse) Kind() Kind { return KindSpeakResponse }

// Unhandled wraps any message kind this client does not act on
type Unhandled struct {
	Type     MessageType
	Function string
}

func (Unhandled) Kind() Kind { return KindUnhandled }

// DecodeEvent turns an inbound envelope into a typed event
func DecodeEvent(env *Envelope) (Event, error) {
	switch env.Type {
	case TypeResponse:
		return decodeResponse(env), nil
	case TypeNotification:
		return decodeNotification(env)
	default:
		return nil, fmt.Errorf("unexpected message type %q for %s", env.Type, env.Function)
	}
}

func decodeResponse(env *Envelope) Event {
	resp := Response{
		Function:      env.Function,
		CorrelationID: env.CorrelationID,
		Success:       env.Success,
		ResultCode:    env.ResultCode,
		Info:          env.Info,
	}
	switch env.Function {
	case FuncAddSubMenu:
		return AddSubMenuResponse{resp}
	case FuncAddCommand:
		return AddCommandResponse{resp}
	case FuncPerformAudioPassThru:
		return PerformAudioPassThruResponse{resp}
	case FuncShow:
		return ShowResponse{resp}
	case FuncSpeak:
		return SpeakResponse{resp}
	default:
		return Unhandled{Type: env.Type, Function: env.Function}
	}
}

func decodeNotification(env *Envelope) (Event, error) {
	switch env.Function {
	case FuncOnHMIStatus:
		var n HMIStatus
		if err := unmarshalParams(env, &n); err != nil {
			return nil, err
		}
		return n, nil
	case FuncOnLockScreenStatus:
		var n LockScreenNotification
		if err := unmarshalParams(env, &n); err != nil {
			return nil, err
		}
		return n, nil
	case FuncOnAudioPassThru:
		return AudioPassThruData{Data: env.Data}, nil
	case FuncOnCommand:
		var n CommandNotification
		if err := unmarshalParams(env, &n); err != nil {
			return nil, err
		}
		return n, nil
	case FuncOnDriverDistraction:
		var n DriverDistraction
		if err := unmarshalParams(env, &n); err != nil {
			return nil, err
		}
		return n, nil
	default:
		return Unhandled{Type: env.Type, Function: env.Function}, nil
	}
}

func unmarshalParams(env *Envelope, v any) error {
	if len(env.Params) == 0 {
		return fmt.Errorf("%s: missing params", env.Function)
	}
	if err := json.Unmarshal(env.Params, v); err != nil {
		return fmt.Errorf("%s: decoding params: %w", env.Function, err)
	}
	return nil
}
