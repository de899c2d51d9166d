package sdl

import (
	"encoding/json"
	"fmt"
)

// MessageType distinguishes requests, responses and notifications on the wire
type MessageType string

const (
	TypeRequest      MessageType = "request"
	TypeResponse     MessageType = "response"
	TypeNotification MessageType = "notification"
)

// Function names used by this client
const (
	FuncRegisterAppInterface       = "RegisterAppInterface"
	FuncUnregisterAppInterface     = "UnregisterAppInterface"
	FuncShow                       = "Show"
	FuncSpeak                      = "Speak"
	FuncAddSubMenu                 = "AddSubMenu"
	FuncAddCommand                 = "AddCommand"
	FuncPerformAudioPassThru       = "PerformAudioPassThru"
	FuncOnHMIStatus                = "OnHMIStatus"
	FuncOnLockScreenStatus         = "OnLockScreenStatus"
	FuncOnAudioPassThru            = "OnAudioPassThru"
	FuncOnCommand                  = "OnCommand"
	FuncOnDriverDistraction        = "OnDriverDistraction"
	FuncOnAppInterfaceUnregistered = "OnAppInterfaceUnregistered"
)

// HMILevel is the head unit's interaction level for this app
type HMILevel string

const (
	HMIFull       HMILevel = "FULL"
	HMILimited    HMILevel = "LIMITED"
	HMIBackground HMILevel = "BACKGROUND"
	HMINone       HMILevel = "NONE"
)

// AudioStreamingState reports whether the app's audio can be heard
type AudioStreamingState string

const (
	AudioAudible    AudioStreamingState = "AUDIBLE"
	AudioNotAudible AudioStreamingState = "NOT_AUDIBLE"
	AudioAttenuated AudioStreamingState = "ATTENUATED"
)

// SystemContext is the screen context currently active on the head unit
type SystemContext string

const (
	ContextMain        SystemContext = "MAIN"
	ContextVRSession   SystemContext = "VRSESSION"
	ContextMenu        SystemContext = "MENU"
	ContextHMIObscured SystemContext = "HMI_OBSCURED"
	ContextAlert       SystemContext = "ALERT"
)

// LockScreenStatus tells the client whether a driver-distraction lock screen is needed
type LockScreenStatus string

const (
	LockScreenRequired LockScreenStatus = "REQUIRED"
	LockScreenOptional LockScreenStatus = "OPTIONAL"
	LockScreenOff      LockScreenStatus = "OFF"
)

// Result is the result code carried by every response
type Result string

const (
	ResultSuccess      Result = "SUCCESS"
	ResultRetry        Result = "RETRY"
	ResultAborted      Result = "ABORTED"
	ResultRejected     Result = "REJECTED"
	ResultInvalidData  Result = "INVALID_DATA"
	ResultDisallowed   Result = "DISALLOWED"
	ResultGenericError Result = "GENERIC_ERROR"
	ResultTimedOut     Result = "TIMED_OUT"
)

// TextAlignment for Show requests
type TextAlignment string

const (
	AlignLeft     TextAlignment = "LEFT_ALIGNED"
	AlignCentered TextAlignment = "CENTERED"
	AlignRight    TextAlignment = "RIGHT_ALIGNED"
)

// Audio pass-through parameters
const (
	SamplingRate16KHz = "16KHZ"
	BitsPerSample16   = "16_BIT"
	AudioTypePCM      = "PCM"
)

// Envelope is the JSON document carried in every frame
type Envelope struct {
	Type          MessageType     `json:"type"`
	Function      string          `json:"function"`
	CorrelationID uint64          `json:"correlation_id,omitempty"`
	Params        json.RawMessage `json:"params,omitempty"`
	Success       bool            `json:"success,omitempty"`
	ResultCode    Result          `json:"result_code,omitempty"`
	Info          string          `json:"info,omitempty"`
	Data          []byte          `json:"data,omitempty"`
}

// Request is an outbound RPC. Params is marshaled as the envelope params.
type Request struct {
	Function      string
	CorrelationID uint64
	Params        any
}

// Envelope encodes the request for the wire
func (r Request) Envelope() (*Envelope, error) {
	env := &Envelope{
		Type:          TypeRequest,
		Function:      r.Function,
		CorrelationID: r.CorrelationID,
	}
	if r.Params != nil {
		raw, err := json.Marshal(r.Params)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s params: %w", r.Function, err)
		}
		env.Params = raw
	}
	return env, nil
}

// TTSChunk is one piece of text-to-speech content
type TTSChunk struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// SimpleTTSChunks wraps plain strings as TEXT chunks
func SimpleTTSChunks(texts ...string) []TTSChunk {
	chunks := make([]TTSChunk, 0, len(texts))
	for _, t := range texts {
		chunks = append(chunks, TTSChunk{Text: t, Type: "TEXT"})
	}
	return chunks
}

type RegisterAppInterfaceParams struct {
	AppName            string `json:"appName"`
	AppID              string `json:"appID"`
	IsMediaApplication bool   `json:"isMediaApplication"`
}

type ShowParams struct {
	MainField1 string        `json:"mainField1"`
	MainField2 string        `json:"mainField2"`
	Alignment  TextAlignment `json:"alignment"`
}

type SpeakParams struct {
	TTSChunks []TTSChunk `json:"ttsChunks"`
}

type AddSubMenuParams struct {
	MenuID   int    `json:"menuID"`
	MenuName string `json:"menuName"`
	Position int    `json:"position"`
}

type MenuParams struct {
	ParentID *int   `json:"parentID,omitempty"`
	Position int    `json:"position,omitempty"`
	MenuName string `json:"menuName"`
}

type AddCommandParams struct {
	CmdID      int         `json:"cmdID"`
	MenuParams *MenuParams `json:"menuParams,omitempty"`
	VRCommands []string    `json:"vrCommands,omitempty"`
}

type PerformAudioPassThruParams struct {
	InitialPrompt []TTSChunk `json:"initialPrompt,omitempty"`
	DisplayText1  string     `json:"audioPassThruDisplayText1,omitempty"`
	DisplayText2  string     `json:"audioPassThruDisplayText2,omitempty"`
	SamplingRate  string     `json:"samplingRate"`
	MaxDuration   int        `json:"maxDuration"`
	BitsPerSample string     `json:"bitsPerSample"`
	AudioType     string     `json:"audioType"`
}

// NewShow builds a two-line Show request
func NewShow(id uint64, line1, line2 string, align TextAlignment) Request {
	return Request{
		Function:      FuncShow,
		CorrelationID: id,
		Params:        ShowParams{MainField1: line1, MainField2: line2, Alignment: align},
	}
}

// NewSpeak builds a Speak request from plain text
func NewSpeak(id uint64, text string) Request {
	return Request{
		Function:      FuncSpeak,
		CorrelationID: id,
		Params:        SpeakParams{TTSChunks: SimpleTTSChunks(text)},
	}
}

// NewAddSubMenu builds an AddSubMenu request
func NewAddSubMenu(id uint64, menuID int, name string, position int) Request {
	return Request{
		Function:      FuncAddSubMenu,
		CorrelationID: id,
		Params:        AddSubMenuParams{MenuID: menuID, MenuName: name, Position: position},
	}
}

// NewAddCommand builds an AddCommand request
func NewAddCommand(id uint64, params AddCommandParams) Request {
	return Request{Function: FuncAddCommand, CorrelationID: id, Params: params}
}

// NewPerformAudioPassThru builds a capture request
func NewPerformAudioPassThru(id uint64, params PerformAudioPassThruParams) Request {
	return Request{Function: FuncPerformAudioPassThru, CorrelationID: id, Params: params}
}
