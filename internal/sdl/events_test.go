package sdl

import (
	"encoding/json"
	"testing"
)

func TestDecodeEventResponses(t *testing.T) {
	env := &Envelope{Type: TypeResponse, Function: FuncPerformAudioPassThru,
		CorrelationID: 12, Success: false, ResultCode: ResultRetry, Info: "busy"}

	ev, err := DecodeEvent(env)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	resp, ok := ev.(PerformAudioPassThruResponse)
	if !ok {
		t.Fatalf("got %T, want PerformAudioPassThruResponse", ev)
	}
	if resp.CorrelationID != 12 || resp.ResultCode != ResultRetry || resp.Info != "busy" {
		t.Errorf("unexpected response: %+v", resp)
	}

	ev, _ = DecodeEvent(&Envelope{Type: TypeResponse, Function: "SetMediaClockTimer"})
	if ev.Kind() != KindUnhandled {
		t.Errorf("unknown response kind: got %s, want Unhandled", ev.Kind())
	}
}

func TestDecodeEventNotifications(t *testing.T) {
	params, _ := json.Marshal(LockScreenNotification{ShowLockScreen: LockScreenRequired, DriverDistracted: true})
	ev, err := DecodeEvent(&Envelope{Type: TypeNotification, Function: FuncOnLockScreenStatus, Params: params})
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if n := ev.(LockScreenNotification); n.ShowLockScreen != LockScreenRequired {
		t.Errorf("got %s, want REQUIRED", n.ShowLockScreen)
	}

	ev, err = DecodeEvent(&Envelope{Type: TypeNotification, Function: FuncOnCommand, Params: json.RawMessage(`{"cmdID":1}`)})
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if n := ev.(CommandNotification); n.CmdID != 1 {
		t.Errorf("cmdID: got %d, want 1", n.CmdID)
	}

	ev, _ = DecodeEvent(&Envelope{Type: TypeNotification, Function: "OnTBTClientState"})
	if ev.Kind() != KindUnhandled {
		t.Errorf("unknown notification kind: got %s", ev.Kind())
	}
}

func TestDecodeEventMalformed(t *testing.T) {
	if _, err := DecodeEvent(&Envelope{Type: TypeNotification, Function: FuncOnHMIStatus}); err == nil {
		t.Error("expected error for HMI status without params")
	}
	if _, err := DecodeEvent(&Envelope{Type: TypeNotification, Function: FuncOnHMIStatus, Params: json.RawMessage(`[1]`)}); err == nil {
		t.Error("expected error for undecodable params")
	}
	if _, err := DecodeEvent(&Envelope{Type: TypeRequest, Function: FuncShow}); err == nil {
		t.Error("expected error for inbound request")
	}
}

func TestAddCommandParentLinkage(t *testing.T) {
	parent := 100
	req := NewAddCommand(3, AddCommandParams{CmdID: 1, MenuParams: &MenuParams{ParentID: &parent, MenuName: "Command 1"}})
	env, err := req.Envelope()
	if err != nil {
		t.Fatalf("Envelope: %v", err)
	}
	var withParent map[string]map[string]any
	_ = json.Unmarshal(env.Params, &withParent)
	if withParent["menuParams"]["parentID"] != float64(100) {
		t.Errorf("parentID missing: %s", env.Params)
	}

	req = NewAddCommand(4, AddCommandParams{CmdID: 1, MenuParams: &MenuParams{MenuName: "Command 1"}})
	env, _ = req.Envelope()
	var topLevel map[string]map[string]any
	_ = json.Unmarshal(env.Params, &topLevel)
	if _, ok := topLevel["menuParams"]["parentID"]; ok {
		t.Errorf("top-level command should omit parentID: %s", env.Params)
	}
}
