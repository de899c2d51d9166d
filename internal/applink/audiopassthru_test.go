package applink

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/dense-identity/applink/internal/audio"
	"github.com/dense-identity/applink/internal/sdl"
)

func aptResponse(id uint64, code sdl.Result) sdl.PerformAudioPassThruResponse {
	return sdl.PerformAudioPassThruResponse{Response: sdl.Response{
		Function:      sdl.FuncPerformAudioPassThru,
		CorrelationID: id,
		Success:       code == sdl.ResultSuccess,
		ResultCode:    code,
	}}
}

func startCapture(t *testing.T, h *harness) sdl.Request {
	t.Helper()
	if err := h.ctrl.StartCapture(); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	reqs := h.proxy().sentOf(sdl.FuncPerformAudioPassThru)
	if len(reqs) == 0 {
		t.Fatal("no capture request sent")
	}
	return reqs[len(reqs)-1]
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestCaptureRequestParameters(t *testing.T) {
	h := newHarness(t)
	h.connect()
	req := startCapture(t, h)

	params := req.Params.(sdl.PerformAudioPassThruParams)
	if params.SamplingRate != "16KHZ" || params.BitsPerSample != "16_BIT" || params.AudioType != "PCM" {
		t.Errorf("unexpected format: %+v", params)
	}
	if params.MaxDuration != 10000 {
		t.Errorf("max duration: got %d, want 10000", params.MaxDuration)
	}
	if len(params.InitialPrompt) != 1 || params.InitialPrompt[0].Text != "Initial Prompt" {
		t.Errorf("unexpected prompt: %+v", params.InitialPrompt)
	}
	if fileExists(h.ctrl.AudioPassThru().RawPath()) {
		t.Error("no file should exist before the first chunk")
	}

	if err := h.ctrl.StartCapture(); !errors.Is(err, ErrCaptureInProgress) {
		t.Errorf("overlapping capture: got %v, want ErrCaptureInProgress", err)
	}
}

func TestCaptureAccumulatesChunksAndPlaysBack(t *testing.T) {
	h := newHarness(t)
	p := h.connect()
	req := startCapture(t, h)

	first := []byte{0x01, 0x02, 0x03}
	second := []byte{0x04, 0x05, 0x06, 0x07, 0x08}
	h.emit(sdl.AudioPassThruData{Data: first})
	h.emit(sdl.AudioPassThruData{})
	h.emit(sdl.AudioPassThruData{Data: second})

	apt := h.ctrl.AudioPassThru()
	raw, err := os.ReadFile(apt.RawPath())
	if err != nil {
		t.Fatalf("reading raw capture: %v", err)
	}
	if !bytes.Equal(raw, append(append([]byte{}, first...), second...)) {
		t.Errorf("raw capture should hold both chunks in order, got %x", raw)
	}
	if apt.BytesCaptured() != int64(len(first)+len(second)) {
		t.Errorf("byte count: got %d", apt.BytesCaptured())
	}

	h.emit(aptResponse(req.CorrelationID, sdl.ResultSuccess))

	if !fileExists(apt.WAVPath()) {
		t.Fatal("success should finalize a wav file")
	}
	if len(h.player.played) != 1 || h.player.played[0] != apt.WAVPath() {
		t.Errorf("expected one playback of %s, got %v", apt.WAVPath(), h.player.played)
	}
	speaks := p.sentOf(sdl.FuncSpeak)
	if len(speaks) != 1 {
		t.Fatalf("expected one Speak, got %d", len(speaks))
	}
	if text := speaks[0].Params.(sdl.SpeakParams).TTSChunks[0].Text; text != "playing back what you just said:" {
		t.Errorf("unexpected speak text %q", text)
	}
	if apt.Pending() {
		t.Error("capture should be finished")
	}
}

func TestCaptureRetryReissuesOnce(t *testing.T) {
	h := newHarness(t)
	p := h.connect()
	req := startCapture(t, h)
	h.emit(sdl.AudioPassThruData{Data: []byte{1, 2, 3, 4}})

	h.emit(aptResponse(req.CorrelationID, sdl.ResultRetry))

	apt := h.ctrl.AudioPassThru()
	if fileExists(apt.RawPath()) {
		t.Error("partial capture should be deleted on retry")
	}
	reqs := p.sentOf(sdl.FuncPerformAudioPassThru)
	if len(reqs) != 2 {
		t.Fatalf("expected exactly one new capture request, got %d total", len(reqs))
	}
	if reqs[1].CorrelationID <= reqs[0].CorrelationID {
		t.Error("retry should carry a fresh correlation ID")
	}
	if len(h.player.played) != 0 {
		t.Error("retry must not play anything")
	}
	if h.player.stops != 1 {
		t.Errorf("playback should be stopped on completion, stops=%d", h.player.stops)
	}
	if !apt.Pending() {
		t.Error("the retried capture should be outstanding")
	}
}

func TestCaptureRetryIsBounded(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Capture.MaxRetries = 2 })
	p := h.connect()
	startCapture(t, h)

	for i := 0; i < 5; i++ {
		reqs := p.sentOf(sdl.FuncPerformAudioPassThru)
		h.emit(aptResponse(reqs[len(reqs)-1].CorrelationID, sdl.ResultRetry))
	}

	if n := len(p.sentOf(sdl.FuncPerformAudioPassThru)); n != 3 {
		t.Errorf("expected the initial request plus 2 retries, got %d", n)
	}
	if h.ctrl.AudioPassThru().Pending() {
		t.Error("capture should be abandoned once retries are exhausted")
	}

	// A fresh user-initiated capture starts a new retry budget
	startCapture(t, h)
	if n := len(p.sentOf(sdl.FuncPerformAudioPassThru)); n != 4 {
		t.Errorf("new capture should be accepted, got %d requests", n)
	}
}

func TestCaptureHardFailureDiscards(t *testing.T) {
	for _, code := range []sdl.Result{sdl.ResultAborted, sdl.ResultRejected, sdl.ResultGenericError} {
		t.Run(string(code), func(t *testing.T) {
			h := newHarness(t)
			p := h.connect()
			req := startCapture(t, h)
			h.emit(sdl.AudioPassThruData{Data: []byte{9, 9}})

			h.emit(aptResponse(req.CorrelationID, code))

			apt := h.ctrl.AudioPassThru()
			if fileExists(apt.RawPath()) || fileExists(apt.WAVPath()) {
				t.Error("failed capture should leave no files")
			}
			if len(p.sentOf(sdl.FuncPerformAudioPassThru)) != 1 {
				t.Error("failed capture must not be retried")
			}
			if len(h.player.played) != 0 || len(p.sentOf(sdl.FuncSpeak)) != 0 {
				t.Error("failed capture must not be played back")
			}
		})
	}
}

func TestCaptureSuccessWithoutAudio(t *testing.T) {
	h := newHarness(t)
	h.connect()
	req := startCapture(t, h)

	h.emit(aptResponse(req.CorrelationID, sdl.ResultSuccess))

	if fileExists(h.ctrl.AudioPassThru().WAVPath()) || len(h.player.played) != 0 {
		t.Error("an empty capture should not be finalized or played")
	}
}

func TestChunksWithoutOutstandingCaptureAreDropped(t *testing.T) {
	h := newHarness(t)
	h.connect()
	h.emit(sdl.AudioPassThruData{Data: []byte{1, 2}})
	h.emit(aptResponse(42, sdl.ResultSuccess))

	if fileExists(h.ctrl.AudioPassThru().RawPath()) {
		t.Error("stray chunk should not create a capture file")
	}
	if len(h.player.played) != 0 {
		t.Error("stray response should not play anything")
	}
}

func TestSessionClosureAbortsCapture(t *testing.T) {
	h := newHarness(t)
	p := h.connect()
	startCapture(t, h)
	h.emit(sdl.AudioPassThruData{Data: []byte{1, 2, 3, 4}})

	h.emit(sdl.ProxyClosed{Reason: sdl.ReasonBluetoothDisabled})

	apt := h.ctrl.AudioPassThru()
	if apt.Pending() || fileExists(apt.RawPath()) {
		t.Error("closure should abort the capture and delete the partial file")
	}
	if len(p.sentOf(sdl.FuncPerformAudioPassThru)) != 1 {
		t.Error("abort must not retry")
	}
}

type chanRecorder chan CaptureRecord

func (c chanRecorder) Record(_ context.Context, rec CaptureRecord) error {
	c <- rec
	return nil
}

func TestCaptureIsRecorded(t *testing.T) {
	records := make(chanRecorder, 1)
	h := newHarness(t, func(o *Options) { o.Capture.Recorder = records })
	h.connect()
	req := startCapture(t, h)
	h.emit(sdl.AudioPassThruData{Data: make([]byte, 3200)})
	h.emit(aptResponse(req.CorrelationID, sdl.ResultSuccess))

	select {
	case rec := <-records:
		if rec.Bytes != 3200 || rec.CorrelationID != req.CorrelationID {
			t.Errorf("unexpected record: %+v", rec)
		}
		if rec.Duration != 100*time.Millisecond {
			t.Errorf("duration: got %v, want 100ms", rec.Duration)
		}
		if rec.SessionID != h.ctrl.Status().SessionID {
			t.Errorf("record should carry the session ID")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("capture was not recorded")
	}
}

func TestCaptureDigestTakenBeforeOverwrite(t *testing.T) {
	records := make(chanRecorder, 1)
	h := newHarness(t, func(o *Options) { o.Capture.Recorder = records })
	h.connect()
	req := startCapture(t, h)
	h.emit(sdl.AudioPassThruData{Data: bytes.Repeat([]byte{0x10, 0x20}, 800)})
	h.emit(aptResponse(req.CorrelationID, sdl.ResultSuccess))

	wavPath := h.ctrl.AudioPassThru().WAVPath()
	want, err := audio.FileDigest(wavPath)
	if err != nil {
		t.Fatalf("FileDigest: %v", err)
	}
	// Whatever happens to the file afterwards must not change the record
	if err := os.WriteFile(wavPath, []byte("next capture"), 0o644); err != nil {
		t.Fatalf("overwriting wav: %v", err)
	}

	select {
	case rec := <-records:
		if rec.Digest != want {
			t.Errorf("digest: got %q, want %q", rec.Digest, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("capture was not recorded")
	}
}

func TestCaptureIgnoresMismatchedResponse(t *testing.T) {
	h := newHarness(t)
	p := h.connect()
	req := startCapture(t, h)
	h.emit(sdl.AudioPassThruData{Data: []byte{1, 2, 3, 4}})

	h.emit(aptResponse(req.CorrelationID+100, sdl.ResultSuccess))

	apt := h.ctrl.AudioPassThru()
	if !apt.Pending() {
		t.Fatal("a response for another request must not end the capture")
	}
	if len(h.player.played) != 0 || len(p.sentOf(sdl.FuncSpeak)) != 0 {
		t.Error("a response for another request must not play anything")
	}

	h.emit(sdl.AudioPassThruData{Data: []byte{5, 6}})
	h.emit(aptResponse(req.CorrelationID, sdl.ResultSuccess))

	if apt.Pending() {
		t.Error("the matching response should end the capture")
	}
	if len(h.player.played) != 1 {
		t.Errorf("expected one playback, got %v", h.player.played)
	}
	if apt.BytesCaptured() != 6 {
		t.Errorf("chunks after the stray response should still be kept, got %d bytes", apt.BytesCaptured())
	}
}

func TestCaptureWriteErrorDiscards(t *testing.T) {
	h := newHarness(t)
	p := h.connect()
	req := startCapture(t, h)
	h.emit(sdl.AudioPassThruData{Data: []byte{1, 2, 3, 4}})

	// Pull the file out from under the pipeline so the next write fails
	apt := h.ctrl.AudioPassThru()
	if err := apt.file.Close(); err != nil {
		t.Fatalf("closing raw capture: %v", err)
	}
	h.emit(sdl.AudioPassThruData{Data: []byte{5, 6, 7, 8}})
	h.emit(sdl.AudioPassThruData{Data: []byte{9, 10}})

	h.emit(aptResponse(req.CorrelationID, sdl.ResultSuccess))

	if fileExists(apt.RawPath()) || fileExists(apt.WAVPath()) {
		t.Error("a capture with a gap should leave no files")
	}
	if len(h.player.played) != 0 || len(p.sentOf(sdl.FuncSpeak)) != 0 {
		t.Error("a capture with a gap must not be played back")
	}
	if apt.Pending() {
		t.Error("capture should be finished")
	}

	// The next cycle starts clean
	req = startCapture(t, h)
	h.emit(sdl.AudioPassThruData{Data: []byte{1, 2}})
	h.emit(aptResponse(req.CorrelationID, sdl.ResultSuccess))
	if len(h.player.played) != 1 {
		t.Errorf("next capture should play back, got %v", h.player.played)
	}
}

func TestCaptureOpenErrorDiscards(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, func(o *Options) { o.Capture.Dir = dir + "/missing" })
	h.connect()
	req := startCapture(t, h)
	h.emit(sdl.AudioPassThruData{Data: []byte{1, 2, 3, 4}})
	h.emit(aptResponse(req.CorrelationID, sdl.ResultSuccess))

	if len(h.player.played) != 0 {
		t.Error("nothing was stored, nothing should play")
	}
	if h.ctrl.AudioPassThru().Pending() {
		t.Error("capture should be finished")
	}
}
