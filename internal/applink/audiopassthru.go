package applink

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/dense-identity/applink/internal/audio"
	"github.com/dense-identity/applink/internal/sdl"
)

var ErrCaptureInProgress = errors.New("audio pass-through capture already in progress")

// Capture file names inside the capture directory
const (
	RawCaptureName = "audio_pass_thru.pcm"
	WAVCaptureName = "audio_pass_thru.wav"
)

const (
	aptMaxDurationMs = 10000
	aptPrompt        = "Initial Prompt"
	aptDisplayText1  = "DisplayText1"
	aptDisplayText2  = "DisplayText2"
	aptPlaybackText  = "playing back what you just said:"

	DefaultAPTMaxRetries = 3
)

// Player plays a finished capture back to the user
type Player interface {
	Play(path string) error
	Stop()
}

// CaptureRecord describes one successful capture cycle
type CaptureRecord struct {
	SessionID     string
	CorrelationID uint64
	Bytes         int64
	Duration      time.Duration
	Retries       int
	WAVPath       string
	Digest        string // hex blake2b-256 of the WAV as played
	FinishedAt    time.Time
}

// CaptureRecorder keeps a history of successful captures
type CaptureRecorder interface {
	Record(ctx context.Context, rec CaptureRecord) error
}

// requestSender allocates a correlation ID, builds the request with it and
// sends it through the live proxy
type requestSender func(build func(id uint64) sdl.Request) (uint64, error)

// AudioPassThru runs one capture cycle at a time: request, chunk
// accumulation into the raw file, then retry, discard or playback depending
// on the completion result. It is only touched from the session timeline.
type AudioPassThru struct {
	rawPath    string
	wavPath    string
	format     audio.Format
	maxRetries int

	send      requestSender
	player    Player
	recorder  CaptureRecorder
	sessionID func() string
	now       func() time.Time

	pending   bool
	pendingID uint64
	retries   int

	file   *os.File
	bytes  int64
	failed bool // a chunk could not be stored; the capture has a gap
}

// AudioPassThruOptions configures the pipeline
type AudioPassThruOptions struct {
	Dir        string
	Format     audio.Format
	MaxRetries int // 0 retries forever
	Player     Player
	Recorder   CaptureRecorder
}

func newAudioPassThru(opts AudioPassThruOptions, send requestSender, sessionID func() string) *AudioPassThru {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	return &AudioPassThru{
		rawPath:    filepath.Join(dir, RawCaptureName),
		wavPath:    filepath.Join(dir, WAVCaptureName),
		format:     opts.Format,
		maxRetries: opts.MaxRetries,
		send:       send,
		player:     opts.Player,
		recorder:   opts.Recorder,
		sessionID:  sessionID,
		now:        time.Now,
	}
}

// RawPath is where streamed chunks accumulate
func (a *AudioPassThru) RawPath() string { return a.rawPath }

// WAVPath is the finished capture, overwritten every cycle
func (a *AudioPassThru) WAVPath() string { return a.wavPath }

// Pending reports whether a capture request is outstanding
func (a *AudioPassThru) Pending() bool { return a.pending }

// BytesCaptured is the size of the current (or last) capture
func (a *AudioPassThru) BytesCaptured() int64 { return a.bytes }

// Start issues a new capture request
func (a *AudioPassThru) Start() error {
	if a.pending {
		return ErrCaptureInProgress
	}
	a.retries = 0
	return a.request()
}

func (a *AudioPassThru) request() error {
	params := sdl.PerformAudioPassThruParams{
		InitialPrompt: sdl.SimpleTTSChunks(aptPrompt),
		DisplayText1:  aptDisplayText1,
		DisplayText2:  aptDisplayText2,
		SamplingRate:  a.format.SamplingRateParam(),
		MaxDuration:   aptMaxDurationMs,
		BitsPerSample: sdl.BitsPerSample16,
		AudioType:     sdl.AudioTypePCM,
	}
	id, err := a.send(func(id uint64) sdl.Request {
		return sdl.NewPerformAudioPassThru(id, params)
	})
	if err != nil {
		return fmt.Errorf("requesting audio pass-through: %w", err)
	}
	a.pending = true
	a.pendingID = id
	a.failed = false
	log.Printf("[APT] Capture requested (corrID=%d, retry=%d)", id, a.retries)
	return nil
}

// OnData appends one streamed chunk to the raw capture file
func (a *AudioPassThru) OnData(data []byte) {
	if len(data) == 0 {
		log.Printf("[APT] Empty audio chunk, ignoring")
		return
	}
	if !a.pending {
		log.Printf("[APT] Audio chunk (%d bytes) with no capture outstanding, ignoring", len(data))
		return
	}
	if a.failed {
		return
	}

	if a.file == nil {
		f, err := os.Create(a.rawPath)
		if err != nil {
			log.Printf("[APT] Opening %s: %v", a.rawPath, err)
			a.failed = true
			return
		}
		a.file = f
		a.bytes = 0
	}

	n, err := a.file.Write(data)
	a.bytes += int64(n)
	if err != nil {
		log.Printf("[APT] Writing chunk: %v, dropping the rest of this capture", err)
		a.failed = true
	}
}

// OnResponse ends the capture cycle
func (a *AudioPassThru) OnResponse(resp sdl.PerformAudioPassThruResponse) {
	if !a.pending {
		log.Printf("[APT] Response (corrID=%d) with no capture outstanding, ignoring", resp.CorrelationID)
		return
	}
	if resp.CorrelationID != a.pendingID {
		log.Printf("[APT] Response corrID=%d does not match outstanding request %d, ignoring", resp.CorrelationID, a.pendingID)
		return
	}
	if a.player != nil {
		a.player.Stop()
	}
	a.closeFile()
	a.pending = false

	switch {
	case resp.ResultCode == sdl.ResultRetry:
		a.discard()
		if a.maxRetries > 0 && a.retries >= a.maxRetries {
			log.Printf("[APT] Head unit asked to retry again, giving up after %d retries", a.retries)
			return
		}
		a.retries++
		if err := a.request(); err != nil {
			log.Printf("[APT] Retry failed: %v", err)
		}

	case resp.ResultCode != sdl.ResultSuccess:
		log.Printf("[APT] Capture failed: %s %s", resp.ResultCode, resp.Info)
		a.discard()

	case a.failed:
		log.Printf("[APT] Capture incomplete after a write error, discarding %d bytes", a.bytes)
		a.discard()

	default:
		a.finish(resp.CorrelationID)
	}
}

// Abort closes and deletes a partial capture without retrying
func (a *AudioPassThru) Abort() {
	if !a.pending && a.file == nil {
		return
	}
	log.Printf("[APT] Aborting capture (%d bytes)", a.bytes)
	a.closeFile()
	a.discard()
	a.pending = false
	a.retries = 0
}

func (a *AudioPassThru) finish(id uint64) {
	if a.bytes == 0 {
		log.Printf("[APT] Capture succeeded with no audio, nothing to play")
		a.discard()
		return
	}

	samples, err := audio.FinalizeWAV(a.rawPath, a.wavPath, a.format)
	if err != nil {
		log.Printf("[APT] Finalizing capture: %v", err)
		return
	}
	duration := a.format.Duration(a.bytes)
	log.Printf("[APT] Captured %d bytes (%d samples, %v) -> %s", a.bytes, samples, duration, a.wavPath)

	if _, err := a.send(func(id uint64) sdl.Request { return sdl.NewSpeak(id, aptPlaybackText) }); err != nil {
		log.Printf("[APT] Failed to send Speak: %v", err)
	}
	// Digest before playback starts and before the next cycle can overwrite
	var digest string
	if a.recorder != nil {
		if digest, err = audio.FileDigest(a.wavPath); err != nil {
			log.Printf("[APT] Digesting capture: %v", err)
		}
	}

	if a.player != nil {
		if err := a.player.Play(a.wavPath); err != nil {
			log.Printf("[APT] Playback failed: %v", err)
		}
	}

	if a.recorder != nil && digest != "" {
		rec := CaptureRecord{
			SessionID:     a.sessionID(),
			CorrelationID: id,
			Bytes:         a.bytes,
			Duration:      duration,
			Retries:       a.retries,
			WAVPath:       a.wavPath,
			Digest:        digest,
			FinishedAt:    a.now(),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.recorder.Record(ctx, rec); err != nil {
				log.Printf("[APT] Recording capture history: %v", err)
			}
		}()
	}
}

func (a *AudioPassThru) closeFile() {
	if a.file == nil {
		return
	}
	if err := a.file.Close(); err != nil {
		log.Printf("[APT] Closing %s: %v", a.rawPath, err)
	}
	a.file = nil
}

func (a *AudioPassThru) discard() {
	if err := os.Remove(a.rawPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[APT] Removing %s: %v", a.rawPath, err)
	}
	a.bytes = 0
	a.failed = false
}
