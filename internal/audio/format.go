// Package audio describes the raw pass-through audio format and turns captured
// PCM into a playable WAV file.
package audio

import "time"

// Format is a raw PCM layout the head unit can stream
type Format int

const (
	// L16Mono16K is 16-bit little-endian mono at 16 kHz, the pass-through default
	L16Mono16K Format = iota
	// L16Mono8K is 16-bit little-endian mono at 8 kHz
	L16Mono8K
	// L16Mono22K is 16-bit little-endian mono at 22.05 kHz
	L16Mono22K
)

// SampleRate returns the sample rate in Hz
func (f Format) SampleRate() int {
	switch f {
	case L16Mono8K:
		return 8000
	case L16Mono22K:
		return 22050
	default:
		return 16000
	}
}

// Channels returns the channel count
func (f Format) Channels() int { return 1 }

// Depth returns the bits per sample
func (f Format) Depth() int { return 16 }

// BytesRate returns bytes per second of audio
func (f Format) BytesRate() int {
	return f.SampleRate() * f.Channels() * f.Depth() / 8
}

// Duration returns how long n bytes of audio play for
func (f Format) Duration(n int64) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(f.BytesRate())
}

// SamplingRateParam is the head unit's name for the sample rate
func (f Format) SamplingRateParam() string {
	switch f {
	case L16Mono8K:
		return "8KHZ"
	case L16Mono22K:
		return "22KHZ"
	default:
		return "16KHZ"
	}
}

func (f Format) String() string {
	switch f {
	case L16Mono8K:
		return "audio/L16; rate=8000; channels=1"
	case L16Mono22K:
		return "audio/L16; rate=22050; channels=1"
	default:
		return "audio/L16; rate=16000; channels=1"
	}
}
