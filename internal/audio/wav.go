package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// samplesPerBlock is how many samples are converted per encoder write
const samplesPerBlock = 4096

// FinalizeWAV wraps the raw little-endian PCM in rawPath into a WAV container
// at wavPath, replacing any previous file. It returns the number of samples
// written. A trailing odd byte is dropped.
func FinalizeWAV(rawPath, wavPath string, f Format) (int, error) {
	in, err := os.Open(rawPath)
	if err != nil {
		return 0, fmt.Errorf("opening raw capture: %w", err)
	}
	defer in.Close()

	out, err := os.Create(wavPath)
	if err != nil {
		return 0, fmt.Errorf("creating wav file: %w", err)
	}

	n, err := EncodeWAV(out, bufio.NewReader(in), f)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing wav file: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(wavPath)
		return 0, err
	}
	return n, nil
}

// EncodeWAV streams raw PCM from r into a WAV container on w
func EncodeWAV(w io.WriteSeeker, r io.Reader, f Format) (int, error) {
	enc := wav.NewEncoder(w, f.SampleRate(), f.Depth(), f.Channels(), wavFormatPCM)

	raw := make([]byte, samplesPerBlock*2)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels(), SampleRate: f.SampleRate()},
		Data:           make([]int, samplesPerBlock),
		SourceBitDepth: f.Depth(),
	}

	total := 0
	for {
		n, err := io.ReadFull(r, raw)
		if n >= 2 {
			count := n / 2
			for i := 0; i < count; i++ {
				buf.Data[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
			}
			buf.Data = buf.Data[:count]
			if werr := enc.Write(buf); werr != nil {
				return total, fmt.Errorf("writing wav samples: %w", werr)
			}
			buf.Data = buf.Data[:samplesPerBlock]
			total += count
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return total, fmt.Errorf("reading raw capture: %w", err)
		}
	}

	if err := enc.Close(); err != nil {
		return total, fmt.Errorf("finishing wav header: %w", err)
	}
	return total, nil
}
