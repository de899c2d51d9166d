package sdl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// MaxFrameSize bounds a single netstring payload. Audio chunks are the
// largest frames; anything bigger than this is a corrupt length prefix.
const MaxFrameSize = 4 << 20

var ErrFrameTooLarge = errors.New("netstring frame too large")

// NetstringEncoder encodes data into netstring format
type NetstringEncoder struct {
	w io.Writer
}

// NewNetstringEncoder creates a new netstring encoder
func NewNetstringEncoder(w io.Writer) *NetstringEncoder {
	return &NetstringEncoder{w: w}
}

// Encode writes data as <length>:<data>, in a single Write so frames from
// concurrent writers never interleave when the writer is already serialised.
func (e *NetstringEncoder) Encode(data []byte) error {
	frame := make([]byte, 0, len(data)+12)
	frame = strconv.AppendInt(frame, int64(len(data)), 10)
	frame = append(frame, ':')
	frame = append(frame, data...)
	frame = append(frame, ',')
	_, err := e.w.Write(frame)
	return err
}

// NetstringDecoder decodes netstring-framed data from a stream
type NetstringDecoder struct {
	r   *bufio.Reader
	max int
}

// NewNetstringDecoder creates a new netstring decoder
func NewNetstringDecoder(r io.Reader) *NetstringDecoder {
	return &NetstringDecoder{r: bufio.NewReaderSize(r, 4096), max: MaxFrameSize}
}

// Decode reads the next netstring and returns its payload
func (d *NetstringDecoder) Decode() ([]byte, error) {
	length := 0
	digits := 0
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == ':' {
			break
		}
		if b < '0' || b > '9' {
			return nil, fmt.Errorf("netstring: invalid length byte %q", b)
		}
		length = length*10 + int(b-'0')
		digits++
		if length > d.max {
			return nil, ErrFrameTooLarge
		}
	}
	if digits == 0 {
		return nil, errors.New("netstring: empty length prefix")
	}

	buf := make([]byte, length+1)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, err
	}
	if buf[length] != ',' {
		return nil, errors.New("netstring: missing trailing comma")
	}
	return buf[:length], nil
}
