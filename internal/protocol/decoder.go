package protocol

import (
	"errors"
	"fmt"
	"io"
)

// Wire encodings
const (
	EncodingHex = "hex"
	EncodingRaw = "raw"
)

var (
	// ErrInvalidHexDigit is returned when the stream contains a character
	// outside [0-9a-fA-F].
	ErrInvalidHexDigit = errors.New("invalid hex digit")

	// ErrOddLength is returned by Finish when the stream ended halfway
	// through a byte. The dangling nibble is discarded.
	ErrOddLength = errors.New("odd number of hex digits")
)

// Decoder turns wire chunks into output bytes.
type Decoder interface {
	io.Writer

	// Finish reports whether the stream ended cleanly. It does not close
	// the underlying writer.
	Finish() error

	// Decoded returns the number of output bytes written so far.
	Decoded() int64
}

// NewDecoder returns the decoder for the named wire encoding
func NewDecoder(encoding string, w io.Writer) (Decoder, error) {
	switch encoding {
	case EncodingHex, "":
		return NewHexDecoder(w), nil
	case EncodingRaw:
		return &rawDecoder{w: w}, nil
	default:
		return nil, fmt.Errorf("unknown wire encoding %q", encoding)
	}
}

// HexDecoder decodes a stream of hex digit pairs. A pair may be split across
// Write calls; the high nibble is carried until its partner arrives.
type HexDecoder struct {
	w        io.Writer
	carry    byte
	hasCarry bool
	read     int64
	decoded  int64
	scratch  []byte
}

// NewHexDecoder creates a hex decoder writing to w
func NewHexDecoder(w io.Writer) *HexDecoder {
	return &HexDecoder{w: w}
}

// Write decodes p and writes the resulting bytes. It returns the number of
// input characters consumed. On an invalid digit the bytes decoded before it
// are still written and the error wraps ErrInvalidHexDigit.
func (d *HexDecoder) Write(p []byte) (int, error) {
	need := (len(p) + 1) / 2
	if cap(d.scratch) < need {
		d.scratch = make([]byte, 0, need)
	}
	out := d.scratch[:0]

	consumed := len(p)
	var decodeErr error
	for i, c := range p {
		v, ok := fromHexChar(c)
		if !ok {
			consumed = i
			d.hasCarry = false
			decodeErr = fmt.Errorf("%w: %q at offset %d", ErrInvalidHexDigit, c, d.read+int64(i))
			break
		}
		if !d.hasCarry {
			d.carry = v
			d.hasCarry = true
			continue
		}
		out = append(out, d.carry<<4|v)
		d.hasCarry = false
	}
	d.read += int64(consumed)

	if len(out) > 0 {
		n, err := d.w.Write(out)
		d.decoded += int64(n)
		if err != nil {
			return consumed, err
		}
	}

	return consumed, decodeErr
}

// Finish implements Decoder
func (d *HexDecoder) Finish() error {
	if d.hasCarry {
		d.hasCarry = false
		return ErrOddLength
	}
	return nil
}

// Decoded implements Decoder
func (d *HexDecoder) Decoded() int64 {
	return d.decoded
}

// Pending reports whether half a byte is waiting for its second digit
func (d *HexDecoder) Pending() bool {
	return d.hasCarry
}

func fromHexChar(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// rawDecoder copies bytes through unchanged
type rawDecoder struct {
	w       io.Writer
	decoded int64
}

func (r *rawDecoder) Write(p []byte) (int, error) {
	n, err := r.w.Write(p)
	r.decoded += int64(n)
	return n, err
}

func (r *rawDecoder) Finish() error { return nil }

func (r *rawDecoder) Decoded() int64 { return r.decoded }
