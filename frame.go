package prmilter

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameSize bounds the declared length of an incoming frame.
const DefaultMaxFrameSize = 1 << 20

var (
	ErrFrameTooLarge = errors.New("milter: frame exceeds maximum size")
	ErrEmptyFrame    = errors.New("milter: frame without command code")
)

// Frame is a single length-prefixed protocol unit: a command or response
// code followed by its payload.
type Frame struct {
	Code byte
	Data []byte
}

// DecodeFrames extracts every complete frame from buf. The bytes of a
// trailing incomplete frame are returned untouched in rest so that the
// caller can append the next chunk to them.
//
// If maxSize is non-zero, a declared length above it yields ErrFrameTooLarge.
func DecodeFrames(buf []byte, maxSize uint32) (frames []Frame, rest []byte, err error) {
	for len(buf) >= 4 {
		length := binary.BigEndian.Uint32(buf)
		if length == 0 {
			return frames, buf, ErrEmptyFrame
		}
		if maxSize != 0 && length > maxSize {
			return frames, buf, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, maxSize)
		}
		if uint64(len(buf)-4) < uint64(length) {
			break
		}

		data := buf[4 : 4+length]
		frames = append(frames, Frame{
			Code: data[0],
			Data: data[1:],
		})
		buf = buf[4+length:]
	}
	return frames, buf, nil
}

// EncodeFrame returns the wire form of a frame with the given code and data.
func EncodeFrame(code byte, data []byte) []byte {
	out := make([]byte, 4, 5+len(data))
	binary.BigEndian.PutUint32(out, uint32(len(data)+1))
	out = append(out, code)
	return append(out, data...)
}

// ReadFrame reads exactly one frame from r, blocking until it is complete.
func ReadFrame(r io.Reader, maxSize uint32) (*Frame, error) {
	// read packet length
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if maxSize != 0 && length > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, maxSize)
	}

	// read packet data
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}

	return &Frame{
		Code: data[0],
		Data: data[1:],
	}, nil
}

// WriteFrame writes f to w in a single Write call.
func WriteFrame(w io.Writer, f *Frame) error {
	buffer := bufio.NewWriterSize(w, 5+len(f.Data))

	// calculate and write response length
	length := uint32(len(f.Data) + 1)
	if err := binary.Write(buffer, binary.BigEndian, length); err != nil {
		return err
	}

	// write response code
	if err := buffer.WriteByte(f.Code); err != nil {
		return err
	}

	// write response data
	if _, err := buffer.Write(f.Data); err != nil {
		return err
	}

	return buffer.Flush()
}
