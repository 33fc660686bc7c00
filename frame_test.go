package prmilter

import (
	"bytes"
	"errors"
	"math/rand"
	"reflect"
	"testing"
)

func TestEncodeFrame(t *testing.T) {
	got := EncodeFrame(byte(RespContinue), nil)
	if !bytes.Equal(got, []byte{0x00, 0x00, 0x00, 0x01, 0x63}) {
		t.Fatalf("Wrong encoding: % x", got)
	}

	got = EncodeFrame(byte(RespReplBody), []byte("abc"))
	if !bytes.Equal(got, []byte{0x00, 0x00, 0x00, 0x04, 'b', 'a', 'b', 'c'}) {
		t.Fatalf("Wrong encoding: % x", got)
	}
}

func TestDecodeFrames_RoundTrip(t *testing.T) {
	for _, payload := range [][]byte{{}, []byte("x"), bytes.Repeat([]byte{0}, 300), bytes.Repeat([]byte("body"), 20000)} {
		frames, rest, err := DecodeFrames(EncodeFrame(byte(CodeBody), payload), 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(rest) != 0 {
			t.Fatal("Unexpected remainder:", len(rest))
		}
		if len(frames) != 1 || Code(frames[0].Code) != CodeBody || !bytes.Equal(frames[0].Data, payload) {
			t.Fatalf("Wrong frames for payload of %d bytes", len(payload))
		}
	}
}

func TestDecodeFrames_Incomplete(t *testing.T) {
	full := EncodeFrame(byte(CodeHelo), []byte("mx.example.org\x00"))
	for n := 0; n < len(full); n++ {
		frames, rest, err := DecodeFrames(full[:n], 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(frames) != 0 {
			t.Fatalf("Frame emitted from %d of %d bytes", n, len(full))
		}
		if !bytes.Equal(rest, full[:n]) {
			t.Fatalf("Remainder modified at %d bytes", n)
		}
	}

	// one complete frame followed by a partial one
	buf := append(append([]byte{}, full...), full[:6]...)
	frames, rest, err := DecodeFrames(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 1 || !bytes.Equal(rest, full[:6]) {
		t.Fatalf("Wrong split: %d frames, remainder % x", len(frames), rest)
	}
}

func TestDecodeFrames_ChunkIndependence(t *testing.T) {
	var (
		stream   []byte
		expected []Frame
	)
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		data := make([]byte, rnd.Intn(200))
		rnd.Read(data)
		code := byte('A' + rnd.Intn(26))
		stream = append(stream, EncodeFrame(code, data)...)
		expected = append(expected, Frame{Code: code, Data: data})
	}

	whole, rest, err := DecodeFrames(stream, 0)
	if err != nil || len(rest) != 0 {
		t.Fatal("Whole decode failed:", err, len(rest))
	}
	if !reflect.DeepEqual(whole, expected) {
		t.Fatal("Whole decode mismatch")
	}

	for round := 0; round < 20; round++ {
		var (
			buf []byte
			got []Frame
		)
		for i := 0; i < len(stream); {
			n := 1 + rnd.Intn(64)
			if i+n > len(stream) {
				n = len(stream) - i
			}
			buf = append(buf, stream[i:i+n]...)
			i += n

			frames, rest, err := DecodeFrames(buf, 0)
			if err != nil {
				t.Fatal(err)
			}
			for _, f := range frames {
				got = append(got, Frame{Code: f.Code, Data: append([]byte{}, f.Data...)})
			}
			buf = append([]byte{}, rest...)
		}
		if len(buf) != 0 {
			t.Fatal("Bytes left over:", len(buf))
		}
		if !reflect.DeepEqual(got, expected) {
			t.Fatalf("Round %d: chunked decode mismatch", round)
		}
	}
}

func TestDecodeFrames_Limits(t *testing.T) {
	ok := EncodeFrame(byte(CodeHelo), []byte("mx\x00"))
	big := EncodeFrame(byte(CodeBody), make([]byte, 64))

	frames, rest, err := DecodeFrames(append(append([]byte{}, ok...), big...), 32)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatal("Expected ErrFrameTooLarge, got:", err)
	}
	if len(frames) != 1 || !bytes.Equal(rest, big) {
		t.Fatal("Frames before the oversized one must be returned")
	}

	if _, _, err := DecodeFrames([]byte{0, 0, 0, 0, 'x'}, 0); !errors.Is(err, ErrEmptyFrame) {
		t.Fatal("Expected ErrEmptyFrame, got:", err)
	}
}

func TestReadWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, &Frame{Code: byte(CodeHeader), Data: []byte("Subject\x00hi\x00")}); err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(&buf, &Frame{Code: byte(CodeEOH)}); err != nil {
		t.Fatal(err)
	}

	f, err := ReadFrame(&buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if Code(f.Code) != CodeHeader || string(f.Data) != "Subject\x00hi\x00" {
		t.Fatalf("Wrong frame: %+v", f)
	}
	f, err = ReadFrame(&buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if Code(f.Code) != CodeEOH || len(f.Data) != 0 {
		t.Fatalf("Wrong frame: %+v", f)
	}

	buf.Write([]byte{0, 0, 1, 0})
	if _, err := ReadFrame(&buf, 16); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatal("Expected ErrFrameTooLarge, got:", err)
	}
}
