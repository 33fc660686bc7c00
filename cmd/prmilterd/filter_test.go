package main

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bongole/prmilter"
)

func feed(t *testing.T, s *prmilter.Session, frames ...[]byte) {
	t.Helper()
	for _, f := range frames {
		if err := s.Feed(f); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}
}

func TestBodyRewriterReplacesBody(t *testing.T) {
	var logs bytes.Buffer
	log := zerolog.New(&logs)

	var out bytes.Buffer
	s := prmilter.NewSession(&out, newBodyRewriter(log, "hogehoge"), prmilter.DefaultConfig())
	feed(t, s,
		prmilter.EncodeFrame(byte(prmilter.CodeHeader), []byte("Subject\x00hi\x00")),
		prmilter.EncodeFrame(byte(prmilter.CodeBody), []byte("original")),
		prmilter.EncodeFrame(byte(prmilter.CodeEOB), nil),
	)

	frames, rest, err := prmilter.DecodeFrames(out.Bytes(), 0)
	if err != nil || len(rest) != 0 {
		t.Fatalf("decode output: %v, %d trailing bytes", err, len(rest))
	}
	if len(frames) != 4 {
		t.Fatalf("unexpected response count: %d", len(frames))
	}
	if prmilter.ResponseCode(frames[2].Code) != prmilter.RespReplBody || string(frames[2].Data) != "hogehoge" {
		t.Fatalf("unexpected replacement: %c %q", frames[2].Code, frames[2].Data)
	}
	if prmilter.ResponseCode(frames[3].Code) != prmilter.RespContinue {
		t.Fatalf("unexpected final response: %c", frames[3].Code)
	}
	if !bytes.Contains(logs.Bytes(), []byte(`"key":"Subject"`)) {
		t.Fatalf("header not logged: %s", logs.String())
	}

	f := s.Filter().(*bodyRewriter)
	if string(f.BodyBytes()) != "original" {
		t.Fatalf("unexpected accumulated body: %q", f.BodyBytes())
	}
}

func TestBodyRewriterWithoutReplacement(t *testing.T) {
	var out bytes.Buffer
	s := prmilter.NewSession(&out, newBodyRewriter(zerolog.Nop(), ""), prmilter.DefaultConfig())
	feed(t, s, prmilter.EncodeFrame(byte(prmilter.CodeEOB), nil))

	if !bytes.Equal(out.Bytes(), []byte{0, 0, 0, 1, 'c'}) {
		t.Fatalf("unexpected output: % x", out.Bytes())
	}
}
