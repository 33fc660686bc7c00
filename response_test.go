package prmilter

import (
	"bytes"
	"testing"
)

func TestResponseConstructors(t *testing.T) {
	cases := []struct {
		resp Response
		code ResponseCode
		data []byte
	}{
		{Continue(), RespContinue, nil},
		{Reject(), RespReject, nil},
		{AddRecipient("a@example.org"), RespAddRcpt, []byte("<a@example.org>\x00")},
		{DeleteRecipient("a@example.org"), RespDelRcpt, []byte("<a@example.org>\x00")},
		{ReplaceBody([]byte("a\r\nb\r\n")), RespReplBody, []byte("a\nb\n")},
		{AddHeader("X-Spam", "yes\r\n no"), RespAddHeader, []byte("X-Spam\x00yes\n no\x00")},
		{ChangeHeader(2, "Subject", "x"), RespChgHeader, []byte("\x00\x00\x00\x02Subject\x00x\x00")},
		{InsertHeader(0, "X-First", ""), RespInsHeader, []byte("\x00\x00\x00\x00X-First\x00\x00")},
		{Quarantine("held"), RespQuarantine, []byte("held\x00")},
		{SetSender("<b@example.org>"), RespSetSender, []byte("<b@example.org>\x00")},
	}
	for _, c := range cases {
		if c.resp.Code != c.code || !bytes.Equal(c.resp.Data, c.data) {
			t.Fatalf("Wrong response %v, want %v %q", c.resp, c.code, c.data)
		}
	}
}

func TestReplyCode(t *testing.T) {
	r, err := ReplyCode(550, "5.7.1 Spam detected")
	if err != nil {
		t.Fatal(err)
	}
	if r.Code != RespReplyCode || string(r.Data) != "550 5.7.1 Spam detected\x00" {
		t.Fatalf("Wrong reply code response: %v", r)
	}
	if _, err := ReplyCode(250, "ok"); err == nil {
		t.Fatal("Expected error for 2xx code")
	}
}

func TestFlatten(t *testing.T) {
	if rs := flatten(nil); len(rs) != 1 || rs[0].Code != RespContinue {
		t.Fatal("nil reply must flatten to continue:", rs)
	}
	if rs := flatten(Accept()); len(rs) != 1 || rs[0].Code != RespAccept {
		t.Fatal("Wrong single reply:", rs)
	}
	rs := flatten(Respond(AddHeader("a", "b"), Quarantine("q"), Continue()))
	if len(rs) != 3 || rs[0].Code != RespAddHeader || rs[2].Code != RespContinue {
		t.Fatal("Wrong reply list:", rs)
	}
	if rs := flatten(Respond()); len(rs) != 0 {
		t.Fatal("Empty list must stay empty:", rs)
	}
}
