package prmilter

import "testing"

func TestCommandCatalog(t *testing.T) {
	expected := map[byte]string{
		'A': "abort", 'B': "body", 'C': "connect", 'D': "macro",
		'E': "end_body", 'H': "helo", 'L': "header", 'M': "mail_from",
		'N': "end_headers", 'O': "opt_neg", 'R': "rcpt_to", 'Q': "quit",
		'T': "data", 'U': "unknown",
	}
	if len(commandNames) != len(expected) {
		t.Fatal("Wrong catalog size:", len(commandNames))
	}
	for b, name := range expected {
		if got := Code(b).Name(); got != name {
			t.Fatalf("Code %c: got %q, want %q", b, got, name)
		}
		code, ok := LookupCommand(name)
		if !ok || code != Code(b) {
			t.Fatalf("LookupCommand(%q) = %c, %v", name, code, ok)
		}
	}
	if Code('Z').Known() {
		t.Fatal("Unexpected known code")
	}
	if Code('Z').String() != "0x5a" {
		t.Fatal("Wrong string for unknown code:", Code('Z').String())
	}
}

func TestResponseCatalog(t *testing.T) {
	expected := map[string]byte{
		"ADDRCPT": '+', "DELRCPT": '-', "ACCEPT": 'a', "REPLBODY": 'b',
		"CONTINUE": 'c', "DISCARD": 'd', "CONNFAIL": 'f', "ADDHEADER": 'h',
		"INSHEADER": 'i', "CHGHEADER": 'm', "PROGRESS": 'p', "QUARANTINE": 'q',
		"REJECT": 'r', "SETSENDER": 's', "TEMPFAIL": 't', "REPLYCODE": 'y',
	}
	if len(responseNames) != len(expected) {
		t.Fatal("Wrong catalog size:", len(responseNames))
	}
	for name, b := range expected {
		code, ok := LookupResponse(name)
		if !ok || byte(code) != b {
			t.Fatalf("LookupResponse(%q) = %c, %v", name, code, ok)
		}
		if ResponseCode(b).Name() != name {
			t.Fatalf("Response %c: got %q", b, ResponseCode(b).Name())
		}
	}
}
