package prmilter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedPayload is returned when a command payload is too short or
// lacks a required terminator.
var ErrMalformedPayload = errors.New("milter: malformed payload")

func malformed(c Code, format string, args ...interface{}) error {
	return fmt.Errorf("%w (%v): %s", ErrMalformedPayload, c, fmt.Sprintf(format, args...))
}

// OptNegArgs holds the capabilities announced in an opt_neg command.
type OptNegArgs struct {
	Version  uint32
	Actions  OptAction
	Protocol OptProtocol
}

func decodeOptNeg(data []byte) (OptNegArgs, error) {
	if len(data) < 12 {
		return OptNegArgs{}, malformed(CodeOptNeg, "need 12 bytes, got %d", len(data))
	}
	return OptNegArgs{
		Version:  binary.BigEndian.Uint32(data[0:4]),
		Actions:  OptAction(binary.BigEndian.Uint32(data[4:8])),
		Protocol: OptProtocol(binary.BigEndian.Uint32(data[8:12])),
	}, nil
}

// MacroArgs holds a macro definition. Stage is the command the macros apply
// to and Value the raw remainder of the payload.
type MacroArgs struct {
	Stage Code
	Value string
}

// Pairs decodes Value as NUL separated name/value pairs. A trailing name
// without a value maps to "".
func (m MacroArgs) Pairs() map[string]string {
	pairs := make(map[string]string)
	data := decodeCStrings([]byte(m.Value))
	if len(data)%2 == 1 {
		data = append(data, "")
	}
	for i := 0; i < len(data); i += 2 {
		pairs[data[i]] = data[i+1]
	}
	return pairs
}

func decodeMacro(data []byte) (MacroArgs, error) {
	if len(data) < 1 {
		return MacroArgs{}, malformed(CodeMacro, "missing stage")
	}
	return MacroArgs{
		Stage: Code(data[0]),
		Value: string(data[1:]),
	}, nil
}

// ConnectArgs holds the SMTP client connection data.
type ConnectArgs struct {
	Hostname string
	Family   ProtoFamily
	Port     uint16
	Address  string
}

func decodeConnect(data []byte) (ConnectArgs, error) {
	var args ConnectArgs
	hostname, rest, ok := splitCString(data)
	if !ok {
		return args, malformed(CodeConn, "unterminated hostname")
	}
	args.Hostname = hostname
	if len(rest) < 1 {
		return args, malformed(CodeConn, "missing family")
	}
	args.Family = ProtoFamily(rest[0])
	rest = rest[1:]
	if args.Family == FamilyUnknown {
		return args, nil
	}
	if len(rest) < 2 {
		return args, malformed(CodeConn, "missing port")
	}
	args.Port = binary.BigEndian.Uint16(rest)
	args.Address = readCString(rest[2:])
	return args, nil
}

// HeloArgs is the HELO/EHLO argument.
type HeloArgs struct {
	Name string
}

func decodeHelo(data []byte) (HeloArgs, error) {
	return HeloArgs{Name: strings.TrimSuffix(string(data), null)}, nil
}

// EnvelopeArgs holds a MAIL FROM or RCPT TO address and its ESMTP
// parameters. Address is passed through as sent, angle brackets included.
type EnvelopeArgs struct {
	Address   string
	ESMTPArgs []string
}

// Addr returns Address without the surrounding angle brackets.
func (e EnvelopeArgs) Addr() string {
	return strings.Trim(e.Address, "<>")
}

func decodeEnvelope(c Code, data []byte) (EnvelopeArgs, error) {
	addr, rest, ok := splitCString(data)
	if !ok {
		return EnvelopeArgs{}, malformed(c, "unterminated address")
	}
	return EnvelopeArgs{
		Address:   addr,
		ESMTPArgs: decodeCStrings(rest),
	}, nil
}

// HeaderArgs is a single message header field.
type HeaderArgs struct {
	Key   string
	Value string
}

func decodeHeader(data []byte) (HeaderArgs, error) {
	key, rest, ok := splitCString(data)
	if !ok {
		return HeaderArgs{}, malformed(CodeHeader, "unterminated key")
	}
	return HeaderArgs{
		Key:   key,
		Value: string(stripNUL(rest)),
	}, nil
}

func decodeBody(data []byte) ([]byte, error) {
	return stripNUL(data), nil
}
