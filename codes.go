package prmilter

import "fmt"

// Code is a command code sent by the MTA.
type Code byte

const (
	CodeAbort   Code = 'A' // SMFIC_ABORT
	CodeBody    Code = 'B' // SMFIC_BODY
	CodeConn    Code = 'C' // SMFIC_CONNECT
	CodeMacro   Code = 'D' // SMFIC_MACRO
	CodeEOB     Code = 'E' // SMFIC_BODYEOB
	CodeHelo    Code = 'H' // SMFIC_HELO
	CodeHeader  Code = 'L' // SMFIC_HEADER
	CodeMail    Code = 'M' // SMFIC_MAIL
	CodeEOH     Code = 'N' // SMFIC_EOH
	CodeOptNeg  Code = 'O' // SMFIC_OPTNEG
	CodeRcpt    Code = 'R' // SMFIC_RCPT
	CodeQuit    Code = 'Q' // SMFIC_QUIT
	CodeData    Code = 'T' // SMFIC_DATA
	CodeUnknown Code = 'U' // SMFIC_UNKNOWN
)

var commandNames = map[Code]string{
	CodeAbort:   "abort",
	CodeBody:    "body",
	CodeConn:    "connect",
	CodeMacro:   "macro",
	CodeEOB:     "end_body",
	CodeHelo:    "helo",
	CodeHeader:  "header",
	CodeMail:    "mail_from",
	CodeEOH:     "end_headers",
	CodeOptNeg:  "opt_neg",
	CodeRcpt:    "rcpt_to",
	CodeQuit:    "quit",
	CodeData:    "data",
	CodeUnknown: "unknown",
}

var commandCodes = invert(commandNames)

// Name returns the command name bound to c, or "" if c is not a known
// command.
func (c Code) Name() string {
	return commandNames[c]
}

// Known reports whether c is one of the catalogued command codes.
func (c Code) Known() bool {
	_, ok := commandNames[c]
	return ok
}

func (c Code) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("%#02x", byte(c))
}

// LookupCommand returns the wire code for a command name.
func LookupCommand(name string) (Code, bool) {
	c, ok := commandCodes[name]
	return c, ok
}

// ResponseCode is a response code sent back to the MTA.
type ResponseCode byte

const (
	RespAddRcpt    ResponseCode = '+' // SMFIR_ADDRCPT
	RespDelRcpt    ResponseCode = '-' // SMFIR_DELRCPT
	RespAccept     ResponseCode = 'a' // SMFIR_ACCEPT
	RespReplBody   ResponseCode = 'b' // SMFIR_REPLBODY
	RespContinue   ResponseCode = 'c' // SMFIR_CONTINUE
	RespDiscard    ResponseCode = 'd' // SMFIR_DISCARD
	RespConnFail   ResponseCode = 'f' // SMFIR_CONN_FAIL
	RespAddHeader  ResponseCode = 'h' // SMFIR_ADDHEADER
	RespInsHeader  ResponseCode = 'i' // SMFIR_INSHEADER
	RespChgHeader  ResponseCode = 'm' // SMFIR_CHGHEADER
	RespProgress   ResponseCode = 'p' // SMFIR_PROGRESS
	RespQuarantine ResponseCode = 'q' // SMFIR_QUARANTINE
	RespReject     ResponseCode = 'r' // SMFIR_REJECT
	RespSetSender  ResponseCode = 's'
	RespTempFail   ResponseCode = 't' // SMFIR_TEMPFAIL
	RespReplyCode  ResponseCode = 'y' // SMFIR_REPLYCODE
)

var responseNames = map[ResponseCode]string{
	RespAddRcpt:    "ADDRCPT",
	RespDelRcpt:    "DELRCPT",
	RespAccept:     "ACCEPT",
	RespReplBody:   "REPLBODY",
	RespContinue:   "CONTINUE",
	RespDiscard:    "DISCARD",
	RespConnFail:   "CONNFAIL",
	RespAddHeader:  "ADDHEADER",
	RespInsHeader:  "INSHEADER",
	RespChgHeader:  "CHGHEADER",
	RespProgress:   "PROGRESS",
	RespQuarantine: "QUARANTINE",
	RespReject:     "REJECT",
	RespSetSender:  "SETSENDER",
	RespTempFail:   "TEMPFAIL",
	RespReplyCode:  "REPLYCODE",
}

var responseCodes = invert(responseNames)

// Name returns the response name bound to c, or "" if c is unknown.
func (c ResponseCode) Name() string {
	return responseNames[c]
}

func (c ResponseCode) String() string {
	if name, ok := responseNames[c]; ok {
		return name
	}
	return fmt.Sprintf("%#02x", byte(c))
}

// LookupResponse returns the wire code for a response name such as
// "CONTINUE".
func LookupResponse(name string) (ResponseCode, bool) {
	c, ok := responseCodes[name]
	return c, ok
}

func invert[K comparable, V comparable](m map[K]V) map[V]K {
	out := make(map[V]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// OptAction is the mask of message modifications a filter may request.
type OptAction uint32

const (
	OptAddHeader    OptAction = 0x01 // SMFIF_ADDHDRS
	OptChangeBody   OptAction = 0x02 // SMFIF_CHGBODY
	OptAddRcpt      OptAction = 0x04 // SMFIF_ADDRCPT
	OptRemoveRcpt   OptAction = 0x08 // SMFIF_DELRCPT
	OptChangeHeader OptAction = 0x10 // SMFIF_CHGHDRS
	OptQuarantine   OptAction = 0x20 // SMFIF_QUARANTINE

	// [v6]
	OptChangeFrom OptAction = 0x40 // SMFIF_CHGFROM
)

// OptProtocol is the mask of protocol steps the filter asks the MTA to skip.
// A set bit suppresses the corresponding command.
type OptProtocol uint32

const (
	OptNoConnect  OptProtocol = 0x01 // SMFIP_NOCONNECT
	OptNoHelo     OptProtocol = 0x02 // SMFIP_NOHELO
	OptNoMailFrom OptProtocol = 0x04 // SMFIP_NOMAIL
	OptNoRcptTo   OptProtocol = 0x08 // SMFIP_NORCPT
	OptNoBody     OptProtocol = 0x10 // SMFIP_NOBODY
	OptNoHeaders  OptProtocol = 0x20 // SMFIP_NOHDRS
	OptNoEOH      OptProtocol = 0x40 // SMFIP_NOEOH

	// [v6]
	OptNoHeaderReply OptProtocol = 0x80  // SMFIP_NR_HDR
	OptNoUnknown     OptProtocol = 0x100 // SMFIP_NOUNKNOWN
	OptNoData        OptProtocol = 0x200 // SMFIP_NODATA
)

// ProtoFamily is the address family of the SMTP client in a connect command.
type ProtoFamily byte

const (
	FamilyUnknown ProtoFamily = 'U' // SMFIA_UNKNOWN
	FamilyUnix    ProtoFamily = 'L' // SMFIA_UNIX
	FamilyInet    ProtoFamily = '4' // SMFIA_INET
	FamilyInet6   ProtoFamily = '6' // SMFIA_INET6
)

// Network returns the Go network name for the family ("tcp4", "unix", ...).
func (f ProtoFamily) Network() string {
	switch f {
	case FamilyUnix:
		return "unix"
	case FamilyInet:
		return "tcp4"
	case FamilyInet6:
		return "tcp6"
	default:
		return "unknown"
	}
}

// MaxBodyChunk is the largest body chunk an MTA sends in one frame.
const MaxBodyChunk = 65535
