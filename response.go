package prmilter

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Reply is what a filter handler returns: a single Response or an ordered
// Responses list.
type Reply interface {
	responses() []Response
}

// Response is a single response frame sent to the MTA.
type Response struct {
	Code ResponseCode
	Data []byte
}

func (r Response) responses() []Response { return []Response{r} }

// Frame returns the wire frame carrying r.
func (r Response) Frame() *Frame {
	return &Frame{Code: byte(r.Code), Data: r.Data}
}

func (r Response) String() string {
	return fmt.Sprintf("%v %q", r.Code, r.Data)
}

// Responses is an ordered list of responses, sent one frame each.
type Responses []Response

func (rs Responses) responses() []Response { return rs }

// Respond bundles several responses into a single Reply.
func Respond(rs ...Response) Responses {
	return Responses(rs)
}

// flatten normalizes a handler reply into the frames to send. A nil reply
// means continue.
func flatten(r Reply) []Response {
	if r == nil {
		return []Response{Continue()}
	}
	return r.responses()
}

// postfix wants LF lines endings. Using CRLF results in double CR sequences.
func crlfToLF(b []byte) []byte {
	return bytes.ReplaceAll(b, []byte{'\r', '\n'}, []byte{'\n'})
}

func Continue() Response { return Response{Code: RespContinue} }
func Accept() Response   { return Response{Code: RespAccept} }
func Reject() Response   { return Response{Code: RespReject} }
func TempFail() Response { return Response{Code: RespTempFail} }
func Discard() Response  { return Response{Code: RespDiscard} }
func ConnFail() Response { return Response{Code: RespConnFail} }

// Progress asks the MTA to keep waiting for a final answer.
func Progress() Response { return Response{Code: RespProgress} }

// ReplyCode rejects or tempfails with a custom SMTP reply, e.g.
// ReplyCode(550, "5.7.1 Spam detected").
func ReplyCode(code int, text string) (Response, error) {
	if code < 400 || code > 599 {
		return Response{}, fmt.Errorf("milter: reply code: %d is not a 4xx or 5xx code", code)
	}
	return Response{
		Code: RespReplyCode,
		Data: []byte(fmt.Sprintf("%03d %s", code, text) + null),
	}, nil
}

// AddRecipient appends a new envelope recipient for current message
func AddRecipient(r string) Response {
	return Response{Code: RespAddRcpt, Data: []byte(fmt.Sprintf("<%s>", r) + null)}
}

// DeleteRecipient removes an envelope recipient address from message
func DeleteRecipient(r string) Response {
	return Response{Code: RespDelRcpt, Data: []byte(fmt.Sprintf("<%s>", r) + null)}
}

// ReplaceBody substitutes message body with provided body
func ReplaceBody(body []byte) Response {
	return Response{Code: RespReplBody, Data: crlfToLF(body)}
}

// AddHeader appends a new email message header the message
func AddHeader(name, value string) Response {
	var buffer bytes.Buffer
	buffer.WriteString(name + null)
	buffer.Write(crlfToLF([]byte(value)))
	buffer.WriteString(null)
	return Response{Code: RespAddHeader, Data: buffer.Bytes()}
}

// ChangeHeader replaces the header at the specified position with a new one.
// The index is per name and 1-based. An empty value deletes the header.
func ChangeHeader(index int, name, value string) Response {
	return Response{Code: RespChgHeader, Data: indexedHeader(index, name, value)}
}

// InsertHeader inserts the header at the specified position
func InsertHeader(index int, name, value string) Response {
	return Response{Code: RespInsHeader, Data: indexedHeader(index, name, value)}
}

func indexedHeader(index int, name, value string) []byte {
	data := make([]byte, 4, 4+len(name)+len(value)+2)
	binary.BigEndian.PutUint32(data, uint32(index))
	data = appendCString(data, name)
	return appendCString(data, string(crlfToLF([]byte(value))))
}

// Quarantine a message by giving a reason to hold it
func Quarantine(reason string) Response {
	return Response{Code: RespQuarantine, Data: []byte(reason + null)}
}

// SetSender replaces the envelope sender.
func SetSender(from string) Response {
	return Response{Code: RespSetSender, Data: []byte(from + null)}
}
