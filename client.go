package prmilter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-message/textproto"
)

// ClientOptions configures the MTA side of a milter connection.
type ClientOptions struct {
	// Dialer is used to establish new connections to the milter.
	// Set to empty net.Dialer{} if nil.
	Dialer interface {
		Dial(network string, addr string) (net.Conn, error)
	}

	// ReadTimeout and WriteTimeout bound each frame exchange. Zero means no
	// timeout.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ActionMask is the set of modifications the MTA allows.
	ActionMask OptAction
	// ProtocolMask is the set of steps the MTA offers to skip.
	ProtocolMask OptProtocol
}

// Client connects to a milter.
type Client struct {
	opts    ClientOptions
	network string
	address string
}

func NewClient(network, address string) *Client {
	return NewClientWithOptions(network, address, ClientOptions{
		ActionMask: OptAddHeader | OptChangeBody | OptAddRcpt | OptRemoveRcpt |
			OptChangeHeader | OptQuarantine,
		ProtocolMask: OptNoConnect | OptNoHelo | OptNoMailFrom | OptNoRcptTo |
			OptNoBody | OptNoHeaders | OptNoEOH,
	})
}

func NewClientWithOptions(network, address string, opts ClientOptions) *Client {
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{}
	}
	return &Client{
		opts:    opts,
		network: network,
		address: address,
	}
}

// Session dials the milter and negotiates options.
func (c *Client) Session() (*ClientSession, error) {
	conn, err := c.opts.Dialer.Dial(c.network, c.address)
	if err != nil {
		return nil, fmt.Errorf("milter: session create: %w", err)
	}

	s := &ClientSession{
		conn:         conn,
		readTimeout:  c.opts.ReadTimeout,
		writeTimeout: c.opts.WriteTimeout,
	}
	if err := s.negotiate(c.opts.ActionMask, c.opts.ProtocolMask); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (c *Client) Close() error {
	return nil
}

// ClientSession is one MTA connection to a milter.
type ClientSession struct {
	conn         net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration

	// Version is the protocol version announced by the milter.
	Version    uint32
	actionMask OptAction
	protoMask  OptProtocol
}

// ActionMask returns the modifications the milter asked for, limited to
// those the client allows.
func (s *ClientSession) ActionMask() OptAction { return s.actionMask }

// ProtocolMask returns the steps the milter asked to skip.
func (s *ClientSession) ProtocolMask() OptProtocol { return s.protoMask }

func (s *ClientSession) writeFrame(msg *Frame) error {
	if s.writeTimeout != 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	return WriteFrame(s.conn, msg)
}

func (s *ClientSession) readFrame() (*Frame, error) {
	if s.readTimeout != 0 {
		s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		defer s.conn.SetReadDeadline(time.Time{})
	}
	return ReadFrame(s.conn, 0)
}

// negotiate exchanges OPTNEG messages with the milter.
func (s *ClientSession) negotiate(actionMask OptAction, protoMask OptProtocol) error {
	msg := &Frame{
		Code: byte(CodeOptNeg),
		Data: encodeOptNeg(OptNegArgs{
			Version:  ServerProtocolVersion,
			Actions:  actionMask,
			Protocol: protoMask,
		}),
	}
	if err := s.writeFrame(msg); err != nil {
		return fmt.Errorf("milter: negotiate: optneg write: %w", err)
	}
	msg, err := s.readFrame()
	if err != nil {
		return fmt.Errorf("milter: negotiate: optneg read: %w", err)
	}
	if Code(msg.Code) != CodeOptNeg {
		return fmt.Errorf("milter: negotiate: unexpected code: %v", rune(msg.Code))
	}
	milter, err := decodeOptNeg(msg.Data)
	if err != nil {
		return fmt.Errorf("milter: negotiate: %w", err)
	}

	s.Version = milter.Version
	// AND it with our mask in case milter does not do that.
	s.actionMask = actionMask & milter.Actions
	s.protoMask = milter.Protocol
	return nil
}

// Macros sends macro definitions for the command code. kv alternates names
// and values.
func (s *ClientSession) Macros(code Code, kv ...string) error {
	msg := &Frame{
		Code: byte(CodeMacro),
		Data: []byte{byte(code)},
	}
	for _, str := range kv {
		msg.Data = appendCString(msg.Data, str)
	}

	if err := s.writeFrame(msg); err != nil {
		return fmt.Errorf("milter: macros: %w", err)
	}
	return nil
}

func appendUint16(dest []byte, val uint16) []byte {
	dest = append(dest, 0x00, 0x00)
	binary.BigEndian.PutUint16(dest[len(dest)-2:], val)
	return dest
}

// Action is the final verdict of a milter for one protocol step.
type Action struct {
	Code ResponseCode

	// SMTP code if Code == RespReplyCode.
	SMTPCode int
	// Reply text if Code == RespReplyCode.
	SMTPText string
}

func parseAction(msg *Frame) (*Action, error) {
	act := &Action{
		Code: ResponseCode(msg.Code),
	}
	var err error

	switch act.Code {
	case RespAccept, RespContinue, RespDiscard, RespReject, RespTempFail, RespConnFail:
	case RespReplyCode:
		if len(msg.Data) <= 4 {
			return nil, fmt.Errorf("action read: unexpected data length: %v", len(msg.Data))
		}
		act.SMTPCode, err = strconv.Atoi(string(msg.Data[:3]))
		if err != nil {
			return nil, fmt.Errorf("action read: malformed SMTP code: %v", msg.Data[:3])
		}
		// There is 0x20 (' ') in between.
		act.SMTPText = readCString(msg.Data[4:])
	default:
		return nil, fmt.Errorf("action read: unexpected code: %v", act.Code)
	}

	return act, nil
}

func (s *ClientSession) readAction() (*Action, error) {
	for {
		msg, err := s.readFrame()
		if err != nil {
			return nil, fmt.Errorf("action read: %w", err)
		}
		if ResponseCode(msg.Code) == RespProgress {
			continue
		}
		return parseAction(msg)
	}
}

// exchange sends msg and waits for the verdict, unless the milter asked to
// skip the step, in which case Continue is synthesised.
func (s *ClientSession) exchange(skip OptProtocol, msg *Frame) (*Action, error) {
	if skip != 0 && s.protoMask&skip != 0 {
		return &Action{Code: RespContinue}, nil
	}
	if err := s.writeFrame(msg); err != nil {
		return nil, err
	}
	return s.readAction()
}

// Conn sends the connection information to the milter.
//
// It should be called once per milter session (from Session to Close).
func (s *ClientSession) Conn(hostname string, family ProtoFamily, port uint16, addr string) (*Action, error) {
	msg := &Frame{
		Code: byte(CodeConn),
	}
	msg.Data = appendCString(msg.Data, hostname)
	msg.Data = append(msg.Data, byte(family))
	if family != FamilyUnknown {
		msg.Data = appendUint16(msg.Data, port)
		msg.Data = appendCString(msg.Data, addr)
	}

	act, err := s.exchange(OptNoConnect, msg)
	if err != nil {
		return nil, fmt.Errorf("milter: conn: %w", err)
	}
	return act, nil
}

// Helo sends the HELO hostname to the milter.
func (s *ClientSession) Helo(helo string) (*Action, error) {
	act, err := s.exchange(OptNoHelo, &Frame{
		Code: byte(CodeHelo),
		Data: appendCString(nil, helo),
	})
	if err != nil {
		return nil, fmt.Errorf("milter: helo: %w", err)
	}
	return act, nil
}

func envelope(code Code, addr string, esmtpArgs []string) *Frame {
	msg := &Frame{
		Code: byte(code),
	}
	msg.Data = appendCString(msg.Data, "<"+addr+">")
	for _, arg := range esmtpArgs {
		msg.Data = appendCString(msg.Data, arg)
	}
	return msg
}

func (s *ClientSession) Mail(sender string, esmtpArgs []string) (*Action, error) {
	act, err := s.exchange(OptNoMailFrom, envelope(CodeMail, sender, esmtpArgs))
	if err != nil {
		return nil, fmt.Errorf("milter: mail: %w", err)
	}
	return act, nil
}

func (s *ClientSession) Rcpt(rcpt string, esmtpArgs []string) (*Action, error) {
	act, err := s.exchange(OptNoRcptTo, envelope(CodeRcpt, rcpt, esmtpArgs))
	if err != nil {
		return nil, fmt.Errorf("milter: rcpt: %w", err)
	}
	return act, nil
}

// HeaderField sends a single header field to the milter.
//
// HeaderEnd() must be called after the last field.
func (s *ClientSession) HeaderField(key, value string) (*Action, error) {
	msg := &Frame{
		Code: byte(CodeHeader),
	}
	msg.Data = appendCString(msg.Data, key)
	msg.Data = appendCString(msg.Data, value)

	act, err := s.exchange(OptNoHeaders, msg)
	if err != nil {
		return nil, fmt.Errorf("milter: header field: %w", err)
	}
	return act, nil
}

// HeaderEnd send the EOH (End-Of-Header) message to the milter.
//
// No HeaderField calls are allowed after this point.
func (s *ClientSession) HeaderEnd() (*Action, error) {
	act, err := s.exchange(OptNoEOH, &Frame{Code: byte(CodeEOH)})
	if err != nil {
		return nil, fmt.Errorf("milter: header end: %w", err)
	}
	return act, nil
}

// Header sends every field of hdr followed by HeaderEnd. It stops at the
// first verdict other than Continue.
func (s *ClientSession) Header(hdr textproto.Header) (*Action, error) {
	for f := hdr.Fields(); f.Next(); {
		act, err := s.HeaderField(f.Key(), f.Value())
		if err != nil {
			return nil, err
		}
		if act.Code != RespContinue {
			return act, nil
		}
	}
	return s.HeaderEnd()
}

// BodyChunk sends a single body chunk to the milter.
//
// It is callers responsibility to ensure every chunk is not bigger than
// MaxBodyChunk.
func (s *ClientSession) BodyChunk(chunk []byte) (*Action, error) {
	if len(chunk) > MaxBodyChunk {
		return nil, fmt.Errorf("milter: body chunk: too big body chunk: %v", len(chunk))
	}

	act, err := s.exchange(OptNoBody, &Frame{
		Code: byte(CodeBody),
		Data: chunk,
	})
	if err != nil {
		return nil, fmt.Errorf("milter: body chunk: %w", err)
	}
	return act, nil
}

// BodyReadFrom sends r in MaxBodyChunk sized chunks, then ends the message.
func (s *ClientSession) BodyReadFrom(r io.Reader) ([]ModifyAction, *Action, error) {
	buf := make([]byte, MaxBodyChunk)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			act, err := s.BodyChunk(buf[:n])
			if err != nil {
				return nil, nil, err
			}
			if act.Code != RespContinue {
				return nil, act, nil
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("milter: body read: %w", err)
		}
	}
	return s.End()
}

// ModifyAction is a message modification requested at the end of the body.
type ModifyAction struct {
	Code ResponseCode

	// Recipient to add/remove if Code == RespAddRcpt or RespDelRcpt.
	Rcpt string

	// Sender if Code == RespSetSender.
	From string

	// Portion of body to be replaced if Code == RespReplBody.
	Body []byte

	// Index of the header field to be changed if Code = RespChgHeader or
	// RespInsHeader. Index is 1-based and is per value of HeaderName.
	HeaderIndex uint32

	// Header field name and value for the header actions. An empty value
	// with RespChgHeader removes the field.
	HeaderName  string
	HeaderValue string

	// Quarantine reason if Code == RespQuarantine.
	Reason string
}

func parseModifyAct(msg *Frame) (*ModifyAction, error) {
	act := &ModifyAction{
		Code: ResponseCode(msg.Code),
	}

	data := msg.Data
	switch act.Code {
	case RespAddRcpt, RespDelRcpt:
		act.Rcpt = readCString(data)
	case RespSetSender:
		act.From = readCString(data)
	case RespQuarantine:
		act.Reason = readCString(data)
	case RespReplBody:
		act.Body = data
	case RespChgHeader, RespInsHeader:
		if len(data) < 4 {
			return nil, fmt.Errorf("read modify action: missing header index")
		}
		act.HeaderIndex = binary.BigEndian.Uint32(data)
		data = data[4:]
		fallthrough
	case RespAddHeader:
		name, rest, ok := splitCString(data)
		if !ok {
			return nil, fmt.Errorf("read modify action: missing NUL delimiter")
		}
		act.HeaderName = name
		act.HeaderValue = readCString(rest)
	default:
		return nil, fmt.Errorf("read modify action: unexpected message code: %v", act.Code)
	}

	return act, nil
}

func isModifyAct(code ResponseCode) bool {
	switch code {
	case RespAddRcpt, RespDelRcpt, RespReplBody, RespAddHeader, RespChgHeader,
		RespInsHeader, RespQuarantine, RespSetSender:
		return true
	}
	return false
}

func (s *ClientSession) readModifyActs() (modifyActs []ModifyAction, act *Action, err error) {
	for {
		msg, err := s.readFrame()
		if err != nil {
			return nil, nil, fmt.Errorf("action read: %w", err)
		}
		code := ResponseCode(msg.Code)
		if code == RespProgress {
			continue
		}

		if isModifyAct(code) {
			modifyAct, err := parseModifyAct(msg)
			if err != nil {
				return nil, nil, err
			}
			modifyActs = append(modifyActs, *modifyAct)
			continue
		}

		act, err = parseAction(msg)
		if err != nil {
			return nil, nil, err
		}
		return modifyActs, act, nil
	}
}

// End sends the EOB message and collects the modifications requested by the
// milter, followed by its verdict.
func (s *ClientSession) End() ([]ModifyAction, *Action, error) {
	if err := s.writeFrame(&Frame{Code: byte(CodeEOB)}); err != nil {
		return nil, nil, fmt.Errorf("milter: end: %w", err)
	}

	modifyActs, act, err := s.readModifyActs()
	if err != nil {
		return nil, nil, fmt.Errorf("milter: end: %w", err)
	}
	return modifyActs, act, nil
}

// Abort tells the milter to forget the current message. The milter answers
// with a verdict that is read and discarded, so Abort blocks against servers
// configured with SilentAbort.
func (s *ClientSession) Abort() error {
	if err := s.writeFrame(&Frame{Code: byte(CodeAbort)}); err != nil {
		return fmt.Errorf("milter: abort: %w", err)
	}
	if _, err := s.readAction(); err != nil {
		return fmt.Errorf("milter: abort: %w", err)
	}
	return nil
}

// Close sends QUIT and releases the connection.
func (s *ClientSession) Close() error {
	if err := s.writeFrame(&Frame{Code: byte(CodeQuit)}); err != nil {
		s.conn.Close()
		return fmt.Errorf("milter: close: %w", err)
	}
	return s.conn.Close()
}
