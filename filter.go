package prmilter

import (
	"github.com/emersion/go-message/textproto"
)

// Filter is a per-connection filter implementation. It may implement any
// subset of the handler interfaces below; a command whose handler is missing
// is answered with Continue (or nothing, for macros).
//
// A Filter value holds the state of one connection and is never shared
// between connections.
type Filter interface{}

// FilterFunc creates the Filter for a new connection or message.
type FilterFunc func() Filter

// Negotiator overrides the capabilities announced in reply to opt_neg.
type Negotiator interface {
	OptNeg(peer OptNegArgs) (OptNegArgs, error)
}

// MacroHandler receives macro definitions. Macros are never answered.
type MacroHandler interface {
	Macro(args MacroArgs)
}

// Connecter is called with the SMTP connection data. Suppress with
// OptNoConnect.
type Connecter interface {
	Connect(args ConnectArgs) (Reply, error)
}

// HeloHandler is called with the HELO/EHLO name. Suppress with OptNoHelo.
type HeloHandler interface {
	Helo(name string) (Reply, error)
}

// MailFromHandler is called with the envelope sender. Suppress with
// OptNoMailFrom.
type MailFromHandler interface {
	MailFrom(args EnvelopeArgs) (Reply, error)
}

// RcptToHandler is called once per envelope recipient. Suppress with
// OptNoRcptTo.
type RcptToHandler interface {
	RcptTo(args EnvelopeArgs) (Reply, error)
}

// DataHandler is called when the SMTP client sends DATA.
type DataHandler interface {
	Data() (Reply, error)
}

// HeaderHandler is called once for each header in incoming message.
// Suppress with OptNoHeaders.
type HeaderHandler interface {
	Header(key, value string) (Reply, error)
}

// EndHeadersHandler is called when all message headers have been
// processed. Suppress with OptNoEOH.
type EndHeadersHandler interface {
	EndHeaders() (Reply, error)
}

// BodyHandler is called for each body chunk (up to MaxBodyChunk bytes, NUL
// bytes removed). Suppress with OptNoBody.
type BodyHandler interface {
	Body(chunk []byte) (Reply, error)
}

// EndBodyHandler is called at the end of each message. Message
// modifications must be returned from here.
type EndBodyHandler interface {
	EndBody() (Reply, error)
}

// Aborter is called when the MTA abandons the current message. The filter
// is replaced by a fresh one afterwards.
type Aborter interface {
	Abort() (Reply, error)
}

// BaseFilter collects macros, headers and body chunks and answers every
// step with Continue. Concrete filters embed it and override the steps they
// care about.
type BaseFilter struct {
	Macros  map[string]string
	Headers textproto.Header

	body []byte
}

var (
	_ MacroHandler  = (*BaseFilter)(nil)
	_ HeaderHandler = (*BaseFilter)(nil)
	_ BodyHandler   = (*BaseFilter)(nil)
)

func (f *BaseFilter) Macro(args MacroArgs) {
	if f.Macros == nil {
		f.Macros = make(map[string]string)
	}
	for k, v := range args.Pairs() {
		f.Macros[k] = v
	}
}

func (f *BaseFilter) Header(key, value string) (Reply, error) {
	f.Headers.Add(key, value)
	return Continue(), nil
}

func (f *BaseFilter) Body(chunk []byte) (Reply, error) {
	f.body = append(f.body, chunk...)
	return Continue(), nil
}

// BodyBytes returns the body accumulated so far.
func (f *BaseFilter) BodyBytes() []byte {
	return f.body
}
