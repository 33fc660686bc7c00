package prmilter

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrQuit is returned by Feed after the MTA sent quit. The transport
	// should close the connection without writing anything else.
	ErrQuit = errors.New("milter: session quit")

	ErrSessionClosed = errors.New("milter: session closed")
	ErrNotNegotiated = errors.New("milter: command before option negotiation")
	ErrHandlerPanic  = errors.New("milter: filter handler panicked")
)

// Session drives the protocol for one MTA connection. Bytes read from the
// connection are handed to Feed in arrival order; responses are written to
// the writer given to NewSession.
//
// A Session is not safe for concurrent use.
type Session struct {
	id        uuid.UUID
	cfg       Config
	newFilter FilterFunc
	filter    Filter
	w         io.Writer
	log       zerolog.Logger

	buf        []byte
	negotiated bool
	closed     bool
	// err is reported by the first Feed when the initial filter could not
	// be created.
	err error
}

// NewSession creates the session state for a new connection. newFilter is
// called now and again after every abort.
func NewSession(w io.Writer, newFilter FilterFunc, cfg Config) *Session {
	id := uuid.New()
	s := &Session{
		id:        id,
		cfg:       cfg,
		newFilter: newFilter,
		w:         w,
		log:       cfg.Logger.With().Str("session", id.String()).Logger(),
	}
	s.cfg.Metrics.sessionOpened()
	s.log.Debug().Msg("session opened")
	s.filter, s.err = s.makeFilter()
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Filter returns the filter currently receiving callbacks.
func (s *Session) Filter() Filter {
	return s.filter
}

// Feed appends p to the pending input and processes every complete frame.
// Incomplete trailing data is kept for the next call.
//
// Any non-nil error ends the session: ErrQuit after a quit command,
// otherwise a protocol, handler or write failure. The transport should close
// the connection in both cases.
func (s *Session) Feed(p []byte) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.err != nil {
		return s.fail(s.err)
	}

	s.buf = append(s.buf, p...)
	frames, rest, decodeErr := DecodeFrames(s.buf, s.cfg.MaxFrameSize)
	for _, f := range frames {
		if err := s.process(f); err != nil {
			return s.fail(err)
		}
	}
	if decodeErr != nil {
		return s.fail(decodeErr)
	}

	// frames alias s.buf, start over with a fresh buffer
	if len(rest) == 0 {
		s.buf = nil
	} else if len(rest) < len(s.buf) {
		s.buf = append([]byte(nil), rest...)
	}
	return nil
}

// Close releases the session. If the filter implements io.Closer it is
// closed. Close is idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.buf = nil
	s.cfg.Metrics.sessionClosed()
	s.log.Debug().Msg("session closed")
	return closeFilter(s.filter)
}

func closeFilter(f Filter) (err error) {
	c, ok := f.(io.Closer)
	if !ok {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: close: %v", ErrHandlerPanic, r)
		}
	}()
	return c.Close()
}

func (s *Session) makeFilter() (f Filter, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: new filter: %v", ErrHandlerPanic, r)
		}
	}()
	return s.newFilter(), nil
}

func (s *Session) fail(err error) error {
	if errors.Is(err, ErrQuit) {
		s.log.Debug().Msg("quit received")
	} else {
		reason := errorReason(err)
		s.cfg.Metrics.sessionError(reason)
		s.log.Warn().Err(err).Str("reason", reason).Msg("closing session")
	}
	if cerr := s.Close(); cerr != nil {
		s.log.Error().Err(cerr).Msg("filter close failed")
	}
	return err
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrFrameTooLarge), errors.Is(err, ErrEmptyFrame):
		return "frame"
	case errors.Is(err, ErrMalformedPayload):
		return "payload"
	case errors.Is(err, ErrNotNegotiated):
		return "negotiation"
	case errors.Is(err, ErrHandlerPanic):
		return "panic"
	case errors.As(err, new(*writeError)):
		return "write"
	default:
		return "handler"
	}
}

type writeError struct {
	err error
}

func (e *writeError) Error() string { return "milter: write response: " + e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

// process handles one frame.
func (s *Session) process(f Frame) error {
	code := Code(f.Code)
	s.cfg.Metrics.command(code)
	s.log.Debug().Stringer("command", code).Int("len", len(f.Data)).Msg("frame received")

	if code == CodeQuit {
		return ErrQuit
	}

	if code == CodeOptNeg {
		return s.negotiate(f.Data)
	}

	if !s.negotiated {
		if s.cfg.StrictNegotiation {
			return fmt.Errorf("%w: %v", ErrNotNegotiated, code)
		}
		s.log.Warn().Stringer("command", code).Msg("command before option negotiation")
	}

	cmd, ok := commands[code]
	if !ok || !cmd.implemented(s.filter) {
		if code == CodeMacro {
			return nil
		}
		if code == CodeAbort {
			return s.abort(nil)
		}
		return s.send(Continue())
	}

	reply, err := s.invoke(cmd, f.Data)
	if err != nil {
		if errors.Is(err, ErrMalformedPayload) {
			return err
		}
		return fmt.Errorf("milter: %v: %w", code, err)
	}

	switch code {
	case CodeMacro:
		return nil
	case CodeAbort:
		return s.abort(reply)
	}
	return s.send(flatten(reply)...)
}

func (s *Session) invoke(cmd command, data []byte) (reply Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return cmd.invoke(s.filter, data)
}

// abort answers the abort command and replaces the filter, so that the next
// message starts from a clean state.
func (s *Session) abort(reply Reply) error {
	old := s.filter
	s.filter = nil
	if err := closeFilter(old); err != nil {
		if errors.Is(err, ErrHandlerPanic) {
			return err
		}
		s.log.Error().Err(err).Msg("filter close failed")
	}
	f, err := s.makeFilter()
	if err != nil {
		return err
	}
	s.filter = f
	if s.cfg.SilentAbort {
		return nil
	}
	return s.send(flatten(reply)...)
}

func (s *Session) negotiate(data []byte) error {
	peer, err := decodeOptNeg(data)
	if err != nil {
		return err
	}

	var own OptNegArgs
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
			}
		}()
		own, err = negotiation(&s.cfg, s.filter, peer)
	}()
	if err != nil {
		return fmt.Errorf("milter: opt_neg: %w", err)
	}

	if missing := own.Actions &^ peer.Actions; missing != 0 && peer.Actions != 0 {
		s.log.Warn().
			Uint32("requested", uint32(own.Actions)).
			Uint32("offered", uint32(peer.Actions)).
			Msg("MTA does not offer every requested action")
	}
	s.log.Debug().
		Uint32("peer_version", peer.Version).
		Uint32("version", own.Version).
		Uint32("actions", uint32(own.Actions)).
		Uint32("protocol", uint32(own.Protocol)).
		Msg("options negotiated")

	s.negotiated = true
	if _, err := s.w.Write(EncodeFrame(byte(CodeOptNeg), encodeOptNeg(own))); err != nil {
		return &writeError{err}
	}
	s.cfg.Metrics.response(optNegLabel)
	return nil
}

func (s *Session) send(rs ...Response) error {
	for _, r := range rs {
		if _, err := s.w.Write(EncodeFrame(byte(r.Code), r.Data)); err != nil {
			return &writeError{err}
		}
		s.cfg.Metrics.response(r.Code.String())
		s.log.Debug().Stringer("response", r.Code).Msg("response sent")
	}
	return nil
}
