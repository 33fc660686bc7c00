package prmilter

import (
	"errors"
	"io"
	"net"
	"sync"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("milter: server closed")

// Server is a milter server.
type Server struct {
	// NewFilter creates the filter for each new connection, and again after
	// every aborted message.
	NewFilter FilterFunc

	// Config applies to every session. DefaultConfig is used if nil.
	Config *Config

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
	closed    bool
	wg        sync.WaitGroup
}

func (s *Server) config() Config {
	if s.Config == nil {
		return DefaultConfig()
	}
	return *s.Config
}

// Serve starts the server.
func (s *Server) Serve(l net.Listener) error {
	if !s.track(l) {
		l.Close()
		return ErrServerClosed
	}
	defer s.untrack(l)
	defer l.Close()

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			return err
		}

		if !s.add() {
			conn.Close()
			return ErrServerClosed
		}
		go func() {
			defer s.wg.Done()
			s.ServeConn(conn)
		}()
	}
}

// ServeConn runs a session over conn until the MTA quits, the connection
// fails or the session hits an error. conn is closed on return.
func (s *Server) ServeConn(conn net.Conn) {
	if !s.trackConn(conn) {
		conn.Close()
		return
	}
	defer s.untrackConn(conn)
	defer conn.Close()

	cfg := s.config()
	session := NewSession(conn, s.NewFilter, cfg)
	defer session.Close()

	log := cfg.Logger.With().
		Str("session", session.ID().String()).
		Stringer("remote", conn.RemoteAddr()).
		Logger()
	log.Info().Msg("connection accepted")

	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if ferr := session.Feed(buf[:n]); ferr != nil {
				if !errors.Is(ferr, ErrQuit) {
					log.Error().Err(ferr).Msg("session aborted")
				}
				return
			}
		}
		if err != nil {
			if err != io.EOF && !s.isClosed() {
				log.Error().Err(err).Msg("error reading milter command")
			}
			return
		}
	}
}

// Close stops every listener and closes every open connection, then waits
// for the sessions to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	var err error
	for l := range s.listeners {
		if cerr := l.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// add reserves a slot in the wait group unless the server is closed.
func (s *Server) add() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(l net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.listeners == nil {
		s.listeners = make(map[net.Listener]struct{})
	}
	s.listeners[l] = struct{}{}
	return true
}

func (s *Server) untrack(l net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, l)
}

func (s *Server) trackConn(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.conns == nil {
		s.conns = make(map[net.Conn]struct{})
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrackConn(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}
