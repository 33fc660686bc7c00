// Package prmilter implements the filter side of the sendmail/Postfix milter
// protocol.
//
// A Session turns the byte stream of one MTA connection into frames, decodes
// each command and calls the matching handler of a Filter. Handlers are
// optional: a filter implements only the interfaces (HeaderHandler,
// EndBodyHandler, ...) for the steps it cares about and every other command
// is answered with Continue. Server wraps sessions in an accept loop; Client
// speaks the MTA side and is mostly useful for testing filters.
//
//	srv := prmilter.Server{
//		NewFilter: func() prmilter.Filter { return &myFilter{} },
//	}
//	err := srv.Serve(listener)
package prmilter
