package prmilter

// command binds a command code to its payload decoder and filter handler.
type command struct {
	// implemented reports whether the filter has a handler for the command.
	implemented func(f Filter) bool
	// invoke decodes the payload and calls the handler. It must only be
	// called when implemented returns true.
	invoke func(f Filter, data []byte) (Reply, error)
}

func handler[H any, A any](decode func([]byte) (A, error), call func(H, A) (Reply, error)) command {
	return command{
		implemented: func(f Filter) bool {
			_, ok := f.(H)
			return ok
		},
		invoke: func(f Filter, data []byte) (Reply, error) {
			args, err := decode(data)
			if err != nil {
				return nil, err
			}
			return call(f.(H), args)
		},
	}
}

func noArgs([]byte) (struct{}, error) { return struct{}{}, nil }

// opt_neg and quit are handled by the session itself; unknown has no
// handler and always continues.
var commands = map[Code]command{
	CodeAbort: handler(noArgs, func(h Aborter, _ struct{}) (Reply, error) {
		return h.Abort()
	}),
	CodeBody: handler(decodeBody, func(h BodyHandler, chunk []byte) (Reply, error) {
		return h.Body(chunk)
	}),
	CodeConn: handler(decodeConnect, func(h Connecter, args ConnectArgs) (Reply, error) {
		return h.Connect(args)
	}),
	CodeMacro: handler(decodeMacro, func(h MacroHandler, args MacroArgs) (Reply, error) {
		h.Macro(args)
		return nil, nil
	}),
	CodeEOB: handler(noArgs, func(h EndBodyHandler, _ struct{}) (Reply, error) {
		return h.EndBody()
	}),
	CodeHelo: handler(decodeHelo, func(h HeloHandler, args HeloArgs) (Reply, error) {
		return h.Helo(args.Name)
	}),
	CodeHeader: handler(decodeHeader, func(h HeaderHandler, args HeaderArgs) (Reply, error) {
		return h.Header(args.Key, args.Value)
	}),
	CodeMail: handler(func(data []byte) (EnvelopeArgs, error) {
		return decodeEnvelope(CodeMail, data)
	}, func(h MailFromHandler, args EnvelopeArgs) (Reply, error) {
		return h.MailFrom(args)
	}),
	CodeEOH: handler(noArgs, func(h EndHeadersHandler, _ struct{}) (Reply, error) {
		return h.EndHeaders()
	}),
	CodeRcpt: handler(func(data []byte) (EnvelopeArgs, error) {
		return decodeEnvelope(CodeRcpt, data)
	}, func(h RcptToHandler, args EnvelopeArgs) (Reply, error) {
		return h.RcptTo(args)
	}),
	CodeData: handler(noArgs, func(h DataHandler, _ struct{}) (Reply, error) {
		return h.Data()
	}),
}
