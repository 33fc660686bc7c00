package prmilter

import (
	"encoding/binary"
)

// optional protocol steps and the skip bit that suppresses each of them
var skippable = []struct {
	implemented func(Filter) bool
	bit         OptProtocol
}{
	{func(f Filter) bool { _, ok := f.(Connecter); return ok }, OptNoConnect},
	{func(f Filter) bool { _, ok := f.(HeloHandler); return ok }, OptNoHelo},
	{func(f Filter) bool { _, ok := f.(MailFromHandler); return ok }, OptNoMailFrom},
	{func(f Filter) bool { _, ok := f.(RcptToHandler); return ok }, OptNoRcptTo},
	{func(f Filter) bool { _, ok := f.(BodyHandler); return ok }, OptNoBody},
	{func(f Filter) bool { _, ok := f.(HeaderHandler); return ok }, OptNoHeaders},
	{func(f Filter) bool { _, ok := f.(EndHeadersHandler); return ok }, OptNoEOH},
}

// unhandledSteps returns the skip bits for every optional step f does not
// handle. Setting a bit disables the step on the MTA side.
func unhandledSteps(f Filter) OptProtocol {
	var mask OptProtocol
	for _, s := range skippable {
		if !s.implemented(f) {
			mask |= s.bit
		}
	}
	return mask
}

// negotiation computes the capabilities the server announces. The peer's
// offer is only consulted by a filter implementing Negotiator.
func negotiation(cfg *Config, f Filter, peer OptNegArgs) (OptNegArgs, error) {
	if n, ok := f.(Negotiator); ok {
		return n.OptNeg(peer)
	}

	own := OptNegArgs{
		Version:  cfg.Version,
		Actions:  cfg.Actions,
		Protocol: cfg.Protocol,
	}
	if own.Version == 0 {
		own.Version = ServerProtocolVersion
	}
	if cfg.SkipUnhandled {
		own.Protocol |= unhandledSteps(f)
	}
	return own, nil
}

func encodeOptNeg(args OptNegArgs) []byte {
	data := make([]byte, 12)
	binary.BigEndian.PutUint32(data[0:4], args.Version)
	binary.BigEndian.PutUint32(data[4:8], uint32(args.Actions))
	binary.BigEndian.PutUint32(data[8:12], uint32(args.Protocol))
	return data
}
