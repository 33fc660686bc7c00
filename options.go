package prmilter

import (
	"github.com/rs/zerolog"
)

// ServerProtocolVersion is the protocol version announced in opt_neg
// replies.
const ServerProtocolVersion = 2

// Config controls the behavior of a Session.
type Config struct {
	// Version, Actions and Protocol are announced in reply to opt_neg,
	// whatever the MTA offered.
	Version  uint32
	Actions  OptAction
	Protocol OptProtocol

	// SkipUnhandled adds to Protocol the skip bit of every optional step
	// the filter has no handler for, so the MTA does not send it.
	SkipUnhandled bool

	// MaxFrameSize caps the declared length of incoming frames. Zero
	// disables the check.
	MaxFrameSize uint32

	// StrictNegotiation closes sessions that send any command other than
	// opt_neg before negotiating. Otherwise such commands are logged and
	// processed.
	StrictNegotiation bool

	// SilentAbort suppresses the Continue normally sent after abort.
	SilentAbort bool

	Logger  zerolog.Logger
	Metrics *Metrics
}

// DefaultConfig returns the configuration used when none is supplied: ask
// only for body replacement and skip the steps v2 MTAs never send anyway.
func DefaultConfig() Config {
	return Config{
		Version:      ServerProtocolVersion,
		Actions:      OptChangeBody,
		Protocol:     OptNoUnknown | OptNoData,
		MaxFrameSize: DefaultMaxFrameSize,
		Logger:       zerolog.Nop(),
	}
}
