package main

import (
	"github.com/bongole/prmilter"
	"github.com/rs/zerolog"
)

// bodyRewriter logs every header and replaces the message body at the end
// of the message when a replacement is configured.
type bodyRewriter struct {
	prmilter.BaseFilter

	log         zerolog.Logger
	replacement []byte
}

func newBodyRewriter(log zerolog.Logger, replacement string) prmilter.FilterFunc {
	return func() prmilter.Filter {
		f := &bodyRewriter{log: log}
		if replacement != "" {
			f.replacement = []byte(replacement)
		}
		return f
	}
}

func (f *bodyRewriter) Header(key, value string) (prmilter.Reply, error) {
	f.log.Info().Str("key", key).Str("value", value).Msg("header")
	return f.BaseFilter.Header(key, value)
}

func (f *bodyRewriter) EndBody() (prmilter.Reply, error) {
	f.log.Info().Int("size", len(f.BodyBytes())).Msg("end of body")
	if f.replacement == nil {
		return prmilter.Continue(), nil
	}
	return prmilter.Respond(prmilter.ReplaceBody(f.replacement), prmilter.Continue()), nil
}
