package main

import (
	"bufio"
	"flag"
	"os"
	"strings"

	"github.com/emersion/go-message/textproto"
	"github.com/rs/zerolog"

	"github.com/bongole/prmilter"
	"github.com/bongole/prmilter/internal/logging"
)

var log zerolog.Logger

func printAction(step string, act *prmilter.Action) {
	ev := log.Info().Str("step", step).Stringer("action", act.Code)
	if act.Code == prmilter.RespReplyCode {
		ev = ev.Int("smtp_code", act.SMTPCode).Str("smtp_text", act.SMTPText)
	}
	ev.Msg("verdict")
}

func printModifyAction(act prmilter.ModifyAction) {
	ev := log.Info().Stringer("action", act.Code)
	switch act.Code {
	case prmilter.RespAddHeader:
		ev = ev.Str("name", act.HeaderName).Str("value", act.HeaderValue)
	case prmilter.RespInsHeader, prmilter.RespChgHeader:
		ev = ev.Uint32("index", act.HeaderIndex).Str("name", act.HeaderName).Str("value", act.HeaderValue)
	case prmilter.RespSetSender:
		ev = ev.Str("from", act.From)
	case prmilter.RespReplBody:
		ev = ev.Str("body", string(act.Body))
	case prmilter.RespAddRcpt, prmilter.RespDelRcpt:
		ev = ev.Str("rcpt", act.Rcpt)
	case prmilter.RespQuarantine:
		ev = ev.Str("reason", act.Reason)
	}
	ev.Msg("modification")
}

func main() {
	transport := flag.String("transport", "unix", "Transport to use for milter connection, One of 'tcp', 'unix', 'tcp4' or 'tcp6'")
	address := flag.String("address", "", "Transport address, path for 'unix', address:port for 'tcp'")
	hostname := flag.String("hostname", "localhost", "Value to send in CONNECT message")
	family := flag.String("family", string(prmilter.FamilyInet), "Protocol family to send in CONNECT message")
	port := flag.Uint("port", 2525, "Port to send in CONNECT message")
	connAddr := flag.String("conn-addr", "127.0.0.1", "Connection address to send in CONNECT message")
	helo := flag.String("helo", "localhost", "Value to send in HELO message")
	mailFrom := flag.String("from", "foxcpp@example.org", "Value to send in MAIL message")
	rcptTo := flag.String("rcpt", "foxcpp@example.com", "Comma-separated list of values for RCPT messages")
	actionMask := flag.Uint("actions",
		uint(prmilter.OptChangeBody|prmilter.OptChangeFrom|prmilter.OptChangeHeader|
			prmilter.OptAddHeader|prmilter.OptAddRcpt|prmilter.OptRemoveRcpt|prmilter.OptQuarantine),
		"Bitmask value of actions we allow")
	disabledMsgs := flag.Uint("disabled-msgs", 0, "Bitmask of protocol messages the milter may skip")
	flag.Parse()

	log = logging.New("milter-check", os.Stderr, logging.FromEnv(logging.DefaultConfig()))

	c := prmilter.NewClientWithOptions(*transport, *address, prmilter.ClientOptions{
		ActionMask:   prmilter.OptAction(*actionMask),
		ProtocolMask: prmilter.OptProtocol(*disabledMsgs),
	})
	defer c.Close()

	s, err := c.Session()
	if err != nil {
		log.Error().Err(err).Msg("session")
		return
	}
	defer s.Close()

	act, err := s.Conn(*hostname, prmilter.ProtoFamily((*family)[0]), uint16(*port), *connAddr)
	if err != nil {
		log.Error().Err(err).Msg("connect")
		return
	}
	printAction("CONNECT", act)
	if act.Code != prmilter.RespContinue {
		return
	}

	act, err = s.Helo(*helo)
	if err != nil {
		log.Error().Err(err).Msg("helo")
		return
	}
	printAction("HELO", act)
	if act.Code != prmilter.RespContinue {
		return
	}

	act, err = s.Mail(*mailFrom, nil)
	if err != nil {
		log.Error().Err(err).Msg("mail")
		return
	}
	printAction("MAIL", act)
	if act.Code != prmilter.RespContinue {
		return
	}

	for _, rcpt := range strings.Split(*rcptTo, ",") {
		act, err = s.Rcpt(rcpt, nil)
		if err != nil {
			log.Error().Err(err).Msg("rcpt")
			return
		}
		printAction("RCPT", act)
		if act.Code != prmilter.RespContinue {
			return
		}
	}

	bufR := bufio.NewReader(os.Stdin)
	hdr, err := textproto.ReadHeader(bufR)
	if err != nil {
		log.Error().Err(err).Msg("header parse")
		return
	}

	act, err = s.Header(hdr)
	if err != nil {
		log.Error().Err(err).Msg("header")
		return
	}
	printAction("HEADER", act)
	if act.Code != prmilter.RespContinue {
		return
	}

	modifyActs, act, err := s.BodyReadFrom(bufR)
	if err != nil {
		log.Error().Err(err).Msg("body")
		return
	}
	for _, act := range modifyActs {
		printModifyAction(act)
	}
	printAction("EOB", act)
}
