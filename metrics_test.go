package prmilter

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	cfg := DefaultConfig()
	cfg.Metrics = m
	s, _ := newTestSession(&recorder{}, cfg)
	if got := testutil.ToFloat64(m.sessions); got != 1 {
		t.Fatal("Wrong active sessions:", got)
	}

	var stream []byte
	stream = append(stream, optNegFrame(2, 0, 0)...)
	stream = append(stream, frame(CodeHelo, "mx\x00")...)
	stream = append(stream, frame(CodeMacro, "Hj\x00mx\x00")...)
	stream = append(stream, frame(CodeHeader, "broken")...)
	s.Feed(stream)

	if got := testutil.ToFloat64(m.commands.WithLabelValues("helo")); got != 1 {
		t.Fatal("Wrong helo count:", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues("macro")); got != 1 {
		t.Fatal("Wrong macro count:", got)
	}
	if got := testutil.ToFloat64(m.responses.WithLabelValues("CONTINUE")); got != 1 {
		t.Fatal("Wrong continue count:", got)
	}
	if got := testutil.ToFloat64(m.responses.WithLabelValues("OPTNEG")); got != 1 {
		t.Fatal("Wrong negotiation count:", got)
	}
	if got := testutil.ToFloat64(m.protocolErrors.WithLabelValues("payload")); got != 1 {
		t.Fatal("Wrong payload error count:", got)
	}
	if got := testutil.ToFloat64(m.sessions); got != 0 {
		t.Fatal("Session still counted as active:", got)
	}
}

func TestMetricsNil(t *testing.T) {
	var m *Metrics
	m.command(CodeHelo)
	m.response("CONTINUE")
	m.sessionError("frame")
	m.sessionOpened()
	m.sessionClosed()
}
