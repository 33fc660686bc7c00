package prmilter

import (
	"bytes"
	"strings"
)

// NULL terminator
const null = "\x00"

// splitCString returns the C style string at the start of data and the bytes
// following its terminator. ok is false if data holds no NUL byte.
func splitCString(data []byte) (s string, rest []byte, ok bool) {
	pos := bytes.IndexByte(data, 0)
	if pos == -1 {
		return string(data), nil, false
	}
	return string(data[:pos]), data[pos+1:], true
}

// readCString reads and returns a C style string from []byte
func readCString(data []byte) string {
	s, _, _ := splitCString(data)
	return s
}

// decodeCStrings splits NUL separated strings into a Go slice, dropping the
// empty strings produced by trailing terminators.
func decodeCStrings(data []byte) []string {
	trimmed := strings.TrimRight(string(data), null)
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, null)
}

// stripNUL removes every NUL byte from data. The result never aliases data.
func stripNUL(data []byte) []byte {
	return bytes.ReplaceAll(data, []byte(null), nil)
}

// appendCString appends a C style string to the buffer and returns it (like append does).
func appendCString(dest []byte, s string) []byte {
	dest = append(dest, s...)
	dest = append(dest, 0x00)
	return dest
}
