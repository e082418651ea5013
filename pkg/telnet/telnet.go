// Package telnet splits a MUD server stream into text-line and
// subnegotiation frames and answers option negotiation.
package telnet

import (
	"bytes"
	"fmt"
)

// Commands.
const (
	SE   byte = 240
	NOP  byte = 241
	GA   byte = 249
	SB   byte = 250
	WILL byte = 251
	WONT byte = 252
	DO   byte = 253
	DONT byte = 254
	IAC  byte = 255
	EOR  byte = 239
)

// Options.
const (
	OptEcho      byte = 1
	OptSGA       byte = 3
	OptTType     byte = 24
	OptEOR       byte = 25
	OptNAWS      byte = 31
	OptCompress2 byte = 86
	OptGMCP      byte = 201
)

// Escape doubles every IAC byte so p can travel as data.
func Escape(p []byte) []byte {
	n := bytes.Count(p, []byte{IAC})
	if n == 0 {
		return p
	}
	out := make([]byte, 0, len(p)+n)
	for _, b := range p {
		out = append(out, b)
		if b == IAC {
			out = append(out, IAC)
		}
	}
	return out
}

// Negotiation returns the three-byte IAC cmd opt sequence.
func Negotiation(cmd, opt byte) []byte {
	return []byte{IAC, cmd, opt}
}

func commandName(b byte) string {
	switch b {
	case WILL:
		return "WILL"
	case WONT:
		return "WONT"
	case DO:
		return "DO"
	case DONT:
		return "DONT"
	}
	return fmt.Sprintf("CMD(%d)", b)
}
