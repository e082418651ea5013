package client

import (
	"fmt"

	"github.com/go-mudlib/client/pkg/telnet"
	"golang.org/x/text/encoding"
)

// Encode offers cmd to the encoders registered for its tag; the first one to
// claim it wins. Unclaimed text-shaped commands are sent as a line of text
// in the session charset. Anything else has no wire form and ok is false.
func (r *Registry) Encode(s *Session, cmd *Command) (out []byte, ok bool) {
	for _, e := range r.encoders[cmd.Type] {
		b, claimed, err := encodeSafely(e, s, cmd)
		if err != nil {
			r.log.Error().Err(err).Stringer("command", cmd.Type).Msg("encoder failed")
			continue
		}
		if claimed {
			return b, true
		}
	}
	text, isText := cmd.Text()
	if !isText {
		return nil, false
	}
	var charset encoding.Encoding
	if s != nil {
		charset = s.charset
	}
	return EncodeLine(charset, text), true
}

// EncodeLine converts text to the charset, escapes IAC and appends CRLF.
// Characters the charset cannot represent are replaced.
func EncodeLine(charset encoding.Encoding, text string) []byte {
	if charset == nil {
		charset = encoding.Nop
	}
	b, err := encoding.ReplaceUnsupported(charset.NewEncoder()).Bytes([]byte(text))
	if err != nil {
		b = []byte(text)
	}
	b = telnet.Escape(b)
	return append(b, '\r', '\n')
}

func encodeSafely(e Encoder, s *Session, cmd *Command) (b []byte, claimed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("encoder panic: %v", r)
		}
	}()
	b, claimed = e.Encode(s, cmd)
	return b, claimed, nil
}
