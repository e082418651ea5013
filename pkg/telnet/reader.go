package telnet

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-mudlib/client/pkg/protocol"
	"github.com/klauspost/compress/zlib"
	"github.com/rs/zerolog"
)

// Sink receives frames in chunks. client.Session implements it.
type Sink interface {
	Feed(tag protocol.MessageType, data []byte, offset, count int, complete bool) error
}

type readerState int

const (
	stateData readerState = iota
	stateIAC
	stateNegotiate
	stateSubOption
	stateSub
	stateSubIAC
)

// Reader turns a raw server stream into frames for a Sink. Plain text
// becomes MessageText frames completed at a newline or at IAC GA/EOR.
// Subnegotiation blocks of accepted options become frames tagged with the
// option number. Chunks are handed over at the end of every read, so large
// blocks never wait for their terminator in the reader.
type Reader struct {
	raw    *bufio.Reader
	src    io.Reader
	reply  io.Writer
	sink   Sink
	accept map[byte]bool
	log    zerolog.Logger

	state   readerState
	negCmd  byte
	subOpt  byte
	line    []byte
	lineOut bool // a partial line has already been handed to the sink
	sub     []byte
	zlibbed bool
}

// NewReader reads from src and writes negotiation replies to reply. Only
// the accept options are agreed to and forwarded.
func NewReader(src io.Reader, reply io.Writer, sink Sink, log zerolog.Logger, accept ...byte) *Reader {
	raw := bufio.NewReader(src)
	r := &Reader{
		raw:    raw,
		src:    raw,
		reply:  reply,
		sink:   sink,
		accept: make(map[byte]bool, len(accept)),
		log:    log.With().Str("component", "telnet").Logger(),
	}
	for _, o := range accept {
		r.accept[o] = true
	}
	return r
}

// Compressed reports whether MCCP is in effect.
func (r *Reader) Compressed() bool { return r.zlibbed }

// Run reads until the stream ends or the sink refuses a frame. A clean end
// of stream returns nil.
func (r *Reader) Run() error {
	buf := make([]byte, 4096)
	for {
		n, err := r.src.Read(buf)
		if n > 0 {
			if perr := r.process(buf[:n]); perr != nil {
				return perr
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if r.zlibbed {
				r.log.Debug().Msg("compressed stream ended")
				r.zlibbed = false
				r.src = r.raw
				continue
			}
			return nil
		}
		return err
	}
}

func (r *Reader) process(p []byte) error {
	for i := 0; i < len(p); i++ {
		b := p[i]
		switch r.state {
		case stateData:
			switch b {
			case IAC:
				r.state = stateIAC
			case '\r':
			case '\n':
				if err := r.flushLine(true); err != nil {
					return err
				}
			default:
				r.line = append(r.line, b)
			}
		case stateIAC:
			r.state = stateData
			switch b {
			case IAC:
				r.line = append(r.line, IAC)
			case GA, EOR:
				if len(r.line) > 0 || r.lineOut {
					if err := r.flushLine(true); err != nil {
						return err
					}
				}
			case WILL, WONT, DO, DONT:
				r.negCmd = b
				r.state = stateNegotiate
			case SB:
				r.state = stateSubOption
			}
		case stateNegotiate:
			r.state = stateData
			if err := r.negotiate(r.negCmd, b); err != nil {
				return err
			}
		case stateSubOption:
			r.subOpt = b
			r.sub = r.sub[:0]
			r.state = stateSub
		case stateSub:
			if b == IAC {
				r.state = stateSubIAC
			} else {
				r.sub = append(r.sub, b)
			}
		case stateSubIAC:
			if b == IAC {
				r.sub = append(r.sub, IAC)
				r.state = stateSub
				continue
			}
			if b != SE {
				r.log.Warn().Uint8("option", r.subOpt).Uint8("byte", b).Msg("unterminated subnegotiation")
			}
			r.state = stateData
			if r.subOpt == OptCompress2 && r.accept[OptCompress2] {
				if err := r.flushLine(false); err != nil {
					return err
				}
				return r.startCompression(p[i+1:])
			}
			if err := r.flushSub(true); err != nil {
				return err
			}
		}
	}
	if err := r.flushLine(false); err != nil {
		return err
	}
	if r.state == stateSub || r.state == stateSubIAC {
		return r.flushSub(false)
	}
	return nil
}

func (r *Reader) flushLine(complete bool) error {
	if len(r.line) == 0 && !complete {
		return nil
	}
	err := r.sink.Feed(protocol.MessageText, r.line, 0, len(r.line), complete)
	r.line = r.line[:0]
	r.lineOut = !complete
	return err
}

func (r *Reader) flushSub(complete bool) error {
	if !r.accept[r.subOpt] || r.subOpt == OptCompress2 {
		r.sub = r.sub[:0]
		return nil
	}
	if len(r.sub) == 0 && !complete {
		return nil
	}
	err := r.sink.Feed(protocol.MessageType(r.subOpt), r.sub, 0, len(r.sub), complete)
	r.sub = r.sub[:0]
	return err
}

func (r *Reader) negotiate(cmd, opt byte) error {
	var answer byte
	switch cmd {
	case WILL:
		answer = DONT
		if r.accept[opt] {
			answer = DO
		}
	case DO:
		answer = WONT
	default:
		return nil
	}
	r.log.Debug().Str("recv", commandName(cmd)).Str("send", commandName(answer)).Uint8("option", opt).Msg("negotiate")
	if r.reply == nil {
		return nil
	}
	if _, err := r.reply.Write(Negotiation(answer, opt)); err != nil {
		return fmt.Errorf("telnet: negotiation reply: %w", err)
	}
	return nil
}

// startCompression switches the rest of the stream, starting with rest, to
// zlib. The shared bufio.Reader is a ByteReader, so the inflater never reads
// past the end of the compressed stream.
func (r *Reader) startCompression(rest []byte) error {
	r.raw = bufio.NewReader(io.MultiReader(bytes.NewReader(bytes.Clone(rest)), r.raw))
	zr, err := zlib.NewReader(r.raw)
	if err != nil {
		return fmt.Errorf("telnet: start compression: %w", err)
	}
	r.src = zr
	r.zlibbed = true
	r.log.Debug().Msg("compressed stream started")
	return nil
}
