package client

import (
	"bytes"
	"fmt"
	"slices"
	"time"

	"github.com/go-mudlib/client/pkg/protocol"
	"golang.org/x/text/encoding"
)

// accumulator holds the raw bytes of one frame. They are decoded only when
// the frame completes, so a multi-byte character may straddle chunks.
type accumulator struct {
	buf     bytes.Buffer
	touched time.Time
}

// FrameDecoder reassembles frames delivered in chunks into Messages. It
// keeps at most one accumulator per type tag and is owned by exactly one
// conveyor; it is not safe for concurrent use.
type FrameDecoder struct {
	registry *Registry
	charset  encoding.Encoding
	idle     time.Duration
	now      func() time.Time
	acc      map[protocol.MessageType]*accumulator
}

// NewFrameDecoder creates a decoder resolving tags through reg. A nil
// charset passes bytes through unchanged; idle <= 0 disables expiry.
func NewFrameDecoder(reg *Registry, charset encoding.Encoding, idle time.Duration) *FrameDecoder {
	if charset == nil {
		charset = encoding.Nop
	}
	return &FrameDecoder{
		registry: reg,
		charset:  charset,
		idle:     idle,
		now:      time.Now,
		acc:      make(map[protocol.MessageType]*accumulator),
	}
}

// Feed appends data[offset:offset+count] to the accumulator for tag. When
// complete is set the accumulated bytes are converted from the charset and
// decoded, the accumulator is cleared and the Message is returned with
// ok=true. A decode failure returns a *DecodeError and also clears the
// accumulator.
func (d *FrameDecoder) Feed(tag protocol.MessageType, data []byte, offset, count int, complete bool) (msg Message, ok bool, err error) {
	if offset < 0 || count < 0 || offset > len(data) || count > len(data)-offset {
		return Message{}, false, fmt.Errorf("%w: offset=%d count=%d len=%d", ErrInvalidChunk, offset, count, len(data))
	}
	dec, found := d.registry.Decoder(tag)
	if !found {
		return Message{}, false, fmt.Errorf("%w: %s", ErrUnknownMessageType, tag)
	}

	a := d.acc[tag]
	if a == nil {
		a = &accumulator{}
		d.acc[tag] = a
	}
	a.buf.Write(data[offset : offset+count])
	a.touched = d.now()
	if !complete {
		return Message{}, false, nil
	}

	size := a.buf.Len()
	delete(d.acc, tag)
	text, cerr := d.charset.NewDecoder().Bytes(a.buf.Bytes())
	if cerr != nil {
		return Message{}, false, &DecodeError{Type: tag, Size: size, Err: cerr}
	}
	payload, derr := decodeSafely(dec, string(text))
	if derr != nil {
		return Message{}, false, &DecodeError{Type: tag, Size: size, Err: derr}
	}
	return Message{Type: tag, Payload: payload}, true, nil
}

// Expire discards accumulators untouched for longer than the idle timeout
// and returns one *DecodeError per discarded tag, in tag order.
func (d *FrameDecoder) Expire(now time.Time) []error {
	if d.idle <= 0 || len(d.acc) == 0 {
		return nil
	}
	var stale []protocol.MessageType
	for tag, a := range d.acc {
		if now.Sub(a.touched) > d.idle {
			stale = append(stale, tag)
		}
	}
	slices.Sort(stale)
	errs := make([]error, 0, len(stale))
	for _, tag := range stale {
		size := d.acc[tag].buf.Len()
		delete(d.acc, tag)
		errs = append(errs, &DecodeError{Type: tag, Size: size, Err: ErrAccumulatorIdle})
	}
	return errs
}

// Pending reports whether a block of tag is in flight.
func (d *FrameDecoder) Pending(tag protocol.MessageType) bool {
	_, ok := d.acc[tag]
	return ok
}

// Reset drops every accumulator.
func (d *FrameDecoder) Reset() {
	clear(d.acc)
}

func decodeSafely(dec Decoder, text string) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	return dec.Decode(text)
}
