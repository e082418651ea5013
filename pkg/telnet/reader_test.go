package telnet

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/go-mudlib/client/pkg/protocol"
	"github.com/klauspost/compress/zlib"
	"github.com/rs/zerolog"
)

type frame struct {
	tag  protocol.MessageType
	data string
}

type recordingSink struct {
	pending map[protocol.MessageType][]byte
	frames  []frame
	chunks  int
	err     error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{pending: make(map[protocol.MessageType][]byte)}
}

func (s *recordingSink) Feed(tag protocol.MessageType, data []byte, offset, count int, complete bool) error {
	if s.err != nil {
		return s.err
	}
	s.chunks++
	s.pending[tag] = append(s.pending[tag], data[offset:offset+count]...)
	if complete {
		s.frames = append(s.frames, frame{tag: tag, data: string(s.pending[tag])})
		delete(s.pending, tag)
	}
	return nil
}

// chunkedReader returns one chunk per Read call.
type chunkedReader struct {
	chunks [][]byte
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func run(t *testing.T, sink Sink, reply io.Writer, accept []byte, chunks ...[]byte) {
	t.Helper()
	r := NewReader(&chunkedReader{chunks: chunks}, reply, sink, zerolog.Nop(), accept...)
	if err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestReaderLines(t *testing.T) {
	sink := newRecordingSink()
	run(t, sink, nil, nil,
		[]byte("Hello\r\nWor"),
		[]byte("ld\r\n"),
		[]byte("prompt> "), []byte{IAC, GA},
	)
	want := []string{"Hello", "World", "prompt> "}
	if len(sink.frames) != len(want) {
		t.Fatalf("frames = %+v, want %d", sink.frames, len(want))
	}
	for i, w := range want {
		if sink.frames[i].tag != protocol.MessageText || sink.frames[i].data != w {
			t.Errorf("frame %d = %+v, want text %q", i, sink.frames[i], w)
		}
	}
}

func TestReaderEscapedIACInText(t *testing.T) {
	sink := newRecordingSink()
	run(t, sink, nil, nil, []byte{'a', IAC, IAC, 'b', '\n'})
	if len(sink.frames) != 1 || sink.frames[0].data != string([]byte{'a', IAC, 'b'}) {
		t.Fatalf("frames = %+v", sink.frames)
	}
}

func TestReaderSubnegotiationAcrossReads(t *testing.T) {
	sink := newRecordingSink()
	block := "<Monsters><Monster name=\"orc\"/></Monsters>"
	head := append([]byte{IAC, SB, 13}, block[:10]...)
	tail := append([]byte(block[10:]), IAC, SE)
	run(t, sink, nil, []byte{13}, []byte("before\n"), head, tail, []byte("after\n"))

	if len(sink.frames) != 3 {
		t.Fatalf("frames = %+v", sink.frames)
	}
	if sink.frames[1].tag != protocol.MessageRoomMonsters || sink.frames[1].data != block {
		t.Errorf("sub frame = %+v", sink.frames[1])
	}
	if sink.frames[2].data != "after" {
		t.Errorf("last frame = %+v", sink.frames[2])
	}
}

func TestReaderDropsUnacceptedSubnegotiation(t *testing.T) {
	sink := newRecordingSink()
	run(t, sink, nil, nil, []byte{IAC, SB, OptGMCP, 'x', 'y', IAC, SE}, []byte("ok\n"))
	if len(sink.frames) != 1 || sink.frames[0].data != "ok" {
		t.Fatalf("frames = %+v", sink.frames)
	}
}

func TestReaderNegotiation(t *testing.T) {
	var reply bytes.Buffer
	sink := newRecordingSink()
	run(t, sink, &reply, []byte{OptEOR},
		[]byte{IAC, WILL, OptEOR, IAC, WILL, OptEcho, IAC, DO, OptNAWS, IAC, WONT, OptSGA})

	want := []byte{IAC, DO, OptEOR, IAC, DONT, OptEcho, IAC, WONT, OptNAWS}
	if !bytes.Equal(reply.Bytes(), want) {
		t.Fatalf("reply = %v, want %v", reply.Bytes(), want)
	}
}

func TestReaderCompression(t *testing.T) {
	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	if _, err := zw.Write([]byte("squeezed line\r\nsecond\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	stream := []byte("plain\r\n")
	stream = append(stream, IAC, SB, OptCompress2, IAC, SE)
	stream = append(stream, z.Bytes()...)
	stream = append(stream, []byte("tail\r\n")...)

	sink := newRecordingSink()
	run(t, sink, nil, []byte{OptCompress2}, stream[:9], stream[9:])

	var got []string
	for _, f := range sink.frames {
		got = append(got, f.data)
	}
	if strings.Join(got, "|") != "plain|squeezed line|second|tail" {
		t.Fatalf("frames = %q", got)
	}
}

func TestReaderStopsOnSinkError(t *testing.T) {
	sink := newRecordingSink()
	sink.err = errors.New("closed")
	r := NewReader(&chunkedReader{chunks: [][]byte{[]byte("x\n")}}, nil, sink, zerolog.Nop())
	if err := r.Run(); !errors.Is(err, sink.err) {
		t.Fatalf("Run = %v, want sink error", err)
	}
}

func TestEscape(t *testing.T) {
	in := []byte{'a', IAC, 'b'}
	got := Escape(in)
	if !bytes.Equal(got, []byte{'a', IAC, IAC, 'b'}) {
		t.Fatalf("Escape = %v", got)
	}
	plain := []byte("plain")
	if got := Escape(plain); &got[0] != &plain[0] {
		t.Error("Escape copied input without IAC")
	}
}
