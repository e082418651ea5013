package client

import (
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-mudlib/client/pkg/protocol"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
)

type OutputKind int

const (
	OutputLine OutputKind = iota
	OutputInfo
	OutputError
)

// OutputEvent is one line for the session's visible stream.
type OutputEvent struct {
	SessionID string
	Kind      OutputKind
	Text      string
	Time      time.Time
}

// Session is one independent connection context with its own conveyor,
// variables and history.
type Session struct {
	id      string
	name    string
	charset encoding.Encoding
	log     zerolog.Logger
	mux     *Multiplexer

	conveyor *Conveyor

	mu           sync.RWMutex
	vars         map[string]string
	history      []string
	historyLimit int

	focused  atomic.Bool
	output   chan OutputEvent
	outbound chan []byte
	done     chan struct{}

	droppedOutput   atomic.Int64
	droppedOutbound atomic.Int64
	droppedWork     atomic.Int64
}

func newSession(id, name string, reg *Registry, cfg Config, log zerolog.Logger, mux *Multiplexer) *Session {
	s := &Session{
		id:           id,
		name:         name,
		charset:      cfg.Charset,
		log:          log.With().Str("session", id).Str("name", name).Logger(),
		mux:          mux,
		vars:         make(map[string]string),
		historyLimit: cfg.HistoryLimit,
		output:       make(chan OutputEvent, cfg.OutputBuffer),
		outbound:     make(chan []byte, cfg.OutboundBuffer),
		done:         make(chan struct{}),
	}
	s.conveyor = newConveyor(s, reg, NewFrameDecoder(reg, cfg.Charset, cfg.AccumulatorIdleTimeout), cfg.QueueLimit)
	return s
}

func (s *Session) ID() string                  { return s.id }
func (s *Session) Name() string                { return s.name }
func (s *Session) Logger() zerolog.Logger      { return s.log }
func (s *Session) Charset() encoding.Encoding  { return s.charset }
func (s *Session) Focused() bool               { return s.focused.Load() }
func (s *Session) Multiplexer() *Multiplexer   { return s.mux }
func (s *Session) Output() <-chan OutputEvent  { return s.output }
func (s *Session) Outbound() <-chan []byte     { return s.outbound }
func (s *Session) Done() <-chan struct{}       { return s.done }
func (s *Session) DroppedOutput() int64        { return s.droppedOutput.Load() }
func (s *Session) DroppedOutbound() int64      { return s.droppedOutbound.Load() }
func (s *Session) DroppedWork() int64          { return s.droppedWork.Load() }
func (s *Session) Decoder() *FrameDecoder      { return s.conveyor.decoder }
func (s *Session) String() string              { return s.name + "/" + s.id }
func (s *Session) Active() bool                { return s.conveyor.active() }

// Feed hands one chunk of a frame of type tag to the conveyor. Pass
// complete=true with the last chunk.
func (s *Session) Feed(tag protocol.MessageType, data []byte, offset, count int, complete bool) error {
	return s.conveyor.Feed(tag, data, offset, count, complete)
}

// Submit hands a command to the conveyor.
func (s *Session) Submit(cmd *Command) error {
	return s.conveyor.Submit(cmd)
}

// ResetFrames discards partially received frames once the work queued
// before it has run. Transports call it when the stream breaks.
func (s *Session) ResetFrames() error {
	return s.conveyor.reset()
}

// Var returns a scripting variable.
func (s *Session) Var(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

func (s *Session) SetVar(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value
}

func (s *Session) DeleteVar(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, name)
}

// Vars returns a copy of all variables.
func (s *Session) Vars() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.vars)
}

// History returns the input history, oldest first.
func (s *Session) History() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) addHistory(line string) {
	if line == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, line)
	if over := len(s.history) - s.historyLimit; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}

// Print appends an informational line to the visible stream.
func (s *Session) Print(text string) { s.emit(OutputInfo, text) }

func (s *Session) Printf(format string, args ...any) { s.emit(OutputInfo, fmt.Sprintf(format, args...)) }

// Errorf appends an error line to the visible stream.
func (s *Session) Errorf(format string, args ...any) { s.emit(OutputError, fmt.Sprintf(format, args...)) }

// emit never blocks; a full buffer drops the event.
func (s *Session) emit(kind OutputKind, text string) {
	ev := OutputEvent{SessionID: s.id, Kind: kind, Text: text, Time: time.Now()}
	select {
	case s.output <- ev:
	default:
		if s.droppedOutput.Add(1) == 1 {
			s.log.Warn().Msg("output buffer full, dropping lines")
		}
	}
}

// Transmit queues bytes for the connection writer without blocking.
func (s *Session) Transmit(b []byte) bool {
	select {
	case s.outbound <- b:
		return true
	default:
		s.droppedOutbound.Add(1)
		s.log.Warn().Int("bytes", len(b)).Msg("outbound buffer full, dropping command")
		return false
	}
}
