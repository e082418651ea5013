package client

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-mudlib/client/pkg/protocol"
	"github.com/rs/zerolog"
)

type conveyorState int

const (
	stateCreated conveyorState = iota
	stateActive
	stateDestroyed
)

type workKind int

const (
	workFeed workKind = iota
	workCommand
	workExpire
	workReset
)

type work struct {
	kind     workKind
	tag      protocol.MessageType
	chunk    []byte
	complete bool
	cmd      *Command
	now      time.Time
}

// Conveyor serializes everything that happens to one session. Feed and
// Submit never block on the conveyor: whichever caller finds it idle drains
// the queue, and calls made meanwhile (including from inside a unit) are
// queued behind the current item and run in order. At most limit items
// wait; beyond that work is refused with ErrQueueFull.
type Conveyor struct {
	session  *Session
	registry *Registry
	decoder  *FrameDecoder
	log      zerolog.Logger
	limit    int

	mu       sync.Mutex
	state    conveyorState
	queue    []work
	draining bool
}

func newConveyor(s *Session, reg *Registry, dec *FrameDecoder, limit int) *Conveyor {
	return &Conveyor{
		session:  s,
		registry: reg,
		decoder:  dec,
		log:      s.log.With().Str("component", "conveyor").Logger(),
		limit:    limit,
	}
}

// Feed queues a chunk of a frame. The chunk is copied, so the caller may
// reuse data as soon as Feed returns.
func (c *Conveyor) Feed(tag protocol.MessageType, data []byte, offset, count int, complete bool) error {
	if offset < 0 || count < 0 || offset > len(data) || count > len(data)-offset {
		return fmt.Errorf("%w: offset=%d count=%d len=%d", ErrInvalidChunk, offset, count, len(data))
	}
	chunk := slices.Clone(data[offset : offset+count])
	return c.enqueue(work{kind: workFeed, tag: tag, chunk: chunk, complete: complete})
}

// Submit queues a command for the command units.
func (c *Conveyor) Submit(cmd *Command) error {
	if cmd == nil {
		return ErrNilCommand
	}
	return c.enqueue(work{kind: workCommand, cmd: cmd})
}

func (c *Conveyor) expire(now time.Time) error {
	return c.enqueue(work{kind: workExpire, now: now})
}

func (c *Conveyor) reset() error {
	return c.enqueue(work{kind: workReset})
}

func (c *Conveyor) active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateActive
}

func (c *Conveyor) activate() {
	c.mu.Lock()
	if c.state == stateCreated {
		c.state = stateActive
	}
	c.mu.Unlock()
}

// close drops anything still queued. Work already running finishes.
func (c *Conveyor) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateDestroyed {
		return
	}
	c.state = stateDestroyed
	if n := len(c.queue); n > 0 {
		c.log.Debug().Int("dropped", n).Msg("queued work dropped on close")
	}
	c.queue = nil
	if !c.draining {
		c.decoder.Reset()
	}
}

func (c *Conveyor) enqueue(w work) error {
	c.mu.Lock()
	switch c.state {
	case stateCreated:
		c.mu.Unlock()
		return ErrSessionNotActive
	case stateDestroyed:
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.limit > 0 && len(c.queue) >= c.limit {
		c.mu.Unlock()
		if c.session.droppedWork.Add(1) == 1 {
			c.log.Error().Int("limit", c.limit).Msg("conveyor queue full, refusing work")
		}
		return ErrQueueFull
	}
	c.queue = append(c.queue, w)
	if c.draining {
		c.mu.Unlock()
		return nil
	}
	c.draining = true
	c.mu.Unlock()

	c.drain()
	return nil
}

func (c *Conveyor) drain() {
	for {
		c.mu.Lock()
		if c.state == stateDestroyed {
			c.draining = false
			c.queue = nil
			c.decoder.Reset()
			c.mu.Unlock()
			return
		}
		if len(c.queue) == 0 {
			c.draining = false
			c.mu.Unlock()
			return
		}
		w := c.queue[0]
		c.queue[0] = work{}
		c.queue = c.queue[1:]
		c.mu.Unlock()

		c.process(w)
	}
}

func (c *Conveyor) process(w work) {
	switch w.kind {
	case workFeed:
		msg, ok, err := c.decoder.Feed(w.tag, w.chunk, 0, len(w.chunk), w.complete)
		if err != nil {
			c.decodeFailed(err)
			return
		}
		if ok {
			msg.SessionID = c.session.id
			c.dispatchMessage(msg)
		}
	case workCommand:
		c.dispatchCommand(w.cmd)
	case workExpire:
		for _, err := range c.decoder.Expire(w.now) {
			c.decodeFailed(err)
		}
	case workReset:
		c.decoder.Reset()
	}
}

func (c *Conveyor) decodeFailed(err error) {
	c.log.Warn().Err(err).Msg("frame dropped")
	c.session.emit(OutputError, err.Error())
}

func (c *Conveyor) dispatchMessage(msg Message) {
	if line, ok := msg.Payload.(protocol.TextLine); ok {
		c.session.emit(OutputLine, line.Raw)
	}
	for _, r := range c.registry.messageUnits[msg.Type] {
		c.invoke(r.unit.Name(), "message", msg.Type.String(), func() error {
			return r.handler.HandleMessage(c.session, msg)
		})
	}
}

func (c *Conveyor) dispatchCommand(cmd *Command) {
	if cmd.Depth > MaxDepth {
		c.log.Warn().Stringer("command", cmd).Int("depth", cmd.Depth).Msg("command recursion limit reached")
		c.session.Errorf("recursion limit reached, %s dropped", c.registry.CommandName(cmd.Type))
		return
	}
	if cmd.Type == protocol.CommandInput && cmd.Origin == OriginUser {
		if text, ok := cmd.Text(); ok {
			c.session.addHistory(text)
		}
	}
	for _, r := range c.registry.commandUnits[cmd.Type] {
		c.invoke(r.unit.Name(), "command", c.registry.CommandName(cmd.Type), func() error {
			return r.handler.HandleCommand(c.session, cmd)
		})
	}
	if cmd.Handled() {
		return
	}
	b, ok := c.registry.Encode(c.session, cmd)
	if !ok {
		if cmd.Type != protocol.CommandTick {
			c.log.Debug().Stringer("command", cmd).Msg("unroutable command dropped")
		}
		return
	}
	c.session.Transmit(b)
}

// invoke runs one unit callback. Errors and panics are contained, logged and
// shown in the session stream; dispatch continues with the next unit.
func (c *Conveyor) invoke(unit, op, tag string, fn func() error) {
	if err := runUnit(unit, op, tag, fn); err != nil {
		c.unitFailed(err)
	}
}

func (c *Conveyor) unitFailed(err *UnitFailure) {
	ev := c.log.Error().Err(err.Err).Str("unit", err.Unit).Str("op", err.Operation)
	if err.Tag != "" {
		ev = ev.Str("tag", err.Tag)
	}
	ev.Bool("panic", err.Panicked).Msg("unit failed")
	c.session.emit(OutputError, err.Error())
}

func runUnit(unit, op, tag string, fn func() error) (failure *UnitFailure) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			failure = &UnitFailure{Unit: unit, Operation: op, Tag: tag, Panicked: true, Err: err}
		}
	}()
	if err := fn(); err != nil {
		return &UnitFailure{Unit: unit, Operation: op, Tag: tag, Err: err}
	}
	return nil
}

// IsSessionGone reports whether err means the session can no longer take work.
func IsSessionGone(err error) bool {
	return errors.Is(err, ErrSessionClosed) || errors.Is(err, ErrSessionNotActive)
}
