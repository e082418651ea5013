package client

import (
	"fmt"
	"sync"
	"testing"

	"github.com/go-mudlib/client/internal/testlog"
	"github.com/go-mudlib/client/pkg/protocol"
)

// journal records calls across units so tests can check global order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.entries))
	copy(out, j.entries)
	return out
}

// fakeUnit is a configurable unit.
type fakeUnit struct {
	name  string
	msgs  []protocol.MessageType
	cmds  []protocol.CommandType
	j     *journal
	onMsg func(s *Session, msg Message) error
	onCmd func(s *Session, cmd *Command) error
}

func (p *fakeUnit) Name() string                         { return p.name }
func (p *fakeUnit) MessageTypes() []protocol.MessageType { return p.msgs }
func (p *fakeUnit) CommandTypes() []protocol.CommandType { return p.cmds }

func (p *fakeUnit) HandleMessage(s *Session, msg Message) error {
	if p.j != nil {
		p.j.add("%s:%s:%s", p.name, s.Name(), msg.Type)
	}
	if p.onMsg != nil {
		return p.onMsg(s, msg)
	}
	return nil
}

func (p *fakeUnit) HandleCommand(s *Session, cmd *Command) error {
	if p.j != nil {
		p.j.add("%s:%s:%s", p.name, s.Name(), cmd.Type)
	}
	if p.onCmd != nil {
		return p.onCmd(s, cmd)
	}
	return nil
}

// watcher is a unit that only observes session lifecycle.
type watcher struct {
	name string
	j    *journal
}

func (w *watcher) Name() string                         { return w.name }
func (w *watcher) MessageTypes() []protocol.MessageType { return nil }
func (w *watcher) CommandTypes() []protocol.CommandType { return nil }
func (w *watcher) SessionCreated(s *Session)            { w.j.add("%s:created:%s", w.name, s.Name()) }
func (w *watcher) SessionDestroyed(s *Session)          { w.j.add("%s:destroyed:%s", w.name, s.Name()) }
func (w *watcher) SessionFocused(prev, next *Session) {
	from := "-"
	if prev != nil {
		from = prev.Name()
	}
	w.j.add("%s:focused:%s>%s", w.name, from, next.Name())
}

func newTestRegistry(t *testing.T, units ...Unit) *Registry {
	t.Helper()
	reg := NewRegistry(testlog.Start(t))
	if err := RegisterBuiltins(reg); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	for _, u := range units {
		if err := reg.RegisterUnit(u); err != nil {
			t.Fatalf("RegisterUnit(%s): %v", u.Name(), err)
		}
	}
	return reg
}

func newTestMux(t *testing.T, units ...Unit) *Multiplexer {
	t.Helper()
	cfg := DefaultConfig()
	return NewMultiplexer(newTestRegistry(t, units...), cfg, testlog.Start(t))
}

func mustSession(t *testing.T, m *Multiplexer, name string) *Session {
	t.Helper()
	s, err := m.CreateSession(name)
	if err != nil {
		t.Fatalf("CreateSession(%q): %v", name, err)
	}
	return s
}

func feedAll(t *testing.T, s *Session, tag protocol.MessageType, text string) {
	t.Helper()
	b := []byte(text)
	if err := s.Feed(tag, b, 0, len(b), true); err != nil {
		t.Fatalf("Feed(%s): %v", tag, err)
	}
}

// drainOutput collects everything currently buffered in the output stream.
func drainOutput(s *Session) []OutputEvent {
	var out []OutputEvent
	for {
		select {
		case ev := <-s.Output():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func drainOutbound(s *Session) []string {
	var out []string
	for {
		select {
		case b := <-s.Outbound():
			out = append(out, string(b))
		default:
			return out
		}
	}
}
