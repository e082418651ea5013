// Package roster keeps per-session lists of named rows with timed affects,
// shared by the group and room-monster units.
package roster

import (
	"sync"
	"time"

	"github.com/go-mudlib/client/pkg/client"
	"github.com/go-mudlib/client/pkg/protocol"
)

// TimedAffect counts down from the duration the server reported.
type TimedAffect struct {
	Name      string
	Remaining time.Duration
	Permanent bool
}

// Row is one named entry with its payload and live affects.
type Row[T any] struct {
	Name    string
	Data    T
	Affects []TimedAffect
}

// Expiry names an affect that ran out on a row.
type Expiry struct {
	Row    string
	Affect string
}

// Affects converts server affects, durations in seconds, negative meaning
// permanent.
func Affects(in []protocol.Affect) []TimedAffect {
	if len(in) == 0 {
		return nil
	}
	out := make([]TimedAffect, 0, len(in))
	for _, a := range in {
		out = append(out, TimedAffect{
			Name:      a.Name,
			Remaining: time.Duration(a.Duration) * time.Second,
			Permanent: a.Duration < 0,
		})
	}
	return out
}

// Board holds the rows of every session, keyed by session id.
type Board[T any] struct {
	mu   sync.RWMutex
	rows map[string][]Row[T]
}

func NewBoard[T any]() *Board[T] {
	return &Board[T]{rows: make(map[string][]Row[T])}
}

// Replace swaps in a fresh roster for the session.
func (b *Board[T]) Replace(sessionID string, rows []Row[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows[sessionID] = rows
}

// Update is Replace for sessions the board already holds; it reports false
// and stores nothing for unknown or dropped ones.
func (b *Board[T]) Update(sessionID string, rows []Row[T]) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.rows[sessionID]; !ok {
		return false
	}
	b.rows[sessionID] = rows
	return true
}

// Rows returns a copy of the session's roster in server order.
func (b *Board[T]) Rows(sessionID string) []Row[T] {
	b.mu.RLock()
	defer b.mu.RUnlock()
	src := b.rows[sessionID]
	out := make([]Row[T], len(src))
	for i, r := range src {
		out[i] = r
		out[i].Affects = append([]TimedAffect(nil), r.Affects...)
	}
	return out
}

// Tick counts affects down by elapsed and removes the ones that ran out.
func (b *Board[T]) Tick(sessionID string, elapsed time.Duration) []Expiry {
	b.mu.Lock()
	defer b.mu.Unlock()
	var expired []Expiry
	rows := b.rows[sessionID]
	for i := range rows {
		kept := rows[i].Affects[:0]
		for _, a := range rows[i].Affects {
			if !a.Permanent {
				a.Remaining -= elapsed
				if a.Remaining <= 0 {
					expired = append(expired, Expiry{Row: rows[i].Name, Affect: a.Name})
					continue
				}
			}
			kept = append(kept, a)
		}
		rows[i].Affects = kept
	}
	return expired
}

func (b *Board[T]) Drop(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.rows, sessionID)
}

// Tracker is a complete unit projecting one message type onto a Board.
// Embed it to get a roster unit.
type Tracker[T any] struct {
	name  string
	tag   protocol.MessageType
	rows  func(payload any) ([]Row[T], bool)
	board *Board[T]

	mu       sync.RWMutex
	focused  string
	onUpdate []func(s *client.Session, rows []Row[T])
	onExpire []func(s *client.Session, e Expiry)
}

// NewTracker builds a tracker for tag; rows converts a payload of that tag.
func NewTracker[T any](name string, tag protocol.MessageType, rows func(payload any) ([]Row[T], bool)) *Tracker[T] {
	return &Tracker[T]{name: name, tag: tag, rows: rows, board: NewBoard[T]()}
}

func (t *Tracker[T]) Name() string                         { return t.name }
func (t *Tracker[T]) MessageTypes() []protocol.MessageType { return []protocol.MessageType{t.tag} }
func (t *Tracker[T]) CommandTypes() []protocol.CommandType {
	return []protocol.CommandType{protocol.CommandTick}
}
func (t *Tracker[T]) Register(r client.Registrar) error { return r.RegisterUnit(t) }

// events

func (t *Tracker[T]) OnUpdate(cb func(s *client.Session, rows []Row[T])) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onUpdate = append(t.onUpdate, cb)
}

func (t *Tracker[T]) OnExpire(cb func(s *client.Session, e Expiry)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = append(t.onExpire, cb)
}

// Rows returns the current roster of a session.
func (t *Tracker[T]) Rows(sessionID string) []Row[T] { return t.board.Rows(sessionID) }

// FocusedRows returns the roster of the focused session.
func (t *Tracker[T]) FocusedRows() []Row[T] {
	t.mu.RLock()
	id := t.focused
	t.mu.RUnlock()
	if id == "" {
		return nil
	}
	return t.board.Rows(id)
}

func (t *Tracker[T]) HandleMessage(s *client.Session, msg client.Message) error {
	rows, ok := t.rows(msg.Payload)
	if !ok {
		return nil
	}
	if !t.board.Update(s.ID(), rows) {
		return nil
	}
	t.notify(s)
	return nil
}

func (t *Tracker[T]) HandleCommand(s *client.Session, cmd *client.Command) error {
	tick, ok := client.PayloadAs[protocol.Tick](cmd.Payload)
	if !ok {
		return nil
	}
	expired := t.board.Tick(s.ID(), tick.Elapsed)
	if len(expired) == 0 {
		return nil
	}
	t.mu.RLock()
	cbs := t.onExpire
	t.mu.RUnlock()
	for _, e := range expired {
		for _, cb := range cbs {
			cb(s, e)
		}
	}
	t.notify(s)
	return nil
}

func (t *Tracker[T]) SessionCreated(s *client.Session) { t.board.Replace(s.ID(), nil) }

func (t *Tracker[T]) SessionFocused(_, next *client.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.focused = ""
	if next != nil {
		t.focused = next.ID()
	}
}

func (t *Tracker[T]) SessionDestroyed(s *client.Session) {
	t.board.Drop(s.ID())
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.focused == s.ID() {
		t.focused = ""
	}
}

func (t *Tracker[T]) notify(s *client.Session) {
	t.mu.RLock()
	cbs := t.onUpdate
	t.mu.RUnlock()
	if len(cbs) == 0 {
		return
	}
	rows := t.board.Rows(s.ID())
	for _, cb := range cbs {
		cb(s, rows)
	}
}
