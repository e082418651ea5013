package lore

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-mudlib/client/pkg/client"
	"github.com/go-mudlib/client/pkg/protocol"
)

const (
	ModuleName = "lore"

	// DefaultQuery is the server command sent for a record missing locally.
	DefaultQuery = "lore"
)

// Module caches full item descriptions the server pushes and answers
// lookups from the cache before asking the server.
type Module struct {
	store *Store

	// Query is the server command prefix used on a cache miss.
	Query string

	mu       sync.RWMutex
	onRecord []func(s *client.Session, rec protocol.LoreRecord)
}

func New(store *Store) *Module {
	return &Module{store: store, Query: DefaultQuery}
}

func (m *Module) Name() string  { return ModuleName }
func (m *Module) Store() *Store { return m.store }

func (m *Module) MessageTypes() []protocol.MessageType {
	return []protocol.MessageType{protocol.MessageLore}
}

func (m *Module) CommandTypes() []protocol.CommandType {
	return []protocol.CommandType{protocol.CommandLoreLookup, protocol.CommandLoreSearch, protocol.CommandLoreComment}
}

// Register adds the unit and the encoder that turns a lookup miss into a
// server query.
func (m *Module) Register(r client.Registrar) error {
	if err := r.RegisterUnit(m); err != nil {
		return err
	}
	return r.RegisterEncoder(protocol.CommandLoreLookup, client.EncoderFunc(m.encodeLookup))
}

// From retrieves the lore module from a registry.
func From(r *client.Registry) *Module {
	mod := r.Unit(ModuleName)
	if mod == nil {
		return nil
	}
	return mod.(*Module)
}

// events

func (m *Module) OnRecord(cb func(s *client.Session, rec protocol.LoreRecord)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRecord = append(m.onRecord, cb)
}

func (m *Module) HandleMessage(s *client.Session, msg client.Message) error {
	rec, ok := client.PayloadAs[protocol.LoreRecord](msg.Payload)
	if !ok {
		return nil
	}
	if rec.Full {
		if err := m.store.Put(rec); err != nil {
			return err
		}
		log := s.Logger()
		log.Debug().Str("item", rec.Name).Msg("lore stored")
	}
	m.mu.RLock()
	cbs := m.onRecord
	m.mu.RUnlock()
	for _, cb := range cbs {
		cb(s, rec)
	}
	return nil
}

func (m *Module) HandleCommand(s *client.Session, cmd *client.Command) error {
	switch p := cmd.Payload.(type) {
	case protocol.LoreLookup:
		return m.lookup(s, cmd, p.Name)
	case protocol.LoreSearch:
		cmd.MarkHandled()
		return m.search(s, p.Query)
	case protocol.LoreComment:
		cmd.MarkHandled()
		rec, err := m.store.Comment(p.Name, p.Comment)
		if err != nil {
			return err
		}
		s.Printf("comment saved for %s", rec.Name)
	}
	return nil
}

func (m *Module) lookup(s *client.Session, cmd *client.Command, name string) error {
	rec, err := m.store.Get(name)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	cmd.MarkHandled()
	for _, line := range Format(rec) {
		s.Print(line)
	}
	return nil
}

func (m *Module) search(s *client.Session, query string) error {
	recs, err := m.store.Search(query)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		s.Printf("no lore matches %q", query)
		return nil
	}
	for _, rec := range recs {
		line := rec.Name
		if rec.Kind != "" {
			line += " [" + rec.Kind + "]"
		}
		if rec.Comment != "" {
			line += " - " + rec.Comment
		}
		s.Print(line)
	}
	return nil
}

func (m *Module) encodeLookup(s *client.Session, cmd *client.Command) ([]byte, bool) {
	p, ok := client.PayloadAs[protocol.LoreLookup](cmd.Payload)
	if !ok || strings.TrimSpace(p.Name) == "" {
		return nil, false
	}
	return client.EncodeLine(s.Charset(), m.Query+" "+p.Name), true
}

// Format renders a record as display lines.
func Format(rec protocol.LoreRecord) []string {
	lines := []string{rec.Name}
	if rec.Kind != "" || rec.Level > 0 {
		lines = append(lines, fmt.Sprintf("  type %s, level %d", orDash(rec.Kind), rec.Level))
	}
	if rec.Weight > 0 || rec.Price > 0 {
		lines = append(lines, fmt.Sprintf("  weight %d, price %d", rec.Weight, rec.Price))
	}
	if rec.Material != "" {
		lines = append(lines, "  material "+rec.Material)
	}
	if len(rec.Flags) > 0 {
		lines = append(lines, "  flags: "+strings.Join(rec.Flags, ", "))
	}
	if len(rec.Affects) > 0 {
		lines = append(lines, "  affects: "+strings.Join(rec.Affects, ", "))
	}
	for _, p := range rec.Properties {
		lines = append(lines, fmt.Sprintf("  %s: %s", p.Key, p.Value))
	}
	if rec.Description != "" {
		lines = append(lines, "  "+rec.Description)
	}
	if rec.Comment != "" {
		lines = append(lines, "  comment: "+rec.Comment)
	}
	return lines
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
