package group

import (
	"github.com/go-mudlib/client/pkg/client"
	"github.com/go-mudlib/client/pkg/client/modules/roster"
	"github.com/go-mudlib/client/pkg/protocol"
)

const ModuleName = "group"

type Member = roster.Row[protocol.GroupMember]

// Module tracks the group roster of every session.
type Module struct {
	*roster.Tracker[protocol.GroupMember]
}

func New() *Module {
	return &Module{roster.NewTracker(ModuleName, protocol.MessageGroup, members)}
}

// From retrieves the group module from a registry.
func From(r *client.Registry) *Module {
	mod := r.Unit(ModuleName)
	if mod == nil {
		return nil
	}
	return mod.(*Module)
}

// Register adds the module itself, not just the embedded tracker.
func (m *Module) Register(r client.Registrar) error { return r.RegisterUnit(m) }

// Leader returns the group leader of a session.
func (m *Module) Leader(sessionID string) (Member, bool) {
	for _, row := range m.Rows(sessionID) {
		if row.Data.Leader {
			return row, true
		}
	}
	return Member{}, false
}

func members(payload any) ([]Member, bool) {
	gs, ok := client.PayloadAs[protocol.GroupStatus](payload)
	if !ok {
		return nil, false
	}
	rows := make([]Member, 0, len(gs.Members))
	for _, gm := range gs.Members {
		rows = append(rows, Member{Name: gm.Name, Data: gm, Affects: roster.Affects(gm.Affects)})
	}
	return rows, true
}
