package monsters

import (
	"github.com/go-mudlib/client/pkg/client"
	"github.com/go-mudlib/client/pkg/client/modules/roster"
	"github.com/go-mudlib/client/pkg/protocol"
)

const ModuleName = "monsters"

type Monster = roster.Row[protocol.Monster]

// Module tracks the creatures in the current room of every session.
type Module struct {
	*roster.Tracker[protocol.Monster]
}

func New() *Module {
	return &Module{roster.NewTracker(ModuleName, protocol.MessageRoomMonsters, monsters)}
}

// From retrieves the monsters module from a registry.
func From(r *client.Registry) *Module {
	mod := r.Unit(ModuleName)
	if mod == nil {
		return nil
	}
	return mod.(*Module)
}

func (m *Module) Register(r client.Registrar) error { return r.RegisterUnit(m) }

// Aggressive returns the monsters in the room that attack on sight.
func (m *Module) Aggressive(sessionID string) []Monster {
	var out []Monster
	for _, row := range m.Rows(sessionID) {
		if row.Data.Aggressive {
			out = append(out, row)
		}
	}
	return out
}

func monsters(payload any) ([]Monster, bool) {
	rm, ok := client.PayloadAs[protocol.RoomMonsters](payload)
	if !ok {
		return nil, false
	}
	rows := make([]Monster, 0, len(rm.Monsters))
	for _, mo := range rm.Monsters {
		rows = append(rows, Monster{Name: mo.Name, Data: mo, Affects: roster.Affects(mo.Affects)})
	}
	return rows, true
}
