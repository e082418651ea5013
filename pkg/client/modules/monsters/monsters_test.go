package monsters

import (
	"testing"
	"time"

	"github.com/go-mudlib/client/internal/testlog"
	"github.com/go-mudlib/client/pkg/client"
	"github.com/go-mudlib/client/pkg/client/modules/roster"
	"github.com/go-mudlib/client/pkg/protocol"
)

func setup(t *testing.T) (*Module, *client.Multiplexer) {
	t.Helper()
	log := testlog.Start(t)
	reg := client.NewRegistry(log)
	if err := client.RegisterBuiltins(reg); err != nil {
		t.Fatal(err)
	}
	m := New()
	if errs := reg.Load(m); len(errs) != 0 {
		t.Fatalf("Load: %v", errs)
	}
	return m, client.NewMultiplexer(reg, client.DefaultConfig(), log)
}

func feed(t *testing.T, s *client.Session, text string) {
	t.Helper()
	if err := s.Feed(protocol.MessageRoomMonsters, []byte(text), 0, len(text), true); err != nil {
		t.Fatal(err)
	}
}

func TestRoomMonstersProjection(t *testing.T) {
	m, mux := setup(t)
	a, _ := mux.CreateSession("a")
	b, _ := mux.CreateSession("b")
	if From(mux.Registry()) != m {
		t.Fatal("From did not return the module")
	}

	var updates int
	m.OnUpdate(func(s *client.Session, rows []Monster) { updates++ })
	var expired []roster.Expiry
	m.OnExpire(func(s *client.Session, e roster.Expiry) { expired = append(expired, e) })

	feed(t, a, `<Monsters><Monster name="rat" hp="100"/><Monster name="wolf" hp="60" aggressive="true"><Affect name="poison" duration="2"/></Monster></Monsters>`)
	feed(t, b, `<Monsters><Monster name="bat"/></Monsters>`)

	rows := m.Rows(a.ID())
	if len(rows) != 2 || rows[1].Name != "wolf" || rows[1].Data.HPPercent != 60 {
		t.Fatalf("rows = %+v", rows)
	}
	if agg := m.Aggressive(a.ID()); len(agg) != 1 || agg[0].Name != "wolf" {
		t.Errorf("aggressive = %+v", agg)
	}
	if focused := m.FocusedRows(); len(focused) != 2 {
		t.Errorf("focused rows = %+v", focused)
	}

	tick := client.NewCommand(protocol.CommandTick, protocol.Tick{Now: time.Now(), Elapsed: 3 * time.Second})
	if err := a.Submit(tick); err != nil {
		t.Fatal(err)
	}
	if len(expired) != 1 || expired[0].Row != "wolf" || expired[0].Affect != "poison" {
		t.Fatalf("expired = %+v", expired)
	}

	feed(t, a, `<Monsters/>`)
	if rows := m.Rows(a.ID()); len(rows) != 0 {
		t.Fatalf("empty room left rows: %+v", rows)
	}
	if len(m.Rows(b.ID())) != 1 {
		t.Error("other session affected")
	}
	if updates != 4 {
		t.Errorf("updates = %d, want 4", updates)
	}

	if err := mux.Destroy(b); err != nil {
		t.Fatal(err)
	}
	if len(m.Rows(b.ID())) != 0 {
		t.Error("destroyed session kept rows")
	}
}
