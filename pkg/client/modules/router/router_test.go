package router

import (
	"reflect"
	"testing"

	"github.com/go-mudlib/client/internal/testlog"
	"github.com/go-mudlib/client/pkg/client"
	"github.com/go-mudlib/client/pkg/client/modules/script"
)

func setup(t *testing.T, names ...string) []*client.Session {
	t.Helper()
	log := testlog.Start(t)
	reg := client.NewRegistry(log)
	if errs := reg.Load(script.New(), New()); len(errs) != 0 {
		t.Fatalf("Load: %v", errs)
	}
	mux := client.NewMultiplexer(reg, client.DefaultConfig(), log)
	var out []*client.Session
	for _, n := range names {
		s, err := mux.CreateSession(n)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, s)
	}
	return out
}

func sent(s *client.Session) []string {
	var out []string
	for len(s.Outbound()) > 0 {
		out = append(out, string(<-s.Outbound()))
	}
	return out
}

func errorLines(s *client.Session) []string {
	var out []string
	for len(s.Output()) > 0 {
		if ev := <-s.Output(); ev.Kind == client.OutputError {
			out = append(out, ev.Text)
		}
	}
	return out
}

func TestBroadcast(t *testing.T) {
	ss := setup(t, "warrior", "mage", "thief")
	if err := ss[1].Submit(client.Input("#all {stand;say ready}")); err != nil {
		t.Fatal(err)
	}
	for _, s := range ss {
		if got := sent(s); !reflect.DeepEqual(got, []string{"stand\r\n", "say ready\r\n"}) {
			t.Errorf("%s sent %q", s.Name(), got)
		}
	}
	if got := ss[0].History(); len(got) != 0 {
		t.Errorf("broadcast input entered history of another session: %q", got)
	}
}

func TestRoute(t *testing.T) {
	ss := setup(t, "warrior", "mage")
	warrior, mage := ss[0], ss[1]

	if err := warrior.Submit(client.Input("#to mage {cast shield warrior}")); err != nil {
		t.Fatal(err)
	}
	if got := sent(mage); !reflect.DeepEqual(got, []string{"cast shield warrior\r\n"}) {
		t.Errorf("mage sent %q", got)
	}
	if got := sent(warrior); len(got) != 0 {
		t.Errorf("warrior sent %q", got)
	}

	errorLines(warrior)
	if err := warrior.Submit(client.Input("#to cleric heal")); err != nil {
		t.Fatal(err)
	}
	if got := errorLines(warrior); len(got) != 1 || got[0] != `no session named "cleric"` {
		t.Errorf("errors = %q", got)
	}
}

func TestRouteToClosedSession(t *testing.T) {
	ss := setup(t, "warrior", "mage")
	if err := ss[1].Multiplexer().Destroy(ss[1]); err != nil {
		t.Fatal(err)
	}
	errorLines(ss[0])
	if err := ss[0].Submit(client.Input("#to mage look")); err != nil {
		t.Fatal(err)
	}
	if got := errorLines(ss[0]); len(got) != 1 {
		t.Errorf("errors = %q", got)
	}
}
