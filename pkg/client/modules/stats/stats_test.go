package stats

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-mudlib/client/internal/testlog"
	"github.com/go-mudlib/client/pkg/client"
	"github.com/go-mudlib/client/pkg/protocol"
)

func setup(t *testing.T, archive *Archive) (*Module, *client.Session) {
	t.Helper()
	log := testlog.Start(t)
	reg := client.NewRegistry(log)
	if err := client.RegisterBuiltins(reg); err != nil {
		t.Fatal(err)
	}
	m := New(DefaultPatterns(), archive)
	if errs := reg.Load(m); len(errs) != 0 {
		t.Fatalf("Load: %v", errs)
	}
	s, err := client.NewMultiplexer(reg, client.DefaultConfig(), log).CreateSession("hero")
	if err != nil {
		t.Fatal(err)
	}
	return m, s
}

func lines(t *testing.T, s *client.Session, text ...string) {
	t.Helper()
	for _, l := range text {
		if err := s.Feed(protocol.MessageText, []byte(l), 0, len(l), true); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScopes(t *testing.T) {
	m, s := setup(t, nil)
	var fights []Fight
	m.OnFight(func(_ *client.Session, f Fight) { fights = append(fights, f) })

	lines(t, s,
		"You have entered The Dark Forest.",
		"You slash the wolf (12)",
		"You miss the wolf.",
		"The wolf bites you (4)",
		"\x1b[1;31mYou hit the wolf (8)\x1b[0m",
		"The wolf is dead! R.I.P.",
		"You receive 150 experience points.",
		"You feel more skilled in dodge.",
		"You hit the rat (3)",
	)

	if len(fights) != 1 {
		t.Fatalf("fights = %+v", fights)
	}
	f := fights[0]
	if f.Victim != "The wolf" || f.Zone != "The Dark Forest" || f.Hits != 2 || f.Dealt != 20 || f.Taken != 4 || f.Misses != 1 || f.Kills != 1 {
		t.Errorf("fight = %+v", f)
	}
	// the experience line follows the death message
	if f.Experience != 150 {
		t.Errorf("fight experience = %d", f.Experience)
	}

	r := m.Snapshot(s.ID())
	if r.Fight.Hits != 1 || r.Fight.Dealt != 3 || r.Fight.Experience != 0 {
		t.Errorf("current fight = %+v", r.Fight)
	}
	if r.Session.Hits != 3 || r.Session.Kills != 1 || r.Session.SkillUps != 1 || r.Session.Experience != 150 {
		t.Errorf("session = %+v", r.Session)
	}

	lines(t, s, "You have entered Town Square.")
	r = m.Snapshot(s.ID())
	if r.ZoneName != "Town Square" || r.Zone != (Counters{}) || r.Session.Hits != 3 {
		t.Errorf("after zone change = %+v", r)
	}
}

func TestStatsCommands(t *testing.T) {
	m, s := setup(t, nil)
	lines(t, s, "You hit the rat (3)")
	for len(s.Output()) > 0 {
		<-s.Output()
	}

	if err := s.Submit(client.NewCommand(protocol.CommandStats, protocol.Stats{})); err != nil {
		t.Fatal(err)
	}
	var out []string
	for len(s.Output()) > 0 {
		out = append(out, (<-s.Output()).Text)
	}
	if len(out) != 3 || !strings.Contains(out[0], "hits 1") || !strings.Contains(out[1], "zone (unknown)") {
		t.Fatalf("report = %q", out)
	}

	if err := s.Submit(client.NewCommand(protocol.CommandStatsReset, protocol.StatsReset{})); err != nil {
		t.Fatal(err)
	}
	if r := m.Snapshot(s.ID()); r.Session != (Counters{}) {
		t.Fatalf("after reset = %+v", r)
	}
	if len(s.Outbound()) != 0 {
		t.Error("stats commands reached the server")
	}
}

func TestFightsAreArchived(t *testing.T) {
	archive, err := OpenArchive(filepath.Join(t.TempDir(), "stats", "fights.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer archive.Close()

	_, s := setup(t, archive)
	lines(t, s,
		"You hit the orc (10)", "The orc is dead! R.I.P.",
		"You hit the imp (2)", "The imp is dead! R.I.P.",
		"You feel more skilled in kick.", "You receive 20 experience points.",
	)

	got, err := archive.Recent(context.Background(), "hero", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Victim != "The imp" || got[1].Dealt != 10 {
		t.Fatalf("archived = %+v", got)
	}
	// the orc fight closed without experience when the imp fight began
	if got[0].Experience != 20 || got[0].SkillUps != 1 || got[1].Experience != 0 {
		t.Errorf("experience imp=%d orc=%d skills=%d", got[0].Experience, got[1].Experience, got[0].SkillUps)
	}
	if got[0].Ended.Before(got[0].Started) || time.Since(got[0].Ended) > time.Minute {
		t.Errorf("times = %v .. %v", got[0].Started, got[0].Ended)
	}

	for len(s.Output()) > 0 {
		<-s.Output()
	}
	if err := s.Submit(client.NewCommand(protocol.CommandStats, protocol.Stats{Recent: 1})); err != nil {
		t.Fatal(err)
	}
	var out []string
	for len(s.Output()) > 0 {
		out = append(out, (<-s.Output()).Text)
	}
	if len(out) != 1 || !strings.Contains(out[0], "The imp (unknown") || !strings.Contains(out[0], "exp 20") {
		t.Fatalf("recent = %q", out)
	}
}

func TestPendingFightArchivedOnDestroy(t *testing.T) {
	archive, err := OpenArchive(filepath.Join(t.TempDir(), "fights.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer archive.Close()

	m, s := setup(t, archive)
	lines(t, s, "You hit the bat (4)", "The bat is dead! R.I.P.")
	if err := s.Multiplexer().Destroy(s); err != nil {
		t.Fatal(err)
	}

	got, err := archive.Recent(context.Background(), "hero", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Victim != "The bat" || got[0].Dealt != 4 {
		t.Fatalf("archived = %+v", got)
	}
	// lines still in flight for the destroyed session leave no state behind
	if err := m.HandleMessage(s, client.Message{Type: protocol.MessageText, Payload: protocol.DecodeText("You hit the bat (1)")}); err != nil {
		t.Fatal(err)
	}
	if r := m.Snapshot(s.ID()); r != (Report{}) {
		t.Errorf("state revived: %+v", r)
	}
}

func TestRecentWithoutArchive(t *testing.T) {
	_, s := setup(t, nil)
	for len(s.Output()) > 0 {
		<-s.Output()
	}
	if err := s.Submit(client.NewCommand(protocol.CommandStats, protocol.Stats{Recent: 5})); err != nil {
		t.Fatal(err)
	}
	if ev := <-s.Output(); ev.Text != "no fight archive" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestCompilePatterns(t *testing.T) {
	p, err := CompilePatterns(map[string]string{"kill": `^(.+) умирает\.$`})
	if err != nil {
		t.Fatal(err)
	}
	if g := match(p.Kill, "Гоблин умирает."); group(g) != "Гоблин" {
		t.Errorf("kill match = %v", g)
	}
	if _, err := CompilePatterns(map[string]string{"bogus": "x"}); err == nil {
		t.Error("unknown key accepted")
	}
	if _, err := CompilePatterns(map[string]string{"hit": "("}); err == nil {
		t.Error("bad expression accepted")
	}
}
