package helpers

import (
	"path/filepath"
	"testing"

	flag "github.com/spf13/pflag"
	"golang.org/x/text/encoding/charmap"

	"github.com/go-mudlib/client/internal/testlog"
	"github.com/go-mudlib/client/pkg/client"
	"github.com/go-mudlib/client/pkg/client/modules/script"
	"github.com/go-mudlib/client/pkg/config"
)

func TestResolve(t *testing.T) {
	var f Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(fs, &f)
	err := fs.Parse([]string{"-s", "mud.example.org:4000", "--charset", "koi8-r", "-n", "warrior", "--session=mage", "--reconnects=0", "--no-archive"})
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := Resolve(fs, f)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Connection.Address != "mud.example.org:4000" || cfg.Connection.MaxReconnectAttempts != 0 {
		t.Errorf("connection = %+v", cfg.Connection)
	}
	if cfg.Client.Charset != charmap.KOI8R || cfg.StatsArchive != "" {
		t.Errorf("charset %v archive %q", cfg.Client.Charset, cfg.StatsArchive)
	}
	if len(cfg.Sessions) != 2 || cfg.Sessions[1].Name != "mage" || cfg.Sessions[1].Address != "mud.example.org:4000" {
		t.Errorf("sessions = %+v", cfg.Sessions)
	}
}

func TestResolveKeepsDefaults(t *testing.T) {
	var f Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(fs, &f)
	if err := fs.Parse(nil); err != nil {
		t.Fatal(err)
	}
	cfg, err := Resolve(fs, f)
	if err != nil {
		t.Fatal(err)
	}
	if def := config.Default(); cfg.Connection.MaxReconnectAttempts != def.Connection.MaxReconnectAttempts || cfg.StatsArchive != def.StatsArchive {
		t.Errorf("cfg = %+v", cfg)
	}

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(fs, &f)
	if err := fs.Parse([]string{"--charset", "ebcdic"}); err != nil {
		t.Fatal(err)
	}
	if _, err := Resolve(fs, f); err == nil {
		t.Error("unknown charset accepted")
	}
}

func TestDefaultUnits(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.LoreDir = filepath.Join(dir, "lore")
	cfg.LogDir = filepath.Join(dir, "logs")
	cfg.StatsArchive = filepath.Join(dir, "stats.db")
	cfg.Sessions = []config.Profile{
		{Name: "warrior", Commands: []string{"#alias k {kill %1}", "#var weapon sword"}},
		{Name: "mage"},
	}

	mux, units, err := NewMultiplexer(cfg, testlog.Start(t))
	if err != nil {
		t.Fatal(err)
	}
	defer units.Close()

	if script.From(mux.Registry()) != units.Script {
		t.Error("script unit not registered")
	}
	if n := len(mux.Registry().Units()); n != 8 {
		t.Errorf("units = %d", n)
	}

	sessions, err := OpenSessions(mux, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 || mux.Focused() != sessions[0] {
		t.Fatalf("sessions = %v, focused %v", sessions, mux.Focused())
	}
	warrior := sessions[0]
	if v, _ := warrior.Var("weapon"); v != "sword" {
		t.Errorf("weapon = %q", v)
	}
	if got := warrior.History(); len(got) != 0 {
		t.Errorf("profile commands entered history: %q", got)
	}

	if err := warrior.Submit(client.Input("k orc")); err != nil {
		t.Fatal(err)
	}
	if got := string(<-warrior.Outbound()); got != "kill orc\r\n" {
		t.Errorf("sent %q", got)
	}
}

func TestOpenSessionsWithoutProfiles(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	cfg.LoreDir = dir
	cfg.StatsArchive = ""

	mux, units, err := NewMultiplexer(cfg, testlog.Start(t))
	if err != nil {
		t.Fatal(err)
	}
	defer units.Close()

	sessions, err := OpenSessions(mux, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].Name() == "" {
		t.Fatalf("sessions = %v", sessions)
	}
}
