package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/charmap"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverridesDefinedKeys(t *testing.T) {
	path := writeConfig(t, `
charset = "KOI8-R"
history_limit = 50
queue_limit = 64
accumulator_idle_timeout = "30s"
lore_dir = "/tmp/lore"

[connection]
address = "mud.example.org:4000"
max_reconnect_attempts = -1
reconnect_delay = "500ms"

[stats]
archive = ""
patterns = { kill = '^(.+) умирает\.$' }

[[session]]
name = "warrior"
address = "mud.example.org:4000"
commands = ["#alias k {kill %1}", "#connect"]

[[session]]
name = "mage"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	def := Default()

	if cfg.Client.Charset != charmap.KOI8R || cfg.CharsetName != "koi8-r" {
		t.Errorf("charset = %v (%s)", cfg.Client.Charset, cfg.CharsetName)
	}
	if cfg.Client.HistoryLimit != 50 || cfg.Client.QueueLimit != 64 || cfg.Client.AccumulatorIdleTimeout != 30*time.Second {
		t.Errorf("client = %+v", cfg.Client)
	}
	if cfg.Client.OutputBuffer != def.Client.OutputBuffer || cfg.Client.TickInterval != def.Client.TickInterval {
		t.Errorf("undefined keys lost their defaults: %+v", cfg.Client)
	}
	if cfg.Connection.Address != "mud.example.org:4000" || cfg.Connection.MaxReconnectAttempts != -1 ||
		cfg.Connection.ReconnectDelay != 500*time.Millisecond || cfg.Connection.DialTimeout != def.Connection.DialTimeout {
		t.Errorf("connection = %+v", cfg.Connection)
	}
	if cfg.StatsArchive != "" || cfg.StatsPatterns["kill"] != `^(.+) умирает\.$` {
		t.Errorf("stats = %q %v", cfg.StatsArchive, cfg.StatsPatterns)
	}
	if cfg.LoreDir != "/tmp/lore" || cfg.LogDir != def.LogDir {
		t.Errorf("dirs = %s %s", cfg.LoreDir, cfg.LogDir)
	}
	if len(cfg.Sessions) != 2 || cfg.Sessions[0].Name != "warrior" || len(cfg.Sessions[0].Commands) != 2 || cfg.Sessions[1].Address != "" {
		t.Errorf("sessions = %+v", cfg.Sessions)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"syntax", `charset = `, "load config"},
		{"unknown key", `colour = "red"`, "unknown key"},
		{"charset", `charset = "ebcdic"`, "unknown charset"},
		{"duration", "tick_interval = \"soon\"", "parse tick_interval"},
		{"nested duration", "[connection]\nreconnect_delay = \"x\"", "connection.reconnect_delay"},
		{"invalid", "history_limit = 0\noutput_buffer = -1", "history_limit must be positive"},
		{"queue limit", "queue_limit = 0", "queue_limit must be positive"},
		{"duplicate session", "[[session]]\nname = \"a\"\n[[session]]\nname = \"a\"", "duplicate name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestCharset(t *testing.T) {
	for _, name := range []string{"cp1251", "Windows-1251", " koi8-r ", "cp866", "utf-8", "latin1"} {
		if _, err := Charset(name); err != nil {
			t.Errorf("Charset(%q): %v", name, err)
		}
	}
	if enc, _ := Charset("win1251"); enc != charmap.Windows1251 {
		t.Errorf("win1251 = %v", enc)
	}
}
