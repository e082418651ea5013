// Package config loads the client settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/go-mudlib/client/pkg/client"
	"github.com/go-mudlib/client/pkg/client/modules/connection"
)

// Profile is a session opened at startup. Commands are submitted as input
// once the session exists, so they may hold # commands.
type Profile struct {
	Name     string
	Address  string
	Commands []string
}

// Config is everything the terminal client needs to start.
type Config struct {
	Client     client.Config
	Connection connection.Options

	CharsetName   string
	LoreDir       string
	LogDir        string
	LogTimestamps bool
	StatsArchive  string
	StatsPatterns map[string]string
	Sessions      []Profile
}

type fileConfig struct {
	Charset                string `toml:"charset"`
	OutputBuffer           int    `toml:"output_buffer"`
	OutboundBuffer         int    `toml:"outbound_buffer"`
	HistoryLimit           int    `toml:"history_limit"`
	QueueLimit             int    `toml:"queue_limit"`
	AccumulatorIdleTimeout string `toml:"accumulator_idle_timeout"`
	TickInterval           string `toml:"tick_interval"`
	LoreDir                string `toml:"lore_dir"`
	LogDir                 string `toml:"log_dir"`
	LogTimestamps          bool   `toml:"log_timestamps"`

	Connection struct {
		Address              string `toml:"address"`
		DialTimeout          string `toml:"dial_timeout"`
		MaxReconnectAttempts int    `toml:"max_reconnect_attempts"`
		ReconnectDelay       string `toml:"reconnect_delay"`
	} `toml:"connection"`

	Stats struct {
		Archive  string            `toml:"archive"`
		Patterns map[string]string `toml:"patterns"`
	} `toml:"stats"`

	Sessions []struct {
		Name     string   `toml:"name"`
		Address  string   `toml:"address"`
		Commands []string `toml:"commands"`
	} `toml:"session"`
}

// Default returns the settings used when no file is given. Data lives
// under the user's config directory.
func Default() Config {
	base := "."
	if dir, err := os.UserConfigDir(); err == nil {
		base = filepath.Join(dir, "mudlib")
	}
	return Config{
		Client:        client.DefaultConfig(),
		Connection:    connection.DefaultOptions(),
		CharsetName:   "cp1251",
		LoreDir:       filepath.Join(base, "lore"),
		LogDir:        filepath.Join(base, "logs"),
		LogTimestamps: true,
		StatsArchive:  filepath.Join(base, "stats.db"),
	}
}

// Load reads path on top of Default. Keys absent from the file keep their
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("charset") {
		enc, err := Charset(raw.Charset)
		if err != nil {
			return Config{}, err
		}
		cfg.Client.Charset = enc
		cfg.CharsetName = strings.ToLower(strings.TrimSpace(raw.Charset))
	}
	if meta.IsDefined("output_buffer") {
		cfg.Client.OutputBuffer = raw.OutputBuffer
	}
	if meta.IsDefined("outbound_buffer") {
		cfg.Client.OutboundBuffer = raw.OutboundBuffer
	}
	if meta.IsDefined("history_limit") {
		cfg.Client.HistoryLimit = raw.HistoryLimit
	}
	if meta.IsDefined("queue_limit") {
		cfg.Client.QueueLimit = raw.QueueLimit
	}
	if meta.IsDefined("accumulator_idle_timeout") {
		if cfg.Client.AccumulatorIdleTimeout, err = duration("accumulator_idle_timeout", raw.AccumulatorIdleTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("tick_interval") {
		if cfg.Client.TickInterval, err = duration("tick_interval", raw.TickInterval); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("lore_dir") {
		cfg.LoreDir = strings.TrimSpace(raw.LoreDir)
	}
	if meta.IsDefined("log_dir") {
		cfg.LogDir = strings.TrimSpace(raw.LogDir)
	}
	if meta.IsDefined("log_timestamps") {
		cfg.LogTimestamps = raw.LogTimestamps
	}

	if meta.IsDefined("connection", "address") {
		cfg.Connection.Address = strings.TrimSpace(raw.Connection.Address)
	}
	if meta.IsDefined("connection", "dial_timeout") {
		if cfg.Connection.DialTimeout, err = duration("connection.dial_timeout", raw.Connection.DialTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("connection", "max_reconnect_attempts") {
		cfg.Connection.MaxReconnectAttempts = raw.Connection.MaxReconnectAttempts
	}
	if meta.IsDefined("connection", "reconnect_delay") {
		if cfg.Connection.ReconnectDelay, err = duration("connection.reconnect_delay", raw.Connection.ReconnectDelay); err != nil {
			return Config{}, err
		}
	}

	if meta.IsDefined("stats", "archive") {
		cfg.StatsArchive = strings.TrimSpace(raw.Stats.Archive)
	}
	if meta.IsDefined("stats", "patterns") {
		cfg.StatsPatterns = raw.Stats.Patterns
	}

	for _, s := range raw.Sessions {
		cfg.Sessions = append(cfg.Sessions, Profile{
			Name:     strings.TrimSpace(s.Name),
			Address:  strings.TrimSpace(s.Address),
			Commands: s.Commands,
		})
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the client cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Client.Charset == nil {
		errs = append(errs, errors.New("charset is not set"))
	}
	if c.Client.OutputBuffer < 1 {
		errs = append(errs, fmt.Errorf("output_buffer must be positive, got %d", c.Client.OutputBuffer))
	}
	if c.Client.OutboundBuffer < 1 {
		errs = append(errs, fmt.Errorf("outbound_buffer must be positive, got %d", c.Client.OutboundBuffer))
	}
	if c.Client.HistoryLimit < 1 {
		errs = append(errs, fmt.Errorf("history_limit must be positive, got %d", c.Client.HistoryLimit))
	}
	if c.Client.QueueLimit < 1 {
		errs = append(errs, fmt.Errorf("queue_limit must be positive, got %d", c.Client.QueueLimit))
	}
	if c.Client.AccumulatorIdleTimeout < 0 {
		errs = append(errs, errors.New("accumulator_idle_timeout must not be negative"))
	}
	if c.Client.TickInterval <= 0 {
		errs = append(errs, errors.New("tick_interval must be positive"))
	}
	if c.Connection.MaxReconnectAttempts < -1 {
		errs = append(errs, fmt.Errorf("connection.max_reconnect_attempts must be -1 or more, got %d", c.Connection.MaxReconnectAttempts))
	}
	if c.Connection.ReconnectDelay < 0 {
		errs = append(errs, errors.New("connection.reconnect_delay must not be negative"))
	}
	if c.LoreDir == "" {
		errs = append(errs, errors.New("lore_dir is empty"))
	}
	seen := make(map[string]bool)
	for i, p := range c.Sessions {
		if p.Name == "" {
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("session %d: duplicate name %q", i, p.Name))
		}
		seen[p.Name] = true
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Charset resolves a code page name.
func Charset(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cp1251", "windows-1251", "win1251":
		return charmap.Windows1251, nil
	case "koi8-r", "koi8r":
		return charmap.KOI8R, nil
	case "cp866", "ibm866", "alt":
		return charmap.CodePage866, nil
	case "iso-8859-5", "iso8859-5":
		return charmap.ISO8859_5, nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1, nil
	case "utf-8", "utf8":
		return unicode.UTF8, nil
	}
	return nil, fmt.Errorf("unknown charset %q", name)
}

func duration(key, v string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
