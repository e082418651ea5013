package helpers

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/go-mudlib/client/pkg/client"
	"github.com/go-mudlib/client/pkg/client/modules/connection"
	"github.com/go-mudlib/client/pkg/client/modules/group"
	"github.com/go-mudlib/client/pkg/client/modules/lore"
	"github.com/go-mudlib/client/pkg/client/modules/monsters"
	"github.com/go-mudlib/client/pkg/client/modules/router"
	"github.com/go-mudlib/client/pkg/client/modules/script"
	"github.com/go-mudlib/client/pkg/client/modules/sessionlog"
	"github.com/go-mudlib/client/pkg/client/modules/stats"
	"github.com/go-mudlib/client/pkg/config"
)

// Flags holds the common CLI flags of client programs.
type Flags struct {
	Config               string
	Address              string
	Charset              string
	Sessions             []string
	MaxReconnectAttempts int
	NoArchive            bool
	Verbose              bool
}

// RegisterFlags registers the standard flags on fs.
func RegisterFlags(fs *flag.FlagSet, f *Flags) {
	fs.StringVarP(&f.Config, "config", "c", "", "TOML config file")
	fs.StringVarP(&f.Address, "server", "s", "", "server address (host:port)")
	fs.StringVar(&f.Charset, "charset", "", "server code page (cp1251, koi8-r, utf-8, ...)")
	fs.StringSliceVarP(&f.Sessions, "session", "n", nil, "session to open (repeatable)")
	fs.IntVar(&f.MaxReconnectAttempts, "reconnects", 5, "max reconnect attempts (-1 = infinite, 0 = none)")
	fs.BoolVar(&f.NoArchive, "no-archive", false, "do not archive fights")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "debug logging")
}

// Resolve loads the config file, if any, and applies the flags the user set
// on top of it.
func Resolve(fs *flag.FlagSet, f Flags) (config.Config, error) {
	cfg := config.Default()
	if f.Config != "" {
		var err error
		if cfg, err = config.Load(f.Config); err != nil {
			return config.Config{}, err
		}
	}
	if fs.Changed("server") {
		cfg.Connection.Address = f.Address
	}
	if fs.Changed("charset") {
		enc, err := config.Charset(f.Charset)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Client.Charset = enc
		cfg.CharsetName = f.Charset
	}
	if fs.Changed("reconnects") {
		cfg.Connection.MaxReconnectAttempts = f.MaxReconnectAttempts
	}
	if f.NoArchive {
		cfg.StatsArchive = ""
	}
	for _, name := range f.Sessions {
		cfg.Sessions = append(cfg.Sessions, config.Profile{Name: name, Address: cfg.Connection.Address})
	}
	return cfg, cfg.Validate()
}

// Units are the default units of a client, kept for callers that subscribe
// to their events.
type Units struct {
	Script     *script.Module
	Router     *router.Module
	Connection *connection.Module
	SessionLog *sessionlog.Module
	Lore       *lore.Module
	Group      *group.Module
	Monsters   *monsters.Module
	Stats      *stats.Module

	archive *stats.Archive
}

// Close stops every link and closes the stats archive.
func (u *Units) Close() error {
	u.Connection.Close()
	if u.archive != nil {
		return u.archive.Close()
	}
	return nil
}

// NewMultiplexer builds a registry with the built-in decoders and the
// default units and returns a multiplexer over it.
func NewMultiplexer(cfg config.Config, log zerolog.Logger) (*client.Multiplexer, *Units, error) {
	reg := client.NewRegistry(log)
	if err := client.RegisterBuiltins(reg); err != nil {
		return nil, nil, err
	}

	store, err := lore.NewStore(cfg.LoreDir)
	if err != nil {
		return nil, nil, err
	}
	patterns, err := stats.CompilePatterns(cfg.StatsPatterns)
	if err != nil {
		return nil, nil, err
	}
	u := &Units{
		Script:     script.New(),
		Router:     router.New(),
		Connection: connection.New(cfg.Connection),
		SessionLog: sessionlog.New(cfg.LogDir, cfg.LogTimestamps),
		Lore:       lore.New(store),
		Group:      group.New(),
		Monsters:   monsters.New(),
	}
	if cfg.StatsArchive != "" {
		if u.archive, err = stats.OpenArchive(cfg.StatsArchive); err != nil {
			return nil, nil, err
		}
	}
	u.Stats = stats.New(patterns, u.archive)

	// script first: it turns raw input into the commands the others handle
	errs := reg.Load(u.Script, u.Router, u.Connection, u.SessionLog, u.Lore, u.Group, u.Monsters, u.Stats)
	if len(errs) > 0 {
		u.Close()
		return nil, nil, fmt.Errorf("load units: %w", errors.Join(errs...))
	}
	return client.NewMultiplexer(reg, cfg.Client, log), u, nil
}

// OpenSessions creates the configured sessions, or a single unnamed one,
// and runs each profile's commands. A profile with an address connects
// after its commands ran.
func OpenSessions(mux *client.Multiplexer, cfg config.Config) ([]*client.Session, error) {
	profiles := cfg.Sessions
	if len(profiles) == 0 {
		profiles = []config.Profile{{Address: cfg.Connection.Address}}
	}
	var out []*client.Session
	for _, p := range profiles {
		s, err := mux.CreateSession(p.Name)
		if err != nil {
			return out, err
		}
		out = append(out, s)
		lines := append([]string(nil), p.Commands...)
		if p.Address != "" {
			lines = append(lines, "#connect "+p.Address)
		}
		for _, line := range lines {
			cmd := client.Input(line)
			cmd.Origin = client.OriginScript
			if err := s.Submit(cmd); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}
