package stats

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/go-mudlib/client/pkg/client"
	"github.com/go-mudlib/client/pkg/protocol"
)

const ModuleName = "stats"

// Counters accumulates combat figures over one scope.
type Counters struct {
	Hits       int
	Misses     int
	Dealt      int
	Taken      int
	Kills      int
	Experience int
	SkillUps   int
}

func (c Counters) String() string {
	return fmt.Sprintf("hits %d, misses %d, dealt %d, taken %d, kills %d, exp %d, skills +%d",
		c.Hits, c.Misses, c.Dealt, c.Taken, c.Kills, c.Experience, c.SkillUps)
}

func (c *Counters) add(d Counters) {
	c.Hits += d.Hits
	c.Misses += d.Misses
	c.Dealt += d.Dealt
	c.Taken += d.Taken
	c.Kills += d.Kills
	c.Experience += d.Experience
	c.SkillUps += d.SkillUps
}

// Patterns recognize combat lines. Damage and experience amounts are taken
// from the first capture group; Kill and Zone capture a name.
type Patterns struct {
	Hit        *regexp.Regexp
	Miss       *regexp.Regexp
	Taken      *regexp.Regexp
	Kill       *regexp.Regexp
	Experience *regexp.Regexp
	Skill      *regexp.Regexp
	Zone       *regexp.Regexp
}

func DefaultPatterns() Patterns {
	return Patterns{
		Hit:        regexp.MustCompile(`^You (?:hit|slash|pierce|bash|crush|smite|kick|bite) .+ \((\d+)\)$`),
		Miss:       regexp.MustCompile(`^You miss `),
		Taken:      regexp.MustCompile(`^.+ (?:hits|slashes|pierces|bashes|crushes|smites|kicks|bites) you \((\d+)\)$`),
		Kill:       regexp.MustCompile(`^(.+) is dead! R\.I\.P\.$`),
		Experience: regexp.MustCompile(`^You receive (\d+) experience`),
		Skill:      regexp.MustCompile(`^You feel more skilled in (.+)\.$`),
		Zone:       regexp.MustCompile(`^You have entered (.+)\.$`),
	}
}

// CompilePatterns overrides the defaults with the given expressions, keyed
// by lowercase field name ("hit", "miss", ...).
func CompilePatterns(src map[string]string) (Patterns, error) {
	p := DefaultPatterns()
	fields := map[string]**regexp.Regexp{
		"hit": &p.Hit, "miss": &p.Miss, "taken": &p.Taken, "kill": &p.Kill,
		"experience": &p.Experience, "skill": &p.Skill, "zone": &p.Zone,
	}
	for k, expr := range src {
		dst, ok := fields[k]
		if !ok {
			return p, fmt.Errorf("stats: unknown pattern %q", k)
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return p, fmt.Errorf("stats: pattern %s: %w", k, err)
		}
		*dst = re
	}
	return p, nil
}

// Report is a snapshot of one session.
type Report struct {
	Fight    Counters
	Zone     Counters
	Session  Counters
	ZoneName string
}

type sessionStats struct {
	Report
	fightStart time.Time
	// finished is the fight the last kill ended. It stays open for the
	// experience and skill lines the server sends after the death message.
	finished *Fight
}

// Module counts combat events per session over three scopes: the current
// fight, the current zone and the whole session. A fight is reported once
// the experience for it arrived, or when the next fight or a zone change
// shows none is coming.
type Module struct {
	patterns Patterns
	archive  *Archive
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionStats
	onFight  []func(s *client.Session, f Fight)
}

// New creates the unit. archive may be nil.
func New(p Patterns, archive *Archive) *Module {
	return &Module{
		patterns: p,
		archive:  archive,
		now:      time.Now,
		sessions: make(map[string]*sessionStats),
	}
}

func (m *Module) Name() string { return ModuleName }

func (m *Module) MessageTypes() []protocol.MessageType {
	return []protocol.MessageType{protocol.MessageText}
}

func (m *Module) CommandTypes() []protocol.CommandType {
	return []protocol.CommandType{protocol.CommandStats, protocol.CommandStatsReset}
}

func (m *Module) Register(r client.Registrar) error { return r.RegisterUnit(m) }

// From retrieves the stats module from a registry.
func From(r *client.Registry) *Module {
	mod := r.Unit(ModuleName)
	if mod == nil {
		return nil
	}
	return mod.(*Module)
}

// events

func (m *Module) OnFight(cb func(s *client.Session, f Fight)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFight = append(m.onFight, cb)
}

// Snapshot returns the counters of a session.
func (m *Module) Snapshot(sessionID string) Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[sessionID]; ok {
		return st.Report
	}
	return Report{}
}

func (m *Module) HandleMessage(s *client.Session, msg client.Message) error {
	line, ok := client.PayloadAs[protocol.TextLine](msg.Payload)
	if !ok {
		return nil
	}
	text := line.Text
	p := m.patterns

	var (
		d      Counters
		victim string
		zone   string
		killed bool
	)
	if g := match(p.Hit, text); g != nil {
		d.Hits, d.Dealt = 1, amount(g)
	} else if g := match(p.Miss, text); g != nil {
		d.Misses = 1
	} else if g := match(p.Taken, text); g != nil {
		d.Taken = amount(g)
	} else if g := match(p.Kill, text); g != nil {
		d.Kills, victim, killed = 1, group(g), true
	} else if g := match(p.Experience, text); g != nil {
		d.Experience = amount(g)
	} else if g := match(p.Skill, text); g != nil {
		d.SkillUps = 1
	} else if g := match(p.Zone, text); g != nil {
		zone = group(g)
	} else {
		return nil
	}

	m.mu.Lock()
	st, ok := m.sessions[s.ID()]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	var done []Fight
	closeFinished := func() {
		if st.finished != nil {
			done = append(done, *st.finished)
			st.finished = nil
		}
	}

	if zone != "" {
		closeFinished()
		st.Zone = Counters{}
		st.ZoneName = zone
	} else {
		if d.Hits > 0 || d.Misses > 0 || d.Taken > 0 || killed {
			closeFinished()
		}
		if st.finished != nil {
			st.finished.add(d)
		} else {
			if st.fightStart.IsZero() && (d.Hits > 0 || d.Misses > 0 || d.Taken > 0) {
				st.fightStart = m.now()
			}
			st.Fight.add(d)
		}
		st.Zone.add(d)
		st.Session.add(d)
		if d.Experience > 0 {
			closeFinished()
		}
		if killed {
			f := Fight{
				Session:  s.Name(),
				Victim:   victim,
				Zone:     st.ZoneName,
				Started:  st.fightStart,
				Ended:    m.now(),
				Counters: st.Fight,
			}
			if f.Started.IsZero() {
				f.Started = f.Ended
			}
			st.finished = &f
			st.Fight = Counters{}
			st.fightStart = time.Time{}
		}
	}
	cbs := m.onFight
	m.mu.Unlock()

	return m.report(s, cbs, done)
}

// report hands finished fights to the callbacks and the archive.
func (m *Module) report(s *client.Session, cbs []func(*client.Session, Fight), fights []Fight) error {
	var errs []error
	for _, f := range fights {
		for _, cb := range cbs {
			cb(s, f)
		}
		if m.archive == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, m.archive.Save(ctx, f))
		cancel()
	}
	return errors.Join(errs...)
}

func (m *Module) HandleCommand(s *client.Session, cmd *client.Command) error {
	switch cmd.Type {
	case protocol.CommandStats:
		cmd.MarkHandled()
		if p, _ := client.PayloadAs[protocol.Stats](cmd.Payload); p.Recent > 0 {
			return m.printRecent(s, p.Recent)
		}
		r := m.Snapshot(s.ID())
		s.Printf("fight:   %s", r.Fight)
		zone := r.ZoneName
		if zone == "" {
			zone = "unknown"
		}
		s.Printf("zone (%s): %s", zone, r.Zone)
		s.Printf("session: %s", r.Session)
	case protocol.CommandStatsReset:
		cmd.MarkHandled()
		err := m.flush(s, false)
		m.reset(s.ID())
		s.Print("stats reset")
		return err
	}
	return nil
}

func (m *Module) printRecent(s *client.Session, n int) error {
	if m.archive == nil {
		s.Print("no fight archive")
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	fights, err := m.archive.Recent(ctx, s.Name(), n)
	if err != nil {
		return err
	}
	if len(fights) == 0 {
		s.Print("no fights archived")
		return nil
	}
	for _, f := range fights {
		zone := f.Zone
		if zone == "" {
			zone = "unknown"
		}
		s.Printf("%s %s (%s, %s): %s", f.Ended.Format("2006-01-02 15:04"), f.Victim, zone,
			f.Ended.Sub(f.Started).Round(time.Second), f.Counters)
	}
	return nil
}

func (m *Module) SessionCreated(s *client.Session)    { m.reset(s.ID()) }
func (m *Module) SessionFocused(_, _ *client.Session) {}

// SessionDestroyed reports a fight still waiting for its experience and
// drops the session.
func (m *Module) SessionDestroyed(s *client.Session) {
	if err := m.flush(s, true); err != nil {
		log := s.Logger()
		log.Warn().Err(err).Msg("archive last fight")
	}
}

// flush reports the session's finished fight, if any, and with drop also
// forgets the session.
func (m *Module) flush(s *client.Session, drop bool) error {
	m.mu.Lock()
	var done []Fight
	if st, ok := m.sessions[s.ID()]; ok && st.finished != nil {
		done = append(done, *st.finished)
		st.finished = nil
	}
	if drop {
		delete(m.sessions, s.ID())
	}
	cbs := m.onFight
	m.mu.Unlock()
	return m.report(s, cbs, done)
}

func (m *Module) reset(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = &sessionStats{}
}

func match(re *regexp.Regexp, text string) []string {
	if re == nil {
		return nil
	}
	return re.FindStringSubmatch(text)
}

func amount(groups []string) int {
	if len(groups) < 2 {
		return 0
	}
	n, _ := strconv.Atoi(groups[1])
	return n
}

func group(groups []string) string {
	if len(groups) < 2 {
		return ""
	}
	return groups[1]
}
