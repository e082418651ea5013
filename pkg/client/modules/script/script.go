package script

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-mudlib/client/pkg/client"
	"github.com/go-mudlib/client/pkg/protocol"
)

const (
	ModuleName = "script"

	// Prefix starts a client-side command.
	Prefix = '#'
)

// Trigger runs Action whenever a server line matches Pattern. Capture
// groups are available to the action as %1..%9, the whole match as %0.
type Trigger struct {
	Pattern string
	Action  string

	re *regexp.Regexp
}

type scope struct {
	aliases  map[string]string
	triggers []*Trigger
	hotkeys  map[string]string
}

func newScope() *scope {
	return &scope{aliases: make(map[string]string), hotkeys: make(map[string]string)}
}

// Module interprets user input: it splits lines on ';', runs '#' commands,
// expands aliases and $variables and fires triggers on server text.
type Module struct {
	mu       sync.RWMutex
	sessions map[string]*scope
}

func New() *Module {
	return &Module{sessions: make(map[string]*scope)}
}

func (m *Module) Name() string { return ModuleName }

func (m *Module) MessageTypes() []protocol.MessageType {
	return []protocol.MessageType{protocol.MessageText}
}

func (m *Module) CommandTypes() []protocol.CommandType {
	return []protocol.CommandType{
		protocol.CommandInput,
		protocol.CommandSetVariable,
		protocol.CommandClearVariable,
		protocol.CommandIf,
		protocol.CommandHotkey,
	}
}

func (m *Module) Register(r client.Registrar) error { return r.RegisterUnit(m) }

// From retrieves the script module from a registry.
func From(r *client.Registry) *Module {
	mod := r.Unit(ModuleName)
	if mod == nil {
		return nil
	}
	return mod.(*Module)
}

func (m *Module) SessionCreated(s *client.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = newScope()
}

func (m *Module) SessionFocused(_, _ *client.Session) {}

func (m *Module) SessionDestroyed(s *client.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, s.ID())
}

// Aliases returns the alias names of a session, sorted.
func (m *Module) Aliases(sessionID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc := m.sessions[sessionID]
	if sc == nil {
		return nil
	}
	out := make([]string, 0, len(sc.aliases))
	for k := range sc.aliases {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Triggers returns copies of the triggers of a session in firing order.
func (m *Module) Triggers(sessionID string) []Trigger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc := m.sessions[sessionID]
	if sc == nil {
		return nil
	}
	out := make([]Trigger, 0, len(sc.triggers))
	for _, t := range sc.triggers {
		out = append(out, Trigger{Pattern: t.Pattern, Action: t.Action})
	}
	return out
}

func (m *Module) HandleMessage(s *client.Session, msg client.Message) error {
	line, ok := client.PayloadAs[protocol.TextLine](msg.Payload)
	if !ok {
		return nil
	}
	m.mu.RLock()
	var fired []string
	if sc := m.sessions[s.ID()]; sc != nil {
		for _, t := range sc.triggers {
			if groups := t.re.FindStringSubmatch(line.Text); groups != nil {
				fired = append(fired, expandParams(t.Action, groups))
			}
		}
	}
	m.mu.RUnlock()

	for _, action := range fired {
		cmd := client.Input(action)
		cmd.Origin = client.OriginTrigger
		cmd.Depth = 1
		if err := s.Submit(cmd); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) HandleCommand(s *client.Session, cmd *client.Command) error {
	switch p := cmd.Payload.(type) {
	case protocol.Input:
		cmd.MarkHandled()
		return m.input(s, cmd, p.Text)
	case protocol.SetVariable:
		cmd.MarkHandled()
		s.SetVar(p.Name, p.Value)
	case protocol.ClearVariable:
		cmd.MarkHandled()
		s.DeleteVar(p.Name)
	case protocol.If:
		cmd.MarkHandled()
		branch := p.Else
		if eval(expandVars(p.Cond, s.Var)) {
			branch = p.Then
		}
		if branch != "" {
			return s.Submit(cmd.Derive(protocol.CommandInput, protocol.Input{Text: branch}, client.OriginScript))
		}
	case protocol.Hotkey:
		m.mu.RLock()
		var action string
		if sc := m.sessions[s.ID()]; sc != nil {
			action = sc.hotkeys[p.Key]
		}
		m.mu.RUnlock()
		if action == "" {
			return nil
		}
		cmd.MarkHandled()
		return s.Submit(cmd.Derive(protocol.CommandInput, protocol.Input{Text: action}, client.OriginHotkey))
	}
	return nil
}

func (m *Module) input(s *client.Session, cmd *client.Command, text string) error {
	parts := split(text)
	if len(parts) == 0 && text == "" {
		// a bare Enter still reaches the server
		return s.Submit(cmd.Derive(protocol.CommandSendText, protocol.SendText{}, client.OriginScript))
	}
	for _, part := range parts {
		var (
			next []*client.Command
			err  error
		)
		if part[0] == Prefix {
			next, err = m.builtin(s, cmd, part[1:])
		} else {
			next = m.plain(s, cmd, part)
		}
		if err != nil {
			s.Errorf("%s: %v", part, err)
			continue
		}
		for _, c := range next {
			if err := s.Submit(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// plain expands an alias or sends the text to the server.
func (m *Module) plain(s *client.Session, cmd *client.Command, part string) []*client.Command {
	word, rest, _ := strings.Cut(part, " ")
	rest = strings.TrimSpace(rest)

	m.mu.RLock()
	var action string
	if sc := m.sessions[s.ID()]; sc != nil {
		action = sc.aliases[word]
	}
	m.mu.RUnlock()

	if action != "" {
		params := append([]string{rest}, strings.Fields(rest)...)
		return []*client.Command{cmd.Derive(protocol.CommandInput, protocol.Input{Text: expandParams(action, params)}, client.OriginScript)}
	}
	text := expandVars(part, s.Var)
	return []*client.Command{cmd.Derive(protocol.CommandSendText, protocol.SendText{Text: text}, cmd.Origin)}
}

func (m *Module) builtin(s *client.Session, cmd *client.Command, line string) ([]*client.Command, error) {
	name, rest, _ := strings.Cut(line, " ")
	name = strings.ToLower(name)
	// bodies stored for later keep their $vars; everything else expands now
	raw := strings.TrimSpace(rest)
	rest = expandVars(raw, s.Var)
	derive := func(t protocol.CommandType, payload any) []*client.Command {
		return []*client.Command{cmd.Derive(t, payload, client.OriginScript)}
	}

	switch name {
	case "var", "variable":
		a := args(rest, 2)
		if len(a) == 0 {
			m.listVars(s)
			return nil, nil
		}
		if len(a) < 2 {
			return nil, fmt.Errorf("usage: #var name value")
		}
		return derive(protocol.CommandSetVariable, protocol.SetVariable{Name: a[0], Value: a[1]}), nil
	case "unvar", "unvariable":
		if rest == "" {
			return nil, fmt.Errorf("usage: #unvar name")
		}
		return derive(protocol.CommandClearVariable, protocol.ClearVariable{Name: rest}), nil
	case "action":
		a := args(raw, 2)
		if len(a) < 2 {
			return nil, fmt.Errorf("usage: #action {pattern} {commands}")
		}
		return nil, m.addTrigger(s, a[0], a[1])
	case "unaction":
		return nil, m.removeTrigger(s, unbrace(raw))
	case "alias":
		a := args(raw, 2)
		if len(a) < 2 {
			return nil, fmt.Errorf("usage: #alias name {commands}")
		}
		m.edit(s, func(sc *scope) { sc.aliases[a[0]] = a[1] })
		s.Printf("alias %s set", a[0])
		return nil, nil
	case "unalias":
		m.edit(s, func(sc *scope) { delete(sc.aliases, rest) })
		return nil, nil
	case "hotkey":
		a := args(raw, 2)
		if len(a) < 2 {
			return nil, fmt.Errorf("usage: #hotkey key {commands}")
		}
		m.edit(s, func(sc *scope) { sc.hotkeys[a[0]] = a[1] })
		return nil, nil
	case "if":
		a := args(raw, 3)
		if len(a) < 2 {
			return nil, fmt.Errorf("usage: #if {condition} {then} [{else}]")
		}
		in := protocol.If{Cond: a[0], Then: a[1]}
		if len(a) == 3 {
			in.Else = a[2]
		}
		return derive(protocol.CommandIf, in), nil
	case "log":
		if rest == "" || rest == "off" {
			return derive(protocol.CommandStopLog, protocol.StopLog{}), nil
		}
		return derive(protocol.CommandStartLog, protocol.StartLog{Path: rest}), nil
	case "all":
		return derive(protocol.CommandBroadcast, protocol.Broadcast{Text: unbrace(raw)}), nil
	case "to":
		a := args(raw, 2)
		if len(a) < 2 {
			return nil, fmt.Errorf("usage: #to session {commands}")
		}
		return derive(protocol.CommandRoute, protocol.Route{Session: a[0], Text: a[1]}), nil
	case "lore":
		return m.lore(rest, derive)
	case "stats":
		return stats(rest, derive)
	case "connect":
		return derive(protocol.CommandConnect, protocol.Connect{Address: rest}), nil
	case "disconnect", "zap":
		return derive(protocol.CommandDisconnect, protocol.Disconnect{}), nil
	case "fullscreen":
		return derive(protocol.CommandToggleFullScreen, protocol.ToggleFullScreen{}), nil
	}
	return nil, fmt.Errorf("unknown command #%s", name)
}

const defaultRecentFights = 10

func stats(rest string, derive func(protocol.CommandType, any) []*client.Command) ([]*client.Command, error) {
	sub, arg, _ := strings.Cut(rest, " ")
	switch sub {
	case "":
		return derive(protocol.CommandStats, protocol.Stats{}), nil
	case "reset":
		return derive(protocol.CommandStatsReset, protocol.StatsReset{}), nil
	case "recent":
		n := defaultRecentFights
		if arg = strings.TrimSpace(arg); arg != "" {
			v, err := strconv.Atoi(arg)
			if err != nil || v < 1 {
				return nil, fmt.Errorf("#stats recent: %q is not a positive count", arg)
			}
			n = v
		}
		return derive(protocol.CommandStats, protocol.Stats{Recent: n}), nil
	}
	return nil, fmt.Errorf("usage: #stats [reset | recent [n]]")
}

func (m *Module) lore(rest string, derive func(protocol.CommandType, any) []*client.Command) ([]*client.Command, error) {
	sub, arg, _ := strings.Cut(rest, " ")
	arg = strings.TrimSpace(arg)
	switch sub {
	case "":
		return nil, fmt.Errorf("usage: #lore name | #lore search text | #lore comment {name} text")
	case "search":
		return derive(protocol.CommandLoreSearch, protocol.LoreSearch{Query: arg}), nil
	case "comment":
		a := args(arg, 2)
		if len(a) == 0 {
			return nil, fmt.Errorf("usage: #lore comment {name} text")
		}
		c := protocol.LoreComment{Name: a[0]}
		if len(a) == 2 {
			c.Comment = a[1]
		}
		return derive(protocol.CommandLoreComment, c), nil
	}
	return derive(protocol.CommandLoreLookup, protocol.LoreLookup{Name: unbrace(rest)}), nil
}

func (m *Module) addTrigger(s *client.Session, pattern, action string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("bad pattern: %w", err)
	}
	m.edit(s, func(sc *scope) {
		for _, t := range sc.triggers {
			if t.Pattern == pattern {
				t.Action, t.re = action, re
				return
			}
		}
		sc.triggers = append(sc.triggers, &Trigger{Pattern: pattern, Action: action, re: re})
	})
	s.Printf("action {%s} set", pattern)
	return nil
}

func (m *Module) removeTrigger(s *client.Session, pattern string) error {
	removed := false
	m.edit(s, func(sc *scope) {
		for i, t := range sc.triggers {
			if t.Pattern == pattern {
				sc.triggers = append(sc.triggers[:i], sc.triggers[i+1:]...)
				removed = true
				return
			}
		}
	})
	if !removed {
		return fmt.Errorf("no action {%s}", pattern)
	}
	return nil
}

func (m *Module) edit(s *client.Session, fn func(sc *scope)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// the scope exists from SessionCreated to SessionDestroyed
	if sc := m.sessions[s.ID()]; sc != nil {
		fn(sc)
	}
}

func (m *Module) listVars(s *client.Session) {
	vars := s.Vars()
	if len(vars) == 0 {
		s.Print("no variables")
		return
	}
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		s.Printf("$%s = %s", k, vars[k])
	}
}
