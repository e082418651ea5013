package sessionlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-mudlib/client/pkg/client"
	"github.com/go-mudlib/client/pkg/protocol"
)

const ModuleName = "sessionlog"

type logFile struct {
	path string
	f    *os.File
}

// Module appends the server text of a session to a file between #log
// <path> and #log. Relative paths are resolved against the base directory.
type Module struct {
	dir        string
	timestamps bool

	mu    sync.Mutex
	files map[string]*logFile
}

// New creates the unit. With timestamps set every line is prefixed with the
// local time of arrival.
func New(dir string, timestamps bool) *Module {
	return &Module{dir: dir, timestamps: timestamps, files: make(map[string]*logFile)}
}

func (m *Module) Name() string { return ModuleName }

func (m *Module) MessageTypes() []protocol.MessageType {
	return []protocol.MessageType{protocol.MessageText}
}

func (m *Module) CommandTypes() []protocol.CommandType {
	return []protocol.CommandType{protocol.CommandStartLog, protocol.CommandStopLog}
}

func (m *Module) Register(r client.Registrar) error { return r.RegisterUnit(m) }

// From retrieves the session log module from a registry.
func From(r *client.Registry) *Module {
	mod := r.Unit(ModuleName)
	if mod == nil {
		return nil
	}
	return mod.(*Module)
}

// Path returns the file a session is logging to, if any.
func (m *Module) Path(sessionID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lf, ok := m.files[sessionID]; ok {
		return lf.path, true
	}
	return "", false
}

func (m *Module) HandleMessage(s *client.Session, msg client.Message) error {
	line, ok := client.PayloadAs[protocol.TextLine](msg.Payload)
	if !ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	lf, ok := m.files[s.ID()]
	if !ok {
		return nil
	}
	text := line.Text + "\n"
	if m.timestamps {
		text = time.Now().Format("15:04:05 ") + text
	}
	if _, err := lf.f.WriteString(text); err != nil {
		// a failing file is closed so the error is reported once
		lf.f.Close()
		delete(m.files, s.ID())
		return fmt.Errorf("sessionlog: write %s: %w", lf.path, err)
	}
	return nil
}

func (m *Module) HandleCommand(s *client.Session, cmd *client.Command) error {
	switch p := cmd.Payload.(type) {
	case protocol.StartLog:
		cmd.MarkHandled()
		path, err := m.start(s, p.Path)
		if err != nil {
			return err
		}
		s.Printf("logging to %s", path)
	case protocol.StopLog:
		cmd.MarkHandled()
		path, ok, err := m.stop(s.ID())
		if !ok {
			s.Print("not logging")
			return nil
		}
		if err != nil {
			return err
		}
		s.Printf("log %s closed", path)
	}
	return nil
}

func (m *Module) SessionCreated(_ *client.Session)    {}
func (m *Module) SessionFocused(_, _ *client.Session) {}

func (m *Module) SessionDestroyed(s *client.Session) {
	if _, _, err := m.stop(s.ID()); err != nil {
		log := s.Logger()
		log.Warn().Err(err).Msg("close session log")
	}
}

func (m *Module) start(s *client.Session, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("sessionlog: empty path")
	}
	if !filepath.IsAbs(path) && m.dir != "" {
		path = filepath.Join(m.dir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("sessionlog: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("sessionlog: %w", err)
	}

	m.mu.Lock()
	if !s.Active() {
		m.mu.Unlock()
		f.Close()
		return "", client.ErrSessionClosed
	}
	prev := m.files[s.ID()]
	m.files[s.ID()] = &logFile{path: path, f: f}
	m.mu.Unlock()

	if prev != nil {
		if err := prev.f.Close(); err != nil {
			log := s.Logger()
			log.Warn().Err(err).Str("path", prev.path).Msg("close previous session log")
		}
	}
	log := s.Logger()
	log.Info().Str("path", path).Msg("session log started")
	return path, nil
}

func (m *Module) stop(sessionID string) (path string, ok bool, err error) {
	m.mu.Lock()
	lf, ok := m.files[sessionID]
	delete(m.files, sessionID)
	m.mu.Unlock()
	if !ok {
		return "", false, nil
	}
	if err := lf.f.Close(); err != nil {
		return lf.path, true, fmt.Errorf("sessionlog: close %s: %w", lf.path, err)
	}
	return lf.path, true, nil
}
