package router

import (
	"github.com/go-mudlib/client/pkg/client"
	"github.com/go-mudlib/client/pkg/protocol"
)

const ModuleName = "router"

// Module forwards input between sessions: #all to every live session and
// #to to a session chosen by name.
type Module struct{}

func New() *Module { return &Module{} }

func (m *Module) Name() string { return ModuleName }

func (m *Module) MessageTypes() []protocol.MessageType { return nil }

func (m *Module) CommandTypes() []protocol.CommandType {
	return []protocol.CommandType{protocol.CommandBroadcast, protocol.CommandRoute}
}

func (m *Module) Register(r client.Registrar) error { return r.RegisterUnit(m) }

func (m *Module) HandleCommand(s *client.Session, cmd *client.Command) error {
	switch p := cmd.Payload.(type) {
	case protocol.Broadcast:
		cmd.MarkHandled()
		s.Multiplexer().Broadcast(cmd.Derive(protocol.CommandInput, protocol.Input{Text: p.Text}, client.OriginRemote))
	case protocol.Route:
		cmd.MarkHandled()
		target := s.Multiplexer().SessionByName(p.Session)
		if target == nil {
			s.Errorf("no session named %q", p.Session)
			return nil
		}
		err := target.Submit(cmd.Derive(protocol.CommandInput, protocol.Input{Text: p.Text}, client.OriginRemote))
		if client.IsSessionGone(err) {
			s.Errorf("session %q is closed", p.Session)
			return nil
		}
		return err
	}
	return nil
}
