package client

import "github.com/go-mudlib/client/pkg/protocol"

// Unit is a pluggable handler. The interest sets are read once, when the
// unit is registered.
type Unit interface {
	// Name returns a unique key for this unit (e.g. "lore", "group", "script").
	Name() string
	// MessageTypes lists the message tags the unit wants.
	MessageTypes() []protocol.MessageType
	// CommandTypes lists the command tags the unit wants.
	CommandTypes() []protocol.CommandType
}

// MessageHandler is required of units declaring message types.
// Calls for one session are never concurrent.
type MessageHandler interface {
	HandleMessage(s *Session, msg Message) error
}

// CommandHandler is required of units declaring command types.
// Calls for one session are never concurrent.
type CommandHandler interface {
	HandleCommand(s *Session, cmd *Command) error
}

// SessionObserver is optionally implemented by units that keep per-session
// state. Hooks run in unit registration order.
type SessionObserver interface {
	SessionCreated(s *Session)
	// SessionFocused is called once per actual focus change; prev may be nil.
	SessionFocused(prev, next *Session)
	SessionDestroyed(s *Session)
}

// Decoder turns the accumulated text of one complete frame into a payload.
type Decoder interface {
	Decode(text string) (any, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(text string) (any, error)

func (f DecoderFunc) Decode(text string) (any, error) { return f(text) }

// Encoder may claim a command and return the bytes to send for it.
type Encoder interface {
	Encode(s *Session, cmd *Command) ([]byte, bool)
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(s *Session, cmd *Command) ([]byte, bool)

func (f EncoderFunc) Encode(s *Session, cmd *Command) ([]byte, bool) { return f(s, cmd) }
