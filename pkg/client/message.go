package client

import (
	"fmt"

	"github.com/go-mudlib/client/pkg/protocol"
)

// Message is one decoded server payload. Payload holds the record the
// decoder for Type produced.
type Message struct {
	Type      protocol.MessageType
	SessionID string
	Payload   any
}

// Command origins.
const (
	OriginUser    = "user"
	OriginScript  = "script"
	OriginTrigger = "trigger"
	OriginHotkey  = "hotkey"
	OriginTimer   = "timer"
	OriginRemote  = "remote"
)

// MaxDepth bounds how many times commands may derive new commands from each
// other (aliases expanding to aliases, triggers firing triggers).
const MaxDepth = 16

// Command is an action for the units and, unless one of them handles it,
// for the server. Handled is advisory: every subscribed unit still runs.
type Command struct {
	Type    protocol.CommandType
	Payload any
	Origin  string
	Depth   int

	handled bool
}

// NewCommand builds a command with the user origin.
func NewCommand(t protocol.CommandType, payload any) *Command {
	return &Command{Type: t, Payload: payload, Origin: OriginUser}
}

// Input is shorthand for a user input line.
func Input(text string) *Command {
	return NewCommand(protocol.CommandInput, protocol.Input{Text: text})
}

// SendText is shorthand for literal server text.
func SendText(text string) *Command {
	return NewCommand(protocol.CommandSendText, protocol.SendText{Text: text})
}

// Derive builds a child command one level deeper than c.
func (c *Command) Derive(t protocol.CommandType, payload any, origin string) *Command {
	return &Command{Type: t, Payload: payload, Origin: origin, Depth: c.Depth + 1}
}

func (c *Command) MarkHandled()  { c.handled = true }
func (c *Command) Handled() bool { return c.handled }

func (c *Command) String() string {
	return fmt.Sprintf("%s(%s)", c.Type, c.Origin)
}

// Text returns the textual form of text-shaped commands.
func (c *Command) Text() (string, bool) {
	switch p := c.Payload.(type) {
	case protocol.SendText:
		return p.Text, true
	case protocol.Input:
		return p.Text, true
	}
	return "", false
}

// PayloadAs returns the payload of a message or command as T.
func PayloadAs[T any](payload any) (T, bool) {
	v, ok := payload.(T)
	return v, ok
}
