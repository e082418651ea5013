package client

import (
	"errors"
	"fmt"

	"github.com/go-mudlib/client/pkg/protocol"
)

var (
	ErrDuplicateDecoder   = errors.New("client: decoder already registered")
	ErrDuplicateCommand   = errors.New("client: command type already claimed")
	ErrDuplicateUnit      = errors.New("client: unit already registered")
	ErrMissingHandler     = errors.New("client: unit declares types it cannot handle")
	ErrReservedTypeTag    = errors.New("client: type tag is reserved for built-ins")
	ErrRegistrySealed     = errors.New("client: registry is sealed")
	ErrUnknownMessageType = errors.New("client: no decoder for message type")
	ErrInvalidChunk       = errors.New("client: chunk offset/count out of range")
	ErrAccumulatorIdle    = errors.New("client: accumulator idle timeout")
	ErrSessionNotActive   = errors.New("client: session is not active")
	ErrSessionClosed      = errors.New("client: session is closed")
	ErrDuplicateSession   = errors.New("client: session name already in use")
	ErrUnknownSession     = errors.New("client: unknown session")
	ErrNilCommand         = errors.New("client: nil command")
	ErrQueueFull          = errors.New("client: conveyor queue is full")
)

// DecodeError reports an out-of-band block that could not be turned into a
// Message. The accumulator for Type has already been discarded.
type DecodeError struct {
	Type protocol.MessageType
	Size int // bytes received for the discarded frame
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s (%d bytes): %v", e.Type, e.Size, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UnitFailure reports a unit that returned an error or panicked while
// handling a message, command or lifecycle hook.
type UnitFailure struct {
	Unit      string
	Operation string // "message", "command", "created", "focused", "destroyed"
	Tag       string
	Panicked  bool
	Err       error
}

func (e *UnitFailure) Error() string {
	s := fmt.Sprintf("unit %s failed on %s", e.Unit, e.Operation)
	if e.Tag != "" {
		s += " " + e.Tag
	}
	if e.Panicked {
		s += " (panic)"
	}
	return s + ": " + e.Err.Error()
}

func (e *UnitFailure) Unwrap() error { return e.Err }

// RegistrationError reports a plugin whose registrations were rejected.
type RegistrationError struct {
	Plugin string
	Err    error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("plugin %s: %v", e.Plugin, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }
