package client

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-mudlib/client/pkg/protocol"
	"github.com/rs/zerolog"
)

// Registrar is the registration surface handed to plugins.
type Registrar interface {
	RegisterDecoder(tag protocol.MessageType, d Decoder) error
	RegisterCommandType(tag protocol.CommandType, name string) error
	RegisterUnit(u Unit) error
	RegisterEncoder(tag protocol.CommandType, e Encoder) error
}

type messageRoute struct {
	unit    Unit
	handler MessageHandler
}

type commandRoute struct {
	unit    Unit
	handler CommandHandler
}

type observerRoute struct {
	unit     Unit
	observer SessionObserver
}

// Registry maps type tags to their decoder, their encoders and the units
// subscribed to them. All registration happens before the first session is
// created; after Seal the tables are only read.
type Registry struct {
	log zerolog.Logger

	mu     sync.Mutex
	sealed atomic.Bool

	decoders     map[protocol.MessageType]Decoder
	commandNames map[protocol.CommandType]string
	encoders     map[protocol.CommandType][]Encoder

	units        []Unit
	unitsByName  map[string]Unit
	messageUnits map[protocol.MessageType][]messageRoute
	commandUnits map[protocol.CommandType][]commandRoute
	observers    []observerRoute
}

// NewRegistry creates an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log:          log.With().Str("component", "registry").Logger(),
		decoders:     make(map[protocol.MessageType]Decoder),
		commandNames: make(map[protocol.CommandType]string),
		encoders:     make(map[protocol.CommandType][]Encoder),
		unitsByName:  make(map[string]Unit),
		messageUnits: make(map[protocol.MessageType][]messageRoute),
		commandUnits: make(map[protocol.CommandType][]commandRoute),
	}
}

// RegisterDecoder makes d the owner of tag. One decoder owns one tag.
func (r *Registry) RegisterDecoder(tag protocol.MessageType, d Decoder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkDecoder(tag, d); err != nil {
		return err
	}
	r.decoders[tag] = d
	return nil
}

// RegisterCommandType claims a command tag for a plugin-defined command.
func (r *Registry) RegisterCommandType(tag protocol.CommandType, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkCommandType(tag); err != nil {
		return err
	}
	r.commandNames[tag] = name
	return nil
}

// RegisterUnit adds u to the dispatch list of every tag it declares, after
// the units registered before it.
func (r *Registry) RegisterUnit(u Unit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkUnit(u); err != nil {
		return err
	}
	r.addUnit(u)
	return nil
}

// RegisterEncoder appends e to the encoders tried for tag.
func (r *Registry) RegisterEncoder(tag protocol.CommandType, e Encoder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() {
		return ErrRegistrySealed
	}
	if e == nil {
		return fmt.Errorf("client: nil encoder for %s", tag)
	}
	r.encoders[tag] = append(r.encoders[tag], e)
	return nil
}

// Seal ends the registration phase.
func (r *Registry) Seal() {
	r.sealed.Store(true)
}

func (r *Registry) Sealed() bool { return r.sealed.Load() }

// Unit returns a registered unit by name, or nil.
func (r *Registry) Unit(name string) Unit {
	return r.unitsByName[name]
}

// Units returns the units in registration order.
func (r *Registry) Units() []Unit {
	out := make([]Unit, len(r.units))
	copy(out, r.units)
	return out
}

// Decoder returns the decoder owning tag.
func (r *Registry) Decoder(tag protocol.MessageType) (Decoder, bool) {
	d, ok := r.decoders[tag]
	return d, ok
}

// CommandName returns the display name of a command tag.
func (r *Registry) CommandName(tag protocol.CommandType) string {
	if n, ok := r.commandNames[tag]; ok {
		return n
	}
	return tag.String()
}

func (r *Registry) checkDecoder(tag protocol.MessageType, d Decoder) error {
	if r.sealed.Load() {
		return ErrRegistrySealed
	}
	if d == nil {
		return fmt.Errorf("client: nil decoder for %s", tag)
	}
	if _, ok := r.decoders[tag]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateDecoder, tag)
	}
	return nil
}

func (r *Registry) checkCommandType(tag protocol.CommandType) error {
	if r.sealed.Load() {
		return ErrRegistrySealed
	}
	if tag.IsBuiltin() {
		return fmt.Errorf("%w: %s", ErrReservedTypeTag, tag)
	}
	if n, ok := r.commandNames[tag]; ok {
		return fmt.Errorf("%w: %d claimed by %q", ErrDuplicateCommand, tag, n)
	}
	return nil
}

func (r *Registry) checkUnit(u Unit) error {
	if r.sealed.Load() {
		return ErrRegistrySealed
	}
	if u == nil {
		return fmt.Errorf("client: nil unit")
	}
	if _, ok := r.unitsByName[u.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateUnit, u.Name())
	}
	if len(u.MessageTypes()) > 0 {
		if _, ok := u.(MessageHandler); !ok {
			return fmt.Errorf("%w: %s declares messages", ErrMissingHandler, u.Name())
		}
	}
	if len(u.CommandTypes()) > 0 {
		if _, ok := u.(CommandHandler); !ok {
			return fmt.Errorf("%w: %s declares commands", ErrMissingHandler, u.Name())
		}
	}
	return nil
}

func (r *Registry) addUnit(u Unit) {
	r.units = append(r.units, u)
	r.unitsByName[u.Name()] = u
	if h, ok := u.(MessageHandler); ok {
		for _, tag := range dedupe(u.MessageTypes()) {
			r.messageUnits[tag] = append(r.messageUnits[tag], messageRoute{unit: u, handler: h})
		}
	}
	if h, ok := u.(CommandHandler); ok {
		for _, tag := range dedupe(u.CommandTypes()) {
			r.commandUnits[tag] = append(r.commandUnits[tag], commandRoute{unit: u, handler: h})
		}
	}
	if o, ok := u.(SessionObserver); ok {
		r.observers = append(r.observers, observerRoute{unit: u, observer: o})
	}
	r.log.Debug().Str("unit", u.Name()).Msg("unit registered")
}

func dedupe[T comparable](in []T) []T {
	seen := make(map[T]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// RegisterBuiltins installs the decoders for the built-in message tags.
func RegisterBuiltins(r *Registry) error {
	builtins := []struct {
		tag protocol.MessageType
		dec Decoder
	}{
		{protocol.MessageText, DecoderFunc(func(s string) (any, error) { return protocol.DecodeText(s), nil })},
		{protocol.MessageLore, DecoderFunc(func(s string) (any, error) { return protocol.DecodeLore(s) })},
		{protocol.MessageGroup, DecoderFunc(func(s string) (any, error) { return protocol.DecodeGroup(s) })},
		{protocol.MessageRoomMonsters, DecoderFunc(func(s string) (any, error) { return protocol.DecodeRoomMonsters(s) })},
	}
	for _, b := range builtins {
		if err := r.RegisterDecoder(b.tag, b.dec); err != nil {
			return err
		}
	}
	return nil
}
