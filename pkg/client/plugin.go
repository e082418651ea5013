package client

import (
	"fmt"

	"github.com/go-mudlib/client/pkg/protocol"
)

// Plugin contributes decoders, command tags, units and encoders. Plugins
// may only own tags at or above protocol.PluginTypeBase; units and encoders
// may subscribe to any tag.
type Plugin interface {
	Name() string
	Register(r Registrar) error
}

// Load registers each plugin atomically in order. A plugin whose
// registrations collide with the registry or with each other is skipped
// as a whole; the returned errors are *RegistrationError values.
func (r *Registry) Load(plugins ...Plugin) []error {
	var errs []error
	for _, p := range plugins {
		st := newStage()
		err := p.Register(st)
		if err == nil {
			err = r.commit(st)
		}
		if err != nil {
			rerr := &RegistrationError{Plugin: p.Name(), Err: err}
			r.log.Error().Err(err).Str("plugin", p.Name()).Msg("plugin skipped")
			errs = append(errs, rerr)
			continue
		}
		r.log.Info().Str("plugin", p.Name()).Int("units", len(st.units)).Msg("plugin loaded")
	}
	return errs
}

type stagedDecoder struct {
	tag protocol.MessageType
	dec Decoder
}

type stagedCommand struct {
	tag  protocol.CommandType
	name string
}

type stagedEncoder struct {
	tag protocol.CommandType
	enc Encoder
}

// stage buffers one plugin's registrations until they are all known to fit.
type stage struct {
	decoders []stagedDecoder
	commands []stagedCommand
	units    []Unit
	encoders []stagedEncoder
}

func newStage() *stage { return &stage{} }

func (s *stage) RegisterDecoder(tag protocol.MessageType, d Decoder) error {
	if tag.IsBuiltin() {
		return fmt.Errorf("%w: %s", ErrReservedTypeTag, tag)
	}
	for _, sd := range s.decoders {
		if sd.tag == tag {
			return fmt.Errorf("%w: %s", ErrDuplicateDecoder, tag)
		}
	}
	s.decoders = append(s.decoders, stagedDecoder{tag: tag, dec: d})
	return nil
}

func (s *stage) RegisterCommandType(tag protocol.CommandType, name string) error {
	if tag.IsBuiltin() {
		return fmt.Errorf("%w: %s", ErrReservedTypeTag, tag)
	}
	for _, sc := range s.commands {
		if sc.tag == tag {
			return fmt.Errorf("%w: %d claimed by %q", ErrDuplicateCommand, tag, sc.name)
		}
	}
	s.commands = append(s.commands, stagedCommand{tag: tag, name: name})
	return nil
}

func (s *stage) RegisterUnit(u Unit) error {
	if u == nil {
		return fmt.Errorf("client: nil unit")
	}
	for _, su := range s.units {
		if su.Name() == u.Name() {
			return fmt.Errorf("%w: %s", ErrDuplicateUnit, u.Name())
		}
	}
	s.units = append(s.units, u)
	return nil
}

func (s *stage) RegisterEncoder(tag protocol.CommandType, e Encoder) error {
	if e == nil {
		return fmt.Errorf("client: nil encoder for %s", tag)
	}
	s.encoders = append(s.encoders, stagedEncoder{tag: tag, enc: e})
	return nil
}

func (r *Registry) commit(st *stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sd := range st.decoders {
		if err := r.checkDecoder(sd.tag, sd.dec); err != nil {
			return err
		}
	}
	for _, sc := range st.commands {
		if err := r.checkCommandType(sc.tag); err != nil {
			return err
		}
	}
	for _, u := range st.units {
		if err := r.checkUnit(u); err != nil {
			return err
		}
	}
	if r.sealed.Load() {
		return ErrRegistrySealed
	}

	for _, sd := range st.decoders {
		r.decoders[sd.tag] = sd.dec
	}
	for _, sc := range st.commands {
		r.commandNames[sc.tag] = sc.name
	}
	for _, u := range st.units {
		r.addUnit(u)
	}
	for _, se := range st.encoders {
		r.encoders[se.tag] = append(r.encoders[se.tag], se.enc)
	}
	return nil
}
