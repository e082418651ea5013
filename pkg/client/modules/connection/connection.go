package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-mudlib/client/pkg/client"
	"github.com/go-mudlib/client/pkg/protocol"
	"github.com/go-mudlib/client/pkg/telnet"
)

const ModuleName = "connection"

// State of a session's link to its server.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var ErrNoAddress = errors.New("connection: no server address")

// Options configure dialing and reconnection. MaxReconnectAttempts of 0
// disables reconnecting, -1 retries forever.
type Options struct {
	Address              string
	DialTimeout          time.Duration
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	// Accept lists the telnet options agreed to and forwarded as frames.
	Accept []byte
}

func DefaultOptions() Options {
	return Options{
		DialTimeout:          10 * time.Second,
		MaxReconnectAttempts: 5,
		ReconnectDelay:       3 * time.Second,
		Accept: []byte{
			telnet.OptEOR,
			telnet.OptCompress2,
			byte(protocol.MessageLore),
			byte(protocol.MessageGroup),
			byte(protocol.MessageRoomMonsters),
		},
	}
}

type link struct {
	address string
	cancel  context.CancelFunc
	done    chan struct{}

	mu    sync.Mutex
	state State
}

// Module owns the TCP link of every session: it dials on Connect, pumps the
// server stream through a telnet.Reader into the session, writes the
// session's outbound queue and reconnects after unexpected drops.
type Module struct {
	opts Options
	dial func(ctx context.Context, network, address string) (net.Conn, error)

	mu      sync.Mutex
	links   map[string]*link
	onState []func(s *client.Session, st State)
	wg      sync.WaitGroup
}

func New(opts Options) *Module {
	d := &net.Dialer{Timeout: opts.DialTimeout}
	return &Module{
		opts:  opts,
		dial:  d.DialContext,
		links: make(map[string]*link),
	}
}

func (m *Module) Name() string { return ModuleName }

func (m *Module) MessageTypes() []protocol.MessageType { return nil }

func (m *Module) CommandTypes() []protocol.CommandType {
	return []protocol.CommandType{protocol.CommandConnect, protocol.CommandDisconnect}
}

func (m *Module) Register(r client.Registrar) error {
	if err := r.RegisterUnit(m); err != nil {
		return err
	}
	return r.RegisterEncoder(protocol.CommandSendRaw, client.EncoderFunc(func(_ *client.Session, cmd *client.Command) ([]byte, bool) {
		p, ok := client.PayloadAs[protocol.SendRaw](cmd.Payload)
		return p.Data, ok
	}))
}

// From retrieves the connection module from a registry.
func From(r *client.Registry) *Module {
	mod := r.Unit(ModuleName)
	if mod == nil {
		return nil
	}
	return mod.(*Module)
}

// events

func (m *Module) OnStateChange(cb func(s *client.Session, st State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onState = append(m.onState, cb)
}

// State returns the link state of a session.
func (m *Module) State(sessionID string) State {
	m.mu.Lock()
	l := m.links[sessionID]
	m.mu.Unlock()
	if l == nil {
		return StateDisconnected
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (m *Module) HandleCommand(s *client.Session, cmd *client.Command) error {
	switch p := cmd.Payload.(type) {
	case protocol.Connect:
		cmd.MarkHandled()
		addr := p.Address
		if addr == "" {
			addr = m.opts.Address
		}
		if addr == "" {
			return ErrNoAddress
		}
		m.stop(s.ID())
		m.start(s, addr)
	case protocol.Disconnect:
		cmd.MarkHandled()
		if m.stop(s.ID()) == nil {
			s.Print("not connected")
		}
	}
	return nil
}

func (m *Module) SessionCreated(_ *client.Session)    {}
func (m *Module) SessionFocused(_, _ *client.Session) {}
func (m *Module) SessionDestroyed(s *client.Session)  { m.stop(s.ID()) }

func (m *Module) start(s *client.Session, addr string) {
	ctx, cancel := context.WithCancel(context.Background())
	l := &link{address: addr, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.links[s.ID()] = l
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(l.done)
		defer cancel()
		go func() {
			select {
			case <-s.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
		err := m.runConnectionLoop(ctx, s, l)
		m.setState(s, l, StateDisconnected)

		m.mu.Lock()
		if m.links[s.ID()] == l {
			delete(m.links, s.ID())
		}
		m.mu.Unlock()

		if err != nil && ctx.Err() == nil {
			s.Errorf("connection to %s closed: %v", addr, err)
		}
	}()
}

// Close drops every link and waits for them to finish. It must not be
// called from a unit handler.
func (m *Module) Close() {
	m.mu.Lock()
	links := m.links
	m.links = make(map[string]*link)
	m.mu.Unlock()
	for _, l := range links {
		l.cancel()
	}
	m.wg.Wait()
}

// stop cancels the session's link and returns a channel closed once it has
// wound down, or nil if there was no link. Handlers may run on the link's
// own goroutine, so nothing here waits.
func (m *Module) stop(sessionID string) <-chan struct{} {
	m.mu.Lock()
	l := m.links[sessionID]
	delete(m.links, sessionID)
	m.mu.Unlock()
	if l == nil {
		return nil
	}
	l.cancel()
	return l.done
}

func (m *Module) runConnectionLoop(ctx context.Context, s *client.Session, l *link) error {
	log := s.Logger().With().Str("address", l.address).Logger()
	attempts := 0
	maxAttempts := m.opts.MaxReconnectAttempts

	for {
		connected, err := m.connectOnce(ctx, s, l)
		if ctx.Err() != nil || !s.Active() {
			return nil
		}
		if err == nil {
			s.Printf("connection to %s closed by server", l.address)
		} else {
			log.Warn().Err(err).Msg("connection error")
		}
		if connected {
			attempts = 0
		}
		if maxAttempts == 0 {
			return err
		}
		attempts++
		if maxAttempts > 0 && attempts > maxAttempts {
			log.Warn().Int("attempts", maxAttempts).Msg("max reconnect attempts reached, giving up")
			return fmt.Errorf("gave up after %d attempts: %w", maxAttempts, err)
		}
		if maxAttempts < 0 {
			s.Printf("reconnecting in %s (attempt %d)", m.opts.ReconnectDelay, attempts)
		} else {
			s.Printf("reconnecting in %s (attempt %d/%d)", m.opts.ReconnectDelay, attempts, maxAttempts)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.opts.ReconnectDelay):
		}
	}
}

// connectOnce dials, runs the link until it drops and reports whether the
// dial succeeded. A nil error means the server closed the stream.
func (m *Module) connectOnce(ctx context.Context, s *client.Session, l *link) (bool, error) {
	m.setState(s, l, StateConnecting)
	conn, err := m.dial(ctx, "tcp", l.address)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", l.address, err)
	}
	defer conn.Close()

	// a partial frame from an earlier stream must not prefix this one
	if err := s.ResetFrames(); err != nil {
		return true, err
	}
	m.setState(s, l, StateConnected)
	s.Printf("connected to %s", l.address)
	log := s.Logger()
	log.Info().Str("address", l.address).Msg("connected")

	linkCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-linkCtx.Done()
		conn.Close()
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		m.writeLoop(linkCtx, s, conn)
		cancel()
	}()

	r := telnet.NewReader(conn, conn, s, s.Logger(), m.opts.Accept...)
	err = r.Run()
	cancel()
	<-writerDone

	if ctx.Err() != nil || client.IsSessionGone(err) {
		return true, nil
	}
	return true, err
}

func (m *Module) writeLoop(ctx context.Context, s *client.Session, conn net.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-s.Outbound():
			if _, err := conn.Write(b); err != nil {
				log := s.Logger()
				log.Warn().Err(err).Msg("write failed")
				return
			}
		}
	}
}

func (m *Module) setState(s *client.Session, l *link, st State) {
	l.mu.Lock()
	changed := l.state != st
	l.state = st
	l.mu.Unlock()
	if !changed {
		return
	}
	m.mu.Lock()
	cbs := m.onState
	m.mu.Unlock()
	for _, cb := range cbs {
		cb(s, st)
	}
}
