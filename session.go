// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppbot

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/ping"
	"mellium.im/xmpp/stanza"
	"mellium.im/xmppbot/bot"
	"mellium.im/xmppbot/element"
	"mellium.im/xmppbot/room"
	"mellium.im/xmppbot/transport"
)

// Namespaces used by the session that are not exported by any package.
const (
	nsNick       = "http://jabber.org/protocol/nick"
	nsDiscoItems = "http://jabber.org/protocol/disco#items"
	nsXHTMLIM    = "http://jabber.org/protocol/xhtml-im"
	nsXHTML      = "http://www.w3.org/1999/xhtml"
)

// Robot receives the messages and lifecycle events produced by a session.
//
// Methods are called from the goroutine running Run, one at a time and never
// while the session is locked, so they may call back into the session.
type Robot interface {
	Receive(msg bot.Message)
	Emit(event string)
}

// Brain stores the users a bot knows about.
type Brain interface {
	// UserForID returns the user with the given ID, creating it if it does not
	// exist, after merging in the non-empty fields of attrs.
	UserForID(id string, attrs bot.User) bot.User
}

// Transport is a single connection to the server.
// Once its event stream reports that it has closed it is never used again.
// Implementations answer pings from the server themselves.
type Transport interface {
	Events() <-chan transport.Event
	Send(ctx context.Context, el element.Element) error
	Close() error
}

// DialFunc starts connecting a new Transport.
// It must not block while the connection is established.
type DialFunc func(ctx context.Context, cfg transport.Config, logger zerolog.Logger) Transport

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used by the session.
// By default nothing is logged.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.log = logger
	}
}

// WithDialer replaces the function used to create connections.
func WithDialer(dial DialFunc) Option {
	return func(s *Session) {
		s.dial = dial
	}
}

// WithXMLLog copies all XML read from and written to the server to in and out.
func WithXMLLog(in, out io.Writer) Option {
	return func(s *Session) {
		s.teeIn = in
		s.teeOut = out
	}
}

type rosterQuery struct {
	room     jid.JID
	callback func([]string, error)
	timer    *time.Timer
}

// Session manages the connection to a server on behalf of a Robot.
type Session struct {
	cfg    Config
	jid    jid.JID
	robot  Robot
	brain  Brain
	log    zerolog.Logger
	dial   DialFunc
	teeIn  io.Writer
	teeOut io.Writer

	// Only touched by the goroutine running Run.
	events <-chan transport.Event
	redial <-chan time.Time

	expired  chan string
	done     chan struct{}
	doneOnce sync.Once

	mu               sync.Mutex
	conn             Transport
	connected        bool
	everOnline       bool
	attempts         int
	iqID             uint64
	heardOwnPresence bool
	anonWarned       bool
	dir              *room.Directory
	queries          map[string]*rosterQuery
	fold             cases.Caser
	outbox           []func()
}

// New validates cfg and returns a session that is not yet connected.
// Any error in the configuration is returned as a *ConfigError.
func New(cfg Config, robot Robot, brain Brain, opts ...Option) (*Session, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	// Validate has already checked the username.
	j := jid.MustParse(cfg.Username)
	s := &Session{
		cfg:   cfg,
		jid:   j,
		robot: robot,
		brain: brain,
		log:   zerolog.Nop(),
		dial: func(ctx context.Context, cfg transport.Config, logger zerolog.Logger) Transport {
			return transport.Dial(ctx, cfg, logger)
		},
		expired: make(chan string),
		done:    make(chan struct{}),
		iqID:    1000,
		dir:     room.NewDirectory(cfg.Rooms...),
		queries: make(map[string]*rosterQuery),
		fold:    cases.Fold(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "xmpp").Logger()
	return s, nil
}

// Config returns the validated configuration of the session.
func (s *Session) Config() Config {
	return s.cfg
}

// Connected reports whether the session is currently online.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Rooms returns the rooms the session joins when it comes online, including
// rooms joined at runtime.
func (s *Session) Rooms() []room.Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir.Rooms()
}

// Run connects to the server and handles stanzas until ctx is canceled or the
// connection is lost and cannot be reestablished, in which case it returns
// ErrReconnectExhausted.
// Run must only be called once.
func (s *Session) Run(ctx context.Context) error {
	s.log.Info().Object("config", s.cfg).Msg("starting xmpp adapter")
	defer s.shutdown()

	err := s.withLock(func() error {
		s.connect(ctx)
		return nil
	})
	if err != nil {
		return err
	}

	keepalive := time.NewTicker(s.cfg.KeepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("shutting down")
			return ctx.Err()
		case ev := <-s.events:
			err = s.withLock(func() error {
				return s.handleEvent(ctx, ev)
			})
		case <-s.redial:
			s.redial = nil
			err = s.withLock(func() error {
				s.connect(ctx)
				return nil
			})
		case <-keepalive.C:
			err = s.withLock(func() error {
				s.ping(ctx)
				return nil
			})
		case id := <-s.expired:
			err = s.withLock(func() error {
				s.expire(id)
				return nil
			})
		}
		if err != nil {
			return err
		}
	}
}

// withLock runs f with the session locked and then delivers anything f queued
// for the robot once the lock is released.
func (s *Session) withLock(f func() error) error {
	s.mu.Lock()
	err := f()
	outbox := s.outbox
	s.outbox = nil
	s.mu.Unlock()

	for _, deliver := range outbox {
		deliver()
	}
	return err
}

func (s *Session) deliver(f func()) {
	s.outbox = append(s.outbox, f)
}

func (s *Session) receive(msg bot.Message) {
	s.deliver(func() {
		s.robot.Receive(msg)
	})
}

func (s *Session) connect(ctx context.Context) {
	s.log.Debug().Str("jid", s.jid.String()).Int("attempt", s.attempts).Msg("connecting")
	s.conn = s.dial(ctx, transport.Config{
		JID:         s.jid,
		Password:    s.cfg.Password,
		Host:        s.cfg.Host,
		Port:        s.cfg.Port,
		LegacyTLS:   s.cfg.LegacySSL,
		DisallowTLS: s.cfg.DisallowTLS,
		Mechanism:   s.cfg.PreferredSASLMechanism,
		KeepAlive:   s.cfg.KeepaliveInterval,
		TeeIn:       s.teeIn,
		TeeOut:      s.teeOut,
	}, s.log)
	s.events = s.conn.Events()
}

// detach forgets the current connection.
// The connection is closed once the session is unlocked.
func (s *Session) detach() {
	conn := s.conn
	s.conn = nil
	s.events = nil
	s.connected = false
	if conn == nil {
		return
	}
	s.deliver(func() {
		if err := conn.Close(); err != nil {
			s.log.Debug().Err(err).Msg("error closing connection")
		}
	})
}

func (s *Session) handleEvent(ctx context.Context, ev transport.Event) error {
	switch ev.Kind {
	case transport.Online:
		s.online(ctx)
	case transport.Stanza:
		s.route(ctx, ev.Stanza)
	case transport.Error:
		s.log.Error().Err(ev.Err).Msg("received error from server")
	case transport.Offline:
		s.log.Info().Msg("received offline event")
		return s.reconnect()
	case transport.Closed:
		s.log.Info().Msg("connection closed")
		return s.reconnect()
	}
	return nil
}

func (s *Session) online(ctx context.Context) {
	s.log.Info().Str("jid", s.jid.String()).Msg("client online")
	s.connected = true
	s.heardOwnPresence = false
	s.dir.ResetJoins()

	presence := element.New("presence").Append(
		element.NewNS(nsNick, "nick").AppendText(s.cfg.Name),
	)
	if err := s.send(ctx, presence); err != nil {
		s.log.Error().Err(err).Msg("error sending initial presence")
	}
	for _, r := range s.dir.Rooms() {
		if err := s.joinRoom(ctx, r); err != nil {
			s.log.Error().Err(err).Stringer("room", r).Msg("error joining room")
		}
	}

	event := bot.Connected
	if s.everOnline {
		event = bot.Reconnected
	}
	s.everOnline = true
	s.attempts = 0
	s.deliver(func() {
		s.robot.Emit(event)
	})
}

func (s *Session) reconnect() error {
	s.detach()
	s.attempts++
	if tries := *s.cfg.ReconnectTry; s.attempts > tries {
		s.log.Error().Int("tries", tries).Msg("unable to reconnect to jabber server")
		return ErrReconnectExhausted
	}
	s.log.Info().
		Int("attempt", s.attempts).
		Dur("wait", s.cfg.ReconnectWait).
		Msg("attempting to reconnect")
	s.redial = time.After(s.cfg.ReconnectWait)
	return nil
}

func (s *Session) ping(ctx context.Context) {
	if !s.connected {
		return
	}
	iq, err := element.Decode(ping.IQ{
		IQ: stanza.IQ{ID: s.nextID(), Type: stanza.GetIQ},
	}.TokenReader())
	if err != nil {
		s.log.Error().Err(err).Msg("error building keepalive ping")
		return
	}
	s.log.Debug().Stringer("stanza", iq).Msg("sending keepalive ping")
	if err := s.send(ctx, iq); err != nil {
		s.log.Error().Err(err).Msg("error sending keepalive ping")
	}
}

func (s *Session) nextID() string {
	s.iqID++
	return strconv.FormatUint(s.iqID, 10)
}

func (s *Session) send(ctx context.Context, el element.Element) error {
	if s.conn == nil || !s.connected {
		return ErrNotConnected
	}
	return s.conn.Send(ctx, el)
}

func (s *Session) shutdown() {
	s.doneOnce.Do(func() {
		close(s.done)
	})

	var pending map[string]*rosterQuery
	_ = s.withLock(func() error {
		s.detach()
		pending = s.queries
		s.queries = make(map[string]*rosterQuery)
		return nil
	})

	for _, q := range pending {
		q.timer.Stop()
		q.callback(nil, ErrClosed)
	}
}
