// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package transport connects to an XMPP server and exchanges stanzas as
// element trees.
//
// A Client is created with Dial, which returns immediately.
// Connecting, negotiating TLS and SASL, and reading stanzas all happen in the
// background; progress is reported as a sequence of events:
//
//	Online (Stanza)* [Error] (Offline | Closed)
//
// If the connection cannot be established the sequence is just an Error
// followed by Closed.
// No events are sent after Offline or Closed, or after the client is closed.
package transport // import "mellium.im/xmppbot/transport"

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"mellium.im/sasl"
	"mellium.im/xmlstream"
	"mellium.im/xmpp"
	"mellium.im/xmpp/dial"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/ping"
	"mellium.im/xmpp/stanza"

	"mellium.im/xmppbot/element"
)

// DefaultPort is the port used when a host is configured without a port.
const DefaultPort = 5222

// negotiateTimeout bounds dialing and stream negotiation.
const negotiateTimeout = 30 * time.Second

// ErrNotConnected is returned when sending on a client that has not finished
// connecting or has been disconnected.
var ErrNotConnected = errors.New("transport: not connected")

// Kind is the kind of an Event.
type Kind uint8

// A list of event kinds.
const (
	// Online is sent once the session has been negotiated and is ready to send
	// and receive stanzas.
	Online Kind = iota
	// Offline is sent when the server closes the stream cleanly.
	Offline
	// Error is sent when connecting fails or the connection breaks.
	Error
	// Stanza is sent for every stanza received.
	Stanza
	// Closed is sent when the connection is gone after an error.
	Closed
)

// String returns a human readable name for the kind.
func (k Kind) String() string {
	switch k {
	case Online:
		return "online"
	case Offline:
		return "offline"
	case Error:
		return "error"
	case Stanza:
		return "stanza"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Event is a change in connection state or an inbound stanza.
type Event struct {
	Kind   Kind
	Stanza element.Element
	Err    error
}

// Config contains options for connecting to a server.
type Config struct {
	// JID is the address to log in as.
	JID      jid.JID
	Password string

	// Host and Port override the server discovered from the JID's domain.
	Host string
	Port int

	// LegacyTLS connects with implicit TLS instead of negotiating STARTTLS.
	LegacyTLS bool
	// DisallowTLS never negotiates TLS.
	// The connection is treated as secure so that SASL may authenticate over
	// plain text; setting it means the operator accepts that risk.
	DisallowTLS bool
	// TLSConfig is used as the base for STARTTLS and implicit TLS.
	// If it does not set a ServerName the domain of JID is used.
	TLSConfig *tls.Config
	// Mechanism is the name of the SASL mechanism to try first.
	Mechanism string

	// KeepAlive is the TCP keep-alive period of the connection.
	KeepAlive time.Duration

	// TeeIn and TeeOut receive a copy of all XML read from and written to the
	// stream.
	TeeIn  io.Writer
	TeeOut io.Writer
}

var mechanisms = []sasl.Mechanism{
	sasl.ScramSha256Plus,
	sasl.ScramSha1Plus,
	sasl.ScramSha256,
	sasl.ScramSha1,
	sasl.Plain,
}

// Mechanisms returns the supported SASL mechanisms in the order they should be
// attempted, with the mechanism named preferred first.
// Names are compared case-insensitively and an empty name keeps the default
// order.
func Mechanisms(preferred string) ([]sasl.Mechanism, error) {
	if preferred == "" {
		return append([]sasl.Mechanism(nil), mechanisms...), nil
	}
	ordered := make([]sasl.Mechanism, 0, len(mechanisms))
	for _, m := range mechanisms {
		if strings.EqualFold(m.Name, preferred) {
			ordered = append(ordered, m)
		}
	}
	if len(ordered) == 0 {
		return nil, fmt.Errorf("transport: unsupported SASL mechanism %q", preferred)
	}
	for _, m := range mechanisms {
		if !strings.EqualFold(m.Name, preferred) {
			ordered = append(ordered, m)
		}
	}
	return ordered, nil
}

// Client is a connection to an XMPP server.
type Client struct {
	cfg    Config
	log    zerolog.Logger
	events chan Event
	done   chan struct{}
	cancel context.CancelFunc

	closeOnce sync.Once
	mu        sync.Mutex
	session   *xmpp.Session
}

// Dial starts connecting to the server in the background and returns
// immediately.
// The connection is torn down when ctx is canceled or Close is called.
func Dial(ctx context.Context, cfg Config, logger zerolog.Logger) *Client {
	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		cfg:    cfg,
		log:    logger.With().Str("component", "transport").Logger(),
		events: make(chan Event),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go c.run(ctx)
	return c
}

// Events returns the channel on which connection events are delivered.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Send transmits el to the server.
func (c *Client) Send(ctx context.Context, el element.Element) error {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}
	return s.Send(ctx, el.TokenReader())
}

// Close closes the connection.
// No further events are delivered after Close returns.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		c.mu.Lock()
		s := c.session
		c.session = nil
		c.mu.Unlock()
		if s != nil {
			err = closeSession(s)
		}
	})
	return err
}

func closeSession(s *xmpp.Session) error {
	err := s.Close()
	if cerr := s.Conn().Close(); err == nil {
		err = cerr
	}
	return err
}

// emit delivers ev unless the client has been closed.
func (c *Client) emit(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) run(ctx context.Context) {
	s, err := c.connect(ctx)
	if err != nil {
		if c.emit(Event{Kind: Error, Err: err}) {
			c.emit(Event{Kind: Closed})
		}
		return
	}

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		if err := closeSession(s); err != nil {
			c.log.Debug().Err(err).Msg("error closing abandoned session")
		}
		return
	default:
	}
	c.session = s
	c.mu.Unlock()

	if !c.emit(Event{Kind: Online}) {
		return
	}

	err = s.Serve(xmpp.HandlerFunc(c.handle))

	c.mu.Lock()
	current := c.session == s
	c.session = nil
	c.mu.Unlock()
	if !current {
		// Closed by Close.
		return
	}
	if cerr := s.Conn().Close(); cerr != nil {
		c.log.Debug().Err(cerr).Msg("error closing connection")
	}

	if err != nil {
		if c.emit(Event{Kind: Error, Err: err}) {
			c.emit(Event{Kind: Closed})
		}
		return
	}
	c.emit(Event{Kind: Offline})
}

// handle decodes an inbound stanza and emits it.
// Pings from the server are answered on the stream that carried them and are
// not emitted: the session replies with an error to any request the handler
// leaves unanswered, so an answer sent later would be a second reply.
func (c *Client) handle(t xmlstream.TokenReadEncoder, start *xml.StartElement) error {
	el, err := element.Decode(xmlstream.Wrap(t, *start))
	if err != nil {
		c.log.Debug().Err(err).Str("name", start.Name.Local).Msg("dropping undecodable stanza")
		return nil
	}
	if isPing(el) {
		iq, err := stanza.NewIQ(*start)
		if err != nil {
			c.log.Debug().Err(err).Msg("dropping malformed ping")
			return nil
		}
		payload := xml.StartElement{Name: xml.Name{Space: ping.NS, Local: "ping"}}
		c.log.Debug().Str("id", iq.ID).Str("from", iq.From.String()).Msg("answering ping")
		return ping.Handler{}.HandleIQ(iq, t, &payload)
	}
	c.emit(Event{Kind: Stanza, Stanza: el})
	return nil
}

// isPing reports whether el is an IQ get with a single ping payload.
func isPing(el element.Element) bool {
	if el.Name().Local != "iq" || el.Attr("type") != "get" {
		return false
	}
	children := el.Children()
	return len(children) == 1 && children[0].Name() == xml.Name{Space: ping.NS, Local: "ping"}
}

func (c *Client) connect(ctx context.Context) (*xmpp.Session, error) {
	mechs, err := Mechanisms(c.cfg.Mechanism)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, negotiateTimeout)
	defer cancel()

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: error dialing %s: %w", c.cfg.JID.Domain(), err)
	}

	var state xmpp.SessionState
	if _, ok := conn.(*tls.Conn); ok || c.cfg.DisallowTLS {
		state |= xmpp.Secure
	}
	features := []xmpp.StreamFeature{xmpp.BindResource()}
	if !c.cfg.DisallowTLS && state&xmpp.Secure == 0 {
		features = append(features, xmpp.StartTLS(c.tlsConfig()))
	}
	features = append(features, xmpp.SASL("", c.cfg.Password, mechs...))

	negotiator := xmpp.NewNegotiator(func(*xmpp.Session, *xmpp.StreamConfig) xmpp.StreamConfig {
		return xmpp.StreamConfig{
			Lang:     "en",
			Features: features,
			TeeIn:    c.cfg.TeeIn,
			TeeOut:   c.cfg.TeeOut,
		}
	})
	s, err := xmpp.NewSession(ctx, c.cfg.JID.Domain(), c.cfg.JID, conn, state, negotiator)
	if err != nil {
		if cerr := conn.Close(); cerr != nil {
			c.log.Debug().Err(cerr).Msg("error closing connection after failed negotiation")
		}
		return nil, fmt.Errorf("transport: error establishing session: %w", err)
	}
	c.log.Info().Str("jid", s.LocalAddr().String()).Msg("session established")
	return s, nil
}

func (c *Client) tlsConfig() *tls.Config {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if c.cfg.TLSConfig != nil {
		cfg = c.cfg.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = c.cfg.JID.Domainpart()
	}
	return cfg
}

// dial connects to the configured host, or to the server advertised for the
// JID's domain if no host is configured.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	netDialer := net.Dialer{KeepAlive: c.cfg.KeepAlive}

	if c.cfg.Host == "" {
		d := dial.Dialer{
			Dialer: netDialer,
			NoTLS:  c.cfg.DisallowTLS,
		}
		if c.cfg.LegacyTLS {
			d.TLSConfig = c.tlsConfig()
		}
		return d.Dial(ctx, "tcp", c.cfg.JID)
	}

	port := c.cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(port))
	c.log.Debug().Str("addr", addr).Bool("legacy_tls", c.cfg.LegacyTLS).Msg("dialing")
	if c.cfg.LegacyTLS && !c.cfg.DisallowTLS {
		tlsDialer := tls.Dialer{NetDialer: &netDialer, Config: c.tlsConfig()}
		return tlsDialer.DialContext(ctx, "tcp", addr)
	}
	return netDialer.DialContext(ctx, "tcp", addr)
}
