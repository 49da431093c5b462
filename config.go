// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppbot

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"mellium.im/xmpp/jid"
	"mellium.im/xmppbot/room"
	"mellium.im/xmppbot/transport"
)

// Environment variables read by LoadEnv.
const (
	EnvUsername      = "HUBOT_XMPP_USERNAME"
	EnvPassword      = "HUBOT_XMPP_PASSWORD"
	EnvHost          = "HUBOT_XMPP_HOST"
	EnvPort          = "HUBOT_XMPP_PORT"
	EnvRooms         = "HUBOT_XMPP_ROOMS"
	EnvKeepalive     = "HUBOT_XMPP_KEEPALIVE_INTERVAL"
	EnvReconnectTry  = "HUBOT_XMPP_RECONNECT_TRY"
	EnvReconnectWait = "HUBOT_XMPP_RECONNECT_WAIT"
	EnvLegacySSL     = "HUBOT_XMPP_LEGACYSSL"
	EnvMechanism     = "HUBOT_XMPP_PREFERRED_SASL_MECHANISM"
	EnvDisallowTLS   = "HUBOT_XMPP_DISALLOW_TLS"
	EnvPMAddPrefix   = "HUBOT_XMPP_PM_ADD_PREFIX"
	EnvUUIDOnJoin    = "HUBOT_XMPP_UUID_ON_JOIN"
	EnvRosterTimeout = "HUBOT_XMPP_ROSTER_TIMEOUT"
	EnvName          = "HUBOT_NAME"
	EnvAlias         = "HUBOT_ALIAS"
)

// Defaults used by Validate for options that are not set.
const (
	DefaultName              = "hubot"
	DefaultKeepaliveInterval = 30 * time.Second
	DefaultReconnectTry      = 5
	DefaultReconnectWait     = 5 * time.Second
	DefaultRosterTimeout     = 30 * time.Second
)

// RoomList is a list of rooms.
// In YAML it may be written either as a sequence of rooms or as a single comma
// separated string.
type RoomList []room.Spec

// UnmarshalYAML satisfies the yaml.Unmarshaler interface.
func (l *RoomList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		rooms, err := room.ParseList(node.Value)
		if err != nil {
			return err
		}
		*l = rooms
		return nil
	case yaml.SequenceNode:
		rooms := make(RoomList, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("xmppbot: line %d: expected a room address", item.Line)
			}
			r, err := room.Parse(item.Value)
			if err != nil {
				return err
			}
			rooms = append(rooms, r)
		}
		*l = rooms
		return nil
	}
	return fmt.Errorf("xmppbot: line %d: expected a list of rooms", node.Line)
}

// Config contains options for a Session.
type Config struct {
	// Username is the JID to log in as.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Host and Port override the server discovered from the Username's domain.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Rooms are joined when the session comes online.
	Rooms RoomList `yaml:"rooms"`

	// KeepaliveInterval is how often the server is pinged.
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	// ReconnectTry is the number of reconnects attempted after the connection
	// is lost before giving up.
	// If it is nil DefaultReconnectTry is used; zero never reconnects.
	ReconnectTry *int `yaml:"reconnect_try"`
	// ReconnectWait is the time waited before each reconnect.
	ReconnectWait time.Duration `yaml:"reconnect_wait"`

	LegacySSL              bool   `yaml:"legacy_ssl"`
	PreferredSASLMechanism string `yaml:"preferred_sasl_mechanism"`
	// DisallowTLS never negotiates TLS and lets SASL send credentials over
	// plain text.
	DisallowTLS bool `yaml:"disallow_tls"`

	// PMAddPrefix prefixes private messages with the bot's name unless they
	// already address the bot by name or alias.
	PMAddPrefix bool `yaml:"pm_add_prefix"`
	// UUIDOnJoin ignores group chat messages from a room until a random token
	// sent on join is echoed back, which discards the room history the server
	// replays.
	UUIDOnJoin bool `yaml:"uuid_on_join"`
	// RosterTimeout is how long GetUsersInRoom waits for an answer.
	RosterTimeout time.Duration `yaml:"roster_timeout"`

	// Name is the bot's nickname in rooms.
	Name  string `yaml:"name"`
	Alias string `yaml:"alias"`
}

// LoadEnv overrides options with any of the environment variables that are
// set.
// It is normally called with os.Getenv.
// Durations may be given either as a number of milliseconds or in the form
// accepted by time.ParseDuration.
func (c *Config) LoadEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str(EnvUsername, &c.Username)
	str(EnvPassword, &c.Password)
	str(EnvHost, &c.Host)
	str(EnvMechanism, &c.PreferredSASLMechanism)
	str(EnvName, &c.Name)
	str(EnvAlias, &c.Alias)

	if v := getenv(EnvRooms); v != "" {
		rooms, err := room.ParseList(v)
		if err != nil {
			return &ConfigError{Field: EnvRooms, Err: err}
		}
		c.Rooms = rooms
	}
	for _, opt := range []struct {
		key string
		dst *int
	}{
		{key: EnvPort, dst: &c.Port},
	} {
		v := getenv(opt.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: opt.key, Err: err}
		}
		*opt.dst = n
	}
	if v := getenv(EnvReconnectTry); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: EnvReconnectTry, Err: err}
		}
		c.ReconnectTry = &n
	}
	for _, opt := range []struct {
		key string
		dst *time.Duration
	}{
		{key: EnvKeepalive, dst: &c.KeepaliveInterval},
		{key: EnvReconnectWait, dst: &c.ReconnectWait},
		{key: EnvRosterTimeout, dst: &c.RosterTimeout},
	} {
		v := getenv(opt.key)
		if v == "" {
			continue
		}
		d, err := parseDuration(v)
		if err != nil {
			return &ConfigError{Field: opt.key, Err: err}
		}
		*opt.dst = d
	}
	for _, opt := range []struct {
		key string
		dst *bool
	}{
		{key: EnvLegacySSL, dst: &c.LegacySSL},
		{key: EnvDisallowTLS, dst: &c.DisallowTLS},
		{key: EnvPMAddPrefix, dst: &c.PMAddPrefix},
		{key: EnvUUIDOnJoin, dst: &c.UUIDOnJoin},
	} {
		v := getenv(opt.key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &ConfigError{Field: opt.key, Err: err}
		}
		*opt.dst = b
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

// Validate checks that the required options are set and fills in defaults for
// the rest.
func (c *Config) Validate() error {
	if c.Username == "" {
		return &ConfigError{
			Field: EnvUsername,
			Err:   errors.New("not defined, try: export HUBOT_XMPP_USERNAME='user@xmpp.service'"),
		}
	}
	j, err := jid.Parse(c.Username)
	if err != nil {
		return &ConfigError{Field: EnvUsername, Err: err}
	}
	if j.Localpart() == "" {
		return &ConfigError{Field: EnvUsername, Err: fmt.Errorf("%q has no localpart", c.Username)}
	}
	if c.Password == "" {
		return &ConfigError{
			Field: EnvPassword,
			Err:   errors.New("not defined, try: export HUBOT_XMPP_PASSWORD='password'"),
		}
	}
	if len(c.Rooms) == 0 {
		return &ConfigError{
			Field: EnvRooms,
			Err:   errors.New("not defined, try: export HUBOT_XMPP_ROOMS='room@conference.xmpp.service'"),
		}
	}
	if _, err := transport.Mechanisms(c.PreferredSASLMechanism); err != nil {
		return &ConfigError{Field: EnvMechanism, Err: err}
	}
	if c.Port < 0 || c.Port > 65535 {
		return &ConfigError{Field: EnvPort, Err: fmt.Errorf("port %d out of range", c.Port)}
	}
	tries := DefaultReconnectTry
	if c.ReconnectTry != nil {
		tries = *c.ReconnectTry
	}
	if tries < 0 {
		return &ConfigError{Field: EnvReconnectTry, Err: fmt.Errorf("negative reconnect count %d", tries)}
	}
	// Copied so that later changes by the caller are not seen by a session.
	c.ReconnectTry = &tries

	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = DefaultReconnectWait
	}
	if c.RosterTimeout <= 0 {
		c.RosterTimeout = DefaultRosterTimeout
	}
	return nil
}

// MarshalZerologObject logs the configuration with the password masked.
func (c Config) MarshalZerologObject(e *zerolog.Event) {
	rooms := make([]string, 0, len(c.Rooms))
	for _, r := range c.Rooms {
		rooms = append(rooms, r.String())
	}
	tries := DefaultReconnectTry
	if c.ReconnectTry != nil {
		tries = *c.ReconnectTry
	}
	password := ""
	if c.Password != "" {
		password = "********"
	}
	e.Str("username", c.Username).
		Str("password", password).
		Str("host", c.Host).
		Int("port", c.Port).
		Strs("rooms", rooms).
		Dur("keepalive_interval", c.KeepaliveInterval).
		Int("reconnect_try", tries).
		Dur("reconnect_wait", c.ReconnectWait).
		Bool("legacy_ssl", c.LegacySSL).
		Str("preferred_sasl_mechanism", c.PreferredSASLMechanism).
		Bool("disallow_tls", c.DisallowTLS).
		Bool("pm_add_prefix", c.PMAddPrefix).
		Bool("uuid_on_join", c.UUIDOnJoin).
		Dur("roster_timeout", c.RosterTimeout).
		Str("name", c.Name).
		Str("alias", c.Alias)
}
