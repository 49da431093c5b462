// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package bot contains the values exchanged between a chat bot framework and
// the XMPP adapter.
//
// Users, messages, and envelopes are plain values.
// They are built by the adapter when a stanza is handled and handed to the
// framework, which passes an envelope back when it wants to respond.
package bot // import "mellium.im/xmppbot/bot"

// MessageType is the kind of chat a user was last seen in.
// Its values match the type attribute of XMPP messages.
type MessageType string

// A list of message types.
const (
	GroupChat MessageType = "groupchat"
	Chat      MessageType = "chat"
	Direct    MessageType = "direct"
)

// Private reports whether messages of type t should be answered privately
// instead of in the room they came from.
func (t MessageType) Private() bool {
	return t == Chat || t == Direct
}

// Events emitted to the framework when the connection comes up.
const (
	Connected   = "connected"
	Reconnected = "reconnected"
)

// User is a participant known to the bot.
type User struct {
	// ID is the key the user is stored under: the nickname for users seen in a
	// room and the localpart of the address for private chats.
	ID   string
	Name string

	// Type is the kind of chat the user was last seen in.
	Type MessageType
	// Room is the bare address of the room the user was seen in, if any.
	Room string
	// JID is the in-room address of the user (room@service/nick).
	JID string
	// PrivateChatJID is the real address of the user, if it is known.
	PrivateChatJID string
}

// Merge returns a copy of u with every non-empty field of attrs copied over.
// The ID is never changed.
func (u User) Merge(attrs User) User {
	if attrs.Name != "" {
		u.Name = attrs.Name
	}
	if attrs.Type != "" {
		u.Type = attrs.Type
	}
	if attrs.Room != "" {
		u.Room = attrs.Room
	}
	if attrs.JID != "" {
		u.JID = attrs.JID
	}
	if attrs.PrivateChatJID != "" {
		u.PrivateChatJID = attrs.PrivateChatJID
	}
	return u
}

// Kind is the kind of a Message.
type Kind uint8

// A list of message kinds.
const (
	Text Kind = iota
	Enter
	Leave
)

// String returns a human readable name for the kind.
func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Enter:
		return "enter"
	case Leave:
		return "leave"
	}
	return "unknown"
}

// Message is an inbound event delivered to the framework.
// Text is only set for messages of kind Text.
type Message struct {
	Kind Kind
	User User
	Text string
}

// Envelope describes where an outbound message should be sent.
type Envelope struct {
	Room string
	User User
}

// Envelope returns an envelope that answers m in the place it came from.
func (m Message) Envelope() Envelope {
	return Envelope{Room: m.User.Room, User: m.User}
}
