// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package xmppbot connects a chat bot framework to an XMPP server.
//
// A Session logs in, joins a set of multi-user chat rooms, and translates
// between XMPP stanzas and the framework's users and messages.
// Incoming group chat and private messages are delivered to a Robot, room
// occupants are tracked as they come and go, and responses passed to Send,
// Reply, or Topic are addressed back to the room or the user they came from.
//
// The session answers server pings, pings the server itself to keep the
// connection alive, and reconnects with a fixed wait between attempts when
// the connection drops.
// After a reconnect every room is joined again.
//
// Be advised: This API is still unstable and is subject to change.
package xmppbot // import "mellium.im/xmppbot"
