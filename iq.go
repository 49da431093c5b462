// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppbot

import (
	"context"

	"mellium.im/xmpp/jid"
	"mellium.im/xmppbot/element"
)

// handleIQ matches results against outstanding roster queries.
// Requests are answered by the transport before they reach the session.
func (s *Session) handleIQ(_ context.Context, el element.Element) {
	s.log.Debug().Stringer("stanza", el).Msg("received iq")
	children := el.Children()

	switch el.Attr("type") {
	case "get", "set":
		return
	}

	id := el.Attr("id")
	q, ok := s.queries[id]
	if !ok || len(children) == 0 {
		return
	}
	delete(s.queries, id)
	q.timer.Stop()

	names := occupantNames(children[0])
	s.log.Debug().Str("room", q.room.String()).Strs("users", names).Msg("received users in room")
	s.deliver(func() {
		q.callback(names, nil)
	})
}

// occupantNames returns the nicknames of the items in a disco#items result.
// Items without a name fall back to the resourcepart of their address.
func occupantNames(query element.Element) []string {
	names := []string{}
	for _, item := range query.Children() {
		if item.Name().Local != "item" {
			continue
		}
		name := item.Attr("name")
		if name == "" {
			if j, err := jid.Parse(item.Attr("jid")); err == nil {
				name = j.Resourcepart()
			}
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}
