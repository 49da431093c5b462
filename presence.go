// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppbot

import (
	"context"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/muc"
	"mellium.im/xmppbot/bot"
	"mellium.im/xmppbot/element"
)

func (s *Session) handlePresence(ctx context.Context, el element.Element) {
	rawFrom := el.Attr("from")
	typ := el.Attr("type")
	if typ == "" {
		typ = "available"
	}

	switch typ {
	case "subscribe":
		s.log.Info().Str("from", rawFrom).Msg("accepting subscription request")
		if err := s.send(ctx, reply("presence", el).SetAttr("type", "subscribed")); err != nil {
			s.log.Error().Err(err).Msg("error answering subscription request")
		}
	case "probe":
		if err := s.send(ctx, reply("presence", el)); err != nil {
			s.log.Error().Err(err).Msg("error answering presence probe")
		}
	case "available":
		s.occupantAvailable(el)
	case "unavailable":
		s.occupantUnavailable(el)
	}
}

func (s *Session) occupantAvailable(el element.Element) {
	from, err := jid.Parse(el.Attr("from"))
	if err != nil {
		return
	}
	nick := from.Resourcepart()

	if nick == s.cfg.Name {
		s.heardOwnPresence = true
		return
	}
	if n, ok := el.Child(nsNick, "nick"); ok && n.Text() == s.cfg.Name {
		s.heardOwnPresence = true
		return
	}

	// Presence from rooms we are not in and from the room itself is ignored.
	if !s.dir.Contains(from) || nick == "" {
		return
	}

	var privateJID string
	if x, ok := el.Child(muc.NSUser, "x"); ok {
		if item, ok := x.Child("", "item"); ok {
			privateJID = item.Attr("jid")
		}
	}
	if privateJID == "" {
		if !s.anonWarned {
			s.anonWarned = true
			s.log.Warn().
				Str("room", from.Bare().String()).
				Msg("room does not expose real addresses of occupants, private replies will be sent to the in-room address")
		}
		s.dir.ForgetPrivateJID(from)
	} else if addr, err := jid.Parse(privateJID); err == nil {
		s.dir.SetPrivateJID(from, addr)
	} else {
		s.log.Debug().Err(err).Str("jid", privateJID).Msg("ignoring invalid occupant address")
		s.dir.ForgetPrivateJID(from)
		privateJID = ""
	}

	user := s.brain.UserForID(nick, bot.User{
		Room:           from.Bare().String(),
		JID:            from.String(),
		PrivateChatJID: privateJID,
	})
	user.Room = from.Bare().String()

	// Occupants listed while joining were already in the room.
	if !s.heardOwnPresence {
		return
	}
	s.log.Debug().Str("user", nick).Str("room", user.Room).Msg("user entered room")
	s.receive(bot.Message{Kind: bot.Enter, User: user})
}

func (s *Session) occupantUnavailable(el element.Element) {
	from, err := jid.Parse(el.Attr("from"))
	if err != nil {
		return
	}
	nick := from.Resourcepart()
	if !s.dir.Contains(from) || nick == "" || nick == s.cfg.Name {
		return
	}

	user := s.brain.UserForID(nick, bot.User{Room: from.Bare().String()})
	user.Room = from.Bare().String()
	s.log.Debug().Str("user", nick).Str("room", user.Room).Msg("user left room")
	s.receive(bot.Message{Kind: bot.Leave, User: user})
}
