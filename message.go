// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppbot

import (
	"strings"

	"mellium.im/xmpp/jid"
	"mellium.im/xmppbot/bot"
	"mellium.im/xmppbot/element"
)

func (s *Session) handleMessage(el element.Element) {
	typ := bot.MessageType(el.Attr("type"))
	switch typ {
	case bot.GroupChat, bot.Chat, bot.Direct:
	default:
		return
	}
	rawFrom := el.Attr("from")
	if rawFrom == "" {
		return
	}
	body, ok := el.Child("", "body")
	if !ok {
		return
	}
	text := body.Text()

	if s.cfg.UUIDOnJoin {
		if r, ok := s.dir.ConfirmJoin(text); ok {
			s.log.Info().Str("room", r.String()).Msg("join acknowledged, accepting messages from room")
			return
		}
	}

	from, err := jid.Parse(rawFrom)
	if err != nil {
		s.log.Debug().Err(err).Str("from", rawFrom).Msg("dropping message from invalid address")
		return
	}

	var id string
	attrs := bot.User{Type: typ}
	if typ == bot.GroupChat {
		nick := from.Resourcepart()
		// Messages from the room itself and our own echoes are ignored.
		if nick == "" || nick == s.cfg.Name {
			return
		}
		if s.cfg.UUIDOnJoin && !s.dir.Joined(from) {
			s.log.Debug().Str("from", rawFrom).Msg("dropping message received before join was acknowledged")
			return
		}
		id = nick
		attrs.Room = from.Bare().String()
		if priv, ok := s.dir.PrivateJID(from); ok {
			attrs.PrivateChatJID = priv.String()
		}
	} else {
		id = from.Localpart()
		if id == "" {
			id = from.Domainpart()
		}
		attrs.PrivateChatJID = from.String()
		if s.cfg.PMAddPrefix && !s.addressed(text) {
			text = s.cfg.Name + " " + text
		}
	}

	user := s.brain.UserForID(id, attrs)
	user.Type = typ
	user.Room = attrs.Room
	s.log.Debug().
		Str("type", string(typ)).
		Str("user", user.ID).
		Str("room", user.Room).
		Msg("received message")
	s.receive(bot.Message{Kind: bot.Text, User: user, Text: text})
}

// addressed reports whether text starts with the bot's name or alias, ignoring
// case.
func (s *Session) addressed(text string) bool {
	folded := s.fold.String(text)
	if strings.HasPrefix(folded, s.fold.String(s.cfg.Name)) {
		return true
	}
	return s.cfg.Alias != "" && strings.HasPrefix(folded, s.fold.String(s.cfg.Alias))
}
