// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppbot

import (
	"context"

	"mellium.im/xmppbot/element"
)

// route dispatches a stanza received from the server by name.
// Stanzas of type error are logged and otherwise ignored, as is anything that
// is not a message, presence, or IQ.
func (s *Session) route(ctx context.Context, el element.Element) {
	if el.Attr("type") == "error" {
		s.log.Error().Stringer("stanza", el).Msg("received error stanza")
		return
	}

	switch el.Name().Local {
	case "message":
		s.handleMessage(el)
	case "presence":
		s.handlePresence(ctx, el)
	case "iq":
		s.handleIQ(ctx, el)
	default:
		s.log.Debug().Str("name", el.Name().Local).Msg("ignoring unknown stanza")
	}
}

// reply returns a stanza named local addressed back to the sender of el.
// Attributes that are missing from el are omitted.
func reply(local string, el element.Element) element.Element {
	r := element.New(local)
	for _, attr := range [...][2]string{
		{"from", el.Attr("to")},
		{"to", el.Attr("from")},
		{"id", el.Attr("id")},
	} {
		if attr[1] != "" {
			r = r.SetAttr(attr[0], attr[1])
		}
	}
	return r
}
