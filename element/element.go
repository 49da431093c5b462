// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package element implements an immutable XML element tree for building and
// inspecting stanzas.
//
// Elements are values: every method that changes an element returns a modified
// copy and leaves the receiver untouched, so an element handed to a handler or
// a transport can be shared freely.
//
//	presence := element.New("presence", element.Attr("to", "room@muc.example.net/bot")).
//		Append(element.NewNS(muc.NS, "x").
//			Append(element.New("history", element.Attr("seconds", "1"))))
package element // import "mellium.im/xmppbot/element"

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"mellium.im/xmlstream"
)

// Node is a child of an Element, either another Element or Text.
type Node interface {
	xmlstream.Marshaler
}

// Text is character data inside an element.
type Text string

// TokenReader satisfies the xmlstream.Marshaler interface.
func (t Text) TokenReader() xml.TokenReader {
	return xmlstream.Token(xml.CharData(t))
}

// Element is an XML element with attributes and child nodes.
// The zero value is an element with no name and is not valid XML.
type Element struct {
	name     xml.Name
	attr     []xml.Attr
	children []Node
}

// Attr is a convenience function that returns an attribute with no namespace.
func Attr(local, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: local}, Value: value}
}

// New returns an element with no namespace and the provided attributes.
func New(local string, attr ...xml.Attr) Element {
	return NewNS("", local, attr...)
}

// NewNS is like New except that the element is created in the namespace space.
func NewNS(space, local string, attr ...xml.Attr) Element {
	return Element{
		name: xml.Name{Space: space, Local: local},
		attr: append([]xml.Attr(nil), attr...),
	}
}

// Name returns the name of the element.
func (e Element) Name() xml.Name {
	return e.name
}

// IsZero reports whether e is the zero Element.
func (e Element) IsZero() bool {
	return e.name.Local == "" && len(e.attr) == 0 && len(e.children) == 0
}

// LookupAttr returns the value of the first attribute with the given local name
// and whether it was present.
func (e Element) LookupAttr(local string) (string, bool) {
	for _, a := range e.attr {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// Attr returns the value of the attribute with the given local name or the
// empty string if it is not present.
func (e Element) Attr(local string) string {
	v, _ := e.LookupAttr(local)
	return v
}

// Attrs returns a copy of the elements attributes.
func (e Element) Attrs() []xml.Attr {
	return append([]xml.Attr(nil), e.attr...)
}

// SetAttr returns a copy of e with the attribute local set to value, replacing
// any existing attribute with the same local name.
func (e Element) SetAttr(local, value string) Element {
	attr := make([]xml.Attr, 0, len(e.attr)+1)
	found := false
	for _, a := range e.attr {
		if a.Name.Local == local {
			if !found {
				attr = append(attr, Attr(local, value))
				found = true
			}
			continue
		}
		attr = append(attr, a)
	}
	if !found {
		attr = append(attr, Attr(local, value))
	}
	e.attr = attr
	return e
}

// DefaultAttr returns a copy of e with the attribute local set to value if it
// is not already present.
func (e Element) DefaultAttr(local, value string) Element {
	if _, ok := e.LookupAttr(local); ok {
		return e
	}
	return e.SetAttr(local, value)
}

// Append returns a copy of e with nodes added after its existing children.
func (e Element) Append(nodes ...Node) Element {
	children := make([]Node, 0, len(e.children)+len(nodes))
	children = append(children, e.children...)
	for _, n := range nodes {
		if n == nil {
			continue
		}
		children = append(children, n)
	}
	e.children = children
	return e
}

// AppendText returns a copy of e with the character data s added after its
// existing children.
func (e Element) AppendText(s string) Element {
	return e.Append(Text(s))
}

// Nodes returns a copy of the child nodes of e, including character data.
func (e Element) Nodes() []Node {
	return append([]Node(nil), e.children...)
}

// Children returns the child elements of e in document order.
// Character data is skipped.
func (e Element) Children() []Element {
	var children []Element
	for _, n := range e.children {
		if child, ok := n.(Element); ok {
			children = append(children, child)
		}
	}
	return children
}

// Child returns the first child element with the given local name.
// If space is not empty the namespace must match as well.
func (e Element) Child(space, local string) (Element, bool) {
	for _, n := range e.children {
		child, ok := n.(Element)
		if !ok || child.name.Local != local {
			continue
		}
		if space != "" && child.name.Space != space {
			continue
		}
		return child, true
	}
	return Element{}, false
}

// Text returns the concatenated character data of the direct children of e.
func (e Element) Text() string {
	var b strings.Builder
	for _, n := range e.children {
		if t, ok := n.(Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// TokenReader satisfies the xmlstream.Marshaler interface.
func (e Element) TokenReader() xml.TokenReader {
	inner := make([]xml.TokenReader, 0, len(e.children))
	for _, n := range e.children {
		inner = append(inner, n.TokenReader())
	}
	return xmlstream.Wrap(
		xmlstream.MultiReader(inner...),
		xml.StartElement{Name: e.name, Attr: e.Attrs()},
	)
}

// WriteXML satisfies the xmlstream.WriterTo interface.
// It is like MarshalXML except it writes tokens to w.
func (e Element) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, e.TokenReader())
}

// MarshalXML satisfies the xml.Marshaler interface.
func (e Element) MarshalXML(enc *xml.Encoder, _ xml.StartElement) error {
	_, err := e.WriteXML(enc)
	return err
}

// UnmarshalXML satisfies the xml.Unmarshaler interface.
// Namespace declarations are not kept as attributes; the namespace of each
// element is recorded in its name instead.
func (e *Element) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	e.name = start.Name
	e.attr = nil
	for _, a := range start.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		e.attr = append(e.attr, a)
	}
	e.children = nil

	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var child Element
			if err := child.UnmarshalXML(d, t); err != nil {
				return err
			}
			e.children = append(e.children, child)
		case xml.CharData:
			e.children = append(e.children, Text(t))
		case xml.EndElement:
			return nil
		}
	}
}

// String returns the XML encoding of e.
// If the element cannot be encoded the empty string is returned.
func (e Element) String() string {
	var b strings.Builder
	enc := xml.NewEncoder(&b)
	if _, err := e.WriteXML(enc); err != nil {
		return ""
	}
	if err := enc.Flush(); err != nil {
		return ""
	}
	return b.String()
}

// Decode reads the next element from r, skipping any leading tokens that are
// not a start element.
func Decode(r xml.TokenReader) (Element, error) {
	d := xml.NewTokenDecoder(r)
	var e Element
	err := d.Decode(&e)
	return e, err
}

// ErrNotElement is returned by Parse when the input is not exactly one well
// formed element.
var ErrNotElement = errors.New("element: input is not a single XML element")

// Parse parses raw markup into an element.
// Leading and trailing whitespace is permitted, but any other character data,
// a second root element, or malformed XML results in an error.
func Parse(s string) (Element, error) {
	d := xml.NewDecoder(strings.NewReader(s))
	var e Element
	seen := false
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Element{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if seen {
				return Element{}, ErrNotElement
			}
			if err := e.UnmarshalXML(d, t); err != nil {
				return Element{}, err
			}
			seen = true
		case xml.CharData:
			if strings.TrimSpace(string(t)) != "" {
				return Element{}, ErrNotElement
			}
		case xml.Comment, xml.ProcInst, xml.Directive:
		}
	}
	if !seen {
		return Element{}, ErrNotElement
	}
	return e, nil
}
