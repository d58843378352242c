// Copyright 2015 trivago GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package parser

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// XML is the optional XML→JSON streaming transform (spec.md §4.3): each
// top-level element becomes one JSON record {"tag":…, "attributes":{…},
// "children":[...]}. Grounded on the same straddle-at-the-byte-level
// strategy as JSON (§4.2), since encoding/xml.Decoder, like
// encoding/json.Decoder, cannot itself resume a token cut mid-tag across
// Feed calls: a chunk ending inside an open top-level element is buffered
// whole and re-decoded from scratch once more bytes arrive.
type XML struct {
	carry []byte // raw XML bytes from the start of the still-open top-level element
}

// Feed mirrors JSON.Feed's contract, but never produces zero-copy spans:
// every completed record is a freshly rendered JSON buffer, since the
// original XML bytes must be transcoded, not merely sliced.
func (p *XML) Feed(chunk []byte) (records [][]byte, err error) {
	if len(chunk) == 0 {
		return nil, nil
	}

	buf := chunk
	if p.carry != nil {
		combined := make([]byte, 0, len(p.carry)+len(chunk))
		combined = append(combined, p.carry...)
		combined = append(combined, chunk...)
		buf = combined
		p.carry = nil
	}

	dec := xml.NewDecoder(bytes.NewReader(buf))

	for {
		offsetBefore := dec.InputOffset()
		tok, terr := dec.Token()
		if terr == io.EOF {
			return records, nil
		}
		if terr != nil {
			if !isXMLTruncation(terr) {
				return records, &ErrMalformed{Cause: terr}
			}
			p.carry = append([]byte(nil), buf[offsetBefore:]...)
			return records, nil
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue // CharData/Comment/ProcInst outside any element: ignored at top level
		}

		var el element
		if decodeErr := dec.DecodeElement(&el, &start); decodeErr != nil {
			if !isXMLTruncation(decodeErr) {
				return records, &ErrMalformed{Cause: decodeErr}
			}
			p.carry = append([]byte(nil), buf[offsetBefore:]...)
			return records, nil
		}

		var out bytes.Buffer
		el.toJSON(&out)
		records = append(records, out.Bytes())
	}
}

// isXMLTruncation reports whether err is the sort of failure expected when
// a chunk ends mid-tag or mid-element, as opposed to markup that is simply
// invalid (mismatched end tags, illegal characters). encoding/xml reports
// running out of bytes as a *SyntaxError whose message begins with
// "unexpected EOF" (it has no dedicated error value for it), so those and
// io.ErrUnexpectedEOF count as truncation; any other error does not.
func isXMLTruncation(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var syn *xml.SyntaxError
	if errors.As(err, &syn) {
		return strings.HasPrefix(syn.Msg, "unexpected EOF")
	}
	return false
}

// Reset clears any in-flight straddle state.
func (p *XML) Reset() { p.carry = nil }

// Straddling reports whether a top-level element is still open.
func (p *XML) Straddling() bool { return p.carry != nil }

// element is an XML tree node generic enough to round-trip arbitrary
// markup into the tag/attributes/children JSON shape spec.md §4.3
// mandates.
type element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Content  string     `xml:",chardata"`
	Children []element  `xml:",any"`
}

func (e *element) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	e.XMLName = start.Name
	e.Attrs = start.Attr

	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var child element
			if err := child.UnmarshalXML(d, t); err != nil {
				return err
			}
			e.Children = append(e.Children, child)
		case xml.CharData:
			e.Content += string(t)
		case xml.EndElement:
			return nil
		}
	}
}

// toJSON renders e as {"tag":…, "attributes":{…}, "children":[...]}. Text
// content, when an element has no children, is carried as "text".
func (e *element) toJSON(buf *bytes.Buffer) {
	buf.WriteString(`{"tag":`)
	writeJSONString(buf, e.XMLName.Local)

	buf.WriteString(`,"attributes":{`)
	for i, a := range e.Attrs {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(buf, a.Name.Local)
		buf.WriteByte(':')
		writeJSONString(buf, a.Value)
	}
	buf.WriteString(`}`)

	if len(e.Children) > 0 {
		buf.WriteString(`,"children":[`)
		for i, c := range e.Children {
			if i > 0 {
				buf.WriteByte(',')
			}
			c.toJSON(buf)
		}
		buf.WriteString(`]`)
	} else {
		buf.WriteString(`,"text":`)
		writeJSONString(buf, e.Content)
	}

	buf.WriteString(`}`)
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}
