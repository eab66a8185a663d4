// Package xmlstream provides low-level, forward-only XML cursor primitives
// shared by the workbook, worksheet, stringtable, and styles packages.
//
// It plays the role the record reader plays for a binary container: every
// pass over a part walks tokens strictly forward through a fresh
// decompression stream, so all parsing here is single-pass and allocation
// is kept per-token.
package xmlstream

import (
	"encoding/xml"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// Accepted namespaces for the spreadsheet-ml main schema (transitional and
// strict variants).
const (
	NSMain       = "http://schemas.openxmlformats.org/spreadsheetml/2006/main"
	NSMainStrict = "http://purl.oclc.org/ooxml/spreadsheetml/main"
)

// Accepted namespaces for the officeDocument relationships schema.
const (
	NSRel       = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	NSRelStrict = "http://purl.oclc.org/ooxml/officeDocument/relationships"
)

// NewDecoder wraps r in an xml.Decoder with charset detection enabled, so
// parts declaring a non-UTF-8 encoding still decode.
func NewDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

// IsMainNS reports whether ns is an accepted spreadsheet-ml namespace.
// The empty string is accepted for parts that omit a default namespace.
func IsMainNS(ns string) bool {
	return ns == "" || ns == NSMain || ns == NSMainStrict
}

// Attr returns the value of the named attribute on se, ignoring the
// attribute's namespace, and whether it was present.
func Attr(se xml.StartElement, name string) (string, bool) {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// Text consumes the element started by se and returns the concatenation of
// every <t> leaf inside it, with OOXML character escapes decoded.  It
// handles both plain (<t>…</t>) and rich-run (<r><t>…</t></r>) content, so
// it serves shared-string items and inline strings alike.  The cursor is
// left just past se's end element.
func Text(dec *xml.Decoder, se xml.StartElement) (string, error) {
	var sb strings.Builder
	depth := 1
	inT := false
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "rPh" {
				// Phonetic runs carry their own <t> leaves that are not part
				// of the displayed string.
				if err := dec.Skip(); err != nil {
					return "", err
				}
				continue
			}
			depth++
			if t.Name.Local == "t" {
				inT = true
			}
		case xml.EndElement:
			depth--
			inT = false
		case xml.CharData:
			if inT {
				sb.Write(t)
			}
		}
	}
	return DecodeEscapes(sb.String()), nil
}

// CharData consumes the element started by se and returns its immediate
// character data (used for <v> leaves).  The cursor is left just past se's
// end element.
func CharData(dec *xml.Decoder, se xml.StartElement) (string, error) {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 1 {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

// DecodeEscapes decodes OOXML _xHHHH_ character escapes ("_x000A_" → "\n").
// Strings without the marker are returned unchanged without allocating.
func DecodeEscapes(s string) string {
	i := strings.Index(s, "_x")
	if i < 0 {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for {
		if i < 0 {
			sb.WriteString(s)
			return sb.String()
		}
		sb.WriteString(s[:i])
		s = s[i:]
		if r, ok := unescapeAt(s); ok {
			sb.WriteRune(r)
			s = s[7:] // len("_xHHHH_")
		} else {
			sb.WriteString("_x")
			s = s[2:]
		}
		i = strings.Index(s, "_x")
	}
}

// unescapeAt decodes a _xHHHH_ sequence at the start of s.
func unescapeAt(s string) (rune, bool) {
	// "_xHHHH_" is exactly 7 bytes including both underscores.
	if len(s) < 7 || s[6] != '_' {
		return 0, false
	}
	var r rune
	for _, c := range s[2:6] {
		var d rune
		switch {
		case c >= '0' && c <= '9':
			d = c - '0'
		case c >= 'a' && c <= 'f':
			d = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			d = c - 'A' + 10
		default:
			return 0, false
		}
		r = r<<4 | d
	}
	return r, true
}
