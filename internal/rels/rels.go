// Package rels parses OOXML relationship files (.rels).
//
// The workbook package parses xl/_rels/workbook.xml.rels through here;
// per-sheet relationship files are not read anywhere in the module.
package rels

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Relationships is the root element of a .rels XML document.
type Relationships struct {
	Relationships []Relationship `xml:"Relationship"`
}

// Relationship is one entry in a .rels XML document.
type Relationship struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
}

// Parse reads a .rels document from r and returns a map of relationship
// Id → target string.
func Parse(r io.Reader) (map[string]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("rels: read: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes parses the raw bytes of a .rels XML file and returns a map of
// relationship Id → target string.
func ParseBytes(data []byte) (map[string]string, error) {
	var rs Relationships
	if err := xml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("rels: parse XML: %w", err)
	}
	m := make(map[string]string, len(rs.Relationships))
	for _, rel := range rs.Relationships {
		m[rel.ID] = rel.Target
	}
	return m, nil
}

// ResolveTarget turns a relationship target into a zip entry path relative
// to the archive root.  Absolute targets ("/xl/worksheets/sheet1.xml") are
// used as-is after stripping the leading slash; relative targets are
// resolved against base (the directory of the part that owns the .rels
// file, e.g. "xl").
func ResolveTarget(base, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	target = strings.TrimPrefix(target, "./")
	for strings.HasPrefix(target, "../") {
		target = strings.TrimPrefix(target, "../")
		if i := strings.LastIndex(base, "/"); i >= 0 {
			base = base[:i]
		} else {
			base = ""
		}
	}
	if base == "" {
		return target
	}
	return base + "/" + target
}
