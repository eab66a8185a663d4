// Package cell defines the A1-style cell reference grammar and the typed
// cell value union shared by the workbook, worksheet, and styles packages.
// It is a deliberately small, import-cycle-free package so that every other
// package in the module can depend on it.
package cell

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidReference is wrapped by every reference-parsing failure.
// Use errors.Is to test for it.
var ErrInvalidReference = errors.New("invalid cell reference")

// Ref is a parsed A1-style cell reference.  Both coordinates are 1-based:
// column A = 1, row 1 = 1.
type Ref struct {
	// Col is the 1-based column number (A=1, Z=26, AA=27, …).
	Col int
	// Row is the 1-based row number.
	Row int
}

// ParseRef parses an A1-style reference ("B12").  The accepted grammar is
// [A-Z]+[1-9][0-9]* — uppercase column letters followed by a positive row
// number with no leading zero.
func ParseRef(s string) (Ref, error) {
	i := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		i++
	}
	if i == 0 || i == len(s) {
		return Ref{}, fmt.Errorf("cell: %q: %w", s, ErrInvalidReference)
	}
	col, err := ColumnNumber(s[:i])
	if err != nil {
		return Ref{}, err
	}
	digits := s[i:]
	if digits[0] < '1' || digits[0] > '9' {
		return Ref{}, fmt.Errorf("cell: %q: %w", s, ErrInvalidReference)
	}
	row := 0
	for j := 0; j < len(digits); j++ {
		c := digits[j]
		if c < '0' || c > '9' {
			return Ref{}, fmt.Errorf("cell: %q: %w", s, ErrInvalidReference)
		}
		row = row*10 + int(c-'0')
	}
	return Ref{Col: col, Row: row}, nil
}

// String formats the reference back to A1 notation.  ParseRef(r.String())
// is the identity for any valid Ref.
func (r Ref) String() string {
	return ColumnName(r.Col) + fmt.Sprint(r.Row)
}

// ColumnNumber converts a column-letter run to its 1-based column number
// (A=1, Z=26, AA=27, …).
func ColumnNumber(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("cell: empty column letters: %w", ErrInvalidReference)
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 'A' || c > 'Z' {
			return 0, fmt.Errorf("cell: column letters %q: %w", s, ErrInvalidReference)
		}
		n = n*26 + int(c-'A') + 1
	}
	return n, nil
}

// ColumnName converts a 1-based column number to its letter run.
// It is the inverse of ColumnNumber on all positive inputs; non-positive
// inputs return an empty string.
func ColumnName(n int) string {
	if n < 1 {
		return ""
	}
	var b [8]byte
	i := len(b)
	for n > 0 {
		n--
		i--
		b[i] = byte('A' + n%26)
		n /= 26
	}
	return string(b[i:])
}

// Kind discriminates the active variant of a Value.
type Kind uint8

const (
	// Null marks an empty cell.
	Null Kind = iota
	// Bool marks a boolean cell (t="b").
	Bool
	// Number marks a numeric cell.
	Number
	// Text marks a string cell (shared, inline, or formula string).
	Text
	// DateTime marks a cell whose style resolved it to a calendar instant.
	DateTime
	// Duration marks a cell whose style resolved it to an elapsed time.
	Duration
	// Bytes marks a cell captured as a raw byte blob via the file-id sentinel.
	Bytes
	// Raw marks a cell whose value failed its typed parse and is kept as the
	// original string from the XML.
	Raw
)

// String returns the lower-case variant name, for diagnostics.
func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case Text:
		return "text"
	case DateTime:
		return "datetime"
	case Duration:
		return "duration"
	case Bytes:
		return "bytes"
	case Raw:
		return "raw"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is the typed content of one cell.  Exactly one variant is active,
// selected by Kind; the other fields hold their zero value.
type Value struct {
	Kind Kind

	B   bool
	F   float64
	S   string
	T   time.Time
	D   time.Duration
	Blb []byte
}

// Convenience constructors.  These keep call sites in the streamer terse.

// NullValue returns the empty-cell value.
func NullValue() Value { return Value{} }

// BoolValue wraps a bool.
func BoolValue(b bool) Value { return Value{Kind: Bool, B: b} }

// NumberValue wraps a float64.
func NumberValue(f float64) Value { return Value{Kind: Number, F: f} }

// TextValue wraps a decoded string.
func TextValue(s string) Value { return Value{Kind: Text, S: s} }

// TimeValue wraps a calendar instant.
func TimeValue(t time.Time) Value { return Value{Kind: DateTime, T: t} }

// DurationValue wraps an elapsed time.
func DurationValue(d time.Duration) Value { return Value{Kind: Duration, D: d} }

// BytesValue wraps a byte blob.
func BytesValue(b []byte) Value { return Value{Kind: Bytes, Blb: b} }

// RawValue wraps an unparseable literal, preserving the XML text.
func RawValue(s string) Value { return Value{Kind: Raw, S: s} }

// IsNull reports whether the value is the empty-cell variant.
func (v Value) IsNull() bool { return v.Kind == Null }

// Any returns the active variant as an untyped value: nil, bool, float64,
// string, time.Time, time.Duration, or []byte.
func (v Value) Any() any {
	switch v.Kind {
	case Bool:
		return v.B
	case Number:
		return v.F
	case Text, Raw:
		return v.S
	case DateTime:
		return v.T
	case Duration:
		return v.D
	case Bytes:
		return v.Blb
	}
	return nil
}

// GoString renders the value for test failure messages.
func (v Value) GoString() string {
	if v.Kind == Null {
		return "null"
	}
	return fmt.Sprintf("%s(%v)", v.Kind, v.Any())
}

// Range is an inclusive rectangle of cells ("A1:B3").
type Range struct {
	// From is the top-left corner.
	From Ref
	// To is the bottom-right corner.
	To Ref
}

// ParseRange parses "A1:B3" or a single "A1" (a 1×1 range).
func ParseRange(s string) (Range, error) {
	from, to, ok := strings.Cut(s, ":")
	f, err := ParseRef(from)
	if err != nil {
		return Range{}, err
	}
	if !ok {
		return Range{From: f, To: f}, nil
	}
	t, err := ParseRef(to)
	if err != nil {
		return Range{}, err
	}
	if t.Col < f.Col || t.Row < f.Row {
		return Range{}, fmt.Errorf("cell: range %q is inverted: %w", s, ErrInvalidReference)
	}
	return Range{From: f, To: t}, nil
}

// Contains reports whether ref lies inside the rectangle.
func (r Range) Contains(ref Ref) bool {
	return ref.Col >= r.From.Col && ref.Col <= r.To.Col &&
		ref.Row >= r.From.Row && ref.Row <= r.To.Row
}

// String formats the range in A1:B3 notation.
func (r Range) String() string {
	return r.From.String() + ":" + r.To.String()
}
