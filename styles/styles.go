// Package styles parses the xl/styles.xml part and maps cell-format (xf)
// indices to value classifiers.
//
// The table itself is parsed once; the per-xf format classification is
// derived lazily on first use of a style index and cached, so sheets that
// never touch a styled cell never pay for format parsing.
package styles

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/TsubasaBE/go-xlsx/cell"
	"github.com/TsubasaBE/go-xlsx/internal/dateformat"
	"github.com/TsubasaBE/go-xlsx/internal/xmlstream"
	"github.com/TsubasaBE/go-xlsx/numfmt"
	"github.com/TsubasaBE/go-xlsx/oadate"
)

// XFStyle holds the resolved formatting information for one xf entry from
// the cellXfs table.
type XFStyle struct {
	// NumFmtID is the numFmtId attribute.  Values 0–163 are built-in Excel
	// formats; values >= 164 are custom formats defined by a numFmt element
	// in the same part.
	NumFmtID int
	// FormatStr is the raw formatCode from the corresponding numFmt
	// element.  It is empty for built-in IDs without a custom override.
	FormatStr string
}

// Table maps xf index → style and lazily derives a classifier per entry.
// A nil *Table is valid and classifies everything as General.
type Table struct {
	xfs []XFStyle
	log zerolog.Logger

	mu      sync.Mutex
	formats map[int]*numfmt.Format
}

// Parse streams the styles part and builds the Table.  logger receives
// debug diagnostics for formats the parser rejects.
func Parse(r io.Reader, logger zerolog.Logger) (*Table, error) {
	fmts := make(map[int]string)
	var xfs []XFStyle

	dec := xmlstream.NewDecoder(r)
	inCellXfs := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("styles: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "numFmt":
				id, _ := xmlstream.Attr(t, "numFmtId")
				code, _ := xmlstream.Attr(t, "formatCode")
				if n, err := strconv.Atoi(id); err == nil {
					fmts[n] = xmlstream.DecodeEscapes(code)
				}
			case "cellXfs":
				inCellXfs = true
			case "xf":
				if !inCellXfs {
					continue
				}
				st := XFStyle{}
				if id, ok := xmlstream.Attr(t, "numFmtId"); ok {
					if n, err := strconv.Atoi(id); err == nil {
						st.NumFmtID = n
					}
				}
				xfs = append(xfs, st)
			}
		case xml.EndElement:
			if t.Name.Local == "cellXfs" {
				inCellXfs = false
			}
		}
	}

	for i := range xfs {
		xfs[i].FormatStr = fmts[xfs[i].NumFmtID]
	}
	return &Table{xfs: xfs, log: logger, formats: make(map[int]*numfmt.Format)}, nil
}

// Len returns the number of xf entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.xfs)
}

// Style returns the xf entry at index xf, or a zero XFStyle when the index
// is out of range.
func (t *Table) Style(xf int) XFStyle {
	if t == nil || xf < 0 || xf >= len(t.xfs) {
		return XFStyle{}
	}
	return t.xfs[xf]
}

// FmtStr returns the raw format string for style index xf, or "".
func (t *Table) FmtStr(xf int) string {
	return t.Style(xf).FormatStr
}

// Format returns the parsed format for style index xf, or nil when the
// style has no custom format string.  Results are cached; the table is
// safe for concurrent queries once built.
func (t *Table) Format(xf int) *numfmt.Format {
	if t == nil || xf < 0 || xf >= len(t.xfs) {
		return nil
	}
	code := t.xfs[xf].FormatStr
	if code == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.formats[xf]; ok {
		return f
	}
	f := numfmt.Parse(code)
	if f.Invalid {
		t.log.Debug().Str("format", code).Int("xf", xf).
			Msg("number format failed to parse, treating as General")
	}
	t.formats[xf] = f
	return f
}

// IsDate reports whether the xf at index xf resolves numeric values to
// calendar instants.
func (t *Table) IsDate(xf int) bool {
	if t == nil {
		return false
	}
	return t.kind(xf) == kindDate
}

type formatKind uint8

const (
	kindGeneral formatKind = iota
	kindDate
	kindDuration
)

// kind resolves the classifier for one xf: custom format strings go
// through the numfmt parser; bare built-in IDs use the fixed enumeration.
func (t *Table) kind(xf int) formatKind {
	st := t.Style(xf)
	if f := t.Format(xf); f != nil {
		switch {
		case f.IsDuration():
			return kindDuration
		case f.IsDateTime():
			return kindDate
		}
		return kindGeneral
	}
	switch {
	case dateformat.IsBuiltInDurationID(st.NumFmtID):
		return kindDuration
	case dateformat.IsBuiltInDateID(st.NumFmtID):
		return kindDate
	}
	return kindGeneral
}

// Classify rewraps a streamed value through the style at index xf.  Only
// numeric values change shape: a date-classified style turns the number
// into a calendar instant, a duration-classified style into an elapsed
// time.  Everything else passes through untouched.
//
// The instant stored for a serial inside the 1900 leap-bug window is the
// real calendar day; the presentational day shift stays in the rendering
// layer.
func (t *Table) Classify(xf int, v cell.Value, date1904 bool) cell.Value {
	if t == nil || v.Kind != cell.Number {
		return v
	}
	switch t.kind(xf) {
	case kindDate:
		d, err := oadate.FromSerial(v.F, date1904)
		if err != nil {
			return v
		}
		return cell.TimeValue(d.Time)
	case kindDuration:
		return cell.DurationValue(time.Duration(v.F * 24 * float64(time.Hour)))
	}
	return v
}
