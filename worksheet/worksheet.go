// Package worksheet streams a single worksheet XML part and reconstructs
// its rectangular grid row by row.
//
// The underlying compressed part is not seekable, so every pass opens a
// fresh decompression stream: one pass probes the dimensions, an optional
// pass collects merged ranges, and the final pass drives row emission.
// Rows are produced lazily on consumer demand; nothing holds the full
// sheet in memory.
package worksheet

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/TsubasaBE/go-xlsx/cell"
	"github.com/TsubasaBE/go-xlsx/internal/xmlstream"
	"github.com/TsubasaBE/go-xlsx/stringtable"
	"github.com/TsubasaBE/go-xlsx/styles"
)

// byteArraySentinel marks a string cell whose payload lives in another
// archive part.
const byteArraySentinel = "@@@fileid@@@,"

// Source wires a Worksheet to its document: part streams, shared strings,
// styles, and the workbook date system.  Styles is a provider rather than
// a table so the styles part loads lazily on the first styled cell.
type Source struct {
	// Name is the sheet's display name.
	Name string
	// Open opens a fresh decompression stream over the sheet part.  It is
	// called once per pass.
	Open func() (io.ReadCloser, error)
	// OpenPart loads the raw bytes of another archive part, for byte-array
	// capture.  May be nil when capture is disabled.
	OpenPart func(path string) ([]byte, error)
	// Strings is the document's shared-string store; may be nil.
	Strings stringtable.Store
	// Styles lazily resolves the document's style table; may be nil.
	Styles func() *styles.Table
	// Date1904 selects the workbook's date system.
	Date1904 bool
	// Logger receives debug diagnostics for recovered per-cell failures.
	Logger zerolog.Logger
}

// Worksheet provides row iteration over one sheet part.
type Worksheet struct {
	src Source
}

// New binds a Worksheet to its source.
func New(src Source) *Worksheet {
	return &Worksheet{src: src}
}

// Name returns the sheet's display name.
func (ws *Worksheet) Name() string { return ws.src.Name }

// Options controls one streaming query over the sheet.
type Options struct {
	// UseHeaderRow makes the first streamed row supply the column labels;
	// it is not yielded as data.
	UseHeaderRow bool
	// StartCell is the top-left corner of the read window ("A1" when
	// empty).
	StartCell string
	// EndCell is the bottom-right corner of the read window; empty
	// disables the bound.
	EndCell string
	// FillMergedCells propagates a merge anchor's value to every cell of
	// its rectangle.
	FillMergedCells bool
	// IgnoreEmptyRows suppresses gap rows and rows whose cells are all
	// empty.
	IgnoreEmptyRows bool
	// TrimColumnNames strips surrounding whitespace from header labels.
	TrimColumnNames bool
	// ConvertByteArray recognises the file-id sentinel in string cells and
	// captures the referenced part as bytes.
	ConvertByteArray bool
}

// Row is one emitted grid row.  Labels lists the column labels in order;
// Cells maps each label to its value.  Every label in [startCol, maxCol]
// is present even when the underlying XML omitted the cell.
type Row struct {
	// Index is the 0-based sheet row index.
	Index  int
	Labels []string
	Cells  map[string]cell.Value
}

// Get returns the value under label, or the null value.
func (r Row) Get(label string) cell.Value {
	return r.Cells[label]
}

// ── dimension probe ───────────────────────────────────────────────────────────

// Dimension is the probed extent of the sheet.  MaxRow and MaxCol are
// 0-based last indices; an empty sheet reports -1 for both.
type Dimension struct {
	MaxRow int
	MaxCol int
	// Referenceless is set when the sheet's cells carry no r attribute and
	// column indices must be inferred from sibling order.
	Referenceless bool
}

// ErrInvalidDimension is wrapped when a <dimension> element is present but
// its ref does not parse.
var ErrInvalidDimension = fmt.Errorf("invalid sheet dimension")

// Dimension derives the sheet extent.  A <dimension ref> element is
// trusted when it appears before the first referenced cell; otherwise one
// full streaming pass recovers the extent from cell references, or from
// per-row cell counts when references are absent.
func (ws *Worksheet) Dimension() (Dimension, error) {
	rc, err := ws.src.Open()
	if err != nil {
		return Dimension{}, err
	}
	defer rc.Close()

	dec := xmlstream.NewDecoder(rc)
	dim := Dimension{MaxRow: -1, MaxCol: -1}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return dim, nil
		}
		if err != nil {
			return Dimension{}, fmt.Errorf("worksheet %q: dimension probe: %w", ws.src.Name, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "dimension":
			ref, _ := xmlstream.Attr(se, "ref")
			rng, err := cell.ParseRange(ref)
			if err != nil {
				return Dimension{}, fmt.Errorf("worksheet %q: dimension ref %q: %w", ws.src.Name, ref, ErrInvalidDimension)
			}
			return Dimension{MaxRow: rng.To.Row - 1, MaxCol: rng.To.Col - 1}, nil
		case "c":
			if r, ok := xmlstream.Attr(se, "r"); ok {
				ws.probeReferenced(dec, r, &dim)
				return dim, nil
			}
			return ws.probeReferenceless(dec, &dim)
		}
	}
}

// probeReferenced finishes the scan for a sheet whose cells carry r
// attributes, tracking the running maximum.  first is the reference of
// the cell that ended the initial scan.
func (ws *Worksheet) probeReferenced(dec *xml.Decoder, first string, dim *Dimension) {
	track := func(refStr string) {
		ref, err := cell.ParseRef(refStr)
		if err != nil {
			return
		}
		if ref.Row-1 > dim.MaxRow {
			dim.MaxRow = ref.Row - 1
		}
		if ref.Col-1 > dim.MaxCol {
			dim.MaxCol = ref.Col - 1
		}
	}
	track(first)
	for {
		tok, err := dec.Token()
		if err != nil {
			return
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "c" {
			continue
		}
		if r, ok := xmlstream.Attr(se, "r"); ok {
			track(r)
		}
	}
}

// probeReferenceless counts rows and the widest row.  The initial cell
// that triggered reference-less mode counts toward the first row.
func (ws *Worksheet) probeReferenceless(dec *xml.Decoder, dim *Dimension) (Dimension, error) {
	rows := 1
	cellsInRow := 1
	maxCells := 1
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Dimension{}, fmt.Errorf("worksheet %q: dimension probe: %w", ws.src.Name, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "row":
			rows++
			if cellsInRow > maxCells {
				maxCells = cellsInRow
			}
			cellsInRow = 0
		case "c":
			cellsInRow++
		}
	}
	if cellsInRow > maxCells {
		maxCells = cellsInRow
	}
	return Dimension{MaxRow: rows - 1, MaxCol: maxCells - 1, Referenceless: true}, nil
}

// ── merge map ─────────────────────────────────────────────────────────────────

// mergeMap records merged ranges.  values holds each anchor's value as it
// streams past; slaves points every other cell of a rectangle at its
// anchor.  Anchors precede slaves in document order, so a slave lookup
// before its anchor streamed resolves to null, which is benign.
type mergeMap struct {
	values map[cell.Ref]cell.Value
	slaves map[cell.Ref]cell.Ref
}

// collectMerges runs the merge pre-pass over a fresh stream.
func (ws *Worksheet) collectMerges() (*mergeMap, error) {
	rc, err := ws.src.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	mm := &mergeMap{
		values: make(map[cell.Ref]cell.Value),
		slaves: make(map[cell.Ref]cell.Ref),
	}
	dec := xmlstream.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return mm, nil
		}
		if err != nil {
			return nil, fmt.Errorf("worksheet %q: merge pre-pass: %w", ws.src.Name, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "mergeCell" {
			continue
		}
		ref, _ := xmlstream.Attr(se, "ref")
		rng, err := cell.ParseRange(ref)
		if err != nil {
			ws.src.Logger.Debug().Str("sheet", ws.src.Name).Str("ref", ref).
				Msg("skipping unparseable merge range")
			continue
		}
		anchor := rng.From
		mm.values[anchor] = cell.NullValue()
		for r := rng.From.Row; r <= rng.To.Row; r++ {
			for c := rng.From.Col; c <= rng.To.Col; c++ {
				ref := cell.Ref{Col: c, Row: r}
				if ref != anchor {
					mm.slaves[ref] = anchor
				}
			}
		}
	}
}

// store records a streamed cell value into the merge map and substitutes
// slave reads with their anchor's value.
func (mm *mergeMap) store(ref cell.Ref, v cell.Value) cell.Value {
	if mm == nil {
		return v
	}
	if _, ok := mm.values[ref]; ok {
		mm.values[ref] = v
		return v
	}
	if anchor, ok := mm.slaves[ref]; ok {
		return mm.values[anchor]
	}
	return v
}

// fill resolves the value a missing cell inherits from its merge anchor.
func (mm *mergeMap) fill(ref cell.Ref) (cell.Value, bool) {
	if mm == nil {
		return cell.Value{}, false
	}
	if anchor, ok := mm.slaves[ref]; ok {
		return mm.values[anchor], true
	}
	return cell.Value{}, false
}

// ── streaming ─────────────────────────────────────────────────────────────────

// Rows returns the lazy row sequence for one query window.  Fatal
// problems (unparseable corner references, unreadable part) surface here;
// per-cell parse failures never abort the stream — the affected cell
// keeps its raw string instead.
//
// ctx is checked between row yields; cancelling it ends the sequence and
// releases the part stream.
func (ws *Worksheet) Rows(ctx context.Context, opts Options) (iter.Seq[Row], error) {
	startRef := cell.Ref{Col: 1, Row: 1}
	if opts.StartCell != "" {
		var err error
		startRef, err = cell.ParseRef(opts.StartCell)
		if err != nil {
			return nil, err
		}
	}
	var endRef *cell.Ref
	if opts.EndCell != "" {
		e, err := cell.ParseRef(opts.EndCell)
		if err != nil {
			return nil, err
		}
		endRef = &e
	}

	dim, err := ws.Dimension()
	if err != nil {
		return nil, err
	}

	var mm *mergeMap
	if opts.FillMergedCells {
		mm, err = ws.collectMerges()
		if err != nil {
			return nil, err
		}
	}

	st := &streamState{
		ws:       ws,
		opts:     opts,
		dim:      dim,
		mm:       mm,
		startRow: startRef.Row - 1,
		startCol: startRef.Col - 1,
		maxRow:   dim.MaxRow,
		maxCol:   dim.MaxCol,
	}
	if endRef != nil {
		if endRef.Row-1 < st.maxRow {
			st.maxRow = endRef.Row - 1
		}
		if endRef.Col-1 < st.maxCol {
			st.maxCol = endRef.Col - 1
		}
	}

	return func(yield func(Row) bool) {
		st.run(ctx, yield)
	}, nil
}

// streamState groups the per-query row-generation state so the generator
// body stays readable.
type streamState struct {
	ws   *Worksheet
	opts Options
	dim  Dimension
	mm   *mergeMap

	startRow int
	startCol int
	maxRow   int // inclusive, 0-based; -1 means empty sheet
	maxCol   int

	headers  []string // set once when UseHeaderRow
	nextEmit int
}

// run is the generator body: the final pass over the sheet XML (the third
// when the merge pre-pass ran, otherwise the second).
func (st *streamState) run(ctx context.Context, yield func(Row) bool) {
	if st.maxRow < st.startRow || st.maxCol < st.startCol {
		return
	}
	rc, err := st.ws.src.Open()
	if err != nil {
		return
	}
	defer rc.Close()

	dec := xmlstream.NewDecoder(rc)
	st.nextEmit = st.startRow
	headerPending := st.opts.UseHeaderRow
	rowCursor := -1

	for {
		if ctx.Err() != nil {
			return
		}
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "row" {
			continue
		}

		rowIdx := rowCursor + 1
		if r, ok := xmlstream.Attr(se, "r"); ok {
			if n, err := strconv.Atoi(r); err == nil && n >= 1 {
				rowIdx = n - 1
			}
		}
		rowCursor = rowIdx

		if rowIdx < st.startRow {
			_ = dec.Skip()
			continue
		}
		if rowIdx > st.maxRow {
			// Past the window; any rows still owed to the grid are filled
			// below.
			break
		}

		cells, err := st.readRowCells(dec, rowIdx)
		if err != nil {
			return
		}

		if headerPending {
			st.headers = st.deriveHeaders(cells)
			headerPending = false
			st.nextEmit = rowIdx + 1
			continue
		}

		if st.opts.IgnoreEmptyRows {
			if st.isEmpty(cells, rowIdx) {
				continue
			}
		} else {
			for st.nextEmit < rowIdx {
				if ctx.Err() != nil || !yield(st.makeRow(st.nextEmit, nil)) {
					return
				}
				st.nextEmit++
			}
		}
		if ctx.Err() != nil || !yield(st.makeRow(rowIdx, cells)) {
			return
		}
		st.nextEmit = rowIdx + 1
	}

	// Trailing rows the XML never mentioned still belong to the grid.
	if !st.opts.IgnoreEmptyRows {
		for st.nextEmit <= st.maxRow {
			if ctx.Err() != nil || !yield(st.makeRow(st.nextEmit, nil)) {
				return
			}
			st.nextEmit++
		}
	}
}

// readRowCells consumes one <row> element and returns its values keyed by
// absolute 0-based column index.  Merge bookkeeping happens here, before
// the column window filter, so anchor values outside the window still
// propagate into it.
func (st *streamState) readRowCells(dec *xml.Decoder, rowIdx int) (map[int]cell.Value, error) {
	cells := make(map[int]cell.Value)
	prevCol := -1
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.EndElement:
			depth--
		case xml.StartElement:
			if t.Name.Local != "c" {
				depth++
				continue
			}
			col, v := st.readCell(dec, t, rowIdx, prevCol)
			prevCol = col
			v = st.mm.store(cell.Ref{Col: col + 1, Row: rowIdx + 1}, v)
			if col >= st.startCol && col <= st.maxCol {
				cells[col] = v
			}
		}
	}
	return cells, nil
}

// readCell consumes one <c> element and resolves its typed value.
func (st *streamState) readCell(dec *xml.Decoder, se xml.StartElement, rowIdx, prevCol int) (int, cell.Value) {
	col := prevCol + 1
	if !st.dim.Referenceless {
		if r, ok := xmlstream.Attr(se, "r"); ok {
			if ref, err := cell.ParseRef(r); err == nil {
				col = ref.Col - 1
			} else {
				st.ws.src.Logger.Debug().Str("sheet", st.ws.src.Name).Str("ref", r).
					Msg("cell reference failed to parse, using positional column")
			}
		}
	}
	typ, _ := xmlstream.Attr(se, "t")
	styleAttr, hasStyle := xmlstream.Attr(se, "s")

	var raw string
	var inline string
	hasInline := false
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return col, cell.NullValue()
		}
		switch t := tok.(type) {
		case xml.EndElement:
			depth--
		case xml.StartElement:
			switch t.Name.Local {
			case "v":
				s, err := xmlstream.CharData(dec, t)
				if err != nil {
					return col, cell.NullValue()
				}
				raw = s
			case "is":
				s, err := xmlstream.Text(dec, t)
				if err != nil {
					return col, cell.NullValue()
				}
				inline = s
				hasInline = true
			default:
				// Formula bodies and extension lists are not consulted.
				if err := dec.Skip(); err != nil {
					return col, cell.NullValue()
				}
			}
		}
	}

	v := st.typedValue(typ, raw, inline, hasInline)
	if hasStyle && v.Kind == cell.Number {
		if xf, err := strconv.Atoi(styleAttr); err == nil {
			if tbl := st.stylesTable(); tbl != nil {
				v = tbl.Classify(xf, v, st.ws.src.Date1904)
			}
		}
	}
	return col, v
}

func (st *streamState) stylesTable() *styles.Table {
	if st.ws.src.Styles == nil {
		return nil
	}
	return st.ws.src.Styles()
}

// typedValue applies the cell's t attribute to its raw content.
func (st *streamState) typedValue(typ, raw, inline string, hasInline bool) cell.Value {
	switch typ {
	case "s":
		idx, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return cell.RawValue(raw)
		}
		if st.ws.src.Strings == nil {
			return cell.NullValue()
		}
		s, ok := st.ws.src.Strings.Get(idx)
		if !ok {
			return cell.NullValue()
		}
		// Shared strings are emitted verbatim; the file-id sentinel only
		// applies to inline and formula strings.
		return cell.TextValue(s)
	case "inlineStr":
		return st.stringValue(inline)
	case "str":
		if hasInline {
			return st.stringValue(inline)
		}
		return st.stringValue(xmlstream.DecodeEscapes(raw))
	case "b":
		return cell.BoolValue(raw == "1")
	case "d":
		if t, err := parseISODate(raw); err == nil {
			return cell.TimeValue(t)
		}
		st.ws.src.Logger.Debug().Str("sheet", st.ws.src.Name).Str("raw", raw).
			Msg("date literal failed to parse, keeping raw string")
		return cell.RawValue(raw)
	case "e":
		return cell.RawValue(raw)
	default:
		if hasInline {
			return st.stringValue(inline)
		}
		if raw == "" {
			return cell.NullValue()
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return cell.NumberValue(f)
		}
		st.ws.src.Logger.Debug().Str("sheet", st.ws.src.Name).Str("raw", raw).
			Msg("numeric cell failed to parse, keeping raw string")
		return cell.RawValue(raw)
	}
}

// stringValue wraps a decoded string, capturing the referenced part's
// bytes when the file-id sentinel matches.
func (st *streamState) stringValue(s string) cell.Value {
	if st.opts.ConvertByteArray && strings.HasPrefix(s, byteArraySentinel) && st.ws.src.OpenPart != nil {
		path := s[len(byteArraySentinel):]
		if b, err := st.ws.src.OpenPart(path); err == nil {
			return cell.BytesValue(b)
		}
		st.ws.src.Logger.Debug().Str("sheet", st.ws.src.Name).Str("part", path).
			Msg("byte-array part failed to load, keeping sentinel string")
	}
	return cell.TextValue(s)
}

// parseISODate parses the t="d" literal forms: a bare ISO date with an
// optional time tail.  Other layouts fall back to the raw string.
func parseISODate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}

// deriveHeaders turns the header row's cells into column labels for the
// window.  Cells without text fall back to the alphabetic label.
func (st *streamState) deriveHeaders(cells map[int]cell.Value) []string {
	labels := make([]string, 0, st.maxCol-st.startCol+1)
	for c := st.startCol; c <= st.maxCol; c++ {
		label := ""
		if v, ok := cells[c]; ok {
			switch v.Kind {
			case cell.Text, cell.Raw:
				label = v.S
			case cell.Number:
				label = strconv.FormatFloat(v.F, 'G', -1, 64)
			}
		}
		if st.opts.TrimColumnNames {
			label = strings.TrimSpace(label)
		}
		if label == "" {
			label = cell.ColumnName(c + 1)
		}
		labels = append(labels, label)
	}
	return labels
}

// label returns the emitted label for absolute column c.
func (st *streamState) label(c int) string {
	if st.headers != nil {
		return st.headers[c-st.startCol]
	}
	return cell.ColumnName(c + 1)
}

// makeRow assembles the dense row for index idx.  cells may be nil for a
// gap row; merge fill still applies so slave cells inside a filled merge
// rectangle inherit the anchor value.
func (st *streamState) makeRow(idx int, cells map[int]cell.Value) Row {
	row := Row{
		Index:  idx,
		Labels: make([]string, 0, st.maxCol-st.startCol+1),
		Cells:  make(map[string]cell.Value, st.maxCol-st.startCol+1),
	}
	for c := st.startCol; c <= st.maxCol; c++ {
		lbl := st.label(c)
		v, ok := cells[c]
		if (!ok || v.IsNull()) && st.opts.FillMergedCells {
			if fv, filled := st.mm.fill(cell.Ref{Col: c + 1, Row: idx + 1}); filled {
				v = fv
			}
		}
		row.Labels = append(row.Labels, lbl)
		row.Cells[lbl] = v
	}
	return row
}

// isEmpty reports whether every cell of the row resolves to null inside
// the window, including merge fill.
func (st *streamState) isEmpty(cells map[int]cell.Value, idx int) bool {
	for c := st.startCol; c <= st.maxCol; c++ {
		if v, ok := cells[c]; ok && !v.IsNull() {
			return false
		}
		if st.opts.FillMergedCells {
			if fv, filled := st.mm.fill(cell.Ref{Col: c + 1, Row: idx + 1}); filled && !fv.IsNull() {
				return false
			}
		}
	}
	return true
}
