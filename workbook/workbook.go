// Package workbook opens an .xlsx workbook (a ZIP archive of OOXML parts)
// and exposes the streaming query API.
package workbook

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/TsubasaBE/go-xlsx/cell"
	"github.com/TsubasaBE/go-xlsx/internal/rels"
	"github.com/TsubasaBE/go-xlsx/internal/xmlstream"
	"github.com/TsubasaBE/go-xlsx/numfmt"
	"github.com/TsubasaBE/go-xlsx/stringtable"
	"github.com/TsubasaBE/go-xlsx/styles"
	"github.com/TsubasaBE/go-xlsx/worksheet"
)

// Sheet visibility states, as stored in the sheet element's state
// attribute.
const (
	// SheetVisible indicates the sheet tab is visible (the default).
	SheetVisible = "visible"
	// SheetHidden indicates the sheet can be unhidden through the UI.
	SheetHidden = "hidden"
	// SheetVeryHidden indicates the sheet can only be unhidden
	// programmatically.
	SheetVeryHidden = "veryHidden"
)

var (
	// ErrMalformedArchive is wrapped when a required part is missing or the
	// archive cannot be read.
	ErrMalformedArchive = errors.New("malformed workbook archive")
	// ErrSheetNotFound is wrapped when a named sheet is absent and no
	// dynamic-sheet alias matches.
	ErrSheetNotFound = errors.New("sheet not found")
)

// defaultSpillThreshold is the shared-string spill threshold used when the
// configuration enables the cache without sizing it.
const defaultSpillThreshold = 5 * 1024 * 1024

// Config enumerates the document-level options.  The zero value reads
// merged cells literally, emits gap rows, keeps shared strings in memory,
// and uses the workbook's own date system.
type Config struct {
	// FillMergedCells propagates merge-anchor values to every cell of the
	// merged rectangle during reads.
	FillMergedCells bool
	// IgnoreEmptyRows suppresses gap rows and all-empty rows.
	IgnoreEmptyRows bool
	// EnableSharedStringCache allows the shared-string table to spill to
	// disk when its part exceeds SharedStringCacheSize.
	EnableSharedStringCache bool
	// SharedStringCacheSize is the spill threshold in bytes; zero selects
	// a 5 MiB default.
	SharedStringCacheSize int64
	// EnableConvertByteArray recognises the file-id sentinel in string
	// cells and captures the referenced part as bytes.
	EnableConvertByteArray bool
	// TrimColumnNames strips surrounding whitespace from header labels.
	TrimColumnNames bool
	// DynamicSheets maps logical sheet aliases to real sheet names.
	DynamicSheets map[string]string
	// Date1904 forces the 1904 date system regardless of the workbook
	// property.
	Date1904 bool
	// Logger receives debug diagnostics for recovered per-cell failures.
	// The zero value discards everything.
	Logger zerolog.Logger
}

// SheetDescriptor describes one worksheet from the workbook index.
type SheetDescriptor struct {
	// Name is the display name on the sheet tab.
	Name string
	// State is the visibility state: visible, hidden, or veryHidden.
	State string
	// SheetID is the sheetId attribute.
	SheetID int
	// RelID is the relationship id linking the sheet to its part.
	RelID string
	// PartPath is the resolved zip path of the sheet's XML part.
	PartPath string
	// Active is set on the sheet selected by the workbook view.
	Active bool
}

// SheetDimension is one entry of the Dimensions report.
type SheetDimension struct {
	// Sheet is the sheet name.
	Sheet string
	// MaxRow and MaxCol are the used extent as counts (a sheet whose last
	// cell is C5 reports 5 and 3).
	MaxRow int
	MaxCol int
	// StartCell and EndCell bound the used range in A1 notation.
	StartCell string
	EndCell   string
}

// Workbook is an open document.  The shared-string store and style table
// are built once, lazily, and shared read-only by every query.
type Workbook struct {
	zr     *zip.ReadCloser // non-nil when opened by file name
	zf     *zip.Reader     // always non-nil
	cfg    Config
	sheets []SheetDescriptor

	// Date1904 reports the workbook's date system after applying the
	// configuration override.
	Date1904 bool

	stringsOnce sync.Once
	strings     stringtable.Store

	stylesOnce sync.Once
	styleTable *styles.Table
}

// Open opens the named .xlsx file.  The caller must call Close on the
// returned Workbook when done.
func Open(name string, cfg Config) (*Workbook, error) {
	rc, err := zip.OpenReader(name)
	if err != nil {
		return nil, fmt.Errorf("workbook: open %q: %w: %v", name, ErrMalformedArchive, err)
	}
	wb := &Workbook{zr: rc, zf: &rc.Reader, cfg: cfg}
	if err := wb.parseIndex(); err != nil {
		_ = rc.Close()
		return nil, err
	}
	return wb, nil
}

// OpenReader opens a workbook from an arbitrary io.ReaderAt.  size must be
// the total byte length of the ZIP data.
func OpenReader(r io.ReaderAt, size int64, cfg Config) (*Workbook, error) {
	zf, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("workbook: open reader: %w: %v", ErrMalformedArchive, err)
	}
	wb := &Workbook{zf: zf, cfg: cfg}
	if err := wb.parseIndex(); err != nil {
		return nil, err
	}
	return wb, nil
}

// Close releases the spill store (if any) and the underlying file handle.
func (wb *Workbook) Close() error {
	var first error
	if wb.strings != nil {
		if err := wb.strings.Close(); err != nil {
			first = err
		}
	}
	if wb.zr != nil {
		if err := wb.zr.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Sheets returns the display names of all worksheets in document order.
func (wb *Workbook) Sheets() []string {
	names := make([]string, len(wb.sheets))
	for i, s := range wb.sheets {
		names[i] = s.Name
	}
	return names
}

// SheetDescriptors returns the full workbook index in document order.
func (wb *Workbook) SheetDescriptors() []SheetDescriptor {
	out := make([]SheetDescriptor, len(wb.sheets))
	copy(out, wb.sheets)
	return out
}

// SheetVisibility returns the visibility state of the named sheet, or ""
// when no sheet with that name exists.
func (wb *Workbook) SheetVisibility(name string) string {
	for _, s := range wb.sheets {
		if s.Name == name {
			return s.State
		}
	}
	return ""
}

// Query streams the named sheet as row records.  An empty sheetName
// selects the active sheet.  startCell ("A1" when empty) is the top-left
// corner of the read window; when useHeaderRow is set the first streamed
// row supplies the column labels instead of being yielded.
//
// Rows are produced lazily while the consumer iterates; ctx cancellation
// between row yields releases the part stream.
func (wb *Workbook) Query(ctx context.Context, useHeaderRow bool, sheetName, startCell string) (iter.Seq[worksheet.Row], error) {
	return wb.query(ctx, useHeaderRow, sheetName, startCell, "")
}

// QueryRange is Query restricted to the rectangle [startCell, endCell].
// An empty endCell disables the bound.
func (wb *Workbook) QueryRange(ctx context.Context, useHeaderRow bool, sheetName, startCell, endCell string) (iter.Seq[worksheet.Row], error) {
	return wb.query(ctx, useHeaderRow, sheetName, startCell, endCell)
}

func (wb *Workbook) query(ctx context.Context, useHeaderRow bool, sheetName, startCell, endCell string) (iter.Seq[worksheet.Row], error) {
	desc, err := wb.resolveSheet(sheetName)
	if err != nil {
		return nil, err
	}
	ws, err := wb.openSheet(desc)
	if err != nil {
		return nil, err
	}
	return ws.Rows(ctx, worksheet.Options{
		UseHeaderRow:     useHeaderRow,
		StartCell:        startCell,
		EndCell:          endCell,
		FillMergedCells:  wb.cfg.FillMergedCells,
		IgnoreEmptyRows:  wb.cfg.IgnoreEmptyRows,
		TrimColumnNames:  wb.cfg.TrimColumnNames,
		ConvertByteArray: wb.cfg.EnableConvertByteArray,
	})
}

// Dimensions probes every sheet and reports its used extent.
func (wb *Workbook) Dimensions() ([]SheetDimension, error) {
	out := make([]SheetDimension, 0, len(wb.sheets))
	for _, desc := range wb.sheets {
		ws, err := wb.openSheet(desc)
		if err != nil {
			return nil, err
		}
		dim, err := ws.Dimension()
		if err != nil {
			return nil, err
		}
		sd := SheetDimension{Sheet: desc.Name, StartCell: "A1", EndCell: "A1"}
		if dim.MaxRow >= 0 && dim.MaxCol >= 0 {
			sd.MaxRow = dim.MaxRow + 1
			sd.MaxCol = dim.MaxCol + 1
			sd.EndCell = cell.Ref{Col: dim.MaxCol + 1, Row: dim.MaxRow + 1}.String()
		}
		out = append(out, sd)
	}
	return out, nil
}

// FormatCell renders a raw cell value to the display string Excel would
// show, using the number format of the style at index xf.
func (wb *Workbook) FormatCell(v any, xf int) string {
	st := wb.stylesTable().Style(xf)
	return numfmt.FormatValue(v, st.NumFmtID, st.FormatStr, wb.Date1904)
}

// ── sheet resolution ──────────────────────────────────────────────────────────

// resolveSheet maps a requested name to a descriptor.  The empty name
// selects the active sheet (falling back to the first visible one), and
// dynamic-sheet aliases are resolved before the exact-name lookup.
func (wb *Workbook) resolveSheet(name string) (SheetDescriptor, error) {
	if len(wb.sheets) == 0 {
		return SheetDescriptor{}, fmt.Errorf("workbook: no worksheets: %w", ErrMalformedArchive)
	}
	if name == "" {
		for _, s := range wb.sheets {
			if s.Active {
				return s, nil
			}
		}
		for _, s := range wb.sheets {
			if s.State == SheetVisible {
				return s, nil
			}
		}
		return wb.sheets[0], nil
	}
	if alias, ok := wb.cfg.DynamicSheets[name]; ok {
		name = alias
	}
	for _, s := range wb.sheets {
		if s.Name == name {
			return s, nil
		}
	}
	return SheetDescriptor{}, fmt.Errorf("workbook: sheet %q: %w", name, ErrSheetNotFound)
}

// openSheet binds a transient Worksheet to the descriptor's part.
func (wb *Workbook) openSheet(desc SheetDescriptor) (*worksheet.Worksheet, error) {
	f := wb.findEntry(desc.PartPath)
	if f == nil {
		return nil, fmt.Errorf("workbook: sheet part %q: %w", desc.PartPath, ErrMalformedArchive)
	}
	return worksheet.New(worksheet.Source{
		Name: desc.Name,
		Open: func() (io.ReadCloser, error) {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("workbook: open sheet part %q: %w", desc.PartPath, err)
			}
			return rc, nil
		},
		OpenPart: wb.readPart,
		Strings:  wb.stringsStore(),
		Styles:   wb.stylesTable,
		Date1904: wb.Date1904,
		Logger:   wb.cfg.Logger,
	}), nil
}

// ── lazily built shared resources ─────────────────────────────────────────────

// stringsStore builds the shared-string store on first use.  The part is
// optional; workbooks without one stream with a nil store.
func (wb *Workbook) stringsStore() stringtable.Store {
	wb.stringsOnce.Do(func() {
		f := wb.findEntry("xl/sharedStrings.xml")
		if f == nil {
			return
		}
		rc, err := f.Open()
		if err != nil {
			wb.cfg.Logger.Debug().Err(err).Msg("shared strings part failed to open")
			return
		}
		defer rc.Close()
		threshold := wb.cfg.SharedStringCacheSize
		if threshold <= 0 {
			threshold = defaultSpillThreshold
		}
		st, err := stringtable.New(rc, int64(f.UncompressedSize64), stringtable.Options{
			SpillEnabled:   wb.cfg.EnableSharedStringCache,
			SpillThreshold: threshold,
		})
		if err != nil {
			wb.cfg.Logger.Debug().Err(err).Msg("shared strings failed to parse")
			return
		}
		wb.strings = st
	})
	return wb.strings
}

// stylesTable parses xl/styles.xml on the first styled cell.  Failures
// degrade to a nil table so every style classifies as General.
func (wb *Workbook) stylesTable() *styles.Table {
	wb.stylesOnce.Do(func() {
		f := wb.findEntry("xl/styles.xml")
		if f == nil {
			return
		}
		rc, err := f.Open()
		if err != nil {
			return
		}
		defer rc.Close()
		st, err := styles.Parse(rc, wb.cfg.Logger)
		if err != nil {
			wb.cfg.Logger.Debug().Err(err).Msg("styles part failed to parse")
			return
		}
		wb.styleTable = st
	})
	return wb.styleTable
}

// ── workbook index parsing ────────────────────────────────────────────────────

// parseIndex reads xl/workbook.xml and its relationships file to build the
// sheet list, resolve part paths, and record the date system and active
// sheet.
func (wb *Workbook) parseIndex() error {
	f := wb.findEntry("xl/workbook.xml")
	if f == nil {
		return fmt.Errorf("workbook: missing xl/workbook.xml: %w", ErrMalformedArchive)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("workbook: read workbook.xml: %w: %v", ErrMalformedArchive, err)
	}
	defer rc.Close()

	activeTab := 0
	dec := xmlstream.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("workbook: parse workbook.xml: %w: %v", ErrMalformedArchive, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "workbookPr":
			if v, ok := xmlstream.Attr(se, "date1904"); ok {
				wb.Date1904 = v == "1" || v == "true"
			}
		case "workbookView":
			if v, ok := xmlstream.Attr(se, "activeTab"); ok {
				if n, err := strconv.Atoi(v); err == nil {
					activeTab = n
				}
			}
		case "sheet":
			desc := SheetDescriptor{State: SheetVisible}
			desc.Name, _ = xmlstream.Attr(se, "name")
			if v, ok := xmlstream.Attr(se, "state"); ok {
				desc.State = v
			}
			if v, ok := xmlstream.Attr(se, "sheetId"); ok {
				desc.SheetID, _ = strconv.Atoi(v)
			}
			// The r:id attribute carries the relationship to the part.
			desc.RelID, _ = xmlstream.Attr(se, "id")
			wb.sheets = append(wb.sheets, desc)
		}
	}
	if wb.cfg.Date1904 {
		wb.Date1904 = true
	}
	if activeTab >= 0 && activeTab < len(wb.sheets) {
		wb.sheets[activeTab].Active = true
	}
	return wb.resolvePartPaths()
}

// resolvePartPaths fills each descriptor's PartPath through the
// relationships file.  The file is required once the workbook has more
// than one sheet; a single-sheet workbook without one falls back to the
// conventional part name.
func (wb *Workbook) resolvePartPaths() error {
	relMap := map[string]string{}
	if f := wb.findEntry("xl/_rels/workbook.xml.rels"); f != nil {
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("workbook: read workbook rels: %w: %v", ErrMalformedArchive, err)
		}
		m, err := rels.Parse(rc)
		_ = rc.Close()
		if err != nil {
			return fmt.Errorf("workbook: %w: %v", ErrMalformedArchive, err)
		}
		relMap = m
	} else if len(wb.sheets) > 1 {
		return fmt.Errorf("workbook: missing xl/_rels/workbook.xml.rels: %w", ErrMalformedArchive)
	}

	for i := range wb.sheets {
		if target, ok := relMap[wb.sheets[i].RelID]; ok {
			wb.sheets[i].PartPath = rels.ResolveTarget("xl", target)
			continue
		}
		wb.sheets[i].PartPath = "xl/worksheets/sheet1.xml"
	}
	return nil
}

// ── archive access ────────────────────────────────────────────────────────────

// findEntry locates a named entry in the archive.
func (wb *Workbook) findEntry(name string) *zip.File {
	for _, f := range wb.zf.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// readPart reads the full contents of a named part, for byte-array
// capture.
func (wb *Workbook) readPart(name string) ([]byte, error) {
	f := wb.findEntry(name)
	if f == nil {
		return nil, fmt.Errorf("workbook: part %q not found in archive", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	data, readErr := io.ReadAll(rc)
	closeErr := rc.Close()
	if readErr != nil {
		return nil, readErr
	}
	// Propagate decompressor checksum errors even when the read appeared
	// to succeed.
	if closeErr != nil {
		return nil, closeErr
	}
	return data, nil
}
