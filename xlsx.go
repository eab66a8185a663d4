// Package xlsx provides a streaming, pure-Go reader for Office Open XML
// spreadsheet (.xlsx) files.  No cgo is required.
//
// # Quick start
//
//	wb, err := xlsx.Open("Book1.xlsx", xlsx.Config{})
//	if err != nil { ... }
//	defer wb.Close()
//
//	fmt.Println(wb.Sheets()) // [Sheet1 Sheet2]
//
//	rows, err := wb.Query(ctx, true, "Sheet1", "A1")
//	if err != nil { ... }
//	for row := range rows {
//	    name := row.Get("Name")
//	    _ = name
//	}
//
// Rows are reconstructed as a dense grid while the sheet XML streams
// through forward-only passes (a dimension probe, an optional merged-cell
// pre-pass, and the row pass): omitted cells and rows come back as null
// values, shared strings resolve through the document's string table
// (which spills to disk past a configurable threshold), and styled
// numbers resolve to calendar instants or elapsed times through the
// number-format classifier.  The full sheet is never materialised in
// memory.
//
// # Dates
//
// Excel stores dates as floating-point serial numbers in one of two
// systems; the 1900 system perpetuates the Lotus 1-2-3 bug of treating
// 1900 as a leap year.  [ConvertDate] and [ConvertDateEx] expose the
// serial conversion directly; cells whose style classifies as a date are
// converted during streaming and arrive as DateTime values.
//
// # Cell formatting
//
// Streaming always yields typed raw values.  To obtain the display string
// Excel would show — respecting number formats, date formats, and custom
// formats — call [workbook.Workbook.FormatCell] with the cell's style
// index.
package xlsx

import (
	"io"

	"github.com/TsubasaBE/go-xlsx/internal/dateformat"
	"github.com/TsubasaBE/go-xlsx/numfmt"
	"github.com/TsubasaBE/go-xlsx/oadate"
	"github.com/TsubasaBE/go-xlsx/workbook"
)

// Version is the current version of the go-xlsx library.
const Version = "1.0.0"

// Config re-exports the workbook configuration for the façade.
type Config = workbook.Config

// Open opens the named .xlsx file.  The caller must call Close on the
// returned Workbook when done.
func Open(name string, cfg Config) (*workbook.Workbook, error) {
	return workbook.Open(name, cfg)
}

// OpenReader reads an .xlsx workbook from an arbitrary io.ReaderAt.
// size must equal the total byte length of the data.
func OpenReader(r io.ReaderAt, size int64, cfg Config) (*workbook.Workbook, error) {
	return workbook.OpenReader(r, size, cfg)
}

// ConvertDate converts a 1900-system serial to its civil value, honouring
// the phantom 1900-02-29: the returned Date reports the day-of-month Excel
// would display while its Time field stays on the real calendar.
func ConvertDate(serial float64) (oadate.Date, error) {
	return oadate.FromSerial(serial, false)
}

// ConvertDateEx converts a serial under either date system.  Pass the
// workbook's Date1904 field as date1904.
func ConvertDateEx(serial float64, date1904 bool) (oadate.Date, error) {
	return oadate.FromSerial(serial, date1904)
}

// IsDateFormat reports whether a number-format id (and optional custom
// format string) renders numeric values as dates or elapsed times.
//
// id is the numFmtId from the style's xf entry.  For built-in formats
// (id < 164) formatStr is ignored; for custom formats it must be the
// formatCode from xl/styles.xml.
func IsDateFormat(id int, formatStr string) bool {
	if formatStr != "" && id >= 164 {
		f := numfmt.Parse(formatStr)
		return f.IsDateTime() || f.IsDuration()
	}
	return dateformat.IsBuiltInDateID(id)
}
