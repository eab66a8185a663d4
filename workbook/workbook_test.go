package workbook_test

// Unit tests for the workbook index and query API.  All fixtures are
// in-memory ZIP archives so no external .xlsx file is required.

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/TsubasaBE/go-xlsx/cell"
	"github.com/TsubasaBE/go-xlsx/workbook"
	"github.com/TsubasaBE/go-xlsx/worksheet"
)

// buildArchive zips the given name → content map.
func buildArchive(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range parts {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func openArchive(t *testing.T, parts map[string]string, cfg workbook.Config) *workbook.Workbook {
	t.Helper()
	data := buildArchive(t, parts)
	wb, err := workbook.OpenReader(bytes.NewReader(data), int64(len(data)), cfg)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	t.Cleanup(func() { wb.Close() })
	return wb
}

const workbookXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"
          xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
  <workbookPr/>
  <bookViews><workbookView activeTab="1"/></bookViews>
  <sheets>
    <sheet name="First" sheetId="1" r:id="rId1"/>
    <sheet name="Second" sheetId="2" r:id="rId2"/>
    <sheet name="Ghost" sheetId="3" state="hidden" r:id="rId3"/>
  </sheets>
</workbook>`

const workbookRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet1.xml"/>
  <Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet2.xml"/>
  <Relationship Id="rId3" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="/xl/worksheets/sheet3.xml"/>
</Relationships>`

const sheetNS = `xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"`

func sheetXML(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
		`<worksheet ` + sheetNS + `>` + body + `</worksheet>`
}

func multiSheetParts() map[string]string {
	return map[string]string{
		"xl/workbook.xml":            workbookXML,
		"xl/_rels/workbook.xml.rels": workbookRels,
		"xl/worksheets/sheet1.xml": sheetXML(`<dimension ref="A1"/><sheetData>` +
			`<row r="1"><c r="A1" t="inlineStr"><is><t>first</t></is></c></row></sheetData>`),
		"xl/worksheets/sheet2.xml": sheetXML(`<dimension ref="A1"/><sheetData>` +
			`<row r="1"><c r="A1" t="inlineStr"><is><t>second</t></is></c></row></sheetData>`),
		"xl/worksheets/sheet3.xml": sheetXML(`<dimension ref="A1:B2"/><sheetData>` +
			`<row r="2"><c r="B2"><v>9</v></c></row></sheetData>`),
	}
}

func firstRow(t *testing.T, wb *workbook.Workbook, sheet string) worksheet.Row {
	t.Helper()
	seq, err := wb.Query(context.Background(), false, sheet, "A1")
	if err != nil {
		t.Fatalf("Query(%q): %v", sheet, err)
	}
	for row := range seq {
		return row
	}
	t.Fatalf("Query(%q) yielded no rows", sheet)
	return worksheet.Row{}
}

func TestSheetsAndVisibility(t *testing.T) {
	wb := openArchive(t, multiSheetParts(), workbook.Config{})
	got := wb.Sheets()
	want := []string{"First", "Second", "Ghost"}
	if len(got) != len(want) {
		t.Fatalf("Sheets() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Sheets() = %v, want %v", got, want)
		}
	}
	if v := wb.SheetVisibility("Ghost"); v != workbook.SheetHidden {
		t.Errorf("Ghost visibility = %q", v)
	}
	if v := wb.SheetVisibility("First"); v != workbook.SheetVisible {
		t.Errorf("First visibility = %q", v)
	}
	if v := wb.SheetVisibility("Nope"); v != "" {
		t.Errorf("unknown sheet visibility = %q", v)
	}
}

func TestQueryByName(t *testing.T) {
	wb := openArchive(t, multiSheetParts(), workbook.Config{})
	row := firstRow(t, wb, "First")
	if got := row.Get("A"); got.S != "first" {
		t.Errorf("First!A1 = %#v", got)
	}
}

func TestQueryActiveSheetDefault(t *testing.T) {
	wb := openArchive(t, multiSheetParts(), workbook.Config{})
	// activeTab="1" selects the second sheet.
	row := firstRow(t, wb, "")
	if got := row.Get("A"); got.S != "second" {
		t.Errorf("active sheet A1 = %#v", got)
	}
}

func TestQueryDynamicSheetAlias(t *testing.T) {
	wb := openArchive(t, multiSheetParts(), workbook.Config{
		DynamicSheets: map[string]string{"data": "Second"},
	})
	row := firstRow(t, wb, "data")
	if got := row.Get("A"); got.S != "second" {
		t.Errorf("alias A1 = %#v", got)
	}
}

func TestQueryUnknownSheet(t *testing.T) {
	wb := openArchive(t, multiSheetParts(), workbook.Config{})
	_, err := wb.Query(context.Background(), false, "Nope", "A1")
	if !errors.Is(err, workbook.ErrSheetNotFound) {
		t.Fatalf("err = %v, want ErrSheetNotFound", err)
	}
}

func TestAbsoluteRelTarget(t *testing.T) {
	// Sheet3's relationship target is absolute ("/xl/worksheets/sheet3.xml").
	wb := openArchive(t, multiSheetParts(), workbook.Config{})
	row := firstRow(t, wb, "Ghost")
	if row.Index != 0 {
		t.Fatalf("first row index = %d", row.Index)
	}
}

func TestMissingWorkbookPart(t *testing.T) {
	data := buildArchive(t, map[string]string{"xl/other.xml": "<x/>"})
	_, err := workbook.OpenReader(bytes.NewReader(data), int64(len(data)), workbook.Config{})
	if !errors.Is(err, workbook.ErrMalformedArchive) {
		t.Fatalf("err = %v, want ErrMalformedArchive", err)
	}
}

func TestMultiSheetRequiresRels(t *testing.T) {
	parts := multiSheetParts()
	delete(parts, "xl/_rels/workbook.xml.rels")
	data := buildArchive(t, parts)
	_, err := workbook.OpenReader(bytes.NewReader(data), int64(len(data)), workbook.Config{})
	if !errors.Is(err, workbook.ErrMalformedArchive) {
		t.Fatalf("err = %v, want ErrMalformedArchive", err)
	}
}

func TestSingleSheetWithoutRels(t *testing.T) {
	wb := openArchive(t, map[string]string{
		"xl/workbook.xml": `<?xml version="1.0"?>` +
			`<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">` +
			`<sheets><sheet name="Only" sheetId="1"/></sheets></workbook>`,
		"xl/worksheets/sheet1.xml": sheetXML(`<dimension ref="A1"/><sheetData>` +
			`<row r="1"><c r="A1"><v>7</v></c></row></sheetData>`),
	}, workbook.Config{})
	row := firstRow(t, wb, "Only")
	if got := row.Get("A"); got.F != 7 {
		t.Errorf("Only!A1 = %#v", got)
	}
}

func TestStrictNamespaceAccepted(t *testing.T) {
	wb := openArchive(t, map[string]string{
		"xl/workbook.xml": `<?xml version="1.0"?>` +
			`<workbook xmlns="http://purl.oclc.org/ooxml/spreadsheetml/main" ` +
			`xmlns:r="http://purl.oclc.org/ooxml/officeDocument/relationships">` +
			`<sheets><sheet name="Strict" sheetId="1" r:id="rId1"/></sheets></workbook>`,
		"xl/_rels/workbook.xml.rels": `<?xml version="1.0"?>` +
			`<Relationships xmlns="http://purl.oclc.org/ooxml/package/relationships">` +
			`<Relationship Id="rId1" Type="w" Target="worksheets/sheet1.xml"/></Relationships>`,
		"xl/worksheets/sheet1.xml": `<?xml version="1.0"?>` +
			`<worksheet xmlns="http://purl.oclc.org/ooxml/spreadsheetml/main"><sheetData>` +
			`<row r="1"><c r="A1"><v>1</v></c></row></sheetData></worksheet>`,
	}, workbook.Config{})
	if len(wb.Sheets()) != 1 || wb.Sheets()[0] != "Strict" {
		t.Fatalf("Sheets() = %v", wb.Sheets())
	}
	row := firstRow(t, wb, "Strict")
	if got := row.Get("A"); got.F != 1 {
		t.Errorf("Strict!A1 = %#v", got)
	}
}

func TestSharedStringResolution(t *testing.T) {
	wb := openArchive(t, map[string]string{
		"xl/workbook.xml": `<?xml version="1.0"?>` +
			`<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">` +
			`<sheets><sheet name="S" sheetId="1"/></sheets></workbook>`,
		"xl/sharedStrings.xml": `<?xml version="1.0"?>` +
			`<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="2" uniqueCount="2">` +
			`<si><t>alpha</t></si><si><r><t>be</t></r><r><t>ta</t></r></si></sst>`,
		"xl/worksheets/sheet1.xml": sheetXML(`<dimension ref="A1:B1"/><sheetData>` +
			`<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row></sheetData>`),
	}, workbook.Config{})
	row := firstRow(t, wb, "S")
	if got := row.Get("A"); got.S != "alpha" {
		t.Errorf("A1 = %#v", got)
	}
	if got := row.Get("B"); got.S != "beta" {
		t.Errorf("B1 = %#v", got)
	}
}

func TestDate1904Property(t *testing.T) {
	wb := openArchive(t, map[string]string{
		"xl/workbook.xml": `<?xml version="1.0"?>` +
			`<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">` +
			`<workbookPr date1904="1"/>` +
			`<sheets><sheet name="S" sheetId="1"/></sheets></workbook>`,
		"xl/worksheets/sheet1.xml": sheetXML(`<sheetData/>`),
	}, workbook.Config{})
	if !wb.Date1904 {
		t.Error("workbookPr date1904 should be honoured")
	}

	override := openArchive(t, map[string]string{
		"xl/workbook.xml": `<?xml version="1.0"?>` +
			`<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">` +
			`<sheets><sheet name="S" sheetId="1"/></sheets></workbook>`,
		"xl/worksheets/sheet1.xml": sheetXML(`<sheetData/>`),
	}, workbook.Config{Date1904: true})
	if !override.Date1904 {
		t.Error("config override should force the 1904 system")
	}
}

func TestDimensions(t *testing.T) {
	wb := openArchive(t, multiSheetParts(), workbook.Config{})
	dims, err := wb.Dimensions()
	if err != nil {
		t.Fatal(err)
	}
	if len(dims) != 3 {
		t.Fatalf("got %d entries", len(dims))
	}
	ghost := dims[2]
	if ghost.Sheet != "Ghost" || ghost.MaxRow != 2 || ghost.MaxCol != 2 {
		t.Errorf("Ghost dimension = %+v", ghost)
	}
	if ghost.StartCell != "A1" || ghost.EndCell != "B2" {
		t.Errorf("Ghost range = %s:%s", ghost.StartCell, ghost.EndCell)
	}
}

func TestFormatCell(t *testing.T) {
	wb := openArchive(t, map[string]string{
		"xl/workbook.xml": `<?xml version="1.0"?>` +
			`<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">` +
			`<sheets><sheet name="S" sheetId="1"/></sheets></workbook>`,
		"xl/styles.xml": `<?xml version="1.0"?>` +
			`<styleSheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">` +
			`<numFmts><numFmt numFmtId="164" formatCode="yyyy-mm-dd"/></numFmts>` +
			`<cellXfs><xf numFmtId="0"/><xf numFmtId="164"/></cellXfs></styleSheet>`,
		"xl/worksheets/sheet1.xml": sheetXML(`<sheetData/>`),
	}, workbook.Config{})
	if got := wb.FormatCell(44320.0, 1); got != "2021-05-04" {
		t.Errorf("FormatCell = %q", got)
	}
	if got := wb.FormatCell(42.0, 0); got != "42" {
		t.Errorf("FormatCell general = %q", got)
	}
}

func TestMergedFillThroughConfig(t *testing.T) {
	parts := map[string]string{
		"xl/workbook.xml": `<?xml version="1.0"?>` +
			`<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">` +
			`<sheets><sheet name="M" sheetId="1"/></sheets></workbook>`,
		"xl/worksheets/sheet1.xml": sheetXML(`<dimension ref="A1:B2"/><sheetData>` +
			`<row r="1"><c r="A1" t="inlineStr"><is><t>X</t></is></c></row></sheetData>` +
			`<mergeCells count="1"><mergeCell ref="A1:B2"/></mergeCells>`),
	}
	wb := openArchive(t, parts, workbook.Config{FillMergedCells: true})
	seq, err := wb.Query(context.Background(), false, "M", "A1")
	if err != nil {
		t.Fatal(err)
	}
	var rows []worksheet.Row
	for row := range seq {
		rows = append(rows, row)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	for _, row := range rows {
		for _, lbl := range []string{"A", "B"} {
			if got := row.Get(lbl); got.Kind != cell.Text || got.S != "X" {
				t.Fatalf("row %d %s = %#v, want X", row.Index, lbl, got)
			}
		}
	}
}
