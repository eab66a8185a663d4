// Package numfmt parses Excel number-format strings and renders cell
// values to their display form.
//
// Two layers live here.  The classification layer (Parse, Section,
// Format) splits a format string into its `;` sections and decides whether
// numeric values under it denote calendar instants, elapsed time, text, or
// plain numbers — that is what the style table consumes while streaming.
// The rendering layer (FormatValue) produces the display string Excel
// would show; its token stream comes from [github.com/xuri/nfp].
package numfmt

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/nfp"

	"github.com/TsubasaBE/go-xlsx/oadate"
)

// FormatValue renders a raw cell value v using the given number format.
//
//   - numFmtID is the numFmtId from the style's xf entry (0 = General).
//   - fmtStr is the custom format string; pass "" for built-in IDs.
//   - date1904 selects the workbook's date system.
//
// The dynamic type of v must be one of: nil, string, bool, float64.  Any
// other type falls back to fmt.Sprint.
func FormatValue(v any, numFmtID int, fmtStr string, date1904 bool) string {
	effective := Resolve(numFmtID, fmtStr)

	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		return renderFloat(val, effective, date1904)
	default:
		return fmt.Sprint(v)
	}
}

func renderFloat(val float64, effective string, date1904 bool) string {
	if effective == "General" {
		return renderGeneral(val)
	}

	parsed := Parse(effective)
	if parsed.Invalid {
		return renderGeneral(val)
	}

	parser := nfp.NumberFormatParser()
	sections := parser.Parse(effective)
	if len(sections) == 0 {
		return renderGeneral(val)
	}
	sec := pickNfpSection(sections, val)

	switch {
	case parsed.IsDateTime(), parsed.IsDuration():
		return renderDateTime(val, sec, date1904)
	default:
		return renderNumber(val, sec, len(sections))
	}
}

// pickNfpSection picks the rendering section by sign:
//
//	1 section  → all values
//	2 sections → [0]=positive+zero  [1]=negative
//	3+         → [0]=positive  [1]=negative  [2]=zero
func pickNfpSection(sections []nfp.Section, val float64) nfp.Section {
	switch {
	case len(sections) == 1:
		return sections[0]
	case len(sections) == 2:
		if val < 0 {
			return sections[1]
		}
		return sections[0]
	default:
		switch {
		case val > 0:
			return sections[0]
		case val < 0:
			return sections[1]
		default:
			return sections[2]
		}
	}
}

// renderGeneral formats a float64 in Excel's "General" style: integral
// values drop the decimal point, everything else uses the shortest float
// form.
func renderGeneral(val float64) string {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return strconv.FormatFloat(val, 'G', -1, 64)
	}
	if val == math.Trunc(val) && math.Abs(val) < 1e15 {
		return strconv.FormatInt(int64(val), 10)
	}
	return strconv.FormatFloat(val, 'G', -1, 64)
}

// ── date/time rendering ───────────────────────────────────────────────────────

// renderDateTime renders a serial through the nfp token stream of sec.
func renderDateTime(serial float64, sec nfp.Section, date1904 bool) string {
	d, err := oadate.FromSerial(serial, date1904)
	if err != nil {
		return renderGeneral(serial)
	}

	hasAmPm := false
	for _, tok := range sec.Items {
		if tok.TType == nfp.TokenTypeDateTimes {
			u := strings.ToUpper(tok.TValue)
			if u == "AM/PM" || u == "A/P" {
				hasAmPm = true
				break
			}
		}
	}

	var sb strings.Builder
	lastWasHour := false
	for _, tok := range sec.Items {
		switch tok.TType {
		case nfp.TokenTypeDateTimes:
			u := strings.ToUpper(tok.TValue)
			sb.WriteString(renderDateToken(u, d, hasAmPm, lastWasHour))
			lastWasHour = u == "H" || u == "HH"
		case nfp.TokenTypeElapsedDateTimes:
			u := strings.ToUpper(tok.TValue)
			sb.WriteString(renderElapsed(u, serial))
			lastWasHour = u == "H" || u == "HH"
		case nfp.TokenTypeLiteral:
			// A literal separator between an hour and a following m token
			// must not break minute disambiguation, so lastWasHour stands.
			sb.WriteString(tok.TValue)
		default:
			lastWasHour = false
		}
	}
	if sb.Len() == 0 {
		return renderGeneral(serial)
	}
	return sb.String()
}

// renderDateToken renders one upper-cased calendar token against the civil
// fields of d.  The day component honours the leap-bug adjustment, so
// serial 60 renders as the 29th.
func renderDateToken(upper string, d oadate.Date, hasAmPm, lastWasHour bool) string {
	switch upper {
	case "YYYY":
		return fmt.Sprintf("%04d", d.Year())
	case "YY":
		return fmt.Sprintf("%02d", d.Year()%100)
	case "MMMM":
		return d.Month().String()
	case "MMM":
		return d.Month().String()[:3]
	case "MM":
		if lastWasHour {
			return fmt.Sprintf("%02d", d.Minute())
		}
		return fmt.Sprintf("%02d", int(d.Month()))
	case "M":
		if lastWasHour {
			return strconv.Itoa(d.Minute())
		}
		return strconv.Itoa(int(d.Month()))
	case "DDDD":
		return d.Time.Weekday().String()
	case "DDD":
		return d.Time.Weekday().String()[:3]
	case "DD":
		return fmt.Sprintf("%02d", d.Day())
	case "D":
		return strconv.Itoa(d.Day())
	case "HH":
		return fmt.Sprintf("%02d", clockHour(d.Hour(), hasAmPm))
	case "H":
		return strconv.Itoa(clockHour(d.Hour(), hasAmPm))
	case "SS":
		return fmt.Sprintf("%02d", d.Second())
	case "S":
		return strconv.Itoa(d.Second())
	case "AM/PM":
		if d.Hour() < 12 {
			return "AM"
		}
		return "PM"
	case "A/P":
		if d.Hour() < 12 {
			return "A"
		}
		return "P"
	}
	return ""
}

func clockHour(h int, hasAmPm bool) int {
	if !hasAmPm {
		return h
	}
	h = h % 12
	if h == 0 {
		h = 12
	}
	return h
}

// renderElapsed renders an elapsed-time token from the raw serial
// (fractional days), with hours accumulating past 24.
func renderElapsed(upper string, serial float64) string {
	switch upper {
	case "H", "HH":
		return strconv.Itoa(int(serial * 24))
	case "MM":
		return fmt.Sprintf("%02d", int(serial*24*60)%60)
	case "M":
		return strconv.Itoa(int(serial*24*60) % 60)
	case "SS":
		return fmt.Sprintf("%02d", int(serial*24*3600)%60)
	case "S":
		return strconv.Itoa(int(serial*24*3600) % 60)
	}
	return ""
}

// ── number rendering ──────────────────────────────────────────────────────────

// renderNumber renders a non-date float64 through the token section sec.
// sectionCount decides whether a lone section must supply its own minus.
func renderNumber(val float64, sec nfp.Section, sectionCount int) string {
	var (
		hasPercent   bool
		hasThousands bool
		hasDecimal   bool
		hasSign      bool
		decZeros     int
		decHashes    int
		intZeros     int
	)
	afterDecimal := false
	for _, tok := range sec.Items {
		switch tok.TType {
		case nfp.TokenTypePercent:
			hasPercent = true
		case nfp.TokenTypeThousandsSeparator:
			hasThousands = true
		case nfp.TokenTypeDecimalPoint:
			hasDecimal = true
			afterDecimal = true
		case nfp.TokenTypeZeroPlaceHolder:
			if afterDecimal {
				decZeros += len(tok.TValue)
			} else {
				intZeros += len(tok.TValue)
			}
		case nfp.TokenTypeHashPlaceHolder:
			if afterDecimal {
				decHashes += len(tok.TValue)
			}
		case nfp.TokenTypeLiteral:
			if tok.TValue == "+" || tok.TValue == "-" {
				hasSign = true
			}
		}
	}

	absVal := math.Abs(val)
	if hasPercent {
		absVal *= 100
	}

	var intStr, fracStr string
	if hasDecimal {
		places := decZeros + decHashes
		formatted := strconv.FormatFloat(absVal, 'f', places, 64)
		intStr, fracStr, _ = strings.Cut(formatted, ".")
		// Hash placeholders surrender trailing zeros.
		for len(fracStr) > decZeros && strings.HasSuffix(fracStr, "0") {
			fracStr = fracStr[:len(fracStr)-1]
		}
	} else {
		intStr = strconv.FormatFloat(absVal, 'f', 0, 64)
	}

	for len(intStr) < intZeros {
		intStr = "0" + intStr
	}
	if hasThousands {
		intStr = insertThousandsSep(intStr)
	}

	// A lone section must supply the minus itself; with two or more the
	// negative section encodes the sign visually.
	needsMinus := val < 0 && !hasSign && sectionCount < 2

	var sb strings.Builder
	if needsMinus {
		sb.WriteByte('-')
	}
	intDone, fracDone := false, false
	afterDecimal = false
	for _, tok := range sec.Items {
		switch tok.TType {
		case nfp.TokenTypeLiteral:
			sb.WriteString(tok.TValue)
		case nfp.TokenTypeDecimalPoint:
			if len(fracStr) > 0 {
				sb.WriteByte('.')
			}
			afterDecimal = true
		case nfp.TokenTypeZeroPlaceHolder, nfp.TokenTypeHashPlaceHolder:
			if afterDecimal {
				if !fracDone {
					sb.WriteString(fracStr)
					fracDone = true
				}
			} else if !intDone {
				sb.WriteString(intStr)
				intDone = true
			}
		case nfp.TokenTypePercent:
			sb.WriteByte('%')
		}
	}
	if !intDone && !afterDecimal {
		sb.WriteString(intStr)
	}
	if sb.Len() == 0 {
		return renderGeneral(val)
	}
	return sb.String()
}

// insertThousandsSep inserts commas every three digits from the right.
func insertThousandsSep(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	var b strings.Builder
	b.Grow(n + n/3)
	rem := n % 3
	if rem == 0 {
		rem = 3
	}
	b.WriteString(s[:rem])
	for i := rem; i < n; i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
