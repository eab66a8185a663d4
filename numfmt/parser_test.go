package numfmt

import "testing"

func sectionTypes(f *Format) []SectionType {
	out := make([]SectionType, len(f.Sections))
	for i, s := range f.Sections {
		out[i] = s.Type
	}
	return out
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		code    string
		want    []SectionType
		invalid bool
	}{
		{code: "General", want: []SectionType{SectionGeneral}},
		{code: "0", want: []SectionType{SectionGeneral}},
		{code: "0.00", want: []SectionType{SectionGeneral}},
		{code: "#,##0.00", want: []SectionType{SectionGeneral}},
		{code: "0%", want: []SectionType{SectionGeneral}},
		{code: "0.00E+00", want: []SectionType{SectionGeneral}},
		{code: "yyyy-mm-dd", want: []SectionType{SectionDate}},
		{code: "YYYY/MM/DD", want: []SectionType{SectionDate}},
		{code: "m/d/yy h:mm", want: []SectionType{SectionDate}},
		{code: "h:mm AM/PM", want: []SectionType{SectionDate}},
		{code: "ggge\"年\"m\"月\"d\"日\"", want: []SectionType{SectionDate}},
		{code: "[h]:mm:ss", want: []SectionType{SectionDuration}},
		{code: "[hh]:mm", want: []SectionType{SectionDuration}},
		{code: "@", want: []SectionType{SectionText}},
		{code: `"text only"`, want: []SectionType{SectionText}},
		{code: `"count: "0`, want: []SectionType{SectionGeneral}},
		{code: "0.00;[Red]-0.00", want: []SectionType{SectionGeneral, SectionGeneral}},
		{
			code: `#,##0;(#,##0);"-";@`,
			want: []SectionType{SectionGeneral, SectionGeneral, SectionText, SectionText},
		},
		{code: "yyyy-mm-dd;@", want: []SectionType{SectionDate, SectionText}},
		// Date tokens mixed with General or the text marker invalidate the
		// whole format.
		{code: "yyyy@", want: []SectionType{SectionGeneral}, invalid: true},
		{code: "General yyyy", want: []SectionType{SectionGeneral}, invalid: true},
		// Unterminated quote.
		{code: `"open`, want: []SectionType{SectionText}, invalid: true},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			f := Parse(tc.code)
			if f.Invalid != tc.invalid {
				t.Fatalf("Invalid = %v, want %v", f.Invalid, tc.invalid)
			}
			if tc.invalid {
				return
			}
			got := sectionTypes(f)
			if len(got) != len(tc.want) {
				t.Fatalf("section types %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("section %d = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestParseTruncatesToFourSections(t *testing.T) {
	f := Parse("0;0;0;@;0;0")
	if len(f.Sections) != 4 {
		t.Fatalf("got %d sections, want 4", len(f.Sections))
	}
	if f.Invalid {
		t.Error("extra sections are dropped, not an error")
	}
}

func TestParseSplitRespectsQuotingAndEscapes(t *testing.T) {
	f := Parse(`0" a;b "0`)
	if len(f.Sections) != 1 {
		t.Fatalf("quoted semicolon split the format: %d sections", len(f.Sections))
	}
	f = Parse(`0\;0`)
	if len(f.Sections) != 1 {
		t.Fatalf("escaped semicolon split the format: %d sections", len(f.Sections))
	}
	f = Parse("0;0")
	if len(f.Sections) != 2 {
		t.Fatalf("plain semicolon should split: %d sections", len(f.Sections))
	}
}

func TestParseCombinesMilliseconds(t *testing.T) {
	f := Parse("hh:mm:ss.000")
	sec := f.Sections[0]
	if sec.Type != SectionDate {
		t.Fatalf("section type = %v", sec.Type)
	}
	found := false
	for _, tok := range sec.Tokens {
		if tok.Kind == TokenMilliseconds {
			found = true
			if tok.Value != ".000" {
				t.Errorf("millisecond token = %q, want .000", tok.Value)
			}
		}
		if tok.Kind == TokenDecimalPoint {
			t.Error("decimal point should have been fused into the millisecond token")
		}
	}
	if !found {
		t.Fatal("no millisecond token produced")
	}

	// Outside date sections the decimal point survives.
	f = Parse("0.000")
	for _, tok := range f.Sections[0].Tokens {
		if tok.Kind == TokenMilliseconds {
			t.Fatal("numeric section must not grow a millisecond token")
		}
	}
}

func TestParseDurationOverridesDate(t *testing.T) {
	f := Parse("[h]:mm:ss")
	if got := f.Sections[0].Type; got != SectionDuration {
		t.Fatalf("section type = %v, want duration", got)
	}
	if !f.IsDuration() || f.IsDateTime() {
		t.Error("duration classification flags wrong")
	}
}

func TestSectionSelection(t *testing.T) {
	f := Parse("yyyy-mm-dd")
	if f.DateSection() == nil {
		t.Fatal("date section missing")
	}
	if f.TextSection() != nil {
		t.Error("three or fewer sections have no text section")
	}
	if f.NumericSection() != &f.Sections[0] {
		t.Error("single section is the numeric section")
	}

	f = Parse("0;(0);-;@")
	if f.TextSection() != &f.Sections[3] {
		t.Error("fourth section is the text section")
	}
	if f.NumericSection() != &f.Sections[2] {
		t.Error("with three or more sections, index 2 is the numeric section")
	}
}

func TestParseDeterministic(t *testing.T) {
	codes := []string{"yyyy-mm-dd", "[h]:mm:ss", "#,##0.00;[Red](#,##0.00)", "@"}
	for _, code := range codes {
		a, b := Parse(code), Parse(code)
		if a.Invalid != b.Invalid || len(a.Sections) != len(b.Sections) {
			t.Fatalf("parse of %q is not deterministic", code)
		}
		for i := range a.Sections {
			if a.Sections[i].Type != b.Sections[i].Type {
				t.Fatalf("section %d of %q classified differently", i, code)
			}
			if len(a.Sections[i].Tokens) != len(b.Sections[i].Tokens) {
				t.Fatalf("section %d of %q tokenised differently", i, code)
			}
		}
	}
}
