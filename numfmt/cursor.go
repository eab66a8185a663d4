package numfmt

// cursor is a bounded character cursor over one section of a number-format
// string.  All advances clamp to the input length and no method returns an
// error; "no match" is the only failure signal the parser needs.
type cursor struct {
	src []rune
	pos int
}

// eof is returned by peek past the end of input.
const eof = rune(-1)

func newCursor(s string) *cursor {
	return &cursor{src: []rune(s)}
}

// peek returns the rune at the given offset from the current position, or
// eof when it lies past the end of input.
func (c *cursor) peek(offset int) rune {
	i := c.pos + offset
	if i < 0 || i >= len(c.src) {
		return eof
	}
	return c.src[i]
}

// advance moves the cursor forward n runes, clamped to the input length.
func (c *cursor) advance(n int) {
	c.pos += n
	if c.pos > len(c.src) {
		c.pos = len(c.src)
	}
}

// done reports whether the cursor is at end of input.
func (c *cursor) done() bool {
	return c.pos >= len(c.src)
}

// matchLiteral consumes s when it appears at the cursor, optionally folding
// ASCII case.
func (c *cursor) matchLiteral(s string, caseInsensitive bool) bool {
	lit := []rune(s)
	for i, r := range lit {
		got := c.peek(i)
		if got == eof {
			return false
		}
		if caseInsensitive {
			got = foldASCII(got)
			r = foldASCII(r)
		}
		if got != r {
			return false
		}
	}
	c.advance(len(lit))
	return true
}

// matchRunOf consumes one or more occurrences of r (ASCII case folded).
func (c *cursor) matchRunOf(r rune) bool {
	r = foldASCII(r)
	n := 0
	for foldASCII(c.peek(n)) == r {
		n++
	}
	if n == 0 {
		return false
	}
	c.advance(n)
	return true
}

// matchAnyOf consumes exactly one rune when it is among chars.
func (c *cursor) matchAnyOf(chars string) bool {
	got := c.peek(0)
	if got == eof {
		return false
	}
	for _, r := range chars {
		if got == r {
			c.advance(1)
			return true
		}
	}
	return false
}

// matchEnclosed consumes open … close inclusive when close appears later in
// the input.  Without a closing rune nothing is consumed.
func (c *cursor) matchEnclosed(open, close rune) bool {
	if c.peek(0) != open {
		return false
	}
	n := 1
	for {
		r := c.peek(n)
		if r == eof {
			return false
		}
		n++
		if r == close {
			c.advance(n)
			return true
		}
	}
}

// slice returns the run of length runes starting at the absolute position
// start, clamped to the input bounds.
func (c *cursor) slice(start, length int) string {
	if start < 0 {
		start = 0
	}
	end := start + length
	if end > len(c.src) {
		end = len(c.src)
	}
	if start >= end {
		return ""
	}
	return string(c.src[start:end])
}

// foldASCII lower-cases A–Z; eof and every other rune pass through.
func foldASCII(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}
