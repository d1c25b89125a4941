// Package parser tokenizes delimited export lines and maps locale-variant
// header rows onto the fixed set of canonical ad-performance fields.
package parser

import "strings"

// lineState represents the current state of the line scanner state machine.
type lineState uint8

const (
	// stateFieldStart indicates we're at the start of a field.
	stateFieldStart lineState = iota
	// stateInField indicates we're inside an unquoted field.
	stateInField
	// stateInQuotedField indicates we're inside a quoted field.
	stateInQuotedField
	// stateQuoteInQuotedField indicates we encountered a quote inside a
	// quoted field.
	stateQuoteInQuotedField
)

// LineScanner splits delimited lines using a finite state machine. It handles
// embedded delimiters in quoted spans, doubled-quote escapes, and mixed line
// endings, and never fails: malformed quoting degrades to best-effort
// splitting.
type LineScanner struct {
	delimiter byte
	state     lineState

	fieldStart int
	fieldEnd   int
}

// NewLineScanner creates a scanner for the given delimiter.
func NewLineScanner(delimiter byte) *LineScanner {
	return &LineScanner{
		delimiter: delimiter,
		state:     stateFieldStart,
	}
}

// reset prepares the scanner for a new line.
func (s *LineScanner) reset() {
	s.state = stateFieldStart
	s.fieldStart = 0
	s.fieldEnd = 0
}

// ScanLine splits one line into raw field slices pointing into the input.
// The trailing field is always included, even when empty. A bare \r or \n
// outside a quoted span ends the line; no empty field is emitted after it.
func (s *LineScanner) ScanLine(line []byte) [][]byte {
	fields := make([][]byte, 0, 16)
	s.reset()

	var unescapeBuf []byte
	needsUnescape := false

	for i := 0; i <= len(line); i++ {
		var c byte
		atEnd := i >= len(line)
		if !atEnd {
			c = line[i]
			if (c == '\r' || c == '\n') && s.state != stateInQuotedField {
				atEnd = true
			}
		}

		switch s.state {
		case stateFieldStart:
			if atEnd {
				// Empty final field
				fields = append(fields, nil)
			} else if c == '"' {
				s.fieldStart = i + 1
				s.state = stateInQuotedField
			} else if c == s.delimiter {
				fields = append(fields, nil)
			} else {
				s.fieldStart = i
				s.state = stateInField
			}

		case stateInField:
			if atEnd || c == s.delimiter {
				fields = append(fields, line[s.fieldStart:i])
				s.state = stateFieldStart
			}

		case stateInQuotedField:
			if atEnd {
				// Unterminated quoted field - take what we have
				fields = append(fields, line[s.fieldStart:i])
			} else if c == '"' {
				s.fieldEnd = i
				s.state = stateQuoteInQuotedField
			}

		case stateQuoteInQuotedField:
			if atEnd || c == s.delimiter {
				field := line[s.fieldStart:s.fieldEnd]
				if needsUnescape {
					field = unescapeQuotes(field, unescapeBuf)
					needsUnescape = false
				}
				fields = append(fields, field)
				s.state = stateFieldStart
			} else if c == '"' {
				// Escaped quote ("") - unescape when the field ends
				needsUnescape = true
				s.state = stateInQuotedField
			} else {
				// Character after closing quote - be lenient and continue
				s.state = stateInQuotedField
			}
		}

		if atEnd {
			break
		}
	}

	return fields
}

// unescapeQuotes replaces "" with " in a quoted field.
func unescapeQuotes(field, buf []byte) []byte {
	if buf == nil {
		buf = make([]byte, 0, len(field))
	} else {
		buf = buf[:0]
	}

	i := 0
	for i < len(field) {
		if field[i] == '"' && i+1 < len(field) && field[i+1] == '"' {
			buf = append(buf, '"')
			i += 2
		} else {
			buf = append(buf, field[i])
			i++
		}
	}

	return buf
}

// ParseLine splits one comma-delimited line into trimmed string fields.
// It never fails; quoted spans may contain delimiters and doubled quotes
// decode to a literal quote.
func ParseLine(line string) []string {
	scanner := NewLineScanner(',')
	raw := scanner.ScanLine([]byte(line))

	fields := make([]string, len(raw))
	for i, f := range raw {
		fields[i] = strings.TrimSpace(string(f))
	}
	return fields
}

// TrimLineEnding removes trailing \n and \r characters.
func TrimLineEnding(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
