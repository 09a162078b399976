// Package features turns delimited text records into fixed-length float
// vectors.
package features

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultFields    = 16
	DefaultSeparator = ','
)

var (
	ErrFieldCount   = errors.New("features: wrong number of fields")
	ErrInvalidField = errors.New("features: invalid numeric field")
)

// Vector is an ordered feature vector; index i holds field i of the record.
type Vector []float32

// ParseError reports a record with the wrong arity. No field was converted.
type ParseError struct {
	Got, Want int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("expected %d values, got %d", e.Want, e.Got)
}

func (e *ParseError) Unwrap() error { return ErrFieldCount }

// FieldError is returned in strict mode for a field that is not a complete,
// finite number.
type FieldError struct {
	Index int
	Text  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %d: %q is not a number", e.Index, e.Text)
}

func (e *FieldError) Unwrap() error { return ErrInvalidField }

type Parser struct {
	Fields    int
	Separator rune
	// Strict rejects non-numeric fields instead of reading them as 0.
	Strict bool
	// OnDegraded, if set, is called in lenient mode for every field that was
	// not a complete number.
	OnDegraded func(index int, text string, value float32)
}

func DefaultParser() Parser {
	return Parser{Fields: DefaultFields, Separator: DefaultSeparator}
}

// Width is the number of fields a record must have.
func (p Parser) Width() int {
	if p.Fields <= 0 {
		return DefaultFields
	}
	return p.Fields
}

// Delim is the field separator in effect.
func (p Parser) Delim() rune {
	if p.Separator == 0 {
		return DefaultSeparator
	}
	return p.Separator
}

// Parse splits record into exactly p.Fields values. In lenient mode each
// field is read as its longest numeric prefix, and a field with none reads
// as 0.
func (p Parser) Parse(record string) (Vector, error) {
	want, sep := p.Width(), p.Delim()

	record = strings.TrimSpace(record)
	if got := strings.Count(record, string(sep)) + 1; got != want {
		return nil, &ParseError{Got: got, Want: want}
	}

	v := make(Vector, 0, want)
	for i, field := range strings.Split(record, string(sep)) {
		field = strings.TrimSpace(field)
		f, ok := parseFloat(field)
		if !ok {
			if p.Strict {
				return nil, &FieldError{Index: i, Text: field}
			}
			if p.OnDegraded != nil {
				p.OnDegraded(i, field, f)
			}
		}
		v = append(v, f)
	}
	return v, nil
}

// Format renders v as a record that Parse reads back.
func (v Vector) Format(sep rune, prec int) string {
	var b strings.Builder
	for i, f := range v {
		if i > 0 {
			b.WriteRune(sep)
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', prec, 32))
	}
	return b.String()
}

// parseFloat reads s as a finite float32. When s is not a complete number it
// falls back to the longest numeric prefix and reports ok=false.
func parseFloat(s string) (float32, bool) {
	if f, err := strconv.ParseFloat(s, 32); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return float32(f), true
	}
	n := numericPrefix(s)
	if n == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(s[:n], 32)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return float32(f), false
}

// numericPrefix returns the length of the longest prefix of s shaped like
// [+-]digits[.digits][(e|E)[+-]digits].
func numericPrefix(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		j := i + 1
		frac := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			frac++
		}
		if digits+frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return 0
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		exp := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			exp++
		}
		if exp > 0 {
			i = j
		}
	}
	return i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
