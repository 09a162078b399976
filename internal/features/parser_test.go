package features

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func fields(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("1.%d", i%10)
	}
	return out
}

func TestParseExactArity(t *testing.T) {
	t.Parallel()

	record := "1.0,2.5,3.2,4.1,5.6,6.3,7.8,8.2,9.1,10.5,11.2,12.8,13.4,14.6,15.3,16.1"
	want := []float32{1.0, 2.5, 3.2, 4.1, 5.6, 6.3, 7.8, 8.2, 9.1, 10.5, 11.2, 12.8, 13.4, 14.6, 15.3, 16.1}

	v, err := DefaultParser().Parse(record)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(v) != DefaultFields {
		t.Fatalf("length: got %d want %d", len(v), DefaultFields)
	}
	for i := range want {
		if v[i] != want[i] {
			t.Fatalf("field %d: got %v want %v", i, v[i], want[i])
		}
	}
}

func TestParseTrimsWhitespace(t *testing.T) {
	t.Parallel()

	record := "  " + strings.Join(fields(16), " , ") + " \r\n"
	v, err := DefaultParser().Parse(record)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v[0] != 1 || v[3] != 1.3 {
		t.Fatalf("unexpected values: %v", v)
	}
}

func TestParseWrongArity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		record string
		got    int
	}{
		{"fifteen", strings.Join(fields(15), ","), 15},
		{"seventeen", strings.Join(fields(17), ","), 17},
		{"trailing separator", strings.Join(fields(16), ",") + ",", 17},
		{"empty", "", 1},
	}
	for _, tc := range tests {
		_, err := DefaultParser().Parse(tc.record)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("%s: expected *ParseError, got %v", tc.name, err)
			continue
		}
		if pe.Got != tc.got || pe.Want != DefaultFields {
			t.Errorf("%s: got %+v", tc.name, pe)
		}
		if !errors.Is(err, ErrFieldCount) {
			t.Errorf("%s: expected ErrFieldCount in chain", tc.name)
		}
	}
}

func TestArityCheckedBeforeConversion(t *testing.T) {
	t.Parallel()

	// Even with strict mode the arity error wins over a bad field.
	p := DefaultParser()
	p.Strict = true
	_, err := p.Parse("abc,1,2")
	if !errors.Is(err, ErrFieldCount) {
		t.Fatalf("expected ErrFieldCount, got %v", err)
	}
}

func TestSoftDegradationToZero(t *testing.T) {
	t.Parallel()

	f := fields(16)
	f[1] = "abc"
	f[2] = "3.5xyz"
	f[3] = ""
	v, err := DefaultParser().Parse(strings.Join(f, ","))
	if err != nil {
		t.Fatalf("lenient parse should not fail: %v", err)
	}
	if v[1] != 0 {
		t.Fatalf("non-numeric field: got %v want 0", v[1])
	}
	if v[2] != 3.5 {
		t.Fatalf("numeric prefix: got %v want 3.5", v[2])
	}
	if v[3] != 0 {
		t.Fatalf("empty field: got %v want 0", v[3])
	}
}

func TestOnDegradedReportsFields(t *testing.T) {
	t.Parallel()

	f := fields(16)
	f[4] = "7kg"
	f[9] = "n/a"
	var got []int
	p := DefaultParser()
	p.OnDegraded = func(i int, text string, value float32) {
		got = append(got, i)
		if i == 4 && (text != "7kg" || value != 7) {
			t.Errorf("field 4: text %q value %v", text, value)
		}
	}
	if _, err := p.Parse(strings.Join(f, ",")); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 || got[0] != 4 || got[1] != 9 {
		t.Fatalf("degraded fields: %v", got)
	}
}

func TestStrictModeRejectsBadField(t *testing.T) {
	t.Parallel()

	f := fields(16)
	f[5] = "1.2.3"
	p := DefaultParser()
	p.Strict = true
	_, err := p.Parse(strings.Join(f, ","))
	var fe *FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FieldError, got %v", err)
	}
	if fe.Index != 5 || fe.Text != "1.2.3" {
		t.Fatalf("unexpected field error: %+v", fe)
	}
	if !errors.Is(err, ErrInvalidField) {
		t.Fatal("expected ErrInvalidField in chain")
	}
}

func TestCustomSeparatorAndWidth(t *testing.T) {
	t.Parallel()

	p := Parser{Fields: 3, Separator: ';'}
	v, err := p.Parse("1;-2e1;+.5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v[0] != 1 || v[1] != -20 || v[2] != 0.5 {
		t.Fatalf("unexpected values: %v", v)
	}
}

func TestNumericPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
	}{
		{"12", 2},
		{"-1.5abc", 4},
		{"1e5x", 3},
		{"1e", 1},
		{"1e+", 1},
		{".5", 2},
		{"5.", 2},
		{".", 0},
		{"-", 0},
		{"abc", 0},
		{"", 0},
	}
	for _, tc := range tests {
		if got := numericPrefix(tc.in); got != tc.want {
			t.Errorf("numericPrefix(%q): got %d want %d", tc.in, got, tc.want)
		}
	}
}

func TestFormatParsesBack(t *testing.T) {
	t.Parallel()

	v := Vector{1, -2.5, 0.125}
	s := v.Format(',', 3)
	if s != "1.000,-2.500,0.125" {
		t.Fatalf("format: got %q", s)
	}
	back, err := Parser{Fields: 3}.Parse(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for i := range v {
		if back[i] != v[i] {
			t.Fatalf("field %d: got %v want %v", i, back[i], v[i])
		}
	}
}
