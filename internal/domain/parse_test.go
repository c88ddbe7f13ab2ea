package domain

import (
	"errors"
	"testing"
)

func TestParseDays(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr error
	}{
		{"30", 30, nil},
		{" 7 ", 7, nil},
		{"3650", 3650, nil},
		{"", 0, ErrEmptyArgument},
		{"0", 0, ErrInvalidDays},
		{"-5", 0, ErrInvalidDays},
		{"+5", 0, ErrInvalidDays},
		{"1.5", 0, ErrInvalidDays},
		{"abc", 0, ErrInvalidDays},
		{"3651", 0, ErrTooManyDays},
		{"99999999999999999999", 0, ErrInvalidDays},
	}
	for _, c := range cases {
		got, err := ParseDays(c.in)
		if c.wantErr != nil {
			if !errors.Is(err, c.wantErr) {
				t.Fatalf("ParseDays(%q): want %v, got %v", c.in, c.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDays(%q): unexpected error %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseDays(%q): want %d, got %d", c.in, c.want, got)
		}
	}
}

func TestParseUserID(t *testing.T) {
	if id, err := ParseUserID("123456789"); err != nil || id != 123456789 {
		t.Fatalf("want 123456789, got %d (%v)", id, err)
	}
	for _, in := range []string{"", "abc", "-100123", "0", "12x"} {
		if _, err := ParseUserID(in); err == nil {
			t.Fatalf("ParseUserID(%q): expected error", in)
		}
	}
}

func TestNormalizeToken(t *testing.T) {
	cases := map[string]string{
		"ABCDEF123456":     "ABCDEF123456",
		"  abcdef123456\n": "ABCDEF123456",
		"`ABCDEF123456`":   "ABCDEF123456",
		"":                 "",
	}
	for in, want := range cases {
		if got := NormalizeToken(in); got != want {
			t.Fatalf("NormalizeToken(%q): want %q, got %q", in, want, got)
		}
	}
}

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		tok, err := GenerateToken()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(tok) != TokenLength {
			t.Fatalf("want length %d, got %q", TokenLength, tok)
		}
		if NormalizeToken(tok) != tok {
			t.Fatalf("token %q is not in normalized form", tok)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = struct{}{}
	}
}
