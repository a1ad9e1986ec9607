package custody

import (
	"errors"
	"math/big"
	"testing"
)

func TestParseUnitsExact(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     string
	}{
		{"1.5", 6, "1500000"},
		{"0.000001", 6, "1"},
		{"5", 18, "5000000000000000000"},
		{"5.001", 18, "5001000000000000000"},
		{"0.1", 18, "100000000000000000"},
		{"10.0005", 18, "10000500000000000000"},
		{".5", 6, "500000"},
		{"0", 6, "0"},
		{" 2.25 ", 2, "225"},
	}

	for _, tt := range tests {
		got, err := ParseUnits(tt.in, tt.decimals)
		if err != nil {
			t.Errorf("ParseUnits(%q, %d): %v", tt.in, tt.decimals, err)
			continue
		}
		want, _ := new(big.Int).SetString(tt.want, 10)
		if got.Cmp(want) != 0 {
			t.Errorf("ParseUnits(%q, %d) = %s, want %s", tt.in, tt.decimals, got, tt.want)
		}
	}
}

func TestParseUnitsRejects(t *testing.T) {
	for _, in := range []string{
		"", ".", "abc", "1.2.3", "-1", "1e5", "1,5",
		"0.0000001", // 7 places into a 6-decimal token
		"5 MNT",     // unit suffix must be stripped upstream
	} {
		if _, err := ParseUnits(in, 6); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ParseUnits(%q): err = %v, want ErrInvalidAmount", in, err)
		}
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     string
	}{
		{"1500000", 6, "1.5"},
		{"1", 6, "0.000001"},
		{"5000000000000000000", 18, "5"},
		{"10000500000000000000", 18, "10.0005"},
		{"0", 6, "0"},
	}

	for _, tt := range tests {
		v, _ := new(big.Int).SetString(tt.in, 10)
		if got := FormatUnits(v, tt.decimals); got != tt.want {
			t.Errorf("FormatUnits(%s, %d) = %q, want %q", tt.in, tt.decimals, got, tt.want)
		}
	}

	if got := FormatUnits(nil, 6); got != "0" {
		t.Errorf("FormatUnits(nil) = %q", got)
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"1.5", "0.000001", "123456.789", "42"} {
		v, err := ParseUnits(s, 6)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if got := FormatUnits(v, 6); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}
