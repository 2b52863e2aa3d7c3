package money

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFromFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want Amount
	}{
		{10.0, 1000},
		{-50.0, -5000},
		{10.806, 1081},
		{-0.125, -13},
		{0.1 + 0.2, 30},
	}

	for _, tt := range tests {
		if got := FromFloat(tt.in); got != tt.want {
			t.Errorf("FromFloat(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseAndString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"-50", "-50.00"},
		{"10.8", "10.80"},
		{"1234.567", "1234.57"},
		{"0", "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			a, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.in, err)
			}
			if got := a.String(); got != tt.want {
				t.Errorf("Parse(%q).String() = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if _, err := Parse("twelve"); err == nil {
		t.Error("expected error for non-numeric input")
	}
}

func TestWithinTolerance(t *testing.T) {
	fraction := decimal.RequireFromString("0.15")

	tests := []struct {
		name string
		a    Amount
		base Amount
		want bool
	}{
		{"eight percent up", 1080, 1000, true},
		{"exactly fifteen percent", 1150, 1000, true},
		{"just over", 1151, 1000, false},
		{"negative base drifts", -5400, -5000, true},
		{"negative base too far", -6000, -5000, false},
		{"zero base only matches zero", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WithinTolerance(tt.a, tt.base, fraction); got != tt.want {
				t.Errorf("WithinTolerance(%v, %v) = %v, want %v", tt.a, tt.base, got, tt.want)
			}
		})
	}
}

func TestRat(t *testing.T) {
	if got := MustParse("-10.80").Rat().FloatString(2); got != "-10.80" {
		t.Errorf("Rat() = %s, want -10.80", got)
	}
	if got := FromRat(big.NewRat(-1081, 200)); got != MustParse("-5.41") {
		t.Errorf("FromRat(-5.405) = %s, want -5.41", got)
	}
	if got := FromRat(nil); got != Zero {
		t.Errorf("FromRat(nil) = %s, want 0.00", got)
	}
}
