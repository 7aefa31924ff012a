package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatEUR(t *testing.T) {
	cases := map[string]string{
		"235000":    "€235,000",
		"420000.00": "€420,000",
		"99500.5":   "€99,500.50",
		"1250000":   "€1,250,000",
		"0.999":     "€1",
		"-15.25":    "-€15.25",
	}
	for in, want := range cases {
		if got := FormatEUR(decimal.RequireFromString(in)); got != want {
			t.Fatalf("FormatEUR(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatRange(t *testing.T) {
	lo, hi := decimal.NewFromInt(235000), decimal.NewFromInt(420000)
	if got := FormatRange(&lo, &hi); got != "€235,000 - €420,000" {
		t.Fatalf("unexpected range %q", got)
	}
	if got := FormatRange(nil, nil); got != "N/A" {
		t.Fatalf("expected N/A, got %q", got)
	}
}
