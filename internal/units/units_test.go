package units

import (
	"math/big"
	"testing"
)

func TestToUnits(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"500", "500000000"},
		{"1000.50", "1000500000"},
		{" 0.000001 ", "1"},
		{"0.0000019", "1"},
		{"499.99", "499990000"},
	}
	for _, tc := range cases {
		got, err := ToUnits(tc.in, USDCDecimals)
		if err != nil {
			t.Fatalf("ToUnits(%q) error: %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("ToUnits(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestToUnitsRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "-1", "1e3", "1.", ".5", "abc", "1,000"} {
		if _, err := ToUnits(in, USDCDecimals); err == nil {
			t.Fatalf("ToUnits(%q) should fail", in)
		}
	}
}

func TestFromUnits(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{1000500000, "1000.5"},
		{2000000, "2"},
		{500000, "0.5"},
		{1, "0.000001"},
		{0, "0"},
	}
	for _, tc := range cases {
		if got := FromUnits(big.NewInt(tc.in), USDCDecimals); got != tc.want {
			t.Fatalf("FromUnits(%d) = %s, want %s", tc.in, got, tc.want)
		}
	}
	if got := FromUnits(nil, USDCDecimals); got != "0" {
		t.Fatalf("FromUnits(nil) = %s", got)
	}
}

func TestRoundTrip(t *testing.T) {
	cases := map[string]string{
		"500":         "500",
		"1000.50":     "1000.5",
		"0.123456":    "0.123456",
		"12.000100":   "12.0001",
		"007":         "7",
		"42.000000":   "42",
		"99999999.99": "99999999.99",
	}
	for in, want := range cases {
		u, err := ToUnits(in, USDCDecimals)
		if err != nil {
			t.Fatalf("ToUnits(%q): %v", in, err)
		}
		if got := FromUnits(u, USDCDecimals); got != want {
			t.Fatalf("round trip %q = %s, want %s", in, got, want)
		}
	}
}
