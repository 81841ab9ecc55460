package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"12.34", 1234, true},
		{"12,34", 1234, true},
		{"12.345", 1234, true},
		{"12.346", 1235, true},
		{"25.50", 2550, true},
		{"100", 10000, true},
		{".50", 50, true},
		{"", 0, false},
		{"-5", 0, false},
		{"+5", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("ParseDecimalToCents(%q) = %d, %v; want %d", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("ParseDecimalToCents(%q) expected error", tc.in)
		}
	}
}

func TestMoneyDecimal(t *testing.T) {
	if got := (Money{Cents: 2550}).Decimal(); got != "25.50" {
		t.Fatalf("got %q", got)
	}
	if got := (Money{Cents: 5}).Decimal(); got != "0.05" {
		t.Fatalf("got %q", got)
	}
	if got := (Money{Cents: 10000}).Decimal(); got != "100.00" {
		t.Fatalf("got %q", got)
	}
}
