package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateNationalId(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"529.982.247-25", true},
		{"52998224725", true},
		{"111.444.777-35", true},
		{"529.982.247-26", false},
		{"111.111.111-11", false},
		{"000.000.000-00", false},
		{"1234567890", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidateNationalId(tt.id); got != tt.want {
			t.Errorf("ValidateNationalId(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestOnlyDigits(t *testing.T) {
	if got := OnlyDigits(" 529.982-247/25x"); got != "52998224725" {
		t.Fatalf("OnlyDigits = %q", got)
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	got, err := ValidatePhoneNumber("(650) 253-0000", "US")
	if err != nil {
		t.Fatalf("ValidatePhoneNumber: %v", err)
	}
	if got != "+16502530000" {
		t.Fatalf("formatted = %q", got)
	}
	if _, err := ValidatePhoneNumber("123", "US"); err == nil {
		t.Fatal("short number should be rejected")
	}
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"12.50", "12.5", false},
		{"12,5", "12.5", false},
		{" -3 ", "-3", false},
		{"1,234.5", "", true},
		{"", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDecimal(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDecimal(%q) should fail", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDecimal(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ParseDecimal(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]string{"A", "B", "A", "C", "B"})
	if len(got) != 3 || got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Fatalf("UniqueSlice = %v", got)
	}
}
