package currency

import (
	"testing"

	"fintrack/internal/core"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name  string
		cents int64
		code  string
		want  string
	}{
		{"dollars", 123450, "USD", "$1,234.50"},
		{"lower case code", 500, "eur", "€5.00"},
		{"negative", -4000, "USD", "-$40.00"},
		{"zero", 0, "GBP", "£0.00"},
		{"zero decimal currency", 1234500, "JPY", "¥12,345"},
		{"empty code uses default", 100, "", "$1.00"},
		{"unknown code uses default", 100, "ZZZ", "$1.00"},
		{"code without symbol", 250, "SEK", "SEK 2.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Format(core.Money{Cents: tt.cents}, tt.code)
			if got != tt.want {
				t.Errorf("Format(%d, %q) = %q, want %q", tt.cents, tt.code, got, tt.want)
			}
		})
	}
}

func TestSymbol(t *testing.T) {
	if got := Symbol("php"); got != "₱" {
		t.Errorf("Symbol(php) = %q", got)
	}
	if got := Symbol("CHF"); got != "CHF " {
		t.Errorf("Symbol(CHF) = %q", got)
	}
}
