package util

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 5, "hello..."},
		{"", 3, ""},
		{"żółć!", 4, "żółć..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestTruncateExact(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "hello"},
		{"żółć!", 4, "żółć"},
	}
	for _, tt := range tests {
		if got := TruncateExact(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateExact(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
