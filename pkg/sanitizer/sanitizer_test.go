package sanitizer

import "testing"

func TestTrimAndNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"trim spaces", "  daily assignment  ", "daily assignment"},
		{"multiple spaces", "daily    assignment", "daily assignment"},
		{"tabs and newlines", "daily\t\nassignment", "daily assignment"},
		{"empty", "", ""},
		{"only whitespace", "   \t\n  ", ""},
		{"unicode preserved", " Tour München ", "Tour München"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrimAndNormalize(tt.input); got != tt.want {
				t.Errorf("TrimAndNormalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeKind(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"vehicles", "vehicles"},
		{" Vehicles ", "vehicles"},
		{"EMPLOYEES", "employees"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizeKind(tt.input); got != tt.want {
			t.Errorf("SanitizeKind(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"daily-assignment", "daily-assignment"},
		{" daily  assignment ", "daily-assignment"},
		{"Tour\tEdit", "Tour-Edit"},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := SanitizeLabel(tt.input); got != tt.want {
			t.Errorf("SanitizeLabel(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSanitizersAreIdempotent(t *testing.T) {
	inputs := []string{" Daily   Assignment ", "\tVEHICLES\n", "2025-03-01 "}
	for _, fn := range []Strategy{SanitizeKind, SanitizeLabel, SanitizeDate, TrimAndNormalize} {
		for _, in := range inputs {
			once := fn(in)
			if twice := fn(once); twice != once {
				t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
			}
		}
	}
}
