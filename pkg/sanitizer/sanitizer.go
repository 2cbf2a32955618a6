package sanitizer

import "strings"

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

func lower(s string) string {
	return strings.ToLower(s)
}

// TrimAndNormalize trims the string and collapses every whitespace run to one space.
func TrimAndNormalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SanitizeKind prepares an enum-like value such as a resource kind: " Vehicles " becomes "vehicles".
func SanitizeKind(input string) string {
	p := Pipeline{
		strings.TrimSpace,
		lower,
	}
	return p.Apply(input)
}

// SanitizeLabel trims a free-form label and joins inner whitespace runs with
// a dash: " daily  assignment " becomes "daily-assignment".
func SanitizeLabel(input string) string {
	p := Pipeline{
		TrimAndNormalize,
		func(s string) string { return strings.ReplaceAll(s, " ", "-") },
	}
	return p.Apply(input)
}

func SanitizeDate(input string) string {
	return strings.TrimSpace(input)
}
