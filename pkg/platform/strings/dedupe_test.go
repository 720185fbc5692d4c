package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeList(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{name: "nil stays nil", input: nil, want: nil},
		{name: "empty stays empty", input: []string{}, want: []string{}},
		{name: "lowercases and trims", input: []string{"  Kidney ", "LIVER"}, want: []string{"kidney", "liver"}},
		{name: "collapses inner whitespace", input: []string{"bone \t  marrow"}, want: []string{"bone marrow"}},
		{name: "case-insensitive repeats keep first position", input: []string{"lung", "Heart", "LUNG", "heart "}, want: []string{"lung", "heart"}},
		{name: "drops blanks", input: []string{"", "   ", "\n"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeList(tt.input))
		})
	}
}
