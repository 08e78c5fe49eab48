package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "lowercases and trims",
			input: "  Fuel For Generator  ",
			want:  "fuel for generator",
		},
		{
			name:  "strips punctuation",
			input: "Fuel, for generator!!",
			want:  "fuel for generator",
		},
		{
			name:  "collapses internal whitespace",
			input: "fuel   for\tgenerator",
			want:  "fuel for generator",
		},
		{
			name:  "keeps digits",
			input: "10L diesel",
			want:  "10l diesel",
		},
		{
			name:  "empty input",
			input: "   ",
			want:  "",
		},
		{
			name:  "punctuation only",
			input: "--- !!! ---",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDescription(tt.input))
		})
	}
}

func TestSignatureStableAcrossFormatting(t *testing.T) {
	// Different surface forms of the same description share one signature.
	base := Signature("fuel for generator")
	assert.Equal(t, base, Signature("  Fuel for GENERATOR "))
	assert.Equal(t, base, Signature("fuel, for generator!"))
	assert.NotEqual(t, base, Signature("fuel for vehicle"))
	assert.Len(t, base, 64)
}
