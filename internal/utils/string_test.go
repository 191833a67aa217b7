package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmailSubject(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		expected string
	}{
		{"plain subject untouched", "Quarterly report", "Quarterly report"},
		{"single reply prefix", "Re: Quarterly report", "Quarterly report"},
		{"forward prefix", "Fwd: Quarterly report", "Quarterly report"},
		{"short forward prefix", "Fw: Quarterly report", "Quarterly report"},
		{"stacked prefixes", "Re: Fwd: Re: Quarterly report", "Quarterly report"},
		{"counted reply prefix", "Re[4]: Quarterly report", "Quarterly report"},
		{"case insensitive", "RE: quarterly report", "quarterly report"},
		{"surrounding whitespace", "  Re:  Quarterly report  ", "Quarterly report"},
		{"empty subject", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeEmailSubject(tt.subject))
		})
	}
}

func TestExtractAddress(t *testing.T) {
	assert.Equal(t, "jane@example.com", ExtractAddress("Jane Doe <jane@example.com>"))
	assert.Equal(t, "jane@example.com", ExtractAddress("<jane@example.com>"))
	assert.Equal(t, "jane@example.com", ExtractAddress("jane@example.com"))
	assert.Equal(t, "jane@example.com", ExtractAddress("  jane@example.com  "))
}

func TestExtractDisplayName(t *testing.T) {
	assert.Equal(t, "Jane Doe", ExtractDisplayName("Jane Doe <jane@example.com>"))
	assert.Equal(t, `"Doe, Jane"`, ExtractDisplayName(`"Doe, Jane" <jane@example.com>`))
	assert.Equal(t, "jane@example.com", ExtractDisplayName("jane@example.com"))
}
