package fsutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLines(t *testing.T) {
	long := strings.Repeat("x", 200*1024)

	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected []string
	}{
		{name: "empty", input: "", expected: nil},
		{name: "no trailing newline", input: "a\nb", expected: []string{"a", "b"}},
		{name: "crlf", input: "a\r\nb\r\n", expected: []string{"a", "b"}},
		{name: "blank lines kept", input: "a\n\nb\n", expected: []string{"a", "", "b"}},
		{
			name:     "long line truncated",
			input:    "first\n" + long + "\nlast\n",
			maxLen:   1000,
			expected: []string{"first", long[:1000], "last"},
		},
		{
			name:     "long line within limit",
			input:    long + "\nlast",
			expected: []string{long, "last"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string

			err := ReadLines(strings.NewReader(tt.input), tt.maxLen, func(line string) {
				got = append(got, line)
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
