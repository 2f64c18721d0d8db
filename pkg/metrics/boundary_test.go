package metrics

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestInnerCells(t *testing.T) {
	square := orb.Ring{{0, 0}, {100, 0}, {100, 100}, {0, 100}}

	centers := []orb.Point{
		{50, 50},
		{5, 50},
		{150, 50},
		{30, 30},
		{75, 90},
	}

	tests := []struct {
		name     string
		buffer   float64
		ring     orb.Ring
		expected []int
	}{
		{name: "no buffer", buffer: 0, ring: square, expected: []int{0, 1, 3, 4}},
		{name: "buffer 20", buffer: 20, ring: square, expected: []int{0, 3}},
		{name: "buffer swallows polygon", buffer: 60, ring: square, expected: []int{}},
		{name: "degenerate ring", buffer: 0, ring: orb.Ring{{0, 0}, {1, 1}}, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, InnerCells(centers, tt.ring, tt.buffer))
		})
	}
}

func TestCloseRing(t *testing.T) {
	open := orb.Ring{{0, 0}, {1, 0}, {1, 1}}
	closed := closeRing(open)

	assert.Len(t, closed, 4)
	assert.Equal(t, closed[0], closed[3])
	assert.Len(t, open, 3)
}
