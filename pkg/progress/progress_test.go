package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/floodqc/runqc/pkg/status"
)

func TestBar_NonTerminalIsSilent(t *testing.T) {
	var buf bytes.Buffer

	b := newBar("S1", &buf, false)
	b.Start(3)
	b.Done("r1", status.Success)
	b.Done("r2", status.Unknown)
	b.Done("r3", status.Running)
	b.Finish()

	assert.Empty(t, buf.String())
	assert.Equal(t, int64(1), b.failed.Load())
}

func TestBar_DoneBeforeStart(t *testing.T) {
	b := newBar("S1", &bytes.Buffer{}, false)

	assert.NotPanics(t, func() {
		b.Done("r1", status.Success)
		b.Finish()
	})
}
