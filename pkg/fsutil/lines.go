package fsutil

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// MaxLineSize is the number of bytes of a line handed to ReadLines callers.
// Longer lines are truncated, the remainder is skipped.
const MaxLineSize = 1024 * 1024

// ReadLines calls fn for every line of r with the line terminator removed.
// Lines of any length are accepted; only the first maxLen bytes of each are
// kept. A non-positive maxLen uses MaxLineSize.
func ReadLines(r io.Reader, maxLen int, fn func(line string)) error {
	if maxLen <= 0 {
		maxLen = MaxLineSize
	}

	br := bufio.NewReaderSize(r, 64*1024)

	var sb strings.Builder

	for {
		chunk, isPrefix, err := br.ReadLine()
		if len(chunk) > 0 && sb.Len() < maxLen {
			sb.Write(chunk[:min(len(chunk), maxLen-sb.Len())])
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				if sb.Len() > 0 {
					fn(sb.String())
				}

				return nil
			}

			return err
		}

		if isPrefix {
			continue
		}

		fn(sb.String())
		sb.Reset()
	}
}
