package summary

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/floodqc/runqc/pkg/fsutil"
)

// WriteTo writes the header followed by one row per record.
func WriteTo(w io.Writer, records []*Record) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, r := range records {
		if err := cw.Write(r.Row()); err != nil {
			return fmt.Errorf("writing row %s: %w", r.Directory, err)
		}
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing summary: %w", err)
	}

	return nil
}

// Write replaces the summary at path.
func Write(path string, records []*Record, owner *fsutil.Owner) error {
	if err := fsutil.WriteAtomic(path, 0o644, owner, func(w io.Writer) error {
		return WriteTo(w, records)
	}); err != nil {
		return fmt.Errorf("writing summary %s: %w", path, err)
	}

	return nil
}

// WriteTable replaces the file at path with t.
func WriteTable(path string, t *Table, owner *fsutil.Owner) error {
	if err := fsutil.WriteAtomic(path, 0o644, owner, t.Encode); err != nil {
		return fmt.Errorf("writing table %s: %w", path, err)
	}

	return nil
}
