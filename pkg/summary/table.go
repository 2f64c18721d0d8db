package summary

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/floodqc/runqc/pkg/fsutil"
	"github.com/floodqc/runqc/pkg/metrics"
	"github.com/floodqc/runqc/pkg/status"
)

// ErrNoDirectoryColumn is returned when a table lacks the Directory column.
var ErrNoDirectoryColumn = errors.New("table has no " + ColumnDirectory + " column")

// Table is a summary-shaped CSV held as strings.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Read loads the CSV at path.
func Read(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	t, err := ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return t, nil
}

// ReadFrom parses a CSV with a header line.
func ReadFrom(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("missing header: %w", err)
		}

		return nil, fmt.Errorf("reading header: %w", err)
	}

	t := &Table{Columns: header}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}

		t.Rows = append(t.Rows, t.normalize(row))
	}

	return t, nil
}

// normalize pads or truncates a row to the table width.
func (t *Table) normalize(row []string) []string {
	if len(row) == len(t.Columns) {
		return row
	}

	out := make([]string, len(t.Columns))
	copy(out, row)

	return out
}

// Index returns the position of column, or -1.
func (t *Table) Index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}

	return -1
}

// Directories returns the set of run ids in the table.
func (t *Table) Directories() (map[string]struct{}, error) {
	idx := t.Index(ColumnDirectory)
	if idx < 0 {
		return nil, ErrNoDirectoryColumn
	}

	ids := make(map[string]struct{}, len(t.Rows))
	for _, row := range t.Rows {
		ids[row[idx]] = struct{}{}
	}

	return ids, nil
}

// Encode writes the table as CSV.
func (t *Table) Encode(w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("writing rows: %w", err)
	}

	return nil
}

// Merge appends to full every row of basic whose Directory is not in full.
// Appended rows are reindexed to full's columns; columns basic lacks are
// left empty and columns full lacks are dropped. The number of appended
// rows is returned; with nothing to append full is returned unchanged.
func Merge(basic, full *Table) (*Table, int, error) {
	known, err := full.Directories()
	if err != nil {
		return nil, 0, fmt.Errorf("full summary: %w", err)
	}

	basicDir := basic.Index(ColumnDirectory)
	if basicDir < 0 {
		return nil, 0, fmt.Errorf("basic summary: %w", ErrNoDirectoryColumn)
	}

	mapping := make([]int, len(full.Columns))
	for i, c := range full.Columns {
		mapping[i] = basic.Index(c)
	}

	var added [][]string

	for _, row := range basic.Rows {
		if _, ok := known[row[basicDir]]; ok {
			continue
		}

		out := make([]string, len(full.Columns))
		for i, src := range mapping {
			if src >= 0 {
				out[i] = row[src]
			}
		}

		added = append(added, out)
	}

	if len(added) == 0 {
		return full, 0, nil
	}

	merged := &Table{
		Columns: full.Columns,
		Rows:    make([][]string, 0, len(full.Rows)+len(added)),
	}
	merged.Rows = append(merged.Rows, full.Rows...)
	merged.Rows = append(merged.Rows, added...)

	return merged, len(added), nil
}

// MergeFiles merges the summaries at basicPath and fullPath into outPath.
func MergeFiles(basicPath, fullPath, outPath string, owner *fsutil.Owner) (int, error) {
	basic, err := Read(basicPath)
	if err != nil {
		return 0, err
	}

	full, err := Read(fullPath)
	if err != nil {
		return 0, err
	}

	merged, added, err := Merge(basic, full)
	if err != nil {
		return 0, err
	}

	if err := WriteTable(outPath, merged, owner); err != nil {
		return 0, err
	}

	return added, nil
}

// Records converts the table back into records sorted by Directory.
// Missing columns read as empty; unparseable numbers as zero or N/A.
func (t *Table) Records() ([]*Record, error) {
	if t.Index(ColumnDirectory) < 0 {
		return nil, ErrNoDirectoryColumn
	}

	idx := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		idx[c] = i
	}

	records := make([]*Record, 0, len(t.Rows))

	for _, row := range t.Rows {
		get := func(column string) string {
			if i, ok := idx[column]; ok {
				return row[i]
			}

			return ""
		}

		sus, _ := strconv.Atoi(get(ColumnSUs))

		r := &Record{
			Directory:     get(ColumnDirectory),
			Status:        status.Parse(get(ColumnStatus)),
			Duration:      get(ColumnDuration),
			SUs:           sus,
			FailureReason: get(ColumnFailureReason),
			VolErrorAF:    get(ColumnVolErrorAF),
			VolErrorPct:   get(ColumnVolErrorPct),
			MaxWSELErr:    get(ColumnMaxWSELErr),
			StartTime:     get(ColumnStartTime),
			EndTime:       get(ColumnEndTime),
			FailureInfo:   get(ColumnFailureInfo),
		}

		for _, c := range metrics.Columns {
			r.Metrics.Set(c, metrics.ParseValue(get(c)))
		}

		records = append(records, r)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Directory < records[j].Directory
	})

	return records, nil
}

// ReadRecords loads the summary at path as records.
func ReadRecords(path string) ([]*Record, error) {
	t, err := Read(path)
	if err != nil {
		return nil, err
	}

	return t.Records()
}
