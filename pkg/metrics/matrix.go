package metrics

import (
	"fmt"
	"math"
)

// Matrix is a dense row-major table of values. Result fields are stored
// with one row per output timestep and one column per cell.
type Matrix struct {
	Rows int
	Cols int
	Data []float64
}

// NewMatrix wraps data as a rows x cols matrix.
func NewMatrix(rows, cols int, data []float64) (*Matrix, error) {
	if rows < 0 || cols < 0 || rows*cols != len(data) {
		return nil, fmt.Errorf("matrix shape %dx%d does not fit %d values", rows, cols, len(data))
	}

	return &Matrix{Rows: rows, Cols: cols, Data: data}, nil
}

// At returns the value at row r, column c.
func (m *Matrix) At(r, c int) float64 {
	return m.Data[r*m.Cols+c]
}

// Row returns row r without copying.
func (m *Matrix) Row(r int) []float64 {
	return m.Data[r*m.Cols : (r+1)*m.Cols]
}

// ColumnMax returns the NaN-ignoring maximum of each column. Columns made
// only of NaN yield NaN.
func (m *Matrix) ColumnMax() []float64 {
	out := make([]float64, m.Cols)
	for c := range out {
		out[c] = math.NaN()
	}

	for r := 0; r < m.Rows; r++ {
		for c, v := range m.Row(r) {
			if math.IsNaN(v) {
				continue
			}

			if math.IsNaN(out[c]) || v > out[c] {
				out[c] = v
			}
		}
	}

	return out
}

// sameShape reports whether both matrices have identical dimensions.
func (m *Matrix) sameShape(o *Matrix) bool {
	return m.Rows == o.Rows && m.Cols == o.Cols
}

// nanMax returns the largest non-NaN value. ok is false when there is none.
func nanMax(values []float64) (float64, bool) {
	best, ok := 0.0, false

	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}

		if !ok || v > best {
			best, ok = v, true
		}
	}

	return best, ok
}

// nanMean returns the mean of the non-NaN values.
func nanMean(values []float64) (float64, bool) {
	var (
		sum float64
		n   int
	)

	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}

		sum += v
		n++
	}

	if n == 0 {
		return 0, false
	}

	return sum / float64(n), true
}

// magnitude returns sqrt(x²+y²) element-wise.
func magnitude(x, y *Matrix) (*Matrix, error) {
	if !x.sameShape(y) {
		return nil, fmt.Errorf("component shapes differ: %dx%d vs %dx%d", x.Rows, x.Cols, y.Rows, y.Cols)
	}

	out := make([]float64, len(x.Data))
	for i := range out {
		out[i] = math.Hypot(x.Data[i], y.Data[i])
	}

	return &Matrix{Rows: x.Rows, Cols: x.Cols, Data: out}, nil
}
