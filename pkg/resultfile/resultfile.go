// Package resultfile reads simulation plan result files stored as HDF5.
package resultfile

import (
	"fmt"
	"os"
	"path"

	"github.com/paulmach/orb"
	"gonum.org/v1/hdf5"

	"github.com/floodqc/runqc/pkg/metrics"
)

// Well-known group paths inside a plan result file.
const (
	TimeSeriesPath         = "/Results/Unsteady/Output/Output Blocks/Base Output/Unsteady Time Series/2D Flow Areas"
	GeometryPath           = "/Geometry/2D Flow Areas"
	cellCentersName        = "Cells Center Coordinate"
	perimeterName          = "Perimeter"
	stageHydrographsParent = "/" + metrics.StageHydrographsPath
)

type file struct {
	h5 *hdf5.File
}

// Ensure interface compliance.
var _ metrics.ResultFile = (*file)(nil)

// Open opens the result file at p read-only. A missing file is reported as
// metrics.ErrFieldUnavailable so callers can treat it like any other
// absent output.
func Open(p string) (metrics.ResultFile, error) {
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("opening result file: %w", metrics.ErrFieldUnavailable)
		}

		return nil, fmt.Errorf("checking result file: %w", err)
	}

	h5, err := hdf5.OpenFile(p, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("opening result file: %w", err)
	}

	return &file{h5: h5}, nil
}

func (f *file) Close() error {
	return f.h5.Close()
}

func (f *file) Domains() ([]string, error) {
	return f.children(TimeSeriesPath)
}

func (f *file) ResultFields(domain string) ([]string, error) {
	return f.children(path.Join(TimeSeriesPath, domain))
}

func (f *file) ResultField(domain, name string) (*metrics.Matrix, error) {
	return f.readMatrix(path.Join(TimeSeriesPath, domain, name))
}

func (f *file) CellCenters(domain string) ([]orb.Point, error) {
	m, err := f.readMatrix(path.Join(GeometryPath, domain, cellCentersName))
	if err != nil {
		return nil, err
	}

	return toPoints(m)
}

func (f *file) Perimeter(domain string) (orb.Ring, error) {
	m, err := f.readMatrix(path.Join(GeometryPath, domain, perimeterName))
	if err != nil {
		return nil, err
	}

	points, err := toPoints(m)
	if err != nil {
		return nil, err
	}

	return orb.Ring(points), nil
}

func (f *file) EventField(p string) (*metrics.Matrix, error) {
	return f.readMatrix("/" + p)
}

func (f *file) BoundaryConditions() ([]string, error) {
	names, err := f.children(stageHydrographsParent)
	if err != nil {
		return nil, err
	}

	return names, nil
}

// children lists the member names of the group at p.
func (f *file) children(p string) ([]string, error) {
	g, err := f.h5.OpenGroup(p)
	if err != nil {
		return nil, fmt.Errorf("opening group %q: %w", p, metrics.ErrFieldUnavailable)
	}
	defer func() { _ = g.Close() }()

	n, err := g.NumObjects()
	if err != nil {
		return nil, fmt.Errorf("counting members of %q: %w", p, err)
	}

	names := make([]string, 0, n)

	for i := uint(0); i < n; i++ {
		name, err := g.ObjectNameByIndex(i)
		if err != nil {
			return nil, fmt.Errorf("reading member %d of %q: %w", i, p, err)
		}

		names = append(names, name)
	}

	return names, nil
}

// readMatrix reads a one or two dimensional dataset as float64.
func (f *file) readMatrix(p string) (*metrics.Matrix, error) {
	ds, err := f.h5.OpenDataset(p)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %q: %w", p, metrics.ErrFieldUnavailable)
	}
	defer func() { _ = ds.Close() }()

	space := ds.Space()
	defer func() { _ = space.Close() }()

	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, fmt.Errorf("reading shape of %q: %w", p, err)
	}

	rows, cols := 1, 1

	switch len(dims) {
	case 0:
	case 1:
		cols = int(dims[0])
	case 2:
		rows, cols = int(dims[0]), int(dims[1])
	default:
		return nil, fmt.Errorf("dataset %q has %d dimensions", p, len(dims))
	}

	data := make([]float64, rows*cols)
	if len(data) > 0 {
		if err := ds.Read(&data); err != nil {
			return nil, fmt.Errorf("reading dataset %q: %w", p, err)
		}
	}

	return metrics.NewMatrix(rows, cols, data)
}

func toPoints(m *metrics.Matrix) ([]orb.Point, error) {
	if m.Cols < 2 {
		return nil, fmt.Errorf("expected x/y pairs, got %d columns", m.Cols)
	}

	points := make([]orb.Point, m.Rows)
	for r := range points {
		points[r] = orb.Point{m.At(r, 0), m.At(r, 1)}
	}

	return points, nil
}
