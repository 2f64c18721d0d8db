package resultfile

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/hdf5"

	"github.com/floodqc/runqc/pkg/metrics"
)

// writeDataset creates every missing group along p and writes a float64
// dataset with the given shape.
func writeDataset(t *testing.T, f *hdf5.File, p string, dims []uint, data []float64) {
	t.Helper()

	parts := strings.Split(strings.Trim(p, "/"), "/")
	cur := ""

	for _, part := range parts[:len(parts)-1] {
		cur += "/" + part

		g, err := f.OpenGroup(cur)
		if err != nil {
			g, err = f.CreateGroup(cur)
			require.NoError(t, err)
		}

		require.NoError(t, g.Close())
	}

	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	require.NoError(t, err)

	defer func() { _ = space.Close() }()

	ds, err := f.CreateDataset(p, hdf5.T_NATIVE_DOUBLE, space)
	require.NoError(t, err)

	defer func() { _ = ds.Close() }()

	require.NoError(t, ds.Write(&data))
}

func buildPlanFile(t *testing.T) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "plan.p01.hdf")

	f, err := hdf5.CreateFile(p, hdf5.F_ACC_TRUNC)
	require.NoError(t, err)

	writeDataset(t, f, TimeSeriesPath+"/PERIMTER1/Water Surface", []uint{2, 3},
		[]float64{1, 2, 3, 4, 5, 6})
	writeDataset(t, f, GeometryPath+"/PERIMTER1/Cells Center Coordinate", []uint{3, 2},
		[]float64{0, 0, 1, 1, 2, 2})
	writeDataset(t, f, GeometryPath+"/PERIMTER1/Perimeter", []uint{4, 2},
		[]float64{0, 0, 10, 0, 10, 10, 0, 10})
	writeDataset(t, f, "/"+metrics.StageHydrographsPath+"/Outlet", []uint{2, 2},
		[]float64{0, 1.5, 1, 2.5})

	require.NoError(t, f.Close())

	return p
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.hdf"))
	require.ErrorIs(t, err, metrics.ErrFieldUnavailable)
}

func TestFile(t *testing.T) {
	rf, err := Open(buildPlanFile(t))
	require.NoError(t, err)

	defer func() { _ = rf.Close() }()

	domains, err := rf.Domains()
	require.NoError(t, err)
	assert.Equal(t, []string{"PERIMTER1"}, domains)

	fields, err := rf.ResultFields("PERIMTER1")
	require.NoError(t, err)
	assert.Equal(t, []string{metrics.FieldWaterSurface}, fields)

	wse, err := rf.ResultField("PERIMTER1", metrics.FieldWaterSurface)
	require.NoError(t, err)
	assert.Equal(t, 2, wse.Rows)
	assert.Equal(t, 3, wse.Cols)
	assert.InDelta(t, 6.0, wse.At(1, 2), 1e-9)

	_, err = rf.ResultField("PERIMTER1", metrics.FieldVolume)
	require.ErrorIs(t, err, metrics.ErrFieldUnavailable)

	centers, err := rf.CellCenters("PERIMTER1")
	require.NoError(t, err)
	assert.Len(t, centers, 3)

	ring, err := rf.Perimeter("PERIMTER1")
	require.NoError(t, err)
	assert.Len(t, ring, 4)

	names, err := rf.BoundaryConditions()
	require.NoError(t, err)
	assert.Equal(t, []string{"Outlet"}, names)

	res := metrics.Extract(rf, metrics.Options{})
	assert.Equal(t, "6", metrics.Format(res.MaxWSE))
	assert.Equal(t, "3", metrics.Format(res.MaxDepth))
	assert.Equal(t, "1.25", metrics.Format(res.MeanBC))
}
