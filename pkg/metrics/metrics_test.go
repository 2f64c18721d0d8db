package metrics

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var boundaryOptions = Options{
	BoundaryFilter: true,
	BoundaryBuffer: DefaultBoundaryBuffer,
}

// fakeFile is an in-memory ResultFile.
type fakeFile struct {
	domains   []string
	fields    map[string]*Matrix
	events    map[string]*Matrix
	centers   []orb.Point
	perimeter orb.Ring
	bcNames   []string
	failing   map[string]error
	closed    bool
}

func (f *fakeFile) Domains() ([]string, error) {
	return f.domains, nil
}

func (f *fakeFile) ResultFields(string) ([]string, error) {
	names := make([]string, 0, len(f.fields))
	for n := range f.fields {
		names = append(names, n)
	}

	return names, nil
}

func (f *fakeFile) ResultField(_, name string) (*Matrix, error) {
	if err, ok := f.failing[name]; ok {
		return nil, err
	}

	m, ok := f.fields[name]
	if !ok {
		return nil, ErrFieldUnavailable
	}

	return m, nil
}

func (f *fakeFile) CellCenters(string) ([]orb.Point, error) {
	return f.centers, nil
}

func (f *fakeFile) Perimeter(string) (orb.Ring, error) {
	if f.perimeter == nil {
		return nil, ErrFieldUnavailable
	}

	return f.perimeter, nil
}

func (f *fakeFile) EventField(path string) (*Matrix, error) {
	m, ok := f.events[path]
	if !ok {
		return nil, ErrFieldUnavailable
	}

	return m, nil
}

func (f *fakeFile) BoundaryConditions() ([]string, error) {
	return f.bcNames, nil
}

func (f *fakeFile) Close() error {
	f.closed = true

	return nil
}

func mustMatrix(t *testing.T, rows, cols int, data ...float64) *Matrix {
	t.Helper()

	m, err := NewMatrix(rows, cols, data)
	require.NoError(t, err)

	return m
}

// newFakeFile returns a three-cell domain inside a 20000 ft square. Cell 0
// sits in the middle, cell 1 is 1000 ft from the edge, cell 2 is outside.
func newFakeFile(t *testing.T) *fakeFile {
	t.Helper()

	return &fakeFile{
		domains: []string{"PERIMTER1"},
		fields: map[string]*Matrix{
			FieldWaterSurface: mustMatrix(t, 3, 3,
				10, 20, 30,
				11, 24, 30.5,
				12.5, 21, math.NaN(),
			),
			FieldVelocityX: mustMatrix(t, 2, 3,
				3, 30, 300,
				1, 0, 0,
			),
			FieldVelocityY: mustMatrix(t, 2, 3,
				4, 40, 400,
				1, 0, 0,
			),
			FieldVolume:      mustMatrix(t, 1, 3, 100, 2500.456, 7),
			FieldFlowBalance: mustMatrix(t, 1, 3, -1, math.NaN(), 0.25),
		},
		events: map[string]*Matrix{
			WindXPath:                          mustMatrix(t, 1, 2, 6, 1),
			WindYPath:                          mustMatrix(t, 1, 2, 8, 1),
			StageHydrographsPath + "/Downstream": mustMatrix(t, 2, 2, 1, -9999, 3, 5),
		},
		centers: []orb.Point{
			{10000, 10000},
			{1000, 10000},
			{30000, 10000},
		},
		perimeter: orb.Ring{{0, 0}, {20000, 0}, {20000, 20000}, {0, 20000}},
		bcNames:   []string{"Downstream", "Upstream"},
		failing:   map[string]error{},
	}
}

func TestExtract(t *testing.T) {
	f := newFakeFile(t)

	res := Extract(f, Options{ReadWind: true, BoundaryFilter: true, BoundaryBuffer: DefaultBoundaryBuffer})

	require.Empty(t, res.Errors)
	assert.Equal(t, "PERIMTER1", res.Domain)

	assert.Equal(t, "30.5", Format(res.MaxWSE))
	assert.Equal(t, "4", Format(res.MaxDepth))
	assert.Equal(t, "5", Format(res.MaxVelocity))
	assert.Equal(t, "2500.46", Format(res.MaxVolume))
	assert.Equal(t, "0.25", Format(res.MaxFlowBalance))
	assert.Equal(t, "10", Format(res.MaxWind))
	assert.Equal(t, "3", Format(res.MeanBC))
	assert.Equal(t, "5", Format(res.MaxBC))
}

func TestExtract_NoBoundaryFilter(t *testing.T) {
	res := Extract(newFakeFile(t), Options{})

	assert.Equal(t, "500", Format(res.MaxVelocity))
	assert.Nil(t, res.MaxWind)
}

func TestExtract_MissingVelocity(t *testing.T) {
	f := newFakeFile(t)
	delete(f.fields, FieldVelocityX)

	res := Extract(f, boundaryOptions)

	assert.Empty(t, res.Errors)
	assert.Equal(t, "N/A", Format(res.MaxVelocity))
	assert.Equal(t, "30.5", Format(res.MaxWSE))
	assert.Equal(t, "2500.46", Format(res.MaxVolume))
	assert.Equal(t, "3", Format(res.MeanBC))
}

func TestExtract_ReaderErrorIsPerColumn(t *testing.T) {
	f := newFakeFile(t)
	f.failing[FieldVolume] = errors.New("corrupt dataset")

	res := Extract(f, boundaryOptions)

	require.Len(t, res.Errors, 1)
	assert.EqualError(t, res.Errors[ColumnMaxVolume], "corrupt dataset")
	assert.Nil(t, res.MaxVolume)
	assert.Equal(t, "0.25", Format(res.MaxFlowBalance))

	err := res.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Max Volume (ft^3): corrupt dataset")
}

func TestExtract_MissingPerimeter(t *testing.T) {
	f := newFakeFile(t)
	f.perimeter = nil

	res := Extract(f, boundaryOptions)

	assert.ErrorIs(t, res.Errors[ColumnMaxVelocity], ErrFieldUnavailable)
	assert.Nil(t, res.MaxVelocity)
	assert.NotNil(t, res.MaxWSE)
}

func TestExtract_MissingWind(t *testing.T) {
	f := newFakeFile(t)
	delete(f.events, WindYPath)

	res := Extract(f, Options{ReadWind: true})

	assert.ErrorIs(t, res.Errors[ColumnMaxWind], ErrFieldUnavailable)
	assert.Nil(t, res.MaxWind)
}

func TestExtract_NoDomains(t *testing.T) {
	f := newFakeFile(t)
	f.domains = nil

	res := Extract(f, boundaryOptions)

	assert.ErrorIs(t, res.Errors[ColumnMaxWSE], ErrFieldUnavailable)
	assert.Nil(t, res.MaxWSE)
	assert.Equal(t, "5", Format(res.MaxBC))
}

func TestExtract_AllBoundaryValuesMissing(t *testing.T) {
	f := newFakeFile(t)
	f.events[StageHydrographsPath+"/Downstream"] = mustMatrix(t, 1, 2, -500, -101)

	res := Extract(f, boundaryOptions)

	assert.Nil(t, res.MeanBC)
	assert.Nil(t, res.MaxBC)
}

func TestNewExtractor(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	e := NewExtractor(log, Options{BoundaryFilter: true})

	res := e.Extract("S0100", newFakeFile(t))
	assert.Equal(t, "5", Format(res.MaxVelocity))
	assert.Empty(t, hook.AllEntries())

	f := newFakeFile(t)
	f.failing[FieldVolume] = errors.New("corrupt dataset")

	res = e.Extract("S0101", f)
	assert.Nil(t, res.MaxVolume)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "S0101", entry.Data["run"])
	assert.Equal(t, "metrics", entry.Data["component"])
	assert.Contains(t, entry.Data[logrus.ErrorKey].(error).Error(), "corrupt dataset")

	var columns []any
	for _, en := range hook.AllEntries() {
		if en.Level == logrus.DebugLevel {
			columns = append(columns, en.Data["column"])
		}
	}

	assert.Equal(t, []any{ColumnMaxVolume}, columns)
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		value    *float64
		expected string
	}{
		{name: "nil", value: nil, expected: "N/A"},
		{name: "nan", value: Float(math.NaN()), expected: "N/A"},
		{name: "rounded", value: Float(1.23456), expected: "1.23"},
		{name: "half up", value: Float(2.675001), expected: "2.68"},
		{name: "integer", value: Float(42), expected: "42"},
		{name: "negative", value: Float(-3.14159), expected: "-3.14"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.value))
		})
	}
}

func TestParseValue(t *testing.T) {
	assert.Nil(t, ParseValue("N/A"))
	assert.Nil(t, ParseValue(""))
	assert.Nil(t, ParseValue("abc"))
	assert.Nil(t, ParseValue("NaN"))

	v := ParseValue("12.5")
	require.NotNil(t, v)
	assert.InDelta(t, 12.5, *v, 1e-9)
}

func TestValues_Strings(t *testing.T) {
	v := Values{MaxWSE: Float(1), MaxBC: Float(2.346)}

	assert.Equal(t, []string{"1", "N/A", "N/A", "N/A", "N/A", "N/A", "N/A", "2.35"}, v.Strings())
}
