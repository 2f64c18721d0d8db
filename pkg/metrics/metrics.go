// Package metrics reduces a simulation result file to the handful of
// hydrodynamic maxima reported per run.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"github.com/floodqc/runqc/pkg/status"
)

// ErrFieldUnavailable is returned by a ResultFile when a requested field
// does not exist in the file.
var ErrFieldUnavailable = errors.New("field unavailable")

// Result field names written by the simulation engine.
const (
	FieldWaterSurface = "Water Surface"
	FieldVelocityX    = "Cell Velocity - Velocity X"
	FieldVelocityY    = "Cell Velocity - Velocity Y"
	FieldVolume       = "Cell Volume"
	FieldFlowBalance  = "Cell Flow Balance"
)

// Event condition paths.
const (
	WindXPath            = "Event Conditions/Meteorology/Wind/VX"
	WindYPath            = "Event Conditions/Meteorology/Wind/VY"
	StageHydrographsPath = "Event Conditions/Unsteady/Boundary Conditions/Stage Hydrographs"
)

// Summary column names of the extracted values.
const (
	ColumnMaxWSE         = "Max WSE (ft)"
	ColumnMaxDepth       = "Max Depth (ft)"
	ColumnMaxVelocity    = "Max Velocity (ft/s)"
	ColumnMaxVolume      = "Max Volume (ft^3)"
	ColumnMaxFlowBalance = "Max Flow Balance (ft^3/s)"
	ColumnMaxWind        = "Max Wind (ft/s)"
	ColumnMeanBC         = "Mean BC (ft)"
	ColumnMaxBC          = "Max BC (ft)"
)

// Columns lists the extracted columns in summary order.
var Columns = []string{
	ColumnMaxWSE,
	ColumnMaxDepth,
	ColumnMaxVelocity,
	ColumnMaxVolume,
	ColumnMaxFlowBalance,
	ColumnMaxWind,
	ColumnMeanBC,
	ColumnMaxBC,
}

const (
	// DefaultBoundaryBuffer is the inward perimeter buffer, in model units
	// (one mile in feet), applied before taking the velocity maximum.
	DefaultBoundaryBuffer = 5280.0

	// MissingBCThreshold marks boundary condition entries below it as missing.
	MissingBCThreshold = -100.0
)

// ResultFile is read access to a simulation result file.
type ResultFile interface {
	// Domains lists the 2D flow areas with time series output.
	Domains() ([]string, error)
	// ResultFields lists the time series fields written for a domain.
	ResultFields(domain string) ([]string, error)
	// ResultField reads a time series field as timesteps x cells.
	ResultField(domain, name string) (*Matrix, error)
	// CellCenters returns the cell center coordinates of a domain.
	CellCenters(domain string) ([]orb.Point, error)
	// Perimeter returns the outer boundary of a domain.
	Perimeter(domain string) (orb.Ring, error)
	// EventField reads an event condition dataset by path.
	EventField(path string) (*Matrix, error)
	// BoundaryConditions lists the stage hydrograph names.
	BoundaryConditions() ([]string, error)
	// Close releases the file.
	Close() error
}

// Options controls what Extract reads.
type Options struct {
	// Domain overrides the flow area; the first listed domain is used
	// when empty.
	Domain string
	// ReadWind enables the wind maximum.
	ReadWind bool
	// BoundaryFilter restricts the velocity maximum to cells at least
	// BoundaryBuffer inside the domain perimeter.
	BoundaryFilter bool
	BoundaryBuffer float64
}

// Values holds the extracted maxima. A nil entry is not available.
type Values struct {
	MaxWSE         *float64
	MaxDepth       *float64
	MaxVelocity    *float64
	MaxVolume      *float64
	MaxFlowBalance *float64
	MaxWind        *float64
	MeanBC         *float64
	MaxBC          *float64
}

// Get returns the value stored for a summary column.
func (v *Values) Get(column string) *float64 {
	if p := v.field(column); p != nil {
		return *p
	}

	return nil
}

// Set stores a value for a summary column. Unknown columns are ignored.
func (v *Values) Set(column string, value *float64) {
	if p := v.field(column); p != nil {
		*p = value
	}
}

func (v *Values) field(column string) **float64 {
	switch column {
	case ColumnMaxWSE:
		return &v.MaxWSE
	case ColumnMaxDepth:
		return &v.MaxDepth
	case ColumnMaxVelocity:
		return &v.MaxVelocity
	case ColumnMaxVolume:
		return &v.MaxVolume
	case ColumnMaxFlowBalance:
		return &v.MaxFlowBalance
	case ColumnMaxWind:
		return &v.MaxWind
	case ColumnMeanBC:
		return &v.MeanBC
	case ColumnMaxBC:
		return &v.MaxBC
	}

	return nil
}

// Strings formats the values in column order.
func (v *Values) Strings() []string {
	out := make([]string, 0, len(Columns))
	for _, c := range Columns {
		out = append(out, Format(v.Get(c)))
	}

	return out
}

// Result is the outcome of one extraction.
type Result struct {
	Values
	// Domain is the flow area that was read.
	Domain string
	// Errors holds reader failures keyed by summary column.
	Errors map[string]error
}

// Err folds the per-column errors into one error, or nil.
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}

	cols := make([]string, 0, len(r.Errors))
	for c := range r.Errors {
		cols = append(cols, c)
	}

	sort.Strings(cols)

	var result *multierror.Error
	for _, c := range cols {
		result = multierror.Append(result, fmt.Errorf("%s: %w", c, r.Errors[c]))
	}

	return result.ErrorOrNil()
}

func (r *Result) fail(columns []string, err error) {
	for _, c := range columns {
		r.Errors[c] = err
	}
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Round rounds v to two decimals.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}

// Format renders an optional value rounded to two decimals, or the
// not-available marker.
func Format(v *float64) string {
	if v == nil || math.IsNaN(*v) {
		return status.NotAvailable
	}

	return strconv.FormatFloat(Round(*v), 'f', -1, 64)
}

// ParseValue is the inverse of Format.
func ParseValue(s string) *float64 {
	if s == "" || s == status.NotAvailable {
		return nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return nil
	}

	return &v
}

// Extractor reads metrics from the result files of runs.
type Extractor interface {
	// Extract reads every metric it can. Missing fields leave their column
	// unset; reader errors are recorded per column and logged against
	// runID, and never stop the other columns from being read.
	Extract(runID string, file ResultFile) *Result
}

type extractor struct {
	log  logrus.FieldLogger
	opts Options
}

// Ensure interface compliance.
var _ Extractor = (*extractor)(nil)

// NewExtractor creates an extractor with the given options.
func NewExtractor(log logrus.FieldLogger, opts Options) Extractor {
	if opts.BoundaryBuffer <= 0 {
		opts.BoundaryBuffer = DefaultBoundaryBuffer
	}

	return &extractor{
		log:  log.WithField("component", "metrics"),
		opts: opts,
	}
}

func (e *extractor) Extract(runID string, file ResultFile) *Result {
	res := Extract(file, e.opts)

	err := res.Err()
	if err == nil {
		return res
	}

	log := e.log.WithFields(logrus.Fields{
		"run":    runID,
		"domain": res.Domain,
	})

	for column, cerr := range res.Errors {
		log.WithField("column", column).WithError(cerr).Debug("Metric not extracted")
	}

	log.WithError(err).Warn("Some metrics could not be extracted")

	return res
}

// Extract reads every metric it can from file using opts.
func Extract(file ResultFile, opts Options) *Result {
	res := &Result{Errors: make(map[string]error)}

	domain, err := resolveDomain(file, opts.Domain)
	if err != nil {
		res.fail([]string{
			ColumnMaxWSE, ColumnMaxDepth, ColumnMaxVelocity,
			ColumnMaxVolume, ColumnMaxFlowBalance,
		}, err)
	} else {
		res.Domain = domain
		extractResults(file, domain, opts, res)
	}

	if opts.ReadWind {
		extractWind(file, res)
	}

	extractBoundaryConditions(file, res)

	return res
}

func resolveDomain(file ResultFile, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	domains, err := file.Domains()
	if err != nil {
		return "", fmt.Errorf("listing domains: %w", err)
	}

	if len(domains) == 0 {
		return "", fmt.Errorf("listing domains: %w", ErrFieldUnavailable)
	}

	return domains[0], nil
}

func extractResults(file ResultFile, domain string, opts Options, res *Result) {
	fields, err := file.ResultFields(domain)
	if err != nil {
		res.fail([]string{
			ColumnMaxWSE, ColumnMaxDepth, ColumnMaxVelocity,
			ColumnMaxVolume, ColumnMaxFlowBalance,
		}, fmt.Errorf("listing result fields: %w", err))

		return
	}

	available := make(map[string]bool, len(fields))
	for _, f := range fields {
		available[f] = true
	}

	if available[FieldWaterSurface] {
		if wse, err := file.ResultField(domain, FieldWaterSurface); err != nil {
			res.fail([]string{ColumnMaxWSE, ColumnMaxDepth}, err)
		} else {
			res.MaxWSE = maxOf(wse.Data)
			res.MaxDepth = maxDepth(wse)
		}
	}

	if available[FieldVelocityX] && available[FieldVelocityY] {
		if v, err := maxVelocity(file, domain, opts); err != nil {
			res.Errors[ColumnMaxVelocity] = err
		} else {
			res.MaxVelocity = v
		}
	}

	for field, column := range map[string]string{
		FieldVolume:      ColumnMaxVolume,
		FieldFlowBalance: ColumnMaxFlowBalance,
	} {
		if !available[field] {
			continue
		}

		m, err := file.ResultField(domain, field)
		if err != nil {
			res.Errors[column] = err

			continue
		}

		res.Set(column, maxOf(m.Data))
	}
}

// maxDepth is the largest rise of the water surface over its value at the
// first timestep.
func maxDepth(wse *Matrix) *float64 {
	if wse.Rows == 0 {
		return nil
	}

	initial := wse.Row(0)
	best, ok := 0.0, false

	for r := 0; r < wse.Rows; r++ {
		for c, v := range wse.Row(r) {
			d := v - initial[c]
			if math.IsNaN(d) {
				continue
			}

			if !ok || d > best {
				best, ok = d, true
			}
		}
	}

	if !ok {
		return nil
	}

	return &best
}

func maxVelocity(file ResultFile, domain string, opts Options) (*float64, error) {
	vx, err := file.ResultField(domain, FieldVelocityX)
	if err != nil {
		return nil, err
	}

	vy, err := file.ResultField(domain, FieldVelocityY)
	if err != nil {
		return nil, err
	}

	speed, err := magnitude(vx, vy)
	if err != nil {
		return nil, fmt.Errorf("computing velocity magnitude: %w", err)
	}

	perCell := speed.ColumnMax()

	if !opts.BoundaryFilter {
		return maxOf(perCell), nil
	}

	centers, err := file.CellCenters(domain)
	if err != nil {
		return nil, fmt.Errorf("reading cell centers: %w", err)
	}

	perimeter, err := file.Perimeter(domain)
	if err != nil {
		return nil, fmt.Errorf("reading perimeter: %w", err)
	}

	inner := InnerCells(centers, perimeter, opts.BoundaryBuffer)

	kept := make([]float64, 0, len(inner))
	for _, i := range inner {
		if i < len(perCell) {
			kept = append(kept, perCell[i])
		}
	}

	return maxOf(kept), nil
}

func extractWind(file ResultFile, res *Result) {
	vx, err := file.EventField(WindXPath)
	if err != nil {
		res.Errors[ColumnMaxWind] = err

		return
	}

	vy, err := file.EventField(WindYPath)
	if err != nil {
		res.Errors[ColumnMaxWind] = err

		return
	}

	speed, err := magnitude(vx, vy)
	if err != nil {
		res.Errors[ColumnMaxWind] = fmt.Errorf("computing wind magnitude: %w", err)

		return
	}

	res.MaxWind = maxOf(speed.Data)
}

func extractBoundaryConditions(file ResultFile, res *Result) {
	columns := []string{ColumnMeanBC, ColumnMaxBC}

	names, err := file.BoundaryConditions()
	if err != nil {
		res.fail(columns, fmt.Errorf("listing stage hydrographs: %w", err))

		return
	}

	if len(names) == 0 {
		return
	}

	bc, err := file.EventField(StageHydrographsPath + "/" + names[0])
	if err != nil {
		res.fail(columns, err)

		return
	}

	values := make([]float64, len(bc.Data))
	for i, v := range bc.Data {
		if v < MissingBCThreshold {
			v = math.NaN()
		}

		values[i] = v
	}

	if mean, ok := nanMean(values); ok {
		res.MeanBC = &mean
	}

	res.MaxBC = maxOf(values)
}

func maxOf(values []float64) *float64 {
	v, ok := nanMax(values)
	if !ok {
		return nil
	}

	return &v
}
