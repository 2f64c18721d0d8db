package store

import (
	"encoding/json"
	"time"

	"github.com/floodqc/runqc/pkg/aggregator"
	"github.com/floodqc/runqc/pkg/metrics"
	"github.com/floodqc/runqc/pkg/status"
	"github.com/floodqc/runqc/pkg/summary"
)

// Record is a persisted summary row.
type Record struct {
	ID            uint   `gorm:"primaryKey"`
	Scenario      string `gorm:"not null;uniqueIndex:idx_records_scenario_dir"`
	Directory     string `gorm:"not null;uniqueIndex:idx_records_scenario_dir"`
	Status        string `gorm:"index"`
	Duration      string
	SUs           int    `gorm:"column:sus"`
	FailureReason string
	VolErrorAF    string `gorm:"column:vol_error_af"`
	VolErrorPct   string `gorm:"column:vol_error_pct"`
	MaxWSELErr    string `gorm:"column:max_wsel_err"`
	StartTime     string
	EndTime       string
	FailureInfo   string `gorm:"type:text"`

	// Denormalized hydrodynamic maxima. NULL when unavailable.
	MaxWSE         *float64
	MaxDepth       *float64
	MaxVelocity    *float64
	MaxVolume      *float64
	MaxFlowBalance *float64
	MaxWind        *float64
	MeanBC         *float64
	MaxBC          *float64

	MetricErrorsJSON string `gorm:"type:text"`

	PassID    string `gorm:"index"`
	UpdatedAt time.Time
}

// Pass is a persisted aggregation pass.
type Pass struct {
	ID         uint   `gorm:"primaryKey"`
	PassID     string `gorm:"not null;uniqueIndex"`
	Scenario   string `gorm:"not null;index"`
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	TotalSUs   int
	TallyJSON  string `gorm:"type:text"`
	FailedJSON string `gorm:"type:text"`
}

// Tally decodes the stored tally.
func (p *Pass) Tally() (aggregator.Tally, error) {
	var t aggregator.Tally
	if err := json.Unmarshal([]byte(p.TallyJSON), &t); err != nil {
		return t, err
	}

	return t, nil
}

func newRecord(scenario, passID string, r *summary.Record) (*Record, error) {
	rec := &Record{
		Scenario:      scenario,
		Directory:     r.Directory,
		Status:        string(r.Status),
		Duration:      r.Duration,
		SUs:           r.SUs,
		FailureReason: r.FailureReason,
		VolErrorAF:    r.VolErrorAF,
		VolErrorPct:   r.VolErrorPct,
		MaxWSELErr:    r.MaxWSELErr,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		FailureInfo:   r.FailureInfo,
		PassID:        passID,

		MaxWSE:         r.Metrics.MaxWSE,
		MaxDepth:       r.Metrics.MaxDepth,
		MaxVelocity:    r.Metrics.MaxVelocity,
		MaxVolume:      r.Metrics.MaxVolume,
		MaxFlowBalance: r.Metrics.MaxFlowBalance,
		MaxWind:        r.Metrics.MaxWind,
		MeanBC:         r.Metrics.MeanBC,
		MaxBC:          r.Metrics.MaxBC,
	}

	if len(r.MetricErrors) > 0 {
		data, err := json.Marshal(r.MetricErrors)
		if err != nil {
			return nil, err
		}

		rec.MetricErrorsJSON = string(data)
	}

	return rec, nil
}

// Summary converts the row back into a summary record.
func (r *Record) Summary() *summary.Record {
	rec := &summary.Record{
		Directory:     r.Directory,
		Status:        status.Status(r.Status),
		Duration:      r.Duration,
		SUs:           r.SUs,
		FailureReason: r.FailureReason,
		VolErrorAF:    r.VolErrorAF,
		VolErrorPct:   r.VolErrorPct,
		MaxWSELErr:    r.MaxWSELErr,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		FailureInfo:   r.FailureInfo,
		Metrics: metrics.Values{
			MaxWSE:         r.MaxWSE,
			MaxDepth:       r.MaxDepth,
			MaxVelocity:    r.MaxVelocity,
			MaxVolume:      r.MaxVolume,
			MaxFlowBalance: r.MaxFlowBalance,
			MaxWind:        r.MaxWind,
			MeanBC:         r.MeanBC,
			MaxBC:          r.MaxBC,
		},
	}

	if r.MetricErrorsJSON != "" {
		_ = json.Unmarshal([]byte(r.MetricErrorsJSON), &rec.MetricErrors)
	}

	return rec
}
