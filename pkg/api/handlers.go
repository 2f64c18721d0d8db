package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/floodqc/runqc/pkg/metrics"
	"github.com/floodqc/runqc/pkg/report"
	"github.com/floodqc/runqc/pkg/status"
	"github.com/floodqc/runqc/pkg/summary"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// scenarioResponse is an entry of the scenario list.
type scenarioResponse struct {
	Name             string `json:"name"`
	Title            string `json:"title,omitempty"`
	TotalSimulations int    `json:"total_simulations,omitempty"`
}

// recordResponse is the JSON form of a summary record. Metric values are
// null when unavailable.
type recordResponse struct {
	Directory     string              `json:"directory"`
	Status        status.Status       `json:"status"`
	Duration      string              `json:"duration"`
	SUs           int                 `json:"sus"`
	FailureReason string              `json:"failure_reason,omitempty"`
	VolErrorAF    string              `json:"vol_error_af"`
	VolErrorPct   string              `json:"vol_error_pct"`
	MaxWSELErr    string              `json:"max_wsel_err"`
	StartTime     string              `json:"start_time"`
	EndTime       string              `json:"end_time"`
	FailureInfo   string              `json:"failure_info,omitempty"`
	Metrics       map[string]*float64 `json:"metrics"`
	MetricErrors  map[string]string   `json:"metric_errors,omitempty"`
}

func newRecordResponse(r *summary.Record) recordResponse {
	m := make(map[string]*float64, len(metrics.Columns))
	for _, c := range metrics.Columns {
		m[c] = r.Metrics.Get(c)
	}

	return recordResponse{
		Directory:     r.Directory,
		Status:        r.Status,
		Duration:      r.Duration,
		SUs:           r.SUs,
		FailureReason: r.FailureReason,
		VolErrorAF:    r.VolErrorAF,
		VolErrorPct:   r.VolErrorPct,
		MaxWSELErr:    r.MaxWSELErr,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		FailureInfo:   r.FailureInfo,
		Metrics:       m,
		MetricErrors:  r.MetricErrors,
	}
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// writeSourceError maps a Source error to a response.
func (s *server) writeSourceError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{"not found"})

		return
	}

	s.log.WithError(err).Warn("Failed to load records")
	writeJSON(w, http.StatusInternalServerError,
		errorResponse{"failed to load records"})
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListScenarios lists the known scenarios.
func (s *server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	names, err := s.source.Scenarios(r.Context())
	if err != nil {
		s.writeSourceError(w, err)

		return
	}

	resp := make([]scenarioResponse, 0, len(names))

	for _, name := range names {
		entry := scenarioResponse{Name: name}

		if sc, err := s.cfg.Scenario(name); err == nil {
			entry.Title = sc.Title
			entry.TotalSimulations = sc.TotalSimulations
		}

		resp = append(resp, entry)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleListRecords returns the records of a scenario, optionally filtered
// by ?status=.
func (s *server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var st status.Status

	if label := r.URL.Query().Get("status"); label != "" {
		st = status.Parse(label)
		if st == status.Unknown && !strings.EqualFold(strings.TrimSpace(label), string(status.Unknown)) {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"unknown status " + label})

			return
		}
	}

	records, err := s.source.Records(r.Context(), name, st)
	if err != nil {
		s.writeSourceError(w, err)

		return
	}

	resp := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, newRecordResponse(rec))
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleGetRecord returns a single record.
func (s *server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.source.Record(r.Context(),
		chi.URLParam(r, "name"), chi.URLParam(r, "dir"))
	if err != nil {
		s.writeSourceError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, newRecordResponse(rec))
}

// handleOverview returns the dashboard overview of a scenario.
func (s *server) handleOverview(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	records, err := s.source.Records(r.Context(), name, "")
	if err != nil {
		s.writeSourceError(w, err)

		return
	}

	writeJSON(w, http.StatusOK,
		report.NewOverview(name, records, s.schedule(name), s.now()))
}

// handleRunReport renders the markdown QC report of a run.
func (s *server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	dir := chi.URLParam(r, "dir")

	rec, err := s.source.Record(r.Context(), name, dir)
	if err != nil {
		s.writeSourceError(w, err)

		return
	}

	details := report.RunDetails{Scenario: name}

	if s.details != nil {
		d, err := s.details(r.Context(), name, dir)
		if err != nil {
			s.log.WithError(err).WithField("run", dir).
				Debug("Run directory unavailable for report")
		} else {
			details = d
		}
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report.GenerateRunMarkdown(rec, details)))
}

// schedule returns the configured production window of a scenario.
func (s *server) schedule(name string) report.Schedule {
	sc, err := s.cfg.Scenario(name)
	if err != nil {
		return report.Schedule{}
	}

	sched := report.Schedule{
		Title:            sc.Title,
		TotalSimulations: sc.TotalSimulations,
	}

	// Dates were checked by config validation.
	sched.Start, sched.Completion, _ = sc.Schedule()

	return sched
}
