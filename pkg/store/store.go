// Package store persists aggregation passes and their summary records.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/floodqc/runqc/pkg/aggregator"
	"github.com/floodqc/runqc/pkg/config"
	"github.com/floodqc/runqc/pkg/status"
	"github.com/floodqc/runqc/pkg/summary"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a record or pass does not exist.
var ErrNotFound = errors.New("not found")

const upsertBatchSize = 500

// basicColumns are the columns refreshed by a pass that did not read
// result files. Stored maxima are left alone.
var basicColumns = []string{
	"status",
	"duration",
	"sus",
	"failure_reason",
	"vol_error_af",
	"vol_error_pct",
	"max_wsel_err",
	"start_time",
	"end_time",
	"failure_info",
	"pass_id",
	"updated_at",
}

// Store provides persistence for scenario summaries.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	UpsertRecords(ctx context.Context, scenario, passID string, records []*summary.Record, withMetrics bool) error
	ListRecords(ctx context.Context, scenario string, st status.Status) ([]*summary.Record, error)
	GetRecord(ctx context.Context, scenario, directory string) (*summary.Record, error)
	ListScenarios(ctx context.Context) ([]string, error)

	RecordPass(ctx context.Context, scenario string, pass *aggregator.Pass) error
	LatestPass(ctx context.Context, scenario string) (*Pass, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case config.DriverPostgres:
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Record{},
		&Pass{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// UpsertRecords inserts or replaces records keyed by scenario + directory.
// Without metrics only the run log columns of existing rows are updated.
func (s *store) UpsertRecords(
	ctx context.Context, scenario, passID string, records []*summary.Record, withMetrics bool,
) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]*Record, 0, len(records))

	for _, r := range records {
		row, err := newRecord(scenario, passID, r)
		if err != nil {
			return fmt.Errorf("encoding record %s: %w", r.Directory, err)
		}

		row.UpdatedAt = time.Now().UTC()
		rows = append(rows, row)
	}

	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "scenario"}, {Name: "directory"}},
		UpdateAll: true,
	}

	if !withMetrics {
		onConflict.UpdateAll = false
		onConflict.DoUpdates = clause.AssignmentColumns(basicColumns)
	}

	err := s.db.WithContext(ctx).
		Clauses(onConflict).
		CreateInBatches(rows, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("upserting records: %w", err)
	}

	return nil
}

// ListRecords returns the records of a scenario ordered by directory. An
// empty status returns every record.
func (s *store) ListRecords(
	ctx context.Context, scenario string, st status.Status,
) ([]*summary.Record, error) {
	q := s.db.WithContext(ctx).Where("scenario = ?", scenario)
	if st != "" {
		q = q.Where("status = ?", string(st))
	}

	var rows []Record
	if err := q.Order("directory ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	records := make([]*summary.Record, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].Summary())
	}

	return records, nil
}

// GetRecord returns a single record.
func (s *store) GetRecord(
	ctx context.Context, scenario, directory string,
) (*summary.Record, error) {
	var row Record

	err := s.db.WithContext(ctx).
		Where("scenario = ? AND directory = ?", scenario, directory).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}

	return row.Summary(), nil
}

// ListScenarios returns the distinct scenario names with stored records.
func (s *store) ListScenarios(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).
		Model(&Record{}).
		Distinct("scenario").
		Order("scenario ASC").
		Pluck("scenario", &names).Error; err != nil {
		return nil, fmt.Errorf("listing scenarios: %w", err)
	}

	return names, nil
}

// RecordPass stores a pass and its records in one transaction. Rows of the
// scenario not seen by the pass are removed, except runs the pass failed to
// process, which keep their last known state.
func (s *store) RecordPass(
	ctx context.Context, scenario string, pass *aggregator.Pass,
) error {
	tally, err := json.Marshal(pass.Tally)
	if err != nil {
		return fmt.Errorf("encoding tally: %w", err)
	}

	failed, err := json.Marshal(pass.Failed)
	if err != nil {
		return fmt.Errorf("encoding failed runs: %w", err)
	}

	row := &Pass{
		PassID:     pass.ID,
		Scenario:   scenario,
		StartedAt:  pass.Started,
		FinishedAt: pass.Finished,
		Total:      pass.Tally.Total,
		TotalSUs:   pass.Tally.TotalSUs,
		TallyJSON:  string(tally),
		FailedJSON: string(failed),
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("pass_id = ?", row.PassID).
			Assign(row).
			FirstOrCreate(row).Error; err != nil {
			return fmt.Errorf("upserting pass: %w", err)
		}

		txStore := &store{log: s.log, cfg: s.cfg, db: tx}

		if err := txStore.UpsertRecords(ctx, scenario, pass.ID, pass.Records, pass.Metrics); err != nil {
			return err
		}

		return txStore.pruneRecords(ctx, scenario, pass)
	})
}

// pruneRecords deletes rows of runs that no longer exist in the scenario.
func (s *store) pruneRecords(ctx context.Context, scenario string, pass *aggregator.Pass) error {
	q := s.db.WithContext(ctx).
		Where("scenario = ? AND pass_id <> ?", scenario, pass.ID)

	if len(pass.Failed) > 0 {
		kept := make([]string, 0, len(pass.Failed))
		for runID := range pass.Failed {
			kept = append(kept, runID)
		}

		q = q.Where("directory NOT IN ?", kept)
	}

	res := q.Delete(&Record{})
	if res.Error != nil {
		return fmt.Errorf("pruning records: %w", res.Error)
	}

	if res.RowsAffected > 0 {
		s.log.WithFields(logrus.Fields{
			"scenario": scenario,
			"removed":  res.RowsAffected,
		}).Info("Removed records of vanished runs")
	}

	return nil
}

// LatestPass returns the most recently finished pass of a scenario.
func (s *store) LatestPass(ctx context.Context, scenario string) (*Pass, error) {
	var row Pass

	err := s.db.WithContext(ctx).
		Where("scenario = ?", scenario).
		Order("finished_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("getting latest pass: %w", err)
	}

	return &row, nil
}
