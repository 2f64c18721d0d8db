package api

import (
	"context"
	"errors"
	"os"

	"github.com/floodqc/runqc/pkg/config"
	"github.com/floodqc/runqc/pkg/status"
	"github.com/floodqc/runqc/pkg/store"
	"github.com/floodqc/runqc/pkg/summary"
)

// ErrNotFound is returned by a Source for unknown scenarios or runs.
var ErrNotFound = errors.New("not found")

// Source supplies the summary records served by the API.
type Source interface {
	Scenarios(ctx context.Context) ([]string, error)
	Records(ctx context.Context, scenario string, st status.Status) ([]*summary.Record, error)
	Record(ctx context.Context, scenario, directory string) (*summary.Record, error)
}

// NewStoreSource serves records persisted in the database. Only scenarios
// present in cfg are served.
func NewStoreSource(cfg *config.Config, s store.Store) Source {
	return &storeSource{cfg: cfg, store: s}
}

type storeSource struct {
	cfg   *config.Config
	store store.Store
}

func (s *storeSource) Scenarios(ctx context.Context) ([]string, error) {
	stored, err := s.store.ListScenarios(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(stored))

	for _, name := range stored {
		if _, err := s.cfg.Scenario(name); err == nil {
			names = append(names, name)
		}
	}

	return names, nil
}

func (s *storeSource) Records(
	ctx context.Context, scenario string, st status.Status,
) ([]*summary.Record, error) {
	if _, err := s.cfg.Scenario(scenario); err != nil {
		return nil, ErrNotFound
	}

	return s.store.ListRecords(ctx, scenario, st)
}

func (s *storeSource) Record(
	ctx context.Context, scenario, directory string,
) (*summary.Record, error) {
	if _, err := s.cfg.Scenario(scenario); err != nil {
		return nil, ErrNotFound
	}

	rec, err := s.store.GetRecord(ctx, scenario, directory)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}

	return rec, err
}

// NewFileSource serves records from the summary files of the configured
// scenarios. Files are re-read on every request.
func NewFileSource(cfg *config.Config) Source {
	return &fileSource{cfg: cfg}
}

type fileSource struct {
	cfg *config.Config
}

func (s *fileSource) Scenarios(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(s.cfg.Scenarios))
	for _, sc := range s.cfg.Scenarios {
		names = append(names, sc.Name)
	}

	return names, nil
}

func (s *fileSource) Records(
	_ context.Context, scenario string, st status.Status,
) ([]*summary.Record, error) {
	if _, err := s.cfg.Scenario(scenario); err != nil {
		return nil, ErrNotFound
	}

	records, err := summary.ReadRecords(s.cfg.SummaryPath(scenario))
	if errors.Is(err, os.ErrNotExist) {
		return []*summary.Record{}, nil
	}

	if err != nil {
		return nil, err
	}

	if st == "" {
		return records, nil
	}

	filtered := make([]*summary.Record, 0, len(records))

	for _, r := range records {
		if r.Status == st {
			filtered = append(filtered, r)
		}
	}

	return filtered, nil
}

func (s *fileSource) Record(
	ctx context.Context, scenario, directory string,
) (*summary.Record, error) {
	records, err := s.Records(ctx, scenario, "")
	if err != nil {
		return nil, err
	}

	for _, r := range records {
		if r.Directory == directory {
			return r, nil
		}
	}

	return nil, ErrNotFound
}
