package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	configPath := writeConfig(t, `
global:
  log_level: info
scenarios:
  - name: S01
    runs_dir: /data/S01
    start_date: "2026-01-05"
aggregation:
  workers: 4
  run_timeout: 2m
metrics:
  read_wind: false
output:
  dir: ./base-output
`)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Global.LogLevel)
				assert.Equal(t, 4, cfg.Aggregation.Workers)
				assert.Equal(t, 2*time.Minute, cfg.Aggregation.RunTimeout)
				assert.Equal(t, "./base-output", cfg.Output.Dir)
				require.Len(t, cfg.Scenarios, 1)
				assert.Equal(t, "/data/S01", cfg.Scenarios[0].RunsDir)
			},
		},
		{
			name: "string override - log_level",
			envVars: map[string]string{
				"RUNQC_GLOBAL_LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Global.LogLevel)
			},
		},
		{
			name: "int override - workers",
			envVars: map[string]string{
				"RUNQC_AGGREGATION_WORKERS": "16",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 16, cfg.Aggregation.Workers)
			},
		},
		{
			name: "duration override - run_timeout",
			envVars: map[string]string{
				"RUNQC_AGGREGATION_RUN_TIMEOUT": "45s",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 45*time.Second, cfg.Aggregation.RunTimeout)
			},
		},
		{
			name: "boolean override - read_wind true",
			envVars: map[string]string{
				"RUNQC_METRICS_READ_WIND": "true",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Metrics.ReadWind)
			},
		},
		{
			name: "boolean override - parallel false",
			envVars: map[string]string{
				"RUNQC_AGGREGATION_PARALLEL": "false",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Aggregation.Parallel)
			},
		},
		{
			name: "nested pointer override - s3 bucket",
			envVars: map[string]string{
				"RUNQC_UPLOAD_S3_ENABLED": "true",
				"RUNQC_UPLOAD_S3_BUCKET":  "flood-results",
			},
			validate: func(t *testing.T, cfg *Config) {
				require.NotNil(t, cfg.Upload.S3)
				assert.True(t, cfg.Upload.S3.Enabled)
				assert.Equal(t, "flood-results", cfg.Upload.S3.Bucket)
			},
		},
		{
			name: "comma list override - cors origins",
			envVars: map[string]string{
				"RUNQC_API_SERVER_CORS_ORIGINS": "https://a.example,https://b.example",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t,
					[]string{"https://a.example", "https://b.example"},
					cfg.API.Server.CORSOrigins)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
scenarios:
  - name: S01
    runs_dir: /data/S01
`))
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.True(t, cfg.Aggregation.Parallel)
	assert.Equal(t, DefaultTailLines, cfg.Aggregation.TailLines)
	assert.Equal(t, DefaultSUMultiplier, cfg.Aggregation.SUMultiplier)
	assert.Equal(t, DefaultWatchInterval, cfg.Aggregation.WatchInterval)
	assert.True(t, cfg.Metrics.Enabled)
	assert.True(t, cfg.Metrics.BoundaryFilter)
	assert.InDelta(t, DefaultBoundaryBuffer, cfg.Metrics.BoundaryBuffer, 0)
	assert.Equal(t, DefaultSummaryName, cfg.Output.SummaryName)
	assert.Equal(t, DriverSQLite, cfg.Store.Database.Driver)
	assert.Equal(t, DefaultSQLitePath, cfg.Store.Database.SQLite.Path)
	assert.Equal(t, DefaultAPIListen, cfg.API.Server.Listen)
	assert.True(t, cfg.API.Auth.AnonymousRead)

	s := cfg.Scenarios[0]
	assert.Equal(t, DefaultLogName, s.LogName)
	assert.Equal(t, DefaultTimingName, s.TimingName)
	assert.Equal(t, DefaultResultPattern, s.ResultPattern)
	assert.Equal(t, DefaultSchedulerPattern, s.Scheduler.Pattern)
	assert.Equal(t, DefaultSchedulerStdoutName, s.Scheduler.StdoutName)
	assert.Equal(t, DefaultTotalSimulations, s.TotalSimulations)
}

func TestLoad_MergesFilesInOrder(t *testing.T) {
	base := writeConfig(t, `
global:
  log_level: info
aggregation:
  workers: 2
  tail_lines: 10
`)
	override := writeConfig(t, `
aggregation:
  workers: 8
`)

	cfg, err := Load(base, override)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Aggregation.Workers)
	assert.Equal(t, 10, cfg.Aggregation.TailLines)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "global: [unterminated"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{
			Scenarios: []ScenarioConfig{{Name: "S01", RunsDir: "/data/S01"}},
		}
		cfg.applyDefaults()

		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(_ *Config) {},
		},
		{
			name:    "bad log level",
			mutate:  func(cfg *Config) { cfg.Global.LogLevel = "loud" },
			wantErr: "invalid log level",
		},
		{
			name:    "missing scenario name",
			mutate:  func(cfg *Config) { cfg.Scenarios[0].Name = "" },
			wantErr: "name is required",
		},
		{
			name: "duplicate scenario",
			mutate: func(cfg *Config) {
				cfg.Scenarios = append(cfg.Scenarios, cfg.Scenarios[0])
			},
			wantErr: "duplicate name",
		},
		{
			name:    "missing runs dir",
			mutate:  func(cfg *Config) { cfg.Scenarios[0].RunsDir = "" },
			wantErr: "runs_dir is required",
		},
		{
			name:    "bad start date",
			mutate:  func(cfg *Config) { cfg.Scenarios[0].StartDate = "05/01/2026" },
			wantErr: "invalid start_date",
		},
		{
			name:    "negative workers",
			mutate:  func(cfg *Config) { cfg.Aggregation.Workers = -1 },
			wantErr: "workers must not be negative",
		},
		{
			name: "s3 without bucket",
			mutate: func(cfg *Config) {
				cfg.Upload.S3 = &S3UploadConfig{Enabled: true}
			},
			wantErr: "bucket is required",
		},
		{
			name: "store with unknown driver",
			mutate: func(cfg *Config) {
				cfg.Store.Enabled = true
				cfg.Store.Database.Driver = "mysql"
			},
			wantErr: "unsupported database driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAPIConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     APIConfig
		wantErr bool
	}{
		{
			name: "anonymous read",
			cfg:  APIConfig{Auth: APIAuthConfig{AnonymousRead: true}},
		},
		{
			name:    "no auth method",
			cfg:     APIConfig{},
			wantErr: true,
		},
		{
			name: "basic without users",
			cfg: APIConfig{Auth: APIAuthConfig{
				Basic: BasicAuthConfig{Enabled: true},
			}},
			wantErr: true,
		},
		{
			name: "basic with user",
			cfg: APIConfig{Auth: APIAuthConfig{
				Basic: BasicAuthConfig{
					Enabled: true,
					Users:   []BasicAuthUser{{Username: "qc", Password: "secret"}},
				},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScenarioLookupAndPaths(t *testing.T) {
	cfg := &Config{
		Scenarios: []ScenarioConfig{{
			Name:           "S01",
			RunsDir:        "/data/S01",
			StartDate:      "2026-01-05",
			CompletionDate: "2026-03-01",
		}},
		Output: OutputConfig{Dir: "/out/"},
	}
	cfg.applyDefaults()

	s, err := cfg.Scenario("S01")
	require.NoError(t, err)

	start, completion, err := s.Schedule()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), completion)

	_, err = cfg.Scenario("S02")
	require.Error(t, err)

	assert.Equal(t, "/out/S01_simulation_summary.csv", cfg.SummaryPath("S01"))
	assert.Equal(t, "/out/S01_simulation_basic_summary.csv", cfg.BasicSummaryPath("S01"))
	assert.Equal(t, "/out/updated_S01_simulation_summary_full.csv", cfg.MergedSummaryPath("S01"))
	assert.Equal(t, "/out/reports/S01", cfg.ReportsPath("S01"))
	assert.True(t, BasicAuthUser{Password: "$2a$10$abc"}.IsHashed())
	assert.False(t, BasicAuthUser{Password: "plain"}.IsHashed())
}
