package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix prefixes environment variable overrides, e.g.
	// RUNQC_GLOBAL_LOG_LEVEL overrides global.log_level.
	EnvPrefix = "RUNQC"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultOutputDir is where summaries and reports are written.
	DefaultOutputDir = "."

	// DefaultSummaryName is the name template of the full summary.
	DefaultSummaryName = "{scenario}_simulation_summary.csv"

	// DefaultBasicSummaryName is the name template of the log-only summary.
	DefaultBasicSummaryName = "{scenario}_simulation_basic_summary.csv"

	// DefaultMergedSummaryName is the name template of merge-summary output.
	DefaultMergedSummaryName = "updated_{scenario}_simulation_summary_full.csv"

	// DefaultReportsDir is the sub-directory of the output dir for reports.
	DefaultReportsDir = "reports"

	// DefaultLogName is the primary log file template.
	DefaultLogName = "log_{run}.txt"

	// DefaultTimingName is the timing file name.
	DefaultTimingName = "time_log.txt"

	// DefaultResultPattern matches the plan result file in a run directory.
	DefaultResultPattern = "*.p01.tmp.hdf"

	// DefaultSchedulerPattern matches the scheduler log of a run.
	DefaultSchedulerPattern = "*_{run}_run.log"

	// DefaultSchedulerStdoutName is the captured job stdout template.
	DefaultSchedulerStdoutName = "output_{prefix}.out"

	// DefaultTailLines is how many trailing log lines feed the failure info.
	DefaultTailLines = 30

	// DefaultSUMultiplier is the number of service units per started hour.
	DefaultSUMultiplier = 3

	// DefaultBoundaryBuffer is the inward perimeter buffer in model units.
	DefaultBoundaryBuffer = 5280.0

	// DefaultWatchInterval is the interval between passes in watch mode.
	DefaultWatchInterval = 5 * time.Minute

	// DefaultTotalSimulations is the planned size of a scenario.
	DefaultTotalSimulations = 10000

	// DateLayout is the layout of scenario schedule dates.
	DateLayout = "2006-01-02"
)

// Placeholders accepted in name templates.
const (
	ScenarioPlaceholder = "{scenario}"
)

// Config is the root configuration for runqc.
type Config struct {
	Global      GlobalConfig      `yaml:"global" mapstructure:"global"`
	Scenarios   []ScenarioConfig  `yaml:"scenarios" mapstructure:"scenarios"`
	Aggregation AggregationConfig `yaml:"aggregation" mapstructure:"aggregation"`
	Metrics     MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	Upload      UploadConfig      `yaml:"upload,omitempty" mapstructure:"upload"`
	Store       StoreConfig       `yaml:"store,omitempty" mapstructure:"store"`
	API         APIConfig         `yaml:"api,omitempty" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// ResultsOwner is an optional "UID:GID" applied to written files.
	ResultsOwner string `yaml:"results_owner,omitempty" mapstructure:"results_owner"`
}

// ScenarioConfig describes one batch of simulation runs.
type ScenarioConfig struct {
	Name  string `yaml:"name" mapstructure:"name"`
	Title string `yaml:"title,omitempty" mapstructure:"title"`
	// RunsDir holds one sub-directory per run.
	RunsDir       string          `yaml:"runs_dir" mapstructure:"runs_dir"`
	LogName       string          `yaml:"log_name,omitempty" mapstructure:"log_name"`
	LogPattern    string          `yaml:"log_pattern,omitempty" mapstructure:"log_pattern"`
	TimingName    string          `yaml:"timing_name,omitempty" mapstructure:"timing_name"`
	ResultPattern string          `yaml:"result_pattern,omitempty" mapstructure:"result_pattern"`
	Scheduler     SchedulerConfig `yaml:"scheduler,omitempty" mapstructure:"scheduler"`

	TotalSimulations int    `yaml:"total_simulations,omitempty" mapstructure:"total_simulations"`
	StartDate        string `yaml:"start_date,omitempty" mapstructure:"start_date"`
	CompletionDate   string `yaml:"completion_date,omitempty" mapstructure:"completion_date"`
}

// SchedulerConfig locates the cluster scheduler's per-job logs.
type SchedulerConfig struct {
	LogDir     string `yaml:"log_dir,omitempty" mapstructure:"log_dir"`
	Pattern    string `yaml:"pattern,omitempty" mapstructure:"pattern"`
	StdoutDir  string `yaml:"stdout_dir,omitempty" mapstructure:"stdout_dir"`
	StdoutName string `yaml:"stdout_name,omitempty" mapstructure:"stdout_name"`
}

// AggregationConfig controls aggregation passes.
type AggregationConfig struct {
	Parallel      bool          `yaml:"parallel" mapstructure:"parallel"`
	Workers       int           `yaml:"workers,omitempty" mapstructure:"workers"`
	RunTimeout    time.Duration `yaml:"run_timeout,omitempty" mapstructure:"run_timeout"`
	TailLines     int           `yaml:"tail_lines,omitempty" mapstructure:"tail_lines"`
	SUMultiplier  int           `yaml:"su_multiplier,omitempty" mapstructure:"su_multiplier"`
	WatchInterval time.Duration `yaml:"watch_interval,omitempty" mapstructure:"watch_interval"`
}

// MetricsConfig controls result file extraction.
type MetricsConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	ReadWind       bool    `yaml:"read_wind" mapstructure:"read_wind"`
	BoundaryFilter bool    `yaml:"boundary_filter" mapstructure:"boundary_filter"`
	BoundaryBuffer float64 `yaml:"boundary_buffer,omitempty" mapstructure:"boundary_buffer"`
	Domain         string  `yaml:"domain,omitempty" mapstructure:"domain"`
}

// OutputConfig controls where outputs are written.
type OutputConfig struct {
	Dir               string `yaml:"dir" mapstructure:"dir"`
	SummaryName       string `yaml:"summary_name,omitempty" mapstructure:"summary_name"`
	BasicSummaryName  string `yaml:"basic_summary_name,omitempty" mapstructure:"basic_summary_name"`
	MergedSummaryName string `yaml:"merged_summary_name,omitempty" mapstructure:"merged_summary_name"`
	ReportsDir        string `yaml:"reports_dir,omitempty" mapstructure:"reports_dir"`
}

// UploadConfig contains remote storage settings.
type UploadConfig struct {
	S3 *S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig configures uploads to S3-compatible storage.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

// StoreConfig enables persisting pass results to a database.
type StoreConfig struct {
	Enabled  bool           `yaml:"enabled" mapstructure:"enabled"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// viperDefaults are registered before files are merged so that booleans
// defaulting to true survive absent keys and every key is known to the
// environment binding.
var viperDefaults = map[string]any{
	"global.log_level":        DefaultLogLevel,
	"aggregation.parallel":    true,
	"metrics.enabled":         true,
	"metrics.boundary_filter": true,
	"metrics.boundary_buffer": DefaultBoundaryBuffer,
	"output.dir":              DefaultOutputDir,
	"store.database.driver":   DriverSQLite,
	"api.server.listen":       DefaultAPIListen,
	"api.auth.anonymous_read": true,
}

// Load reads the configuration files in order, later files overriding
// earlier ones, then applies RUNQC_* environment overrides and defaults.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, value := range viperDefaults {
		v.SetDefault(key, value)
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		// Validate the YAML up front for a readable error location.
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}

		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("merging config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvs(v, reflect.TypeOf(Config{}), "")

	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// bindEnvs registers an environment binding for every leaf key reachable
// through struct fields. Slice elements cannot be overridden.
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		tag, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if tag == "" || tag == "-" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		ft := field.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}

		if ft.Kind() == reflect.Struct && ft != reflect.TypeOf(time.Time{}) {
			bindEnvs(v, ft, key)

			continue
		}

		if ft.Kind() == reflect.Slice && ft.Elem().Kind() == reflect.Struct {
			continue
		}

		_ = v.BindEnv(key)
	}
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	for i := range c.Scenarios {
		c.Scenarios[i].applyDefaults()
	}

	if c.Aggregation.TailLines <= 0 {
		c.Aggregation.TailLines = DefaultTailLines
	}

	if c.Aggregation.SUMultiplier <= 0 {
		c.Aggregation.SUMultiplier = DefaultSUMultiplier
	}

	if c.Aggregation.WatchInterval <= 0 {
		c.Aggregation.WatchInterval = DefaultWatchInterval
	}

	if c.Metrics.BoundaryBuffer <= 0 {
		c.Metrics.BoundaryBuffer = DefaultBoundaryBuffer
	}

	if c.Output.Dir == "" {
		c.Output.Dir = DefaultOutputDir
	}

	if c.Output.SummaryName == "" {
		c.Output.SummaryName = DefaultSummaryName
	}

	if c.Output.BasicSummaryName == "" {
		c.Output.BasicSummaryName = DefaultBasicSummaryName
	}

	if c.Output.MergedSummaryName == "" {
		c.Output.MergedSummaryName = DefaultMergedSummaryName
	}

	if c.Output.ReportsDir == "" {
		c.Output.ReportsDir = DefaultReportsDir
	}

	c.Store.Database.applyDefaults()
	c.API.applyDefaults()
}

func (s *ScenarioConfig) applyDefaults() {
	if s.LogName == "" {
		s.LogName = DefaultLogName
	}

	if s.TimingName == "" {
		s.TimingName = DefaultTimingName
	}

	if s.ResultPattern == "" {
		s.ResultPattern = DefaultResultPattern
	}

	if s.Scheduler.Pattern == "" {
		s.Scheduler.Pattern = DefaultSchedulerPattern
	}

	if s.Scheduler.StdoutName == "" {
		s.Scheduler.StdoutName = DefaultSchedulerStdoutName
	}

	if s.TotalSimulations <= 0 {
		s.TotalSimulations = DefaultTotalSimulations
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Global.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Global.LogLevel, err)
	}

	seen := make(map[string]struct{}, len(c.Scenarios))

	for i, s := range c.Scenarios {
		if s.Name == "" {
			return fmt.Errorf("scenarios[%d]: name is required", i)
		}

		if _, ok := seen[s.Name]; ok {
			return fmt.Errorf("scenarios[%d]: duplicate name %q", i, s.Name)
		}

		seen[s.Name] = struct{}{}

		if s.RunsDir == "" {
			return fmt.Errorf("scenario %q: runs_dir is required", s.Name)
		}

		if _, _, err := s.Schedule(); err != nil {
			return fmt.Errorf("scenario %q: %w", s.Name, err)
		}
	}

	if c.Aggregation.Workers < 0 {
		return errors.New("aggregation.workers must not be negative")
	}

	if c.Aggregation.RunTimeout < 0 {
		return errors.New("aggregation.run_timeout must not be negative")
	}

	if s3 := c.Upload.S3; s3 != nil && s3.Enabled && s3.Bucket == "" {
		return errors.New("upload.s3.bucket is required when s3 upload is enabled")
	}

	if c.Store.Enabled {
		if err := c.Store.Database.Validate(); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}

	return nil
}

// Scenario returns the scenario with the given name.
func (c *Config) Scenario(name string) (*ScenarioConfig, error) {
	for i := range c.Scenarios {
		if c.Scenarios[i].Name == name {
			return &c.Scenarios[i], nil
		}
	}

	return nil, fmt.Errorf("unknown scenario %q", name)
}

// Schedule parses the production window. Unset dates are zero.
func (s *ScenarioConfig) Schedule() (time.Time, time.Time, error) {
	var start, completion time.Time

	if s.StartDate != "" {
		t, err := time.Parse(DateLayout, s.StartDate)
		if err != nil {
			return start, completion, fmt.Errorf("invalid start_date: %w", err)
		}

		start = t
	}

	if s.CompletionDate != "" {
		t, err := time.Parse(DateLayout, s.CompletionDate)
		if err != nil {
			return start, completion, fmt.Errorf("invalid completion_date: %w", err)
		}

		completion = t
	}

	return start, completion, nil
}

// OutputPath expands a name template for a scenario inside the output dir.
func (c *Config) OutputPath(tmpl, scenario string) string {
	return strings.TrimRight(c.Output.Dir, "/") + "/" +
		strings.ReplaceAll(tmpl, ScenarioPlaceholder, scenario)
}

// SummaryPath returns the full summary path of a scenario.
func (c *Config) SummaryPath(scenario string) string {
	return c.OutputPath(c.Output.SummaryName, scenario)
}

// BasicSummaryPath returns the log-only summary path of a scenario.
func (c *Config) BasicSummaryPath(scenario string) string {
	return c.OutputPath(c.Output.BasicSummaryName, scenario)
}

// MergedSummaryPath returns the merge-summary output path of a scenario.
func (c *Config) MergedSummaryPath(scenario string) string {
	return c.OutputPath(c.Output.MergedSummaryName, scenario)
}

// ReportsPath returns the report directory of a scenario.
func (c *Config) ReportsPath(scenario string) string {
	return c.OutputPath(c.Output.ReportsDir, scenario) + "/" + scenario
}
