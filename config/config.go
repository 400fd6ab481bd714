// Package config - Evaluation run configuration from defaults, an optional YAML file,
// FID_* environment variables and command-line flags, in increasing precedence.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FID_RESULTS_DIR.
const EnvPrefix = "FID"

// Config captures the knobs of an evaluation run.
type Config struct {
	// GPU is the CUDA device index; negative runs on the CPU.
	GPU int `mapstructure:"gpu"`
	// ResultsDir holds gen_imgs/iter<N>.npy and receives the score table.
	ResultsDir string `mapstructure:"results_dir"`

	Model     ModelConfig     `mapstructure:"model"`
	Reference ReferenceConfig `mapstructure:"reference"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Log       LogConfig       `mapstructure:"log"`
	Profile   ProfileConfig   `mapstructure:"profile"`
}

// ModelConfig locates the frozen network.
type ModelConfig struct {
	Path              string `mapstructure:"path"`
	Input             string `mapstructure:"input"`
	EmbeddingOutput   string `mapstructure:"embedding_output"`
	ProbabilityOutput string `mapstructure:"probability_output"`
	LogitsOutput      string `mapstructure:"logits_output"`
	// Head is a .npy logits weights file used when the graph exposes only embeddings.
	Head string `mapstructure:"head"`
	// SharedLibrary overrides the onnxruntime library path.
	SharedLibrary string `mapstructure:"shared_library"`
	// ResizeTo resizes every image to ResizeTo x ResizeTo before inference; 0 keeps the size.
	ResizeTo int `mapstructure:"resize_to"`
}

// ReferenceConfig locates the reference population.
type ReferenceConfig struct {
	// Dataset is a CIFAR-10 binary directory or a .npy image array.
	Dataset string `mapstructure:"dataset"`
	// Cache is a directory holding mu.npy and sigma.npy; used instead of Dataset when present.
	Cache string `mapstructure:"cache"`
}

// ScheduleConfig selects the checkpoints to evaluate.
type ScheduleConfig struct {
	Start int `mapstructure:"start"`
	End   int `mapstructure:"end"`
	Step  int `mapstructure:"step"`
	// Scan evaluates every iter<N>.npy found instead of the schedule.
	Scan bool `mapstructure:"scan"`
}

// ScoringConfig holds the metric parameters.
type ScoringConfig struct {
	Splits       int     `mapstructure:"splits"`
	ChunkSize    int     `mapstructure:"chunk_size"`
	EmbeddingDim int     `mapstructure:"embedding_dim"`
	Eps          float64 `mapstructure:"eps"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// ProfileConfig configures the runtime profiler.
type ProfileConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	// StatsdAddr forwards profiler reports to a statsd agent when set.
	StatsdAddr string `mapstructure:"statsd_addr"`
}

var defaults = map[string]interface{}{
	"gpu":                      0,
	"results_dir":              "./results/gans",
	"model.path":               "./models/inception_v3.onnx",
	"model.input":              "",
	"model.embedding_output":   "pool_3",
	"model.probability_output": "softmax",
	"model.logits_output":      "",
	"model.head":               "",
	"model.shared_library":     "",
	"model.resize_to":          0,
	"reference.dataset":        "./data/cifar-10-batches-bin",
	"reference.cache":          "",
	"schedule.start":           1000,
	"schedule.end":             50000,
	"schedule.step":            1000,
	"schedule.scan":            false,
	"scoring.splits":           10,
	"scoring.chunk_size":       100,
	"scoring.embedding_dim":    2048,
	"scoring.eps":              1e-6,
	"log.level":                "INFO",
	"log.json":                 false,
	"profile.enabled":          false,
	"profile.interval":         "30s",
	"profile.statsd_addr":      "",
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"gpu":             "gpu",
	"results_dir":     "results_dir",
	"model":           "model.path",
	"head":            "model.head",
	"onnxruntime":     "model.shared_library",
	"resize":          "model.resize_to",
	"reference":       "reference.dataset",
	"reference_cache": "reference.cache",
	"scan":            "schedule.scan",
	"splits":          "scoring.splits",
	"log_level":       "log.level",
	"profile":         "profile.enabled",
	"statsd":          "profile.statsd_addr",
}

// NewFlagSet declares the command-line flags.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "optional YAML configuration file")
	fs.Int("gpu", 0, "index of gpu to be used, negative for cpu")
	fs.String("results_dir", "./results/gans", "directory to save the results to")
	fs.String("model", "./models/inception_v3.onnx", "ONNX classification model")
	fs.String("head", "", "softmax weights (.npy) for models without a probability output")
	fs.String("onnxruntime", "", "onnxruntime shared library")
	fs.Int("resize", 0, "resize images to NxN before inference, 0 keeps the size")
	fs.String("reference", "./data/cifar-10-batches-bin", "reference dataset: CIFAR-10 binary directory or .npy array")
	fs.String("reference_cache", "", "directory with precomputed mu.npy and sigma.npy")
	fs.Bool("scan", false, "score every iter<N>.npy instead of the fixed schedule")
	fs.Int("splits", 10, "number of Inception Score splits")
	fs.String("log_level", "INFO", "DEBUG, INFO, WARN or ERROR")
	fs.Bool("profile", false, "emit runtime profiler reports")
	fs.String("statsd", "", "statsd agent address receiving profiler reports")
	return fs
}

// Load parses args and merges every configuration source.
//
// Arguments:
//   - fs: The flag set from NewFlagSet.
//   - args: The command-line arguments without the program name.
//
// Returns:
//   - *Config: The validated configuration.
//   - error: A flag, file, decoding or validation error.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "error reading config file %s", path)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errors.Wrapf(err, "error binding flag %s", name)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "error decoding configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	switch {
	case c.ResultsDir == "":
		return errors.New("results_dir is required")
	case c.Model.Path == "":
		return errors.New("model.path is required")
	case c.Model.EmbeddingOutput == "":
		return errors.New("model.embedding_output is required")
	case c.Model.ProbabilityOutput == "" && c.Model.LogitsOutput == "" && c.Model.Head == "":
		return errors.New("one of model.probability_output, model.logits_output or model.head is required")
	case c.Model.ResizeTo < 0:
		return errors.Errorf("model.resize_to must not be negative, got %d", c.Model.ResizeTo)
	case c.Reference.Dataset == "" && c.Reference.Cache == "":
		return errors.New("reference.dataset or reference.cache is required")
	case !c.Schedule.Scan && (c.Schedule.Step <= 0 || c.Schedule.End < c.Schedule.Start):
		return errors.Errorf("invalid schedule %d..%d step %d", c.Schedule.Start, c.Schedule.End, c.Schedule.Step)
	case c.Scoring.Splits < 1:
		return errors.Errorf("scoring.splits must be at least 1, got %d", c.Scoring.Splits)
	case c.Scoring.ChunkSize < 1:
		return errors.Errorf("scoring.chunk_size must be at least 1, got %d", c.Scoring.ChunkSize)
	case c.Scoring.EmbeddingDim < 1:
		return errors.Errorf("scoring.embedding_dim must be at least 1, got %d", c.Scoring.EmbeddingDim)
	case c.Scoring.Eps <= 0:
		return errors.Errorf("scoring.eps must be positive, got %g", c.Scoring.Eps)
	}
	return nil
}
