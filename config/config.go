package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the environment variable prefix read by Load.
const EnvPrefix = "VOLSURF"

// Config holds solver tolerances, iteration caps and logging settings.
// Components receive a Config value explicitly; there is no package-level
// active configuration.
type Config struct {
	// RootTolerance is the absolute tolerance of the one-dimensional root
	// finders used by the surface converter.
	RootTolerance float64 `yaml:"root_tolerance" envconfig:"ROOT_TOLERANCE" validate:"gt=0,lt=1"`

	// MaxRootIterations caps Brent and bisection iterations.
	MaxRootIterations int `yaml:"max_root_iterations" envconfig:"MAX_ROOT_ITERATIONS" validate:"gte=10"`

	// BracketMaxAttempts caps the number of bracket expansions.
	BracketMaxAttempts int `yaml:"bracket_max_attempts" envconfig:"BRACKET_MAX_ATTEMPTS" validate:"gte=1"`

	// BracketGrowth is the geometric factor applied when a bracket is widened.
	BracketGrowth float64 `yaml:"bracket_growth" envconfig:"BRACKET_GROWTH" validate:"gt=0"`

	// LogMoneynessBound clips every log-moneyness / d1 search to [-bound, bound].
	LogMoneynessBound float64 `yaml:"log_moneyness_bound" envconfig:"LOG_MONEYNESS_BOUND" validate:"gt=0"`

	// DeltaCutoff is the distance from 0 and 1 below which a delta is not
	// looked up on the surface during delta/strike inversion.
	DeltaCutoff float64 `yaml:"delta_cutoff" envconfig:"DELTA_CUTOFF" validate:"gte=0,lt=0.5"`

	// ImpliedVolTolerance is the volatility step below which Black inversion stops.
	ImpliedVolTolerance float64 `yaml:"implied_vol_tolerance" envconfig:"IMPLIED_VOL_TOLERANCE" validate:"gt=0"`

	// ImpliedVolMaxIterations caps Newton steps of Black inversion.
	ImpliedVolMaxIterations int `yaml:"implied_vol_max_iterations" envconfig:"IMPLIED_VOL_MAX_ITERATIONS" validate:"gte=1"`

	// LMMaxIterations caps Levenberg-Marquardt iterations.
	LMMaxIterations int `yaml:"lm_max_iterations" envconfig:"LM_MAX_ITERATIONS" validate:"gte=1"`

	// LMTolerance is the relative chi-square improvement below which a
	// Levenberg-Marquardt solve is considered converged.
	LMTolerance float64 `yaml:"lm_tolerance" envconfig:"LM_TOLERANCE" validate:"gt=0"`

	// SABRBeta is the fixed CEV exponent of the default SABR smile interpolator.
	SABRBeta float64 `yaml:"sabr_beta" envconfig:"SABR_BETA" validate:"gte=0,lte=1"`

	// MinTime is the expiry below which the mixed log-normal local volatility
	// is evaluated through self-similar rescaling.
	MinTime float64 `yaml:"min_time" envconfig:"MIN_TIME" validate:"gt=0"`

	// Concurrency limits the number of smile fits run at once (0 means
	// one per expiry).
	Concurrency int `yaml:"concurrency" envconfig:"CONCURRENCY" validate:"gte=0"`

	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
}

// LoggingConfig configures the slog handler built by NewLogger.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
}

// DefaultConfig provides production-ready default values.
var DefaultConfig = Config{
	RootTolerance:           1e-12,
	MaxRootIterations:       200,
	BracketMaxAttempts:      50,
	BracketGrowth:           1.6,
	LogMoneynessBound:       100,
	DeltaCutoff:             1e-12,
	ImpliedVolTolerance:     1e-10,
	ImpliedVolMaxIterations: 50,
	LMMaxIterations:         200,
	LMTolerance:             1e-10,
	SABRBeta:                0.9,
	MinTime:                 1e-3,
	Concurrency:             0,
	Logging: LoggingConfig{
		Level:  "info",
		Format: "text",
	},
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its bounds.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Load starts from DefaultConfig, overlays the YAML file at path (skipped
// when path is empty) and then VOLSURF_* environment variables, and
// validates the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
