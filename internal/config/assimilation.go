package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/firefront/internal/units"
)

// DefaultConfigPath is the path to the canonical assimilation defaults file.
const DefaultConfigPath = "config/assimilation.defaults.json"

// AssimilationConfig is the root configuration for an assimilation run.
// Every field is optional; the Get* accessors supply defaults for fields
// the JSON file leaves out, so partial configs are safe.
type AssimilationConfig struct {
	// State encoding
	VertexCount    *int  `json:"vertex_count,omitempty"`
	CarryWindState *bool `json:"carry_wind_state,omitempty"`

	// Ensemble
	EnsembleSize *int    `json:"ensemble_size,omitempty"`
	Workers      *int    `json:"workers,omitempty"`
	Seed         *uint64 `json:"seed,omitempty"`

	// Timing
	WindowDuration *string `json:"window_duration,omitempty"` // duration string like "30m"
	MemberTimeout  *string `json:"member_timeout,omitempty"`  // "0s" disables the per-member timeout

	// Noise (metres unless stated)
	ObservationSigma *float64 `json:"observation_sigma,omitempty"`
	PositionSigma    *float64 `json:"position_sigma,omitempty"`
	WindSigma        *float64 `json:"wind_sigma,omitempty"` // m/s, only used with carry_wind_state

	// Wind prior for per-member control draws
	WindSpeedMean      *float64 `json:"wind_speed_mean,omitempty"`
	WindSpeedSigma     *float64 `json:"wind_speed_sigma,omitempty"`
	WindDirectionMean  *float64 `json:"wind_direction_mean,omitempty"`
	WindDirectionSigma *float64 `json:"wind_direction_sigma,omitempty"`
	WindSpeedUnits     *string  `json:"wind_speed_units,omitempty"`

	// Numerics
	CovarianceFloor   *float64 `json:"covariance_floor,omitempty"`
	PinvTolerance     *float64 `json:"pinv_tolerance,omitempty"`
	IdentityTolerance *float64 `json:"identity_tolerance,omitempty"`

	// Metrics
	RMSVertices *int `json:"rms_vertices,omitempty"`
}

// EmptyAssimilationConfig returns an AssimilationConfig with all fields nil.
func EmptyAssimilationConfig() *AssimilationConfig {
	return &AssimilationConfig{}
}

// LoadAssimilationConfig loads an AssimilationConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadAssimilationConfig(path string) (*AssimilationConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAssimilationConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents up to the repo root.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *AssimilationConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/<pkg>/
		"../../../" + DefaultConfigPath, // from cmd/<tool>/ subdirs
	}
	for _, path := range candidates {
		if cfg, err := LoadAssimilationConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *AssimilationConfig) Validate() error {
	if c.VertexCount != nil && *c.VertexCount < 3 {
		return fmt.Errorf("vertex_count must be at least 3, got %d", *c.VertexCount)
	}
	if c.EnsembleSize != nil && *c.EnsembleSize < 2 {
		return fmt.Errorf("ensemble_size must be at least 2, got %d", *c.EnsembleSize)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	for name, v := range map[string]*string{
		"window_duration": c.WindowDuration,
		"member_timeout":  c.MemberTimeout,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, d)
		}
	}

	for name, v := range map[string]*float64{
		"observation_sigma":    c.ObservationSigma,
		"position_sigma":       c.PositionSigma,
		"wind_sigma":           c.WindSigma,
		"wind_speed_mean":      c.WindSpeedMean,
		"wind_speed_sigma":     c.WindSpeedSigma,
		"wind_direction_sigma": c.WindDirectionSigma,
		"covariance_floor":     c.CovarianceFloor,
		"pinv_tolerance":       c.PinvTolerance,
		"identity_tolerance":   c.IdentityTolerance,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}

	if c.WindSpeedUnits != nil {
		if _, err := units.ParseUnits(*c.WindSpeedUnits); err != nil {
			return err
		}
	}
	if c.RMSVertices != nil && *c.RMSVertices < 3 {
		return fmt.Errorf("rms_vertices must be at least 3, got %d", *c.RMSVertices)
	}

	return nil
}

// GetVertexCount returns the vertex_count value or the default.
func (c *AssimilationConfig) GetVertexCount() int {
	if c.VertexCount == nil {
		return 20
	}
	return *c.VertexCount
}

// GetCarryWindState returns the carry_wind_state value or the default.
func (c *AssimilationConfig) GetCarryWindState() bool {
	if c.CarryWindState == nil {
		return false
	}
	return *c.CarryWindState
}

// GetEnsembleSize returns the ensemble_size value or the default.
func (c *AssimilationConfig) GetEnsembleSize() int {
	if c.EnsembleSize == nil {
		return 50
	}
	return *c.EnsembleSize
}

// GetWorkers returns the workers value or the default (0 means one per CPU).
func (c *AssimilationConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetSeed returns the seed value or the default.
func (c *AssimilationConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

// GetWindowDuration parses and returns the WindowDuration as a time.Duration.
func (c *AssimilationConfig) GetWindowDuration() time.Duration {
	return parseDurationOr(c.WindowDuration, 30*time.Minute)
}

// GetMemberTimeout parses and returns the MemberTimeout. Zero disables it.
func (c *AssimilationConfig) GetMemberTimeout() time.Duration {
	return parseDurationOr(c.MemberTimeout, 0)
}

// GetObservationSigma returns the observation_sigma value or the default.
func (c *AssimilationConfig) GetObservationSigma() float64 {
	if c.ObservationSigma == nil {
		return 2.0
	}
	return *c.ObservationSigma
}

// GetPositionSigma returns the position_sigma value or the default.
func (c *AssimilationConfig) GetPositionSigma() float64 {
	if c.PositionSigma == nil {
		return 5.0
	}
	return *c.PositionSigma
}

// GetWindSigma returns the wind_sigma value or the default.
func (c *AssimilationConfig) GetWindSigma() float64 {
	if c.WindSigma == nil {
		return 1.0
	}
	return *c.WindSigma
}

// GetWindSpeedMean returns the wind_speed_mean in m/s.
func (c *AssimilationConfig) GetWindSpeedMean() float64 {
	if c.WindSpeedMean == nil {
		return 4.5
	}
	return units.ConvertToMPS(*c.WindSpeedMean, c.GetWindSpeedUnits())
}

// GetWindSpeedSigma returns the wind_speed_sigma in m/s.
func (c *AssimilationConfig) GetWindSpeedSigma() float64 {
	if c.WindSpeedSigma == nil {
		return 1.0
	}
	return units.ConvertToMPS(*c.WindSpeedSigma, c.GetWindSpeedUnits())
}

// GetWindDirectionMean returns the wind_direction_mean bearing in degrees.
func (c *AssimilationConfig) GetWindDirectionMean() float64 {
	if c.WindDirectionMean == nil {
		return 90
	}
	return units.WrapDegrees(*c.WindDirectionMean)
}

// GetWindDirectionSigma returns the wind_direction_sigma in degrees.
func (c *AssimilationConfig) GetWindDirectionSigma() float64 {
	if c.WindDirectionSigma == nil {
		return 10
	}
	return *c.WindDirectionSigma
}

// GetWindSpeedUnits returns the units wind speeds are configured in.
func (c *AssimilationConfig) GetWindSpeedUnits() string {
	if c.WindSpeedUnits == nil || *c.WindSpeedUnits == "" {
		return units.MPS
	}
	return *c.WindSpeedUnits
}

// GetCovarianceFloor returns the covariance_floor value or the default.
func (c *AssimilationConfig) GetCovarianceFloor() float64 {
	if c.CovarianceFloor == nil {
		return 1e-10
	}
	return *c.CovarianceFloor
}

// GetPinvTolerance returns the pinv_tolerance value or the default.
func (c *AssimilationConfig) GetPinvTolerance() float64 {
	if c.PinvTolerance == nil {
		return 1e-12
	}
	return *c.PinvTolerance
}

// GetIdentityTolerance returns the identity_tolerance value or the default.
func (c *AssimilationConfig) GetIdentityTolerance() float64 {
	if c.IdentityTolerance == nil {
		return 1e-6
	}
	return *c.IdentityTolerance
}

// GetRMSVertices returns the rms_vertices value or the default.
func (c *AssimilationConfig) GetRMSVertices() int {
	if c.RMSVertices == nil {
		return 100
	}
	return *c.RMSVertices
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}
