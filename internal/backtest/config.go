package backtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/yourusername/factor-backtest/internal/config"
	"github.com/yourusername/factor-backtest/internal/models"
	"github.com/yourusername/factor-backtest/internal/ranking"
)

// Defaults applied to API requests that omit a field.
const (
	DefaultStrategyName   = "custom"
	DefaultTopN           = 10
	DefaultInitialCapital = 1000000.0
)

// RunConfig is the complete set of options a simulation run recognizes.
// Zero StartDate/EndDate mean the first/last trading day of the dataset.
type RunConfig struct {
	StrategyName   string
	StartDate      time.Time
	EndDate        time.Time
	TopN           int
	InitialCapital float64
	Indicators     []string
	Weights        []float64
	Filters        map[string]ranking.Filter
}

// runConfigJSON is the wire form of RunConfig with YYYY-MM-DD dates.
type runConfigJSON struct {
	StrategyName   string                    `json:"strategy_name"`
	StartDate      string                    `json:"start_date,omitempty"`
	EndDate        string                    `json:"end_date,omitempty"`
	TopN           int                       `json:"top_n"`
	InitialCapital float64                   `json:"initial_capital"`
	Indicators     []string                  `json:"indicators"`
	Weights        []float64                 `json:"weights"`
	Filters        map[string]ranking.Filter `json:"filters,omitempty"`
}

// FromConfig converts the YAML strategy section to a run config
func FromConfig(cfg *config.StrategyConfig) (RunConfig, error) {
	if cfg == nil {
		return RunConfig{}, fmt.Errorf("strategy config is required")
	}
	start, err := models.ParseOptionalDate(cfg.StartDate)
	if err != nil {
		return RunConfig{}, fmt.Errorf("invalid start date: %w", err)
	}
	end, err := models.ParseOptionalDate(cfg.EndDate)
	if err != nil {
		return RunConfig{}, fmt.Errorf("invalid end date: %w", err)
	}

	filters := make(map[string]ranking.Filter, len(cfg.Filters))
	for field, spec := range cfg.Filters {
		f, err := ranking.ParseFilter(spec)
		if err != nil {
			return RunConfig{}, fmt.Errorf("filter %s: %w", field, err)
		}
		filters[field] = f
	}

	rc := RunConfig{
		StrategyName:   cfg.Name,
		StartDate:      start,
		EndDate:        end,
		TopN:           cfg.TopN,
		InitialCapital: cfg.InitialCapital,
		Indicators:     append([]string(nil), cfg.Indicators...),
		Weights:        append([]float64(nil), cfg.Weights...),
		Filters:        filters,
	}
	return rc, rc.Validate()
}

// SweepBase converts the YAML sweep section into the base config that
// SweepConfigs specializes per factor. Zero fields fall back to the API
// defaults. The result has no indicators and is not valid on its own.
func SweepBase(cfg *config.SweepConfig) (RunConfig, error) {
	base := RunConfig{TopN: DefaultTopN, InitialCapital: DefaultInitialCapital}
	if cfg == nil {
		return base, nil
	}
	if cfg.TopN > 0 {
		base.TopN = cfg.TopN
	}
	if cfg.InitialCapital > 0 {
		base.InitialCapital = cfg.InitialCapital
	}
	var err error
	if base.StartDate, err = models.ParseOptionalDate(cfg.StartDate); err != nil {
		return RunConfig{}, fmt.Errorf("invalid sweep start date: %w", err)
	}
	if base.EndDate, err = models.ParseOptionalDate(cfg.EndDate); err != nil {
		return RunConfig{}, fmt.Errorf("invalid sweep end date: %w", err)
	}
	return base, nil
}

// DecodeRunConfig parses a JSON run request. Unknown keys are rejected.
func DecodeRunConfig(data []byte) (RunConfig, error) {
	wire := runConfigJSON{
		StrategyName:   DefaultStrategyName,
		TopN:           DefaultTopN,
		InitialCapital: DefaultInitialCapital,
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		return RunConfig{}, fmt.Errorf("%w: %v", models.ErrInvalidConfig, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return RunConfig{}, fmt.Errorf("%w: trailing data after run config", models.ErrInvalidConfig)
	}

	start, err := models.ParseOptionalDate(wire.StartDate)
	if err != nil {
		return RunConfig{}, err
	}
	end, err := models.ParseOptionalDate(wire.EndDate)
	if err != nil {
		return RunConfig{}, err
	}

	rc := RunConfig{
		StrategyName:   wire.StrategyName,
		StartDate:      start,
		EndDate:        end,
		TopN:           wire.TopN,
		InitialCapital: wire.InitialCapital,
		Indicators:     wire.Indicators,
		Weights:        wire.Weights,
		Filters:        wire.Filters,
	}
	return rc, rc.Validate()
}

// MarshalJSON writes the wire form used by DecodeRunConfig.
func (c RunConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(runConfigJSON{
		StrategyName:   c.StrategyName,
		StartDate:      models.FormatDate(c.StartDate),
		EndDate:        models.FormatDate(c.EndDate),
		TopN:           c.TopN,
		InitialCapital: c.InitialCapital,
		Indicators:     c.Indicators,
		Weights:        c.Weights,
		Filters:        c.Filters,
	})
}

// Validate validates run config parameters
func (c RunConfig) Validate() error {
	if c.TopN <= 0 {
		return fmt.Errorf("%w: top_n must be positive", models.ErrInvalidConfig)
	}
	if c.InitialCapital <= 0 || math.IsNaN(c.InitialCapital) || math.IsInf(c.InitialCapital, 0) {
		return fmt.Errorf("%w: initial_capital must be positive", models.ErrInvalidConfig)
	}
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && c.StartDate.After(c.EndDate) {
		return fmt.Errorf("%w: start_date must not be after end_date", models.ErrInvalidConfig)
	}
	return c.Criteria().Validate(nil)
}

// Criteria returns the ranking criteria this run selects with.
func (c RunConfig) Criteria() ranking.Criteria {
	return ranking.Criteria{
		Start:      c.StartDate,
		End:        c.EndDate,
		Indicators: c.Indicators,
		Weights:    c.Weights,
		Filters:    c.Filters,
		TopN:       c.TopN,
	}
}

// Window returns a copy of the config restricted to [start, end].
func (c RunConfig) Window(start, end time.Time) RunConfig {
	out := c
	out.StartDate = start
	out.EndDate = end
	return out
}
