// Package anomaly flags expenses whose amount is unusual relative to the
// owner's own history in the same category.
package anomaly

import (
	"errors"
	"fmt"

	"penny/internal/core"
)

// Method names which rule produced a decision.
type Method string

const (
	MethodNoHistory   Method = "no_history"
	MethodBootstrap   Method = "bootstrap_median"
	MethodStatistical Method = "mean_stddev"
	MethodConstant    Method = "constant_history"
)

// Config holds the detector thresholds.
type Config struct {
	// MinSamples is the number of prior same-category expenses needed before
	// the statistical rule applies.
	MinSamples int
	// Sensitivity is k in amount > mean + k*stddev.
	Sensitivity float64
	// BootstrapMultiplier scales the median of all prior expenses while the
	// category is still below MinSamples.
	BootstrapMultiplier float64
	// BootstrapCeiling is the fixed limit used when there is no history at all.
	BootstrapCeiling core.Money
}

func DefaultConfig() Config {
	return Config{
		MinSamples:          3,
		Sensitivity:         2.5,
		BootstrapMultiplier: 10,
		BootstrapCeiling:    core.Money{Cents: 10_000_000},
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.MinSamples < 2 {
		errs = append(errs, fmt.Errorf("min samples must be at least 2, got %d", c.MinSamples))
	}
	if c.Sensitivity <= 0 {
		errs = append(errs, fmt.Errorf("sensitivity must be positive, got %g", c.Sensitivity))
	}
	if c.BootstrapMultiplier <= 1 {
		errs = append(errs, fmt.Errorf("bootstrap multiplier must be greater than 1, got %g", c.BootstrapMultiplier))
	}
	if c.BootstrapCeiling.Cents <= 0 {
		errs = append(errs, errors.New("bootstrap ceiling must be positive"))
	}
	return errors.Join(errs...)
}

// History is the amounts recorded strictly before a candidate expense.
type History struct {
	// Category holds prior amounts in the candidate's category.
	Category []core.Money
	// All holds prior amounts across every category.
	All []core.Money
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Anomalous bool
	Method    Method
	// Threshold is the amount above which the candidate would be flagged.
	// It is zero for MethodConstant.
	Threshold float64
}

// Detector is stateless and safe for concurrent use.
type Detector struct {
	cfg Config
}

func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("anomaly config: %w", err)
	}
	return &Detector{cfg: cfg}, nil
}

// IsAnomaly reports whether amount is unusual given h.
func (d *Detector) IsAnomaly(amount core.Money, h History) bool {
	return d.Evaluate(amount, h).Anomalous
}

// Evaluate applies the bootstrap rule while the category has fewer than
// MinSamples prior expenses, and the mean plus k standard deviations rule
// afterwards.
func (d *Detector) Evaluate(amount core.Money, h History) Decision {
	x := float64(amount.Cents)

	if len(h.Category) < d.cfg.MinSamples {
		if len(h.All) == 0 {
			limit := float64(d.cfg.BootstrapCeiling.Cents)
			return Decision{Anomalous: x > limit, Method: MethodNoHistory, Threshold: limit / 100}
		}
		limit := d.cfg.BootstrapMultiplier * median(centsOf(h.All))
		return Decision{Anomalous: x > limit, Method: MethodBootstrap, Threshold: limit / 100}
	}

	samples := centsOf(h.Category)
	mu := mean(samples)
	sigma := sampleStdDev(samples, mu)
	if sigma == 0 {
		return Decision{Anomalous: amount.Cents != h.Category[0].Cents, Method: MethodConstant}
	}
	limit := mu + d.cfg.Sensitivity*sigma
	return Decision{Anomalous: x > limit, Method: MethodStatistical, Threshold: limit / 100}
}

func centsOf(ms []core.Money) []float64 {
	out := make([]float64, len(ms))
	for i, m := range ms {
		out[i] = float64(m.Cents)
	}
	return out
}
