// Package momentum scores early trading activity for entry decisions.
// The evaluator is a pure function of the activity sample; it holds no
// shared state.
package momentum

import (
	"fmt"

	"pump-sniper/internal/config"
	"pump-sniper/internal/domain"
)

// Rejection reasons returned when a sample does not signal entry.
const (
	ReasonNegativeMomentum = "negative momentum"
	ReasonLowVolume        = "early volume below floor"
	ReasonLowScore         = "momentum score below threshold"
)

// Result is the outcome of evaluating one activity sample.
type Result struct {
	Enter  bool
	Reason string // set when Enter is false

	Score        float64 // weighted composite in [0,1]
	VolumeScore  float64
	PriceScore   float64
	RatioScore   float64
	BuyersScore  float64
	SizeFraction float64 // sizing hint in (0,1]: share of max position to commit
}

// Evaluator computes weighted momentum scores.
type Evaluator struct {
	cfg config.MomentumConfig
}

// New creates an evaluator from validated configuration.
func New(cfg config.MomentumConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate scores a sample. Entry is signaled iff the weighted score meets
// the configured threshold (inclusive), volume clears the absolute floor,
// and the early price trend is non-negative. A negative trend is an
// unconditional veto regardless of score.
func (e *Evaluator) Evaluate(sample domain.ActivitySample) Result {
	c := e.cfg

	r := Result{
		VolumeScore: normalize(sample.VolumeSOL, c.MinVolumeSOL),
		PriceScore:  normalize(sample.PriceChangePct, c.MinPricePct),
		RatioScore:  normalize(sample.BuySellRatio(), c.MinRatio),
		BuyersScore: normalize(float64(sample.UniqueBuyers), float64(c.MinBuyers)),
	}

	totalWeight := c.VolumeWeight + c.PriceWeight + c.RatioWeight + c.BuyersWeight
	r.Score = (c.VolumeWeight*r.VolumeScore +
		c.PriceWeight*r.PriceScore +
		c.RatioWeight*r.RatioScore +
		c.BuyersWeight*r.BuyersScore) / totalWeight

	switch {
	case sample.PriceChangePct < 0:
		r.Reason = ReasonNegativeMomentum
	case sample.VolumeSOL < c.VolumeFloorOK:
		r.Reason = fmt.Sprintf("%s (%.2f SOL)", ReasonLowVolume, sample.VolumeSOL)
	case r.Score < c.EntryScore:
		r.Reason = fmt.Sprintf("%s (%.2f < %.2f)", ReasonLowScore, r.Score, c.EntryScore)
	default:
		r.Enter = true
		r.SizeFraction = sizeFraction(r.Score, c.EntryScore)
	}

	return r
}

// normalize maps a raw value onto [0,1] against its configured minimum:
// the minimum itself scores 0.5, double the minimum or more scores 1.
func normalize(value, minimum float64) float64 {
	if value <= 0 {
		return 0
	}
	score := value / (2 * minimum)
	if score > 1 {
		return 1
	}
	return score
}

// sizeFraction scales position size with score headroom above the entry
// threshold: a bare pass commits half the configured maximum, a perfect
// score commits all of it.
func sizeFraction(score, threshold float64) float64 {
	if threshold >= 1 {
		return 1
	}
	return 0.5 + 0.5*(score-threshold)/(1-threshold)
}
