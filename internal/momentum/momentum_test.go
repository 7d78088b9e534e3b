package momentum

import (
	"strings"
	"testing"

	"pump-sniper/internal/config"
	"pump-sniper/internal/domain"
)

func testConfig() config.MomentumConfig {
	return config.MomentumConfig{
		VolumeWeight:  0.35,
		PriceWeight:   0.30,
		RatioWeight:   0.15,
		BuyersWeight:  0.20,
		MinVolumeSOL:  2.0,
		MinPricePct:   10.0,
		MinRatio:      2.0,
		MinBuyers:     5,
		EntryScore:    0.60,
		VolumeFloorOK: 0.5,
	}
}

func strongSample() domain.ActivitySample {
	return domain.ActivitySample{
		BuyCount:       30,
		SellCount:      3,
		UniqueBuyers:   15,
		VolumeSOL:      8.0,
		PriceChangePct: 35.0,
	}
}

func TestEvaluate_StrongActivityEnters(t *testing.T) {
	r := New(testConfig()).Evaluate(strongSample())

	if !r.Enter {
		t.Fatalf("strong sample rejected: %s (score %.2f)", r.Reason, r.Score)
	}
	if r.Score < 0.9 {
		t.Errorf("expected near-perfect score, got %.2f", r.Score)
	}
	if r.SizeFraction <= 0 || r.SizeFraction > 1 {
		t.Errorf("size fraction out of range: %v", r.SizeFraction)
	}
}

func TestEvaluate_NegativeTrendVetoesRegardlessOfScore(t *testing.T) {
	sample := strongSample()
	sample.PriceChangePct = -1.0

	r := New(testConfig()).Evaluate(sample)
	if r.Enter {
		t.Fatal("negative early trend must veto entry")
	}
	if r.Reason != ReasonNegativeMomentum {
		t.Errorf("reason = %q, want %q", r.Reason, ReasonNegativeMomentum)
	}
}

func TestEvaluate_VolumeFloorVetoes(t *testing.T) {
	sample := strongSample()
	sample.VolumeSOL = 0.2

	r := New(testConfig()).Evaluate(sample)
	if r.Enter {
		t.Fatal("volume below absolute floor must veto entry")
	}
	if !strings.Contains(r.Reason, ReasonLowVolume) {
		t.Errorf("reason = %q, want volume floor rejection", r.Reason)
	}
}

func TestEvaluate_ThresholdIsInclusive(t *testing.T) {
	// Every component at exactly its configured minimum normalizes to 0.5;
	// with a 0.5 threshold the composite sits exactly at the boundary and
	// must pass.
	cfg := testConfig()
	cfg.EntryScore = 0.5

	sample := domain.ActivitySample{
		BuyCount:       8,
		SellCount:      4, // ratio 2.0 = MinRatio
		UniqueBuyers:   5,
		VolumeSOL:      2.0,
		PriceChangePct: 10.0,
	}

	r := New(cfg).Evaluate(sample)
	if r.Score != 0.5 {
		t.Fatalf("expected boundary score 0.5, got %v", r.Score)
	}
	if !r.Enter {
		t.Error("score equal to the threshold must pass (inclusive)")
	}
}

func TestEvaluate_WeakActivityScoresBelowThreshold(t *testing.T) {
	sample := domain.ActivitySample{
		BuyCount:       2,
		SellCount:      3,
		UniqueBuyers:   2,
		VolumeSOL:      0.8,
		PriceChangePct: 1.0,
	}

	r := New(testConfig()).Evaluate(sample)
	if r.Enter {
		t.Fatalf("weak sample entered with score %.2f", r.Score)
	}
}

func TestEvaluate_ZeroActivityIsRejectedNotPanic(t *testing.T) {
	r := New(testConfig()).Evaluate(domain.ActivitySample{})
	if r.Enter {
		t.Error("empty sample must not signal entry")
	}
}
