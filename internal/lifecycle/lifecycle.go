// Package lifecycle implements C13: per-artifact temporal signal
// computation (stability, removal cost, utility, vitality) and phase
// promotion, grounded on akashi's scoring-formula documentation style in
// internal/search/search.go (ReScore) — a pure weighted-sum function with
// named, capped contributions.
package lifecycle

import (
	"math"
	"sort"
	"time"

	"github.com/ashita-ai/ledgermind/internal/model"
)

// Scope classifies an artifact's removal-cost weighting (§4.13: "infra 0.5,
// system 0.3").
type Scope string

const (
	ScopeInfra  Scope = "infra"
	ScopeSystem Scope = "system"
	ScopeOther  Scope = "other"
)

// Signals is the set of inputs §4.13 needs beyond the artifact itself.
type Signals struct {
	FirstSeen          time.Time
	LastSeen           time.Time
	Frequency          int
	ReinforcementDates []time.Time
	ConsequenceCount   int
	UniqueContexts     int
	ExternalProvenance bool
	ObservationWindowDays float64
	Scope              Scope
}

// Computed holds every derived metric (§4.13).
type Computed struct {
	LifetimeDays         float64
	ReinforcementDensity float64
	Coverage             float64
	Stability            float64
	RemovalCost          float64
	Utility              float64
	Vitality             model.Vitality
	ConfidenceDelta      float64 // applied on top of the artifact's current confidence for vitality decay
	NewPhase             model.Phase
	NewConfidence        float64
}

// Compute derives every §4.13 signal and the resulting phase/confidence for
// one artifact.
func Compute(a model.Artifact, s Signals, now time.Time) Computed {
	var c Computed

	c.LifetimeDays = math.Max(0.01, s.LastSeen.Sub(s.FirstSeen).Hours()/24)
	c.ReinforcementDensity = float64(s.Frequency) / math.Max(c.LifetimeDays, 0.01)
	if s.ObservationWindowDays > 0 {
		c.Coverage = c.LifetimeDays / s.ObservationWindowDays
	}

	c.Stability = stability(s.ReinforcementDates, c.LifetimeDays)
	c.RemovalCost = removalCost(s)
	c.Utility = utility(s)
	c.Vitality, c.ConfidenceDelta = vitality(now, s.LastSeen)

	c.NewConfidence = clamp01(a.Confidence + c.ConfidenceDelta)

	c.NewPhase = promote(a, s, c)
	if a.Kind == model.ArtifactIntervention {
		c.NewPhase = model.PhaseEmergent
		c.RemovalCost = 0.8
		c.NewConfidence = 0.7
	}

	if c.NewPhase != model.PhasePattern || a.Phase != model.PhasePattern {
		calculated := 0.4*c.Utility + 0.3*c.RemovalCost + 0.3*c.Stability
		c.NewConfidence = clamp01(0.5*a.Confidence + 0.5*calculated)
	}

	return c
}

func stability(dates []time.Time, lifetimeDays float64) float64 {
	if len(dates) < 2 {
		return 0
	}
	if len(dates) == 2 {
		return 0.3
	}
	sorted := append([]time.Time(nil), dates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	intervals := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		intervals = append(intervals, sorted[i].Sub(sorted[i-1]).Hours()/24)
	}
	mean := 0.0
	for _, v := range intervals {
		mean += v
	}
	mean /= float64(len(intervals))

	variance := 0.0
	for _, v := range intervals {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(intervals))

	stab := 1 - variance/(lifetimeDays+1)
	if stab < 0 {
		return 0
	}
	return stab
}

func removalCost(s Signals) float64 {
	var cost float64
	switch s.Scope {
	case ScopeInfra:
		cost += 0.5
	case ScopeSystem:
		cost += 0.3
	}
	cost += math.Min(float64(s.ConsequenceCount)*0.05, 0.2)
	cost += math.Min(float64(s.UniqueContexts)*0.05, 0.3)
	if s.ExternalProvenance {
		cost += 0.4
	}
	return clamp01(cost)
}

// RemovalCostWithUsage folds in hit-count and confidence contributions that
// need the artifact itself rather than just Signals (§4.13: "usage
// (hit_count/100 cap 0.2), confidence*0.1").
func RemovalCostWithUsage(base float64, hitCount int, confidence float64) float64 {
	cost := base
	cost += math.Min(float64(hitCount)/100, 0.2)
	cost += confidence * 0.1
	return clamp01(cost)
}

func utility(s Signals) float64 {
	u := math.Min(float64(s.Frequency)/10, 0.4)
	u += math.Min(float64(s.UniqueContexts)/5, 0.3)
	if s.Scope == ScopeSystem || s.Scope == ScopeInfra {
		u += 0.2
	}
	if u > 1 {
		u = 1
	}
	return u
}

func vitality(now, lastSeen time.Time) (model.Vitality, float64) {
	days := now.Sub(lastSeen).Hours() / 24
	switch {
	case days < 7:
		return model.VitalityActive, 0
	case days < 30:
		return model.VitalityDecaying, -0.05
	default:
		return model.VitalityDormant, -0.2
	}
}

func promote(a model.Artifact, s Signals, c Computed) model.Phase {
	switch a.Phase {
	case model.PhasePattern:
		minLifetimeSatisfied := c.LifetimeDays >= 1 && s.Frequency >= 1
		if (s.Frequency >= 3 || c.RemovalCost >= 0.4 || (a.Confidence >= 0.5 && minLifetimeSatisfied)) {
			return model.PhaseEmergent
		}
		return model.PhasePattern
	case model.PhaseEmergent:
		if c.Coverage > 0.3 && c.Stability > 0.6 && c.RemovalCost > 0.5 && c.Vitality == model.VitalityActive {
			return model.PhaseCanonical
		}
		return model.PhaseEmergent
	default:
		return a.Phase
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
