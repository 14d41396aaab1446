package detector

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ThreatLevel is the discrete risk tier of a verdict.
type ThreatLevel string

const (
	ThreatLow    ThreatLevel = "Low"
	ThreatMedium ThreatLevel = "Medium"
	ThreatHigh   ThreatLevel = "High"
)

const (
	// PhishingThreshold is the score a verdict must exceed to be phishing.
	PhishingThreshold = 0.45

	criticalAmplifier = 1.5
	squashSteepness   = 12.0
	squashCenter      = 0.4
	maxTopFeatures    = 5
)

// ErrInvalidFeatureValue is returned for a known feature holding NaN or ±Inf.
var ErrInvalidFeatureValue = errors.New("invalid feature value")

// FeatureError names the feature that failed validation.
type FeatureError struct {
	Feature string
	Value   float64
	Err     error
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("feature %q: %v (%v)", e.Feature, e.Err, e.Value)
}

func (e *FeatureError) Unwrap() error { return e.Err }

// Verdict is the outcome of a single prediction.
type Verdict struct {
	IsPhishing   bool        `json:"isPhishing"`
	Score        float64     `json:"score"`
	Confidence   float64     `json:"confidence"`
	ThreatLevel  ThreatLevel `json:"threatLevel"`
	Explanations []string    `json:"explanations"`
	TopFeatures  []string    `json:"topFeatures"`
}

// Scorer combines features into a verdict using a fixed weight table.
type Scorer struct {
	tables *Tables
}

func NewScorer(tables *Tables) *Scorer {
	if tables == nil {
		tables = DefaultTables()
	}
	return &Scorer{tables: tables}
}

type contribution struct {
	feature string
	value   float64
}

// Predict scores features. Unknown features carry no weight. The only error
// is a *FeatureError wrapping ErrInvalidFeatureValue.
func (s *Scorer) Predict(features Features) (*Verdict, error) {
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		weighted    float64
		totalWeight float64
		strong      int
		contribs    []contribution
	)
	for _, name := range names {
		weight, known := s.tables.Weights[name]
		if !known || weight <= 0 {
			continue
		}
		value := features[name]
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, &FeatureError{Feature: name, Value: value, Err: ErrInvalidFeatureValue}
		}

		c := value * weight
		if s.tables.Critical[name] && value > 0.5 {
			c *= criticalAmplifier
		}
		weighted += c
		totalWeight += weight
		if c > 0 {
			contribs = append(contribs, contribution{feature: name, value: c})
		}
		if value > 0.5 && weight > 0.7 {
			strong++
		}
	}

	raw := 0.0
	if totalWeight > 0 {
		raw = weighted / totalWeight
	}
	score := 1 / (1 + math.Exp(-squashSteepness*(raw-squashCenter)))
	if strong >= 3 {
		score = math.Min(score+0.1*float64(strong-2), 1)
	}

	// names were sorted, so equal contributions stay in name order
	sort.SliceStable(contribs, func(i, j int) bool {
		return contribs[i].value > contribs[j].value
	})
	if len(contribs) > maxTopFeatures {
		contribs = contribs[:maxTopFeatures]
	}

	v := &Verdict{
		Score:        score,
		Explanations: make([]string, 0, len(contribs)),
		TopFeatures:  make([]string, 0, len(contribs)),
	}
	v.IsPhishing, v.Confidence, v.ThreatLevel = ClassifyScore(score)
	for _, c := range contribs {
		v.TopFeatures = append(v.TopFeatures, c.feature)
		v.Explanations = append(v.Explanations, s.tables.Sentence(c.feature))
	}
	return v, nil
}

// ClassifyScore derives the phishing flag, the confidence and the threat tier
// from a final score.
func ClassifyScore(score float64) (bool, float64, ThreatLevel) {
	isPhishing := score > PhishingThreshold
	distance := math.Abs(score-0.5) * 2
	var confidence float64
	if isPhishing {
		confidence = math.Min(math.Max(distance, 0.6), 0.99)
	} else {
		confidence = math.Min(distance, 0.99)
	}
	return isPhishing, confidence, ThreatLevelFor(score)
}

// ThreatLevelFor maps a score onto Low (<0.25), Medium (<0.55) or High.
func ThreatLevelFor(score float64) ThreatLevel {
	switch {
	case score < 0.25:
		return ThreatLow
	case score < 0.55:
		return ThreatMedium
	default:
		return ThreatHigh
	}
}
