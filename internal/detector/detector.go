package detector

import (
	"errors"
	"fmt"

	"github.com/cipherlens/cipherlens/internal/logging"
)

// Analysis is the combined result of feature extraction and scoring.
type Analysis struct {
	URL      string   `json:"url"`
	Features Features `json:"features"`
	Verdict  *Verdict `json:"verdict"`
}

// Explanation bundles everything the Explainer produces for one request.
type Explanation struct {
	Explainer          string              `json:"explainer"`
	Items              []ExplanationItem   `json:"explanations"`
	Visualization      string              `json:"visualization"`
	SuspiciousElements []SuspiciousElement `json:"suspiciousElements,omitempty"`
}

// Detector wires the Extractor, Scorer and Explainer over one shared Tables
// value. It is safe for concurrent use.
type Detector struct {
	extractor *Extractor
	scorer    *Scorer
	explainer *Explainer
	logger    logging.Logger
}

// Option customises New.
type Option func(*options)

type options struct {
	tables     *Tables
	reputation DomainReputation
}

// WithTables replaces the built-in tables.
func WithTables(t *Tables) Option {
	return func(o *options) { o.tables = t }
}

// WithReputation replaces the hash-based domain reputation proxy.
func WithReputation(r DomainReputation) Option {
	return func(o *options) { o.reputation = r }
}

// New builds a Detector. It requires a non-nil logger.
func New(logger logging.Logger, opts ...Option) (*Detector, error) {
	if logger == nil {
		return nil, errors.New("detector: nil logger")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.tables == nil {
		o.tables = DefaultTables()
	}
	return &Detector{
		extractor: NewExtractor(o.tables, o.reputation),
		scorer:    NewScorer(o.tables),
		explainer: NewExplainer(o.tables),
		logger:    logger.With(logging.Field{Key: "component", Value: "detector"}),
	}, nil
}

func (d *Detector) Extractor() *Extractor { return d.extractor }
func (d *Detector) Scorer() *Scorer       { return d.scorer }
func (d *Detector) Explainer() *Explainer { return d.explainer }

// Features extracts URL features and, when page is non-empty, merges the
// content features over them.
func (d *Detector) Features(rawURL, page string) Features {
	f := Features{}
	if rawURL != "" {
		f = d.extractor.ExtractFromURL(rawURL)
	}
	if page != "" {
		f = f.Merge(d.extractor.ExtractFromContent(page))
	}
	return f
}

// Analyze extracts features from rawURL and the optional page and scores them.
func (d *Detector) Analyze(rawURL, page string) (*Analysis, error) {
	features := d.Features(rawURL, page)
	d.logger.Debug("features extracted",
		logging.Field{Key: "url", Value: rawURL},
		logging.Field{Key: "count", Value: len(features)},
		logging.Field{Key: "has_content", Value: page != ""})

	verdict, err := d.scorer.Predict(features)
	if err != nil {
		return nil, fmt.Errorf("predict %q: %w", rawURL, err)
	}
	return &Analysis{URL: rawURL, Features: features, Verdict: verdict}, nil
}

// Explain attributes features and, when page is non-empty, points at the
// suspicious elements of the page.
func (d *Detector) Explain(features Features, explainerType, page string) *Explanation {
	items := d.explainer.ExplainPrediction(features, explainerType)
	exp := &Explanation{
		Explainer:     NormalizeExplainerType(explainerType),
		Items:         items,
		Visualization: d.explainer.GenerateVisualization(items),
	}
	if page != "" {
		exp.SuspiciousElements = d.explainer.IdentifySuspiciousElements(page, items)
	}
	return exp
}
