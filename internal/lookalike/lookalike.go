// Package lookalike compares a suspect hostname against a reference or a
// brand list to show how close a typosquat is.
package lookalike

import (
	"math"
	"net/url"
	"regexp"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/net/idna"

	"github.com/cipherlens/cipherlens/internal/detector"
)

// Chunk is one run of a character diff from reference to suspect.
type Chunk struct {
	Type    string `json:"type"` // "equal", "added" or "removed"
	Content string `json:"content"`
}

// Comparison describes how a suspect host differs from a reference host.
type Comparison struct {
	Suspect          string  `json:"suspect"`
	Reference        string  `json:"reference"`
	SuspectUnicode   string  `json:"suspectUnicode"`
	ReferenceUnicode string  `json:"referenceUnicode"`
	Distance         int     `json:"distance"`
	Threshold        int     `json:"threshold"`
	Similarity       float64 `json:"similarity"`
	Lookalike        bool    `json:"lookalike"`
	Chunks           []Chunk `json:"chunks"`
}

// BrandMatch is the brand closest to a hostname label.
type BrandMatch struct {
	Brand    string `json:"brand"`
	Label    string `json:"label"`
	Distance int    `json:"distance"`
}

var labelSplit = regexp.MustCompile(`[.-]`)

// Threshold is the largest edit distance still treated as a lookalike for a
// name of n characters: 1 up to 11, 2 up to 15, then 15% rounded up.
func Threshold(n int) int {
	switch {
	case n <= 11:
		return 1
	case n <= 15:
		return 2
	default:
		return int(math.Ceil(float64(n) * 0.15))
	}
}

// NormalizeHost accepts a bare host or a URL and returns the lower-case ASCII
// host without a leading "www.".
func NormalizeHost(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Hostname() != "" {
			s = u.Hostname()
		}
	}
	s = strings.ToLower(strings.TrimSuffix(s, "."))
	s = strings.TrimPrefix(s, "www.")
	if ascii, err := idna.Lookup.ToASCII(s); err == nil {
		s = ascii
	}
	return s
}

func displayHost(ascii string) string {
	if u, err := idna.Display.ToUnicode(ascii); err == nil {
		return u
	}
	return ascii
}

// Compare measures the suspect host against the reference host. Identical
// hosts are never lookalikes.
func Compare(suspect, reference string) *Comparison {
	s, r := NormalizeHost(suspect), NormalizeHost(reference)
	dist := fuzzy.LevenshteinDistance(s, r)
	threshold := Threshold(len(r))

	return &Comparison{
		Suspect:          s,
		Reference:        r,
		SuspectUnicode:   displayHost(s),
		ReferenceUnicode: displayHost(r),
		Distance:         dist,
		Threshold:        threshold,
		Similarity:       detector.PositionalSimilarity(s, r),
		Lookalike:        dist > 0 && dist <= threshold,
		Chunks:           diffChunks(r, s),
	}
}

func diffChunks(from, to string) []Chunk {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(from, to, false)

	chunks := make([]Chunk, 0, len(diffs))
	for _, d := range diffs {
		var chunkType string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			chunkType = "added"
		case diffmatchpatch.DiffDelete:
			chunkType = "removed"
		default:
			chunkType = "equal"
		}
		chunks = append(chunks, Chunk{Type: chunkType, Content: d.Text})
	}
	return chunks
}

// ClosestBrand finds the brand nearest to any label of host. Exact label
// matches win with distance 0; otherwise the match must be within Threshold
// of the brand length. Ties keep the earlier brand.
func ClosestBrand(host string, brands []string) (BrandMatch, bool) {
	host = NormalizeHost(host)
	labels := labelSplit.Split(host, -1)

	best := BrandMatch{Distance: -1}
	for _, brand := range brands {
		for _, label := range labels {
			if label == "" {
				continue
			}
			d := fuzzy.LevenshteinDistance(label, brand)
			if d > Threshold(len(brand)) {
				continue
			}
			if best.Distance < 0 || d < best.Distance {
				best = BrandMatch{Brand: brand, Label: label, Distance: d}
			}
		}
	}
	if best.Distance < 0 {
		return BrandMatch{}, false
	}
	return best, true
}
