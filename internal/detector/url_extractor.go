package detector

import (
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

var (
	ipv4Host = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

	// two scheme or redirect markers in one URL
	chainedRedirect = regexp.MustCompile(`(https?:|url=|redirect=).*?(https?:|url=|redirect=)`)

	base64Run = regexp.MustCompile(`[a-zA-Z0-9+/]{30,}={0,2}(?:[&?]|$)`)

	tokenSplit = regexp.MustCompile(`[.-]`)
)

// Extractor turns a URL and optional HTML into Features. It holds no mutable
// state and may be shared between goroutines.
type Extractor struct {
	tables     *Tables
	reputation DomainReputation
}

// NewExtractor builds an Extractor over tables. A nil reputation selects
// HashReputation over the table's brand list.
func NewExtractor(tables *Tables, reputation DomainReputation) *Extractor {
	if tables == nil {
		tables = DefaultTables()
	}
	if reputation == nil {
		reputation = NewHashReputation(tables.Brands)
	}
	return &Extractor{tables: tables, reputation: reputation}
}

// ExtractFromURL computes the URL features of rawURL without any network
// access. A URL that cannot be parsed yields an empty mapping.
func (e *Extractor) ExtractFromURL(rawURL string) Features {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Features{}
	}
	host := strings.ToLower(u.Hostname())
	path := strings.ToLower(u.Path)

	f := Features{}

	// -----------------------------------------------------------------------
	// 1) Structure
	// -----------------------------------------------------------------------

	f[FeatureHasIPAddress] = boolFeature(ipv4Host.MatchString(host))

	f[FeatureURLLength] = tier(float64(utf8.RuneCountInString(rawURL)),
		[]float64{100, 75, 50}, []float64{1, 0.8, 0.5})

	f[FeatureHasAtSymbol] = boolFeature(strings.Contains(rawURL, "@"))

	f[FeatureHasManySubdomains] = tier(float64(strings.Count(host, ".")),
		[]float64{3, 2}, []float64{1, 0.7})

	f[FeatureHasSuspiciousTLD] = boolFeature(e.hasSuspiciousTLD(host))

	f[FeatureHasHyphens] = tier(float64(strings.Count(host, "-")),
		[]float64{2, 1, 0}, []float64{1, 0.7, 0.3})

	// -----------------------------------------------------------------------
	// 2) Deception
	// -----------------------------------------------------------------------

	f[FeatureHasBrandImpersonation] = e.brandImpersonation(host, path)
	f[FeatureHasRedirectPattern] = e.redirectPattern(rawURL)
	f[FeatureHasDeceptiveHostname] = e.deceptiveHostname(host)

	// -----------------------------------------------------------------------
	// 3) Transport and reputation
	// -----------------------------------------------------------------------

	f[FeatureIsNotHTTPS] = boolFeature(u.Scheme != "https")

	// no TLS inspection is performed
	f[FeatureHasCertificateIssues] = 0

	rep := e.reputation.Lookup(host)
	f[FeatureDomainAge] = clamp01(rep.DomainAge)
	f[FeatureLowAlexaRank] = clamp01(rep.LowAlexaRank)

	return f
}

func (e *Extractor) hasSuspiciousTLD(host string) bool {
	for _, tld := range e.tables.SuspiciousTLDs {
		if strings.HasSuffix(host, tld) {
			return true
		}
	}
	return false
}

// brandImpersonation returns 0.9 for a brand in the hostname, 0.9 for a brand
// next to a security term in the path, 0.7 for a brand alone in the path and
// 0 otherwise. A brand's own <brand>.com host never counts as a domain hit.
func (e *Extractor) brandImpersonation(host, path string) float64 {
	if !e.isOfficialHost(host) && e.brandInHost(host) {
		return 0.9
	}

	pathScore := 0.0
	pathParts := strings.Split(path, "/")
	for _, brand := range e.tables.Brands {
		if !strings.Contains(path, brand) {
			continue
		}
		for _, term := range e.tables.SecurityTerms {
			if slices.Contains(pathParts, term) ||
				strings.Contains(path, term+"-"+brand) ||
				strings.Contains(path, brand+"-"+term) {
				pathScore = 0.9
				break
			}
		}
		if pathScore < 0.5 {
			pathScore = 0.7
		}
	}
	if pathScore > 0.5 {
		return pathScore
	}
	return 0
}

func (e *Extractor) isOfficialHost(host string) bool {
	bare := strings.TrimPrefix(host, "www.")
	for _, brand := range e.tables.Brands {
		if bare == brand+".com" {
			return true
		}
	}
	return false
}

func (e *Extractor) brandInHost(host string) bool {
	clean := host
	for _, tld := range e.tables.CommonTLDs {
		clean = strings.ReplaceAll(clean, tld, "")
	}
	for _, tld := range e.tables.SuspiciousTLDs {
		clean = strings.ReplaceAll(clean, tld, "")
	}
	clean = strings.ReplaceAll(clean, "www.", "")

	parts := tokenSplit.Split(clean, -1)
	candidates := make([]string, 0, 2*len(parts))
	candidates = append(candidates, parts...)
	for _, p := range parts {
		candidates = append(candidates, e.unconfuse(p))
	}

	for _, brand := range e.tables.Brands {
		if slices.Contains(candidates, brand) {
			return true
		}
		for _, c := range candidates {
			if len(c) > 3 && len(brand) > 3 && PositionalSimilarity(c, brand) > 0.8 {
				return true
			}
		}
	}

	// brand glued to other words, e.g. "paypalverify"
	for _, brand := range e.tables.Brands {
		for _, c := range candidates {
			if len(c) > len(brand) && strings.Contains(c, brand) {
				return true
			}
		}
	}

	// brand domain used as a subdomain, e.g. paypal.com.example.net
	if strings.Count(host, ".") >= 2 {
		for _, brand := range e.tables.Brands {
			canonical := brand + ".com"
			if strings.Contains(host, canonical) && host != "www."+canonical && host != canonical {
				return true
			}
		}
	}
	return false
}

// unconfuse applies the homograph table to a hostname token.
func (e *Extractor) unconfuse(token string) string {
	for _, s := range e.tables.Homographs {
		token = strings.ReplaceAll(token, s.From, s.To)
	}
	return token
}

func (e *Extractor) redirectPattern(rawURL string) float64 {
	lower := strings.ToLower(rawURL)
	// Embedded URLs only count in the usual "http%3A" spelling.
	encoded := strings.Contains(rawURL, "http%3A") || strings.Contains(rawURL, "https%3A")
	chained := chainedRedirect.MatchString(rawURL)
	b64 := base64Run.MatchString(rawURL)

	for _, p := range e.tables.RedirectPatterns {
		if strings.Contains(lower, p) {
			if encoded || b64 || chained {
				return 0.9
			}
			return 0.8
		}
	}

	switch {
	case encoded:
		return 0.7
	case b64:
		return 0.6
	case chained:
		return 0.7
	}
	return 0
}

func (e *Extractor) deceptiveHostname(host string) float64 {
	domain := strings.ReplaceAll(host, "www.", "")
	parts := strings.Split(domain, ".")

	tldInName := false
	for _, tld := range append(slices.Clone(e.tables.SuspiciousTLDs), e.tables.HostTLDs...) {
		if strings.Contains(domain, tld) {
			tldInName = true
			break
		}
	}

	entropy := 0.0
	if len(parts) > 1 {
		entropy = ShannonEntropy(parts[0])
	}
	highEntropy := entropy > 3.5
	long := utf8.RuneCountInString(domain) > 30

	misleading := false
	if len(parts) > 1 {
		name := strings.Join(parts[:len(parts)-1], ".")
		tld := "." + parts[len(parts)-1]
		if slices.Contains(e.tables.Brands, name) && e.tables.isConfusableTLD(tld) {
			misleading = true
		}
	}

	switch {
	case misleading:
		return 1
	case tldInName:
		return 0.9
	case highEntropy && long:
		return 0.8
	case highEntropy:
		return 0.7
	case long:
		return 0.5
	}
	return 0
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
