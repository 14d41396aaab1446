package detector

import "math"

// Features maps a feature name to its value. Every value produced by the
// Extractor lies in [0,1]; 0 means the signal is absent.
type Features map[string]float64

// Known feature names. The Scorer and Explainer only react to these; any other
// key is carried along with zero weight.
const (
	FeatureHasIPAddress          = "hasIPAddress"
	FeatureURLLength             = "urlLength"
	FeatureHasAtSymbol           = "hasAtSymbol"
	FeatureHasManySubdomains     = "hasManySubdomains"
	FeatureHasSuspiciousTLD      = "hasSuspiciousTLD"
	FeatureHasHyphens            = "hasHyphens"
	FeatureHasBrandImpersonation = "hasBrandImpersonation"
	FeatureHasRedirectPattern    = "hasRedirectPattern"
	FeatureHasDeceptiveHostname  = "hasDeceptiveHostname"
	FeatureHasPasswordField      = "hasPasswordField"
	FeatureHasSensitiveKeywords  = "hasSensitiveKeywords"
	FeatureMismatchedFormAction  = "mismatchedFormAction"
	FeatureHasLoginForm          = "hasLoginForm"
	FeatureHasExternalScripts    = "hasExternalScripts"
	FeatureHasObfuscatedCode     = "hasObfuscatedCode"
	FeatureHasFaviconMismatch    = "hasFaviconMismatch"
	FeatureHasHiddenElements     = "hasHiddenElements"
	FeatureIsNotHTTPS            = "isNotHttps"
	FeatureHasCertificateIssues  = "hasCertificateIssues"
	FeatureDomainAge             = "domainAge"
	FeatureLowAlexaRank          = "lowAlexaRank"
)

// URLFeatureNames lists, in extraction order, the features ExtractFromURL sets.
var URLFeatureNames = []string{
	FeatureHasIPAddress,
	FeatureURLLength,
	FeatureHasAtSymbol,
	FeatureHasManySubdomains,
	FeatureHasSuspiciousTLD,
	FeatureHasBrandImpersonation,
	FeatureHasHyphens,
	FeatureHasRedirectPattern,
	FeatureHasDeceptiveHostname,
	FeatureIsNotHTTPS,
	FeatureHasCertificateIssues,
	FeatureDomainAge,
	FeatureLowAlexaRank,
}

// ContentFeatureNames lists the features ExtractFromContent sets.
var ContentFeatureNames = []string{
	FeatureHasPasswordField,
	FeatureHasLoginForm,
	FeatureHasSensitiveKeywords,
	FeatureMismatchedFormAction,
	FeatureHasExternalScripts,
	FeatureHasObfuscatedCode,
	FeatureHasHiddenElements,
	FeatureHasFaviconMismatch,
}

// Merge returns a new mapping holding f overlaid with other. Keys present in
// other win.
func (f Features) Merge(other Features) Features {
	out := make(Features, len(f)+len(other))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Clamp returns a copy with every finite value forced into [0,1]. Non-finite
// values are kept so the Scorer can reject them.
func (f Features) Clamp() Features {
	out := make(Features, len(f))
	for k, v := range f {
		out[k] = clamp01(v)
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
