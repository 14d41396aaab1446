package detector

// Substitution is one homograph rewrite applied to hostname tokens.
type Substitution struct {
	From string
	To   string
}

// Tables holds every fixed list the detector reads: TLDs, brands, keywords,
// weights and sentences. A Tables value is built once, handed to New, and
// must not be modified afterwards; all detector components share it
// read-only.
type Tables struct {
	// SuspiciousTLDs are suffixes that raise hasSuspiciousTLD.
	SuspiciousTLDs []string

	// CommonTLDs are stripped from the host before brand tokenisation, ahead
	// of SuspiciousTLDs.
	CommonTLDs []string

	// HostTLDs are the legitimate suffixes that count for the tld-in-name
	// check in addition to SuspiciousTLDs.
	HostTLDs []string

	Brands []string

	// Homographs are applied in order, each one to the output of the last.
	Homographs []Substitution

	// ConfusableTLDs maps a legitimate TLD to lookalikes of it.
	ConfusableTLDs map[string][]string

	// SecurityTerms are path words that, next to a brand, make a path hit
	// as strong as a domain hit.
	SecurityTerms []string

	RedirectPatterns []string

	// SensitiveKeywords are counted over the visible page text.
	SensitiveKeywords []string

	LoginKeywords []string

	// ElementKeywords are the terms used to point at suspicious text nodes.
	ElementKeywords []string

	Weights map[string]float64

	// Critical features are amplified when strongly present.
	Critical map[string]bool

	// Sentences are the verdict explanations, one per feature.
	Sentences map[string]string

	// Descriptions are the short labels used by the Explainer.
	Descriptions map[string]string
}

// DefaultTables returns a freshly allocated copy of the built-in tables.
func DefaultTables() *Tables {
	return &Tables{
		SuspiciousTLDs: []string{
			".xyz", ".top", ".gq", ".ml", ".ga", ".cf", ".tk", ".info", ".work",
			".pro", ".men", ".loan", ".click", ".date", ".racing", ".online",
			".stream", ".win", ".review", ".vip", ".party", ".shop", ".gdn",
			".bid", ".accountant", ".website", ".space",
		},
		CommonTLDs: []string{
			".com", ".org", ".net", ".edu", ".gov", ".io", ".co", ".us", ".ca", ".uk",
		},
		HostTLDs: []string{".com", ".org", ".net"},
		Brands: []string{
			"paypal", "apple", "microsoft", "amazon", "netflix", "facebook",
			"google", "instagram", "twitter", "gmail", "wellsfargo", "chase",
			"bankofamerica", "bank", "coinbase", "blockchain", "linkedin",
			"dropbox", "yahoo", "spotify", "steam", "github", "outlook",
			"hotmail", "office365", "protonmail",
		},
		Homographs: []Substitution{
			{"0", "o"},
			{"1", "l"},
			{"3", "e"},
			{"4", "a"},
			{"5", "s"},
			{"rn", "m"},
			{"cl", "d"},
			{"vv", "w"},
			{"goog1e", "google"},
			{"paypai", "paypal"},
		},
		ConfusableTLDs: map[string][]string{
			".com": {".cm", ".co", ".om", ".commm", ".comm", ".com-secure", ".con"},
			".org": {".ogr", ".or", ".arg", ".orgg"},
			".net": {".ner", ".ne", ".nt", ".nett"},
			".edu": {".ed", ".eu", ".eddu"},
			".gov": {".gv", ".goo", ".gou", ".goc"},
		},
		SecurityTerms: []string{"secure", "login", "verify", "account", "signin", "update", "confirm"},
		RedirectPatterns: []string{
			"url=", "redirect=", "link=", "goto=", "to=", "target=", "u=", "r=",
			"return=", "return_to=", "returnto=", "return-to=",
			"cgi-bin/redirect.cgi", "out/", "window.location=", ".php?url=",
			"redir/", "redirect/", "go/", "out?", "transfer", "linkto=",
			"visit=", "forward=", "navigate=", ".php?",
		},
		SensitiveKeywords: []string{
			"password", "credit card", "login", "signin", "bank", "account",
			"social security", "ssn", "credentials", "verification",
			"authorize", "secure", "update your account", "verify", "confirm",
			"validate", "unusual activity", "access", "limited", "expired",
			"billing", "payment", "authenticate", "unusual sign-in", "security",
			"alert", "suspicious", "log-in", "customer", "click here",
			"important", "urgent", "attention", "suspended", "locked",
			"verify now", "enable", "disable", "deactivate", "reactivate",
			"recover", "reset",
		},
		LoginKeywords: []string{"login", "sign in", "signin", "log in"},
		ElementKeywords: []string{
			"password", "credit card", "login", "signin", "bank", "account",
			"social security", "ssn", "credentials",
		},
		Weights: map[string]float64{
			// URL structure
			FeatureHasIPAddress:      0.95,
			FeatureURLLength:         0.5,
			FeatureHasAtSymbol:       0.8,
			FeatureHasManySubdomains: 0.8,
			FeatureHasSuspiciousTLD:  0.9,
			FeatureHasHyphens:        0.6,

			// Hostname deception
			FeatureHasBrandImpersonation: 0.95,
			FeatureHasRedirectPattern:    0.8,
			FeatureHasDeceptiveHostname:  0.95,

			// Page content
			FeatureHasPasswordField:     0.8,
			FeatureHasSensitiveKeywords: 0.7,
			FeatureMismatchedFormAction: 0.95,
			FeatureHasLoginForm:         0.7,
			FeatureHasExternalScripts:   0.7,
			FeatureHasObfuscatedCode:    0.85,
			FeatureHasFaviconMismatch:   0.8,
			FeatureHasHiddenElements:    0.8,

			// Transport and reputation
			FeatureIsNotHTTPS:           0.85,
			FeatureHasCertificateIssues: 0.9,
			FeatureDomainAge:            0.8,
			FeatureLowAlexaRank:         0.7,
		},
		Critical: map[string]bool{
			FeatureHasIPAddress:          true,
			FeatureHasBrandImpersonation: true,
			FeatureMismatchedFormAction:  true,
			FeatureHasDeceptiveHostname:  true,
			FeatureIsNotHTTPS:            true,
		},
		Sentences: map[string]string{
			FeatureHasIPAddress:          "Website uses an IP address instead of a domain name (common phishing tactic)",
			FeatureURLLength:             "Unusually long URL that may be hiding redirects or suspicious parameters",
			FeatureHasAtSymbol:           "URL contains @ symbol which can be used to hide the actual destination",
			FeatureHasManySubdomains:     "URL has multiple subdomains, often used to create legitimate-looking URLs",
			FeatureHasSuspiciousTLD:      "Website uses a suspicious or uncommon top-level domain associated with phishing",
			FeatureHasHyphens:            "Domain contains multiple hyphens, common in fake domains",
			FeatureHasBrandImpersonation: "URL contains a popular brand name but isn't the official domain",
			FeatureHasRedirectPattern:    "URL contains redirection patterns that may lead to malicious sites",
			FeatureHasDeceptiveHostname:  "Hostname designed to look like a legitimate website",
			FeatureHasPasswordField:      "Page contains password input fields requesting sensitive information",
			FeatureHasLoginForm:          "Page contains login form that may be collecting credentials",
			FeatureHasSensitiveKeywords:  "Page contains keywords related to account verification or financial information",
			FeatureMismatchedFormAction:  "Form submits data to a different domain than the current website",
			FeatureHasExternalScripts:    "Page loads scripts from suspicious external domains",
			FeatureHasObfuscatedCode:     "Page contains hidden or obfuscated code potentially hiding malicious behavior",
			FeatureHasFaviconMismatch:    "Website favicon doesn't match the claimed brand identity",
			FeatureHasHiddenElements:     "Page contains hidden elements that may be collecting data",
			FeatureIsNotHTTPS:            "Website does not use secure HTTPS connection",
			FeatureHasCertificateIssues:  "Website has SSL certificate issues or mismatches",
			FeatureDomainAge:             "Domain was registered very recently (common for phishing sites)",
			FeatureLowAlexaRank:          "Website has very low popularity/traffic, unusual for legitimate services",
		},
		Descriptions: map[string]string{
			FeatureHasIPAddress:          "Use of IP address in URL",
			FeatureURLLength:             "Unusually long URL",
			FeatureHasAtSymbol:           "URL contains @ symbol",
			FeatureHasManySubdomains:     "Multiple subdomains",
			FeatureHasSuspiciousTLD:      "Suspicious top-level domain",
			FeatureHasHyphens:            "Multiple hyphens in domain",
			FeatureHasBrandImpersonation: "Brand name outside the official domain",
			FeatureHasRedirectPattern:    "Redirection pattern in URL",
			FeatureHasDeceptiveHostname:  "Deceptive hostname",
			FeatureHasPasswordField:      "Password input field",
			FeatureHasLoginForm:          "Login form",
			FeatureHasSensitiveKeywords:  "Sensitive keywords",
			FeatureMismatchedFormAction:  "Form submits to different domain",
			FeatureHasExternalScripts:    "External scripts",
			FeatureHasObfuscatedCode:     "Obfuscated script code",
			FeatureHasFaviconMismatch:    "Favicon mismatch",
			FeatureHasHiddenElements:     "Hidden page elements",
			FeatureIsNotHTTPS:            "Non-secure connection",
			FeatureHasCertificateIssues:  "SSL certificate issues",
			FeatureDomainAge:             "Recently registered domain",
			FeatureLowAlexaRank:          "Low traffic rank",
		},
	}
}

// Sentence returns the verdict sentence for a feature, falling back to the
// feature name.
func (t *Tables) Sentence(feature string) string {
	if s, ok := t.Sentences[feature]; ok {
		return s
	}
	return feature
}

// Describe returns the short explainer label for a feature, falling back to
// the feature name.
func (t *Tables) Describe(feature string) string {
	if s, ok := t.Descriptions[feature]; ok {
		return s
	}
	return feature
}

// isConfusableTLD reports whether tld appears in any lookalike list.
func (t *Tables) isConfusableTLD(tld string) bool {
	for _, fakes := range t.ConfusableTLDs {
		for _, f := range fakes {
			if f == tld {
				return true
			}
		}
	}
	return false
}
