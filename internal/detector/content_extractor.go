package detector

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jaytaylor/html2text"
)

type weightedPattern struct {
	re     *regexp.Regexp
	weight float64
}

var obfuscationPatterns = []weightedPattern{
	{regexp.MustCompile(`(?i)eval\s*\(`), 3},
	{regexp.MustCompile(`(?i)document\.write\s*\(\s*unescape\s*\(`), 3},
	{regexp.MustCompile(`(?i)String\.fromCharCode\(`), 2},
	{regexp.MustCompile(`(?i)\\x[0-9a-f]{2}`), 2},
	{regexp.MustCompile(`(?i)\\u[0-9a-f]{4}`), 2},
	{regexp.MustCompile(`(?i)^[a-zA-Z0-9+/]{100,}={0,2}$`), 3},
	{regexp.MustCompile(`(?i)function\(\s*\w\s*,\s*\w\s*,\s*\w\s*,\s*\w\s*\)`), 1},
	{regexp.MustCompile(`(?i)\w=\[\];\w=\(\);`), 2},
}

// ExtractFromContent computes the page features of an HTML document.
// Malformed markup is tolerated; only a reader failure yields an empty
// mapping.
func (e *Extractor) ExtractFromContent(html string) Features {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Features{}
	}

	f := Features{}

	// -----------------------------------------------------------------------
	// 1) Credential collection
	// -----------------------------------------------------------------------

	f[FeatureHasPasswordField] = boolFeature(passwordInputs(doc.Selection).Length() > 0)

	loginForm := false
	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		text := strings.ToLower(form.Text())
		for _, kw := range e.tables.LoginKeywords {
			if strings.Contains(text, kw) {
				loginForm = true
				return false
			}
		}
		if passwordInputs(form).Length() > 0 {
			loginForm = true
			return false
		}
		return true
	})
	f[FeatureHasLoginForm] = boolFeature(loginForm)

	text := strings.ToLower(visibleText(html, doc))
	matched := 0
	for _, kw := range e.tables.SensitiveKeywords {
		if strings.Contains(text, kw) {
			matched++
		}
	}
	f[FeatureHasSensitiveKeywords] = tier(float64(matched), []float64{5, 3, 1}, []float64{1, 0.7, 0.4})

	// Any absolute action counts; the page origin is not known here.
	mismatched := false
	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		if strings.HasPrefix(getAttr(form, "action"), "http") {
			mismatched = true
			return false
		}
		return true
	})
	f[FeatureMismatchedFormAction] = boolFeature(mismatched)

	// -----------------------------------------------------------------------
	// 2) Scripts
	// -----------------------------------------------------------------------

	external := 0
	var inline []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if strings.HasPrefix(getAttr(s, "src"), "http") {
			external++
		}
		if body := s.Text(); body != "" {
			inline = append(inline, body)
		}
	})
	f[FeatureHasExternalScripts] = tier(float64(external), []float64{5, 2, 0}, []float64{0.9, 0.6, 0.3})
	f[FeatureHasObfuscatedCode] = obfuscationScore(strings.Join(inline, " "))

	// -----------------------------------------------------------------------
	// 3) Hidden elements and favicon
	// -----------------------------------------------------------------------

	hidden := 0
	doc.Find("input, div, span, p").Each(func(_ int, s *goquery.Selection) {
		style, ok := s.Attr("style")
		if ok && strings.Contains(strings.ToLower(strings.ReplaceAll(style, " ", "")), "display:none") {
			hidden++
		}
	})
	// an inline-hidden <input type="hidden"> counts twice
	doc.Find("input").Each(func(_ int, s *goquery.Selection) {
		if strings.EqualFold(getAttr(s, "type"), "hidden") {
			hidden++
		}
	})
	f[FeatureHasHiddenElements] = tier(float64(hidden), []float64{10, 5, 2}, []float64{0.9, 0.6, 0.3})

	favicon := 0.0
	doc.Find("link").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(getAttr(s, "rel")), "icon") {
			return true
		}
		href := getAttr(s, "href")
		if !strings.HasPrefix(href, "http") && !strings.HasPrefix(href, "/") {
			favicon = 0.7
			return false
		}
		return true
	})
	f[FeatureHasFaviconMismatch] = favicon

	return f
}

// obfuscationScore sums the weights of matching obfuscation idioms, adds 2
// for high entropy and scales the result into [0,1].
func obfuscationScore(script string) float64 {
	if script == "" {
		return 0
	}
	hits := 0.0
	for _, p := range obfuscationPatterns {
		if p.re.MatchString(script) {
			hits += p.weight
		}
	}
	if ShannonEntropy(script) > 4.5 {
		hits += 2
	}
	return min(hits/10, 1)
}

// visibleText renders the page as plain text. Link targets are omitted so
// that URLs do not feed the keyword count.
func visibleText(html string, doc *goquery.Document) string {
	text, err := html2text.FromString(html, html2text.Options{OmitLinks: true})
	if err != nil {
		return doc.Text()
	}
	return text
}

func passwordInputs(sel *goquery.Selection) *goquery.Selection {
	return sel.Find("input").FilterFunction(func(_ int, in *goquery.Selection) bool {
		return strings.EqualFold(getAttr(in, "type"), "password")
	})
}

func getAttr(sel *goquery.Selection, name string) string {
	val, exists := sel.Attr(name)
	if exists {
		return strings.TrimSpace(val)
	}
	return ""
}
