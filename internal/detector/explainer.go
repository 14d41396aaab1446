package detector

import (
	"fmt"
	"html"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	nethtml "golang.org/x/net/html"
)

const (
	ExplainerSHAP = "shap"
	ExplainerLIME = "lime"

	suspiciousFeatureCount = 3
	minBarWidth            = 5.0

	emptyVisualization = `<div class="empty-explanation">No significant factors found.</div>`
)

// ExplanationItem is one feature's share of an explanation.
type ExplanationItem struct {
	Feature     string  `json:"feature"`
	Description string  `json:"description"`
	Attribution float64 `json:"attribution"`
	Value       float64 `json:"value"`
}

// SuspiciousElement points at a piece of the page behind a top feature.
type SuspiciousElement struct {
	Element     string `json:"element"`
	Description string `json:"description"`
	Selector    string `json:"selector"`
}

// Explainer attributes a verdict to its features. Attribution is the raw
// feature value, not the weighted contribution the Scorer uses.
type Explainer struct {
	tables   *Tables
	keywords []*regexp.Regexp
}

func NewExplainer(tables *Tables) *Explainer {
	if tables == nil {
		tables = DefaultTables()
	}
	kw := make([]*regexp.Regexp, 0, len(tables.ElementKeywords))
	for _, k := range tables.ElementKeywords {
		kw = append(kw, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(k)))
	}
	return &Explainer{tables: tables, keywords: kw}
}

// NormalizeExplainerType returns "shap" or "lime". Any other label, including
// the empty string, selects "shap".
func NormalizeExplainerType(t string) string {
	if strings.EqualFold(strings.TrimSpace(t), ExplainerLIME) {
		return ExplainerLIME
	}
	return ExplainerSHAP
}

// ExplainPrediction returns one item per positive known feature, ordered by
// descending attribution. Names without a weight are ignored. Attributions are percentages summing to 100.
// explainerType only labels the caller's response (see NormalizeExplainerType);
// both types share one computation.
func (x *Explainer) ExplainPrediction(features Features, explainerType string) []ExplanationItem {
	total := 0.0
	items := make([]ExplanationItem, 0, len(features))
	for name, value := range features {
		if _, known := x.tables.Weights[name]; !known {
			continue
		}
		if !(value > 0) || math.IsInf(value, 0) {
			continue
		}
		total += value
		items = append(items, ExplanationItem{
			Feature:     name,
			Description: x.tables.Describe(name),
			Attribution: value,
			Value:       value,
		})
	}
	if total == 0 {
		return []ExplanationItem{}
	}
	for i := range items {
		items[i].Attribution = items[i].Attribution / total * 100
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Attribution != items[j].Attribution {
			return items[i].Attribution > items[j].Attribution
		}
		return items[i].Feature < items[j].Feature
	})
	return items
}

// GenerateVisualization renders items as proportional HTML bars.
func (x *Explainer) GenerateVisualization(items []ExplanationItem) string {
	if len(items) == 0 {
		return emptyVisualization
	}
	var b strings.Builder
	b.WriteString(`<div class="explanation-container">`)
	for _, it := range items {
		width := math.Max(minBarWidth, it.Attribution)
		fmt.Fprintf(&b,
			`<div class="explanation-item">`+
				`<div class="explanation-label">%s</div>`+
				`<div class="explanation-bar-container"><div class="explanation-bar" style="width: %.1f%%"></div></div>`+
				`<div class="explanation-value">%.1f%%</div>`+
				`</div>`,
			html.EscapeString(it.Description), width, it.Attribution)
	}
	b.WriteString(`</div>`)
	return b.String()
}

// IdentifySuspiciousElements locates page elements behind the top three
// explanation items. Unparseable HTML yields no elements.
func (x *Explainer) IdentifySuspiciousElements(page string, items []ExplanationItem) []SuspiciousElement {
	out := []SuspiciousElement{}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return out
	}

	top := map[string]bool{}
	for i, it := range items {
		if i >= suspiciousFeatureCount {
			break
		}
		top[it.Feature] = true
	}

	if top[FeatureHasPasswordField] {
		passwordInputs(doc.Selection).Each(func(_ int, s *goquery.Selection) {
			out = append(out, SuspiciousElement{
				Element:     "Password input field",
				Description: "Sensitive data collection",
				Selector:    selectorFor(s.Get(0)),
			})
		})
	}

	if top[FeatureMismatchedFormAction] {
		doc.Find("form").Each(func(_ int, s *goquery.Selection) {
			action := getAttr(s, "action")
			if action == "" || strings.HasPrefix(action, "#") {
				return
			}
			out = append(out, SuspiciousElement{
				Element:     "Form",
				Description: "Submits data to external domain: " + action,
				Selector:    selectorFor(s.Get(0)),
			})
		})
	}

	if top[FeatureHasSensitiveKeywords] {
		texts := textNodes(doc.Get(0))
		for i, re := range x.keywords {
			for _, n := range texts {
				if !re.MatchString(n.Data) || n.Parent == nil {
					continue
				}
				out = append(out, SuspiciousElement{
					Element:     n.Parent.Data,
					Description: "Contains sensitive keyword: " + x.tables.ElementKeywords[i],
					Selector:    selectorFor(n.Parent),
				})
			}
		}
	}

	return out
}

// textNodes collects document text outside script and style elements.
func textNodes(root *nethtml.Node) []*nethtml.Node {
	var nodes []*nethtml.Node
	var walk func(n *nethtml.Node)
	walk = func(n *nethtml.Node) {
		if n.Type == nethtml.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == nethtml.TextNode && strings.TrimSpace(n.Data) != "" && n.Parent != nil && n.Parent.Type == nethtml.ElementNode {
			nodes = append(nodes, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return nodes
}

// selectorFor prefers #id, then .class chains, then the tag name.
func selectorFor(n *nethtml.Node) string {
	if n == nil {
		return ""
	}
	var id, class string
	for _, a := range n.Attr {
		switch a.Key {
		case "id":
			id = strings.TrimSpace(a.Val)
		case "class":
			class = a.Val
		}
	}
	if id != "" {
		return "#" + id
	}
	if classes := strings.Fields(class); len(classes) > 0 {
		return "." + strings.Join(classes, ".")
	}
	return n.Data
}
