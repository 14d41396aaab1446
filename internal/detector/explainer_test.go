package detector

import (
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestExplainPrediction_PercentagesAndOrder(t *testing.T) {
	t.Parallel()
	x := NewExplainer(nil)
	f := Features{
		FeatureHasIPAddress:      1,
		FeatureIsNotHTTPS:        1,
		FeatureHasManySubdomains: 0.7,
		FeatureURLLength:         0,
		"customSignal":           0.3,
	}

	items := x.ExplainPrediction(f, "shap")
	if len(items) != 3 {
		t.Fatalf("expected 3 items (zero and unknown excluded), got %d: %+v", len(items), items)
	}

	sum := 0.0
	for i, it := range items {
		sum += it.Attribution
		if it.Feature == FeatureURLLength {
			t.Errorf("zero-valued feature must be excluded")
		}
		if it.Feature == "customSignal" {
			t.Errorf("unknown feature must be excluded")
		}
		if i > 0 && items[i-1].Attribution < it.Attribution {
			t.Errorf("items not sorted by attribution: %+v", items)
		}
	}
	if math.Abs(sum-100) > 1e-9 {
		t.Errorf("attributions sum to %v, want 100", sum)
	}

	wantOrder := []string{FeatureHasIPAddress, FeatureIsNotHTTPS, FeatureHasManySubdomains}
	for i, name := range wantOrder {
		if items[i].Feature != name {
			t.Errorf("position %d: expected %s, got %s", i, name, items[i].Feature)
		}
	}
	if items[0].Description != "Use of IP address in URL" {
		t.Errorf("unexpected description %q", items[0].Description)
	}
	if items[2].Value != 0.7 {
		t.Errorf("expected original value 0.7 kept, got %v", items[2].Value)
	}
	if !approx(items[0].Attribution, 100/2.7) {
		t.Errorf("expected 37.0%% attribution, got %v", items[0].Attribution)
	}
}

func TestExplainPrediction_OnlyUnknownFeatures(t *testing.T) {
	t.Parallel()
	items := NewExplainer(nil).ExplainPrediction(Features{"customSignal": 1}, "lime")
	if len(items) != 0 {
		t.Errorf("expected no items for unknown features, got %+v", items)
	}
}

func TestExplainPrediction_Idempotent(t *testing.T) {
	t.Parallel()
	x := NewExplainer(nil)
	f := newTestExtractor().ExtractFromURL("http://secure-wellsfargo.com.banking.accountverify.net/login")

	a := x.ExplainPrediction(f, "shap")
	b := x.ExplainPrediction(f, "lime")
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("explainer types must share one computation:\n%+v\n%+v", a, b)
	}
	for i := 0; i < 10; i++ {
		if c := x.ExplainPrediction(f, "shap"); !reflect.DeepEqual(a, c) {
			t.Fatalf("explanation changed between calls")
		}
	}
}

func TestExplainPrediction_NoSignal(t *testing.T) {
	t.Parallel()
	items := NewExplainer(nil).ExplainPrediction(Features{FeatureHasAtSymbol: 0}, "shap")
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", items)
	}
}

func TestNormalizeExplainerType(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"shap":   ExplainerSHAP,
		"LIME":   ExplainerLIME,
		" lime ": ExplainerLIME,
		"":       ExplainerSHAP,
		"tree":   ExplainerSHAP,
	}
	for in, want := range cases {
		if got := NormalizeExplainerType(in); got != want {
			t.Errorf("NormalizeExplainerType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerateVisualization(t *testing.T) {
	t.Parallel()
	x := NewExplainer(nil)

	if got := x.GenerateVisualization(nil); got != emptyVisualization {
		t.Errorf("expected placeholder for empty input, got %q", got)
	}

	out := x.GenerateVisualization([]ExplanationItem{
		{Feature: "a", Description: "Big <factor>", Attribution: 98},
		{Feature: "b", Description: "Small", Attribution: 2},
	})
	if !strings.HasPrefix(out, `<div class="explanation-container">`) {
		t.Errorf("missing container: %s", out)
	}
	if strings.Count(out, `class="explanation-item"`) != 2 {
		t.Errorf("expected two items: %s", out)
	}
	if !strings.Contains(out, `style="width: 98.0%"`) || !strings.Contains(out, `98.0%</div>`) {
		t.Errorf("expected 98.0%% bar: %s", out)
	}
	if !strings.Contains(out, `style="width: 5.0%"`) {
		t.Errorf("expected small bar widened to 5%%: %s", out)
	}
	if !strings.Contains(out, `<div class="explanation-value">2.0%</div>`) {
		t.Errorf("expected real percentage 2.0%%: %s", out)
	}
	if !strings.Contains(out, "Big &lt;factor&gt;") {
		t.Errorf("expected escaped label: %s", out)
	}
}

func TestIdentifySuspiciousElements_PasswordAndForm(t *testing.T) {
	t.Parallel()
	e := newTestExtractor()
	x := NewExplainer(nil)

	items := x.ExplainPrediction(e.ExtractFromContent(credentialPage), "shap")
	got := x.IdentifySuspiciousElements(credentialPage, items)

	want := []SuspiciousElement{
		{Element: "Password input field", Description: "Sensitive data collection", Selector: "#pw"},
		{Element: "Form", Description: "Submits data to external domain: http://evil.com/collect", Selector: "form"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("suspicious elements mismatch\n got: %+v\nwant: %+v", got, want)
	}
}

func TestIdentifySuspiciousElements_Keywords(t *testing.T) {
	t.Parallel()
	x := NewExplainer(nil)
	page := `<div class="a b"><p>Enter your Password</p></div><span id="x">Bank login</span>
<p class=" note  small ">Nothing here</p><script>var password = 1;</script>`

	got := x.IdentifySuspiciousElements(page, []ExplanationItem{{Feature: FeatureHasSensitiveKeywords}})
	want := []SuspiciousElement{
		{Element: "p", Description: "Contains sensitive keyword: password", Selector: "p"},
		{Element: "span", Description: "Contains sensitive keyword: login", Selector: "#x"},
		{Element: "span", Description: "Contains sensitive keyword: bank", Selector: "#x"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("suspicious elements mismatch\n got: %+v\nwant: %+v", got, want)
	}
}

func TestIdentifySuspiciousElements_OnlyTopThree(t *testing.T) {
	t.Parallel()
	x := NewExplainer(nil)
	items := []ExplanationItem{
		{Feature: FeatureHasIPAddress},
		{Feature: FeatureIsNotHTTPS},
		{Feature: FeatureHasAtSymbol},
		{Feature: FeatureHasPasswordField},
	}
	if got := x.IdentifySuspiciousElements(credentialPage, items); len(got) != 0 {
		t.Errorf("expected no elements for features outside the top three, got %+v", got)
	}
}

func TestIdentifySuspiciousElements_FragmentAction(t *testing.T) {
	t.Parallel()
	x := NewExplainer(nil)
	page := `<form action="#"></form><form></form><form class="f x" action="/post"></form>`
	got := x.IdentifySuspiciousElements(page, []ExplanationItem{{Feature: FeatureMismatchedFormAction}})
	want := []SuspiciousElement{
		{Element: "Form", Description: "Submits data to external domain: /post", Selector: ".f.x"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
