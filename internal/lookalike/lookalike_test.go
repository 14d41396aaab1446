package lookalike

import (
	"testing"

	"github.com/cipherlens/cipherlens/internal/detector"
)

func TestThreshold(t *testing.T) {
	t.Parallel()
	cases := []struct {
		n, want int
	}{
		{4, 1},
		{11, 1},
		{12, 2},
		{15, 2},
		{16, 3},
		{20, 3},
		{21, 4},
	}
	for _, tc := range cases {
		if got := Threshold(tc.n); got != tc.want {
			t.Errorf("Threshold(%d) = %d, want %d", tc.n, got, tc.want)
		}
	}
}

func TestNormalizeHost(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"https://WWW.PayPal.com/signin": "paypal.com",
		"paypal.com.":                   "paypal.com",
		"  www.example.org ":            "example.org",
		"bücher.example":                "xn--bcher-kva.example",
	}
	for in, want := range cases {
		if got := NormalizeHost(in); got != want {
			t.Errorf("NormalizeHost(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCompare_DigitSubstitution(t *testing.T) {
	t.Parallel()
	c := Compare("http://paypa1.com/login", "paypal.com")

	if c.Suspect != "paypa1.com" || c.Reference != "paypal.com" {
		t.Fatalf("unexpected normalization %+v", c)
	}
	if c.Distance != 1 || c.Threshold != 1 || !c.Lookalike {
		t.Errorf("expected a distance-1 lookalike, got %+v", c)
	}
	if c.Similarity != 0.9 {
		t.Errorf("expected positional similarity 0.9, got %v", c.Similarity)
	}

	var removed, added string
	for _, ch := range c.Chunks {
		switch ch.Type {
		case "removed":
			removed += ch.Content
		case "added":
			added += ch.Content
		}
	}
	if removed != "l" || added != "1" {
		t.Errorf("expected l -> 1 substitution, got removed=%q added=%q (%+v)", removed, added, c.Chunks)
	}
}

func TestCompare_IdenticalIsNotLookalike(t *testing.T) {
	t.Parallel()
	c := Compare("https://www.google.com", "google.com")
	if c.Distance != 0 || c.Lookalike {
		t.Errorf("identical hosts must not be lookalikes: %+v", c)
	}
	if len(c.Chunks) != 1 || c.Chunks[0].Type != "equal" {
		t.Errorf("expected a single equal chunk, got %+v", c.Chunks)
	}
}

func TestCompare_FarApart(t *testing.T) {
	t.Parallel()
	c := Compare("example.org", "paypal.com")
	if c.Lookalike {
		t.Errorf("unrelated hosts flagged as lookalike: %+v", c)
	}
}

func TestCompare_PunycodeDisplay(t *testing.T) {
	t.Parallel()
	c := Compare("xn--pypal-4ve.com", "paypal.com")
	if c.SuspectUnicode != "pаypal.com" {
		t.Errorf("expected unicode display form, got %q", c.SuspectUnicode)
	}
	if c.ReferenceUnicode != "paypal.com" {
		t.Errorf("ascii host should display unchanged, got %q", c.ReferenceUnicode)
	}
}

func TestClosestBrand(t *testing.T) {
	t.Parallel()
	brands := testBrands()

	m, ok := ClosestBrand("secure-paypa1.tk", brands)
	if !ok || m.Brand != "paypal" || m.Label != "paypa1" || m.Distance != 1 {
		t.Errorf("expected paypal via paypa1, got %+v, %v", m, ok)
	}

	m, ok = ClosestBrand("http://login.netflix.com.verify.xyz", brands)
	if !ok || m.Brand != "netflix" || m.Distance != 0 {
		t.Errorf("expected exact netflix label, got %+v, %v", m, ok)
	}

	if m, ok := ClosestBrand("example.org", brands); ok {
		t.Errorf("expected no brand, got %+v", m)
	}
}

func testBrands() []string {
	return detector.DefaultTables().Brands
}
