package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	phishURL = "http://192.168.1.1/paypal/login.php"
	safeURL  = "https://www.google.com"
)

// run executes the command tree over a throwaway store and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--store", ":memory:", "--cache", "none", "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// ─── scan ──────────────────────────────────────────────────────────────

func TestScan_SingleURL(t *testing.T) {
	t.Parallel()
	out, err := run(t, "scan", phishURL)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(out, "PHISHING") || !strings.Contains(out, phishURL) {
		t.Errorf("expected phishing verdict, got:\n%s", out)
	}
}

func TestScan_BatchJSON(t *testing.T) {
	t.Parallel()
	out, err := run(t, "scan", "--json", phishURL, safeURL)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var items []struct {
		URL    string `json:"url"`
		Result struct {
			IsPhishing bool `json:"isPhishing"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(items) != 2 || !items[0].Result.IsPhishing || items[1].Result.IsPhishing {
		t.Errorf("unexpected batch %+v", items)
	}
}

func TestScan_ContentFile(t *testing.T) {
	t.Parallel()
	page := writeFile(t, "page.html", `<html><body><form action="http://collect.example/post"><input type="password"></form></body></html>`)

	out, err := run(t, "scan", "--json", "--content-file", page, "http://paypa1.com/login")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var res struct {
		Features map[string]float64 `json:"features"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if res.Features["hasPasswordField"] != 1 {
		t.Errorf("expected content features, got %v", res.Features)
	}
}

func TestScan_Validation(t *testing.T) {
	t.Parallel()
	if _, err := run(t, "scan"); err == nil {
		t.Error("expected error without URL")
	}
	if _, err := run(t, "scan", "--fetch", phishURL, safeURL); err == nil {
		t.Error("expected error for --fetch with several URLs")
	}
	if _, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "scan", phishURL); err == nil {
		t.Error("expected error for missing config file")
	}
}

// ─── explain ───────────────────────────────────────────────────────────

func TestExplain(t *testing.T) {
	t.Parallel()
	out, err := run(t, "explain", "--explainer", "lime", phishURL)
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if !strings.Contains(out, "LIME") || !strings.Contains(out, "hasIPAddress") {
		t.Errorf("expected lime attributions, got:\n%s", out)
	}

	out, err = run(t, "explain", "--html", phishURL)
	if err != nil {
		t.Fatalf("explain --html: %v", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(out), "<") {
		t.Errorf("expected HTML fragment, got:\n%s", out)
	}
}

func TestExplain_Elements(t *testing.T) {
	t.Parallel()
	page := writeFile(t, "page.html", `<html><body><form action="http://collect.example/post"><input type="password" name="pw"></form></body></html>`)

	out, err := run(t, "explain", "--json", "--content-file", page, "http://paypa1.com/login")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	var exp struct {
		Explainer    string            `json:"explainer"`
		Explanations []json.RawMessage `json:"explanations"`
	}
	if err := json.Unmarshal([]byte(out), &exp); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if exp.Explainer != "shap" || len(exp.Explanations) == 0 {
		t.Errorf("expected shap attributions, got %+v", exp)
	}
}

// ─── email and compare ─────────────────────────────────────────────────

func TestEmail(t *testing.T) {
	t.Parallel()
	msg := writeFile(t, "lure.eml", "From: PayPal <service@paypa1.com>\r\n"+
		"To: user@example.org\r\n"+
		"Subject: Verify your account\r\n"+
		"Content-Type: text/html; charset=utf-8\r\n\r\n"+
		`<p>Your account is locked. <a href="http://secure-paypa1.tk/login">Verify now</a></p>`+"\r\n")

	out, err := run(t, "email", msg)
	if err != nil {
		t.Fatalf("email: %v", err)
	}
	if !strings.Contains(out, "Subject: Verify your account") || !strings.Contains(out, "secure-paypa1.tk") {
		t.Errorf("unexpected email report:\n%s", out)
	}

	if _, err := run(t, "email", filepath.Join(t.TempDir(), "missing.eml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()
	out, err := run(t, "compare", "paypa1.com", "paypal.com")
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if !strings.Contains(out, "paypa1.com vs paypal.com") || !strings.Contains(out, "distance:") {
		t.Errorf("unexpected comparison:\n%s", out)
	}

	out, err = run(t, "compare", "paypa1.com")
	if err != nil {
		t.Fatalf("compare without reference: %v", err)
	}
	if !strings.Contains(out, "Closest brand: paypal") {
		t.Errorf("expected closest brand, got:\n%s", out)
	}
}

// ─── dataset, stats and calibrate ──────────────────────────────────────

func TestDatasetLoad(t *testing.T) {
	t.Parallel()
	csv := writeFile(t, "sample.csv", "url,is_phishing,category\n"+phishURL+",1,phishing\n"+safeURL+",0,legitimate\n,1,broken\n")

	out, err := run(t, "dataset", "load", "-f", csv)
	if err != nil {
		t.Fatalf("dataset load: %v", err)
	}
	if !strings.Contains(out, "Loaded 2 of 3 rows") || !strings.Contains(out, "1 invalid") {
		t.Errorf("unexpected summary:\n%s", out)
	}

	if _, err := run(t, "dataset", "load", "-f", filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected error for missing dataset")
	}
}

func TestStats_EmptyStore(t *testing.T) {
	t.Parallel()
	out, err := run(t, "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "Total scans: 0") {
		t.Errorf("unexpected stats:\n%s", out)
	}
}

func TestCalibrate(t *testing.T) {
	t.Parallel()
	out, err := run(t, "calibrate", "--json")
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	var rep struct {
		PhishingDetectionRate float64           `json:"phishingDetectionRate"`
		Results               []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(rep.Results) != 12 || rep.PhishingDetectionRate <= 0 {
		t.Errorf("unexpected calibration report %+v", rep)
	}
}
