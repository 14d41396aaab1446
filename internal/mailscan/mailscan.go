// Package mailscan runs the detector over the links and body of an email.
package mailscan

import (
	"errors"
	"fmt"
	"io"
	"net/mail"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"

	"github.com/cipherlens/cipherlens/internal/detector"
	"github.com/cipherlens/cipherlens/internal/logging"
	"github.com/cipherlens/cipherlens/internal/lookalike"
)

// DefaultMaxLinks bounds how many distinct links one message may fan out to.
const DefaultMaxLinks = 50

var textURL = regexp.MustCompile(`https?://[^\s"'<>]+`)

// Message is the part of an email the scanner looks at.
type Message struct {
	Subject      string   `json:"subject"`
	From         string   `json:"from"`
	SenderDomain string   `json:"senderDomain"`
	Links        []string `json:"links"`
	HTML         string   `json:"-"`
	Text         string   `json:"-"`
}

// LinkResult is the URL-only analysis of one link.
type LinkResult struct {
	URL      string            `json:"url"`
	Features detector.Features `json:"features"`
	Verdict  *detector.Verdict `json:"verdict"`
}

// Report is the outcome of scanning one message.
type Report struct {
	Message     *Message              `json:"message"`
	Links       []LinkResult          `json:"links"`
	Body        *detector.Analysis    `json:"body,omitempty"`
	Worst       *LinkResult           `json:"worst,omitempty"`
	SenderBrand *lookalike.BrandMatch `json:"senderBrand,omitempty"`
	IsPhishing  bool                  `json:"isPhishing"`
	Truncated   bool                  `json:"truncated"`
}

// Parse reads an RFC 5322 message and collects its http(s) links, HTML part
// first, then the text part, without duplicates.
func Parse(r io.Reader) (*Message, error) {
	env, err := enmime.ReadEnvelope(r)
	if err != nil {
		return nil, fmt.Errorf("read envelope: %w", err)
	}

	msg := &Message{
		Subject: env.GetHeader("Subject"),
		From:    env.GetHeader("From"),
		HTML:    env.HTML,
		Text:    env.Text,
	}
	if addr, err := mail.ParseAddress(msg.From); err == nil {
		_, domain, _ := strings.Cut(strings.ToLower(addr.Address), "@")
		msg.SenderDomain = domain
	}

	seen := map[string]bool{}
	add := func(u string) {
		u = strings.TrimRight(strings.TrimSpace(u), ".,;)")
		lower := strings.ToLower(u)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			return
		}
		if seen[u] {
			return
		}
		seen[u] = true
		msg.Links = append(msg.Links, u)
	}

	if msg.HTML != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(msg.HTML))
		if err == nil {
			doc.Find("a[href], area[href]").Each(func(_ int, s *goquery.Selection) {
				href, _ := s.Attr("href")
				add(href)
			})
			doc.Find("form[action]").Each(func(_ int, s *goquery.Selection) {
				action, _ := s.Attr("action")
				add(action)
			})
		}
	}
	for _, u := range textURL.FindAllString(msg.Text, -1) {
		add(u)
	}
	return msg, nil
}

// Scanner analyzes parsed messages with a shared Detector.
type Scanner struct {
	det      *detector.Detector
	brands   []string
	maxLinks int
	logger   logging.Logger
}

func NewScanner(det *detector.Detector, logger logging.Logger) (*Scanner, error) {
	if det == nil {
		return nil, errors.New("mailscan: nil detector")
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Scanner{
		det:      det,
		brands:   detector.DefaultTables().Brands,
		maxLinks: DefaultMaxLinks,
		logger:   logger.With(logging.Field{Key: "component", Value: "mailscan"}),
	}, nil
}

// SetMaxLinks changes the per-message link limit. Non-positive values are
// ignored.
func (s *Scanner) SetMaxLinks(n int) {
	if n > 0 {
		s.maxLinks = n
	}
}

// Scan parses r and scores every link by its URL, plus the HTML body once by
// its content. The message is phishing when any link or the body is.
func (s *Scanner) Scan(r io.Reader) (*Report, error) {
	msg, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return s.ScanMessage(msg)
}

func (s *Scanner) ScanMessage(msg *Message) (*Report, error) {
	rep := &Report{Message: msg, Links: []LinkResult{}}

	links := msg.Links
	if len(links) > s.maxLinks {
		links = links[:s.maxLinks]
		rep.Truncated = true
	}

	for _, link := range links {
		a, err := s.det.Analyze(link, "")
		if err != nil {
			return nil, fmt.Errorf("analyze link: %w", err)
		}
		rep.Links = append(rep.Links, LinkResult{URL: link, Features: a.Features, Verdict: a.Verdict})
	}
	for i := range rep.Links {
		if rep.Worst == nil || rep.Links[i].Verdict.Score > rep.Worst.Verdict.Score {
			rep.Worst = &rep.Links[i]
		}
	}

	if strings.TrimSpace(msg.HTML) != "" {
		body, err := s.det.Analyze("", msg.HTML)
		if err != nil {
			return nil, fmt.Errorf("analyze body: %w", err)
		}
		rep.Body = body
	}

	if msg.SenderDomain != "" {
		if m, ok := lookalike.ClosestBrand(msg.SenderDomain, s.brands); ok && m.Distance > 0 {
			rep.SenderBrand = &m
		}
	}

	rep.IsPhishing = (rep.Worst != nil && rep.Worst.Verdict.IsPhishing) ||
		(rep.Body != nil && rep.Body.Verdict.IsPhishing)

	s.logger.Info("scanned message",
		logging.Field{Key: "subject", Value: msg.Subject},
		logging.Field{Key: "links", Value: len(rep.Links)},
		logging.Field{Key: "is_phishing", Value: rep.IsPhishing})
	return rep, nil
}
