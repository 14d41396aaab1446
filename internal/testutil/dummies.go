// Package testutil holds the test doubles shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cipherlens/cipherlens/internal/logging"
	"github.com/cipherlens/cipherlens/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// Entry is one recorded log call, with the fields of every With in front.
type Entry struct {
	Level  string
	Msg    string
	Fields []logging.Field
}

// DummyLogger records log calls in memory. The zero value is ready to use;
// loggers derived with With record into the same sink.
type DummyLogger struct {
	mu     sync.Mutex
	sink   *logSink
	fields []logging.Field
}

type logSink struct {
	mu      sync.Mutex
	entries []Entry
}

func (l *DummyLogger) getSink() *logSink {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink == nil {
		l.sink = &logSink{}
	}
	return l.sink
}

func (l *DummyLogger) record(level, msg string, fields []logging.Field) {
	sink := l.getSink()
	all := append(append([]logging.Field(nil), l.fields...), fields...)
	sink.mu.Lock()
	sink.entries = append(sink.entries, Entry{Level: level, Msg: msg, Fields: all})
	sink.mu.Unlock()
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) { l.record("debug", msg, fields) }
func (l *DummyLogger) Info(msg string, fields ...logging.Field)  { l.record("info", msg, fields) }
func (l *DummyLogger) Warn(msg string, fields ...logging.Field)  { l.record("warn", msg, fields) }
func (l *DummyLogger) Error(msg string, fields ...logging.Field) { l.record("error", msg, fields) }

func (l *DummyLogger) With(fields ...logging.Field) logging.Logger {
	return &DummyLogger{
		sink:   l.getSink(),
		fields: append(append([]logging.Field(nil), l.fields...), fields...),
	}
}

// Entries returns a copy of everything recorded so far.
func (l *DummyLogger) Entries() []Entry {
	sink := l.getSink()
	sink.mu.Lock()
	defer sink.mu.Unlock()
	return append([]Entry(nil), sink.entries...)
}

// Messages returns the messages recorded at level ("debug", "info", "warn"
// or "error").
func (l *DummyLogger) Messages(level string) []string {
	var out []string
	for _, e := range l.Entries() {
		if e.Level == level {
			out = append(out, e.Msg)
		}
	}
	return out
}

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient without touching the network.
// Pages[url] is served when present, otherwise a minimal page containing
// "ok:<url>". FailURLs[url] forces an error for that URL.
type DummyWebClient struct {
	ResponseDelay time.Duration
	Pages         map[string]string
	FailURLs      map[string]bool

	mu      sync.Mutex
	fetched []string
}

func (d *DummyWebClient) Fetch(ctx context.Context, rawURL string) (*webclient.Page, error) {
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.fetched = append(d.fetched, rawURL)
	d.mu.Unlock()

	if d.FailURLs[rawURL] {
		return nil, fmt.Errorf("dummy fetch failed for %s", rawURL)
	}
	body, ok := d.Pages[rawURL]
	if !ok {
		body = "<html><body>ok:" + rawURL + "</body></html>"
	}
	return &webclient.Page{
		URL:         rawURL,
		FinalURL:    rawURL,
		StatusCode:  http.StatusOK,
		ContentType: "text/html; charset=utf-8",
		Header:      http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		HTML:        []byte(body),
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// RequestCount returns how many fetches reached the client.
func (d *DummyWebClient) RequestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fetched)
}

func (d *DummyWebClient) Close() error { return nil }
