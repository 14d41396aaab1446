package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const sampleDataset = "url,is_phishing,category\n" +
	ipLoginURL + ",1,phishing\n" +
	googleURL + ",0,legitimate\n" +
	",1,broken\n" +
	googleURL + ",0,legitimate\n"

// blockingReader blocks every Read until release is closed, then reports EOF.
type blockingReader struct {
	release chan struct{}
}

func (b *blockingReader) Read([]byte) (int, error) {
	<-b.release
	return 0, io.EOF
}

func (b *blockingReader) Close() error { return nil }

// gatedReader holds the first Read until release is closed, then serves r.
type gatedReader struct {
	release chan struct{}
	r       io.Reader
}

func (g *gatedReader) Read(p []byte) (int, error) {
	<-g.release
	return g.r.Read(p)
}

func (g *gatedReader) Close() error { return nil }

func collect(t *testing.T, events <-chan JobEvent) []JobEvent {
	t.Helper()
	var out []JobEvent
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Error("timed out waiting for job events")
			return out
		}
	}
}

func drain(t *testing.T, job *Job) []JobEvent {
	t.Helper()
	var events []JobEvent
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-job.Events:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out waiting for job to finish")
		}
	}
}

// ─── Dataset loading ───────────────────────────────────────────────────

func TestLoadDataset(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)
	ctx := context.Background()

	var calls []int
	sum, err := s.LoadDataset(ctx, strings.NewReader(sampleDataset), func(processed, total int) {
		if total != 4 {
			t.Errorf("expected total 4, got %d", total)
		}
		calls = append(calls, processed)
	})
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if sum.Total != 4 || sum.Loaded != 2 || sum.Skipped != 1 || sum.Invalid != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if len(calls) != 4 || calls[3] != 4 {
		t.Errorf("expected progress after every row, got %v", calls)
	}

	d, err := s.store.GetDetectionByURL(ctx, googleURL)
	if err != nil {
		t.Fatalf("GetDetectionByURL: %v", err)
	}
	if d.Category != "legitimate" || d.DatasetLabel == nil || *d.DatasetLabel {
		t.Errorf("expected labelled legitimate row, got %+v", d)
	}
}

func TestLoadDataset_SkipsStoredURLs(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)
	ctx := context.Background()

	if _, err := s.DetectURL(ctx, ipLoginURL); err != nil {
		t.Fatalf("DetectURL: %v", err)
	}
	sum, err := s.LoadDataset(ctx, strings.NewReader(sampleDataset), nil)
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if sum.Loaded != 1 || sum.Skipped != 2 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestLoadDataset_Invalid(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)
	ctx := context.Background()

	if _, err := s.LoadDataset(ctx, strings.NewReader("link,label\nhttp://x.tk,1\n"), nil); !errors.Is(err, ErrDatasetInvalid) {
		t.Errorf("expected ErrDatasetInvalid for missing url column, got %v", err)
	}
	if _, err := s.LoadDataset(ctx, strings.NewReader(""), nil); !errors.Is(err, ErrDatasetInvalid) {
		t.Errorf("expected ErrDatasetInvalid for empty input, got %v", err)
	}
}

func TestOpenDataset(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.csv")
	if err := os.WriteFile(path, []byte(sampleDataset), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	s := newTestService(t, func(cfg *Config, _ *Components) { cfg.Jobs.DatasetPath = path })

	rc, used, err := s.OpenDataset("")
	if err != nil {
		t.Fatalf("OpenDataset: %v", err)
	}
	rc.Close()
	if used != path {
		t.Errorf("expected default path %s, got %s", path, used)
	}

	if _, _, err := s.OpenDataset(filepath.Join(dir, "missing.csv")); !errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("expected ErrDatasetNotFound, got %v", err)
	}
}

// ─── Jobs ──────────────────────────────────────────────────────────────

func TestGetJob_ReturnsNilForUnknown(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)
	if j := s.GetJob("nope"); j != nil {
		t.Errorf("expected nil for unknown job, got %+v", j)
	}
	if err := s.CancelJob("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
	if jobs := s.ListJobs(); len(jobs) != 0 {
		t.Errorf("expected no jobs, got %d", len(jobs))
	}
}

func TestStartDatasetJob_TransitionsToDone(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)

	job, err := s.StartDatasetJob(context.Background(), io.NopCloser(strings.NewReader(sampleDataset)), "inline")
	if err != nil {
		t.Fatalf("StartDatasetJob: %v", err)
	}
	if job.ID == "" || job.Type != "dataset" || job.Source != "inline" {
		t.Fatalf("unexpected job %+v", job)
	}

	events := drain(t, job)
	if len(events) == 0 || events[0].Status != JobPending {
		t.Fatalf("expected pending first, got %+v", events)
	}
	last := events[len(events)-1]
	if last.Type != JobEventResult || last.Status != JobDone {
		t.Errorf("expected final result event, got %+v", last)
	}
	var progress int
	for _, ev := range events {
		if ev.Type == JobEventProgress {
			progress++
		}
	}
	if progress != 4 {
		t.Errorf("expected 4 progress events, got %d", progress)
	}

	got := s.GetJob(job.ID)
	if got == nil || got.Status != JobDone || got.EndedAt.IsZero() {
		t.Fatalf("unexpected finished job %+v", got)
	}
	if got.Processed != 4 || got.Total != 4 || got.Dataset == nil || got.Dataset.Loaded != 2 {
		t.Errorf("unexpected job counters %+v (dataset %+v)", got, got.Dataset)
	}

	jobs := s.ListJobs()
	if len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Errorf("expected job in list, got %+v", jobs)
	}
}

func TestStartDatasetJob_FailsOnInvalidDataset(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)

	job, err := s.StartDatasetJob(context.Background(), io.NopCloser(strings.NewReader("name\nx\n")), "bad")
	if err != nil {
		t.Fatalf("StartDatasetJob: %v", err)
	}
	drain(t, job)

	got := s.GetJob(job.ID)
	if got.Status != JobFailed || got.Error != ErrDatasetInvalid.Error() {
		t.Errorf("expected failed job, got %+v", got)
	}
}

func TestCancelJob_TransitionsToCanceled(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)
	r := &blockingReader{release: make(chan struct{})}

	job, err := s.StartDatasetJob(context.Background(), r, "blocked")
	if err != nil {
		t.Fatalf("StartDatasetJob: %v", err)
	}
	if err := s.CancelJob(job.ID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	close(r.release)
	drain(t, job)

	got := s.GetJob(job.ID)
	if got.Status != JobCanceled || got.Error != context.Canceled.Error() {
		t.Errorf("expected canceled job, got %+v", got)
	}
	if err := s.CancelJob(job.ID); err != nil {
		t.Errorf("canceling a finished job should be a no-op, got %v", err)
	}
}

func TestClose_CancelsRunningJobsAndRejectsNew(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)
	r := &blockingReader{release: make(chan struct{})}

	job, err := s.StartDatasetJob(context.Background(), r, "blocked")
	if err != nil {
		t.Fatalf("StartDatasetJob: %v", err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(r.release)
	}()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := s.GetJob(job.ID); got.Status != JobCanceled {
		t.Errorf("expected canceled job after Close, got %+v", got)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	if _, err := s.StartDatasetJob(context.Background(), io.NopCloser(strings.NewReader(sampleDataset)), "late"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestFinishedJobsExpire(t *testing.T) {
	t.Parallel()
	s := newTestService(t, func(cfg *Config, _ *Components) { cfg.Jobs.Retention = 20 * time.Millisecond })

	job, err := s.StartDatasetJob(context.Background(), io.NopCloser(strings.NewReader(sampleDataset)), "inline")
	if err != nil {
		t.Fatalf("StartDatasetJob: %v", err)
	}
	drain(t, job)

	deadline := time.Now().Add(5 * time.Second)
	for s.GetJob(job.ID) != nil {
		if time.Now().After(deadline) {
			t.Fatal("job was not removed after retention")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStoredDatasetRowsAreServedAsRecent(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)
	ctx := context.Background()

	if _, err := s.LoadDataset(ctx, strings.NewReader(sampleDataset), nil); err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	res, err := s.DetectURL(ctx, ipLoginURL)
	if err != nil {
		t.Fatalf("DetectURL: %v", err)
	}
	if !res.Cached {
		t.Errorf("expected dataset row to answer the request, got %+v", res)
	}
	d, err := s.store.GetDetectionByURL(ctx, ipLoginURL)
	if err != nil || d.DatasetLabel == nil || !*d.DatasetLabel {
		t.Errorf("expected phishing label on stored row, got %+v, %v", d, err)
	}
}

func TestSubscribeJob_EveryWatcherGetsEveryEvent(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)
	r := &gatedReader{release: make(chan struct{}), r: strings.NewReader(sampleDataset)}

	job, err := s.StartDatasetJob(context.Background(), r, "gated")
	if err != nil {
		t.Fatalf("StartDatasetJob: %v", err)
	}
	watchers := make([]<-chan JobEvent, 2)
	for i := range watchers {
		events, unsubscribe, err := s.SubscribeJob(job.ID)
		if err != nil {
			t.Fatalf("SubscribeJob: %v", err)
		}
		t.Cleanup(unsubscribe)
		watchers[i] = events
	}

	results := make([][]JobEvent, len(watchers))
	var wg sync.WaitGroup
	for i, events := range watchers {
		i, events := i, events
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = collect(t, events)
		}()
	}
	close(r.release)
	drain(t, job)
	wg.Wait()

	for i, events := range results {
		var progress int
		for _, ev := range events {
			if ev.Type == JobEventProgress {
				progress++
			}
		}
		if progress != 4 {
			t.Errorf("watcher %d: expected 4 progress events, got %d (%+v)", i, progress, events)
		}
		if len(events) == 0 || events[len(events)-1].Type != JobEventResult {
			t.Errorf("watcher %d: expected final result event, got %+v", i, events)
		}
	}
}

func TestSubscribeJob_UnsubscribeAndFinished(t *testing.T) {
	t.Parallel()
	s := newTestService(t, nil)

	if _, _, err := s.SubscribeJob("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}

	r := &gatedReader{release: make(chan struct{}), r: strings.NewReader(sampleDataset)}
	job, err := s.StartDatasetJob(context.Background(), r, "gated")
	if err != nil {
		t.Fatalf("StartDatasetJob: %v", err)
	}
	events, unsubscribe, err := s.SubscribeJob(job.ID)
	if err != nil {
		t.Fatalf("SubscribeJob: %v", err)
	}
	unsubscribe()
	unsubscribe()
	collect(t, events)

	close(r.release)
	drain(t, job)

	late, stop, err := s.SubscribeJob(job.ID)
	if err != nil {
		t.Fatalf("SubscribeJob after finish: %v", err)
	}
	defer stop()
	if got := collect(t, late); len(got) != 0 {
		t.Errorf("expected a closed channel for a finished job, got %+v", got)
	}
}
