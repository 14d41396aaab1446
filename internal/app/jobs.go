package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cipherlens/cipherlens/internal/logging"
	"github.com/cipherlens/cipherlens/internal/store"
)

const jobEventBuffer = 16

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrClosed          = errors.New("service is closed")
	ErrDatasetNotFound = errors.New("dataset file not found")
	ErrDatasetInvalid  = errors.New("dataset has no url column")
)

type JobEventType string

const (
	JobEventStatus   JobEventType = "status"
	JobEventProgress JobEventType = "progress"
	JobEventResult   JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For progress
	Processed int `json:"processed,omitempty"`
	Total     int `json:"total,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

// Job is a background task. Values returned by the Service are snapshots.
// Events is only set on the Job returned by StartDatasetJob: it is the
// starter's own subscription, see SubscribeJob.
type Job struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"` // "dataset"
	Source    string        `json:"source,omitempty"`
	Status    JobStatus     `json:"status"`
	Error     string        `json:"error,omitempty"`
	Processed int           `json:"processed"`
	Total     int           `json:"total"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Events    <-chan JobEvent `json:"-"`

	Dataset *DatasetSummary `json:"dataset,omitempty"`
}

// DatasetSummary counts what happened to the rows of a dataset.
type DatasetSummary struct {
	Total   int `json:"total"`
	Loaded  int `json:"loaded"`
	Skipped int `json:"skipped"`
	Invalid int `json:"invalid"`
}

// ─── Job bookkeeping ───────────────────────────────────────────────────

// emitJobEvent hands ev to every subscriber of the job. Sends never block:
// a full subscriber drops progress events, and status or result events
// evict its oldest buffered event instead.
func (s *Service) emitJobEvent(jobID string, ev JobEvent) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	for _, ch := range s.jobSubs[jobID] {
		deliver(ch, ev)
	}
}

func deliver(ch chan JobEvent, ev JobEvent) {
	select {
	case ch <- ev:
		return
	default:
	}
	if ev.Type == JobEventProgress {
		return
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}

// subscribeLocked adds a subscriber channel; jobsMu must be held.
func (s *Service) subscribeLocked(jobID string) chan JobEvent {
	ch := make(chan JobEvent, jobEventBuffer)
	s.jobSubs[jobID] = append(s.jobSubs[jobID], ch)
	return ch
}

// SubscribeJob follows a job from now on. Every subscriber receives every
// event; the channel closes once the job ends, and is already closed for a
// finished job. The returned func stops the subscription early and is safe
// to call after the job ended.
func (s *Service) SubscribeJob(jobID string) (<-chan JobEvent, func(), error) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, nil, ErrJobNotFound
	}
	if !j.EndedAt.IsZero() {
		ch := make(chan JobEvent)
		close(ch)
		return ch, func() {}, nil
	}
	ch := s.subscribeLocked(jobID)
	return ch, func() { s.unsubscribe(jobID, ch) }, nil
}

func (s *Service) unsubscribe(jobID string, ch chan JobEvent) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	subs := s.jobSubs[jobID]
	for i, c := range subs {
		if c == ch {
			s.jobSubs[jobID] = append(subs[:i:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (s *Service) updateJob(jobID string, fn func(j *Job)) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if j, ok := s.jobs[jobID]; ok {
		fn(j)
	}
}

func (s *Service) setJobStatus(jobID string, status JobStatus, errMsg string) {
	s.updateJob(jobID, func(j *Job) {
		j.Status = status
		j.Error = errMsg
	})
	evType := JobEventStatus
	if status == JobDone {
		evType = JobEventResult
	}
	s.emitJobEvent(jobID, JobEvent{
		JobID:  jobID,
		Type:   evType,
		Status: status,
		Error:  errMsg,
	})
}

// startJob registers a pending job and runs it in the background. The job
// ends canceled when ctx or CancelJob stops it, failed when run errs and
// done otherwise.
func (s *Service) startJob(ctx context.Context, typ, source string, run func(ctx context.Context, jobID string) error) (*Job, error) {
	s.jobsMu.Lock()
	if s.closed {
		s.jobsMu.Unlock()
		return nil, ErrClosed
	}
	job := &Job{
		ID:        uuid.New().String(),
		Type:      typ,
		Source:    source,
		Status:    JobPending,
		StartedAt: time.Now().UTC(),
	}
	jobCtx, cancel := context.WithCancel(ctx)
	s.jobs[job.ID] = job
	s.jobCancels[job.ID] = cancel
	s.jobsWG.Add(1)
	snapshot := *job
	snapshot.Events = s.subscribeLocked(job.ID)
	s.jobsMu.Unlock()

	jobID := job.ID
	s.emitJobEvent(jobID, JobEvent{
		JobID:  jobID,
		Type:   JobEventStatus,
		Status: JobPending,
	})
	s.logger.Info("job started",
		logging.Field{Key: "job_id", Value: jobID},
		logging.Field{Key: "type", Value: typ},
		logging.Field{Key: "source", Value: source})

	go func() {
		defer s.jobsWG.Done()
		defer s.finishJob(jobID)

		s.setJobStatus(jobID, JobRunning, "")

		err := run(jobCtx, jobID)
		switch {
		case jobCtx.Err() != nil:
			s.setJobStatus(jobID, JobCanceled, jobCtx.Err().Error())
		case err != nil:
			s.logger.Warn("job failed",
				logging.Field{Key: "job_id", Value: jobID},
				logging.Field{Key: "error", Value: err})
			s.setJobStatus(jobID, JobFailed, err.Error())
		default:
			s.setJobStatus(jobID, JobDone, "")
		}
	}()

	return &snapshot, nil
}

// finishJob stamps the end time, closes every subscriber channel so
// websocket loops terminate, and schedules the job for removal.
func (s *Service) finishJob(jobID string) {
	s.jobsMu.Lock()
	j := s.jobs[jobID]
	var status JobStatus
	if j != nil {
		j.EndedAt = time.Now().UTC()
		status = j.Status
	}
	if cancel, ok := s.jobCancels[jobID]; ok {
		cancel()
		delete(s.jobCancels, jobID)
	}
	for _, ch := range s.jobSubs[jobID] {
		close(ch)
	}
	delete(s.jobSubs, jobID)
	s.jobsMu.Unlock()

	s.metrics.jobFinished(status)
	s.logger.Info("job finished",
		logging.Field{Key: "job_id", Value: jobID},
		logging.Field{Key: "status", Value: string(status)})

	if retention := s.cfg.Jobs.Retention; retention > 0 {
		time.AfterFunc(retention, func() {
			s.jobsMu.Lock()
			delete(s.jobs, jobID)
			s.jobsMu.Unlock()
		})
	}
}

// CancelJob stops a running job. Canceling a finished job is a no-op.
func (s *Service) CancelJob(jobID string) error {
	s.jobsMu.Lock()
	_, known := s.jobs[jobID]
	cancel := s.jobCancels[jobID]
	s.jobsMu.Unlock()
	if !known {
		return ErrJobNotFound
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// GetJob returns a snapshot of the job, or nil when it is unknown or expired.
func (s *Service) GetJob(jobID string) *Job {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	cp := *j
	if j.Dataset != nil {
		ds := *j.Dataset
		cp.Dataset = &ds
	}
	return &cp
}

// ListJobs returns snapshots of every retained job, oldest first.
func (s *Service) ListJobs() []Job {
	s.jobsMu.Lock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		cp := *j
		if j.Dataset != nil {
			ds := *j.Dataset
			cp.Dataset = &ds
		}
		out = append(out, cp)
	}
	s.jobsMu.Unlock()

	sort.Slice(out, func(i, k int) bool {
		if !out[i].StartedAt.Equal(out[k].StartedAt) {
			return out[i].StartedAt.Before(out[k].StartedAt)
		}
		return out[i].ID < out[k].ID
	})
	return out
}

// Close cancels running jobs, waits for them to end and rejects new ones.
// It is safe to call more than once.
func (s *Service) Close() error {
	s.jobsMu.Lock()
	if s.closed {
		s.jobsMu.Unlock()
		return nil
	}
	s.closed = true
	cancels := make([]context.CancelFunc, 0, len(s.jobCancels))
	for _, c := range s.jobCancels {
		cancels = append(cancels, c)
	}
	s.jobsMu.Unlock()

	for _, c := range cancels {
		c()
	}
	s.jobsWG.Wait()
	return nil
}

// ─── Dataset loading ───────────────────────────────────────────────────

// OpenDataset opens a dataset CSV. An empty path selects the configured
// default.
func (s *Service) OpenDataset(path string) (io.ReadCloser, string, error) {
	if path == "" {
		path = s.cfg.Jobs.DatasetPath
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, path, fmt.Errorf("%w: %s", ErrDatasetNotFound, path)
		}
		return nil, path, fmt.Errorf("open dataset %s: %w", path, err)
	}
	return f, path, nil
}

// StartDatasetJob loads r in the background and closes it when done. source
// only labels the job.
func (s *Service) StartDatasetJob(ctx context.Context, r io.ReadCloser, source string) (*Job, error) {
	job, err := s.startJob(ctx, "dataset", source, func(ctx context.Context, jobID string) error {
		defer r.Close()
		sum, err := s.LoadDataset(ctx, r, func(processed, total int) {
			s.updateJob(jobID, func(j *Job) {
				j.Processed = processed
				j.Total = total
			})
			s.emitJobEvent(jobID, JobEvent{
				JobID:     jobID,
				Type:      JobEventProgress,
				Processed: processed,
				Total:     total,
			})
		})
		if sum != nil {
			s.updateJob(jobID, func(j *Job) { j.Dataset = sum })
		}
		return err
	})
	if err != nil {
		r.Close()
		return nil, err
	}
	return job, nil
}

// LoadDataset scores and stores every row of a CSV with the header
// url,is_phishing,category. Rows whose URL is already stored are skipped;
// rows without a URL are counted as invalid. progress, when set, is called
// after every row.
func (s *Service) LoadDataset(ctx context.Context, r io.Reader, progress func(processed, total int)) (*DatasetSummary, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrDatasetInvalid
	}

	cols := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	if _, ok := cols["url"]; !ok {
		return nil, ErrDatasetInvalid
	}
	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rows := records[1:]
	sum := &DatasetSummary{Total: len(rows)}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := s.loadRow(ctx, row, field, sum); err != nil {
			return sum, err
		}
		if progress != nil {
			progress(i+1, sum.Total)
		}
	}

	s.logger.Info("dataset loaded",
		logging.Field{Key: "total", Value: sum.Total},
		logging.Field{Key: "loaded", Value: sum.Loaded},
		logging.Field{Key: "skipped", Value: sum.Skipped},
		logging.Field{Key: "invalid", Value: sum.Invalid})
	return sum, nil
}

func (s *Service) loadRow(ctx context.Context, row []string, field func([]string, string) string, sum *DatasetSummary) error {
	u := field(row, "url")
	if u == "" {
		sum.Invalid++
		return nil
	}

	exists, err := s.store.HasDetection(ctx, u)
	if err != nil {
		return fmt.Errorf("check %s: %w", u, err)
	}
	if exists {
		sum.Skipped++
		return nil
	}

	start := time.Now()
	analysis, err := s.det.Analyze(u, "")
	if err != nil {
		s.logger.Warn("dataset row rejected",
			logging.Field{Key: "url", Value: u},
			logging.Field{Key: "error", Value: err})
		s.metrics.scanFailed("dataset")
		sum.Invalid++
		return nil
	}
	s.metrics.observeScan("dataset", analysis.Verdict.IsPhishing, time.Since(start))

	d := &store.Detection{
		TaskID:   uuid.New().String(),
		URL:      u,
		Features: analysis.Features,
		Result:   analysis.Verdict,
		Category: field(row, "category"),
	}
	if raw := field(row, "is_phishing"); raw != "" {
		if label, err := strconv.ParseBool(raw); err == nil {
			d.DatasetLabel = &label
		}
	}
	if err := s.store.SaveDetection(ctx, d); err != nil {
		return fmt.Errorf("save %s: %w", u, err)
	}
	sum.Loaded++
	return nil
}
