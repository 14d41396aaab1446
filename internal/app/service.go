package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cipherlens/cipherlens/internal/cache"
	"github.com/cipherlens/cipherlens/internal/detector"
	"github.com/cipherlens/cipherlens/internal/logging"
	"github.com/cipherlens/cipherlens/internal/lookalike"
	"github.com/cipherlens/cipherlens/internal/mailscan"
	"github.com/cipherlens/cipherlens/internal/store"
	"github.com/cipherlens/cipherlens/internal/webclient"
)

const (
	apiName    = "CipherLens API"
	apiVersion = "1.0.0"

	// maxTasks bounds the in-memory task table before finished tasks older
	// than the job retention are pruned.
	maxTasks = 1024
)

var (
	ErrURLRequired      = errors.New("URL is required")
	ErrContentRequired  = errors.New("content is required")
	ErrFeaturesRequired = errors.New("features are required")
	ErrHTMLRequired     = errors.New("HTML content is required")
	ErrTaskNotFound     = errors.New("task not found")
	ErrBatchTooLarge    = errors.New("too many URLs in batch")
	ErrFetchUnavailable = errors.New("page fetching is not configured")
	ErrNoReference      = errors.New("no reference host and no close brand")
)

// IsInvalidInput reports whether err is caused by a malformed request rather
// than by the service.
func IsInvalidInput(err error) bool {
	for _, target := range []error{
		ErrURLRequired, ErrContentRequired, ErrFeaturesRequired, ErrHTMLRequired,
		ErrBatchTooLarge, ErrNoReference, ErrDatasetInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type TaskState string

const (
	TaskProcessing TaskState = "processing"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
)

// Task tracks one detection request by its task id.
type Task struct {
	ID          string            `json:"taskId"`
	URL         string            `json:"url"`
	Status      TaskState         `json:"status"`
	Result      *detector.Verdict `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	CompletedAt time.Time         `json:"completedAt"`
}

// DetectionResult is what a detection request returns. Cached is set when
// the verdict came from the cache or a recent stored detection.
type DetectionResult struct {
	TaskID   string              `json:"taskId"`
	URL      string              `json:"url"`
	Status   TaskState           `json:"status"`
	Cached   bool                `json:"cached,omitempty"`
	Result   *detector.Verdict   `json:"result"`
	Features detector.Features   `json:"features,omitempty"`
	Similar  []store.SimilarPage `json:"similarPages,omitempty"`
	Snapshot string              `json:"snapshot,omitempty"`
}

// BatchItem is the outcome for one URL of a batch.
type BatchItem struct {
	*DetectionResult
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

// CompareResult is a host comparison, with the brand it was measured
// against when the caller gave no reference.
type CompareResult struct {
	*lookalike.Comparison
	Brand *lookalike.BrandMatch `json:"brand,omitempty"`
}

type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
}

type Info struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Environment string   `json:"environment"`
	Features    []string `json:"features"`
}

// Service runs detections against the cache, the store and the detector, and
// owns the background jobs.
type Service struct {
	cfg     *Config
	det     *detector.Detector
	store   *store.Store
	snaps   *store.Snapshots
	cache   cache.Cache
	web     webclient.WebClient
	mail    *mailscan.Scanner
	metrics *Metrics
	logger  logging.Logger

	tasksMu sync.Mutex
	tasks   map[string]*Task

	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
	jobSubs    map[string][]chan JobEvent
	closed     bool
	jobsWG     sync.WaitGroup
}

// NewService ties together config, components and logger. The detector and
// store are required; a nil cache never hits and a nil webclient disables
// page fetching.
func NewService(cfg *Config, comps *Components, logger logging.Logger) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		return nil, errors.New("app: nil logger")
	}
	if comps == nil || comps.Detector == nil || comps.Store == nil {
		return nil, errors.New("app: detector and store are required")
	}

	c := comps.Cache
	if c == nil {
		c = cache.NopCache{}
	}
	mail := comps.Mail
	if mail == nil {
		m, err := mailscan.NewScanner(comps.Detector, logger)
		if err != nil {
			return nil, err
		}
		m.SetMaxLinks(cfg.Detection.MaxEmailLinks)
		mail = m
	}

	return &Service{
		cfg:        cfg,
		det:        comps.Detector,
		store:      comps.Store,
		snaps:      comps.Snapshots,
		cache:      c,
		web:        comps.WebClient,
		mail:       mail,
		metrics:    comps.Metrics,
		logger:     logger.With(logging.Field{Key: "component", Value: "service"}),
		tasks:      make(map[string]*Task),
		jobs:       make(map[string]*Job),
		jobCancels: make(map[string]context.CancelFunc),
		jobSubs:    make(map[string][]chan JobEvent),
	}, nil
}

// Metrics returns the service metrics, or nil when none were configured.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// ─── Detection ─────────────────────────────────────────────────────────

// DetectURL scores rawURL by its URL features alone.
func (s *Service) DetectURL(ctx context.Context, rawURL string) (*DetectionResult, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrURLRequired
	}
	return s.detect(ctx, "url", rawURL, "")
}

// DetectContent scores rawURL together with its page. When content is empty
// and fetch is set, the page is retrieved through the webclient first.
func (s *Service) DetectContent(ctx context.Context, rawURL, content string, fetch bool) (*DetectionResult, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrURLRequired
	}
	if strings.TrimSpace(content) == "" {
		if !fetch {
			return nil, ErrContentRequired
		}
		page, err := s.fetchPage(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		content = page
	}
	return s.detect(ctx, "content", rawURL, content)
}

func (s *Service) fetchPage(ctx context.Context, rawURL string) (string, error) {
	if s.web == nil {
		return "", ErrFetchUnavailable
	}
	page, err := s.web.Fetch(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if len(bytes.TrimSpace(page.HTML)) == 0 {
		return "", fmt.Errorf("fetch %s: %w", rawURL, ErrContentRequired)
	}
	s.logger.Debug("fetched page",
		logging.Field{Key: "url", Value: rawURL},
		logging.Field{Key: "final_url", Value: page.FinalURL},
		logging.Field{Key: "status", Value: page.StatusCode},
		logging.Field{Key: "bytes", Value: len(page.HTML)},
		logging.Field{Key: "truncated", Value: page.Truncated})
	return string(page.HTML), nil
}

func (s *Service) detect(ctx context.Context, kind, rawURL, page string) (*DetectionResult, error) {
	hasContent := page != ""
	if res, ok := s.lookupRecent(ctx, rawURL, hasContent); ok {
		return res, nil
	}

	task := s.startTask(rawURL)
	start := time.Now()
	analysis, err := s.det.Analyze(rawURL, page)
	if err != nil {
		s.failTask(task.ID, err)
		s.metrics.scanFailed(kind)
		s.logger.Error("detection failed",
			logging.Field{Key: "url", Value: rawURL},
			logging.Field{Key: "task_id", Value: task.ID},
			logging.Field{Key: "error", Value: err})
		return &DetectionResult{TaskID: task.ID, URL: rawURL, Status: TaskFailed},
			fmt.Errorf("error processing detection: %w", err)
	}
	s.metrics.observeScan(kind, analysis.Verdict.IsPhishing, time.Since(start))

	res := &DetectionResult{
		TaskID:   task.ID,
		URL:      rawURL,
		Status:   TaskCompleted,
		Result:   analysis.Verdict,
		Features: analysis.Features,
	}

	d := &store.Detection{
		TaskID:     task.ID,
		URL:        rawURL,
		Features:   analysis.Features,
		Result:     analysis.Verdict,
		HasContent: hasContent,
	}
	if hasContent {
		d.ContentDigest = store.Fingerprint(page)
		res.Similar = s.similarPages(ctx, d.ContentDigest, rawURL)
		res.Snapshot = s.keepSnapshot(rawURL, page)
	}
	if err := s.store.SaveDetection(ctx, d); err != nil {
		s.logger.Warn("saving detection",
			logging.Field{Key: "url", Value: rawURL},
			logging.Field{Key: "error", Value: err})
	}
	s.remember(ctx, res, hasContent)
	s.completeTask(task.ID, analysis.Verdict)

	s.logger.Info("detection completed",
		logging.Field{Key: "kind", Value: kind},
		logging.Field{Key: "url", Value: rawURL},
		logging.Field{Key: "score", Value: analysis.Verdict.Score},
		logging.Field{Key: "is_phishing", Value: analysis.Verdict.IsPhishing})
	return res, nil
}

func (s *Service) keepSnapshot(rawURL, page string) string {
	if s.snaps == nil {
		return ""
	}
	id, err := s.snaps.Put([]byte(page))
	if err != nil {
		s.logger.Warn("saving snapshot",
			logging.Field{Key: "url", Value: rawURL},
			logging.Field{Key: "error", Value: err})
		return ""
	}
	return id
}

// Snapshot returns a page kept by an earlier content detection.
func (s *Service) Snapshot(id string) ([]byte, error) {
	if s.snaps == nil {
		return nil, store.ErrSnapshotNotFound
	}
	return s.snaps.Get(id)
}

// lookupRecent serves a verdict from the cache, then from a stored detection
// younger than the recency window. A URL-only verdict never answers a content
// request.
func (s *Service) lookupRecent(ctx context.Context, rawURL string, needContent bool) (*DetectionResult, bool) {
	e, ok, err := s.cache.Get(ctx, rawURL)
	if err != nil {
		s.logger.Warn("reading cache", logging.Field{Key: "url", Value: rawURL}, logging.Field{Key: "error", Value: err})
	} else if ok && e.Verdict != nil && (e.HasContent || !needContent) {
		s.metrics.cacheHit("cache")
		return &DetectionResult{
			TaskID:   e.TaskID,
			URL:      rawURL,
			Status:   TaskCompleted,
			Cached:   true,
			Result:   e.Verdict,
			Features: e.Features,
		}, true
	}

	d, err := s.store.FreshDetection(ctx, rawURL, s.cfg.Detection.RecencyWindow)
	if err != nil {
		if !errors.Is(err, store.ErrDetectionNotFound) {
			s.logger.Warn("reading stored detection", logging.Field{Key: "url", Value: rawURL}, logging.Field{Key: "error", Value: err})
		}
		return nil, false
	}
	if d.Result == nil || (needContent && !d.HasContent) {
		return nil, false
	}
	s.metrics.cacheHit("store")
	res := &DetectionResult{
		TaskID:   d.TaskID,
		URL:      rawURL,
		Status:   TaskCompleted,
		Cached:   true,
		Result:   d.Result,
		Features: d.Features,
	}
	s.remember(ctx, res, d.HasContent)
	return res, true
}

func (s *Service) remember(ctx context.Context, res *DetectionResult, hasContent bool) {
	err := s.cache.Set(ctx, res.URL, &cache.Entry{
		TaskID:     res.TaskID,
		URL:        res.URL,
		Features:   res.Features,
		Verdict:    res.Result,
		HasContent: hasContent,
		CachedAt:   time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("writing cache", logging.Field{Key: "url", Value: res.URL}, logging.Field{Key: "error", Value: err})
	}
}

func (s *Service) similarPages(ctx context.Context, digest, exclude string) []store.SimilarPage {
	if digest == "" {
		return nil
	}
	pages, err := s.store.SimilarContent(ctx, digest, s.cfg.Detection.SimilarityDistance)
	if err != nil {
		s.logger.Warn("finding similar pages", logging.Field{Key: "error", Value: err})
		return nil
	}
	out := pages[:0]
	for _, p := range pages {
		if p.URL != exclude {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// DetectBatch scores every URL by its URL features with bounded concurrency.
// A failing URL is reported in its item and does not stop the others.
func (s *Service) DetectBatch(ctx context.Context, urls []string) ([]BatchItem, error) {
	if len(urls) == 0 {
		return nil, ErrURLRequired
	}
	if maxSize := s.cfg.Detection.MaxBatchSize; maxSize > 0 && len(urls) > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(urls), maxSize)
	}

	items := make([]BatchItem, len(urls))
	var g errgroup.Group
	limit := s.cfg.Detection.BatchConcurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			items[i].URL = u
			if err := ctx.Err(); err != nil {
				items[i].Error = err.Error()
				return nil
			}
			res, err := s.DetectURL(ctx, u)
			if err != nil {
				items[i].Error = err.Error()
				return nil
			}
			items[i].DetectionResult = res
			return nil
		})
	}
	_ = g.Wait()
	return items, nil
}

// ScanEmail parses a raw RFC 5322 message and scores its links and body.
func (s *Service) ScanEmail(ctx context.Context, r io.Reader) (*mailscan.Report, error) {
	start := time.Now()
	rep, err := s.mail.Scan(r)
	if err != nil {
		s.metrics.scanFailed("email")
		return nil, err
	}
	s.metrics.observeScan("email", rep.IsPhishing, time.Since(start))
	return rep, nil
}

// Compare measures suspect against reference. With no reference the closest
// known brand is used, as <brand>.com.
func (s *Service) Compare(suspect, reference string) (*CompareResult, error) {
	if strings.TrimSpace(suspect) == "" {
		return nil, ErrURLRequired
	}
	out := &CompareResult{}
	if strings.TrimSpace(reference) == "" {
		m, ok := lookalike.ClosestBrand(suspect, detector.DefaultTables().Brands)
		if !ok {
			return nil, ErrNoReference
		}
		out.Brand = &m
		reference = m.Brand + ".com"
	}
	out.Comparison = lookalike.Compare(suspect, reference)
	return out, nil
}

// ─── Tasks ─────────────────────────────────────────────────────────────

func (s *Service) startTask(rawURL string) *Task {
	t := &Task{
		ID:        uuid.New().String(),
		URL:       rawURL,
		Status:    TaskProcessing,
		CreatedAt: time.Now().UTC(),
	}
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	if len(s.tasks) >= maxTasks {
		s.pruneTasksLocked(t.CreatedAt)
	}
	s.tasks[t.ID] = t
	return t
}

func (s *Service) pruneTasksLocked(now time.Time) {
	for id, t := range s.tasks {
		if t.Status != TaskProcessing && now.Sub(t.CompletedAt) > s.cfg.Jobs.Retention {
			delete(s.tasks, id)
		}
	}
}

func (s *Service) completeTask(id string, v *detector.Verdict) {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.Status = TaskCompleted
		t.Result = v
		t.CompletedAt = time.Now().UTC()
	}
}

func (s *Service) failTask(id string, err error) {
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.Status = TaskFailed
		t.Error = err.Error()
		t.CompletedAt = time.Now().UTC()
	}
}

// TaskStatus looks the task up in memory first, then among stored
// detections.
func (s *Service) TaskStatus(ctx context.Context, taskID string) (*Task, error) {
	s.tasksMu.Lock()
	if t, ok := s.tasks[taskID]; ok {
		cp := *t
		s.tasksMu.Unlock()
		return &cp, nil
	}
	s.tasksMu.Unlock()

	d, err := s.store.GetDetectionByTaskID(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrDetectionNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &Task{
		ID:          d.TaskID,
		URL:         d.URL,
		Status:      TaskCompleted,
		Result:      d.Result,
		CreatedAt:   d.CreatedAt,
		CompletedAt: d.CompletedAt,
	}, nil
}

// ─── Explanations ──────────────────────────────────────────────────────

// ExplainFeatures attributes features without rendering or page lookups.
func (s *Service) ExplainFeatures(features detector.Features, explainerType string) (*detector.Explanation, error) {
	if len(features) == 0 {
		return nil, ErrFeaturesRequired
	}
	exp := s.det.Explain(features.Clamp(), explainerType, "")
	exp.Visualization = ""
	return exp, nil
}

// ExplainHTML attributes features and renders the bar chart fragment.
func (s *Service) ExplainHTML(features detector.Features, explainerType string) (*detector.Explanation, error) {
	if len(features) == 0 {
		return nil, ErrFeaturesRequired
	}
	return s.det.Explain(features.Clamp(), explainerType, ""), nil
}

// ExplainElements attributes features and locates the page elements behind
// the top ones.
func (s *Service) ExplainElements(features detector.Features, explainerType, page string) (*detector.Explanation, error) {
	if strings.TrimSpace(page) == "" {
		return nil, ErrHTMLRequired
	}
	if len(features) == 0 {
		return nil, ErrFeaturesRequired
	}
	exp := s.det.Explain(features.Clamp(), explainerType, page)
	exp.Visualization = ""
	if exp.SuspiciousElements == nil {
		exp.SuspiciousElements = []detector.SuspiciousElement{}
	}
	return exp, nil
}

// ─── Feedback and reporting ────────────────────────────────────────────

// SubmitFeedback records user feedback on the stored verdict for rawURL. It
// returns store.ErrDetectionNotFound when the URL was never scanned.
func (s *Service) SubmitFeedback(ctx context.Context, rawURL string, isCorrect bool, comments string) (*store.Feedback, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, ErrURLRequired
	}
	fb, err := s.store.SaveFeedback(ctx, rawURL, isCorrect, comments)
	if err != nil {
		return nil, err
	}
	s.logger.Info("feedback submitted",
		logging.Field{Key: "url", Value: rawURL},
		logging.Field{Key: "is_correct", Value: isCorrect})
	return fb, nil
}

func (s *Service) Statistics(ctx context.Context) (*store.Statistics, error) {
	return s.store.Statistics(ctx)
}

func (s *Service) RecentDetections(ctx context.Context, limit int) ([]*store.Detection, error) {
	return s.store.RecentDetections(ctx, limit)
}

// Health always reports "ok"; the database state is informational.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{Status: "ok", Timestamp: time.Now().UTC(), Database: "connected"}
	if err := s.store.Ping(ctx); err != nil {
		h.Database = fmt.Sprintf("disconnected (%v)", err)
	}
	return h
}

func (s *Service) Info() Info {
	return Info{
		Name:        apiName,
		Version:     apiVersion,
		Environment: s.cfg.Environment,
		Features: []string{
			"Phishing URL Detection",
			"Content Analysis",
			"SHAP/LIME Explanations",
			"Suspicious Element Detection",
			"Email Link Scanning",
			"Lookalike Host Comparison",
			"SQLite Persistence",
		},
	}
}
