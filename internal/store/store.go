package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cipherlens/cipherlens/internal/detector"
	"github.com/cipherlens/cipherlens/internal/logging"
)

//go:embed schema.sql
var schemaFS embed.FS

var (
	ErrDetectionNotFound = errors.New("detection not found")
	ErrEmptyURL          = errors.New("detection url is required")
)

const memoryPath = ":memory:"

// Store persists detections, feedback and global statistics in SQLite.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens (creating if needed) the database at cfg.Path and applies the
// schema.
func Open(cfg Config, logger logging.Logger) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = memoryPath
	}
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == memoryPath {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	s, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle and runs the schema.
func New(db *sql.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With(logging.Field{Key: "component", Value: "store"}),
	}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Detections ────────────────────────────────────────────────────────

// SaveDetection upserts d by URL and bumps the global counters in the same
// transaction. ID and CreatedAt of an existing row are preserved and copied
// back into d.
func (s *Store) SaveDetection(ctx context.Context, d *Detection) error {
	if d == nil || d.URL == "" {
		return ErrEmptyURL
	}
	now := time.Now()
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.TaskID == "" {
		d.TaskID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.CompletedAt.IsZero() {
		d.CompletedAt = now
	}
	if d.Result != nil {
		d.IsPhishing = d.Result.IsPhishing
		d.Score = d.Result.Score
		d.Confidence = d.Result.Confidence
		d.ThreatLevel = d.Result.ThreatLevel
	}
	if d.ThreatLevel == "" {
		d.ThreatLevel = detector.ThreatLow
	}

	features := d.Features
	if features == nil {
		features = detector.Features{}
	}
	featuresJSON, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	resultJSON, err := json.Marshal(d.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	var label sql.NullBool
	if d.DatasetLabel != nil {
		label = sql.NullBool{Bool: *d.DatasetLabel, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO detections (id, task_id, url, features, result, is_phishing, score, confidence,
                                 threat_level, has_content, category, dataset_label, content_digest,
                                 created_at, completed_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(url) DO UPDATE SET
             task_id = excluded.task_id,
             features = excluded.features,
             result = excluded.result,
             is_phishing = excluded.is_phishing,
             score = excluded.score,
             confidence = excluded.confidence,
             threat_level = excluded.threat_level,
             has_content = excluded.has_content,
             category = excluded.category,
             dataset_label = excluded.dataset_label,
             content_digest = excluded.content_digest,
             completed_at = excluded.completed_at`,
		d.ID, d.TaskID, d.URL, string(featuresJSON), string(resultJSON), d.IsPhishing, d.Score, d.Confidence,
		string(d.ThreatLevel), d.HasContent, d.Category, label, d.ContentDigest,
		d.CreatedAt.UnixMilli(), d.CompletedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert detection: %w", err)
	}

	var createdAt int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id, created_at FROM detections WHERE url = ?`, d.URL,
	).Scan(&d.ID, &createdAt); err != nil {
		return fmt.Errorf("reload detection id: %w", err)
	}
	d.CreatedAt = time.UnixMilli(createdAt)

	phishing, safe := 0, 1
	if d.IsPhishing {
		phishing, safe = 1, 0
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO statistics (id, total_scans, phishing_detected, safe_sites, last_updated)
         VALUES (1, 1, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             total_scans = total_scans + 1,
             phishing_detected = phishing_detected + excluded.phishing_detected,
             safe_sites = safe_sites + excluded.safe_sites,
             last_updated = excluded.last_updated`,
		phishing, safe, now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("update statistics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit detection: %w", err)
	}

	s.logger.Debug("saved detection",
		logging.Field{Key: "url", Value: d.URL},
		logging.Field{Key: "is_phishing", Value: d.IsPhishing})
	return nil
}

const detectionColumns = `id, task_id, url, features, result, is_phishing, score, confidence,
       threat_level, has_content, category, dataset_label, content_digest, created_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDetection(row rowScanner) (*Detection, error) {
	var (
		d                       Detection
		featuresJSON, resultRaw string
		threat                  string
		label                   sql.NullBool
		createdAt, completedAt  int64
	)
	if err := row.Scan(&d.ID, &d.TaskID, &d.URL, &featuresJSON, &resultRaw, &d.IsPhishing, &d.Score,
		&d.Confidence, &threat, &d.HasContent, &d.Category, &label, &d.ContentDigest,
		&createdAt, &completedAt); err != nil {
		return nil, err
	}
	d.ThreatLevel = detector.ThreatLevel(threat)
	d.CreatedAt = time.UnixMilli(createdAt)
	d.CompletedAt = time.UnixMilli(completedAt)
	if label.Valid {
		v := label.Bool
		d.DatasetLabel = &v
	}
	if err := json.Unmarshal([]byte(featuresJSON), &d.Features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	if resultRaw != "" && resultRaw != "null" {
		var v detector.Verdict
		if err := json.Unmarshal([]byte(resultRaw), &v); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		d.Result = &v
	}
	return &d, nil
}

func (s *Store) getDetection(ctx context.Context, where string, arg any) (*Detection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+detectionColumns+` FROM detections WHERE `+where+` LIMIT 1`, arg)
	d, err := scanDetection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDetectionNotFound
		}
		return nil, err
	}
	return d, nil
}

// GetDetectionByURL returns ErrDetectionNotFound when the URL was never scanned.
func (s *Store) GetDetectionByURL(ctx context.Context, url string) (*Detection, error) {
	return s.getDetection(ctx, "url = ?", url)
}

func (s *Store) GetDetectionByTaskID(ctx context.Context, taskID string) (*Detection, error) {
	return s.getDetection(ctx, "task_id = ?", taskID)
}

// FreshDetection returns the stored detection for url only if it completed
// within maxAge.
func (s *Store) FreshDetection(ctx context.Context, url string, maxAge time.Duration) (*Detection, error) {
	d, err := s.GetDetectionByURL(ctx, url)
	if err != nil {
		return nil, err
	}
	if time.Since(d.CompletedAt) >= maxAge {
		return nil, ErrDetectionNotFound
	}
	return d, nil
}

// RecentDetections returns up to limit detections, newest first.
func (s *Store) RecentDetections(ctx context.Context, limit int) ([]*Detection, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+detectionColumns+`
         FROM detections
         ORDER BY completed_at DESC, rowid DESC
         LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*Detection, 0, limit)
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// HasDetection reports whether url has been stored.
func (s *Store) HasDetection(ctx context.Context, url string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM detections WHERE url = ?`, url).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// SimilarContent returns stored pages whose fingerprint is within
// maxDistance of digest, closest first.
func (s *Store) SimilarContent(ctx context.Context, digest string, maxDistance int) ([]SimilarPage, error) {
	if digest == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, content_digest, is_phishing, threat_level
         FROM detections
         WHERE content_digest <> ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SimilarPage
	for rows.Next() {
		var (
			p      SimilarPage
			other  string
			threat string
		)
		if err := rows.Scan(&p.URL, &other, &p.IsPhishing, &threat); err != nil {
			return nil, err
		}
		dist, err := Distance(digest, other)
		if err != nil {
			continue
		}
		if dist <= maxDistance {
			p.Distance = dist
			p.ThreatLevel = detector.ThreatLevel(threat)
			out = append(out, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].URL < out[j].URL
	})
	return out, nil
}

// ─── Feedback ──────────────────────────────────────────────────────────

// SaveFeedback records whether the stored verdict for url was correct.
func (s *Store) SaveFeedback(ctx context.Context, url string, isCorrect bool, comments string) (*Feedback, error) {
	d, err := s.GetDetectionByURL(ctx, url)
	if err != nil {
		return nil, err
	}
	fb := &Feedback{
		ID:          uuid.New().String(),
		DetectionID: d.ID,
		URL:         url,
		IsCorrect:   isCorrect,
		Comments:    comments,
		CreatedAt:   time.Now(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, detection_id, url, is_correct, comments, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.DetectionID, fb.URL, fb.IsCorrect, fb.Comments, fb.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert feedback: %w", err)
	}
	return fb, nil
}

// FeedbackForURL lists feedback entries for url, oldest first.
func (s *Store) FeedbackForURL(ctx context.Context, url string) ([]Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, detection_id, url, is_correct, comments, created_at
         FROM feedback
         WHERE url = ?
         ORDER BY created_at ASC, rowid ASC`, url)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		var (
			fb        Feedback
			createdAt int64
		)
		if err := rows.Scan(&fb.ID, &fb.DetectionID, &fb.URL, &fb.IsCorrect, &fb.Comments, &createdAt); err != nil {
			return nil, err
		}
		fb.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, fb)
	}
	return out, rows.Err()
}

// ─── Statistics ────────────────────────────────────────────────────────

// Statistics returns the global counters; all zero before the first scan.
func (s *Store) Statistics(ctx context.Context) (*Statistics, error) {
	var (
		st          Statistics
		lastUpdated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT total_scans, phishing_detected, safe_sites, last_updated
         FROM statistics WHERE id = 1`,
	).Scan(&st.TotalScans, &st.PhishingDetected, &st.SafeSites, &lastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &Statistics{}, nil
		}
		return nil, err
	}
	st.LastUpdated = time.UnixMilli(lastUpdated)
	return &st, nil
}
