package store

import (
	"time"

	"github.com/cipherlens/cipherlens/internal/detector"
)

// Config locates the database file. ":memory:" keeps everything in process.
type Config struct {
	Path string `mapstructure:"path"`

	// SnapshotDir keeps the pages behind content detections. Empty disables
	// snapshots.
	SnapshotDir string `mapstructure:"snapshot_dir"`
}

// Detection is one stored verdict, keyed by URL.
type Detection struct {
	ID            string               `json:"id"`
	TaskID        string               `json:"taskId"`
	URL           string               `json:"url"`
	Features      detector.Features    `json:"features"`
	Result        *detector.Verdict    `json:"result"`
	IsPhishing    bool                 `json:"isPhishing"`
	Score         float64              `json:"score"`
	Confidence    float64              `json:"confidence"`
	ThreatLevel   detector.ThreatLevel `json:"threatLevel"`
	HasContent    bool                 `json:"hasContentAnalysis"`
	Category      string               `json:"category,omitempty"`
	DatasetLabel  *bool                `json:"datasetLabel,omitempty"`
	ContentDigest string               `json:"contentDigest,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
	CompletedAt   time.Time            `json:"completedAt"`
}

type Feedback struct {
	ID          string    `json:"id"`
	DetectionID string    `json:"detectionId"`
	URL         string    `json:"url"`
	IsCorrect   bool      `json:"isCorrect"`
	Comments    string    `json:"comments,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Statistics are the global counters updated on every saved detection.
type Statistics struct {
	TotalScans       int64     `json:"total_scans"`
	PhishingDetected int64     `json:"phishing_detected"`
	SafeSites        int64     `json:"safe_sites"`
	LastUpdated      time.Time `json:"last_updated"`
}

// SimilarPage is a stored detection whose page fingerprint is close to a
// probe fingerprint.
type SimilarPage struct {
	URL         string               `json:"url"`
	Distance    int                  `json:"distance"`
	IsPhishing  bool                 `json:"isPhishing"`
	ThreatLevel detector.ThreatLevel `json:"threatLevel"`
}
