package server

import (
	"github.com/cipherlens/cipherlens/internal/app"
	"github.com/cipherlens/cipherlens/internal/detector"
	"github.com/cipherlens/cipherlens/internal/mailscan"
	"github.com/cipherlens/cipherlens/internal/store"
)

// DetectURLRequest asks for a URL-only verdict.
type DetectURLRequest struct {
	URL string `json:"url" example:"http://192.168.1.1/paypal/login.php"`
}

// DetectContentRequest asks for a verdict over a URL and its page. With Fetch
// set and Content empty the server retrieves the page itself.
type DetectContentRequest struct {
	URL     string `json:"url" example:"http://paypa1.com/login"`
	Content string `json:"content" example:"<form><input type=\"password\"></form>"`
	Fetch   bool   `json:"fetch" example:"false"`
}

type DetectBatchRequest struct {
	URLs []string `json:"urls" example:"[\"http://paypa1.com/login\",\"https://www.google.com\"]"`
}

// ExplainRequest carries a feature mapping and the explainer to use
// ("shap" or "lime"). HTML is only read by the elements endpoint.
type ExplainRequest struct {
	Features  detector.Features `json:"features"`
	Explainer string            `json:"explainer" example:"shap"`
	HTML      string            `json:"html,omitempty"`
}

// FeedbackRequest grades a stored verdict. IsCorrect is required.
type FeedbackRequest struct {
	URL       string `json:"url" example:"http://paypa1.com/login"`
	IsCorrect *bool  `json:"isCorrect" example:"true"`
	Comments  string `json:"comments" example:"confirmed phishing kit"`
}

// CompareRequest compares a suspect host with a reference. An empty
// reference selects the closest known brand.
type CompareRequest struct {
	Suspect   string `json:"suspect" example:"paypa1.com"`
	Reference string `json:"reference" example:"paypal.com"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Success bool   `json:"success" example:"false"`
	Error   string `json:"error" example:"URL is required"`
}

type DetectionResponse struct {
	Success bool `json:"success"`
	*app.DetectionResult
}

type BatchResponse struct {
	Success bool            `json:"success"`
	Results []app.BatchItem `json:"results"`
}

type EmailResponse struct {
	Success bool `json:"success"`
	*mailscan.Report
}

// TaskResponse reports a task; Success is false for failed tasks.
type TaskResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	*app.Task
}

type ExplanationResponse struct {
	Success bool `json:"success"`
	*detector.Explanation
}

type FeedbackResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	FeedbackID string `json:"feedbackId"`
}

type StatisticsResponse struct {
	Success    bool              `json:"success"`
	Statistics *store.Statistics `json:"statistics"`
}

type RecentDetectionsResponse struct {
	Success    bool               `json:"success"`
	Detections []*store.Detection `json:"detections"`
}

type CompareResponse struct {
	Success bool `json:"success"`
	*app.CompareResult
}

type InfoResponse struct {
	Success bool `json:"success"`
	app.Info
}

type JobResponse struct {
	Success bool     `json:"success"`
	Job     *app.Job `json:"job"`
}

type JobsResponse struct {
	Success bool      `json:"success"`
	Jobs    []app.Job `json:"jobs"`
}
