package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cipherlens/cipherlens/internal/app"
	"github.com/cipherlens/cipherlens/internal/detector"
	"github.com/cipherlens/cipherlens/internal/logging"
)

// --- Service status ---

// handleHealth godoc
// @Summary Service health
// @Tags status
// @Produce json
// @Success 200 {object} app.Health
// @Router /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Health(r.Context()))
}

// handleInfo godoc
// @Summary API name, version and features
// @Tags status
// @Produce json
// @Success 200 {object} InfoResponse
// @Router /api/info [get]
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{Success: true, Info: s.svc.Info()})
}

// --- Detection ---

// handleDetectURL godoc
// @Summary Score a URL by its URL features
// @Tags detection
// @Accept json
// @Produce json
// @Param request body DetectURLRequest true "URL to score"
// @Success 200 {object} DetectionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/detect/url [post]
func (s *Server) handleDetectURL(w http.ResponseWriter, r *http.Request) {
	var body DetectURLRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := s.svc.DetectURL(r.Context(), body.URL)
	s.writeDetection(w, "detect url", res, err)
}

// handleDetectContent godoc
// @Summary Score a URL together with its page
// @Tags detection
// @Accept json
// @Produce json
// @Param request body DetectContentRequest true "URL and page"
// @Success 200 {object} DetectionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/detect/content [post]
func (s *Server) handleDetectContent(w http.ResponseWriter, r *http.Request) {
	var body DetectContentRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := s.svc.DetectContent(r.Context(), body.URL, body.Content, body.Fetch)
	s.writeDetection(w, "detect content", res, err)
}

// writeDetection writes a detection outcome. A failed detection keeps its
// task id in the error payload.
func (s *Server) writeDetection(w http.ResponseWriter, op string, res *app.DetectionResult, err error) {
	if err != nil {
		if res != nil && res.TaskID != "" {
			s.logger.Error("request failed", logging.Field{Key: "op", Value: op}, logging.Field{Key: "task_id", Value: res.TaskID}, logging.Field{Key: "error", Value: err.Error()})
			writeJSON(w, statusFor(err), map[string]any{"success": false, "error": err.Error(), "taskId": res.TaskID})
			return
		}
		s.writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, DetectionResponse{Success: true, DetectionResult: res})
}

// handleDetectBatch godoc
// @Summary Score many URLs by their URL features
// @Tags detection
// @Accept json
// @Produce json
// @Param request body DetectBatchRequest true "URLs to score"
// @Success 200 {object} BatchResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/detect/batch [post]
func (s *Server) handleDetectBatch(w http.ResponseWriter, r *http.Request) {
	var body DetectBatchRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	items, err := s.svc.DetectBatch(r.Context(), body.URLs)
	if err != nil {
		s.writeServiceError(w, "detect batch", err)
		return
	}
	s.logger.Info("scored batch", logging.Field{Key: "count", Value: len(items)})
	writeJSON(w, http.StatusOK, BatchResponse{Success: true, Results: items})
}

// handleDetectEmail godoc
// @Summary Scan a raw RFC 5322 message
// @Tags detection
// @Accept plain
// @Produce json
// @Param message body string true "raw message"
// @Success 200 {object} EmailResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/detect/email [post]
func (s *Server) handleDetectEmail(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading message: "+err.Error())
		return
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	rep, err := s.svc.ScanEmail(r.Context(), bytes.NewReader(raw))
	if err != nil {
		s.writeServiceError(w, "detect email", err)
		return
	}
	s.logger.Info("scanned email", logging.Field{Key: "links", Value: len(rep.Links)}, logging.Field{Key: "is_phishing", Value: rep.IsPhishing})
	writeJSON(w, http.StatusOK, EmailResponse{Success: true, Report: rep})
}

// handleTaskStatus godoc
// @Summary Status of a detection task
// @Tags detection
// @Produce json
// @Param taskID path string true "task id"
// @Success 200 {object} TaskResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/detect/status/{taskID} [get]
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.svc.TaskStatus(r.Context(), taskID)
	if err != nil {
		s.writeServiceError(w, "task status", err)
		return
	}
	resp := TaskResponse{Success: task.Status != app.TaskFailed, Task: task}
	if task.Status == app.TaskProcessing {
		resp.Message = "Detection is still processing"
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Explanations ---

// handleExplainFeatures godoc
// @Summary Attribute a feature mapping
// @Tags explain
// @Accept json
// @Produce json
// @Param request body ExplainRequest true "features and explainer"
// @Success 200 {object} ExplanationResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/explain/features [post]
func (s *Server) handleExplainFeatures(w http.ResponseWriter, r *http.Request) {
	s.explain(w, r, "explain features", func(body ExplainRequest) (*detector.Explanation, error) {
		return s.svc.ExplainFeatures(body.Features, body.Explainer)
	})
}

// handleExplainHTML godoc
// @Summary Attribute a feature mapping and render it as HTML
// @Tags explain
// @Accept json
// @Produce json
// @Param request body ExplainRequest true "features and explainer"
// @Success 200 {object} ExplanationResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/explain/html [post]
func (s *Server) handleExplainHTML(w http.ResponseWriter, r *http.Request) {
	s.explain(w, r, "explain html", func(body ExplainRequest) (*detector.Explanation, error) {
		return s.svc.ExplainHTML(body.Features, body.Explainer)
	})
}

// handleExplainElements godoc
// @Summary Locate the page elements behind the top attributions
// @Tags explain
// @Accept json
// @Produce json
// @Param request body ExplainRequest true "features, explainer and html"
// @Success 200 {object} ExplanationResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/explain/elements [post]
func (s *Server) handleExplainElements(w http.ResponseWriter, r *http.Request) {
	s.explain(w, r, "explain elements", func(body ExplainRequest) (*detector.Explanation, error) {
		return s.svc.ExplainElements(body.Features, body.Explainer, body.HTML)
	})
}

func (s *Server) explain(w http.ResponseWriter, r *http.Request, op string, fn func(ExplainRequest) (*detector.Explanation, error)) {
	var body ExplainRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	exp, err := fn(body)
	if err != nil {
		s.writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ExplanationResponse{Success: true, Explanation: exp})
}

// --- Feedback and reporting ---

// handleSubmitFeedback godoc
// @Summary Grade a stored verdict
// @Tags feedback
// @Accept json
// @Produce json
// @Param request body FeedbackRequest true "feedback"
// @Success 200 {object} FeedbackResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/feedback/submit [post]
func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var body FeedbackRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(body.URL) == "" || body.IsCorrect == nil {
		writeError(w, http.StatusBadRequest, "URL and feedback status are required")
		return
	}
	fb, err := s.svc.SubmitFeedback(r.Context(), body.URL, *body.IsCorrect, body.Comments)
	if err != nil {
		s.writeServiceError(w, "submit feedback", err)
		return
	}
	writeJSON(w, http.StatusOK, FeedbackResponse{Success: true, Message: "Feedback submitted successfully", FeedbackID: fb.ID})
}

// handleStatistics godoc
// @Summary Global scan counters
// @Tags reporting
// @Produce json
// @Success 200 {object} StatisticsResponse
// @Router /api/statistics [get]
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Statistics(r.Context())
	if err != nil {
		s.writeServiceError(w, "statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, StatisticsResponse{Success: true, Statistics: stats})
}

// handleRecentDetections godoc
// @Summary Most recent stored detections
// @Tags reporting
// @Produce json
// @Param limit query int false "how many" default(10)
// @Success 200 {object} RecentDetectionsResponse
// @Router /api/recent-detections [get]
func (s *Server) handleRecentDetections(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, err := strconv.Atoi(ls); err == nil && v > 0 {
			limit = v
		}
	}
	ds, err := s.svc.RecentDetections(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, "recent detections", err)
		return
	}
	writeJSON(w, http.StatusOK, RecentDetectionsResponse{Success: true, Detections: ds})
}

// handleCompare godoc
// @Summary Compare a suspect host with a reference or the closest brand
// @Tags reporting
// @Accept json
// @Produce json
// @Param request body CompareRequest true "hosts"
// @Success 200 {object} CompareResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/compare [post]
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var body CompareRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := s.svc.Compare(body.Suspect, body.Reference)
	if err != nil {
		s.writeServiceError(w, "compare", err)
		return
	}
	writeJSON(w, http.StatusOK, CompareResponse{Success: true, CompareResult: res})
}

// handleSnapshot godoc
// @Summary Page kept by a content detection, served as plain text
// @Tags reporting
// @Produce plain
// @Param snapshotID path string true "snapshot id"
// @Success 200 {string} string
// @Failure 404 {object} ErrorResponse
// @Router /api/snapshots/{snapshotID} [get]
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	page, err := s.svc.Snapshot(chi.URLParam(r, "snapshotID"))
	if err != nil {
		s.writeServiceError(w, "snapshot", err)
		return
	}
	// never let a browser render a captured kit
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

// --- Jobs (REST) ---

// handleLoadDataset godoc
// @Summary Load a labelled CSV dataset in a background job
// @Description The request body is the CSV (url,is_phishing,category). An empty body loads the configured default dataset.
// @Tags jobs
// @Accept plain
// @Produce json
// @Success 202 {object} JobResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/dataset/load [post]
func (s *Server) handleLoadDataset(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading dataset: "+err.Error())
		return
	}

	var (
		src    io.ReadCloser = io.NopCloser(bytes.NewReader(raw))
		source               = "upload"
	)
	if len(bytes.TrimSpace(raw)) == 0 {
		src, source, err = s.svc.OpenDataset("")
		if err != nil {
			s.writeServiceError(w, "load dataset", err)
			return
		}
	}

	// The job outlives the request.
	job, err := s.svc.StartDatasetJob(context.Background(), src, source)
	if err != nil {
		s.writeServiceError(w, "load dataset", err)
		return
	}
	s.logger.Info("started dataset job", logging.Field{Key: "job_id", Value: job.ID}, logging.Field{Key: "source", Value: source})
	writeJSON(w, http.StatusAccepted, JobResponse{Success: true, Job: job})
}

// handleGetJob godoc
// @Summary One job
// @Tags jobs
// @Produce json
// @Param jobID path string true "job id"
// @Success 200 {object} JobResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/jobs/{jobID} [get]
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.svc.GetJob(jobID)
	if job == nil {
		s.logger.Warn("getting job: not found", logging.Field{Key: "job_id", Value: jobID})
		writeError(w, http.StatusNotFound, app.ErrJobNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, JobResponse{Success: true, Job: job})
}

// handleCancelJob godoc
// @Summary Cancel a job
// @Tags jobs
// @Param jobID path string true "job id"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /api/jobs/{jobID} [delete]
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.svc.CancelJob(jobID); err != nil {
		s.writeServiceError(w, "cancel job", err)
		return
	}
	s.logger.Info("canceled job", logging.Field{Key: "job_id", Value: jobID})
	writeJSON(w, http.StatusNoContent, nil)
}

// handleListJobs godoc
// @Summary All known jobs
// @Tags jobs
// @Produce json
// @Success 200 {object} JobsResponse
// @Router /api/jobs [get]
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.svc.ListJobs()
	writeJSON(w, http.StatusOK, JobsResponse{Success: true, Jobs: jobs})
}

// --- WebSockets ---

// handleJobWS streams a job: first its current state, then every event until
// the job ends.
func (s *Server) handleJobWS(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	events, unsubscribe, err := s.svc.SubscribeJob(jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, app.ErrJobNotFound.Error())
		return
	}
	defer unsubscribe()
	job := s.svc.GetJob(jobID)
	if job == nil {
		writeError(w, http.StatusNotFound, app.ErrJobNotFound.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	_ = conn.WriteJSON(job)

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			// Client went away; the job keeps running.
			s.logger.Debug("job stream closed", logging.Field{Key: "job_id", Value: jobID}, logging.Field{Key: "error", Value: err.Error()})
			return
		}
	}
}
