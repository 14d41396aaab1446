package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cipherlens/cipherlens/internal/app"
	"github.com/cipherlens/cipherlens/internal/cache"
	"github.com/cipherlens/cipherlens/internal/detector"
	"github.com/cipherlens/cipherlens/internal/server"
	"github.com/cipherlens/cipherlens/internal/store"
	"github.com/cipherlens/cipherlens/internal/testutil"
)

const (
	phishURL = "http://192.168.1.1/paypal/login.php"
	safeURL  = "https://www.google.com"
)

func newTestServer(t *testing.T, cfg app.ServerConfig) *server.Server {
	t.Helper()
	logger := &testutil.DummyLogger{}

	det, err := detector.New(logger)
	if err != nil {
		t.Fatalf("detector.New: %v", err)
	}
	st, err := store.Open(store.Config{Path: ":memory:"}, logger)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	snaps, err := store.OpenSnapshots(t.TempDir())
	if err != nil {
		t.Fatalf("store.OpenSnapshots: %v", err)
	}

	svc, err := app.NewService(app.DefaultConfig(), &app.Components{
		Detector:  det,
		Store:     st,
		Snapshots: snaps,
		Cache:     cache.NewMemoryCache(time.Hour),
		WebClient: &testutil.DummyWebClient{},
		Metrics:   app.NewMetrics(),
	}, logger)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	s, err := server.NewServer(svc, cfg, logger)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	var body map[string]any
	decodeJSON(t, rec, &body)
	if body["success"] != false || body["error"] == "" {
		t.Errorf("expected error payload, got %v", body)
	}
}

// ─── CORS ──────────────────────────────────────────────────────────────

func TestServer_CORS_HeaderPresent(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{})

	rec := doJSON(t, s, "GET", "/health", "")

	if origin := rec.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin *, got %q", origin)
	}
}

func TestServer_Preflight(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{})

	rec := doJSON(t, s, "OPTIONS", "/api/detect/url", "")

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if m := rec.Header().Get("Access-Control-Allow-Methods"); m != "POST" {
		t.Errorf("expected POST, got %q", m)
	}
}

// ─── Status ────────────────────────────────────────────────────────────

func TestServer_HealthAndInfo(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{})

	rec := doJSON(t, s, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var h map[string]any
	decodeJSON(t, rec, &h)
	if h["status"] != "ok" || h["database"] != "connected" {
		t.Errorf("unexpected health %v", h)
	}

	rec = doJSON(t, s, "GET", "/api/info", "")
	var info map[string]any
	decodeJSON(t, rec, &info)
	if info["success"] != true || info["name"] != "CipherLens API" {
		t.Errorf("unexpected info %v", info)
	}
}

// ─── Detection ─────────────────────────────────────────────────────────

func TestServer_DetectURL(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{})

	rec := doJSON(t, s, "POST", "/api/detect/url", `{"url":"`+phishURL+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Success bool   `json:"success"`
		TaskID  string `json:"taskId"`
		Status  string `json:"status"`
		URL     string `json:"url"`
		Result  struct {
			IsPhishing  bool   `json:"isPhishing"`
			ThreatLevel string `json:"threatLevel"`
		} `json:"result"`
	}
	decodeJSON(t, rec, &body)
	if !body.Success || body.TaskID == "" || body.Status != "completed" || body.URL != phishURL {
		t.Errorf("unexpected detection %+v", body)
	}
	if !body.Result.IsPhishing {
		t.Errorf("expected phishing verdict for %s", phishURL)
	}
}

func TestServer_DetectURL_Validation(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{})

	expectError(t, doJSON(t, s, "POST", "/api/detect/url", `{}`), http.StatusBadRequest)
	expectError(t, doJSON(t, s, "POST", "/api/detect/url", ""), http.StatusBadRequest)
	expectError(t, doJSON(t, s, "POST", "/api/detect/url", `{invalid}`), http.StatusBadRequest)
}

func TestServer_DetectContent(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{})

	page := `<html><body><form action=\"http://collect.example/post\"><input type=\"password\"></form></body></html>`
	rec := doJSON(t, s, "POST", "/api/detect/content", `{"url":"http://paypa1.com/login","content":"`+page+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	decodeJSON(t, rec, &body)
	features, _ := body["features"].(map[string]any)
	if features[detector.FeatureHasPasswordField] != 1.0 {
		t.Errorf("expected password field feature, got %v", features)
	}

	expectError(t, doJSON(t, s, "POST", "/api/detect/content", `{"url":"http://paypa1.com/login"}`), http.StatusBadRequest)
}

func TestServer_DetectBatch(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{})

	rec := doJSON(t, s, "POST", "/api/detect/batch", `{"urls":["`+phishURL+`","`+safeURL+`"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Success bool `json:"success"`
		Results []struct {
			URL    string `json:"url"`
			Result struct {
				IsPhishing bool `json:"isPhishing"`
			} `json:"result"`
		} `json:"results"`
	}
	decodeJSON(t, rec, &body)
	if !body.Success || len(body.Results) != 2 {
		t.Fatalf("unexpected batch %+v", body)
	}
	if body.Results[0].URL != phishURL || !body.Results[0].Result.IsPhishing || body.Results[1].Result.IsPhishing {
		t.Errorf("unexpected batch order or verdicts %+v", body.Results)
	}

	expectError(t, doJSON(t, s, "POST", "/api/detect/batch", `{"urls":[]}`), http.StatusBadRequest)
}

func TestServer_DetectEmail(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{})

	msg := "From: PayPal <service@paypa1.com>\r\n" +
		"To: user@example.org\r\n" +
		"Subject: Verify your account\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n\r\n" +
		`<p>Your account is locked. <a href="http://secure-paypa1.tk/login">Verify now</a></p>` + "\r\n"
	req := httptest.NewRequest("POST", "/api/detect/email", strings.NewReader(msg))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Success bool              `json:"success"`
		Links   []json.RawMessage `json:"links"`
	}
	decodeJSON(t, rec, &body)
	if !body.Success || len(body.Links) == 0 {
		t.Errorf("expected scanned links, got %+v", body)
	}

	expectError(t, doJSON(t, s, "POST", "/api/detect/email", "  "), http.StatusBadRequest)
}

func TestServer_TaskStatus(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{})

	rec := doJSON(t, s, "POST", "/api/detect/url", `{"url":"`+safeURL+`"}`)
	var det map[string]any
	decodeJSON(t, rec, &det)
	taskID, _ := det["taskId"].(string)

	rec = doJSON(t, s, "GET", "/api/detect/status/"+taskID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var task map[string]any
	decodeJSON(t, rec, &task)
	if task["success"] != true || task["status"] != "completed" || task["url"] != safeURL {
		t.Errorf("unexpected task %v", task)
	}

	expectError(t, doJSON(t, s, "GET", "/api/detect/status/unknown", ""), http.StatusNotFound)
}

func TestServer_RateLimit(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{RateLimit: 0.001, RateBurst: 1})

	if rec := doJSON(t, s, "POST", "/api/detect/url", `{"url":"`+safeURL+`"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	rec := doJSON(t, s, "POST", "/api/detect/url", `{"url":"`+safeURL+`"}`)
	expectError(t, rec, http.StatusTooManyRequests)

	// Non-detection routes are not limited.
	if rec := doJSON(t, s, "GET", "/api/statistics", ""); rec.Code != http.StatusOK {
		t.Errorf("expected statistics to pass, got %d", rec.Code)
	}
}

// ─── Explanations ──────────────────────────────────────────────────────

func TestServer_Explain(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{})
	features := `{"` + detector.FeatureHasPasswordField + `":1,"` + detector.FeatureHasIPAddress + `":1}`

	rec := doJSON(t, s, "POST", "/api/explain/features", `{"features":`+features+`,"explainer":"LIME"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Success      bool              `json:"success"`
		Explainer    string            `json:"explainer"`
		Explanations []json.RawMessage `json:"explanations"`
	}
	decodeJSON(t, rec, &body)
	if !body.Success || body.Explainer != "lime" || len(body.Explanations) == 0 {
		t.Errorf("unexpected explanation %+v", body)
	}

	rec = doJSON(t, s, "POST", "/api/explain/html", `{"features":`+features+`}`)
	var html map[string]any
	decodeJSON(t, rec, &html)
	if v, _ := html["visualization"].(string); v == "" {
		t.Errorf("expected visualization, got %v", html)
	}

	rec = doJSON(t, s, "POST", "/api/explain/elements", `{"features":`+features+`,"html":"<form><input type=\"password\"></form>"}`)
	var elems map[string]any
	decodeJSON(t, rec, &elems)
	if _, ok := elems["suspiciousElements"].([]any); !ok {
		t.Errorf("expected suspiciousElements list, got %v", elems)
	}

	expectError(t, doJSON(t, s, "POST", "/api/explain/features", `{}`), http.StatusBadRequest)
	expectError(t, doJSON(t, s, "POST", "/api/explain/elements", `{"features":`+features+`}`), http.StatusBadRequest)
}

// ─── Feedback and reporting ────────────────────────────────────────────

func TestServer_Feedback(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{})

	expectError(t, doJSON(t, s, "POST", "/api/feedback/submit", `{"url":"`+phishURL+`","isCorrect":true}`), http.StatusNotFound)
	expectError(t, doJSON(t, s, "POST", "/api/feedback/submit", `{"url":"`+phishURL+`"}`), http.StatusBadRequest)

	doJSON(t, s, "POST", "/api/detect/url", `{"url":"`+phishURL+`"}`)
	rec := doJSON(t, s, "POST", "/api/feedback/submit", `{"url":"`+phishURL+`","isCorrect":false,"comments":"corporate router"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	decodeJSON(t, rec, &body)
	if body["success"] != true || body["feedbackId"] == "" {
		t.Errorf("unexpected feedback response %v", body)
	}
}

func TestServer_StatisticsAndRecent(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{})

	doJSON(t, s, "POST", "/api/detect/url", `{"url":"`+phishURL+`"}`)
	doJSON(t, s, "POST", "/api/detect/url", `{"url":"`+safeURL+`"}`)

	rec := doJSON(t, s, "GET", "/api/statistics", "")
	var stats struct {
		Success    bool `json:"success"`
		Statistics struct {
			TotalScans       int `json:"total_scans"`
			PhishingDetected int `json:"phishing_detected"`
		} `json:"statistics"`
	}
	decodeJSON(t, rec, &stats)
	if stats.Statistics.TotalScans != 2 || stats.Statistics.PhishingDetected != 1 {
		t.Errorf("unexpected statistics %+v", stats)
	}

	rec = doJSON(t, s, "GET", "/api/recent-detections?limit=1", "")
	var recent struct {
		Detections []map[string]any `json:"detections"`
	}
	decodeJSON(t, rec, &recent)
	if len(recent.Detections) != 1 {
		t.Errorf("expected 1 recent detection, got %d", len(recent.Detections))
	}
}

func TestServer_Compare(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{})

	rec := doJSON(t, s, "POST", "/api/compare", `{"suspect":"paypa1.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	decodeJSON(t, rec, &body)
	if body["success"] != true || body["brand"] == nil {
		t.Errorf("expected closest brand in comparison, got %v", body)
	}

	expectError(t, doJSON(t, s, "POST", "/api/compare", `{}`), http.StatusBadRequest)
}

func TestServer_MetricsAndSwagger(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{})
	doJSON(t, s, "POST", "/api/detect/url", `{"url":"`+phishURL+`"}`)

	rec := doJSON(t, s, "GET", "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "cipherlens_scans_total") {
		t.Errorf("expected scan counter in metrics, got %d", rec.Code)
	}

	rec = doJSON(t, s, "GET", "/swagger/doc.json", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "CipherLens API") {
		t.Errorf("expected swagger document, got %d: %.200s", rec.Code, rec.Body.String())
	}
}

func TestServer_WithoutMetrics(t *testing.T) {
	t.Parallel()
	logger := &testutil.DummyLogger{}
	det, err := detector.New(logger)
	if err != nil {
		t.Fatalf("detector.New: %v", err)
	}
	st, err := store.Open(store.Config{Path: ":memory:"}, logger)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	svc, err := app.NewService(app.DefaultConfig(), &app.Components{Detector: det, Store: st}, logger)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	s, err := server.NewServer(svc, app.ServerConfig{}, logger)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if rec := doJSON(t, s, "POST", "/api/detect/url", `{"url":"`+phishURL+`"}`); rec.Code != http.StatusOK {
		t.Errorf("expected detection to work without metrics, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, s, "GET", "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for /metrics without metrics, got %d", rec.Code)
	}
}

// ─── Jobs ──────────────────────────────────────────────────────────────

const dataset = "url,is_phishing,category\n" + phishURL + ",1,phishing\n" + safeURL + ",0,legitimate\n"

func startDataset(t *testing.T, s http.Handler) string {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/dataset/load", strings.NewReader(dataset))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Job struct {
			ID string `json:"id"`
		} `json:"job"`
	}
	decodeJSON(t, rec, &body)
	if body.Job.ID == "" {
		t.Fatal("expected job id")
	}
	return body.Job.ID
}

func TestServer_DatasetJob(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{})
	id := startDataset(t, s)

	deadline := time.Now().Add(10 * time.Second)
	var job struct {
		Status  string `json:"status"`
		Dataset struct {
			Loaded int `json:"loaded"`
		} `json:"dataset"`
	}
	for {
		rec := doJSON(t, s, "GET", "/api/jobs/"+id, "")
		var body struct {
			Job json.RawMessage `json:"job"`
		}
		decodeJSON(t, rec, &body)
		if err := json.Unmarshal(body.Job, &job); err != nil {
			t.Fatalf("decode job: %v", err)
		}
		if job.Status == "done" || job.Status == "failed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not finish, last status %s", job.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job.Status != "done" || job.Dataset.Loaded != 2 {
		t.Errorf("unexpected finished job %+v", job)
	}

	rec := doJSON(t, s, "GET", "/api/jobs", "")
	var list struct {
		Jobs []map[string]any `json:"jobs"`
	}
	decodeJSON(t, rec, &list)
	if len(list.Jobs) != 1 {
		t.Errorf("expected 1 job, got %d", len(list.Jobs))
	}

	if rec := doJSON(t, s, "DELETE", "/api/jobs/"+id, ""); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 canceling a finished job, got %d", rec.Code)
	}
}

func TestServer_Jobs_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{})

	expectError(t, doJSON(t, s, "GET", "/api/jobs/nope", ""), http.StatusNotFound)
	expectError(t, doJSON(t, s, "DELETE", "/api/jobs/nope", ""), http.StatusNotFound)
	expectError(t, doJSON(t, s, "GET", "/ws/jobs/nope", ""), http.StatusNotFound)
}

func TestServer_JobWebSocket(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{})
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)

	id := startDataset(t, s)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/jobs/"+id, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var first map[string]any
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read job: %v", err)
	}
	if first["id"] != id {
		t.Errorf("expected job %s first, got %v", id, first)
	}

	// The stream ends when the job does.
	for {
		var ev map[string]any
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		if ev["job_id"] != id {
			t.Errorf("unexpected event %v", ev)
		}
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, app.ServerConfig{})

	rec := doJSON(t, s, "POST", "/api/detect/content", `{"url":"http://paypa1.com/login","content":"<form><input type=\"password\"></form>"}`)
	var det struct {
		Snapshot string `json:"snapshot"`
	}
	decodeJSON(t, rec, &det)
	if det.Snapshot == "" {
		t.Fatalf("expected snapshot id, got %s", rec.Body.String())
	}

	rec = doJSON(t, s, "GET", "/api/snapshots/"+det.Snapshot, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("expected text/plain, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `type="password"`) {
		t.Errorf("unexpected snapshot body %q", rec.Body.String())
	}

	expectError(t, doJSON(t, s, "GET", "/api/snapshots/not-a-hash", ""), http.StatusNotFound)
}
