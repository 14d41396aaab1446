package webclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/cipherlens/cipherlens/internal/logging"
)

// ChromedpClient renders pages in a headless browser so script-built login
// forms are visible to the content extractor.
type ChromedpClient struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	timeout     time.Duration
	idleAfter   time.Duration
	maxBody     int64
	logger      logging.Logger
}

// NewChromedpClient prepares an exec allocator. The browser process is started
// on the first Fetch.
func NewChromedpClient(cfg Config, logger logging.Logger) (*ChromedpClient, error) {
	if logger == nil {
		return nil, errors.New("chromedp webclient: nil logger")
	}
	cfg = cfg.withDefaults()

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	componentLogger := logger.With(logging.Field{Key: "backend", Value: "chromedp"})
	componentLogger.Info("created chromedp webclient",
		logging.Field{Key: "timeout", Value: cfg.Timeout.String()},
		logging.Field{Key: "idle_after", Value: cfg.IdleAfter.String()},
		logging.Field{Key: "headless", Value: cfg.Headless})

	return &ChromedpClient{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		timeout:     cfg.Timeout,
		idleAfter:   cfg.IdleAfter,
		maxBody:     cfg.MaxBodyBytes,
		logger:      componentLogger,
	}, nil
}

// networkIdle reports when no request has been in flight for idleAfter.
type networkIdle struct {
	idle      chan struct{}
	idleAfter time.Duration

	activeReqs int32
	timerMutex sync.Mutex
	timer      *time.Timer
	once       sync.Once
}

func (n *networkIdle) arm() {
	n.timerMutex.Lock()
	defer n.timerMutex.Unlock()

	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.idleAfter, func() {
		if atomic.LoadInt32(&n.activeReqs) == 0 {
			n.once.Do(func() { close(n.idle) })
		}
	})
}

func (n *networkIdle) stop() {
	n.timerMutex.Lock()
	defer n.timerMutex.Unlock()
	if n.timer != nil {
		n.timer.Stop()
	}
}

// documentResponse is the main-frame response seen during navigation.
type documentResponse struct {
	mu      sync.Mutex
	seen    bool
	status  int
	headers http.Header
}

func (d *documentResponse) record(resp *network.Response) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen || resp == nil {
		return
	}
	d.seen = true
	d.status = int(resp.Status)
	d.headers = http.Header{}
	for k, v := range resp.Headers {
		d.headers.Set(k, fmt.Sprint(v))
	}
}

func (d *documentResponse) result() (int, http.Header) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.seen {
		return http.StatusOK, http.Header{}
	}
	return d.status, d.headers
}

func waitNetworkIdle(ctx context.Context, idleAfter time.Duration, doc *documentResponse) *networkIdle {
	n := &networkIdle{idle: make(chan struct{}), idleAfter: idleAfter}

	chromedp.ListenTarget(ctx,
		func(ev any) {
			switch e := ev.(type) {
			case *network.EventRequestWillBeSent:
				atomic.AddInt32(&n.activeReqs, 1)
			case *network.EventResponseReceived:
				if e.Type == network.ResourceTypeDocument {
					doc.record(e.Response)
				}
			case *network.EventLoadingFinished, *network.EventLoadingFailed:
				if atomic.AddInt32(&n.activeReqs, -1) <= 0 {
					n.arm()
				}
			}
		})

	return n
}

// Fetch renders rawURL and returns the DOM once the network has been idle
// for IdleAfter.
func (cdc *ChromedpClient) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if _, err := checkTarget(rawURL); err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(cdc.allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, cdc.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	doc := &documentResponse{}
	idle := waitNetworkIdle(tabCtx, cdc.idleAfter, doc)
	defer idle.stop()

	cdc.logger.Debug("navigating", logging.Field{Key: "url", Value: rawURL})
	if err := chromedp.Run(tabCtx, network.Enable(), chromedp.Navigate(rawURL)); err != nil {
		cdc.logger.Warn("navigation failed",
			logging.Field{Key: "url", Value: rawURL},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("navigate: %w", err)
	}

	// Pages that issue no further requests still settle after idleAfter.
	idle.arm()
	select {
	case <-idle.idle:
	case <-tabCtx.Done():
		return nil, fmt.Errorf("wait for network idle: %w", tabCtx.Err())
	}

	var html, location string
	if err := chromedp.Run(tabCtx,
		chromedp.OuterHTML("html", &html),
		chromedp.Location(&location),
	); err != nil {
		return nil, fmt.Errorf("read dom: %w", err)
	}

	body := []byte(html)
	truncated := int64(len(body)) > cdc.maxBody
	if truncated {
		body = body[:cdc.maxBody]
	}
	status, headers := doc.result()

	return &Page{
		URL:         rawURL,
		FinalURL:    location,
		StatusCode:  status,
		ContentType: headers.Get("Content-Type"),
		Header:      headers,
		HTML:        body,
		Truncated:   truncated,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

func (cdc *ChromedpClient) Close() error {
	cdc.logger.Info("closing chromedp webclient")
	cdc.allocCancel()
	return nil
}
