// Package callback delivers analysis results to the calling service with a single
// HTTP PUT authenticated by a pre-shared secret in the payload.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/JakeFAU/genre-analyzer/internal/analysis"
)

const defaultTimeout = 10 * time.Second

// Waiter paces outbound requests to a URL.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls the callback target.
type Config struct {
	URL       string
	SecretKey string
	Timeout   time.Duration
	// ReportFailures adds the status field to every payload.
	ReportFailures bool
	// Limiter is optional.
	Limiter Waiter
}

// Payload is the JSON body the calling service expects.
type Payload struct {
	AnalysisRequestID int64                  `json:"analysis_request_id"`
	SecretKey         string                 `json:"secret_key"`
	AnalysisGenreData []analysis.ScoreResult `json:"analysis_genre_data"`
	Status            analysis.ReportStatus  `json:"status,omitempty"`
	Error             string                 `json:"error,omitempty"`
}

// HTTPNotifier PUTs reports to the configured URL. It makes exactly one attempt per call.
type HTTPNotifier struct {
	url            string
	secret         string
	reportFailures bool
	limiter        Waiter
	client         *http.Client
}

// NewHTTPNotifier validates the config and builds a notifier.
func NewHTTPNotifier(cfg Config) (*HTTPNotifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("callback url is empty")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("callback url %q is not an absolute http(s) url", cfg.URL)
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("callback secret key is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPNotifier{
		url:            cfg.URL,
		secret:         cfg.SecretKey,
		reportFailures: cfg.ReportFailures,
		limiter:        cfg.Limiter,
		client:         &http.Client{Timeout: timeout},
	}, nil
}

// BuildPayload turns a report into the wire payload. Results are never encoded as null.
func (n *HTTPNotifier) BuildPayload(report analysis.Report) Payload {
	results := report.Results
	if results == nil {
		results = []analysis.ScoreResult{}
	}
	p := Payload{
		AnalysisRequestID: report.RequestID,
		SecretKey:         n.secret,
		AnalysisGenreData: results,
	}
	if n.reportFailures {
		p.Status = report.Status
		if p.Status == "" {
			p.Status = analysis.ReportCompleted
		}
		p.Error = report.Error
	}
	return p
}

// Notify sends one PUT. Any transport error or non-2xx status is returned.
func (n *HTTPNotifier) Notify(ctx context.Context, report analysis.Report) error {
	body, err := json.Marshal(n.BuildPayload(report))
	if err != nil {
		return fmt.Errorf("encode callback payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if n.limiter != nil {
		if err := n.limiter.Wait(ctx, n.url); err != nil {
			return fmt.Errorf("callback throttled: %w", err)
		}
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("put callback: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // body fully drained below

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: truncateBody(snippet)}
	}
	return nil
}

// StatusError reports a non-2xx callback response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("callback status %d body=%q", e.Code, e.Body)
}

func truncateBody(b []byte) string {
	const limit = 200
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
