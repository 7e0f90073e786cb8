package ratp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ratp-sensor/internal/common/logger"
)

const (
	DefaultBaseURL = "https://api-ratp.pierre-grimaud.fr/v4"
	UserAgent      = "ratp-sensor/1.0"
)

var (
	requestCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ratp_http_request_count",
		Help: "Number of schedule requests sent to the RATP API",
	}, []string{"url"})
	httpErrorCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ratp_http_error_count",
		Help: "Number of schedule requests that failed at the HTTP layer",
	}, []string{"url"})
	decodeErrorCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ratp_decode_error_count",
		Help: "Number of schedule responses that could not be decoded",
	}, []string{"url"})
	requestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ratp_http_request_duration_seconds",
		Help:    "Latency of schedule requests",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(requestCount, httpErrorCount, decodeErrorCount, requestDuration)
}

// HTTPError reports a transport failure or a non-2xx answer. Decoding
// problems are never wrapped in it.
type HTTPError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("requesting %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("requesting %s: HTTP %d", e.URL, e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log,
	}
}

// SchedulesURL returns {base}/schedules/{buses|metros}/{line}/{stop}/{direction}.
func (c *Client) SchedulesURL(transportType, line, stop, direction string) (string, error) {
	var segment string
	switch transportType {
	case "bus":
		segment = "buses"
	case "metro":
		segment = "metros"
	default:
		return "", fmt.Errorf("unsupported transport type %q", transportType)
	}

	return fmt.Sprintf("%s/schedules/%s/%s/%s/%s",
		c.baseURL,
		segment,
		url.PathEscape(line),
		url.PathEscape(stop),
		url.PathEscape(direction)), nil
}

func (c *Client) FetchSchedules(ctx context.Context, url string) (*ScheduleResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	c.logger.Debug("Fetching schedules", "url", url)

	requestCount.With(prometheus.Labels{"url": url}).Inc()
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		httpErrorCount.With(prometheus.Labels{"url": url}).Inc()
		return nil, &HTTPError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErrorCount.With(prometheus.Labels{"url": url}).Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Debug("API returned error status",
			"status_code", resp.StatusCode,
			"url", url,
			"response_body", string(body))
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode}
	}

	var result ScheduleResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		decodeErrorCount.With(prometheus.Labels{"url": url}).Inc()
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	c.logger.Debug("Schedules fetched", "url", url, "schedules", len(result.Result.Schedules))

	return &result, nil
}
