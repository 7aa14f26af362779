// Package casjobs is a client for the CasJobs batch query service used by
// large astronomical catalog databases (SDSS and friends). It submits SQL
// queries as asynchronous server-side jobs, polls their status, and
// retrieves table extracts once a job has finished.
//
// Every operation is a single blocking HTTP round trip against the service;
// the client keeps no state between calls beyond credentials and
// configuration, so a single Client is safe for concurrent use.
package casjobs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dfm/casjobs/pkg/logging"
	"github.com/dfm/casjobs/pkg/metrics"
)

const (
	// DefaultBaseURL is the SDSS jobs endpoint, the only deployment this
	// client has been seriously exercised against.
	DefaultBaseURL = "http://casjobs.sdss.org/CasJobs/services/jobs.asmx"

	// DefaultQueryContext is the database context queries run against when
	// none is given.
	DefaultQueryContext = "DR7"

	// DefaultPollInterval is how often Monitor asks the service for job
	// status.
	DefaultPollInterval = 5 * time.Second

	// DefaultMonitorTimeout bounds how long Monitor waits for a job to
	// reach a terminal status.
	DefaultMonitorTimeout = time.Hour
)

// JobID identifies a job on the service. The service hands these out as
// XML <long> values; the client treats them as opaque.
type JobID int64

func (id JobID) String() string { return strconv.FormatInt(int64(id), 10) }

// Client talks to a CasJobs service. Construct one with New or
// NewFromConfig; the zero value is not usable.
type Client struct {
	wsid     int
	password string
	baseURL  string

	queryContext   string
	pollInterval   time.Duration
	monitorTimeout time.Duration

	httpClient *http.Client
	logger     *logging.Logger
	metrics    *metrics.Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a service deployment other than the
// SDSS default.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithQueryContext sets the default database context for Submit and Quick.
func WithQueryContext(name string) Option {
	return func(c *Client) { c.queryContext = name }
}

// WithPollInterval sets how often Monitor checks job status.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithMonitorTimeout sets how long Monitor waits for a terminal status
// before giving up.
func WithMonitorTimeout(d time.Duration) Option {
	return func(c *Client) { c.monitorTimeout = d }
}

// WithLogger replaces the client's logger. The default logger only emits
// warnings and errors.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics attaches a request metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Client) { c.metrics = r }
}

// New creates a client for the given WSID and password. The WSID is the
// numeric web services identifier from the user's CasJobs profile.
func New(wsid int, password string, opts ...Option) *Client {
	c := &Client{
		wsid:           wsid,
		password:       password,
		baseURL:        DefaultBaseURL,
		queryContext:   DefaultQueryContext,
		pollInterval:   DefaultPollInterval,
		monitorTimeout: DefaultMonitorTimeout,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.NewLogger(logging.WARN, false),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig creates a client from a Config, typically one produced by
// LoadConfig. Options are applied after the config values.
func NewFromConfig(cfg Config, opts ...Option) *Client {
	base := []Option{}
	if cfg.BaseURL != "" {
		base = append(base, WithBaseURL(cfg.BaseURL))
	}
	if cfg.QueryContext != "" {
		base = append(base, WithQueryContext(cfg.QueryContext))
	}
	return New(cfg.WSID, cfg.Password, append(base, opts...)...)
}

// send issues one authenticated GET against <base>/<op> and returns the
// raw response body. Credentials ride along as wsid/pw query parameters,
// which is how the service authenticates every operation.
func (c *Client) send(ctx context.Context, op string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	if params.Get("wsid") == "" {
		params.Set("wsid", strconv.Itoa(c.wsid))
	}
	if params.Get("pw") == "" {
		params.Set("pw", c.password)
	}

	endpoint := c.baseURL + "/" + op + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		terr := &TransportError{Op: op, Err: err}
		c.observe(op, terr, start)
		return nil, terr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		terr := &TransportError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
		c.observe(op, terr, start)
		return nil, terr
	}

	if resp.StatusCode != http.StatusOK {
		cerr := classify(op, resp.StatusCode, body)
		c.observe(op, cerr, start)
		return nil, cerr
	}

	c.observe(op, nil, start)
	return body, nil
}

func (c *Client) observe(op string, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.Observe(op, outcome(err), time.Since(start))
}

// classify maps a non-200 response onto the client's error taxonomy. The
// service leans on plain HTTP status codes: bad credentials come back as
// 401/403, unknown jobs as 404, rejected queries as other 4xx codes.
func classify(op string, code int, body []byte) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &AuthError{Op: op, StatusCode: code, Body: string(body)}
	case code == http.StatusNotFound:
		return &NotFoundError{Op: op, StatusCode: code, Body: string(body)}
	case code >= 400 && code < 500:
		return &SubmissionError{Op: op, StatusCode: code, Body: string(body)}
	default:
		return &TransportError{
			Op:         op,
			StatusCode: code,
			Err:        fmt.Errorf("server returned status %d: %s", code, body),
		}
	}
}
