// Package api is the HTTP client for the finance REST API.
//
// Every list endpoint is normalized into Page[T] at this boundary, whatever
// envelope the server used, so the cache and the aggregation code only ever
// see one shape.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

const (
	DefaultTimeout = 15 * time.Second

	PathTransactions = "transactions"
	PathBudgets      = "budgets"
	PathSavings      = "savings"
	PathCategories   = "categories"

	maxBodyBytes = 8 << 20
)

type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client talks to the REST API. Resource clients share its transport.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	logger  *log.Logger

	Transactions *Resource[core.Transaction, core.TransactionInput]
	Budgets      *Resource[core.Budget, core.BudgetInput]
	Savings      *Resource[core.SavingGoal, core.SavingGoalInput]
	Categories   *Resource[core.Category, core.Category]
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = newHTTPClient(timeout)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}

	c := &Client{
		baseURL: base,
		token:   cfg.Token,
		http:    httpClient,
		logger:  logger.WithComponent(log.ComponentAPI),
	}
	c.Transactions = &Resource[core.Transaction, core.TransactionInput]{c: c, path: PathTransactions}
	c.Budgets = &Resource[core.Budget, core.BudgetInput]{c: c, path: PathBudgets}
	c.Savings = &Resource[core.SavingGoal, core.SavingGoalInput]{c: c, path: PathSavings}
	c.Categories = &Resource[core.Category, core.Category]{c: c, path: PathCategories}
	return c, nil
}

// newHTTPClient creates a pooled client whose transport is instrumented
// with OpenTelemetry.
func newHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(transport),
		Timeout:   timeout,
	}
}

// do performs one request. out may be nil; otherwise the raw body is handed
// to it for decoding.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out func([]byte) error) error {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Request failed",
			log.NewFields().
				WithRequestID(requestID).
				WithHTTPResponse(method, path, 0, time.Since(start).Milliseconds()).
				WithErrorType(log.ErrorTypeNetwork).
				WithError(err).
				ToSlice()...)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	c.logger.DebugContext(ctx, "Request completed",
		log.NewFields().
			WithRequestID(requestID).
			WithHTTPResponse(method, path, resp.StatusCode, time.Since(start).Milliseconds()).
			ToSlice()...)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(method, path, resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := out(raw); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// ValidationError is a 422 response mapped field by field.
type ValidationError struct {
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed: " + e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for field, msgs := range e.Fields {
		parts = append(parts, field+": "+strings.Join(msgs, ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field returns the first message for field, or "".
func (e *ValidationError) Field(name string) string {
	if msgs := e.Fields[name]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// StatusError is any other non-2xx response.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

var ErrNotFound = errors.New("not found")

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func decodeError(method, path string, status int, raw []byte) error {
	var body struct {
		Message string              `json:"message"`
		Errors  map[string][]string `json:"errors"`
	}
	_ = json.Unmarshal(raw, &body)

	if status == http.StatusUnprocessableEntity {
		return &ValidationError{Message: body.Message, Fields: body.Errors}
	}
	return &StatusError{StatusCode: status, Method: method, Path: path, Message: body.Message}
}
