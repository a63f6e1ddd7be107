// Package base provides the shared HTTP client configuration used by every
// service client: bearer auth, JSON content negotiation, retry with
// exponential backoff for transient failures and a fixed wait on rate
// limits.
package base

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hsn0918/deepqa/internal/config"
)

// Default timeout values for HTTP clients.
const (
	DefaultTimeout = 30 * time.Second

	// RateLimitWait is how long a client sleeps before retrying after the
	// provider signals exhaustion with HTTP 429.
	RateLimitWait = 10 * time.Second
)

// ClientError represents HTTP client operation errors with context.
type ClientError struct {
	Op         string // the operation that failed
	Service    string // the service name
	StatusCode int    // HTTP status code (if applicable)
	Err        error  // the underlying error
}

func (e *ClientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("client: %s %s failed with status %d: %v",
			e.Service, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("client: %s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// NewClientError creates a new ClientError with the given parameters.
func NewClientError(service, op string, err error) *ClientError {
	return &ClientError{
		Op:      op,
		Service: service,
		Err:     err,
	}
}

// NewHTTPError creates a new ClientError for HTTP status code errors.
func NewHTTPError(service, op string, statusCode int, body string) *ClientError {
	return &ClientError{
		Op:         op,
		Service:    service,
		StatusCode: statusCode,
		Err:        fmt.Errorf("HTTP %d: %s", statusCode, body),
	}
}

// HTTPClient provides a standardized HTTP client configuration.
// It encapsulates common patterns used across all service clients.
type HTTPClient struct {
	client  *resty.Client
	service string // service name for error reporting
}

// NewHTTPClient creates a new HTTP client with standard configuration.
// Transient 5xx and network errors retry with exponential backoff; 429
// responses wait RateLimitWait between attempts instead.
func NewHTTPClient(service string, cfg config.ServiceConfig, timeout time.Duration) *HTTPClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(RateLimitWait)

	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return r.StatusCode() >= 500 || r.StatusCode() == http.StatusTooManyRequests
	})

	client.SetRetryAfter(func(_ *resty.Client, r *resty.Response) (time.Duration, error) {
		if r != nil && r.StatusCode() == http.StatusTooManyRequests {
			return RateLimitWait, nil
		}
		return 0, nil
	})

	return &HTTPClient{
		client:  client,
		service: service,
	}
}

// Post performs a POST request with standardized error handling.
func (h *HTTPClient) Post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		Post(endpoint)

	if err != nil {
		return NewClientError(h.service, "POST "+endpoint, err)
	}

	if resp.StatusCode() != 200 {
		return NewHTTPError(h.service, "POST "+endpoint, resp.StatusCode(), resp.String())
	}

	return nil
}

// Get performs a GET request with standardized error handling.
func (h *HTTPClient) Get(ctx context.Context, endpoint string, params map[string]string, result interface{}) error {
	req := h.client.R().SetContext(ctx).SetResult(result)

	for k, v := range params {
		req.SetQueryParam(k, v)
	}

	resp, err := req.Get(endpoint)
	if err != nil {
		return NewClientError(h.service, "GET "+endpoint, err)
	}

	if resp.StatusCode() != 200 {
		return NewHTTPError(h.service, "GET "+endpoint, resp.StatusCode(), resp.String())
	}

	return nil
}

// IsRetryableError reports whether an error is retryable.
// This helps upper layers decide whether to retry operations.
func IsRetryableError(err error) bool {
	var clientErr *ClientError
	if !errors.As(err, &clientErr) {
		return false
	}

	// Consider 5xx status codes and network errors as retryable
	return clientErr.StatusCode >= 500 || clientErr.StatusCode == 0
}
