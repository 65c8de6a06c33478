package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aluiziolira/go-linkcheck/models"
)

var errTooManyRedirects = errors.New("too many redirects")

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a refused connection or a DNS failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrHTTPStatus indicates a response outside the 2xx and 3xx ranges.
type ErrHTTPStatus struct {
	Code int
}

func (e ErrHTTPStatus) Error() string {
	if text := http.StatusText(e.Code); text != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Code, text)
	}
	return fmt.Sprintf("HTTP %d", e.Code)
}

// ErrMalformedURL indicates an input URL that cannot be requested.
type ErrMalformedURL struct {
	URL string
	Err error
}

func (e ErrMalformedURL) Error() string {
	return fmt.Errorf("malformed url %q: %w", e.URL, e.Err).Error()
}

func (e ErrMalformedURL) Unwrap() error {
	return e.Err
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrConnection{Err: err}
	}

	if err == nil {
		if statusCode < 200 || statusCode >= 400 {
			return ErrHTTPStatus{Code: statusCode}
		}
		return nil
	}
	return err
}

// StatusFor maps a classified error onto the record status taxonomy.
func StatusFor(err error) models.Status {
	var (
		timeout   ErrTimeout
		conn      ErrConnection
		httpErr   ErrHTTPStatus
		malformed ErrMalformedURL
	)
	switch {
	case err == nil:
		return models.StatusSuccess
	case errors.As(err, &malformed):
		return models.StatusMalformedInput
	case errors.As(err, &timeout):
		return models.StatusTimeout
	case errors.As(err, &conn):
		return models.StatusConnectionError
	case errors.As(err, &httpErr):
		return models.StatusHTTPError
	case errors.Is(err, context.Canceled):
		return models.StatusCancelled
	default:
		return models.StatusUnknownError
	}
}

// statusForCode classifies a received response by its code.
func statusForCode(code int) models.Status {
	switch {
	case code >= 200 && code < 300:
		return models.StatusSuccess
	case code >= 300 && code < 400:
		return models.StatusRedirect
	default:
		return models.StatusHTTPError
	}
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var httpErr ErrHTTPStatus
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.Code == http.StatusNotFound:
			return "not_found"
		case httpErr.Code == http.StatusForbidden:
			return "forbidden"
		case httpErr.Code == http.StatusTooManyRequests:
			return "rate_limited"
		case httpErr.Code >= 500:
			return "server_error"
		default:
			return "http_status"
		}
	}
	var malformed ErrMalformedURL
	if errors.As(err, &malformed) {
		return "malformed"
	}
	if errors.Is(err, errTooManyRedirects) {
		return "redirect_loop"
	}
	return "other"
}
