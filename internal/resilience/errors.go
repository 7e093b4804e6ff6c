package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// Kind classifies an external capability failure.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindRateLimited Kind = "rate_limited"
	KindTimeout     Kind = "timeout"
	KindUnavailable Kind = "unavailable"
	KindInvalid     Kind = "invalid"
)

// Retryable reports whether a failure of this kind may succeed on retry.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimited, KindTimeout, KindUnavailable:
		return true
	default:
		return false
	}
}

// AdapterError is a classified failure from an external service.
type AdapterError struct {
	Service    string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *AdapterError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Service, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError builds an AdapterError of the given kind.
func NewAdapterError(service string, kind Kind, err error) *AdapterError {
	return &AdapterError{Service: service, Kind: kind, Err: err}
}

// StatusCoder is implemented by API client errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// KindForStatus maps an HTTP status code to a failure kind.
func KindForStatus(code int) Kind {
	switch {
	case code == 404 || code == 410:
		return KindNotFound
	case code == 429:
		return KindRateLimited
	case code == 408 || code == 504:
		return KindTimeout
	case code >= 500:
		return KindUnavailable
	default:
		return KindInvalid
	}
}

// Classify converts any error returned by a client into an AdapterError for
// service. Errors that are already classified are returned unchanged.
func Classify(service string, err error) error {
	if err == nil {
		return nil
	}

	var ae *AdapterError
	if errors.As(err, &ae) {
		return err
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return &AdapterError{Service: service, Kind: KindForStatus(sc.HTTPStatus()), StatusCode: sc.HTTPStatus(), Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AdapterError{Service: service, Kind: KindTimeout, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &AdapterError{Service: service, Kind: KindTimeout, Err: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) || isConnectionFailure(err) {
		return &AdapterError{Service: service, Kind: KindUnavailable, Err: err}
	}

	// Anything else came back from the service but could not be used.
	return &AdapterError{Service: service, Kind: KindInvalid, Err: err}
}

// KindOf returns the kind of the first AdapterError in err's chain.
func KindOf(err error) (Kind, bool) {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

// IsRetryable reports whether err is a classified transient failure.
// Unclassified errors and context cancellation are never retried.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	kind, ok := KindOf(err)
	return ok && kind.Retryable()
}

func isConnectionFailure(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"server closed idle connection",
		"unexpected eof",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
