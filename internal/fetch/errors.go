package fetch

import (
	"errors"
	"fmt"

	"trendscli/pkg/contracts/domain"
)

// ErrQuotaExhausted is the sentinel every quota condition matches via
// errors.Is: both the classification of a quota response and the
// fail-fast rejection of later queries in the same run.
var ErrQuotaExhausted = errors.New("remote quota exhausted")

// QuotaError carries the window whose query hit the quota wall. It is
// fatal for the rest of the run; the caller decides when to back off
// and retry, never this layer.
type QuotaError struct {
	Window domain.DateWindow
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("remote quota exhausted at window %s", e.Window)
}

// Is makes errors.Is(err, ErrQuotaExhausted) match.
func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExhausted
}

// TransportError wraps a network-level failure: dial, TLS, timeout, or
// a broken body read. These are retryable by callers; this layer only
// reports them.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s (%s): %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
