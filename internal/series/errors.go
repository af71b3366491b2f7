package series

import (
	"fmt"

	"trendscli/pkg/contracts/domain"
)

// FormatError reports a payload that could not be understood: an
// unexpected content type from the remote, a missing section marker,
// or an unparseable row. It is fatal for the window that produced it
// and must never be silently replaced with synthetic data unless the
// operator opted into degraded zero filling.
type FormatError struct {
	ContentType string
	Window      domain.DateWindow
	Reason      string
}

func (e *FormatError) Error() string {
	if e.ContentType != "" {
		return fmt.Sprintf("unexpected response format for window %s: content type %q: %s",
			e.Window, e.ContentType, e.Reason)
	}
	return fmt.Sprintf("unexpected response format for window %s: %s", e.Window, e.Reason)
}

// NewFormatError builds a FormatError for a parse-level failure.
func NewFormatError(window domain.DateWindow, reason string) *FormatError {
	return &FormatError{Window: window, Reason: reason}
}
