package fetch

import (
	"strings"

	"trendscli/internal/series"
	"trendscli/pkg/contracts/domain"
)

// Kind is the classifier's verdict on one raw response.
type Kind int

const (
	// KindDataTable means the body is a CSV export ready for parsing.
	KindDataTable Kind = iota
	// KindNoData means the remote has no samples for this window; the
	// caller substitutes a single zero sample at the window start and
	// the run continues.
	KindNoData
	// KindQuotaExceeded means the remote is rate-limiting this
	// session; the run must stop issuing windows.
	KindQuotaExceeded
	// KindFormatError means the payload shape is not one we know.
	KindFormatError
)

func (k Kind) String() string {
	switch k {
	case KindDataTable:
		return "data_table"
	case KindNoData:
		return "no_data"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindFormatError:
		return "format_error"
	default:
		return "unknown"
	}
}

// expectedContentType is the exact content type of a successful export.
const expectedContentType = "text/csv; charset=UTF-8"

// Body markers on the HTML error page variants.
const (
	quotaMarker       = "quota"
	unavailableMarker = "currently unavailable"
)

// Classification is the verdict plus the error to propagate for the
// quota and format kinds. Data and no-data verdicts carry no error.
type Classification struct {
	Kind Kind
	Err  error
}

// Classify inspects content type and body and decides how the response
// is to be handled. It never reads more than it is given and never
// mutates the response.
func Classify(resp *domain.RawResponse) Classification {
	ct := strings.TrimSpace(resp.ContentType)

	if strings.EqualFold(ct, expectedContentType) {
		return Classification{Kind: KindDataTable}
	}

	if isHTML(ct) {
		body := strings.ToLower(string(resp.Body))
		if strings.Contains(body, quotaMarker) {
			return Classification{
				Kind: KindQuotaExceeded,
				Err:  &QuotaError{Window: resp.Window},
			}
		}
		if strings.Contains(body, unavailableMarker) {
			return Classification{Kind: KindNoData}
		}
	}

	return Classification{
		Kind: KindFormatError,
		Err: &series.FormatError{
			ContentType: resp.ContentType,
			Window:      resp.Window,
			Reason:      "response is neither a CSV export nor a known error page",
		},
	}
}

// ZeroSample is the synthetic stand-in for a no-data window: one zero
// value dated at the window start.
func ZeroSample(window domain.DateWindow) domain.SubSeries {
	return domain.SubSeries{
		Window: window,
		Points: []domain.SeriesPoint{{Date: window.Start}},
	}
}

func isHTML(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "text/html")
}
