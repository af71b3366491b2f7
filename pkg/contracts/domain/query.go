package domain

import (
	"fmt"
	"time"
)

// SearchTermDesc marks a QueryTerm that could not be resolved to a
// canonical entity and is queried as free text.
const SearchTermDesc = "Search term"

// QueryTerm identifies one queryable subject: either a canonical entity
// (Topic holds an id such as "/m/0k8z") or a literal search phrase.
type QueryTerm struct {
	Topic string `json:"topic" validate:"required"`
	Title string `json:"title"`
	Desc  string `json:"desc"`
}

// NewSearchTerm builds the free-text fallback term for a raw keyword.
func NewSearchTerm(raw string) QueryTerm {
	return QueryTerm{Topic: raw, Title: raw, Desc: SearchTermDesc}
}

// IsEntity reports whether the term was resolved to a canonical entity.
func (t QueryTerm) IsEntity() bool {
	return t.Desc != "" && t.Desc != SearchTermDesc
}

// IsValid checks the term carries at least a queryable topic.
func (t QueryTerm) IsValid() bool {
	return t.Topic != ""
}

// DateWindow is a half-open query interval [Start, End).
type DateWindow struct {
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required"`
}

// NewDateWindow validates the ordering invariant at construction.
func NewDateWindow(start, end time.Time) (DateWindow, error) {
	w := DateWindow{Start: start, End: end}
	if !w.IsValid() {
		return DateWindow{}, fmt.Errorf("invalid date window: start %s not before end %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return w, nil
}

// IsValid reports whether Start precedes End.
func (w DateWindow) IsValid() bool {
	return !w.Start.IsZero() && !w.End.IsZero() && w.Start.Before(w.End)
}

// Days returns the calendar length of the window in days.
func (w DateWindow) Days() int {
	return int(w.End.Sub(w.Start).Hours() / 24)
}

// Months returns the window length used by the remote date parameter:
// whole 30-day blocks with a one-month floor, so sub-month spans still
// query a full month.
func (w DateWindow) Months() int {
	days := w.Days()
	if days < 30 {
		days = 30
	}
	return days / 30
}

// Contains reports whether t falls inside [Start, End).
func (w DateWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w DateWindow) String() string {
	return fmt.Sprintf("%s..%s", w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
}

// QueryParameters carries everything one report query needs. Export and
// Content mirror the remote's CSV export switches and are always set by
// the constructor; Category is the optional vertical filter.
type QueryParameters struct {
	Terms    []QueryTerm `json:"terms" validate:"required,min=1,dive"`
	Window   DateWindow  `json:"window" validate:"required"`
	Category string      `json:"category,omitempty"`
	Export   int         `json:"export"`
	Content  int         `json:"content"`
}

// NewQueryParameters builds parameters for one window query.
func NewQueryParameters(terms []QueryTerm, window DateWindow, category string) QueryParameters {
	return QueryParameters{
		Terms:    terms,
		Window:   window,
		Category: category,
		Export:   1,
		Content:  1,
	}
}

// DateParam renders the remote's "<MM/YYYY> <N>m" date argument.
func (p QueryParameters) DateParam() string {
	return fmt.Sprintf("%s %dm", p.Window.Start.Format("01/2006"), p.Window.Months())
}

// RawResponse is one unclassified HTTP response body with the metadata
// the classifier needs.
type RawResponse struct {
	Window      DateWindow
	ContentType string
	Body        []byte
}
