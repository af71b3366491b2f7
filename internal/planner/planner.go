// Package planner partitions a requested period into the query windows
// a run fetches. Short windows buy resolution: the remote returns daily
// samples for a quarter, weekly for a year, monthly beyond — so every
// scheduling mode trades span for granularity differently.
package planner

import (
	"fmt"
	"time"

	"trendscli/pkg/contracts/domain"
)

// Mode selects the window scheduling strategy.
type Mode string

const (
	// ModeSingle queries the requested span as one window.
	ModeSingle Mode = "single"
	// ModeQuarters covers start..now with rolling 3-month windows.
	ModeQuarters Mode = "quarters"
	// ModeYears covers start..now with rolling 12-month windows.
	ModeYears Mode = "years"
	// ModeAnchored covers an event window around an anchor date with
	// 3-month windows, for queries centered on a known filing or
	// announcement date.
	ModeAnchored Mode = "anchored"
)

// IsValid reports whether the mode is one of the known strategies.
func (m Mode) IsValid() bool {
	switch m {
	case ModeSingle, ModeQuarters, ModeYears, ModeAnchored:
		return true
	}
	return false
}

// ParseMode converts operator input into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.IsValid() {
		return "", fmt.Errorf("unknown scheduling mode %q (want single, quarters, years or anchored)", s)
	}
	return m, nil
}

const (
	quarterMonths = 3
	yearMonths    = 12

	// Anchored mode covers anchor-6 months through anchor+15 months of
	// window starts, each window 3 months wide.
	anchorLeadMonths = 6
	anchorTailMonths = 15

	// The anchor series starts two weeks before the first window so
	// interpolation has a left neighbour at the window edge.
	anchorPad = 14 * 24 * time.Hour

	// Samples younger than a week are not stable on the remote side;
	// nothing is scheduled at or past this cutoff.
	freshnessLag = 7 * 24 * time.Hour
)

// Request is one planning call. Start/End serve single mode, Start
// alone serves the rolling modes, Anchor serves anchored mode.
type Request struct {
	Mode   Mode
	Start  time.Time
	End    time.Time
	Anchor time.Time
}

// Plan is the planner's output: the fetch windows in order plus the
// full-span anchor window the reconciler scales against. In single
// mode the anchor equals the only window and is not fetched twice.
type Plan struct {
	Mode    Mode
	Windows []domain.DateWindow
	Anchor  domain.DateWindow
}

// SelfAnchored reports whether the single fetch window doubles as the
// anchor series, which short-circuits reconciliation.
func (p *Plan) SelfAnchored() bool {
	return p.Mode == ModeSingle
}

// Planner produces plans. Planning is pure calendar math; the clock is
// injected so tests can pin "now".
type Planner struct {
	now func() time.Time
}

// New builds a planner; a nil clock means time.Now.
func New(now func() time.Time) *Planner {
	if now == nil {
		now = time.Now
	}
	return &Planner{now: now}
}

// Plan dispatches on the request mode.
func (p *Planner) Plan(req Request) (*Plan, error) {
	switch req.Mode {
	case ModeSingle:
		return p.single(req.Start, req.End)
	case ModeQuarters:
		return p.rolling(ModeQuarters, req.Start, quarterMonths)
	case ModeYears:
		return p.rolling(ModeYears, req.Start, yearMonths)
	case ModeAnchored:
		return p.anchored(req.Anchor)
	default:
		return nil, fmt.Errorf("unknown scheduling mode %q", req.Mode)
	}
}

// single plans the requested span as one window. Spans under 30 days
// widen to a full month; the remote does not resolve shorter ranges
// reliably.
func (p *Planner) single(start, end time.Time) (*Plan, error) {
	now := p.now().UTC()
	if !start.Before(now) {
		return nil, fmt.Errorf("window start %s is not in the past", start.Format("2006-01-02"))
	}

	if end.Sub(start) < 30*24*time.Hour {
		end = start.AddDate(0, 1, 0)
	}

	w, err := domain.NewDateWindow(start, end)
	if err != nil {
		return nil, err
	}

	return &Plan{Mode: ModeSingle, Windows: []domain.DateWindow{w}, Anchor: w}, nil
}

// rolling emits stride-month windows from the start month up to the
// current month. The final window's end is always clamped to the
// current month so coverage stays current regardless of stride
// alignment.
func (p *Planner) rolling(mode Mode, start time.Time, stride int) (*Plan, error) {
	currentMonth := monthStart(p.now().UTC())
	first := monthStart(start)

	if !first.Before(currentMonth) {
		return nil, fmt.Errorf("rolling start %s is not before the current month", first.Format("2006-01"))
	}

	var windows []domain.DateWindow
	for m := first; m.Before(currentMonth); m = m.AddDate(0, stride, 0) {
		end := m.AddDate(0, stride, 0)
		if end.After(currentMonth) {
			end = currentMonth
		}
		windows = append(windows, domain.DateWindow{Start: m, End: end})
	}

	anchor := domain.DateWindow{Start: first, End: currentMonth}
	return &Plan{Mode: mode, Windows: windows, Anchor: anchor}, nil
}

// anchored plans the event window around an anchor date: 3-month
// windows with starts from anchor-6 months through anchor+15 months.
// Windows starting at or past the freshness cutoff are dropped; when
// that strands the last surviving start without its paired end, the
// cutoff itself becomes the final end.
func (p *Planner) anchored(anchor time.Time) (*Plan, error) {
	if anchor.IsZero() {
		return nil, fmt.Errorf("anchored mode requires an anchor date")
	}

	cutoff := p.now().UTC().Add(-freshnessLag)
	begin := anchor.AddDate(0, -anchorLeadMonths, 0)
	if !begin.Before(cutoff) {
		return nil, fmt.Errorf("anchor %s is too recent: coverage would start after the freshness cutoff",
			anchor.Format("2006-01-02"))
	}

	var starts, ends []time.Time
	for off := -anchorLeadMonths; off <= anchorTailMonths; off += quarterMonths {
		s := anchor.AddDate(0, off, 0)
		if !s.Before(cutoff) {
			continue
		}
		starts = append(starts, s)
		if e := s.AddDate(0, quarterMonths, 0); e.Before(cutoff) {
			ends = append(ends, e)
		}
	}
	if len(ends) < len(starts) {
		ends = append(ends, cutoff)
	}

	windows := make([]domain.DateWindow, 0, len(starts))
	for i := range starts {
		windows = append(windows, domain.DateWindow{Start: starts[i], End: ends[i]})
	}

	lastEnd := ends[len(ends)-1]
	anchorEnd := lastEnd.AddDate(0, 1, 0)
	if anchorEnd.After(cutoff) {
		anchorEnd = cutoff
	}
	anchorWindow := domain.DateWindow{Start: begin.Add(-anchorPad), End: anchorEnd}

	return &Plan{Mode: ModeAnchored, Windows: windows, Anchor: anchorWindow}, nil
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
