// Package series parses interest-over-time report exports and
// reconciles independently-normalized window series into one
// continuous, comparable series.
//
// # The normalization problem
//
// The remote service rescales every response to 0-100 using only the
// minimum and maximum observed inside the queried window. A value of
// 60 in one quarter is therefore not comparable to 60 in the next
// quarter. Short windows give fine-grained (daily) data on a useless
// absolute scale; one query over the whole span gives a consistent
// scale but only coarse (weekly or monthly) data.
//
// # Reconciliation
//
// The Reconciler combines both: each window series is collapsed to a
// ratio chain of day-over-day relative change (its first point indexed
// to 1.0, discarding the window-local scale entirely), the chain and
// the full-span anchor series are interpolated onto a daily grid, and
// on every date both grids share the output value is
//
//	anchor(date) * multiplier(date)
//
// rounded to two decimals. Ratio chains restart at 1.0 on every window
// boundary; chaining across windows is invalid because each window has
// its own 0-100 ceiling.
//
// A single window spanning the whole requested period is already
// consistently scaled and passes through unchanged. A batch whose
// anchor query returned no usable data degrades to a direct
// interpolation of the concatenated window points with integer values.
package series
