package series

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"trendscli/pkg/contracts/domain"
)

// interestOverTimeHeader marks the start of the series section inside a
// report export. Other sections (regional interest, related terms)
// follow later in the same file and are ignored.
const interestOverTimeHeader = "Interest over time"

// Table is the parsed interest-over-time section of one report export.
// Columns holds the value column titles from the header row, one per
// co-queried term; every Row carries one value per column.
type Table struct {
	Columns []string
	Rows    []Row
}

// Row is one dated observation line: a date plus one integer count per
// queried term, widened to float64.
type Row struct {
	Date   time.Time
	Values []float64
}

// ParseReport extracts the interest-over-time rows from a CSV export
// body. Data rows run from the line after the section header row until
// the first blank line. Dates longer than ten characters are
// range-styled ("2004-01-04 - 2004-01-10"); only the range start is
// kept. Rows with no value cells are dropped.
func ParseReport(window domain.DateWindow, body []byte) (*Table, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	// Advance to the section marker.
	found := false
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == interestOverTimeHeader {
			found = true
			break
		}
	}
	if !found {
		return nil, &FormatError{Window: window, Reason: fmt.Sprintf("missing %q section", interestOverTimeHeader)}
	}

	table := &Table{}

	// Column header row: "Date,<title>[,<title>...]".
	if scanner.Scan() {
		cells := strings.Split(strings.TrimRight(scanner.Text(), "\r"), ",")
		if len(cells) > 1 {
			table.Columns = cells[1:]
		}
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			break
		}
		row, ok, err := parseRow(window, line)
		if err != nil {
			return nil, err
		}
		if ok {
			table.Rows = append(table.Rows, row)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &FormatError{Window: window, Reason: fmt.Sprintf("reading export body: %v", err)}
	}

	return table, nil
}

// parseRow converts one data line. The second return value is false
// for rows that carry a date but no values, which the remote emits for
// dates it has no samples for.
func parseRow(window domain.DateWindow, line string) (Row, bool, error) {
	cells := strings.Split(line, ",")

	date, err := parseReportDate(cells[0])
	if err != nil {
		return Row{}, false, &FormatError{Window: window, Reason: fmt.Sprintf("bad date cell %q", cells[0])}
	}

	values := make([]float64, 0, len(cells)-1)
	for _, cell := range cells[1:] {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		n, err := strconv.Atoi(cell)
		if err != nil {
			return Row{}, false, &FormatError{Window: window, Reason: fmt.Sprintf("bad value cell %q", cell)}
		}
		values = append(values, float64(n))
	}
	if len(values) == 0 {
		return Row{}, false, nil
	}

	return Row{Date: date, Values: values}, true, nil
}

// parseReportDate handles the three granularities the remote emits:
// daily "2004-01-04" (range-styled for weekly buckets), monthly
// "2004-01" and yearly "2004".
func parseReportDate(cell string) (time.Time, error) {
	cell = strings.TrimSpace(cell)
	if len(cell) > 10 {
		cell = cell[:10]
	}
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, cell); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", cell)
}

// SubSeriesFor extracts column col of the table as a SubSeries for the
// given window. Rows missing that column are skipped.
func (t *Table) SubSeriesFor(window domain.DateWindow, col int) domain.SubSeries {
	sub := domain.SubSeries{Window: window}
	for _, row := range t.Rows {
		if col >= len(row.Values) {
			continue
		}
		sub.Points = append(sub.Points, domain.SeriesPoint{Date: row.Date, Value: row.Values[col]})
	}
	return sub
}

// ValueColumns returns the number of value columns carried by the
// widest row, which the aggregator checks against the term count.
func (t *Table) ValueColumns() int {
	max := 0
	for _, row := range t.Rows {
		if len(row.Values) > max {
			max = len(row.Values)
		}
	}
	return max
}
