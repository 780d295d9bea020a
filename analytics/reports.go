package analytics

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pilab-dev/glass-analytics/domain"
	serrors "github.com/pilab-dev/glass-analytics/errors"
)

const (
	// DefaultBaseURL is the GA4 Data API root.
	DefaultBaseURL = "https://analyticsdata.googleapis.com/v1beta"

	// HistoricalDays is the span of the historical report.
	HistoricalDays = 30

	// LabelLayout formats a report date as a chart label, e.g. "Mar 01".
	LabelLayout = "Jan 02"

	reportDateLayout = "20060102"
)

type metric struct {
	Name string `json:"name"`
}

type dimension struct {
	Name string `json:"name"`
}

type dateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type dimensionOrderBy struct {
	DimensionName string `json:"dimensionName"`
}

type orderBy struct {
	Dimension *dimensionOrderBy `json:"dimension,omitempty"`
	Desc      bool              `json:"desc"`
}

type reportRequest struct {
	DateRanges []dateRange `json:"dateRanges,omitempty"`
	Dimensions []dimension `json:"dimensions,omitempty"`
	Metrics    []metric    `json:"metrics"`
	OrderBys   []orderBy   `json:"orderBys,omitempty"`
}

type value struct {
	Value string `json:"value"`
}

type row struct {
	DimensionValues []value `json:"dimensionValues"`
	MetricValues    []value `json:"metricValues"`
}

type reportResponse struct {
	Rows     []row                 `json:"rows"`
	RowCount int                   `json:"rowCount"`
	Error    *serrors.APIErrorBody `json:"error"`
}

func realtimeRequest() reportRequest {
	return reportRequest{
		Metrics: []metric{{Name: "activeUsers"}},
	}
}

func historicalRequest() reportRequest {
	return reportRequest{
		DateRanges: []dateRange{{StartDate: fmt.Sprintf("%ddaysAgo", HistoricalDays), EndDate: "today"}},
		Dimensions: []dimension{{Name: "date"}},
		Metrics:    []metric{{Name: "sessions"}, {Name: "totalUsers"}},
		OrderBys:   []orderBy{{Dimension: &dimensionOrderBy{DimensionName: "date"}, Desc: false}},
	}
}

// decodeReport unmarshals a report body; an "error" object wins over rows.
func decodeReport(body []byte) (*reportResponse, error) {
	var resp reportResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// parseRealtime reads the first metric of the first row. No rows means
// nobody is active.
func parseRealtime(resp *reportResponse) (domain.RealtimeMetric, error) {
	if len(resp.Rows) == 0 || len(resp.Rows[0].MetricValues) == 0 {
		return domain.RealtimeMetric{}, nil
	}

	n, err := parseCount(resp.Rows[0].MetricValues[0].Value)
	if err != nil {
		return domain.RealtimeMetric{}, fmt.Errorf("activeUsers: %w", err)
	}
	return domain.RealtimeMetric{ActiveUsers: n}, nil
}

// parseHistorical turns date rows into an index-aligned series. Rows arrive
// sorted by date ascending and keep that order.
func parseHistorical(resp *reportResponse) (*domain.HistoricalSummary, error) {
	summary := domain.NewHistoricalSummary(len(resp.Rows))

	for i, r := range resp.Rows {
		if len(r.DimensionValues) < 1 || len(r.MetricValues) < 2 {
			return nil, fmt.Errorf("row %d: expected 1 dimension and 2 metrics, got %d and %d",
				i, len(r.DimensionValues), len(r.MetricValues))
		}

		label, err := FormatDateLabel(r.DimensionValues[0].Value)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		sessions, err := parseCount(r.MetricValues[0].Value)
		if err != nil {
			return nil, fmt.Errorf("row %d sessions: %w", i, err)
		}
		users, err := parseCount(r.MetricValues[1].Value)
		if err != nil {
			return nil, fmt.Errorf("row %d totalUsers: %w", i, err)
		}

		summary.Append(label, sessions, users)
	}

	return summary, nil
}

// FormatDateLabel formats a YYYYMMDD report date with LabelLayout.
func FormatDateLabel(raw string) (string, error) {
	t, err := time.Parse(reportDateLayout, raw)
	if err != nil {
		return "", fmt.Errorf("invalid report date %q: %w", raw, err)
	}
	return t.Format(LabelLayout), nil
}

func parseCount(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid count %q: %w", raw, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %d", n)
	}
	return n, nil
}
