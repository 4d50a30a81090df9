package statsfeed

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sambetts/office-nudge-sub000/internal/model"
	"go.uber.org/zap"
)

// Report column headers as exported by the Teams user activity detail report.
const (
	colPrincipal       = "User Principal Name"
	colLastChat        = "Last Chat Activity Date"
	colLastCall        = "Last Call Activity Date"
	colLastMeeting     = "Last Meeting Activity Date"
	reportDateLayout   = "2006-01-02"
	maxReportBodyBytes = 32 << 20
)

// ReportFeed implements StatsFeed over an HTTP CSV export of per-user
// activity. As with the directory loader, the injected http.Client carries
// authentication.
type ReportFeed struct {
	reportURL  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewReportFeed creates a new CSV report feed
func NewReportFeed(reportURL string, timeout time.Duration, httpClient *http.Client, logger *zap.Logger) *ReportFeed {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &ReportFeed{
		reportURL:  reportURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Fetch downloads and parses the activity report. A 403 is reported as
// unavailable, not an error: tenants without the reporting license get one
// on every call.
func (f *ReportFeed) Fetch(ctx context.Context) *Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.reportURL, nil)
	if err != nil {
		return &Outcome{Status: FeedUnavailable, Err: fmt.Errorf("failed to build report request: %w", err)}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return &Outcome{Status: FeedUnavailable, Err: fmt.Errorf("report request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		f.logger.Info("Usage report feed forbidden for this tenant")
		return &Outcome{Status: FeedUnavailable, Err: errors.New("report feed forbidden")}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Outcome{
			Status: FeedUnavailable,
			Err:    fmt.Errorf("report request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReportBodyBytes))
	if err != nil {
		return &Outcome{Status: FeedUnavailable, Err: fmt.Errorf("failed to read report body: %w", err)}
	}

	records, err := parseReport(data)
	if err != nil {
		return &Outcome{Status: FeedUnavailable, Err: err}
	}
	if len(records) == 0 {
		return &Outcome{Status: FeedEmpty}
	}

	f.logger.Info("Usage report fetched", zap.Int("records", len(records)))
	return &Outcome{Status: FeedOK, Records: records}
}

// parseReport reads the CSV export leniently: quotes are lax, rows may have
// mismatched field counts, and unparsable dates are skipped rather than
// fatal. Real exports routinely carry a UTF-8 BOM.
func parseReport(data []byte) ([]*model.UsageRecord, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read report header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	if _, ok := index[colPrincipal]; !ok {
		return nil, fmt.Errorf("report is missing the %q column", colPrincipal)
	}

	var records []*model.UsageRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read report row: %w", err)
		}

		principal := cell(row, index, colPrincipal)
		if principal == "" {
			continue
		}

		records = append(records, &model.UsageRecord{
			UserPrincipalName:   principal,
			LastChatActivity:    parseReportDate(cell(row, index, colLastChat)),
			LastCallActivity:    parseReportDate(cell(row, index, colLastCall)),
			LastMeetingActivity: parseReportDate(cell(row, index, colLastMeeting)),
		})
	}
	return records, nil
}

func cell(row []string, index map[string]int, column string) string {
	i, ok := index[column]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseReportDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(reportDateLayout, value)
	if err != nil {
		return nil
	}
	return &t
}
