package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vanlt3/LifeTime-Swing/internal/storage/models"
	"go.uber.org/zap/zaptest"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func generateTestHits() []*models.HitRecord {
	return []*models.HitRecord{
		{EventID: "e3", Symbol: "EURUSD", Kind: "TARGET", Method: "LIVE_PRICE", Threshold: 1.075, EvidencePrice: 1.0748,
			DetectedAt: day.Add(15 * time.Hour), Outcome: models.OutcomeClosed, Attempts: 2},
		{EventID: "e1", Symbol: "XAUUSD", Kind: "STOP", Method: "WICK", Threshold: 2300, EvidencePrice: 2297.5,
			EvidenceAt: day.Add(9 * time.Hour), DetectedAt: day.Add(10 * time.Hour), Outcome: models.OutcomeDetected},
		{EventID: "e1", Symbol: "XAUUSD", Kind: "STOP", Method: "WICK", Threshold: 2300, EvidencePrice: 2297.5,
			EvidenceAt: day.Add(9 * time.Hour), DetectedAt: day.Add(10 * time.Hour), Outcome: models.OutcomeClosed, Attempts: 1},
		{EventID: "e2", Symbol: "BTCUSDT", Kind: "STOP", Method: "LIVE_PRICE", Threshold: 60000, EvidencePrice: 59950,
			DetectedAt: day.Add(10*time.Hour + 30*time.Minute), Outcome: models.OutcomeExhausted, Attempts: 5, Error: "broker rejected"},
		{EventID: "e0", Symbol: "XAUUSD", Kind: "TARGET", Method: "LIVE_PRICE", Threshold: 2400, EvidencePrice: 2401,
			DetectedAt: day.Add(-2 * time.Hour), Outcome: models.OutcomeClosed, Attempts: 1},
	}
}

func newTestExporter(t *testing.T) *HitExporter {
	he := NewHitExporter(zaptest.NewLogger(t))
	he.now = func() time.Time { return day.Add(20 * time.Hour) }
	return he
}

func TestExportCSV(t *testing.T) {
	he := newTestExporter(t)
	dir := t.TempDir()

	path, err := he.ExportHits(generateTestHits(), ExportOptions{
		Format:    FormatCSV,
		StartTime: day,
		EndTime:   day.AddDate(0, 0, 1),
		OutputDir: dir,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "hits_all_20260302_200000.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 5)
	assert.Equal(t, CSVHeaders(), rows[0])
	// sorted by detection time, previous day excluded
	assert.Equal(t, "e1", rows[1][0])
	assert.Equal(t, "2297.5", rows[1][5])
	assert.Equal(t, "2026-03-02T09:00:00Z", rows[1][6])
	assert.Equal(t, "e2", rows[3][0])
	assert.Equal(t, "broker rejected", rows[3][10])
	assert.Equal(t, "", rows[4][6], "zero evidence time stays empty")
}

func TestExportJSONWithFilters(t *testing.T) {
	he := newTestExporter(t)
	dir := t.TempDir()

	path, err := he.ExportHits(generateTestHits(), ExportOptions{
		Format:        FormatJSON,
		SymbolFilter:  "xauusd",
		OutcomeFilter: models.OutcomeClosed,
		OutputDir:     dir,
	})
	require.NoError(t, err)
	assert.Equal(t, "hits_XAUUSD_closed_20260302_200000.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var out struct {
		HitCount int                 `json:"hit_count"`
		Summary  ExportSummary       `json:"summary"`
		Hits     []*models.HitRecord `json:"hits"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, 2, out.HitCount)
	require.Len(t, out.Hits, 2)
	assert.Equal(t, "e0", out.Hits[0].EventID)
	assert.Equal(t, 1, out.Summary.StopHits)
	assert.Equal(t, 1, out.Summary.TargetHits)
	assert.Equal(t, 1, out.Summary.WickHits)
	assert.Equal(t, 100.0, out.Summary.ClosedRate)
}

func TestExportNoMatches(t *testing.T) {
	he := newTestExporter(t)

	_, err := he.ExportHits(generateTestHits(), ExportOptions{
		Format:     FormatCSV,
		KindFilter: "stop",
		StartTime:  day.AddDate(0, 0, 5),
		OutputDir:  t.TempDir(),
	})
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestExportUnsupportedFormat(t *testing.T) {
	he := newTestExporter(t)

	_, err := he.ExportHits(generateTestHits(), ExportOptions{Format: "xml", OutputDir: t.TempDir()})
	assert.Error(t, err)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
	f, err := ParseFormat(" JSON ")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
}

func TestCalculateSummary(t *testing.T) {
	hits := filterHits(generateTestHits(), ExportOptions{StartTime: day})
	summary := calculateSummary(hits)

	assert.Equal(t, 4, summary.TotalHits)
	assert.Equal(t, 3, summary.StopHits)
	assert.Equal(t, 3, summary.UniqueSymbols)
	assert.Equal(t, 1, summary.ByOutcome[models.OutcomeDetected])
	assert.Equal(t, 2, summary.ByOutcome[models.OutcomeClosed])
	// 2 closed out of 3 close decisions, 8 attempts over 3
	assert.InDelta(t, 66.67, summary.ClosedRate, 0.01)
	assert.InDelta(t, 8.0/3.0, summary.AvgAttempts, 1e-9)
}

func TestDailyReport(t *testing.T) {
	he := newTestExporter(t)
	dir := t.TempDir()

	path, err := he.ExportDailyReport(generateTestHits(), day.Add(12*time.Hour), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "daily_report_20260302.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var report DailyReport
	require.NoError(t, json.Unmarshal(data, &report))

	assert.Equal(t, 4, report.HitCount)
	require.Len(t, report.HourlyBreakdown, 2)
	assert.Equal(t, HourlyStats{Hour: 10, HitCount: 3, StopHits: 3, Closed: 1}, report.HourlyBreakdown[0])
	assert.Equal(t, HourlyStats{Hour: 15, HitCount: 1, TargetHits: 1, Closed: 1}, report.HourlyBreakdown[1])

	path, err = he.ExportDailyReport(generateTestHits(), day.AddDate(0, 1, 0), dir)
	require.NoError(t, err)
	assert.Empty(t, path)
}
