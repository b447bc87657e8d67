package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vanlt3/LifeTime-Swing/internal/detector"
	"github.com/vanlt3/LifeTime-Swing/internal/storage/models"
	"go.uber.org/zap"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

var ErrNoRecords = errors.New("no hits match the export criteria")

// ParseFormat accepts "csv" or "json", case-insensitively.
func ParseFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %q", s)
	}
}

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format        ExportFormat
	StartTime     time.Time
	EndTime       time.Time
	SymbolFilter  string
	KindFilter    string // STOP or TARGET
	OutcomeFilter string // detected, closed, close_exhausted, close_skipped
	OutputDir     string
}

// HitExporter writes journal hit records to CSV or JSON files.
type HitExporter struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewHitExporter creates a new hit exporter
func NewHitExporter(logger *zap.Logger) *HitExporter {
	return &HitExporter{
		logger: logger.Named("export"),
		now:    time.Now,
	}
}

// ExportHits filters, sorts and writes hits. It returns the file path.
func (he *HitExporter) ExportHits(hits []*models.HitRecord, options ExportOptions) (string, error) {
	filtered := filterHits(hits, options)
	if len(filtered) == 0 {
		return "", ErrNoRecords
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].DetectedAt.Before(filtered[j].DetectedAt)
	})

	outputPath := filepath.Join(options.OutputDir, he.generateFilename(options))
	if err := os.MkdirAll(options.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = writeJSON(outputPath, struct {
			ExportTime time.Time           `json:"export_time"`
			HitCount   int                 `json:"hit_count"`
			Summary    ExportSummary       `json:"summary"`
			Hits       []*models.HitRecord `json:"hits"`
		}{
			ExportTime: he.now().UTC(),
			HitCount:   len(filtered),
			Summary:    calculateSummary(filtered),
			Hits:       filtered,
		})
	default:
		err = fmt.Errorf("unsupported format: %q", options.Format)
	}
	if err != nil {
		return "", err
	}

	he.logger.Info("📤 Hits exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

func filterHits(hits []*models.HitRecord, options ExportOptions) []*models.HitRecord {
	var filtered []*models.HitRecord

	for _, hit := range hits {
		if !options.StartTime.IsZero() && hit.DetectedAt.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && !hit.DetectedAt.Before(options.EndTime) {
			continue
		}
		if options.SymbolFilter != "" && !strings.EqualFold(hit.Symbol, options.SymbolFilter) {
			continue
		}
		if options.KindFilter != "" && !strings.EqualFold(hit.Kind, options.KindFilter) {
			continue
		}
		if options.OutcomeFilter != "" && hit.Outcome != options.OutcomeFilter {
			continue
		}
		filtered = append(filtered, hit)
	}

	return filtered
}

func (he *HitExporter) generateFilename(options ExportOptions) string {
	parts := []string{"hits"}
	if options.SymbolFilter != "" {
		parts = append(parts, strings.ToUpper(options.SymbolFilter))
	}
	if options.KindFilter != "" {
		parts = append(parts, strings.ToLower(options.KindFilter))
	}
	if options.OutcomeFilter != "" {
		parts = append(parts, options.OutcomeFilter)
	}
	if len(parts) == 1 {
		parts = append(parts, "all")
	}
	parts = append(parts, he.now().Format("20060102_150405"))

	return strings.Join(parts, "_") + "." + string(options.Format)
}

// CSVHeaders returns the column order used by CSV exports.
func CSVHeaders() []string {
	return []string{
		"event_id", "symbol", "kind", "method", "threshold",
		"evidence_price", "evidence_at", "detected_at",
		"outcome", "attempts", "error",
	}
}

func csvRow(h *models.HitRecord) []string {
	return []string{
		h.EventID,
		h.Symbol,
		h.Kind,
		h.Method,
		strconv.FormatFloat(h.Threshold, 'f', -1, 64),
		strconv.FormatFloat(h.EvidencePrice, 'f', -1, 64),
		formatTime(h.EvidenceAt),
		formatTime(h.DetectedAt),
		h.Outcome,
		strconv.Itoa(h.Attempts),
		h.Error,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func exportToCSV(hits []*models.HitRecord, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, hit := range hits {
		if err := writer.Write(csvRow(hit)); err != nil {
			return fmt.Errorf("failed to write hit: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeJSON(outputPath string, v any) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportSummary contains summary statistics for exported hits
type ExportSummary struct {
	TotalHits     int            `json:"total_hits"`
	StopHits      int            `json:"stop_hits"`
	TargetHits    int            `json:"target_hits"`
	WickHits      int            `json:"wick_hits"`
	ByOutcome     map[string]int `json:"by_outcome"`
	UniqueSymbols int            `json:"unique_symbols"`
	// ClosedRate is closed outcomes over hits that reached a close decision.
	ClosedRate  float64   `json:"closed_rate"`
	AvgAttempts float64   `json:"avg_attempts"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
}

// calculateSummary expects hits sorted by DetectedAt.
func calculateSummary(hits []*models.HitRecord) ExportSummary {
	summary := ExportSummary{
		TotalHits: len(hits),
		ByOutcome: make(map[string]int),
	}
	if len(hits) == 0 {
		return summary
	}

	summary.StartDate = hits[0].DetectedAt
	summary.EndDate = hits[len(hits)-1].DetectedAt

	symbols := make(map[string]struct{})
	attempts, closeDecisions := 0, 0
	for _, hit := range hits {
		symbols[hit.Symbol] = struct{}{}
		summary.ByOutcome[hit.Outcome]++

		switch strings.ToUpper(hit.Kind) {
		case string(detector.KindStop):
			summary.StopHits++
		case string(detector.KindTarget):
			summary.TargetHits++
		}
		if strings.EqualFold(hit.Method, string(detector.MethodWick)) {
			summary.WickHits++
		}
		if hit.Outcome != models.OutcomeDetected {
			closeDecisions++
			attempts += hit.Attempts
		}
	}

	summary.UniqueSymbols = len(symbols)
	if closeDecisions > 0 {
		summary.ClosedRate = float64(summary.ByOutcome[models.OutcomeClosed]) / float64(closeDecisions) * 100
		summary.AvgAttempts = float64(attempts) / float64(closeDecisions)
	}

	return summary
}

// DailyReport represents one day of hits
type DailyReport struct {
	Date            time.Time           `json:"date"`
	HitCount        int                 `json:"hit_count"`
	Summary         ExportSummary       `json:"summary"`
	HourlyBreakdown []HourlyStats       `json:"hourly_breakdown"`
	Hits            []*models.HitRecord `json:"hits"`
}

// HourlyStats represents hit statistics for an hour
type HourlyStats struct {
	Hour       int `json:"hour"`
	HitCount   int `json:"hit_count"`
	StopHits   int `json:"stop_hits"`
	TargetHits int `json:"target_hits"`
	Closed     int `json:"closed"`
}

// ExportDailyReport writes a JSON report of hits detected on date's day.
// It returns "" without error when the day had no hits.
func (he *HitExporter) ExportDailyReport(hits []*models.HitRecord, date time.Time, outputDir string) (string, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

	filtered := filterHits(hits, ExportOptions{
		StartTime: startOfDay,
		EndTime:   startOfDay.AddDate(0, 0, 1),
	})
	if len(filtered) == 0 {
		he.logger.Info("No hits for daily report", zap.Time("date", startOfDay))
		return "", nil
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].DetectedAt.Before(filtered[j].DetectedAt)
	})

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(outputDir, fmt.Sprintf("daily_report_%s.json", startOfDay.Format("20060102")))

	report := DailyReport{
		Date:            startOfDay,
		HitCount:        len(filtered),
		Summary:         calculateSummary(filtered),
		HourlyBreakdown: calculateHourlyBreakdown(filtered, date.Location()),
		Hits:            filtered,
	}
	if err := writeJSON(outputPath, report); err != nil {
		return "", err
	}

	he.logger.Info("📤 Daily report exported",
		zap.String("file", outputPath),
		zap.Time("date", startOfDay),
		zap.Int("hits", len(filtered)))

	return outputPath, nil
}

func calculateHourlyBreakdown(hits []*models.HitRecord, loc *time.Location) []HourlyStats {
	hourlyMap := make(map[int]*HourlyStats)

	for _, hit := range hits {
		hour := hit.DetectedAt.In(loc).Hour()

		stats, exists := hourlyMap[hour]
		if !exists {
			stats = &HourlyStats{Hour: hour}
			hourlyMap[hour] = stats
		}

		stats.HitCount++
		switch strings.ToUpper(hit.Kind) {
		case string(detector.KindStop):
			stats.StopHits++
		case string(detector.KindTarget):
			stats.TargetHits++
		}
		if hit.Outcome == models.OutcomeClosed {
			stats.Closed++
		}
	}

	var breakdown []HourlyStats
	for hour := 0; hour < 24; hour++ {
		if stats, exists := hourlyMap[hour]; exists {
			breakdown = append(breakdown, *stats)
		}
	}

	return breakdown
}
