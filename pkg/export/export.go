package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nicktill/clusterwatch/pkg/metricsvc"
	"github.com/nicktill/clusterwatch/pkg/series"
)

const formatVersion = "1.0"

// CSVHeader is the first row of every CSV export
var CSVHeader = []string{"timestamp", "iops_read", "iops_write", "throughput_read", "throughput_write"}

// Exporter writes metrics windows served by a metrics service
type Exporter struct {
	svc *metricsvc.Service
}

// NewExporter creates a new exporter
func NewExporter(svc *metricsvc.Service) *Exporter {
	return &Exporter{svc: svc}
}

// ExportOptions configures what to export
type ExportOptions struct {
	EntityID  string
	TimeRange string

	// Format: "json" or "csv"
	Format string
}

// ExportMetadata contains information about the export
type ExportMetadata struct {
	ExportedAt time.Time `json:"exported_at"`
	EntityID   string    `json:"entity_id"`
	TimeRange  string    `json:"time_range"`
	Resolution string    `json:"resolution"`
	PointCount int       `json:"point_count"`
	Format     string    `json:"format"`
	Version    string    `json:"version"`
}

// ExportData is the JSON export document
type ExportData struct {
	Metadata ExportMetadata        `json:"metadata"`
	Series   *series.MetricsSeries `json:"series"`
}

// ExportResult summarizes a finished export
type ExportResult struct {
	PointsExported int
	TimeRange      series.TimeRange
	ExportedAt     time.Time
}

// ExportToJSON writes the window as an ExportData document
func (e *Exporter) ExportToJSON(ctx context.Context, w io.Writer, opts ExportOptions) (*ExportResult, error) {
	m, err := e.fetch(ctx, opts)
	if err != nil {
		return nil, err
	}

	data := ExportData{
		Metadata: ExportMetadata{
			ExportedAt: time.Now().UTC(),
			EntityID:   m.EntityID,
			TimeRange:  m.TimeRange.String(),
			Resolution: m.Resolution.String(),
			PointCount: len(m.Series),
			Format:     "json",
			Version:    formatVersion,
		},
		Series: m,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}

	return &ExportResult{
		PointsExported: len(m.Series),
		TimeRange:      m.TimeRange,
		ExportedAt:     data.Metadata.ExportedAt,
	}, nil
}

// ExportToCSV writes one row per point
func (e *Exporter) ExportToCSV(ctx context.Context, w io.Writer, opts ExportOptions) (*ExportResult, error) {
	m, err := e.fetch(ctx, opts)
	if err != nil {
		return nil, err
	}

	if err := WriteCSV(w, m.Series); err != nil {
		return nil, err
	}

	return &ExportResult{
		PointsExported: len(m.Series),
		TimeRange:      m.TimeRange,
		ExportedAt:     time.Now().UTC(),
	}, nil
}

func (e *Exporter) fetch(ctx context.Context, opts ExportOptions) (*series.MetricsSeries, error) {
	return e.svc.GetMetrics(ctx, metricsvc.Request{
		EntityID:  opts.EntityID,
		TimeRange: opts.TimeRange,
	})
}

// WriteCSV writes CSVHeader followed by one row per sample
func WriteCSV(w io.Writer, s series.Series) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, p := range s {
		row := []string{
			p.Timestamp.UTC().Format(time.RFC3339),
			formatValue(p.IOPS.Read),
			formatValue(p.IOPS.Write),
			formatValue(p.Throughput.Read),
			formatValue(p.Throughput.Write),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
