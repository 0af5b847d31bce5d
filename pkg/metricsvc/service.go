// Package metricsvc is the request-time entry point of the metrics pipeline.
package metricsvc

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nicktill/clusterwatch/pkg/policy"
	"github.com/nicktill/clusterwatch/pkg/reader"
	"github.com/nicktill/clusterwatch/pkg/series"
)

// Request selects one entity's metrics window.
type Request struct {
	// EntityID is required
	EntityID string

	// TimeRange defaults to "24h" when empty
	TimeRange string

	// Resolution relabels the response only. The dataset and point budget
	// always come from the time range.
	Resolution string
}

// Service answers metrics requests from pre-materialized datasets
type Service struct {
	reader *reader.Reader
	logger *zap.Logger
}

// New creates a Service
func New(r *reader.Reader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{reader: r, logger: logger}
}

// GetMetrics validates the request, loads the dataset for its range and
// returns it decimated to the range's point budget.
func (s *Service) GetMetrics(ctx context.Context, req Request) (*series.MetricsSeries, error) {
	tr, res, err := resolve(req)
	if err != nil {
		return nil, err
	}

	points, err := s.reader.Window(ctx, req.EntityID, tr)
	if err != nil {
		return nil, err
	}

	if err := points.ToColumns().Validate(); err != nil {
		return nil, fmt.Errorf("%s series for %q: %w", tr, req.EntityID, err)
	}

	s.logger.Debug("metrics served",
		zap.String("entity_id", req.EntityID),
		zap.String("time_range", tr.String()),
		zap.Int("points", len(points)))

	return &series.MetricsSeries{
		EntityID:   req.EntityID,
		TimeRange:  tr,
		Resolution: res,
		Series:     points,
		Metadata:   series.NewMetadata(points),
	}, nil
}

// resolve applies defaults and validates the request without touching storage
func resolve(req Request) (series.TimeRange, series.Resolution, error) {
	if err := series.ValidateEntityID(req.EntityID); err != nil {
		return "", "", err
	}

	tr := series.DefaultTimeRange
	if req.TimeRange != "" {
		parsed, err := series.ParseTimeRange(req.TimeRange)
		if err != nil {
			return "", "", &series.ValidationError{Field: "timeRange", Reason: err.Error()}
		}
		tr = parsed
	}

	res := policy.For(tr).Resolution
	if req.Resolution != "" {
		parsed, err := series.ParseResolution(req.Resolution)
		if err != nil {
			return "", "", &series.ValidationError{Field: "resolution", Reason: err.Error()}
		}
		res = parsed
	}
	return tr, res, nil
}
