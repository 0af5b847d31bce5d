package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/nicktill/clusterwatch/pkg/series"
)

// record is the persisted shape of a Dataset
type record struct {
	Version     int                     `json:"version"`
	EntityID    string                  `json:"entityId"`
	TimeRange   series.TimeRange        `json:"timeRange"`
	Resolution  series.Resolution       `json:"resolution"`
	Level       series.AggregationLevel `json:"level"`
	GeneratedAt time.Time               `json:"generatedAt"`
	Data        series.Columns          `json:"data"`
}

const recordVersion = 1

// Codec serializes datasets as zstd-compressed columnar JSON.
// EncodeAll/DecodeAll are safe for concurrent use.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCodec creates a codec with the default zstd level.
func NewCodec() (*Codec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &Codec{
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// Encode serializes a dataset.
func (c *Codec) Encode(d *Dataset) ([]byte, error) {
	rec := record{
		Version:     recordVersion,
		EntityID:    d.EntityID,
		TimeRange:   d.TimeRange,
		Resolution:  d.Resolution,
		Level:       d.Level,
		GeneratedAt: d.GeneratedAt,
		Data:        d.Series.ToColumns(),
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dataset: %w", err)
	}
	return c.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

// Decode deserializes a dataset and checks column alignment.
func (c *Codec) Decode(data []byte) (*Dataset, error) {
	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	if rec.Version != recordVersion {
		return nil, fmt.Errorf("unsupported dataset version %d", rec.Version)
	}

	s, err := rec.Data.Series()
	if err != nil {
		return nil, fmt.Errorf("corrupt %s dataset for entity %q: %w", rec.TimeRange, rec.EntityID, err)
	}

	return &Dataset{
		EntityID:    rec.EntityID,
		TimeRange:   rec.TimeRange,
		Resolution:  rec.Resolution,
		Level:       rec.Level,
		GeneratedAt: rec.GeneratedAt,
		Series:      s,
	}, nil
}

// Close releases encoder and decoder resources.
func (c *Codec) Close() error {
	c.decoder.Close()
	return c.encoder.Close()
}
