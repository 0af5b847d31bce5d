// Package export writes a metrics window to CSV or JSON for download.
//
// # HTTP API
//
// Export endpoint: GET /v1/metrics/export
// Query parameters:
//   - entityId: entity to export (required)
//   - timeRange: 1h, 6h, 24h, 7d, 30d or 90d (default: 24h)
//   - format: "csv" or "json" (default: csv)
//
// Example:
//
//	curl "http://localhost:8080/v1/metrics/export?entityId=c1&timeRange=7d" -o c1-7d.csv
//
// # CSV Format
//
// One row per point, the same points GET /v1/metrics returns:
//
//	timestamp,iops_read,iops_write,throughput_read,throughput_write
//	2025-11-18T03:00:00Z,41234.5,1022.1,120.4,988.0
//
// # JSON Format
//
// Export metadata plus the columnar series:
//
//	{
//	  "metadata": {"exported_at": "...", "entity_id": "c1", "time_range": "7d", ...},
//	  "series": {"entityId": "c1", "timeRange": "7d", "resolution": "1h", "data": {...}, "metadata": {...}}
//	}
package export
