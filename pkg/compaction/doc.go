/*
Package compaction derives coarser series from finer ones by averaging.

# Aggregation Chain

The pipeline keeps a fixed two-step chain:

	raw (1 sample/minute)
	    ↓ ToHourly: truncate to the hour, average per bucket
	hourly (1 point/hour)
	    ↓ ToDaily: group by calendar day, average per bucket
	daily (1 point/day)

Daily data is only ever derived from hourly data. The Hourly type can only be
produced by ToHourly, so a raw series cannot be handed to ToDaily by mistake.
Bounding the chain to two steps bounds the rounding error: a daily value is
the average of hourly averages, each rounded to one decimal.

# Buckets

Only non-empty buckets produce a point. A gap in the raw data leaves a gap in
the hourly series; nothing is zero-filled.

Hourly points are stamped at the start of their hour. Daily points are stamped
with the calendar day at the current wall-clock hour and minute:

	now = 2024-11-19 14:37
	day 2024-11-17 → 2024-11-17 14:37
	day 2024-11-18 → 2024-11-18 14:37

# Usage Example

	agg := compaction.New(time.Now)

	hourly, err := agg.ToHourly(raw)
	if err != nil {
	    return err // *series.AggregationInvariantError
	}
	daily, err := agg.ToDaily(hourly)

# Invariants

Both stages reject empty input and input whose timestamps do not strictly
increase with *series.AggregationInvariantError. Such input means the batch
pipeline is broken; the regeneration run must abort instead of persisting.
*/
package compaction
