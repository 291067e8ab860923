package proxy

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gridpulse/gridpulse-core/internal/timedata/channels"
)

// fluxProxy implements QueryProxy for the Flux query dialect (InfluxDB v2).
//
// Energy deltas are computed from the first and last raw values per
// channel; per-period variants window both aggregates with boundaries
// aligned to the range start, so a trailing partial bucket is preserved.
// Result ordering is enforced by sorting after decode, regardless of the
// order the backend returns tables in.
type fluxProxy struct {
	limit int
}

// aggKey tags union branches so first/last pairs can be matched on decode.
const aggKey = "_agg"

func (p *fluxProxy) QueryHistoricEnergy(ctx context.Context, q Querier, bucket string, edge *int,
	from, to time.Time, chans []string) (map[string]float64, error) {
	if err := checkQuerySize(chans, from, to, 0, p.limit); err != nil {
		return nil, err
	}

	var b strings.Builder
	writeDataSource(&b, bucket, edge, from, to, chans)
	b.WriteString(`firsts = data |> first() |> set(key: "` + aggKey + `", value: "first")` + "\n")
	b.WriteString(`lasts = data |> last() |> set(key: "` + aggKey + `", value: "last")` + "\n")
	b.WriteString("union(tables: [firsts, lasts])\n")

	result, err := q.Query(ctx, b.String())
	if err != nil {
		return nil, fmt.Errorf("historic energy query: %w", err)
	}

	// One first/last pair per channel and edge; deltas are summed over
	// edges when no edge filter is given.
	type span struct {
		first, last       float64
		hasFirst, hasLast bool
	}
	spans := make(map[[2]string]*span)
	for result.Next() {
		rec := result.Record()
		value, ok := toFloat(rec.Value())
		if !ok {
			continue
		}
		seriesKey := [2]string{rec.Field(), stringValue(rec.ValueByKey(EdgeTag))}
		s := spans[seriesKey]
		if s == nil {
			s = &span{}
			spans[seriesKey] = s
		}
		switch stringValue(rec.ValueByKey(aggKey)) {
		case "first":
			s.first, s.hasFirst = value, true
		case "last":
			s.last, s.hasLast = value, true
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("historic energy query: %w", err)
	}

	out := make(map[string]float64)
	for seriesKey, s := range spans {
		if s.hasFirst && s.hasLast {
			out[seriesKey[0]] += s.last - s.first
		}
	}
	return out, nil
}

func (p *fluxProxy) QueryHistoricEnergyPerPeriod(ctx context.Context, q Querier, bucket string, edge *int,
	from, to time.Time, chans []string, resolution time.Duration) ([]Row, error) {
	if err := checkResolution(resolution); err != nil {
		return nil, fmt.Errorf("historic energy per period query: %w", err)
	}
	if err := checkQuerySize(chans, from, to, resolution, p.limit); err != nil {
		return nil, err
	}

	window := windowArgs(from, resolution)
	var b strings.Builder
	writeDataSource(&b, bucket, edge, from, to, chans)
	fmt.Fprintf(&b, "firsts = data |> aggregateWindow(%s, fn: first) |> set(key: %q, value: \"first\")\n", window, aggKey)
	fmt.Fprintf(&b, "lasts = data |> aggregateWindow(%s, fn: last) |> set(key: %q, value: \"last\")\n", window, aggKey)
	b.WriteString("union(tables: [firsts, lasts])\n")

	result, err := q.Query(ctx, b.String())
	if err != nil {
		return nil, fmt.Errorf("historic energy per period query: %w", err)
	}

	type span struct {
		first, last       float64
		hasFirst, hasLast bool
	}
	type windowKey struct {
		ts    int64
		field string
		edge  string
	}
	spans := make(map[windowKey]*span)
	for result.Next() {
		rec := result.Record()
		value, ok := toFloat(rec.Value())
		if !ok {
			continue
		}
		key := windowKey{
			ts:    rec.Time().UnixNano(),
			field: rec.Field(),
			edge:  stringValue(rec.ValueByKey(EdgeTag)),
		}
		s := spans[key]
		if s == nil {
			s = &span{}
			spans[key] = s
		}
		switch stringValue(rec.ValueByKey(aggKey)) {
		case "first":
			s.first, s.hasFirst = value, true
		case "last":
			s.last, s.hasLast = value, true
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("historic energy per period query: %w", err)
	}

	buckets := make(map[int64]map[string]float64)
	for key, s := range spans {
		if !s.hasFirst || !s.hasLast {
			continue
		}
		values := buckets[key.ts]
		if values == nil {
			values = make(map[string]float64)
			buckets[key.ts] = values
		}
		values[key.field] += s.last - s.first
	}
	return sortedRows(buckets), nil
}

func (p *fluxProxy) QueryHistoricData(ctx context.Context, q Querier, bucket string, edge *int,
	from, to time.Time, chans []string, resolution time.Duration) ([]Row, error) {
	if err := checkResolution(resolution); err != nil {
		return nil, fmt.Errorf("historic data query: %w", err)
	}
	if err := checkQuerySize(chans, from, to, resolution, p.limit); err != nil {
		return nil, err
	}

	// Within-period reduction follows the channel's aggregation kind:
	// mean for average channels, max for cumulative counters.
	var avgChans, cumChans []string
	for _, channel := range chans {
		if channels.Classify(channel) == channels.AggregationCumulative {
			cumChans = append(cumChans, channel)
		} else {
			avgChans = append(avgChans, channel)
		}
	}

	window := windowArgs(from, resolution)
	var b strings.Builder
	writeDataSource(&b, bucket, edge, from, to, chans)
	var branches []string
	if len(avgChans) > 0 {
		fmt.Fprintf(&b, "avg = data |> filter(fn: (r) => %s) |> aggregateWindow(%s, fn: mean)\n",
			fieldFilter(avgChans), window)
		branches = append(branches, "avg")
	}
	if len(cumChans) > 0 {
		fmt.Fprintf(&b, "cum = data |> filter(fn: (r) => %s) |> aggregateWindow(%s, fn: max)\n",
			fieldFilter(cumChans), window)
		branches = append(branches, "cum")
	}
	if len(branches) == 1 {
		b.WriteString(branches[0] + "\n")
	} else {
		fmt.Fprintf(&b, "union(tables: [%s])\n", strings.Join(branches, ", "))
	}

	result, err := q.Query(ctx, b.String())
	if err != nil {
		return nil, fmt.Errorf("historic data query: %w", err)
	}

	buckets := make(map[int64]map[string]float64)
	for result.Next() {
		rec := result.Record()
		value, ok := toFloat(rec.Value())
		if !ok {
			continue
		}
		ts := rec.Time().UnixNano()
		values := buckets[ts]
		if values == nil {
			values = make(map[string]float64)
			buckets[ts] = values
		}
		values[rec.Field()] = value
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("historic data query: %w", err)
	}
	return sortedRows(buckets), nil
}

func (p *fluxProxy) QueryAvailableSince(ctx context.Context, q Querier, bucket string) (map[int]map[string]int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %q)\n", bucket)
	b.WriteString("  |> range(start: 1970-01-01T00:00:00Z)\n")
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %q)\n", AvailableSinceMeasurement)
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._field == %q)\n", AvailableSinceField)
	b.WriteString("  |> last()\n")

	result, err := q.Query(ctx, b.String())
	if err != nil {
		return nil, fmt.Errorf("available since query: %w", err)
	}

	out := make(map[int]map[string]int64)
	for result.Next() {
		rec := result.Record()
		edgeTag := stringValue(rec.ValueByKey(EdgeTag))
		edgeID, err := strconv.Atoi(edgeTag)
		if err != nil {
			return nil, fmt.Errorf("available since query: invalid edge tag %q", edgeTag)
		}
		value, ok := toInt64(rec.Value())
		if !ok {
			continue
		}
		channel := stringValue(rec.ValueByKey(ChannelTag))
		byChannel := out[edgeID]
		if byChannel == nil {
			byChannel = make(map[string]int64)
			out[edgeID] = byChannel
		}
		byChannel[channel] = value
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("available since query: %w", err)
	}
	return out, nil
}

// writeDataSource emits the shared "data" pipeline: bucket, time range,
// measurement, optional edge restriction and the channel field set.
func writeDataSource(b *strings.Builder, bucket string, edge *int, from, to time.Time, chans []string) {
	fmt.Fprintf(b, "data = from(bucket: %q)\n", bucket)
	fmt.Fprintf(b, "  |> range(start: %s, stop: %s)\n", fluxTime(from), fluxTime(to))
	fmt.Fprintf(b, "  |> filter(fn: (r) => r._measurement == %q)\n", Measurement)
	if edge != nil {
		fmt.Fprintf(b, "  |> filter(fn: (r) => r.%s == \"%d\")\n", EdgeTag, *edge)
	}
	fmt.Fprintf(b, "  |> filter(fn: (r) => %s)\n", fieldFilter(chans))
}

// checkResolution rejects window widths the second-granular aggregate
// windows cannot express. windowArgs divides by whole seconds, so anything
// below one second or carrying a fractional second must fail here first.
func checkResolution(resolution time.Duration) error {
	if resolution < time.Second || resolution%time.Second != 0 {
		return fmt.Errorf("resolution must be a whole number of seconds, got %s", resolution)
	}
	return nil
}

// windowArgs renders aggregateWindow arguments with boundaries aligned to
// the range start, so the trailing partial bucket keeps its own window.
// Callers validate the resolution via checkResolution before this runs.
func windowArgs(from time.Time, resolution time.Duration) string {
	offset := from.Unix() % int64(resolution.Seconds())
	return fmt.Sprintf("every: %ds, offset: %ds, createEmpty: false, timeSrc: \"_start\"",
		int64(resolution.Seconds()), offset)
}

func fieldFilter(chans []string) string {
	parts := make([]string, 0, len(chans))
	for _, channel := range chans {
		parts = append(parts, fmt.Sprintf("r._field == %q", channel))
	}
	return strings.Join(parts, " or ")
}

func fluxTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func sortedRows(buckets map[int64]map[string]float64) []Row {
	rows := make([]Row, 0, len(buckets))
	for ts, values := range buckets {
		rows = append(rows, Row{Time: time.Unix(0, ts).UTC(), Values: values})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Time.Before(rows[j].Time) })
	return rows
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
