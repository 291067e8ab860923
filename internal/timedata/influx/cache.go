package influx

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/gridpulse/gridpulse-core/internal/timedata/influx/proxy"
)

// queryCache holds historic query results for ranges that can no longer
// change. Only queries whose range ends before the start of the current
// hour are cached; recent data may still receive late points.
type queryCache struct {
	entries *lru.Cache
}

func newQueryCache(size int) (*queryCache, error) {
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating query cache: %w", err)
	}
	return &queryCache{entries: entries}, nil
}

// cacheable reports whether a query range is safe to cache.
func (qc *queryCache) cacheable(to time.Time) bool {
	return to.Before(time.Now().Truncate(time.Hour))
}

func (qc *queryCache) get(key string) (any, bool) {
	return qc.entries.Get(key)
}

func (qc *queryCache) put(key string, value any) {
	qc.entries.Add(key, value)
}

// cloneRows deep-copies a per-period result. Cached entries are isolated
// from callers on both store and hit, so a caller mutating its result
// cannot pollute what later hits observe.
func cloneRows(rows []proxy.Row) []proxy.Row {
	out := make([]proxy.Row, len(rows))
	for i, row := range rows {
		out[i] = proxy.Row{Time: row.Time, Values: maps.Clone(row.Values)}
	}
	return out
}

// cacheKey builds a stable key from the query parameters. Channels are
// sorted so the same set always maps to the same entry.
func cacheKey(op string, edge *int, from, to time.Time, chans []string, resolution time.Duration) string {
	sorted := make([]string, len(chans))
	copy(sorted, chans)
	sort.Strings(sorted)

	edgeID := "*"
	if edge != nil {
		edgeID = fmt.Sprintf("%d", *edge)
	}
	return fmt.Sprintf("%s|%s|%d|%d|%d|%s",
		op, edgeID, from.UnixNano(), to.UnixNano(), resolution, strings.Join(sorted, ","))
}
