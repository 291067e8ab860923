package influx

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/gridpulse/gridpulse-core/internal/infrastructure/config"
	"github.com/gridpulse/gridpulse-core/internal/infrastructure/logging"
	"github.com/gridpulse/gridpulse-core/internal/timedata/channels"
	"github.com/gridpulse/gridpulse-core/internal/timedata/influx/proxy"
)

// How often the monitor goroutine logs worker and pool statistics.
const debugLogInterval = 10 * time.Second

var nameNumberPattern = regexp.MustCompile(`[^0-9]+([0-9]+)$`)

// Connector is the facade over the time-series store.
//
// It routes incoming measurement points through the channel policy,
// selects the merge worker for the point's write destination, and exposes
// the historic query operations by delegating to the configured query
// proxy. All methods are safe for concurrent use.
type Connector struct {
	log   *logging.Logger
	cfg   config.InfluxConfig
	proxy proxy.QueryProxy
	exec  *executor
	cache *queryCache

	defaultParams WriteParameters
	workers       map[WriteParameters]*mergeWorker

	connMu sync.Mutex
	conn   *Connection
	closed bool

	accepting atomic.Bool
	closeOnce sync.Once

	debugDone chan struct{}
	debugWG   sync.WaitGroup
}

// NewConnector creates the connector and activates one merge worker per
// declared write destination.
//
// The store connection itself is created lazily on first use. All write
// destinations used later must be declared in cfg.Destinations (the
// default bucket/org pair is always declared).
//
// Parameters:
//   - cfg: Influx configuration from config.yaml
//   - cacheSize: query result cache capacity; 0 disables the cache
//   - log: parent logger
//   - onWriteError: callback for batches rejected by the store
//
// Returns:
//   - *Connector: Connector with active flush cycles
//   - error: If the query language is unsupported or the cache cannot be built
func NewConnector(cfg config.InfluxConfig, cacheSize int, log *logging.Logger, onWriteError func(error)) (*Connector, error) {
	queryProxy, err := proxy.FromLanguage(cfg.QueryLanguage, cfg.QueryLimit)
	if err != nil {
		return nil, fmt.Errorf("creating query proxy: %w", err)
	}

	c := &Connector{
		log:   log.With("component", "influx"),
		cfg:   cfg,
		proxy: queryProxy,
		exec:  newExecutor(cfg.PoolSize, cfg.QueueCapacity),
		defaultParams: WriteParameters{
			Bucket:      cfg.Bucket,
			Org:         cfg.Org,
			Precision:   time.Nanosecond,
			Consistency: "all",
		},
		workers:   make(map[WriteParameters]*mergeWorker),
		debugDone: make(chan struct{}),
	}

	if cacheSize > 0 {
		c.cache, err = newQueryCache(cacheSize)
		if err != nil {
			return nil, err
		}
	}

	interval := time.Duration(cfg.FlushInterval) * time.Second
	if interval <= 0 {
		interval = debugLogInterval
	}

	c.workers[c.defaultParams] = newMergeWorker("Default", c.defaultParams, c, c.exec,
		c.log, onWriteError, cfg.ReadOnly, interval)
	for _, dest := range cfg.Destinations {
		params := paramsFromConfig(dest, c.defaultParams)
		if _, ok := c.workers[params]; ok {
			continue
		}
		c.workers[params] = newMergeWorker(params.Bucket, params, c, c.exec,
			c.log, onWriteError, cfg.ReadOnly, interval)
	}
	for _, worker := range c.workers {
		worker.activate()
	}

	c.accepting.Store(true)
	c.startMonitor()

	return c, nil
}

// startMonitor launches the background diagnostic logger. It reads worker
// statistics without holding any data-path lock for the duration of
// formatting output.
func (c *Connector) startMonitor() {
	c.debugWG.Add(1)
	go func() {
		defer c.debugWG.Done()
		ticker := time.NewTicker(debugLogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.log.Debug("monitor",
					"pool", c.exec.debugString(),
					"workers", c.workersDebugString(),
					"query_limit", c.cfg.QueryLimit,
				)
			case <-c.debugDone:
				return
			}
		}
	}()
}

// workersDebugString collects every worker's point-in-time summary.
func (c *Connector) workersDebugString() string {
	summaries := make([]string, 0, len(c.workers))
	for _, worker := range c.workers {
		summaries = append(summaries, worker.debugString())
	}
	sort.Strings(summaries)
	return strings.Join(summaries, ", ")
}

// Close stops all flush cycles (each performs one final best-effort
// flush), drains the worker pool, and closes the store client exactly
// once. Writes and queries after Close fail fast with ErrClosed.
func (c *Connector) Close() error {
	c.closeOnce.Do(func() {
		c.accepting.Store(false)
		close(c.debugDone)
		c.debugWG.Wait()

		for _, worker := range c.workers {
			worker.deactivate()
		}
		c.exec.shutdown()

		c.connMu.Lock()
		c.closed = true
		if c.conn != nil {
			c.conn.close()
		}
		c.connMu.Unlock()

		c.log.Info("connector closed")
	})
	return nil
}

// SubmitPoint builds a point for one channel value on the default
// destination and enqueues it. Values rejected by the channel policy
// (unknown channel, non-numeric value) are dropped silently.
func (c *Connector) SubmitPoint(channel string, raw any, ts time.Time, edgeID int) error {
	return c.SubmitPointTo(channel, raw, ts, edgeID, c.defaultParams)
}

// SubmitPointTo is SubmitPoint for an explicitly declared destination.
func (c *Connector) SubmitPointTo(channel string, raw any, ts time.Time, edgeID int, params WriteParameters) error {
	value, ok := channels.TypedValue(channel, raw)
	if !ok {
		metricAdmissionDropped.Inc()
		return nil
	}
	point := write.NewPoint(
		proxy.Measurement,
		map[string]string{proxy.EdgeTag: strconv.Itoa(edgeID)},
		map[string]any{channel: value},
		ts,
	)
	return c.WritePointTo(point, params)
}

// WritePoint enqueues a point for the default destination.
func (c *Connector) WritePoint(point *write.Point) error {
	return c.WritePointTo(point, c.defaultParams)
}

// WritePointTo enqueues a point for one declared destination. Writing to
// an undeclared destination is a caller error. The call never blocks on
// network I/O.
func (c *Connector) WritePointTo(point *write.Point, params WriteParameters) error {
	if !c.accepting.Load() {
		return ErrClosed
	}
	worker, ok := c.workers[params]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDestination, params)
	}
	worker.offer(point)
	return nil
}

// Flush synchronously drains every worker's buffer, bypassing the pool.
// Useful for tests and before shutdown.
func (c *Connector) Flush() {
	for _, worker := range c.workers {
		worker.flushNow()
	}
}

// writeBatch submits one merged batch to the store. It implements the
// batchWriter seam used by the merge workers.
func (c *Connector) writeBatch(ctx context.Context, params WriteParameters, points []*write.Point) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}
	return conn.writeAPIFor(params).WritePoint(ctx, points...)
}

// QueryHistoricEnergy returns the cumulative energy delta per channel over
// [from, to). An empty channel set returns an empty result without
// contacting the store.
func (c *Connector) QueryHistoricEnergy(ctx context.Context, edge *int, from, to time.Time, chans []string) (map[string]float64, error) {
	if len(chans) == 0 {
		return map[string]float64{}, nil
	}
	metricQueries.WithLabelValues("historic_energy").Inc()

	key := cacheKey("historic_energy", edge, from, to, chans, 0)
	if c.cache != nil && c.cache.cacheable(to) {
		if cached, ok := c.cache.get(key); ok {
			metricCacheHits.Inc()
			return maps.Clone(cached.(map[string]float64)), nil
		}
	}

	conn, err := c.connection()
	if err != nil {
		return nil, err
	}
	result, err := c.proxy.QueryHistoricEnergy(ctx, conn.QueryAPI, c.cfg.Bucket, edge, from, to, chans)
	if err != nil {
		return nil, err
	}
	if c.cache != nil && c.cache.cacheable(to) {
		c.cache.put(key, maps.Clone(result))
	}
	return result, nil
}

// QueryHistoricEnergyPerPeriod buckets energy deltas per fixed-width
// period, ordered ascending by time. The trailing partial bucket is
// included when the range does not divide evenly.
func (c *Connector) QueryHistoricEnergyPerPeriod(ctx context.Context, edge *int, from, to time.Time, chans []string, resolution time.Duration) ([]proxy.Row, error) {
	if len(chans) == 0 {
		return []proxy.Row{}, nil
	}
	metricQueries.WithLabelValues("historic_energy_per_period").Inc()

	key := cacheKey("historic_energy_per_period", edge, from, to, chans, resolution)
	if c.cache != nil && c.cache.cacheable(to) {
		if cached, ok := c.cache.get(key); ok {
			metricCacheHits.Inc()
			return cloneRows(cached.([]proxy.Row)), nil
		}
	}

	conn, err := c.connection()
	if err != nil {
		return nil, err
	}
	result, err := c.proxy.QueryHistoricEnergyPerPeriod(ctx, conn.QueryAPI, c.cfg.Bucket, edge, from, to, chans, resolution)
	if err != nil {
		return nil, err
	}
	if c.cache != nil && c.cache.cacheable(to) {
		c.cache.put(key, cloneRows(result))
	}
	return result, nil
}

// QueryHistoricData returns samples per period, ordered ascending by time.
func (c *Connector) QueryHistoricData(ctx context.Context, edge *int, from, to time.Time, chans []string, resolution time.Duration) ([]proxy.Row, error) {
	if len(chans) == 0 {
		return []proxy.Row{}, nil
	}
	metricQueries.WithLabelValues("historic_data").Inc()

	key := cacheKey("historic_data", edge, from, to, chans, resolution)
	if c.cache != nil && c.cache.cacheable(to) {
		if cached, ok := c.cache.get(key); ok {
			metricCacheHits.Inc()
			return cloneRows(cached.([]proxy.Row)), nil
		}
	}

	conn, err := c.connection()
	if err != nil {
		return nil, err
	}
	result, err := c.proxy.QueryHistoricData(ctx, conn.QueryAPI, c.cfg.Bucket, edge, from, to, chans, resolution)
	if err != nil {
		return nil, err
	}
	if c.cache != nil && c.cache.cacheable(to) {
		c.cache.put(key, cloneRows(result))
	}
	return result, nil
}

// QueryAvailableSince reads the sentinel marker recording, per edge and
// channel, the earliest timestamp from which data is known to exist.
func (c *Connector) QueryAvailableSince(ctx context.Context) (map[int]map[string]int64, error) {
	metricQueries.WithLabelValues("available_since").Inc()
	conn, err := c.connection()
	if err != nil {
		return nil, err
	}
	return c.proxy.QueryAvailableSince(ctx, conn.QueryAPI, c.cfg.Bucket)
}

// WriteAvailableSince updates the availableSince sentinel for one edge and
// channel. The marker is a normal point write through the same write path.
func (c *Connector) WriteAvailableSince(edgeID int, channel string, availableSince int64) error {
	return c.WritePoint(BuildAvailableSincePoint(edgeID, channel, availableSince))
}

// BuildAvailableSincePoint builds the sentinel point holding the earliest
// known data timestamp (unix seconds) for one edge and channel.
func BuildAvailableSincePoint(edgeID int, channel string, availableSince int64) *write.Point {
	return write.NewPoint(
		proxy.AvailableSinceMeasurement,
		map[string]string{
			proxy.EdgeTag:    strconv.Itoa(edgeID),
			proxy.ChannelTag: channel,
		},
		map[string]any{proxy.AvailableSinceField: availableSince},
		time.Unix(0, 0),
	)
}

// DefaultParams returns the default write destination.
func (c *Connector) DefaultParams() WriteParameters {
	return c.defaultParams
}

// ParseNumberFromName extracts the numeric edge id from an opaque edge
// name by its trailing digit sequence, e.g. "edge0" -> 0. A name without
// trailing digits is a hard error.
func ParseNumberFromName(name string) (int, error) {
	match := nameNumberPattern.FindStringSubmatch(name)
	if match == nil {
		return 0, fmt.Errorf("unable to parse number from name %q", name)
	}
	id, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("unable to parse number from name %q: %w", name, err)
	}
	return id, nil
}
