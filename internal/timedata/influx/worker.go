package influx

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	influxhttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/gridpulse/gridpulse-core/internal/infrastructure/logging"
)

// batchWriter submits one merged batch to the store. Implemented by the
// Connector; replaced by a fake in tests.
type batchWriter interface {
	writeBatch(ctx context.Context, params WriteParameters, points []*write.Point) error
}

// pointEntry is the mutable merge representation of one logical sample.
// Points sharing a merge key converge onto a single entry; later field
// values overwrite earlier ones per field key.
type pointEntry struct {
	measurement string
	tags        map[string]string
	ts          time.Time
	fields      map[string]any
}

// decompose converts an immutable store point into its merge representation.
func decompose(p *write.Point) *pointEntry {
	entry := &pointEntry{
		measurement: p.Name(),
		tags:        make(map[string]string, len(p.TagList())),
		ts:          p.Time(),
		fields:      make(map[string]any, len(p.FieldList())),
	}
	for _, tag := range p.TagList() {
		entry.tags[tag.Key] = tag.Value
	}
	for _, field := range p.FieldList() {
		entry.fields[field.Key] = field.Value
	}
	return entry
}

// key identifies the logical sample: measurement, sorted tags, timestamp.
func (e *pointEntry) key() string {
	keys := make([]string, 0, len(e.tags))
	for k := range e.tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(e.measurement)
	for _, k := range keys {
		b.WriteByte('\x00')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(e.tags[k])
	}
	b.WriteByte('\x00')
	b.WriteString(strconv.FormatInt(e.ts.UnixNano(), 10))
	return b.String()
}

// materialize builds the store point for a merged entry.
func (e *pointEntry) materialize() *write.Point {
	return write.NewPoint(e.measurement, e.tags, e.fields, e.ts)
}

// mergeWorker owns the merge buffer and the periodic flush cycle for one
// write destination.
//
// offer() never blocks on network I/O; it is the backpressure boundary as
// seen by producers. The periodic cycle snapshots the buffer and submits
// it to the shared bounded executor. If the executor queue is full, the
// snapshot is re-merged into the live buffer so a later cycle retries it;
// merge keys are stable, so a requeued flush is idempotent by construction.
type mergeWorker struct {
	name     string
	params   WriteParameters
	writer   batchWriter
	exec     *executor
	log      *logging.Logger
	onError  func(error)
	readOnly bool
	interval time.Duration

	mu     sync.Mutex
	buffer map[string]*pointEntry

	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
	stop   sync.Once

	// Diagnostics, readable without the buffer lock.
	offered      atomic.Uint64
	flushed      atomic.Uint64
	backpressure atomic.Uint64
	requeued     atomic.Uint64
	rejected     atomic.Uint64
}

func newMergeWorker(name string, params WriteParameters, writer batchWriter, exec *executor,
	log *logging.Logger, onError func(error), readOnly bool, interval time.Duration) *mergeWorker {
	return &mergeWorker{
		name:     name,
		params:   params,
		writer:   writer,
		exec:     exec,
		log:      log.With("worker", name),
		onError:  onError,
		readOnly: readOnly,
		interval: interval,
		buffer:   make(map[string]*pointEntry),
		done:     make(chan struct{}),
	}
}

// activate starts the periodic flush cycle.
func (w *mergeWorker) activate() {
	w.ticker = time.NewTicker(w.interval)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.ticker.C:
				w.cycle()
			case <-w.done:
				return
			}
		}
	}()
}

// deactivate stops the cycle and performs one final best-effort flush of
// any non-empty buffer. Safe to call more than once.
func (w *mergeWorker) deactivate() {
	w.stop.Do(func() {
		if w.ticker != nil {
			w.ticker.Stop()
		}
		close(w.done)
		w.wg.Wait()
		w.flushNow()
	})
}

// offer merges a point into the current buffer. Returns immediately; no
// network I/O is performed on the calling goroutine.
func (w *mergeWorker) offer(p *write.Point) {
	entry := decompose(p)
	key := entry.key()

	w.mu.Lock()
	if existing, ok := w.buffer[key]; ok {
		for k, v := range entry.fields {
			existing.fields[k] = v
		}
	} else {
		w.buffer[key] = entry
	}
	w.mu.Unlock()

	w.offered.Add(1)
	metricPointsOffered.Inc()
}

// snapshot atomically swaps out the buffer and returns its contents.
func (w *mergeWorker) snapshot() map[string]*pointEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buffer) == 0 {
		return nil
	}
	out := w.buffer
	w.buffer = make(map[string]*pointEntry)
	return out
}

// cycle runs one flush iteration: snapshot the buffer and submit it to
// the shared pool. A rejected submission is not lost; the snapshot is
// re-merged for a later cycle.
func (w *mergeWorker) cycle() {
	snapshot := w.snapshot()
	if snapshot == nil {
		return
	}
	if !w.exec.trySubmit(func() { w.flushBatch(snapshot) }) {
		w.remerge(snapshot)
		w.backpressure.Add(1)
		metricBackpressureEvents.Inc()
		w.log.Warn("flush pool saturated, batch requeued", "points", len(snapshot))
	}
}

// flushNow drains the buffer and writes it synchronously, bypassing the
// pool. Used for final flushes on deactivation and by Connector.Flush.
func (w *mergeWorker) flushNow() {
	if snapshot := w.snapshot(); snapshot != nil {
		w.flushBatch(snapshot)
	}
}

// flushBatch writes one snapshot as a single batch.
//
// Store rejections (malformed batch) are reported via the error callback
// and dropped: a rejected batch would be rejected again. Transport
// failures are retryable; the snapshot is re-merged so the next cycle
// picks it up, possibly alongside newer points.
func (w *mergeWorker) flushBatch(snapshot map[string]*pointEntry) {
	if w.readOnly {
		w.log.Info("read-only mode, discarding batch", "points", len(snapshot))
		return
	}

	points := make([]*write.Point, 0, len(snapshot))
	for _, entry := range snapshot {
		points = append(points, entry.materialize())
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err := w.writer.writeBatch(ctx, w.params, points)
	if err == nil {
		w.flushed.Add(uint64(len(points)))
		metricBatchesFlushed.Inc()
		metricPointsFlushed.Add(float64(len(points)))
		return
	}

	if isStoreRejection(err) {
		w.rejected.Add(uint64(len(points)))
		metricPointsRejected.Add(float64(len(points)))
		w.log.Error("batch rejected by store, dropping", "points", len(points), "error", err)
		if w.onError != nil {
			w.onError(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
		return
	}

	w.remerge(snapshot)
	w.requeued.Add(uint64(len(snapshot)))
	metricPointsRequeued.Add(float64(len(snapshot)))
	w.log.Warn("transport failure, batch requeued", "points", len(snapshot), "error", err)
}

// remerge puts a snapshot back into the live buffer. Fields offered after
// the snapshot was taken win over the snapshot's values for the same key.
func (w *mergeWorker) remerge(snapshot map[string]*pointEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, entry := range snapshot {
		if live, ok := w.buffer[key]; ok {
			for k, v := range live.fields {
				entry.fields[k] = v
			}
		}
		w.buffer[key] = entry
	}
}

// bufferLen reports the current merge buffer size.
func (w *mergeWorker) bufferLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

// debugString returns a point-in-time summary without blocking the cycle.
func (w *mergeWorker) debugString() string {
	return fmt.Sprintf("%s[buffer=%d offered=%d flushed=%d backpressure=%d requeued=%d rejected=%d]",
		w.name, w.bufferLen(), w.offered.Load(), w.flushed.Load(),
		w.backpressure.Load(), w.requeued.Load(), w.rejected.Load())
}

// isStoreRejection reports whether the store refused the batch outright
// (HTTP 4xx), as opposed to a transient transport failure.
func isStoreRejection(err error) bool {
	var serverErr *influxhttp.Error
	if errors.As(err, &serverErr) {
		return serverErr.StatusCode >= 400 && serverErr.StatusCode < 500
	}
	return false
}
