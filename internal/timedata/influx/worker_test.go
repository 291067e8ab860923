package influx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	influxhttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/gridpulse/gridpulse-core/internal/infrastructure/config"
	"github.com/gridpulse/gridpulse-core/internal/infrastructure/logging"
)

// fakeBatchWriter records batches and returns a configurable error.
type fakeBatchWriter struct {
	mu      sync.Mutex
	batches [][]*write.Point
	err     error
}

func (f *fakeBatchWriter) writeBatch(_ context.Context, _ WriteParameters, points []*write.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, points)
	return nil
}

func (f *fakeBatchWriter) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeBatchWriter) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")
}

func newTestWorker(writer batchWriter, exec *executor, readOnly bool, onError func(error)) *mergeWorker {
	params := WriteParameters{Bucket: "gridpulse", Org: "test", Precision: time.Nanosecond, Consistency: "all"}
	return newMergeWorker("Test", params, writer, exec, testLogger(), onError, readOnly, time.Hour)
}

func dataPoint(channel string, value any, ts time.Time) *write.Point {
	return write.NewPoint("data", map[string]string{"edge": "0"}, map[string]any{channel: value}, ts)
}

func fieldValue(t *testing.T, p *write.Point, key string) any {
	t.Helper()
	for _, field := range p.FieldList() {
		if field.Key == key {
			return field.Value
		}
	}
	t.Fatalf("field %q not found on point %s", key, p.Name())
	return nil
}

func TestMergeWorker_MergesSameTimestamp(t *testing.T) {
	writer := &fakeBatchWriter{}
	exec := newExecutor(1, 4)
	defer exec.shutdown()
	w := newTestWorker(writer, exec, false, nil)

	ts := time.Unix(1700000000, 0)
	w.offer(dataPoint("_sum/EssSoc", int64(55), ts))
	w.offer(dataPoint("_sum/EssActivePower", int64(1000), ts))
	w.flushNow()

	if got := writer.batchCount(); got != 1 {
		t.Fatalf("batchCount() = %d, want 1", got)
	}
	batch := writer.batches[0]
	if len(batch) != 1 {
		t.Fatalf("batch holds %d points, want 1 merged point", len(batch))
	}
	if got := fieldValue(t, batch[0], "_sum/EssSoc"); got != int64(55) {
		t.Errorf("_sum/EssSoc = %v, want 55", got)
	}
	if got := fieldValue(t, batch[0], "_sum/EssActivePower"); got != int64(1000) {
		t.Errorf("_sum/EssActivePower = %v, want 1000", got)
	}
}

func TestMergeWorker_LastFieldWins(t *testing.T) {
	writer := &fakeBatchWriter{}
	exec := newExecutor(1, 4)
	defer exec.shutdown()
	w := newTestWorker(writer, exec, false, nil)

	ts := time.Unix(1700000000, 0)
	w.offer(dataPoint("_sum/EssSoc", int64(40), ts))
	w.offer(dataPoint("_sum/EssSoc", int64(55), ts))
	w.flushNow()

	batch := writer.batches[0]
	if len(batch) != 1 {
		t.Fatalf("batch holds %d points, want 1", len(batch))
	}
	if got := fieldValue(t, batch[0], "_sum/EssSoc"); got != int64(55) {
		t.Errorf("_sum/EssSoc = %v, want the later value 55", got)
	}
}

func TestMergeWorker_DistinctKeysStaySeparate(t *testing.T) {
	writer := &fakeBatchWriter{}
	exec := newExecutor(1, 4)
	defer exec.shutdown()
	w := newTestWorker(writer, exec, false, nil)

	ts := time.Unix(1700000000, 0)
	w.offer(dataPoint("_sum/EssSoc", int64(55), ts))
	w.offer(dataPoint("_sum/EssSoc", int64(56), ts.Add(time.Second)))
	w.offer(write.NewPoint("data", map[string]string{"edge": "7"}, map[string]any{"_sum/EssSoc": int64(12)}, ts))
	w.flushNow()

	if len(writer.batches[0]) != 3 {
		t.Errorf("batch holds %d points, want 3 distinct", len(writer.batches[0]))
	}
}

func TestMergeWorker_EmptyBufferSkipsFlush(t *testing.T) {
	writer := &fakeBatchWriter{}
	exec := newExecutor(1, 4)
	defer exec.shutdown()
	w := newTestWorker(writer, exec, false, nil)

	w.cycle()
	w.flushNow()

	if got := writer.batchCount(); got != 0 {
		t.Errorf("batchCount() = %d, want 0 for empty buffer", got)
	}
}

func TestMergeWorker_PoolSaturationRequeues(t *testing.T) {
	writer := &fakeBatchWriter{}
	exec := newExecutor(1, 1)
	w := newTestWorker(writer, exec, false, nil)

	// Occupy the single pool worker and fill the queue slot.
	release := make(chan struct{})
	started := make(chan struct{})
	exec.trySubmit(func() {
		close(started)
		<-release
	})
	<-started
	exec.trySubmit(func() {})

	ts := time.Unix(1700000000, 0)
	w.offer(dataPoint("_sum/EssSoc", int64(55), ts))
	w.cycle()

	if got := w.backpressure.Load(); got != 1 {
		t.Errorf("backpressure = %d, want 1", got)
	}
	if got := w.bufferLen(); got != 1 {
		t.Errorf("bufferLen() = %d, want the snapshot re-merged", got)
	}

	// Newer fields offered during saturation survive the re-merge; the
	// eventual flush carries the full superset.
	w.offer(dataPoint("_sum/EssActivePower", int64(1000), ts))
	close(release)
	exec.shutdown()
	w.flushNow()

	if got := writer.batchCount(); got != 1 {
		t.Fatalf("batchCount() = %d, want 1", got)
	}
	batch := writer.batches[0]
	if len(batch) != 1 {
		t.Fatalf("batch holds %d points, want 1 merged point", len(batch))
	}
	if got := fieldValue(t, batch[0], "_sum/EssSoc"); got != int64(55) {
		t.Errorf("_sum/EssSoc = %v, want 55", got)
	}
	if got := fieldValue(t, batch[0], "_sum/EssActivePower"); got != int64(1000) {
		t.Errorf("_sum/EssActivePower = %v, want 1000", got)
	}
}

func TestMergeWorker_StoreRejectionDropsBatch(t *testing.T) {
	writer := &fakeBatchWriter{}
	writer.setErr(&influxhttp.Error{StatusCode: 400, Code: "invalid", Message: "unable to parse points"})
	exec := newExecutor(1, 4)
	defer exec.shutdown()

	var reported error
	w := newTestWorker(writer, exec, false, func(err error) { reported = err })

	w.offer(dataPoint("_sum/EssSoc", int64(55), time.Unix(1700000000, 0)))
	w.flushNow()

	if reported == nil {
		t.Fatal("onError not called for store rejection")
	}
	if !errors.Is(reported, ErrWriteFailed) {
		t.Errorf("onError reported %v, want ErrWriteFailed", reported)
	}
	if got := w.bufferLen(); got != 0 {
		t.Errorf("bufferLen() = %d, want 0 (rejected batch dropped)", got)
	}
	if got := w.rejected.Load(); got != 1 {
		t.Errorf("rejected = %d, want 1", got)
	}

	// Nothing left to retry.
	writer.setErr(nil)
	w.flushNow()
	if got := writer.batchCount(); got != 0 {
		t.Errorf("batchCount() = %d after drop, want 0", got)
	}
}

func TestMergeWorker_TransportFailureRequeues(t *testing.T) {
	writer := &fakeBatchWriter{}
	writer.setErr(fmt.Errorf("dial tcp: connection refused"))
	exec := newExecutor(1, 4)
	defer exec.shutdown()

	w := newTestWorker(writer, exec, false, func(error) { t.Error("onError called for transport failure") })

	ts := time.Unix(1700000000, 0)
	w.offer(dataPoint("_sum/EssSoc", int64(55), ts))
	w.flushNow()

	if got := w.bufferLen(); got != 1 {
		t.Fatalf("bufferLen() = %d, want 1 (batch re-merged)", got)
	}
	if got := w.requeued.Load(); got != 1 {
		t.Errorf("requeued = %d, want 1", got)
	}

	writer.setErr(nil)
	w.flushNow()
	if got := writer.batchCount(); got != 1 {
		t.Fatalf("batchCount() = %d after recovery, want 1", got)
	}
	if got := fieldValue(t, writer.batches[0][0], "_sum/EssSoc"); got != int64(55) {
		t.Errorf("_sum/EssSoc = %v, want 55", got)
	}
}

func TestMergeWorker_RemergeKeepsLiveFields(t *testing.T) {
	writer := &fakeBatchWriter{}
	writer.setErr(fmt.Errorf("transport down"))
	exec := newExecutor(1, 4)
	defer exec.shutdown()
	w := newTestWorker(writer, exec, false, nil)

	ts := time.Unix(1700000000, 0)
	w.offer(dataPoint("_sum/EssSoc", int64(40), ts))

	snapshot := w.snapshot()
	w.offer(dataPoint("_sum/EssSoc", int64(55), ts))
	w.remerge(snapshot)
	writer.setErr(nil)
	w.flushNow()

	if got := fieldValue(t, writer.batches[0][0], "_sum/EssSoc"); got != int64(55) {
		t.Errorf("_sum/EssSoc = %v, want the live value 55 to win over the snapshot", got)
	}
}

func TestMergeWorker_ReadOnlyDiscards(t *testing.T) {
	writer := &fakeBatchWriter{}
	exec := newExecutor(1, 4)
	defer exec.shutdown()
	w := newTestWorker(writer, exec, true, nil)

	w.offer(dataPoint("_sum/EssSoc", int64(55), time.Unix(1700000000, 0)))
	w.flushNow()

	if got := writer.batchCount(); got != 0 {
		t.Errorf("batchCount() = %d in read-only mode, want 0", got)
	}
	if got := w.bufferLen(); got != 0 {
		t.Errorf("bufferLen() = %d, want 0 (buffer still drained)", got)
	}
}

func TestMergeWorker_DeactivateFlushesRemainder(t *testing.T) {
	writer := &fakeBatchWriter{}
	exec := newExecutor(1, 4)
	defer exec.shutdown()
	w := newTestWorker(writer, exec, false, nil)
	w.activate()

	w.offer(dataPoint("_sum/EssSoc", int64(55), time.Unix(1700000000, 0)))
	w.deactivate()
	w.deactivate() // idempotent

	if got := writer.batchCount(); got != 1 {
		t.Errorf("batchCount() = %d after deactivate, want 1 final flush", got)
	}
}

func TestIsStoreRejection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"bad request", &influxhttp.Error{StatusCode: 400}, true},
		{"unauthorized", &influxhttp.Error{StatusCode: 401}, true},
		{"payload too large", &influxhttp.Error{StatusCode: 413}, true},
		{"server error", &influxhttp.Error{StatusCode: 503}, false},
		{"wrapped rejection", fmt.Errorf("write: %w", &influxhttp.Error{StatusCode: 422}), true},
		{"plain error", errors.New("connection reset"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isStoreRejection(tt.err); got != tt.want {
				t.Errorf("isStoreRejection(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestPointEntry_KeyIgnoresTagOrder(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	a := &pointEntry{measurement: "data", tags: map[string]string{"edge": "0", "zone": "a"}, ts: ts}
	b := &pointEntry{measurement: "data", tags: map[string]string{"zone": "a", "edge": "0"}, ts: ts}
	if a.key() != b.key() {
		t.Errorf("key() differs for identical tag sets: %q vs %q", a.key(), b.key())
	}

	c := &pointEntry{measurement: "data", tags: map[string]string{"edge": "1"}, ts: ts}
	if a.key() == c.key() {
		t.Error("key() collides for different tag values")
	}
}
