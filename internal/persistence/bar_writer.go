// Package persistence archives closed bars to SQLite in batches so the
// hot path never blocks on disk.
package persistence

import (
	"database/sql"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"quant-core/internal/kline"
)

// BarWriter batches closed-bar inserts.
type BarWriter struct {
	db          *sql.DB
	buffer      []kline.Bar
	mu          sync.Mutex
	maxSize     int
	flushIntval time.Duration
	done        chan struct{}
	wg          sync.WaitGroup
	metrics     WriterMetrics
}

// WriterMetrics provides statistics about batch operations.
type WriterMetrics struct {
	TotalWrites   uint64    `json:"total_writes"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
}

// NewBarWriter creates a batch writer.
// maxSize: bars buffered before auto-flush
// interval: time-based flush interval
func NewBarWriter(db *sql.DB, maxSize int, interval time.Duration) *BarWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	bw := &BarWriter{
		db:          db,
		buffer:      make([]kline.Bar, 0, maxSize),
		maxSize:     maxSize,
		flushIntval: interval,
		done:        make(chan struct{}),
	}

	bw.wg.Add(1)
	go bw.backgroundFlush()

	return bw
}

// Write buffers one closed bar.
func (bw *BarWriter) Write(bar kline.Bar) {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, bar)
	shouldFlush := len(bw.buffer) >= bw.maxSize
	bw.mu.Unlock()

	if shouldFlush {
		if err := bw.Flush(); err != nil {
			log.Printf("bar writer: flush: %v", err)
		}
	}
}

// Flush immediately writes all buffered bars to the database.
func (bw *BarWriter) Flush() error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}

	bars := bw.buffer
	bw.buffer = make([]kline.Bar, 0, bw.maxSize)
	bw.mu.Unlock()

	return bw.executeBatch(bars)
}

func (bw *BarWriter) executeBatch(bars []kline.Bar) error {
	atomic.AddUint64(&bw.metrics.TotalWrites, uint64(len(bars)))
	atomic.AddUint64(&bw.metrics.TotalBatches, 1)
	bw.metrics.LastBatchSize = len(bars)
	bw.metrics.LastFlushTime = time.Now()

	tx, err := bw.db.Begin()
	if err != nil {
		atomic.AddUint64(&bw.metrics.TotalErrors, 1)
		return err
	}

	const stmt = `
		INSERT INTO klines (symbol, interval, open_time, open, high, low, close, volume, quote_volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, interval, open_time) DO NOTHING`
	for _, b := range bars {
		if _, err := tx.Exec(stmt, b.Symbol, b.Interval, b.OpenTime,
			b.Open, b.High, b.Low, b.Close, b.Volume, b.QuoteVolume); err != nil {
			tx.Rollback()
			atomic.AddUint64(&bw.metrics.TotalErrors, 1)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		atomic.AddUint64(&bw.metrics.TotalErrors, 1)
		return err
	}
	return nil
}

func (bw *BarWriter) backgroundFlush() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.flushIntval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := bw.Flush(); err != nil {
				log.Printf("bar writer: background flush: %v", err)
			}
		case <-bw.done:
			// Final flush before shutdown
			if err := bw.Flush(); err != nil {
				log.Printf("bar writer: final flush: %v", err)
			}
			return
		}
	}
}

// Pending returns the number of buffered bars.
func (bw *BarWriter) Pending() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Metrics returns a copy of the writer's counters.
func (bw *BarWriter) Metrics() WriterMetrics {
	return WriterMetrics{
		TotalWrites:   atomic.LoadUint64(&bw.metrics.TotalWrites),
		TotalBatches:  atomic.LoadUint64(&bw.metrics.TotalBatches),
		TotalErrors:   atomic.LoadUint64(&bw.metrics.TotalErrors),
		LastBatchSize: bw.metrics.LastBatchSize,
		LastFlushTime: bw.metrics.LastFlushTime,
	}
}

// Close flushes and shuts down the writer.
func (bw *BarWriter) Close() error {
	close(bw.done)
	bw.wg.Wait()
	return nil
}
