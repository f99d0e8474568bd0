package persistence

import (
	"testing"
	"time"

	"quant-core/internal/kline"
	"quant-core/pkg/db"
)

func setupWriterDB(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database.DB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func bar(openTime int64) kline.Bar {
	return kline.Bar{
		Symbol:   "ETH_USDC_PERP",
		Interval: "15m",
		OpenTime: openTime,
		Open:     2500,
		High:     2510,
		Low:      2490,
		Close:    2505,
		Volume:   12,
		Closed:   true,
	}
}

func countKlines(t *testing.T, database *db.Database) int {
	t.Helper()
	var n int
	if err := database.DB.QueryRow(`SELECT COUNT(*) FROM klines`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestFlushWritesBufferedBars(t *testing.T) {
	database := setupWriterDB(t)
	bw := NewBarWriter(database.DB, 50, time.Minute)
	defer bw.Close()

	for i := 0; i < 5; i++ {
		bw.Write(bar(int64(i) * 900000))
	}
	if got := bw.Pending(); got != 5 {
		t.Fatalf("pending = %d, want 5", got)
	}
	if err := bw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := countKlines(t, database); got != 5 {
		t.Fatalf("rows = %d, want 5", got)
	}
	if got := bw.Pending(); got != 0 {
		t.Fatalf("pending after flush = %d, want 0", got)
	}

	m := bw.Metrics()
	if m.TotalWrites != 5 || m.TotalBatches != 1 || m.LastBatchSize != 5 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestAutoFlushAtCapacity(t *testing.T) {
	database := setupWriterDB(t)
	bw := NewBarWriter(database.DB, 3, time.Minute)
	defer bw.Close()

	for i := 0; i < 3; i++ {
		bw.Write(bar(int64(i) * 900000))
	}
	if got := countKlines(t, database); got != 3 {
		t.Fatalf("rows = %d, want 3 after capacity flush", got)
	}
	if got := bw.Pending(); got != 0 {
		t.Fatalf("pending = %d, want 0", got)
	}
}

func TestDuplicateBarsIgnored(t *testing.T) {
	database := setupWriterDB(t)
	bw := NewBarWriter(database.DB, 50, time.Minute)
	defer bw.Close()

	bw.Write(bar(900000))
	bw.Write(bar(900000))
	if err := bw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if got := countKlines(t, database); got != 1 {
		t.Fatalf("rows = %d, want 1", got)
	}
}

func TestCloseFlushesRemainder(t *testing.T) {
	database := setupWriterDB(t)
	bw := NewBarWriter(database.DB, 50, time.Minute)

	bw.Write(bar(900000))
	bw.Write(bar(1800000))
	if err := bw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := countKlines(t, database); got != 2 {
		t.Fatalf("rows = %d, want 2 after close", got)
	}
}

func TestBackgroundFlush(t *testing.T) {
	database := setupWriterDB(t)
	bw := NewBarWriter(database.DB, 50, 20*time.Millisecond)
	defer bw.Close()

	bw.Write(bar(900000))

	deadline := time.After(2 * time.Second)
	for countKlines(t, database) == 0 {
		select {
		case <-deadline:
			t.Fatal("background flush never wrote the bar")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestFlushEmptyBufferIsNoop(t *testing.T) {
	database := setupWriterDB(t)
	bw := NewBarWriter(database.DB, 50, time.Minute)
	defer bw.Close()

	if err := bw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if m := bw.Metrics(); m.TotalBatches != 0 {
		t.Errorf("empty flush should not count a batch: %+v", m)
	}
}
