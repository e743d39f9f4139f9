package database

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/portfolio-tracker/internal/model"
	"github.com/rickgao/portfolio-tracker/internal/queue"
)

// WriterConfig holds batch writer settings.
type WriterConfig struct {
	BatchSize     int           // Rows per insert batch (default: 100)
	FlushInterval time.Duration // Max time a row waits in the batch (default: 5s)
	BufferSize    int           // Initial input queue capacity (default: 1024)
	FlushTimeout  time.Duration // Per-flush database timeout (default: 10s)
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		BufferSize:    1024,
		FlushTimeout:  10 * time.Second,
	}
}

// WriterMetrics tracks writer activity.
type WriterMetrics struct {
	Received  int64
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// BatchSender sends a pgx batch. Implemented by *pgxpool.Pool.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type priceRow struct {
	Symbol     string
	ObservedAt time.Time
	Price      string
}

// PriceWriter appends price changes to the price_history table in batches.
type PriceWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	input *queue.Deque[model.PriceUpdate]
	db    BatchSender

	// Batching
	batch   []priceRow
	batchMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

// NewPriceWriter creates a new PriceWriter.
func NewPriceWriter(cfg WriterConfig, db BatchSender, logger *slog.Logger) *PriceWriter {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}
	return &PriceWriter{
		cfg:    cfg,
		db:     db,
		logger: logger,
		input:  queue.New[model.PriceUpdate](cfg.BufferSize),
		batch:  make([]priceRow, 0, cfg.BatchSize),
	}
}

// OnPrice queues a price change for writing. Updates arriving after Stop are dropped.
func (w *PriceWriter) OnPrice(update model.PriceUpdate) {
	if !w.input.PushBack(update) {
		w.logger.Debug("price writer closed, dropping update", "symbol", update.Symbol)
	}
}

// Start begins consuming updates and writing to the database.
func (w *PriceWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("price writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued updates, writes them and shuts the writer down.
func (w *PriceWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping price writer")

	// Closing the input lets consumeLoop drain what is left and exit.
	w.input.Close()
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("price writer stopped")
	case <-ctx.Done():
		w.logger.Warn("price writer stop timed out")
	}

	// Final flush
	w.flush()

	return nil
}

// Stats returns current metrics.
func (w *PriceWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the input queue and accumulates batches.
func (w *PriceWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		update, ok := w.input.Receive()
		if !ok {
			return
		}
		w.handleUpdate(update)
	}
}

// flushLoop periodically flushes the batch.
func (w *PriceWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush()
		}
	}
}

// handleUpdate transforms and adds an update to the batch.
func (w *PriceWriter) handleUpdate(update model.PriceUpdate) {
	row := transform(update)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	w.metrics.Received++
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts a PriceUpdate to a priceRow.
func transform(update model.PriceUpdate) priceRow {
	observed := update.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	return priceRow{
		Symbol:     model.NormalizeSymbol(update.Symbol),
		ObservedAt: observed.UTC(),
		Price:      update.Price.String(),
	}
}

// flush writes the current batch to the database.
func (w *PriceWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]priceRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	// Not bound to w.ctx so the final flush in Stop still runs.
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.FlushTimeout)
	defer cancel()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "err", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed prices",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *PriceWriter) batchInsert(ctx context.Context, rows []priceRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO price_history (symbol, observed_at, price)
			VALUES ($1, $2, $3::numeric)
			ON CONFLICT (symbol, observed_at) DO NOTHING
		`, r.Symbol, r.ObservedAt, r.Price)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
