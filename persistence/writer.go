// Package persistence batches accepted readings and writes them to the
// ERP's SQL Server table. Enqueue never blocks the Poll Scheduler; a
// single background worker owns the database connection and drains the
// queue in size- or time-triggered batches.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"silomonitor/config"
)

// Record is one accepted reading queued for insertion.
type Record struct {
	ExternalCode string
	Value        int
	Timestamp    time.Time
}

// Writer owns the database connection and the bounded record queue.
type Writer struct {
	cfg      config.DatabaseConfig
	logger   *slog.Logger
	location *time.Location

	queue chan Record
	db    *sql.DB

	// writeFn performs one batch write; overridable in tests so the batch
	// trigger logic can be exercised without a real database.
	writeFn func(ctx context.Context, batch []Record)
}

const defaultQueueCapacity = 1000

// NewWriter builds a Writer. The database connection is opened lazily by
// VerifyTable, the first batch write, or QueryRecent, not here, so
// construction cannot fail.
func NewWriter(cfg config.DatabaseConfig, location *time.Location, logger *slog.Logger) *Writer {
	w := &Writer{
		cfg:      cfg,
		logger:   logger,
		location: location,
		queue:    make(chan Record, defaultQueueCapacity),
	}
	w.writeFn = w.writeBatch
	return w
}

// Enqueue offers a record to the writer without blocking. When the queue
// is full the record is dropped and exactly one warning is logged.
func (w *Writer) Enqueue(rec Record) {
	select {
	case w.queue <- rec:
	default:
		w.logger.Warn("persistence queue full, record lost", "external_code", rec.ExternalCode)
	}
}

// VerifyTable opens the connection and checks that the configured table
// exists. It never issues DDL; an absent table is a fatal startup error.
func (w *Writer) VerifyTable(ctx context.Context) error {
	if !w.cfg.Enabled {
		return nil
	}
	if err := w.connect(); err != nil {
		return err
	}

	var exists int
	query := `SELECT 1 FROM sysobjects WHERE name = @p1 AND xtype = 'U'`
	row := w.db.QueryRowContext(ctx, query, w.cfg.TableName)
	if err := row.Scan(&exists); err != nil {
		return fmt.Errorf("table %s not found: %w", w.cfg.TableName, err)
	}
	return nil
}

func (w *Writer) connect() error {
	if w.db != nil {
		return nil
	}
	connString := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		w.cfg.Host, w.cfg.Port, w.cfg.Database, dbEnv(w.cfg.UsernameEnv), dbEnv(w.cfg.PasswordEnv))
	if w.cfg.Instance != "" {
		connString += fmt.Sprintf(";instance=%s", w.cfg.Instance)
	}

	db, err := sql.Open(w.cfg.Driver, connString)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}
	w.db = db
	return nil
}

// Run drains the queue until ctx is cancelled, accumulating records into
// batches and flushing on size or interval boundaries. On cancellation it
// keeps draining for up to 5s before returning.
func (w *Writer) Run(ctx context.Context) {
	if !w.cfg.Enabled {
		<-ctx.Done()
		return
	}

	batch := make([]Record, 0, w.cfg.BatchSize)
	timer := time.NewTimer(w.cfg.WriteInterval())
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.writeFn(context.Background(), batch)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			w.drain(batch)
			return
		case rec := <-w.queue:
			batch = append(batch, rec)
			if len(batch) >= w.cfg.BatchSize {
				flush()
				timer.Reset(w.cfg.WriteInterval())
			}
		case <-timer.C:
			flush()
			timer.Reset(w.cfg.WriteInterval())
		}
	}
}

// drain flushes any pending batch plus whatever remains in the queue for
// up to 5s, matching the shutdown contract in the concurrency model.
func (w *Writer) drain(batch []Record) {
	deadline := time.After(5 * time.Second)
	for {
		select {
		case rec := <-w.queue:
			batch = append(batch, rec)
		case <-deadline:
			w.writeFn(context.Background(), batch)
			return
		default:
			if len(w.queue) == 0 {
				w.writeFn(context.Background(), batch)
				return
			}
		}
	}
}

// writeBatch inserts every record inside a single transaction. On any
// failure it rolls back, logs, and drops the batch so the writer can
// keep making progress with the next one.
func (w *Writer) writeBatch(ctx context.Context, batch []Record) {
	if len(batch) == 0 {
		return
	}
	if err := w.connect(); err != nil {
		w.logger.Error("persistence connect failed, batch dropped", "error", err, "records", len(batch))
		return
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		w.logger.Error("persistence begin transaction failed, batch dropped", "error", err)
		w.db = nil
		return
	}

	query := fmt.Sprintf(`INSERT INTO %s (external_code, quantity, updated_at) VALUES (@p1, @p2, @p3)`, w.cfg.TableName)
	for _, rec := range batch {
		if _, err := tx.ExecContext(ctx, query, rec.ExternalCode, rec.Value, rec.Timestamp.In(w.location)); err != nil {
			w.logger.Error("persistence insert failed, rolling back batch", "error", err)
			tx.Rollback()
			return
		}
	}

	if err := tx.Commit(); err != nil {
		w.logger.Error("persistence commit failed, batch dropped", "error", err)
		return
	}

	w.logger.Debug("persistence batch committed", "records", len(batch))
}

// QueryRecent returns the most recent limit records for externalCode from
// the ERP table within the last hours hours, newest first. Returns an
// error if persistence is disabled.
func (w *Writer) QueryRecent(ctx context.Context, externalCode string, hours, limit int) ([]Record, error) {
	if !w.cfg.Enabled {
		return nil, fmt.Errorf("persistence is disabled")
	}
	if err := w.connect(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT TOP (@p1) external_code, quantity, updated_at FROM %s WHERE external_code = @p2 AND updated_at >= DATEADD(HOUR, -@p3, GETDATE()) ORDER BY updated_at DESC`, w.cfg.TableName)
	rows, err := w.db.QueryContext(ctx, query, limit, externalCode, hours)
	if err != nil {
		return nil, fmt.Errorf("query recent records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ExternalCode, &rec.Value, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func dbEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
