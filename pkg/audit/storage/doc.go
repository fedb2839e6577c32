// Package storage provides backends for audit records.
//
// # Backends
//
//   - SQLiteStorage: durable storage in a single file. Either the pure Go
//     driver (modernc.org/sqlite, driver name "sqlite") or the cgo driver
//     (github.com/mattn/go-sqlite3, driver name "sqlite3") can be selected.
//   - MemoryStorage: process-local storage for tests and one-shot runs.
//
// Both key records by trace ID: storing a record whose trace ID is already
// present replaces it.
//
// # SQLite
//
// The busy timeout and journal mode are passed in the DSN so every pooled
// connection is configured the same way. WAL is on unless DisableWAL is set.
// Timestamps are stored as Unix nanoseconds and the document as JSON text.
//
//	store, err := storage.NewSQLiteStorage(config.SQLiteConfig{
//	    Path:   "data/audit.db",
//	    Driver: storage.DriverPureGo,
//	})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	records, err := store.Query(ctx, &audit.Query{ModelVersion: "v1.0", Limit: 50})
//
// # Streaming
//
// QueryStream returns a record channel and an error channel. Drain the
// record channel, then read the error channel once:
//
//	recordsCh, errCh, err := store.QueryStream(ctx, query)
//	if err != nil {
//	    return err
//	}
//	for r := range recordsCh {
//	    process(r)
//	}
//	if err := <-errCh; err != nil {
//	    return err
//	}
package storage
