package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/config"
)

// Driver names registered by the two SQLite drivers.
const (
	DriverPureGo = "sqlite"  // modernc.org/sqlite
	DriverCgo    = "sqlite3" // github.com/mattn/go-sqlite3
)

// SQLiteStorage implements audit.Storage on SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config config.SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens (creating if needed) the database at cfg.Path and
// applies the schema. Zero-valued settings take their defaults.
func NewSQLiteStorage(cfg config.SQLiteConfig) (*SQLiteStorage, error) {
	applySQLiteDefaults(&cfg)

	logger := slog.Default().With("component", "audit.storage.sqlite")

	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	s := &SQLiteStorage{
		db:     db,
		config: cfg,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", cfg.Path,
		"driver", cfg.Driver,
		"wal_mode", !cfg.DisableWAL,
		"max_open_conns", cfg.MaxOpenConns,
	)

	return s, nil
}

func applySQLiteDefaults(cfg *config.SQLiteConfig) {
	if cfg.Driver == "" {
		cfg.Driver = config.DefaultAuditSQLiteDriver
	}
	if cfg.Path == "" {
		cfg.Path = config.DefaultAuditSQLitePath
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = config.DefaultAuditSQLiteMaxOpenConns
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = config.DefaultAuditSQLiteMaxIdleConns
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = config.DefaultAuditSQLiteBusyTimeout
	}
}

// buildDSN puts the pragmas into the connection string so that every
// pooled connection gets them. The two drivers spell them differently.
func buildDSN(cfg config.SQLiteConfig) (string, error) {
	journal := "WAL"
	if cfg.DisableWAL {
		journal = "DELETE"
	}
	busy := cfg.BusyTimeout.Milliseconds()

	params := url.Values{}
	switch cfg.Driver {
	case DriverPureGo:
		params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy))
		params.Add("_pragma", fmt.Sprintf("journal_mode(%s)", journal))
	case DriverCgo:
		params.Set("_busy_timeout", fmt.Sprint(busy))
		params.Set("_journal_mode", journal)
	default:
		return "", fmt.Errorf("unsupported driver %q", cfg.Driver)
	}

	return "file:" + cfg.Path + "?" + params.Encode(), nil
}

func (s *SQLiteStorage) initialize() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return audit.NewStorageError("sqlite", "create_schema", err)
	}
	s.logger.Debug("database schema created")

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion, time.Now().UnixNano()); err != nil {
		return audit.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return audit.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return audit.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// Store upserts record by trace ID.
func (s *SQLiteStorage) Store(ctx context.Context, record *audit.Record) error {
	if record == nil || record.TraceID == "" {
		return audit.NewStorageError("sqlite", "store", fmt.Errorf("record has no trace ID"))
	}

	reasons, err := json.Marshal(nonNilStrings(record.Reasons))
	if err != nil {
		return audit.NewStorageError("sqlite", "store", err)
	}
	document, err := json.Marshal(record.Document)
	if err != nil {
		return audit.NewStorageError("sqlite", "store", err)
	}

	_, err = s.db.ExecContext(ctx, upsertRecord,
		record.TraceID, record.ID, record.DataHash, record.ModelVersion,
		record.Allowed, record.Confidence, string(reasons),
		record.DecidedAt.UnixNano(), record.RecordedAt.UnixNano(),
		record.ContentHash, string(document),
	)
	if err != nil {
		return audit.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Get returns the record for traceID.
func (s *SQLiteStorage) Get(ctx context.Context, traceID string) (*audit.Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM audit_records WHERE trace_id = ?", traceID)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", audit.ErrNotFound, traceID)
	}
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "get", err)
	}
	return record, nil
}

// Query returns the matching records.
func (s *SQLiteStorage) Query(ctx context.Context, query *audit.Query) ([]*audit.Record, error) {
	sqlQuery, args := buildSelect(query)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	records := []*audit.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, audit.NewStorageError("sqlite", "scan", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}

	return records, nil
}

// QueryStream delivers the matching records on a channel as rows are read.
func (s *SQLiteStorage) QueryStream(ctx context.Context, query *audit.Query) (<-chan *audit.Record, <-chan error, error) {
	recordsCh := make(chan *audit.Record, streamBuffer)
	errCh := make(chan error, 1)

	sqlQuery, args := buildSelect(query)

	go func() {
		defer close(recordsCh)
		defer close(errCh)

		rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
		if err != nil {
			errCh <- audit.NewStorageError("sqlite", "query_stream", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			record, err := scanRecord(rows)
			if err != nil {
				errCh <- audit.NewStorageError("sqlite", "scan", err)
				return
			}

			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- record:
			}
		}

		if err := rows.Err(); err != nil {
			errCh <- audit.NewStorageError("sqlite", "query_stream", err)
		}
	}()

	return recordsCh, errCh, nil
}

// Count returns the number of matching records.
func (s *SQLiteStorage) Count(ctx context.Context, query *audit.Query) (int64, error) {
	where, args := buildWhereClause(query)

	sqlQuery := "SELECT COUNT(*) FROM audit_records"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, audit.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete removes the matching records and returns how many were removed.
func (s *SQLiteStorage) Delete(ctx context.Context, query *audit.Query) (int64, error) {
	where, args := buildWhereClause(query)

	sqlQuery := "DELETE FROM audit_records"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// Ping checks that the database answers.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return audit.NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return audit.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite storage closed")
	return nil
}

// sortColumns maps query sort fields to columns.
var sortColumns = map[string]string{
	audit.SortByDecidedAt:  "decided_at",
	audit.SortByRecordedAt: "recorded_at",
	audit.SortByConfidence: "confidence",
}

func buildSelect(query *audit.Query) (string, []any) {
	if query == nil {
		query = &audit.Query{}
	}
	where, args := buildWhereClause(query)

	var b strings.Builder
	b.WriteString("SELECT " + recordColumns + " FROM audit_records")
	if where != "" {
		b.WriteString(" WHERE " + where)
	}

	column, ok := sortColumns[query.SortBy]
	if !ok {
		column = "decided_at"
	}
	order := "DESC"
	if query.SortOrder == "asc" {
		order = "ASC"
	}
	fmt.Fprintf(&b, " ORDER BY %s %s, trace_id ASC", column, order)

	// SQLite needs a LIMIT before OFFSET; -1 means unbounded.
	if query.Limit > 0 || query.Offset > 0 {
		limit := query.Limit
		if limit <= 0 {
			limit = -1
		}
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", limit, max(query.Offset, 0))
	}

	return b.String(), args
}

// buildWhereClause returns the WHERE conditions (without the keyword) and
// their arguments.
func buildWhereClause(query *audit.Query) (string, []any) {
	if query == nil {
		return "", nil
	}

	var conditions []string
	var args []any

	if query.StartTime != nil {
		conditions = append(conditions, "decided_at >= ?")
		args = append(args, query.StartTime.UnixNano())
	}
	if query.EndTime != nil {
		conditions = append(conditions, "decided_at <= ?")
		args = append(args, query.EndTime.UnixNano())
	}
	if query.RecordedBefore != nil {
		conditions = append(conditions, "recorded_at < ?")
		args = append(args, query.RecordedBefore.UnixNano())
	}

	if len(query.TraceIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(query.TraceIDs)), ", ")
		conditions = append(conditions, "trace_id IN ("+placeholders+")")
		for _, id := range query.TraceIDs {
			args = append(args, id)
		}
	}
	if query.ModelVersion != "" {
		conditions = append(conditions, "model_version = ?")
		args = append(args, query.ModelVersion)
	}
	if query.DataHash != "" {
		conditions = append(conditions, "data_hash = ?")
		args = append(args, query.DataHash)
	}
	if query.Allowed != nil {
		conditions = append(conditions, "allowed = ?")
		args = append(args, *query.Allowed)
	}

	if query.MinConfidence != nil {
		conditions = append(conditions, "confidence >= ?")
		args = append(args, *query.MinConfidence)
	}
	if query.MaxConfidence != nil {
		conditions = append(conditions, "confidence <= ?")
		args = append(args, *query.MaxConfidence)
	}

	return strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*audit.Record, error) {
	var record audit.Record
	var reasons, document string
	var decidedAt, recordedAt int64

	err := row.Scan(
		&record.TraceID, &record.ID, &record.DataHash, &record.ModelVersion,
		&record.Allowed, &record.Confidence, &reasons,
		&decidedAt, &recordedAt,
		&record.ContentHash, &document,
	)
	if err != nil {
		return nil, err
	}

	record.DecidedAt = time.Unix(0, decidedAt).UTC()
	record.RecordedAt = time.Unix(0, recordedAt).UTC()

	if err := json.Unmarshal([]byte(reasons), &record.Reasons); err != nil {
		return nil, fmt.Errorf("failed to decode reasons: %w", err)
	}
	if document != "" && document != "null" {
		record.Document = &audit.Document{}
		if err := json.Unmarshal([]byte(document), record.Document); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
	}

	return &record, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
