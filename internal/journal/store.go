package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"pkginstall/internal/config"
)

// Store is the durable transaction journal backed by SQLite. It is the
// ground truth used for crash recovery per spec.md §4.5.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database and applies the
// schema migration if needed.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.JournalPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// OpenInMemory opens an ephemeral journal for tests.
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragma: %w", err)
	}
	store := &Store{db: db, path: ":memory:"}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// timestampLayout always writes nine fractional digits, so the text order of
// stored timestamps (used by ORDER BY and the cleanup cutoff) matches their
// time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func nowString() string {
	return time.Now().UTC().Format(timestampLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// CreateTransaction inserts a new transaction row with status pending and
// returns its assigned id.
func (s *Store) CreateTransaction(ctx context.Context, packageName, metadataHash, metadata string) (int64, error) {
	now := nowString()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (package_name, metadata_hash, metadata, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		packageName, metadataHash, metadata, string(TransactionPending), now, now,
	)
	if err != nil {
		return 0, &JournalError{Op: "create_transaction", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &JournalError{Op: "create_transaction", Err: err}
	}
	return id, nil
}

// RecordStep inserts a step row. The (transaction_id, step_order) unique
// constraint makes a duplicate insert fail rather than silently overwrite.
func (s *Store) RecordStep(ctx context.Context, txID int64, order int, stepType, stepData string, status StepStatus) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO steps (transaction_id, step_order, step_type, step_data, status, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		txID, order, stepType, stepData, string(status), nowString(),
	)
	if err != nil {
		return &JournalError{Op: "record_step", Err: err}
	}
	return nil
}

// UpdateStepStatus transitions a step's status, enforcing the permitted
// transition set from spec.md §4.2.
func (s *Store) UpdateStepStatus(ctx context.Context, txID int64, order int, status StepStatus) error {
	var current string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM steps WHERE transaction_id = ? AND step_order = ?`,
		txID, order,
	).Scan(&current)
	if err != nil {
		return &JournalError{Op: "update_step_status", Err: err}
	}
	if err := checkStepTransition(StepStatus(current), status); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE steps SET status = ? WHERE transaction_id = ? AND step_order = ?`,
		string(status), txID, order,
	)
	if err != nil {
		return &JournalError{Op: "update_step_status", Err: err}
	}
	return nil
}

// SaveSnapshot writes the opaque snapshot blob for (txID, order).
func (s *Store) SaveSnapshot(ctx context.Context, txID int64, order int, snapshotData string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (transaction_id, step_order, snapshot_data, created_at)
         VALUES (?, ?, ?, ?)`,
		txID, order, snapshotData, nowString(),
	)
	if err != nil {
		return &JournalError{Op: "save_snapshot", Err: err}
	}
	return nil
}

// UpdateTransactionStatus transitions a transaction's status, enforcing the
// permitted transition set (terminal transitions only from pending).
func (s *Store) UpdateTransactionStatus(ctx context.Context, txID int64, status TransactionStatus) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM transactions WHERE id = ?`, txID).Scan(&current)
	if err != nil {
		return &JournalError{Op: "update_transaction_status", Err: err}
	}
	if err := checkTransactionTransition(TransactionStatus(current), status); err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE transactions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), nowString(), txID,
	)
	if err != nil {
		return &JournalError{Op: "update_transaction_status", Err: err}
	}
	return nil
}

func scanTransaction(scanner interface{ Scan(dest ...any) error }) (*Transaction, error) {
	var tx Transaction
	var status, createdAt, updatedAt string
	if err := scanner.Scan(&tx.ID, &tx.PackageName, &tx.MetadataHash, &tx.Metadata, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	tx.Status = TransactionStatus(status)
	var err error
	if tx.CreatedAt, err = parseTimeString(createdAt); err != nil {
		return nil, err
	}
	if tx.UpdatedAt, err = parseTimeString(updatedAt); err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetTransaction returns a single transaction by id.
func (s *Store) GetTransaction(ctx context.Context, id int64) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, package_name, metadata_hash, metadata, status, created_at, updated_at
         FROM transactions WHERE id = ?`, id,
	)
	tx, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &JournalError{Op: "get_transaction", Err: fmt.Errorf("transaction %d not found", id)}
		}
		return nil, &JournalError{Op: "get_transaction", Err: err}
	}
	return tx, nil
}

// GetTransactionSteps returns a transaction's step records ordered ascending.
func (s *Store) GetTransactionSteps(ctx context.Context, id int64) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, transaction_id, step_order, step_type, step_data, status, created_at
         FROM steps WHERE transaction_id = ? ORDER BY step_order ASC`, id,
	)
	if err != nil {
		return nil, &JournalError{Op: "get_transaction_steps", Err: err}
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var st Step
		var status, createdAt string
		if err := rows.Scan(&st.ID, &st.TransactionID, &st.Order, &st.StepType, &st.StepData, &status, &createdAt); err != nil {
			return nil, &JournalError{Op: "get_transaction_steps", Err: err}
		}
		st.Status = StepStatus(status)
		if st.CreatedAt, err = parseTimeString(createdAt); err != nil {
			return nil, &JournalError{Op: "get_transaction_steps", Err: err}
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, &JournalError{Op: "get_transaction_steps", Err: err}
	}
	return steps, nil
}

// GetTransactionSnapshots returns a transaction's snapshot records ordered ascending.
func (s *Store) GetTransactionSnapshots(ctx context.Context, id int64) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, transaction_id, step_order, snapshot_data, created_at
         FROM snapshots WHERE transaction_id = ? ORDER BY step_order ASC`, id,
	)
	if err != nil {
		return nil, &JournalError{Op: "get_transaction_snapshots", Err: err}
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var snap Snapshot
		var createdAt string
		if err := rows.Scan(&snap.ID, &snap.TransactionID, &snap.Order, &snap.SnapshotData, &createdAt); err != nil {
			return nil, &JournalError{Op: "get_transaction_snapshots", Err: err}
		}
		if snap.CreatedAt, err = parseTimeString(createdAt); err != nil {
			return nil, &JournalError{Op: "get_transaction_snapshots", Err: err}
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, &JournalError{Op: "get_transaction_snapshots", Err: err}
	}
	return snaps, nil
}

// ListTransactions returns up to limit transactions ordered descending by
// created_at. limit <= 0 means unbounded.
func (s *Store) ListTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	query := `SELECT id, package_name, metadata_hash, metadata, status, created_at, updated_at
              FROM transactions ORDER BY created_at DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		query += ` LIMIT ?`
		rows, err = s.db.QueryContext(ctx, query, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, &JournalError{Op: "list_transactions", Err: err}
	}
	defer rows.Close()

	var result []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, &JournalError{Op: "list_transactions", Err: err}
		}
		result = append(result, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, &JournalError{Op: "list_transactions", Err: err}
	}
	return result, nil
}

// CleanupOldTransactions purges terminal transactions older than the given
// age threshold, cascading to their step and snapshot children via the
// schema's ON DELETE CASCADE foreign keys. Pending transactions are never
// purged regardless of age.
func (s *Store) CleanupOldTransactions(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(timestampLayout)
	terminalStatuses := []string{
		string(TransactionCompleted),
		string(TransactionRolledBack),
		string(TransactionRollbackFailed),
		string(TransactionFailed),
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE created_at < ? AND status IN (?, ?, ?, ?)`,
		cutoff, terminalStatuses[0], terminalStatuses[1], terminalStatuses[2], terminalStatuses[3],
	)
	if err != nil {
		return 0, &JournalError{Op: "cleanup_old_transactions", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, &JournalError{Op: "cleanup_old_transactions", Err: err}
	}
	return affected, nil
}
