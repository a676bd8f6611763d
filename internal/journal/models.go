package journal

import "time"

// TransactionStatus is the terminal/non-terminal state of a Transaction row.
type TransactionStatus string

const (
	TransactionPending        TransactionStatus = "pending"
	TransactionCompleted      TransactionStatus = "completed"
	TransactionRolledBack     TransactionStatus = "rolled_back"
	TransactionRollbackFailed TransactionStatus = "rollback_failed"
	TransactionFailed         TransactionStatus = "failed"
)

// IsTerminal reports whether the status represents a finished transaction.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionCompleted, TransactionRolledBack, TransactionRollbackFailed, TransactionFailed:
		return true
	default:
		return false
	}
}

// StepStatus is the state of a Step row.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepRolledBack StepStatus = "rolled_back"
)

// Transaction is the persistent record described in spec.md §3.
type Transaction struct {
	ID           int64
	PackageName  string
	MetadataHash string
	Metadata     string
	Status       TransactionStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Step is the persistent child record keyed by (TransactionID, Order).
type Step struct {
	ID            int64
	TransactionID int64
	Order         int
	StepType      string
	StepData      string
	Status        StepStatus
	CreatedAt     time.Time
}

// Snapshot is the persistent child record keyed by (TransactionID, Order).
type Snapshot struct {
	ID            int64
	TransactionID int64
	Order         int
	SnapshotData  string
	CreatedAt     time.Time
}
