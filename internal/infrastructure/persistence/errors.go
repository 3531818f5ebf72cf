package persistence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes that mean another transaction won
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// Unique indexes with a domain meaning
const (
	chainIndex        = "idx_document_chain"
	documentNumberIdx = "idx_document_tenant_number"
)

var (
	// ErrChainConflict is returned when two postings race for one chain position
	ErrChainConflict = shared.NewConcurrencyError("CHAIN_CONFLICT", "Another posting took this chain position")
	// ErrDuplicateDocumentNumber is returned on a tenant-wide document number clash
	ErrDuplicateDocumentNumber = shared.NewValidationError("DUPLICATE_DOCUMENT_NUMBER", "Document number already exists", "document_number")
)

// MapError translates driver errors into domain errors. Errors that carry
// no domain meaning are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable:
			return fmt.Errorf("%w: %s", shared.ErrLockTimeout, pgErr.Message)
		case pgDeadlockDetected, pgSerializationFailure:
			return fmt.Errorf("%w: %s", shared.ErrConcurrencyConflict, pgErr.Message)
		case pgUniqueViolation:
			switch pgErr.ConstraintName {
			case chainIndex:
				return fmt.Errorf("%w: %s", ErrChainConflict, pgErr.Message)
			case documentNumberIdx:
				return fmt.Errorf("%w: %s", ErrDuplicateDocumentNumber, pgErr.Message)
			}
		}
		return err
	}

	// SQLite reports constraints and contention only through the message
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, "chain_sequence"):
		return fmt.Errorf("%w: %s", ErrChainConflict, msg)
	case strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, "document_number"):
		return fmt.Errorf("%w: %s", ErrDuplicateDocumentNumber, msg)
	case strings.Contains(msg, "database is locked"):
		return fmt.Errorf("%w: %s", shared.ErrLockTimeout, msg)
	}
	return err
}
