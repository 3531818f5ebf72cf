package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/config"
	"gorm.io/gorm"
)

type txKey struct{}

// TxManager implements shared.TransactionManager on GORM. The transaction
// travels in the context; repositories pick it up through Conn.
type TxManager struct {
	db          *gorm.DB
	driver      string
	lockTimeout time.Duration
}

// NewTxManager creates a TxManager. A positive lockTimeout bounds every row
// and advisory lock wait inside the transaction (PostgreSQL only).
func NewTxManager(db *gorm.DB, driver string, lockTimeout time.Duration) *TxManager {
	return &TxManager{db: db, driver: driver, lockTimeout: lockTimeout}
}

// WithinTransaction runs fn in a transaction. A nested call joins the
// transaction already in ctx.
func (m *TxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTransaction(ctx) {
		return fn(ctx)
	}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if m.driver == config.DriverPostgres && m.lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", m.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to set lock timeout: %w", err)
			}
		}
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
	return MapError(err)
}

// InTransaction reports whether ctx carries a transaction
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*gorm.DB)
	return ok
}

// Conn returns the transaction carried by ctx, or db when there is none
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

var _ shared.TransactionManager = (*TxManager)(nil)
