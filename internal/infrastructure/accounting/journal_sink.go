// Package accounting hands allocation outcomes to the accounting side as
// journal requests. The ledger never books accounts itself; it records what
// has to be booked, in the same transaction as the allocation.
package accounting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/erp/ledger/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormJournalSink stores journal requests in the journal_requests table
type GormJournalSink struct {
	db *gorm.DB
}

// NewGormJournalSink creates a GormJournalSink
func NewGormJournalSink(db *gorm.DB) *GormJournalSink {
	return &GormJournalSink{db: db}
}

// Record validates req and stores it as PENDING
func (s *GormJournalSink) Record(ctx context.Context, req shared.JournalRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	lines, err := json.Marshal(req.Lines)
	if err != nil {
		return fmt.Errorf("failed to encode journal lines: %w", err)
	}

	row := &models.JournalRequestModel{
		ID:         uuid.New(),
		TenantID:   req.TenantID,
		CompanyID:  req.CompanyID,
		SourceType: req.SourceType,
		SourceID:   req.SourceID,
		Lines:      lines,
		Status:     models.JournalRequestPending,
		CreatedAt:  time.Now(),
	}
	if err := persistence.Conn(ctx, s.db).Create(row).Error; err != nil {
		return fmt.Errorf("failed to record journal request: %w", err)
	}
	return nil
}

// FindBySource returns the requests recorded for one source, oldest first
func (s *GormJournalSink) FindBySource(ctx context.Context, tenantID uuid.UUID, sourceType shared.JournalSourceType, sourceID uuid.UUID) ([]shared.JournalRequest, error) {
	var rows []models.JournalRequestModel
	err := persistence.Conn(ctx, s.db).
		Scopes(tenant.Scope(tenantID)).
		Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load journal requests: %w", err)
	}

	out := make([]shared.JournalRequest, 0, len(rows))
	for _, row := range rows {
		var lines []shared.JournalLine
		if err := json.Unmarshal(row.Lines, &lines); err != nil {
			return nil, fmt.Errorf("journal request %s has malformed lines: %w", row.ID, err)
		}
		out = append(out, shared.JournalRequest{
			TenantID:   row.TenantID,
			CompanyID:  row.CompanyID,
			SourceType: row.SourceType,
			SourceID:   row.SourceID,
			Lines:      lines,
		})
	}
	return out, nil
}

// validateRequest checks the request is balanced and single-currency
func validateRequest(req shared.JournalRequest) error {
	if req.TenantID == uuid.Nil || req.SourceID == uuid.Nil {
		return shared.NewValidationError("INVALID_JOURNAL_REQUEST", "journal request needs a tenant and a source", "source_id")
	}
	if len(req.Lines) < 2 {
		return shared.NewValidationError("INVALID_JOURNAL_REQUEST", "journal request needs at least two lines", "lines")
	}

	debit, credit := decimal.Zero, decimal.Zero
	currency := req.Lines[0].Currency
	for _, l := range req.Lines {
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return shared.NewValidationError("INVALID_JOURNAL_REQUEST", "journal amounts cannot be negative", "lines")
		}
		if l.Currency != currency {
			return shared.NewValidationError("INVALID_JOURNAL_REQUEST", "journal lines must share one currency", "lines")
		}
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	if !debit.Equal(credit) {
		return shared.NewValidationError("UNBALANCED_JOURNAL_REQUEST",
			fmt.Sprintf("journal request debits %s and credits %s differ", debit, credit), "lines")
	}
	return nil
}

var _ shared.JournalSink = (*GormJournalSink)(nil)
