package shared

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalSourceType tags what produced a journal request
type JournalSourceType string

const (
	JournalSourceAdvance           JournalSourceType = "advance"
	JournalSourceToleranceWriteoff JournalSourceType = "tolerance_writeoff"
)

// JournalRole names the ledger position a line lands on. Mapping roles to
// accounts belongs to the accounting side.
type JournalRole string

const (
	JournalRoleCash             JournalRole = "cash"
	JournalRoleReceivable       JournalRole = "receivable"
	JournalRoleCustomerAdvance  JournalRole = "customer_advance"
	JournalRoleToleranceExpense JournalRole = "tolerance_expense"
	JournalRoleToleranceIncome  JournalRole = "tolerance_income"
)

// JournalLine is one side of a requested posting
type JournalLine struct {
	Role       JournalRole     `json:"role"`
	Debit      decimal.Decimal `json:"debit"`
	Credit     decimal.Decimal `json:"credit"`
	Currency   string          `json:"currency"`
	PartnerID  uuid.UUID       `json:"partner_id"`
	DocumentID *uuid.UUID      `json:"document_id,omitempty"`
}

// JournalRequest asks the accounting collaborator to book an entry
type JournalRequest struct {
	TenantID   uuid.UUID
	CompanyID  uuid.UUID
	SourceType JournalSourceType
	SourceID   uuid.UUID
	Lines      []JournalLine
}

// JournalSink accepts journal requests inside the caller's transaction
type JournalSink interface {
	Record(ctx context.Context, req JournalRequest) error
}
