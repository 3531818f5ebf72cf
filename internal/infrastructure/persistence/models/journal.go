package models

import (
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// JournalRequestStatus tracks the accounting side's consumption of a request
type JournalRequestStatus string

const (
	JournalRequestPending  JournalRequestStatus = "PENDING"
	JournalRequestConsumed JournalRequestStatus = "CONSUMED"
)

// JournalRequestModel is the hand-off record read by the accounting collaborator
type JournalRequestModel struct {
	ID         uuid.UUID                `gorm:"type:uuid;primary_key"`
	TenantID   uuid.UUID                `gorm:"type:uuid;not null;index:idx_journal_tenant_source,priority:1"`
	CompanyID  uuid.UUID                `gorm:"type:uuid;not null"`
	SourceType shared.JournalSourceType `gorm:"type:varchar(30);not null;index:idx_journal_tenant_source,priority:2"`
	SourceID   uuid.UUID                `gorm:"type:uuid;not null;index:idx_journal_tenant_source,priority:3"`
	Lines      []byte                   `gorm:"type:jsonb;not null"`
	Status     JournalRequestStatus     `gorm:"type:varchar(20);not null;index"`
	CreatedAt  time.Time                `gorm:"not null"`
}

// TableName returns the table name for GORM
func (JournalRequestModel) TableName() string {
	return "journal_requests"
}
