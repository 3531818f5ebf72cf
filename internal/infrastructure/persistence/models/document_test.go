package models

import (
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/payment"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentModel_TableNames(t *testing.T) {
	assert.Equal(t, "documents", DocumentModel{}.TableName())
	assert.Equal(t, "document_lines", DocumentLineModel{}.TableName())
	assert.Equal(t, "document_additional_costs", AdditionalCostModel{}.TableName())
	assert.Equal(t, "payments", PaymentModel{}.TableName())
	assert.Equal(t, "payment_allocations", PaymentAllocationModel{}.TableName())
	assert.Equal(t, "outbox_events", OutboxEntryModel{}.TableName())
}

func TestDocumentModel_RoundTrip(t *testing.T) {
	doc, err := ledger.NewDocument(uuid.New(), uuid.New(), uuid.New(),
		ledger.DocumentTypeInvoice, "INV-001", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), valueobject.EUR)
	require.NoError(t, err)
	_, err = doc.AddLine(ledger.LineInput{
		Description: "Consulting",
		Quantity:    decimal.NewFromInt(10),
		UnitPrice:   decimal.NewFromInt(100),
		TaxRate:     decimal.NewFromInt(19),
	})
	require.NoError(t, err)
	_, err = doc.AddAdditionalCost(ledger.CostTypeShipping, decimal.RequireFromString("12.50"), "Courier")
	require.NoError(t, err)
	require.NoError(t, doc.Recalculate())

	model := DocumentModelFromDomain(doc)
	require.Len(t, model.Lines, 1)
	require.Len(t, model.AdditionalCosts, 1)
	assert.Equal(t, doc.ID, model.Lines[0].DocumentID)
	assert.Equal(t, doc.TenantID, model.TenantID)
	assert.Equal(t, doc.CompanyID, model.CompanyID)

	back := model.ToDomain()
	assert.Equal(t, doc.ID, back.ID)
	assert.Equal(t, doc.Version, back.Version)
	assert.Equal(t, doc.DocumentNumber, back.DocumentNumber)
	assert.True(t, back.Total.Equal(decimal.NewFromInt(1190)))
	assert.True(t, back.TaxAmount.Equal(decimal.NewFromInt(190)))
	assert.Len(t, back.Lines, 1)
	assert.True(t, back.Lines[0].LineTotal.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, ledger.CostTypeShipping, back.AdditionalCosts[0].CostType)
	assert.Empty(t, back.GetDomainEvents())
}

func TestDocumentModel_ToDomain_RoundsStoredNoise(t *testing.T) {
	model := &DocumentModel{
		Total:      decimal.NewFromFloat(100.05),
		BalanceDue: decimal.RequireFromString("100.050000000001"),
	}
	d := model.ToDomain()
	assert.Equal(t, "100.05", d.Total.StringFixed(2))
	assert.True(t, d.BalanceDue.Equal(decimal.RequireFromString("100.05")))
}

func TestPaymentModel_RoundTrip(t *testing.T) {
	p, err := payment.NewPayment(uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(),
		valueobject.MustMoney("1500.00", valueobject.EUR), time.Now(), "BANK-42")
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, p.MarkApplied(now))

	back := PaymentModelFromDomain(p).ToDomain()
	assert.Equal(t, p.ID, back.ID)
	assert.Equal(t, p.TenantID, back.TenantID)
	assert.Equal(t, p.CompanyID, back.CompanyID)
	assert.True(t, back.Amount.Equal(p.Amount))
	assert.Equal(t, payment.PaymentTypeDocumentPayment, back.PaymentType)
	assert.True(t, back.IsApplied())
}

func TestPaymentAllocationModel_RoundTrip(t *testing.T) {
	p, err := payment.NewPayment(uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(),
		valueobject.MustMoney("100.00", valueobject.EUR), time.Now(), "")
	require.NoError(t, err)
	alloc, err := payment.NewPaymentAllocation(p, uuid.New(),
		decimal.RequireFromString("100.00"), decimal.RequireFromString("0.05"), payment.WriteoffUnderpayment)
	require.NoError(t, err)

	back := PaymentAllocationModelFromDomain(alloc).ToDomain()
	assert.Equal(t, alloc.ID, back.ID)
	assert.Equal(t, payment.WriteoffUnderpayment, back.WriteoffKind)
	assert.True(t, back.SettledAmount().Equal(decimal.RequireFromString("100.05")))
}

func TestAll_ListsEveryLedgerTable(t *testing.T) {
	assert.Len(t, All(), 8)
}
