package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/domain/shared/valueobject"
)

// Canonical fiscal field names. The order of fiscalFieldOrder is part of the
// verification contract: changing it invalidates every stored hash.
const (
	FiscalFieldDocumentNumber = "document_number"
	FiscalFieldPostedAt       = "posted_at"
	FiscalFieldTotal          = "total"
	FiscalFieldCurrency       = "currency"

	fiscalDelimiter  = "|"
	fiscalDateLayout = "2006-01-02"
)

var fiscalFieldOrder = []string{
	FiscalFieldDocumentNumber,
	FiscalFieldPostedAt,
	FiscalFieldTotal,
	FiscalFieldCurrency,
}

// FiscalHashService canonicalises fiscal documents and computes chained hashes.
// It holds no state; every method is a pure function of its arguments.
type FiscalHashService struct{}

// NewFiscalHashService creates a new FiscalHashService
func NewFiscalHashService() FiscalHashService {
	return FiscalHashService{}
}

// SerializeForHashing joins the canonical fields in their fixed order.
// A missing or unknown field is an error, never silently skipped.
func (FiscalHashService) SerializeForHashing(fields map[string]string) (string, error) {
	for name := range fields {
		if !isFiscalField(name) {
			return "", shared.NewValidationError("UNKNOWN_FISCAL_FIELD",
				fmt.Sprintf("Field %q is not part of the fiscal hash", name), name)
		}
	}
	parts := make([]string, 0, len(fiscalFieldOrder))
	for _, name := range fiscalFieldOrder {
		v, ok := fields[name]
		if !ok {
			return "", shared.NewValidationError("MISSING_FISCAL_FIELD",
				fmt.Sprintf("Fiscal field %q is required", name), name)
		}
		if strings.Contains(v, fiscalDelimiter) {
			return "", shared.NewValidationError("INVALID_FISCAL_FIELD",
				fmt.Sprintf("Fiscal field %q must not contain %q", name, fiscalDelimiter), name)
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, fiscalDelimiter), nil
}

// CalculateHash returns the lower-case hex SHA-256 of previousHash + serialized.
// A nil previousHash marks the head of a chain.
func (FiscalHashService) CalculateHash(serialized string, previousHash *string) string {
	prev := ""
	if previousHash != nil {
		prev = *previousHash
	}
	sum := sha256.Sum256([]byte(prev + serialized))
	return hex.EncodeToString(sum[:])
}

// Hash serialises d as posted at postedAt and chains it onto previousHash
func (s FiscalHashService) Hash(d *Document, postedAt time.Time, previousHash *string) (string, error) {
	serialized, err := s.SerializeForHashing(FiscalFieldsOf(d, postedAt))
	if err != nil {
		return "", err
	}
	return s.CalculateHash(serialized, previousHash), nil
}

// FiscalFieldsOf builds the canonical field map of a document
func FiscalFieldsOf(d *Document, postedAt time.Time) map[string]string {
	return map[string]string{
		FiscalFieldDocumentNumber: d.DocumentNumber,
		FiscalFieldPostedAt:       postedAt.UTC().Format(fiscalDateLayout),
		FiscalFieldTotal:          d.Total.StringFixed(valueobject.CentPlaces),
		FiscalFieldCurrency:       d.Currency,
	}
}

func isFiscalField(name string) bool {
	for _, f := range fiscalFieldOrder {
		if f == name {
			return true
		}
	}
	return false
}
