package ledger

import (
	"context"
	"fmt"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ChainVerifier recomputes a hash chain from the stored documents and
// reports every place where it does not hold
type ChainVerifier struct {
	docs   ledger.DocumentRepository
	hasher ledger.FiscalHashService
}

// NewChainVerifier creates a new ChainVerifier
func NewChainVerifier(docs ledger.DocumentRepository) *ChainVerifier {
	return &ChainVerifier{docs: docs, hasher: ledger.NewFiscalHashService()}
}

// Verify walks the chain of scope in sequence order. It checks that
// sequences run 1..N without gaps, that each previous_hash names the
// preceding hash and that every stored hash matches its canonical fields.
func (v *ChainVerifier) Verify(ctx context.Context, scope ledger.ChainScope) (*ChainReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "chain", "verify",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, scope.TenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrCompanyID, scope.CompanyID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrDocumentType, scope.Type.String()),
	)
	defer span.End()

	docs, err := v.docs.ListChain(ctx, scope)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return v.check(ctx, scope, docs), nil
}

// check verifies docs, already ordered by sequence
func (v *ChainVerifier) check(ctx context.Context, scope ledger.ChainScope, docs []*ledger.Document) *ChainReport {
	report := &ChainReport{Scope: scope, Length: len(docs)}
	var prev *string
	for i, d := range docs {
		want := int64(i + 1)
		fail := func(reason string) {
			report.Breaks = append(report.Breaks, ChainBreak{Sequence: want, DocumentID: d.ID, Reason: reason})
		}

		switch {
		case d.ChainSequence == nil || d.FiscalHash == nil || d.PostedAt == nil:
			fail("document is missing its chain fields")
			prev = d.FiscalHash
			continue
		case *d.ChainSequence != want:
			fail(fmt.Sprintf("expected sequence %d, found %d", want, *d.ChainSequence))
		}

		if !samePointer(d.PreviousHash, prev) {
			fail("previous_hash does not match the preceding document")
		}
		computed, err := v.hasher.Hash(d, *d.PostedAt, d.PreviousHash)
		if err != nil {
			fail(err.Error())
		} else if computed != *d.FiscalHash {
			fail("fiscal_hash does not match the document's canonical fields")
		}
		prev = d.FiscalHash
	}

	report.HeadHash = prev
	report.Valid = len(report.Breaks) == 0
	if !report.Valid {
		logger.L(ctx).Warn("Hash chain verification failed",
			zap.String("scope", scope.LockKey()),
			zap.Int("length", report.Length),
			zap.Int("breaks", len(report.Breaks)),
		)
	}
	return report
}

func samePointer(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
