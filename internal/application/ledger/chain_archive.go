package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ArchiveStore is the object store chain exports are written to
type ArchiveStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// ChainEntry is one link of an exported chain. It carries exactly the
// fields the fiscal hash is computed from, so the export can be checked
// without database access.
type ChainEntry struct {
	Sequence       int64           `json:"sequence"`
	DocumentID     uuid.UUID       `json:"document_id"`
	DocumentNumber string          `json:"document_number"`
	DocumentDate   string          `json:"document_date"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
	Status         string          `json:"status"`
	PostedAt       time.Time       `json:"posted_at"`
	PreviousHash   *string         `json:"previous_hash,omitempty"`
	FiscalHash     string          `json:"fiscal_hash"`
}

// ChainExport is the archived snapshot of one chain
type ChainExport struct {
	ExportedAt time.Time    `json:"exported_at"`
	Report     *ChainReport `json:"report"`
	Entries    []ChainEntry `json:"entries"`
}

// ArchiveResult names the objects one archive run wrote
type ArchiveResult struct {
	Key       string       `json:"key"`
	LatestKey string       `json:"latest_key"`
	Report    *ChainReport `json:"report"`
}

// ChainArchiver exports verified hash chains to an object store so
// auditors can keep a copy outside the ledger database
type ChainArchiver struct {
	docs     ledger.DocumentRepository
	verifier *ChainVerifier
	store    ArchiveStore
	now      func() time.Time
}

// NewChainArchiver creates a new ChainArchiver
func NewChainArchiver(docs ledger.DocumentRepository, store ArchiveStore) *ChainArchiver {
	return &ChainArchiver{
		docs:     docs,
		verifier: NewChainVerifier(docs),
		store:    store,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Archive verifies the chain of scope and writes the export twice: once
// under a timestamped key that is never overwritten, and once as the
// scope's latest snapshot. A broken chain is archived as well; the
// report inside says where it breaks.
func (a *ChainArchiver) Archive(ctx context.Context, scope ledger.ChainScope) (*ArchiveResult, error) {
	if !scope.Type.IsFiscal() {
		return nil, shared.NewDomainError("NOT_FISCAL", fmt.Sprintf("%s documents are not hash-chained", scope.Type))
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "chain", "archive",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, scope.TenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrDocumentType, scope.Type.String()),
	)
	defer span.End()

	docs, err := a.docs.ListChain(ctx, scope)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	export := ChainExport{
		ExportedAt: a.now(),
		Report:     a.verifier.check(ctx, scope, docs),
		Entries:    make([]ChainEntry, 0, len(docs)),
	}
	for _, d := range docs {
		export.Entries = append(export.Entries, chainEntry(d))
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode chain export: %w", err)
	}

	dir := ArchivePrefix(scope)
	result := &ArchiveResult{
		Key:       path.Join(dir, export.ExportedAt.Format("20060102T150405.000000000Z")+".json"),
		LatestKey: path.Join(dir, "latest.json"),
		Report:    export.Report,
	}
	for _, key := range []string{result.Key, result.LatestKey} {
		if err := a.store.Put(ctx, key, data, "application/json"); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	logger.L(ctx).Info("Hash chain archived",
		zap.String("scope", scope.LockKey()),
		zap.String("key", result.Key),
		zap.Int("length", export.Report.Length),
		zap.Bool("valid", export.Report.Valid),
	)
	return result, nil
}

// Latest reads back the most recent export of scope
func (a *ChainArchiver) Latest(ctx context.Context, scope ledger.ChainScope) (*ChainExport, error) {
	data, err := a.store.Get(ctx, path.Join(ArchivePrefix(scope), "latest.json"))
	if err != nil {
		return nil, err
	}
	var export ChainExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to decode chain export: %w", err)
	}
	return &export, nil
}

// ArchivePrefix is the key directory holding the exports of scope
func ArchivePrefix(scope ledger.ChainScope) string {
	return path.Join(scope.TenantID.String(), scope.CompanyID.String(), scope.Type.String())
}

func chainEntry(d *ledger.Document) ChainEntry {
	e := ChainEntry{
		DocumentID:     d.ID,
		DocumentNumber: d.DocumentNumber,
		DocumentDate:   d.DocumentDate.Format("2006-01-02"),
		Total:          d.Total,
		Currency:       d.Currency,
		Status:         string(d.Status),
		PreviousHash:   d.PreviousHash,
	}
	if d.ChainSequence != nil {
		e.Sequence = *d.ChainSequence
	}
	if d.PostedAt != nil {
		e.PostedAt = *d.PostedAt
	}
	if d.FiscalHash != nil {
		e.FiscalHash = *d.FiscalHash
	}
	return e
}
