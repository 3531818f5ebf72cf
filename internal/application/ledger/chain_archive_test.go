package ledger

import (
	"context"
	"encoding/json"
	"path"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/erp/ledger/internal/infrastructure/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArchiver(env *testEnv, at time.Time) (*ChainArchiver, *storage.MemoryArchiveStore) {
	store := storage.NewMemoryArchiveStore()
	archiver := NewChainArchiver(env.docs, store)
	archiver.now = func() time.Time { return at }
	return archiver, store
}

func TestChainArchiver_WritesTimestampedAndLatest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.posted(t, ledger.DocumentTypeInvoice, "100.00")
	second := env.posted(t, ledger.DocumentTypeInvoice, "250.00")

	at := time.Date(2024, 4, 1, 9, 30, 0, 0, time.UTC)
	archiver, store := newTestArchiver(env, at)

	result, err := archiver.Archive(ctx, env.scope(ledger.DocumentTypeInvoice))
	require.NoError(t, err)
	assert.True(t, result.Report.Valid)
	assert.Equal(t, 2, result.Report.Length)

	prefix := ArchivePrefix(env.scope(ledger.DocumentTypeInvoice))
	assert.Equal(t, path.Join(prefix, "20240401T093000.000000000Z.json"), result.Key)
	assert.Equal(t, path.Join(prefix, "latest.json"), result.LatestKey)
	assert.Equal(t, "application/json", store.ContentType(result.Key))

	raw, err := store.Get(ctx, result.Key)
	require.NoError(t, err)
	var export ChainExport
	require.NoError(t, json.Unmarshal(raw, &export))
	require.Len(t, export.Entries, 2)
	assert.Equal(t, first.ID, export.Entries[0].DocumentID)
	assert.Equal(t, second.ID, export.Entries[1].DocumentID)
	assert.Equal(t, int64(2), export.Entries[1].Sequence)
	assert.Equal(t, *first.FiscalHash, *export.Entries[1].PreviousHash)
	assert.Equal(t, *second.FiscalHash, export.Entries[1].FiscalHash)
	assert.True(t, export.Entries[1].Total.Equal(second.Total))

	latest, err := archiver.Latest(ctx, env.scope(ledger.DocumentTypeInvoice))
	require.NoError(t, err)
	assert.Equal(t, export.Report.HeadHash, latest.Report.HeadHash)
}

func TestChainArchiver_KeepsHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.posted(t, ledger.DocumentTypeInvoice, "100.00")

	archiver, store := newTestArchiver(env, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	_, err := archiver.Archive(ctx, env.scope(ledger.DocumentTypeInvoice))
	require.NoError(t, err)

	env.posted(t, ledger.DocumentTypeInvoice, "50.00")
	archiver.now = func() time.Time { return time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC) }
	_, err = archiver.Archive(ctx, env.scope(ledger.DocumentTypeInvoice))
	require.NoError(t, err)

	keys, err := store.List(ctx, ArchivePrefix(env.scope(ledger.DocumentTypeInvoice)))
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	latest, err := archiver.Latest(ctx, env.scope(ledger.DocumentTypeInvoice))
	require.NoError(t, err)
	assert.Len(t, latest.Entries, 2)
}

func TestChainArchiver_ArchivesBrokenChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.posted(t, ledger.DocumentTypeInvoice, "100.00")

	require.NoError(t, env.db.Model(&models.DocumentModel{}).
		Where("tenant_id = ? AND id = ?", env.tenantID, doc.ID).
		UpdateColumn("total", "1.00").Error)

	archiver, _ := newTestArchiver(env, time.Now().UTC())
	result, err := archiver.Archive(ctx, env.scope(ledger.DocumentTypeInvoice))
	require.NoError(t, err)
	assert.False(t, result.Report.Valid)
	require.Len(t, result.Report.Breaks, 1)
	assert.Equal(t, doc.ID, result.Report.Breaks[0].DocumentID)
}

func TestChainArchiver_RejectsNonFiscalType(t *testing.T) {
	env := newTestEnv(t)
	archiver, _ := newTestArchiver(env, time.Now().UTC())

	_, err := archiver.Archive(context.Background(), env.scope(ledger.DocumentTypeQuote))
	require.Error(t, err)
	assert.Equal(t, "NOT_FISCAL", errorCode(err))
}

func TestChainArchiver_LatestMissing(t *testing.T) {
	env := newTestEnv(t)
	archiver, _ := newTestArchiver(env, time.Now().UTC())

	_, err := archiver.Latest(context.Background(), env.scope(ledger.DocumentTypeInvoice))
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}
