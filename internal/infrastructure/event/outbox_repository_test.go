package event

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func saveEntries(t *testing.T, repo *GormOutboxRepository, entries ...*shared.OutboxEntry) {
	t.Helper()
	require.NoError(t, repo.Save(context.Background(), entries...))
}

func entryAt(tenantID uuid.UUID, created time.Time) *shared.OutboxEntry {
	e := shared.NewOutboxEntry(newTestEvent("TestEvent", tenantID), []byte(`{}`))
	e.CreatedAt = created
	e.UpdatedAt = created
	return e
}

func TestGormOutboxRepository_FindDeliverable_AcrossTenantsOldestFirst(t *testing.T) {
	db, _ := setupTestDB(t)
	repo := NewGormOutboxRepository(db)
	base := time.Now().Add(-time.Hour)

	newest := entryAt(uuid.New(), base.Add(3*time.Minute))
	oldest := entryAt(uuid.New(), base.Add(1*time.Minute))
	failed := entryAt(uuid.New(), base.Add(2*time.Minute))
	failed.MarkFailed("timeout")
	sent := entryAt(uuid.New(), base)
	sent.MarkSent()
	dead := entryAt(uuid.New(), base)
	dead.MaxRetries = 1
	dead.MarkFailed("boom")
	saveEntries(t, repo, newest, oldest, failed, sent, dead)

	got, err := repo.FindDeliverable(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, oldest.ID, got[0].ID)
	assert.Equal(t, failed.ID, got[1].ID)
	assert.Equal(t, newest.ID, got[2].ID)

	limited, err := repo.FindDeliverable(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGormOutboxRepository_Update(t *testing.T) {
	db, _ := setupTestDB(t)
	repo := NewGormOutboxRepository(db)
	entry := entryAt(uuid.New(), time.Now())
	saveEntries(t, repo, entry)

	entry.MarkSent()
	require.NoError(t, repo.Update(context.Background(), entry))

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[shared.OutboxStatusSent])
	assert.Zero(t, counts[shared.OutboxStatusPending])
}

func TestGormOutboxRepository_Update_UnknownEntry(t *testing.T) {
	db, _ := setupTestDB(t)
	repo := NewGormOutboxRepository(db)

	err := repo.Update(context.Background(), entryAt(uuid.New(), time.Now()))
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestGormOutboxRepository_DeleteSentBefore(t *testing.T) {
	db, _ := setupTestDB(t)
	repo := NewGormOutboxRepository(db)

	old := entryAt(uuid.New(), time.Now().Add(-48*time.Hour))
	old.MarkSent()
	processed := time.Now().Add(-48 * time.Hour)
	old.ProcessedAt = &processed
	recent := entryAt(uuid.New(), time.Now())
	recent.MarkSent()
	pending := entryAt(uuid.New(), time.Now().Add(-72*time.Hour))
	saveEntries(t, repo, old, recent, pending)

	deleted, err := repo.DeleteSentBefore(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[shared.OutboxStatusSent])
	assert.Equal(t, int64(1), counts[shared.OutboxStatusPending])
}

func TestGormOutboxRepository_RequeueDead(t *testing.T) {
	db, _ := setupTestDB(t)
	repo := NewGormOutboxRepository(db)

	dead := entryAt(uuid.New(), time.Now())
	dead.MaxRetries = 1
	dead.MarkFailed("handler down")
	sent := entryAt(uuid.New(), time.Now())
	sent.MarkSent()
	saveEntries(t, repo, dead, sent)

	n, err := repo.RequeueDead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.FindDeliverable(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, dead.ID, got[0].ID)
	assert.Equal(t, shared.OutboxStatusPending, got[0].Status)
	assert.Zero(t, got[0].RetryCount)
	assert.Equal(t, "handler down", got[0].LastError)
}

func TestGormOutboxRepository_FindDeliverable_SkipLockedOnPostgres(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT \* FROM "outbox_events" WHERE status IN \(\$1,\$2\) ORDER BY created_at ASC.* LIMIT \$3 FOR UPDATE SKIP LOCKED`).
		WithArgs("PENDING", "FAILED", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}))

	entries, err := NewGormOutboxRepository(db).FindDeliverable(context.Background(), 50)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}
