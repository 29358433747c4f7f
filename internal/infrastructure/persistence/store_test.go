package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/client/internal/domain/offline"
	"github.com/erp/client/internal/infrastructure/config"
	"github.com/erp/client/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Compile-time interface checks
var (
	_ offline.SnapshotStore = (*GormSnapshotStore)(nil)
	_ offline.LedgerStore   = (*GormLedgerStore)(nil)
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

// newMockDB opens gorm over sqlmock so every statement can be made to fail
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return db, mock
}

func TestGormSnapshotStore(t *testing.T) {
	ctx := context.Background()
	store := NewGormSnapshotStore(setupTestDB(t))

	_, err := store.Get(ctx, "erp_offline_customers")
	assert.ErrorIs(t, err, offline.ErrNotFound)

	require.NoError(t, store.Put(ctx, "erp_offline_customers", []byte(`{"items":[]}`)))
	require.NoError(t, store.Put(ctx, "erp_offline_customers", []byte(`{"items":[{"id":1}]}`)))
	require.NoError(t, store.Put(ctx, "erp_offline_products", []byte(`{"items":[]}`)))

	got, err := store.Get(ctx, "erp_offline_customers")
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[{"id":1}]}`, string(got), "put overwrites")

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"erp_offline_customers", "erp_offline_products"}, keys)

	require.NoError(t, store.Delete(ctx, "erp_offline_customers"))
	require.NoError(t, store.Delete(ctx, "erp_offline_customers"), "delete is idempotent")
	_, err = store.Get(ctx, "erp_offline_customers")
	assert.ErrorIs(t, err, offline.ErrNotFound)
}

func TestGormLedgerStore(t *testing.T) {
	ctx := context.Background()
	store := NewGormLedgerStore(setupTestDB(t))
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	create := offline.NewPendingChange("customers", offline.ActionCreate, "temp_1709283600000",
		json.RawMessage(`{"name":"Ahmed"}`), now)
	del := offline.NewPendingChange("products", offline.ActionDelete, "7", nil, now.Add(time.Second))

	require.NoError(t, store.Append(ctx, create))
	require.NoError(t, store.Append(ctx, del))
	assert.Greater(t, del.Seq, create.Seq)

	create.RecordID = "42"
	create.Payload = json.RawMessage(`{"name":"Ahmed K."}`)
	create.MarkFailed(errors.New("name taken"))
	require.NoError(t, store.Update(ctx, create))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	got := list[0]
	assert.Equal(t, create.ID, got.ID)
	assert.Equal(t, create.Seq, got.Seq)
	assert.Equal(t, offline.ActionCreate, got.Action)
	assert.Equal(t, offline.ID("42"), got.RecordID)
	assert.JSONEq(t, `{"name":"Ahmed K."}`, string(got.Payload))
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "name taken", got.LastError)
	assert.True(t, now.Equal(got.EnqueuedAt))

	assert.Equal(t, del.ID, list[1].ID)
	assert.Nil(t, list[1].Payload)

	require.NoError(t, store.Delete(ctx, create.ID))
	assert.ErrorIs(t, store.Update(ctx, create), offline.ErrNotFound)

	list, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, del.ID, list[0].ID)
}

func TestStores_WriteFailuresArePersistenceFailures(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	mock.MatchExpectationsInOrder(false)
	dbErr := errors.New("disk I/O error")

	mock.ExpectExec(`INSERT INTO "offline_snapshots"`).WillReturnError(dbErr)
	mock.ExpectQuery(`INSERT INTO "offline_pending_changes"`).WillReturnError(dbErr)
	mock.ExpectQuery(`SELECT \* FROM "offline_pending_changes"`).WillReturnError(sql.ErrConnDone)

	err := NewGormSnapshotStore(db).Put(ctx, "k", []byte("v"))
	assert.ErrorIs(t, err, offline.ErrPersistenceFailure)
	assert.ErrorIs(t, err, dbErr)

	change := offline.NewPendingChange("customers", offline.ActionCreate, "temp_1", nil, time.Now())
	err = NewGormLedgerStore(db).Append(ctx, change)
	assert.ErrorIs(t, err, offline.ErrPersistenceFailure)
	assert.Zero(t, change.Seq)

	_, err = NewGormLedgerStore(db).List(ctx)
	assert.ErrorIs(t, err, offline.ErrPersistenceFailure)
	assert.Equal(t, offline.CodePersistenceFailure, offline.CodeOf(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.db")
	d, err := NewDatabase(&config.StorageConfig{Path: path}, nil, logger.Silent)
	require.NoError(t, err)

	require.NoError(t, d.Ping())
	assert.True(t, d.DB.Migrator().HasTable(&models.SnapshotModel{}))
	assert.True(t, d.DB.Migrator().HasTable(&models.PendingChangeModel{}))

	ctx := context.Background()
	require.NoError(t, NewGormSnapshotStore(d.DB).Put(ctx, "k", []byte("v")))
	require.NoError(t, d.Close())

	reopened, err := NewDatabase(&config.StorageConfig{Path: path}, nil, logger.Silent)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := NewGormSnapshotStore(reopened.DB).Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}
