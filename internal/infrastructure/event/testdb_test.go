package event

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mealtracker/backend/internal/domain/shared"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupOutboxTestDB creates an in-memory SQLite database with the outbox table
func setupOutboxTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.Exec(`
		CREATE TABLE outbox_events (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL UNIQUE,
			event_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			payload BLOB NOT NULL,
			status TEXT NOT NULL,
			retry_count INTEGER NOT NULL,
			max_retries INTEGER NOT NULL,
			last_error TEXT,
			next_retry_at DATETIME,
			processed_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error
	require.NoError(t, err)
	return db
}

// setupMockDB creates a GORM DB over a mocked postgres connection
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return gormDB, mock
}

// saveEntry stores ev as an outbox entry created at createdAt
func saveEntry(t *testing.T, repo *GormOutboxRepository, ev shared.DomainEvent, createdAt time.Time, mutate ...func(*shared.OutboxEntry)) *shared.OutboxEntry {
	t.Helper()
	payload, err := newCatalogSerializer().Serialize(ev)
	require.NoError(t, err)

	e := shared.NewOutboxEntry(ev, payload)
	e.CreatedAt = createdAt
	e.UpdatedAt = createdAt
	for _, m := range mutate {
		m(e)
	}
	require.NoError(t, repo.Save(context.Background(), e))
	return e
}

func withStatus(status shared.OutboxStatus) func(*shared.OutboxEntry) {
	return func(e *shared.OutboxEntry) { e.Status = status }
}

func withRetry(count int, next time.Time) func(*shared.OutboxEntry) {
	return func(e *shared.OutboxEntry) {
		e.Status = shared.OutboxStatusFailed
		e.RetryCount = count
		e.NextRetryAt = &next
	}
}

func mustFind(t *testing.T, repo *GormOutboxRepository, e *shared.OutboxEntry) *shared.OutboxEntry {
	t.Helper()
	got, err := repo.FindByID(context.Background(), e.ID)
	require.NoError(t, err)
	return got
}
