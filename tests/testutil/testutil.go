// Package testutil provides common test utilities for the catalog service.
// It contains helpers for mock databases, principals, product fixtures and
// polling assertions.
package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mealtracker/backend/internal/domain/catalog"
	"github.com/mealtracker/backend/internal/domain/identity"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockDB wraps a GORM database with sqlmock for testing.
type MockDB struct {
	DB    *gorm.DB
	Mock  sqlmock.Sqlmock
	SqlDB *sql.DB
}

// NewMockDB creates a postgres-dialect GORM database backed by sqlmock.
// The connection is closed on test cleanup.
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create sqlmock")

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err, "Failed to open GORM connection")

	t.Cleanup(func() { _ = mockDB.Close() })
	return &MockDB{DB: gormDB, Mock: mock, SqlDB: mockDB}
}

// ExpectationsWereMet verifies that all expectations were met.
func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	t.Helper()
	require.NoError(t, m.Mock.ExpectationsWereMet(), "Unmet database expectations")
}

// Admin returns a principal holding the ADMIN role
func Admin(username string) *identity.Principal {
	return identity.NewPrincipal(username, identity.RoleAdmin)
}

// User returns a principal holding the USER role
func User(username string) *identity.Principal {
	return identity.NewPrincipal(username, identity.RoleUser)
}

// ProductAttrs returns valid attributes for a product named name
func ProductAttrs(name string, category catalog.Category) catalog.ProductAttributes {
	return catalog.ProductAttributes{
		Name:     name,
		Category: category,
		Calories: 130,
		Protein:  3,
		Carbs:    28,
		Fat:      0,
	}
}

// NewGlobalProduct builds a valid unsaved global product
func NewGlobalProduct(t *testing.T, name string, category catalog.Category) *catalog.Product {
	t.Helper()
	p, err := catalog.NewProduct(ProductAttrs(name, category), nil)
	require.NoError(t, err)
	return p
}

// NewPrivateProduct builds a valid unsaved product owned by owner
func NewPrivateProduct(t *testing.T, name string, category catalog.Category, owner string) *catalog.Product {
	t.Helper()
	p, err := catalog.NewProduct(ProductAttrs(name, category), &owner)
	require.NoError(t, err)
	return p
}

// NewTestUUID generates a deterministic UUID for testing.
// Uses the provided seed string to create a reproducible UUID.
func NewTestUUID(seed string) uuid.UUID {
	namespace := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	return uuid.NewSHA1(namespace, []byte(seed))
}

// ContextWithTimeout creates a context that is cancelled on test cleanup.
func ContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// WaitForCondition polls condition until it holds or timeout elapses.
// Returns true if the condition was met.
func WaitForCondition(t *testing.T, condition func() bool, timeout, interval time.Duration) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(interval)
	}
	return condition()
}

// RequireEventually fails the test when condition does not hold within timeout.
func RequireEventually(t *testing.T, condition func() bool, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	if !WaitForCondition(t, condition, timeout, 10*time.Millisecond) {
		t.Fatalf("Condition not met within %v: %v", timeout, msgAndArgs)
	}
}
