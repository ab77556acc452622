// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/newport/internal/database"
	"github.com/example/newport/internal/models"
)

// NewDB opens a private in-memory SQLite database with the full schema.
// A single connection is used so every query sees the same memory database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(conn))
	return conn
}

// CreateProfile inserts a resident profile.
func CreateProfile(t *testing.T, db *gorm.DB, name, phone string, role models.UserRole) *models.UserProfile {
	t.Helper()

	profile := &models.UserProfile{
		FullName: name,
		Phone:    phone,
		Role:     role,
	}
	require.NoError(t, db.Create(profile).Error)
	return profile
}

// CreateApartment stores a raw apartment document under id.
func CreateApartment(t *testing.T, db *gorm.DB, id string, document map[string]any) *models.Apartment {
	t.Helper()

	raw, err := json.Marshal(document)
	require.NoError(t, err)

	apartment := &models.Apartment{ID: id, Document: datatypes.JSON(raw)}
	require.NoError(t, db.Create(apartment).Error)
	return apartment
}

// OwnedApartment stores a current-schema apartment owned by owner.
func OwnedApartment(t *testing.T, db *gorm.DB, id string, owner uuid.UUID, members ...uuid.UUID) *models.Apartment {
	t.Helper()

	memberIDs := make([]string, 0, len(members))
	for _, m := range members {
		memberIDs = append(memberIDs, m.String())
	}

	return CreateApartment(t, db, id, map[string]any{
		"ownerId":         owner.String(),
		"familyMemberIds": memberIDs,
		"blockId":         "A",
		"apartmentNumber": "12",
	})
}
