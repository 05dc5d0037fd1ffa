package testutil

import (
	"fmt"
	"log"
	"strings"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MarkoPoloResearchLab/safecall/internal/model"
	"github.com/MarkoPoloResearchLab/safecall/internal/storage"
)

const (
	sqliteTestDatabaseNamePrefix        = "safecall-test-db"
	sqliteInMemoryDataSourceNamePattern = "file:%s?mode=memory&cache=shared&_foreign_keys=on"
)

// SQLiteTestDatabase provides helpers for configuring temporary SQLite databases in tests.
type SQLiteTestDatabase struct {
	configuration storage.Config
}

type testingLogWriter struct {
	testingT *testing.T
}

func (writer testingLogWriter) Write(data []byte) (int, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed != "" {
		writer.testingT.Log(trimmed)
	}
	return len(data), nil
}

// NewSQLiteTestDatabase creates a SQLiteTestDatabase with a unique in-memory database configuration.
func NewSQLiteTestDatabase(testingT *testing.T) SQLiteTestDatabase {
	testingT.Helper()

	databaseName := fmt.Sprintf("%s-%s", sqliteTestDatabaseNamePrefix, storage.NewID())

	return SQLiteTestDatabase{
		configuration: storage.Config{
			DriverName:     storage.DriverNameSQLite,
			DataSourceName: fmt.Sprintf(sqliteInMemoryDataSourceNamePattern, databaseName),
		},
	}
}

// Configuration returns the storage configuration for the temporary SQLite database.
func (database SQLiteTestDatabase) Configuration() storage.Config {
	return database.configuration
}

// DataSourceName returns the SQLite data source name for the temporary database.
func (database SQLiteTestDatabase) DataSourceName() string {
	return database.configuration.DataSourceName
}

// ConfigureDatabaseLogger returns a database session that suppresses record-not-found logs during tests.
func ConfigureDatabaseLogger(testingT *testing.T, database *gorm.DB) *gorm.DB {
	testingT.Helper()
	if database == nil {
		testingT.Fatalf("configure database logger: nil database")
	}
	gormLogger := logger.New(
		log.New(testingLogWriter{testingT: testingT}, "", 0),
		logger.Config{
			IgnoreRecordNotFoundError: true,
			LogLevel:                  logger.Error,
		},
	)
	return database.Session(&gorm.Session{Logger: gormLogger})
}

// NewMigratedDatabase opens a fresh in-memory database with every table migrated.
// The connection is closed when the test finishes.
func NewMigratedDatabase(testingT *testing.T) *gorm.DB {
	testingT.Helper()

	sqliteDatabase := NewSQLiteTestDatabase(testingT)
	database, openErr := storage.OpenDatabase(sqliteDatabase.Configuration())
	if openErr != nil {
		testingT.Fatalf("open test database: %v", openErr)
	}
	database = ConfigureDatabaseLogger(testingT, database)
	if migrateErr := storage.AutoMigrate(database); migrateErr != nil {
		testingT.Fatalf("migrate test database: %v", migrateErr)
	}

	sqlDatabase, sqlErr := database.DB()
	if sqlErr != nil {
		testingT.Fatalf("access test database: %v", sqlErr)
	}
	testingT.Cleanup(func() {
		_ = sqlDatabase.Close()
	})
	return database
}

// CreateProfile persists a profile with the given email, role and status.
func CreateProfile(testingT *testing.T, database *gorm.DB, email string, role model.ProfileRole, status model.ProfileStatus) model.Profile {
	testingT.Helper()

	profile, profileErr := model.NewProfile(model.ProfileInput{
		Email:  email,
		Role:   string(role),
		Status: string(status),
	})
	if profileErr != nil {
		testingT.Fatalf("build profile %s: %v", email, profileErr)
	}
	if createErr := database.Create(&profile).Error; createErr != nil {
		testingT.Fatalf("create profile %s: %v", email, createErr)
	}
	return profile
}

// CreateContact persists an emergency contact owned by the given profile.
func CreateContact(testingT *testing.T, database *gorm.DB, profileID string, name string, phone string, category model.ContactCategory) model.EmergencyContact {
	testingT.Helper()

	contact, contactErr := model.NewEmergencyContact(model.EmergencyContactInput{
		ProfileID: profileID,
		Name:      name,
		Phone:     phone,
		Category:  string(category),
	})
	if contactErr != nil {
		testingT.Fatalf("build contact %s: %v", name, contactErr)
	}
	if createErr := database.Create(&contact).Error; createErr != nil {
		testingT.Fatalf("create contact %s: %v", name, createErr)
	}
	return contact
}
