package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"provider-host/internal/models"
	"provider-host/internal/storage"

	sqlite3 "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DriverName is the go-sqlite3 driver with foldFunction registered on
// every connection
const DriverName = "sqlite3_fold"

// foldFunction lowercases with Unicode rules. SQLite's LOWER only folds
// ASCII letters.
const foldFunction = "unicode_lower"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc(foldFunction, strings.ToLower, true)
		},
	})
}

type repository struct {
	db     *gorm.DB
	memory storage.MemoryRepository
}

// NewRepository creates a new SQLite repository
func NewRepository(dbPath string) (storage.Repository, error) {
	dialector := sqlite.New(sqlite.Config{DriverName: DriverName, DSN: dbPath})
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases shared between goroutines.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.MemoryItem{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &repository{
		db:     db,
		memory: NewMemoryRepository(db),
	}, nil
}

func (r *repository) Memory() storage.MemoryRepository {
	return r.memory
}

func (r *repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
