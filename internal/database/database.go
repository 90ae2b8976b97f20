// Package database owns the catalog store: a single-writer SQLite database
// living at <root>/.clipper/clipper.db, accessed through GORM. The root
// manager re-points the store on a root switch; everything else obtains the
// handle through GetDB and must not cache it across switches.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/clipperhq/clipper/internal/logger"
)

var (
	db   *gorm.DB
	dbMu sync.RWMutex
)

// CatalogPath returns the catalog database path for a root directory.
func CatalogPath(root string) string {
	return filepath.Join(root, ".clipper", "clipper.db")
}

// ThumbnailPath returns the thumbnail database path for a root directory.
func ThumbnailPath(root string) string {
	return filepath.Join(root, ".clipper", "thumbnails.db")
}

// Open opens (or creates) a catalog database with foreign keys enforced.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	gdb, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on&_busy_timeout=5000"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}

	// SQLite supports a single writer; serialize writes at the pool level
	// and let reads share the connection.
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	return gdb, nil
}

// Initialize opens the catalog for a root (or an explicit override path)
// and installs it as the global handle. Used at startup and by the root
// manager during a switch.
func Initialize(root, overridePath string) error {
	path := overridePath
	if path == "" {
		path = CatalogPath(root)
	}

	gdb, err := Open(path)
	if err != nil {
		return err
	}

	dbMu.Lock()
	db = gdb
	dbMu.Unlock()

	logger.Info("Catalog database opened at %s", path)
	return nil
}

// GetDB returns the active catalog handle.
func GetDB() *gorm.DB {
	dbMu.RLock()
	defer dbMu.RUnlock()
	return db
}

// SetDB installs a handle directly. Tests use this with an in-memory store.
func SetDB(gdb *gorm.DB) {
	dbMu.Lock()
	db = gdb
	dbMu.Unlock()
}

// Close disposes the connection pool. Safe to call with no open handle.
func Close() error {
	dbMu.Lock()
	defer dbMu.Unlock()
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	db = nil
	return sqlDB.Close()
}
