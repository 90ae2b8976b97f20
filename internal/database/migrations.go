package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/logger"
)

// allModels is the full catalog schema in migration order.
func allModels() []interface{} {
	return []interface{}{
		&MediaItem{},
		&Tag{},
		&Actor{},
		&Face{},
		&FaceEncoding{},
		&VideoFace{},
		&VideoFingerprint{},
		&FolderGroup{},
		&FolderScanStatus{},
		&SchemaMigration{},
	}
}

// Migrate brings the schema up to date. Additive only: AutoMigrate adds
// missing tables, columns and indexes and never drops user data. The one
// destructive exception, widening face_encodings.media_item_id to
// nullable, runs as a guarded copy-swap.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto-migrate catalog schema: %w", err)
	}

	if err := widenFaceEncodingMediaItem(gdb); err != nil {
		return fmt.Errorf("widen face_encodings.media_item_id: %w", err)
	}

	return nil
}

const widenEncodingMigration = "widen_face_encoding_media_item_id"

// widenFaceEncodingMediaItem rewrites the face_encodings table when an
// older schema declared media_item_id NOT NULL. SQLite cannot relax a
// column constraint in place, so the table is copied behind a temporary
// name and swapped, preserving every row.
func widenFaceEncodingMediaItem(gdb *gorm.DB) error {
	var applied int64
	gdb.Model(&SchemaMigration{}).Where("name = ?", widenEncodingMigration).Count(&applied)
	if applied > 0 {
		return nil
	}

	type columnInfo struct {
		CID     int     `gorm:"column:cid"`
		Name    string  `gorm:"column:name"`
		Type    string  `gorm:"column:type"`
		NotNull int     `gorm:"column:notnull"`
		Dflt    *string `gorm:"column:dflt_value"`
		PK      int     `gorm:"column:pk"`
	}

	var cols []columnInfo
	if err := gdb.Raw("PRAGMA table_info(face_encodings)").Scan(&cols).Error; err != nil {
		return err
	}

	needsRewrite := false
	for _, c := range cols {
		if c.Name == "media_item_id" && c.NotNull == 1 {
			needsRewrite = true
			break
		}
	}

	if needsRewrite {
		logger.Warn("Rewriting face_encodings to allow null media_item_id")
		err := gdb.Transaction(func(tx *gorm.DB) error {
			stmts := []string{
				`CREATE TABLE face_encodings_rewrite (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					face_id INTEGER NOT NULL,
					media_item_id INTEGER,
					frame_timestamp REAL,
					encoding TEXT NOT NULL,
					thumbnail TEXT,
					confidence REAL,
					quality_score REAL,
					created_at DATETIME
				)`,
				`INSERT INTO face_encodings_rewrite
					(id, face_id, media_item_id, frame_timestamp, encoding,
					 thumbnail, confidence, quality_score, created_at)
				 SELECT id, face_id, media_item_id, frame_timestamp, encoding,
					 thumbnail, confidence, quality_score, created_at
				 FROM face_encodings`,
				`DROP TABLE face_encodings`,
				`ALTER TABLE face_encodings_rewrite RENAME TO face_encodings`,
				`CREATE INDEX IF NOT EXISTS idx_face_encodings_face_id ON face_encodings(face_id)`,
				`CREATE INDEX IF NOT EXISTS idx_face_encodings_media_item_id ON face_encodings(media_item_id)`,
			}
			for _, stmt := range stmts {
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return gdb.Create(&SchemaMigration{
		Name:      widenEncodingMigration,
		AppliedAt: time.Now(),
	}).Error
}
