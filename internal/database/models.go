package database

import (
	"database/sql/driver"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// MediaType enum for media_items.media_type.
type MediaType string

const (
	MediaTypeVideo MediaType = "video"
	MediaTypeImage MediaType = "image"
)

func (mt MediaType) Value() (driver.Value, error) {
	return string(mt), nil
}

func (mt *MediaType) Scan(value interface{}) error {
	if value == nil {
		*mt = ""
		return nil
	}
	switch s := value.(type) {
	case string:
		*mt = MediaType(s)
	case []byte:
		*mt = MediaType(s)
	default:
		return fmt.Errorf("cannot scan %T into MediaType", value)
	}
	return nil
}

// ThumbnailState enum for media_items.thumbnail_generated.
type ThumbnailState string

const (
	ThumbnailNone   ThumbnailState = "none"
	ThumbnailOK     ThumbnailState = "ok"
	ThumbnailFailed ThumbnailState = "failed"
)

func (ts ThumbnailState) Value() (driver.Value, error) {
	return string(ts), nil
}

func (ts *ThumbnailState) Scan(value interface{}) error {
	if value == nil {
		*ts = ThumbnailNone
		return nil
	}
	switch s := value.(type) {
	case string:
		*ts = ThumbnailState(s)
	case []byte:
		*ts = ThumbnailState(s)
	default:
		return fmt.Errorf("cannot scan %T into ThumbnailState", value)
	}
	return nil
}

// MediaItem represents one physical file on disk. The absolute path is the
// natural key; the integer id stays stable across moves and renames so
// tags, faces and fingerprints survive relocation.
type MediaItem struct {
	ID          uint32 `gorm:"primaryKey" json:"id"`
	Path        string `gorm:"uniqueIndex;not null" json:"path"`
	Name        string `gorm:"not null" json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`

	Category     string  `gorm:"index:idx_media_category_sub;not null" json:"category"`
	Subcategory  *string `gorm:"index:idx_media_category_sub" json:"subcategory"`
	RelativePath string  `json:"relative_path"`

	Size      int64     `json:"size"`
	Modified  time.Time `gorm:"index" json:"modified"`
	Extension string    `json:"extension"`
	MediaType MediaType `gorm:"type:text;not null;index" json:"media_type"`

	// Technical metadata from ffprobe; nullable until extracted, and
	// duration/codec/bitrate/fps stay null for images.
	Duration *float64 `json:"duration"`
	Width    *int     `json:"width"`
	Height   *int     `json:"height"`
	Codec    *string  `json:"codec"`
	Bitrate  *int64   `json:"bitrate"`
	FPS      *float64 `json:"fps"`

	ThumbnailGenerated ThumbnailState `gorm:"type:text;index;default:none" json:"thumbnail_generated"`
	ThumbnailUpdatedAt int64          `json:"thumbnail_updated_at"`
	ThumbnailURL       string         `json:"thumbnail_url"`

	FingerprintGenerated bool       `gorm:"index" json:"fingerprint_generated"`
	FingerprintedAt      *time.Time `json:"fingerprinted_at"`

	// Editorial metadata; never touched by the reconciler.
	Series   *string `gorm:"index:idx_media_series_season" json:"series"`
	Season   *int    `gorm:"index:idx_media_series_season" json:"season"`
	Episode  *string `json:"episode"`
	Year     *int    `gorm:"index" json:"year"`
	Channel  *string `json:"channel"`
	Rating   *int    `json:"rating"`
	Favorite bool    `gorm:"index" json:"favorite"`
	IsFinal  bool    `gorm:"index" json:"is_final"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Tags         []Tag              `gorm:"many2many:media_item_tags" json:"tags,omitempty"`
	Actors       []Actor            `gorm:"many2many:media_item_actors" json:"actors,omitempty"`
	Fingerprints []VideoFingerprint `gorm:"foreignKey:MediaItemID;constraint:OnDelete:CASCADE" json:"-"`
	VideoFaces   []VideoFace        `gorm:"foreignKey:MediaItemID;constraint:OnDelete:CASCADE" json:"-"`
}

// Tag is a lowercased, unique label with a deterministic color.
type Tag struct {
	ID        uint32    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor is a person credit. VideoCount is denormalized and maintained by
// the link/unlink operations.
type Actor struct {
	ID         uint32    `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"uniqueIndex;not null" json:"name"`
	Notes      string    `json:"notes"`
	VideoCount int       `json:"video_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Face is a person identity in the face catalog. A face may outlive its
// encodings: an encoding-less face is still a usable label while it keeps
// video links.
type Face struct {
	ID                uint32  `gorm:"primaryKey" json:"id"`
	Name              string  `gorm:"not null" json:"name"`
	ActorID           *uint32 `gorm:"index" json:"actor_id"`
	EncodingCount     int     `json:"encoding_count"`
	PrimaryEncodingID *uint32 `json:"primary_encoding_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Encodings  []FaceEncoding `gorm:"foreignKey:FaceID;constraint:OnDelete:CASCADE" json:"-"`
	VideoFaces []VideoFace    `gorm:"foreignKey:FaceID;constraint:OnDelete:CASCADE" json:"-"`
}

// FaceEncoding is a single 512-D descriptor with provenance. MediaItemID
// is nullable so encodings survive deletion of their source file.
type FaceEncoding struct {
	ID          uint32  `gorm:"primaryKey" json:"id"`
	FaceID      uint32  `gorm:"index;not null" json:"face_id"`
	MediaItemID *uint32 `gorm:"index" json:"media_item_id"`

	FrameTimestamp float64 `json:"frame_timestamp"`
	// Base64 of 512 little-endian float32 values.
	Encoding string `gorm:"type:text;not null" json:"-"`
	// Base64 JPEG crop of the detected face.
	Thumbnail    string  `gorm:"type:text" json:"-"`
	Confidence   float64 `json:"confidence"`
	QualityScore float64 `json:"quality_score"`

	CreatedAt time.Time `json:"created_at"`

	MediaItem *MediaItem `gorm:"foreignKey:MediaItemID;constraint:OnDelete:SET NULL" json:"-"`
}

// VideoFace links a media item to a face identity.
type VideoFace struct {
	ID          uint32 `gorm:"primaryKey" json:"id"`
	MediaItemID uint32 `gorm:"uniqueIndex:idx_video_face;not null" json:"media_item_id"`
	FaceID      uint32 `gorm:"uniqueIndex:idx_video_face;index;not null" json:"face_id"`

	FirstDetectedAt time.Time `json:"first_detected_at"`
	DetectionMethod string    `json:"detection_method"`
	AppearanceCount int       `json:"appearance_count"`
}

// Detection methods recorded on VideoFace rows.
const (
	DetectionManualSearch    = "manual_search"
	DetectionBatchExtraction = "batch_extraction"
	DetectionAutoScan        = "auto_scan"
	DetectionUserSelected    = "user_selected"
	DetectionPreservedEdit   = "preserved_from_edit"
)

// VideoFingerprint is one perceptual hash sampled from a media item.
// FramePosition is a percentage into the video (0 for images).
type VideoFingerprint struct {
	ID            uint32    `gorm:"primaryKey" json:"id"`
	MediaItemID   uint32    `gorm:"index;not null" json:"media_item_id"`
	FramePosition int       `json:"frame_position"`
	PHash         string    `gorm:"index;not null" json:"phash"`
	CreatedAt     time.Time `json:"created_at"`
}

// FolderGroup is a user-defined sidebar grouping of categories.
type FolderGroup struct {
	ID       string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name     string         `gorm:"not null" json:"name"`
	Folders  datatypes.JSON `json:"folders"`
	Icon     string         `json:"icon"`
	Color    string         `json:"color"`
	Position int            `json:"position"`
	IsSystem bool           `json:"is_system"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FolderScanStatus tracks per-category scan bookkeeping.
type FolderScanStatus struct {
	ID           uint32     `gorm:"primaryKey" json:"id"`
	Category     string     `gorm:"uniqueIndex;not null" json:"category"`
	LastScanned  *time.Time `json:"last_scanned"`
	VideoCount   int        `json:"video_count"`
	ScanDuration float64    `json:"scan_duration"`
	IsScanned    bool       `json:"is_scanned"`
}

// SchemaMigration records applied one-off migrations.
type SchemaMigration struct {
	Name      string    `gorm:"primaryKey" json:"name"`
	AppliedAt time.Time `json:"applied_at"`
}
