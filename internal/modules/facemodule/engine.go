package facemodule

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/database"
)

// Thresholds are the cosine similarity cutoffs used across the engine.
// Defaults are fixed; each is overridable through the environment.
type Thresholds struct {
	ManualSearch float64 // minimum similarity returned by manual search
	AutoLink     float64 // auto-scan links a detection to an existing face
	Cleanup      float64 // cleanup view "acceptable" floor
	Grouping     float64 // cross-face grouping
	DuplicateEnc float64 // within-face duplicate encoding detection
}

// LoadThresholds reads the similarity cutoffs from the environment.
func LoadThresholds() Thresholds {
	return Thresholds{
		ManualSearch: envFloat("CLIPPER_FACE_MATCH_THRESHOLD", 0.4),
		AutoLink:     envFloat("CLIPPER_FACE_AUTOLINK_THRESHOLD", 0.8),
		Cleanup:      envFloat("CLIPPER_FACE_CLEANUP_THRESHOLD", 0.3),
		Grouping:     envFloat("CLIPPER_FACE_GROUPING_THRESHOLD", 0.5),
		DuplicateEnc: envFloat("CLIPPER_FACE_DUPLICATE_THRESHOLD", 0.95),
	}
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			return f
		}
	}
	return def
}

// Engine implements the face identity catalog over the store.
type Engine struct {
	db         *gorm.DB
	logger     hclog.Logger
	Thresholds Thresholds
}

// NewEngine creates a face engine over the given catalog handle.
func NewEngine(db *gorm.DB, logger hclog.Logger) *Engine {
	return &Engine{db: db, logger: logger, Thresholds: LoadThresholds()}
}

// EncodingMatch is one encoding within search results.
type EncodingMatch struct {
	EncodingID uint32  `json:"encoding_id"`
	Similarity float64 `json:"similarity"`
}

// FaceMatch groups search results by face identity.
type FaceMatch struct {
	FaceID         uint32          `json:"face_id"`
	Name           string          `json:"name"`
	ActorID        *uint32         `json:"actor_id,omitempty"`
	ActorName      string          `json:"actor_name,omitempty"`
	BestSimilarity float64         `json:"best_similarity"`
	Encodings      []EncodingMatch `json:"encodings"`
}

// SearchSimilar linearly scans every stored encoding and returns the
// top-K faces with at least one encoding at or above the threshold.
// excludeFaceID removes one face from the results.
func (e *Engine) SearchSimilar(query []float32, threshold float64, topK int, excludeFaceID uint32) ([]FaceMatch, error) {
	if topK <= 0 {
		topK = 10
	}

	q := e.db.Model(&database.FaceEncoding{})
	if excludeFaceID != 0 {
		q = q.Where("face_id <> ?", excludeFaceID)
	}
	var rows []database.FaceEncoding
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	byFace := make(map[uint32]*FaceMatch)
	for _, row := range rows {
		vec, err := DecodeVector(row.Encoding)
		if err != nil {
			continue
		}
		sim := CosineSimilarity(query, vec)
		if sim < threshold {
			continue
		}
		m, ok := byFace[row.FaceID]
		if !ok {
			m = &FaceMatch{FaceID: row.FaceID}
			byFace[row.FaceID] = m
		}
		m.Encodings = append(m.Encodings, EncodingMatch{EncodingID: row.ID, Similarity: sim})
		if sim > m.BestSimilarity {
			m.BestSimilarity = sim
		}
	}
	if len(byFace) == 0 {
		return nil, nil
	}

	faceIDs := make([]uint32, 0, len(byFace))
	for id := range byFace {
		faceIDs = append(faceIDs, id)
	}
	var faces []database.Face
	if err := e.db.Where("id IN ?", faceIDs).Find(&faces).Error; err != nil {
		return nil, err
	}
	actorNames, err := e.actorNamesFor(faces)
	if err != nil {
		return nil, err
	}

	matches := make([]FaceMatch, 0, len(byFace))
	for _, face := range faces {
		m := byFace[face.ID]
		m.Name = face.Name
		m.ActorID = face.ActorID
		if face.ActorID != nil {
			m.ActorName = actorNames[*face.ActorID]
		}
		sort.Slice(m.Encodings, func(i, j int) bool {
			return m.Encodings[i].Similarity > m.Encodings[j].Similarity
		})
		matches = append(matches, *m)
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].BestSimilarity > matches[j].BestSimilarity
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (e *Engine) actorNamesFor(faces []database.Face) (map[uint32]string, error) {
	ids := make([]uint32, 0)
	for _, f := range faces {
		if f.ActorID != nil {
			ids = append(ids, *f.ActorID)
		}
	}
	names := make(map[uint32]string)
	if len(ids) == 0 {
		return names, nil
	}
	var actors []database.Actor
	if err := e.db.Where("id IN ?", ids).Find(&actors).Error; err != nil {
		return nil, err
	}
	for _, a := range actors {
		names[a.ID] = a.Name
	}
	return names, nil
}

// CreateFace makes a new identity, optionally seeded with one encoding.
func (e *Engine) CreateFace(name string, actorID *uint32, seed *Detection, mediaItemID *uint32, frameTimestamp float64) (*database.Face, error) {
	face := &database.Face{Name: name, ActorID: actorID}
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(face).Error; err != nil {
			return err
		}
		if seed != nil {
			_, _, err := addEncodingTx(tx, face.ID, seed, mediaItemID, frameTimestamp)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.GetFace(face.ID)
}

// GetFace loads one face row.
func (e *Engine) GetFace(id uint32) (*database.Face, error) {
	var face database.Face
	if err := e.db.First(&face, id).Error; err != nil {
		return nil, err
	}
	return &face, nil
}

// AddEncodingToFace stores a new encoding under a face. Byte-exact
// duplicates under the same face are a successful "skipped" outcome and
// leave encoding_count unchanged.
func (e *Engine) AddEncodingToFace(faceID uint32, det *Detection, mediaItemID *uint32, frameTimestamp float64) (string, uint32, error) {
	var status string
	var encID uint32
	err := e.db.Transaction(func(tx *gorm.DB) error {
		var err error
		status, encID, err = addEncodingTx(tx, faceID, det, mediaItemID, frameTimestamp)
		return err
	})
	return status, encID, err
}

func addEncodingTx(tx *gorm.DB, faceID uint32, det *Detection, mediaItemID *uint32, frameTimestamp float64) (string, uint32, error) {
	encoded := EncodeVector(det.Encoding)

	var count int64
	if err := tx.Model(&database.FaceEncoding{}).
		Where("face_id = ? AND encoding = ?", faceID, encoded).
		Count(&count).Error; err != nil {
		return "", 0, err
	}
	if count > 0 {
		return "skipped", 0, nil
	}

	row := database.FaceEncoding{
		FaceID:         faceID,
		MediaItemID:    mediaItemID,
		FrameTimestamp: frameTimestamp,
		Encoding:       encoded,
		Thumbnail:      det.Thumbnail,
		Confidence:     det.Confidence,
		QualityScore:   det.Quality,
	}
	if err := tx.Create(&row).Error; err != nil {
		return "", 0, err
	}
	if err := tx.Model(&database.Face{}).Where("id = ?", faceID).
		UpdateColumn("encoding_count", gorm.Expr("encoding_count + 1")).Error; err != nil {
		return "", 0, err
	}
	return "added", row.ID, nil
}

// PrimaryEncoding resolves the reference encoding for a face: the
// user-chosen primary when set and still present, otherwise the highest
// quality_score, ties broken by confidence. Nil when the face has no
// encodings.
func (e *Engine) PrimaryEncoding(face *database.Face) (*database.FaceEncoding, error) {
	if face.PrimaryEncodingID != nil {
		var enc database.FaceEncoding
		err := e.db.Where("id = ? AND face_id = ?", *face.PrimaryEncodingID, face.ID).
			First(&enc).Error
		if err == nil {
			return &enc, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}

	var enc database.FaceEncoding
	err := e.db.Where("face_id = ?", face.ID).
		Order("quality_score DESC, confidence DESC").
		First(&enc).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &enc, nil
}

// SetPrimaryEncoding records the user's choice of reference encoding.
func (e *Engine) SetPrimaryEncoding(faceID, encodingID uint32) error {
	var count int64
	if err := e.db.Model(&database.FaceEncoding{}).
		Where("id = ? AND face_id = ?", encodingID, faceID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return e.db.Model(&database.Face{}).Where("id = ?", faceID).
		Update("primary_encoding_id", encodingID).Error
}

// ScoredEncoding is one encoding in the cleanup view.
type ScoredEncoding struct {
	EncodingID     uint32  `json:"encoding_id"`
	Similarity     float64 `json:"similarity"`
	Classification string  `json:"classification"`
	QualityScore   float64 `json:"quality_score"`
	Confidence     float64 `json:"confidence"`
	Thumbnail      string  `json:"thumbnail,omitempty"`
}

// CleanupView scores every encoding of a face against the primary (or
// fallback) reference: primary first, then descending similarity,
// classified good (>=0.75) / acceptable (>=threshold) / poor.
func (e *Engine) CleanupView(faceID uint32, threshold float64) ([]ScoredEncoding, error) {
	if threshold <= 0 {
		threshold = e.Thresholds.Cleanup
	}

	face, err := e.GetFace(faceID)
	if err != nil {
		return nil, err
	}
	primary, err := e.PrimaryEncoding(face)
	if err != nil {
		return nil, err
	}
	if primary == nil {
		return nil, nil
	}
	ref, err := DecodeVector(primary.Encoding)
	if err != nil {
		return nil, err
	}

	var rows []database.FaceEncoding
	if err := e.db.Where("face_id = ?", faceID).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]ScoredEncoding, 0, len(rows))
	for _, row := range rows {
		scored := ScoredEncoding{
			EncodingID:   row.ID,
			QualityScore: row.QualityScore,
			Confidence:   row.Confidence,
			Thumbnail:    row.Thumbnail,
		}
		if row.ID == primary.ID {
			scored.Similarity = 1
			scored.Classification = "primary"
		} else {
			vec, err := DecodeVector(row.Encoding)
			if err != nil {
				continue
			}
			sim := CosineSimilarity(ref, vec)
			scored.Similarity = sim
			switch {
			case sim >= 0.75:
				scored.Classification = "good"
			case sim >= threshold:
				scored.Classification = "acceptable"
			default:
				scored.Classification = "poor"
			}
		}
		out = append(out, scored)
	}

	sort.Slice(out, func(i, j int) bool {
		if (out[i].Classification == "primary") != (out[j].Classification == "primary") {
			return out[i].Classification == "primary"
		}
		return out[i].Similarity > out[j].Similarity
	})
	return out, nil
}

// DuplicateSuggestion flags one encoding as redundant within its face.
type DuplicateSuggestion struct {
	EncodingID uint32  `json:"encoding_id"`
	KeepID     uint32  `json:"keep_encoding_id"`
	Similarity float64 `json:"similarity"`
	Reason     string  `json:"reason"`
}

// DuplicateAnalysis groups a face's encodings by near-identity cosine and
// suggests deleting all but the highest-quality member of each group.
func (e *Engine) DuplicateAnalysis(faceID uint32) ([]DuplicateSuggestion, error) {
	var rows []database.FaceEncoding
	if err := e.db.Where("face_id = ?", faceID).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, nil
	}

	vectors := make([][]float32, len(rows))
	for i, row := range rows {
		v, err := DecodeVector(row.Encoding)
		if err != nil {
			continue
		}
		vectors[i] = v
	}

	assigned := make([]bool, len(rows))
	var suggestions []DuplicateSuggestion
	for i := range rows {
		if assigned[i] || vectors[i] == nil {
			continue
		}
		group := []int{i}
		for j := i + 1; j < len(rows); j++ {
			if assigned[j] || vectors[j] == nil {
				continue
			}
			if CosineSimilarity(vectors[i], vectors[j]) >= e.Thresholds.DuplicateEnc {
				group = append(group, j)
				assigned[j] = true
			}
		}
		if len(group) < 2 {
			continue
		}

		keep := group[0]
		for _, idx := range group[1:] {
			if rows[idx].QualityScore > rows[keep].QualityScore {
				keep = idx
			}
		}
		for _, idx := range group {
			if idx == keep {
				continue
			}
			suggestions = append(suggestions, DuplicateSuggestion{
				EncodingID: rows[idx].ID,
				KeepID:     rows[keep].ID,
				Similarity: CosineSimilarity(vectors[keep], vectors[idx]),
				Reason: fmt.Sprintf("near-duplicate of encoding %d (quality %.2f vs %.2f)",
					rows[keep].ID, rows[keep].QualityScore, rows[idx].QualityScore),
			})
		}
	}
	return suggestions, nil
}

// SimilarFace is one member of a cross-face group.
type SimilarFace struct {
	FaceID     uint32  `json:"face_id"`
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
}

// GroupSimilarFaces groups all identities by pairwise cosine over their
// reference encodings. Groups of size >= 2, each member scored against
// the group's first face.
func (e *Engine) GroupSimilarFaces(threshold float64) ([][]SimilarFace, error) {
	if threshold <= 0 {
		threshold = e.Thresholds.Grouping
	}

	var faces []database.Face
	if err := e.db.Order("id").Find(&faces).Error; err != nil {
		return nil, err
	}

	type refFace struct {
		face database.Face
		vec  []float32
	}
	refs := make([]refFace, 0, len(faces))
	for _, face := range faces {
		f := face
		primary, err := e.PrimaryEncoding(&f)
		if err != nil {
			return nil, err
		}
		if primary == nil {
			continue
		}
		vec, err := DecodeVector(primary.Encoding)
		if err != nil {
			continue
		}
		refs = append(refs, refFace{face: f, vec: vec})
	}
	if len(refs) < 2 {
		return nil, nil
	}

	assigned := make([]bool, len(refs))
	var groups [][]SimilarFace
	for i := range refs {
		if assigned[i] {
			continue
		}
		group := []SimilarFace{{FaceID: refs[i].face.ID, Name: refs[i].face.Name, Similarity: 1}}
		for j := i + 1; j < len(refs); j++ {
			if assigned[j] {
				continue
			}
			sim := CosineSimilarity(refs[i].vec, refs[j].vec)
			if sim > threshold {
				group = append(group, SimilarFace{
					FaceID:     refs[j].face.ID,
					Name:       refs[j].face.Name,
					Similarity: sim,
				})
				assigned[j] = true
			}
		}
		if len(group) >= 2 {
			groups = append(groups, group)
		}
	}
	return groups, nil
}

// Compare returns the full pairwise similarity matrix for the given
// faces, using each face's reference encoding.
func (e *Engine) Compare(faceIDs []uint32) (map[string]float64, error) {
	vectors := make(map[uint32][]float32, len(faceIDs))
	for _, id := range faceIDs {
		face, err := e.GetFace(id)
		if err != nil {
			return nil, err
		}
		primary, err := e.PrimaryEncoding(face)
		if err != nil {
			return nil, err
		}
		if primary == nil {
			continue
		}
		if vec, err := DecodeVector(primary.Encoding); err == nil {
			vectors[id] = vec
		}
	}

	matrix := make(map[string]float64)
	for i, a := range faceIDs {
		for _, b := range faceIDs[i+1:] {
			va, okA := vectors[a]
			vb, okB := vectors[b]
			sim := 0.0
			if okA && okB {
				sim = CosineSimilarity(va, vb)
			}
			matrix[fmt.Sprintf("%d-%d", a, b)] = sim
		}
	}
	return matrix, nil
}

// Merge consolidates source faces into the first id of the list: all
// encodings reparent to the target, video links are rewritten (summing
// appearance counts on collision), and the sources are deleted.
func (e *Engine) Merge(faceIDs []uint32, newName string, newActorID *uint32) (*database.Face, error) {
	if len(faceIDs) < 2 {
		return nil, fmt.Errorf("merge requires at least two face ids")
	}
	targetID := faceIDs[0]

	err := e.db.Transaction(func(tx *gorm.DB) error {
		var target database.Face
		if err := tx.First(&target, targetID).Error; err != nil {
			return err
		}

		for _, srcID := range faceIDs[1:] {
			if srcID == targetID {
				continue
			}
			var src database.Face
			if err := tx.First(&src, srcID).Error; err != nil {
				return err
			}

			if err := tx.Model(&database.FaceEncoding{}).
				Where("face_id = ?", srcID).
				Update("face_id", targetID).Error; err != nil {
				return err
			}

			var srcLinks []database.VideoFace
			if err := tx.Where("face_id = ?", srcID).Find(&srcLinks).Error; err != nil {
				return err
			}
			for _, link := range srcLinks {
				var existing database.VideoFace
				err := tx.Where("media_item_id = ? AND face_id = ?", link.MediaItemID, targetID).
					First(&existing).Error
				switch err {
				case nil:
					if err := tx.Model(&database.VideoFace{}).Where("id = ?", existing.ID).
						UpdateColumn("appearance_count",
							gorm.Expr("appearance_count + ?", link.AppearanceCount)).Error; err != nil {
						return err
					}
					if err := tx.Delete(&database.VideoFace{}, link.ID).Error; err != nil {
						return err
					}
				case gorm.ErrRecordNotFound:
					if err := tx.Model(&database.VideoFace{}).Where("id = ?", link.ID).
						Update("face_id", targetID).Error; err != nil {
						return err
					}
				default:
					return err
				}
			}

			if err := tx.Delete(&database.Face{}, srcID).Error; err != nil {
				return err
			}
		}

		updates := map[string]interface{}{}
		if newName != "" {
			updates["name"] = newName
		}
		if newActorID != nil {
			updates["actor_id"] = *newActorID
		}
		var count int64
		if err := tx.Model(&database.FaceEncoding{}).
			Where("face_id = ?", targetID).Count(&count).Error; err != nil {
			return err
		}
		updates["encoding_count"] = count
		return tx.Model(&database.Face{}).Where("id = ?", targetID).
			Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return e.GetFace(targetID)
}

// DeleteEncoding removes one encoding. If it was the primary, the
// next-best encoding by quality then confidence is auto-promoted; with
// none left the face survives as an encoding-less label.
func (e *Engine) DeleteEncoding(faceID, encodingID uint32) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		var enc database.FaceEncoding
		if err := tx.Where("id = ? AND face_id = ?", encodingID, faceID).
			First(&enc).Error; err != nil {
			return err
		}
		if err := tx.Delete(&database.FaceEncoding{}, enc.ID).Error; err != nil {
			return err
		}
		if err := tx.Model(&database.Face{}).Where("id = ?", faceID).
			UpdateColumn("encoding_count", gorm.Expr("encoding_count - 1")).Error; err != nil {
			return err
		}

		var face database.Face
		if err := tx.First(&face, faceID).Error; err != nil {
			return err
		}
		if face.PrimaryEncodingID == nil || *face.PrimaryEncodingID != encodingID {
			return nil
		}

		var next database.FaceEncoding
		err := tx.Where("face_id = ?", faceID).
			Order("quality_score DESC, confidence DESC").
			First(&next).Error
		switch err {
		case nil:
			return tx.Model(&database.Face{}).Where("id = ?", faceID).
				Update("primary_encoding_id", next.ID).Error
		case gorm.ErrRecordNotFound:
			return tx.Model(&database.Face{}).Where("id = ?", faceID).
				Update("primary_encoding_id", nil).Error
		default:
			return err
		}
	})
}

// DeleteFace removes a face with its encodings and video links.
func (e *Engine) DeleteFace(faceID uint32) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("face_id = ?", faceID).Delete(&database.FaceEncoding{}).Error; err != nil {
			return err
		}
		if err := tx.Where("face_id = ?", faceID).Delete(&database.VideoFace{}).Error; err != nil {
			return err
		}
		return tx.Delete(&database.Face{}, faceID).Error
	})
}

// CleanupOrphans deletes faces with zero encodings AND zero video links.
// Either alone is not enough: an encoding-less face that still labels
// videos stays.
func (e *Engine) CleanupOrphans() (int, error) {
	var orphanIDs []uint32
	err := e.db.Model(&database.Face{}).
		Where("NOT EXISTS (SELECT 1 FROM face_encodings WHERE face_encodings.face_id = faces.id)").
		Where("NOT EXISTS (SELECT 1 FROM video_faces WHERE video_faces.face_id = faces.id)").
		Pluck("id", &orphanIDs).Error
	if err != nil {
		return 0, err
	}
	if len(orphanIDs) == 0 {
		return 0, nil
	}
	if err := e.db.Delete(&database.Face{}, orphanIDs).Error; err != nil {
		return 0, err
	}
	return len(orphanIDs), nil
}

// LinkVideoFace upserts a video-to-face link: new links start at
// appearance_count=1 with the originating method; existing links
// increment.
func (e *Engine) LinkVideoFace(mediaItemID, faceID uint32, method string) error {
	return linkVideoFaceTx(e.db, mediaItemID, faceID, method)
}

func linkVideoFaceTx(tx *gorm.DB, mediaItemID, faceID uint32, method string) error {
	var existing database.VideoFace
	err := tx.Where("media_item_id = ? AND face_id = ?", mediaItemID, faceID).
		First(&existing).Error
	switch err {
	case nil:
		return tx.Model(&database.VideoFace{}).Where("id = ?", existing.ID).
			UpdateColumn("appearance_count", gorm.Expr("appearance_count + 1")).Error
	case gorm.ErrRecordNotFound:
		return tx.Create(&database.VideoFace{
			MediaItemID:     mediaItemID,
			FaceID:          faceID,
			FirstDetectedAt: time.Now(),
			DetectionMethod: method,
			AppearanceCount: 1,
		}).Error
	default:
		return err
	}
}

// UnlinkVideoFace removes a video-to-face link.
func (e *Engine) UnlinkVideoFace(mediaItemID, faceID uint32) error {
	return e.db.Where("media_item_id = ? AND face_id = ?", mediaItemID, faceID).
		Delete(&database.VideoFace{}).Error
}

// MediaForFace lists the media items linked to a face, filtered by type.
func (e *Engine) MediaForFace(faceID uint32, mediaType database.MediaType) ([]database.MediaItem, error) {
	var items []database.MediaItem
	err := e.db.
		Joins("JOIN video_faces ON video_faces.media_item_id = media_items.id").
		Where("video_faces.face_id = ?", faceID).
		Where("media_items.media_type = ?", mediaType).
		Order("media_items.modified DESC").
		Find(&items).Error
	return items, err
}

// CatalogEntry is one face in the catalog listing.
type CatalogEntry struct {
	database.Face
	ActorName  string `json:"actor_name,omitempty"`
	VideoCount int64  `json:"video_count"`
	Thumbnail  string `json:"thumbnail,omitempty"`
}

// Catalog lists faces with link counts and reference thumbnails,
// optionally filtered by name substring or actor.
func (e *Engine) Catalog(query string, actorID uint32) ([]CatalogEntry, error) {
	q := e.db.Model(&database.Face{}).Order("name")
	if query != "" {
		q = q.Where("name LIKE ?", "%"+query+"%")
	}
	if actorID != 0 {
		q = q.Where("actor_id = ?", actorID)
	}
	var faces []database.Face
	if err := q.Find(&faces).Error; err != nil {
		return nil, err
	}

	actorNames, err := e.actorNamesFor(faces)
	if err != nil {
		return nil, err
	}

	out := make([]CatalogEntry, 0, len(faces))
	for _, face := range faces {
		f := face
		entry := CatalogEntry{Face: f}
		if f.ActorID != nil {
			entry.ActorName = actorNames[*f.ActorID]
		}
		if err := e.db.Model(&database.VideoFace{}).
			Where("face_id = ?", f.ID).Count(&entry.VideoCount).Error; err != nil {
			return nil, err
		}
		if primary, err := e.PrimaryEncoding(&f); err == nil && primary != nil {
			entry.Thumbnail = primary.Thumbnail
		}
		out = append(out, entry)
	}
	return out, nil
}

// Stats summarizes the face catalog.
func (e *Engine) Stats() (map[string]int64, error) {
	stats := make(map[string]int64)
	counts := []struct {
		key   string
		model interface{}
	}{
		{"faces", &database.Face{}},
		{"encodings", &database.FaceEncoding{}},
		{"video_links", &database.VideoFace{}},
	}
	for _, c := range counts {
		var n int64
		if err := e.db.Model(c.model).Count(&n).Error; err != nil {
			return nil, err
		}
		stats[c.key] = n
	}

	var linked int64
	if err := e.db.Model(&database.Face{}).
		Where("actor_id IS NOT NULL").Count(&linked).Error; err != nil {
		return nil, err
	}
	stats["faces_with_actor"] = linked
	return stats, nil
}
