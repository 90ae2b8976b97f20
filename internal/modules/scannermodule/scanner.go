package scannermodule

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/clipperhq/clipper/internal/config"
	"github.com/clipperhq/clipper/internal/database"
	"github.com/clipperhq/clipper/internal/utils"
)

// RootCategory is the virtual category for files directly under the root.
const RootCategory = "_root"

// FileInfo is one media file found on disk. Scanning is a pure function
// of disk state: nothing here touches the catalog.
type FileInfo struct {
	Path         string             `json:"path"`
	Name         string             `json:"name"`
	Size         int64              `json:"size"`
	Modified     time.Time          `json:"modified"`
	Extension    string             `json:"extension"`
	MediaType    database.MediaType `json:"media_type"`
	Category     string             `json:"category"`
	Subcategory  *string            `json:"subcategory"`
	RelativePath string             `json:"relative_path"`
	Breadcrumbs  []string           `json:"breadcrumbs"`
}

// CategoryInfo summarizes one top-level folder of the root.
type CategoryInfo struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	FileCount  int    `json:"file_count"`
	HasSubdirs bool   `json:"has_subdirs"`
}

// SubfolderPreview is a shallow listing of one immediate subfolder, used
// by the hierarchical scan mode for lazy expansion.
type SubfolderPreview struct {
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	FileCount  int        `json:"file_count"`
	HasSubdirs bool       `json:"has_subdirs"`
	Preview    []FileInfo `json:"preview"`
}

// HierarchicalListing is the direct files of a category plus its
// immediate subfolders with previews.
type HierarchicalListing struct {
	Category   string             `json:"category"`
	Files      []FileInfo         `json:"files"`
	Subfolders []SubfolderPreview `json:"subfolders"`
}

// Scanner walks a root directory and classifies media files.
type Scanner struct {
	root string
	cfg  *config.Config
}

// NewScanner creates a scanner over the given root.
func NewScanner(root string) *Scanner {
	return &Scanner{root: root, cfg: config.Get()}
}

// classify stats a file and builds its descriptor, or returns false for
// non-media files.
func (s *Scanner) classify(path, category string, info os.FileInfo) (FileInfo, bool) {
	mediaType, ok := utils.MediaTypeForPath(path)
	if !ok {
		return FileInfo{}, false
	}

	categoryDir := filepath.Join(s.root, category)
	if category == RootCategory {
		categoryDir = s.root
	}
	rel, err := filepath.Rel(categoryDir, path)
	if err != nil {
		return FileInfo{}, false
	}

	fi := FileInfo{
		Path:         path,
		Name:         info.Name(),
		Size:         info.Size(),
		Modified:     info.ModTime(),
		Extension:    strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		MediaType:    database.MediaType(mediaType),
		Category:     category,
		RelativePath: rel,
	}

	if dir := filepath.Dir(rel); dir != "." {
		sub := filepath.ToSlash(dir)
		fi.Subcategory = &sub
		fi.Breadcrumbs = strings.Split(sub, "/")
	}
	return fi, true
}

// ScanCategory walks one category recursively, skipping excluded folders.
func (s *Scanner) ScanCategory(category string) ([]FileInfo, error) {
	base := filepath.Join(s.root, category)
	if category == RootCategory {
		return s.ScanCategoryDirect(category)
	}

	if _, err := os.Stat(base); err != nil {
		return nil, fmt.Errorf("category %s: %w", category, err)
	}

	var files []FileInfo
	err := filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		if info.IsDir() {
			if path != base && s.cfg.IsExcluded(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if fi, ok := s.classify(path, category, info); ok {
			files = append(files, fi)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// ScanCategoryDirect lists only the files in the category's own directory.
func (s *Scanner) ScanCategoryDirect(category string) ([]FileInfo, error) {
	base := filepath.Join(s.root, category)
	if category == RootCategory {
		base = s.root
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("category %s: %w", category, err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if fi, ok := s.classify(filepath.Join(base, entry.Name()), category, info); ok {
			files = append(files, fi)
		}
	}
	return files, nil
}

// ScanSubfolders returns direct files plus immediate subfolders with a
// shallow preview for lazy expansion in the UI.
func (s *Scanner) ScanSubfolders(category string, previewLimit int) (*HierarchicalListing, error) {
	if previewLimit <= 0 {
		previewLimit = 4
	}

	listing := &HierarchicalListing{Category: category}

	files, err := s.ScanCategoryDirect(category)
	if err != nil {
		return nil, err
	}
	listing.Files = files

	base := filepath.Join(s.root, category)
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() || s.cfg.IsExcluded(entry.Name()) {
			continue
		}
		sub := SubfolderPreview{
			Name: entry.Name(),
			Path: filepath.Join(base, entry.Name()),
		}

		subEntries, err := os.ReadDir(sub.Path)
		if err != nil {
			continue
		}
		for _, se := range subEntries {
			if se.IsDir() {
				if !s.cfg.IsExcluded(se.Name()) {
					sub.HasSubdirs = true
				}
				continue
			}
			info, err := se.Info()
			if err != nil {
				continue
			}
			if fi, ok := s.classify(filepath.Join(sub.Path, se.Name()), category, info); ok {
				sub.FileCount++
				if len(sub.Preview) < previewLimit {
					sub.Preview = append(sub.Preview, fi)
				}
			}
		}
		listing.Subfolders = append(listing.Subfolders, sub)
	}
	return listing, nil
}

// ScanStructure lists the top-level categories of the root with direct
// file counts.
func (s *Scanner) ScanStructure() ([]CategoryInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read root %s: %w", s.root, err)
	}

	var categories []CategoryInfo
	for _, entry := range entries {
		if !entry.IsDir() || s.cfg.IsExcluded(entry.Name()) {
			continue
		}
		ci := CategoryInfo{
			Name: entry.Name(),
			Path: filepath.Join(s.root, entry.Name()),
		}
		subEntries, err := os.ReadDir(ci.Path)
		if err == nil {
			for _, se := range subEntries {
				if se.IsDir() {
					if !s.cfg.IsExcluded(se.Name()) {
						ci.HasSubdirs = true
					}
					continue
				}
				if _, ok := utils.MediaTypeForPath(se.Name()); ok {
					ci.FileCount++
				}
			}
		}
		categories = append(categories, ci)
	}

	sort.Slice(categories, func(i, j int) bool {
		return strings.ToLower(categories[i].Name) < strings.ToLower(categories[j].Name)
	})
	return categories, nil
}
