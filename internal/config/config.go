// Package config holds clipper's startup configuration. Everything is
// sourced from CLIPPER_* environment variables with sensible defaults,
// plus the roots.json file describing the configured media roots.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Config is the process-wide configuration.
type Config struct {
	Host string
	Port int

	Debug  bool
	Reload bool

	// Folder names skipped during scans, in addition to dot-folders.
	ExcludedFolders []string

	CORSOrigins []string

	// Fallback root when roots.json is absent.
	RootDirectory string

	// Overrides the default <root>/.clipper/clipper.db catalog path.
	DBPath string

	// Allows direct filesystem URL serving of category subtrees.
	LocalMode bool

	// Enables the fsnotify watcher on the active root.
	Watch bool

	// External face embedder command (image path in, JSON out).
	FaceEmbedderCmd string

	// Directory holding roots.json; defaults to the working directory.
	AppDir string
}

// RootEntry is one configured media root in roots.json.
type RootEntry struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Default bool   `json:"default"`
	Layout  string `json:"layout,omitempty"`
}

// RootsFile mirrors the on-disk roots.json document.
type RootsFile struct {
	Roots            []RootEntry `json:"roots"`
	RememberLastRoot bool        `json:"rememberLastRoot"`
}

var (
	current *Config
	mu      sync.RWMutex
)

// Load populates the global configuration from the environment.
func Load() error {
	cfg := &Config{
		Host:            envString("CLIPPER_HOST", "0.0.0.0"),
		Port:            envInt("CLIPPER_PORT", 8000),
		Debug:           envBool("CLIPPER_DEBUG", false),
		Reload:          envBool("CLIPPER_RELOAD", false),
		RootDirectory:   os.Getenv("CLIPPER_ROOT_DIRECTORY"),
		DBPath:          os.Getenv("CLIPPER_DB_PATH"),
		LocalMode:       envBool("CLIPPER_LOCAL_MODE", false),
		Watch:           envBool("CLIPPER_WATCH", true),
		FaceEmbedderCmd: os.Getenv("CLIPPER_FACE_EMBEDDER"),
		AppDir:          envString("CLIPPER_APP_DIR", "."),
	}

	excluded := envString("CLIPPER_EXCLUDED_FOLDERS", "Temp,.DS_Store,.clipper,@eaDir")
	for _, name := range strings.Split(excluded, ",") {
		if name = strings.TrimSpace(name); name != "" {
			cfg.ExcludedFolders = append(cfg.ExcludedFolders, name)
		}
	}

	if origins := os.Getenv("CLIPPER_CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid CLIPPER_PORT: %d", cfg.Port)
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return nil
}

// Get returns the loaded configuration. Load must have been called.
func Get() *Config {
	mu.RLock()
	c := current
	mu.RUnlock()
	if c == nil {
		// Tests frequently skip Load; fall back to defaults.
		_ = Load()
		mu.RLock()
		c = current
		mu.RUnlock()
	}
	return c
}

// RootsPath returns the location of roots.json.
func (c *Config) RootsPath() string {
	return filepath.Join(c.AppDir, "roots.json")
}

// LoadRoots reads roots.json. When the file is absent and
// CLIPPER_ROOT_DIRECTORY is set, a synthetic single-root file is returned.
func (c *Config) LoadRoots() (*RootsFile, error) {
	data, err := os.ReadFile(c.RootsPath())
	if err != nil {
		if os.IsNotExist(err) && c.RootDirectory != "" {
			return &RootsFile{
				Roots: []RootEntry{{Name: "default", Path: c.RootDirectory, Default: true}},
			}, nil
		}
		return nil, fmt.Errorf("read roots.json: %w", err)
	}

	var rf RootsFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse roots.json: %w", err)
	}
	if len(rf.Roots) == 0 {
		return nil, fmt.Errorf("roots.json contains no roots")
	}
	return &rf, nil
}

// IsExcluded reports whether a folder name is skipped during scans.
func (c *Config) IsExcluded(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, ex := range c.ExcludedFolders {
		if name == ex {
			return true
		}
	}
	return false
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}
