// Package playbackmodule is the byte-range stream server for media files
// under the active root.
package playbackmodule

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/clipperhq/clipper/internal/config"
	"github.com/clipperhq/clipper/internal/modules/modulemanager"
	"github.com/clipperhq/clipper/internal/modules/rootmodule"
	"github.com/clipperhq/clipper/internal/modules/scannermodule"
	"github.com/clipperhq/clipper/internal/utils"
)

func init() {
	Register()
}

const (
	ModuleID   = "system.playback"
	ModuleName = "Stream Server"

	// streamChunkSize is the copy buffer for 206 responses.
	streamChunkSize = 512 * 1024
)

// Module serves media bytes over HTTP with range support.
type Module struct {
	logger hclog.Logger
}

// Register registers the playback module with the module system.
func Register() {
	modulemanager.Register(&Module{})
}

func (m *Module) ID() string   { return ModuleID }
func (m *Module) Name() string { return ModuleName }
func (m *Module) Core() bool   { return false }

func (m *Module) Migrate(db *gorm.DB) error { return nil }

func (m *Module) Init() error {
	m.logger = hclog.New(&hclog.LoggerOptions{
		Name:  "stream",
		Level: hclog.Info,
	})
	return nil
}

// RegisterRoutes wires the stream endpoint, plus direct subtree serving
// in local mode.
func (m *Module) RegisterRoutes(router *gin.Engine) {
	router.GET("/stream/:category/*relative", m.stream)

	if config.Get().LocalMode {
		router.GET("/local/*relative", m.serveLocal)
	}
}

// resolve maps (category, relative) onto the active root with a
// traversal guard; "_root" addresses files directly under the root.
func resolve(root, category, relative string) (string, error) {
	relative = strings.TrimPrefix(relative, "/")

	base := filepath.Join(root, category)
	if category == scannermodule.RootCategory {
		base = root
	}

	path := filepath.Join(base, filepath.FromSlash(relative))
	if !utils.IsPathInside(root, path) {
		return "", fmt.Errorf("path escapes root")
	}
	return path, nil
}

func (m *Module) stream(c *gin.Context) {
	root := rootmodule.GetManager().CurrentPath()
	if root == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no active root"})
		return
	}

	path, err := resolve(root, c.Param("category"), c.Param("relative"))
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	m.serveFile(c, path)
}

func (m *Module) serveLocal(c *gin.Context) {
	root := rootmodule.GetManager().CurrentPath()
	if root == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no active root"})
		return
	}

	path := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(c.Param("relative"), "/")))
	if !utils.IsPathInside(root, path) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	m.serveFile(c, path)
}

// serveFile implements the range contract: 200 with Accept-Ranges for
// full requests, 206 with chunked copy for ranges, 416 when out of
// bounds.
func (m *Module) serveFile(c *gin.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	size := info.Size()

	httpRange, err := utils.ParseRangeHeader(c.GetHeader("Range"), size)
	if err != nil {
		c.Header("Content-Range", fmt.Sprintf("bytes */%d", size))
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot open file"})
		return
	}
	defer f.Close()

	contentType := utils.GetContentType(path)
	c.Header("Accept-Ranges", "bytes")
	c.Header("Cache-Control", "public, max-age=3600")
	c.Header("Content-Type", contentType)

	if httpRange == nil {
		c.Header("Content-Length", strconv.FormatInt(size, 10))
		c.Status(http.StatusOK)
		copyChunks(c, f, size)
		return
	}

	if _, err := f.Seek(httpRange.Start, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "seek failed"})
		return
	}

	c.Header("Content-Range", utils.FormatContentRange(httpRange.Start, httpRange.End, size))
	c.Header("Content-Length", strconv.FormatInt(httpRange.Length, 10))
	c.Status(http.StatusPartialContent)
	copyChunks(c, f, httpRange.Length)
}

func copyChunks(c *gin.Context, r io.Reader, n int64) {
	buf := make([]byte, streamChunkSize)
	remaining := n
	for remaining > 0 {
		chunk := int64(len(buf))
		if remaining < chunk {
			chunk = remaining
		}
		read, err := r.Read(buf[:chunk])
		if read > 0 {
			if _, werr := c.Writer.Write(buf[:read]); werr != nil {
				// Client hung up; nothing further to do.
				return
			}
			remaining -= int64(read)
		}
		if err != nil {
			return
		}
	}
}
