// Package webui serves the static blog and admin front-end from a directory.
package webui

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

// Bundle exposes front-end assets read from disk.
type Bundle struct {
	DistFS    fs.FS  // Root of the public directory.
	IndexHTML []byte // Raw index HTML content.
}

// Load opens dir and reads its index.html.
func Load(dir string) (Bundle, error) {
	info, errStat := os.Stat(dir)
	if errStat != nil {
		return Bundle{}, fmt.Errorf("webui: %w", errStat)
	}
	if !info.IsDir() {
		return Bundle{}, fmt.Errorf("webui: %s is not a directory", dir)
	}
	distFS := os.DirFS(dir)
	indexHTML, errRead := fs.ReadFile(distFS, "index.html")
	if errRead != nil {
		return Bundle{}, fmt.Errorf("webui: read index.html: %w", errRead)
	}
	return Bundle{DistFS: distFS, IndexHTML: indexHTML}, nil
}

// Register serves files from the bundle for unmatched GET and HEAD requests
// and falls back to index.html for client-side routes.
func Register(engine *gin.Engine, bundle Bundle) {
	fileServer := http.FileServer(http.FS(bundle.DistFS))
	engine.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusNotFound)
			return
		}
		requestPath := c.Request.URL.Path
		if IsAPIRoute(requestPath) {
			c.Status(http.StatusNotFound)
			return
		}
		cleanedPath := path.Clean("/" + requestPath)
		filePath := strings.TrimPrefix(cleanedPath, "/")
		if filePath != "" && filePath != "index.html" {
			fileInfo, errStat := fs.Stat(bundle.DistFS, filePath)
			if errStat == nil && !fileInfo.IsDir() {
				fileServer.ServeHTTP(c.Writer, c.Request)
				return
			}
			if strings.Contains(path.Base(filePath), ".") {
				c.Status(http.StatusNotFound)
				return
			}
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", bundle.IndexHTML)
	})
}

// IsAPIRoute reports whether a path targets API endpoints.
func IsAPIRoute(requestPath string) bool {
	for _, prefix := range []string{"/api", "/healthz", "/metrics"} {
		if requestPath == prefix || strings.HasPrefix(requestPath, prefix+"/") {
			return true
		}
	}
	return false
}
