// Package playback serves finished exports to the preview player and keeps
// the preview sessions that loop them.
package playback

import (
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/heimdex/heimdex-composer/internal/logging"
)

var movieTypes = map[string]string{
	".mov": "video/quicktime",
	".mp4": "video/mp4",
	".m4v": "video/x-m4v",
}

type PlaybackService interface {
	ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logging.WithComponent(logger, "playback")}
}

// ServeFile streams filePath with byte range support so players can seek.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		http.Error(w, "file not found", http.StatusNotFound)
		return nil
	}

	w.Header().Set("Content-Type", contentType(filePath))
	w.Header().Set("Accept-Ranges", "bytes")

	s.logger.Debug("serving file",
		"path", logging.SanitizePath(filePath),
		"size", stat.Size(),
		"range", r.Header.Get("Range"),
	)
	http.ServeContent(w, r, stat.Name(), stat.ModTime(), file)
	return nil
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := movieTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
