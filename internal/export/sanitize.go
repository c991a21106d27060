package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// MovieExtensions are the container suffixes an export path may carry.
var MovieExtensions = map[string]bool{
	".mov": true,
	".mp4": true,
	".m4v": true,
}

// SanitizeName strips control characters, replaces anything outside a
// conservative filename alphabet with '_' and truncates to maxLen runes.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("output_dir is required")
	}
	if hasTraversal(dir) {
		return fmt.Errorf("output_dir cannot contain path traversal")
	}
	if filepath.Clean(dir) != dir {
		return fmt.Errorf("output_dir must be clean path")
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("output_dir does not exist")
		}
		return fmt.Errorf("invalid output_dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output_dir is not a directory")
	}
	return nil
}

// ValidateOutputPath checks a movie destination: absolute, clean, a known
// movie extension, an existing parent directory and not itself a directory.
// An existing regular file is fine; the export replaces it.
func ValidateOutputPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("output_path is required")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("output_path must be absolute")
	}
	if hasTraversal(path) {
		return fmt.Errorf("output_path cannot contain path traversal")
	}
	if filepath.Clean(path) != path {
		return fmt.Errorf("output_path must be clean path")
	}
	if !MovieExtensions[strings.ToLower(filepath.Ext(path))] {
		return fmt.Errorf("output_path must end in .mov, .mp4 or .m4v")
	}
	if err := ValidateOutputDir(filepath.Dir(path)); err != nil {
		return err
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return fmt.Errorf("output_path is a directory")
	}
	return nil
}

func hasTraversal(p string) bool {
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
