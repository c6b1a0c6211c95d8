package converter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reeler/internal/config"
	"reeler/internal/fileutil"
)

// resolveSource maps a record path onto the filesystem. Relative paths are
// anchored at the downloads directory.
func resolveSource(downloadsDir, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	native := filepath.FromSlash(path)
	if filepath.IsAbs(native) {
		return filepath.Clean(native)
	}
	return filepath.Join(downloadsDir, native)
}

// recordPath is the inverse of resolveSource: "./name" for files inside the
// downloads directory, the absolute path otherwise.
func recordPath(downloadsDir, path string) string {
	rel, err := filepath.Rel(downloadsDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return "./" + filepath.ToSlash(rel)
}

// targetFor swaps the source extension for ext. A source that already has
// ext gets the encoder name appended to its stem.
func targetFor(source, ext, encoder string) string {
	dir := filepath.Dir(source)
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	target := filepath.Join(dir, stem+ext)
	if target == source {
		target = filepath.Join(dir, stem+"-"+encoder+ext)
	}
	return target
}

// setAside renames an existing file at path to <stem>.<unix-ms><ext> and
// returns the new name. It returns "" when nothing was there.
func setAside(path string, now time.Time) (string, error) {
	if !fileutil.Exists(path) {
		return "", nil
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	moved := fmt.Sprintf("%s.%d%s", stem, now.UnixMilli(), ext)
	if err := os.Rename(path, moved); err != nil {
		return "", err
	}
	return moved, nil
}

// dispose applies the drop policy to a converted original and returns where
// it ended up ("" when deleted).
func dispose(cfg *config.Config, source string, now time.Time) (string, error) {
	switch cfg.Converter.DropPolicy {
	case config.DropPolicyKeep:
		return source, nil
	case config.DropPolicyRename:
		dropped := fmt.Sprintf("%s.dropped-%d", source, now.UnixMilli())
		return dropped, os.Rename(source, dropped)
	case config.DropPolicyMove:
		dst := filepath.Join(cfg.Paths.DropDir, filepath.Base(source))
		return dst, fileutil.MoveFile(source, dst)
	default:
		if err := os.Remove(source); err != nil && !os.IsNotExist(err) {
			return source, err
		}
		return "", nil
	}
}
