package records

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"reeler/internal/services"
)

// legacyRecord is the unversioned layout written by the first generation of
// the downloader.
type legacyRecord struct {
	ID          int64  `json:"id"`
	URL         string `json:"url"`
	Status      string `json:"status"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	DownloadURL string `json:"downloadUrl"`
}

func (l legacyRecord) upgrade() Record {
	rec := Record{
		ID:          l.ID,
		Name:        l.Name,
		SourceURL:   l.URL,
		DownloadURL: l.DownloadURL,
		Path:        l.Path,
	}
	switch strings.ToLower(strings.TrimSpace(l.Status)) {
	case "done":
		rec.DownloadStatus = DownloadDone
	case "broken":
		rec.DownloadStatus = DownloadBroken
	case "in_progress":
		// The worker that held it is long gone; retry from scratch.
		rec.DownloadStatus = DownloadRepeat
	default:
		rec.DownloadStatus = DownloadInit
	}
	return rec
}

// migrateLegacy accepts either {"<id>": legacy} or {"data": {"<id>": legacy}}.
func migrateLegacy(doc map[string]json.RawMessage) (map[int64]Record, error) {
	entries := doc
	if nested, ok := doc["data"]; ok {
		entries = nil
		if err := json.Unmarshal(nested, &entries); err != nil {
			return nil, services.Wrap(services.ErrIO, "records", "migrate", "legacy data section", err)
		}
	}
	out := make(map[int64]Record, len(entries))
	for key, payload := range entries {
		var legacy legacyRecord
		if err := json.Unmarshal(payload, &legacy); err != nil {
			return nil, services.Wrap(services.ErrIO, "records", "migrate", fmt.Sprintf("legacy record %q", key), err)
		}
		if legacy.ID <= 0 {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil || id <= 0 {
				return nil, services.Wrap(services.ErrValidation, "records", "migrate", fmt.Sprintf("legacy record %q has no usable id", key), err)
			}
			legacy.ID = id
		}
		out[legacy.ID] = legacy.upgrade()
	}
	return out, nil
}

func migrateLegacyList(raw []byte) (map[int64]Record, error) {
	var list []legacyRecord
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, services.Wrap(services.ErrIO, "records", "migrate", "legacy list", err)
	}
	out := make(map[int64]Record, len(list))
	for i, legacy := range list {
		if legacy.ID <= 0 {
			return nil, services.Wrap(services.ErrValidation, "records", "migrate", fmt.Sprintf("legacy entry %d has no id", i), nil)
		}
		out[legacy.ID] = legacy.upgrade()
	}
	return out, nil
}

// Version reads only the version tag of a store file without loading it.
// Unversioned documents report "1".
func Version(raw []byte) (string, error) {
	trimmed := trimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] == '[' {
		return "1", nil
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return "", err
	}
	v, ok := probe["version"]
	if !ok {
		return "1", nil
	}
	var version string
	if err := json.Unmarshal(v, &version); err != nil {
		return "", err
	}
	return version, nil
}

// FixPaths rewrites every artifact path to "./<basename>" so the store stays
// valid after the downloads directory moves. It returns the number of records
// changed and saves once.
func (s *Store) FixPaths() (int, error) {
	if err := s.Reload(); err != nil {
		return 0, err
	}
	changed := 0
	s.mu.Lock()
	for id, rec := range s.data {
		if rec.Path == "" {
			continue
		}
		fixed := "./" + filepath.Base(filepath.FromSlash(rec.Path))
		if fixed != rec.Path {
			rec.Path = fixed
			s.data[id] = rec
			changed++
		}
	}
	s.mu.Unlock()
	if changed > 0 {
		if err := s.persist(); err != nil {
			return 0, services.Wrap(services.ErrIO, "records", "fix paths", s.path, err)
		}
	}
	return changed, nil
}
