package records

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLegacyMigration(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "bare map",
			doc:  `{"1":{"id":1,"url":"https://p.example/video.php?id=1","status":"done","name":"One","path":"./One.1.ts"},"2":{"id":2,"status":"in_progress"},"3":{"status":"todo"}}`,
		},
		{
			name: "data section",
			doc:  `{"data":{"1":{"id":1,"url":"https://p.example/video.php?id=1","status":"done","name":"One","path":"./One.1.ts"},"2":{"id":2,"status":"in_progress"},"3":{"status":"todo"}}}`,
		},
		{
			name: "list",
			doc:  `[{"id":1,"url":"https://p.example/video.php?id=1","status":"done","name":"One","path":"./One.1.ts"},{"id":2,"status":"in_progress"},{"id":3,"status":"todo"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "videos.json")
			if err := os.WriteFile(path, []byte(tt.doc), 0o644); err != nil {
				t.Fatal(err)
			}
			store, err := Open(path, nil)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}

			one, ok := store.Get(1)
			if !ok || one.DownloadStatus != DownloadDone || one.SourceURL != "https://p.example/video.php?id=1" || one.Path != "./One.1.ts" {
				t.Fatalf("unexpected record 1: %+v", one)
			}
			if two, _ := store.Get(2); two.DownloadStatus != DownloadRepeat {
				t.Fatalf("in_progress should become repeat, got %q", two.DownloadStatus)
			}
			if three, _ := store.Get(3); three.DownloadStatus != DownloadInit || three.ID != 3 {
				t.Fatalf("todo should become init, got %+v", three)
			}

			raw, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			version, err := Version(raw)
			if err != nil {
				t.Fatalf("Version: %v", err)
			}
			if version != CurrentVersion {
				t.Fatalf("expected migrated file at version %s, got %s", CurrentVersion, version)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: ``, want: "1"},
		{raw: `[]`, want: "1"},
		{raw: `{"1":{}}`, want: "1"},
		{raw: `{"version":"2","data":{}}`, want: "2"},
	}
	for _, tt := range tests {
		got, err := Version([]byte(tt.raw))
		if err != nil {
			t.Fatalf("Version(%q): %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("Version(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestFixPaths(t *testing.T) {
	store := openTestStore(t)
	for _, rec := range []Record{
		{ID: 1, Path: "/old/downloads/A.1.ts"},
		{ID: 2, Path: "./B.2.ts"},
		{ID: 3},
		{ID: 4, Path: "nested/dir/C.4.mp4"},
	} {
		if err := store.Set(rec, true); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	changed, err := store.FixPaths()
	if err != nil {
		t.Fatalf("FixPaths: %v", err)
	}
	if changed != 2 {
		t.Fatalf("expected 2 changes, got %d", changed)
	}

	reopened, err := Open(store.Path(), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	want := map[int64]string{1: "./A.1.ts", 2: "./B.2.ts", 3: "", 4: "./C.4.mp4"}
	for id, path := range want {
		rec, _ := reopened.Get(id)
		if rec.Path != path {
			t.Fatalf("record %d path = %q, want %q", id, rec.Path, path)
		}
	}
}

func TestValidateRecord(t *testing.T) {
	good := sampleRecord(3)
	if err := Validate(good); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	bad := good
	bad.DownloadStatus = "sideways"
	if err := Validate(bad); err == nil {
		t.Fatal("expected unknown status to fail validation")
	}
	bad = good
	bad.SourceURL = "not a url"
	if err := Validate(bad); err == nil {
		t.Fatal("expected malformed url to fail validation")
	}
}
