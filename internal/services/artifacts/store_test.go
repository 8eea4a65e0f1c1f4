package artifacts

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := New(filepath.Join(root, "uploads"), filepath.Join(root, "results"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAllowedFile(t *testing.T) {
	for name, want := range map[string]bool{
		"match.mp4": true, "MATCH.MOV": true, "a.webm": true, "b.mkv": true, "c.avi": true,
		"notes.txt": false, "noext": false, "video.mp4.exe": false,
	} {
		if got := AllowedFile(name); got != want {
			t.Errorf("AllowedFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestSaveUpload(t *testing.T) {
	s := newStore(t)

	path, size, err := s.SaveUpload("../../etc/final match.mp4", strings.NewReader("abcdef"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if size != 6 {
		t.Errorf("size = %d", size)
	}
	if filepath.Dir(path) != s.UploadDir() {
		t.Errorf("upload escaped directory: %s", path)
	}
	if !regexp.MustCompile(`^final match_[0-9a-f]{8}\.mp4$`).MatchString(filepath.Base(path)) {
		t.Errorf("unexpected name %s", filepath.Base(path))
	}

	entries, _ := os.ReadDir(s.UploadDir())
	if len(entries) != 1 {
		t.Errorf("temp files left: %v", entries)
	}
}

func TestSaveUploadRejects(t *testing.T) {
	s := newStore(t)
	if _, _, err := s.SaveUpload("doc.pdf", strings.NewReader("x"), 0); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("pdf: %v", err)
	}
	if _, _, err := s.SaveUpload("big.mp4", strings.NewReader("0123456789"), 4); !errors.Is(err, ErrTooLarge) {
		t.Errorf("oversized: %v", err)
	}
	if entries, _ := os.ReadDir(s.UploadDir()); len(entries) != 0 {
		t.Errorf("rejected uploads left files: %v", entries)
	}
}

func TestListHidesTempFiles(t *testing.T) {
	s := newStore(t)
	write(t, s.UploadDir(), "clip_1.mp4", "u")
	write(t, s.ResultsDir(), "processed_clip_1.mp4", "vv")
	write(t, s.ResultsDir(), "processed_clip_1.json", "{}")
	write(t, s.ResultsDir(), ".partial-abc-processed_clip_2.mp4", "x")

	files, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("files = %+v", files)
	}
	if files[0].Type != KindUpload || files[0].Path != "/download/clip_1.mp4" {
		t.Errorf("first = %+v", files[0])
	}
	for _, f := range files {
		if strings.HasPrefix(f.Name, ".") {
			t.Errorf("hidden file listed: %s", f.Name)
		}
	}

	uploads, results := s.Counts()
	if uploads != 1 || results != 1 {
		t.Errorf("counts = %d, %d", uploads, results)
	}
}

func TestResolvePrefersResults(t *testing.T) {
	s := newStore(t)
	write(t, s.UploadDir(), "same.mp4", "upload")
	write(t, s.ResultsDir(), "same.mp4", "result")

	path, kind, err := s.Resolve("same.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if kind != KindResult || filepath.Dir(path) != s.ResultsDir() {
		t.Errorf("resolved %s (%s)", path, kind)
	}
	if _, _, err := s.Resolve("missing.mp4"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: %v", err)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	s := newStore(t)
	for _, name := range []string{"../secret", "a/b.mp4", `a\b.mp4`, "..", ".partial-x.mp4", ""} {
		if _, _, err := s.Resolve(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Resolve(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	write(t, s.UploadDir(), "clip.mp4", "u")

	kind, err := s.Delete("clip.mp4")
	if err != nil || kind != KindUpload {
		t.Fatalf("delete: %s %v", kind, err)
	}
	if _, err := s.Delete("clip.mp4"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestContentType(t *testing.T) {
	for name, want := range map[string]string{
		"a.mp4": "video/mp4", "a.JSON": "application/json", "a.jpeg": "image/jpeg",
		"a.png": "image/png", "a.avi": "application/octet-stream",
	} {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %q", name, got)
		}
	}
}
