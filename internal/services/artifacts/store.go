package artifacts

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound          = errors.New("file not found")
	ErrInvalidName       = errors.New("invalid file name")
	ErrUnsupportedFormat = errors.New("unsupported video format")
	ErrTooLarge          = errors.New("upload exceeds size limit")
)

// AllowedExtensions are the accepted upload containers, lower case without dot
var AllowedExtensions = []string{"mp4", "avi", "mov", "mkv", "webm"}

type Kind string

const (
	KindUpload Kind = "upload"
	KindResult Kind = "result"
)

type File struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type Kind   `json:"type"`
	Path string `json:"path"`
}

// Store manages the upload and results directories. Names starting with a
// dot are in-progress files and are never listed or served.
type Store struct {
	uploads string
	results string
}

func New(uploads, results string) (*Store, error) {
	for _, dir := range []string{uploads, results} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &Store{uploads: uploads, results: results}, nil
}

func (s *Store) UploadDir() string  { return s.uploads }
func (s *Store) ResultsDir() string { return s.results }

// AllowedFile reports whether the extension is an accepted video container
func AllowedFile(filename string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// SaveUpload stores r under <stem>_<id><ext> and returns the path and size.
// maxBytes <= 0 disables the limit.
func (s *Store) SaveUpload(filename string, r io.Reader, maxBytes int64) (string, int64, error) {
	if !AllowedFile(filename) {
		return "", 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}

	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	stem := strings.TrimLeft(strings.TrimSuffix(base, ext), ".")
	if stem == "" {
		stem = "video"
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	name := fmt.Sprintf("%s_%s%s", stem, id, ext)
	dest := filepath.Join(s.uploads, name)

	tmp, err := os.CreateTemp(s.uploads, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create upload file: %w", err)
	}
	defer os.Remove(tmp.Name())

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	size, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to save upload: %w", err)
	}
	if maxBytes > 0 && size > maxBytes {
		return "", 0, ErrTooLarge
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", 0, fmt.Errorf("failed to save upload: %w", err)
	}

	log.Info().Str("file", name).Int64("size_bytes", size).Msg("Upload saved")
	return dest, size, nil
}

// List returns uploads then results, each sorted by name
func (s *Store) List() ([]File, error) {
	uploads, err := listDir(s.uploads, KindUpload, "")
	if err != nil {
		return nil, err
	}
	results, err := listDir(s.results, KindResult, "")
	if err != nil {
		return nil, err
	}
	return append(uploads, results...), nil
}

// Counts returns the number of uploads and of result videos
func (s *Store) Counts() (uploads, results int) {
	u, _ := listDir(s.uploads, KindUpload, "")
	r, _ := listDir(s.results, KindResult, ".mp4")
	return len(u), len(r)
}

func listDir(dir string, kind Kind, ext string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	files := make([]File, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if ext != "" && !strings.EqualFold(filepath.Ext(name), ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, File{Name: name, Size: info.Size(), Type: kind, Path: "/download/" + name})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func validName(name string) bool {
	return name != "" &&
		name == filepath.Base(name) &&
		!strings.ContainsAny(name, `/\`) &&
		!strings.HasPrefix(name, ".")
}

// Resolve finds name in results first, then uploads
func (s *Store) Resolve(name string) (string, Kind, error) {
	if !validName(name) {
		return "", "", ErrInvalidName
	}
	for _, candidate := range []struct {
		dir  string
		kind Kind
	}{{s.results, KindResult}, {s.uploads, KindUpload}} {
		path := filepath.Join(candidate.dir, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, candidate.kind, nil
		}
	}
	return "", "", ErrNotFound
}

func (s *Store) Delete(name string) (Kind, error) {
	path, kind, err := s.Resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("failed to remove %s: %w", name, err)
	}
	log.Info().Str("file", name).Str("type", string(kind)).Msg("File removed")
	return kind, nil
}

// Remove deletes a file by absolute path, used to drop the upload of a failed run
func (s *Store) Remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("Failed to remove file")
	}
}

// ContentType picks the download media type from the extension
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4":
		return "video/mp4"
	case ".json":
		return "application/json"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
