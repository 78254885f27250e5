package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/tweetbox/backend/internal/apperr"
)

// Staging lays uploads out as <root>/<owner>/<upload-id>/<upload-id>_<name>.
// Each upload gets its own directory so concurrent uploads by one owner never
// touch each other's files.
type Staging struct {
	root string
}

// NewStaging returns a Staging rooted at root.
func NewStaging(root string) *Staging {
	if strings.TrimSpace(root) == "" {
		root = "uploads"
	}
	return &Staging{root: root}
}

// StagedFile is a fully written local copy of an upload, opened for reading.
type StagedFile struct {
	OwnerID int64
	Dir     string
	Name    string
	Size    int64
	File    *os.File

	once sync.Once
}

// RemotePath is the object path used on the remote store.
func (f *StagedFile) RemotePath() string {
	return strconv.FormatInt(f.OwnerID, 10) + "/" + f.Name
}

// Close releases the file handle. It is safe to call more than once.
func (f *StagedFile) Close() {
	f.once.Do(func() {
		if f.File != nil {
			_ = f.File.Close()
		}
	})
}

func (s *Staging) ownerDir(ownerID int64) string {
	return filepath.Join(s.root, strconv.FormatInt(ownerID, 10))
}

// Stage copies body to disk in full and reopens it for reading.
func (s *Staging) Stage(ownerID int64, filename string, body io.Reader) (*StagedFile, error) {
	base := SanitizeFilename(filename)
	if base == "" {
		return nil, apperr.Validation("file name is required")
	}

	uploadID := uuid.NewString()
	dir := filepath.Join(s.ownerDir(ownerID), uploadID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	name := uploadID + "_" + base
	path := filepath.Join(dir, name)

	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}

	size, err := io.Copy(out, body)
	if err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("write staging file: %w", err)
	}
	if size == 0 {
		_ = out.Close()
		_ = os.RemoveAll(dir)
		return nil, apperr.Validation("file is empty")
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("sync staging file: %w", err)
	}
	if _, err := out.Seek(0, io.SeekStart); err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("rewind staging file: %w", err)
	}

	return &StagedFile{OwnerID: ownerID, Dir: dir, Name: name, Size: size, File: out}, nil
}

// Purge removes the upload directory and then the owner directory if no
// other upload is using it.
func (s *Staging) Purge(f *StagedFile) error {
	if err := os.RemoveAll(f.Dir); err != nil {
		return fmt.Errorf("remove staging dir: %w", err)
	}
	err := os.Remove(s.ownerDir(f.OwnerID))
	if err == nil || errors.Is(err, os.ErrNotExist) || isNotEmpty(err) {
		return nil
	}
	return fmt.Errorf("remove owner staging dir: %w", err)
}

func isNotEmpty(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST)
}

const maxNameRunes = 128

// SanitizeFilename keeps the final path element and drops characters that
// are awkward in remote paths.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == ' ':
			b.WriteByte('_')
		case r < 0x20, r == '/', r == '?', r == '#', r == '%', r == '"', r == '*', r == ':', r == '<', r == '>', r == '|':
		default:
			b.WriteRune(r)
		}
	}
	out := []rune(b.String())
	if len(out) > maxNameRunes {
		ext := []rune(filepath.Ext(string(out)))
		if len(ext) > 16 {
			ext = nil
		}
		out = append(out[:maxNameRunes-len(ext)], ext...)
	}
	return string(out)
}
