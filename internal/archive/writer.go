package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"folderexport/internal/services"
)

// Writer is a single-use archive handle.
type Writer interface {
	AddFile(sourcePath, archivePath string) error
	AddBytes(archivePath string, content []byte) error
	Exists(archivePath string) bool
	Close() error
	Abort() error
}

// Opener creates a Writer for destination.
type Opener func(destination string) (Writer, error)

// ZipWriter implements Writer on archive/zip.
type ZipWriter struct {
	mu          sync.Mutex
	destination string
	tempPath    string
	file        *os.File
	zw          *zip.Writer
	entries     map[string]struct{}
	closed      bool
	now         func() time.Time
}

// OpenZip starts a zip archive that will appear at destination on Close.
func OpenZip(destination string) (Writer, error) {
	return openZip(destination)
}

func openZip(destination string) (*ZipWriter, error) {
	dir := filepath.Dir(destination)
	file, err := os.CreateTemp(dir, "."+filepath.Base(destination)+".*.part")
	if err != nil {
		return nil, services.Wrap(services.ErrCreateFailed, "archive", "open", "create temporary archive", err)
	}
	return &ZipWriter{
		destination: destination,
		tempPath:    file.Name(),
		file:        file,
		zw:          zip.NewWriter(file),
		entries:     make(map[string]struct{}),
		now:         time.Now,
	}, nil
}

// NormalizeEntryName converts p to a forward-slash archive path without a
// leading slash or dot segments.
func NormalizeEntryName(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// Exists reports whether an entry already occupies archivePath.
func (w *ZipWriter) Exists(archivePath string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.entries[NormalizeEntryName(archivePath)]
	return ok
}

// Entries returns the number of entries written so far.
func (w *ZipWriter) Entries() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// AddFile streams sourcePath into the archive. A missing or unreadable source
// yields ErrSourceMissing and leaves the archive unchanged.
func (w *ZipWriter) AddFile(sourcePath, archivePath string) error {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return services.Wrap(services.ErrSourceMissing, "archive", "add file", filepath.Base(sourcePath), err)
	}
	if !info.Mode().IsRegular() {
		return services.Wrap(services.ErrSourceMissing, "archive", "add file", filepath.Base(sourcePath)+" is not a regular file", nil)
	}
	src, err := os.Open(sourcePath)
	if err != nil {
		return services.Wrap(services.ErrSourceMissing, "archive", "add file", filepath.Base(sourcePath), err)
	}
	defer src.Close()

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return services.Wrap(services.ErrTransient, "archive", "add file", "build header", err)
	}
	return w.write(archivePath, header, src)
}

// AddBytes writes content as a new entry.
func (w *ZipWriter) AddBytes(archivePath string, content []byte) error {
	header := &zip.FileHeader{Modified: w.now()}
	return w.write(archivePath, header, bytes.NewReader(content))
}

func (w *ZipWriter) write(archivePath string, header *zip.FileHeader, r io.Reader) error {
	name := NormalizeEntryName(archivePath)
	if name == "" {
		return services.Wrap(services.ErrValidation, "archive", "add entry", "empty entry name", nil)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return services.Wrap(services.ErrConflict, "archive", "add entry", "archive already closed", nil)
	}
	if _, taken := w.entries[name]; taken {
		return services.Wrap(services.ErrConflict, "archive", "add entry", fmt.Sprintf("entry %q already exists", name), nil)
	}

	header.Name = name
	header.Method = zip.Deflate
	dst, err := w.zw.CreateHeader(header)
	if err != nil {
		return services.Wrap(services.ErrTransient, "archive", "add entry", "create entry", err)
	}
	if _, err := io.Copy(dst, r); err != nil {
		return services.Wrap(services.ErrTransient, "archive", "add entry", "copy entry", err)
	}
	w.entries[name] = struct{}{}
	return nil
}

// Close finalizes the container and moves it to the destination. On failure
// the temporary file is removed and ErrFinalizeFailed is returned.
func (w *ZipWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	fail := func(op string, err error) error {
		_ = w.file.Close()
		_ = os.Remove(w.tempPath)
		return services.Wrap(services.ErrFinalizeFailed, "archive", op, "", err)
	}
	if err := w.zw.Close(); err != nil {
		return fail("flush directory", err)
	}
	if err := w.file.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := w.file.Close(); err != nil {
		_ = os.Remove(w.tempPath)
		return services.Wrap(services.ErrFinalizeFailed, "archive", "close", "", err)
	}
	if err := os.Chmod(w.tempPath, 0o640); err != nil {
		_ = os.Remove(w.tempPath)
		return services.Wrap(services.ErrFinalizeFailed, "archive", "chmod", "", err)
	}
	if err := os.Rename(w.tempPath, w.destination); err != nil {
		_ = os.Remove(w.tempPath)
		return services.Wrap(services.ErrFinalizeFailed, "archive", "rename", "", err)
	}
	return nil
}

// Abort discards the archive without touching the destination.
func (w *ZipWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	_ = w.file.Close()
	if err := os.Remove(w.tempPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
