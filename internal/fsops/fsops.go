package fsops

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const hashChunkSize = 64 * 1024

// FS is an abstract filesystem used across the app and tests.
type FS interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	Open(name string) (io.ReadCloser, error)
	Create(name string) (io.WriteCloser, error)
	Stat(name string) (fs.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error

	Dir(name string) string
	Ext(name string) string
	Clean(name string) string
}

// ---------- OS-backed implementation ----------

type OS struct{}

func NewOS() OS { return OS{} }

func (OS) ReadFile(name string) ([]byte, error) { return os.ReadFile(filepath.Clean(name)) }
func (OS) WriteFile(name string, b []byte, p os.FileMode) error {
	return os.WriteFile(filepath.Clean(name), b, p)
}
func (OS) Open(name string) (io.ReadCloser, error)    { return os.Open(filepath.Clean(name)) }
func (OS) Create(name string) (io.WriteCloser, error) { return os.Create(filepath.Clean(name)) }
func (OS) Stat(name string) (fs.FileInfo, error)      { return os.Stat(filepath.Clean(name)) }
func (OS) MkdirAll(path string, p os.FileMode) error  { return os.MkdirAll(filepath.Clean(path), p) }
func (OS) Dir(name string) string                     { return filepath.Dir(name) }
func (OS) Ext(name string) string                     { return filepath.Ext(name) }
func (OS) Clean(name string) string                   { return filepath.Clean(name) }

// ---------- In-memory implementation (for tests/integration) ----------

type Mem struct{ Fs afero.Fs }

func NewMem() Mem { return Mem{Fs: afero.NewMemMapFs()} }

func (m Mem) ReadFile(name string) ([]byte, error) { return afero.ReadFile(m.Fs, filepath.Clean(name)) }
func (m Mem) WriteFile(name string, b []byte, p os.FileMode) error {
	return afero.WriteFile(m.Fs, filepath.Clean(name), b, p)
}
func (m Mem) Open(name string) (io.ReadCloser, error)    { return m.Fs.Open(filepath.Clean(name)) }
func (m Mem) Create(name string) (io.WriteCloser, error) { return m.Fs.Create(filepath.Clean(name)) }
func (m Mem) Stat(name string) (fs.FileInfo, error)      { return m.Fs.Stat(filepath.Clean(name)) }
func (m Mem) MkdirAll(path string, p os.FileMode) error {
	return m.Fs.MkdirAll(filepath.Clean(path), p)
}

func (Mem) Dir(name string) string   { return filepath.Dir(name) }
func (Mem) Ext(name string) string   { return filepath.Ext(name) }
func (Mem) Clean(name string) string { return filepath.Clean(name) }

// ---------- High-level façade used by steps and the engine ----------

type Ops struct{ FS FS }

func NewOps(fs FS) Ops { return Ops{FS: fs} }

// HashFile streams the file through SHA-256 and returns the lowercase hex
// digest. The context is checked between chunks.
func (o Ops) HashFile(ctx context.Context, path string) (string, error) {
	file, err := o.FS.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	hasher := sha256.New()
	buffer := make([]byte, hashChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		read, readErr := file.Read(buffer)
		if read > 0 {
			hasher.Write(buffer[:read])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("read %s: %w", path, readErr)
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// SiblingPath replaces the extension of path with suffix.
func (o Ops) SiblingPath(path, suffix string) string {
	clean := o.FS.Clean(path)
	return strings.TrimSuffix(clean, o.FS.Ext(clean)) + suffix
}

func (o Ops) EnsureDir(path string) error { return o.FS.MkdirAll(o.FS.Dir(path), 0o755) }
func (o Ops) FileExists(p string) bool    { _, err := o.FS.Stat(p); return err == nil }
