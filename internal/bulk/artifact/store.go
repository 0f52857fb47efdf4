// Package artifact stores bulk uploads and results at rest: gzip-compressed
// and AES-CTR encrypted, a fresh random IV per artifact written to the file
// header. Artifacts are exclusively owned by the job that created them.
package artifact

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
)

// header layout: 4-byte magic, then the 16-byte IV.
var magic = []byte("LNK1")

// Store writes and reads encrypted artifacts under one directory.
type Store struct {
	dir string
	key []byte
}

// NewStore prepares the artifact directory. The key is 32 raw bytes or their
// 64-character hex encoding; empty generates an ephemeral key, which is fine
// for single-process deployments where artifacts die with the process.
func NewStore(dir, key string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	var raw []byte
	switch len(key) {
	case 0:
		raw = make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("generate ephemeral key: %w", err)
		}
	case 32:
		raw = []byte(key)
	case 64:
		decoded, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("decode hex key: %w", err)
		}
		raw = decoded
	default:
		return nil, fmt.Errorf("encryption key must be 32 raw or 64 hex characters, got %d", len(key))
	}
	return &Store{dir: dir, key: raw}, nil
}

// Path returns the artifact's location on disk.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// Create opens a write stream for a new artifact. Bytes written are
// compressed, then encrypted under a fresh IV.
func (s *Store) Create(name string) (io.WriteCloser, error) {
	f, err := os.OpenFile(s.Path(name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create artifact: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		f.Close()
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	if _, err := f.Write(magic); err != nil {
		f.Close()
		return nil, fmt.Errorf("write artifact header: %w", err)
	}
	if _, err := f.Write(iv); err != nil {
		f.Close()
		return nil, fmt.Errorf("write artifact header: %w", err)
	}

	stream, err := s.stream(iv)
	if err != nil {
		f.Close()
		return nil, err
	}
	enc := cipher.StreamWriter{S: stream, W: f}
	gz := gzip.NewWriter(enc)
	return &writeCloser{gz: gz, file: f}, nil
}

// Open reads an artifact back as its original plaintext stream.
func (s *Store) Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}

	header := make([]byte, len(magic)+aes.BlockSize)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("read artifact header: %w", err)
	}
	if string(header[:len(magic)]) != string(magic) {
		f.Close()
		return nil, fmt.Errorf("artifact %s has no valid header", name)
	}

	stream, err := s.stream(header[len(magic):])
	if err != nil {
		f.Close()
		return nil, err
	}
	gz, err := gzip.NewReader(cipher.StreamReader{S: stream, R: f})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decompress artifact: %w", err)
	}
	return &readCloser{gz: gz, file: f}, nil
}

// Delete removes an artifact. Missing files are not an error.
func (s *Store) Delete(name string) error {
	if err := os.Remove(s.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

// Sweep deletes artifacts older than the retention window and returns how
// many were removed.
func (s *Store) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("sweep artifacts: %w", err)
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || e.IsDir() {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(filepath.Join(s.dir, e.Name())) == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// ReadIV returns the IV stored in an artifact's header.
func (s *Store) ReadIV(name string) ([]byte, error) {
	f, err := os.Open(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	header := make([]byte, len(magic)+aes.BlockSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("read artifact header: %w", err)
	}
	return header[len(magic):], nil
}

func (s *Store) stream(iv []byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewCTR(block, iv), nil
}

type writeCloser struct {
	gz   *gzip.Writer
	file *os.File
}

func (w *writeCloser) Write(p []byte) (int, error) { return w.gz.Write(p) }

func (w *writeCloser) Close() error {
	if err := w.gz.Close(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

type readCloser struct {
	gz   *gzip.Reader
	file *os.File
}

func (r *readCloser) Read(p []byte) (int, error) { return r.gz.Read(p) }

func (r *readCloser) Close() error {
	if err := r.gz.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}
