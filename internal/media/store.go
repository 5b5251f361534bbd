// Package media хранит картинки, пришедшие inline как base64 data URL (аватары и вложения сообщений).
// Файлы лежат на диске в сжатом виде (.gz) и раздаются через /api/files/{name}.
package media

import (
	"compress/gzip"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/quickchat/internal/logger"
)

const URLPrefix = "/api/files/"

var (
	ErrInvalidDataURL = errors.New("invalid data url")
	ErrTooLarge       = errors.New("image too large")
	ErrNotImage       = errors.New("not an image")
)

// Store сохраняет картинки в Dir; MaxSize — потолок декодированного размера в байтах.
type Store struct {
	Dir     string
	MaxSize int64
}

func New(dir string, maxSize int64) *Store {
	return &Store{Dir: dir, MaxSize: maxSize}
}

// IsDataURL сообщает, передана ли картинка inline (data:...;base64,...).
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// SaveDataURL декодирует data URL, проверяет по содержимому что это картинка и сохраняет её.
// Возвращает URL для раздачи.
func (s *Store) SaveDataURL(dataURL string) (string, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(dataURL, "data:"), ",")
	if !IsDataURL(dataURL) || !ok || !strings.HasSuffix(meta, ";base64") {
		return "", ErrInvalidDataURL
	}
	if int64(base64.StdEncoding.DecodedLen(len(payload))) > s.MaxSize+2 {
		return "", ErrTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	if int64(len(data)) > s.MaxSize {
		return "", ErrTooLarge
	}
	mt := mimetype.Detect(data)
	// SVG может содержать скрипты — не принимаем.
	if !strings.HasPrefix(mt.String(), "image/") || mt.Is("image/svg+xml") {
		return "", ErrNotImage
	}

	name := uuid.New().String() + mt.Extension()
	if err := s.write(name, data); err != nil {
		return "", err
	}
	return URLPrefix + name, nil
}

func (s *Store) write(name string, data []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("media mkdir: %w", err)
	}
	dstPath := filepath.Join(s.Dir, name+".gz")
	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("media create: %w", err)
	}
	gz := gzip.NewWriter(dst)
	if _, err := gz.Write(data); err != nil {
		gz.Close()
		dst.Close()
		os.Remove(dstPath)
		return fmt.Errorf("media write: %w", err)
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return fmt.Errorf("media gzip close: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return fmt.Errorf("media close: %w", err)
	}
	return nil
}

// Delete удаляет файл, сохранённый SaveDataURL. Чужие URL и отсутствующий файл не ошибка.
func (s *Store) Delete(url string) error {
	name, ok := strings.CutPrefix(url, URLPrefix)
	if !ok || name == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.Dir, filepath.Base(name)+".gz"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("media delete: %w", err)
	}
	return nil
}

// Serve отдаёт файл по имени, разархивируя на лету.
func (s *Store) Serve(w http.ResponseWriter, r *http.Request, filename string) {
	filename = filepath.Base(filename)
	f, err := os.Open(filepath.Join(s.Dir, filename+".gz"))
	if err != nil {
		http.Error(w, `{"success":false,"message":"file not found"}`, http.StatusNotFound)
		return
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		logger.Errorf("media open %s: %v", filename, err)
		http.Error(w, `{"success":false,"message":"failed to read file"}`, http.StatusInternalServerError)
		return
	}
	defer gz.Close()
	if ct := mimeByExt(filepath.Ext(filename)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, gz); err != nil {
		logger.Errorf("media serve %s: %v", filename, err)
	}
}

func mimeByExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	}
	return ""
}
