package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

// sniffLen заголовок, которого хватает filetype для определения типа.
const sniffLen = 261

var (
	// ErrTooLarge файл больше лимита загрузки.
	ErrTooLarge = errors.New("storage: размер файла превышает лимит")
	// ErrUnsupportedType тип файла не входит в разрешённые.
	ErrUnsupportedType = errors.New("storage: тип файла не поддерживается")
)

// Разрешённые типы файлов результата работы.
var allowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
	"application/zip": true,
	"video/mp4":       true,
	"video/quicktime": true,
	"audio/mpeg":      true,
	"audio/x-wav":     true,
}

// StoredFile результат сохранения артефакта.
type StoredFile struct {
	Path     string
	Size     int64
	MimeType string
}

// ArtifactStorage файловое хранилище артефактов доставки.
type ArtifactStorage struct {
	rootPath       string
	maxUploadBytes int64
	now            func() time.Time
}

// NewArtifactStorage создаёт файловое хранилище.
func NewArtifactStorage(rootPath string, maxUploadMB int64) (*ArtifactStorage, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: не удалось создать каталог %s: %w", rootPath, err)
	}

	return &ArtifactStorage{
		rootPath:       rootPath,
		maxUploadBytes: maxUploadMB * 1024 * 1024,
		now:            time.Now,
	}, nil
}

// MaxUploadBytes лимит одного файла.
func (s *ArtifactStorage) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// Save сохраняет файл бронирования и возвращает относительный путь.
// Тип определяется по содержимому, а не по расширению.
func (s *ArtifactStorage) Save(ctx context.Context, bookingID uuid.UUID, originalName string, r io.Reader) (StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return StoredFile{}, err
	}

	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return StoredFile{}, fmt.Errorf("storage: ошибка чтения файла: %w", err)
	}
	if len(head) == 0 {
		return StoredFile{}, fmt.Errorf("storage: пустой файл")
	}

	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown || !allowedMimeTypes[kind.MIME.Value] {
		return StoredFile{}, ErrUnsupportedType
	}

	safeName := sanitizeFilename(originalName)
	ext := filepath.Ext(safeName)
	if ext == "" {
		ext = "." + kind.Extension
	}
	fileName := fmt.Sprintf("%d_%s%s", s.now().UnixNano(), uuid.NewString()[:8], ext)

	bookingDir := filepath.Join(s.rootPath, bookingID.String())
	if err := os.MkdirAll(bookingDir, 0o755); err != nil {
		return StoredFile{}, fmt.Errorf("storage: не удалось создать каталог бронирования: %w", err)
	}

	targetPath := filepath.Join(bookingDir, fileName)
	tempPath := targetPath + ".tmp"

	f, err := os.Create(tempPath)
	if err != nil {
		return StoredFile{}, fmt.Errorf("storage: не удалось создать файл: %w", err)
	}
	defer f.Close()

	limitedReader := io.LimitedReader{R: br, N: s.maxUploadBytes + 1}
	written, err := io.Copy(f, &limitedReader)
	if err != nil {
		_ = os.Remove(tempPath)
		return StoredFile{}, fmt.Errorf("storage: ошибка записи файла: %w", err)
	}

	if written > s.maxUploadBytes {
		_ = os.Remove(tempPath)
		return StoredFile{}, fmt.Errorf("%w (%d байт)", ErrTooLarge, s.maxUploadBytes)
	}

	if err := f.Close(); err != nil {
		return StoredFile{}, fmt.Errorf("storage: ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		return StoredFile{}, fmt.Errorf("storage: не удалось переименовать файл: %w", err)
	}

	return StoredFile{
		Path:     filepath.ToSlash(filepath.Join(bookingID.String(), fileName)),
		Size:     written,
		MimeType: kind.MIME.Value,
	}, nil
}

// Delete удаляет файл из хранилища.
func (s *ArtifactStorage) Delete(ctx context.Context, relativePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := filepath.Join(s.rootPath, filepath.FromSlash(relativePath))
	if !strings.HasPrefix(target, filepath.Clean(s.rootPath)+string(os.PathSeparator)) {
		return fmt.Errorf("storage: путь вне хранилища")
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: не удалось удалить файл: %w", err)
	}
	return nil
}

// sanitizeFilename удаляет потенциально опасные символы.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" || name == "." {
		name = "artifact"
	}
	return name
}
