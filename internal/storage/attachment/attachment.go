// Пакет attachment — размещение вложений на локальном диске.
// Файл из запроса сначала принимается во временный каталог, затем
// атомарным rename переносится в корзину {год}/{месяц} корневого каталога.
// Временный каталог и корневой каталог должны находиться на одной ФС.
package attachment

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProfilesDir — подкаталог фото профилей в корневом каталоге.
const ProfilesDir = "profiles"

// Ошибки размещения вложений.
var (
	// ErrMissing — временный файл отсутствует.
	ErrMissing = errors.New("временный файл вложения не найден")
	// ErrPlacementFailed — не удалось перенести файл в итоговый каталог.
	// Временный файл при этом остаётся на месте.
	ErrPlacementFailed = errors.New("не удалось разместить вложение")
	// ErrInvalidPath — относительный путь выходит за пределы корневого каталога.
	ErrInvalidPath = errors.New("недопустимый путь вложения")
)

var attachmentOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nf_attachment_operations_total",
	Help: "Количество операций с вложениями по типу и результату.",
}, []string{"operation", "result"})

// TempFile — файл, принятый во временный каталог.
type TempFile struct {
	// Path — абсолютный путь во временном каталоге
	Path string
	// OriginalName — имя файла, переданное клиентом
	OriginalName string
	// Size — размер записанных данных в байтах
	Size int64
}

// Store управляет временным и итоговым каталогами вложений.
type Store struct {
	root    string
	tempDir string
}

// New создаёт Store. Каталоги создаются, если не существуют.
func New(root, tempDir string) (*Store, error) {
	for _, dir := range []string{root, tempDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("не удалось создать каталог %s: %w", dir, err)
		}
	}
	return &Store{root: root, tempDir: tempDir}, nil
}

// Root возвращает корневой каталог вложений.
func (s *Store) Root() string {
	return s.root
}

// TempDir возвращает временный каталог.
func (s *Store) TempDir() string {
	return s.tempDir
}

// Receive записывает данные из reader во временный каталог под уникальным
// именем file-{unix ms}-{random}{ext}. При ошибке частичный файл удаляется.
func (s *Store) Receive(reader io.Reader, originalName string) (*TempFile, error) {
	name := fmt.Sprintf("file-%d-%s%s", time.Now().UnixMilli(), randomSuffix(), safeExt(originalName))
	fullPath := filepath.Join(s.tempDir, name)

	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		attachmentOpsTotal.WithLabelValues("receive", "error").Inc()
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	size, err := io.Copy(f, reader)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(fullPath)
		attachmentOpsTotal.WithLabelValues("receive", "error").Inc()
		return nil, fmt.Errorf("ошибка записи временного файла: %w", err)
	}

	attachmentOpsTotal.WithLabelValues("receive", "ok").Inc()
	return &TempFile{Path: fullPath, OriginalName: originalName, Size: size}, nil
}

// Bucket возвращает каталог-корзину вида YYYY/MM для даты эмиссии.
func Bucket(date time.Time) string {
	return fmt.Sprintf("%04d/%02d", date.Year(), int(date.Month()))
}

// Place переносит временный файл в корзину, вычисленную по date,
// и возвращает относительный путь вида YYYY/MM/{имя}.
// Расширение исходного файла сохраняется.
func (s *Store) Place(tempPath string, date time.Time) (string, error) {
	return s.placeInto(tempPath, Bucket(date), "nf")
}

// PlaceProfile переносит временный файл в каталог фото профилей.
func (s *Store) PlaceProfile(tempPath string) (string, error) {
	return s.placeInto(tempPath, ProfilesDir, "profile")
}

func (s *Store) placeInto(tempPath, dir, prefix string) (string, error) {
	if _, err := os.Stat(tempPath); err != nil {
		attachmentOpsTotal.WithLabelValues("place", "missing").Inc()
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrMissing
		}
		return "", fmt.Errorf("%w: %v", ErrMissing, err)
	}

	finalDir := filepath.Join(s.root, filepath.FromSlash(dir))
	if err := os.MkdirAll(finalDir, 0o750); err != nil {
		attachmentOpsTotal.WithLabelValues("place", "error").Inc()
		return "", fmt.Errorf("%w: создание каталога %s: %v", ErrPlacementFailed, dir, err)
	}

	name := uniqueName(prefix, filepath.Ext(tempPath))
	if err := os.Rename(tempPath, filepath.Join(finalDir, name)); err != nil {
		attachmentOpsTotal.WithLabelValues("place", "error").Inc()
		return "", fmt.Errorf("%w: %v", ErrPlacementFailed, err)
	}

	attachmentOpsTotal.WithLabelValues("place", "ok").Inc()
	return path.Join(dir, name), nil
}

// Delete удаляет размещённый файл по относительному пути.
// Отсутствие файла ошибкой не считается.
func (s *Store) Delete(relPath string) error {
	fullPath, err := s.resolve(relPath)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		attachmentOpsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("ошибка удаления вложения %s: %w", relPath, err)
	}
	attachmentOpsTotal.WithLabelValues("delete", "ok").Inc()
	return nil
}

// Exists проверяет наличие размещённого файла.
func (s *Store) Exists(relPath string) bool {
	fullPath, err := s.resolve(relPath)
	if err != nil {
		return false
	}
	info, err := os.Stat(fullPath)
	return err == nil && info.Mode().IsRegular()
}

// Discard удаляет файл из временного каталога. Отсутствие файла ошибкой не считается.
func (s *Store) Discard(tempPath string) error {
	if tempPath == "" {
		return nil
	}
	if err := os.Remove(tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		attachmentOpsTotal.WithLabelValues("discard", "error").Inc()
		return fmt.Errorf("ошибка удаления временного файла: %w", err)
	}
	attachmentOpsTotal.WithLabelValues("discard", "ok").Inc()
	return nil
}

// SweepTemp удаляет из временного каталога файлы, изменённые раньше cutoff.
// Возвращает количество удалённых файлов.
func (s *Store) SweepTemp(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения временного каталога: %w", err)
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.tempDir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	attachmentOpsTotal.WithLabelValues("sweep", "ok").Add(float64(removed))
	return removed, errors.Join(errs...)
}

// resolve превращает относительный путь в абсолютный внутри root.
func (s *Store) resolve(relPath string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(relPath, "\\", "/"))
	if relPath == "" || clean == "/" || clean != "/"+strings.TrimPrefix(relPath, "/") {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// uniqueName — {prefix}-{unix ns}-{random}{ext}. Наносекундная метка плюс
// случайная часть исключают совпадение имён у параллельных загрузок.
func uniqueName(prefix, ext string) string {
	return fmt.Sprintf("%s-%d-%s%s", prefix, time.Now().UnixNano(), randomSuffix(), ext)
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// safeExt возвращает расширение файла в нижнем регистре, если оно
// состоит только из букв и цифр, иначе пустую строку.
func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
