package framecollector

import (
	"errors"
	"fmt"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultJPEGQuality is the encoder quality for archived frames
const DefaultJPEGQuality = 95

// ErrFileExists is returned when the target file name is already taken.
// The archiver never overwrites an existing file.
var ErrFileExists = errors.New("frame-collector: frame file already exists")

// FrameArchiver persists accepted frames
type FrameArchiver interface {
	// Save writes f and returns its record. Errors wrapping
	// ErrOutputUnavailable are fatal to the session; any other error only
	// loses this frame.
	Save(f *Frame, captureTime time.Time, sequence uint64) (SavedFrameRecord, error)
}

// Archiver writes frames as JPEG files under <root>/<YYYY-MM-DD>/
//
// Filename format: frame_{HHMMSS}_{seq:06d}.jpg
// Example: data/raw/2025-11-05/frame_234517_000042.jpg
//
// Directories are created lazily on the first save, so a session that never
// saves leaves no trace on disk. Thread-safe.
type Archiver struct {
	root        string
	jpegQuality int
	logger      *slog.Logger

	mu   sync.Mutex
	dirs map[string]bool

	framesSaved   atomic.Uint64
	framesDropped atomic.Uint64
}

// NewArchiver creates an archiver rooted at root.
//
// jpegQuality: 1-100 (0 selects DefaultJPEGQuality)
func NewArchiver(root string, jpegQuality int, logger *slog.Logger) (*Archiver, error) {
	if root == "" {
		return nil, fmt.Errorf("frame-collector: output root is required")
	}
	if jpegQuality == 0 {
		jpegQuality = DefaultJPEGQuality
	}
	if jpegQuality < 1 || jpegQuality > 100 {
		return nil, fmt.Errorf("frame-collector: jpeg quality must be within [1, 100], got %d", jpegQuality)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Archiver{
		root:        root,
		jpegQuality: jpegQuality,
		logger:      logger,
		dirs:        make(map[string]bool),
	}, nil
}

// Root returns the output root directory
func (a *Archiver) Root() string { return a.root }

// Save encodes f to <root>/<date>/frame_<time>_<seq>.jpg
func (a *Archiver) Save(f *Frame, captureTime time.Time, sequence uint64) (SavedFrameRecord, error) {
	img, err := f.Image()
	if err != nil {
		a.framesDropped.Add(1)
		return SavedFrameRecord{}, fmt.Errorf("RGB conversion failed: %w", err)
	}

	date := captureTime.Format("2006-01-02")
	filename := fmt.Sprintf("frame_%s_%06d.jpg", captureTime.Format("150405"), sequence)

	path, file, err := a.create(date, filename)
	if errors.Is(err, os.ErrNotExist) {
		// The date directory vanished since it was cached; recreate it once.
		a.forgetDir(date)
		path, file, err = a.create(date, filename)
	}
	if err != nil {
		a.framesDropped.Add(1)
		if errors.Is(err, os.ErrExist) {
			return SavedFrameRecord{}, fmt.Errorf("%w: %s", ErrFileExists, path)
		}
		return SavedFrameRecord{}, err
	}

	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: a.jpegQuality}); err != nil {
		file.Close()
		a.discard(path)
		return SavedFrameRecord{}, fmt.Errorf("JPEG encode failed: %w", err)
	}
	if err := file.Close(); err != nil {
		a.discard(path)
		return SavedFrameRecord{}, fmt.Errorf("failed to close file: %w", err)
	}

	a.framesSaved.Add(1)
	return SavedFrameRecord{
		Path:        path,
		CaptureTime: captureTime,
		Sequence:    sequence,
		FrameSeq:    f.Seq,
	}, nil
}

// Stats returns current save statistics.
func (a *Archiver) Stats() (saved, dropped uint64) {
	return a.framesSaved.Load(), a.framesDropped.Load()
}

// create opens a new frame file under the date directory.
// O_EXCL: a name collision is reported, never resolved by overwriting.
func (a *Archiver) create(date, filename string) (string, *os.File, error) {
	dir, err := a.ensureDir(date)
	if err != nil {
		return "", nil, err
	}
	path := filepath.Join(dir, filename)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return path, nil, fmt.Errorf("failed to create file: %w", err)
	}
	return path, file, nil
}

func (a *Archiver) forgetDir(date string) {
	a.mu.Lock()
	delete(a.dirs, filepath.Join(a.root, date))
	a.mu.Unlock()
}

func (a *Archiver) ensureDir(date string) (string, error) {
	dir := filepath.Join(a.root, date)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dirs[dir] {
		return dir, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrOutputUnavailable, dir, err)
	}
	a.dirs[dir] = true
	a.logger.Debug("frame-collector: output directory ready", "dir", dir)
	return dir, nil
}

// discard removes a partially written file
func (a *Archiver) discard(path string) {
	a.framesDropped.Add(1)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		a.logger.Warn("frame-collector: failed to remove partial frame file",
			"path", path,
			"error", err,
		)
	}
}
