package sequence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// MaxSequence is the highest number handed out by a scan. Slot 0 is only
	// used as the exhaustion fallback.
	MaxSequence = 99998

	// DefaultExtension is appended to every output name regardless of what
	// the camera actually sent.
	DefaultExtension = ".jpg"
)

// Allocator hands out output paths of the form <dir>/NNNNN<ext>. The cursor
// remembers the last number issued so a scan does not restart at 1 each
// time; it is a hint only, files on disk decide what is free.
type Allocator struct {
	dir       string
	extension string
	max       int

	mu     sync.Mutex
	cursor int
}

// Slot is an opened output file and its sequence number
type Slot struct {
	File   *os.File
	Path   string
	Number int
}

// Option configures an Allocator
type Option func(*Allocator)

// WithExtension overrides DefaultExtension
func WithExtension(ext string) Option {
	return func(a *Allocator) { a.extension = ext }
}

// WithMax lowers the scan ceiling. Used by tests to exercise exhaustion
// without creating 99998 files.
func WithMax(max int) Option {
	return func(a *Allocator) { a.max = max }
}

// NewAllocator creates an allocator for dir with the cursor at 0
func NewAllocator(dir string, opts ...Option) *Allocator {
	a := &Allocator{
		dir:       dir,
		extension: DefaultExtension,
		max:       MaxSequence,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dir returns the output directory
func (a *Allocator) Dir() string {
	return a.dir
}

// Cursor returns the last number issued
func (a *Allocator) Cursor() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursor
}

// FormatName returns the file name for sequence number n
func (a *Allocator) FormatName(n int) string {
	return fmt.Sprintf("%05d%s", n, a.extension)
}

// PathFor returns the full path for sequence number n
func (a *Allocator) PathFor(n int) string {
	return filepath.Join(a.dir, a.FormatName(n))
}

// NextPath returns the first path after the cursor that does not exist on
// disk and advances the cursor to it. Stat failures count as "free".
//
// The check and the later open are not atomic: two callers racing on the
// same directory (another process, or code that opens the path itself) can
// both be handed a path that then gets written twice. Create closes that
// gap and is what the receiver uses.
//
// When every number up to the ceiling exists the cursor resets to 0 and
// slot 0 is returned whether or not it exists.
func (a *Allocator) NextPath() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	for n := a.cursor + 1; n <= a.max; n++ {
		path := a.PathFor(n)
		if _, err := os.Stat(path); err != nil {
			a.cursor = n
			return path
		}
	}

	a.cursor = 0
	return a.PathFor(0)
}

// Create allocates the next free number and opens its file in one step.
// Each candidate is created with O_EXCL, so a file that appeared since the
// last scan is skipped instead of overwritten. On exhaustion slot 0 is
// opened with truncation, matching NextPath.
func (a *Allocator) Create() (*Slot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for n := a.cursor + 1; n <= a.max; n++ {
		path := a.PathFor(n)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			a.cursor = n
			return &Slot{File: f, Path: path, Number: n}, nil
		}
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	a.cursor = 0
	path := a.PathFor(0)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open fallback %s: %w", path, err)
	}
	return &Slot{File: f, Path: path, Number: 0}, nil
}

// EnsureDir creates the output directory if it is missing. An existing
// directory is not an error.
func (a *Allocator) EnsureDir() error {
	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", a.dir, err)
	}
	return nil
}
