package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"awical/internal/ics"
	"awical/internal/importer"
	appLog "awical/internal/log"
)

const (
	extension       = ".ics"
	importedSuffix  = "_imported"
	failedSuffix    = "_failed"
	stampLayout     = "20060102150405"
	defaultSettle   = 500 * time.Millisecond
	settleTickEvery = 250 * time.Millisecond
)

// FileImporter imports one export file.
type FileImporter interface {
	ImportFile(ctx context.Context, path string) (importer.Result, error)
}

// Watcher imports every new .ics file that appears under a directory and
// renames it once it has been handled. Files are processed one at a time.
type Watcher struct {
	dataPath string
	imp      FileImporter
	rescan   string
	settle   time.Duration
	now      func() time.Time

	// mu serializes processing between fsnotify events and rescans.
	mu sync.Mutex
}

type Option func(*Watcher)

// WithRescan sets a cron spec (e.g. "@every 5m") on which the directory is
// rescanned for files missed by the watcher. Empty disables rescans.
func WithRescan(spec string) Option {
	return func(w *Watcher) { w.rescan = spec }
}

// WithSettle sets how long a file must be quiet before it is imported.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

// WithClock overrides the clock used for rename timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

func New(dataPath string, imp FileImporter, opts ...Option) *Watcher {
	w := &Watcher{
		dataPath: dataPath,
		imp:      imp,
		settle:   defaultSettle,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// IsCandidate reports whether path is an export file that still has to be
// imported.
func IsCandidate(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := filepath.Ext(base)
	if !strings.EqualFold(ext, extension) {
		return false
	}
	stem := strings.TrimSuffix(base, ext)
	return !strings.HasSuffix(stem, importedSuffix) && !strings.HasSuffix(stem, failedSuffix)
}

// Pending lists candidate files under the data directory in lexical order.
func (w *Watcher) Pending() ([]string, error) {
	var out []string
	err := filepath.WalkDir(w.dataPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && IsCandidate(path) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// ProcessPending imports every pending file. Per-file failures are logged
// and do not stop the scan.
func (w *Watcher) ProcessPending(ctx context.Context) error {
	paths, err := w.Pending()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.Process(ctx, p); err != nil {
			appLog.Error("import failed", err, "path", p)
		}
	}
	return nil
}

// Process imports one file and renames it into the data directory as
// <stem>_<timestamp>_imported.ics. A malformed document is renamed with a
// _failed suffix instead. On any other error the file is left in place so
// that a later rescan retries it.
func (w *Watcher) Process(ctx context.Context, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !IsCandidate(path) {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Already handled by a concurrent scan.
			return nil
		}
		return err
	}

	_, err := w.imp.ImportFile(ctx, path)
	switch {
	case err == nil:
		return w.rename(path, importedSuffix)
	case errors.Is(err, ics.ErrMalformedDocument):
		if rerr := w.rename(path, failedSuffix); rerr != nil {
			appLog.Error("quarantine failed", rerr, "path", path)
		}
		return err
	default:
		return err
	}
}

// ArchivedName returns the name a processed file is renamed to.
func ArchivedName(path string, at time.Time, suffix string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return stem + "_" + at.Format(stampLayout) + suffix + ext
}

func (w *Watcher) rename(path, suffix string) error {
	dst := filepath.Join(w.dataPath, ArchivedName(path, w.now(), suffix))
	if err := os.Rename(path, dst); err != nil {
		return err
	}
	appLog.Debug("file archived", "from", path, "to", dst)
	return nil
}

// Run processes existing files, then watches the data directory
// recursively until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addTree(fw, w.dataPath); err != nil {
		return err
	}

	if err := w.ProcessPending(ctx); err != nil {
		return err
	}

	if w.rescan != "" {
		c := cron.New()
		if _, err := c.AddFunc(w.rescan, func() {
			if err := w.ProcessPending(ctx); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error("rescan failed", err, "data_path", w.dataPath)
			}
		}); err != nil {
			return err
		}
		c.Start()
		defer c.Stop()
	}

	appLog.Info("watching for calendar exports", "data_path", w.dataPath, "rescan", w.rescan)

	// Files are imported once no event has been seen for them for w.settle,
	// so that a file is not read while it is still being written.
	seen := make(map[string]time.Time)
	ticker := time.NewTicker(settleTickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := w.addTree(fw, event.Name); err != nil {
						appLog.Error("watch directory failed", err, "path", event.Name)
					}
					continue
				}
			}
			if (event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) && IsCandidate(event.Name) {
				appLog.Debug("file event", "path", event.Name, "op", event.Op.String())
				seen[event.Name] = w.now()
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			appLog.Error("watcher error", err)

		case <-ticker.C:
			now := w.now()
			for path, at := range seen {
				if now.Sub(at) < w.settle {
					continue
				}
				delete(seen, path)
				if err := w.Process(ctx, path); err != nil {
					appLog.Error("import failed", err, "path", path)
				}
			}
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}
