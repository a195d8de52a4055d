package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"resumerecon/internal/errors"

	"github.com/fsnotify/fsnotify"
)

// AliasWatcher watches the section alias file and calls back, debounced,
// when its content changes
type AliasWatcher struct {
	mu sync.RWMutex

	file        string
	lastModTime time.Time
	lastSize    int64

	fsWatcher     *fsnotify.Watcher
	debounceDelay time.Duration
	debounceTimer *time.Timer

	stopChan   chan struct{}
	reloadChan chan struct{}

	reloadCallback func()
	logger         *errors.Logger

	running bool
}

// NewAliasWatcher creates a watcher for file. A zero debounce means one second.
func NewAliasWatcher(file string, debounceDelay time.Duration, reloadCallback func(), logger *errors.Logger) (*AliasWatcher, error) {
	if file == "" {
		return nil, fmt.Errorf("alias file path is required")
	}
	if reloadCallback == nil {
		return nil, fmt.Errorf("reload callback is required")
	}
	if debounceDelay <= 0 {
		debounceDelay = time.Second
	}

	return &AliasWatcher{
		file:           filepath.Clean(file),
		debounceDelay:  debounceDelay,
		stopChan:       make(chan struct{}),
		reloadChan:     make(chan struct{}, 1),
		reloadCallback: reloadCallback,
		logger:         logger,
	}, nil
}

// Start begins watching the alias file
func (aw *AliasWatcher) Start() error {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	if aw.running {
		return fmt.Errorf("alias watcher is already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory so editors that write via rename are still seen
	dir := filepath.Dir(aw.file)
	if err := watcher.Add(dir); err != nil {
		if closeErr := watcher.Close(); closeErr != nil && aw.logger != nil {
			aw.logger.LogError(closeErr, "Failed to close file watcher during cleanup")
		}
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	aw.fsWatcher = watcher
	aw.changed()

	aw.running = true
	go aw.watchLoop()

	if aw.logger != nil {
		aw.logger.Info("Alias file watcher started",
			"file", aw.file,
			"debounce_delay", aw.debounceDelay)
	}
	return nil
}

// Stop stops the watcher. Stopping a stopped watcher is a no-op.
func (aw *AliasWatcher) Stop() error {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	if !aw.running {
		return nil
	}

	close(aw.stopChan)
	if aw.debounceTimer != nil {
		aw.debounceTimer.Stop()
	}
	aw.running = false

	if err := aw.fsWatcher.Close(); err != nil {
		if aw.logger != nil {
			aw.logger.LogError(err, "Failed to close file system watcher")
		}
		return err
	}

	if aw.logger != nil {
		aw.logger.Info("Alias file watcher stopped")
	}
	return nil
}

func (aw *AliasWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-aw.fsWatcher.Events:
			if !ok {
				return
			}
			if aw.relevant(event) {
				aw.scheduleReload()
			}

		case err, ok := <-aw.fsWatcher.Errors:
			if !ok {
				return
			}
			if aw.logger != nil {
				aw.logger.LogError(err, "File watcher error")
			}

		case <-aw.reloadChan:
			if aw.changed() {
				if aw.logger != nil {
					aw.logger.Info("Alias file changed, triggering reload", "file", aw.file)
				}
				aw.reloadCallback()
			}

		case <-aw.stopChan:
			return
		}
	}
}

// relevant reports whether event touches the watched file
func (aw *AliasWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != aw.file {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// changed compares the file's mod time and size with the last seen values
// and records the new ones. A missing file is not a change; the previous
// aliases stay in effect until it reappears.
func (aw *AliasWatcher) changed() bool {
	stat, err := os.Stat(aw.file)
	if err != nil {
		return false
	}
	if stat.ModTime().Equal(aw.lastModTime) && stat.Size() == aw.lastSize {
		return false
	}
	aw.lastModTime = stat.ModTime()
	aw.lastSize = stat.Size()
	return true
}

func (aw *AliasWatcher) scheduleReload() {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	if aw.debounceTimer != nil {
		aw.debounceTimer.Stop()
	}
	aw.debounceTimer = time.AfterFunc(aw.debounceDelay, func() {
		select {
		case aw.reloadChan <- struct{}{}:
		default:
		}
	})
}

// IsRunning returns whether the watcher is currently running
func (aw *AliasWatcher) IsRunning() bool {
	aw.mu.RLock()
	defer aw.mu.RUnlock()
	return aw.running
}

// File returns the watched path
func (aw *AliasWatcher) File() string {
	return aw.file
}
