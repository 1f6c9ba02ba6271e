// Package control lets a running build be stopped from outside the process
// and keeps builds of one project home from running concurrently.
package control

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/autocoder/internal/workspace"
)

// ErrStopRequested is the cancellation cause of a build stopped through
// its stop file.
var ErrStopRequested = errors.New("stop requested")

// DefaultPollInterval is how often the stop file is checked directly, in
// case the watcher misses an event.
const DefaultPollInterval = time.Second

const stopFile = "stop"

// SignalsDir returns the directory holding signal files for a project.
func SignalsDir(projectHome string) string {
	return filepath.Join(projectHome, workspace.StateDir, "signals")
}

// StopPath returns the path of the stop file for a project.
func StopPath(projectHome string) string {
	return filepath.Join(SignalsDir(projectHome), stopFile)
}

// RequestStop asks the build running in projectHome to stop.
func RequestStop(projectHome string) error {
	if err := os.MkdirAll(SignalsDir(projectHome), 0755); err != nil {
		return fmt.Errorf("create signals dir: %w", err)
	}
	return os.WriteFile(StopPath(projectHome), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// StopWatcher cancels a context when the stop file of a project appears.
type StopWatcher struct {
	stopPath string
	cancel   context.CancelCauseFunc

	watcher *fsnotify.Watcher
	stopped bool
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// Watch returns a context derived from ctx that is cancelled with
// ErrStopRequested once the stop file of projectHome is created. A stale
// stop file left by an earlier build is removed first. Call Close when the
// build ends.
func Watch(ctx context.Context, projectHome string, pollInterval time.Duration) (context.Context, *StopWatcher, error) {
	dir := SignalsDir(projectHome)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create signals dir: %w", err)
	}
	w := &StopWatcher{
		stopPath: StopPath(projectHome),
		done:     make(chan struct{}),
	}
	if err := os.Remove(w.stopPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("clear stale stop signal: %w", err)
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	ctx, w.cancel = context.WithCancelCause(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[control] file watcher unavailable, polling for stop signal: %v", err)
	} else if err := watcher.Add(dir); err != nil {
		log.Printf("[control] watch %s: %v, polling for stop signal", dir, err)
		watcher.Close()
	} else {
		w.watcher = watcher
	}

	w.wg.Add(1)
	go w.loop(pollInterval)
	return ctx, w, nil
}

func (w *StopWatcher) loop(pollInterval time.Duration) {
	defer w.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w.watcher != nil {
		events = w.watcher.Events
		errs = w.watcher.Errors
	}

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(event.Name) == stopFile && event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.trigger()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Printf("[control] watcher error: %v", err)
		case <-ticker.C:
			if _, err := os.Stat(w.stopPath); err == nil {
				w.trigger()
			}
		}
	}
}

// trigger runs on the loop goroutine only.
func (w *StopWatcher) trigger() {
	if w.stopped {
		return
	}
	w.stopped = true
	log.Printf("[control] stop signal received")
	w.cancel(ErrStopRequested)
}

// Close stops watching, removes the stop file and releases the derived
// context.
func (w *StopWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.watcher != nil {
			err = w.watcher.Close()
		}
		w.wg.Wait()
		w.cancel(context.Canceled)
		if rmErr := os.Remove(w.stopPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	})
	return err
}
