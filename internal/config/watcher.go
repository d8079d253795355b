package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the config file for modification and delivers one signal
// per detected change on the returned channel. It prefers fsnotify and falls
// back to modtime polling when a watcher cannot be established. The watch
// goroutine exits when done is closed.
func Watch(done <-chan struct{}, path string) <-chan struct{} {
	changes := make(chan struct{}, 1)
	go watchLoop(done, path, changes)
	return changes
}

func watchLoop(done <-chan struct{}, path string, changes chan<- struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("fsnotify not available, falling back to polling: %v", err)
		pollLoop(done, path, changes)
		return
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			log.Printf("failed to close config watcher: %v", err)
		}
	}()

	// Watch the directory, not the file: editors replace files on save and
	// the original inode's watch would go quiet.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		log.Printf("failed to watch config directory, falling back to polling: %v", err)
		pollLoop(done, path, changes)
		return
	}

	log.Println("config watcher started (using fsnotify)")

	// Fallback polling ticker in case fsnotify misses events.
	pollTicker := time.NewTicker(2 * time.Second)
	defer pollTicker.Stop()

	lastCheck := time.Now()

	notify := func() {
		lastCheck = time.Now()
		select {
		case changes <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				log.Println("fsnotify watcher closed, switching to polling")
				pollLoop(done, path, changes)
				return
			}
			if event.Name == path && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) {
				// Small delay so the write has settled before reload.
				time.Sleep(50 * time.Millisecond)
				notify()
			}

		case <-pollTicker.C:
			if info, err := os.Stat(path); err == nil && info.ModTime().After(lastCheck) {
				notify()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				log.Println("fsnotify error channel closed, switching to polling")
				pollLoop(done, path, changes)
				return
			}
			log.Printf("config watcher error: %v", err)

		case <-done:
			return
		}
	}
}

// pollLoop is the pure polling fallback, checking modtime once a second.
func pollLoop(done <-chan struct{}, path string, changes chan<- struct{}) {
	log.Println("config watcher started (using polling fallback, 1s interval)")

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	lastCheck := time.Now()

	for {
		select {
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if info.ModTime().After(lastCheck) {
				lastCheck = time.Now()
				select {
				case changes <- struct{}{}:
				default:
				}
			}
		case <-done:
			return
		}
	}
}
