package middleware

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// optionsOverlay is the JSON shape of the live-reloadable options file. Only
// the list-valued options can be overridden; the predicate and the
// double-submit pair are fixed at process start.
type optionsOverlay struct {
	CookieNames      []string `json:"cookie_names"`
	AuthPathPrefixes []string `json:"auth_path_prefixes"`
}

// WatchOverlay loads the overlay file and reloads it whenever it changes.
// Reloads are debounced so editors that write in multiple events trigger a
// single reload.
func (g *CSRFGate) WatchOverlay(path string) error {
	g.applyOverlay(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	reload := make(chan struct{}, 1)
	go g.scheduleReload(reload, path)
	go watchEvents(watcher, path, reload)
	return nil
}

func (g *CSRFGate) applyOverlay(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("failed to read csrf options overlay", "path", path, "error", err)
		}
		g.opts.Store(&g.base)
		return
	}

	var overlay optionsOverlay
	if err := json.Unmarshal(data, &overlay); err != nil {
		slog.Error("invalid csrf options overlay, keeping current options", "path", path, "error", err)
		return
	}

	opts := g.base
	if len(overlay.CookieNames) > 0 {
		opts.CookieNames = overlay.CookieNames
	}
	if len(overlay.AuthPathPrefixes) > 0 {
		opts.AuthPathPrefixes = overlay.AuthPathPrefixes
	}
	g.opts.Store(&opts)
	slog.Info("csrf options overlay applied",
		"path", path,
		"cookie_names", opts.CookieNames,
		"auth_path_prefixes", opts.AuthPathPrefixes)
}

func watchEvents(watcher *fsnotify.Watcher, path string, reload chan<- struct{}) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name == path && event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Remove) {
				select {
				case reload <- struct{}{}:
				default:
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("csrf options watcher error", "error", err)
		}
	}
}

func (g *CSRFGate) scheduleReload(reload <-chan struct{}, path string) {
	var timer *time.Timer
	var c <-chan time.Time
	duration := 500 * time.Millisecond
	for {
		select {
		case <-reload:
			if timer != nil {
				timer.Reset(duration)
			} else {
				timer = time.NewTimer(duration)
				c = timer.C
			}
		case <-c:
			c = nil
			timer = nil
			g.applyOverlay(path)
		}
	}
}
